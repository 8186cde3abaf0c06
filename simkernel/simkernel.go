// Package simkernel is a goroutine-based stand-in for a pre-emptive
// fixed-priority RTOS kernel. It drives a virtual tick clock with
// time.Ticker, tracks which registered task is "current" at any moment, and
// implements kernel.Kernel so the mlfq package can run against it exactly as
// it would against a real target.
//
// There is no real pre-emption here: goroutines are cooperative from Go's
// point of view. simkernel instead recomputes, on every tick, which
// registered task is "current" strictly by (priority, arrival) ordering —
// which is enough to exercise the mlfq package's full state machine
// without needing real interrupts. Workload goroutines are never literally
// suspended; they cooperate only by toggling their readiness via SetReady.
package simkernel

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/feedbackqueue/mlfq/kernel"
)

// TickInterval is the wall-clock period of one simulated tick.
const TickInterval = 2 * time.Millisecond

type taskRecord struct {
	handle   kernel.TaskHandle
	priority int
	ready    bool
	arrival  uint64
}

// Kernel is a simkernel.Kernel instance. Zero value is not usable; use New.
type Kernel struct {
	mu       sync.Mutex
	tasks    map[kernel.TaskHandle]*taskRecord
	current  kernel.TaskHandle
	tick     uint64
	hook     func()
	switchCh chan struct{}

	ticker *time.Ticker
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a Kernel with no tasks registered and the tick clock stopped.
// Call Start to begin ticking.
func New() *Kernel {
	return &Kernel{
		tasks:    make(map[kernel.TaskHandle]*taskRecord),
		switchCh: make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}
}

// RegisterTask adds a schedulable task at the given initial priority. The
// task becomes eligible to be picked as "current" on the next tick.
func (k *Kernel) RegisterTask(handle kernel.TaskHandle, priority int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.tasks[handle] = &taskRecord{handle: handle, priority: priority, ready: true, arrival: k.tick}
}

// SetReady marks whether a task is eligible to run (models voluntary
// blocking: an interactive task that is waiting on input is not ready).
func (k *Kernel) SetReady(handle kernel.TaskHandle, ready bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if t, ok := k.tasks[handle]; ok {
		t.ready = ready
	}
}

// Start launches the virtual tick clock as a background goroutine. Each
// tick selects the highest-priority ready task as current, then fires the
// registered tick hook synchronously — mirroring an ISR that runs to
// completion before the next instruction executes.
func (k *Kernel) Start() {
	k.ticker = time.NewTicker(TickInterval)
	k.wg.Add(1)
	go k.run()
}

// Stop halts the tick clock and waits for the running goroutine to exit.
func (k *Kernel) Stop() {
	close(k.stopCh)
	k.wg.Wait()
	if k.ticker != nil {
		k.ticker.Stop()
	}
}

func (k *Kernel) run() {
	defer k.wg.Done()
	for {
		select {
		case <-k.stopCh:
			return
		case <-k.ticker.C:
			k.tickOnce()
		}
	}
}

func (k *Kernel) tickOnce() {
	k.mu.Lock()
	k.tick++
	k.current = k.pickCurrentLocked()
	hook := k.hook
	k.mu.Unlock()

	if hook != nil {
		hook()
	}
}

// pickCurrentLocked chooses the ready task with the highest kernel priority
// (numerically greatest, per mlfq.LevelConfig's convention), breaking ties
// by earliest arrival. Caller must hold k.mu.
func (k *Kernel) pickCurrentLocked() kernel.TaskHandle {
	var candidates []*taskRecord
	for _, t := range k.tasks {
		if t.ready {
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		return kernel.NoTask
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].priority != candidates[j].priority {
			return candidates[i].priority > candidates[j].priority
		}
		return candidates[i].arrival < candidates[j].arrival
	})
	return candidates[0].handle
}

// CurrentTask implements kernel.Kernel.
func (k *Kernel) CurrentTask() kernel.TaskHandle {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.current
}

// SetPriority implements kernel.Kernel.
func (k *Kernel) SetPriority(task kernel.TaskHandle, priority int) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	t, ok := k.tasks[task]
	if !ok {
		return kernel.ErrUnknownTask
	}
	t.priority = priority
	return nil
}

// NewExpiryChannel implements kernel.Kernel, returning a buffered
// channel-backed implementation of kernel.ExpiryChannel.
func (k *Kernel) NewExpiryChannel(capacity int) kernel.ExpiryChannel {
	return newChanExpiryChannel(capacity)
}

// NewNotifier implements kernel.Kernel. Under simkernel, "waking" the
// supervisor just means a non-blocking signal on switchCh, the same
// channel RequestContextSwitch signals — there is no separate blocked
// queue to pull the supervisor off of.
func (k *Kernel) NewNotifier(target kernel.TaskHandle) kernel.Notifier {
	return &notifier{kern: k, target: target}
}

// TickCount implements kernel.Kernel.
func (k *Kernel) TickCount() uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.tick
}

// Delay implements kernel.Kernel by blocking the calling goroutine until
// the tick clock has advanced by the requested number of ticks.
func (k *Kernel) Delay(ticks uint64) {
	k.mu.Lock()
	target := k.tick + ticks
	k.mu.Unlock()

	for {
		k.mu.Lock()
		done := k.tick >= target
		k.mu.Unlock()
		if done {
			return
		}
		select {
		case <-k.stopCh:
			return
		case <-time.After(TickInterval / 4):
		}
	}
}

// EnterCritical and ExitCritical implement kernel.Kernel by holding k.mu.
// tickOnce and the tick hook's CurrentTask call take the same mutex, so a
// tick waits until the critical section ends — mutual exclusion standing
// in for masking the tick interrupt. k.mu is not reentrant, so these do
// not nest: a second EnterCritical on the same goroutine deadlocks.
func (k *Kernel) EnterCritical() { k.mu.Lock() }
func (k *Kernel) ExitCritical()  { k.mu.Unlock() }

// RegisterTickHook implements kernel.Kernel. A second call replaces the
// first, matching the single tick-profiler consumer the interface assumes.
func (k *Kernel) RegisterTickHook(fn func()) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.hook = fn
}

// RequestContextSwitch implements kernel.Kernel. Since pickCurrentLocked
// already re-evaluates priority on every tick, a requested switch only
// signals switchCh and logs — real pre-emption happens for free on the next
// tick boundary.
func (k *Kernel) RequestContextSwitch() {
	select {
	case k.switchCh <- struct{}{}:
	default:
	}
	log.Printf("simkernel: context switch requested at tick %d", k.TickCount())
}

type notifier struct {
	kern   *Kernel
	target kernel.TaskHandle
}

func (n *notifier) NotifyFromISR() {
	select {
	case n.kern.switchCh <- struct{}{}:
	default:
	}
}
