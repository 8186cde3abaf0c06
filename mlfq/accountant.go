package mlfq

import (
	"sync"
	"sync/atomic"

	"github.com/theapemachine/errnie"

	"github.com/feedbackqueue/mlfq/kernel"
)

// accountantSlot is one row of the accountant's fixed-size table (spec.md
// §3, "Accountant record"). task is written once at registration and read
// by the tick ISR without further synchronization afterwards; runTicks is
// ISR-owned, quantumTicks is task-context-owned. All three are plain
// atomics rather than mutex-guarded fields so the ISR path (onTick) never
// blocks, per spec.md §5's "no blocking primitive may be called from the
// tick ISR".
type accountantSlot struct {
	task         atomic.Uint64
	runTicks     atomic.Uint32
	quantumTicks atomic.Uint32
}

// Accountant is the tick-context bookkeeping subsystem of spec.md §4.1: it
// attributes every scheduler tick to the task that was running, detects
// quantum exhaustion, and signals the supervisor over a bounded expiry
// channel.
type Accountant struct {
	kern kernel.Kernel

	// mu serializes task-context callers against each other (concurrent
	// Register/SetQuantum/etc. calls). It is not needed against the tick
	// ISR: every ISR-touched field is a plain atomic, and
	// setQuantumAndResetRuntime orders its two stores so no transient
	// state can produce a spurious expiry (see its doc comment).
	mu sync.Mutex

	slots    []accountantSlot
	maxTasks int

	expiryCh kernel.ExpiryChannel
	notifier atomic.Pointer[kernel.Notifier] // set once by SetSupervisor, read from onTick
}

// NewAccountant creates an Accountant bound to kern. Call Init before the
// kernel starts ticking.
func NewAccountant(kern kernel.Kernel) *Accountant {
	return &Accountant{kern: kern}
}

// Init clears the table, clears the scheduler-handle register, and
// creates the expiry channel (spec.md §4.1's init() contract). It must
// complete before the kernel starts. Go's allocator panics rather than
// returning a recoverable error on exhaustion, so — unlike the embedded
// original — this never returns the out_of_memory case from spec.md §4.1;
// see DESIGN.md for that resolution.
func (a *Accountant) Init(maxTasks, expiryChannelLen int) error {
	if maxTasks <= 0 {
		maxTasks = DefaultMaxTasks
	}
	if expiryChannelLen <= 0 {
		expiryChannelLen = 2 * maxTasks
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.maxTasks = maxTasks
	a.slots = make([]accountantSlot, maxTasks)
	a.notifier.Store(nil)
	a.expiryCh = a.kern.NewExpiryChannel(expiryChannelLen)
	a.kern.RegisterTickHook(a.onTick)

	errnie.Info(
		"mlfq: accountant initialized maxTasks=%d expiryChannelLen=%d",
		maxTasks, expiryChannelLen,
	)
	return nil
}

// Register allocates a slot for task, zeroing its counters and leaving
// quantum_ticks unset (0 — "do not detect expiry" per spec.md §3).
func (a *Accountant) Register(task kernel.TaskHandle) error {
	if task == kernel.NoTask {
		return ErrInvalidArgument
	}

	a.kern.EnterCritical()
	defer a.kern.ExitCritical()
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.indexOf(task) >= 0 {
		return ErrAlreadyPresent
	}
	idx := a.emptySlot()
	if idx < 0 {
		errnie.Warn("mlfq: accountant table full, rejecting task %v", task)
		return ErrTableFull
	}

	slot := &a.slots[idx]
	slot.runTicks.Store(0)
	slot.quantumTicks.Store(0)
	slot.task.Store(uint64(task))
	return nil
}

// SetQuantum assigns a task's time quantum in ticks. q must be >= 1.
func (a *Accountant) SetQuantum(task kernel.TaskHandle, q uint32) error {
	if q == 0 {
		return ErrInvalidArgument
	}

	a.kern.EnterCritical()
	defer a.kern.ExitCritical()
	a.mu.Lock()
	defer a.mu.Unlock()

	idx := a.indexOf(task)
	if idx < 0 {
		return ErrNotFound
	}
	a.slots[idx].quantumTicks.Store(q)
	return nil
}

// Runtime returns the accumulated run_ticks for task, or 0 if not
// registered.
func (a *Accountant) Runtime(task kernel.TaskHandle) uint32 {
	a.mu.Lock()
	idx := a.indexOf(task)
	a.mu.Unlock()
	if idx < 0 {
		return 0
	}
	return a.slots[idx].runTicks.Load()
}

// ResetRuntime zeroes run_ticks only, leaving quantum_ticks untouched.
func (a *Accountant) ResetRuntime(task kernel.TaskHandle) error {
	a.kern.EnterCritical()
	defer a.kern.ExitCritical()
	a.mu.Lock()
	defer a.mu.Unlock()

	idx := a.indexOf(task)
	if idx < 0 {
		return ErrNotFound
	}
	a.slots[idx].runTicks.Store(0)
	return nil
}

// setQuantumAndResetRuntime installs a new quantum and resets run_ticks in
// one call, used by Supervisor.SetLevel so the pair is atomic "from the
// task's point of view" (spec.md §4.2). run_ticks is zeroed before the new
// quantum is stored: if the tick ISR fires in the gap it observes either
// (old quantum, 0) or (new quantum, 0), and 0 never reaches any positive
// quantum, so no spurious expiry can be produced by the transient — unlike
// the reverse order, which could momentarily compare a stale, larger
// run_ticks against an already-lowered quantum.
func (a *Accountant) setQuantumAndResetRuntime(task kernel.TaskHandle, q uint32) error {
	if q == 0 {
		return ErrInvalidArgument
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	idx := a.indexOf(task)
	if idx < 0 {
		return ErrNotFound
	}
	slot := &a.slots[idx]
	slot.runTicks.Store(0)
	slot.quantumTicks.Store(q)
	return nil
}

// SetSupervisor records the task to notify on expiry. May be called once.
func (a *Accountant) SetSupervisor(handle kernel.TaskHandle) {
	n := a.kern.NewNotifier(handle)
	a.notifier.Store(&n)
}

// ExpiryChannel exposes the channel so the supervisor can drain it.
func (a *Accountant) ExpiryChannel() kernel.ExpiryChannel {
	return a.expiryCh
}

// onTick is the tick-context contract of spec.md §4.1. It is invoked from
// the tick interrupt (or, under simkernel, from the goroutine simulating
// one) and must never block.
func (a *Accountant) onTick() {
	current := a.kern.CurrentTask()
	if current == kernel.NoTask {
		return
	}

	idx := a.indexOf(current)
	if idx < 0 {
		return
	}

	slot := &a.slots[idx]
	runTicks := slot.runTicks.Add(1)
	quantum := slot.quantumTicks.Load()
	if quantum != 0 && runTicks >= quantum {
		if a.expiryCh != nil {
			a.expiryCh.SendFromISR(current) // best-effort; overflow drops silently
		}
		if n := a.notifier.Load(); n != nil {
			(*n).NotifyFromISR()
		}
		a.kern.RequestContextSwitch()
	}
}

// indexOf finds task's slot. Callers that mutate slot contents must hold
// a.mu; reads are safe either way since the field itself is atomic.
func (a *Accountant) indexOf(task kernel.TaskHandle) int {
	for i := range a.slots {
		if a.slots[i].task.Load() == uint64(task) {
			return i
		}
	}
	return -1
}

// emptySlot finds the first slot with task == NoTask. Caller must hold a.mu.
func (a *Accountant) emptySlot() int {
	return a.indexOf(kernel.NoTask)
}
