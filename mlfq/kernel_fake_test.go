package mlfq

import (
	"sync"

	"github.com/feedbackqueue/mlfq/kernel"
)

// testKernel is a minimal synchronous kernel.Kernel for unit tests. Ticks
// are advanced explicitly via Tick rather than by a real clock, so tests
// are deterministic; critical sections are no-ops since tests drive
// everything from a single goroutine.
type testKernel struct {
	mu         sync.Mutex
	current    kernel.TaskHandle
	tick       uint64
	priorities map[kernel.TaskHandle]int
	hook       func()
	switches   int
	delays     []uint64
}

func newTestKernel() *testKernel {
	return &testKernel{priorities: make(map[kernel.TaskHandle]int)}
}

func (k *testKernel) CurrentTask() kernel.TaskHandle {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.current
}

func (k *testKernel) SetCurrentTask(t kernel.TaskHandle) {
	k.mu.Lock()
	k.current = t
	k.mu.Unlock()
}

func (k *testKernel) SetPriority(task kernel.TaskHandle, priority int) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.priorities[task] = priority
	return nil
}

func (k *testKernel) Priority(task kernel.TaskHandle) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.priorities[task]
}

func (k *testKernel) NewExpiryChannel(capacity int) kernel.ExpiryChannel {
	return newTestExpiryChannel(capacity)
}

func (k *testKernel) NewNotifier(target kernel.TaskHandle) kernel.Notifier {
	return &testNotifier{target: target}
}

func (k *testKernel) TickCount() uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.tick
}

func (k *testKernel) Delay(ticks uint64) {
	k.mu.Lock()
	k.delays = append(k.delays, ticks)
	k.tick += ticks
	k.mu.Unlock()
}

func (k *testKernel) EnterCritical() {}
func (k *testKernel) ExitCritical()  {}

func (k *testKernel) RegisterTickHook(fn func()) {
	k.mu.Lock()
	k.hook = fn
	k.mu.Unlock()
}

func (k *testKernel) RequestContextSwitch() {
	k.mu.Lock()
	k.switches++
	k.mu.Unlock()
}

// Tick sets the currently-running task and fires the registered tick hook
// once, mirroring one interrupt firing while current was running.
func (k *testKernel) Tick(current kernel.TaskHandle) {
	k.mu.Lock()
	k.current = current
	k.tick++
	hook := k.hook
	k.mu.Unlock()
	if hook != nil {
		hook()
	}
}

type testExpiryChannel struct {
	mu  sync.Mutex
	buf []kernel.TaskHandle
	cap int
}

func newTestExpiryChannel(capacity int) *testExpiryChannel {
	return &testExpiryChannel{cap: capacity}
}

func (c *testExpiryChannel) SendFromISR(task kernel.TaskHandle) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.buf) >= c.cap {
		return false
	}
	c.buf = append(c.buf, task)
	return true
}

func (c *testExpiryChannel) Receive() (kernel.TaskHandle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.buf) == 0 {
		return kernel.NoTask, false
	}
	t := c.buf[0]
	c.buf = c.buf[1:]
	return t, true
}

type testNotifier struct {
	target kernel.TaskHandle
	count  int
	mu     sync.Mutex
}

func (n *testNotifier) NotifyFromISR() {
	n.mu.Lock()
	n.count++
	n.mu.Unlock()
}

func (n *testNotifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.count
}
