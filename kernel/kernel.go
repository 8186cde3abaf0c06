// Package kernel declares the pre-emptive fixed-priority kernel primitives
// the MLFQ core consumes (spec.md §6). The kernel itself — task creation,
// queues, priority sets, tick hooks — is an external collaborator; this
// package only names the boundary. A real deployment backs it with the
// host RTOS; simkernel backs it for local evaluation and tests.
package kernel

import "errors"

// ErrUnknownTask is returned by SetPriority for a handle the kernel has no
// record of.
var ErrUnknownTask = errors.New("kernel: unknown task")

// TaskHandle identifies a schedulable task to the kernel. It is opaque to
// callers and must be comparable; NoTask is the empty sentinel.
type TaskHandle uint64

// NoTask is the empty/sentinel task handle (spec.md §3: "empty slots have
// task = empty").
const NoTask TaskHandle = 0

// ExpiryChannel is the bounded FIFO carrying task handles from the tick
// ISR to the supervisor (spec.md §3, "Expiry channel").
type ExpiryChannel interface {
	// SendFromISR performs a best-effort, non-blocking enqueue. It must
	// never block and is safe to call from the tick interrupt. It
	// reports false when the channel is full; the caller drops the
	// entry rather than retrying (spec.md §4.1 step 4, §7).
	SendFromISR(task TaskHandle) (ok bool)

	// Receive performs a non-blocking dequeue from task context. ok is
	// false when the channel is currently empty.
	Receive() (task TaskHandle, ok bool)
}

// Notifier is a counting wake signal from the tick ISR to a single
// designated task (spec.md §6, "Task notification").
type Notifier interface {
	NotifyFromISR()
}

// Kernel is the abstract set of pre-emptive kernel primitives the MLFQ
// core consumes (spec.md §6). Every method must behave as documented there;
// in particular EnterCritical/ExitCritical must nest, and no method
// reachable from the tick ISR (CurrentTask, TickCount, RequestContextSwitch,
// and the ExpiryChannel/Notifier ISR-side methods) may block.
type Kernel interface {
	// CurrentTask returns the task pre-empted by the current tick, or
	// NoTask if none is running.
	CurrentTask() TaskHandle

	// SetPriority sets a task's fixed priority; effective before return.
	SetPriority(task TaskHandle, priority int) error

	// NewExpiryChannel creates a bounded FIFO of the given capacity.
	NewExpiryChannel(capacity int) ExpiryChannel

	// NewNotifier creates a counting-semaphore style notifier targeting
	// the given task.
	NewNotifier(target TaskHandle) Notifier

	// TickCount returns the monotonic tick counter.
	TickCount() uint64

	// Delay suspends the caller for n ticks.
	Delay(ticks uint64)

	// EnterCritical masks the tick interrupt; nestable.
	EnterCritical()

	// ExitCritical unmasks the tick interrupt.
	ExitCritical()

	// RegisterTickHook installs fn to run on every tick interrupt. Only
	// one hook is supported, matching the single tick-profiler consumer
	// of spec.md; a second call replaces the first.
	RegisterTickHook(fn func())

	// RequestContextSwitch asks the kernel to reschedule on ISR return,
	// e.g. because signalling woke a higher-priority task.
	RequestContextSwitch()
}
