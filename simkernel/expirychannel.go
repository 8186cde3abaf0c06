package simkernel

import "github.com/feedbackqueue/mlfq/kernel"

// chanExpiryChannel backs kernel.ExpiryChannel with a Go channel: sends are
// non-blocking selects, matching the "never block the ISR" contract, and
// receives are non-blocking selects from task context.
type chanExpiryChannel struct {
	ch chan kernel.TaskHandle
}

func newChanExpiryChannel(capacity int) *chanExpiryChannel {
	if capacity <= 0 {
		capacity = 1
	}
	return &chanExpiryChannel{ch: make(chan kernel.TaskHandle, capacity)}
}

// SendFromISR implements kernel.ExpiryChannel.
func (c *chanExpiryChannel) SendFromISR(task kernel.TaskHandle) bool {
	select {
	case c.ch <- task:
		return true
	default:
		return false
	}
}

// Receive implements kernel.ExpiryChannel.
func (c *chanExpiryChannel) Receive() (kernel.TaskHandle, bool) {
	select {
	case t := <-c.ch:
		return t, true
	default:
		return kernel.NoTask, false
	}
}
