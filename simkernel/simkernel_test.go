package simkernel

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/feedbackqueue/mlfq/kernel"
)

func TestKernelPriorityScheduling(t *testing.T) {
	Convey("Given a kernel with two tasks at different priorities", t, func() {
		k := New()
		high := kernel.TaskHandle(1)
		low := kernel.TaskHandle(2)
		k.RegisterTask(high, 6)
		k.RegisterTask(low, 2)

		k.Start()
		Reset(func() { k.Stop() })

		Convey("The higher-priority task is eventually selected as current", func() {
			deadline := time.After(200 * time.Millisecond)
			for {
				if k.CurrentTask() == high {
					break
				}
				select {
				case <-deadline:
					t.Fatal("high priority task never became current")
				case <-time.After(TickInterval):
				}
			}
		})

		Convey("Lowering the high task's priority hands current to the other task", func() {
			So(k.SetPriority(high, 1), ShouldBeNil)

			deadline := time.After(200 * time.Millisecond)
			for {
				if k.CurrentTask() == low {
					break
				}
				select {
				case <-deadline:
					t.Fatal("low priority task never became current")
				case <-time.After(TickInterval):
				}
			}
		})
	})
}

func TestKernelUnreadyTaskIsSkipped(t *testing.T) {
	Convey("Given a high-priority task marked not ready", t, func() {
		k := New()
		high := kernel.TaskHandle(1)
		low := kernel.TaskHandle(2)
		k.RegisterTask(high, 6)
		k.RegisterTask(low, 2)
		k.SetReady(high, false)

		k.Start()
		Reset(func() { k.Stop() })

		Convey("The ready task runs instead", func() {
			deadline := time.After(200 * time.Millisecond)
			for {
				if k.CurrentTask() == low {
					break
				}
				select {
				case <-deadline:
					t.Fatal("ready task never became current")
				case <-time.After(TickInterval):
				}
			}
		})
	})
}

func TestKernelSetPriorityUnknownTask(t *testing.T) {
	Convey("Given a kernel with no tasks", t, func() {
		k := New()

		Convey("SetPriority on an unregistered handle fails", func() {
			So(k.SetPriority(kernel.TaskHandle(99), 1), ShouldEqual, kernel.ErrUnknownTask)
		})
	})
}

func TestKernelDelayBlocksUntilTickTarget(t *testing.T) {
	Convey("Given a running kernel", t, func() {
		k := New()
		k.Start()
		Reset(func() { k.Stop() })

		Convey("Delay returns only after the requested ticks have elapsed", func() {
			start := k.TickCount()
			k.Delay(5)
			So(k.TickCount(), ShouldBeGreaterThanOrEqualTo, start+5)
		})
	})
}

func TestExpiryChannelCapacityAndOverflow(t *testing.T) {
	Convey("Given a capacity-2 expiry channel", t, func() {
		ch := newChanExpiryChannel(2)

		Convey("Sends beyond capacity fail without blocking", func() {
			So(ch.SendFromISR(kernel.TaskHandle(1)), ShouldBeTrue)
			So(ch.SendFromISR(kernel.TaskHandle(2)), ShouldBeTrue)
			So(ch.SendFromISR(kernel.TaskHandle(3)), ShouldBeFalse)
		})

		Convey("Receive drains in FIFO order and reports empty afterwards", func() {
			ch.SendFromISR(kernel.TaskHandle(1))
			ch.SendFromISR(kernel.TaskHandle(2))

			t1, ok := ch.Receive()
			So(ok, ShouldBeTrue)
			So(t1, ShouldEqual, kernel.TaskHandle(1))

			t2, ok := ch.Receive()
			So(ok, ShouldBeTrue)
			So(t2, ShouldEqual, kernel.TaskHandle(2))

			_, ok = ch.Receive()
			So(ok, ShouldBeFalse)
		})
	})
}
