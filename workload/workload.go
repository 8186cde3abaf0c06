// Package workload provides the synthetic task bodies used to exercise the
// scheduler: a CPU-heavy task that never blocks and an interactive task
// that does short bursts of work and yields frequently. Both are grounded
// in the kind of workloads a real MLFQ deployment uses to validate that
// CPU-bound tasks drop to LOW and interactive tasks stay HIGH.
package workload

import (
	"context"
	"log"
	"time"

	"github.com/feedbackqueue/mlfq/kernel"
	"github.com/feedbackqueue/mlfq/simkernel"
)

// busyWork burns CPU for roughly n iterations of a cheap arithmetic loop,
// standing in for the original's volatile-counter busy loop.
func busyWork(n int) {
	x := uint8(0)
	for i := 0; i < n; i++ {
		x++
	}
	_ = x
}

// InteractiveTaskTime and HeavyTaskTime mirror the original firmware's
// INTERACTIVE_TASK_TIME / HEAVY_TASK_TIME busy-loop bounds, scaled down
// since each Go loop iteration is far cheaper than the embedded target's.
const (
	InteractiveTaskTime = 2000
	HeavyTaskTime       = 2000
	HeavyTaskBursts     = 100
)

// RunInteractive runs an interactive-style task: a short computation
// followed by a voluntary block, repeated until ctx is cancelled. It marks
// itself not-ready on the kernel while "blocked" so the scheduler's
// pickCurrentLocked skips it, then ready again once the simulated I/O wait
// elapses — the same shape as the original's vTaskDelay(5) yield.
func RunInteractive(ctx context.Context, kern *simkernel.Kernel, self kernel.TaskHandle, name string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		busyWork(InteractiveTaskTime)

		kern.SetReady(self, false)
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * simkernel.TickInterval):
		}
		kern.SetReady(self, true)
	}
}

// RunCPUHeavy runs a CPU-bound task: a long run of computation with no
// voluntary yield, repeated until ctx is cancelled. Unlike RunInteractive it
// never marks itself not-ready, so it keeps accumulating run_ticks whenever
// the scheduler picks it as current — which is exactly what should trigger
// repeated quantum expiry and demotion.
func RunCPUHeavy(ctx context.Context, kern *simkernel.Kernel, self kernel.TaskHandle, name string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		for i := 0; i < HeavyTaskBursts; i++ {
			busyWork(HeavyTaskTime)
			select {
			case <-ctx.Done():
				return
			default:
			}
		}

		log.Printf("workload: %s completed a CPU-heavy burst", name)
	}
}
