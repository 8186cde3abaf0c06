package telemetry

import (
	"encoding/csv"
	"fmt"
	"io"
	"sync"

	charmlog "github.com/charmbracelet/log"

	"github.com/feedbackqueue/mlfq/kernel"
	"github.com/feedbackqueue/mlfq/mlfq"
)

// CSVSink writes one row per task per report cycle, standing in for the
// original's formatStatsLog/printQueueReport UART dump. Columns match that
// format: name, level, run ticks, quantum ticks, arrival tick, waiting
// ticks.
type CSVSink struct {
	mu     sync.Mutex
	w      *csv.Writer
	logger *charmlog.Logger
	names  map[kernel.TaskHandle]string
	header bool
}

// NewCSVSink creates a sink writing to w, logging a summary line through a
// charmbracelet/log logger on every Write call.
func NewCSVSink(w io.Writer) *CSVSink {
	return &CSVSink{
		w:      csv.NewWriter(w),
		logger: charmlog.NewWithOptions(w, charmlog.Options{ReportTimestamp: true, Prefix: "mlfq-report"}),
		names:  make(map[kernel.TaskHandle]string),
	}
}

// NameTask associates a display name with a task handle.
func (s *CSVSink) NameTask(task kernel.TaskHandle, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names[task] = name
}

// Write is a mlfq.Supervisor report hook: it receives the full occupied-slot
// snapshot once per boost cycle and appends one CSV row per task.
func (s *CSVSink) Write(snaps []mlfq.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.header {
		_ = s.w.Write([]string{"name", "level", "run_ticks", "quantum_ticks", "arrival_tick", "waiting_ticks"})
		s.header = true
	}

	for _, snap := range snaps {
		name, ok := s.names[snap.Task]
		if !ok {
			name = fmt.Sprintf("task-%d", snap.Task)
		}
		_ = s.w.Write([]string{
			name,
			snap.Level.String(),
			fmt.Sprintf("%d", snap.RunTicks),
			fmt.Sprintf("%d", snap.QuantumTicks),
			fmt.Sprintf("%d", snap.ArrivalTick),
			fmt.Sprintf("%d", snap.WaitingTicks),
		})
	}
	s.w.Flush()

	s.logger.Infof("queue report: %d tasks", len(snaps))
}
