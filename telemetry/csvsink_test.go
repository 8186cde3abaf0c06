package telemetry

import (
	"bytes"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/feedbackqueue/mlfq/kernel"
	"github.com/feedbackqueue/mlfq/mlfq"
)

func TestCSVSinkWrite(t *testing.T) {
	Convey("Given a sink with one named task", t, func() {
		var buf bytes.Buffer
		sink := NewCSVSink(&buf)
		task := kernel.TaskHandle(1)
		sink.NameTask(task, "heavy-1")

		Convey("Writing a snapshot emits a header then a data row", func() {
			sink.Write([]mlfq.Snapshot{
				{Task: task, Level: mlfq.Low, RunTicks: 100, QuantumTicks: 100, ArrivalTick: 0, WaitingTicks: 5},
			})

			out := buf.String()
			So(out, ShouldContainSubstring, "name,level,run_ticks")
			So(out, ShouldContainSubstring, "heavy-1,LOW,100,100,0,5")
		})

		Convey("An unnamed task falls back to a generated label", func() {
			sink.Write([]mlfq.Snapshot{
				{Task: kernel.TaskHandle(2), Level: mlfq.High},
			})
			So(buf.String(), ShouldContainSubstring, "task-2")
		})

		Convey("The header is only written once across multiple calls", func() {
			sink.Write([]mlfq.Snapshot{{Task: task, Level: mlfq.High}})
			sink.Write([]mlfq.Snapshot{{Task: task, Level: mlfq.High}})
			So(strings.Count(buf.String(), "name,level,run_ticks"), ShouldEqual, 1)
		})
	})
}
