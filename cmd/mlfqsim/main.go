// Command mlfqsim wires up the simulated kernel, the MLFQ scheduler core,
// and the demo workload tasks the way the original firmware's main.c wires
// a CPU-heavy/interactive task mix under FreeRTOS. It runs for the
// --duration flag's length (30s by default) or until interrupted, printing
// level transitions and a periodic queue report.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/pflag"
	"github.com/theapemachine/errnie"

	"github.com/feedbackqueue/mlfq/kernel"
	"github.com/feedbackqueue/mlfq/mlfq"
	"github.com/feedbackqueue/mlfq/mlfqconfig"
	"github.com/feedbackqueue/mlfq/simkernel"
	"github.com/feedbackqueue/mlfq/telemetry"
	"github.com/feedbackqueue/mlfq/workload"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to a YAML/TOML/JSON config file overriding the scheduler defaults")
	runFor := pflag.DurationP("duration", "d", 30*time.Second, "how long to run the simulation before exiting")
	csvPath := pflag.StringP("csv", "o", "", "path to write the periodic queue report as CSV (default: stdout only)")
	pflag.Parse()

	cfg, err := mlfqconfig.Load(*configPath)
	if err != nil {
		errnie.Warn("mlfqsim: config load failed, using defaults: %v", err)
		cfg = mlfqconfig.Default()
	}

	log := charmlog.NewWithOptions(os.Stderr, charmlog.Options{ReportTimestamp: true, Prefix: "mlfqsim"})
	log.Info("starting MLFQ simulation", "maxTasks", cfg.MaxTasks, "boostPeriod", cfg.BoostPeriod)

	kern := simkernel.New()
	sup := mlfq.NewSupervisor(kern, cfg.Levels)
	if err := sup.Init(cfg.MaxTasks, cfg.ExpiryChannelLen, cfg.BoostPeriodTicks()); err != nil {
		log.Fatal("supervisor init failed", "err", err)
	}

	indicator := telemetry.NewLevelIndicator()
	sup.SetLevelChangeHook(indicator.OnLevelChange)

	var csvOut = os.Stdout
	if *csvPath != "" {
		f, err := os.Create(*csvPath)
		if err != nil {
			log.Fatal("cannot create csv output", "err", err)
		}
		defer f.Close()
		csvOut = f
	}
	sink := telemetry.NewCSVSink(csvOut)
	waitDigest := telemetry.NewWaitingTimeDigest()
	sup.SetReportHook(func(snaps []mlfq.Snapshot) {
		sink.Write(snaps)
		waitDigest.Observe(snaps)
		log.Debug("waiting time", "p50", waitDigest.Percentile(0.5), "p99", waitDigest.Percentile(0.99))
	})

	ctx, cancel := context.WithTimeout(context.Background(), *runFor)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	taskDefs := []struct {
		name   string
		run    func(context.Context, *simkernel.Kernel, kernel.TaskHandle, string)
		handle kernel.TaskHandle
	}{
		{name: "Interact_1", run: workload.RunInteractive},
		{name: "Heavy_2", run: workload.RunCPUHeavy},
		{name: "Heavy_3", run: workload.RunCPUHeavy},
		{name: "Interact_4", run: workload.RunInteractive},
	}

	for i := range taskDefs {
		taskDefs[i].handle = kernel.TaskHandle(i + 1)
	}

	kern.Start()
	defer kern.Stop()

	breaker := simkernel.NewRegistrationBreaker(3, time.Second)
	for _, t := range taskDefs {
		if !breaker.Allow() {
			log.Error("registration breaker open, skipping remaining tasks", "task", t.name)
			break
		}

		kern.RegisterTask(t.handle, cfg.Levels.PriorityOf(mlfq.High))
		if err := sup.Register(t.handle); err != nil {
			log.Error("registering task failed", "task", t.name, "err", err)
			breaker.RecordFailure()
			continue
		}
		breaker.RecordSuccess()
		indicator.Label(t.handle, t.name)
		sink.NameTask(t.handle, t.name)

		go t.run(ctx, kern, t.handle, t.name)
	}

	// Register the supervisor itself at the top of the priority range and
	// hand its handle to Run directly, rather than relying on Run to
	// rediscover it via kern.CurrentTask() — the tick-driven kernel only
	// recomputes "current" once per tick, so a just-registered handle is
	// not guaranteed to already be current when Run starts.
	supervisorSelf := kernel.TaskHandle(len(taskDefs) + 1)
	kern.RegisterTask(supervisorSelf, cfg.Levels.SupervisorPriority())
	sup.Run(ctx, supervisorSelf)

	fmt.Fprintln(os.Stderr, "mlfqsim: simulation finished")
}
