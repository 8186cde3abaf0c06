package mlfq

import (
	"context"
	"sync"

	"github.com/theapemachine/errnie"

	"github.com/feedbackqueue/mlfq/kernel"
)

// supervisorSlot is one row of the supervisor's task→level table (spec.md
// §3, "Supervisor record"). It is owned exclusively by the supervisor and
// never touched by the tick ISR.
type supervisorSlot struct {
	task        kernel.TaskHandle
	level       Level
	arrivalTick uint64
	occupied    bool
}

// Snapshot is a read-only view combining a supervisor record with a live
// accountant reading (spec.md §4.2, snapshot()).
type Snapshot struct {
	Task         kernel.TaskHandle
	Level        Level
	RunTicks     uint32
	QuantumTicks uint32
	ArrivalTick  uint64
	WaitingTicks uint64
}

// Supervisor owns the task→level mapping and translates policy decisions
// into kernel priority changes and accountant quantum changes (spec.md
// §4.2). It runs as the single highest-priority task.
type Supervisor struct {
	kern kernel.Kernel
	acct *Accountant
	cfg  LevelConfig

	mu    sync.Mutex // owns the supervisor table; the tick ISR never touches it
	slots []supervisorSlot

	boostPeriodTicks uint64
	lastBoost        uint64

	onLevelChange func(kernel.TaskHandle, Level)
	reportHook    func([]Snapshot)
}

// NewSupervisor creates a Supervisor bound to kern, using cfg to translate
// levels to kernel priorities and quanta.
func NewSupervisor(kern kernel.Kernel, cfg LevelConfig) *Supervisor {
	return &Supervisor{
		kern: kern,
		cfg:  cfg,
		acct: NewAccountant(kern),
	}
}

// Init calls accountant.Init and clears the supervisor table (spec.md
// §4.2). boostPeriodTicks is the minimum interval between global boosts,
// measured in ticks (a deployment constant per spec.md §9); 0 selects
// DefaultBoostPeriodTicks.
func (s *Supervisor) Init(maxTasks, expiryChannelLen int, boostPeriodTicks uint64) error {
	if err := s.acct.Init(maxTasks, expiryChannelLen); err != nil {
		return err
	}
	if maxTasks <= 0 {
		maxTasks = DefaultMaxTasks
	}
	if boostPeriodTicks == 0 {
		boostPeriodTicks = DefaultBoostPeriodTicks
	}

	s.mu.Lock()
	s.slots = make([]supervisorSlot, maxTasks)
	s.mu.Unlock()

	s.boostPeriodTicks = boostPeriodTicks
	s.lastBoost = s.kern.TickCount()

	errnie.Info(
		"mlfq: supervisor initialized maxTasks=%d boostPeriodTicks=%d",
		maxTasks, boostPeriodTicks,
	)
	return nil
}

// SetLevelChangeHook installs an optional observer notified on every level
// transition (spec.md §6, "level_change(level) hook for UI indication").
func (s *Supervisor) SetLevelChangeHook(fn func(kernel.TaskHandle, Level)) {
	s.onLevelChange = fn
}

// SetReportHook installs an optional observer invoked with a full table
// snapshot once per boost cycle (spec.md §6, "report() hook").
func (s *Supervisor) SetReportHook(fn func([]Snapshot)) {
	s.reportHook = fn
}

// Register finds an empty supervisor slot, registers task with the
// accountant, and — only on accountant success — stores (task, HIGH, now),
// sets the kernel priority, and assigns the HIGH quantum (spec.md §4.2).
// Accountant rejection leaves the supervisor table untouched: the
// rejection is logged and its error returned, and the task simply runs
// unmanaged at whatever priority it already had.
func (s *Supervisor) Register(task kernel.TaskHandle) error {
	if task == kernel.NoTask {
		return ErrInvalidArgument
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(task) >= 0 {
		return ErrAlreadyPresent
	}
	slot := s.emptySlot()
	if slot < 0 {
		return ErrTableFull
	}

	if err := s.acct.Register(task); err != nil {
		errnie.Warn("mlfq: supervisor register: accountant rejected task %v: %v", task, err)
		return err
	}

	now := s.kern.TickCount()
	s.slots[slot] = supervisorSlot{task: task, level: High, arrivalTick: now, occupied: true}

	if err := s.kern.SetPriority(task, s.cfg.PriorityOf(High)); err != nil {
		errnie.Warn("mlfq: kernel priority-set failed for task %v: %v", task, err)
	}
	if err := s.acct.SetQuantum(task, s.cfg.QuantumOf(High)); err != nil {
		errnie.Warn("mlfq: set_quantum failed for task %v: %v", task, err)
	}

	s.notifyLevelChange(task, High)
	return nil
}

// SetLevel updates the supervisor record, sets the kernel priority, and
// installs the new quantum while resetting run_ticks atomically (spec.md
// §4.2). It is idempotent when the level is unchanged, except that
// run_ticks is still reset.
func (s *Supervisor) SetLevel(task kernel.TaskHandle, newLevel Level) error {
	s.mu.Lock()
	idx := s.indexOf(task)
	if idx < 0 {
		s.mu.Unlock()
		return ErrNotFound
	}
	s.slots[idx].level = newLevel
	s.mu.Unlock()

	if err := s.kern.SetPriority(task, s.cfg.PriorityOf(newLevel)); err != nil {
		errnie.Warn("mlfq: kernel priority-set failed for task %v at level %v: %v", task, newLevel, err)
	}
	if err := s.acct.setQuantumAndResetRuntime(task, s.cfg.QuantumOf(newLevel)); err != nil {
		errnie.Warn("mlfq: set_quantum/reset_runtime failed for task %v: %v", task, err)
	}

	s.notifyLevelChange(task, newLevel)
	return nil
}

// CheckForDemotion takes the supervisor-table index of a task whose
// quantum has expired. HIGH and MEDIUM move to the next lower level; LOW
// re-applies LOW — idempotent, but still reloads the quantum and resets
// runtime (spec.md §4.2).
func (s *Supervisor) CheckForDemotion(index int) error {
	s.mu.Lock()
	if index < 0 || index >= len(s.slots) || !s.slots[index].occupied {
		s.mu.Unlock()
		return ErrNotFound
	}
	task := s.slots[index].task
	current := s.slots[index].level
	s.mu.Unlock()

	return s.SetLevel(task, current.demote())
}

// GlobalBoost returns every occupied slot to HIGH (spec.md §4.2, §8
// invariant 4: "within one supervisor iteration after a global boost,
// every occupied slot has level = HIGH and run_ticks = 0").
func (s *Supervisor) GlobalBoost() {
	s.mu.Lock()
	tasks := make([]kernel.TaskHandle, 0, len(s.slots))
	for i := range s.slots {
		if s.slots[i].occupied {
			tasks = append(tasks, s.slots[i].task)
		}
	}
	s.mu.Unlock()

	for _, t := range tasks {
		_ = s.SetLevel(t, High)
	}
	errnie.Info("mlfq: global boost applied to %d tasks", len(tasks))
}

// PromoteInteractive raises task's level by one if it is MEDIUM or LOW.
// Provided for external callers that can detect voluntary blocking; the
// default control loop never calls it (spec.md §9).
func (s *Supervisor) PromoteInteractive(task kernel.TaskHandle) error {
	s.mu.Lock()
	idx := s.indexOf(task)
	if idx < 0 {
		s.mu.Unlock()
		return ErrNotFound
	}
	level := s.slots[idx].level
	s.mu.Unlock()

	if level == High {
		return nil
	}
	return s.SetLevel(task, level.promote())
}

// Snapshot fills a read-only view of slot index, combining the supervisor
// record with a live accountant.Runtime read and the static quantum for
// its level. It reports false for empty or out-of-range slots.
func (s *Supervisor) Snapshot(index int) (Snapshot, bool) {
	s.mu.Lock()
	if index < 0 || index >= len(s.slots) || !s.slots[index].occupied {
		s.mu.Unlock()
		return Snapshot{}, false
	}
	slot := s.slots[index]
	s.mu.Unlock()

	now := s.kern.TickCount()
	runTicks := s.acct.Runtime(slot.task)
	waiting := int64(now) - int64(slot.arrivalTick) - int64(runTicks)
	if waiting < 0 {
		waiting = 0
	}

	return Snapshot{
		Task:         slot.task,
		Level:        slot.level,
		RunTicks:     runTicks,
		QuantumTicks: s.cfg.QuantumOf(slot.level),
		ArrivalTick:  slot.arrivalTick,
		WaitingTicks: uint64(waiting),
	}, true
}

// Run is the supervisor task body (spec.md §4.2's control-loop state
// machine). self is the task handle the caller has already registered
// with the kernel for the supervisor itself — the caller must supply it
// rather than Run discovering it via kern.CurrentTask(), since "current"
// on a tick-driven kernel is only recomputed once per tick and may not
// yet reflect a handle registered moments ago. Run registers self with
// the accountant as the notification target, then loops draining
// expiries, applying the periodic boost, and yielding, until ctx is
// cancelled — which models "the kernel is stopped" (spec.md §5:
// cancellation has no other form here).
func (s *Supervisor) Run(ctx context.Context, self kernel.TaskHandle) {
	s.acct.SetSupervisor(self)
	if err := s.kern.SetPriority(self, s.cfg.SupervisorPriority()); err != nil {
		errnie.Warn("mlfq: failed to set supervisor priority: %v", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		s.drainExpiries()

		now := s.kern.TickCount()
		if now-s.lastBoost >= s.boostPeriodTicks {
			s.GlobalBoost()
			s.lastBoost = now
			s.emitReport()
		}

		s.kern.Delay(SupervisorSleepTicks)
	}
}

// drainExpiries performs phase 1 of the control loop: non-blocking
// receive from the expiry channel until empty, demoting each handle found
// in the supervisor table. A handle not found there (stale, or never
// registered) is silently ignored (spec.md §8, scenario 6).
func (s *Supervisor) drainExpiries() {
	ch := s.acct.ExpiryChannel()
	if ch == nil {
		return
	}
	for {
		task, ok := ch.Receive()
		if !ok {
			return
		}

		s.mu.Lock()
		idx := s.indexOf(task)
		s.mu.Unlock()
		if idx < 0 {
			continue
		}
		if err := s.CheckForDemotion(idx); err != nil {
			errnie.Warn("mlfq: demotion failed for task %v: %v", task, err)
		}
	}
}

// emitReport gathers a snapshot of every occupied slot and hands it to the
// report hook, if any (spec.md §4.2 phase 3, "Telemetry (optional)").
func (s *Supervisor) emitReport() {
	if s.reportHook == nil {
		return
	}

	s.mu.Lock()
	n := len(s.slots)
	s.mu.Unlock()

	snaps := make([]Snapshot, 0, n)
	for i := 0; i < n; i++ {
		if snap, ok := s.Snapshot(i); ok {
			snaps = append(snaps, snap)
		}
	}
	s.reportHook(snaps)
}

func (s *Supervisor) notifyLevelChange(task kernel.TaskHandle, level Level) {
	if s.onLevelChange != nil {
		s.onLevelChange(task, level)
	}
}

// indexOf finds task's slot. Caller must hold s.mu.
func (s *Supervisor) indexOf(task kernel.TaskHandle) int {
	for i := range s.slots {
		if s.slots[i].occupied && s.slots[i].task == task {
			return i
		}
	}
	return -1
}

// emptySlot finds the first unoccupied slot. Caller must hold s.mu.
func (s *Supervisor) emptySlot() int {
	for i := range s.slots {
		if !s.slots[i].occupied {
			return i
		}
	}
	return -1
}
