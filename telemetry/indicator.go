// Package telemetry provides the observation surface the demo harness hangs
// off the supervisor's hooks: a colorized console level indicator standing
// in for the original firmware's RGB LED, and a CSV sink for the periodic
// queue report. Neither is on the hot path — both are wired through the
// optional hooks spec.md's Supervisor exposes, never called from tick
// context.
package telemetry

import (
	"fmt"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/feedbackqueue/mlfq/kernel"
	"github.com/feedbackqueue/mlfq/mlfq"
)

// levelStyle mirrors the original's setLEDColor: HIGH is green, MEDIUM is
// blue, LOW is red.
var levelStyle = map[mlfq.Level]lipgloss.Style{
	mlfq.High:   lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
	mlfq.Medium: lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true),
	mlfq.Low:    lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
}

// LevelIndicator renders level transitions to the console the way the
// firmware's RGB LED made them visible on the board. It is safe to pass
// directly as a Supervisor.SetLevelChangeHook callback.
type LevelIndicator struct {
	mu     sync.Mutex
	out    *os.File
	labels map[kernel.TaskHandle]string
}

// NewLevelIndicator creates an indicator writing to os.Stdout.
func NewLevelIndicator() *LevelIndicator {
	return &LevelIndicator{out: os.Stdout, labels: make(map[kernel.TaskHandle]string)}
}

// Label associates a human-readable name with a task handle for display.
func (l *LevelIndicator) Label(task kernel.TaskHandle, name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.labels[task] = name
}

// OnLevelChange is a mlfq.Supervisor level-change hook.
func (l *LevelIndicator) OnLevelChange(task kernel.TaskHandle, level mlfq.Level) {
	l.mu.Lock()
	name, ok := l.labels[task]
	l.mu.Unlock()
	if !ok {
		name = fmt.Sprintf("task-%d", task)
	}

	style, ok := levelStyle[level]
	if !ok {
		style = lipgloss.NewStyle()
	}
	fmt.Fprintf(l.out, "%s -> %s\n", name, style.Render(level.String()))
}
