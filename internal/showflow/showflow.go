// Package showflow runs the declarative show schedule: cron-triggered lists
// of actions (scene changes, expressions, persona switches, chat lines) fed
// into the reaction pipeline's dispatcher.
package showflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/robfig/cron/v3"

	"tsubaki/internal/action"
)

// SettingsKey holds the JSON-encoded step list in the settings store.
const SettingsKey = "showflow.steps"

// Step binds a cron expression to an ordered action list.
type Step struct {
	Schedule string          `json:"cron"`
	Actions  []action.Action `json:"actions"`
}

// Executor runs one action. Called sequentially within a step.
type Executor func(ctx context.Context, a action.Action) error

// specParser accepts standard 5-field expressions, an optional leading
// seconds field, and @every/@hourly style descriptors.
var specParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Scheduler owns the live cron runner. Load replaces the whole schedule
// atomically: the previous runner is stopped and drained before the new one
// starts, so no stale job fires after Load returns.
type Scheduler struct {
	mu     sync.Mutex
	runner *cron.Cron
}

func New() *Scheduler {
	return &Scheduler{}
}

// Load validates every step, cancels the previous schedule, and installs the
// new one. On a validation error nothing changes and the old schedule keeps
// running.
func (s *Scheduler) Load(ctx context.Context, steps []Step, exec Executor) error {
	fresh := cron.New(cron.WithParser(specParser))
	for i, step := range steps {
		step := step
		if _, err := fresh.AddFunc(step.Schedule, func() { runStep(ctx, step, exec) }); err != nil {
			return fmt.Errorf("step %d (%q): %w", i, step.Schedule, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runner != nil {
		// Stop scheduling and wait for in-flight jobs to finish.
		<-s.runner.Stop().Done()
	}
	s.runner = fresh
	fresh.Start()
	return nil
}

// Stop cancels all scheduled jobs and waits for running ones.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runner != nil {
		<-s.runner.Stop().Done()
		s.runner = nil
	}
}

// Jobs reports how many cron entries are installed.
func (s *Scheduler) Jobs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runner == nil {
		return 0
	}
	return len(s.runner.Entries())
}

// runStep executes a step's actions in list order, awaiting each. The first
// failing action aborts the remainder of the step.
func runStep(ctx context.Context, step Step, exec Executor) {
	for _, a := range step.Actions {
		if err := exec(ctx, a); err != nil {
			log.Printf("[WARN] Show step %q aborted at %s: %v", step.Schedule, a, err)
			return
		}
	}
}

// ParseSteps decodes the settings blob. An empty blob is an empty schedule.
func ParseSteps(raw string) ([]Step, error) {
	if raw == "" {
		return nil, nil
	}
	var steps []Step
	if err := json.Unmarshal([]byte(raw), &steps); err != nil {
		return nil, fmt.Errorf("parse show steps: %w", err)
	}
	return steps, nil
}
