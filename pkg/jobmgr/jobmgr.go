// Package jobmgr runs named background loops with cancellation and
// in-memory tracking. Jobs run in their own goroutines and remove
// themselves on completion; there is no retry logic and no persistence.
//
// Typical usage:
//
//	jm := jobmgr.NewManager(func(msg string) {
//	    log.Println("[INFO] job:", msg)
//	})
//	_ = jm.StartAsync("maintenance", func(ctx context.Context) error {
//	    // loop until ctx is cancelled
//	    return nil
//	})
//	jm.StopAll()
package jobmgr

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// StatusReporter receives job lifecycle messages: "running:<name>",
// "done:<name>", or "error:<name>:<error>".
type StatusReporter func(string)

type job struct {
	name   string
	cancel context.CancelFunc
}

// Manager starts, stops and tracks background jobs. Safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	jobs     map[string]*job
	reporter StatusReporter
}

// NewManager creates a Manager. The reporter may be nil.
func NewManager(reporter StatusReporter) *Manager {
	return &Manager{
		jobs:     make(map[string]*job),
		reporter: reporter,
	}
}

// StartAsync runs a job in its own goroutine and returns immediately.
// A second job with the same name is rejected while the first runs.
func (m *Manager) StartAsync(name string, runner func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	if _, exists := m.jobs[name]; exists {
		m.mu.Unlock()
		cancel()
		return fmt.Errorf("job '%s' is already running", name)
	}
	m.jobs[name] = &job{name: name, cancel: cancel}
	m.mu.Unlock()

	go func() {
		m.report("running:" + name)
		if err := runner(ctx); err != nil {
			m.report("error:" + name + ":" + err.Error())
		} else {
			m.report("done:" + name)
		}
		m.mu.Lock()
		delete(m.jobs, name)
		m.mu.Unlock()
	}()
	return nil
}

// Stop cancels a running job by name.
func (m *Manager) Stop(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[name]
	if !ok {
		return fmt.Errorf("job '%s' not running", name)
	}
	j.cancel()
	delete(m.jobs, name)
	return nil
}

// StopAll cancels every running job.
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, j := range m.jobs {
		j.cancel()
		delete(m.jobs, name)
	}
}

// List returns the names of active jobs.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.jobs))
	for name := range m.jobs {
		out = append(out, name)
	}
	return out
}

// Status returns a human-readable summary of active jobs.
func (m *Manager) Status() string {
	active := m.List()
	if len(active) == 0 {
		return "No jobs are running."
	}
	return fmt.Sprintf("Running jobs: %s", strings.Join(active, ", "))
}

func (m *Manager) report(s string) {
	if m.reporter != nil {
		m.reporter(s)
	}
}
