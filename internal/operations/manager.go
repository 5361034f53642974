package operations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"adaptiveclean/internal/infrastructure"
)

var (
	// ErrRunNotFound is returned when cancelling an unknown run.
	ErrRunNotFound = errors.New("run not found")
	// ErrRunExists is returned when a run id is already being tracked.
	ErrRunExists = errors.New("run id already in use")
)

// Manager tracks active runs
type Manager struct {
	mu     sync.RWMutex
	runs   map[string]*runState
	now    func() time.Time
	logger *slog.Logger
}

// NewManager creates an empty run manager
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &Manager{
		runs:   make(map[string]*runState),
		now:    time.Now,
		logger: logger.With(slog.String("component", "run_manager")),
	}
}

// begin registers a run and returns a context that Cancel can stop, along
// with a release function that removes the run once it has finished. An id
// that is still tracked is refused so Cancel keeps reaching the first run.
func (m *Manager) begin(ctx context.Context, id, datasetID, algorithm string) (context.Context, *runState, func(), error) {
	m.mu.Lock()
	if _, busy := m.runs[id]; busy {
		m.mu.Unlock()
		return nil, nil, nil, fmt.Errorf("%w: %s", ErrRunExists, id)
	}
	ctx, cancel := context.WithCancel(ctx)
	state := newRunState(id, datasetID, algorithm, m.now())
	state.cancel = cancel
	m.runs[id] = state
	m.mu.Unlock()

	return ctx, state, func() {
		cancel()
		m.mu.Lock()
		delete(m.runs, id)
		m.mu.Unlock()
	}, nil
}

// Cancel stops a tracked run. The run observes the cancellation at its next
// checkpoint.
func (m *Manager) Cancel(id string) error {
	m.mu.RLock()
	state, ok := m.runs[id]
	m.mu.RUnlock()
	if !ok {
		return ErrRunNotFound
	}

	m.logger.Info("run_cancel_requested", slog.String("run_id", id))
	state.cancel()
	return nil
}

// Get returns the status of a tracked run.
func (m *Manager) Get(id string) (RunStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.runs[id]
	if !ok {
		return RunStatus{}, false
	}
	return state.Snapshot(), true
}

// List returns the active runs, oldest first.
func (m *Manager) List() []RunStatus {
	m.mu.RLock()
	out := make([]RunStatus, 0, len(m.runs))
	for _, state := range m.runs {
		out = append(out, state.Snapshot())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

// Active returns the number of tracked runs.
func (m *Manager) Active() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.runs)
}
