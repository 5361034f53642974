package operations

import (
	"sync"
	"time"
)

// RunState is the controller state of a run.
type RunState string

const (
	StateInit        RunState = "INIT"
	StateRunning     RunState = "RUNNING"
	StateStructuring RunState = "STRUCTURING"
	StatePersisting  RunState = "PERSISTING"
	StateComplete    RunState = "COMPLETE"
	StateError       RunState = "ERROR"
	StateCancelled   RunState = "CANCELLED"
)

// Terminal reports whether no further transition can happen.
func (s RunState) Terminal() bool {
	return s == StateComplete || s == StateError || s == StateCancelled
}

// RunStatus is a snapshot of a tracked run.
type RunStatus struct {
	ID          string     `json:"id"`
	DatasetID   string     `json:"dataset_id"`
	Algorithm   string     `json:"algorithm"`
	State       RunState   `json:"state"`
	CurrentStep string     `json:"current_step,omitempty"`
	StepNumber  int        `json:"step_number,omitempty"`
	TotalSteps  int        `json:"total_steps,omitempty"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// runState is the mutable state behind a RunStatus.
type runState struct {
	mu     sync.RWMutex
	status RunStatus
	cancel func()
}

func newRunState(id, datasetID, algorithm string, now time.Time) *runState {
	return &runState{status: RunStatus{
		ID:        id,
		DatasetID: datasetID,
		Algorithm: algorithm,
		State:     StateInit,
		StartTime: now,
	}}
}

// Transition moves the run to state. Terminal states record the end time.
func (r *runState) Transition(state RunState, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.State = state
	if state.Terminal() {
		r.status.EndTime = &now
	}
}

// StepStarted records the step in progress.
func (r *runState) StepStarted(step string, number, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.State = StateRunning
	r.status.CurrentStep = step
	r.status.StepNumber = number
	r.status.TotalSteps = total
}

// Fail records err and moves the run to state.
func (r *runState) Fail(state RunState, err error, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.State = state
	r.status.EndTime = &now
	if err != nil {
		r.status.Error = err.Error()
	}
}

// Snapshot returns a copy of the status.
func (r *runState) Snapshot() RunStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.status
	if s.EndTime != nil {
		t := *s.EndTime
		s.EndTime = &t
	}
	return s
}

// Duration returns the run time so far, or the total once terminal.
func (r *runState) Duration(now time.Time) time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.status.EndTime != nil {
		return r.status.EndTime.Sub(r.status.StartTime)
	}
	return now.Sub(r.status.StartTime)
}
