package orchestrator

import (
	"errors"
	"fmt"
	"sync"

	"mediascribe/internal/domain"
)

// ErrRunInProgress is returned by Run while another run on the same
// orchestrator has not reached DONE or FAILED.
var ErrRunInProgress = errors.New("run already in progress")

// Run is a snapshot of the tracked run.
type Run struct {
	ID      string
	State   domain.RunState
	History []domain.RunState
}

// Tracker holds the single active run and validates its state transitions.
type Tracker struct {
	mu      sync.RWMutex
	current Run
}

// NewTracker creates a tracker in idle state.
func NewTracker() *Tracker {
	return &Tracker{current: Run{State: domain.RunStateIdle}}
}

// Start begins a run at CHECK_EXISTING or FETCH_AUDIO.
func (t *Tracker) Start(runID string, first domain.RunState) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if isActive(t.current.State) {
		return ErrRunInProgress
	}
	if !isValidTransition(domain.RunStateIdle, first) {
		return fmt.Errorf("invalid start state: %s", first)
	}

	t.current = Run{
		ID:      runID,
		State:   first,
		History: []domain.RunState{first},
	}
	return nil
}

// Transition validates and applies a state change for the current run.
func (t *Tracker) Transition(state domain.RunState) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current.ID == "" {
		return fmt.Errorf("cannot transition without an active run")
	}
	if state == t.current.State {
		return nil
	}
	if !isValidTransition(t.current.State, state) {
		return fmt.Errorf("invalid transition: %s -> %s", t.current.State, state)
	}

	t.current.State = state
	t.current.History = append(t.current.History, state)
	return nil
}

// Current returns a snapshot of the current run.
func (t *Tracker) Current() Run {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snapshot := t.current
	snapshot.History = append([]domain.RunState(nil), t.current.History...)
	return snapshot
}

func isActive(state domain.RunState) bool {
	switch state {
	case domain.RunStateCheckExisting, domain.RunStateFetchAudio, domain.RunStateTranscribe:
		return true
	default:
		return false
	}
}

// isValidTransition enforces the fallback state machine edges.
func isValidTransition(from, to domain.RunState) bool {
	switch from {
	case domain.RunStateIdle:
		return to == domain.RunStateCheckExisting || to == domain.RunStateFetchAudio
	case domain.RunStateCheckExisting:
		return to == domain.RunStateDone || to == domain.RunStateFetchAudio || to == domain.RunStateFailed
	case domain.RunStateFetchAudio:
		return to == domain.RunStateTranscribe || to == domain.RunStateFailed
	case domain.RunStateTranscribe:
		return to == domain.RunStateDone || to == domain.RunStateFailed
	case domain.RunStateDone, domain.RunStateFailed:
		return to == domain.RunStateIdle
	default:
		return false
	}
}
