package orchestrator

import (
	"testing"

	"mediascribe/internal/domain"
)

// TestTrackerLifecycle verifies the caption-miss path through to done.
func TestTrackerLifecycle(t *testing.T) {
	tr := NewTracker()
	if got := tr.Current().State; got != domain.RunStateIdle {
		t.Fatalf("new tracker state = %s, want idle", got)
	}

	if err := tr.Start("run-1", domain.RunStateCheckExisting); err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := tr.Current().State; got != domain.RunStateCheckExisting {
		t.Fatalf("state after start = %s", got)
	}

	for _, state := range []domain.RunState{
		domain.RunStateFetchAudio,
		domain.RunStateTranscribe,
		domain.RunStateDone,
	} {
		if err := tr.Transition(state); err != nil {
			t.Fatalf("transition to %s: %v", state, err)
		}
	}

	current := tr.Current()
	if current.State != domain.RunStateDone {
		t.Fatalf("state = %s, want done", current.State)
	}
	if len(current.History) != 4 {
		t.Fatalf("history = %v", current.History)
	}
	if err := tr.Start("run-2", domain.RunStateFetchAudio); err != nil {
		t.Fatalf("start after done: %v", err)
	}
}

// TestTrackerRejectsInvalidTransition checks state machine constraints.
func TestTrackerRejectsInvalidTransition(t *testing.T) {
	tr := NewTracker()
	if err := tr.Start("run-1", domain.RunStateFetchAudio); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := tr.Transition(domain.RunStateDone); err == nil {
		t.Fatal("expected invalid transition error for fetch_audio -> done")
	}
	if err := tr.Transition(domain.RunStateCheckExisting); err == nil {
		t.Fatal("expected invalid transition error for fetch_audio -> check_existing")
	}
}

// TestTrackerRejectsBadStart verifies runs only start at the two entry states.
func TestTrackerRejectsBadStart(t *testing.T) {
	tr := NewTracker()
	if err := tr.Start("run-1", domain.RunStateTranscribe); err == nil {
		t.Fatal("expected error starting at transcribe")
	}
	if err := tr.Transition(domain.RunStateDone); err == nil {
		t.Fatal("expected error transitioning without a run")
	}
}

// TestTrackerSingleActiveRun verifies a second start is refused until the first ends.
func TestTrackerSingleActiveRun(t *testing.T) {
	tr := NewTracker()
	if err := tr.Start("run-1", domain.RunStateCheckExisting); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := tr.Start("run-2", domain.RunStateCheckExisting); err != ErrRunInProgress {
		t.Fatalf("second start error = %v, want %v", err, ErrRunInProgress)
	}

	if err := tr.Transition(domain.RunStateFailed); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if err := tr.Start("run-2", domain.RunStateFetchAudio); err != nil {
		t.Fatalf("restart after failure: %v", err)
	}
	if got := tr.Current().ID; got != "run-2" {
		t.Fatalf("current id = %q, want run-2", got)
	}
	if got := tr.Current().History; len(got) != 1 || got[0] != domain.RunStateFetchAudio {
		t.Fatalf("history after restart = %v", got)
	}
}
