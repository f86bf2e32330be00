package client

import (
	"encoding/json"
	"testing"

	"superfilm-backend/internal/model"
)

func voteEvent(t *testing.T, pollID string, tally model.Tally) model.WSEvent {
	t.Helper()
	data, err := json.Marshal(model.VoteCastData{PollID: pollID, Tally: tally})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return model.WSEvent{Type: model.EventVoteCast, Data: data}
}

func TestTallyViewOptimisticDeltaThenAuthoritative(t *testing.T) {
	view := NewTallyView("p1", model.Tally{"a": 2, "b": 1})

	// Single-choice re-vote from b to a shows immediately.
	view.ApplyLocal("a", "b")
	counts := view.Counts()
	if counts["a"] != 3 || counts["b"] != 0 {
		t.Fatalf("optimistic delta wrong: %v", counts)
	}

	// The authoritative tally replaces the local guess wholesale.
	if !view.ObserveEvent(voteEvent(t, "p1", model.Tally{"a": 3, "b": 1})) {
		t.Fatalf("event for this poll must apply")
	}
	counts = view.Counts()
	if counts["a"] != 3 || counts["b"] != 1 {
		t.Fatalf("authoritative tally not applied: %v", counts)
	}
}

func TestTallyViewRevertRestoresConfirmedSnapshot(t *testing.T) {
	view := NewTallyView("p1", model.Tally{"a": 5})

	view.ApplyLocal("a", "")
	if view.Counts()["a"] != 6 {
		t.Fatalf("expected optimistic 6, got %d", view.Counts()["a"])
	}

	// The cast failed: shown counts fall back to the last confirmed state.
	view.Revert()
	if view.Counts()["a"] != 5 {
		t.Fatalf("expected revert to 5, got %d", view.Counts()["a"])
	}
}

func TestTallyViewIgnoresOtherPolls(t *testing.T) {
	view := NewTallyView("p1", model.Tally{"a": 1})

	if view.ObserveEvent(voteEvent(t, "p2", model.Tally{"x": 9})) {
		t.Fatalf("event for another poll must be ignored")
	}
	if view.Counts()["a"] != 1 {
		t.Fatalf("state changed by foreign event: %v", view.Counts())
	}
}
