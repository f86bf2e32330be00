package client

import (
	"encoding/json"
	"sync"

	"superfilm-backend/internal/model"
)

// TallyView is the voter-side counter state for one poll. A cast vote bumps
// the local count immediately; the authoritative tally from the vote_cast
// event replaces it wholesale, and a failed cast reverts to the last
// authoritative snapshot.
type TallyView struct {
	mu        sync.Mutex
	pollID    string
	confirmed model.Tally
	shown     model.Tally
}

func NewTallyView(pollID string, initial model.Tally) *TallyView {
	return &TallyView{
		pollID:    pollID,
		confirmed: cloneTally(initial),
		shown:     cloneTally(initial),
	}
}

// ApplyLocal bumps the shown count for a just-cast vote; clearOption names
// the previously selected option in single-choice polls, empty otherwise.
func (v *TallyView) ApplyLocal(optionID, clearOption string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.shown[optionID]++
	if clearOption != "" && v.shown[clearOption] > 0 {
		v.shown[clearOption]--
	}
}

// Revert drops local deltas and restores the last authoritative snapshot.
func (v *TallyView) Revert() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.shown = cloneTally(v.confirmed)
}

// ObserveEvent applies an authoritative tally from a vote_cast or closed
// event for this poll. Other events are ignored.
func (v *TallyView) ObserveEvent(event model.WSEvent) bool {
	if event.Type != model.EventVoteCast && event.Type != model.EventPollClosed {
		return false
	}
	var data model.VoteCastData
	if err := json.Unmarshal(event.Data, &data); err != nil || data.PollID != v.pollID {
		return false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.confirmed = cloneTally(data.Tally)
	v.shown = cloneTally(data.Tally)
	return true
}

// Counts returns the currently shown tally.
func (v *TallyView) Counts() model.Tally {
	v.mu.Lock()
	defer v.mu.Unlock()
	return cloneTally(v.shown)
}

func cloneTally(t model.Tally) model.Tally {
	out := make(model.Tally, len(t))
	for k, n := range t {
		out[k] = n
	}
	return out
}
