package trip

import (
	"strings"

	"github.com/samber/lo"
)

// ProfileUpdate is a validated partial profile extracted from one Oracle reply.
// Values holds scalar slots only; absent or null keys never appear in it.
type ProfileUpdate struct {
	Values         map[Slot]string
	Interests      []string
	ClearInterests bool
}

// IsEmpty reports whether applying the update would change nothing.
func (u ProfileUpdate) IsEmpty() bool {
	return len(u.Values) == 0 && len(u.Interests) == 0 && !u.ClearInterests
}

// Slots lists the slots the update touches, in schema order.
func (u ProfileUpdate) Slots() []Slot {
	return lo.Filter(slotOrder, func(s Slot, _ int) bool {
		if s == SlotInterests {
			return len(u.Interests) > 0 || u.ClearInterests
		}
		return strings.TrimSpace(u.Values[s]) != ""
	})
}

// Merge folds an update into a profile and returns the new profile. Scalar
// slots are last-write-wins for non-empty values; interests are unioned unless
// the update clears them. The input profile is not modified.
func Merge(profile Profile, update ProfileUpdate) Profile {
	out := profile.Clone()
	for _, slot := range slotOrder {
		if slot == SlotInterests {
			continue
		}
		value := strings.TrimSpace(update.Values[slot])
		if value == "" {
			continue
		}
		out.set(slot, value)
	}
	incoming := lo.Filter(lo.Map(update.Interests, func(s string, _ int) string {
		return canonicalInterest(s)
	}), func(s string, _ int) bool { return s != "" })
	if update.ClearInterests {
		out.Interests = nil
	}
	for _, interest := range incoming {
		if !lo.Contains(out.Interests, interest) {
			out.Interests = append(out.Interests, interest)
		}
	}
	return out
}

// State is the authoritative per-conversation state folded by Reduce.
type State struct {
	Profile Profile
	Phase   Phase
}

// Event is an input to Reduce.
type Event interface {
	event()
}

// Extracted carries a validated extraction for the current turn.
type Extracted struct {
	Update   ProfileUpdate
	Category Category
	Ready    bool
}

// Restart discards the profile and returns to gathering.
type Restart struct{}

func (Extracted) event() {}
func (Restart) event()   {}

// Reduce applies one event. For an extraction the update is merged first and
// the finalization decision is taken afterwards on the same turn.
func Reduce(state State, ev Event) State {
	switch e := ev.(type) {
	case Extracted:
		next := State{Profile: Merge(state.Profile, e.Update), Phase: state.Phase}
		next.Phase, _ = Advance(state.Phase, e.Category, e.Ready)
		return next
	case Restart:
		return State{Phase: PhaseGathering}
	}
	return state
}
