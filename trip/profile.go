package trip

import (
	"encoding/json"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Slot names one independently mergeable field of the trip profile. The
// string value is the JSON key used in prompts and Oracle replies.
type Slot string

const (
	SlotSource      Slot = "source"
	SlotDestination Slot = "destination"
	SlotGroupType   Slot = "groupType"
	SlotGroupCount  Slot = "groupCount"
	SlotBudget      Slot = "budget"
	SlotDuration    Slot = "duration"
	SlotInterests   Slot = "interests"
	SlotTransport   Slot = "transport"
)

var slotOrder = []Slot{
	SlotSource,
	SlotDestination,
	SlotGroupType,
	SlotGroupCount,
	SlotBudget,
	SlotDuration,
	SlotInterests,
	SlotTransport,
}

// Slots returns every slot in schema order.
func Slots() []Slot {
	out := make([]Slot, len(slotOrder))
	copy(out, slotOrder)
	return out
}

// ParseSlot resolves a JSON key to a slot.
func ParseSlot(name string) (Slot, bool) {
	for _, s := range slotOrder {
		if string(s) == name {
			return s, true
		}
	}
	return "", false
}

// Profile is the progressively filled trip profile. Empty strings mean the
// scalar slot is unset; Interests is an ordered set.
type Profile struct {
	Source      string
	Destination string
	GroupType   string
	GroupCount  string
	Budget      string
	Duration    string
	Interests   []string
	Transport   string
}

// Get returns the scalar value of a slot. Interests are joined with ", ".
func (p Profile) Get(slot Slot) string {
	switch slot {
	case SlotSource:
		return p.Source
	case SlotDestination:
		return p.Destination
	case SlotGroupType:
		return p.GroupType
	case SlotGroupCount:
		return p.GroupCount
	case SlotBudget:
		return p.Budget
	case SlotDuration:
		return p.Duration
	case SlotInterests:
		return strings.Join(p.Interests, ", ")
	case SlotTransport:
		return p.Transport
	}
	return ""
}

func (p *Profile) set(slot Slot, value string) {
	switch slot {
	case SlotSource:
		p.Source = value
	case SlotDestination:
		p.Destination = value
	case SlotGroupType:
		p.GroupType = value
	case SlotGroupCount:
		p.GroupCount = value
	case SlotBudget:
		p.Budget = value
	case SlotDuration:
		p.Duration = value
	case SlotTransport:
		p.Transport = value
	}
}

// IsSet reports whether the slot holds a value.
func (p Profile) IsSet(slot Slot) bool {
	if slot == SlotInterests {
		return len(p.Interests) > 0
	}
	return p.Get(slot) != ""
}

// SetSlots lists the filled slots in schema order.
func (p Profile) SetSlots() []Slot {
	return lo.Filter(slotOrder, func(s Slot, _ int) bool { return p.IsSet(s) })
}

// MissingSlots lists the unfilled slots in schema order.
func (p Profile) MissingSlots() []Slot {
	return lo.Filter(slotOrder, func(s Slot, _ int) bool { return !p.IsSet(s) })
}

// IsEmpty reports whether no slot has been filled yet.
func (p Profile) IsEmpty() bool {
	return len(p.SetSlots()) == 0
}

// Clone returns a deep copy.
func (p Profile) Clone() Profile {
	out := p
	if p.Interests != nil {
		out.Interests = append([]string(nil), p.Interests...)
	}
	return out
}

// MarshalJSON emits every slot, unset ones as null, so a serialized profile
// always carries the full schema.
func (p Profile) MarshalJSON() ([]byte, error) {
	fields := make([]string, 0, len(slotOrder))
	for _, slot := range slotOrder {
		var value []byte
		var err error
		switch {
		case slot == SlotInterests && len(p.Interests) > 0:
			value, err = json.Marshal(p.Interests)
		case slot != SlotInterests && p.Get(slot) != "":
			value, err = json.Marshal(p.Get(slot))
		default:
			value = []byte("null")
		}
		if err != nil {
			return nil, err
		}
		key, _ := json.Marshal(string(slot))
		fields = append(fields, string(key)+":"+string(value))
	}
	return []byte("{" + strings.Join(fields, ",") + "}"), nil
}

// UnmarshalJSON accepts the shape produced by MarshalJSON. It is used when
// restoring persisted conversations, not for Oracle output.
func (p *Profile) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	update, _ := decodeState(raw)
	*p = Merge(Profile{}, update)
	return nil
}

// canonicalInterest trims and title-cases an interest so "wildlife" and
// "Wildlife" collapse to one set member.
func canonicalInterest(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return ""
	}
	// Casers carry state and must not be shared across goroutines.
	return cases.Title(language.English).String(strings.ToLower(s))
}
