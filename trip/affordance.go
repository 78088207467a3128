package trip

import "strings"

// Category is the UI hint the Oracle attaches to a reply.
type Category int

const (
	CategoryNone Category = iota
	CategoryBudget
	CategoryInterests
	CategoryGroupType
	CategoryTransport
	CategoryFinalize
)

// Categories lists the declared (non-empty) categories.
func Categories() []Category {
	return []Category{CategoryBudget, CategoryInterests, CategoryGroupType, CategoryTransport, CategoryFinalize}
}

func (c Category) String() string {
	switch c {
	case CategoryBudget:
		return "budget"
	case CategoryInterests:
		return "interests"
	case CategoryGroupType:
		return "groupType"
	case CategoryTransport:
		return "transport"
	case CategoryFinalize:
		return "finalize"
	default:
		return ""
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Unknown names decode to
// CategoryNone.
func (c *Category) UnmarshalText(text []byte) error {
	*c, _ = ParseCategory(string(text))
	return nil
}

// ParseCategory maps an Oracle ui value onto the closed category set. The
// comparison ignores case and surrounding space.
func ParseCategory(name string) (Category, bool) {
	name = strings.TrimSpace(name)
	for _, c := range Categories() {
		if strings.EqualFold(c.String(), name) {
			return c, true
		}
	}
	return CategoryNone, false
}

// Affordances returns the quick-reply options for a category. Choosing one is
// the same as typing it as the next message.
func Affordances(c Category) []string {
	switch c {
	case CategoryBudget:
		return []string{"Economy", "Standard", "Luxury"}
	case CategoryGroupType:
		return []string{"Solo", "Couple", "Family", "Group"}
	case CategoryTransport:
		return []string{"Private Car", "Rentals", "Public Trains"}
	case CategoryInterests:
		return []string{"Wildlife", "Culture", "Hiking", "Beaches"}
	case CategoryFinalize:
		return []string{"Yes Generate", "Change Info"}
	case CategoryNone:
		return nil
	}
	return nil
}

// Offered returns the quick replies to show for a reply in the given phase.
// Once the itinerary exists the finalize choices are withdrawn, since a
// finalized trip never plans again.
func Offered(c Category, p Phase) []string {
	if c == CategoryFinalize && p == PhaseFinalized {
		return nil
	}
	return Affordances(c)
}
