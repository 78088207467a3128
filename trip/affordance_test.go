package trip

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAffordancesDeclaredCategoriesAreNonEmpty(t *testing.T) {
	want := map[Category][]string{
		CategoryBudget:    {"Economy", "Standard", "Luxury"},
		CategoryGroupType: {"Solo", "Couple", "Family", "Group"},
		CategoryTransport: {"Private Car", "Rentals", "Public Trains"},
		CategoryInterests: {"Wildlife", "Culture", "Hiking", "Beaches"},
		CategoryFinalize:  {"Yes Generate", "Change Info"},
	}
	for _, c := range Categories() {
		assert.Equal(t, want[c], Affordances(c), c.String())
	}
	assert.Empty(t, Affordances(CategoryNone))
	assert.Empty(t, Affordances(Category(99)))
}

func TestAffordancesReturnsFreshSlices(t *testing.T) {
	first := Affordances(CategoryBudget)
	first[0] = "Backpacker"
	assert.Equal(t, "Economy", Affordances(CategoryBudget)[0])
}

func TestOfferedWithdrawsFinalizeAfterPlan(t *testing.T) {
	assert.Equal(t, []string{"Yes Generate", "Change Info"}, Offered(CategoryFinalize, PhaseGathering))
	assert.Empty(t, Offered(CategoryFinalize, PhaseFinalized))
	assert.Equal(t, []string{"Economy", "Standard", "Luxury"}, Offered(CategoryBudget, PhaseFinalized))
}

func TestParseCategory(t *testing.T) {
	for _, c := range Categories() {
		got, ok := ParseCategory(c.String())
		assert.True(t, ok)
		assert.Equal(t, c, got)
	}
	_, ok := ParseCategory("weather")
	assert.False(t, ok)
	_, ok = ParseCategory("")
	assert.False(t, ok)
}

func TestFinalizerFiresExactlyOnce(t *testing.T) {
	var f Finalizer
	assert.False(t, f.Observe(CategoryBudget, false))
	assert.Equal(t, PhaseGathering, f.Phase())

	fired := 0
	for i := 0; i < 4; i++ {
		if f.Observe(CategoryFinalize, false) {
			fired++
		}
	}
	assert.Equal(t, 1, fired)
	assert.Equal(t, PhaseFinalized, f.Phase())

	assert.False(t, f.Observe(CategoryNone, true))
	assert.Equal(t, PhaseFinalized, f.Phase())
}

func TestAdvanceReadyFlag(t *testing.T) {
	phase, fired := Advance(PhaseGathering, CategoryNone, true)
	assert.True(t, fired)
	assert.Equal(t, PhaseFinalized, phase)
}
