package compat

import (
	"encoding/json"
	"testing"

	"github.com/bloodbank/bloodbank-backend/pkg/enums"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableCoversEveryBloodType(t *testing.T) {
	for _, bt := range enums.AllBloodTypes() {
		donors := CompatibleDonorsFor(bt)
		require.NotEmpty(t, donors, "missing compatibility entry for %s", bt)
		assert.Equal(t, bt, donors[0], "exact type must come first for %s", bt)
		assert.True(t, Popularity(bt).IsPositive(), "missing popularity for %s", bt)
	}
	assert.Len(t, compatibleDonors, len(enums.AllBloodTypes()))
}

func TestCompatibleDonorsFor(t *testing.T) {
	cases := map[enums.BloodType][]enums.BloodType{
		enums.BloodTypeONeg:  {"O-"},
		enums.BloodTypeOPos:  {"O+", "O-"},
		enums.BloodTypeANeg:  {"A-", "O-"},
		enums.BloodTypeAPos:  {"A+", "A-", "O+", "O-"},
		enums.BloodTypeBNeg:  {"B-", "O-"},
		enums.BloodTypeBPos:  {"B+", "B-", "O+", "O-"},
		enums.BloodTypeABNeg: {"AB-", "A-", "B-", "O-"},
		enums.BloodTypeABPos: {"AB+", "AB-", "A+", "A-", "B+", "B-", "O+", "O-"},
	}
	for recipient, want := range cases {
		assert.Equal(t, want, CompatibleDonorsFor(recipient), recipient.String())
	}
	assert.Empty(t, CompatibleDonorsFor("C+"))
}

func TestCompatibleDonorsForReturnsCopy(t *testing.T) {
	donors := CompatibleDonorsFor(enums.BloodTypeAPos)
	donors[0] = enums.BloodTypeABNeg
	assert.Equal(t, enums.BloodTypeAPos, CompatibleDonorsFor(enums.BloodTypeAPos)[0])
}

func TestRhNegativeRecipientsOnlyReceiveRhNegative(t *testing.T) {
	for _, recipient := range enums.AllBloodTypes() {
		if !recipient.IsRhNegative() {
			continue
		}
		for _, donor := range CompatibleDonorsFor(recipient) {
			assert.True(t, donor.IsRhNegative(), "%s must not receive %s", recipient, donor)
		}
	}
	for _, recipient := range enums.AllBloodTypes() {
		assert.True(t, IsCompatible(recipient, enums.BloodTypeONeg), "O- is universal, failed for %s", recipient)
	}
}

func TestRankAlternativesExcludesRequestedAndIncompatible(t *testing.T) {
	inventory := map[enums.BloodType]int{}
	for _, bt := range enums.AllBloodTypes() {
		inventory[bt] = 10
	}
	for _, bt := range enums.AllBloodTypes() {
		for _, alt := range RankAlternatives(bt, bt, inventory) {
			assert.NotEqual(t, bt, alt.Type)
			assert.True(t, IsCompatible(bt, alt.Type), "%s is not a donor for %s", alt.Type, bt)
		}
	}
}

func TestRankAlternativesOrdering(t *testing.T) {
	inventory := map[enums.BloodType]int{
		enums.BloodTypeONeg: 2,
	}
	ranked := RankAlternatives(enums.BloodTypeAPos, enums.BloodTypeAPos, inventory)
	require.Len(t, ranked, 3)

	got := []enums.BloodType{ranked[0].Type, ranked[1].Type, ranked[2].Type}
	assert.Equal(t, []enums.BloodType{enums.BloodTypeOPos, enums.BloodTypeANeg, enums.BloodTypeONeg}, got)
	assert.Equal(t, 0, ranked[0].Available)
	assert.Equal(t, 2, ranked[2].Available)

	for i := 1; i < len(ranked); i++ {
		prev, cur := ranked[i-1], ranked[i]
		c := prev.Popularity.Cmp(cur.Popularity)
		assert.True(t, c > 0 || (c == 0 && prev.Available >= cur.Available), "ranking out of order at %d", i)
	}
}

func TestRankAlternativesWeightBeatsStock(t *testing.T) {
	// A- carries a higher popularity weight than O-, so stock never reorders them.
	inventory := map[enums.BloodType]int{
		enums.BloodTypeOPos: 1,
		enums.BloodTypeANeg: 1,
		enums.BloodTypeONeg: 50,
	}
	ranked := RankAlternatives(enums.BloodTypeAPos, enums.BloodTypeAPos, inventory)
	require.Len(t, ranked, 3)

	got := []enums.BloodType{ranked[0].Type, ranked[1].Type, ranked[2].Type}
	assert.Equal(t, []enums.BloodType{enums.BloodTypeOPos, enums.BloodTypeANeg, enums.BloodTypeONeg}, got)
	assert.Equal(t, 50, ranked[2].Available)
}

func TestRankAlternativesDeterministic(t *testing.T) {
	inventory := map[enums.BloodType]int{"O-": 4, "A-": 4, "B-": 1, "AB-": 9}
	first := RankAlternatives(enums.BloodTypeABPos, enums.BloodTypeABPos, inventory)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, RankAlternatives(enums.BloodTypeABPos, enums.BloodTypeABPos, inventory))
	}
}

func TestRankAlternativesEmptyForONeg(t *testing.T) {
	ranked := RankAlternatives(enums.BloodTypeONeg, enums.BloodTypeONeg, map[enums.BloodType]int{"O-": 0})
	assert.NotNil(t, ranked)
	assert.Empty(t, ranked)
}

func TestFirstCovering(t *testing.T) {
	ranked := RankAlternatives(enums.BloodTypeAPos, enums.BloodTypeAPos, map[enums.BloodType]int{"A-": 1, "O-": 5})
	alt, ok := FirstCovering(ranked, 3)
	require.True(t, ok)
	assert.Equal(t, enums.BloodTypeONeg, alt.Type)

	_, ok = FirstCovering(ranked, 6)
	assert.False(t, ok)
}

func TestAlternativeJSONUsesNumericPopularity(t *testing.T) {
	b, err := json.Marshal(Alternative{Type: enums.BloodTypeONeg, Available: 2, Popularity: Popularity(enums.BloodTypeONeg)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"O-","available":2,"popularity":3}`, string(b))
}
