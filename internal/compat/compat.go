// Package compat holds the ABO/Rh transfusion compatibility table and the
// ranking of substitute blood types.
package compat

import (
	"encoding/json"
	"sort"

	"github.com/bloodbank/bloodbank-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

// compatibleDonors maps a recipient to the donor types it may receive, exact
// type first.
var compatibleDonors = map[enums.BloodType][]enums.BloodType{
	enums.BloodTypeONeg:  {enums.BloodTypeONeg},
	enums.BloodTypeOPos:  {enums.BloodTypeOPos, enums.BloodTypeONeg},
	enums.BloodTypeANeg:  {enums.BloodTypeANeg, enums.BloodTypeONeg},
	enums.BloodTypeAPos:  {enums.BloodTypeAPos, enums.BloodTypeANeg, enums.BloodTypeOPos, enums.BloodTypeONeg},
	enums.BloodTypeBNeg:  {enums.BloodTypeBNeg, enums.BloodTypeONeg},
	enums.BloodTypeBPos:  {enums.BloodTypeBPos, enums.BloodTypeBNeg, enums.BloodTypeOPos, enums.BloodTypeONeg},
	enums.BloodTypeABNeg: {enums.BloodTypeABNeg, enums.BloodTypeANeg, enums.BloodTypeBNeg, enums.BloodTypeONeg},
	enums.BloodTypeABPos: {
		enums.BloodTypeABPos, enums.BloodTypeABNeg,
		enums.BloodTypeAPos, enums.BloodTypeANeg,
		enums.BloodTypeBPos, enums.BloodTypeBNeg,
		enums.BloodTypeOPos, enums.BloodTypeONeg,
	},
}

// popularity is the population share of each type, in percent.
var popularity = map[enums.BloodType]decimal.Decimal{
	enums.BloodTypeOPos:  decimal.NewFromInt(32),
	enums.BloodTypeAPos:  decimal.NewFromInt(34),
	enums.BloodTypeBPos:  decimal.NewFromInt(17),
	enums.BloodTypeABPos: decimal.NewFromInt(7),
	enums.BloodTypeONeg:  decimal.NewFromInt(3),
	enums.BloodTypeANeg:  decimal.NewFromInt(4),
	enums.BloodTypeBNeg:  decimal.NewFromInt(2),
	enums.BloodTypeABNeg: decimal.NewFromInt(1),
}

// CompatibleDonorsFor returns the donor types a recipient may receive, exact
// type first. Unknown types yield an empty slice. The result is a copy.
func CompatibleDonorsFor(recipient enums.BloodType) []enums.BloodType {
	return append([]enums.BloodType{}, compatibleDonors[recipient]...)
}

// IsCompatible reports whether donor blood may be given to recipient.
func IsCompatible(recipient, donor enums.BloodType) bool {
	for _, candidate := range compatibleDonors[recipient] {
		if candidate == donor {
			return true
		}
	}
	return false
}

// Popularity returns the population weight for t, zero when unknown.
func Popularity(t enums.BloodType) decimal.Decimal {
	return popularity[t]
}

// Alternative is a ranked substitute for a short blood type.
type Alternative struct {
	Type       enums.BloodType `json:"type"`
	Available  int             `json:"available"`
	Popularity decimal.Decimal `json:"popularity"`
}

// MarshalJSON writes popularity as a JSON number rather than decimal's quoted string.
func (a Alternative) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type       enums.BloodType `json:"type"`
		Available  int             `json:"available"`
		Popularity json.Number     `json:"popularity"`
	}{
		Type:       a.Type,
		Available:  a.Available,
		Popularity: json.Number(a.Popularity.String()),
	})
}

// RankAlternatives lists the compatible donors of recipient other than
// requested, ordered by popularity then available units, both descending.
// Full ties keep table order. Types missing from inventory count as 0 units.
func RankAlternatives(recipient, requested enums.BloodType, inventory map[enums.BloodType]int) []Alternative {
	donors := compatibleDonors[recipient]
	out := make([]Alternative, 0, len(donors))
	for _, donor := range donors {
		if donor == requested {
			continue
		}
		out = append(out, Alternative{
			Type:       donor,
			Available:  inventory[donor],
			Popularity: popularity[donor],
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].Popularity.Cmp(out[j].Popularity); c != 0 {
			return c > 0
		}
		return out[i].Available > out[j].Available
	})
	return out
}

// FirstCovering returns the first alternative with at least units available.
func FirstCovering(ranked []Alternative, units int) (Alternative, bool) {
	for _, alt := range ranked {
		if alt.Available >= units {
			return alt, true
		}
	}
	return Alternative{}, false
}
