package enums

import (
	"fmt"
	"strings"
)

// BloodType is one of the eight ABO/Rh combinations tracked by the ledger.
type BloodType string

const (
	BloodTypeONeg  BloodType = "O-"
	BloodTypeOPos  BloodType = "O+"
	BloodTypeANeg  BloodType = "A-"
	BloodTypeAPos  BloodType = "A+"
	BloodTypeBNeg  BloodType = "B-"
	BloodTypeBPos  BloodType = "B+"
	BloodTypeABNeg BloodType = "AB-"
	BloodTypeABPos BloodType = "AB+"
)

var validBloodTypes = []BloodType{
	BloodTypeONeg,
	BloodTypeOPos,
	BloodTypeANeg,
	BloodTypeAPos,
	BloodTypeBNeg,
	BloodTypeBPos,
	BloodTypeABNeg,
	BloodTypeABPos,
}

// AllBloodTypes returns every blood type in declaration order.
func AllBloodTypes() []BloodType {
	return append([]BloodType(nil), validBloodTypes...)
}

// String implements fmt.Stringer.
func (b BloodType) String() string {
	return string(b)
}

// IsValid reports whether the value is a known BloodType.
func (b BloodType) IsValid() bool {
	for _, candidate := range validBloodTypes {
		if candidate == b {
			return true
		}
	}
	return false
}

// IsRhNegative reports whether the type carries the Rh- factor.
func (b BloodType) IsRhNegative() bool {
	return strings.HasSuffix(string(b), "-")
}

// ParseBloodType converts raw input into a BloodType. Surrounding whitespace and
// letter case are ignored.
func ParseBloodType(value string) (BloodType, error) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	for _, candidate := range validBloodTypes {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid blood type %q", value)
}
