// Package units provides shared constants and validation for angle units
package units

import (
	"fmt"
	"math"
	"strings"
)

// Unit constants
const (
	Degrees = "degrees"
	Radians = "radians"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{Degrees, Radians}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return strings.Join(ValidUnits, ", ")
}

// ToRadians converts an angle expressed in unit to radians.
func ToRadians(angle float64, unit string) (float64, error) {
	switch unit {
	case Degrees:
		return angle * math.Pi / 180, nil
	case Radians:
		return angle, nil
	default:
		return 0, fmt.Errorf("unknown angle unit %q (valid: %s)", unit, GetValidUnitsString())
	}
}

// ConvertAngle converts an angle between units.
func ConvertAngle(angle float64, from, to string) (float64, error) {
	rad, err := ToRadians(angle, from)
	if err != nil {
		return 0, err
	}
	switch to {
	case Degrees:
		return rad * 180 / math.Pi, nil
	case Radians:
		return rad, nil
	default:
		return 0, fmt.Errorf("unknown angle unit %q (valid: %s)", to, GetValidUnitsString())
	}
}
