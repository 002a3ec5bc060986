package enums

import "fmt"

// IntervalUnit is the billing period unit of an offer.
type IntervalUnit string

const (
	IntervalUnitDay   IntervalUnit = "day"
	IntervalUnitWeek  IntervalUnit = "week"
	IntervalUnitMonth IntervalUnit = "month"
	IntervalUnitYear  IntervalUnit = "year"
)

var validIntervalUnits = []IntervalUnit{
	IntervalUnitDay,
	IntervalUnitWeek,
	IntervalUnitMonth,
	IntervalUnitYear,
}

// String implements fmt.Stringer.
func (u IntervalUnit) String() string {
	return string(u)
}

// IsValid reports whether the value is known.
func (u IntervalUnit) IsValid() bool {
	for _, candidate := range validIntervalUnits {
		if candidate == u {
			return true
		}
	}
	return false
}

// ParseIntervalUnit converts raw input into an IntervalUnit.
func ParseIntervalUnit(value string) (IntervalUnit, error) {
	for _, candidate := range validIntervalUnits {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid interval unit %q", value)
}
