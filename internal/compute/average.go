package compute

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Average is a mean rounded to one decimal place. It always renders with
// exactly one fractional digit, so 35 is written as 35.0.
type Average struct {
	d decimal.Decimal
}

// NewAverage rounds f to one decimal place, ties to even.
func NewAverage(f float64) Average {
	return Average{d: decimal.NewFromFloat(f).RoundBank(1)}
}

// Decimal returns the exact value.
func (a Average) Decimal() decimal.Decimal { return a.d }

// Float64 returns the nearest float64.
func (a Average) Float64() float64 {
	f, _ := a.d.Float64()
	return f
}

func (a Average) String() string {
	return a.d.StringFixed(1)
}

// MarshalJSON writes the value as a JSON number with one fractional digit.
func (a Average) MarshalJSON() ([]byte, error) {
	return []byte(a.d.StringFixed(1)), nil
}

// UnmarshalJSON reads a JSON number.
func (a *Average) UnmarshalJSON(b []byte) error {
	d, err := parseNumber(b)
	if err != nil {
		return fmt.Errorf("average: %w", err)
	}
	a.d = d.RoundBank(1)
	return nil
}
