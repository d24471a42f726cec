// Package compute averages the age fields of JSON records.
package compute

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Client input errors. Their messages are returned to callers verbatim.
//
//nolint:stylecheck // capitalized wire messages
var (
	ErrNoData     = errors.New("No data provided")
	ErrNoAgeData  = errors.New("No age data available")
	ErrInvalidAge = errors.New("Invalid age value")
)

// AgeKey is the record field that is averaged.
const AgeKey = "age"

var ten = decimal.NewFromInt(10)

// Ages returns the age of every object record that has one, in input order.
// Elements that are not JSON objects, and objects without an age key, are
// skipped. An age that is present but not a JSON number is ErrInvalidAge.
func Ages(records []json.RawMessage) ([]decimal.Decimal, error) {
	ages := make([]decimal.Decimal, 0, len(records))
	for i, raw := range records {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			continue
		}
		v, ok := obj[AgeKey]
		if !ok {
			continue
		}
		age, err := parseNumber(v)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, ErrInvalidAge)
		}
		ages = append(ages, age)
	}
	return ages, nil
}

// parseNumber converts a JSON number literal to an exact decimal.
func parseNumber(raw json.RawMessage) (decimal.Decimal, error) {
	if len(raw) == 0 || !(raw[0] == '-' || (raw[0] >= '0' && raw[0] <= '9')) {
		return decimal.Decimal{}, fmt.Errorf("not a number: %s", raw)
	}
	return decimal.NewFromString(string(raw))
}

// Mean returns the arithmetic mean of values rounded to one decimal place,
// ties to even. The division is exact, so ties are true ties.
// values must not be empty.
func Mean(values []decimal.Decimal) Average {
	n := decimal.NewFromInt(int64(len(values)))
	sum := decimal.Sum(decimal.Zero, values...)

	// Work in tenths: q is the truncated quotient, r carries the sign of sum.
	q, r := sum.Mul(ten).QuoRem(n, 0)
	twiceRem := r.Abs().Mul(decimal.NewFromInt(2))
	switch twiceRem.Cmp(n) {
	case 1:
		q = q.Add(decimal.NewFromInt(int64(sum.Sign())))
	case 0:
		if !q.Mod(decimal.NewFromInt(2)).IsZero() {
			q = q.Add(decimal.NewFromInt(int64(sum.Sign())))
		}
	}
	return Average{d: q.Div(ten)}
}

// AverageAge validates records and returns the rounded mean of their ages.
func AverageAge(records []json.RawMessage) (Average, error) {
	if len(records) == 0 {
		return Average{}, ErrNoData
	}
	ages, err := Ages(records)
	if err != nil {
		return Average{}, err
	}
	if len(ages) == 0 {
		return Average{}, ErrNoAgeData
	}
	return Mean(ages), nil
}

// IsClientError reports whether err was caused by the request content.
func IsClientError(err error) bool {
	return errors.Is(err, ErrNoData) || errors.Is(err, ErrNoAgeData) || errors.Is(err, ErrInvalidAge)
}
