package compute

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func records(t *testing.T, body string) []json.RawMessage {
	t.Helper()
	var out []json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	return out
}

func TestAverageAge(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"two records", `[{"age":30},{"age":40}]`, "35.0"},
		{"skips records without age", `[{"age":10},{"name":"x"},{"age":20}]`, "15.0"},
		{"single record", `[{"age":7}]`, "7.0"},
		{"three records", `[{"age":10},{"age":15},{"age":20}]`, "15.0"},
		{"mixed records", `[{"age":5},{"name":"y"},{"age":9}]`, "7.0"},
		{"fractional ages", `[{"age":20.5},{"age":21}]`, "20.8"},
		{"extra fields ignored", `[{"age":30,"name":"a","id":1},{"age":31}]`, "30.5"},
		{"non-object elements skipped", `[1,"age",null,[{"age":99}],{"age":3}]`, "3.0"},
		{"negative ages", `[{"age":-1},{"age":-2}]`, "-1.5"},
		{"exponent notation", `[{"age":1e1},{"age":2E1}]`, "15.0"},
		{"large values stay exact", `[{"age":9007199254740993},{"age":9007199254740993}]`, "9007199254740993.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			avg, err := AverageAge(records(t, tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.want, avg.String())
		})
	}
}

func TestAverageAge_OrderInvariant(t *testing.T) {
	perms := []string{
		`[{"age":1},{"age":2},{"age":4}]`,
		`[{"age":2},{"age":4},{"age":1}]`,
		`[{"age":4},{"age":1},{"name":"n"},{"age":2}]`,
	}
	var first string
	for i, p := range perms {
		avg, err := AverageAge(records(t, p))
		require.NoError(t, err)
		if i == 0 {
			first = avg.String()
			continue
		}
		assert.Equal(t, first, avg.String(), p)
	}
	assert.Equal(t, "2.3", first)
}

func TestAverageAge_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    []json.RawMessage
		wantErr error
		message string
	}{
		{"nil data", nil, ErrNoData, "No data provided"},
		{"empty data", []json.RawMessage{}, ErrNoData, "No data provided"},
		{"no ages", records(t, `[{"name":"x"},{"height":180}]`), ErrNoAgeData, "No age data available"},
		{"only non-objects", records(t, `[1,2,3]`), ErrNoAgeData, "No age data available"},
		{"string age", records(t, `[{"age":"30"}]`), ErrInvalidAge, "Invalid age value"},
		{"null age", records(t, `[{"age":30},{"age":null}]`), ErrInvalidAge, "Invalid age value"},
		{"bool age", records(t, `[{"age":true}]`), ErrInvalidAge, "Invalid age value"},
		{"object age", records(t, `[{"age":{"years":3}}]`), ErrInvalidAge, "Invalid age value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := AverageAge(tt.data)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			assert.True(t, IsClientError(err))
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestMean_RoundHalfToEven(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		want   string
	}{
		{"exact", []string{"1", "2"}, "1.5"},
		{"tie rounds down to even", []string{"0.25"}, "0.2"},
		{"tie rounds up to even", []string{"0.35"}, "0.4"},
		{"tie from division", []string{"0", "0.5"}, "0.2"},
		{"above tie rounds up", []string{"0.26"}, "0.3"},
		{"below tie rounds down", []string{"0.24"}, "0.2"},
		{"repeating decimal", []string{"1", "1", "2"}, "1.3"},
		{"negative tie to even", []string{"-0.25"}, "-0.2"},
		{"negative above tie", []string{"-0.26"}, "-0.3"},
		{"negative odd tie", []string{"-0.35"}, "-0.4"},
		{"zero", []string{"0", "0"}, "0.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values := make([]decimal.Decimal, len(tt.values))
			for i, v := range tt.values {
				values[i] = decimal.RequireFromString(v)
			}
			assert.Equal(t, tt.want, Mean(values).String())
		})
	}
}

func TestAges(t *testing.T) {
	ages, err := Ages(records(t, `[{"age":30},{"x":1},{"age":40.5}]`))
	require.NoError(t, err)
	require.Len(t, ages, 2)
	assert.True(t, ages[0].Equal(decimal.NewFromInt(30)))
	assert.True(t, ages[1].Equal(decimal.RequireFromString("40.5")))
}

func TestIsClientError(t *testing.T) {
	assert.False(t, IsClientError(errors.New("boom")))
	assert.False(t, IsClientError(nil))
}

func TestAverage_JSON(t *testing.T) {
	b, err := json.Marshal(struct {
		AverageAge Average `json:"average_age"`
	}{NewAverage(35)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"average_age":35.0}`, string(b))
	assert.Contains(t, string(b), "35.0")

	var decoded struct {
		AverageAge Average `json:"average_age"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"average_age":15.0}`), &decoded))
	assert.Equal(t, 15.0, decoded.AverageAge.Float64())
	assert.Equal(t, "15.0", decoded.AverageAge.String())

	assert.Error(t, json.Unmarshal([]byte(`{"average_age":"15"}`), &decoded))
}

func TestNewAverage(t *testing.T) {
	assert.Equal(t, "2.2", NewAverage(2.25).String())
	assert.Equal(t, "7.0", NewAverage(7).String())
	assert.True(t, NewAverage(7).Decimal().Equal(decimal.NewFromInt(7)))
}
