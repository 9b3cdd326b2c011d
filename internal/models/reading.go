package models

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// RawRecord is one record returned by the meter data API.
type RawRecord struct {
	Date  string `json:"Date"`
	Time  string `json:"Description"`
	Usage Usage  `json:"kVAh"`
}

// Usage is a kVAh value that may arrive as a JSON number, a numeric string or garbage.
// Decoding never fails: unusable input leaves Valid false and Raw holding the original text.
type Usage struct {
	Value float64
	Raw   string
	Valid bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (u *Usage) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	*u = Usage{Raw: raw}
	if raw == "" || raw == "null" {
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		raw = strings.TrimSpace(s)
		u.Raw = s
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	u.Value = v
	u.Valid = true
	return nil
}

// MarshalJSON implements json.Marshaler.
func (u Usage) MarshalJSON() ([]byte, error) {
	if !u.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(u.Value)
}

// Reading is a single timestamped meter value in kVAh.
type Reading struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Series is a chronologically ordered sequence of readings with unique timestamps.
type Series []Reading

// Len returns the number of readings.
func (s Series) Len() int { return len(s) }

// Values returns the reading values in order.
func (s Series) Values() []float64 {
	out := make([]float64, len(s))
	for i, r := range s {
		out[i] = r.Value
	}
	return out
}

// Times returns the reading timestamps in order.
func (s Series) Times() []time.Time {
	out := make([]time.Time, len(s))
	for i, r := range s {
		out[i] = r.Timestamp
	}
	return out
}

// Last returns the final reading. It panics on an empty series.
func (s Series) Last() Reading {
	return s[len(s)-1]
}

// TimeRange is an inclusive [Start, End] window. A zero bound is open.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// IngestReport records the lossy transformations applied while normalising records.
type IngestReport struct {
	Records    int `json:"records"`
	Readings   int `json:"readings"`
	Coerced    int `json:"coerced"`
	Duplicates int `json:"duplicates"`
}

// DateTimeLayout formats timestamps on the actual/forecast read paths.
const DateTimeLayout = "2006-01-02 15:04:05"

// ActualHour is one observed hourly consumption value.
type ActualHour struct {
	DateTime string  `json:"DateTime"`
	KVAh     float64 `json:"Actual_kVAh"`
}

// ForecastHour is one forecast hour with its interval.
type ForecastHour struct {
	DateTime string  `json:"DateTime"`
	KVAh     float64 `json:"Forecasted_kVAh"`
	Lower    float64 `json:"Lower_CI_kVAh"`
	Upper    float64 `json:"Upper_CI_kVAh"`
}
