package model

import (
	"math"
	"strconv"
)

// ParseCents converts decimal string amounts (major units) to cents (int64).
// Catalog price feeds sometimes send prices as strings ("19.90").
// Examples: "99.00" → 9900, "1234.56" → 123456, "" → 0
func ParseCents(s string) int64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return ToCents(f)
}

// ToCents converts a major-unit float to minor units, rounding half away from zero.
func ToCents(f float64) int64 {
	return int64(math.Round(f * 100))
}

// FromCents converts minor units back to a major-unit float.
func FromCents(cents int64) float64 {
	return float64(cents) / 100
}
