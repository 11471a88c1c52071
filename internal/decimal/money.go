package decimal

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultTolerance is the absolute margin accepted between quantity x unit
// price and the declared line total. It absorbs two-decimal display rounding.
var DefaultTolerance = decimal.RequireFromString("0.02")

// ParseBR converts a text fragment written with Brazilian conventions
// ("R$ 1.234,56", "12,5", "0,250 KG") into a number.
//
// When both '.' and ',' occur the dot is a thousands separator and the comma
// the decimal separator; a lone comma is a decimal separator; anything else
// is parsed as is. Returns nil when nothing numeric is left or the result is
// not a finite number.
func ParseBR(s string) *float64 {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	v := strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',', r == '-':
			return r
		default:
			return -1
		}
	}, s)
	if v == "" {
		return nil
	}

	hasDot := strings.Contains(v, ".")
	hasComma := strings.Contains(v, ",")
	switch {
	case hasDot && hasComma:
		v = strings.ReplaceAll(v, ".", "")
		v = strings.ReplaceAll(v, ",", ".")
	case hasComma:
		v = strings.ReplaceAll(v, ",", ".")
	}

	d, err := decimal.NewFromString(v)
	if err != nil {
		return nil
	}
	f := d.InexactFloat64()
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// FromFloat converts a float without rounding, so that a mismatch between
// displayed values is never hidden.
func FromFloat(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

// Mul multiplies two decimals exactly
func Mul(a, b decimal.Decimal) decimal.Decimal {
	return a.Mul(b)
}

// ApproxEqual reports whether |a - b| <= tolerance
func ApproxEqual(a, b, tolerance decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}

// IsFinite reports whether v is neither NaN nor an infinity
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ParseTolerance parses a non-negative tolerance such as "0.02" or "0,05".
func ParseTolerance(s string) (decimal.Decimal, error) {
	v := ParseBR(s)
	if v == nil {
		return decimal.Zero, fmt.Errorf("invalid tolerance %q", s)
	}
	if *v < 0 {
		return decimal.Zero, fmt.Errorf("tolerance must not be negative: %q", s)
	}
	return FromFloat(*v), nil
}
