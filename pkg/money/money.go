// Package money is the single monetary value type used from request parsing
// through storage and summation. Amounts carry two fraction digits and are
// never represented as binary floating point.
package money

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	Scale = 2
	// IntegerDigits is what a decimal(15,2) column holds left of the point.
	IntegerDigits = 13
	// QuantityScale bounds the fraction digits of a non-monetary quantity.
	QuantityScale = 6
)

// Max is the largest amount a decimal(15,2) column stores.
var Max = decimal.RequireFromString("9999999999999.99")

var plainDecimal = regexp.MustCompile(`^-?[0-9]+(\.[0-9]+)?$`)

// Parse reads a decimal string such as "650", "650.5" or "1,250.00".
// Exponent notation, more than IntegerDigits integer digits and more than
// two significant fraction digits are rejected instead of silently rounded.
func Parse(s string) (decimal.Decimal, error) {
	return parsePlain(s, Scale)
}

// ParseQuantity reads a non-monetary figure, such as a capital or a floor
// area, under the same rules as Parse but with up to QuantityScale
// fraction digits.
func ParseQuantity(s string) (decimal.Decimal, error) {
	return parsePlain(s, QuantityScale)
}

func parsePlain(s string, scale int32) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount is empty")
	}
	if !plainDecimal.MatchString(s) {
		return decimal.Zero, fmt.Errorf("amount %q is not a plain decimal number", s)
	}

	whole, fraction, _ := strings.Cut(strings.TrimPrefix(s, "-"), ".")
	if len(strings.TrimLeft(whole, "0")) > IntegerDigits {
		return decimal.Zero, fmt.Errorf("amount %q has more than %d integer digits", s, IntegerDigits)
	}
	if len(strings.TrimRight(fraction, "0")) > int(scale) {
		return decimal.Zero, fmt.Errorf("amount %q has more than %d fraction digits", s, scale)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("amount %q is not a number", s)
	}

	return d.Truncate(scale), nil
}

// Fits reports whether d can be stored in a decimal(15,2) column.
func Fits(d decimal.Decimal) bool {
	return d.Abs().LessThanOrEqual(Max)
}

// Round rounds half up to the cent. For the non-negative amounts this
// service handles, decimal.Round (half away from zero) is half up.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// String formats with exactly two fraction digits.
func String(d decimal.Decimal) string {
	return d.StringFixed(Scale)
}

func IsPositive(d decimal.Decimal) bool {
	return d.GreaterThan(decimal.Zero)
}

func IsNegative(d decimal.Decimal) bool {
	return d.LessThan(decimal.Zero)
}

// ClampZero returns d, or zero when d is negative.
func ClampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
