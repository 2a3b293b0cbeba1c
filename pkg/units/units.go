// Package units converts between user-typed decimal strings and fixed-point
// token amounts ("base units").
package units

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"web3-orchestrator/pkg/apperror"

	"github.com/shopspring/decimal"
)

// Unavailable is rendered in place of a value that could not be read.
const Unavailable = "—"

// HealthFactorDecimals is the fixed-point precision of the position engine's
// health factor.
const HealthFactorDecimals = 18

var decimalRe = regexp.MustCompile(`^(\d*)(?:\.(\d*))?$`)

// Sanitize normalizes free-text decimal entry while the user is typing.
// It never fails: the result is a partial or complete decimal string, or "".
// The fractional part is truncated (never rounded) to maxDecimals digits and a
// trailing point is kept so "12." stays "12." mid-entry.
func Sanitize(raw string, maxDecimals int) string {
	v := strings.TrimSpace(strings.ReplaceAll(raw, ",", ""))
	if v == "" {
		return ""
	}

	var b strings.Builder
	for _, r := range v {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	v = b.String()
	if v == "" {
		return ""
	}

	intPart, fracPart, hasDot := strings.Cut(v, ".")
	if hasDot {
		fracPart = strings.ReplaceAll(fracPart, ".", "")
	}

	intPart = strings.TrimLeft(intPart, "0")
	if intPart == "" {
		intPart = "0"
	}

	if !hasDot {
		return intPart
	}

	if maxDecimals < 0 {
		maxDecimals = 0
	}
	if len(fracPart) > maxDecimals {
		fracPart = fracPart[:maxDecimals]
	}
	return intPart + "." + fracPart
}

// Canonical strips trailing fractional zeros and a trailing bare point, which
// is the form FromBaseUnits produces.
func Canonical(s string) string {
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// ToBaseUnits converts a decimal string into base units. It rejects empty or
// malformed input and input with more fractional digits than decimals allows;
// it never rounds.
func ToBaseUnits(s string, decimals int) (*big.Int, error) {
	if decimals < 0 {
		return nil, &apperror.ParseError{Input: s, Reason: fmt.Sprintf("negative decimals %d", decimals)}
	}
	if s == "" {
		return nil, &apperror.ParseError{Input: s, Reason: "empty amount"}
	}

	m := decimalRe.FindStringSubmatch(s)
	if m == nil {
		return nil, &apperror.ParseError{Input: s, Reason: "malformed decimal"}
	}
	intPart, fracPart := m[1], m[2]
	if intPart == "" && fracPart == "" {
		return nil, &apperror.ParseError{Input: s, Reason: "no digits"}
	}
	if len(fracPart) > decimals {
		return nil, &apperror.ParseError{
			Input:  s,
			Reason: fmt.Sprintf("more than %d fractional digits", decimals),
		}
	}
	if intPart == "" {
		intPart = "0"
	}

	normalized := intPart
	if fracPart != "" {
		normalized += "." + fracPart
	}
	d, err := decimal.NewFromString(normalized)
	if err != nil {
		return nil, &apperror.ParseError{Input: s, Reason: err.Error()}
	}
	return d.Shift(int32(decimals)).BigInt(), nil
}

// IsPositive reports whether s converts to a strictly positive amount.
func IsPositive(s string, decimals int) bool {
	v, err := ToBaseUnits(s, decimals)
	return err == nil && v.Sign() > 0
}

// FromBaseUnits renders base units as an exact canonical decimal string.
func FromBaseUnits(v *big.Int, decimals int) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -int32(decimals)).String()
}

// FormatForDisplay renders an amount for humans. Tiny balances switch to
// exponent form instead of collapsing to "0":
//
//	nil        -> "—"
//	0          -> "0"
//	>= 1       -> 2 fixed decimals
//	[1e-6, 1)  -> up to 6 decimals, trailing zeros trimmed
//	< 1e-6     -> mantissa with 2 decimals and exponent, e.g. "1.00e-18"
func FormatForDisplay(v *big.Int, decimals int) string {
	if v == nil {
		return Unavailable
	}
	if v.Sign() == 0 {
		return "0"
	}

	d := decimal.NewFromBigInt(v, -int32(decimals))
	abs := d.Abs()

	if abs.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return d.StringFixed(2)
	}
	if abs.GreaterThanOrEqual(decimal.New(1, -6)) {
		return Canonical(d.StringFixed(6))
	}
	return exponentForm(v, decimals)
}

func exponentForm(v *big.Int, decimals int) string {
	coeff := new(big.Int).Abs(v)
	digits := len(coeff.String())
	exp := digits - 1 - decimals

	mantissa := decimal.NewFromBigInt(coeff, -int32(digits-1)).StringFixed(2)
	if mantissa == "10.00" {
		mantissa = "1.00"
		exp++
	}
	if v.Sign() < 0 {
		mantissa = "-" + mantissa
	}
	return fmt.Sprintf("%se%d", mantissa, exp)
}

// FormatHealthFactor renders an 18-decimal fixed-point ratio with 3 decimals.
// Zero is a real value and renders as "0.000".
func FormatHealthFactor(v *big.Int) string {
	if v == nil {
		return Unavailable
	}
	return decimal.NewFromBigInt(v, -HealthFactorDecimals).StringFixed(3)
}
