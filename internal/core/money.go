// Package core holds the finledger domain model: money handling, the
// transaction/account/budget types, and the error taxonomy shared by the
// engine and its collaborators.
//
// Amounts are decimal.Decimal values normalized to 2 decimal places
// (currency minor units, half-up rounding). The storage layer converts
// them to integer cents at its boundary.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Round2 normalizes an amount to 2 decimal places with half-up rounding.
// decimal.Round rounds half away from zero, which is half-up for the
// positive amounts transactions carry; deltas inherit the same rule.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Cents converts an amount to integer minor units after normalization.
func Cents(d decimal.Decimal) int64 {
	return Round2(d).Shift(2).IntPart()
}

// FromCents converts integer minor units back to a decimal amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// ParseAmount parses a user-supplied amount string. It accepts both dot
// (12.34) and comma (12,34) decimal separators, rejects non-positive
// values, and normalizes to 2 decimal places.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34
//	ParseAmount("12,34")  -> 12.34
//	ParseAmount("12.345") -> 12.35 (rounds up)
//	ParseAmount("-5")     -> error
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, &ValidationError{Reason: "empty amount"}
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &ValidationError{Reason: "invalid amount: " + s}
	}
	if !d.IsPositive() {
		return decimal.Zero, &ValidationError{Reason: "amount must be positive"}
	}
	return Round2(d), nil
}
