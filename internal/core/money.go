// Package core provides money parsing and handling utilities.
//
// Amounts are kept as decimals rounded to cents; they are never floats.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is a positive monetary value with at most two decimal places.
type Amount struct {
	decimal.Decimal
}

// NewAmountFromCents builds an Amount from an integer number of cents.
func NewAmountFromCents(cents int64) Amount {
	return Amount{Decimal: decimal.New(cents, -2)}
}

// ParseAmount converts a decimal string to an Amount with proper rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and performs
// half-up rounding on the third decimal place. Signs, exponents, zero and
// malformed input are rejected with ErrInvalidAmount.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34
//	ParseAmount("12,345") -> 12.35
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.ContainsAny(s, "+-eE") {
		return Amount{}, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, ErrInvalidAmount
	}
	a := Amount{Decimal: d.Round(2)}
	if err := a.Validate(); err != nil {
		return Amount{}, err
	}
	return a, nil
}

// Validate requires a strictly positive value.
func (a Amount) Validate() error {
	if !a.Decimal.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

// Cents returns the amount in integer cents.
func (a Amount) Cents() int64 {
	return a.Decimal.Shift(2).Round(0).IntPart()
}

// String formats the amount with exactly two decimals.
func (a Amount) String() string {
	return a.Decimal.StringFixed(2)
}
