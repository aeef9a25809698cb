// Package core provides money parsing and handling utilities.
//
// This file contains the amount parser used for statement cells. Amounts are
// kept as exact decimals; no currency conversion happens anywhere.
package core

import (
	"errors"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

// currencyTokens are stripped from amount cells before parsing.
var currencyTokens = []string{"KRW", "krw", "원", "₩", "￦", "$", "€", "USD", "usd"}

// ParseAmount converts statement amount text to a signed decimal.
//
// Thousands separators, whitespace and currency symbols are removed. A leading
// or trailing minus and accounting parentheses mark a negative value.
//
// Examples:
//
//	ParseAmount("12,300원")  -> 12300
//	ParseAmount("₩ -5,000")  -> -5000
//	ParseAmount("(1,200)")   -> -1200
//	ParseAmount("3500-")     -> -3500
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, tok := range currencyTokens {
		s = strings.ReplaceAll(s, tok, "")
	}
	s = strings.Map(func(r rune) rune {
		if r == ',' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	if strings.HasSuffix(s, "-") {
		negative = !negative
		s = strings.TrimSuffix(s, "-")
	}
	s = strings.TrimPrefix(s, "+")
	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = strings.TrimPrefix(s, "-")
	}
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '.' {
			return decimal.Zero, ErrInvalidAmount
		}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// FormatAmount renders d without trailing zeros, e.g. 5000 or 12.5.
func FormatAmount(d decimal.Decimal) string {
	return d.String()
}
