// Package amount converts between the ledger's smallest unit and decimal text.
//
// The integer path is exact. Rounding only happens in FormatDisplay, and its
// output must never be parsed back into a transaction amount.
package amount

import (
	"math/big"
	"strings"

	"github.com/medrex/medledger/pkg/types"
)

// Decimals is the number of fractional digits of one whole coin
const Decimals = 18

// One is 10^Decimals, the smallest-unit value of one whole coin
var One = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)

// ToSmallestUnit parses a non-negative decimal numeral into smallest units.
// Inputs with a sign, exponent, grouping separators or more than 18
// fractional digits fail with MalformedAmount.
func ToSmallestUnit(s string) (*big.Int, error) {
	input := s
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, types.NewMalformedAmountError(input, "amount is empty")
	}

	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
		if strings.IndexByte(frac, '.') >= 0 {
			return nil, types.NewMalformedAmountError(input, "amount has more than one decimal point")
		}
	}

	if whole == "" && frac == "" {
		return nil, types.NewMalformedAmountError(input, "amount has no digits")
	}
	if !allDigits(whole) || !allDigits(frac) {
		return nil, types.NewMalformedAmountError(input, "amount must be a non-negative decimal number")
	}
	if len(frac) > Decimals {
		return nil, types.NewMalformedAmountError(input, "amount has more than 18 fractional digits")
	}

	digits := whole + frac + strings.Repeat("0", Decimals-len(frac))
	n, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, types.NewMalformedAmountError(input, "amount could not be parsed")
	}
	return n, nil
}

// ToDecimalString renders smallest units as a minimal decimal numeral.
// ToSmallestUnit(ToDecimalString(n)) == n for every n >= 0.
func ToDecimalString(n *big.Int) string {
	if n == nil {
		return "0"
	}
	sign := ""
	abs := new(big.Int).Set(n)
	if abs.Sign() < 0 {
		sign = "-"
		abs.Neg(abs)
	}

	whole, frac := new(big.Int).QuoRem(abs, One, new(big.Int))
	if frac.Sign() == 0 {
		return sign + whole.String()
	}

	fracStr := frac.String()
	fracStr = strings.Repeat("0", Decimals-len(fracStr)) + fracStr
	fracStr = strings.TrimRight(fracStr, "0")
	return sign + whole.String() + "." + fracStr
}

// FormatDisplay rounds half-up to the given number of fractional digits for display only
func FormatDisplay(n *big.Int, digits int) string {
	if n == nil {
		n = new(big.Int)
	}
	if digits < 0 {
		digits = 0
	}
	if digits >= Decimals {
		return ToDecimalString(n)
	}

	abs := new(big.Int).Abs(n)
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(Decimals-digits)), nil)
	half := new(big.Int).Rsh(unit, 1)
	scaled := new(big.Int).Add(abs, half)
	scaled.Quo(scaled, unit)

	s := scaled.String()
	if digits > 0 {
		if len(s) <= digits {
			s = strings.Repeat("0", digits-len(s)+1) + s
		}
		s = s[:len(s)-digits] + "." + s[len(s)-digits:]
	}
	if n.Sign() < 0 && scaled.Sign() != 0 {
		s = "-" + s
	}
	return s
}

// ToFloat converts smallest units to a float64 for display and metrics only
func ToFloat(n *big.Int) float64 {
	if n == nil {
		return 0
	}
	f, _ := new(big.Rat).SetFrac(n, One).Float64()
	return f
}

// Mul returns quantity × unit without mutating unit
func Mul(unit *big.Int, quantity uint64) *big.Int {
	if unit == nil {
		return new(big.Int)
	}
	return new(big.Int).Mul(unit, new(big.Int).SetUint64(quantity))
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
