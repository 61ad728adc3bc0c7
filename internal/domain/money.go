package domain

import (
	"errors"
	"math/big"
	"strconv"
)

var ErrBadAmount = errors.New("invalid amount format")

// ParseAmountMinor converts a decimal currency string ("50", "75.25") into
// int64 minor units. All divisibility and equality checks downstream are
// exact integer arithmetic; floats never enter the engine.
func ParseAmountMinor(value string) (int64, error) {
	r := new(big.Rat)
	if _, ok := r.SetString(value); !ok {
		return 0, ErrBadAmount
	}

	r.Mul(r, big.NewRat(100, 1))
	if !r.IsInt() {
		return 0, ErrBadAmount
	}

	i := new(big.Int).Div(r.Num(), r.Denom())
	if !i.IsInt64() {
		return 0, ErrBadAmount
	}
	return i.Int64(), nil
}

// FormatAmountMinor renders minor units back to a decimal string.
func FormatAmountMinor(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}

	intPart := minor / 100
	decPart := minor % 100
	return sign + strconv.FormatInt(intPart, 10) + "." + twoDigits(int(decPart))
}

func twoDigits(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
