package domain

import (
	"errors"
	"fmt"
	"math"
)

// ErrMoneyOverflow is returned when a sum does not fit in int64 cents.
var ErrMoneyOverflow = errors.New("money amount overflows")

// Money is an amount in US cents. Integer minor units keep limit sums exact.
type Money int64

// Dollars converts whole dollars to Money.
func Dollars(d int64) Money {
	return Money(d * 100)
}

// Cents returns the raw minor-unit value.
func (m Money) Cents() int64 {
	return int64(m)
}

func (m Money) IsPositive() bool { return m > 0 }
func (m Money) IsNegative() bool { return m < 0 }

// String renders the amount in dollars, e.g. "$1234.56".
func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s$%d.%02d", sign, v/100, v%100)
}

// Add returns m+other, or ErrMoneyOverflow when the sum would wrap.
func (m Money) Add(other Money) (Money, error) {
	if (other > 0 && m > math.MaxInt64-other) || (other < 0 && m < math.MinInt64-other) {
		return 0, ErrMoneyOverflow
	}
	return m + other, nil
}

// MinMoney returns the smaller amount.
func MinMoney(a, b Money) Money {
	if a < b {
		return a
	}
	return b
}

// NonNegative clamps negative amounts to zero.
func (m Money) NonNegative() Money {
	if m < 0 {
		return 0
	}
	return m
}
