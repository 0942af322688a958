package report

import (
	"strconv"

	"github.com/cockroachdb/apd/v3"
)

// decimalPlaces is the scale used for averages and money.
const decimalPlaces = 2

func newContext() *apd.Context {
	ctx := apd.BaseContext.WithPrecision(34)
	ctx.Rounding = apd.RoundHalfUp
	return ctx
}

// amount is an exact decimal quantity. Values are immutable.
type amount struct {
	value apd.Decimal
}

// amountOf converts a float read from a store into its shortest decimal form.
// NaN and infinities count as zero.
func amountOf(f float64) amount {
	var d apd.Decimal
	if _, err := d.SetFloat64(f); err != nil {
		d.SetInt64(0)
	}
	return amount{value: d}
}

func (a amount) add(other amount) amount {
	var result apd.Decimal
	if _, err := newContext().Add(&result, &a.value, &other.value); err != nil {
		return a
	}
	return amount{value: result}
}

func (a amount) div(n int) amount {
	var divisor, result apd.Decimal
	divisor.SetInt64(int64(n))
	if _, err := newContext().Quo(&result, &a.value, &divisor); err != nil {
		return a
	}
	return amount{value: result}
}

// round returns a rounded half-up to two decimal places. Values too large to
// carry two decimals within the context precision are returned unrounded.
func (a amount) round() amount {
	var result apd.Decimal
	if _, err := newContext().Quantize(&result, &a.value, -decimalPlaces); err != nil || result.Form != apd.Finite {
		return a
	}
	return amount{value: result}
}

func (a amount) float() float64 {
	f, err := a.value.Float64()
	if err != nil {
		return 0
	}
	return f
}

// plain renders the shortest form of the value without exponent notation.
func (a amount) plain() string {
	return strconv.FormatFloat(a.float(), 'f', -1, 64)
}

// fixed renders the value rounded to two decimals.
func (a amount) fixed() string {
	r := a.round()
	return r.value.Text('f')
}
