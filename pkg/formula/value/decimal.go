// Package value defines the Go representation of formula values used by the
// in-memory evaluator.
//
//	NULL              nil
//	text, char        string
//	number            *apd.Decimal (NaN for invalid arithmetic)
//	boolean           bool
//	date              time.Time
//	date_interval     time.Duration
//	single_select     SelectOption
//	multiple_select   []SelectOption
//	collaborators     []Collaborator
//	link, button      Link
//	array             Array
package value

import (
	"fmt"
	"math"
	"strconv"

	"github.com/cockroachdb/apd/v3"
)

// DecimalContext is shared by all formula arithmetic. Conditions never trap so
// invalid operations yield NaN instead of an error.
var DecimalContext = func() *apd.Context {
	c := apd.BaseContext.WithPrecision(60)
	c.Rounding = apd.RoundHalfUp
	c.Traps = 0
	return c
}()

var truncContext = func() *apd.Context {
	c := *DecimalContext
	c.Rounding = apd.RoundDown
	return &c
}()

// NaN returns a new not-a-number decimal.
func NaN() *apd.Decimal {
	return &apd.Decimal{Form: apd.NaN}
}

// IsNaN reports whether d is NaN or infinite.
func IsNaN(d *apd.Decimal) bool {
	return d != nil && d.Form != apd.Finite
}

// NewDecimal parses a decimal literal.
func NewDecimal(s string) (*apd.Decimal, error) {
	d, _, err := apd.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return d, nil
}

// MustDecimal is NewDecimal for constants.
func MustDecimal(s string) *apd.Decimal {
	d, err := NewDecimal(s)
	if err != nil {
		panic(err)
	}
	return d
}

// FromInt converts an integer.
func FromInt(i int64) *apd.Decimal {
	return apd.New(i, 0)
}

// Quantize rounds half up to dp decimal places.
func Quantize(d *apd.Decimal, dp int) *apd.Decimal {
	return quantize(DecimalContext, d, dp)
}

// Trim drops trailing fractional zeros, so an exact 2.000 becomes 2.
func Trim(d *apd.Decimal) *apd.Decimal {
	if d == nil || IsNaN(d) || d.Form != apd.Finite {
		return d
	}
	out := new(apd.Decimal)
	out.Reduce(d)
	if out.Exponent > 0 {
		return quantize(DecimalContext, out, 0)
	}
	return out
}

// Truncate drops digits beyond dp decimal places.
func Truncate(d *apd.Decimal, dp int) *apd.Decimal {
	return quantize(truncContext, d, dp)
}

func quantize(ctx *apd.Context, d *apd.Decimal, dp int) *apd.Decimal {
	if d == nil || IsNaN(d) {
		return d
	}
	out := new(apd.Decimal)
	if _, err := ctx.Quantize(out, d, -int32(dp)); err != nil {
		return NaN()
	}
	return out
}

// FormatDecimal renders d without exponent notation.
func FormatDecimal(d *apd.Decimal) string {
	if d == nil {
		return ""
	}
	if IsNaN(d) {
		return "NaN"
	}
	return d.Text('f')
}

// ToDecimal converts a Go value to a decimal.
func ToDecimal(v any) (*apd.Decimal, bool) {
	switch n := v.(type) {
	case *apd.Decimal:
		return n, n != nil
	case apd.Decimal:
		return &n, true
	case int:
		return FromInt(int64(n)), true
	case int64:
		return FromInt(n), true
	case int32:
		return FromInt(int64(n)), true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return NaN(), true
		}
		d, err := NewDecimal(strconv.FormatFloat(n, 'f', -1, 64))
		return d, err == nil
	case float32:
		return ToDecimal(float64(n))
	case string:
		d, err := NewDecimal(n)
		return d, err == nil
	case []byte:
		d, err := NewDecimal(string(n))
		return d, err == nil
	}
	return nil, false
}
