// Package money holds the fixed-point helpers shared by the ledger, the
// expense builder and the presentation layers. Amounts are decimal values
// with two fractional digits; binary floating point never touches them.
package money

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits every stored amount carries.
const Scale int32 = 2

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrTooPrecise    = errors.New("amount has more than 2 decimal places")
)

// Unit is the smallest representable amount (0.01).
var Unit = decimal.New(1, -Scale)

// Parse reads a user supplied amount such as "1200", "12.5" or "1,200.50".
// Amounts with more than Scale fractional digits are rejected instead of
// being rounded silently.
func Parse(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if !d.Equal(d.Truncate(Scale)) {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrTooPrecise, s)
	}
	return d, nil
}

// ParsePositive is Parse plus a > 0 check.
func ParsePositive(s string) (decimal.Decimal, error) {
	d, err := Parse(s)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: must be positive", ErrInvalidAmount)
	}
	return d, nil
}

// Format renders an amount with exactly Scale fractional digits.
func Format(d decimal.Decimal) string {
	return d.StringFixed(Scale)
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Allocate splits total into len(weights) parts proportional to weights,
// each rounded down to Scale, then hands the leftover units one at a time to
// the parts with the largest remainder (earlier index wins ties). The parts
// always sum to total exactly. total must itself be representable at Scale.
func Allocate(total decimal.Decimal, weights []decimal.Decimal) ([]decimal.Decimal, error) {
	if len(weights) == 0 {
		return nil, fmt.Errorf("%w: no weights", ErrInvalidAmount)
	}
	if !total.Equal(total.Truncate(Scale)) {
		return nil, fmt.Errorf("%w: %s", ErrTooPrecise, total.String())
	}
	sum := decimal.Zero
	for _, w := range weights {
		if w.IsNegative() {
			return nil, fmt.Errorf("%w: negative weight %s", ErrInvalidAmount, w.String())
		}
		sum = sum.Add(w)
	}
	if sum.IsZero() {
		return nil, fmt.Errorf("%w: weights sum to zero", ErrInvalidAmount)
	}

	type rem struct {
		idx  int
		frac decimal.Decimal
	}
	parts := make([]decimal.Decimal, len(weights))
	rems := make([]rem, len(weights))
	allocated := decimal.Zero
	for i, w := range weights {
		// Keep plenty of precision for the remainder comparison.
		exact := total.Mul(w).DivRound(sum, 16)
		floor := exact.RoundFloor(Scale)
		if total.IsNegative() {
			floor = exact.RoundCeil(Scale)
		}
		parts[i] = floor
		rems[i] = rem{idx: i, frac: exact.Sub(floor).Abs()}
		allocated = allocated.Add(floor)
	}

	leftover := total.Sub(allocated)
	step := Unit
	if leftover.IsNegative() {
		step = Unit.Neg()
	}
	units := leftover.Div(Unit).Abs().IntPart()

	sort.SliceStable(rems, func(a, b int) bool {
		return rems[a].frac.GreaterThan(rems[b].frac)
	})
	for k := int64(0); k < units; k++ {
		i := rems[int(k)%len(rems)].idx
		parts[i] = parts[i].Add(step)
	}
	return parts, nil
}
