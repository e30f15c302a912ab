// Package ledger reduces expense splits into one signed net balance per
// participant. A positive balance means the participant is owed money, a
// negative one means they owe money.
//
// Participants are opaque: the package only compares them for equality and
// ordering, so any cmp.Ordered key (a user ID string, a numeric row ID)
// works.
package ledger

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"
)

// Split is one participant's line in a single expense: what they put in and
// what their share of the expense was.
type Split[P cmp.Ordered] struct {
	Participant P
	Paid        decimal.Decimal
	Owed        decimal.Decimal
}

// Balances maps every participant in a scope to their net position.
type Balances[P cmp.Ordered] map[P]decimal.Decimal

// Sum adds every balance. For a closed scope this is zero.
func (b Balances[P]) Sum() decimal.Decimal {
	sum := decimal.Zero
	for _, v := range b {
		sum = sum.Add(v)
	}
	return sum
}

// Participants returns the keys in ascending order.
func (b Balances[P]) Participants() []P {
	out := make([]P, 0, len(b))
	for p := range b {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// Clone returns an independent copy.
func (b Balances[P]) Clone() Balances[P] {
	out := make(Balances[P], len(b))
	for p, v := range b {
		out[p] = v
	}
	return out
}

// Settled reports whether every balance is zero.
func (b Balances[P]) Settled() bool {
	for _, v := range b {
		if !v.IsZero() {
			return false
		}
	}
	return true
}

// Scope is the closed set of participants a computation is allowed to see,
// typically the members of one group. A nil Scope places no restriction.
type Scope[P cmp.Ordered] map[P]struct{}

// NewScope builds a Scope from a member list.
func NewScope[P cmp.Ordered](members ...P) Scope[P] {
	s := make(Scope[P], len(members))
	for _, m := range members {
		s[m] = struct{}{}
	}
	return s
}

// Contains reports whether p is inside the scope. A nil scope contains
// everyone.
func (s Scope[P]) Contains(p P) bool {
	if s == nil {
		return true
	}
	_, ok := s[p]
	return ok
}
