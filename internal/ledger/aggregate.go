package ledger

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
)

// Aggregate nets paid against owed for every participant across splits.
//
// Every member of scope appears in the result, with zero when they have no
// splits, so callers can report "all settled". The call is atomic: a
// negative amount, a participant outside scope or a result that does not sum
// to zero fails the whole call and no balances are returned.
func Aggregate[P cmp.Ordered](splits []Split[P], scope Scope[P]) (Balances[P], error) {
	var outside []P
	seen := make(map[P]struct{})

	out := make(Balances[P], len(scope))
	for p := range scope {
		out[p] = decimal.Zero
	}

	for i, s := range splits {
		if s.Paid.IsNegative() {
			return nil, &ValidationError{Reason: fmt.Sprintf("split %d (%v): negative paid amount %s", i, s.Participant, s.Paid.String())}
		}
		if s.Owed.IsNegative() {
			return nil, &ValidationError{Reason: fmt.Sprintf("split %d (%v): negative owed amount %s", i, s.Participant, s.Owed.String())}
		}
		if !scope.Contains(s.Participant) {
			if _, dup := seen[s.Participant]; !dup {
				seen[s.Participant] = struct{}{}
				outside = append(outside, s.Participant)
			}
			continue
		}
		out[s.Participant] = out[s.Participant].Add(s.Paid).Sub(s.Owed)
	}

	if len(outside) > 0 {
		slices.Sort(outside)
		names := make([]string, len(outside))
		for i, p := range outside {
			names[i] = fmt.Sprint(p)
		}
		return nil, &ScopeMismatchError{Participants: names}
	}

	if sum := out.Sum(); !sum.IsZero() {
		return nil, &ValidationError{Reason: "paid and owed totals differ", Discrepancy: sum}
	}
	return out, nil
}
