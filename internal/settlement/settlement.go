// Package settlement turns net balances into a list of pairwise payments
// that brings every balance to zero.
//
// The planner matches the largest creditor with the largest debtor until one
// of them is paid off, then moves on. The result is always correct (every
// balance reaches zero and nobody is asked to pay more than they owe or
// receive more than they are owed) and uses at most creditors+debtors-1
// payments. It is not guaranteed to use the fewest possible payments: finding
// that minimum means partitioning balances into zero-sum subsets, which is a
// subset-sum problem. Treat the output as small, not minimal.
package settlement

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"
	"github.com/susu3304/warikan/internal/ledger"
	"github.com/susu3304/warikan/internal/money"
)

// DefaultTolerance is the largest absolute balance sum Simplify accepts. It
// sits below one minor unit, so any balance set whose amounts are at scale 2
// must sum to exactly zero.
var DefaultTolerance = decimal.New(1, -4)

// Transaction says From must pay Amount to To.
type Transaction[P cmp.Ordered] struct {
	From   P
	To     P
	Amount decimal.Decimal
}

type position[P cmp.Ordered] struct {
	who    P
	amount decimal.Decimal // magnitude, always > 0 until paid off
}

// Simplify plans the payments for balances using DefaultTolerance.
func Simplify[P cmp.Ordered](balances ledger.Balances[P]) ([]Transaction[P], error) {
	return SimplifyWithTolerance(balances, DefaultTolerance)
}

// SimplifyWithTolerance plans the payments for balances. It fails with a
// *ledger.ValidationError, and returns no transactions, when the balances
// sum to more than tolerance away from zero. Transactions come back in the
// order they were produced, which only depends on the input values.
func SimplifyWithTolerance[P cmp.Ordered](balances ledger.Balances[P], tolerance decimal.Decimal) ([]Transaction[P], error) {
	if sum := balances.Sum(); sum.Abs().GreaterThan(tolerance) {
		return nil, &ledger.ValidationError{
			Reason:      "balances do not sum to zero",
			Discrepancy: sum,
		}
	}

	var creditors, debtors []position[P]
	for p, v := range balances {
		switch v.Sign() {
		case 1:
			creditors = append(creditors, position[P]{who: p, amount: v})
		case -1:
			debtors = append(debtors, position[P]{who: p, amount: v.Neg()})
		}
	}
	sortPositions(creditors)
	sortPositions(debtors)

	var txs []Transaction[P]
	i, j := 0, 0
	for i < len(creditors) && j < len(debtors) {
		c, d := &creditors[i], &debtors[j]
		amount := money.Min(c.amount, d.amount)

		txs = append(txs, Transaction[P]{From: d.who, To: c.who, Amount: amount})

		c.amount = c.amount.Sub(amount)
		d.amount = d.amount.Sub(amount)
		if c.amount.IsZero() {
			i++
		}
		if d.amount.IsZero() {
			j++
		}
	}
	// Whatever is left on the other side is the sub-tolerance residual
	// checked above. It is dropped rather than paid.
	return txs, nil
}

// largest first, then by participant for a stable order
func sortPositions[P cmp.Ordered](ps []position[P]) {
	slices.SortFunc(ps, func(a, b position[P]) int {
		if c := b.amount.Cmp(a.amount); c != 0 {
			return c
		}
		return cmp.Compare(a.who, b.who)
	})
}

// Apply returns the balances that remain after every transaction is paid:
// the payer's balance rises by the amount and the payee's falls by it.
// Participants that only appear in txs are added.
func Apply[P cmp.Ordered](balances ledger.Balances[P], txs []Transaction[P]) ledger.Balances[P] {
	out := balances.Clone()
	for _, tx := range txs {
		out[tx.From] = out[tx.From].Add(tx.Amount)
		out[tx.To] = out[tx.To].Sub(tx.Amount)
	}
	return out
}

// Total sums the amounts moved by txs.
func Total[P cmp.Ordered](txs []Transaction[P]) decimal.Decimal {
	sum := decimal.Zero
	for _, tx := range txs {
		sum = sum.Add(tx.Amount)
	}
	return sum
}
