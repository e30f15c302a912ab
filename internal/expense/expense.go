// Package expense turns a recorded expense into ledger splits.
package expense

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/susu3304/warikan/internal/ledger"
	"github.com/susu3304/warikan/internal/money"
)

var ErrInvalid = errors.New("invalid expense")

// Payment is money a user actually put in.
type Payment struct {
	UserID string
	Amount decimal.Decimal
}

// Share marks a user as sharing the cost in proportion to Weight. A zero
// weight keeps the user in the expense without a share.
type Share struct {
	UserID string
	Weight decimal.Decimal
}

// Input describes an expense. When Payments is empty the creator paid the
// whole Total.
type Input struct {
	Total       decimal.Decimal
	Description string
	CreatedBy   string
	Payments    []Payment
	Shares      []Share
}

// Participants returns every user named as payer or sharer, in first-seen
// order.
func (in Input) Participants() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, p := range in.payments() {
		add(p.UserID)
	}
	for _, s := range in.Shares {
		add(s.UserID)
	}
	return out
}

func (in Input) payments() []Payment {
	if len(in.Payments) == 0 && in.CreatedBy != "" {
		return []Payment{{UserID: in.CreatedBy, Amount: in.Total}}
	}
	return in.Payments
}

// Validate checks the expense without building splits.
func (in Input) Validate() error {
	if !in.Total.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrInvalid)
	}
	if !in.Total.Equal(in.Total.Truncate(money.Scale)) {
		return fmt.Errorf("%w: %v", ErrInvalid, money.ErrTooPrecise)
	}
	if len(in.Participants()) < 2 {
		return fmt.Errorf("%w: at least 2 participants required", ErrInvalid)
	}
	if len(in.Shares) == 0 {
		return fmt.Errorf("%w: nobody shares the cost", ErrInvalid)
	}

	payments := in.payments()
	if len(payments) == 0 {
		return fmt.Errorf("%w: nobody paid", ErrInvalid)
	}
	paid := decimal.Zero
	for _, p := range payments {
		if p.UserID == "" {
			return fmt.Errorf("%w: payment without a payer", ErrInvalid)
		}
		if p.Amount.IsNegative() {
			return fmt.Errorf("%w: negative payment by %s", ErrInvalid, p.UserID)
		}
		if !p.Amount.Equal(p.Amount.Truncate(money.Scale)) {
			return fmt.Errorf("%w: payment by %s: %v", ErrInvalid, p.UserID, money.ErrTooPrecise)
		}
		paid = paid.Add(p.Amount)
	}
	if !paid.Equal(in.Total) {
		return &MismatchError{Total: in.Total, Paid: paid, Payments: payments}
	}

	positive := false
	for _, s := range in.Shares {
		if s.UserID == "" {
			return fmt.Errorf("%w: share without a user", ErrInvalid)
		}
		if s.Weight.IsNegative() {
			return fmt.Errorf("%w: negative weight for %s", ErrInvalid, s.UserID)
		}
		if s.Weight.IsPositive() {
			positive = true
		}
	}
	if !positive {
		return fmt.Errorf("%w: all weights are zero", ErrInvalid)
	}
	return nil
}

// Splits validates the expense and returns one split per participant, in
// Participants order. Owed amounts are allocated by weight and always add up
// to Total exactly; leftover cents go to the sharers listed first.
func (in Input) Splits() ([]ledger.Split[string], error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	paid := make(map[string]decimal.Decimal)
	for _, p := range in.payments() {
		paid[p.UserID] = paid[p.UserID].Add(p.Amount)
	}

	// merge duplicate sharers so a user named twice carries both weights
	var sharers []string
	weight := make(map[string]decimal.Decimal)
	for _, s := range in.Shares {
		if _, ok := weight[s.UserID]; !ok {
			sharers = append(sharers, s.UserID)
		}
		weight[s.UserID] = weight[s.UserID].Add(s.Weight)
	}
	weights := make([]decimal.Decimal, len(sharers))
	for i, id := range sharers {
		weights[i] = weight[id]
	}
	parts, err := money.Allocate(in.Total, weights)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	owed := make(map[string]decimal.Decimal, len(sharers))
	for i, id := range sharers {
		owed[id] = parts[i]
	}

	ids := in.Participants()
	out := make([]ledger.Split[string], 0, len(ids))
	for _, id := range ids {
		out = append(out, ledger.Split[string]{
			Participant: id,
			Paid:        paid[id],
			Owed:        owed[id],
		})
	}
	return out, nil
}

// Equal is the common case: payer paid total, split evenly among users
// (the payer is not added automatically).
func Equal(payer string, total decimal.Decimal, users ...string) Input {
	shares := make([]Share, len(users))
	for i, u := range users {
		shares[i] = Share{UserID: u, Weight: decimal.NewFromInt(1)}
	}
	return Input{
		Total:     total,
		CreatedBy: payer,
		Shares:    shares,
	}
}

// Settlement returns the splits recording that from paid amount to to. In
// the ledger it reads as an expense from paid for and to alone consumed.
func Settlement(from, to string, amount decimal.Decimal) ([]ledger.Split[string], error) {
	if from == "" || to == "" || from == to {
		return nil, fmt.Errorf("%w: payer and payee must be two different users", ErrInvalid)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalid)
	}
	if !amount.Equal(amount.Truncate(money.Scale)) {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, money.ErrTooPrecise)
	}
	return []ledger.Split[string]{
		{Participant: from, Paid: amount, Owed: decimal.Zero},
		{Participant: to, Paid: decimal.Zero, Owed: amount},
	}, nil
}

// MismatchError is returned when the individual payments do not add up to
// the expense total.
type MismatchError struct {
	Total    decimal.Decimal
	Paid     decimal.Decimal
	Payments []Payment
}

func (e *MismatchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: amounts don't add up: total %s, paid %s, difference %s",
		ErrInvalid, money.Format(e.Total), money.Format(e.Paid), money.Format(e.Total.Sub(e.Paid).Abs()))
	for _, p := range e.Payments {
		fmt.Fprintf(&b, "; %s paid %s", p.UserID, money.Format(p.Amount))
	}
	return b.String()
}

func (e *MismatchError) Unwrap() error { return ErrInvalid }
