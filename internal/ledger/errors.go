package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrValidation classifies malformed amounts and balance sets that do not
	// sum to zero.
	ErrValidation = errors.New("ledger validation failed")
	// ErrScopeMismatch classifies data that references participants outside
	// the declared scope.
	ErrScopeMismatch = errors.New("participant outside scope")
)

// ValidationError describes why an input was rejected. Discrepancy is set
// when the failure is a non-zero sum.
type ValidationError struct {
	Reason      string
	Discrepancy decimal.Decimal
}

func (e *ValidationError) Error() string {
	if e.Discrepancy.IsZero() {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	}
	return fmt.Sprintf("%s: %s (off by %s)", ErrValidation, e.Reason, e.Discrepancy.String())
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ScopeMismatchError lists every participant that was found outside the
// scope, in ascending order.
type ScopeMismatchError struct {
	Participants []string
}

func (e *ScopeMismatchError) Error() string {
	return fmt.Sprintf("%s: %s", ErrScopeMismatch, strings.Join(e.Participants, ", "))
}

func (e *ScopeMismatchError) Unwrap() error { return ErrScopeMismatch }
