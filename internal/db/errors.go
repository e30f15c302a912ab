package db

import (
	"database/sql"
	"errors"
	"strings"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrUnsupportedScheme = errors.New("unsupported database url")
	// ErrMemberHasSplits is returned when removing a member who is still
	// referenced by an expense split.
	ErrMemberHasSplits = errors.New("member has recorded expenses")
	// ErrSettlementEntry is returned when deleting a settle-up payment.
	ErrSettlementEntry = errors.New("settlement payments cannot be deleted")
)

// MembersMissingError lists split users, in ascending order, that are not
// members of the expense's group.
type MembersMissingError struct {
	UserIDs []string
}

func (e *MembersMissingError) Error() string {
	return "not group members: " + strings.Join(e.UserIDs, ", ")
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
