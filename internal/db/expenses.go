package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
)

// CreateExpense inserts the expense and its splits in one transaction and
// returns the new id. An empty Kind means KindExpense. Every split user must
// be a member of the group when the transaction commits; otherwise a
// *MembersMissingError is returned and nothing is written.
func (s *Store) CreateExpense(ctx context.Context, e *Expense) (int64, error) {
	if len(e.Splits) == 0 {
		return 0, fmt.Errorf("create expense: no splits")
	}
	var id int64
	err := s.execTx(ctx, nil, func(tx *Store) error {
		var err error
		id, err = tx.insertExpense(ctx, e)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("create expense: %w", err)
	}
	return id, nil
}

// lockMembers checks that every split user is a member of the group. The
// member rows stay locked until the transaction ends so a concurrent
// RemoveMember cannot drop them underneath the new splits.
func (s *Store) lockMembers(ctx context.Context, groupID int64, splits []Split) error {
	var missing []string
	seen := make(map[string]bool, len(splits))
	for _, sp := range splits {
		if seen[sp.UserID] {
			continue
		}
		seen[sp.UserID] = true
		var userID string
		err := s.queryRow(ctx,
			`SELECT user_id FROM group_members WHERE group_id = ? AND user_id = ?`+s.dialect.forUpdate,
			groupID, sp.UserID,
		).Scan(&userID)
		if errors.Is(err, sql.ErrNoRows) {
			missing = append(missing, sp.UserID)
			continue
		}
		if err != nil {
			return err
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return &MembersMissingError{UserIDs: missing}
	}
	return nil
}

func (s *Store) insertExpense(ctx context.Context, e *Expense) (int64, error) {
	if err := s.lockMembers(ctx, e.GroupID, e.Splits); err != nil {
		return 0, err
	}
	kind := e.Kind
	if kind == "" {
		kind = KindExpense
	}
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = now()
	}

	var id int64
	if err := s.queryRow(ctx,
		`INSERT INTO expenses (group_id, kind, total, description, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 RETURNING id`,
		e.GroupID, string(kind), e.Total, e.Description, e.CreatedBy, createdAt.UTC(),
	).Scan(&id); err != nil {
		return 0, err
	}
	for _, sp := range e.Splits {
		if _, err := s.exec(ctx,
			`INSERT INTO expense_splits (expense_id, user_id, paid_amount, owed_amount)
			 VALUES (?, ?, ?, ?)`,
			id, sp.UserID, sp.Paid, sp.Owed,
		); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// DeleteExpense removes an expense and its splits. It fails with
// ErrNotFound when the expense does not belong to the group and with
// ErrSettlementEntry for settle-up payments, which have already paid down
// settlement tasks.
func (s *Store) DeleteExpense(ctx context.Context, groupID, expenseID int64) error {
	return s.execTx(ctx, nil, func(tx *Store) error {
		var kind string
		if err := tx.queryRow(ctx,
			`SELECT kind FROM expenses WHERE id = ? AND group_id = ?`+tx.dialect.forUpdate,
			expenseID, groupID,
		).Scan(&kind); err != nil {
			return notFound(err)
		}
		if ExpenseKind(kind) == KindSettlement {
			return ErrSettlementEntry
		}
		_, err := tx.exec(ctx, `DELETE FROM expenses WHERE id = ?`, expenseID)
		return err
	})
}

// Expenses returns every expense of the group, oldest first, with splits.
func (s *Store) Expenses(ctx context.Context, groupID int64) ([]Expense, error) {
	rows, err := s.query(ctx,
		`SELECT id, group_id, kind, total, description, created_by, created_at
		 FROM expenses
		 WHERE group_id = ?
		 ORDER BY id`,
		groupID,
	)
	if err != nil {
		return nil, err
	}
	var out []Expense
	index := make(map[int64]int)
	for rows.Next() {
		var e Expense
		var kind string
		if err := rows.Scan(&e.ID, &e.GroupID, &kind, &e.Total, &e.Description, &e.CreatedBy, &e.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		e.Kind = ExpenseKind(kind)
		index[e.ID] = len(out)
		out = append(out, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}

	rows, err = s.query(ctx,
		`SELECT s.expense_id, s.user_id, s.paid_amount, s.owed_amount
		 FROM expense_splits s
		 JOIN expenses e ON e.id = s.expense_id
		 WHERE e.group_id = ?
		 ORDER BY s.expense_id, s.id`,
		groupID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var expenseID int64
		var sp Split
		if err := rows.Scan(&expenseID, &sp.UserID, &sp.Paid, &sp.Owed); err != nil {
			return nil, err
		}
		if i, ok := index[expenseID]; ok {
			out[i].Splits = append(out[i].Splits, sp)
		}
	}
	return out, rows.Err()
}

// LastExpenseBy returns the newest regular expense the user created in the
// group.
func (s *Store) LastExpenseBy(ctx context.Context, groupID int64, userID string) (*Expense, error) {
	var e Expense
	var kind string
	err := s.queryRow(ctx,
		`SELECT id, group_id, kind, total, description, created_by, created_at
		 FROM expenses
		 WHERE group_id = ? AND created_by = ? AND kind = ?
		 ORDER BY id DESC
		 LIMIT 1`,
		groupID, userID, string(KindExpense),
	).Scan(&e.ID, &e.GroupID, &kind, &e.Total, &e.Description, &e.CreatedBy, &e.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	e.Kind = ExpenseKind(kind)
	return &e, nil
}

// Snapshot reads the group, its members and its expenses in one
// transaction so balances are computed from a consistent view.
func (s *Store) Snapshot(ctx context.Context, groupID int64) (*Snapshot, error) {
	var snap Snapshot
	err := s.execTx(ctx, s.dialect.snapshot, func(tx *Store) error {
		g, err := tx.GroupByID(ctx, groupID)
		if err != nil {
			return err
		}
		snap.Group = *g
		if snap.Members, err = tx.Members(ctx, groupID); err != nil {
			return err
		}
		snap.Expenses, err = tx.Expenses(ctx, groupID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &snap, nil
}
