package db

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// ReplaceSettlementTasks drops the group's pending tasks and stores tasks as
// the new plan. Completed tasks are kept as history.
func (s *Store) ReplaceSettlementTasks(ctx context.Context, groupID int64, planID string, tasks []SettlementTask) error {
	return s.execTx(ctx, nil, func(tx *Store) error {
		if _, err := tx.exec(ctx,
			`DELETE FROM settlement_tasks WHERE group_id = ? AND completed = FALSE`,
			groupID,
		); err != nil {
			return err
		}
		createdAt := now()
		for _, t := range tasks {
			if !t.Amount.IsPositive() || t.PayerID == "" || t.PayeeID == "" {
				continue
			}
			if _, err := tx.exec(ctx,
				`INSERT INTO settlement_tasks (group_id, plan_id, payer_id, payee_id, amount, completed, created_at)
				 VALUES (?, ?, ?, ?, ?, FALSE, ?)`,
				groupID, planID, t.PayerID, t.PayeeID, t.Amount, createdAt,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

// PendingSettlementTasks returns the unsettled tasks of the group.
func (s *Store) PendingSettlementTasks(ctx context.Context, groupID int64) ([]SettlementTask, error) {
	rows, err := s.query(ctx,
		`SELECT id, group_id, plan_id, payer_id, payee_id, amount, created_at
		 FROM settlement_tasks
		 WHERE group_id = ? AND completed = FALSE
		 ORDER BY id`,
		groupID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []SettlementTask
	for rows.Next() {
		var t SettlementTask
		if err := rows.Scan(&t.ID, &t.GroupID, &t.PlanID, &t.PayerID, &t.PayeeID, &t.Amount, &t.CreatedAt); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// RecordSettlementPayment stores the payment as a settlement expense and
// pays down the pending tasks from payer to payee, oldest first, in the same
// transaction. It returns what the payer still owes the payee under the
// current plan.
func (s *Store) RecordSettlementPayment(ctx context.Context, p SettlementPayment) (decimal.Decimal, error) {
	if !p.Amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("record settlement payment: amount must be positive")
	}
	if p.PayerID == "" || p.PayeeID == "" || p.PayerID == p.PayeeID {
		return decimal.Zero, fmt.Errorf("record settlement payment: payer and payee must differ")
	}

	remaining := decimal.Zero
	err := s.execTx(ctx, nil, func(tx *Store) error {
		if _, err := tx.insertExpense(ctx, &Expense{
			GroupID:     p.GroupID,
			Kind:        KindSettlement,
			Total:       p.Amount,
			Description: p.Memo,
			CreatedBy:   p.RecordedBy,
			Splits: []Split{
				{UserID: p.PayerID, Paid: p.Amount, Owed: decimal.Zero},
				{UserID: p.PayeeID, Paid: decimal.Zero, Owed: p.Amount},
			},
		}); err != nil {
			return err
		}

		rows, err := tx.query(ctx,
			`SELECT id, amount
			 FROM settlement_tasks
			 WHERE group_id = ? AND payer_id = ? AND payee_id = ? AND completed = FALSE
			 ORDER BY id`+tx.dialect.forUpdate,
			p.GroupID, p.PayerID, p.PayeeID,
		)
		if err != nil {
			return err
		}
		var tasks []SettlementTask
		for rows.Next() {
			var t SettlementTask
			if err := rows.Scan(&t.ID, &t.Amount); err != nil {
				rows.Close()
				return err
			}
			tasks = append(tasks, t)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		left := p.Amount
		completedAt := now()
		for _, t := range tasks {
			if !left.IsPositive() {
				remaining = remaining.Add(t.Amount)
				continue
			}
			if left.GreaterThanOrEqual(t.Amount) {
				left = left.Sub(t.Amount)
				if _, err := tx.exec(ctx,
					`UPDATE settlement_tasks SET completed = TRUE, completed_at = ? WHERE id = ?`,
					completedAt, t.ID,
				); err != nil {
					return err
				}
				continue
			}
			rest := t.Amount.Sub(left)
			left = decimal.Zero
			remaining = remaining.Add(rest)
			if _, err := tx.exec(ctx,
				`UPDATE settlement_tasks SET amount = ? WHERE id = ?`,
				rest, t.ID,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("record settlement payment: %w", err)
	}
	return remaining, nil
}
