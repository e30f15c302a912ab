package db

import (
	"context"
	"database/sql"
	"time"
)

// UpsertReminder configures reminders for a group. A nil NextDueAt keeps the
// stored schedule.
func (s *Store) UpsertReminder(ctx context.Context, r Reminder) error {
	var next any
	if r.NextDueAt != nil {
		next = r.NextDueAt.UTC().Truncate(time.Second)
	}
	_, err := s.exec(ctx,
		`INSERT INTO reminders (group_id, enabled, interval_minutes, next_due_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (group_id) DO UPDATE
		 SET enabled = EXCLUDED.enabled,
			 interval_minutes = EXCLUDED.interval_minutes,
			 next_due_at = COALESCE(EXCLUDED.next_due_at, reminders.next_due_at)`,
		r.GroupID, r.Enabled, r.IntervalMinutes, next,
	)
	return err
}

func (s *Store) ReminderConfig(ctx context.Context, groupID int64) (*Reminder, error) {
	r := Reminder{GroupID: groupID}
	var next, last sql.NullTime
	err := s.queryRow(ctx,
		`SELECT enabled, interval_minutes, next_due_at, last_sent_at
		 FROM reminders
		 WHERE group_id = ?`,
		groupID,
	).Scan(&r.Enabled, &r.IntervalMinutes, &next, &last)
	if err != nil {
		return nil, notFound(err)
	}
	if next.Valid {
		r.NextDueAt = &next.Time
	}
	if last.Valid {
		r.LastSentAt = &last.Time
	}
	return &r, nil
}

// DueReminders returns enabled reminders that are due and whose group still
// has pending settlement tasks.
func (s *Store) DueReminders(ctx context.Context, at time.Time) ([]ReminderDue, error) {
	rows, err := s.query(ctx,
		`SELECT r.group_id, g.channel_id, r.interval_minutes
		 FROM reminders r
		 JOIN expense_groups g ON g.id = r.group_id
		 WHERE r.enabled = TRUE
		   AND (r.next_due_at IS NULL OR r.next_due_at <= ?)
		   AND EXISTS (
			 SELECT 1 FROM settlement_tasks t
			 WHERE t.group_id = r.group_id AND t.completed = FALSE
		   )
		 ORDER BY r.group_id`,
		at.UTC().Truncate(time.Second),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ReminderDue
	for rows.Next() {
		var r ReminderDue
		if err := rows.Scan(&r.GroupID, &r.ChannelID, &r.IntervalMinutes); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) MarkReminderSent(ctx context.Context, groupID int64, sentAt, nextDue time.Time) error {
	_, err := s.exec(ctx,
		`UPDATE reminders SET last_sent_at = ?, next_due_at = ? WHERE group_id = ?`,
		sentAt.UTC().Truncate(time.Second), nextDue.UTC().Truncate(time.Second), groupID,
	)
	return err
}

// DelayReminder pushes the next attempt back after a failed send.
func (s *Store) DelayReminder(ctx context.Context, groupID int64, nextDue time.Time) error {
	_, err := s.exec(ctx,
		`UPDATE reminders SET next_due_at = ? WHERE group_id = ?`,
		nextDue.UTC().Truncate(time.Second), groupID,
	)
	return err
}
