package db

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type Repository interface {
	// Groups
	EnsureGroup(ctx context.Context, guildID, channelID, name string) (*Group, error)
	GroupByID(ctx context.Context, id int64) (*Group, error)
	GroupByChannel(ctx context.Context, channelID string) (*Group, error)
	GroupsByGuild(ctx context.Context, guildID string) ([]Group, error)

	// Members
	AddMember(ctx context.Context, groupID int64, userID, username string) (bool, error)
	RemoveMember(ctx context.Context, groupID int64, userID string) error
	Members(ctx context.Context, groupID int64) ([]Member, error)

	// Expenses
	CreateExpense(ctx context.Context, e *Expense) (int64, error)
	DeleteExpense(ctx context.Context, groupID, expenseID int64) error
	Expenses(ctx context.Context, groupID int64) ([]Expense, error)
	LastExpenseBy(ctx context.Context, groupID int64, userID string) (*Expense, error)
	Snapshot(ctx context.Context, groupID int64) (*Snapshot, error)

	// Settlement
	ReplaceSettlementTasks(ctx context.Context, groupID int64, planID string, tasks []SettlementTask) error
	PendingSettlementTasks(ctx context.Context, groupID int64) ([]SettlementTask, error)
	RecordSettlementPayment(ctx context.Context, p SettlementPayment) (decimal.Decimal, error)

	// Reminders
	UpsertReminder(ctx context.Context, r Reminder) error
	ReminderConfig(ctx context.Context, groupID int64) (*Reminder, error)
	DueReminders(ctx context.Context, now time.Time) ([]ReminderDue, error)
	MarkReminderSent(ctx context.Context, groupID int64, sentAt, nextDue time.Time) error
	DelayReminder(ctx context.Context, groupID int64, nextDue time.Time) error

	Close() error
}
