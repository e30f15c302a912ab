package db

import (
	"time"

	"github.com/shopspring/decimal"
)

// Group is the set of people sharing expenses in one Discord channel.
type Group struct {
	ID        int64
	GuildID   string
	ChannelID string
	Name      string
	CreatedAt time.Time
}

type Member struct {
	GroupID  int64
	UserID   string
	Username string
	JoinedAt time.Time
}

type ExpenseKind string

const (
	KindExpense    ExpenseKind = "expense"
	KindSettlement ExpenseKind = "settlement"
)

type Expense struct {
	ID          int64
	GroupID     int64
	Kind        ExpenseKind
	Total       decimal.Decimal
	Description string
	CreatedBy   string
	CreatedAt   time.Time
	Splits      []Split
}

// Split is one participant's paid and owed amounts within an expense.
type Split struct {
	UserID string
	Paid   decimal.Decimal
	Owed   decimal.Decimal
}

// SettlementTask is one outstanding payment from a stored settlement plan.
type SettlementTask struct {
	ID        int64
	GroupID   int64
	PlanID    string
	PayerID   string
	PayeeID   string
	Amount    decimal.Decimal
	CreatedAt time.Time
}

// SettlementPayment is a repayment between two members.
type SettlementPayment struct {
	GroupID    int64
	PayerID    string
	PayeeID    string
	Amount     decimal.Decimal
	Memo       string
	RecordedBy string
}

type Reminder struct {
	GroupID         int64
	Enabled         bool
	IntervalMinutes int
	NextDueAt       *time.Time
	LastSentAt      *time.Time
}

type ReminderDue struct {
	GroupID         int64
	ChannelID       string
	IntervalMinutes int
}

// Snapshot is a consistent read of a group's members and expenses.
type Snapshot struct {
	Group    Group
	Members  []Member
	Expenses []Expense
}
