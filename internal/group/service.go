// Package group runs the expense ledger of a Discord channel: membership,
// expenses, balances, settlement plans and settle-up payments.
package group

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/susu3304/warikan/internal/db"
	"github.com/susu3304/warikan/internal/expense"
	"github.com/susu3304/warikan/internal/ledger"
	"github.com/susu3304/warikan/internal/settlement"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrGroupNotFound = errors.New("group not found")
	ErrNotMember     = errors.New("not a member of this group")
	ErrHasExpenses   = errors.New("member still appears in recorded expenses")
)

type Service struct {
	repo        db.Repository
	logger      *zap.Logger
	currency    string
	concurrency int

	now       func() time.Time
	newPlanID func() string
}

type Option func(*Service)

// WithCurrency sets the label printed after amounts.
func WithCurrency(c string) Option {
	return func(s *Service) { s.currency = c }
}

// WithConcurrency bounds how many groups PlanMany computes at once.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo db.Repository, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		repo:        repo,
		logger:      logger,
		currency:    "JPY",
		concurrency: 4,
		now:         time.Now,
		newPlanID:   func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Plan is a computed settlement for one group. PlanID is empty until the
// plan is stored by Settle.
type Plan struct {
	GroupID      int64
	PlanID       string
	Balances     ledger.Balances[string]
	Transactions []settlement.Transaction[string]
}

// Summary describes a group's spending. Settle-up payments are not
// counted as spending.
type Summary struct {
	GroupID          int64
	ExpenseCount     int
	SettlementCount  int
	TotalSpent       decimal.Decimal
	AverageExpense   decimal.Decimal
	ParticipantCount int
	PendingTasks     int
}

func wrapNotFound(err error) error {
	if errors.Is(err, db.ErrNotFound) {
		return ErrGroupNotFound
	}
	return err
}

// GroupByChannel returns the group bound to channelID.
func (s *Service) GroupByChannel(ctx context.Context, channelID string) (*db.Group, error) {
	g, err := s.repo.GroupByChannel(ctx, channelID)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return g, nil
}

func (s *Service) Group(ctx context.Context, groupID int64) (*db.Group, error) {
	g, err := s.repo.GroupByID(ctx, groupID)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return g, nil
}

func (s *Service) GroupsByGuild(ctx context.Context, guildID string) ([]db.Group, error) {
	return s.repo.GroupsByGuild(ctx, guildID)
}

// Join adds the user to the channel's group, creating the group on first
// use. It reports whether the user was newly added.
func (s *Service) Join(ctx context.Context, guildID, channelID, userID, username string) (*db.Group, bool, error) {
	g, err := s.repo.EnsureGroup(ctx, guildID, channelID, "")
	if err != nil {
		return nil, false, err
	}
	added, err := s.repo.AddMember(ctx, g.ID, userID, username)
	if err != nil {
		return nil, false, err
	}
	if added {
		s.logger.Info("member joined", zap.Int64("group_id", g.ID), zap.String("user_id", userID))
	}
	return g, added, nil
}

// Leave removes the user from the group. Members named in any recorded
// expense stay, since their splits belong to the group's ledger. The check
// and the removal run in one store transaction, so an expense recorded
// concurrently either lands first and blocks the removal or fails with a
// *ledger.ScopeMismatchError.
func (s *Service) Leave(ctx context.Context, groupID int64, userID string) error {
	if err := s.repo.RemoveMember(ctx, groupID, userID); err != nil {
		switch {
		case errors.Is(err, db.ErrNotFound):
			return ErrNotMember
		case errors.Is(err, db.ErrMemberHasSplits):
			return ErrHasExpenses
		}
		return err
	}
	s.logger.Info("member left", zap.Int64("group_id", groupID), zap.String("user_id", userID))
	return nil
}

func (s *Service) Members(ctx context.Context, groupID int64) ([]db.Member, error) {
	return s.repo.Members(ctx, groupID)
}

func (s *Service) scope(ctx context.Context, groupID int64) (ledger.Scope[string], error) {
	members, err := s.repo.Members(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return memberScope(members), nil
}

// outsideScope returns the ids not in scope, ascending and without
// duplicates.
func outsideScope(scope ledger.Scope[string], ids ...string) []string {
	var outside []string
	for _, id := range ids {
		if !scope.Contains(id) {
			outside = append(outside, id)
		}
	}
	slices.Sort(outside)
	return slices.Compact(outside)
}

// scopeError turns the store's membership failure into the ledger's
// scope error.
func scopeError(err error) error {
	var missing *db.MembersMissingError
	if errors.As(err, &missing) {
		return &ledger.ScopeMismatchError{Participants: missing.UserIDs}
	}
	return err
}

func memberScope(members []db.Member) ledger.Scope[string] {
	scope := make(ledger.Scope[string], len(members))
	for _, m := range members {
		scope[m.UserID] = struct{}{}
	}
	return scope
}

// AddExpense validates in, checks every participant is a member and stores
// the expense. Non-members fail with a *ledger.ScopeMismatchError before
// anything is written.
func (s *Service) AddExpense(ctx context.Context, groupID int64, in expense.Input) (int64, error) {
	splits, err := in.Splits()
	if err != nil {
		return 0, err
	}
	scope, err := s.scope(ctx, groupID)
	if err != nil {
		return 0, err
	}
	ids := make([]string, len(splits))
	for i, sp := range splits {
		ids[i] = sp.Participant
	}
	if outside := outsideScope(scope, ids...); len(outside) > 0 {
		return 0, &ledger.ScopeMismatchError{Participants: outside}
	}

	rows := make([]db.Split, len(splits))
	for i, sp := range splits {
		rows[i] = db.Split{UserID: sp.Participant, Paid: sp.Paid, Owed: sp.Owed}
	}
	id, err := s.repo.CreateExpense(ctx, &db.Expense{
		GroupID:     groupID,
		Kind:        db.KindExpense,
		Total:       in.Total,
		Description: in.Description,
		CreatedBy:   in.CreatedBy,
		Splits:      rows,
	})
	if err != nil {
		return 0, scopeError(err)
	}
	s.logger.Info("expense recorded",
		zap.Int64("group_id", groupID),
		zap.Int64("expense_id", id),
		zap.String("total", in.Total.StringFixed(2)),
		zap.Int("participants", len(rows)),
	)
	return id, nil
}

func (s *Service) DeleteExpense(ctx context.Context, groupID, expenseID int64) error {
	return s.repo.DeleteExpense(ctx, groupID, expenseID)
}

// UndoLast deletes the newest regular expense the user created and returns
// it.
func (s *Service) UndoLast(ctx context.Context, groupID int64, userID string) (*db.Expense, error) {
	e, err := s.repo.LastExpenseBy(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.DeleteExpense(ctx, groupID, e.ID); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Service) Expenses(ctx context.Context, groupID int64) ([]db.Expense, error) {
	return s.repo.Expenses(ctx, groupID)
}

// HistoryLimit is how many entries History returns by default.
const HistoryLimit = 10

// History returns up to limit ledger entries of the group, newest first.
// With a non-empty userID only entries that have a split for that user are
// kept. A limit of zero or less means HistoryLimit.
func (s *Service) History(ctx context.Context, groupID int64, userID string, limit int) ([]db.Expense, error) {
	if limit <= 0 {
		limit = HistoryLimit
	}
	all, err := s.repo.Expenses(ctx, groupID)
	if err != nil {
		return nil, err
	}
	var out []db.Expense
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		if userID != "" && splitFor(all[i], userID) == nil {
			continue
		}
		out = append(out, all[i])
	}
	return out, nil
}

func splitFor(e db.Expense, userID string) *db.Split {
	for i := range e.Splits {
		if e.Splits[i].UserID == userID {
			return &e.Splits[i]
		}
	}
	return nil
}

// Balances aggregates the group's ledger from a consistent snapshot.
func (s *Service) Balances(ctx context.Context, groupID int64) (ledger.Balances[string], error) {
	snap, err := s.repo.Snapshot(ctx, groupID)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return balancesOf(snap)
}

func balancesOf(snap *db.Snapshot) (ledger.Balances[string], error) {
	var splits []ledger.Split[string]
	for _, e := range snap.Expenses {
		for _, sp := range e.Splits {
			splits = append(splits, ledger.Split[string]{Participant: sp.UserID, Paid: sp.Paid, Owed: sp.Owed})
		}
	}
	return ledger.Aggregate(splits, memberScope(snap.Members))
}

// Plan computes the payments that settle the group without storing them.
func (s *Service) Plan(ctx context.Context, groupID int64) (*Plan, error) {
	balances, err := s.Balances(ctx, groupID)
	if err != nil {
		return nil, err
	}
	txs, err := settlement.Simplify(balances)
	if err != nil {
		return nil, err
	}
	return &Plan{GroupID: groupID, Balances: balances, Transactions: txs}, nil
}

// Settle computes a plan and stores it as the group's pending settlement
// tasks, replacing any previous pending plan.
func (s *Service) Settle(ctx context.Context, groupID int64) (*Plan, error) {
	plan, err := s.Plan(ctx, groupID)
	if err != nil {
		return nil, err
	}
	plan.PlanID = s.newPlanID()

	tasks := make([]db.SettlementTask, len(plan.Transactions))
	for i, tx := range plan.Transactions {
		tasks[i] = db.SettlementTask{PayerID: tx.From, PayeeID: tx.To, Amount: tx.Amount}
	}
	if err := s.repo.ReplaceSettlementTasks(ctx, groupID, plan.PlanID, tasks); err != nil {
		return nil, err
	}
	s.logger.Info("settlement plan stored",
		zap.Int64("group_id", groupID),
		zap.String("plan_id", plan.PlanID),
		zap.Int("transactions", len(tasks)),
	)
	return plan, nil
}

// PlanMany computes plans for several groups in parallel. Results follow
// the order of groupIDs; the first failure cancels the rest.
func (s *Service) PlanMany(ctx context.Context, groupIDs []int64) ([]*Plan, error) {
	plans := make([]*Plan, len(groupIDs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, id := range groupIDs {
		g.Go(func() error {
			p, err := s.Plan(ctx, id)
			if err != nil {
				return fmt.Errorf("group %d: %w", id, err)
			}
			plans[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return plans, nil
}

// RecordPayment records that payer paid amount to payee and pays down the
// pending tasks between them. It returns what payer still owes payee under
// the stored plan.
func (s *Service) RecordPayment(ctx context.Context, groupID int64, payerID, payeeID string, amount decimal.Decimal, recordedBy, memo string) (decimal.Decimal, error) {
	if _, err := expense.Settlement(payerID, payeeID, amount); err != nil {
		return decimal.Zero, err
	}
	scope, err := s.scope(ctx, groupID)
	if err != nil {
		return decimal.Zero, err
	}
	if outside := outsideScope(scope, payerID, payeeID); len(outside) > 0 {
		return decimal.Zero, &ledger.ScopeMismatchError{Participants: outside}
	}

	remaining, err := s.repo.RecordSettlementPayment(ctx, db.SettlementPayment{
		GroupID:    groupID,
		PayerID:    payerID,
		PayeeID:    payeeID,
		Amount:     amount,
		Memo:       memo,
		RecordedBy: recordedBy,
	})
	if err != nil {
		return decimal.Zero, scopeError(err)
	}
	s.logger.Info("settlement payment recorded",
		zap.Int64("group_id", groupID),
		zap.String("payer_id", payerID),
		zap.String("payee_id", payeeID),
		zap.String("amount", amount.StringFixed(2)),
	)
	return remaining, nil
}

func (s *Service) PendingTasks(ctx context.Context, groupID int64) ([]db.SettlementTask, error) {
	return s.repo.PendingSettlementTasks(ctx, groupID)
}

func (s *Service) Summary(ctx context.Context, groupID int64) (*Summary, error) {
	snap, err := s.repo.Snapshot(ctx, groupID)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	tasks, err := s.repo.PendingSettlementTasks(ctx, groupID)
	if err != nil {
		return nil, err
	}

	sum := &Summary{
		GroupID:          groupID,
		TotalSpent:       decimal.Zero,
		AverageExpense:   decimal.Zero,
		ParticipantCount: len(snap.Members),
		PendingTasks:     len(tasks),
	}
	for _, e := range snap.Expenses {
		if e.Kind == db.KindSettlement {
			sum.SettlementCount++
			continue
		}
		sum.ExpenseCount++
		sum.TotalSpent = sum.TotalSpent.Add(e.Total)
	}
	if sum.ExpenseCount > 0 {
		sum.AverageExpense = sum.TotalSpent.DivRound(decimal.NewFromInt(int64(sum.ExpenseCount)), 2)
	}
	return sum, nil
}

// ConfigureReminder turns reminders on or off. Enabling schedules the
// first reminder one interval from now.
func (s *Service) ConfigureReminder(ctx context.Context, groupID int64, enabled bool, interval time.Duration) (*db.Reminder, error) {
	minutes := int(interval / time.Minute)
	if minutes <= 0 {
		return nil, fmt.Errorf("reminder interval must be at least one minute")
	}
	r := db.Reminder{GroupID: groupID, Enabled: enabled, IntervalMinutes: minutes}
	if enabled {
		next := s.now().Add(time.Duration(minutes) * time.Minute)
		r.NextDueAt = &next
	}
	if err := s.repo.UpsertReminder(ctx, r); err != nil {
		return nil, err
	}
	return s.repo.ReminderConfig(ctx, groupID)
}
