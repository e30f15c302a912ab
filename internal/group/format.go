package group

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/susu3304/warikan/internal/db"
	"github.com/susu3304/warikan/internal/ledger"
	"github.com/susu3304/warikan/internal/money"
	"github.com/susu3304/warikan/internal/settlement"
)

func mention(userID string) string {
	return "<@" + userID + ">"
}

// FormatAmount prints an amount with the service currency.
func (s *Service) FormatAmount(d decimal.Decimal) string {
	return money.Format(d) + " " + s.currency
}

// FormatBalances lists every member's net balance, creditors first.
func (s *Service) FormatBalances(bal ledger.Balances[string]) string {
	if len(bal) == 0 {
		return "参加者がいません"
	}
	if bal.Settled() {
		return "全員精算済みです"
	}
	ids := bal.Participants()
	var b strings.Builder
	b.WriteString("残高:\n")
	for _, sign := range []int{1, -1, 0} {
		for _, id := range ids {
			v := bal[id]
			if v.Sign() != sign {
				continue
			}
			switch sign {
			case 1:
				fmt.Fprintf(&b, "%s 受け取り %s\n", mention(id), s.FormatAmount(v))
			case -1:
				fmt.Fprintf(&b, "%s 支払い %s\n", mention(id), s.FormatAmount(v.Abs()))
			default:
				fmt.Fprintf(&b, "%s 精算済み\n", mention(id))
			}
		}
	}
	return b.String()
}

func (s *Service) FormatPlan(txs []settlement.Transaction[string]) string {
	if len(txs) == 0 {
		return "精算は不要です"
	}
	var b strings.Builder
	b.WriteString("支払タスク:\n")
	for _, t := range txs {
		fmt.Fprintf(&b, "%s → %s: %s\n", mention(t.From), mention(t.To), s.FormatAmount(t.Amount))
	}
	return b.String()
}

func (s *Service) FormatTasks(tasks []db.SettlementTask) string {
	txs := make([]settlement.Transaction[string], len(tasks))
	for i, t := range tasks {
		txs[i] = settlement.Transaction[string]{From: t.PayerID, To: t.PayeeID, Amount: t.Amount}
	}
	return s.FormatPlan(txs)
}

func (s *Service) FormatSummary(sum *Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "支出: %d 件 / 合計 %s\n", sum.ExpenseCount, s.FormatAmount(sum.TotalSpent))
	if sum.ExpenseCount > 0 {
		fmt.Fprintf(&b, "平均: %s\n", s.FormatAmount(sum.AverageExpense))
	}
	fmt.Fprintf(&b, "参加者: %d 人\n", sum.ParticipantCount)
	if sum.SettlementCount > 0 {
		fmt.Fprintf(&b, "精算記録: %d 件\n", sum.SettlementCount)
	}
	fmt.Fprintf(&b, "未完了の支払タスク: %d 件", sum.PendingTasks)
	return b.String()
}

// FormatHistory lists ledger entries as returned by History. With a
// non-empty userID each entry shows what that user paid and owes instead of
// the participants.
func (s *Service) FormatHistory(entries []db.Expense, userID string) string {
	if len(entries) == 0 {
		return "記録はありません"
	}
	var b strings.Builder
	if userID != "" {
		fmt.Fprintf(&b, "%s の最近の記録:\n", mention(userID))
	} else {
		b.WriteString("最近の記録:\n")
	}
	total := decimal.Zero
	for _, e := range entries {
		fmt.Fprintf(&b, "• #%d %s %s (%s)\n", e.ID, s.FormatAmount(e.Total), historyTitle(e), e.CreatedAt.Format("2006-01-02"))
		if userID != "" {
			if sp := splitFor(e, userID); sp != nil {
				fmt.Fprintf(&b, "  支払: %s / 負担: %s\n", s.FormatAmount(sp.Paid), s.FormatAmount(sp.Owed))
			}
			continue
		}
		if e.Kind == db.KindExpense {
			total = total.Add(e.Total)
			ids := make([]string, len(e.Splits))
			for i, sp := range e.Splits {
				ids[i] = mention(sp.UserID)
			}
			fmt.Fprintf(&b, "  参加者: %s\n", strings.Join(ids, ", "))
		}
	}
	if userID == "" {
		fmt.Fprintf(&b, "支出合計: %s", s.FormatAmount(total))
	}
	return strings.TrimRight(b.String(), "\n")
}

func historyTitle(e db.Expense) string {
	if e.Kind == db.KindSettlement && len(e.Splits) == 2 {
		return fmt.Sprintf("精算 %s → %s", mention(e.Splits[0].UserID), mention(e.Splits[1].UserID))
	}
	if e.Description == "" {
		return "(説明なし)"
	}
	return e.Description
}

// ReminderMessage returns the reminder text for the group's pending tasks,
// or "" when nothing is pending.
func (s *Service) ReminderMessage(ctx context.Context, groupID int64) (string, error) {
	tasks, err := s.repo.PendingSettlementTasks(ctx, groupID)
	if err != nil {
		return "", err
	}
	if len(tasks) == 0 {
		return "", nil
	}
	var b strings.Builder
	b.WriteString("⏰ 未精算のリマインダーです\n")
	for _, t := range tasks {
		fmt.Fprintf(&b, "%s → %s: %s\n", mention(t.PayerID), mention(t.PayeeID), s.FormatAmount(t.Amount))
	}
	b.WriteString("支払ったら `/warikan paid` で記録してください")
	return b.String(), nil
}
