package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/susu3304/warikan/internal/db"
	"github.com/susu3304/warikan/internal/expense"
	"github.com/susu3304/warikan/internal/group"
	"github.com/susu3304/warikan/internal/ledger"
	"github.com/susu3304/warikan/internal/money"
	"go.uber.org/zap"
)

const defaultReminderMinutes = 24 * 60

// Warikan answers the /warikan slash command.
type Warikan struct {
	svc    *group.Service
	logger *zap.Logger
}

func NewWarikan(svc *group.Service, logger *zap.Logger) *Warikan {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Warikan{svc: svc, logger: logger}
}

func (w *Warikan) Handle(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	respondText(s, i, w.run(ctx, i))
}

func (w *Warikan) run(ctx context.Context, i *discordgo.InteractionCreate) string {
	data := i.ApplicationCommandData()
	if len(data.Options) == 0 {
		return "サブコマンドが指定されていません"
	}
	sub := data.Options[0]
	userID, username := invoker(i)
	if userID == "" {
		return "ユーザーを特定できませんでした"
	}

	switch sub.Name {
	case "join":
		_, added, err := w.svc.Join(ctx, i.GuildID, i.ChannelID, userID, username)
		if err != nil {
			return w.errorMessage(err)
		}
		if !added {
			return "既に参加しています"
		}
		return "参加者として登録しました"
	case "member":
		uid := getUserID(data, sub, "user")
		if uid == "" {
			return "ユーザーが指定されていません"
		}
		_, added, err := w.svc.Join(ctx, i.GuildID, i.ChannelID, uid, resolvedUsername(data, uid))
		if err != nil {
			return w.errorMessage(err)
		}
		if !added {
			return fmt.Sprintf("<@%s> は既に参加しています", uid)
		}
		return fmt.Sprintf("<@%s> を参加者に追加しました", uid)
	}

	g, err := w.svc.GroupByChannel(ctx, i.ChannelID)
	if err != nil {
		return w.errorMessage(err)
	}

	switch sub.Name {
	case "leave":
		if err := w.svc.Leave(ctx, g.ID, userID); err != nil {
			return w.errorMessage(err)
		}
		return "グループから抜けました"
	case "split":
		return w.split(ctx, g.ID, userID, sub)
	case "undo":
		e, err := w.svc.UndoLast(ctx, g.ID, userID)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return "取り消せる支出がありません"
			}
			return w.errorMessage(err)
		}
		return fmt.Sprintf("支出 #%d (%s) を取り消しました", e.ID, w.svc.FormatAmount(e.Total))
	case "balance":
		bal, err := w.svc.Balances(ctx, g.ID)
		if err != nil {
			return w.errorMessage(err)
		}
		return w.svc.FormatBalances(bal)
	case "settle":
		plan, err := w.svc.Settle(ctx, g.ID)
		if err != nil {
			return w.errorMessage(err)
		}
		return w.svc.FormatPlan(plan.Transactions)
	case "paid":
		return w.paid(ctx, g.ID, userID, data, sub)
	case "status":
		sum, err := w.svc.Summary(ctx, g.ID)
		if err != nil {
			return w.errorMessage(err)
		}
		tasks, err := w.svc.PendingTasks(ctx, g.ID)
		if err != nil {
			return w.errorMessage(err)
		}
		out := w.svc.FormatSummary(sum)
		if len(tasks) > 0 {
			out += "\n" + w.svc.FormatTasks(tasks)
		}
		return out
	case "history":
		var of string
		if v := getBoolOption(sub.Options, "mine"); v != nil && *v {
			of = userID
		}
		entries, err := w.svc.History(ctx, g.ID, of, group.HistoryLimit)
		if err != nil {
			return w.errorMessage(err)
		}
		return w.svc.FormatHistory(entries, of)
	case "members":
		members, err := w.svc.Members(ctx, g.ID)
		if err != nil {
			return w.errorMessage(err)
		}
		if len(members) == 0 {
			return "参加者がいません"
		}
		var b strings.Builder
		fmt.Fprintf(&b, "参加者 (%d名):\n", len(members))
		for _, m := range members {
			fmt.Fprintf(&b, "・<@%s>\n", m.UserID)
		}
		return b.String()
	case "reminder":
		enabled := true
		if v := getBoolOption(sub.Options, "enabled"); v != nil {
			enabled = *v
		}
		minutes := int64(defaultReminderMinutes)
		if v := getIntOption(sub.Options, "interval"); v != nil {
			minutes = *v
		}
		cfg, err := w.svc.ConfigureReminder(ctx, g.ID, enabled, time.Duration(minutes)*time.Minute)
		if err != nil {
			return w.errorMessage(err)
		}
		if !cfg.Enabled {
			return "リマインダーを停止しました"
		}
		return fmt.Sprintf("未精算のリマインダーを %d 分ごとに送信します", cfg.IntervalMinutes)
	default:
		return "未知のサブコマンドです"
	}
}

func (w *Warikan) split(ctx context.Context, groupID int64, userID string, sub *discordgo.ApplicationCommandInteractionDataOption) string {
	amountOpt := getStringOption(sub.Options, "amount")
	if amountOpt == nil {
		return "金額の指定が必要です"
	}
	total, err := money.ParsePositive(*amountOpt)
	if err != nil {
		return w.errorMessage(err)
	}

	var users []string
	if v := getStringOption(sub.Options, "users"); v != nil {
		users = parseMentionIDs(*v)
		if len(users) == 0 {
			return "ユーザーのメンション/IDを認識できませんでした"
		}
	} else {
		members, err := w.svc.Members(ctx, groupID)
		if err != nil {
			return w.errorMessage(err)
		}
		for _, m := range members {
			users = append(users, m.UserID)
		}
	}

	in := expense.Equal(userID, total, users...)
	if v := getStringOption(sub.Options, "memo"); v != nil {
		in.Description = *v
	}
	if v := getStringOption(sub.Options, "paid"); v != nil {
		payments, err := parsePayments(*v)
		if err != nil {
			return w.errorMessage(err)
		}
		in.Payments = payments
	}

	id, err := w.svc.AddExpense(ctx, groupID, in)
	if err != nil {
		return w.errorMessage(err)
	}
	msg := fmt.Sprintf("支出 #%d: %s を %d 人で割り勘しました", id, w.svc.FormatAmount(total), len(users))
	if in.Description != "" {
		msg += " (" + in.Description + ")"
	}
	return msg
}

func (w *Warikan) paid(ctx context.Context, groupID int64, userID string, data discordgo.ApplicationCommandInteractionData, sub *discordgo.ApplicationCommandInteractionDataOption) string {
	to := getUserID(data, sub, "user")
	if to == "" {
		return "相手の指定が必要です"
	}
	amountOpt := getStringOption(sub.Options, "amount")
	if amountOpt == nil {
		return "金額の指定が必要です"
	}
	amount, err := money.ParsePositive(*amountOpt)
	if err != nil {
		return w.errorMessage(err)
	}
	memo := ""
	if v := getStringOption(sub.Options, "memo"); v != nil {
		memo = *v
	}

	remaining, err := w.svc.RecordPayment(ctx, groupID, userID, to, amount, userID, memo)
	if err != nil {
		return w.errorMessage(err)
	}
	msg := fmt.Sprintf("<@%s> → <@%s> %s の支払いを記録しました", userID, to, w.svc.FormatAmount(amount))
	if remaining.IsPositive() {
		msg += fmt.Sprintf("\n残り: %s", w.svc.FormatAmount(remaining))
	} else {
		msg += "\nこの相手への支払タスクは完了しました"
	}
	return msg
}

func (w *Warikan) errorMessage(err error) string {
	var (
		scopeErr    *ledger.ScopeMismatchError
		validErr    *ledger.ValidationError
		mismatchErr *expense.MismatchError
	)
	switch {
	case errors.As(err, &scopeErr):
		ids := make([]string, len(scopeErr.Participants))
		for i, id := range scopeErr.Participants {
			ids[i] = "<@" + id + ">"
		}
		return "グループに参加していないユーザーがいます: " + strings.Join(ids, ", ") +
			"\n先に `/warikan member` で追加してください"
	case errors.As(err, &validErr):
		w.logger.Error("ledger validation failed", zap.Error(err))
		if validErr.Discrepancy.IsZero() {
			return "精算を計算できません: 記録に不正な金額があります (データが壊れている可能性があります)\n" + validErr.Reason
		}
		return "精算を計算できません: 残高の合計が0になりません (データが壊れている可能性があります)" +
			"\n差額: " + money.Format(validErr.Discrepancy)
	case errors.As(err, &mismatchErr):
		return fmt.Sprintf("金額が合いません: 合計 %s / 支払い %s (差額 %s)",
			money.Format(mismatchErr.Total), money.Format(mismatchErr.Paid),
			money.Format(mismatchErr.Total.Sub(mismatchErr.Paid).Abs()))
	case errors.Is(err, money.ErrTooPrecise):
		return "金額は小数点以下2桁までです"
	case errors.Is(err, money.ErrInvalidAmount):
		return "金額が正しくありません"
	case errors.Is(err, expense.ErrInvalid):
		return "入力が正しくありません: " + strings.TrimPrefix(err.Error(), expense.ErrInvalid.Error()+": ")
	case errors.Is(err, group.ErrGroupNotFound):
		return "このチャンネルにはまだ割り勘グループがありません。`/warikan join` で参加してください"
	case errors.Is(err, group.ErrNotMember):
		return "グループに参加していません"
	case errors.Is(err, group.ErrHasExpenses):
		return "記録済みの支出に含まれているため抜けられません"
	case errors.Is(err, db.ErrSettlementEntry):
		return "精算の記録は削除できません"
	case errors.Is(err, db.ErrNotFound):
		return "見つかりませんでした"
	default:
		w.logger.Error("warikan command failed", zap.Error(err))
		return "エラーが発生しました"
	}
}

func invoker(i *discordgo.InteractionCreate) (string, string) {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID, i.Member.User.Username
	}
	if i.User != nil {
		return i.User.ID, i.User.Username
	}
	return "", ""
}

func resolvedUsername(data discordgo.ApplicationCommandInteractionData, userID string) string {
	if data.Resolved == nil {
		return ""
	}
	if u, ok := data.Resolved.Users[userID]; ok && u != nil {
		return u.Username
	}
	return ""
}

// parsePayments reads a breakdown like "<@1>=300 <@2>:200".
func parsePayments(text string) ([]expense.Payment, error) {
	matches := paymentPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: no payments in %q", expense.ErrInvalid, text)
	}
	out := make([]expense.Payment, 0, len(matches))
	for _, m := range matches {
		amount, err := money.Parse(m[2])
		if err != nil {
			return nil, err
		}
		out = append(out, expense.Payment{UserID: m[1], Amount: amount})
	}
	return out, nil
}
