package commands

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/susu3304/warikan/internal/db"
	"github.com/susu3304/warikan/internal/group"
	"github.com/susu3304/warikan/internal/ledger"
	"go.uber.org/zap"
)

func newTestWarikan(t *testing.T) *Warikan {
	t.Helper()
	ctx := context.Background()
	store, err := db.Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "warikan.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(ctx))
	return NewWarikan(group.NewService(store, zap.NewNop(), group.WithCurrency("円")), zap.NewNop())
}

func str(name, v string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionString, Value: v}
}

func user(name, id string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionUser, Value: id}
}

func interaction(userID, sub string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:      discordgo.InteractionApplicationCommand,
		GuildID:   "100",
		ChannelID: "200",
		Member:    &discordgo.Member{User: &discordgo.User{ID: userID, Username: "user" + userID}},
		Data: discordgo.ApplicationCommandInteractionData{
			Name: "warikan",
			Options: []*discordgo.ApplicationCommandInteractionDataOption{{
				Name:    sub,
				Type:    discordgo.ApplicationCommandOptionSubCommand,
				Options: opts,
			}},
		},
	}}
}

func TestWarikanFlow(t *testing.T) {
	ctx := context.Background()
	w := newTestWarikan(t)

	assert.Contains(t, w.run(ctx, interaction("1", "balance")), "/warikan join")

	assert.Equal(t, "参加者として登録しました", w.run(ctx, interaction("1", "join")))
	assert.Equal(t, "既に参加しています", w.run(ctx, interaction("1", "join")))
	assert.Equal(t, "<@2> を参加者に追加しました", w.run(ctx, interaction("1", "member", user("user", "2"))))
	assert.Equal(t, "<@3> を参加者に追加しました", w.run(ctx, interaction("1", "member", user("user", "3"))))

	out := w.run(ctx, interaction("1", "split", str("amount", "3,000"), str("memo", "dinner")))
	assert.Equal(t, "支出 #1: 3000.00 円 を 3 人で割り勘しました (dinner)", out)

	out = w.run(ctx, interaction("1", "split", str("amount", "100"), str("users", "<@1> <@9>")))
	assert.Contains(t, out, "<@9>")
	assert.Contains(t, out, "/warikan member")

	out = w.run(ctx, interaction("2", "split", str("amount", "600"), str("users", "<@1> <@2> <@3>"), str("paid", "<@2>=400 <@3>=100")))
	assert.Contains(t, out, "金額が合いません")

	out = w.run(ctx, interaction("2", "split", str("amount", "600"), str("users", "<@1> <@2> <@3>"), str("paid", "<@2>=400 <@3>=200")))
	assert.Contains(t, out, "支出 #2")

	// 1: +3000-1000-200 = 1800, 2: -1000+400-200 = -800, 3: -1000+200-200 = -1000
	out = w.run(ctx, interaction("1", "balance"))
	assert.Equal(t, "残高:\n<@1> 受け取り 1800.00 円\n<@2> 支払い 800.00 円\n<@3> 支払い 1000.00 円\n", out)

	out = w.run(ctx, interaction("1", "settle"))
	assert.Equal(t, "支払タスク:\n<@3> → <@1>: 1000.00 円\n<@2> → <@1>: 800.00 円\n", out)

	out = w.run(ctx, interaction("2", "paid", user("user", "1"), str("amount", "500")))
	assert.Contains(t, out, "残り: 300.00 円")
	out = w.run(ctx, interaction("3", "paid", user("user", "1"), str("amount", "1000")))
	assert.Contains(t, out, "完了しました")

	out = w.run(ctx, interaction("1", "status"))
	assert.Contains(t, out, "支出: 2 件")
	assert.Contains(t, out, "<@2> → <@1>: 300.00 円")

	out = w.run(ctx, interaction("1", "members"))
	assert.Contains(t, out, "参加者 (3名)")

	assert.Contains(t, w.run(ctx, interaction("1", "leave")), "抜けられません")
}

func TestWarikanUndoAndAmountErrors(t *testing.T) {
	ctx := context.Background()
	w := newTestWarikan(t)
	w.run(ctx, interaction("1", "join"))
	w.run(ctx, interaction("2", "join"))

	assert.Equal(t, "取り消せる支出がありません", w.run(ctx, interaction("1", "undo")))
	assert.Equal(t, "金額は小数点以下2桁までです", w.run(ctx, interaction("1", "split", str("amount", "10.005"))))
	assert.Equal(t, "金額が正しくありません", w.run(ctx, interaction("1", "split", str("amount", "-5"))))
	assert.Equal(t, "金額が正しくありません", w.run(ctx, interaction("1", "split", str("amount", "abc"))))

	w.run(ctx, interaction("1", "split", str("amount", "100")))
	assert.Equal(t, "支出 #1 (100.00 円) を取り消しました", w.run(ctx, interaction("1", "undo")))
	assert.Equal(t, "全員精算済みです", w.run(ctx, interaction("1", "balance")))
	assert.Equal(t, "精算は不要です", w.run(ctx, interaction("1", "settle")))
}

func TestWarikanHistory(t *testing.T) {
	ctx := context.Background()
	w := newTestWarikan(t)
	w.run(ctx, interaction("1", "join"))
	w.run(ctx, interaction("1", "member", user("user", "2")))

	assert.Equal(t, "記録はありません", w.run(ctx, interaction("1", "history")))

	w.run(ctx, interaction("1", "split", str("amount", "300"), str("memo", "lunch")))
	w.run(ctx, interaction("2", "paid", user("user", "1"), str("amount", "50")))

	out := w.run(ctx, interaction("1", "history"))
	assert.Contains(t, out, "最近の記録:")
	assert.Contains(t, out, "#2 50.00 円 精算 <@2> → <@1>")
	assert.Contains(t, out, "#1 300.00 円 lunch")
	assert.Contains(t, out, "参加者: <@1>, <@2>")
	assert.Contains(t, out, "支出合計: 300.00 円")

	mine := &discordgo.ApplicationCommandInteractionDataOption{Name: "mine", Type: discordgo.ApplicationCommandOptionBoolean, Value: true}
	out = w.run(ctx, interaction("2", "history", mine))
	assert.Contains(t, out, "<@2> の最近の記録:")
	assert.Contains(t, out, "支払: 50.00 円 / 負担: 0.00 円")
	assert.Contains(t, out, "支払: 0.00 円 / 負担: 150.00 円")
	assert.NotContains(t, out, "支出合計")
}

func TestErrorMessageForLedgerValidation(t *testing.T) {
	w := newTestWarikan(t)

	msg := w.errorMessage(&ledger.ValidationError{Reason: "split 0 (1): negative paid amount -5"})
	assert.NotContains(t, msg, "残高の合計が0になりません")
	assert.Contains(t, msg, "negative paid amount -5")

	msg = w.errorMessage(&ledger.ValidationError{Reason: "paid and owed totals differ", Discrepancy: decimal.RequireFromString("0.01")})
	assert.Contains(t, msg, "残高の合計が0になりません")
	assert.Contains(t, msg, "差額: 0.01")
}

func TestWarikanReminder(t *testing.T) {
	ctx := context.Background()
	w := newTestWarikan(t)
	w.run(ctx, interaction("1", "join"))

	out := w.run(ctx, interaction("1", "reminder", &discordgo.ApplicationCommandInteractionDataOption{
		Name: "interval", Type: discordgo.ApplicationCommandOptionInteger, Value: float64(60),
	}))
	assert.Equal(t, "未精算のリマインダーを 60 分ごとに送信します", out)

	out = w.run(ctx, interaction("1", "reminder", &discordgo.ApplicationCommandInteractionDataOption{
		Name: "enabled", Type: discordgo.ApplicationCommandOptionBoolean, Value: false,
	}))
	assert.Equal(t, "リマインダーを停止しました", out)
}

func TestParseMentionIDs(t *testing.T) {
	assert.Equal(t, []string{"1", "22", "333"}, parseMentionIDs("<@1> <@!22> 333 <@1> abc"))
	assert.Empty(t, parseMentionIDs("nobody"))
}

func TestParsePayments(t *testing.T) {
	got, err := parsePayments("<@1>=1,200 <@!2>: 300.50 <@3> 10")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "1", got[0].UserID)
	assert.Equal(t, "1200", got[0].Amount.String())
	assert.Equal(t, "2", got[1].UserID)
	assert.Equal(t, "300.5", got[1].Amount.String())
	assert.Equal(t, "3", got[2].UserID)

	_, err = parsePayments("nothing here")
	require.Error(t, err)
	_, err = parsePayments("<@1>=1.005")
	require.Error(t, err)
}

func TestGetCommands(t *testing.T) {
	cmds := GetCommands()
	require.Len(t, cmds, 1)
	assert.Equal(t, "warikan", cmds[0].Name)

	var names []string
	for _, o := range cmds[0].Options {
		names = append(names, o.Name)
	}
	assert.Equal(t, []string{"join", "member", "leave", "split", "undo", "balance", "settle", "paid", "status", "history", "members", "reminder"}, names)
}
