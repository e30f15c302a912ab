package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/susu3304/warikan/internal/db"
	"github.com/susu3304/warikan/internal/expense"
	"github.com/susu3304/warikan/internal/group"
	"github.com/susu3304/warikan/internal/ledger"
	"github.com/susu3304/warikan/internal/money"
	"github.com/susu3304/warikan/internal/settlement"
	"go.uber.org/zap"
)

type groupKey struct{}

func groupFrom(ctx context.Context) *db.Group {
	g, _ := ctx.Value(groupKey{}).(*db.Group)
	return g
}

type guildJSON struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Groups int    `json:"groups"`
}

type groupJSON struct {
	ID        int64     `json:"id"`
	GuildID   string    `json:"guild_id"`
	ChannelID string    `json:"channel_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type memberJSON struct {
	UserID   string    `json:"user_id"`
	Username string    `json:"username"`
	JoinedAt time.Time `json:"joined_at"`
}

type splitJSON struct {
	UserID string `json:"user_id"`
	Paid   string `json:"paid"`
	Owed   string `json:"owed"`
}

type expenseJSON struct {
	ID          int64       `json:"id"`
	Kind        string      `json:"kind"`
	Total       string      `json:"total"`
	Description string      `json:"description"`
	CreatedBy   string      `json:"created_by"`
	CreatedAt   time.Time   `json:"created_at"`
	Splits      []splitJSON `json:"splits"`
}

type balanceJSON struct {
	UserID string `json:"user_id"`
	Amount string `json:"amount"`
}

type transactionJSON struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type planJSON struct {
	GroupID      int64             `json:"group_id"`
	Balances     []balanceJSON     `json:"balances"`
	Transactions []transactionJSON `json:"transactions"`
}

type summaryJSON struct {
	GroupID          int64  `json:"group_id"`
	ExpenseCount     int    `json:"expense_count"`
	SettlementCount  int    `json:"settlement_count"`
	TotalSpent       string `json:"total_spent"`
	AverageExpense   string `json:"average_expense"`
	ParticipantCount int    `json:"participant_count"`
	PendingTasks     int    `json:"pending_tasks"`
}

// addExpenseRequest describes a new expense. Participants is an equal
// split; Shares gives explicit weights and wins over Participants. Without
// Payments the whole total is paid by PaidBy, or by the caller.
type addExpenseRequest struct {
	Total        string   `json:"total"`
	Description  string   `json:"description"`
	PaidBy       string   `json:"paid_by"`
	Participants []string `json:"participants"`
	Payments     []struct {
		UserID string `json:"user_id"`
		Amount string `json:"amount"`
	} `json:"payments"`
	Shares []struct {
		UserID string `json:"user_id"`
		Weight string `json:"weight"`
	} `json:"shares"`
}

type settlementRequest struct {
	PayerID string `json:"payer_id"`
	PayeeID string `json:"payee_id"`
	Amount  string `json:"amount"`
	Memo    string `json:"memo"`
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Protected handlers
func (a *API) handleUserGuilds(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	guilds, err := a.fetchGuilds(r.Context(), claims.AccessToken)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to get guilds: %v", err), http.StatusBadGateway)
		return
	}

	// only guilds that have at least one group
	out := []guildJSON{}
	for _, g := range guilds {
		groups, err := a.svc.GroupsByGuild(r.Context(), g.ID)
		if err != nil {
			a.writeError(w, err)
			return
		}
		if len(groups) > 0 {
			out = append(out, guildJSON{ID: g.ID, Name: g.Name, Groups: len(groups)})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// guildGroups checks the caller can see guild_id and returns its groups.
func (a *API) guildGroups(w http.ResponseWriter, r *http.Request) ([]db.Group, bool) {
	guildID := mux.Vars(r)["guild_id"]
	if !a.checkGuildAccess(w, r, guildID) {
		return nil, false
	}
	groups, err := a.svc.GroupsByGuild(r.Context(), guildID)
	if err != nil {
		a.writeError(w, err)
		return nil, false
	}
	return groups, true
}

func (a *API) handleGuildGroups(w http.ResponseWriter, r *http.Request) {
	groups, ok := a.guildGroups(w, r)
	if !ok {
		return
	}
	out := make([]groupJSON, len(groups))
	for i, g := range groups {
		out[i] = toGroupJSON(&g)
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleGuildPlans(w http.ResponseWriter, r *http.Request) {
	groups, ok := a.guildGroups(w, r)
	if !ok {
		return
	}
	ids := make([]int64, len(groups))
	for i, g := range groups {
		ids[i] = g.ID
	}
	plans, err := a.svc.PlanMany(r.Context(), ids)
	if err != nil {
		a.writeError(w, err)
		return
	}
	out := make([]planJSON, len(plans))
	for i, p := range plans {
		out[i] = toPlanJSON(p)
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) checkGuildAccess(w http.ResponseWriter, r *http.Request, guildID string) bool {
	claims := claimsFrom(r.Context())
	ok, err := a.userHasGuildAccess(r.Context(), claims.AccessToken, guildID)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to get guilds: %v", err), http.StatusBadGateway)
		return false
	}
	if !ok {
		http.Error(w, "forbidden", http.StatusForbidden)
		return false
	}
	return true
}

// groupMiddleware loads group_id and rejects callers outside its guild.
func (a *API) groupMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := pathInt64(r, "group_id")
		if err != nil {
			http.Error(w, "invalid group_id", http.StatusBadRequest)
			return
		}
		g, err := a.svc.Group(r.Context(), id)
		if err != nil {
			a.writeError(w, err)
			return
		}
		if !a.checkGuildAccess(w, r, g.GuildID) {
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), groupKey{}, g)))
	})
}

func (a *API) handleMembers(w http.ResponseWriter, r *http.Request) {
	members, err := a.svc.Members(r.Context(), groupFrom(r.Context()).ID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	out := make([]memberJSON, len(members))
	for i, m := range members {
		out[i] = memberJSON{UserID: m.UserID, Username: m.Username, JoinedAt: m.JoinedAt}
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	list, err := a.svc.Expenses(r.Context(), groupFrom(r.Context()).ID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	out := make([]expenseJSON, len(list))
	for i, e := range list {
		splits := make([]splitJSON, len(e.Splits))
		for j, sp := range e.Splits {
			splits[j] = splitJSON{UserID: sp.UserID, Paid: money.Format(sp.Paid), Owed: money.Format(sp.Owed)}
		}
		out[i] = expenseJSON{
			ID:          e.ID,
			Kind:        string(e.Kind),
			Total:       money.Format(e.Total),
			Description: e.Description,
			CreatedBy:   e.CreatedBy,
			CreatedAt:   e.CreatedAt,
			Splits:      splits,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleAddExpense(w http.ResponseWriter, r *http.Request) {
	var req addExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	in, err := req.input(claimsFrom(r.Context()).UserID)
	if err != nil {
		a.writeError(w, err)
		return
	}

	id, err := a.svc.AddExpense(r.Context(), groupFrom(r.Context()).ID, in)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (req addExpenseRequest) input(caller string) (expense.Input, error) {
	total, err := money.ParsePositive(req.Total)
	if err != nil {
		return expense.Input{}, err
	}
	in := expense.Input{Total: total, Description: req.Description, CreatedBy: caller}

	for _, p := range req.Payments {
		amount, err := money.Parse(p.Amount)
		if err != nil {
			return expense.Input{}, fmt.Errorf("payment by %s: %w", p.UserID, err)
		}
		in.Payments = append(in.Payments, expense.Payment{UserID: p.UserID, Amount: amount})
	}
	if len(in.Payments) == 0 && req.PaidBy != "" {
		in.Payments = []expense.Payment{{UserID: req.PaidBy, Amount: total}}
	}

	if len(req.Shares) > 0 {
		for _, s := range req.Shares {
			weight, err := decimal.NewFromString(s.Weight)
			if err != nil {
				return expense.Input{}, fmt.Errorf("%w: weight for %s: %q", expense.ErrInvalid, s.UserID, s.Weight)
			}
			in.Shares = append(in.Shares, expense.Share{UserID: s.UserID, Weight: weight})
		}
		return in, nil
	}
	for _, id := range req.Participants {
		in.Shares = append(in.Shares, expense.Share{UserID: id, Weight: decimal.NewFromInt(1)})
	}
	return in, nil
}

func (a *API) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	expenseID, err := pathInt64(r, "expense_id")
	if err != nil {
		http.Error(w, "invalid expense_id", http.StatusBadRequest)
		return
	}
	if err := a.svc.DeleteExpense(r.Context(), groupFrom(r.Context()).ID, expenseID); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleBalances(w http.ResponseWriter, r *http.Request) {
	bal, err := a.svc.Balances(r.Context(), groupFrom(r.Context()).ID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalancesJSON(bal))
}

func (a *API) handleSimplify(w http.ResponseWriter, r *http.Request) {
	plan, err := a.svc.Plan(r.Context(), groupFrom(r.Context()).ID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPlanJSON(plan))
}

func (a *API) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := a.svc.Summary(r.Context(), groupFrom(r.Context()).ID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaryJSON{
		GroupID:          sum.GroupID,
		ExpenseCount:     sum.ExpenseCount,
		SettlementCount:  sum.SettlementCount,
		TotalSpent:       money.Format(sum.TotalSpent),
		AverageExpense:   money.Format(sum.AverageExpense),
		ParticipantCount: sum.ParticipantCount,
		PendingTasks:     sum.PendingTasks,
	})
}

func (a *API) handleRecordSettlement(w http.ResponseWriter, r *http.Request) {
	var req settlementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	amount, err := money.ParsePositive(req.Amount)
	if err != nil {
		a.writeError(w, err)
		return
	}

	caller := claimsFrom(r.Context()).UserID
	payer := req.PayerID
	if payer == "" {
		payer = caller
	}
	remaining, err := a.svc.RecordPayment(r.Context(), groupFrom(r.Context()).ID, payer, req.PayeeID, amount, caller, req.Memo)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"remaining": money.Format(remaining)})
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	var (
		scopeErr *ledger.ScopeMismatchError
		validErr *ledger.ValidationError
	)
	switch {
	case errors.As(err, &scopeErr):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":        err.Error(),
			"participants": scopeErr.Participants,
		})
	case errors.Is(err, expense.ErrInvalid),
		errors.Is(err, money.ErrInvalidAmount),
		errors.Is(err, money.ErrTooPrecise):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	case errors.Is(err, group.ErrGroupNotFound), errors.Is(err, db.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, db.ErrSettlementEntry):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.As(err, &validErr):
		a.logger.Error("ledger does not balance", zap.Error(err), zap.String("discrepancy", validErr.Discrepancy.String()))
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":       err.Error(),
			"discrepancy": money.Format(validErr.Discrepancy),
		})
	default:
		a.logger.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func toGroupJSON(g *db.Group) groupJSON {
	return groupJSON{ID: g.ID, GuildID: g.GuildID, ChannelID: g.ChannelID, Name: g.Name, CreatedAt: g.CreatedAt}
}

func toBalancesJSON(bal ledger.Balances[string]) []balanceJSON {
	out := make([]balanceJSON, 0, len(bal))
	for _, id := range bal.Participants() {
		out = append(out, balanceJSON{UserID: id, Amount: money.Format(bal[id])})
	}
	return out
}

func toPlanJSON(p *group.Plan) planJSON {
	txs := make([]transactionJSON, len(p.Transactions))
	for i, t := range p.Transactions {
		txs[i] = toTransactionJSON(t)
	}
	return planJSON{GroupID: p.GroupID, Balances: toBalancesJSON(p.Balances), Transactions: txs}
}

func toTransactionJSON(t settlement.Transaction[string]) transactionJSON {
	return transactionJSON{From: t.From, To: t.To, Amount: money.Format(t.Amount)}
}
