package main

import (
	"errors"
	"fmt"
	"slices"

	"github.com/pterm/pterm"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/susu3304/warikan/internal/config"
	"github.com/susu3304/warikan/internal/expense"
	"github.com/susu3304/warikan/internal/ledger"
	"github.com/susu3304/warikan/internal/money"
	"github.com/susu3304/warikan/internal/settlement"
	"go.uber.org/zap"
)

// planFile is the offline input of `warikan plan`. It holds either
// expenses or raw balances, never both. Without members every participant
// is accepted.
type planFile struct {
	Members   []string      `mapstructure:"members"`
	Expenses  []planExpense `mapstructure:"expenses"`
	Balances  []planAmount  `mapstructure:"balances"`
	Tolerance string        `mapstructure:"tolerance"`
}

type planExpense struct {
	Description  string       `mapstructure:"description"`
	Total        string       `mapstructure:"total"`
	PaidBy       string       `mapstructure:"paid_by"`
	Participants []string     `mapstructure:"participants"`
	Payments     []planAmount `mapstructure:"payments"`
	Shares       []planShare  `mapstructure:"shares"`
}

type planAmount struct {
	User   string `mapstructure:"user"`
	Amount string `mapstructure:"amount"`
}

type planShare struct {
	User   string `mapstructure:"user"`
	Weight string `mapstructure:"weight"`
}

type planResult struct {
	Balances     ledger.Balances[string]
	Transactions []settlement.Transaction[string]
}

func newPlanCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Plan the payments for a local expense file",
		Long: `Plan the payments that settle a set of expenses or balances described
in a YAML (or JSON/TOML) file, without touching the database.`,
		Example: `  # members plus expenses
  warikan plan -f trip.yaml

  # trip.yaml
  members: [alice, bob, carol]
  expenses:
    - description: dinner
      total: 900
      paid_by: alice
      participants: [alice, bob, carol]`,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, logger, err := setup(config.ModePlan)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			f, err := loadPlanFile(file)
			if err != nil {
				return err
			}
			res, err := f.compute()
			if err != nil {
				return err
			}
			logger.Debug("plan computed",
				zap.String("file", file),
				zap.Int("members", len(res.Balances)),
				zap.Int("transactions", len(res.Transactions)),
			)
			return renderPlan(res)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "plan file to read")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func loadPlanFile(path string) (*planFile, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}
	var f planFile
	if err := v.Unmarshal(&f); err != nil {
		return nil, fmt.Errorf("unable to decode plan file: %w", err)
	}
	return &f, nil
}

func (f *planFile) compute() (*planResult, error) {
	tolerance := settlement.DefaultTolerance
	if f.Tolerance != "" {
		t, err := decimal.NewFromString(f.Tolerance)
		if err != nil || t.IsNegative() {
			return nil, fmt.Errorf("invalid tolerance %q", f.Tolerance)
		}
		tolerance = t
	}

	var scope ledger.Scope[string]
	if len(f.Members) > 0 {
		scope = ledger.NewScope(f.Members...)
	}

	var (
		balances ledger.Balances[string]
		err      error
	)
	switch {
	case len(f.Expenses) > 0 && len(f.Balances) > 0:
		return nil, errors.New("plan file must list either expenses or balances, not both")
	case len(f.Balances) > 0:
		balances, err = f.rawBalances(scope)
	default:
		balances, err = f.aggregate(scope)
	}
	if err != nil {
		return nil, err
	}

	txs, err := settlement.SimplifyWithTolerance(balances, tolerance)
	if err != nil {
		return nil, err
	}
	return &planResult{Balances: balances, Transactions: txs}, nil
}

func (f *planFile) aggregate(scope ledger.Scope[string]) (ledger.Balances[string], error) {
	var splits []ledger.Split[string]
	for i, e := range f.Expenses {
		in, err := e.input()
		if err != nil {
			return nil, fmt.Errorf("expense %d: %w", i+1, err)
		}
		s, err := in.Splits()
		if err != nil {
			return nil, fmt.Errorf("expense %d: %w", i+1, err)
		}
		splits = append(splits, s...)
	}
	return ledger.Aggregate(splits, scope)
}

func (f *planFile) rawBalances(scope ledger.Scope[string]) (ledger.Balances[string], error) {
	out := make(ledger.Balances[string], len(scope))
	for p := range scope {
		out[p] = decimal.Zero
	}
	var outside []string
	for _, b := range f.Balances {
		amount, err := money.Parse(b.Amount)
		if err != nil {
			return nil, fmt.Errorf("balance of %s: %w", b.User, err)
		}
		if !scope.Contains(b.User) {
			outside = append(outside, b.User)
			continue
		}
		out[b.User] = out[b.User].Add(amount)
	}
	if len(outside) > 0 {
		slices.Sort(outside)
		return nil, &ledger.ScopeMismatchError{Participants: slices.Compact(outside)}
	}
	return out, nil
}

func (e planExpense) input() (expense.Input, error) {
	total, err := money.ParsePositive(e.Total)
	if err != nil {
		return expense.Input{}, err
	}
	in := expense.Input{Total: total, Description: e.Description, CreatedBy: e.PaidBy}
	for _, p := range e.Payments {
		amount, err := money.Parse(p.Amount)
		if err != nil {
			return expense.Input{}, fmt.Errorf("payment by %s: %w", p.User, err)
		}
		in.Payments = append(in.Payments, expense.Payment{UserID: p.User, Amount: amount})
	}
	for _, s := range e.Shares {
		w, err := decimal.NewFromString(s.Weight)
		if err != nil {
			return expense.Input{}, fmt.Errorf("%w: weight for %s: %q", expense.ErrInvalid, s.User, s.Weight)
		}
		in.Shares = append(in.Shares, expense.Share{UserID: s.User, Weight: w})
	}
	if len(in.Shares) == 0 {
		for _, id := range e.Participants {
			in.Shares = append(in.Shares, expense.Share{UserID: id, Weight: decimal.NewFromInt(1)})
		}
	}
	return in, nil
}

func renderPlan(res *planResult) error {
	pterm.DefaultSection.Println("Balances")
	balanceData := pterm.TableData{{"Member", "Balance"}}
	for _, id := range res.Balances.Participants() {
		v := res.Balances[id]
		amount := money.Format(v)
		switch v.Sign() {
		case 1:
			amount = pterm.Green("+" + amount)
		case -1:
			amount = pterm.Red(amount)
		}
		balanceData = append(balanceData, []string{id, amount})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(balanceData).Render(); err != nil {
		return err
	}

	pterm.DefaultSection.Println("Payments")
	if len(res.Transactions) == 0 {
		pterm.Success.Println("Everyone is settled up")
		return nil
	}
	txData := pterm.TableData{{"#", "From", "To", "Amount"}}
	for i, tx := range res.Transactions {
		txData = append(txData, []string{fmt.Sprint(i + 1), tx.From, tx.To, money.Format(tx.Amount)})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(txData).Render(); err != nil {
		return err
	}
	pterm.Info.Printf("%d payments, %s in total\n", len(res.Transactions), money.Format(settlement.Total(res.Transactions)))
	return nil
}
