package expense

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/susu3304/warikan/internal/ledger"
)

func amt(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func one() decimal.Decimal { return decimal.NewFromInt(1) }

type row struct {
	who, paid, owed string
}

func assertSplits(t *testing.T, want []row, got []ledger.Split[string]) {
	t.Helper()
	require.Len(t, got, len(want))
	for i, w := range want {
		assert.Equal(t, w.who, got[i].Participant)
		assert.True(t, got[i].Paid.Equal(amt(w.paid)), "%s paid: got %s want %s", w.who, got[i].Paid, w.paid)
		assert.True(t, got[i].Owed.Equal(amt(w.owed)), "%s owed: got %s want %s", w.who, got[i].Owed, w.owed)
	}
}

func TestEqualSplitCreatorPays(t *testing.T) {
	got, err := Equal("me", amt("500"), "me", "user1").Splits()
	require.NoError(t, err)
	assertSplits(t, []row{
		{"me", "500", "250"},
		{"user1", "0", "250"},
	}, got)
}

func TestEqualSplitRemainderIsExact(t *testing.T) {
	got, err := Equal("alice", amt("100"), "alice", "bob", "carol").Splits()
	require.NoError(t, err)
	assertSplits(t, []row{
		{"alice", "100", "33.34"},
		{"bob", "0", "33.33"},
		{"carol", "0", "33.33"},
	}, got)

	bal, err := ledger.Aggregate(got, ledger.NewScope("alice", "bob", "carol"))
	require.NoError(t, err)
	assert.True(t, bal.Sum().IsZero())
}

func TestPayerWithoutShare(t *testing.T) {
	got, err := Equal("treasurer", amt("90"), "a", "b", "c").Splits()
	require.NoError(t, err)
	assertSplits(t, []row{
		{"treasurer", "90", "0"},
		{"a", "0", "30"},
		{"b", "0", "30"},
		{"c", "0", "30"},
	}, got)
}

func TestExplicitPayments(t *testing.T) {
	in := Input{
		Total: amt("1000"),
		Payments: []Payment{
			{UserID: "me", Amount: amt("400")},
			{UserID: "user1", Amount: amt("350")},
			{UserID: "user2", Amount: amt("250")},
		},
		Shares: []Share{
			{UserID: "me", Weight: one()},
			{UserID: "user1", Weight: one()},
			{UserID: "user2", Weight: one()},
		},
	}
	got, err := in.Splits()
	require.NoError(t, err)
	assertSplits(t, []row{
		{"me", "400", "333.34"},
		{"user1", "350", "333.33"},
		{"user2", "250", "333.33"},
	}, got)
}

func TestWeightedShares(t *testing.T) {
	in := Input{
		Total:     amt("6000"),
		CreatedBy: "boss",
		Shares: []Share{
			{UserID: "boss", Weight: amt("2")},
			{UserID: "a", Weight: one()},
			{UserID: "b", Weight: one()},
			{UserID: "a", Weight: one()},
		},
	}
	got, err := in.Splits()
	require.NoError(t, err)
	assertSplits(t, []row{
		{"boss", "6000", "2400"},
		{"a", "0", "2400"},
		{"b", "0", "1200"},
	}, got)
}

func TestPaymentsMustAddUp(t *testing.T) {
	in := Input{
		Total: amt("500"),
		Payments: []Payment{
			{UserID: "me", Amount: amt("200")},
			{UserID: "jkdey05", Amount: amt("250")},
		},
		Shares: []Share{{UserID: "me", Weight: one()}, {UserID: "jkdey05", Weight: one()}},
	}
	_, err := in.Splits()
	require.ErrorIs(t, err, ErrInvalid)

	var merr *MismatchError
	require.True(t, errors.As(err, &merr))
	assert.True(t, merr.Paid.Equal(amt("450")))
	assert.Contains(t, err.Error(), "difference 50.00")
	assert.Contains(t, err.Error(), "jkdey05 paid 250.00")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		in   Input
	}{
		{name: "zero total", in: Equal("a", amt("0"), "a", "b")},
		{name: "negative total", in: Equal("a", amt("-5"), "a", "b")},
		{name: "sub-cent total", in: Equal("a", amt("1.005"), "a", "b")},
		{name: "single participant", in: Equal("a", amt("10"), "a")},
		{name: "no sharers", in: Input{Total: amt("10"), Payments: []Payment{{UserID: "a", Amount: amt("5")}, {UserID: "b", Amount: amt("5")}}}},
		{name: "nobody paid", in: Input{Total: amt("10"), Shares: []Share{{UserID: "a", Weight: one()}, {UserID: "b", Weight: one()}}}},
		{name: "negative payment", in: Input{
			Total:    amt("10"),
			Payments: []Payment{{UserID: "a", Amount: amt("15")}, {UserID: "b", Amount: amt("-5")}},
			Shares:   []Share{{UserID: "a", Weight: one()}},
		}},
		{name: "negative weight", in: Input{
			Total:     amt("10"),
			CreatedBy: "a",
			Shares:    []Share{{UserID: "a", Weight: one()}, {UserID: "b", Weight: amt("-1")}},
		}},
		{name: "all weights zero", in: Input{
			Total:     amt("10"),
			CreatedBy: "a",
			Shares:    []Share{{UserID: "a", Weight: decimal.Zero}, {UserID: "b", Weight: decimal.Zero}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, tt.in.Validate(), ErrInvalid)
			_, err := tt.in.Splits()
			require.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestParticipants(t *testing.T) {
	in := Input{
		Total:    amt("10"),
		Payments: []Payment{{UserID: "b", Amount: amt("10")}},
		Shares:   []Share{{UserID: "a", Weight: one()}, {UserID: "b", Weight: one()}, {UserID: "a", Weight: one()}},
	}
	assert.Equal(t, []string{"b", "a"}, in.Participants())
}

func TestSettlement(t *testing.T) {
	got, err := Settlement("bob", "alice", amt("150"))
	require.NoError(t, err)
	assertSplits(t, []row{
		{"bob", "150", "0"},
		{"alice", "0", "150"},
	}, got)

	bal, err := ledger.Aggregate(got, nil)
	require.NoError(t, err)
	assert.True(t, bal["bob"].Equal(amt("150")))
	assert.True(t, bal["alice"].Equal(amt("-150")))

	_, err = Settlement("bob", "bob", amt("1"))
	require.ErrorIs(t, err, ErrInvalid)
	_, err = Settlement("bob", "alice", amt("0"))
	require.ErrorIs(t, err, ErrInvalid)
	_, err = Settlement("bob", "alice", amt("0.001"))
	require.ErrorIs(t, err, ErrInvalid)
}
