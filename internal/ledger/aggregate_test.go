package ledger

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func amt(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func split(p, paid, owed string) Split[string] {
	return Split[string]{Participant: p, Paid: amt(paid), Owed: amt(owed)}
}

func assertBalances(t *testing.T, want map[string]string, got Balances[string]) {
	t.Helper()
	require.Len(t, got, len(want))
	for p, v := range want {
		g, ok := got[p]
		require.True(t, ok, "missing participant %s", p)
		assert.True(t, g.Equal(amt(v)), "%s: got %s want %s", p, g, v)
	}
}

func TestAggregateSimpleExpense(t *testing.T) {
	got, err := Aggregate([]Split[string]{
		split("A", "0", "200"),
		split("B", "200", "0"),
	}, NewScope("A", "B"))
	require.NoError(t, err)
	assertBalances(t, map[string]string{"A": "-200", "B": "200"}, got)
}

func TestAggregateKeepsSettledParticipants(t *testing.T) {
	got, err := Aggregate([]Split[string]{
		split("alice", "300", "150"),
		split("bob", "0", "150"),
		split("carol", "50", "50"),
	}, NewScope("alice", "bob", "carol", "dave"))
	require.NoError(t, err)
	assertBalances(t, map[string]string{
		"alice": "150",
		"bob":   "-150",
		"carol": "0",
		"dave":  "0",
	}, got)
}

func TestAggregateAcrossExpenses(t *testing.T) {
	splits := []Split[string]{
		// dinner 900 paid by alice, split three ways
		split("alice", "900", "300"),
		split("bob", "0", "300"),
		split("carol", "0", "300"),
		// taxi 100.01 paid by bob
		split("bob", "100.01", "33.34"),
		split("alice", "0", "33.34"),
		split("carol", "0", "33.33"),
	}
	got, err := Aggregate(splits, NewScope("alice", "bob", "carol"))
	require.NoError(t, err)
	assertBalances(t, map[string]string{
		"alice": "566.66",
		"bob":   "-233.33",
		"carol": "-333.33",
	}, got)
	assert.True(t, got.Sum().IsZero())
}

func TestAggregateNilScopeAcceptsEveryone(t *testing.T) {
	got, err := Aggregate([]Split[string]{
		split("x", "10", "0"),
		split("y", "0", "10"),
	}, nil)
	require.NoError(t, err)
	assertBalances(t, map[string]string{"x": "10", "y": "-10"}, got)
}

func TestAggregateRejectsNegativeAmounts(t *testing.T) {
	tests := []struct {
		name   string
		splits []Split[string]
	}{
		{name: "negative paid", splits: []Split[string]{split("A", "-1", "0"), split("B", "0", "-1")}},
		{name: "negative owed", splits: []Split[string]{split("A", "1", "0"), split("B", "0", "-1")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Aggregate(tt.splits, NewScope("A", "B"))
			require.ErrorIs(t, err, ErrValidation)
			assert.Nil(t, got)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Contains(t, verr.Reason, "negative")
		})
	}
}

func TestAggregateRejectsParticipantsOutsideScope(t *testing.T) {
	got, err := Aggregate([]Split[string]{
		split("A", "30", "10"),
		split("zed", "0", "10"),
		split("mallory", "0", "5"),
		split("zed", "0", "5"),
	}, NewScope("A", "B"))
	require.ErrorIs(t, err, ErrScopeMismatch)
	assert.Nil(t, got)

	var serr *ScopeMismatchError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, []string{"mallory", "zed"}, serr.Participants)
}

func TestAggregateRejectsUnbalancedSplits(t *testing.T) {
	_, err := Aggregate([]Split[string]{
		split("A", "100", "0"),
		split("B", "0", "90"),
	}, NewScope("A", "B"))
	require.ErrorIs(t, err, ErrValidation)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.Discrepancy.Equal(amt("10")))
}

func TestAggregateIsOrderIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	members := []string{"a", "b", "c", "d", "e"}

	var splits []Split[string]
	for e := 0; e < 20; e++ {
		total := decimal.New(rng.Int63n(100000)+1, -2)
		payer := members[rng.Intn(len(members))]
		share := total.Div(decimal.NewFromInt(int64(len(members)))).RoundFloor(2)
		rest := total.Sub(share.Mul(decimal.NewFromInt(int64(len(members) - 1))))
		for i, m := range members {
			s := Split[string]{Participant: m, Paid: decimal.Zero, Owed: share}
			if i == 0 {
				s.Owed = rest
			}
			if m == payer {
				s.Paid = total
			}
			splits = append(splits, s)
		}
	}

	want, err := Aggregate(splits, NewScope(members...))
	require.NoError(t, err)
	assert.True(t, want.Sum().IsZero())

	for round := 0; round < 10; round++ {
		shuffled := append([]Split[string](nil), splits...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		got, err := Aggregate(shuffled, NewScope(members...))
		require.NoError(t, err)
		require.Len(t, got, len(want))
		for p, v := range want {
			assert.True(t, got[p].Equal(v), "round %d participant %s", round, p)
		}
	}
}

func TestBalancesHelpers(t *testing.T) {
	b := Balances[string]{"c": amt("1"), "a": amt("-1"), "b": amt("0")}
	assert.Equal(t, []string{"a", "b", "c"}, b.Participants())
	assert.True(t, b.Sum().IsZero())
	assert.False(t, b.Settled())

	clone := b.Clone()
	clone["a"] = amt("0")
	assert.True(t, b["a"].Equal(amt("-1")))

	assert.True(t, Balances[string]{"x": amt("0")}.Settled())
}

func TestScopeContains(t *testing.T) {
	var open Scope[int]
	assert.True(t, open.Contains(42))

	s := NewScope(1, 2)
	assert.True(t, s.Contains(2))
	assert.False(t, s.Contains(3))
}
