package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr error
	}{
		{name: "integer", in: "1200", want: "1200"},
		{name: "one fractional digit", in: "12.5", want: "12.5"},
		{name: "thousands separator", in: " 1,200.50 ", want: "1200.5"},
		{name: "negative", in: "-3.10", want: "-3.1"},
		{name: "empty", in: "  ", wantErr: ErrInvalidAmount},
		{name: "garbage", in: "twelve", wantErr: ErrInvalidAmount},
		{name: "too precise", in: "0.001", wantErr: ErrTooPrecise},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(d(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestParsePositive(t *testing.T) {
	_, err := ParsePositive("0")
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = ParsePositive("-1")
	require.ErrorIs(t, err, ErrInvalidAmount)

	got, err := ParsePositive("0.01")
	require.NoError(t, err)
	assert.Equal(t, "0.01", Format(got))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "600.00", Format(d("600")))
	assert.Equal(t, "-0.50", Format(d("-0.5")))
}

func TestMin(t *testing.T) {
	assert.True(t, Min(d("2"), d("3")).Equal(d("2")))
	assert.True(t, Min(d("3"), d("2")).Equal(d("2")))
}

func TestAllocate(t *testing.T) {
	tests := []struct {
		name    string
		total   string
		weights []string
		want    []string
	}{
		{
			name:    "even split",
			total:   "300",
			weights: []string{"1", "1", "1"},
			want:    []string{"100", "100", "100"},
		},
		{
			name:    "leftover cent goes to first",
			total:   "100",
			weights: []string{"1", "1", "1"},
			want:    []string{"33.34", "33.33", "33.33"},
		},
		{
			name:    "two leftover cents",
			total:   "0.05",
			weights: []string{"1", "1", "1"},
			want:    []string{"0.02", "0.02", "0.01"},
		},
		{
			name:    "weighted",
			total:   "1000",
			weights: []string{"2", "1", "1"},
			want:    []string{"500", "250", "250"},
		},
		{
			name:    "largest remainder wins",
			total:   "10",
			weights: []string{"1", "2"},
			want:    []string{"3.33", "6.67"},
		},
		{
			name:    "zero weight owes nothing",
			total:   "10",
			weights: []string{"1", "0", "2"},
			want:    []string{"3.33", "0", "6.67"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			weights := make([]decimal.Decimal, len(tt.weights))
			for i, w := range tt.weights {
				weights[i] = d(w)
			}
			got, err := Allocate(d(tt.total), weights)
			require.NoError(t, err)
			require.Len(t, got, len(tt.want))

			sum := decimal.Zero
			for i := range got {
				assert.True(t, got[i].Equal(d(tt.want[i])), "part %d: got %s want %s", i, got[i], tt.want[i])
				sum = sum.Add(got[i])
			}
			assert.True(t, sum.Equal(d(tt.total)), "parts sum to %s", sum)
		})
	}
}

func TestAllocateErrors(t *testing.T) {
	_, err := Allocate(d("10"), nil)
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = Allocate(d("10"), []decimal.Decimal{d("0"), d("0")})
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = Allocate(d("10"), []decimal.Decimal{d("1"), d("-1")})
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = Allocate(d("10.001"), []decimal.Decimal{d("1")})
	require.ErrorIs(t, err, ErrTooPrecise)
}
