package common

import (
	"context"
	"testing"
	"time"

	"fulfillment/internal/appers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumericFromString2Strict(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		wantErr error
		valid   bool
	}{
		{name: "integer", in: "123", valid: true},
		{name: "one fractional digit", in: "123.4", valid: true},
		{name: "two fractional digits", in: "123.45", valid: true},
		{name: "comma separator", in: "123,45", valid: true},
		{name: "plus sign", in: "+0.99", valid: true},
		{name: "minus sign", in: "-10", valid: true},
		{name: "surrounding spaces", in: "  15.00  ", valid: true},
		{name: "empty is null not error", in: "", valid: false},
		{name: "blank is null not error", in: "   ", valid: false},
		{name: "three fractional digits", in: "1.234", wantErr: appers.ErrScale},
		{name: "too many integer digits", in: "12345678901234567", wantErr: appers.ErrPrecision},
		{name: "garbage", in: "abc", wantErr: appers.ErrFormat},
		{name: "two dots", in: "1.2.3", wantErr: appers.ErrFormat},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			n, err := NumericFromString2Strict(tt.in)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.valid, n.Valid)
		})
	}
}

func TestNumericRoundTrip(t *testing.T) {
	t.Parallel()

	n, err := NumericFromString2Strict("99.9")
	require.NoError(t, err)

	s, err := NumericToString(n)
	require.NoError(t, err)
	assert.Equal(t, "99.90", s)
}

func TestPgInterval(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "30 seconds", PgInterval(30*time.Second))
	assert.Equal(t, "90 seconds", PgInterval(90*time.Second))
	assert.Equal(t, "0 seconds", PgInterval(500*time.Millisecond))
}

func TestNextBackoffWithJitter(t *testing.T) {
	t.Parallel()

	for attempts := 0; attempts < 25; attempts++ {
		d := NextBackoffWithJitter(attempts)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 30*time.Minute)
	}

	// negative attempts are clamped
	assert.Greater(t, NextBackoffWithJitter(-1), time.Duration(0))
}

func TestSleepCtx(t *testing.T) {
	t.Parallel()

	require.NoError(t, SleepCtx(context.Background(), 0))
	require.NoError(t, SleepCtx(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, SleepCtx(ctx, time.Hour), context.Canceled)
}
