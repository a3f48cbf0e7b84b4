package common

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"fulfillment/internal/appers"

	"github.com/jackc/pgx/v5/pgtype"
)

// Version of the service, reported by the health endpoint.
const Version = "0.1.0"

var (
	// accepted: "123", "123.4", "123,45", "+0.99", "-10", surrounding spaces
	reDec = regexp.MustCompile(`^\s*([+-])?(\d+)(?:[.,](\d+))?\s*$`)

	// NUMERIC(18,2) -> at most 16 integer digits given 2 fractional ones
	maxIntDigits = 16
	maxScale     = 2
)

// NumericFromString2Strict parses a money string into an exact decimal with
// scale <= 2 and up to 16 integer digits. Nothing is rounded: more than two
// fractional digits is an error. An empty or blank string yields an invalid
// pgtype.Numeric (Valid = false) without an error.
func NumericFromString2Strict(s string) (pgtype.Numeric, error) {
	var zero pgtype.Numeric

	s = strings.TrimSpace(s)
	if s == "" {
		return zero, nil // Valid = false, not an error
	}

	m := reDec.FindStringSubmatch(s)
	if m == nil {
		return zero, appers.ErrFormat
	}
	sign := m[1]
	intPart := trimZeros(m[2])
	frac := m[3]

	if len(frac) > maxScale {
		return zero, appers.ErrScale
	}
	if len(intPart) > maxIntDigits {
		return zero, appers.ErrPrecision
	}

	if frac == "" {
		frac = "00"
	} else if len(frac) == 1 {
		frac += "0"
	}
	canonical := sign + intPart + "." + frac

	var n pgtype.Numeric
	if err := n.Scan(canonical); err != nil {
		return zero, err
	}
	return n, nil
}

func NumericToString(n pgtype.Numeric) (string, error) {
	if !n.Valid {
		return "", nil // NULL
	}
	v, err := n.Value()
	if err != nil {
		return "", err
	}
	switch vv := v.(type) {
	case string:
		return vv, nil
	case []byte:
		return string(vv), nil
	case nil:
		return "", nil
	default:
		return fmt.Sprint(vv), nil
	}
}

func trimZeros(s string) string {
	s = strings.TrimLeft(s, "0")
	if s == "" {
		return "0"
	}
	return s
}

func PgInterval(d time.Duration) string {
	sec := int64(d / time.Second)
	return fmt.Sprintf("%d seconds", sec)
}

func NextBackoffWithJitter(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}

	base := time.Second << attempts

	limit := 30 * time.Minute
	if base > limit {
		base = limit
	}

	jitter := time.Duration(rand.Int63n(int64(base / 2)))

	return base/2 + jitter
}

func SleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer func() {
		if !t.Stop() {
			select {
			case <-t.C:
			default:
			}
		}
	}()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
