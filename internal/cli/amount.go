package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned for input that is not a whole positive amount.
var ErrInvalidAmount = errors.New("invalid amount")

// amount suffixes, longest first
var multipliers = []struct {
	suffix string
	factor int64
}{
	{"jt", 1_000_000},
	{"rb", 1_000},
	{"k", 1_000},
}

// ParseAmount reads an amount in whole currency units. It accepts plain
// digits with "." "," "_" or space as thousand separators ("150.000"), an
// optional "Rp" prefix, and the shorthands "rb"/"k" for thousands and "jt"
// for millions, where a single "," or "." is a decimal separator ("1,5jt").
func ParseAmount(s string) (int64, error) {
	in := strings.ToLower(strings.TrimSpace(s))
	in = strings.TrimSpace(strings.TrimPrefix(in, "rp"))
	if in == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}

	for _, m := range multipliers {
		if !strings.HasSuffix(in, m.suffix) {
			continue
		}
		num := strings.TrimSpace(strings.TrimSuffix(in, m.suffix))
		d, err := decimal.NewFromString(strings.Replace(num, ",", ".", 1))
		if err != nil || d.IsNegative() {
			return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
		}
		d = d.Mul(decimal.NewFromInt(m.factor))
		if !d.IsInteger() {
			return 0, fmt.Errorf("%w: %q is not a whole amount", ErrInvalidAmount, s)
		}
		return d.IntPart(), nil
	}

	digits := strings.NewReplacer(".", "", ",", "", "_", "", " ", "").Replace(in)
	if digits == "" || strings.Trim(digits, "0123456789") != "" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	d, err := decimal.NewFromString(digits)
	if err != nil || !d.LessThanOrEqual(decimal.NewFromInt(1<<62)) {
		return 0, fmt.Errorf("%w: %q is out of range", ErrInvalidAmount, s)
	}
	return d.IntPart(), nil
}

// ParseMonth reads YYYY-MM and returns its year and month strings.
func ParseMonth(s string) (year, month string, err error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return "", "", fmt.Errorf("invalid month %q (expected YYYY-MM)", s)
	}
	return t.Format("2006"), t.Format("01"), nil
}
