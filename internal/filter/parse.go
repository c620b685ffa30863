package filter

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidDate = errors.New("invalid date")
	ErrInvalidSize = errors.New("invalid size")
)

var relativeDateRe = regexp.MustCompile(`^(\d+)([dwmy])$`)

// ParseDate accepts an absolute YYYY-MM-DD date or a relative shorthand
// like 7d, 2w, 3m, 1y resolved against now. Months count as 30 days and
// years as 365; the shorthand is approximate, not calendar-aware.
func ParseDate(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if m := relativeDateRe.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
		}
		days := n
		switch m[2] {
		case "w":
			days = n * 7
		case "m":
			days = n * 30
		case "y":
			days = n * 365
		}
		return now.AddDate(0, 0, -days), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q (expected YYYY-MM-DD or 7d/2w/3m/1y)", ErrInvalidDate, s)
	}
	return t, nil
}

// ParseSize accepts a byte count with an optional K or M suffix
// (powers of 1024). Lowercase suffixes are accepted too.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	mult := int64(1)
	switch {
	case strings.HasSuffix(s, "K"), strings.HasSuffix(s, "k"):
		mult = 1024
		s = strings.TrimSpace(s[:len(s)-1])
	case strings.HasSuffix(s, "M"), strings.HasSuffix(s, "m"):
		mult = 1024 * 1024
		s = strings.TrimSpace(s[:len(s)-1])
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q (expected bytes with optional K/M suffix)", ErrInvalidSize, s)
	}
	return n * mult, nil
}
