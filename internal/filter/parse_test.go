package filter

import (
	"errors"
	"testing"
	"time"
)

func TestParseDateAbsolute(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	got, err := ParseDate("2025-01-01", now)
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestParseDateRelative(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		in   string
		days int
	}{
		{"7d", 7},
		{"2w", 14},
		{"3m", 90},
		{"1y", 365},
	}
	for _, c := range cases {
		got, err := ParseDate(c.in, now)
		if err != nil {
			t.Fatalf("ParseDate(%q): %v", c.in, err)
		}
		want := now.AddDate(0, 0, -c.days)
		if !got.Equal(want) {
			t.Fatalf("ParseDate(%q): got %v, want %v", c.in, got, want)
		}
	}
}

func TestParseDateInvalid(t *testing.T) {
	now := time.Now()
	for _, s := range []string{"", "not-a-date", "1-Jan-2025", "2025-13-01", "7x", "d7"} {
		if _, err := ParseDate(s, now); !errors.Is(err, ErrInvalidDate) {
			t.Fatalf("ParseDate(%q): expected ErrInvalidDate, got %v", s, err)
		}
	}
}

func TestParseSize(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"100", 100},
		{"0", 0},
		{"512K", 524288},
		{"1k", 1024},
		{"1M", 1048576},
		{"5m", 5242880},
	}
	for _, c := range cases {
		got, err := ParseSize(c.in)
		if err != nil {
			t.Fatalf("ParseSize(%q): %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("ParseSize(%q): got %d, want %d", c.in, got, c.want)
		}
	}
}

func TestParseSizeInvalid(t *testing.T) {
	for _, s := range []string{"", "abc", "-5", "1G", "K"} {
		if _, err := ParseSize(s); !errors.Is(err, ErrInvalidSize) {
			t.Fatalf("ParseSize(%q): expected ErrInvalidSize, got %v", s, err)
		}
	}
}
