package filter

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func mustQuote(t *testing.T, s string) string {
	t.Helper()
	q, err := Quote(s)
	if err != nil {
		t.Fatalf("Quote(%q): %v", s, err)
	}
	return q
}

// unquote reverses Quote for round-trip checks.
func unquote(t *testing.T, q string) string {
	t.Helper()
	if len(q) < 2 || q[0] != '"' || q[len(q)-1] != '"' {
		t.Fatalf("not a quoted string: %q", q)
	}
	inner := q[1 : len(q)-1]
	var b strings.Builder
	for i := 0; i < len(inner); i++ {
		if inner[i] == '\\' && i+1 < len(inner) {
			i++
		}
		b.WriteByte(inner[i])
	}
	return b.String()
}

func TestQuoteRoundTrip(t *testing.T) {
	for _, s := range []string{
		"hello",
		`he"llo`,
		`he\llo`,
		`a \"tricky\" mix`,
		"héllo wörld",
		"",
	} {
		q := mustQuote(t, s)
		if strings.ContainsAny(q[1:len(q)-1], "\r\n") {
			t.Fatalf("quoted form of %q contains control chars: %q", s, q)
		}
		if got := unquote(t, q); got != s {
			t.Fatalf("round trip of %q: got %q", s, got)
		}
	}
}

func TestQuoteRejectsControlChars(t *testing.T) {
	for _, s := range []string{"he\rllo", "he\nllo", "a\r\nUID STORE 1 +FLAGS (\\Deleted)", "nul\x00byte", "del\x7f"} {
		if _, err := Quote(s); !errors.Is(err, ErrUnsafeCriterion) {
			t.Fatalf("Quote(%q): expected ErrUnsafeCriterion, got %v", s, err)
		}
	}
}

func TestCompileEmptySpecIsAll(t *testing.T) {
	got, err := Compile(Spec{Folder: "INBOX"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "ALL" {
		t.Fatalf("expected ALL, got %q", got)
	}
}

func TestCompileSubjectAndLarger(t *testing.T) {
	got, err := Compile(Spec{Subject: "invoice", Larger: 1048576})
	if err != nil {
		t.Fatal(err)
	}
	if got != `SUBJECT "invoice" LARGER 1048576` {
		t.Fatalf("unexpected criteria: %q", got)
	}
}

func TestCompileAllFields(t *testing.T) {
	since := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	before := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
	got, err := Compile(Spec{
		Subject: "report",
		From:    "alice@example.com",
		To:      "bob@example.com",
		Cc:      "carol@example.com",
		Unseen:  true,
		Since:   since,
		Before:  before,
		Larger:  512,
	})
	if err != nil {
		t.Fatal(err)
	}
	want := `SUBJECT "report" FROM "alice@example.com" TO "bob@example.com" ` +
		`CC "carol@example.com" UNSEEN SINCE 1-Jan-2025 BEFORE 31-Dec-2025 LARGER 512`
	if got != want {
		t.Fatalf("criteria mismatch:\n got %q\nwant %q", got, want)
	}
}

func TestCompileEscapesOperands(t *testing.T) {
	got, err := Compile(Spec{Subject: `say "hi"`})
	if err != nil {
		t.Fatal(err)
	}
	if got != `SUBJECT "say \"hi\""` {
		t.Fatalf("unexpected criteria: %q", got)
	}
}

func TestCompileRejectsInjection(t *testing.T) {
	_, err := Compile(Spec{From: "x\r\nA1 DELETE INBOX"})
	if !errors.Is(err, ErrUnsafeCriterion) {
		t.Fatalf("expected ErrUnsafeCriterion, got %v", err)
	}
}
