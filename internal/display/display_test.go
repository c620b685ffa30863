package display

import (
	"strings"
	"testing"
)

func TestFormatSize(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{0, "0B"},
		{999, "999B"},
		{1024, "1K"},
		{1536, "2K"},
		{1048576, "1.0M"},
		{5242880, "5.0M"},
	}
	for _, c := range cases {
		if got := FormatSize(c.in); got != c.want {
			t.Fatalf("FormatSize(%d): got %q, want %q", c.in, got, c.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("hello", 10); got != "hello" {
		t.Fatalf("got %q", got)
	}
	if got := Truncate("hello", 5); got != "hello" {
		t.Fatalf("got %q", got)
	}
	if got := Truncate("hello world", 8); got != "hello..." {
		t.Fatalf("got %q", got)
	}
	if got := Truncate("héllo wörld", 8); got != "héllo..." {
		t.Fatalf("got %q", got)
	}
}

func TestMessagesEmpty(t *testing.T) {
	if got := Messages(nil); got != "No messages found.\n" {
		t.Fatalf("got %q", got)
	}
}

func TestMessagesFolderColumn(t *testing.T) {
	without := Messages([]MessageRow{{UID: 1, From: "a", Subject: "s"}})
	if strings.Contains(without, "Folder") {
		t.Fatal("unexpected Folder column")
	}
	with := Messages([]MessageRow{{UID: 1, Folder: "Archive", From: "a", Subject: "s"}})
	if !strings.Contains(with, "Folder") || !strings.Contains(with, "Archive") {
		t.Fatal("missing Folder column")
	}
	if !strings.Contains(with, "1 message(s)") {
		t.Fatal("missing count line")
	}
}

func TestStatusTotals(t *testing.T) {
	out := Status([]StatusRow{
		{Folder: "INBOX", Messages: 10, Unseen: 2, Recent: 1, OK: true},
		{Folder: "Archive", Messages: 5, Unseen: 0, Recent: 0, OK: true},
		{Folder: "Broken", OK: false},
	})
	for _, want := range []string{"INBOX", "Archive", "?", "Total", "15"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in output:\n%s", want, out)
		}
	}
}
