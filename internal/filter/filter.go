// Package filter holds the user-facing search filter and compiles it
// into IMAP SEARCH criteria text. Compile and Quote are the injection
// boundary: no operand reaches the wire without passing through them.
package filter

import "time"

// Spec is the structured search filter shared by every command. All
// criteria are AND-combined; there is no OR or NOT.
type Spec struct {
	Folder     string
	AllFolders bool

	Subject string
	From    string
	To      string
	Cc      string

	// Seen and Unseen are mutually exclusive; enforced at flag parsing.
	Seen   bool
	Unseen bool

	Since  time.Time
	Before time.Time

	// Larger is a minimum size in bytes. Zero means unset.
	Larger int64

	// Limit caps the number of results. Zero means unbounded.
	Limit int
}

// Empty reports whether the spec carries no server-side criteria.
func (s Spec) Empty() bool {
	return s.Subject == "" && s.From == "" && s.To == "" && s.Cc == "" &&
		!s.Seen && !s.Unseen && s.Since.IsZero() && s.Before.IsZero() && s.Larger == 0
}
