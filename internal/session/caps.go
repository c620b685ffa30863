package session

import "errors"

// ErrUnsupportedByServer marks a command whose required extension the
// server does not advertise and that has no fallback (quota). It is
// fatal for that command only, not for the session.
var ErrUnsupportedByServer = errors.New("not supported by server")

// MoveMode selects how messages change folders.
type MoveMode int

const (
	// MoveNative uses UID MOVE (RFC 6851).
	MoveNative MoveMode = iota
	// MoveCopyExpunge emulates it: UID COPY, +FLAGS (\Deleted), EXPUNGE.
	MoveCopyExpunge
)

// Strategies is the per-session decision record derived from the
// advertised capability set. Computed once at session start and never
// re-evaluated; callers branch on it uniformly instead of sprinkling
// capability checks.
type Strategies struct {
	// ServerSort: UID SORT orders results server-side, so a result limit
	// truncates the UID list before any FETCH. Without it, a plain
	// SEARCH is ordered client-side and truncation happens after the
	// full header fetch.
	ServerSort bool
	Move       MoveMode
	Quota      bool
}

// Negotiate derives the strategy record from the transport's capability
// set.
func Negotiate(tr Transport) Strategies {
	s := Strategies{
		ServerSort: tr.Capable("SORT"),
		Move:       MoveCopyExpunge,
		Quota:      tr.Capable("QUOTA"),
	}
	if tr.Capable("MOVE") {
		s.Move = MoveNative
	}
	return s
}
