package filter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/emersion/go-imap"
)

// ErrUnsafeCriterion marks an operand that cannot be rendered as a safe
// IMAP quoted string. Such a filter never reaches the wire.
var ErrUnsafeCriterion = errors.New("unsafe search criterion")

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// Quote renders s as an IMAP quoted string (RFC 3501 §4.3), escaping
// backslashes and double quotes. Control characters, CR and LF in
// particular, would let an operand terminate the request line and smuggle
// further commands, so they are rejected outright rather than stripped.
func Quote(s string) (string, error) {
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return "", fmt.Errorf("%w: control character in %q", ErrUnsafeCriterion, s)
		}
	}
	return `"` + quoteEscaper.Replace(s) + `"`, nil
}

// Compile turns a Spec into SEARCH criteria text. Keys are joined by
// spaces, which is IMAP's AND. A spec without criteria compiles to ALL,
// never to an empty string.
func Compile(s Spec) (string, error) {
	var parts []string

	appendQuoted := func(key, val string) error {
		if val == "" {
			return nil
		}
		q, err := Quote(val)
		if err != nil {
			return err
		}
		parts = append(parts, key+" "+q)
		return nil
	}

	if err := appendQuoted("SUBJECT", s.Subject); err != nil {
		return "", err
	}
	if err := appendQuoted("FROM", s.From); err != nil {
		return "", err
	}
	if err := appendQuoted("TO", s.To); err != nil {
		return "", err
	}
	if err := appendQuoted("CC", s.Cc); err != nil {
		return "", err
	}
	if s.Seen {
		parts = append(parts, "SEEN")
	}
	if s.Unseen {
		parts = append(parts, "UNSEEN")
	}
	if !s.Since.IsZero() {
		parts = append(parts, "SINCE "+s.Since.Format(imap.DateLayout))
	}
	if !s.Before.IsZero() {
		parts = append(parts, "BEFORE "+s.Before.Format(imap.DateLayout))
	}
	if s.Larger > 0 {
		parts = append(parts, fmt.Sprintf("LARGER %d", s.Larger))
	}

	if len(parts) == 0 {
		return "ALL", nil
	}
	return strings.Join(parts, " "), nil
}
