package session

import (
	"bytes"
	"net/mail"
	"regexp"
	"strconv"
	"strings"

	"github.com/emersion/go-imap/utf7"
	"github.com/emersion/go-message"
	messagemail "github.com/emersion/go-message/mail"

	"github.com/slashmail/slashmail/internal/display"
	"github.com/slashmail/slashmail/internal/imapwire"
)

// parseUIDs extracts the number list from "* SEARCH ..." or "* SORT ..."
// lines, preserving the server's order.
func parseUIDs(resp *imapwire.Response, key string) []uint32 {
	var uids []uint32
	prefix := "* " + key
	for _, line := range resp.Lines {
		rest, ok := strings.CutPrefix(line.Text, prefix)
		if !ok || (rest != "" && rest[0] != ' ') {
			continue
		}
		for _, tok := range strings.Fields(rest) {
			if n, err := strconv.ParseUint(tok, 10, 32); err == nil {
				uids = append(uids, uint32(n))
			}
		}
	}
	return uids
}

var listRe = regexp.MustCompile(`^\* LIST \([^)]*\) (?:"(?:[^"\\]|\\.)*"|NIL) (.*)$`)

// parseListNames extracts and UTF-7-decodes mailbox names from LIST
// lines. Names arrive quoted, as bare atoms, or as literals.
func parseListNames(resp *imapwire.Response) []string {
	var names []string
	for _, line := range resp.Lines {
		m := listRe.FindStringSubmatch(line.Text)
		if m == nil {
			continue
		}
		raw := strings.TrimSpace(m[1])
		var name string
		switch {
		case raw == "" && len(line.Literals) > 0:
			name = string(line.Literals[0])
		case strings.HasPrefix(raw, `"`):
			name = unquote(raw)
		default:
			name = raw
		}
		if name == "" {
			continue
		}
		if dec, err := utf7.Encoding.NewDecoder().String(name); err == nil {
			name = dec
		}
		names = append(names, name)
	}
	return names
}

// unquote undoes IMAP quoted-string escaping.
func unquote(q string) string {
	q = strings.TrimPrefix(q, `"`)
	q = strings.TrimSuffix(q, `"`)
	var b strings.Builder
	for i := 0; i < len(q); i++ {
		if q[i] == '\\' && i+1 < len(q) {
			i++
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

var statusRe = regexp.MustCompile(`(?i)^\* STATUS .*\(([^)]*)\)`)

// parseStatus reads the MESSAGES/UNSEEN/RECENT attribute pairs of a
// STATUS response.
func parseStatus(resp *imapwire.Response) (messages, unseen, recent uint32, ok bool) {
	for _, line := range resp.Lines {
		m := statusRe.FindStringSubmatch(line.Text)
		if m == nil {
			continue
		}
		ok = true
		fields := strings.Fields(m[1])
		for i := 0; i+1 < len(fields); i += 2 {
			n, err := strconv.ParseUint(fields[i+1], 10, 32)
			if err != nil {
				continue
			}
			switch strings.ToUpper(fields[i]) {
			case "MESSAGES":
				messages = uint32(n)
			case "UNSEEN":
				unseen = uint32(n)
			case "RECENT":
				recent = uint32(n)
			}
		}
	}
	return messages, unseen, recent, ok
}

var (
	quotaRe         = regexp.MustCompile(`(?i)^\* QUOTA .*?\((.*)\)`)
	quotaResourceRe = regexp.MustCompile(`(\w+)\s+(\d+)\s+(\d+)`)
)

// parseQuota reads QUOTA resource triples: name, used, limit. STORAGE
// values are in kilobytes on the wire (RFC 2087) and converted to bytes.
func parseQuota(resp *imapwire.Response) []display.QuotaRow {
	var rows []display.QuotaRow
	for _, line := range resp.Lines {
		m := quotaRe.FindStringSubmatch(line.Text)
		if m == nil {
			continue
		}
		for _, res := range quotaResourceRe.FindAllStringSubmatch(m[1], -1) {
			used, _ := strconv.ParseUint(res[2], 10, 64)
			limit, _ := strconv.ParseUint(res[3], 10, 64)
			if strings.EqualFold(res[1], "STORAGE") {
				used *= 1024
				limit *= 1024
			}
			rows = append(rows, display.QuotaRow{Resource: res[1], Used: used, Limit: limit})
		}
	}
	return rows
}

var (
	fetchLineRe = regexp.MustCompile(`^\* \d+ FETCH `)
	fetchUIDRe  = regexp.MustCompile(`UID (\d+)`)
	fetchSizeRe = regexp.MustCompile(`RFC822\.SIZE (\d+)`)
)

type fetchItem struct {
	uid  uint32
	size int64
	body []byte // header or full body literal, depending on the fetch
}

// parseFetch extracts UID, size and the literal payload from FETCH
// responses. Items with no UID are dropped.
func parseFetch(resp *imapwire.Response) []fetchItem {
	var items []fetchItem
	for _, line := range resp.Lines {
		if !fetchLineRe.MatchString(line.Text) {
			continue
		}
		m := fetchUIDRe.FindStringSubmatch(line.Text)
		if m == nil {
			continue
		}
		uid, err := strconv.ParseUint(m[1], 10, 32)
		if err != nil || uid == 0 {
			continue
		}
		item := fetchItem{uid: uint32(uid)}
		if sm := fetchSizeRe.FindStringSubmatch(line.Text); sm != nil {
			item.size, _ = strconv.ParseInt(sm[1], 10, 64)
		}
		if len(line.Literals) > 0 {
			item.body = line.Literals[0]
		}
		items = append(items, item)
	}
	return items
}

// summarize turns a header fetch item into a display row, decoding
// RFC 2047 encoded words where possible.
func summarize(item fetchItem) display.MessageRow {
	row := display.MessageRow{UID: item.uid, Size: item.size}

	var rawDate string
	entity, err := message.Read(bytes.NewReader(item.body))
	if entity != nil && (err == nil || message.IsUnknownCharset(err)) {
		h := messagemail.Header{Header: entity.Header}
		if v, err := h.Text("From"); err == nil {
			row.From = v
		} else {
			row.From = entity.Header.Get("From")
		}
		if v, err := h.Subject(); err == nil {
			row.Subject = v
		} else {
			row.Subject = entity.Header.Get("Subject")
		}
		rawDate = entity.Header.Get("Date")
		if t, err := h.Date(); err == nil {
			row.Time = t
		}
	} else {
		// Malformed header block; scrape what we can line by line.
		for _, line := range strings.Split(string(item.body), "\r\n") {
			switch {
			case strings.HasPrefix(line, "From: "):
				row.From = strings.TrimPrefix(line, "From: ")
			case strings.HasPrefix(line, "Subject: "):
				row.Subject = strings.TrimPrefix(line, "Subject: ")
			case strings.HasPrefix(line, "Date: "):
				rawDate = strings.TrimPrefix(line, "Date: ")
			}
		}
	}

	if row.Time.IsZero() && rawDate != "" {
		if t, err := mail.ParseDate(rawDate); err == nil {
			row.Time = t
		}
	}
	row.Date = trimZone(rawDate)
	return row
}

// trimZone drops the numeric timezone suffix for display, as in
// "Mon, 2 Jun 2025 10:00:00 +0200" -> "Mon, 2 Jun 2025 10:00:00".
func trimZone(date string) string {
	if i := strings.Index(date, " +"); i >= 0 {
		return date[:i]
	}
	if i := strings.Index(date, " -"); i >= 0 {
		return date[:i]
	}
	return date
}
