// Package uidset compresses message UID sequences into IMAP sequence-set
// text and splits them into batches that fit a command-length budget.
//
// Compression is order-preserving: runs are merged only when consecutive
// in the input AND numerically ascending by one. A server-sorted UID list
// must come back out in exactly the order it went in, because limit
// truncation relies on that order; sorting here would corrupt it. The
// cost is that numerically adjacent UIDs arriving out of order stay in
// separate ranges.
package uidset

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DefaultMaxCommandLen bounds the serialized UID-set text per command,
// keeping the full request line comfortably inside common server limits.
const DefaultMaxCommandLen = 4000

// ErrCommandTooLarge reports a single range whose own serialized form
// exceeds the batch budget. Ranges are never split or truncated.
var ErrCommandTooLarge = errors.New("uid set exceeds maximum command length")

// Range is a closed interval [Lo, Hi] of UIDs, Lo <= Hi. A singleton has
// Lo == Hi.
type Range struct {
	Lo, Hi uint32
}

func (r Range) String() string {
	if r.Lo == r.Hi {
		return strconv.FormatUint(uint64(r.Lo), 10)
	}
	return fmt.Sprintf("%d:%d", r.Lo, r.Hi)
}

// Count returns the number of UIDs the range covers.
func (r Range) Count() int {
	return int(r.Hi-r.Lo) + 1
}

// Compress deduplicates ids (first occurrence wins) and merges ascending
// +1 runs into ranges, preserving input order throughout.
func Compress(ids []uint32) []Range {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[uint32]struct{}, len(ids))
	var ranges []Range
	open := false
	var cur Range
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if open && id == cur.Hi+1 {
			cur.Hi = id
			continue
		}
		if open {
			ranges = append(ranges, cur)
		}
		cur = Range{Lo: id, Hi: id}
		open = true
	}
	if open {
		ranges = append(ranges, cur)
	}
	return ranges
}

// Expand flattens ranges back into the individual UIDs, in order.
func Expand(ranges []Range) []uint32 {
	var ids []uint32
	for _, r := range ranges {
		for id := r.Lo; ; id++ {
			ids = append(ids, id)
			if id == r.Hi {
				break
			}
		}
	}
	return ids
}

// Batch is a wire-ready slice of the compressed set.
type Batch struct {
	Set   string // comma-joined ranges, e.g. "1:3,7,9:12"
	Count int    // UIDs covered by Set
}

// Batches greedily packs ranges into batches whose serialized text stays
// at or under maxLen, preserving range order across batch boundaries.
// maxLen <= 0 selects DefaultMaxCommandLen.
func Batches(ranges []Range, maxLen int) ([]Batch, error) {
	if maxLen <= 0 {
		maxLen = DefaultMaxCommandLen
	}
	var out []Batch
	var b strings.Builder
	count := 0
	flush := func() {
		if b.Len() > 0 {
			out = append(out, Batch{Set: b.String(), Count: count})
			b.Reset()
			count = 0
		}
	}
	for _, r := range ranges {
		part := r.String()
		if len(part) > maxLen {
			return nil, fmt.Errorf("%w: range %s is %d chars, limit %d", ErrCommandTooLarge, part, len(part), maxLen)
		}
		if b.Len() > 0 && b.Len()+1+len(part) > maxLen {
			flush()
		}
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(part)
		count += r.Count()
	}
	flush()
	return out, nil
}
