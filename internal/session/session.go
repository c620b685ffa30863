// Package session drives one authenticated IMAP session for one command
// invocation: it compiles filters onto the wire, negotiates
// capability-dependent strategies, batches UID sets, and runs the action
// executors with partial-failure accounting.
package session

import (
	"errors"
	"fmt"
	"sort"

	"github.com/emersion/go-imap/utf7"
	"github.com/rs/zerolog/log"

	"github.com/slashmail/slashmail/internal/display"
	"github.com/slashmail/slashmail/internal/filter"
	"github.com/slashmail/slashmail/internal/imapwire"
	"github.com/slashmail/slashmail/internal/uidset"
)

// Transport is the wire the session talks through. *imapwire.Conn
// implements it; tests script a fake.
type Transport interface {
	Execute(cmd string) (*imapwire.Response, error)
	Capable(name string) bool
	Logout() error
}

// Options configures a session for one invocation.
type Options struct {
	// DryRun makes every mutating executor report its would-be effect
	// without issuing the mutating requests.
	DryRun bool
	// MaxCommandLen bounds serialized UID-set text per command.
	// Zero selects uidset.DefaultMaxCommandLen.
	MaxCommandLen int
}

// Session owns the transport for the duration of one command run.
type Session struct {
	tr     Transport
	strat  Strategies
	opts   Options
	events chan Event
}

// New negotiates strategies against the transport's capability set and
// returns a ready session.
func New(tr Transport, opts Options) *Session {
	return &Session{
		tr:     tr,
		strat:  Negotiate(tr),
		opts:   opts,
		events: make(chan Event, 128),
	}
}

// Strategies returns the decision record negotiated at session start.
func (s *Session) Strategies() Strategies { return s.strat }

// Close logs the session out. Safe on every exit path.
func (s *Session) Close() error { return s.tr.Logout() }

// excludedFolders are skipped in all-folders scope. Comparison is exact
// and case-sensitive; a folder named "trash" is searched.
var excludedFolders = []string{
	"Trash",
	"Spam",
	"Junk",
	"[Gmail]/Trash",
	"[Gmail]/Spam",
	"[Gmail]/All Mail",
}

func folderExcluded(name string) bool {
	for _, ex := range excludedFolders {
		if name == ex {
			return true
		}
	}
	return false
}

// encodeFolder renders a mailbox name as a wire-safe quoted argument,
// applying modified UTF-7 for non-ASCII names.
func encodeFolder(name string) (string, error) {
	enc, err := utf7.Encoding.NewEncoder().String(name)
	if err != nil {
		return "", fmt.Errorf("%w: folder name %q", filter.ErrUnsafeCriterion, name)
	}
	return filter.Quote(enc)
}

func (s *Session) selectFolder(name string) error {
	q, err := encodeFolder(name)
	if err != nil {
		return err
	}
	if _, err := s.tr.Execute("SELECT " + q); err != nil {
		return fmt.Errorf("select %q: %w", name, err)
	}
	return nil
}

// ListFolders returns every mailbox name the server reports.
func (s *Session) ListFolders() ([]string, error) {
	resp, err := s.tr.Execute(`LIST "" "*"`)
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	return parseListNames(resp), nil
}

// searchFolders resolves the folder scope of a filter.
func (s *Session) searchFolders(spec filter.Spec) ([]string, error) {
	if !spec.AllFolders {
		return []string{spec.Folder}, nil
	}
	all, err := s.ListFolders()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, name := range all {
		if folderExcluded(name) {
			continue
		}
		out = append(out, name)
	}
	return out, nil
}

// Find runs the search pipeline and returns ordered message summaries,
// newest first, truncated to the filter's limit.
func (s *Session) Find(spec filter.Spec) ([]display.MessageRow, error) {
	criteria, err := filter.Compile(spec)
	if err != nil {
		return nil, err
	}
	folders, err := s.searchFolders(spec)
	if err != nil {
		return nil, err
	}

	if !spec.AllFolders {
		return s.findInFolder(folders[0], criteria, false, spec.Limit)
	}

	var all []display.MessageRow
	for _, folder := range folders {
		rows, err := s.findInFolder(folder, criteria, true, 0)
		if err != nil {
			if errors.Is(err, imapwire.ErrConnection) {
				return nil, err
			}
			log.Warn().Str("folder", folder).Err(err).Msg("skipping folder")
			continue
		}
		all = append(all, rows...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Time.After(all[j].Time) })
	if spec.Limit > 0 && len(all) > spec.Limit {
		all = all[:spec.Limit]
	}
	return all, nil
}

// findInFolder selects the folder, resolves the ordered UID list, and
// fetches header summaries batch by batch.
func (s *Session) findInFolder(folder, criteria string, includeFolder bool, limit int) ([]display.MessageRow, error) {
	if err := s.selectFolder(folder); err != nil {
		return nil, err
	}

	uids, serverSorted, err := s.orderedUIDs(criteria)
	if err != nil {
		return nil, err
	}
	// The whole point of server-side SORT: cut the list down before any
	// header is fetched. The fallback path can only truncate after the
	// client-side sort below.
	if serverSorted && limit > 0 && len(uids) > limit {
		uids = uids[:limit]
	}
	if len(uids) == 0 {
		return nil, nil
	}
	s.emit(Event{Type: EventFolderStart, Folder: folder, Total: len(uids)})

	batches, err := uidset.Batches(uidset.Compress(uids), s.opts.MaxCommandLen)
	if err != nil {
		return nil, err
	}

	byUID := make(map[uint32]display.MessageRow, len(uids))
	done := 0
	for _, b := range batches {
		resp, err := s.tr.Execute("UID FETCH " + b.Set + " (UID RFC822.SIZE BODY.PEEK[HEADER.FIELDS (SUBJECT FROM DATE)])")
		if err != nil {
			return nil, fmt.Errorf("fetch headers in %q: %w", folder, err)
		}
		for _, item := range parseFetch(resp) {
			row := summarize(item)
			if includeFolder {
				row.Folder = folder
			}
			byUID[item.uid] = row
			done++
		}
		s.emit(Event{Type: EventFetchDone, Folder: folder, Total: len(uids), Done: done})
	}

	rows := make([]display.MessageRow, 0, len(byUID))
	for _, uid := range uids {
		if row, ok := byUID[uid]; ok {
			rows = append(rows, row)
		}
	}
	if !serverSorted {
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].Time.After(rows[j].Time) })
		if limit > 0 && len(rows) > limit {
			rows = rows[:limit]
		}
	}
	return rows, nil
}

// orderedUIDs issues UID SORT when negotiated, falling back to UID
// SEARCH. The bool reports whether the order is server-derived.
func (s *Session) orderedUIDs(criteria string) ([]uint32, bool, error) {
	if s.strat.ServerSort {
		resp, err := s.tr.Execute("UID SORT (REVERSE DATE) UTF-8 " + criteria)
		if err == nil {
			return parseUIDs(resp, "SORT"), true, nil
		}
		var srvErr *imapwire.ServerError
		if !errors.As(err, &srvErr) {
			return nil, false, err
		}
		// Advertised but refused; don't try again this session.
		log.Warn().Err(err).Msg("SORT rejected, falling back to SEARCH")
		s.strat.ServerSort = false
	}
	resp, err := s.tr.Execute("UID SEARCH " + criteria)
	if err != nil {
		return nil, false, err
	}
	return parseUIDs(resp, "SEARCH"), false, nil
}

// FolderCount is one folder's match count.
type FolderCount struct {
	Folder string
	Count  int
}

// Count runs the search without any FETCH and returns per-folder match
// counts.
func (s *Session) Count(spec filter.Spec) ([]FolderCount, error) {
	criteria, err := filter.Compile(spec)
	if err != nil {
		return nil, err
	}
	folders, err := s.searchFolders(spec)
	if err != nil {
		return nil, err
	}

	var out []FolderCount
	for _, folder := range folders {
		err := s.selectFolder(folder)
		if err == nil {
			var resp *imapwire.Response
			resp, err = s.tr.Execute("UID SEARCH " + criteria)
			if err == nil {
				out = append(out, FolderCount{Folder: folder, Count: len(parseUIDs(resp, "SEARCH"))})
				continue
			}
		}
		if !spec.AllFolders || errors.Is(err, imapwire.ErrConnection) {
			return nil, err
		}
		log.Warn().Str("folder", folder).Err(err).Msg("skipping folder")
	}
	return out, nil
}
