package session

import (
	"errors"
	"fmt"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-mbox"
	"github.com/rs/zerolog/log"

	"github.com/slashmail/slashmail/internal/display"
	"github.com/slashmail/slashmail/internal/imapwire"
	"github.com/slashmail/slashmail/internal/uidset"
)

// ErrFileExists reports an export target that already exists and --force
// was not given. Recorded per message; the batch continues.
var ErrFileExists = errors.New("file already exists")

// Result summarizes a mutating executor run. Completed batches are never
// reverted; failures are counted, not hidden.
type Result struct {
	Affected int // messages the server confirmed acted on
	Failed   int // batches or messages that failed
	Skipped  int // export targets left alone (ErrFileExists)
	Errors   []error
}

func (r *Result) record(err error) {
	r.Failed++
	r.Errors = append(r.Errors, err)
}

// Ok reports whether the run completed without partial failures.
func (r Result) Ok() bool { return r.Failed == 0 && r.Skipped == 0 }

type folderGroup struct {
	name string
	uids []uint32
	rows map[uint32]display.MessageRow
}

// groupByFolder splits messages by folder, preserving message order
// within a folder and folder order of first appearance. Rows without a
// folder (single-folder scope) fall back to fallbackFolder.
func groupByFolder(msgs []display.MessageRow, fallbackFolder string) []folderGroup {
	var groups []folderGroup
	index := map[string]int{}
	for _, m := range msgs {
		folder := m.Folder
		if folder == "" {
			folder = fallbackFolder
		}
		i, ok := index[folder]
		if !ok {
			i = len(groups)
			index[folder] = i
			groups = append(groups, folderGroup{name: folder, rows: map[uint32]display.MessageRow{}})
		}
		groups[i].uids = append(groups[i].uids, m.UID)
		groups[i].rows[m.UID] = m
	}
	return groups
}

// FolderExists checks dest against the server's folder list, exact match.
func (s *Session) FolderExists(dest string) (bool, error) {
	folders, err := s.ListFolders()
	if err != nil {
		return false, err
	}
	for _, f := range folders {
		if f == dest {
			return true, nil
		}
	}
	return false, nil
}

// Move transfers msgs to dest, batch by batch, using the negotiated move
// strategy. Delete is this executor pointed at the trash folder. Batch
// failures are recorded and the run continues; connection failures abort.
func (s *Session) Move(msgs []display.MessageRow, fallbackFolder, dest string) (Result, error) {
	return s.applyBatches(msgs, fallbackFolder, func(set string) error {
		return s.moveBatch(set, dest)
	})
}

func (s *Session) moveBatch(set, dest string) error {
	q, err := encodeFolder(dest)
	if err != nil {
		return err
	}
	if s.strat.Move == MoveNative {
		if _, err := s.tr.Execute("UID MOVE " + set + " " + q); err != nil {
			return fmt.Errorf("move: %w", err)
		}
		return nil
	}
	if _, err := s.tr.Execute("UID COPY " + set + " " + q); err != nil {
		return fmt.Errorf("copy: %w", err)
	}
	if _, err := s.tr.Execute("UID STORE " + set + " +FLAGS (" + imap.DeletedFlag + ")"); err != nil {
		return fmt.Errorf("store deleted flag: %w", err)
	}
	if _, err := s.tr.Execute("EXPUNGE"); err != nil {
		return fmt.Errorf("expunge: %w", err)
	}
	return nil
}

// MarkFlags selects the flag stores the mark executor issues. Read and
// flagged bits are independent, so setting both issues two stores.
type MarkFlags struct {
	Read, Unread, Flagged, Unflagged bool
}

// Validate rejects empty and contradictory selections.
func (f MarkFlags) Validate() error {
	if !f.Read && !f.Unread && !f.Flagged && !f.Unflagged {
		return errors.New("specify at least one flag: --read, --unread, --flagged, --unflagged")
	}
	if f.Read && f.Unread {
		return errors.New("cannot use --read and --unread together")
	}
	if f.Flagged && f.Unflagged {
		return errors.New("cannot use --flagged and --unflagged together")
	}
	return nil
}

// StoreOps renders the STORE argument per selected bit. Plain +FLAGS and
// -FLAGS are idempotent: marking a read message read changes nothing.
func (f MarkFlags) StoreOps() []string {
	var ops []string
	if f.Read {
		ops = append(ops, "+FLAGS ("+imap.SeenFlag+")")
	}
	if f.Unread {
		ops = append(ops, "-FLAGS ("+imap.SeenFlag+")")
	}
	if f.Flagged {
		ops = append(ops, "+FLAGS ("+imap.FlaggedFlag+")")
	}
	if f.Unflagged {
		ops = append(ops, "-FLAGS ("+imap.FlaggedFlag+")")
	}
	return ops
}

// Describe names the action for confirmation prompts and summaries.
func (f MarkFlags) Describe() string {
	var parts []string
	if f.Read {
		parts = append(parts, "mark read")
	}
	if f.Unread {
		parts = append(parts, "mark unread")
	}
	if f.Flagged {
		parts = append(parts, "flag")
	}
	if f.Unflagged {
		parts = append(parts, "unflag")
	}
	return strings.Join(parts, " + ")
}

// Mark stores the selected flag changes on msgs.
func (s *Session) Mark(msgs []display.MessageRow, fallbackFolder string, flags MarkFlags) (Result, error) {
	ops := flags.StoreOps()
	return s.applyBatches(msgs, fallbackFolder, func(set string) error {
		for _, op := range ops {
			if _, err := s.tr.Execute("UID STORE " + set + " " + op); err != nil {
				return fmt.Errorf("store flags: %w", err)
			}
		}
		return nil
	})
}

// applyBatches is the shared mutating pipeline: group by folder, select,
// compress, batch, apply. Dry-run reports the would-be effect and issues
// nothing.
func (s *Session) applyBatches(msgs []display.MessageRow, fallbackFolder string, apply func(set string) error) (Result, error) {
	var res Result
	if s.opts.DryRun {
		res.Affected = len(msgs)
		return res, nil
	}
	for _, group := range groupByFolder(msgs, fallbackFolder) {
		if err := s.selectFolder(group.name); err != nil {
			if errors.Is(err, imapwire.ErrConnection) {
				return res, err
			}
			res.record(err)
			continue
		}
		batches, err := uidset.Batches(uidset.Compress(group.uids), s.opts.MaxCommandLen)
		if err != nil {
			return res, err
		}
		done := 0
		for _, b := range batches {
			if err := apply(b.Set); err != nil {
				if errors.Is(err, imapwire.ErrConnection) {
					return res, err
				}
				res.record(fmt.Errorf("folder %q: %w", group.name, err))
				continue
			}
			res.Affected += b.Count
			done += b.Count
			s.emit(Event{Type: EventBatchApplied, Folder: group.name, Total: len(group.uids), Done: done})
		}
	}
	return res, nil
}

// ExportFormat selects the export on-disk layout.
type ExportFormat string

const (
	FormatEML  ExportFormat = "eml"  // one file per message
	FormatMbox ExportFormat = "mbox" // single mbox file
)

// ExportOptions configures the export executor.
type ExportOptions struct {
	Dir    string
	Format ExportFormat
	Force  bool // overwrite existing files
}

// mboxFileName is the single-file target for mbox exports.
const mboxFileName = "messages.mbox"

// Export fetches full bodies with a peek fetch (messages stay unread) and
// writes them to disk. Per-message write failures are recorded and the
// batch continues.
func (s *Session) Export(msgs []display.MessageRow, fallbackFolder string, o ExportOptions) (Result, error) {
	var res Result
	if s.opts.DryRun {
		res.Affected = len(msgs)
		return res, nil
	}
	if err := os.MkdirAll(o.Dir, 0o755); err != nil {
		return res, fmt.Errorf("create directory %q: %w", o.Dir, err)
	}

	var mw *mbox.Writer
	if o.Format == FormatMbox {
		path := filepath.Join(o.Dir, mboxFileName)
		if !o.Force {
			if _, err := os.Stat(path); err == nil {
				return res, fmt.Errorf("%w: %s (use --force to overwrite)", ErrFileExists, path)
			}
		}
		f, err := os.Create(path)
		if err != nil {
			return res, fmt.Errorf("create %q: %w", path, err)
		}
		defer f.Close()
		mw = mbox.NewWriter(f)
		defer mw.Close()
	}

	for _, group := range groupByFolder(msgs, fallbackFolder) {
		if err := s.selectFolder(group.name); err != nil {
			if errors.Is(err, imapwire.ErrConnection) {
				return res, err
			}
			res.record(err)
			continue
		}
		batches, err := uidset.Batches(uidset.Compress(group.uids), s.opts.MaxCommandLen)
		if err != nil {
			return res, err
		}
		for _, b := range batches {
			resp, err := s.tr.Execute("UID FETCH " + b.Set + " (UID BODY.PEEK[])")
			if err != nil {
				if errors.Is(err, imapwire.ErrConnection) {
					return res, err
				}
				res.record(fmt.Errorf("fetch in %q: %w", group.name, err))
				continue
			}
			for _, item := range parseFetch(resp) {
				if item.body == nil {
					continue
				}
				row := group.rows[item.uid]
				if mw != nil {
					if err := writeMboxMessage(mw, row, item.body); err != nil {
						res.record(err)
						continue
					}
				} else if err := s.writeEML(o, group.name, row.Folder != "", item); err != nil {
					if errors.Is(err, ErrFileExists) {
						res.Skipped++
						res.Errors = append(res.Errors, err)
					} else {
						res.record(err)
					}
					continue
				}
				res.Affected++
				s.emit(Event{Type: EventBatchApplied, Folder: group.name, Total: len(group.uids), Done: res.Affected})
			}
		}
	}
	return res, nil
}

func (s *Session) writeEML(o ExportOptions, folder string, prefixFolder bool, item fetchItem) error {
	name := fmt.Sprintf("%d.eml", item.uid)
	if prefixFolder {
		// All-folders scope: UIDs are only unique per folder.
		name = fmt.Sprintf("%s-%d.eml", safeFileName(folder), item.uid)
	}
	path := filepath.Join(o.Dir, name)
	if !o.Force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrFileExists, path)
		}
	}
	if err := os.WriteFile(path, item.body, 0o644); err != nil {
		return fmt.Errorf("write %q: %w", path, err)
	}
	return nil
}

func writeMboxMessage(mw *mbox.Writer, row display.MessageRow, body []byte) error {
	from := "MAILER-DAEMON"
	if addr, err := mail.ParseAddress(row.From); err == nil {
		from = addr.Address
	}
	date := row.Time
	if date.IsZero() {
		date = time.Now()
	}
	w, err := mw.CreateMessage(from, date)
	if err != nil {
		return fmt.Errorf("mbox message: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("mbox write: %w", err)
	}
	return nil
}

// safeFileName flattens a folder name into a filename component.
func safeFileName(folder string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, folder)
}

// Quota fetches quota usage for the INBOX quota root. Servers without
// the QUOTA extension fail this command only.
func (s *Session) Quota() ([]display.QuotaRow, error) {
	if !s.strat.Quota {
		return nil, fmt.Errorf("%w: QUOTA extension (RFC 2087)", ErrUnsupportedByServer)
	}
	resp, err := s.tr.Execute("GETQUOTAROOT INBOX")
	if err != nil {
		return nil, fmt.Errorf("quota: %w", err)
	}
	return parseQuota(resp), nil
}

// Status queries MESSAGES/UNSEEN/RECENT for every folder. Folders the
// server refuses show up with OK false rather than failing the command.
func (s *Session) Status() ([]display.StatusRow, error) {
	folders, err := s.ListFolders()
	if err != nil {
		return nil, err
	}
	rows := make([]display.StatusRow, 0, len(folders))
	for _, folder := range folders {
		q, err := encodeFolder(folder)
		if err != nil {
			log.Warn().Str("folder", folder).Err(err).Msg("unencodable folder name")
			rows = append(rows, display.StatusRow{Folder: folder})
			continue
		}
		resp, err := s.tr.Execute("STATUS " + q + " (MESSAGES UNSEEN RECENT)")
		if err != nil {
			if errors.Is(err, imapwire.ErrConnection) {
				return nil, err
			}
			rows = append(rows, display.StatusRow{Folder: folder})
			continue
		}
		messages, unseen, recent, ok := parseStatus(resp)
		rows = append(rows, display.StatusRow{
			Folder:   folder,
			Messages: messages,
			Unseen:   unseen,
			Recent:   recent,
			OK:       ok,
		})
	}
	return rows, nil
}

// Describe summarizes a pending mutation for the confirmation prompt.
func Describe(action string, n int, extra string) string {
	msg := fmt.Sprintf("%s %d message(s)", action, n)
	if extra != "" {
		msg += " " + extra
	}
	return msg
}
