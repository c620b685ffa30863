package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/slashmail/slashmail/internal/config"
	"github.com/slashmail/slashmail/internal/display"
	"github.com/slashmail/slashmail/internal/filter"
	"github.com/slashmail/slashmail/internal/imapwire"
	"github.com/slashmail/slashmail/internal/secret"
	"github.com/slashmail/slashmail/internal/session"
)

// settings is the merged connection configuration,
// precedence CLI > environment > config file > built-in defaults.
type settings struct {
	host          string
	port          int
	tls           bool
	user          string
	trashFolder   string
	defaultFolder string
}

func resolveSettings(cmd *cobra.Command, g *globalOptions) (settings, error) {
	path := g.configPath
	explicit := path != ""
	if !explicit {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return settings{}, err
		}
	}
	cfg, err := config.Load(path, explicit)
	if err != nil {
		return settings{}, err
	}

	st := settings{
		host:          "127.0.0.1",
		trashFolder:   "Trash",
		defaultFolder: "INBOX",
	}
	if cfg.Host != "" {
		st.host = cfg.Host
	}
	if cmd.Flags().Changed("host") {
		st.host = g.host
	}

	if cfg.TLS != nil {
		st.tls = *cfg.TLS
	}
	if cmd.Flags().Changed("tls") {
		st.tls = g.tls
	}

	// Port defaults follow the resolved TLS mode.
	if st.tls {
		st.port = 993
	} else {
		st.port = 1143
	}
	if cfg.Port != 0 {
		st.port = cfg.Port
	}
	if cmd.Flags().Changed("port") {
		st.port = g.port
	}

	st.user = cfg.User
	if env := os.Getenv("SLASHMAIL_USER"); env != "" {
		st.user = env
	}
	if cmd.Flags().Changed("user") {
		st.user = g.user
	}
	if st.user == "" {
		return settings{}, fmt.Errorf("no username: use --user, SLASHMAIL_USER, or the config file")
	}

	if cfg.TrashFolder != "" {
		st.trashFolder = cfg.TrashFolder
	}
	if cfg.DefaultFolder != "" {
		st.defaultFolder = cfg.DefaultFolder
	}
	return st, nil
}

// readPassword takes SLASHMAIL_PASS when set, otherwise prompts without
// echo. The caller must Zero the secret once authentication is done.
func readPassword(user string) (*secret.Secret, error) {
	if pass := os.Getenv("SLASHMAIL_PASS"); pass != "" {
		return secret.FromString(pass), nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, fmt.Errorf("no password: set SLASHMAIL_PASS or run interactively")
	}
	fmt.Fprintf(os.Stderr, "Password for %s: ", user)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("read password: %w", err)
	}
	return secret.FromBytes(b), nil
}

// openSession dials, authenticates, and hands back a ready session. The
// password is zeroed before this returns, on every path.
func openSession(cmd *cobra.Command, g *globalOptions, dryRun bool) (*session.Session, settings, error) {
	st, err := resolveSettings(cmd, g)
	if err != nil {
		return nil, settings{}, err
	}
	pass, err := readPassword(st.user)
	if err != nil {
		return nil, settings{}, err
	}
	defer pass.Zero()

	conn, err := imapwire.Dial(st.host, st.port, st.tls)
	if err != nil {
		return nil, settings{}, err
	}
	if err := conn.Login(st.user, pass.Bytes()); err != nil {
		return nil, settings{}, err
	}
	s := session.New(conn, session.Options{DryRun: dryRun})
	log.Debug().
		Bool("sort", s.Strategies().ServerSort).
		Bool("native_move", s.Strategies().Move == session.MoveNative).
		Bool("quota", s.Strategies().Quota).
		Msg("negotiated strategies")
	return s, st, nil
}

// confirm gates a mutating run. Returns false (and prints nothing but
// "Aborted.") when the user declines; refuses outright when stdin is not
// a terminal and --yes was not given.
func confirm(ao *actionOptions, action, summary string) (bool, error) {
	if ao.yes || ao.dryRun {
		return true, nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false, fmt.Errorf("refusing to %s without --yes: stdin is not a terminal", action)
	}
	ok, err := runConfirmTUI("slashmail", summary)
	if err != nil {
		return false, fmt.Errorf("confirmation prompt: %w", err)
	}
	if !ok {
		fmt.Fprintln(os.Stderr, "Aborted.")
	}
	return ok, nil
}

// reportResult prints the outcome and converts partial failures into a
// nonzero exit.
func reportResult(verb string, dryRun bool, res session.Result) error {
	for _, e := range res.Errors {
		log.Error().Err(e).Msg(verb)
	}
	if dryRun {
		fmt.Printf("[dry-run] would have %s %d message(s)\n", verb, res.Affected)
		return nil
	}
	fmt.Printf("%s %d message(s)", capitalize(verb), res.Affected)
	if res.Skipped > 0 {
		fmt.Printf(", skipped %d", res.Skipped)
	}
	if res.Failed > 0 {
		fmt.Printf(", %d failed", res.Failed)
	}
	fmt.Println()
	if !res.Ok() {
		return fmt.Errorf("%d of %d operations did not complete", res.Failed+res.Skipped, res.Affected+res.Failed+res.Skipped)
	}
	return nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}

func runSearch(cmd *cobra.Command, g *globalOptions, fo *filterOptions) error {
	s, st, err := openSession(cmd, g, false)
	if err != nil {
		return err
	}
	defer s.Close()

	spec, err := fo.spec(st.defaultFolder, time.Now())
	if err != nil {
		return err
	}
	rows, err := s.Find(spec)
	if err != nil {
		return err
	}
	fmt.Print(display.Messages(rows))
	return nil
}

func runCount(cmd *cobra.Command, g *globalOptions, fo *filterOptions) error {
	s, st, err := openSession(cmd, g, false)
	if err != nil {
		return err
	}
	defer s.Close()

	spec, err := fo.spec(st.defaultFolder, time.Now())
	if err != nil {
		return err
	}
	counts, err := s.Count(spec)
	if err != nil {
		return err
	}
	if !spec.AllFolders {
		if len(counts) == 1 {
			fmt.Println(counts[0].Count)
		} else {
			fmt.Println(0)
		}
		return nil
	}
	total := 0
	for _, c := range counts {
		fmt.Printf("%s: %d\n", c.Folder, c.Count)
		total += c.Count
	}
	fmt.Printf("total: %d\n", total)
	return nil
}

// findForAction runs the search phase of a mutating command and handles
// the empty-result exit.
func findForAction(s *session.Session, st settings, fo *filterOptions) ([]display.MessageRow, filter.Spec, bool, error) {
	spec, err := fo.spec(st.defaultFolder, time.Now())
	if err != nil {
		return nil, spec, false, err
	}
	rows, err := s.Find(spec)
	if err != nil {
		return nil, spec, false, err
	}
	if len(rows) == 0 {
		fmt.Println("No messages matched.")
		return nil, spec, false, nil
	}
	return rows, spec, true, nil
}

func runDelete(cmd *cobra.Command, g *globalOptions, fo *filterOptions, ao *actionOptions, trashFolder string) error {
	s, st, err := openSession(cmd, g, ao.dryRun)
	if err != nil {
		return err
	}
	defer s.Close()

	if trashFolder == "" {
		trashFolder = st.trashFolder
	}
	rows, spec, proceed, err := findForAction(s, st, fo)
	if err != nil || !proceed {
		return err
	}
	ok, err := confirm(ao, "delete", session.Describe("Delete", len(rows), fmt.Sprintf("(move to %q)", trashFolder)))
	if err != nil || !ok {
		return err
	}
	res, err := withProgress(s, "Deleting", len(rows), func() (session.Result, error) {
		return s.Move(rows, spec.Folder, trashFolder)
	})
	if err != nil {
		return err
	}
	return reportResult("deleted", ao.dryRun, res)
}

func runMove(cmd *cobra.Command, g *globalOptions, fo *filterOptions, ao *actionOptions, dest string) error {
	s, st, err := openSession(cmd, g, ao.dryRun)
	if err != nil {
		return err
	}
	defer s.Close()

	exists, err := s.FolderExists(dest)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("destination folder %q does not exist", dest)
	}
	rows, spec, proceed, err := findForAction(s, st, fo)
	if err != nil || !proceed {
		return err
	}
	ok, err := confirm(ao, "move", session.Describe("Move", len(rows), fmt.Sprintf("to %q", dest)))
	if err != nil || !ok {
		return err
	}
	res, err := withProgress(s, "Moving", len(rows), func() (session.Result, error) {
		return s.Move(rows, spec.Folder, dest)
	})
	if err != nil {
		return err
	}
	return reportResult("moved", ao.dryRun, res)
}

func runExport(cmd *cobra.Command, g *globalOptions, fo *filterOptions, ao *actionOptions, o session.ExportOptions) error {
	s, st, err := openSession(cmd, g, ao.dryRun)
	if err != nil {
		return err
	}
	defer s.Close()

	rows, spec, proceed, err := findForAction(s, st, fo)
	if err != nil || !proceed {
		return err
	}
	ok, err := confirm(ao, "export", session.Describe("Export", len(rows), fmt.Sprintf("to %q (%s)", o.Dir, o.Format)))
	if err != nil || !ok {
		return err
	}
	res, err := withProgress(s, "Exporting", len(rows), func() (session.Result, error) {
		return s.Export(rows, spec.Folder, o)
	})
	if err != nil {
		return err
	}
	return reportResult("exported", ao.dryRun, res)
}

func runMark(cmd *cobra.Command, g *globalOptions, fo *filterOptions, ao *actionOptions, flags session.MarkFlags) error {
	s, st, err := openSession(cmd, g, ao.dryRun)
	if err != nil {
		return err
	}
	defer s.Close()

	rows, spec, proceed, err := findForAction(s, st, fo)
	if err != nil || !proceed {
		return err
	}
	ok, err := confirm(ao, "mark", session.Describe(capitalize(flags.Describe()), len(rows), ""))
	if err != nil || !ok {
		return err
	}
	res, err := withProgress(s, "Marking", len(rows), func() (session.Result, error) {
		return s.Mark(rows, spec.Folder, flags)
	})
	if err != nil {
		return err
	}
	return reportResult("marked", ao.dryRun, res)
}

func runQuota(cmd *cobra.Command, g *globalOptions) error {
	s, _, err := openSession(cmd, g, false)
	if err != nil {
		return err
	}
	defer s.Close()

	rows, err := s.Quota()
	if err != nil {
		if errors.Is(err, session.ErrUnsupportedByServer) {
			return fmt.Errorf("quota: %w", err)
		}
		return err
	}
	fmt.Print(display.Quota(rows))
	return nil
}

func runStatus(cmd *cobra.Command, g *globalOptions) error {
	s, _, err := openSession(cmd, g, false)
	if err != nil {
		return err
	}
	defer s.Close()

	rows, err := s.Status()
	if err != nil {
		return err
	}
	fmt.Print(display.Status(rows))
	return nil
}
