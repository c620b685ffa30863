package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/slashmail/slashmail/internal/filter"
	"github.com/slashmail/slashmail/internal/session"
)

var (
	// Set via -ldflags at build time.
	version = "dev"
	commit  = ""
	date    = ""
)

// globalOptions are the persistent connection flags. Unset flags fall
// through to the environment, the config file, then built-in defaults.
type globalOptions struct {
	host       string
	port       int
	tls        bool
	user       string
	configPath string
	verbose    bool
}

func main() {
	g := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "slashmail",
		Short: "Slashmail - bulk IMAP search, triage, and cleanup",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage: true,
	}

	var showVersion bool
	rootCmd.PersistentFlags().BoolVarP(&showVersion, "version", "V", false, "Print version and exit")
	rootCmd.PersistentFlags().StringVar(&g.host, "host", "", "IMAP host (default 127.0.0.1)")
	rootCmd.PersistentFlags().IntVar(&g.port, "port", 0, "IMAP port (default 1143 plain, 993 TLS)")
	rootCmd.PersistentFlags().BoolVar(&g.tls, "tls", false, "Connect with implicit TLS")
	rootCmd.PersistentFlags().StringVarP(&g.user, "user", "u", "", "IMAP username (or SLASHMAIL_USER)")
	rootCmd.PersistentFlags().StringVar(&g.configPath, "config", "", "Config file path (default $XDG_CONFIG_HOME/slashmail/config.toml)")
	rootCmd.PersistentFlags().BoolVar(&g.verbose, "verbose", false, "Enable debug logging including wire traces")

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
		if g.verbose {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		} else {
			zerolog.SetGlobalLevel(zerolog.WarnLevel)
		}
		if showVersion {
			fmt.Printf("slashmail %s", version)
			if commit != "" {
				fmt.Printf(" (%s)", commit)
			}
			if date != "" {
				fmt.Printf(" built %s", date)
			}
			fmt.Println()
			os.Exit(0)
		}
	}

	rootCmd.AddCommand(
		newSearchCmd(g),
		newCountCmd(g),
		newDeleteCmd(g),
		newMoveCmd(g),
		newExportCmd(g),
		newMarkCmd(g),
		newQuotaCmd(g),
		newStatusCmd(g),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// filterOptions is the shared filter flag surface.
type filterOptions struct {
	folder     string
	allFolders bool
	subject    string
	from       string
	to         string
	cc         string
	seen       bool
	unseen     bool
	since      string
	before     string
	larger     string
	limit      int
}

func addFilterFlags(cmd *cobra.Command, o *filterOptions) {
	cmd.Flags().StringVarP(&o.folder, "folder", "f", "", "Folder to operate on (default from config, else INBOX)")
	cmd.Flags().BoolVar(&o.allFolders, "all-folders", false, "Operate on every folder except Trash/Spam aliases")
	cmd.Flags().StringVar(&o.subject, "subject", "", "Subject contains")
	cmd.Flags().StringVar(&o.from, "from", "", "From contains")
	cmd.Flags().StringVar(&o.to, "to", "", "To contains")
	cmd.Flags().StringVar(&o.cc, "cc", "", "Cc contains")
	cmd.Flags().BoolVar(&o.seen, "seen", false, "Only read messages")
	cmd.Flags().BoolVar(&o.unseen, "unseen", false, "Only unread messages")
	cmd.Flags().StringVar(&o.since, "since", "", "Received since (YYYY-MM-DD or 7d/2w/1m/1y)")
	cmd.Flags().StringVar(&o.before, "before", "", "Received before (YYYY-MM-DD or 7d/2w/1m/1y)")
	cmd.Flags().StringVar(&o.larger, "larger", "", "Minimum size (bytes, or 512K/1M)")
	cmd.Flags().IntVarP(&o.limit, "limit", "n", 0, "Maximum number of messages (0 = unbounded)")
}

// spec validates the flags and builds the filter.
func (o *filterOptions) spec(defaultFolder string, now time.Time) (filter.Spec, error) {
	if o.seen && o.unseen {
		return filter.Spec{}, fmt.Errorf("--seen and --unseen are mutually exclusive")
	}
	if o.allFolders && o.folder != "" {
		return filter.Spec{}, fmt.Errorf("--folder and --all-folders are mutually exclusive")
	}
	if o.limit < 0 {
		return filter.Spec{}, fmt.Errorf("--limit must be positive")
	}
	s := filter.Spec{
		Folder:     o.folder,
		AllFolders: o.allFolders,
		Subject:    o.subject,
		From:       o.from,
		To:         o.to,
		Cc:         o.cc,
		Seen:       o.seen,
		Unseen:     o.unseen,
		Limit:      o.limit,
	}
	if s.Folder == "" {
		s.Folder = defaultFolder
	}
	var err error
	if o.since != "" {
		if s.Since, err = filter.ParseDate(o.since, now); err != nil {
			return filter.Spec{}, fmt.Errorf("--since: %w", err)
		}
	}
	if o.before != "" {
		if s.Before, err = filter.ParseDate(o.before, now); err != nil {
			return filter.Spec{}, fmt.Errorf("--before: %w", err)
		}
	}
	if o.larger != "" {
		if s.Larger, err = filter.ParseSize(o.larger); err != nil {
			return filter.Spec{}, fmt.Errorf("--larger: %w", err)
		}
	}
	return s, nil
}

// actionOptions are the shared mutating-command flags.
type actionOptions struct {
	yes    bool
	dryRun bool
}

func addActionFlags(cmd *cobra.Command, o *actionOptions) {
	cmd.Flags().BoolVarP(&o.yes, "yes", "y", false, "Skip the confirmation prompt")
	cmd.Flags().BoolVar(&o.dryRun, "dry-run", false, "Report what would happen without changing anything")
}

func newSearchCmd(g *globalOptions) *cobra.Command {
	fo := &filterOptions{}
	cmd := &cobra.Command{
		Use:   "search",
		Short: "List messages matching the filter",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, g, fo)
		},
	}
	addFilterFlags(cmd, fo)
	return cmd
}

func newCountCmd(g *globalOptions) *cobra.Command {
	fo := &filterOptions{}
	cmd := &cobra.Command{
		Use:   "count",
		Short: "Count messages matching the filter",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCount(cmd, g, fo)
		},
	}
	addFilterFlags(cmd, fo)
	return cmd
}

func newDeleteCmd(g *globalOptions) *cobra.Command {
	fo := &filterOptions{}
	ao := &actionOptions{}
	var trashFolder string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Move matching messages to the trash folder",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(cmd, g, fo, ao, trashFolder)
		},
	}
	addFilterFlags(cmd, fo)
	addActionFlags(cmd, ao)
	cmd.Flags().StringVar(&trashFolder, "trash-folder", "", "Trash folder name (default from config, else Trash)")
	return cmd
}

func newMoveCmd(g *globalOptions) *cobra.Command {
	fo := &filterOptions{}
	ao := &actionOptions{}
	var dest string
	cmd := &cobra.Command{
		Use:   "move",
		Short: "Move matching messages to another folder",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dest == "" {
				return fmt.Errorf("--to is required")
			}
			return runMove(cmd, g, fo, ao, dest)
		},
	}
	addFilterFlags(cmd, fo)
	addActionFlags(cmd, ao)
	cmd.Flags().StringVar(&dest, "to", "", "Destination folder (must exist)")
	return cmd
}

func newExportCmd(g *globalOptions) *cobra.Command {
	fo := &filterOptions{}
	ao := &actionOptions{}
	var outDir, format string
	var force bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export matching messages to disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			var f session.ExportFormat
			switch format {
			case "eml":
				f = session.FormatEML
			case "mbox":
				f = session.FormatMbox
			default:
				return fmt.Errorf("--format must be eml or mbox, got %q", format)
			}
			return runExport(cmd, g, fo, ao, session.ExportOptions{Dir: outDir, Format: f, Force: force})
		},
	}
	addFilterFlags(cmd, fo)
	addActionFlags(cmd, ao)
	cmd.Flags().StringVarP(&outDir, "output-dir", "o", ".", "Directory to write messages into")
	cmd.Flags().StringVar(&format, "format", "eml", "Export format: eml (one file per message) or mbox")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing files")
	return cmd
}

func newMarkCmd(g *globalOptions) *cobra.Command {
	fo := &filterOptions{}
	ao := &actionOptions{}
	flags := session.MarkFlags{}
	cmd := &cobra.Command{
		Use:   "mark",
		Short: "Change read/flagged state of matching messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.Validate(); err != nil {
				return err
			}
			return runMark(cmd, g, fo, ao, flags)
		},
	}
	addFilterFlags(cmd, fo)
	addActionFlags(cmd, ao)
	cmd.Flags().BoolVar(&flags.Read, "read", false, "Mark as read")
	cmd.Flags().BoolVar(&flags.Unread, "unread", false, "Mark as unread")
	cmd.Flags().BoolVar(&flags.Flagged, "flagged", false, "Add the flagged marker")
	cmd.Flags().BoolVar(&flags.Unflagged, "unflagged", false, "Remove the flagged marker")
	return cmd
}

func newQuotaCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "quota",
		Short: "Show mailbox quota usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuota(cmd, g)
		},
	}
}

func newStatusCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show per-folder message counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, g)
		},
	}
}
