package cmd

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/lull/internal/config"
	lullerrors "github.com/Iron-Ham/lull/internal/errors"
	"github.com/Iron-Ham/lull/internal/persist"
	"github.com/Iron-Ham/lull/internal/session"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect persisted sessions",
	Long:  `Commands for listing and clearing the persisted session file.`,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted sessions",
	Long: `List the sessions in the storage file with their status:
- active: a run is tracking it (or the run crashed and will recover it)
- resumable: ended, still within its grace period
- expired: past its grace period, completes on the next run's first scan

The file is only read; malformed records are reported and skipped.`,
	Args: cobra.NoArgs,
	RunE: runSessionsList,
}

var sessionsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the session file",
	Long: `Delete the persisted session file. Sessions in it will never complete.

Refuses to run while a 'lull run' process holds the storage lock.`,
	Args: cobra.NoArgs,
	RunE: runSessionsClear,
}

var clearCorrupt bool

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsClearCmd)

	sessionsClearCmd.Flags().BoolVar(&clearCorrupt, "corrupt", false, "also remove a quarantined "+persist.CorruptSuffix+" file")
}

func storageFor(cfg *config.Config, fsys afero.Fs) (*persist.FileStore, error) {
	codec, err := persist.CodecFor(cfg.Persistence.Format)
	if err != nil {
		return nil, err
	}
	return persist.NewFileStore(fsys, cfg.Persistence.ResolvePath(), codec), nil
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	osFs := afero.NewOsFs()
	store, err := storageFor(cfg, osFs)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	data, err := afero.ReadFile(osFs, store.Path())
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintf(out, "No sessions stored at %s\n", store.Path())
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", store.Path(), err)
	}

	records, err := persist.Decode(store.Codec(), data)
	if err != nil {
		if len(records) == 0 && !lullerrors.Is(err, lullerrors.ErrCorrupt) {
			return fmt.Errorf("failed to parse %s: %w", store.Path(), err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
	}

	sessions := make([]session.Session, len(records))
	for i, rec := range records {
		sessions[i] = session.FromRecord(rec)
	}

	fmt.Fprintf(out, "Sessions in %s\n", store.Path())
	renderSessions(out, sessions, time.Now())
	return nil
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	statusStyles = map[string]lipgloss.Style{
		statusActive:    cellStyle.Foreground(lipgloss.Color("42")),
		statusResumable: cellStyle.Foreground(lipgloss.Color("214")),
		statusExpired:   cellStyle.Foreground(lipgloss.Color("244")),
	}
)

const (
	statusActive    = "active"
	statusResumable = "resumable"
	statusExpired   = "expired"
)

func sessionStatus(s session.Session, now time.Time) string {
	switch {
	case s.IsActive():
		return statusActive
	case s.IsExpired(now):
		return statusExpired
	default:
		return statusResumable
	}
}

func renderSessions(w io.Writer, sessions []session.Session, now time.Time) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions.")
		return
	}

	statuses := make([]string, len(sessions))
	rows := make([][]string, len(sessions))
	for i, s := range sessions {
		statuses[i] = sessionStatus(s, now)

		ended, duration := "-", "-"
		if end, ok := s.EndTime(); ok {
			ended = end.Local().Format(time.DateTime)
			duration = formatDuration(s.Duration())
		}
		rows[i] = []string{
			s.ID(),
			statuses[i],
			s.StartTime().Local().Format(time.DateTime),
			ended,
			duration,
			formatDuration(s.GracePeriod()),
		}
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers("ID", "STATUS", "STARTED", "ENDED", "DURATION", "GRACE").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 1 && row >= 0 && row < len(statuses) {
				if style, ok := statusStyles[statuses[row]]; ok {
					return style
				}
			}
			return cellStyle
		})

	fmt.Fprintln(w, t.Render())
	fmt.Fprintf(w, "%d session(s)\n", len(sessions))
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}

func runSessionsClear(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	osFs := afero.NewOsFs()
	store, err := storageFor(cfg, osFs)
	if err != nil {
		return err
	}

	lock := persist.NewFileLock(store.Path())
	if err := lock.TryLock(); err != nil {
		if lullerrors.Is(err, lullerrors.ErrLocked) {
			return fmt.Errorf("sessions in %s are in use by a running 'lull run'", store.Path())
		}
		if !lullerrors.Is(err, fs.ErrNotExist) {
			return err
		}
		// no storage directory yet
	}
	defer func() { _ = lock.Unlock() }()

	if err := store.Remove(cmd.Context()); err != nil {
		return err
	}
	if clearCorrupt {
		if err := osFs.Remove(store.Path() + persist.CorruptSuffix); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove quarantined file: %w", err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s\n", store.Path())
	return nil
}
