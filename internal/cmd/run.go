package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/lull/internal/activity"
	"github.com/Iron-Ham/lull/internal/config"
	"github.com/Iron-Ham/lull/internal/event"
	"github.com/Iron-Ham/lull/internal/persist"
	"github.com/Iron-Ham/lull/internal/session"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Track sessions until interrupted",
	Long: `Run the session engine in the foreground.

Commands are read from stdin, one per line:
  start   - begin or resume a session
  end     - end the active session
  status  - show the tracked sessions
  quit    - end the active session and exit

With --watch, writes under the given directory also count as activity: the
first write starts a session and activity.idle_timeout of quiet ends it.
Stdin commands and file writes share one session. After 'end', the next
write resumes or starts a session; a session opened with 'start' is only
ended by the idle timeout once files have been written after it.

A line is printed for every completed session. Only one run may use a
storage file at a time.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var runWatchDir string

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&runWatchDir, "watch", "w", "", "directory whose file writes count as activity")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Close() }()

	path := cfg.Persistence.ResolvePath()
	codec, err := persist.CodecFor(cfg.Persistence.Format)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	lock := persist.NewFileLock(path)
	if err := lock.TryLock(); err != nil {
		return fmt.Errorf("cannot use %s: %w", path, err)
	}
	defer func() { _ = lock.Unlock() }()

	out := &syncWriter{w: cmd.OutOrStdout()}
	store := persist.NewFileStore(afero.NewOsFs(), path, codec)
	mgr := session.NewManager(store,
		session.WithGracePeriod(cfg.Session.GracePeriod),
		session.WithPollInterval(cfg.Session.PollInterval),
		session.WithLogger(logger),
	)
	eventSub := mgr.Bus().SubscribeAll(func(e event.Event) {
		logger.Debug("event published", "event_type", e.EventType(), "at", e.Timestamp())
	})
	defer mgr.Bus().Unsubscribe(eventSub)

	mgr.Initialize(func(s session.Session) {
		fmt.Fprintf(out, "completed %s (%s)\n", s.ID(), formatDuration(s.Duration()))
	})
	defer mgr.Close()

	logger.Info("lull running", "storage", path, "format", codec.Name(), "watch", runWatchDir)

	var ctrl controller = mgr
	if runWatchDir != "" {
		opts := []activity.Option{
			activity.WithIdleTimeout(cfg.Activity.IdleTimeout),
			activity.WithLogger(logger),
		}
		if cfg.Activity.IgnoreHidden {
			opts = append(opts, activity.WithIgnoreHidden())
		}
		src, err := activity.New(runWatchDir, mgr, opts...)
		if err != nil {
			return err
		}
		src.Start()
		defer src.Stop()
		ctrl = watchedController{Manager: mgr, src: src}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return readCommands(ctx, cmd.InOrStdin(), out, ctrl)
}

// controller is the part of the session manager driven by stdin commands.
type controller interface {
	StartSession()
	EndSession()
	Snapshot() []session.Session
}

// watchedController routes stdin start/end through the activity source so
// both inputs agree on whether a session is open.
type watchedController struct {
	*session.Manager
	src *activity.Source
}

func (c watchedController) StartSession() { c.src.StartSession() }
func (c watchedController) EndSession()   { c.src.EndSession() }

// readCommands executes one command per input line until quit, EOF, or
// ctx is done.
func readCommands(ctx context.Context, in io.Reader, out io.Writer, c controller) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}

			switch cmd := strings.ToLower(strings.TrimSpace(line)); cmd {
			case "":
			case "start":
				c.StartSession()
			case "end":
				c.EndSession()
			case "status":
				printStatus(out, c.Snapshot())
			case "quit", "exit":
				c.EndSession()
				return nil
			default:
				fmt.Fprintf(out, "unknown command %q (start, end, status, quit)\n", cmd)
			}
		}
	}
}

func printStatus(out io.Writer, sessions []session.Session) {
	if len(sessions) == 0 {
		fmt.Fprintln(out, "no sessions")
		return
	}
	now := time.Now()
	for _, s := range sessions {
		fmt.Fprintf(out, "%s %s\n", s.ID(), sessionStatus(s, now))
	}
}

// syncWriter serializes writes from the listener and the command loop.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
