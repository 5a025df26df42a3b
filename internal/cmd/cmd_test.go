package cmd

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/lull/internal/activity"
	"github.com/Iron-Ham/lull/internal/persist"
	"github.com/Iron-Ham/lull/internal/session"
)

// executeCommand runs a cobra command with args and returns captured output
func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err = root.Execute()
	return buf.String(), err
}

// setupTestEnvironment points the config directory and session file at a
// temp dir and resets global command state.
func setupTestEnvironment(t *testing.T) (configDir, storagePath string) {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("LULL_LOGGING_LEVEL", "error")

	storagePath = filepath.Join(dir, "data", "sessions.json")
	t.Setenv("LULL_PERSISTENCE_PATH", storagePath)

	viper.Reset()
	clearCorrupt = false
	runWatchDir = ""
	rootCmd.SetIn(nil)
	t.Cleanup(viper.Reset)

	return filepath.Join(dir, "lull"), storagePath
}

func writeSessions(t *testing.T, path string, records []persist.Record) {
	t.Helper()
	store := persist.NewFileStore(afero.NewOsFs(), path, persist.JSONCodec{})
	require.NoError(t, store.Save(context.Background(), records), "failed to write sessions")
}

func int64Ptr(v int64) *int64 { return &v }

func TestRootCommand(t *testing.T) {
	assert.Equal(t, "lull", rootCmd.Use)

	var names []string
	for _, cmd := range rootCmd.Commands() {
		names = append(names, cmd.Name())
	}
	for _, expected := range []string{"run", "sessions", "config"} {
		assert.Contains(t, names, expected, "expected subcommand %q", expected)
	}
}

func TestConfigShow(t *testing.T) {
	setupTestEnvironment(t)
	t.Setenv("LULL_SESSION_GRACE_PERIOD", "45s")

	output, err := executeCommand(rootCmd, "config", "show")
	require.NoError(t, err)

	for _, want := range []string{"grace_period: 45s", "poll_interval: 1s", "format: json", "(none - using defaults)"} {
		assert.Contains(t, output, want)
	}
}

func TestConfigInitAndSet(t *testing.T) {
	configDir, _ := setupTestEnvironment(t)
	configFile := filepath.Join(configDir, "config.yaml")

	output, err := executeCommand(rootCmd, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, output, configFile)

	_, err = executeCommand(rootCmd, "config", "init")
	assert.Error(t, err, "second config init should fail")

	_, err = executeCommand(rootCmd, "config", "set", "session.grace_period", "30s")
	require.NoError(t, err)

	data, err := os.ReadFile(configFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "grace_period: 30s")
}

func TestConfigSet_Invalid(t *testing.T) {
	setupTestEnvironment(t)

	tests := []struct {
		name string
		args []string
	}{
		{"unknown key", []string{"nope.key", "1"}},
		{"duration without unit", []string{"session.grace_period", "15"}},
		{"negative grace period", []string{"session.grace_period", "-1s"}},
		{"bad format", []string{"persistence.format", "xml"}},
		{"bad bool", []string{"logging.compress", "maybe"}},
		{"negative int", []string{"logging.max_backups", "-2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"config", "set"}, tt.args...)
			_, err := executeCommand(rootCmd, args...)
			assert.Error(t, err, "config set %v should fail", tt.args)
		})
	}
}

func TestConfigPath(t *testing.T) {
	configDir, _ := setupTestEnvironment(t)

	output, err := executeCommand(rootCmd, "config", "path")
	require.NoError(t, err)
	assert.Contains(t, output, filepath.Join(configDir, "config.yaml"))
	assert.Contains(t, output, "LULL_SESSION_GRACE_PERIOD", "expected env var hint")
}

func TestSessionsList(t *testing.T) {
	_, storagePath := setupTestEnvironment(t)

	now := time.Now()
	writeSessions(t, storagePath, []persist.Record{
		{ID: "active-one", StartTime: now.Add(-time.Minute).UnixMilli(), GracePeriod: 15000},
		{ID: "recent-one", StartTime: now.Add(-time.Minute).UnixMilli(), EndTime: int64Ptr(now.UnixMilli()), GracePeriod: 3_600_000},
		{ID: "old-one", StartTime: now.Add(-time.Hour).UnixMilli(), EndTime: int64Ptr(now.Add(-50 * time.Minute).UnixMilli()), GracePeriod: 15000},
	})

	output, err := executeCommand(rootCmd, "sessions", "list")
	require.NoError(t, err)

	for _, want := range []string{"active-one", "recent-one", "old-one", "active", "resumable", "expired", "3 session(s)"} {
		assert.Contains(t, output, want)
	}
}

func TestSessionsList_Absent(t *testing.T) {
	setupTestEnvironment(t)

	output, err := executeCommand(rootCmd, "sessions", "list")
	require.NoError(t, err)
	assert.Contains(t, output, "No sessions stored")
}

func TestSessionsList_SkipsMalformed(t *testing.T) {
	_, storagePath := setupTestEnvironment(t)

	require.NoError(t, os.MkdirAll(filepath.Dir(storagePath), 0755))
	data := `[{"id":"good","startTime":1700000000000,"endTime":1700000001000,"gracePeriod":15000},{"id":"bad"}]`
	require.NoError(t, os.WriteFile(storagePath, []byte(data), 0644))

	output, err := executeCommand(rootCmd, "sessions", "list")
	require.NoError(t, err)
	assert.Contains(t, output, "warning:")
	assert.Contains(t, output, "1 session(s)", "the valid record should be listed")

	// list never quarantines
	assert.FileExists(t, storagePath)
}

func TestSessionsClear(t *testing.T) {
	_, storagePath := setupTestEnvironment(t)

	writeSessions(t, storagePath, []persist.Record{{ID: "a", StartTime: 1, GracePeriod: 0}})
	require.NoError(t, os.WriteFile(storagePath+persist.CorruptSuffix, []byte("junk"), 0644))

	_, err := executeCommand(rootCmd, "sessions", "clear")
	require.NoError(t, err)
	assert.NoFileExists(t, storagePath)
	assert.FileExists(t, storagePath+persist.CorruptSuffix, "quarantined file should be kept without --corrupt")

	_, err = executeCommand(rootCmd, "sessions", "clear", "--corrupt")
	require.NoError(t, err)
	assert.NoFileExists(t, storagePath+persist.CorruptSuffix)
}

func TestSessionsClear_NothingStored(t *testing.T) {
	setupTestEnvironment(t)

	_, err := executeCommand(rootCmd, "sessions", "clear")
	assert.NoError(t, err, "clearing absent storage should succeed")
}

func TestRunCommand(t *testing.T) {
	_, storagePath := setupTestEnvironment(t)

	rootCmd.SetIn(strings.NewReader("start\nstatus\nquit\n"))
	output, err := executeCommand(rootCmd, "run")
	require.NoError(t, err)
	assert.Contains(t, output, " active", "status should show an active session")

	store := persist.NewFileStore(afero.NewOsFs(), storagePath, persist.JSONCodec{})
	records, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.NotNil(t, records[0].EndTime, "quit should end the session before exit")
}

type fakeController struct {
	starts, ends int
	sessions     []session.Session
}

func (f *fakeController) StartSession()               { f.starts++ }
func (f *fakeController) EndSession()                 { f.ends++ }
func (f *fakeController) Snapshot() []session.Session { return f.sessions }

func TestReadCommands(t *testing.T) {
	ctrl := &fakeController{
		sessions: []session.Session{session.FromRecord(persist.Record{ID: "s1", StartTime: 1, GracePeriod: 1000})},
	}
	in := strings.NewReader("start\n\nEND\nstatus\nbogus\nquit\nstart\n")
	var out bytes.Buffer

	require.NoError(t, readCommands(context.Background(), in, &out, ctrl))

	assert.Equal(t, 1, ctrl.starts, "input after quit is ignored")
	assert.Equal(t, 2, ctrl.ends, "end and quit")
	assert.Contains(t, out.String(), "s1 active")
	assert.Contains(t, out.String(), `unknown command "bogus"`)
}

func TestReadCommands_EOF(t *testing.T) {
	ctrl := &fakeController{}
	var out bytes.Buffer

	require.NoError(t, readCommands(context.Background(), strings.NewReader("start\nstatus\n"), &out, ctrl))
	assert.Equal(t, 1, ctrl.starts)
	assert.Equal(t, 0, ctrl.ends)
	assert.Contains(t, out.String(), "no sessions")
}

func TestReadCommands_Canceled(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- readCommands(ctx, pr, io.Discard, &fakeController{})
	}()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("readCommands did not return after cancel")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{1500 * time.Microsecond, "2ms"},
		{90 * time.Second, "1m30s"},
		{1499 * time.Millisecond, "1s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.in), "formatDuration(%v)", tt.in)
	}
}

func TestWatchedController_SharesSessionState(t *testing.T) {
	store := persist.NewFileStore(afero.NewMemMapFs(), "/sessions.json", nil)
	mgr := session.NewManager(store)
	mgr.Initialize(nil)
	defer mgr.Close()

	src, err := activity.New(t.TempDir(), mgr)
	require.NoError(t, err)
	src.Start()
	defer src.Stop()

	ctrl := watchedController{Manager: mgr, src: src}

	ctrl.StartSession()
	_, ok := mgr.Current()
	require.True(t, ok, "start should open a manager session")
	require.True(t, src.Active(), "start should mark the source active")

	ctrl.EndSession()
	_, ok = mgr.Current()
	assert.False(t, ok, "end should close the manager session")
	assert.False(t, src.Active(), "end should mark the source idle")
}
