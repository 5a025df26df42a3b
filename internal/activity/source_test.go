package activity

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSink struct {
	mu     sync.Mutex
	starts int
	ends   int
}

func (c *countingSink) StartSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.starts++
}

func (c *countingSink) EndSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ends++
}

func (c *countingSink) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.starts, c.ends
}

func newTestSource(t *testing.T, idle time.Duration, opts ...Option) (*Source, *countingSink, string) {
	t.Helper()

	dir := t.TempDir()
	sink := &countingSink{}
	src, err := New(dir, sink, append([]Option{WithIdleTimeout(idle)}, opts...)...)
	require.NoError(t, err)
	src.Start()
	t.Cleanup(src.Stop)
	return src, sink, dir
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(time.Now().String()), 0o644))
}

func TestSource_BurstMapsToOneSession(t *testing.T) {
	src, sink, dir := newTestSource(t, 100*time.Millisecond)

	for i := range 5 {
		writeFile(t, filepath.Join(dir, "file.txt"))
		if i < 4 {
			time.Sleep(10 * time.Millisecond)
		}
	}

	require.Eventually(t, func() bool {
		starts, _ := sink.counts()
		return starts == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, src.Active())

	require.Eventually(t, func() bool {
		_, ends := sink.counts()
		return ends == 1
	}, 2*time.Second, 10*time.Millisecond)

	starts, _ := sink.counts()
	assert.Equal(t, 1, starts)
	assert.False(t, src.Active())
	assert.GreaterOrEqual(t, src.Events(), 1)
}

func TestSource_SecondBurstStartsAgain(t *testing.T) {
	_, sink, dir := newTestSource(t, 50*time.Millisecond)

	writeFile(t, filepath.Join(dir, "a.txt"))
	require.Eventually(t, func() bool {
		_, ends := sink.counts()
		return ends == 1
	}, 2*time.Second, 5*time.Millisecond)

	writeFile(t, filepath.Join(dir, "b.txt"))
	require.Eventually(t, func() bool {
		starts, ends := sink.counts()
		return starts == 2 && ends == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSource_WatchesNewSubdirectories(t *testing.T) {
	src, sink, dir := newTestSource(t, time.Hour)

	sub := filepath.Join(dir, "nested")
	require.NoError(t, os.Mkdir(sub, 0o755))
	require.Eventually(t, func() bool { return src.Events() >= 1 }, 2*time.Second, 5*time.Millisecond)

	before := src.Events()
	// Give the watcher time to register the new directory.
	time.Sleep(50 * time.Millisecond)
	writeFile(t, filepath.Join(sub, "deep.txt"))
	require.Eventually(t, func() bool { return src.Events() > before }, 2*time.Second, 5*time.Millisecond)

	starts, _ := sink.counts()
	assert.Equal(t, 1, starts)
}

func TestSource_IgnoresConfiguredPaths(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, ".git"), 0o755))

	sink := &countingSink{}
	src, err := New(dir, sink, WithIdleTimeout(time.Hour), WithIgnoreHidden(), WithIgnorePaths("*.swp"))
	require.NoError(t, err)
	src.Start()
	t.Cleanup(src.Stop)

	writeFile(t, filepath.Join(dir, ".hidden"))
	writeFile(t, filepath.Join(dir, "notes.swp"))
	writeFile(t, filepath.Join(dir, ".git", "index"))
	time.Sleep(100 * time.Millisecond)

	starts, _ := sink.counts()
	assert.Zero(t, starts)
	assert.Zero(t, src.Events())
}

func TestSource_StopEndsActiveSession(t *testing.T) {
	dir := t.TempDir()
	sink := &countingSink{}
	src, err := New(dir, sink, WithIdleTimeout(time.Hour))
	require.NoError(t, err)
	src.Start()

	writeFile(t, filepath.Join(dir, "a.txt"))
	require.Eventually(t, src.Active, 2*time.Second, 5*time.Millisecond)

	src.Stop()
	src.Stop()

	starts, ends := sink.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, ends)
}

func TestSource_StopWithoutStart(t *testing.T) {
	sink := &countingSink{}
	src, err := New(t.TempDir(), sink)
	require.NoError(t, err)

	src.Stop()
	src.Start()

	_, ends := sink.counts()
	assert.Zero(t, ends)
}

func TestNew_MissingDirectory(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing"), &countingSink{})
	assert.Error(t, err)
}

func TestSource_Ignored(t *testing.T) {
	src := &Source{root: "/repo", ignorePaths: []string{".git", "*.tmp"}}

	assert.True(t, src.ignored("/repo/.git/HEAD"))
	assert.True(t, src.ignored("/repo/build/x.tmp"))
	assert.False(t, src.ignored("/repo/src/main.go"))
	assert.False(t, src.ignored("/repo"))
}

func TestSource_ManualEndThenWriteStartsAgain(t *testing.T) {
	src, sink, dir := newTestSource(t, time.Second)

	writeFile(t, filepath.Join(dir, "a.txt"))
	require.Eventually(t, src.Active, 2*time.Second, 5*time.Millisecond)

	src.EndSession()
	assert.False(t, src.Active())

	writeFile(t, filepath.Join(dir, "a.txt"))
	require.Eventually(t, func() bool {
		starts, _ := sink.counts()
		return starts == 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, src.Active())
}

func TestSource_IdleTimerIgnoresManualRestart(t *testing.T) {
	src, sink, dir := newTestSource(t, 100*time.Millisecond)

	writeFile(t, filepath.Join(dir, "a.txt"))
	require.Eventually(t, src.Active, 2*time.Second, 5*time.Millisecond)

	src.EndSession()
	src.StartSession()

	time.Sleep(400 * time.Millisecond)
	starts, ends := sink.counts()
	assert.Equal(t, 2, starts)
	assert.Equal(t, 1, ends, "idle timer armed before the manual start must not end it")
	assert.True(t, src.Active())
}

func TestSource_ManualSessionEndsAfterLaterQuiet(t *testing.T) {
	src, sink, dir := newTestSource(t, 100*time.Millisecond)

	src.StartSession()
	time.Sleep(300 * time.Millisecond)
	_, ends := sink.counts()
	assert.Zero(t, ends, "no file activity, no idle end")

	writeFile(t, filepath.Join(dir, "a.txt"))
	require.Eventually(t, func() bool {
		_, ends := sink.counts()
		return ends == 1
	}, 2*time.Second, 10*time.Millisecond)

	starts, _ := sink.counts()
	assert.Equal(t, 1, starts, "the write joins the manual session")
	assert.False(t, src.Active())
}
