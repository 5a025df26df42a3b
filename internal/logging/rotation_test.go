package logging

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotatingWriter_AppendsWithoutRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", LogFileName)

	rw, err := NewRotatingWriter(path, RotationConfig{})
	require.NoError(t, err)
	defer rw.Close()

	for i := 0; i < 3; i++ {
		_, err := rw.Write([]byte("line\n"))
		require.NoError(t, err)
	}

	assert.Equal(t, int64(15), rw.Size())
	assert.Equal(t, path, rw.Path())
	assert.NoFileExists(t, path+".1", "no backup should exist when rotation is disabled")
}

func TestRotatingWriter_Rotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), LogFileName)

	rw, err := NewRotatingWriter(path, RotationConfig{MaxSizeMB: 1, MaxBackups: 2})
	require.NoError(t, err)
	defer rw.Close()

	chunk := []byte(strings.Repeat("x", 700*1024))
	for i := 0; i < 3; i++ {
		_, err := rw.Write(chunk)
		require.NoError(t, err, "write %d", i)
	}

	assert.FileExists(t, path+".1")
	assert.FileExists(t, path+".2")
	assert.NoFileExists(t, path+".3", "backups beyond MaxBackups should be removed")
	assert.Equal(t, int64(len(chunk)), rw.Size())
}

func TestRotatingWriter_Compress(t *testing.T) {
	path := filepath.Join(t.TempDir(), LogFileName)

	rw, err := NewRotatingWriter(path, RotationConfig{MaxSizeMB: 1, MaxBackups: 1, Compress: true})
	require.NoError(t, err)
	defer rw.Close()

	chunk := []byte(strings.Repeat("y", 600*1024))
	_, _ = rw.Write(chunk)
	_, _ = rw.Write(chunk)

	assert.FileExists(t, path+".1.gz")
	assert.NoFileExists(t, path+".1", "uncompressed backup should be removed after compression")
}

func TestRotatingWriter_Concurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), LogFileName)

	rw, err := NewRotatingWriter(path, RotationConfig{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = rw.Write([]byte("entry\n"))
			}
		}()
	}
	wg.Wait()

	require.NoError(t, rw.Close())
	assert.NoError(t, rw.Close(), "second Close should be a no-op")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 400, strings.Count(string(data), "entry\n"))

	_, err = rw.Write([]byte("late"))
	assert.Error(t, err, "Write after Close should fail")
}
