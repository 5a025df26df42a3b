package persist

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	lullerrors "github.com/Iron-Ham/lull/internal/errors"
)

// Store saves and loads the complete ordered session set.
type Store interface {
	// Save replaces the persisted set with records, preserving order.
	Save(ctx context.Context, records []Record) error
	// Load returns the persisted set in stored order. Absent storage yields
	// an empty set and a nil error. When some records were malformed, the
	// valid ones are returned together with a corrupt StorageError.
	Load(ctx context.Context) ([]Record, error)
}

// CorruptSuffix is appended to a storage file that could not be parsed at all.
const CorruptSuffix = ".corrupt"

// FileStore is a Store backed by a single file.
type FileStore struct {
	mu    sync.Mutex
	fs    afero.Fs
	path  string
	codec Codec
}

// NewFileStore creates a FileStore for path on fsys. A nil codec selects JSON.
func NewFileStore(fsys afero.Fs, path string, codec Codec) *FileStore {
	if codec == nil {
		codec = JSONCodec{}
	}
	return &FileStore{fs: fsys, path: path, codec: codec}
}

// Path returns the storage file location.
func (s *FileStore) Path() string {
	return s.path
}

// Codec returns the codec used to encode the file.
func (s *FileStore) Codec() Codec {
	return s.codec
}

// Save atomically replaces the storage file with the encoded records.
func (s *FileStore) Save(ctx context.Context, records []Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := s.codec.Encode(records)
	if err != nil {
		return s.storageErr(lullerrors.KindWriteFailure, "encode sessions", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return s.storageErr(lullerrors.KindWriteFailure, "create storage directory", err)
	}
	if err := atomicWriteFile(s.fs, s.path, data, 0o600); err != nil {
		return s.storageErr(lullerrors.KindWriteFailure, "write sessions", err)
	}
	return nil
}

// Load reads and decodes the storage file. A document that cannot be parsed
// at all is moved aside to path+CorruptSuffix so the next Save starts clean.
func (s *FileStore) Load(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if errorsIsNotExist(err) {
			return []Record{}, nil
		}
		return nil, s.storageErr(lullerrors.KindUnreadable, "read sessions", err)
	}

	elems, err := s.codec.DecodeRaw(data)
	if err != nil {
		cause := err
		if qerr := s.fs.Rename(s.path, s.path+CorruptSuffix); qerr != nil {
			cause = lullerrors.Join(err, fmt.Errorf("quarantine: %w", qerr))
		}
		return nil, s.storageErr(lullerrors.KindCorrupt, "decode sessions", cause)
	}

	records, err := parseRecords(elems)
	if err != nil {
		var se *lullerrors.StorageError
		if lullerrors.As(err, &se) {
			se.WithPath(s.path)
		}
		return records, err
	}
	return records, nil
}

// Remove deletes the storage file. Removing absent storage is not an error.
func (s *FileStore) Remove(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fs.Remove(s.path); err != nil && !errorsIsNotExist(err) {
		return s.storageErr(lullerrors.KindWriteFailure, "remove sessions", err)
	}
	return nil
}

func (s *FileStore) storageErr(kind lullerrors.Kind, msg string, cause error) *lullerrors.StorageError {
	return lullerrors.NewStorageError(kind, msg, cause).WithPath(s.path)
}

func errorsIsNotExist(err error) bool {
	return lullerrors.Is(err, fs.ErrNotExist) || os.IsNotExist(err)
}

// atomicWriteFile writes data to a temp file in the target directory, syncs
// it, then renames it over path so readers never observe a partial file.
func atomicWriteFile(fsys afero.Fs, path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	tmp, err := afero.TempFile(fsys, dir, ".sessions-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = fsys.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := fsys.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := fsys.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
