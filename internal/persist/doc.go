// Package persist stores the full ordered set of sessions in durable storage.
//
// A [Store] saves and loads the whole set at once; there are no incremental
// updates. [FileStore] is the file-backed implementation. It writes through
// an afero.Fs so that callers can swap in an in-memory or read-only
// filesystem, and every write is atomic (temp file, fsync, rename).
//
// The on-disk document is an ordered list of [Record] values encoded by a
// [Codec]: JSON (the default), TOML, or YAML. Decoding is tolerant at the
// record level: a malformed record is skipped and reported while the rest
// of the set still loads.
//
// [FileLock] provides cross-process exclusion so that two processes never
// share one storage file.
package persist
