// Package logging provides structured logging for lull.
//
// It wraps log/slog with a JSON handler and adds persistent attributes so
// that every entry emitted on behalf of a session carries its id.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/var/log/lull", "INFO", logging.DefaultRotationConfig())
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	logger.Info("session created", "grace_period", "15s")
//	logger.WithSession(id).Warn("persist failed", "error", err)
//
// Output:
//
//	{"time":"...","level":"WARN","msg":"persist failed","session_id":"...","error":"..."}
//
// # Rotation
//
// [RotatingWriter] rotates lull.log once it exceeds MaxSizeMB, keeping
// MaxBackups numbered backups (lull.log.1 is the newest), optionally gzipped.
//
// # Testing
//
// Use [NopLogger] to discard output, or [NewWriterLogger] with a buffer to
// assert on entries.
package logging
