// Package logging provides structured JSON logging for genpause.
//
// It wraps log/slog with a small Logger type that carries persistent
// attributes (component, resource, attempt id), a size-based
// [RotatingWriter] for the on-disk log, and helpers used by the
// `genpause logs` command to read, filter and render log files.
//
// # Thread Safety
//
// All types are safe for concurrent use. Child loggers created with the
// With* methods share the parent's writer.
//
// # Usage
//
//	logger, err := logging.NewLogger(dir, "INFO", logging.DefaultRotationConfig())
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	log := logger.WithComponent("coordinator")
//	log.Info("pausing", "reason", "memory")
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"pausing","component":"coordinator","reason":"memory"}
//
// # Reading Logs
//
// [ReadLogs] parses the active file and its rotated backups; [FilterLogs]
// narrows by level, time window, component, resource or message text; and
// [WriteEntries] renders the result as text, JSON or CSV.
package logging
