package logging

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// RotationConfig controls size-based rotation of the log file.
type RotationConfig struct {
	// MaxSizeMB is the size at which the file is rotated. 0 disables rotation.
	MaxSizeMB int
	// MaxBackups is how many rotated files are kept as .1 .. .N.
	MaxBackups int
	// Compress gzips rotated files.
	Compress bool
}

// DefaultRotationConfig returns the rotation settings used when none are
// configured.
func DefaultRotationConfig() RotationConfig {
	return RotationConfig{MaxSizeMB: 10, MaxBackups: 3}
}

// RotatingWriter is an io.WriteCloser over a file that is rotated once it
// would grow past the configured size. It is safe for concurrent use.
type RotatingWriter struct {
	mu      sync.Mutex
	path    string
	limit   int64
	backups int
	gzip    bool

	file *os.File
	size int64
}

// NewRotatingWriter opens (or creates) path for appending.
func NewRotatingWriter(path string, cfg RotationConfig) (*RotatingWriter, error) {
	rw := &RotatingWriter{
		path:    path,
		limit:   int64(cfg.MaxSizeMB) << 20,
		backups: cfg.MaxBackups,
		gzip:    cfg.Compress,
	}
	if err := rw.open(); err != nil {
		return nil, err
	}
	return rw, nil
}

func (rw *RotatingWriter) open() error {
	if err := os.MkdirAll(filepath.Dir(rw.path), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(rw.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	rw.file = f
	rw.size = info.Size()
	return nil
}

// Write appends p, rotating first when p would push the file past the limit.
// A failed rotation is reported on stderr and the write still goes to the
// current file.
func (rw *RotatingWriter) Write(p []byte) (int, error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.file == nil {
		return 0, fmt.Errorf("log file is closed")
	}
	if rw.limit > 0 && rw.size > 0 && rw.size+int64(len(p)) > rw.limit {
		if err := rw.rotate(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: log rotation failed: %v\n", err)
		}
	}

	n, err := rw.file.Write(p)
	rw.size += int64(n)
	return n, err
}

func (rw *RotatingWriter) rotate() error {
	if err := rw.file.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	rw.file = nil

	rw.shiftBackups()

	first := rw.backupPath(1)
	if rw.backups <= 0 {
		_ = os.Remove(rw.path)
	} else if err := os.Rename(rw.path, first); err != nil {
		if openErr := rw.open(); openErr != nil {
			return fmt.Errorf("failed to rename log file and reopen: %w", openErr)
		}
		return fmt.Errorf("failed to rename log file: %w", err)
	} else if rw.gzip {
		go compress(first)
	}

	return rw.open()
}

// shiftBackups drops the oldest backup and renames .i to .i+1.
func (rw *RotatingWriter) shiftBackups() {
	if rw.backups <= 0 {
		return
	}
	oldest := rw.backupPath(rw.backups)
	_ = os.Remove(oldest)
	_ = os.Remove(oldest + ".gz")

	for i := rw.backups - 1; i >= 1; i-- {
		from, to := rw.backupPath(i), rw.backupPath(i+1)
		if _, err := os.Stat(from + ".gz"); err == nil {
			_ = os.Rename(from+".gz", to+".gz")
			continue
		}
		if _, err := os.Stat(from); err == nil {
			_ = os.Rename(from, to)
		}
	}
}

func (rw *RotatingWriter) backupPath(n int) string {
	return fmt.Sprintf("%s.%d", rw.path, n)
}

// compress gzips path into path.gz and removes the original on success.
func compress(path string) {
	src, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to open %s for compression: %v\n", path, err)
		return
	}
	defer func() { _ = src.Close() }()

	dst, err := os.Create(path + ".gz")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to create %s.gz: %v\n", path, err)
		return
	}

	zw := gzip.NewWriter(dst)
	_, copyErr := io.Copy(zw, src)
	closeErr := zw.Close()
	fileErr := dst.Close()
	if copyErr != nil || closeErr != nil || fileErr != nil {
		_ = os.Remove(path + ".gz")
		fmt.Fprintf(os.Stderr, "Warning: failed to compress %s\n", path)
		return
	}
	_ = os.Remove(path)
}

// Sync flushes the current file.
func (rw *RotatingWriter) Sync() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.file == nil {
		return nil
	}
	return rw.file.Sync()
}

// Close syncs and closes the current file. Further writes fail.
func (rw *RotatingWriter) Close() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.file == nil {
		return nil
	}
	_ = rw.file.Sync()
	err := rw.file.Close()
	rw.file = nil
	if err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	return nil
}

// Size returns the current file size in bytes.
func (rw *RotatingWriter) Size() int64 {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.size
}

// Path returns the path of the active log file.
func (rw *RotatingWriter) Path() string {
	return rw.path
}
