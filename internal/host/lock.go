package host

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/Iron-Ham/genpause/internal/errors"
	"github.com/Iron-Ham/genpause/internal/logging"
)

// LockFileName is the name of the instance lock file in the config directory.
const LockFileName = "genpause.lock"

// Lock is the single-instance lock of a running host. The holder's details
// are written into the lock file so a second host can report who owns it.
type Lock struct {
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`

	path   string
	fl     *flock.Flock
	logger *logging.Logger
}

// AcquireLock takes the instance lock in dir without blocking. It returns a
// HostError wrapping ErrHostLocked when another process holds it. The
// operating system drops the lock when its holder exits, so there is no
// stale-lock cleanup. logger may be nil.
func AcquireLock(dir string, logger *logging.Logger) (*Lock, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	path := filepath.Join(dir, LockFileName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.NewHostError("create lock directory", err).WithPath(dir)
	}

	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		logger.Error("failed to acquire lock", "path", path, "error", err)
		return nil, errors.NewHostError("acquire instance lock", err).WithPath(path)
	}
	if !ok {
		cause := error(errors.ErrHostLocked)
		if holder, err := ReadLock(path); err == nil {
			cause = fmt.Errorf("%w: PID %d on %s", errors.ErrHostLocked, holder.PID, holder.Hostname)
		}
		logger.Error("failed to acquire lock", "path", path, "reason", cause.Error())
		return nil, errors.NewHostError("acquire instance lock", cause).WithPath(path)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	lock := &Lock{
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartedAt: time.Now(),
		path:      path,
		fl:        fl,
		logger:    logger,
	}

	data, err := json.MarshalIndent(lock, "", "  ")
	if err == nil {
		err = os.WriteFile(path, data, 0o644)
	}
	if err != nil {
		_ = fl.Unlock()
		return nil, errors.NewHostError("write instance lock", err).WithPath(path)
	}

	logger.Info("instance lock acquired", "path", path, "pid", lock.PID)
	return lock, nil
}

// ReadLock reads the holder details from a lock file.
func ReadLock(path string) (*Lock, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var lock Lock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("failed to parse lock file: %w", err)
	}
	return &lock, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Release clears the holder details and unlocks. The file itself stays so a
// concurrent opener never ends up locking an unlinked inode.
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	_ = os.Truncate(l.path, 0)
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	l.logger.Info("instance lock released", "path", l.path)
	l.fl = nil
	return nil
}
