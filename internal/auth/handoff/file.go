package handoff

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/docgpt/docgpt/internal/constant"
	"github.com/gofrs/flock"
	log "github.com/sirupsen/logrus"
)

const (
	lockFileName      = ".lock"
	lockTimeout       = 2 * time.Second
	lockRetryInterval = 50 * time.Millisecond
)

// FileStore keeps each record in its own file under dir. Writes go to a temporary file
// that is renamed into place, so readers never observe a partial record. Writers and
// Erase serialize on a flock so an erase cannot interleave with a late write.
type FileStore struct {
	dir string
}

// DefaultDir returns the handoff directory under the XDG state home.
func DefaultDir() (string, error) {
	portPath, err := xdg.StateFile(filepath.Join("docgpt", "handoff", constant.HandoffPortRecord))
	if err != nil {
		return "", fmt.Errorf("handoff: resolve state directory: %w", err)
	}
	return filepath.Dir(portPath), nil
}

// NewFileStore returns a FileStore rooted at dir with any records left by an earlier
// run removed. An empty dir selects DefaultDir.
func NewFileStore(ctx context.Context, dir string) (*FileStore, error) {
	s, err := OpenFileStore(dir)
	if err != nil {
		return nil, err
	}
	if err = s.Erase(ctx); err != nil {
		return nil, fmt.Errorf("handoff: clear stale records: %w", err)
	}
	return s, nil
}

// OpenFileStore returns a FileStore rooted at dir without touching existing records.
// It is used by an orchestrator that reads from a listener running in another process.
func OpenFileStore(dir string) (*FileStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		var err error
		if dir, err = DefaultDir(); err != nil {
			return nil, err
		}
	}
	return &FileStore{dir: filepath.Clean(dir)}, nil
}

// Dir returns the directory holding the records.
func (s *FileStore) Dir() string { return s.dir }

// WritePort implements Store.
func (s *FileStore) WritePort(ctx context.Context, port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("handoff: invalid port %d", port)
	}
	return s.withLock(ctx, func() error {
		return s.writeRecord(constant.HandoffPortRecord, strconv.Itoa(port))
	})
}

// WriteCode implements Store.
func (s *FileStore) WriteCode(ctx context.Context, code string) error {
	if code == "" {
		return fmt.Errorf("handoff: empty code")
	}
	return s.withLock(ctx, func() error {
		return s.writeRecord(constant.HandoffCodeRecord, code)
	})
}

// Port implements Store. A record that does not parse as a port is reported as an error.
func (s *FileStore) Port(context.Context) (int, bool, error) {
	raw, ok, err := s.readRecord(constant.HandoffPortRecord)
	if err != nil || !ok {
		return 0, false, err
	}
	port, err := strconv.Atoi(raw)
	if err != nil || port <= 0 || port > 65535 {
		return 0, false, fmt.Errorf("handoff: malformed port record %q", raw)
	}
	return port, true, nil
}

// Code implements Store.
func (s *FileStore) Code(context.Context) (string, bool, error) {
	return s.readRecord(constant.HandoffCodeRecord)
}

// Erase implements Store. It removes both records, the lock file, and the directory
// itself when nothing else lives there.
func (s *FileStore) Erase(ctx context.Context) error {
	err := s.withLock(ctx, func() error {
		var errs []error
		for _, name := range []string{constant.HandoffPortRecord, constant.HandoffCodeRecord, lockFileName} {
			if errRemove := os.Remove(filepath.Join(s.dir, name)); errRemove != nil && !errors.Is(errRemove, os.ErrNotExist) {
				errs = append(errs, errRemove)
			}
		}
		return errors.Join(errs...)
	})
	if err != nil {
		return err
	}
	if errRemove := os.Remove(s.dir); errRemove != nil && !errors.Is(errRemove, os.ErrNotExist) {
		log.Debugf("handoff: keeping directory %s: %v", s.dir, errRemove)
	}
	return nil
}

func (s *FileStore) writeRecord(name, value string) error {
	tmp, err := os.CreateTemp(s.dir, "."+name+"-*")
	if err != nil {
		return fmt.Errorf("handoff: create temp record: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err = tmp.WriteString(value); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("handoff: write %s: %w", name, err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("handoff: sync %s: %w", name, err)
	}
	if err = tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("handoff: close %s: %w", name, err)
	}
	if err = os.Rename(tmpPath, filepath.Join(s.dir, name)); err != nil {
		cleanup()
		return fmt.Errorf("handoff: publish %s: %w", name, err)
	}
	return nil
}

func (s *FileStore) readRecord(name string) (string, bool, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("handoff: read %s: %w", name, err)
	}
	value := strings.TrimSpace(string(data))
	if value == "" {
		return "", false, nil
	}
	return value, true, nil
}

// withLock runs fn while holding the exclusive lock on the handoff directory.
func (s *FileStore) withLock(ctx context.Context, fn func() error) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("handoff: create directory: %w", err)
	}
	lockPath := filepath.Join(s.dir, lockFileName)
	fileLock := flock.New(lockPath)
	// The lock file stays between calls; only Erase removes it.
	defer func() {
		if err := fileLock.Unlock(); err != nil {
			log.Warnf("handoff: failed to unlock %s: %v", lockPath, err)
		}
	}()

	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	locked, err := fileLock.TryLockContext(lockCtx, lockRetryInterval)
	if err != nil {
		return fmt.Errorf("handoff: acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("handoff: could not acquire lock: timeout after %v", lockTimeout)
	}
	return fn()
}
