package credstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/docgpt/docgpt/internal/util"
	"github.com/gofrs/flock"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	fileLockTimeout       = 5 * time.Second
	fileLockRetryInterval = 100 * time.Millisecond
)

var pathKeyReplacer = strings.NewReplacer(
	`\`, `\\`, `.`, `\.`, `*`, `\*`, `?`, `\?`, `|`, `\|`, `#`, `\#`, `@`, `\@`,
)

// FileCache stores tokens in a single 0600 JSON document shaped {"service": {"username": "token"}}.
// It is the fallback for hosts without a keyring; the file is plaintext.
type FileCache struct {
	path string
}

// DefaultCredentialFile returns the credentials file under the XDG data home.
func DefaultCredentialFile() (string, error) {
	return xdg.DataFile(filepath.Join("docgpt", "credentials.json"))
}

// NewFileCache returns a FileCache at path, or at DefaultCredentialFile when path is empty.
func NewFileCache(path string) (*FileCache, error) {
	resolved, err := util.ExpandPath(path)
	if err != nil {
		return nil, err
	}
	if resolved == "" {
		if resolved, err = DefaultCredentialFile(); err != nil {
			return nil, fmt.Errorf("credstore file: resolve default path: %w", err)
		}
	}
	if err = os.MkdirAll(filepath.Dir(resolved), 0o700); err != nil {
		return nil, fmt.Errorf("credstore file: create dir failed: %w", err)
	}
	return &FileCache{path: resolved}, nil
}

// Name implements Cache.
func (c *FileCache) Name() string { return "file" }

// Path returns the credentials file location.
func (c *FileCache) Path() string { return c.path }

// Get implements Cache.
func (c *FileCache) Get(ctx context.Context, service, username string) (string, bool, error) {
	var (
		token string
		ok    bool
	)
	err := c.withLock(ctx, true, func(doc []byte) ([]byte, error) {
		result := gjson.GetBytes(doc, entryPath(service, username))
		if result.Exists() && result.Type == gjson.String {
			token, ok = result.String(), true
		}
		return nil, nil
	})
	return token, ok, err
}

// Set implements Cache.
func (c *FileCache) Set(ctx context.Context, service, username, token string) error {
	return c.withLock(ctx, false, func(doc []byte) ([]byte, error) {
		return sjson.SetBytes(doc, entrySetPath(service, username), token)
	})
}

// Delete implements Cache.
func (c *FileCache) Delete(ctx context.Context, service, username string) error {
	return c.withLock(ctx, false, func(doc []byte) ([]byte, error) {
		if !gjson.GetBytes(doc, entryPath(service, username)).Exists() {
			return nil, nil
		}
		updated, err := sjson.DeleteBytes(doc, entrySetPath(service, username))
		if err != nil {
			return nil, err
		}
		if svc := gjson.GetBytes(updated, escapeKey(service)); svc.IsObject() && len(svc.Map()) == 0 {
			updated, err = sjson.DeleteBytes(updated, setKey(service))
		}
		return updated, err
	})
}

// withLock loads the document under a file lock and, when fn returns a non-nil
// document, writes it back atomically.
func (c *FileCache) withLock(ctx context.Context, readOnly bool, fn func(doc []byte) ([]byte, error)) error {
	fileLock := flock.New(c.path + ".lock")
	defer func() {
		if err := fileLock.Unlock(); err != nil {
			log.Warnf("credstore file: failed to unlock: %v", err)
		}
	}()

	lockCtx, cancel := context.WithTimeout(ctx, fileLockTimeout)
	defer cancel()

	var (
		locked bool
		err    error
	)
	if readOnly {
		locked, err = fileLock.TryRLockContext(lockCtx, fileLockRetryInterval)
	} else {
		locked, err = fileLock.TryLockContext(lockCtx, fileLockRetryInterval)
	}
	if err != nil {
		return fmt.Errorf("credstore file: acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("credstore file: could not acquire lock: timeout after %v", fileLockTimeout)
	}

	doc, err := os.ReadFile(c.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("credstore file: read failed: %w", err)
		}
		doc = []byte("{}")
	}
	if len(strings.TrimSpace(string(doc))) == 0 {
		doc = []byte("{}")
	}
	if !gjson.ValidBytes(doc) {
		return fmt.Errorf("credstore file: %s is not valid JSON", c.path)
	}

	updated, err := fn(doc)
	if err != nil {
		return fmt.Errorf("credstore file: update failed: %w", err)
	}
	if readOnly || updated == nil {
		return nil
	}
	return writeFileAtomic(c.path, updated)
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("credstore file: create temp failed: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err = tmp.Write(data); err == nil {
		err = tmp.Sync()
	}
	if errClose := tmp.Close(); err == nil {
		err = errClose
	}
	if err == nil {
		err = os.Chmod(tmpPath, 0o600)
	}
	if err == nil {
		err = os.Rename(tmpPath, path)
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("credstore file: write failed: %w", err)
	}
	return nil
}

func entryPath(service, username string) string {
	return escapeKey(service) + "." + escapeKey(username)
}

// entrySetPath is entryPath for sjson writes. sjson creates an array for an all-digit
// segment unless it carries a ':' prefix, and GitHub logins may be all digits.
func entrySetPath(service, username string) string {
	return setKey(service) + "." + setKey(username)
}

func setKey(key string) string {
	if key != "" && strings.Trim(key, "0123456789") == "" {
		return ":" + key
	}
	return escapeKey(key)
}

func escapeKey(key string) string {
	if strings.IndexAny(key, `\.*?|#@`) == -1 {
		return key
	}
	return pathKeyReplacer.Replace(key)
}
