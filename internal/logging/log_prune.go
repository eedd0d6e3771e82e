package logging

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	log "github.com/sirupsen/logrus"
)

// pruneLogDir removes the oldest rotated logs in dir until it holds at most maxBytes of
// log data. active is the file currently written to and is never removed, even when it
// alone exceeds the limit.
func pruneLogDir(dir string, maxBytes int64, active string) (int, error) {
	dir = strings.TrimSpace(dir)
	if maxBytes <= 0 || dir == "" {
		return 0, nil
	}
	dir = filepath.Clean(dir)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("logging: read log directory: %w", err)
	}

	var (
		rotated []fs.FileInfo
		total   int64
	)
	for _, entry := range entries {
		if !isLogFileName(entry.Name()) {
			continue
		}
		info, errInfo := entry.Info()
		if errInfo != nil || !info.Mode().IsRegular() {
			continue
		}
		total += info.Size()
		if filepath.Join(dir, entry.Name()) != filepath.Clean(active) {
			rotated = append(rotated, info)
		}
	}
	slices.SortFunc(rotated, func(a, b fs.FileInfo) int { return a.ModTime().Compare(b.ModTime()) })

	removed := 0
	for _, info := range rotated {
		if total <= maxBytes {
			break
		}
		if errRemove := os.Remove(filepath.Join(dir, info.Name())); errRemove != nil {
			log.WithError(errRemove).Warnf("logging: could not remove old log %s", info.Name())
			continue
		}
		total -= info.Size()
		removed++
	}
	return removed, nil
}

// isLogFileName matches lumberjack's main.log, its rotated backups and compressed copies.
func isLogFileName(name string) bool {
	if name == "" || strings.HasPrefix(name, ".") {
		return false
	}
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".log") || strings.HasSuffix(lower, ".log.gz")
}
