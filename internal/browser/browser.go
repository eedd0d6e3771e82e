// Package browser opens the authorization URL in the user's default web browser and
// offers it on the clipboard. Both are best-effort: the caller always prints the URL.
package browser

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"

	"github.com/atotto/clipboard"
	pkgbrowser "github.com/pkg/browser"
	log "github.com/sirupsen/logrus"
	"github.com/skratchdot/open-golang/open"
)

// ErrClipboardUnavailable is returned when no clipboard utility exists on this system.
var ErrClipboardUnavailable = errors.New("clipboard unavailable")

var (
	openRun      = open.Run
	openFallback = pkgbrowser.OpenURL
	writeAll     = clipboard.WriteAll
)

func init() {
	// pkg/browser echoes the launcher's output to the terminal, which would interleave with prompts.
	pkgbrowser.Stdout = io.Discard
	pkgbrowser.Stderr = io.Discard
}

// OpenURL opens the specified URL in the default web browser.
// It first attempts open-golang and falls back to pkg/browser if that fails.
func OpenURL(url string) error {
	err := openRun(url)
	if err == nil {
		log.Debug("opened authorization URL using open-golang")
		return nil
	}
	log.Debugf("open-golang failed: %v, trying pkg/browser", err)

	if errFallback := openFallback(url); errFallback != nil {
		return fmt.Errorf("open browser: %w", errors.Join(err, errFallback))
	}
	log.Debug("opened authorization URL using pkg/browser")
	return nil
}

// CopyToClipboard places text on the system clipboard.
func CopyToClipboard(text string) error {
	if clipboard.Unsupported {
		return ErrClipboardUnavailable
	}
	if err := writeAll(text); err != nil {
		return fmt.Errorf("copy to clipboard: %w", err)
	}
	return nil
}

// IsAvailable reports whether a browser launcher exists for the current platform.
// It only looks up commands; nothing is launched.
func IsAvailable() bool {
	switch runtime.GOOS {
	case "darwin":
		_, err := exec.LookPath("open")
		return err == nil
	case "windows":
		_, err := exec.LookPath("rundll32")
		return err == nil
	case "linux", "freebsd", "openbsd", "netbsd":
		for _, launcher := range []string{"xdg-open", "x-www-browser", "www-browser", "wslview"} {
			if _, err := exec.LookPath(launcher); err == nil {
				return true
			}
		}
		return false
	default:
		return false
	}
}
