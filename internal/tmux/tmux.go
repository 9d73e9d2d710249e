// Package tmux drives a tmux server through its command-line control
// surface. The Controller interface is the seam that lets the session core
// run against a fake multiplexer in tests.
package tmux

import (
	"strconv"
	"strings"
	"time"
)

// fieldSep separates columns in list-windows format strings. ASCII Unit
// Separator avoids collisions with window names and pane titles.
const fieldSep = "\x1f"

// WindowInfo describes one window inside the shared container session.
type WindowInfo struct {
	Name     string
	ID       string    // tmux's own @N handle
	Dead     bool      // process exited, window kept by remain-on-exit
	Activity time.Time // last pane activity, zero when unknown
}

// Controller is the narrow capability surface the session core needs from a
// terminal multiplexer: container lifecycle, window lifecycle, keystrokes,
// and pane capture.
type Controller interface {
	// HasSession reports whether the named container session exists.
	HasSession(session string) bool
	// EnsureSession creates the detached container session if missing.
	EnsureSession(session string) error
	// KillSession tears down the container and every window in it.
	KillSession(session string) error
	// NewWindow creates a detached window running command as its startup
	// process (not a shell that then types command).
	NewWindow(session, window, command string) error
	// KillWindow removes one window.
	KillWindow(session, window string) error
	// ListWindows returns all windows in the container.
	ListWindows(session string) ([]WindowInfo, error)
	// SendKeys sends text literally followed by an Enter keystroke.
	SendKeys(session, window, text string) error
	// CapturePane returns up to the last lines rows of pane content,
	// scrollback included, with escape sequences intact.
	CapturePane(session, window string, lines int) (string, error)
	// SetWindowOption sets a window-scoped option such as remain-on-exit.
	SetWindowOption(session, window, key, value string) error
}

// parseWindowList parses list-windows output produced with the canonical
// format string.
func parseWindowList(out string) []WindowInfo {
	var wins []WindowInfo
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, fieldSep, 4)
		if len(parts) != 4 {
			continue
		}
		var activity time.Time
		if secs, err := strconv.ParseInt(parts[3], 10, 64); err == nil && secs > 0 {
			activity = time.Unix(secs, 0)
		}
		wins = append(wins, WindowInfo{
			Name:     parts[0],
			ID:       parts[1],
			Dead:     parts[2] == "1",
			Activity: activity,
		})
	}
	return wins
}
