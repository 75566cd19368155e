package window

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bryanchriswhite/Backdrop/internal/logger"
)

// Info describes one top-level window
type Info struct {
	ID    uint32 `json:"id"`
	Title string `json:"title"`
	Class string `json:"class"`
	PID   int    `json:"pid"`
	// Path is the executable of the owning process, empty if unknown
	Path    string `json:"path"`
	Focused bool   `json:"focused"`
}

// ApplicationWindow is one entry of the application picker
type ApplicationWindow struct {
	WindowTitle string `json:"windowTitle"`
	Name        string `json:"name"`
	Path        string `json:"path"`
}

// Backend defines the interface for window discovery backends (X11, KWin)
type Backend interface {
	// ListWindows returns all visible application windows
	ListWindows() ([]*Info, error)

	// GetFocusedWindow returns the currently focused window
	GetFocusedWindow() (*Info, error)

	// WatchFocus calls callback whenever the focused window changes, until
	// StopWatching. It returns once the watch is running.
	WatchFocus(callback func(*Info)) error

	// StopWatching stops the focus watching loop
	StopWatching()

	Close() error

	// Name returns the backend name (e.g., "x11", "kwin")
	Name() string
}

// Detect connects to KWin under a Plasma Wayland session and to X11 otherwise
func Detect() (Backend, error) {
	log := logger.WithComponent("window")

	desktop := strings.ToUpper(os.Getenv("XDG_CURRENT_DESKTOP"))
	if os.Getenv("WAYLAND_DISPLAY") != "" && strings.Contains(desktop, "KDE") {
		b, err := NewKWinBackend()
		if err == nil {
			return b, nil
		}
		log.Warn().Err(err).Msg("KWin backend unavailable, falling back to X11")
	}

	b, err := NewX11Backend()
	if err != nil {
		return nil, fmt.Errorf("no window backend available: %w", err)
	}
	return b, nil
}

// procRoot is where process executables are resolved
var procRoot = "/proc"

// ExecutablePath resolves the executable of pid
func ExecutablePath(pid int) (string, error) {
	if pid <= 0 {
		return "", fmt.Errorf("invalid pid %d", pid)
	}
	p, err := os.Readlink(filepath.Join(procRoot, fmt.Sprint(pid), "exe"))
	if err != nil {
		return "", fmt.Errorf("failed to resolve executable of pid %d: %w", pid, err)
	}
	return strings.TrimSuffix(p, " (deleted)"), nil
}

// Applications turns a window list into picker entries, one per executable.
// Windows without a resolved path are skipped; the first window seen for a
// path names the entry.
func Applications(windows []*Info) []ApplicationWindow {
	seen := make(map[string]bool)
	apps := make([]ApplicationWindow, 0, len(windows))
	for _, w := range windows {
		if w == nil || w.Path == "" || seen[w.Path] {
			continue
		}
		seen[w.Path] = true

		name := w.Class
		if name == "" {
			name = filepath.Base(w.Path)
		}
		apps = append(apps, ApplicationWindow{
			WindowTitle: w.Title,
			Name:        name,
			Path:        w.Path,
		})
	}
	sort.SliceStable(apps, func(i, j int) bool {
		return strings.ToLower(apps[i].Name) < strings.ToLower(apps[j].Name)
	})
	return apps
}
