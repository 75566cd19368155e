package window

import (
	"fmt"
	"strings"
	"sync"

	"github.com/bryanchriswhite/Backdrop/internal/logger"
	"github.com/godbus/dbus/v5"
)

// KWin D-Bus constants
const (
	kwinService                    = "org.kde.KWin"
	windowsRunnerPath              = "/WindowsRunner"
	krunnerInterface               = "org.kde.krunner1"
	virtualDesktopManagerInterface = "org.kde.KWin.VirtualDesktopManager"
	kwinWindowPathPrefix           = "/org/kde/KWin/Window/"
)

// KWinBackend implements the Backend interface using KWin's D-Bus interface,
// for Plasma Wayland sessions where X11 only sees XWayland clients
type KWinBackend struct {
	conn     *dbus.Conn
	mu       sync.Mutex
	stopChan chan struct{}
	watching bool
}

// NewKWinBackend connects to the session bus and checks that KWin is on it
func NewKWinBackend() (*KWinBackend, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}

	var names []string
	if err := conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to list D-Bus names: %w", err)
	}

	found := false
	for _, name := range names {
		if name == kwinService {
			found = true
			break
		}
	}
	if !found {
		conn.Close()
		return nil, fmt.Errorf("KWin service not found on D-Bus")
	}

	logger.WithComponent("kwin-backend").Info().Msg("Connected to KWin D-Bus service")
	return &KWinBackend{conn: conn, stopChan: make(chan struct{})}, nil
}

// Close closes the D-Bus connection
func (b *KWinBackend) Close() error {
	b.StopWatching()
	return b.conn.Close()
}

// Name returns the backend name
func (b *KWinBackend) Name() string {
	return "kwin"
}

// ListWindows enumerates windows through the KRunner WindowsRunner plugin and
// reads each window's properties from its KWin object
func (b *KWinBackend) ListWindows() ([]*Info, error) {
	windows, _, err := b.listWindows()
	return windows, err
}

// listWindows also reports which of the windows is active, or -1
func (b *KWinBackend) listWindows() ([]*Info, int, error) {
	// Match returns a(sssida{sv}); an empty query matches every window
	var rawMatches [][]interface{}
	obj := b.conn.Object(kwinService, windowsRunnerPath)
	if err := obj.Call(krunnerInterface+".Match", 0, "").Store(&rawMatches); err != nil {
		return nil, -1, fmt.Errorf("failed to call Match: %w", err)
	}

	windows := make([]*Info, 0, len(rawMatches))
	active := -1
	for _, m := range rawMatches {
		if len(m) < 3 {
			continue
		}
		rawID, _ := m[0].(string)
		text, _ := m[1].(string)
		iconName, _ := m[2].(string)

		info := &Info{
			ID:    hashStringToUint32(rawID),
			Title: text,
			Class: iconName,
		}
		// rawID looks like "0_{dc80ff04-3245-4d9b-b9a8-1582640d39e1}"
		if uuid := braced(rawID); uuid != "" {
			if b.readWindow(kwinWindowPathPrefix+uuid, info) {
				active = len(windows)
			}
		}
		if info.Title == "" && info.Class == "" {
			continue
		}
		windows = append(windows, info)
	}
	return windows, active, nil
}

// readWindow fills info from the KWin window object at path and reports
// whether the window is active
func (b *KWinBackend) readWindow(path string, info *Info) bool {
	obj := b.conn.Object(kwinService, dbus.ObjectPath(path))
	const iface = "org.kde.KWin.Window"

	if v, err := obj.GetProperty(iface + ".caption"); err == nil {
		if s, ok := v.Value().(string); ok && s != "" {
			info.Title = s
		}
	}
	if v, err := obj.GetProperty(iface + ".resourceClass"); err == nil {
		if s, ok := v.Value().(string); ok && s != "" {
			info.Class = s
		}
	}
	if v, err := obj.GetProperty(iface + ".pid"); err == nil {
		switch p := v.Value().(type) {
		case int32:
			info.PID = int(p)
		case uint32:
			info.PID = int(p)
		case int64:
			info.PID = int(p)
		}
		if p, err := ExecutablePath(info.PID); err == nil {
			info.Path = p
		}
	}

	v, err := obj.GetProperty(iface + ".active")
	if err != nil {
		return false
	}
	active, _ := v.Value().(bool)
	return active
}

// GetFocusedWindow returns the window KWin reports as active
func (b *KWinBackend) GetFocusedWindow() (*Info, error) {
	windows, active, err := b.listWindows()
	if err != nil {
		return nil, fmt.Errorf("failed to list windows: %w", err)
	}
	if active < 0 {
		return nil, fmt.Errorf("no active window found")
	}
	windows[active].Focused = true
	return windows[active], nil
}

// WatchFocus polls the active window and re-checks as soon as the virtual
// desktop changes
func (b *KWinBackend) WatchFocus(callback func(*Info)) error {
	log := logger.WithComponent("kwin-backend")

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.watching {
		return fmt.Errorf("already watching")
	}

	if err := b.conn.AddMatchSignal(
		dbus.WithMatchInterface(virtualDesktopManagerInterface),
		dbus.WithMatchMember("currentChanged"),
	); err != nil {
		log.Warn().Err(err).Msg("Failed to subscribe to desktop changes")
	}

	b.watching = true
	b.stopChan = make(chan struct{})
	trigger := make(chan struct{}, 1)
	go b.watchDesktopSignals(b.stopChan, trigger)
	go pollFocus(log, b.stopChan, trigger, b.GetFocusedWindow, callback)
	return nil
}

func (b *KWinBackend) watchDesktopSignals(stop <-chan struct{}, trigger chan<- struct{}) {
	signals := make(chan *dbus.Signal, 10)
	b.conn.Signal(signals)
	defer b.conn.RemoveSignal(signals)

	for {
		select {
		case <-stop:
			return
		case sig := <-signals:
			if sig == nil || sig.Name != virtualDesktopManagerInterface+".currentChanged" {
				continue
			}
			select {
			case trigger <- struct{}{}:
			default:
			}
		}
	}
}

// StopWatching stops the focus watching loop
func (b *KWinBackend) StopWatching() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.watching {
		close(b.stopChan)
		b.watching = false
	}
}

func braced(s string) string {
	start := strings.Index(s, "{")
	end := strings.Index(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start+1 : end]
}

// hashStringToUint32 converts KWin's UUID-style window ids to numeric ids
func hashStringToUint32(s string) uint32 {
	var hash uint32 = 5381
	for i := 0; i < len(s); i++ {
		hash = ((hash << 5) + hash) + uint32(s[i])
	}
	return hash
}
