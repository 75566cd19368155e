package window

import (
	"encoding/binary"
	"fmt"
	"strings"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/Backdrop/internal/logger"
)

// X11Backend implements the Backend interface using X11
type X11Backend struct {
	conn     *xgb.Conn
	root     xproto.Window
	mu       sync.RWMutex
	stopChan chan struct{}
	watching bool
	atoms    map[string]xproto.Atom
}

// NewX11Backend connects to the X server named by $DISPLAY
func NewX11Backend() (*X11Backend, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	setup := xproto.Setup(conn)
	return &X11Backend{
		conn:     conn,
		root:     setup.DefaultScreen(conn).Root,
		stopChan: make(chan struct{}),
		atoms:    make(map[string]xproto.Atom),
	}, nil
}

// Close closes the X11 connection
func (b *X11Backend) Close() error {
	b.StopWatching()
	b.conn.Close()
	return nil
}

// Name returns the backend name
func (b *X11Backend) Name() string {
	return "x11"
}

// ListWindows returns all client windows using EWMH _NET_CLIENT_LIST with QueryTree fallback
func (b *X11Backend) ListWindows() ([]*Info, error) {
	log := logger.WithComponent("x11-backend")

	ids, err := b.clientList()
	if err != nil || len(ids) == 0 {
		log.Debug().Err(err).Msg("ListWindows: EWMH unavailable, falling back to QueryTree")
		tree, err := xproto.QueryTree(b.conn, b.root).Reply()
		if err != nil {
			return nil, err
		}
		ids = tree.Children
	}

	windows := make([]*Info, 0, len(ids))
	for _, id := range ids {
		info := b.getWindowInfo(id)
		// Skip windows without titles or class (usually not user windows)
		if info.Title == "" && info.Class == "" {
			continue
		}
		windows = append(windows, info)
	}

	log.Debug().Int("count", len(windows)).Msg("ListWindows")
	return windows, nil
}

// clientList reads _NET_CLIENT_LIST from the root window
func (b *X11Backend) clientList() ([]xproto.Window, error) {
	atom, err := b.getAtom("_NET_CLIENT_LIST")
	if err != nil {
		return nil, err
	}
	reply, err := xproto.GetProperty(b.conn, false, b.root, atom,
		xproto.GetPropertyTypeAny, 0, (1<<32)-1).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get _NET_CLIENT_LIST property: %w", err)
	}

	ids := make([]xproto.Window, 0, len(reply.Value)/4)
	for i := 0; i+4 <= len(reply.Value); i += 4 {
		ids = append(ids, xproto.Window(binary.LittleEndian.Uint32(reply.Value[i:])))
	}
	return ids, nil
}

// GetFocusedWindow returns the window holding _NET_ACTIVE_WINDOW, or the
// input focus if the window manager does not publish it
func (b *X11Backend) GetFocusedWindow() (*Info, error) {
	if atom, err := b.getAtom("_NET_ACTIVE_WINDOW"); err == nil {
		if id, ok := b.cardinal(b.root, atom); ok && id != 0 {
			info := b.getWindowInfo(xproto.Window(id))
			info.Focused = true
			return info, nil
		}
	}

	focusReply, err := xproto.GetInputFocus(b.conn).Reply()
	if err != nil {
		return nil, err
	}
	info := b.getWindowInfo(focusReply.Focus)
	info.Focused = true
	return info, nil
}

// WatchFocus starts polling for focus changes
func (b *X11Backend) WatchFocus(callback func(*Info)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.watching {
		return fmt.Errorf("already watching")
	}
	b.watching = true
	b.stopChan = make(chan struct{})

	go pollFocus(logger.WithComponent("x11-backend"), b.stopChan, nil, b.GetFocusedWindow, callback)
	return nil
}

// StopWatching stops the focus watching loop
func (b *X11Backend) StopWatching() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.watching {
		close(b.stopChan)
		b.watching = false
	}
}

// getWindowInfo reads title, class and owning process of win. Missing
// properties leave their fields empty.
func (b *X11Backend) getWindowInfo(win xproto.Window) *Info {
	info := &Info{ID: uint32(win)}

	for _, name := range []string{"_NET_WM_NAME", "WM_NAME"} {
		if atom, err := b.getAtom(name); err == nil {
			if title, err := b.getProperty(win, atom); err == nil && title != "" {
				info.Title = title
				break
			}
		}
	}

	// WM_CLASS format is: instance\0class\0
	if atom, err := b.getAtom("WM_CLASS"); err == nil {
		if raw, err := b.getProperty(win, atom); err == nil {
			parts := strings.Split(raw, "\x00")
			if len(parts) >= 2 && parts[1] != "" {
				info.Class = parts[1]
			} else if parts[0] != "" {
				info.Class = parts[0]
			}
		}
	}

	if atom, err := b.getAtom("_NET_WM_PID"); err == nil {
		if pid, ok := b.cardinal(win, atom); ok {
			info.PID = int(pid)
			if p, err := ExecutablePath(info.PID); err == nil {
				info.Path = p
			}
		}
	}

	return info
}

// getAtom interns name, caching the result
func (b *X11Backend) getAtom(name string) (xproto.Atom, error) {
	b.mu.RLock()
	atom, ok := b.atoms[name]
	b.mu.RUnlock()
	if ok {
		return atom, nil
	}

	reply, err := xproto.InternAtom(b.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, err
	}
	b.mu.Lock()
	b.atoms[name] = reply.Atom
	b.mu.Unlock()
	return reply.Atom, nil
}

// cardinal reads a single 32-bit property value
func (b *X11Backend) cardinal(win xproto.Window, atom xproto.Atom) (uint32, bool) {
	reply, err := xproto.GetProperty(b.conn, false, win, atom,
		xproto.GetPropertyTypeAny, 0, 1).Reply()
	if err != nil || len(reply.Value) < 4 {
		return 0, false
	}
	return binary.LittleEndian.Uint32(reply.Value), true
}

// getProperty gets a property value as a string
func (b *X11Backend) getProperty(win xproto.Window, atom xproto.Atom) (string, error) {
	reply, err := xproto.GetProperty(b.conn, false, win, atom,
		xproto.GetPropertyTypeAny, 0, (1<<32)-1).Reply()
	if err != nil {
		return "", err
	}
	if reply.ValueLen == 0 {
		return "", fmt.Errorf("empty property")
	}
	return string(reply.Value), nil
}
