package window

import (
	"fmt"
	"sync"
	"time"

	"github.com/bryanchriswhite/Backdrop/internal/logger"
	"github.com/rs/zerolog"
)

// focusPollInterval is how often backends re-read the focused window
const focusPollInterval = 500 * time.Millisecond

// Manager tracks the focused window and lists running applications
type Manager struct {
	backend       Backend
	mu            sync.RWMutex
	currentWindow *Info
	listeners     []chan *Info
}

// NewManager creates a window manager on backend
func NewManager(backend Backend) *Manager {
	return &Manager{
		backend:   backend,
		listeners: make([]chan *Info, 0),
	}
}

// Start begins monitoring window focus changes
func (m *Manager) Start() error {
	if err := m.backend.WatchFocus(m.setCurrent); err != nil {
		return fmt.Errorf("failed to watch focus on %s: %w", m.backend.Name(), err)
	}
	logger.WithComponent("window").Info().
		Str("backend", m.backend.Name()).
		Msg("Watching window focus")
	return nil
}

// Stop stops the window manager and closes the backend
func (m *Manager) Stop() {
	if err := m.backend.Close(); err != nil {
		logger.WithComponent("window").Warn().Err(err).Msg("Failed to close backend")
	}
}

func (m *Manager) setCurrent(info *Info) {
	m.mu.Lock()
	m.currentWindow = info
	m.mu.Unlock()
	m.notifyListeners(info)
}

// GetCurrentWindow returns the currently focused window
func (m *Manager) GetCurrentWindow() *Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentWindow
}

// ListWindows returns all visible windows
func (m *Manager) ListWindows() ([]*Info, error) {
	return m.backend.ListWindows()
}

// GetApplications returns the application picker entries, one per executable
func (m *Manager) GetApplications() ([]ApplicationWindow, error) {
	windows, err := m.backend.ListWindows()
	if err != nil {
		return nil, err
	}
	return Applications(windows), nil
}

// Subscribe adds a listener for window changes
func (m *Manager) Subscribe() chan *Info {
	ch := make(chan *Info, 10)
	m.mu.Lock()
	m.listeners = append(m.listeners, ch)
	m.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener
func (m *Manager) Unsubscribe(ch chan *Info) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, listener := range m.listeners {
		if listener == ch {
			m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
			close(ch)
			break
		}
	}
}

// notifyListeners notifies all listeners of window changes
func (m *Manager) notifyListeners(window *Info) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, listener := range m.listeners {
		select {
		case listener <- window:
		default:
			// Skip if channel is full
		}
	}
}

// pollFocus calls get on every tick and on every trigger, and calls callback
// when the window or its title differs from the last one seen. It returns when
// stop is closed.
func pollFocus(log *zerolog.Logger, stop <-chan struct{}, trigger <-chan struct{}, get func() (*Info, error), callback func(*Info)) {
	ticker := time.NewTicker(focusPollInterval)
	defer ticker.Stop()

	var current *Info
	check := func() {
		info, err := get()
		if err != nil {
			log.Debug().Err(err).Msg("Failed to get focused window")
			return
		}
		if current != nil && current.ID == info.ID && current.Title == info.Title {
			return
		}
		current = info
		callback(info)
	}

	check()
	for {
		select {
		case <-stop:
			return
		case <-trigger:
			check()
		case <-ticker.C:
			check()
		}
	}
}
