// Package renderer holds the live wallpaper instances the display engine
// draws. The host accepts the three control commands an edit session sends
// and fans every change out to subscribers, such as the engine's websocket.
package renderer

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bryanchriswhite/Backdrop/internal/logger"
	"github.com/bryanchriswhite/Backdrop/internal/report"
	"github.com/bryanchriswhite/Backdrop/internal/wallpaper"
)

// CodeNotFound is the error code for a command naming an id that is not live
const CodeNotFound = "wallpaper_not_found"

// EventType names a change to the live instances
type EventType string

const (
	EventAdd    EventType = "add-wallpaper"
	EventApply  EventType = "apply-wallpaper"
	EventRemove EventType = "remove-wallpaper"
	// EventFocus lists the instances covering a newly focused window
	EventFocus EventType = "focus-changed"
)

// Event is one change, as delivered to subscribers
type Event struct {
	Type    EventType         `json:"type"`
	ID      string            `json:"id,omitempty"`
	Record  *wallpaper.Record `json:"record,omitempty"`
	Patch   *wallpaper.Patch  `json:"patch,omitempty"`
	Visible []string          `json:"visible,omitempty"`
	Time    time.Time         `json:"time"`
}

// Host keeps the live instances by id
type Host struct {
	mu        sync.RWMutex
	instances map[string]wallpaper.Record
	listeners []chan Event
}

// NewHost creates a host with no instances
func NewHost() *Host {
	return &Host{
		instances: make(map[string]wallpaper.Record),
		listeners: make([]chan Event, 0),
	}
}

func notFound(id string) error {
	return report.New(CodeNotFound, "The wallpaper is not running.", fmt.Sprintf("no live wallpaper with id %s", id))
}

// Load replaces every instance with records, as done once at startup
func (h *Host) Load(records map[string]wallpaper.Record) {
	h.mu.Lock()
	h.instances = make(map[string]wallpaper.Record, len(records))
	for id, r := range records {
		h.instances[id] = r.Clone()
	}
	h.mu.Unlock()

	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		r := records[id].Clone()
		h.notifyListeners(Event{Type: EventAdd, ID: id, Record: &r})
	}

	logger.WithComponent("renderer").Info().
		Int("wallpapers", len(records)).
		Msg("Wallpapers loaded")
}

// AddRecord creates a live instance of record. Adding an id that is already
// live replaces it.
func (h *Host) AddRecord(ctx context.Context, id string, record wallpaper.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.Lock()
	_, replaced := h.instances[id]
	h.instances[id] = record.Clone()
	h.mu.Unlock()

	r := record.Clone()
	h.notifyListeners(Event{Type: EventAdd, ID: id, Record: &r})
	logger.WithRecord("renderer", id).Debug().
		Bool("replaced", replaced).
		Msg("Wallpaper added")
	return nil
}

// ApplyPatch changes the fields patch sets on a live instance
func (h *Host) ApplyPatch(ctx context.Context, id string, patch wallpaper.Patch) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.Lock()
	current, ok := h.instances[id]
	if !ok {
		h.mu.Unlock()
		return notFound(id)
	}
	h.instances[id] = patch.ApplyTo(current)
	h.mu.Unlock()

	p := patch.Clone()
	h.notifyListeners(Event{Type: EventApply, ID: id, Patch: &p})
	logger.WithRecord("renderer", id).Debug().
		Stringer("patch", patch).
		Msg("Patch applied")
	return nil
}

// RemoveRecord destroys a live instance. Removing an id that is not live is a
// no-op.
func (h *Host) RemoveRecord(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.Lock()
	_, ok := h.instances[id]
	delete(h.instances, id)
	h.mu.Unlock()

	if !ok {
		return nil
	}
	h.notifyListeners(Event{Type: EventRemove, ID: id})
	logger.WithRecord("renderer", id).Debug().Msg("Wallpaper removed")
	return nil
}

// Get returns the live instance for id
func (h *Host) Get(id string) (wallpaper.Record, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.instances[id]
	if !ok {
		return wallpaper.Record{}, false
	}
	return r.Clone(), true
}

// IDs lists the live instances in order
func (h *Host) IDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.instances))
	for id := range h.instances {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Matching lists the live instances that cover a window of the application at
// appPath titled windowName
func (h *Host) Matching(appPath, windowName string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var ids []string
	for id, r := range h.instances {
		if r.AppliesTo(appPath, windowName) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Focus reports a focus change and notifies subscribers of the instances that
// now cover the focused window
func (h *Host) Focus(appPath, windowName string) []string {
	ids := h.Matching(appPath, windowName)
	h.notifyListeners(Event{Type: EventFocus, Visible: ids})
	logger.WithComponent("renderer").Debug().
		Str("path", appPath).
		Str("title", windowName).
		Strs("visible", ids).
		Msg("Focus changed")
	return ids
}

// Subscribe adds a listener for instance changes
func (h *Host) Subscribe() chan Event {
	ch := make(chan Event, 32)
	h.mu.Lock()
	h.listeners = append(h.listeners, ch)
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener
func (h *Host) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, listener := range h.listeners {
		if listener == ch {
			h.listeners = append(h.listeners[:i], h.listeners[i+1:]...)
			close(ch)
			break
		}
	}
}

func (h *Host) notifyListeners(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, listener := range h.listeners {
		select {
		case listener <- ev:
		default:
			logger.WithComponent("renderer").Warn().
				Str("event", string(ev.Type)).
				Msg("Subscriber is full, dropping event")
		}
	}
}
