package session

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/bryanchriswhite/Backdrop/internal/report"
)

// Registry holds the open session of each record. Sessions of different
// records are independent; opening a record that already has a live session
// returns that session.
type Registry struct {
	store    Store
	renderer Renderer
	reporter report.Reporter

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry
func NewRegistry(store Store, renderer Renderer, reporter report.Reporter) *Registry {
	return &Registry{
		store:    store,
		renderer: renderer,
		reporter: reporter,
		sessions: make(map[string]*Session),
	}
}

// Open returns the live session for id, starting one if needed
func (r *Registry) Open(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok && !s.State().Terminal() {
		return s, nil
	}
	s, err := Open(id, r.store, r.renderer, r.reporter)
	if err != nil {
		return nil, err
	}
	r.sessions[id] = s
	return s, nil
}

// Get returns the live session for id
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok || s.State().Terminal() {
		return nil, false
	}
	return s, true
}

// Close rolls back and forgets the session for id, if any
func (r *Registry) Close(ctx context.Context, id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return s.Close(ctx)
}

// Discard drops the session for id without touching the renderer. It returns
// once no call of that session is in flight.
func (r *Registry) Discard(ctx context.Context, id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return nil
	}

	if err := s.Discard(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	if r.sessions[id] == s {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	return nil
}

// IDs lists the records with a live session
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.sessions))
	for id, s := range r.sessions {
		if !s.State().Terminal() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// CloseAll rolls back every live session, for shutdown
func (r *Registry) CloseAll(ctx context.Context) error {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		errs = append(errs, s.Close(ctx))
	}
	return errors.Join(errs...)
}
