// Package session implements the wallpaper edit session: every "try" pushes
// the smallest patch to the live renderer, "save" persists the edit as the new
// baseline, and closing without saving puts the renderer back the way it was.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bryanchriswhite/Backdrop/internal/logger"
	"github.com/bryanchriswhite/Backdrop/internal/report"
	"github.com/bryanchriswhite/Backdrop/internal/wallpaper"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// ErrClosed is returned by operations on a committed or rolled back session
var ErrClosed = errors.New("edit session is closed")

// ErrInvalid is returned when the edited record cannot be sent to the renderer.
// It wraps the errors of wallpaper.Validate.
var ErrInvalid = errors.New("wallpaper is not valid")

// Renderer is the control channel of the engine that draws wallpapers
type Renderer interface {
	AddRecord(ctx context.Context, id string, record wallpaper.Record) error
	ApplyPatch(ctx context.Context, id string, patch wallpaper.Patch) error
	RemoveRecord(ctx context.Context, id string) error
}

// Store persists committed records
type Store interface {
	// LoadBaseline returns the committed record, or nil if id was never committed
	LoadBaseline(id string) (*wallpaper.Record, error)
	Commit(id string, record wallpaper.Record) error
}

// State is the lifecycle position of a session
type State int

const (
	// Clean: nothing edited since the last patch reached the renderer
	Clean State = iota
	// PendingPreview: the form holds edits the renderer has not seen
	PendingPreview
	// Previewed: the renderer shows the edits, nothing persisted yet
	Previewed
	// Committed: the edit was persisted (terminal)
	Committed
	// RolledBack: the edit was undone and dropped (terminal)
	RolledBack
)

func (s State) String() string {
	switch s {
	case Clean:
		return "clean"
	case PendingPreview:
		return "pending_preview"
	case Previewed:
		return "previewed"
	case Committed:
		return "committed"
	case RolledBack:
		return "rolled_back"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further operation is accepted
func (s State) Terminal() bool {
	return s == Committed || s == RolledBack
}

// Session edits one wallpaper. Field edits may arrive at any time; at most one
// renderer call is in flight, and a queued try recomputes its patch once the
// previous call settles.
type Session struct {
	id       string
	store    Store
	renderer Renderer
	reporter report.Reporter
	log      *zerolog.Logger

	// flight serializes outbound renderer and store calls
	flight *semaphore.Weighted

	mu       sync.Mutex
	state    State
	baseline *wallpaper.Record
	// applied is what the renderer currently shows; nil until a new record is added
	applied *wallpaper.Record
	edited  wallpaper.Record
	undo    wallpaper.Accumulator
	// added is set when this session created the live instance of a record
	// that has no baseline yet
	added bool
}

// Open starts a session for id. A record without a baseline starts from
// wallpaper.Default and is added to the renderer on its first try or save.
func Open(id string, store Store, renderer Renderer, reporter report.Reporter) (*Session, error) {
	if id == "" {
		return nil, fmt.Errorf("session id is required")
	}
	baseline, err := store.LoadBaseline(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load wallpaper %s: %w", id, err)
	}
	if reporter == nil {
		reporter = report.Log{Component: "session"}
	}

	s := &Session{
		id:       id,
		store:    store,
		renderer: renderer,
		reporter: reporter,
		log:      logger.WithRecord("session", id),
		flight:   semaphore.NewWeighted(1),
	}
	if baseline != nil {
		b := baseline.Clone()
		applied := b.Clone()
		s.baseline = &b
		s.applied = &applied
		s.edited = b.Clone()
		s.state = Clean
	} else {
		s.edited = wallpaper.Default()
		s.state = PendingPreview
	}

	s.log.Debug().
		Bool("new", baseline == nil).
		Stringer("state", s.state).
		Msg("Edit session opened")
	return s, nil
}

// ID returns the id of the record being edited
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsNew reports whether the record has never been committed
func (s *Session) IsNew() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseline == nil
}

// Edited returns a copy of the record as currently edited
func (s *Session) Edited() wallpaper.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.edited.Clone()
}

// Baseline returns a copy of the last committed record, or nil
func (s *Session) Baseline() *wallpaper.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.baseline == nil {
		return nil
	}
	b := s.baseline.Clone()
	return &b
}

// Undo returns the patch that would restore the renderer to the baseline
func (s *Session) Undo() wallpaper.Patch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.undo.Pending()
}

// Dirty reports whether the edited record differs from the last commit
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !wallpaper.DiffFrom(s.baseline, s.edited).IsEmpty()
}

// Edit replaces the form state. Edits are accepted while a renderer call is in
// flight; the next try picks them up. Nothing is sent until the edited record
// passes wallpaper.Validate.
func (s *Session) Edit(record wallpaper.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Terminal() {
		return ErrClosed
	}
	if s.edited.Equal(record) {
		return nil
	}
	s.edited = record.Clone()
	if s.state != PendingPreview {
		s.log.Debug().Stringer("from", s.state).Msg("Form edited")
		s.state = PendingPreview
	}
	return nil
}

// Try pushes the pending edits to the renderer. On failure the error is
// reported and the bookkeeping is left exactly as it was.
func (s *Session) Try(ctx context.Context) error {
	if err := s.flight.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.flight.Release(1)

	return s.preview(ctx)
}

// Save previews the edits and persists them as the new baseline. If persisting
// fails the session stays open so the user can retry.
func (s *Session) Save(ctx context.Context) error {
	if err := s.flight.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.flight.Release(1)

	// Edits that land while a preview is in flight are previewed too, so the
	// committed record is exactly what the renderer shows.
	for {
		if err := s.preview(ctx); err != nil {
			return err
		}
		s.mu.Lock()
		settled := s.applied != nil && s.edited.Equal(*s.applied)
		s.mu.Unlock()
		if settled {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return ErrClosed
	}
	record := s.applied.Clone()
	s.mu.Unlock()

	if err := s.store.Commit(s.id, record); err != nil {
		s.reporter.Report(report.Wrap("Failed to save the wallpaper.", err))
		s.log.Warn().Err(err).Msg("Commit failed")
		return fmt.Errorf("failed to commit wallpaper %s: %w", s.id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseline = &record
	s.undo.Drain()
	s.added = false
	s.state = Committed
	s.log.Info().Str("name", record.Name).Msg("Wallpaper saved")
	return nil
}

// preview sends one patch. The caller holds the flight semaphore.
func (s *Session) preview(ctx context.Context) error {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return ErrClosed
	}
	snapshot := s.edited.Clone()
	if err := wallpaper.Validate(snapshot); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	if s.applied == nil {
		s.mu.Unlock()
		if err := s.renderer.AddRecord(ctx, s.id, snapshot); err != nil {
			return s.rendererFailed("add", err)
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.state.Terminal() {
			return ErrClosed
		}
		s.applied = &snapshot
		s.added = true
		s.settle(snapshot)
		s.log.Debug().Msg("Wallpaper added to renderer")
		return nil
	}

	// Stage on a copy; a failed call must leave the accumulator untouched.
	undo := s.undo.Clone()
	patch := wallpaper.Diff(*s.applied, snapshot)
	undo.RecordDivergence(patch, *s.applied)
	patch = patch.Merge(undo.FoldReversions(snapshot))
	s.mu.Unlock()

	if !patch.IsEmpty() {
		if err := s.renderer.ApplyPatch(ctx, s.id, patch); err != nil {
			return s.rendererFailed("apply", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return ErrClosed
	}
	s.applied = &snapshot
	s.undo = undo
	s.settle(snapshot)
	s.log.Debug().
		Stringer("patch", patch).
		Stringer("undo", s.undo.Pending()).
		Msg("Preview applied")
	return nil
}

// settle updates the state after snapshot reached the renderer. The renderer
// shows the baseline again once nothing is left to undo. Caller holds mu.
func (s *Session) settle(snapshot wallpaper.Record) {
	switch {
	case !s.edited.Equal(snapshot):
		s.state = PendingPreview
	case s.undo.IsEmpty() && !s.added:
		s.state = Clean
	default:
		s.state = Previewed
	}
}

func (s *Session) rendererFailed(op string, err error) error {
	s.reporter.Report(report.Wrap("Failed to apply the wallpaper.", err))
	s.log.Warn().Err(err).Str("op", op).Msg("Renderer call failed")
	return fmt.Errorf("failed to %s wallpaper %s: %w", op, s.id, err)
}

// Close ends the session without saving. If the renderer shows anything other
// than the baseline, the undo patch is sent (or, for a record that was never
// committed, the live instance is removed). Close waits for that call; the
// session is rolled back even if it fails. Closing a terminal session is a no-op.
func (s *Session) Close(ctx context.Context) error {
	if err := s.flight.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.flight.Release(1)

	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return nil
	}
	from := s.state
	s.state = RolledBack
	undo := s.undo.Drain()
	remove := s.added && s.baseline == nil
	s.mu.Unlock()

	var err error
	switch {
	case remove:
		err = s.renderer.RemoveRecord(ctx, s.id)
	case !undo.IsEmpty():
		err = s.renderer.ApplyPatch(ctx, s.id, undo)
	}
	if err != nil {
		s.reporter.Report(report.Wrap("Failed to restore the wallpaper.", err))
		s.log.Warn().Err(err).Msg("Rollback failed")
		return fmt.Errorf("failed to roll back wallpaper %s: %w", s.id, err)
	}

	s.log.Debug().
		Stringer("from", from).
		Bool("removed", remove).
		Stringer("undo", undo).
		Msg("Edit session rolled back")
	return nil
}

// Discard ends the session without touching the renderer, for a record that
// is being deleted. It waits for an in-flight renderer or store call, so the
// caller may remove the record once Discard returns.
func (s *Session) Discard(ctx context.Context) error {
	if err := s.flight.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.flight.Release(1)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return nil
	}
	s.undo.Drain()
	s.state = RolledBack
	s.log.Debug().Msg("Edit session discarded")
	return nil
}
