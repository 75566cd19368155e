package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bryanchriswhite/Backdrop/internal/config"
	"github.com/bryanchriswhite/Backdrop/internal/logger"
	"github.com/bryanchriswhite/Backdrop/internal/renderer"
	"github.com/bryanchriswhite/Backdrop/internal/report"
	"github.com/bryanchriswhite/Backdrop/internal/session"
	"github.com/bryanchriswhite/Backdrop/internal/wallpaper"
	"github.com/bryanchriswhite/Backdrop/internal/window"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Version is reported by the health endpoint
const Version = "0.1.0"

// ShutdownTimeout bounds the wait for in-flight requests on shutdown
const ShutdownTimeout = 5 * time.Second

// Store is the persistence the server lists and deletes records through
type Store interface {
	session.Store
	List() []config.Entry
	Remove(id string) error
}

// Applications lists the running applications for the picker
type Applications interface {
	GetApplications() ([]window.ApplicationWindow, error)
	GetCurrentWindow() *window.Info
}

// Server represents the HTTP API server
type Server struct {
	router   *mux.Router
	store    Store
	host     *renderer.Host
	sessions *session.Registry
	apps     Applications
	errors   *report.Collector
	upgrader websocket.Upgrader
}

// NewServer creates a new API server. apps may be nil when no window backend
// is available.
func NewServer(store Store, host *renderer.Host, sessions *session.Registry, apps Applications, errs *report.Collector) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		store:    store,
		host:     host,
		sessions: sessions,
		apps:     apps,
		errors:   errs,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for the local editor
			},
		},
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Wallpaper records
	api.HandleFunc("/wallpapers", s.handleListWallpapers).Methods("GET")
	api.HandleFunc("/wallpapers", s.handleCreateWallpaper).Methods("POST")
	api.HandleFunc("/wallpapers/{id}", s.handleDeleteWallpaper).Methods("DELETE")

	// Edit sessions
	api.HandleFunc("/wallpapers/{id}/session", s.handleOpenSession).Methods("POST")
	api.HandleFunc("/wallpapers/{id}/session", s.handleGetSession).Methods("GET")
	api.HandleFunc("/wallpapers/{id}/session", s.handleEditSession).Methods("PUT")
	api.HandleFunc("/wallpapers/{id}/session", s.handleCloseSession).Methods("DELETE")
	api.HandleFunc("/wallpapers/{id}/session/try", s.handleTry).Methods("POST")
	api.HandleFunc("/wallpapers/{id}/session/save", s.handleSave).Methods("POST")

	// Renderer state
	api.HandleFunc("/renderer", s.handleRendererState).Methods("GET")
	api.HandleFunc("/renderer/events", s.handleRendererEvents)

	api.HandleFunc("/applications", s.handleGetApplications).Methods("GET")
	api.HandleFunc("/applications/focused", s.handleGetFocused).Methods("GET")
	api.HandleFunc("/defaults", s.handleDefaults).Methods("GET")

	// Reported errors
	api.HandleFunc("/errors", s.handleGetErrors).Methods("GET")
	api.HandleFunc("/errors", s.handleClearErrors).Methods("DELETE")

	api.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the root handler with CORS applied
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Run serves on port until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context, port int) error {
	log := logger.WithComponent("api")
	srv := &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Starting server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	log.Info().Msg("Server stopped")
	return nil
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithComponent("api").Warn().Err(err).Msg("Failed to encode response")
	}
}

// writeError maps err to a status code. Collaborator failures carry the
// message and detail the user sees.
func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, session.ErrInvalid) {
		writeInvalid(w, err)
		return
	}

	status := http.StatusInternalServerError
	var re *report.Error
	switch {
	case errors.Is(err, session.ErrClosed):
		status = http.StatusConflict
	case errors.Is(err, config.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	case errors.As(err, &re):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, report.EntryFor(err))
}

type fieldErrorView struct {
	Field   wallpaper.Field `json:"field"`
	Message string          `json:"message"`
}

// writeInvalid lists the field errors of a failed wallpaper.Validate
func writeInvalid(w http.ResponseWriter, err error) {
	fields := wallpaper.FieldErrors(err)
	views := make([]fieldErrorView, 0, len(fields))
	for _, fe := range fields {
		views = append(views, fieldErrorView{Field: fe.Field, Message: fe.Message})
	}
	writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{"errors": views})
}

// sessionView is the edit screen's state
type sessionView struct {
	ID     string           `json:"id"`
	State  string           `json:"state"`
	New    bool             `json:"new"`
	Dirty  bool             `json:"dirty"`
	Record wallpaper.Record `json:"record"`
	Undo   wallpaper.Patch  `json:"undo"`
}

func viewOf(sess *session.Session) sessionView {
	return sessionView{
		ID:     sess.ID(),
		State:  sess.State().String(),
		New:    sess.IsNew(),
		Dirty:  sess.Dirty(),
		Record: sess.Edited(),
		Undo:   sess.Undo(),
	}
}

// liveSession looks up the open session named by the route, writing 404 if
// there is none
func (s *Server) liveSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := mux.Vars(r)["id"]
	sess, ok := s.sessions.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, report.Entry{
			Time:    time.Now(),
			Message: "No edit session is open for this wallpaper.",
			Detail:  id,
		})
		return nil, false
	}
	return sess, true
}

// HTTP Handlers

func (s *Server) handleListWallpapers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.List())
}

// handleCreateWallpaper opens a session on a fresh id; the record exists only
// once the session is saved
func (s *Server) handleCreateWallpaper(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Open(uuid.NewString())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(sess))
}

// handleDeleteWallpaper drops any open session for the record, then removes
// it from the store and the renderer. The session is discarded first so a
// try or save still in flight lands before the removal.
func (s *Server) handleDeleteWallpaper(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	log := logger.WithRecord("api", id)

	_, live := s.sessions.Get(id)
	if err := s.sessions.Discard(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	err := s.store.Remove(id)
	if err != nil && !(errors.Is(err, config.ErrNotFound) && live) {
		writeError(w, err)
		return
	}

	if err := s.host.RemoveRecord(r.Context(), id); err != nil {
		s.errors.Report(report.Wrap("Failed to remove the wallpaper.", err))
		log.Warn().Err(err).Msg("Renderer remove failed")
	}
	log.Info().Msg("Wallpaper deleted")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, live := s.sessions.Get(id); !live {
		base, err := s.store.LoadBaseline(id)
		if err != nil {
			writeError(w, err)
			return
		}
		if base == nil {
			writeError(w, fmt.Errorf("%w: %s", config.ErrNotFound, id))
			return
		}
	}

	sess, err := s.sessions.Open(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(sess))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.liveSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewOf(sess))
}

// handleEditSession replaces the form state after validating it
func (s *Server) handleEditSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.liveSession(w, r)
	if !ok {
		return
	}

	var record wallpaper.Record
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		writeJSON(w, http.StatusBadRequest, report.EntryFor(report.New("bad_request", "The form could not be read.", err.Error())))
		return
	}
	if err := wallpaper.Validate(record); err != nil {
		writeInvalid(w, err)
		return
	}

	if err := sess.Edit(record); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(sess))
}

func (s *Server) handleTry(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.liveSession(w, r)
	if !ok {
		return
	}
	if err := sess.Try(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(sess))
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.liveSession(w, r)
	if !ok {
		return
	}
	if err := sess.Save(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(sess))
}

// handleCloseSession rolls the session back. The rollback runs detached from
// the request so a client that disconnects still gets the renderer restored.
func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 30*time.Second)
	defer cancel()

	if err := s.sessions.Close(ctx, id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRendererState(w http.ResponseWriter, r *http.Request) {
	live := make(map[string]wallpaper.Record)
	for _, id := range s.host.IDs() {
		if rec, ok := s.host.Get(id); ok {
			live[id] = rec
		}
	}
	writeJSON(w, http.StatusOK, live)
}

// handleRendererEvents streams renderer changes to a websocket client
func (s *Server) handleRendererEvents(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("api")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}
	defer conn.Close()

	events := s.host.Subscribe()
	defer s.host.Unsubscribe(events)

	// Reads only to notice the client going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case ev := <-events:
			if err := conn.WriteJSON(ev); err != nil {
				log.Debug().Err(err).Msg("WebSocket write error")
				return
			}
		}
	}
}

func (s *Server) handleGetApplications(w http.ResponseWriter, r *http.Request) {
	if s.apps == nil {
		writeJSON(w, http.StatusOK, []window.ApplicationWindow{})
		return
	}
	apps, err := s.apps.GetApplications()
	if err != nil {
		writeError(w, report.Wrap("Failed to list applications.", err))
		return
	}
	writeJSON(w, http.StatusOK, apps)
}

// handleGetFocused returns the focused window, or null when it is unknown
func (s *Server) handleGetFocused(w http.ResponseWriter, r *http.Request) {
	var win *window.Info
	if s.apps != nil {
		win = s.apps.GetCurrentWindow()
	}
	writeJSON(w, http.StatusOK, win)
}

func (s *Server) handleDefaults(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"record":       wallpaper.Default(),
		"source_kinds": wallpaper.SourceKinds(),
		"strategies": []wallpaper.MatchStrategy{
			wallpaper.StrategyPrefix,
			wallpaper.StrategySuffix,
			wallpaper.StrategyContains,
			wallpaper.StrategyExact,
		},
	})
}

func (s *Server) handleGetErrors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.errors.Entries())
}

func (s *Server) handleClearErrors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.errors.Drain())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "healthy",
		"version":  Version,
		"sessions": s.sessions.IDs(),
	})
}
