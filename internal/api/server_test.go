package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bryanchriswhite/Backdrop/internal/config"
	"github.com/bryanchriswhite/Backdrop/internal/renderer"
	"github.com/bryanchriswhite/Backdrop/internal/report"
	"github.com/bryanchriswhite/Backdrop/internal/session"
	"github.com/bryanchriswhite/Backdrop/internal/wallpaper"
	"github.com/bryanchriswhite/Backdrop/internal/window"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeApps struct {
	apps    []window.ApplicationWindow
	focused *window.Info
	err     error
}

func (f fakeApps) GetApplications() ([]window.ApplicationWindow, error) { return f.apps, f.err }

func (f fakeApps) GetCurrentWindow() *window.Info { return f.focused }

type env struct {
	store    *config.Manager
	host     *renderer.Host
	sessions *session.Registry
	errs     *report.Collector
	ts       *httptest.Server
}

func newEnv(t *testing.T, apps Applications) *env {
	return newEnvWith(t, apps, nil)
}

// newEnvWith lets sessions reach the host through wrap
func newEnvWith(t *testing.T, apps Applications, wrap func(*renderer.Host) session.Renderer) *env {
	t.Helper()
	store, err := config.NewManager(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	e := &env{store: store, host: renderer.NewHost(), errs: report.NewCollector(10)}
	var rend session.Renderer = e.host
	if wrap != nil {
		rend = wrap(e.host)
	}
	e.sessions = session.NewRegistry(store, rend, e.errs)
	e.ts = httptest.NewServer(NewServer(store, e.host, e.sessions, apps, e.errs).Handler())
	t.Cleanup(e.ts.Close)
	return e
}

func (e *env) do(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.ts.URL+path, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

type viewResponse struct {
	ID     string           `json:"id"`
	State  string           `json:"state"`
	New    bool             `json:"new"`
	Dirty  bool             `json:"dirty"`
	Record wallpaper.Record `json:"record"`
	Undo   wallpaper.Patch  `json:"undo"`
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func lamp() wallpaper.Record {
	return wallpaper.Record{
		Name:        "Lamp",
		Application: wallpaper.Application{Name: "kitty", Path: "/usr/bin/kitty"},
		Filters:     []wallpaper.Filter{wallpaper.WindowNameFilter("", wallpaper.StrategyContains)},
		Source:      wallpaper.Picture{Path: "/lamp.png"},
		Opacity:     0.3,
	}
}

func TestCreateTrySave(t *testing.T) {
	e := newEnv(t, nil)

	resp := e.do(t, "POST", "/api/wallpapers", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[viewResponse](t, resp)
	assert.True(t, created.New)
	assert.Equal(t, "pending_preview", created.State)
	assert.Equal(t, wallpaper.DefaultOpacity, created.Record.Opacity)
	id := created.ID

	resp = e.do(t, "PUT", "/api/wallpapers/"+id+"/session", lamp())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.do(t, "POST", "/api/wallpapers/"+id+"/session/try", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "previewed", decode[viewResponse](t, resp).State)
	live, ok := e.host.Get(id)
	require.True(t, ok)
	assert.True(t, live.Equal(lamp()))

	resp = e.do(t, "POST", "/api/wallpapers/"+id+"/session/save", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "committed", decode[viewResponse](t, resp).State)

	resp = e.do(t, "GET", "/api/wallpapers", nil)
	entries := decode[[]config.Entry](t, resp)
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].ID)

	resp = e.do(t, "GET", "/api/wallpapers/"+id+"/session", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEditTryClose(t *testing.T) {
	e := newEnv(t, nil)
	require.NoError(t, e.store.Commit("w1", lamp()))
	e.host.Load(e.store.Records())

	resp := e.do(t, "POST", "/api/wallpapers/w1/session", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "clean", decode[viewResponse](t, resp).State)

	edited := lamp()
	edited.Opacity = 0.6
	e.do(t, "PUT", "/api/wallpapers/w1/session", edited)
	resp = e.do(t, "POST", "/api/wallpapers/w1/session/try", nil)
	view := decode[viewResponse](t, resp)
	assert.True(t, view.Dirty)
	require.True(t, view.Undo.Has(wallpaper.FieldOpacity))
	assert.Equal(t, 0.3, *view.Undo.Opacity)

	live, _ := e.host.Get("w1")
	assert.Equal(t, 0.6, live.Opacity)

	resp = e.do(t, "DELETE", "/api/wallpapers/w1/session", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	live, _ = e.host.Get("w1")
	assert.Equal(t, 0.3, live.Opacity)

	base, err := e.store.LoadBaseline("w1")
	require.NoError(t, err)
	assert.Equal(t, 0.3, base.Opacity)
}

func TestOpenUnknownRecord(t *testing.T) {
	e := newEnv(t, nil)
	resp := e.do(t, "POST", "/api/wallpapers/nope/session", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestInvalidFormIsRejected(t *testing.T) {
	e := newEnv(t, nil)
	require.NoError(t, e.store.Commit("w1", lamp()))
	e.do(t, "POST", "/api/wallpapers/w1/session", nil)

	bad := lamp()
	bad.Name = "x"
	bad.Opacity = 2
	resp := e.do(t, "PUT", "/api/wallpapers/w1/session", bad)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	body := decode[struct {
		Errors []fieldErrorView `json:"errors"`
	}](t, resp)
	var fields []wallpaper.Field
	for _, fe := range body.Errors {
		fields = append(fields, fe.Field)
	}
	assert.ElementsMatch(t, []wallpaper.Field{wallpaper.FieldName, wallpaper.FieldOpacity}, fields)

	resp = e.do(t, "GET", "/api/wallpapers/w1/session", nil)
	assert.Equal(t, "clean", decode[viewResponse](t, resp).State)

	req, err := http.NewRequest("PUT", e.ts.URL+"/api/wallpapers/w1/session", strings.NewReader("{"))
	require.NoError(t, err)
	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer raw.Body.Close()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)
}

func TestRendererFailureIsReported(t *testing.T) {
	e := newEnv(t, nil)
	// committed but never loaded into the renderer
	require.NoError(t, e.store.Commit("w1", lamp()))
	e.do(t, "POST", "/api/wallpapers/w1/session", nil)

	edited := lamp()
	edited.Opacity = 0.9
	e.do(t, "PUT", "/api/wallpapers/w1/session", edited)
	resp := e.do(t, "POST", "/api/wallpapers/w1/session/try", nil)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	entry := decode[report.Entry](t, resp)
	assert.Equal(t, renderer.CodeNotFound, entry.Code)

	resp = e.do(t, "GET", "/api/errors", nil)
	entries := decode[[]report.Entry](t, resp)
	require.Len(t, entries, 1)
	assert.Equal(t, renderer.CodeNotFound, entries[0].Code)

	resp = e.do(t, "GET", "/api/wallpapers/w1/session", nil)
	view := decode[viewResponse](t, resp)
	assert.Equal(t, "pending_preview", view.State)
	assert.True(t, view.Undo.IsEmpty())
}

func TestDeleteWallpaper(t *testing.T) {
	e := newEnv(t, nil)
	require.NoError(t, e.store.Commit("w1", lamp()))
	e.host.Load(e.store.Records())
	e.do(t, "POST", "/api/wallpapers/w1/session", nil)

	resp := e.do(t, "DELETE", "/api/wallpapers/w1", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, e.store.List())
	assert.Empty(t, e.host.IDs())
	assert.Empty(t, e.sessions.IDs())

	resp = e.do(t, "DELETE", "/api/wallpapers/w1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteUnsavedWallpaper(t *testing.T) {
	e := newEnv(t, nil)
	created := decode[viewResponse](t, e.do(t, "POST", "/api/wallpapers", nil))
	e.do(t, "PUT", "/api/wallpapers/"+created.ID+"/session", lamp())
	e.do(t, "POST", "/api/wallpapers/"+created.ID+"/session/try", nil)
	require.Len(t, e.host.IDs(), 1)

	resp := e.do(t, "DELETE", "/api/wallpapers/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, e.host.IDs())
}

func TestApplications(t *testing.T) {
	apps := []window.ApplicationWindow{{WindowTitle: "t", Name: "kitty", Path: "/usr/bin/kitty"}}
	e := newEnv(t, fakeApps{apps: apps})
	resp := e.do(t, "GET", "/api/applications", nil)
	assert.Equal(t, apps, decode[[]window.ApplicationWindow](t, resp))

	failing := newEnv(t, fakeApps{err: errors.New("no display")})
	resp = failing.do(t, "GET", "/api/applications", nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "no display", decode[report.Entry](t, resp).Detail)

	none := newEnv(t, nil)
	resp = none.do(t, "GET", "/api/applications", nil)
	assert.Empty(t, decode[[]window.ApplicationWindow](t, resp))
}

func TestRendererEventsStream(t *testing.T) {
	e := newEnv(t, nil)
	url := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/api/renderer/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	msgs := make(chan renderer.Event, 64)
	go func() {
		defer close(msgs)
		for {
			var ev renderer.Event
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			msgs <- ev
		}
	}()

	// the handler subscribes after the upgrade; wait until events flow
	require.Eventually(t, func() bool {
		e.host.Focus("", "")
		select {
		case <-msgs:
			return true
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, e.store.Commit("w1", lamp()))
	e.host.Load(e.store.Records())

	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-msgs:
			require.True(t, ok, "stream closed")
			if ev.Type == renderer.EventAdd {
				assert.Equal(t, "w1", ev.ID)
				require.NotNil(t, ev.Record)
				assert.Equal(t, "Lamp", ev.Record.Name)
				return
			}
		case <-timeout:
			t.Fatal("no add event received")
		}
	}
}

// gatedHost holds every AddRecord until the gate is closed
type gatedHost struct {
	*renderer.Host
	entered chan struct{}
	gate    chan struct{}
}

func (g *gatedHost) AddRecord(ctx context.Context, id string, r wallpaper.Record) error {
	g.entered <- struct{}{}
	<-g.gate
	return g.Host.AddRecord(ctx, id, r)
}

func TestSaveWithoutFormIsRejected(t *testing.T) {
	e := newEnv(t, nil)
	created := decode[viewResponse](t, e.do(t, "POST", "/api/wallpapers", nil))

	for _, action := range []string{"try", "save"} {
		resp := e.do(t, "POST", "/api/wallpapers/"+created.ID+"/session/"+action, nil)
		require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, action)
		body := decode[struct {
			Errors []fieldErrorView `json:"errors"`
		}](t, resp)
		var fields []wallpaper.Field
		for _, fe := range body.Errors {
			fields = append(fields, fe.Field)
		}
		assert.Equal(t, []wallpaper.Field{wallpaper.FieldName, wallpaper.FieldApplication, wallpaper.FieldSource}, fields)
	}

	assert.Empty(t, e.store.List())
	assert.Empty(t, e.host.IDs())
	view := decode[viewResponse](t, e.do(t, "GET", "/api/wallpapers/"+created.ID+"/session", nil))
	assert.Equal(t, "pending_preview", view.State)
}

func TestDeleteWaitsForInFlightAdd(t *testing.T) {
	gated := &gatedHost{entered: make(chan struct{}, 1), gate: make(chan struct{})}
	e := newEnvWith(t, nil, func(h *renderer.Host) session.Renderer {
		gated.Host = h
		return gated
	})
	created := decode[viewResponse](t, e.do(t, "POST", "/api/wallpapers", nil))
	id := created.ID
	e.do(t, "PUT", "/api/wallpapers/"+id+"/session", lamp())

	post := func(method, path string, out chan<- int) {
		req, err := http.NewRequest(method, e.ts.URL+path, nil)
		if err != nil {
			out <- 0
			return
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			out <- 0
			return
		}
		resp.Body.Close()
		out <- resp.StatusCode
	}

	tried := make(chan int, 1)
	go post("POST", "/api/wallpapers/"+id+"/session/try", tried)
	<-gated.entered

	deleted := make(chan int, 1)
	go post("DELETE", "/api/wallpapers/"+id, deleted)
	select {
	case <-deleted:
		t.Fatal("delete returned while the add was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(gated.gate)
	assert.Equal(t, http.StatusOK, <-tried)
	assert.Equal(t, http.StatusNoContent, <-deleted)

	_, live := e.host.Get(id)
	assert.False(t, live)
	assert.Empty(t, e.host.IDs())
	assert.Empty(t, e.sessions.IDs())
	assert.Empty(t, e.store.List())
}

func TestFocusedWindow(t *testing.T) {
	win := &window.Info{ID: 3, Title: "main.go - nvim", Class: "kitty", Path: "/usr/bin/kitty", Focused: true}
	e := newEnv(t, fakeApps{focused: win})
	resp := e.do(t, "GET", "/api/applications/focused", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, *win, *decode[*window.Info](t, resp))

	none := newEnv(t, nil)
	resp = none.do(t, "GET", "/api/applications/focused", nil)
	assert.Nil(t, decode[*window.Info](t, resp))
}

func TestHealth(t *testing.T) {
	e := newEnv(t, nil)
	resp := e.do(t, "GET", "/api/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]interface{}](t, resp)
	assert.Equal(t, "healthy", body["status"])

	resp = e.do(t, "OPTIONS", "/api/health", nil)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestDefaults(t *testing.T) {
	e := newEnv(t, nil)
	resp := e.do(t, "GET", "/api/defaults", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[struct {
		Record     wallpaper.Record          `json:"record"`
		Strategies []wallpaper.MatchStrategy `json:"strategies"`
	}](t, resp)
	assert.True(t, wallpaper.Default().Equal(body.Record))
	assert.Len(t, body.Strategies, 4)
}

func TestRunStopsWithContext(t *testing.T) {
	e := newEnv(t, nil)
	srv := NewServer(e.store, e.host, e.sessions, nil, e.errs)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, 0) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(ShutdownTimeout + time.Second):
		t.Fatal("Run did not return")
	}
}
