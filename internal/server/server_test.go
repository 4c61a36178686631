package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/fibre/internal/component"
	"github.com/conneroisu/fibre/internal/config"
)

func testConfig(dir string) *config.Config {
	return &config.Config{
		Compiler:   config.CompilerConfig{Prefix: "--", Open: "${", Close: "}"},
		Logging:    config.LoggingConfig{Level: "info", Format: "text"},
		Components: config.ComponentsConfig{ScanPaths: []string{dir}, Extension: ".html"},
		Server:     config.ServerConfig{Host: "localhost", Port: 8080},
		Watch:      config.WatchConfig{Debounce: 20 * time.Millisecond},
	}
}

func newTestServer(t *testing.T, files map[string]string) *PreviewServer {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}

	s, err := New(testConfig(dir), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.watcher.Stop() })

	require.NoError(t, s.scanner.ScanPaths(s.config.Components.ScanPaths))
	return s
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestIndexListsComponents(t *testing.T) {
	s := newTestServer(t, map[string]string{
		"user-card.html": `<div>${name}</div>`,
		"nav-bar.html":   `<nav></nav>`,
	})

	rec := get(t, s.Handler(), "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `<a href="/component/nav-bar">nav-bar</a>`)
	assert.Contains(t, body, `<a href="/component/user-card">user-card</a>`)
	assert.Less(t, strings.Index(body, "nav-bar"), strings.Index(body, "user-card"))
	assert.Contains(t, body, "/ws")

	assert.Equal(t, http.StatusNotFound, get(t, s.Handler(), "/missing").Code)
}

func TestIndexWithoutComponents(t *testing.T) {
	s := newTestServer(t, nil)
	assert.Contains(t, get(t, s.Handler(), "/").Body.String(), "no components found")
}

func TestComponentPage(t *testing.T) {
	s := newTestServer(t, map[string]string{
		"user-card.html": `<div class="card"><b>${name}</b> <i>${age + 1}</i></div>`,
	})

	rec := get(t, s.Handler(), "/component/user-card?name=Ann&age=30")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `<main id="fibre-preview" data-component="user-card">`)
	assert.Contains(t, body, `<div class="card"><b>Ann</b><i>31</i></div>`)
	assert.Contains(t, body, "<title>user-card</title>")
}

func TestRenderFragment(t *testing.T) {
	s := newTestServer(t, map[string]string{
		"user-card.html": `<p>${user.name}</p>`,
		"item-list.html": `<ul><li --for="x of items">${x}</li></ul>`,
	})

	rec := get(t, s.Handler(), "/render/user-card?user.name=%3Cb%3E")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `<p>&lt;b&gt;</p>`, rec.Body.String())

	assert.Equal(t, http.StatusNotFound, get(t, s.Handler(), "/render/nope-card").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, s.Handler(), "/render/Bad%3Cname").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, s.Handler(), "/render/user-card?a=1&a.b=2").Code)

	rec = get(t, s.Handler(), "/render/item-list?items=%5Ba%2C%20b%5D")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `<ul><!--fibre:for--><li>a</li><li>b</li></ul>`, rec.Body.String())
}

func TestComponentsAPI(t *testing.T) {
	s := newTestServer(t, map[string]string{"hello-box.html": `<p>Hello ${name}</p>`})

	rec := get(t, s.Handler(), "/api/components")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var summaries []ComponentSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, "hello-box", summaries[0].Name)
	require.Len(t, summaries[0].Template.Directives, 1)
	assert.Equal(t, []string{"name"}, summaries[0].Template.Directives[0].Deps)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, map[string]string{"hello-box.html": `<p></p>`})

	var health map[string]any
	require.NoError(t, json.Unmarshal(get(t, s.Handler(), "/health").Body.Bytes(), &health))
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, float64(1), health["components"])
	assert.NotEmpty(t, health["version"])
}

func TestValidateComponentName(t *testing.T) {
	for _, name := range []string{"user-card", "a1", "x_y"} {
		assert.NoError(t, validateComponentName(name), name)
	}
	for _, name := range []string{"", "../etc", "a..b", "User", "a b", "a/b", strings.Repeat("a", 101)} {
		assert.Error(t, validateComponentName(name), name)
	}
}

func TestCheckOrigin(t *testing.T) {
	s := newTestServer(t, nil)
	s.config.Server.AllowedOrigins = []string{"https://preview.example.com"}

	tests := []struct {
		origin string
		want   bool
	}{
		{"http://localhost:8080", true},
		{"http://127.0.0.1:8080", true},
		{"https://preview.example.com", true},
		{"", false},
		{"http://evil.example.com", false},
		{"ftp://localhost:8080", false},
		{"http://localhost:9999", false},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, s.checkOrigin(req))
		})
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "http://evil.example.com")
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWebSocketReceivesRegistryChanges(t *testing.T) {
	s := newTestServer(t, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	s.config.Server.AllowedOrigins = []string{ts.URL}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.runReloadHub(ctx)
	go s.forwardRegistryEvents(ctx, s.registry.Watch())

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{ts.URL}},
	})
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool { return s.ViewerCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	_, err = s.registry.Define("live-card", component.Options{Template: `<p>live</p>`})
	require.NoError(t, err)

	readCtx, readCancel := context.WithTimeout(ctx, 2*time.Second)
	defer readCancel()
	_, data, err := conn.Read(readCtx)
	require.NoError(t, err)

	var msg UpdateMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "reload", msg.Type)
	assert.Equal(t, "live-card", msg.Target)

	s.registry.Remove("live-card")
	_, data, err = conn.Read(readCtx)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "removed", msg.Type)
}

func TestWebSocketFiltersByComponent(t *testing.T) {
	s := newTestServer(t, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	s.config.Server.AllowedOrigins = []string{ts.URL}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.runReloadHub(ctx)
	go s.forwardRegistryEvents(ctx, s.registry.Watch())

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?component=beta-card"
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{ts.URL}},
	})
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool { return s.ViewerCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	_, err = s.registry.Define("alpha-card", component.Options{Template: `<p>a</p>`})
	require.NoError(t, err)
	_, err = s.registry.Define("beta-card", component.Options{Template: `<p>b</p>`})
	require.NoError(t, err)

	readCtx, readCancel := context.WithTimeout(ctx, 2*time.Second)
	defer readCancel()
	_, data, err := conn.Read(readCtx)
	require.NoError(t, err)

	var msg UpdateMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "beta-card", msg.Target)
}

func TestWebSocketRejectsBadComponentName(t *testing.T) {
	s := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ws?component=Bad%20Name", nil)
	req.Header.Set("Origin", "http://localhost:8080")
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReloadHubDropsViewersOnShutdown(t *testing.T) {
	s := newTestServer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		s.runReloadHub(ctx)
		close(stopped)
	}()

	v := &viewer{target: "x-card", queue: make(chan []byte, 1)}
	s.joins <- v
	require.Eventually(t, func() bool { return s.ViewerCount() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	<-stopped
	assert.Zero(t, s.ViewerCount())
	_, open := <-v.queue
	assert.False(t, open)
}

func TestRunSchedulerFlushesMergedState(t *testing.T) {
	s := newTestServer(t, map[string]string{"count-box.html": `<p>${count}</p>`})
	f, ok := s.Registry().Get("count-box")
	require.True(t, ok)
	c, err := f.New(map[string]any{"count": 1})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		s.runScheduler(ctx)
		close(stopped)
	}()

	rendered := make(chan string, 1)
	require.NoError(t, c.MergeState(map[string]any{"count": 2}))
	s.Registry().Scheduler().Post(func() { rendered <- c.Render() })

	select {
	case out := <-rendered:
		assert.Equal(t, `<p>2</p>`, out)
	case <-time.After(2 * time.Second):
		t.Fatal("deferred flush did not run")
	}

	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestStartServesAndShutsDown(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello-box.html"), []byte(`<p>hi</p>`), 0o644))

	cfg := testConfig(dir)
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0

	s, err := New(cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	require.Eventually(t, func() bool { return s.registry.Has("hello-box") }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestPageEscapesTitle(t *testing.T) {
	var sb strings.Builder
	require.NoError(t, page("<x>", "", indexBody(nil)).Render(context.Background(), &sb))
	assert.Contains(t, sb.String(), "<title>&lt;x&gt;</title>")

	rec := httptest.NewRecorder()
	_, _ = io.WriteString(rec, sb.String())
	assert.True(t, strings.HasPrefix(rec.Body.String(), "<!DOCTYPE html>"))
}
