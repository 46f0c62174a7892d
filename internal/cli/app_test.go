package cli_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/leadflow/internal/cli"
	"github.com/aretw0/leadflow/internal/config"
	"github.com/aretw0/leadflow/internal/logging"
)

const courseFlow = `
id: default
version: "1"
start: kind
nodes:
  - id: kind
    type: choice
    prompt: "¿Qué quieres estudiar?"
    save: type1
    options:
      - { label: "Máster", value: MASTER, next: course }
  - id: course
    type: dynamic
    prompt: "Elige un programa"
    query: getCoursesByFilters
    save: { value: selectedCourseId }
    next: done
  - id: done
    type: end
    prompt: "Elegiste {{selectedCourseName}}."
`

const seed = `
courses:
  - { id: C-1, sf_id: a0B1, name: "Máster en Big Data", tipo_de_estudio1: MASTER, study_of_interest: Data }
  - { id: C-2, sf_id: a0B2, name: "Curso de Python", tipo_de_estudio1: CURSO, study_of_interest: Tech }
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	flows := filepath.Join(dir, "flows")
	require.NoError(t, os.MkdirAll(flows, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(flows, "default.yaml"), []byte(courseFlow), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "courses.yaml"), []byte(seed), 0o644))

	cfg := config.DefaultConfig()
	cfg.FlowsDir = flows
	cfg.Catalog.Path = filepath.Join(dir, "catalog.db")
	cfg.Catalog.Seed = filepath.Join(dir, "courses.yaml")
	cfg.Executor.Workers = 1
	return cfg
}

func post(t *testing.T, h http.Handler, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/chat/next", strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return rr.Code, out
}

func TestBuild_RedisSessions(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Session.Store = config.StoreRedis
	cfg.Redis.Addr = mr.Addr()
	cfg.Redis.DistributedLock = true

	app, err := cli.Build(context.Background(), cfg, logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })
	require.NotNil(t, app.Sessions)

	h := app.Handler()
	code, first := post(t, h, `{"visitorRef": "v1", "originRef": "web"}`)
	require.Equal(t, http.StatusOK, code)
	sid := first["sessionId"].(string)

	code, _ = post(t, h, fmt.Sprintf(`{"sessionId": %q, "visitorRef": "v1", "originRef": "web", "userInput": "MASTER"}`, sid))
	require.Equal(t, http.StatusOK, code)

	code, last := post(t, h, fmt.Sprintf(`{"sessionId": %q, "visitorRef": "v1", "originRef": "web", "userInput": "C-1"}`, sid))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Elegiste Máster en Big Data.", last["prompt"])

	ids, err := app.Sessions.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{sid}, ids)
}

func TestBuild_Health(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Session.Store = config.StoreRedis
	cfg.Redis.Addr = mr.Addr()

	app, err := cli.Build(context.Background(), cfg, logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	rr := httptest.NewRecorder()
	app.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	mr.Close()
	rr = httptest.NewRecorder()
	app.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "redis")
}

func TestBuild_Failures(t *testing.T) {
	t.Run("unreachable redis", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Session.Store = config.StoreRedis
		cfg.Redis.Addr = "127.0.0.1:1"
		_, err := cli.Build(context.Background(), cfg, logging.NewNop())
		assert.ErrorContains(t, err, "connecting to redis")
	})
	t.Run("missing seed", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Catalog.Seed = filepath.Join(t.TempDir(), "nope.yaml")
		_, err := cli.Build(context.Background(), cfg, logging.NewNop())
		assert.ErrorContains(t, err, "seeding catalog")
	})
	t.Run("missing flows", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.FlowsDir = filepath.Join(t.TempDir(), "none")
		_, err := cli.Build(context.Background(), cfg, logging.NewNop())
		assert.ErrorContains(t, err, "loading flows")
	})
	t.Run("crm without credentials", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Leads.Sink = config.SinkCRM
		_, err := cli.Build(context.Background(), cfg, logging.NewNop())
		assert.ErrorContains(t, err, "configuring crm")
	})
}

func TestBuild_MetricsToggle(t *testing.T) {
	cfg := testConfig(t)
	cfg.HTTP.Metrics = false
	app, err := cli.Build(context.Background(), cfg, logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	rr := httptest.NewRecorder()
	app.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestServe_GracefulShutdown(t *testing.T) {
	cfg := testConfig(t)
	cfg.HTTP.ShutdownTimeout = 2 * time.Second
	app, err := cli.Build(context.Background(), cfg, logging.NewNop())
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cli.Serve(ctx, app, ln) }()

	url := "http://" + ln.Addr().String() + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestNewLogger(t *testing.T) {
	_, err := cli.NewLogger(config.LogConfig{Level: "debug", Format: "json"})
	assert.NoError(t, err)
	_, err = cli.NewLogger(config.LogConfig{Level: "loud"})
	assert.Error(t, err)
}
