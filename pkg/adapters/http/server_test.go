package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/aretw0/leadflow/pkg/adapters/http"
	"github.com/aretw0/leadflow/pkg/adapters/memory"
	"github.com/aretw0/leadflow/pkg/domain"
	"github.com/aretw0/leadflow/pkg/flowstore"
	"github.com/aretw0/leadflow/pkg/orchestrator"
	"github.com/aretw0/leadflow/pkg/session"
)

const demoFlow = `
id: demo
version: "1"
start: ask
nodes:
  - id: ask
    type: choice
    prompt: "¿Qué color prefieres?"
    save: color
    options:
      - { label: Rojo, value: RED, next: done }
      - { label: Azul, value: BLUE, next: done }
  - id: done
    type: end
    prompt: "Elegiste {{color}}."
`

type fixture struct {
	handler http.Handler
	streams *httpadapter.StreamManager
}

func newFixture(t *testing.T, opts ...httpadapter.Option) *fixture {
	t.Helper()
	flows, err := flowstore.LoadFS(fstest.MapFS{"flows/demo.yaml": {Data: []byte(demoFlow)}}, "flows")
	require.NoError(t, err)

	streams := httpadapter.NewStreamManager(nil)
	orch := orchestrator.New(flows, session.NewManager(memory.NewStore()), nil, nil,
		orchestrator.WithDefaultFlow("demo"),
		orchestrator.WithHooks(streams.Hooks()),
	)
	opts = append([]httpadapter.Option{httpadapter.WithStreams(streams)}, opts...)
	return &fixture{handler: httpadapter.NewHandler(orch, flows, opts...), streams: streams}
}

func (f *fixture) post(t *testing.T, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/chat/next", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return rr, out
}

func TestNext_Conversation(t *testing.T) {
	f := newFixture(t)

	rr, first := f.post(t, `{"visitorRef": "v1", "originRef": "https://example.test", "userInput": null}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ask", first["currentNodeId"])
	assert.Equal(t, "choice", first["kind"])
	assert.Len(t, first["options"], 2)
	sid := first["sessionId"].(string)
	require.NotEmpty(t, sid)

	rr, next := f.post(t, fmt.Sprintf(`{"sessionId": %q, "visitorRef": "v1", "originRef": "https://example.test", "userInput": {"value": "BLUE", "label": "Azul"}}`, sid))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "done", next["currentNodeId"])
	assert.Equal(t, true, next["terminal"])
	assert.Equal(t, "Elegiste BLUE.", next["prompt"])
	assert.Equal(t, "BLUE", next["state"].(map[string]any)["color"])
}

func TestNext_LegacyFieldNames(t *testing.T) {
	f := newFixture(t)

	rr, out := f.post(t, `{"visitorHash": "v1", "urlOrigen": "https://example.test"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ask", out["currentNodeId"])

	rr, out = f.post(t, `{"visitorRef": "v1", "originRef": "https://example.test", "userInput": "RED"}`)
	require.Equal(t, http.StatusOK, rr.Code, "same visitor and origin resume the session")
	assert.Equal(t, "done", out["currentNodeId"])
}

func TestNext_Rejected(t *testing.T) {
	f := newFixture(t)

	rr, out := f.post(t, `{"visitorRef": "v1", "originRef": "o", "userInput": {"value": "GREEN"}}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, "ask", out["currentNodeId"])
	rejection := out["rejection"].(map[string]any)
	assert.Equal(t, domain.CodeInvalidOption, rejection["code"])
}

func TestNext_ErrorStatuses(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name, body string
		status     int
		code       string
	}{
		{"malformed json", `{"visitorRef": `, http.StatusBadRequest, domain.CodeBadRequest},
		{"missing origin", `{"visitorRef": "v1"}`, http.StatusBadRequest, domain.CodeBadRequest},
		{"array input", `{"visitorRef": "v1", "originRef": "o", "userInput": [1]}`, http.StatusBadRequest, domain.CodeBadRequest},
		{"unknown flow", `{"visitorRef": "v1", "originRef": "o", "flowId": "ghost"}`, http.StatusNotFound, domain.CodeFlowNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, out := f.post(t, tt.body)
			assert.Equal(t, tt.status, rr.Code)
			assert.Equal(t, tt.code, out["code"])
			assert.NotEmpty(t, out["error"])
		})
	}
}

type failingRunner struct{ err error }

func (f failingRunner) Turn(context.Context, orchestrator.TurnRequest) (*orchestrator.TurnResponse, error) {
	return nil, f.err
}

func TestNext_InfrastructureErrors(t *testing.T) {
	flows, err := flowstore.Load()
	require.NoError(t, err)

	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("saving: %w", domain.ErrVersionConflict), http.StatusConflict},
		{errors.New("redis: connection refused"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		h := httpadapter.NewHandler(failingRunner{tt.err}, flows)
		req := httptest.NewRequest(http.MethodPost, "/api/chat/next", strings.NewReader(`{"visitorRef": "v", "originRef": "o"}`))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, tt.status, rr.Code)
		assert.NotContains(t, rr.Body.String(), "redis", "internal details are not leaked")
	}
}

func TestFlows(t *testing.T) {
	f := newFixture(t)

	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/flows", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var list []flowstore.Summary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "demo", list[0].ID)
	assert.Equal(t, 2, list[0].Nodes)

	rr = httptest.NewRecorder()
	f.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/flows/demo", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var detail struct {
		Start    string `json:"start"`
		NodeList []struct {
			ID   string   `json:"id"`
			Kind string   `json:"kind"`
			Next []string `json:"next"`
		} `json:"nodeList"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &detail))
	assert.Equal(t, "ask", detail.Start)
	require.Len(t, detail.NodeList, 2)
	assert.Equal(t, []string{"done"}, detail.NodeList[0].Next)
	assert.Equal(t, "end", detail.NodeList[1].Kind)

	rr = httptest.NewRecorder()
	f.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/flows/ghost", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	f = newFixture(t,
		httpadapter.WithHealthCheck("redis", func(context.Context) error { return errors.New("down") }),
		httpadapter.WithHealthCheck("catalog", func(context.Context) error { return nil }),
	)
	rr = httptest.NewRecorder()
	f.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.JSONEq(t, `{"status":"degraded","checks":{"redis":"down","catalog":"ok"}}`, rr.Body.String())
}

func TestMetricsMount(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("leadflow_turns_total 1\n"))
	})
	f := newFixture(t, httpadapter.WithMetricsHandler(metrics))
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "leadflow_turns_total")
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, httpadapter.WithRateLimit(2, time.Minute))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/flows", nil)
		req.RemoteAddr = "203.0.113.7:4242"
		rr := httptest.NewRecorder()
		f.handler.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestCORS(t *testing.T) {
	f := newFixture(t, httpadapter.WithAllowedOrigins("https://www.example.test"))

	req := httptest.NewRequest(http.MethodOptions, "/api/chat/next", nil)
	req.Header.Set("Origin", "https://www.example.test")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	assert.Equal(t, "https://www.example.test", rr.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/chat/next", nil)
	req.Header.Set("Origin", "https://evil.test")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr = httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestSubscribeEvents_Session(t *testing.T) {
	f := newFixture(t)
	_, first := f.post(t, `{"visitorRef": "v1", "originRef": "o"}`)
	sid := first["sessionId"].(string)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.handler.ServeHTTP(sub, httptest.NewRequest(http.MethodGet, "/api/chat/events?sessionId="+sid, nil).WithContext(ctx))
	}()
	require.Eventually(t, func() bool { return f.streams.Subscribers(sid) == 1 }, time.Second, 5*time.Millisecond)

	rr, _ := f.post(t, fmt.Sprintf(`{"sessionId": %q, "visitorRef": "v1", "originRef": "o", "userInput": "RED"}`, sid))
	require.Equal(t, http.StatusOK, rr.Code)

	// Let the stream write the diff before disconnecting.
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	out := sub.Body.String()
	assert.Contains(t, out, "event: ping")
	assert.Contains(t, out, `"current_node_id":"done"`)
	assert.Contains(t, out, `"color":"RED"`)
	assert.Equal(t, 0, f.streams.Subscribers(sid))
}

func TestSubscribeEvents_RequiresSession(t *testing.T) {
	f := newFixture(t)
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/chat/events", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestStreamManager_PublishIsPerSession(t *testing.T) {
	sm := httpadapter.NewStreamManager(nil)
	ch, cancel := sm.Subscribe("s1")
	defer cancel()

	node := "N2"
	sm.Publish("s1", &domain.StateDiff{SessionID: "s1", CurrentNodeID: &node})
	sm.Publish("other", &domain.StateDiff{SessionID: "other"})

	select {
	case msg := <-ch:
		assert.True(t, bytes.Contains(msg, []byte(`"current_node_id":"N2"`)))
	case <-time.After(time.Second):
		t.Fatal("expected a message")
	}
	assert.Empty(t, ch)
}
