package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ent0n29/docent/internal/capture"
	"github.com/ent0n29/docent/internal/config"
	"github.com/ent0n29/docent/internal/dialogue"
	"github.com/ent0n29/docent/internal/exhibition"
	"github.com/ent0n29/docent/internal/observability"
	"github.com/ent0n29/docent/internal/protocol"
	"github.com/ent0n29/docent/internal/session"
	"github.com/ent0n29/docent/internal/translation"
	"github.com/ent0n29/docent/internal/voice"
)

type testEnv struct {
	ts    *httptest.Server
	o     *voice.Orchestrator
	store *exhibition.InMemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	metrics := observability.NewMetricsWith("test_httpapi", prometheus.NewRegistry())
	device := capture.NewStreamDevice(16000, 5*time.Second)
	ctrl, err := capture.NewController(t.TempDir(), device, nil)
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}
	o, err := voice.NewOrchestrator(voice.Config{Language: "en", TurnTimeout: 5 * time.Second, InitTimeout: 5 * time.Second}, voice.Deps{
		Capture:     ctrl,
		AudioInput:  device,
		Transcriber: voice.NewMockTranscriber(),
		Translator:  translation.NewDictionaryTranslator(nil),
		Responder:   dialogue.NewResponder(dialogue.NewMockAdapter()),
		Synthesizer: voice.NewMockSynthesizer(),
		Metrics:     metrics,
	})
	if err != nil {
		t.Fatalf("NewOrchestrator() error = %v", err)
	}
	store := exhibition.NewInMemoryStore()
	srv := New(config.Config{}, o, store, metrics)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		ts.Close()
		_ = o.Close()
	})

	deadline := time.Now().Add(3 * time.Second)
	for o.Status() != session.StatusReady && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if got := o.Status(); got != session.StatusReady {
		t.Fatalf("Status() = %s, want ready", got)
	}
	return &testEnv{ts: ts, o: o, store: store}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, path, err)
	}
	defer res.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(res.Body).Decode(&out)
	return res, out
}

func TestReadyz(t *testing.T) {
	env := newTestEnv(t)
	res, body := env.do(t, http.MethodGet, "/readyz", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("readyz status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if body["status"] != "ready" {
		t.Fatalf("readyz body = %+v, want status ready", body)
	}

	res, body = env.do(t, http.MethodGet, "/healthz", nil)
	if res.StatusCode != http.StatusOK || body["exhibition_store"] != "in-memory" {
		t.Fatalf("healthz = %d %+v", res.StatusCode, body)
	}
}

func TestSubmitTextReturnsHistory(t *testing.T) {
	env := newTestEnv(t)
	res, body := env.do(t, http.MethodPost, "/v1/messages", map[string]string{"text": "Hello"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("messages status = %d, want %d (%+v)", res.StatusCode, http.StatusOK, body)
	}
	turns, _ := body["turns"].([]any)
	if len(turns) != 2 {
		t.Fatalf("len(turns) = %d, want 2", len(turns))
	}
	newest, _ := turns[0].(map[string]any)
	if newest["role"] != "assistant" {
		t.Fatalf("turns[0].role = %v, want assistant", newest["role"])
	}

	res, _ = env.do(t, http.MethodDelete, "/v1/history", nil)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("clear status = %d, want %d", res.StatusCode, http.StatusNoContent)
	}
	if got := len(env.o.History()); got != 0 {
		t.Fatalf("len(History()) = %d, want 0", got)
	}
}

func TestSessionErrorStatuses(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{http.MethodPost, "/v1/messages", map[string]string{"text": "   "}, http.StatusBadRequest, "empty_input"},
		{http.MethodPut, "/v1/language", map[string]string{"language": "klingon"}, http.StatusNotFound, "unknown_language"},
		{http.MethodPost, "/v1/recording/stop", nil, http.StatusConflict, "not_recording"},
		{http.MethodPost, "/v1/responses", map[string]string{"text": ""}, http.StatusBadRequest, "empty_input"},
	}
	for _, tc := range cases {
		res, body := env.do(t, tc.method, tc.path, tc.body)
		if res.StatusCode != tc.status {
			t.Fatalf("%s %s status = %d, want %d", tc.method, tc.path, res.StatusCode, tc.status)
		}
		if body["code"] != tc.code {
			t.Fatalf("%s %s code = %v, want %s", tc.method, tc.path, body["code"], tc.code)
		}
	}
}

func TestRecordingLifecycle(t *testing.T) {
	env := newTestEnv(t)

	res, _ := env.do(t, http.MethodPost, "/v1/recording/start", nil)
	if res.StatusCode != http.StatusAccepted {
		t.Fatalf("start status = %d, want %d", res.StatusCode, http.StatusAccepted)
	}
	res, body := env.do(t, http.MethodPost, "/v1/recording/start", nil)
	if res.StatusCode != http.StatusConflict || body["code"] != "recording_in_flight" {
		t.Fatalf("second start = %d %+v, want 409 recording_in_flight", res.StatusCode, body)
	}
	res, body = env.do(t, http.MethodPost, "/v1/messages", map[string]string{"text": "Hello"})
	if res.StatusCode != http.StatusConflict || body["code"] != "busy" {
		t.Fatalf("text while recording = %d %+v, want 409 busy", res.StatusCode, body)
	}
	res, _ = env.do(t, http.MethodPost, "/v1/recording/stop", nil)
	if res.StatusCode != http.StatusAccepted {
		t.Fatalf("stop status = %d, want %d", res.StatusCode, http.StatusAccepted)
	}

	// An empty recording transcribes to nothing and the session recovers.
	deadline := time.Now().Add(3 * time.Second)
	for env.o.Status() != session.StatusReady && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if got := env.o.Status(); got != session.StatusReady {
		t.Fatalf("Status() = %s, want ready", got)
	}
}

func TestSetLanguage(t *testing.T) {
	env := newTestEnv(t)
	res, body := env.do(t, http.MethodPut, "/v1/language", map[string]string{"language": "es"})
	if res.StatusCode != http.StatusAccepted {
		t.Fatalf("language status = %d, want %d", res.StatusCode, http.StatusAccepted)
	}
	if body["code"] != "es" || body["pivot"] != false {
		t.Fatalf("language body = %+v", body)
	}

	res, body = env.do(t, http.MethodGet, "/v1/languages", nil)
	langs, _ := body["languages"].([]any)
	if res.StatusCode != http.StatusOK || len(langs) == 0 {
		t.Fatalf("languages = %d %+v", res.StatusCode, body)
	}
}

func TestReplaceExhibitionsPersists(t *testing.T) {
	env := newTestEnv(t)
	payload := map[string]any{"exhibitions": []map[string]any{
		{"id": "sundial", "name": "Sundial", "location": "Courtyard"},
	}}
	res, body := env.do(t, http.MethodPut, "/v1/exhibitions", payload)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("replace status = %d, want %d (%+v)", res.StatusCode, http.StatusOK, body)
	}

	stored, err := env.store.List(t.Context())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(stored) != 1 || stored[0].Name != "Sundial" {
		t.Fatalf("stored = %+v, want Sundial", stored)
	}
	if got := env.o.Exhibitions(); len(got) != 1 || got[0].Location != "Courtyard" {
		t.Fatalf("session exhibitions = %+v", got)
	}
}

func TestUIRoutes(t *testing.T) {
	env := newTestEnv(t)
	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	rootRes, err := client.Get(env.ts.URL + "/")
	if err != nil {
		t.Fatalf("GET / error = %v", err)
	}
	rootRes.Body.Close()
	if rootRes.StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("GET / status = %d, want %d", rootRes.StatusCode, http.StatusTemporaryRedirect)
	}
	if loc := rootRes.Header.Get("Location"); loc != "/ui/" {
		t.Fatalf("GET / location = %q, want /ui/", loc)
	}

	uiRes, err := client.Get(env.ts.URL + "/ui/")
	if err != nil {
		t.Fatalf("GET /ui/ error = %v", err)
	}
	defer uiRes.Body.Close()
	if uiRes.StatusCode != http.StatusOK {
		t.Fatalf("GET /ui/ status = %d, want %d", uiRes.StatusCode, http.StatusOK)
	}
	if ct := uiRes.Header.Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Fatalf("GET /ui/ content-type = %q, want text/html", ct)
	}
}

func TestPerfLatency(t *testing.T) {
	env := newTestEnv(t)
	if res, _ := env.do(t, http.MethodPost, "/v1/messages", map[string]string{"text": "Hello"}); res.StatusCode != http.StatusOK {
		t.Fatalf("messages status = %d", res.StatusCode)
	}
	res, body := env.do(t, http.MethodGet, "/v1/perf/latency", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("perf status = %d", res.StatusCode)
	}
	stages, _ := body["stages"].([]any)
	if len(stages) == 0 {
		t.Fatalf("stages empty after a turn: %+v", body)
	}
	res, _ = env.do(t, http.MethodDelete, "/v1/perf/latency", nil)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("reset status = %d, want %d", res.StatusCode, http.StatusNoContent)
	}
}

func dialSession(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/v1/session/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readUntil(t *testing.T, conn *websocket.Conn, want protocol.MessageType) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON() waiting for %s error = %v", want, err)
		}
		if msg["type"] == string(want) {
			return msg
		}
	}
}

func TestSessionWebsocketTextTurn(t *testing.T) {
	env := newTestEnv(t)
	conn := dialSession(t, env)

	status := readUntil(t, conn, protocol.TypeStatusEvent)
	if status["status"] != "ready" {
		t.Fatalf("initial status = %v, want ready", status["status"])
	}
	readUntil(t, conn, protocol.TypeHistorySnapshot)

	if err := conn.WriteJSON(map[string]any{"type": "client_text", "text": "Hello"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	for {
		ev := readUntil(t, conn, protocol.TypeTurnAppended)
		if ev["role"] == "assistant" {
			if text, _ := ev["text"].(string); !strings.Contains(text, "Hello") {
				t.Fatalf("assistant text = %q, want echo of Hello", text)
			}
			return
		}
	}
}

func TestSessionWebsocketRejectsInvalidMessage(t *testing.T) {
	env := newTestEnv(t)
	conn := dialSession(t, env)
	readUntil(t, conn, protocol.TypeHistorySnapshot)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"client_control","action":"dance"}`)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	ev := readUntil(t, conn, protocol.TypeErrorEvent)
	if ev["code"] != "invalid_client_message" || ev["source"] != "gateway" {
		t.Fatalf("error event = %+v", ev)
	}
}
