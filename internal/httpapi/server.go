package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/docent/internal/capture"
	"github.com/ent0n29/docent/internal/config"
	"github.com/ent0n29/docent/internal/exhibition"
	"github.com/ent0n29/docent/internal/language"
	"github.com/ent0n29/docent/internal/observability"
	"github.com/ent0n29/docent/internal/protocol"
	"github.com/ent0n29/docent/internal/session"
	"github.com/ent0n29/docent/internal/voice"
)

// Session is the conversation the API drives.
type Session interface {
	Snapshot() session.Snapshot
	History() []session.Turn
	Catalog() *language.Catalog
	SubmitText(ctx context.Context, text string) error
	PushResponse(ctx context.Context, text string) error
	StartRecording() error
	StopRecording() error
	WriteAudio(pcm []byte) error
	SetLanguage(key string) (language.Profile, error)
	ClearHistory()
	SetExhibitions(list []exhibition.Exhibition)
	Exhibitions() []exhibition.Exhibition
	Subscribe() (<-chan any, func())
}

type Server struct {
	cfg         config.Config
	session     Session
	exhibitions exhibition.Store
	metrics     *observability.Metrics
	upgrader    websocket.Upgrader
	static      http.Handler
}

func New(cfg config.Config, sess Session, exhibitions exhibition.Store, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:         cfg,
		session:     sess,
		exhibitions: exhibitions,
		metrics:     metrics,
		static:      newStaticHandler(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only the kiosk page served by this process may drive the microphone.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Get("/ui", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Handle("/ui/*", http.StripPrefix("/ui/", s.static))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/session", s.handleSession)
		r.Get("/session/ws", s.handleSessionWS)
		r.Get("/history", s.handleHistory)
		r.Delete("/history", s.handleClearHistory)
		r.Post("/messages", s.handleSubmitText)
		r.Post("/responses", s.handlePushResponse)
		r.Post("/recording/start", s.handleStartRecording)
		r.Post("/recording/stop", s.handleStopRecording)
		r.Get("/languages", s.handleLanguages)
		r.Put("/language", s.handleSetLanguage)
		r.Get("/exhibitions", s.handleListExhibitions)
		r.Put("/exhibitions", s.handleReplaceExhibitions)
		r.Get("/perf/latency", s.handlePerfLatency)
		r.Delete("/perf/latency", s.handlePerfLatencyReset)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"exhibition_store": s.exhibitionStoreMode(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	snap := s.session.Snapshot()
	status := http.StatusOK
	if snap.Status == session.StatusInit {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, map[string]any{
		"status":            snap.Status,
		"outstanding_inits": snap.OutstandingInits,
		"speech_ready":      snap.SpeechReady,
	})
}

func (s *Server) handleSession(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.session.Snapshot())
}

func (s *Server) handleHistory(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"turns": s.session.History()})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, _ *http.Request) {
	s.session.ClearHistory()
	w.WriteHeader(http.StatusNoContent)
}

type textRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleSubmitText(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := s.session.SubmitText(r.Context(), req.Text); err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"turns": s.session.History()})
}

func (s *Server) handlePushResponse(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := s.session.PushResponse(r.Context(), req.Text); err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"turns": s.session.History()})
}

func (s *Server) handleStartRecording(w http.ResponseWriter, _ *http.Request) {
	if err := s.session.StartRecording(); err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, s.session.Snapshot())
}

func (s *Server) handleStopRecording(w http.ResponseWriter, _ *http.Request) {
	if err := s.session.StopRecording(); err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, s.session.Snapshot())
}

type languageView struct {
	Code        string `json:"code"`
	DisplayName string `json:"display_name"`
	Locale      string `json:"locale"`
	Pivot       bool   `json:"pivot"`
}

func (s *Server) handleLanguages(w http.ResponseWriter, _ *http.Request) {
	profiles := s.session.Catalog().Profiles()
	out := make([]languageView, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, languageView{Code: p.Code, DisplayName: p.DisplayName, Locale: p.Locale.String(), Pivot: p.IsPivot()})
	}
	respondJSON(w, http.StatusOK, map[string]any{"languages": out})
}

func (s *Server) handleSetLanguage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Language string `json:"language"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	p, err := s.session.SetLanguage(req.Language)
	if err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, languageView{Code: p.Code, DisplayName: p.DisplayName, Locale: p.Locale.String(), Pivot: p.IsPivot()})
}

func (s *Server) handleListExhibitions(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"exhibitions": s.session.Exhibitions()})
}

func (s *Server) handleReplaceExhibitions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Exhibitions []exhibition.Exhibition `json:"exhibitions"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	items := req.Exhibitions
	if s.exhibitions != nil {
		if err := s.exhibitions.ReplaceAll(r.Context(), items); err != nil {
			respondError(w, http.StatusInternalServerError, "store_error", err.Error())
			return
		}
		stored, err := s.exhibitions.List(r.Context())
		if err != nil {
			respondError(w, http.StatusInternalServerError, "store_error", err.Error())
			return
		}
		items = stored
	}
	s.session.SetExhibitions(items)
	respondJSON(w, http.StatusOK, map[string]any{"exhibitions": s.session.Exhibitions()})
}

func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, unsubscribe := s.session.Subscribe()
	defer unsubscribe()

	snap := s.session.Snapshot()
	outbound := make(chan any, 256)
	outbound <- protocol.StatusEvent{
		Type:      protocol.TypeStatusEvent,
		SessionID: snap.ID,
		Status:    string(snap.Status),
		Language:  snap.Language,
		TSMs:      time.Now().UnixMilli(),
	}
	outbound <- historySnapshot(snap.ID, s.session.History())

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			var msg any
			select {
			case <-ctx.Done():
				return
			case msg = <-outbound:
			case ev, ok := <-events:
				if !ok {
					cancel()
					return
				}
				msg = ev
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				cancel()
				return
			}
			if t, ok := messageTypeOf(msg); ok {
				s.metrics.ObserveWS("outbound", string(t))
			}
		}
	}()

	conn.SetReadLimit(2 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	// reject queues an error for this connection only; drop if the queue is saturated.
	reject := func(code string, err error) {
		select {
		case outbound <- protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			SessionID: snap.ID,
			Code:      code,
			Source:    "gateway",
			Detail:    err.Error(),
		}:
		default:
		}
	}

	for ctx.Err() == nil {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			reject("invalid_client_message", err)
			continue
		}
		if t, ok := messageTypeOf(parsed); ok {
			s.metrics.ObserveWS("inbound", string(t))
		}

		switch m := parsed.(type) {
		case protocol.ClientText:
			go func(text string) {
				// Turn failures reach every subscriber as error events.
				if err := s.session.SubmitText(context.WithoutCancel(ctx), text); err != nil {
					if _, isTurnErr := voice.KindOf(err); !isTurnErr {
						reject(rejectionCode(err), err)
					}
				}
			}(m.Text)
		case protocol.ClientControl:
			var err error
			switch m.Action {
			case protocol.ActionStartRecording:
				err = s.session.StartRecording()
			case protocol.ActionStopRecording:
				err = s.session.StopRecording()
			case protocol.ActionClearHistory:
				s.session.ClearHistory()
			}
			if _, isTurnErr := voice.KindOf(err); err != nil && !isTurnErr {
				reject(rejectionCode(err), err)
			}
		case protocol.ClientAudioChunk:
			pcm, err := base64.StdEncoding.DecodeString(m.PCM16Base64)
			if err != nil {
				reject("invalid_client_message", err)
				continue
			}
			if err := s.session.WriteAudio(pcm); err != nil && !errors.Is(err, capture.ErrNotRecording) {
				reject(rejectionCode(err), err)
			}
		case protocol.ClientLanguage:
			if _, err := s.session.SetLanguage(m.Language); err != nil {
				reject(rejectionCode(err), err)
			}
		}
	}

	cancel()
	<-writerDone
	log.Printf("session websocket closed remote=%s", r.RemoteAddr)
}

func historySnapshot(sessionID string, turns []session.Turn) protocol.HistorySnapshot {
	out := make([]protocol.HistoryTurn, 0, len(turns))
	for _, t := range turns {
		out = append(out, protocol.HistoryTurn{TurnID: t.ID, Role: string(t.Role), Text: t.Text, Ordinal: t.Ordinal})
	}
	return protocol.HistorySnapshot{Type: protocol.TypeHistorySnapshot, SessionID: sessionID, Turns: out}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// respondSessionError maps session errors onto HTTP statuses.
func respondSessionError(w http.ResponseWriter, err error) {
	if kind, ok := voice.KindOf(err); ok {
		status := http.StatusInternalServerError
		if kind == voice.KindNetwork {
			status = http.StatusBadGateway
		}
		respondError(w, status, string(kind), err.Error())
		return
	}
	code := rejectionCode(err)
	status := http.StatusInternalServerError
	switch code {
	case "busy", "recording_in_flight", "not_recording":
		status = http.StatusConflict
	case "not_ready", "closed":
		status = http.StatusServiceUnavailable
	case "empty_input":
		status = http.StatusBadRequest
	case "unknown_language":
		status = http.StatusNotFound
	}
	respondError(w, status, code, err.Error())
}

func rejectionCode(err error) string {
	switch {
	case errors.Is(err, voice.ErrBusy):
		return "busy"
	case errors.Is(err, capture.ErrRecordingInFlight):
		return "recording_in_flight"
	case errors.Is(err, capture.ErrNotRecording):
		return "not_recording"
	case errors.Is(err, voice.ErrNotReady):
		return "not_ready"
	case errors.Is(err, voice.ErrClosed):
		return "closed"
	case errors.Is(err, voice.ErrEmptyInput):
		return "empty_input"
	case errors.Is(err, language.ErrUnknownLanguage):
		return "unknown_language"
	default:
		return "internal_error"
	}
}

func (s *Server) exhibitionStoreMode() string {
	switch s.exhibitions.(type) {
	case nil:
		return "disabled"
	case *exhibition.PostgresStore:
		return "postgres"
	default:
		return "in-memory"
	}
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ClientAudioChunk:
		return m.Type, true
	case protocol.ClientControl:
		return m.Type, true
	case protocol.ClientText:
		return m.Type, true
	case protocol.ClientLanguage:
		return m.Type, true
	case protocol.StatusEvent:
		return m.Type, true
	case protocol.HistorySnapshot:
		return m.Type, true
	case protocol.TurnAppended:
		return m.Type, true
	case protocol.AssistantAudioChunk:
		return m.Type, true
	case protocol.SystemEvent:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
