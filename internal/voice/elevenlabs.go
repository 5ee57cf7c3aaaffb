package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/text/language"

	"github.com/ent0n29/docent/internal/reliability"
)

type ElevenLabsConfig struct {
	APIKey       string
	WSBaseURL    string
	VoiceID      string
	ModelID      string
	OutputFormat string
}

// elevenLabsLanguages are the locales the multilingual models speak.
var elevenLabsLanguages = []language.Tag{
	language.English,
	language.Arabic,
	language.Chinese,
	language.French,
	language.German,
	language.Hindi,
	language.Italian,
	language.Japanese,
	language.Korean,
	language.Dutch,
	language.Polish,
	language.Portuguese,
	language.Russian,
	language.Spanish,
	language.Swedish,
	language.Turkish,
}

// ElevenLabsSynthesizer streams text to the ElevenLabs stream-input websocket
// and forwards the returned audio chunks.
type ElevenLabsSynthesizer struct {
	cfg     ElevenLabsConfig
	matcher language.Matcher
	client  *http.Client

	mu     sync.Mutex
	locale language.Tag
	ready  bool
}

func NewElevenLabsSynthesizer(cfg ElevenLabsConfig) *ElevenLabsSynthesizer {
	if strings.TrimSpace(cfg.WSBaseURL) == "" {
		cfg.WSBaseURL = "wss://api.elevenlabs.io"
	}
	if strings.TrimSpace(cfg.ModelID) == "" {
		cfg.ModelID = "eleven_multilingual_v2"
	}
	if strings.TrimSpace(cfg.OutputFormat) == "" {
		cfg.OutputFormat = "mp3_44100_128"
	}
	return &ElevenLabsSynthesizer{
		cfg:     cfg,
		matcher: language.NewMatcher(elevenLabsLanguages),
		client: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Initialize checks that the locale is spoken by the configured models and
// that the voice is reachable with the configured key.
func (s *ElevenLabsSynthesizer) Initialize(ctx context.Context, locale language.Tag) error {
	s.mu.Lock()
	s.ready = false
	s.mu.Unlock()

	if _, _, conf := s.matcher.Match(locale); conf < language.High {
		return fmt.Errorf("%w: %s", ErrUnsupportedLocale, locale)
	}
	if strings.TrimSpace(s.cfg.VoiceID) == "" {
		return errors.New("elevenlabs voice id is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.httpBaseURL()+"/v1/voices/"+url.PathEscape(s.cfg.VoiceID), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("xi-api-key", s.cfg.APIKey)
	res, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe voice: %w", err)
	}
	defer res.Body.Close()
	if err := reliability.CheckResponse("elevenlabs", res); err != nil {
		return err
	}

	s.mu.Lock()
	s.locale = locale
	s.ready = true
	s.mu.Unlock()
	return nil
}

func (s *ElevenLabsSynthesizer) Speak(ctx context.Context, text string, onAudio AudioHandler) error {
	s.mu.Lock()
	ready := s.ready
	s.mu.Unlock()
	if !ready {
		return errors.New("elevenlabs synthesizer not initialized")
	}

	u, err := url.Parse(strings.TrimRight(s.cfg.WSBaseURL, "/") + "/v1/text-to-speech/" + url.PathEscape(s.cfg.VoiceID) + "/stream-input")
	if err != nil {
		return err
	}
	q := u.Query()
	q.Set("model_id", s.cfg.ModelID)
	q.Set("output_format", s.cfg.OutputFormat)
	q.Set("auto_mode", "true")
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("xi-api-key", s.cfg.APIKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		return fmt.Errorf("dial tts websocket: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	// Prime the stream as documented for TTS websocket flows.
	messages := []map[string]any{
		{
			"text": " ",
			"voice_settings": map[string]any{
				"stability":        0.42,
				"similarity_boost": 0.85,
				"speed":            1.0,
			},
		},
		{"text": text + " ", "try_trigger_generation": true},
		{"text": ""},
	}
	for _, m := range messages {
		if err := conn.WriteJSON(m); err != nil {
			return fmt.Errorf("send tts text: %w", err)
		}
	}

	seq := 0
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("read tts stream: %w", err)
		}
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			continue
		}
		if msg := asString(raw["error"]); msg != "" {
			return fmt.Errorf("tts stream error: %s", msg)
		}
		if audio := asString(raw["audio"]); audio != "" && onAudio != nil {
			seq++
			onAudio(AudioChunk{Seq: seq, Format: s.cfg.OutputFormat, AudioBase64: audio})
		}
		if asBool(raw["isFinal"]) || asBool(raw["is_final"]) {
			return nil
		}
	}
}

func (s *ElevenLabsSynthesizer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = false
	s.client.CloseIdleConnections()
	return nil
}

func (s *ElevenLabsSynthesizer) httpBaseURL() string {
	base := strings.TrimRight(s.cfg.WSBaseURL, "/")
	switch {
	case strings.HasPrefix(base, "wss://"):
		return "https://" + strings.TrimPrefix(base, "wss://")
	case strings.HasPrefix(base, "ws://"):
		return "http://" + strings.TrimPrefix(base, "ws://")
	}
	return base
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func asBool(v any) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return false
}
