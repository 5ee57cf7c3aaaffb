package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ent0n29/docent/internal/reliability"
)

// TranscriptionStage runs a Transcriber on a finalized recording and always
// deletes the recording afterwards, whatever the outcome.
type TranscriptionStage struct {
	transcriber Transcriber
}

func NewTranscriptionStage(t Transcriber) *TranscriptionStage {
	return &TranscriptionStage{transcriber: t}
}

// Run returns the recognized text. A blank result is ErrNoTranscript. No
// retry is attempted; the file is gone when Run returns.
func (s *TranscriptionStage) Run(ctx context.Context, path, modelID string) (string, error) {
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.WarnContext(ctx, "failed to delete recording", "path", path, "error", err)
		}
	}()

	text, err := s.transcriber.Transcribe(ctx, path, modelID)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrNoTranscript
	}
	return text, nil
}

// HTTPTranscriberConfig configures a Watson-compatible speech-to-text endpoint.
type HTTPTranscriberConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// HTTPTranscriber posts WAV files to /v1/recognize and joins the best
// alternative of every result.
type HTTPTranscriber struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPTranscriber(cfg HTTPTranscriberConfig) *HTTPTranscriber {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPTranscriber{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:  cfg.APIKey,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type recognizeResponse struct {
	Results []struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
		Final bool `json:"final"`
	} `json:"results"`
}

func (t *HTTPTranscriber) Transcribe(ctx context.Context, path, modelID string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open recording: %w", err)
	}
	defer f.Close()

	u, err := url.Parse(t.baseURL + "/v1/recognize")
	if err != nil {
		return "", fmt.Errorf("parse transcription url: %w", err)
	}
	if modelID != "" {
		q := u.Query()
		q.Set("model", modelID)
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), f)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "audio/wav")
	req.Header.Set("Accept", "application/json")
	if t.apiKey != "" {
		req.SetBasicAuth("apikey", t.apiKey)
	}

	res, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if err := reliability.CheckResponse("transcription", res); err != nil {
		return "", err
	}

	var body recognizeResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode transcription: %w", err)
	}

	parts := make([]string, 0, len(body.Results))
	for _, r := range body.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		if s := strings.TrimSpace(r.Alternatives[0].Transcript); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " "), nil
}
