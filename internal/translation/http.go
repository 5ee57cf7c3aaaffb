package translation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ent0n29/docent/internal/language"
	"github.com/ent0n29/docent/internal/reliability"
)

// HTTPTranslator talks to a LibreTranslate-compatible service.
type HTTPTranslator struct {
	baseURL string
	apiKey  string
	client  *http.Client

	mu     sync.RWMutex
	source string
	// gen counts Initialize calls; only the latest may set source.
	gen uint64
}

func NewHTTPTranslator(baseURL, apiKey string) *HTTPTranslator {
	return &HTTPTranslator{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		client: &http.Client{
			Timeout:   20 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type remoteLanguage struct {
	Code    string   `json:"code"`
	Name    string   `json:"name"`
	Targets []string `json:"targets"`
}

// Initialize checks the service can translate code <-> pivot.
func (t *HTTPTranslator) Initialize(ctx context.Context, code string) error {
	code = strings.ToLower(strings.TrimSpace(code))
	// A failed cycle must not leave the previous language in place.
	t.mu.Lock()
	t.gen++
	gen := t.gen
	t.source = ""
	t.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/languages", nil)
	if err != nil {
		return fmt.Errorf("create languages request: %w", err)
	}
	res, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("list languages: %w", err)
	}
	defer res.Body.Close()
	if err := reliability.CheckResponse("translation", res); err != nil {
		return err
	}

	var langs []remoteLanguage
	if err := json.NewDecoder(res.Body).Decode(&langs); err != nil {
		return fmt.Errorf("decode languages: %w", err)
	}
	if !supportsPair(langs, code) {
		return fmt.Errorf("%w: %s", ErrUnsupportedSource, code)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.gen != gen {
		return ErrSuperseded
	}
	t.source = code
	return nil
}

func supportsPair(langs []remoteLanguage, code string) bool {
	if code == language.PivotCode {
		return true
	}
	var toPivot, fromPivot bool
	for _, l := range langs {
		switch l.Code {
		case code:
			toPivot = contains(l.Targets, language.PivotCode)
		case language.PivotCode:
			fromPivot = contains(l.Targets, code)
		}
	}
	return toPivot && fromPivot
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func (t *HTTPTranslator) ToPivot(ctx context.Context, text string) (string, error) {
	src, err := t.sourceCode()
	if err != nil {
		return "", err
	}
	return t.translate(ctx, text, src, language.PivotCode)
}

func (t *HTTPTranslator) FromPivot(ctx context.Context, text string) (string, error) {
	src, err := t.sourceCode()
	if err != nil {
		return "", err
	}
	return t.translate(ctx, text, language.PivotCode, src)
}

func (t *HTTPTranslator) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

func (t *HTTPTranslator) sourceCode() (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.source == "" {
		return "", ErrNotInitialized
	}
	return t.source, nil
}

type translateRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
	APIKey string `json:"api_key,omitempty"`
}

type translateResponse struct {
	TranslatedText string `json:"translatedText"`
}

func (t *HTTPTranslator) translate(ctx context.Context, text, source, target string) (string, error) {
	payload, err := json.Marshal(translateRequest{
		Q:      text,
		Source: source,
		Target: target,
		Format: "text",
		APIKey: t.apiKey,
	})
	if err != nil {
		return "", fmt.Errorf("marshal translate request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/translate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create translate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("translate %s->%s: %w", source, target, err)
	}
	defer res.Body.Close()
	if err := reliability.CheckResponse("translation", res); err != nil {
		return "", err
	}

	var out translateResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode translate response: %w", err)
	}
	return out.TranslatedText, nil
}
