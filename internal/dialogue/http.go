package dialogue

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ent0n29/docent/internal/reliability"
)

// HTTPAdapter forwards requests to a dialogue HTTP endpoint. The endpoint may
// answer with plain JSON, text, server-sent events or NDJSON.
type HTTPAdapter struct {
	url    string
	strict bool
	client *http.Client
}

func NewHTTPAdapter(url string) *HTTPAdapter {
	return NewHTTPAdapterWithOptions(url, false)
}

// NewHTTPAdapterWithOptions builds an adapter; strict rejects streamed lines
// that are not JSON instead of treating them as raw text.
func NewHTTPAdapterWithOptions(url string, strict bool) *HTTPAdapter {
	return &HTTPAdapter{
		url:    strings.TrimSpace(url),
		strict: strict,
		client: &http.Client{
			Timeout:   60 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (a *HTTPAdapter) StreamResponse(ctx context.Context, req MessageRequest, onDelta DeltaHandler) (MessageResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return MessageResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(payload))
	if err != nil {
		return MessageResponse{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, text/event-stream, application/x-ndjson")

	res, err := a.client.Do(httpReq)
	if err != nil {
		return MessageResponse{}, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if err := reliability.CheckResponse("dialogue", res); err != nil {
		return MessageResponse{}, err
	}

	ct := strings.ToLower(res.Header.Get("Content-Type"))
	switch {
	case strings.Contains(ct, "text/event-stream"):
		return a.consumeSSE(res.Body, onDelta)
	case strings.Contains(ct, "application/x-ndjson"):
		return a.consumeNDJSON(res.Body, onDelta)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return MessageResponse{}, fmt.Errorf("read response: %w", err)
	}

	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		text := strings.TrimSpace(string(body))
		if text == "" {
			return MessageResponse{}, nil
		}
		return emit(MessageResponse{Text: text}, onDelta)
	}
	return emit(MessageResponse{Text: extractText(obj)}, onDelta)
}

func emit(resp MessageResponse, onDelta DeltaHandler) (MessageResponse, error) {
	if resp.Text != "" && onDelta != nil {
		if err := onDelta(resp.Text); err != nil {
			return MessageResponse{}, err
		}
	}
	return resp, nil
}

func (a *HTTPAdapter) consumeSSE(body io.Reader, onDelta DeltaHandler) (MessageResponse, error) {
	return a.consumeLines(body, onDelta, func(line string) (string, bool) {
		if strings.HasPrefix(line, ":") {
			return "", false
		}
		if !strings.HasPrefix(line, "data:") {
			return "", false
		}
		return strings.TrimSpace(strings.TrimPrefix(line, "data:")), true
	})
}

func (a *HTTPAdapter) consumeNDJSON(body io.Reader, onDelta DeltaHandler) (MessageResponse, error) {
	return a.consumeLines(body, onDelta, func(line string) (string, bool) {
		return line, true
	})
}

func (a *HTTPAdapter) consumeLines(body io.Reader, onDelta DeltaHandler, payloadOf func(string) (string, bool)) (MessageResponse, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var out strings.Builder
	for scanner.Scan() {
		raw := scanner.Text()
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		payload, ok := payloadOf(line)
		if !ok {
			continue
		}
		if payload == "[DONE]" {
			break
		}

		var delta string
		var obj map[string]any
		if err := json.Unmarshal([]byte(payload), &obj); err == nil {
			delta = extractText(obj)
		} else if a.strict {
			return MessageResponse{}, fmt.Errorf("invalid stream payload %q: %w", payload, err)
		} else {
			// Raw text lines keep their leading space so words do not run together.
			delta = strings.TrimRight(raw, "\r\n")
			if strings.HasPrefix(strings.TrimSpace(raw), "data:") {
				delta = payload
			}
		}

		if delta == "" {
			continue
		}
		out.WriteString(delta)
		if onDelta != nil {
			if err := onDelta(delta); err != nil {
				return MessageResponse{}, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return MessageResponse{}, fmt.Errorf("stream read: %w", err)
	}

	return MessageResponse{Text: out.String()}, nil
}

func extractText(obj map[string]any) string {
	for _, k := range []string{"text", "delta", "reply", "output", "message"} {
		if v, ok := obj[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}
