package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ent0n29/docent/internal/exhibition"
)

// MessageRequest is the normalized request sent to the dialogue service.
// InputText is always in the pivot language.
type MessageRequest struct {
	SessionID   string                  `json:"session_id"`
	TurnID      string                  `json:"turn_id"`
	InputText   string                  `json:"input_text"`
	Exhibitions []exhibition.Exhibition `json:"exhibitions,omitempty"`
}

// MessageResponse is the final response after streaming deltas.
type MessageResponse struct {
	Text string `json:"text"`
}

// DeltaHandler receives streaming text fragments.
type DeltaHandler func(delta string) error

// Adapter generates a reply to one visitor utterance.
type Adapter interface {
	StreamResponse(ctx context.Context, req MessageRequest, onDelta DeltaHandler) (MessageResponse, error)
}

// Config controls adapter construction.
type Config struct {
	Mode             string
	HTTPURL          string
	HTTPStreamStrict bool
}

func NewAdapter(cfg Config) (Adapter, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.HTTPURL) != "" {
			return NewHTTPAdapterWithOptions(cfg.HTTPURL, cfg.HTTPStreamStrict), nil
		}
		return NewMockAdapter(), nil
	case "http":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, errors.New("dialogue HTTP url is required for http mode")
		}
		return NewHTTPAdapterWithOptions(cfg.HTTPURL, cfg.HTTPStreamStrict), nil
	case "mock":
		return NewMockAdapter(), nil
	default:
		return nil, fmt.Errorf("unsupported dialogue adapter mode %q", cfg.Mode)
	}
}
