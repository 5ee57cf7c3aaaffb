package dialogue

import (
	"context"
	"fmt"
	"strings"
)

// MockAdapter provides deterministic local replies when no dialogue service is configured.
type MockAdapter struct{}

func NewMockAdapter() *MockAdapter { return &MockAdapter{} }

func (a *MockAdapter) StreamResponse(ctx context.Context, req MessageRequest, onDelta DeltaHandler) (MessageResponse, error) {
	select {
	case <-ctx.Done():
		return MessageResponse{}, ctx.Err()
	default:
	}

	text := buildMockReply(req)
	if onDelta != nil && text != "" {
		if err := onDelta(text); err != nil {
			return MessageResponse{}, err
		}
	}
	return MessageResponse{Text: text}, nil
}

func buildMockReply(req MessageRequest) string {
	base := strings.TrimSpace(req.InputText)
	if base == "" {
		base = "I am listening."
	}

	lower := strings.ToLower(base)
	for _, ex := range req.Exhibitions {
		name := strings.TrimSpace(ex.Name)
		if name == "" || !strings.Contains(lower, strings.ToLower(name)) {
			continue
		}
		if ex.Location != "" {
			return fmt.Sprintf("%s is in %s. %s", name, ex.Location, ex.Description)
		}
		return fmt.Sprintf("%s: %s", name, ex.Description)
	}

	return fmt.Sprintf("I heard you: %s", base)
}
