package dialogue

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"github.com/ent0n29/docent/internal/exhibition"
)

// ErrEmptyResponse is returned when the dialogue service answers with no text.
var ErrEmptyResponse = errors.New("dialogue: empty response")

// Responder wraps an Adapter with the exhibition context that accompanies
// every request. The context list is replaced whole.
type Responder struct {
	adapter     Adapter
	exhibitions atomic.Pointer[[]exhibition.Exhibition]
}

func NewResponder(adapter Adapter) *Responder {
	r := &Responder{adapter: adapter}
	empty := []exhibition.Exhibition{}
	r.exhibitions.Store(&empty)
	return r
}

func (r *Responder) SetExhibitions(list []exhibition.Exhibition) {
	cp := make([]exhibition.Exhibition, len(list))
	copy(cp, list)
	r.exhibitions.Store(&cp)
}

func (r *Responder) Exhibitions() []exhibition.Exhibition {
	cur := *r.exhibitions.Load()
	out := make([]exhibition.Exhibition, len(cur))
	copy(out, cur)
	return out
}

// Respond produces a pivot-language reply to pivot-language input.
func (r *Responder) Respond(ctx context.Context, sessionID, turnID, text string) (string, error) {
	resp, err := r.adapter.StreamResponse(ctx, MessageRequest{
		SessionID:   sessionID,
		TurnID:      turnID,
		InputText:   text,
		Exhibitions: *r.exhibitions.Load(),
	}, nil)
	if err != nil {
		return "", err
	}
	reply := strings.TrimSpace(resp.Text)
	if reply == "" {
		return "", ErrEmptyResponse
	}
	return reply, nil
}
