package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one immutable message in the conversation.
type Turn struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Ordinal   int       `json:"ordinal"`
	CreatedAt time.Time `json:"created_at"`
}

// History is the newest-first message list. Every mutation publishes a new
// slice, so readers only ever see a complete list.
type History struct {
	mu    sync.Mutex
	turns atomic.Pointer[[]Turn]
	next  int
}

func NewHistory() *History {
	h := &History{}
	empty := []Turn{}
	h.turns.Store(&empty)
	return h
}

// Prepend inserts a new turn at the front and returns it.
func (h *History) Prepend(role Role, text string) Turn {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.next++
	t := Turn{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		Ordinal:   h.next,
		CreatedAt: time.Now().UTC(),
	}
	cur := *h.turns.Load()
	updated := make([]Turn, 0, len(cur)+1)
	updated = append(updated, t)
	updated = append(updated, cur...)
	h.turns.Store(&updated)
	return t
}

// Clear drops every turn in one step.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next = 0
	empty := []Turn{}
	h.turns.Store(&empty)
}

// Turns returns a copy of the current list, newest first.
func (h *History) Turns() []Turn {
	cur := *h.turns.Load()
	out := make([]Turn, len(cur))
	copy(out, cur)
	return out
}

func (h *History) Len() int {
	return len(*h.turns.Load())
}
