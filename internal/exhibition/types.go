package exhibition

import (
	"context"
	"time"
)

// Exhibition is a context object the response service can talk about.
type Exhibition struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Location    string    `json:"location,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store persists the exhibition catalog.
type Store interface {
	List(ctx context.Context) ([]Exhibition, error)
	ReplaceAll(ctx context.Context, items []Exhibition) error
	Close() error
}
