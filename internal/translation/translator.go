package translation

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrEmptyTranslation marks an absent result from the translator.
	ErrEmptyTranslation  = errors.New("translator returned no text")
	ErrNotInitialized    = errors.New("translator not initialized")
	ErrUnsupportedSource = errors.New("translator does not support language")
	ErrSuperseded        = errors.New("translator initialization superseded")
)

// Translator converts between the session language and the pivot language.
// Initialize selects the session language and may download models; it is
// called once per initialization cycle.
type Translator interface {
	Initialize(ctx context.Context, code string) error
	ToPivot(ctx context.Context, text string) (string, error)
	FromPivot(ctx context.Context, text string) (string, error)
	Close() error
}

// Stage wraps a Translator so that an empty answer counts as a failure and
// no partial translation ever reaches the pipeline.
type Stage struct {
	translator Translator
}

func NewStage(t Translator) *Stage {
	return &Stage{translator: t}
}

func (s *Stage) Initialize(ctx context.Context, code string) error {
	return s.translator.Initialize(ctx, code)
}

func (s *Stage) ToPivot(ctx context.Context, text string) (string, error) {
	return nonEmpty(s.translator.ToPivot(ctx, text))
}

func (s *Stage) FromPivot(ctx context.Context, text string) (string, error) {
	return nonEmpty(s.translator.FromPivot(ctx, text))
}

func (s *Stage) Close() error {
	return s.translator.Close()
}

func nonEmpty(out string, err error) (string, error) {
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(out) == "" {
		return "", ErrEmptyTranslation
	}
	return out, nil
}
