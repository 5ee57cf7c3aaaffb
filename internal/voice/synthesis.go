package voice

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/text/language"
)

// SynthesisStage speaks replies on a best-effort basis. Speak is a no-op
// until the last initialization succeeded.
type SynthesisStage struct {
	synth Synthesizer
	ready atomic.Bool

	mu sync.Mutex
	// gen advances on every Initialize and Invalidate; an initialization
	// only marks the stage ready if nothing superseded it meanwhile.
	gen uint64
}

func NewSynthesisStage(s Synthesizer) *SynthesisStage {
	return &SynthesisStage{synth: s}
}

// Initialize selects the locale. The stage is marked ready only on success.
func (s *SynthesisStage) Initialize(ctx context.Context, locale language.Tag) error {
	gen := s.advance()
	if err := s.synth.Initialize(ctx, locale); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen {
		s.ready.Store(true)
	}
	return nil
}

// Invalidate marks the stage not ready, e.g. while a new locale initializes.
// Initializations already in flight can no longer mark it ready.
func (s *SynthesisStage) Invalidate() { s.advance() }

func (s *SynthesisStage) advance() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.ready.Store(false)
	return s.gen
}

func (s *SynthesisStage) Ready() bool { return s.ready.Load() }

// Speak reduces text to speakable sentences and plays it. It reports whether playback was attempted
// and the playback error, which callers log and otherwise ignore.
func (s *SynthesisStage) Speak(ctx context.Context, text string, onAudio AudioHandler) (bool, error) {
	if !s.ready.Load() {
		return false, nil
	}
	spoken := speakableText(text)
	if spoken == "" {
		return false, nil
	}
	return true, s.synth.Speak(ctx, spoken, onAudio)
}

func (s *SynthesisStage) Close() error {
	s.ready.Store(false)
	return s.synth.Close()
}
