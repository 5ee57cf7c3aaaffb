package voice

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"sync"

	"golang.org/x/text/language"
)

// MockTranscriber is a local fallback used when no transcription service is
// configured. Any recording with audio frames yields a fixed utterance.
type MockTranscriber struct {
	Text string
}

func NewMockTranscriber() *MockTranscriber {
	return &MockTranscriber{Text: "simulated voice input"}
}

func (t *MockTranscriber) Transcribe(ctx context.Context, path, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat recording: %w", err)
	}
	// 44 bytes is an empty WAV file.
	if info.Size() <= 44 {
		return "", nil
	}
	return t.Text, nil
}

// MockSynthesizer emits the text itself as a single audio chunk.
type MockSynthesizer struct {
	mu     sync.Mutex
	locale language.Tag
	spoken []string
}

func NewMockSynthesizer() *MockSynthesizer { return &MockSynthesizer{} }

func (s *MockSynthesizer) Initialize(ctx context.Context, locale language.Tag) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if locale == language.Und {
		return fmt.Errorf("%w: %s", ErrUnsupportedLocale, locale)
	}
	s.mu.Lock()
	s.locale = locale
	s.mu.Unlock()
	return nil
}

func (s *MockSynthesizer) Speak(_ context.Context, text string, onAudio AudioHandler) error {
	s.mu.Lock()
	s.spoken = append(s.spoken, text)
	s.mu.Unlock()
	if onAudio != nil {
		onAudio(AudioChunk{Seq: 1, Format: "text/plain", AudioBase64: base64.StdEncoding.EncodeToString([]byte(text))})
	}
	return nil
}

// Spoken returns every text passed to Speak.
func (s *MockSynthesizer) Spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

func (s *MockSynthesizer) Close() error { return nil }
