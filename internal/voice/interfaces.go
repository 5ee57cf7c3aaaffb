package voice

import (
	"context"

	"golang.org/x/text/language"
)

// Transcriber turns a recorded audio file into text. An empty result means
// nothing was recognized.
type Transcriber interface {
	Transcribe(ctx context.Context, path, modelID string) (string, error)
}

// AudioChunk is one piece of synthesized audio.
type AudioChunk struct {
	Seq         int
	Format      string
	AudioBase64 string
}

// AudioHandler receives synthesized audio as it is produced.
type AudioHandler func(chunk AudioChunk)

// Synthesizer speaks text in the locale selected by the last Initialize.
type Synthesizer interface {
	Initialize(ctx context.Context, locale language.Tag) error
	Speak(ctx context.Context, text string, onAudio AudioHandler) error
	Close() error
}
