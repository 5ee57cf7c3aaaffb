package voice

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/text/language"

	"github.com/ent0n29/docent/internal/capture"
	"github.com/ent0n29/docent/internal/dialogue"
	"github.com/ent0n29/docent/internal/protocol"
	"github.com/ent0n29/docent/internal/session"
)

type fakeTranscriber struct {
	mu       sync.Mutex
	text     string
	err      error
	sawFiles []bool
}

func (f *fakeTranscriber) Transcribe(_ context.Context, path, _ string) (string, error) {
	_, statErr := os.Stat(path)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sawFiles = append(f.sawFiles, statErr == nil)
	return f.text, f.err
}

func (f *fakeTranscriber) calls() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.sawFiles...)
}

type fakeTranslator struct {
	initErr   error
	initBlock chan struct{}
	toPivot   func(string) (string, error)
	fromPivot func(string) (string, error)

	initCodes []string
	mu        sync.Mutex
	toCalls   atomic.Int32
	fromCalls atomic.Int32
}

func (f *fakeTranslator) Initialize(ctx context.Context, code string) error {
	f.mu.Lock()
	f.initCodes = append(f.initCodes, code)
	block := f.initBlock
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.initErr
}

func (f *fakeTranslator) ToPivot(_ context.Context, text string) (string, error) {
	f.toCalls.Add(1)
	if f.toPivot == nil {
		return "[en] " + text, nil
	}
	return f.toPivot(text)
}

func (f *fakeTranslator) FromPivot(_ context.Context, text string) (string, error) {
	f.fromCalls.Add(1)
	if f.fromPivot == nil {
		return "[es] " + text, nil
	}
	return f.fromPivot(text)
}

func (f *fakeTranslator) Close() error { return nil }

func (f *fakeTranslator) codes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.initCodes...)
}

type fakeSynth struct {
	initErr   error
	initBlock chan struct{}
	speakErr  error
	// initEntered, when set, receives once per Initialize call.
	initEntered chan struct{}

	mu     sync.Mutex
	spoken []string
}

func (f *fakeSynth) Initialize(ctx context.Context, _ language.Tag) error {
	f.mu.Lock()
	block := f.initBlock
	entered := f.initEntered
	f.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.initErr
}

func (f *fakeSynth) Speak(_ context.Context, text string, onAudio AudioHandler) error {
	f.mu.Lock()
	f.spoken = append(f.spoken, text)
	f.mu.Unlock()
	if f.speakErr != nil {
		return f.speakErr
	}
	if onAudio != nil {
		onAudio(AudioChunk{Seq: 1, Format: "pcm", AudioBase64: "AAAA"})
	}
	return nil
}

func (f *fakeSynth) Close() error { return nil }

func (f *fakeSynth) spokenTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.spoken...)
}

type fakeAdapter struct {
	reply   string
	err     error
	block   chan struct{}
	mu      sync.Mutex
	inputs  []string
	entered chan struct{}
}

func (f *fakeAdapter) StreamResponse(_ context.Context, req dialogue.MessageRequest, _ dialogue.DeltaHandler) (dialogue.MessageResponse, error) {
	f.mu.Lock()
	f.inputs = append(f.inputs, req.InputText)
	f.mu.Unlock()
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return dialogue.MessageResponse{}, f.err
	}
	return dialogue.MessageResponse{Text: f.reply}, nil
}

// fakeDevice writes a tiny file on Stop and completes asynchronously, the way
// real devices finalize.
type fakeDevice struct {
	mu       sync.Mutex
	startErr error
	path     string
	done     func(error)
}

func (d *fakeDevice) Start(path string, done func(error)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.startErr != nil {
		return d.startErr
	}
	d.path = path
	d.done = done
	return nil
}

func (d *fakeDevice) Stop() error {
	d.mu.Lock()
	path, done := d.path, d.done
	d.done = nil
	d.mu.Unlock()
	if done == nil {
		return capture.ErrNotRecording
	}
	go func() {
		done(os.WriteFile(path, []byte("RIFF....WAVE"), 0o600))
	}()
	return nil
}

func (d *fakeDevice) Close() error { return nil }

func (d *fakeDevice) lastPath() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.path
}

type harness struct {
	o           *Orchestrator
	device      *fakeDevice
	transcriber *fakeTranscriber
	translator  *fakeTranslator
	synth       *fakeSynth
	adapter     *fakeAdapter
	events      <-chan any
}

type harnessOption func(*harness)

func newHarness(t *testing.T, lang string, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{
		device:      &fakeDevice{},
		transcriber: &fakeTranscriber{text: "Hello"},
		translator:  &fakeTranslator{},
		synth:       &fakeSynth{},
		adapter:     &fakeAdapter{reply: "Hi there"},
	}
	for _, opt := range opts {
		opt(h)
	}

	ctrl, err := capture.NewController(t.TempDir(), h.device, nil)
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}
	o, err := NewOrchestrator(Config{Language: lang, TurnTimeout: 5 * time.Second, InitTimeout: 5 * time.Second}, Deps{
		Capture:     ctrl,
		Transcriber: h.transcriber,
		Translator:  h.translator,
		Responder:   dialogue.NewResponder(h.adapter),
		Synthesizer: h.synth,
	})
	if err != nil {
		t.Fatalf("NewOrchestrator() error = %v", err)
	}
	events, cancel := o.Subscribe()
	h.o = o
	h.events = events
	t.Cleanup(func() {
		cancel()
		_ = o.Close()
	})
	return h
}

func waitForStatus(t *testing.T, o *Orchestrator, want session.Status) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if o.Status() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("status = %s, want %s", o.Status(), want)
}

// drainErrors returns the error events published so far.
func (h *harness) drainErrors() []protocol.ErrorEvent {
	var out []protocol.ErrorEvent
	for {
		select {
		case ev := <-h.events:
			if e, ok := ev.(protocol.ErrorEvent); ok {
				out = append(out, e)
			}
		default:
			return out
		}
	}
}

func errorsWithSource(events []protocol.ErrorEvent, source string) int {
	n := 0
	for _, e := range events {
		if e.Source == source {
			n++
		}
	}
	return n
}

var errBoom = errors.New("boom")
