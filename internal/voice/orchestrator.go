package voice

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ent0n29/docent/internal/capture"
	"github.com/ent0n29/docent/internal/dialogue"
	"github.com/ent0n29/docent/internal/exhibition"
	"github.com/ent0n29/docent/internal/language"
	"github.com/ent0n29/docent/internal/observability"
	"github.com/ent0n29/docent/internal/policy"
	"github.com/ent0n29/docent/internal/protocol"
	"github.com/ent0n29/docent/internal/reliability"
	"github.com/ent0n29/docent/internal/session"
	"github.com/ent0n29/docent/internal/translation"
)

const (
	// readinessSignals counts speech synthesis and the translator.
	readinessSignals = 2

	defaultTurnTimeout = 45 * time.Second
	defaultInitTimeout = 20 * time.Second
)

var allStatuses = []string{
	string(session.StatusInit),
	string(session.StatusReady),
	string(session.StatusRecording),
	string(session.StatusProcessing),
}

// AudioInput accepts PCM16 audio for the recording in progress.
type AudioInput interface {
	Write(pcm []byte) error
}

type Config struct {
	Catalog     *language.Catalog
	Language    string
	TurnTimeout time.Duration
	InitTimeout time.Duration
}

// Deps are the collaborators driven by the orchestrator.
type Deps struct {
	Capture     *capture.Controller
	AudioInput  AudioInput
	Transcriber Transcriber
	Translator  translation.Translator
	Responder   *dialogue.Responder
	Synthesizer Synthesizer
	Metrics     *observability.Metrics
}

// Orchestrator owns the single conversation session and runs its turns one
// at a time through transcription, translation, response and synthesis.
type Orchestrator struct {
	id          string
	startedAt   time.Time
	catalog     *language.Catalog
	turnTimeout time.Duration
	initTimeout time.Duration

	machine       *session.Machine
	history       *session.History
	gate          *session.Gate
	capture       *capture.Controller
	audioInput    AudioInput
	transcription *TranscriptionStage
	translation   *translation.Stage
	responder     *dialogue.Responder
	synthesis     *SynthesisStage
	metrics       *observability.Metrics
	events        *broadcaster

	profile      atomic.Pointer[language.Profile]
	lastActivity atomic.Int64
	// turnActive spans Recording and Processing. It keeps turns exclusive even
	// when a language change moves the status while a turn is still running.
	turnActive atomic.Bool
	closed     atomic.Bool

	mu         sync.Mutex
	initCancel context.CancelFunc
	recMu      sync.Mutex

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewOrchestrator(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Capture == nil || deps.Transcriber == nil || deps.Translator == nil || deps.Responder == nil || deps.Synthesizer == nil {
		return nil, errors.New("orchestrator requires capture, transcriber, translator, responder and synthesizer")
	}
	catalog := cfg.Catalog
	if catalog == nil {
		catalog = language.Default()
	}
	profile := catalog.Pivot()
	if strings.TrimSpace(cfg.Language) != "" {
		p, err := catalog.Lookup(cfg.Language)
		if err != nil {
			return nil, err
		}
		profile = p
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = defaultTurnTimeout
	}
	if cfg.InitTimeout <= 0 {
		cfg.InitTimeout = defaultInitTimeout
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		id:            uuid.NewString(),
		startedAt:     time.Now().UTC(),
		catalog:       catalog,
		turnTimeout:   cfg.TurnTimeout,
		initTimeout:   cfg.InitTimeout,
		history:       session.NewHistory(),
		capture:       deps.Capture,
		audioInput:    deps.AudioInput,
		transcription: NewTranscriptionStage(deps.Transcriber),
		translation:   translation.NewStage(deps.Translator),
		responder:     deps.Responder,
		synthesis:     NewSynthesisStage(deps.Synthesizer),
		metrics:       deps.Metrics,
		events:        newBroadcaster(),
		baseCtx:       baseCtx,
		cancel:        cancel,
	}
	o.machine = session.NewMachine(o.onStatusChange)
	o.gate = session.NewGate(readinessSignals, o.onSubsystemsReady)
	o.capture.SetCompletionHandler(o.onRecordingCompleted)
	o.touch()
	o.metrics.SetStatus(string(session.StatusInit), allStatuses)

	o.reinitialize(profile)
	return o, nil
}

func (o *Orchestrator) ID() string { return o.id }

func (o *Orchestrator) Catalog() *language.Catalog { return o.catalog }

func (o *Orchestrator) Status() session.Status { return o.machine.Status() }

func (o *Orchestrator) Language() language.Profile { return *o.profile.Load() }

func (o *Orchestrator) Snapshot() session.Snapshot {
	snap := session.Snapshot{
		ID:               o.id,
		Language:         o.Language().Code,
		Status:           o.machine.Status(),
		OutstandingInits: o.gate.Outstanding(),
		HistoryLen:       o.history.Len(),
		SpeechReady:      o.synthesis.Ready(),
		StartedAt:        o.startedAt,
		LastActivityAt:   time.UnixMilli(o.lastActivity.Load()).UTC(),
	}
	if a, ok := o.capture.Pending(); ok {
		snap.PendingArtifact = a.Path
	}
	return snap
}

// History returns the conversation, newest first.
func (o *Orchestrator) History() []session.Turn { return o.history.Turns() }

// Subscribe streams protocol events until the returned cancel func is called.
func (o *Orchestrator) Subscribe() (<-chan any, func()) { return o.events.subscribe() }

// SubmitText runs one text turn and returns when the session is Ready again.
// The turn is not cancelled by ctx; it runs to completion or turn timeout.
func (o *Orchestrator) SubmitText(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyInput
	}
	if err := o.beginTurn(); err != nil {
		return err
	}
	defer o.wg.Done()
	o.touch()

	turnCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.turnTimeout)
	defer cancel()
	turnCtx, span := tracer.Start(turnCtx, "text turn", trace.WithAttributes(
		attribute.String("session.id", o.id),
		attribute.String("session.language", o.Language().Code),
	))
	defer span.End()

	start := time.Now()
	err := o.runTextTurn(turnCtx, *o.profile.Load(), text)
	o.finishTurn(turnCtx, span, "text", start, err)
	return err
}

// PushResponse speaks and records an assistant reply produced outside the
// dialogue service. text is in the pivot language.
func (o *Orchestrator) PushResponse(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyInput
	}
	if err := o.beginTurn(); err != nil {
		return err
	}
	defer o.wg.Done()
	o.touch()

	turnCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.turnTimeout)
	defer cancel()
	turnCtx, span := tracer.Start(turnCtx, "pushed response", trace.WithAttributes(attribute.String("session.id", o.id)))
	defer span.End()

	start := time.Now()
	p := *o.profile.Load()
	reply := text
	var err error
	if !p.IsPivot() {
		reply, err = o.runStage(turnCtx, "from_pivot", func(ctx context.Context) (string, error) {
			return o.translation.FromPivot(ctx, text)
		})
		if err != nil {
			err = newError(KindNetwork, "translate from pivot", err)
		}
	}
	if err == nil {
		o.deliverReply(turnCtx, uuid.NewString(), reply)
	}
	o.finishTurn(turnCtx, span, "push", start, err)
	return err
}

// StartRecording begins a spoken turn. The session must be Ready.
func (o *Orchestrator) StartRecording() error {
	if o.closed.Load() {
		return ErrClosed
	}
	if !o.turnActive.CompareAndSwap(false, true) {
		if o.machine.Status() == session.StatusRecording {
			return capture.ErrRecordingInFlight
		}
		return ErrBusy
	}
	if st := o.machine.Status(); st != session.StatusReady {
		o.turnActive.Store(false)
		return rejection(st)
	}
	o.touch()

	o.recMu.Lock()
	a, err := o.capture.Start()
	if err != nil {
		o.recMu.Unlock()
		o.turnActive.Store(false)
		e := newError(KindRecording, "start recording", err)
		o.reportError(o.baseCtx, e, "capture")
		return e
	}
	terr := o.machine.Transition(session.StatusReady, session.StatusRecording)
	o.recMu.Unlock()
	if terr != nil {
		// The language changed under us; the completion handler discards the artifact.
		_ = o.capture.Stop()
		return ErrNotReady
	}
	logger.Info("recording started", "session_id", o.id, "artifact", a.ID)
	return nil
}

// StopRecording asks the device to finalize. The turn continues
// asynchronously once the recording is complete.
func (o *Orchestrator) StopRecording() error {
	if o.machine.Status() != session.StatusRecording {
		return capture.ErrNotRecording
	}
	o.touch()
	if err := o.capture.Stop(); err != nil {
		if errors.Is(err, capture.ErrNotRecording) {
			return err
		}
		e := newError(KindRecording, "stop recording", err)
		o.reportError(o.baseCtx, e, "capture")
		return e
	}
	return nil
}

// WriteAudio feeds client audio to the recording in progress.
func (o *Orchestrator) WriteAudio(pcm []byte) error {
	if o.audioInput == nil {
		return errors.New("audio input not configured")
	}
	if o.machine.Status() != session.StatusRecording {
		return capture.ErrNotRecording
	}
	return o.audioInput.Write(pcm)
}

// SetLanguage switches the active language and re-runs initialization. The
// session is in Init until both subsystems have reported.
func (o *Orchestrator) SetLanguage(key string) (language.Profile, error) {
	if o.closed.Load() {
		return language.Profile{}, ErrClosed
	}
	p, err := o.catalog.Lookup(key)
	if err != nil {
		return language.Profile{}, err
	}
	o.touch()
	wasRecording := o.machine.Status() == session.StatusRecording
	o.reinitialize(p)
	if wasRecording {
		// The status already left Recording, so the completion is discarded.
		_ = o.capture.Stop()
	}
	o.events.publish(protocol.SystemEvent{
		Type:      protocol.TypeSystemEvent,
		SessionID: o.id,
		Code:      "language_changed",
		Detail:    p.Code,
	})
	return p, nil
}

func (o *Orchestrator) ClearHistory() {
	o.touch()
	o.history.Clear()
	o.publishHistory()
}

func (o *Orchestrator) SetExhibitions(list []exhibition.Exhibition) {
	o.responder.SetExhibitions(list)
}

func (o *Orchestrator) Exhibitions() []exhibition.Exhibition {
	return o.responder.Exhibitions()
}

// Close releases the translator, synthesizer, capture device and any
// recording nobody consumed.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed.Load() {
		o.mu.Unlock()
		return nil
	}
	o.closed.Store(true)
	o.mu.Unlock()

	o.cancel()
	errs := []error{o.capture.Close()}
	o.wg.Wait()
	errs = append(errs, o.translation.Close(), o.synthesis.Close())
	o.events.close()
	return errors.Join(errs...)
}

// beginTurn claims the session for one turn. On success the caller owns one
// wg slot and must call finishTurn.
func (o *Orchestrator) beginTurn() error {
	if o.closed.Load() {
		return ErrClosed
	}
	if !o.turnActive.CompareAndSwap(false, true) {
		return ErrBusy
	}
	if err := o.machine.Transition(session.StatusReady, session.StatusProcessing); err != nil {
		o.turnActive.Store(false)
		return rejection(o.machine.Status())
	}
	if !o.track(1) {
		_ = o.machine.Transition(session.StatusProcessing, session.StatusReady)
		o.turnActive.Store(false)
		return ErrClosed
	}
	return nil
}

func rejection(st session.Status) error {
	if st == session.StatusInit {
		return ErrNotReady
	}
	return ErrBusy
}

func (o *Orchestrator) finishTurn(ctx context.Context, span trace.Span, kind string, start time.Time, err error) {
	outcome := "completed"
	if err != nil {
		outcome = "aborted"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.reportError(ctx, err, stageOf(err))
	}
	o.metrics.ObserveStage("turn_total", time.Since(start))
	o.metrics.ObserveTurn(kind, outcome)

	// A language change during the turn already left Processing.
	_ = o.machine.Transition(session.StatusProcessing, session.StatusReady)
	o.turnActive.Store(false)
	o.touch()
}

func (o *Orchestrator) runTextTurn(ctx context.Context, p language.Profile, text string) error {
	turnID := uuid.NewString()
	pivotText := text

	if p.IsPivot() {
		o.appendTurn(session.RoleUser, text)
	} else {
		out, err := o.runStage(ctx, "to_pivot", func(ctx context.Context) (string, error) {
			return o.translation.ToPivot(ctx, text)
		})
		if err != nil {
			return newError(KindNetwork, "translate to pivot", err)
		}
		o.appendTurn(session.RoleUser, text)
		pivotText = out
	}

	reply, err := o.runStage(ctx, "respond", func(ctx context.Context) (string, error) {
		return o.responder.Respond(ctx, o.id, turnID, pivotText)
	})
	if err != nil {
		return newError(KindNetwork, "respond", err)
	}

	if !p.IsPivot() {
		reply, err = o.runStage(ctx, "from_pivot", func(ctx context.Context) (string, error) {
			return o.translation.FromPivot(ctx, reply)
		})
		if err != nil {
			return newError(KindNetwork, "translate from pivot", err)
		}
	}

	o.deliverReply(ctx, turnID, reply)
	return nil
}

// deliverReply speaks the reply when synthesis is available and then records
// it. Playback problems are logged and never fail the turn.
func (o *Orchestrator) deliverReply(ctx context.Context, turnID, reply string) {
	start := time.Now()
	spokeCtx, span := tracer.Start(ctx, "synthesize")
	attempted, err := o.synthesis.Speak(spokeCtx, reply, func(c AudioChunk) {
		o.events.publish(protocol.AssistantAudioChunk{
			Type:        protocol.TypeAssistantAudio,
			SessionID:   o.id,
			TurnID:      turnID,
			Seq:         c.Seq,
			Format:      c.Format,
			AudioBase64: c.AudioBase64,
		})
	})
	span.SetAttributes(attribute.Bool("synthesis.attempted", attempted))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.WarnContext(ctx, "speech playback failed", "session_id", o.id, "error", err)
	}
	span.End()
	if attempted {
		o.metrics.ObserveStage("synthesize", time.Since(start))
	}

	o.appendTurn(session.RoleAssistant, reply)
}

func (o *Orchestrator) runStage(ctx context.Context, name string, fn func(context.Context) (string, error)) (string, error) {
	ctx, span := tracer.Start(ctx, name)
	defer span.End()

	start := time.Now()
	out, err := fn(ctx)
	o.metrics.ObserveStage(name, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", &stageError{stage: name, err: err}
	}
	return out, nil
}

// stageError remembers which stage failed for metrics and error events.
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.stage + ": " + e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

func stageOf(err error) string {
	var se *stageError
	if errors.As(err, &se) {
		return se.stage
	}
	return "session"
}

func (o *Orchestrator) onRecordingCompleted(a capture.Artifact, capErr error) {
	if !o.track(1) {
		o.discardArtifact(a)
		return
	}
	defer o.wg.Done()

	// Wait for StartRecording to finish publishing the Recording status.
	o.recMu.Lock()
	o.recMu.Unlock()

	if err := o.machine.Transition(session.StatusRecording, session.StatusProcessing); err != nil {
		logger.Info("discarding recording from superseded session state", "session_id", o.id, "artifact", a.ID, "status", o.machine.Status())
		o.discardArtifact(a)
		o.turnActive.Store(false)
		return
	}

	turnCtx, cancel := context.WithTimeout(o.baseCtx, o.turnTimeout)
	defer cancel()
	turnCtx, span := tracer.Start(turnCtx, "spoken turn", trace.WithAttributes(
		attribute.String("session.id", o.id),
		attribute.String("recording.id", a.ID),
	))
	defer span.End()
	start := time.Now()

	if capErr != nil {
		o.discardArtifact(a)
		o.finishTurn(turnCtx, span, "voice", start, newError(KindRecording, "finalize recording", &stageError{stage: "capture", err: capErr}))
		return
	}

	p := *o.profile.Load()
	text, err := o.runStage(turnCtx, "transcribe", func(ctx context.Context) (string, error) {
		return o.transcription.Run(ctx, a.Path, p.TranscriptionModel)
	})
	o.capture.Release(a.ID)
	if err != nil {
		o.finishTurn(turnCtx, span, "voice", start, newError(KindNetwork, "transcribe", err))
		return
	}

	err = o.runTextTurn(turnCtx, p, text)
	o.finishTurn(turnCtx, span, "voice", start, err)
}

// track registers n goroutines with Close unless the orchestrator is closing.
func (o *Orchestrator) track(n int) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed.Load() {
		return false
	}
	o.wg.Add(n)
	return true
}

func (o *Orchestrator) discardArtifact(a capture.Artifact) {
	if err := os.Remove(a.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("failed to delete recording", "path", a.Path, "error", err)
	}
	o.capture.Release(a.ID)
}

// reinitialize moves the session to Init and starts a new readiness cycle for
// profile p. Results of earlier cycles are ignored.
func (o *Orchestrator) reinitialize(p language.Profile) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed.Load() {
		return
	}

	if o.initCancel != nil {
		o.initCancel()
	}
	ctx, cancel := context.WithTimeout(o.baseCtx, o.initTimeout)
	o.initCancel = cancel

	o.synthesis.Invalidate()
	cycle := o.gate.Reset(func() {
		o.profile.Store(&p)
		o.machine.ForceInit()
	})

	logger.Info("initializing subsystems", "session_id", o.id, "language", p.Code)
	o.wg.Add(2)
	go o.initSubsystem(ctx, cycle, "synthesis", func(ctx context.Context) error {
		return o.synthesis.Initialize(ctx, p.Locale)
	})
	go o.initSubsystem(ctx, cycle, "translator", func(ctx context.Context) error {
		if p.IsPivot() {
			return nil
		}
		return o.translation.Initialize(ctx, p.TranslatorCode)
	})
}

func (o *Orchestrator) initSubsystem(ctx context.Context, cycle *session.Cycle, name string, fn func(context.Context) error) {
	defer o.wg.Done()

	ctx, span := tracer.Start(ctx, "initialize "+name)
	defer span.End()

	err := fn(ctx)
	o.metrics.ObserveInit(name, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if cycle.Current() {
			kind := KindNetwork
			if errors.Is(err, ErrUnsupportedLocale) {
				kind = KindSpeech
			}
			o.reportError(ctx, newError(kind, "initialize "+name, err), name)
		}
	}
	cycle.Signal()
}

func (o *Orchestrator) onSubsystemsReady() {
	if err := o.machine.Transition(session.StatusInit, session.StatusReady); err != nil {
		logger.Warn("readiness signal without init status", "session_id", o.id, "error", err)
	}
}

func (o *Orchestrator) onStatusChange(from, to session.Status) {
	o.metrics.SetStatus(string(to), allStatuses)
	o.events.publish(protocol.StatusEvent{
		Type:      protocol.TypeStatusEvent,
		SessionID: o.id,
		Status:    string(to),
		Previous:  string(from),
		Language:  o.Language().Code,
		TSMs:      time.Now().UnixMilli(),
	})
}

func (o *Orchestrator) appendTurn(role session.Role, text string) {
	t := o.history.Prepend(role, text)
	o.events.publish(protocol.TurnAppended{
		Type:        protocol.TypeTurnAppended,
		SessionID:   o.id,
		HistoryTurn: historyTurn(t),
	})
	redacted, pii := policy.RedactPII(text)
	logger.Debug("turn appended", "session_id", o.id, "role", string(role), "ordinal", t.Ordinal, "text", redacted, "pii", pii)
}

func (o *Orchestrator) publishHistory() {
	turns := o.history.Turns()
	out := make([]protocol.HistoryTurn, 0, len(turns))
	for _, t := range turns {
		out = append(out, historyTurn(t))
	}
	o.events.publish(protocol.HistorySnapshot{
		Type:      protocol.TypeHistorySnapshot,
		SessionID: o.id,
		Turns:     out,
	})
}

func historyTurn(t session.Turn) protocol.HistoryTurn {
	return protocol.HistoryTurn{TurnID: t.ID, Role: string(t.Role), Text: t.Text, Ordinal: t.Ordinal}
}

// reportError publishes exactly one error event for a failed operation.
func (o *Orchestrator) reportError(ctx context.Context, err error, source string) {
	kind, ok := KindOf(err)
	if !ok {
		kind = KindNetwork
	}
	o.metrics.ObserveError(string(kind), source)
	logger.ErrorContext(ctx, "turn failed", "session_id", o.id, "kind", string(kind), "source", source, "error", err)
	o.events.publish(protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		SessionID: o.id,
		Code:      string(kind),
		Source:    source,
		Retryable: reliability.IsRetryable(err),
		Detail:    fmt.Sprint(err),
	})
}

func (o *Orchestrator) touch() {
	o.lastActivity.Store(time.Now().UnixMilli())
}
