package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ent0n29/docent/internal/capture"
	"github.com/ent0n29/docent/internal/config"
	"github.com/ent0n29/docent/internal/dialogue"
	"github.com/ent0n29/docent/internal/exhibition"
	"github.com/ent0n29/docent/internal/httpapi"
	"github.com/ent0n29/docent/internal/language"
	"github.com/ent0n29/docent/internal/observability"
	"github.com/ent0n29/docent/internal/voice"
)

type BuildResult struct {
	Config       config.Config
	API          *httpapi.Server
	Orchestrator *voice.Orchestrator
	Exhibitions  exhibition.Store
	Metrics      *observability.Metrics
	Providers    string

	// Cleanup releases the session, its providers, the exhibition store
	// and, when built through Build, the telemetry pipeline.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	shutdownTelemetry, err := observability.SetupTelemetry(ctx, observability.TelemetryOptions{
		ServiceName: "docent",
		Exporter:    cfg.TelemetryExporter,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry init failed: %w", err)
	}
	flush := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdownTelemetry(ctx)
	}

	res, err := build(ctx, cfg, observability.NewMetrics(cfg.MetricsNamespace))
	if err != nil {
		_ = flush()
		return nil, err
	}
	cleanup := res.Cleanup
	// Telemetry goes last so shutdown logs from the session are exported.
	res.Cleanup = func() error {
		return errors.Join(cleanup(), flush())
	}
	return res, nil
}

func build(ctx context.Context, cfg config.Config, metrics *observability.Metrics) (*BuildResult, error) {
	providers, err := resolveProviders(cfg)
	if err != nil {
		return nil, err
	}

	adapter, err := dialogue.NewAdapter(dialogue.Config{
		Mode:             cfg.DialogueAdapterMode,
		HTTPURL:          cfg.DialogueHTTPURL,
		HTTPStreamStrict: cfg.DialogueHTTPStreamStrict,
	})
	if err != nil {
		return nil, fmt.Errorf("dialogue adapter init failed: %w", err)
	}

	var (
		catalog *language.Catalog
		store   exhibition.Store
		items   []exhibition.Exhibition
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := language.LoadCatalog(cfg.LanguageCatalogFile)
		if err != nil {
			return fmt.Errorf("language catalog: %w", err)
		}
		catalog = c
		return nil
	})
	g.Go(func() error {
		s, err := exhibition.NewStore(gctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("exhibition store init failed: %w", err)
		}
		store = s
		list, err := s.List(gctx)
		if err != nil {
			return fmt.Errorf("load exhibitions: %w", err)
		}
		items = list
		return nil
	})
	if err := g.Wait(); err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, err
	}

	device := capture.NewStreamDevice(cfg.RecordingSampleRate, cfg.RecordingMaxDuration)
	ctrl, err := capture.NewController(cfg.RecordingDir, device, nil)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("capture init failed: %w", err)
	}

	responder := dialogue.NewResponder(adapter)
	responder.SetExhibitions(items)

	orchestrator, err := voice.NewOrchestrator(voice.Config{
		Catalog:     catalog,
		Language:    cfg.DefaultLanguage,
		TurnTimeout: cfg.TurnTimeout,
		InitTimeout: cfg.InitTimeout,
	}, voice.Deps{
		Capture:     ctrl,
		AudioInput:  device,
		Transcriber: providers.transcriber,
		Translator:  providers.translator,
		Responder:   responder,
		Synthesizer: providers.synthesizer,
		Metrics:     metrics,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("session init failed: %w", err)
	}
	log.Printf("providers: %s (exhibitions=%d)", providers.detail(), len(items))

	api := httpapi.New(cfg, orchestrator, store, metrics)

	cleanup := func() error {
		// The orchestrator closes capture, translator and synthesizer.
		return errors.Join(orchestrator.Close(), store.Close())
	}

	return &BuildResult{
		Config:       cfg,
		API:          api,
		Orchestrator: orchestrator,
		Exhibitions:  store,
		Metrics:      metrics,
		Providers:    providers.detail(),
		Cleanup:      cleanup,
	}, nil
}
