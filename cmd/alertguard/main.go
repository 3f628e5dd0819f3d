package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"alertguard/internal/alert"
	"alertguard/internal/api"
	"alertguard/internal/cfg"
	"alertguard/internal/ingest"
	"alertguard/internal/metrics"
	"alertguard/internal/ml"
	"alertguard/internal/model"
	"alertguard/internal/policy"
	"alertguard/internal/sched"
	"alertguard/internal/siem"
	"alertguard/internal/storage"
	"alertguard/internal/versioning"

	"github.com/rs/zerolog/log"
)

func main() {
	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	mw := metrics.NewWrapper(m)

	store, err := storage.New(c.DataPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", c.DataPath).Msg("storage initialization failed")
	}
	defer store.Close()

	versions, err := versioning.Open(c.ModelsDir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", c.ModelsDir).Msg("model catalog initialization failed")
	}
	defer versions.Close()

	runtime := ml.NewRuntime(mw)
	loadProductionModel(runtime, versions, c.ProbThreshold)

	var siemClient *siem.Client
	if c.SIEMBaseURL != "" {
		siemClient = siem.NewClient(c.SIEMBaseURL, c.SIEMToken, c.RESTTimeout)
		seedCorpus(ctx, siemClient, store)
	}

	pol := policy.New(&labelSink{store: store, client: siemClient}, mw)
	engine := ingest.New(store, runtime, pol, mw)

	trainer := ml.NewTrainer(store, versions, runtime, &model.LogisticRegression{}, c.TrainSeed, c.ProbThreshold, mw)
	scheduler := sched.New(trainer.Run)

	settings, err := store.GetSettings()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load settings")
	}
	scheduler.Start(ctx, settings)

	var wg sync.WaitGroup
	startAlertFeed(ctx, &wg, c, engine, mw)

	server := api.New(c.ListenAddr, api.Deps{
		Engine:    engine,
		Runtime:   runtime,
		Store:     store,
		Versions:  versions,
		Scheduler: scheduler,
		Metrics:   mw,
		APIKey:    c.APIKey,
		Threshold: c.ProbThreshold,
	})
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("API server failed")
			cancel()
		}
	}()

	waitForShutdown(ctx, cancel, &wg)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("API server shutdown failed")
	}
}

// labelSink persists labels locally and, when a SIEM client is configured,
// mirrors auto-classifications back to the SIEM so analysts see them.
type labelSink struct {
	store  *storage.Store
	client *siem.Client
}

func (s *labelSink) SaveLabel(alertID, label, provenance string) error {
	if err := s.store.SaveLabel(alertID, label, provenance); err != nil {
		return err
	}
	if s.client != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.client.PushClassification(ctx, alertID, label, provenance); err != nil {
				log.Warn().Err(err).Str("alert_id", alertID).Msg("failed to push classification to SIEM")
			}
		}()
	}
	return nil
}

// seedCorpus imports labeled history from the SIEM backend so the first
// training run has something to work with.
func seedCorpus(ctx context.Context, client *siem.Client, store *storage.Store) {
	seedCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	labeled, err := client.FetchLabeled(seedCtx, 1000)
	if err != nil {
		log.Warn().Err(err).Msg("failed to fetch labeled corpus from SIEM, continuing with local data")
		return
	}
	imported := 0
	for _, la := range labeled {
		id, err := store.SaveAlert(la.Alert)
		if err != nil {
			log.Warn().Err(err).Msg("failed to import labeled alert")
			continue
		}
		if err := store.SaveLabel(id, la.Label, la.Provenance); err != nil {
			log.Warn().Err(err).Str("alert_id", id).Msg("failed to import label")
			continue
		}
		imported++
	}
	log.Info().Int("imported", imported).Msg("labeled corpus seeded from SIEM")
}

// loadProductionModel restores serving state from the catalog on startup. The
// catalog is the source of truth: current.model is first republished from the
// production version's archived artifact, so a crash between a promotion's
// metadata commit and its republication cannot leave stale bytes serving
// under the new version ID. A missing or unreadable artifact means the
// service starts up serving "unavailable" until the next promotion.
func loadProductionModel(runtime *ml.Runtime, versions *versioning.Store, threshold float64) {
	prod, err := versions.RepublishProduction()
	if err != nil {
		log.Warn().Err(err).Msg("failed to restore production model, starting without a model")
		return
	}
	if prod == nil {
		log.Info().Msg("no production model yet, predictions unavailable until first training run")
		return
	}
	if err := runtime.Reload(versions.CurrentArtifactPath(), prod.VersionID, threshold); err != nil {
		log.Warn().Err(err).Str("version", prod.VersionID).Msg("failed to load production model, predictions unavailable")
		return
	}
	log.Info().Str("version", prod.VersionID).Msg("production model loaded")
}

// startAlertFeed subscribes to the SIEM's live alert stream when configured.
func startAlertFeed(ctx context.Context, wg *sync.WaitGroup, c cfg.Settings, engine *ingest.Engine, mw *metrics.Wrapper) {
	if c.SIEMWsURL == "" {
		log.Info().Msg("no SIEM WebSocket URL configured, alert feed disabled")
		return
	}
	stream := siem.NewStream(c.SIEMWsURL, c.SIEMToken, mw)
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := stream.Run(ctx, c.PingInterval, func(rec alert.Record) error {
			_, err := engine.HandleAlert(rec)
			return err
		})
		if err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("alert feed stopped")
		}
	}()
}

func waitForShutdown(ctx context.Context, cancel context.CancelFunc, wg *sync.WaitGroup) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("context canceled")
	}

	log.Info().Msg("shutting down gracefully...")
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all goroutines stopped")
	case <-time.After(10 * time.Second):
		log.Warn().Msg("shutdown timeout, forcing exit")
	}
}
