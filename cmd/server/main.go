package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/Chat/internal/adapters/http"
	wsignal "github.com/dkeye/Chat/internal/adapters/signal"
	"github.com/dkeye/Chat/internal/adapters/storage"
	"github.com/dkeye/Chat/internal/adapters/upload"
	"github.com/dkeye/Chat/internal/app"
	"github.com/dkeye/Chat/internal/app/orch"
	"github.com/dkeye/Chat/internal/config"
	"github.com/dkeye/Chat/internal/core"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func setupLogger(mode, level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if mode == "debug" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Console output until the config says otherwise.
	setupLogger("debug", "info")

	loader := config.NewLoader()
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	setupLogger(cfg.Mode, cfg.LogLevel)

	store, err := storage.Open(ctx, storage.Config{Path: cfg.DBPath, BusyTimeout: 5 * time.Second})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	uploader, err := upload.NewDiskUploader(cfg.UploadDir, cfg.PublicURL, cfg.UploadMaxBytes)
	if err != nil {
		return err
	}

	emitter := app.NewEmitter(app.PolicyFor(cfg.Backpressure))
	tracker := core.NewTracker(emitter)
	reg := app.NewRegistry(tracker)
	emitter.Kicker = reg
	o := orch.New(reg, tracker, emitter, store, uploader)

	limiter := wsignal.NewRoomRateLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst)
	loader.Watch(func(next *config.Config) {
		limiter.SetLimit(next.RateLimit.PerSecond, next.RateLimit.Burst)
		log.Info().Float64("per_second", next.RateLimit.PerSecond).Int("burst", next.RateLimit.Burst).Msg("rate limit updated")
	})

	ctrl := wsignal.NewSignalWSController(o, limiter, wsignal.Options{
		ReadLimit:      cfg.ReadLimit,
		UploadMaxBytes: cfg.UploadMaxBytes,
		PingPeriod:     cfg.PingPeriod,
		WriteWait:      cfg.WriteWait,
		SendBuffer:     cfg.SendBuffer,
		AllowOrigin:    cfg.CORSOrigin,
	})

	pruner, err := app.NewPruner(store, cfg.Notifications.PruneSchedule, cfg.Notifications.Retention)
	if err != nil {
		return err
	}
	pruner.Start()

	r := router.SetupRouter(ctx, cfg, router.Deps{
		Store:     store,
		Directory: app.NewRoomDirectory(store, tracker),
		Signal:    ctrl,
		UploadDir: uploader.Dir(),
	})
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Str("mode", cfg.Mode).Msg("Chat server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		limiter.Run(gctx, time.Minute)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		err := srv.Shutdown(shutdownCtx)
		if err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		reg.CloseAll()
		pruner.Stop(shutdownCtx)
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("Server exited gracefully")
	return nil
}
