package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/iconidentify/mediagrab/internal/api"
	"github.com/iconidentify/mediagrab/internal/api/handler"
	"github.com/iconidentify/mediagrab/internal/config"
	"github.com/iconidentify/mediagrab/internal/downloader"
	"github.com/iconidentify/mediagrab/internal/engine"
	"github.com/iconidentify/mediagrab/internal/repository"
	"github.com/iconidentify/mediagrab/internal/selector"
	"github.com/iconidentify/mediagrab/internal/service"
	"github.com/iconidentify/mediagrab/internal/source"
	"github.com/iconidentify/mediagrab/internal/worker"
	"github.com/iconidentify/mediagrab/pkg/ffmpeg"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	envFile := flag.String("env-file", ".env", "Optional dotenv file loaded before the environment is read")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("mediagrab %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	// A missing .env is fine; real deployments set the environment directly.
	envErr := godotenv.Load(*envFile)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)
	logger.Info("starting mediagrab", "version", Version, "build_time", BuildTime)
	if envErr == nil {
		logger.Info("loaded env file", "path", *envFile)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	scratch, err := engine.NewScratch(cfg.Storage.WorkRoot, logger)
	if err != nil {
		return fmt.Errorf("init work root: %w", err)
	}

	history, err := newHistory(cfg.History)
	if err != nil {
		return fmt.Errorf("init job history: %w", err)
	}
	defer history.Close()

	sessions, closeSessions, err := newSessionStore(ctx, cfg.Session)
	if err != nil {
		return fmt.Errorf("init session store: %w", err)
	}
	defer closeSessions()

	remuxer := ffmpeg.NewRemuxer(ffmpeg.Config{
		FFmpegPath:   cfg.Remux.FFmpegPath,
		AudioCodec:   cfg.Remux.AudioCodec,
		AudioBitrate: cfg.Remux.AudioBitrate,
	})
	if v, err := remuxer.Version(ctx); err != nil {
		logger.Warn("ffmpeg not available, split formats cannot be assembled", "error", err)
	} else {
		logger.Info("ffmpeg found", "version", v)
	}

	acquirer := engine.NewAcquirer(
		scratch,
		downloader.NewHTTPDownloader(cfg.Download, logger),
		remuxer,
		history,
		engine.Options{
			TitleMaxLen:   cfg.Storage.TitleMaxLen,
			MinFreeFactor: cfg.Storage.MinFreeFactor,
		},
		logger,
	)

	profiles, err := service.ProfilesFromConfig(cfg.Selection)
	if err != nil {
		return fmt.Errorf("selection profiles: %w", err)
	}
	policy, err := selector.ParseUnknownSizePolicy(cfg.Selection.UnknownSize)
	if err != nil {
		return err
	}

	mediaSvc := service.NewMediaService(
		source.NewHTTPSource(cfg.Source, logger),
		sessions,
		acquirer,
		scratch,
		service.MediaConfig{
			Profiles:   profiles,
			Selection:  selector.Options{UnknownSize: policy},
			SessionTTL: cfg.Session.TTL,
		},
		logger,
	)
	logger.Info("media service ready", "profiles", mediaSvc.Profiles(), "unknown_size", policy)

	router := api.NewRouter(
		handler.NewMediaHandler(mediaSvc, logger),
		handler.NewJobsHandler(history),
		handler.NewHealthHandler(history, sessions, scratch.Root()),
		api.RouterConfig{
			APIKey:         cfg.Server.APIKey,
			RateLimit:      cfg.Server.RateLimit,
			RequestTimeout: cfg.Server.WriteTimeout,
		},
		logger,
	)

	sweeper := worker.NewSweeper(worker.Config{
		Interval:   cfg.Sweeper.Interval,
		ScratchAge: cfg.Sweeper.ScratchAge,
	}, sessions, scratch, logger)
	sweeper.Start()

	srv := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		if err != nil {
			_ = sweeper.Stop(5 * time.Second)
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("shutting down")

	// In-flight redeems get the grace period to finish and clean up.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := sweeper.Stop(5 * time.Second); err != nil {
		logger.Error("sweeper shutdown error", "error", err)
	}
	return nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func newHistory(cfg config.HistoryConfig) (repository.JobHistory, error) {
	if cfg.SQLitePath == "" {
		return repository.NewInMemoryJobHistory(), nil
	}
	return repository.NewSQLiteJobHistory(cfg.SQLitePath)
}

func newSessionStore(ctx context.Context, cfg config.SessionConfig) (repository.SessionStore, func(), error) {
	switch cfg.Backend {
	case "redis":
		store, err := repository.NewRedisSessionStore(ctx, repository.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	default:
		return repository.NewInMemorySessionStore(), func() {}, nil
	}
}
