package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/user/sinergia/config"
	"github.com/user/sinergia/internal/api"
	"github.com/user/sinergia/internal/game"
	"github.com/user/sinergia/internal/interfaces"
	"github.com/user/sinergia/internal/narrative"
	"github.com/user/sinergia/internal/storage/sqlite"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "./config/config.json", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Set up logger
	logger := setupLogger(cfg.Server.LogLevel)
	defer logger.Sync()
	undo := zap.ReplaceGlobals(logger)
	defer undo()

	// Load roster metadata
	roster := loadRoster(cfg, logger)

	// Narrative trees are shared read-only across sessions
	source := narrative.NewCachedSource(setupTreeSource(cfg), logger.Named("narrative"))

	// Save slots
	store, closeStore, err := setupSlotStore(cfg)
	if err != nil {
		logger.Fatal("Failed to open save storage", zap.Error(err))
	}
	defer closeStore.Close()
	saves := game.NewSaveManager(store, cfg.Game.MaxSaveSlots, logger.Named("saves"))

	limits := api.RegistryLimits{
		MaxSessions: cfg.Server.MaxSessions,
		IdleTimeout: cfg.Server.SessionIdle(),
	}
	registry := api.NewRegistry(sessionFactory(cfg, source, saves, roster, logger), limits, logger)
	defer registry.CloseAll()

	// Evict abandoned sessions in the background
	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	go registry.RunJanitor(janitorCtx, time.Minute)

	// Set up HTTP server
	server := setupHTTPServer(cfg, registry, logger)

	// Start HTTP server
	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server stopped", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	waitForShutdown(server, logger)
}

func setupLogger(level string) *zap.Logger {
	zapConfig := zap.NewProductionConfig()
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if parsed, err := zapcore.ParseLevel(level); err == nil {
		zapConfig.Level = zap.NewAtomicLevelAt(parsed)
	}
	logger, err := zapConfig.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func loadRoster(cfg config.Config, logger *zap.Logger) game.Roster {
	dataLoader := game.NewDataLoader(cfg.Narrative.DataDir)
	characters, err := dataLoader.LoadCharacters()
	if err != nil {
		logger.Warn("Failed to load characters, deriving tree ids from sequence", zap.Error(err))
		return game.Roster{}
	}
	logger.Info("Loaded characters", zap.Int("count", len(characters)))
	return game.NewRoster(characters)
}

func setupTreeSource(cfg config.Config) interfaces.TreeSource {
	if cfg.Narrative.SourceURL != "" {
		client := &http.Client{Timeout: cfg.Narrative.FetchTimeout()}
		return narrative.NewHTTPSource(cfg.Narrative.SourceURL, client)
	}
	return narrative.NewFileSource(cfg.Narrative.TreesDir())
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func setupSlotStore(cfg config.Config) (interfaces.SlotStore, io.Closer, error) {
	switch cfg.Storage.Driver {
	case "sqlite":
		store, err := sqlite.Open(cfg.Storage.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	case "memory":
		return game.NewMemorySlotStore(), nopCloser{}, nil
	default:
		store, err := game.NewFileSlotStore(cfg.Storage.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, nopCloser{}, nil
	}
}

func sessionFactory(cfg config.Config, source interfaces.TreeSource, saves *game.SaveManager, roster game.Roster, logger *zap.Logger) api.SessionFactory {
	sessionCfg := game.SessionConfig{
		CharacterSequence: cfg.Game.CharacterSequence,
		TreeSuffix:        cfg.Narrative.TreeSuffix,
		AutoAdvance:       cfg.Game.AutoAdvance(),
		TransitionDelay:   cfg.Game.Transition(),
		TransitionSteps:   cfg.Game.TransitionSteps,
	}
	return func() (api.Session, error) {
		rng, err := game.NewRandomSource(cfg.Game.RandomSeed)
		if err != nil {
			return nil, err
		}
		manager := narrative.NewManager(source, rng, logger.Named("narrative"))
		manager.SetStartNode(cfg.Narrative.StartNodeID)
		return game.NewSession(manager, saves, roster, sessionCfg, logger.Named("session")), nil
	}
}

func setupHTTPServer(cfg config.Config, registry *api.Registry, logger *zap.Logger) *http.Server {
	// Create router
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(cfg.Server.RequestTimeout()))

	api.NewHandler(registry, logger.Named("api")).Routes(router)

	// Create HTTP server
	return &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}
}

func waitForShutdown(server *http.Server, logger *zap.Logger) {
	// Set up channel for shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	sig := <-sigChan
	logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	// Perform cleanup
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	logger.Info("Shutting down")
}
