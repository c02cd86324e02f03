// Package app wires configuration, storage, clients, and the job engine into
// a running Curio instance.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bobmcallan/curio/internal/clients/gemini"
	"github.com/bobmcallan/curio/internal/common"
	"github.com/bobmcallan/curio/internal/interfaces"
	"github.com/bobmcallan/curio/internal/services/generator"
	"github.com/bobmcallan/curio/internal/services/jobengine"
	"github.com/bobmcallan/curio/internal/services/ratelimit"
	surrealstore "github.com/bobmcallan/curio/internal/storage/surrealdb"
)

// App holds all initialized components.
type App struct {
	Config       *common.Config
	Logger       *common.Logger
	Storage      interfaces.StorageManager
	GeminiClient interfaces.GenAIClient
	Engine       *jobengine.Engine
	Generator    *generator.Service
	StartupTime  time.Time

	maintenanceCancel context.CancelFunc
}

// NewApp initializes the application from the given config path. An empty
// path falls back to CURIO_CONFIG, then curio.toml next to the binary, then
// the working directory.
func NewApp(configPath string) (*App, error) {
	config, err := common.LoadConfig(resolveConfigPaths(configPath)...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := common.NewLogger(config.Logging.Level)

	storage, err := surrealstore.NewManager(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	app := &App{
		Config:      config,
		Logger:      logger,
		Storage:     storage,
		StartupTime: time.Now(),
	}

	// Gemini is optional at startup: without a key the generation job types
	// are simply not registered and enqueue rejects them as unknown.
	if apiKey, err := common.ResolveAPIKey("gemini_api_key", config.Gemini.APIKey); err != nil {
		logger.Warn().Err(err).Msg("Gemini API key not configured, generation handlers disabled")
	} else {
		client, err := gemini.NewClient(context.Background(), apiKey,
			gemini.WithModel(config.Gemini.Model),
			gemini.WithRequestsPerMinute(config.Gemini.RequestsPerMinute),
			gemini.WithLogger(logger),
		)
		if err != nil {
			storage.Close()
			return nil, fmt.Errorf("failed to initialize Gemini client: %w", err)
		}
		app.GeminiClient = client
	}

	limiter := ratelimit.NewService(storage.RateWindowStore(), logger,
		config.Jobs.RateMax, config.Jobs.GetWindowSize())

	registry := jobengine.NewRegistry(config.Jobs.DefaultMaxAttempts)

	app.Engine = jobengine.NewEngine(storage, limiter, registry, logger, jobengine.Config{
		LeaseTimeout:       config.Jobs.GetLeaseTimeout(),
		DefaultMaxAttempts: config.Jobs.DefaultMaxAttempts,
		BackoffBase:        config.Jobs.GetBackoffBase(),
		BackoffMax:         config.Jobs.GetBackoffMax(),
		CompletedRetention: config.Jobs.GetCompletedRetention(),
		FailedRetention:    config.Jobs.GetFailedRetention(),
		WindowRetention:    config.Jobs.GetWindowRetention(),
		GCBatchSize:        config.Jobs.GCBatchSize,
	})

	if app.GeminiClient != nil {
		app.Generator = generator.NewService(app.GeminiClient, storage.ContentStore(), app.Engine, logger)
		app.Generator.RegisterHandlers(registry)
	}

	logger.Info().
		Str("environment", config.Environment).
		Str("storage", config.Storage.Address).
		Bool("gemini", app.GeminiClient != nil).
		Strs("job_types", registry.Types()).
		Msg("Application initialized")

	return app, nil
}

// Close shuts down all application resources.
func (a *App) Close() error {
	a.StopMaintenance()
	if a.Storage != nil {
		if err := a.Storage.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
	}
	return nil
}

// resolveConfigPaths builds the config file search order.
func resolveConfigPaths(explicit string) []string {
	if explicit != "" {
		return []string{explicit}
	}
	if env := os.Getenv("CURIO_CONFIG"); env != "" {
		return []string{env}
	}

	paths := []string{}
	if exe, err := os.Executable(); err == nil {
		paths = append(paths, filepath.Join(filepath.Dir(exe), "curio.toml"))
	}
	paths = append(paths, "curio.toml")
	return paths
}
