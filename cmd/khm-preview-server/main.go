package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/yndnr/khm-preview/internal/core/service"
	"github.com/yndnr/khm-preview/internal/infra/buildinfo"
	"github.com/yndnr/khm-preview/internal/infra/confloader"
	"github.com/yndnr/khm-preview/internal/infra/shutdown"
	"github.com/yndnr/khm-preview/internal/infra/tlsroots"
	"github.com/yndnr/khm-preview/internal/server/config"
	"github.com/yndnr/khm-preview/internal/server/httpserver"
	"github.com/yndnr/khm-preview/internal/storage"
	"github.com/yndnr/khm-preview/internal/storage/memory"
	"github.com/yndnr/khm-preview/internal/storage/postgres"
	"github.com/yndnr/khm-preview/internal/storage/redis"
	"github.com/yndnr/khm-preview/internal/telemetry/logger"
	"github.com/yndnr/khm-preview/internal/telemetry/metric"
	"github.com/yndnr/khm-preview/pkg/crypto/adaptive"
	"github.com/yndnr/khm-preview/pkg/token"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println("khm-preview-server " + buildinfo.String())
		return nil
	}

	loader, cfg, err := loadConfig(*configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	info := buildinfo.Get()
	log.Info("starting khm-preview-server",
		"version", info.Version,
		"commit", info.Commit,
		"config", *configFile)
	log.Debug("effective configuration", "config", config.Sanitize(cfg))

	ctx := context.Background()
	shutdownHandler := shutdown.NewHandler(cfg.Server.ShutdownTimeout, log)

	var registry *metric.Registry
	if cfg.Metrics.Enabled {
		registry = metric.NewRegistry()
	}

	kv, err := initStorage(cfg, registry, log)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	shutdownHandler.OnShutdown("storage", func(context.Context) error {
		return kv.Close()
	})

	options, err := initOptionStore(ctx, cfg, kv, log)
	if err != nil {
		shutdownHandler.Shutdown()
		return fmt.Errorf("init secret store: %w", err)
	}
	if options.close != nil {
		shutdownHandler.OnShutdown("secret store", func(context.Context) error {
			return options.close()
		})
	}

	services, err := initServices(cfg, kv, options.store, registry, log)
	if err != nil {
		shutdownHandler.Shutdown()
		return fmt.Errorf("init services: %w", err)
	}

	routerCfg := httpserver.DefaultRouterConfig()
	routerCfg.PreviewService = services.Preview
	routerCfg.AnalyticsService = services.Analytics
	routerCfg.AuthService = services.Auth
	routerCfg.Metrics = registry
	routerCfg.Logger = log
	routerCfg.Readiness = readiness(services.Secrets, options.pinger)
	routerCfg.PublicURL = cfg.Server.HTTP.PublicURL
	routerCfg.RecentHits = cfg.Preview.RecentHits
	routerCfg.MaxBodyBytes = cfg.Server.HTTP.MaxBodyBytes
	routerCfg.MetricsPath = cfg.Metrics.Path
	routerCfg.MetricsAuthRequired = cfg.Metrics.RequireAuth
	routerCfg.AdminAllowList = cfg.Security.AdminAllowList
	routerCfg.CORSAllowedOrigins = cfg.Server.HTTP.CORSOrigins
	routerCfg.PublicRateLimit = cfg.Security.PublicRateLimit
	routerCfg.TrustProxyHeaders = cfg.Security.TrustProxyHeaders

	serverCfg := httpserver.ServerConfig{
		Addr:         cfg.Server.HTTP.Addr,
		TLSCertFile:  cfg.Server.HTTP.TLSCertFile,
		TLSKeyFile:   cfg.Server.HTTP.TLSKeyFile,
		ReadTimeout:  cfg.Server.HTTP.ReadTimeout,
		WriteTimeout: cfg.Server.HTTP.WriteTimeout,
		IdleTimeout:  cfg.Server.HTTP.IdleTimeout,
	}
	if serverCfg.TLSCertFile != "" && serverCfg.TLSKeyFile != "" {
		reloader, err := tlsroots.NewCertReloader(serverCfg.TLSCertFile, serverCfg.TLSKeyFile,
			tlsroots.WithLogger(log))
		if err != nil {
			shutdownHandler.Shutdown()
			return fmt.Errorf("load certificate: %w", err)
		}
		if err := reloader.Start(); err != nil {
			log.Warn("certificate reload disabled", "error", err)
		}
		shutdownHandler.OnShutdown("certificate reloader", func(context.Context) error {
			return reloader.Stop()
		})
		serverCfg.GetCertificate = reloader.GetCertificate
	}

	httpServer := httpserver.New(serverCfg, httpserver.NewRouter(routerCfg))
	shutdownHandler.OnShutdown("http server", httpServer.Shutdown)

	if loader.FilePath() != "" {
		watcher, err := watchConfig(loader, log)
		if err != nil {
			log.Warn("config watcher disabled", "error", err)
		} else {
			shutdownHandler.OnShutdown("config watcher", func(context.Context) error {
				return watcher.Stop()
			})
		}
	}

	// A failing listener ends the process the same way a signal does.
	serveCtx, stop := context.WithCancelCause(ctx)
	defer stop(nil)
	go func() {
		log.Info("HTTP server listening",
			"addr", cfg.Server.HTTP.Addr,
			"tls", httpServer.TLSEnabled())
		if err := httpServer.ListenAndServe(); err != nil {
			log.Error("HTTP server error", "error", err)
			stop(err)
		}
	}()

	log.Info("server started, press Ctrl+C to stop")
	if err := shutdownHandler.Wait(serveCtx); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}
	if cause := context.Cause(serveCtx); cause != nil {
		return cause
	}

	log.Info("server stopped gracefully")
	return nil
}

// loadConfig loads configuration from defaults, file and environment.
func loadConfig(configFile string) (*confloader.Loader, *config.ServerConfig, error) {
	cfg := config.Default()

	opts := []confloader.Option{}
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}
	loader := confloader.NewLoader(opts...)

	if err := loader.Load(cfg); err != nil {
		return nil, nil, err
	}
	if err := config.Verify(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return loader, cfg, nil
}

// initLogger creates the redacting logger and installs it as the default.
func initLogger(cfg *config.ServerConfig) (*slog.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	if err != nil {
		return nil, err
	}
	slog.SetDefault(log)
	return log, nil
}

// initStorage opens the link store engine.
func initStorage(cfg *config.ServerConfig, registry *metric.Registry, log *slog.Logger) (storage.KVEngine, error) {
	switch cfg.Storage.Engine {
	case "memory":
		log.Warn("using the memory engine, links and the secret are lost on restart")
		return memory.New(), nil
	default:
		engine, err := storage.NewBadgerEngine(cfg.Storage, log)
		if err != nil {
			return nil, err
		}
		if registry != nil {
			engine.RegisterMetrics(registry.Registerer())
		}
		return engine, nil
	}
}

// optionBackend is the store holding the signing secret.
type optionBackend struct {
	store storage.OptionStore

	// pinger checks an external store for readiness; nil for the KV engine.
	pinger func(context.Context) error

	// close releases the connection of an external store.
	close func() error
}

// initOptionStore opens the configured secret store, wrapped with
// encryption at rest when a key is configured.
func initOptionStore(ctx context.Context, cfg *config.ServerConfig, kv storage.KVEngine, log *slog.Logger) (*optionBackend, error) {
	var backend optionBackend

	switch cfg.Secret.Store {
	case config.SecretStorePostgres:
		pool, err := postgres.Connect(ctx, cfg.Secret.Postgres, log)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, pool, cfg.Secret.Postgres, log); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		store := postgres.NewOptionStore(pool)
		backend = optionBackend{store: store, pinger: store.Ping, close: store.Close}
	case config.SecretStoreRedis:
		client, err := redis.Connect(ctx, cfg.Secret.Redis, log)
		if err != nil {
			return nil, err
		}
		store := redis.NewOptionStore(client, cfg.Secret.Redis.KeyPrefix)
		backend = optionBackend{store: store, pinger: store.Ping, close: store.Close}
	default:
		backend = optionBackend{store: storage.NewKVOptions(kv)}
	}

	if cfg.Security.EncryptionKey != "" {
		sealer, err := adaptive.NewSealer([]byte(cfg.Security.EncryptionKey), "khm-preview options")
		if err != nil {
			return nil, fmt.Errorf("encryption key: %w", err)
		}
		backend.store = storage.NewEncryptedOptions(backend.store, sealer)
	}

	log.Info("secret store ready",
		"store", cfg.Secret.Store,
		"encrypted", cfg.Security.EncryptionKey != "")
	return &backend, nil
}

// Services holds all initialized services.
type Services struct {
	Preview   *service.PreviewService
	Analytics *service.AnalyticsService
	Auth      *service.AuthService
	Secrets   *service.OptionSecretProvider
}

// initServices initializes all domain services.
func initServices(cfg *config.ServerConfig, kv storage.KVEngine, options storage.OptionStore, registry *metric.Registry, log *slog.Logger) (*Services, error) {
	var recorder service.Recorder = service.NopRecorder{}
	if registry != nil {
		recorder = registry
	}

	secrets := service.NewOptionSecretProvider(options,
		service.WithSecretOptionName(cfg.Secret.OptionName),
		service.WithSecretRefresh(cfg.Secret.RefreshInterval),
		service.WithSecretLogger(log),
		service.WithSecretRecorder(recorder),
	)

	links := storage.NewLinkStore(kv)
	analytics := service.NewAnalyticsService(links, log)
	preview := service.NewPreviewService(service.PreviewServiceDeps{
		Links:     links,
		Analytics: analytics,
		Tokens:    token.NewGenerator(secrets),
		Rotator:   secrets,
		Logger:    log,
		Recorder:  recorder,
	}, cfg.Preview.PreviewServiceConfig())

	auth, err := service.NewAuthService(cfg.Auth.AuthServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}

	log.Info("services initialized",
		"preview_service", "ready",
		"auth_service", "ready",
		"api_keys", auth.KeyCount())

	return &Services{
		Preview:   preview,
		Analytics: analytics,
		Auth:      auth,
		Secrets:   secrets,
	}, nil
}

// readiness reports ready once the secret can be loaded.
func readiness(secrets *service.OptionSecretProvider, ping func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		if ping != nil {
			if err := ping(ctx); err != nil {
				return err
			}
		}
		_, err := secrets.Secret(ctx)
		return err
	}
}

// watchConfig reloads the log level when the config file changes. Other
// settings need a restart.
func watchConfig(loader *confloader.Loader, log *slog.Logger) (*confloader.Watcher, error) {
	watcher, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		return nil, err
	}
	if err := watcher.Watch(loader.FilePath()); err != nil {
		watcher.Stop()
		return nil, err
	}

	watcher.OnChange(func(path string) {
		cfg := config.Default()
		if err := loader.Reload(cfg); err != nil {
			log.Error("config reload failed", "path", path, "error", err)
			return
		}
		if err := config.Verify(cfg); err != nil {
			log.Error("reloaded config is invalid", "path", path, "error", err)
			return
		}
		previous := logger.Level()
		if err := logger.SetLevel(cfg.Log.Level); err != nil {
			log.Error("reloaded log level rejected", "error", err)
			return
		}
		if current := logger.Level(); current != previous {
			log.Info("log level changed", "from", previous, "to", current)
		}
	})
	watcher.StartAsync()
	return watcher, nil
}
