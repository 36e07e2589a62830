// Package main provides the entry point for the gatehouse server.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/gatehouse/go-core/internal/audit"
	"github.com/gatehouse/go-core/internal/cel"
	"github.com/gatehouse/go-core/internal/config"
	"github.com/gatehouse/go-core/internal/cookie"
	"github.com/gatehouse/go-core/internal/db"
	"github.com/gatehouse/go-core/internal/engine"
	"github.com/gatehouse/go-core/internal/metrics"
	"github.com/gatehouse/go-core/internal/oauth"
	"github.com/gatehouse/go-core/internal/policy"
	"github.com/gatehouse/go-core/internal/server"
	"github.com/gatehouse/go-core/internal/session"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to YAML configuration file")
		sessionKey  = flag.String("session-key", os.Getenv("GATEHOUSE_SESSION_KEY"), "32-byte session codec key")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("gatehouse-server %s\n", Version)
		fmt.Printf("  Build Time: %s\n", BuildTime)
		fmt.Printf("  Git Commit: %s\n", GitCommit)
		os.Exit(0)
	}

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	key := *sessionKey
	if key == "" {
		key = cfg.Session.Key
	}
	if len(key) != 32 {
		fmt.Fprintln(os.Stderr, "A 32-byte session key is required (flag -session-key or GATEHOUSE_SESSION_KEY)")
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting gatehouse server",
		zap.String("version", Version),
		zap.String("api_addr", cfg.Server.APIAddr),
		zap.String("login_addr", cfg.Server.LoginAddr),
	)

	// Policy registry and loader
	celEngine, err := cel.NewEngine()
	if err != nil {
		logger.Fatal("Failed to create expression engine", zap.Error(err))
	}

	registry := policy.NewRegistry()
	loader := policy.NewLoader(celEngine, logger)

	policies, err := loader.LoadFromDirectory(cfg.Policy.Dir)
	if err != nil {
		logger.Fatal("Failed to load policies", zap.Error(err), zap.String("dir", cfg.Policy.Dir))
	}
	for _, p := range policies {
		if err := registry.Add(p); err != nil {
			logger.Fatal("Failed to register policy", zap.Error(err), zap.String("policy", p.Name()))
		}
	}
	logger.Info("Policies loaded", zap.Int("count", registry.Count()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Policy.Watch {
		watcher, err := policy.NewFileWatcher(cfg.Policy.Dir, registry, loader, logger)
		if err != nil {
			logger.Fatal("Failed to create policy watcher", zap.Error(err))
		}
		if err := watcher.Watch(ctx); err != nil {
			logger.Fatal("Failed to start policy watcher", zap.Error(err))
		}
		defer watcher.Stop()

		// Monitor reload outcomes in a background goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case ev := <-watcher.EventChan():
					if ev.Error != nil {
						logger.Error("Policy reload failed",
							zap.Time("timestamp", ev.Timestamp),
							zap.Error(ev.Error),
						)
						continue
					}
					logger.Info("Policies reloaded",
						zap.Time("timestamp", ev.Timestamp),
						zap.Strings("policies", ev.Policies),
					)
				}
			}
		}()
	}

	// Observability
	promMetrics := metrics.NewPrometheusMetrics("gatehouse")
	auditLogger, err := audit.NewLogger(cfg.Audit)
	if err != nil {
		logger.Fatal("Failed to create audit logger", zap.Error(err))
	}
	defer auditLogger.Sync()

	// Authorization service
	service := engine.NewService(registry, engine.DefaultHandlers(celEngine), logger,
		engine.WithObservers(promMetrics, auditLogger))

	// Session layer
	sessionManager, cleanup, err := buildSessionManager(cfg.Session, key, promMetrics, logger)
	if err != nil {
		logger.Fatal("Failed to build session manager", zap.Error(err))
	}
	defer cleanup()

	states, err := oauth.NewStateCodec([]byte(key))
	if err != nil {
		logger.Fatal("Failed to create state codec", zap.Error(err))
	}

	// Servers
	apiCfg := server.DefaultConfig()
	apiCfg.Addr = cfg.Server.APIAddr
	apiSrv, err := server.New(apiCfg, service, registry, promMetrics.HTTPHandler(), logger)
	if err != nil {
		logger.Fatal("Failed to create API server", zap.Error(err))
	}

	loginSrv := server.NewLoginServer(server.LoginConfig{
		Addr:              cfg.Server.LoginAddr,
		OAuthClientID:     os.Getenv("GATEHOUSE_OAUTH_CLIENT_ID"),
		OAuthRedirectBase: os.Getenv("GATEHOUSE_OAUTH_REDIRECT_BASE"),
	}, sessionManager, states, promMetrics, logger)

	errChan := make(chan error, 2)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() { errChan <- apiSrv.Start() }()
	go func() { errChan <- loginSrv.Start() }()

	select {
	case err := <-errChan:
		if err != http.ErrServerClosed {
			logger.Fatal("Server error", zap.Error(err))
		}
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := apiSrv.Stop(shutdownCtx); err != nil {
			logger.Warn("API server shutdown error", zap.Error(err))
		}
		if err := loginSrv.Stop(shutdownCtx); err != nil {
			logger.Warn("Login server shutdown error", zap.Error(err))
		}
	}

	logger.Info("Server stopped successfully")
}

// buildSessionManager wires the codec, cookie manager and optional
// server-side store from the session config.
func buildSessionManager(cfg config.SessionConfig, key string, m *metrics.PrometheusMetrics, logger *zap.Logger) (*session.Manager, func(), error) {
	var codec session.Codec
	switch cfg.Codec {
	case "jwt":
		codec = session.NewJWTCodec([]byte(key), "gatehouse")
	default:
		sealed, err := session.NewSealedCodec([]byte(key))
		if err != nil {
			return nil, nil, err
		}
		codec = sealed
	}

	cookieOpts := []cookie.ManagerOption{
		cookie.WithLogger(logger),
		cookie.WithChunkObserver(m.ObserveChunks),
	}
	if cfg.ChunkSize > 0 {
		cookieOpts = append(cookieOpts, cookie.WithChunkSize(cfg.ChunkSize))
	}
	cookies := cookie.NewChunkingManager(cookieOpts...)

	opts := []session.ManagerOption{
		session.WithCookieName(cfg.CookieName),
		session.WithTTL(cfg.TTL),
		session.WithManagerLogger(logger),
		session.WithCookieOptions(cookie.Options{
			Domain:   cfg.CookieDomain,
			Path:     cfg.CookiePath,
			Secure:   cfg.Secure,
			HttpOnly: true,
		}),
	}

	cleanup := func() {}
	switch cfg.Store {
	case "memory":
		opts = append(opts, session.WithStore(session.NewMemoryStore()))
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		opts = append(opts, session.WithStore(session.NewRedisStore(client)))
		cleanup = func() { client.Close() }
	case "postgres":
		conn, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		if err := db.Migrate(conn, logger); err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("failed to migrate: %w", err)
		}
		opts = append(opts, session.WithStore(session.NewPostgresStore(conn)))
		cleanup = func() { conn.Close() }
	}

	return session.NewManager(cookies, codec, opts...), cleanup, nil
}

// initLogger initializes the zap logger per the log config.
func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch cfg.Level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	if cfg.FilePath != "" {
		encoderCfg := zap.NewProductionEncoderConfig()
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		sink := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize,
			MaxAge:     cfg.MaxAge,
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		})
		core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), sink, zapLevel)
		return zap.New(core), nil
	}

	var zcfg zap.Config
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(zapLevel)
	return zcfg.Build()
}
