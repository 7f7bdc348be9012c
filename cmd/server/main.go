package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/csv-transformer/backend/internal/api"
	"github.com/csv-transformer/backend/internal/config"
	"github.com/csv-transformer/backend/internal/content"
	"github.com/csv-transformer/backend/internal/database"
	"github.com/csv-transformer/backend/internal/enrich"
	"github.com/csv-transformer/backend/internal/ingest"
	"github.com/csv-transformer/backend/internal/preview"
	"github.com/csv-transformer/backend/internal/status"
	"github.com/csv-transformer/backend/internal/storage"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		exePath, err := os.Executable()
		if err != nil {
			log.WithError(err).Fatal("resolving executable path")
		}
		configPath = filepath.Join(filepath.Dir(exePath), "csv-transformer.config")
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.WithError(err).Fatal("loading configuration")
	}
	if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		log.SetLevel(level)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.WithError(err).Fatal("creating data directories")
	}

	db, err := database.NewDB(cfg.Storage.MetadataFile)
	if err != nil {
		log.WithError(err).Fatal("opening metadata database")
	}
	repo := database.NewRepository(db)

	contentStore, err := content.NewStore(cfg.Storage.ContentFile)
	if err != nil {
		log.WithError(err).Fatal("opening content store")
	}
	defer contentStore.Close()

	blobStore, err := storage.NewLocalStore(cfg.Storage.UploadsDirectory)
	if err != nil {
		log.WithError(err).Fatal("initializing blob storage")
	}

	rules, err := config.LoadUploadRules(cfg.Storage.ValidationRulesFile)
	if err != nil {
		log.WithError(err).Fatal("loading upload rules")
	}

	statusStore := newStatusStore(cfg, log)

	policy := ingest.Policy{
		MaxAttempts:   cfg.Processing.MaxAttempts,
		RetryDelay:    time.Duration(cfg.Processing.RetryDelaySeconds) * time.Second,
		ProgressEvery: cfg.Processing.ProgressRowInterval,
	}
	executor := ingest.NewExecutor(repo, contentStore, blobStore, statusStore, policy, log.WithField("component", "ingest"))

	previewTTL := time.Duration(cfg.Processing.PreviewCacheTTLMinutes) * time.Minute
	previewSvc := preview.NewService(repo, contentStore, previewTTL, log.WithField("component", "preview"))

	lookupTimeout := time.Duration(cfg.Processing.LookupTimeoutSeconds) * time.Second
	lookup := enrich.NewLookupClient(lookupTimeout, log.WithField("component", "lookup"))
	enricher := enrich.NewEngine(repo, contentStore, blobStore, lookup, log.WithField("component", "enrich"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Background janitor for expired preview pages.
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.Processing.CleanupIntervalMinutes) * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				previewSvc.PurgeExpired()
			case <-ctx.Done():
				return
			}
		}
	}()

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = api.ErrorHandler

	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			if !cfg.Logging.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return strings.HasSuffix(path, "/status") || path == "/api/health"
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	if cfg.Server.EnableCORS {
		origins := strings.Split(cfg.Server.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}

	handlers := api.NewHandlers(api.Dependencies{
		Repo:    repo,
		Blobs:   blobStore,
		Content: contentStore,
		Ingest:  executor,
		Preview: previewSvc,
		Enrich:  enricher,
		Status:  statusStore,
		Rules:   rules,
		Version: Version,
		Ping: func() error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Ping()
		},
		Log: log.WithField("component", "api"),
	})
	api.RegisterRoutes(e, handlers)

	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	go func() {
		log.WithFields(logrus.Fields{
			"version": Version,
			"build":   BuildTime,
			"addr":    cfg.GetServerAddr(),
			"config":  configPath,
		}).Info("server starting")

		if err := e.StartServer(s); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server stopped")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server shutdown")
	}

	// Let in-flight ingestion finish before the stores close.
	executor.Wait()
	log.Info("shutdown complete")
}

// newStatusStore picks Redis when configured, the in-process store
// otherwise. A Redis that is configured but unreachable is fatal: silent
// fallback would split status state across instances.
func newStatusStore(cfg *config.AppConfig, log *logrus.Logger) status.Store {
	addr := cfg.RedisAddr()
	if addr == "" {
		log.Info("using in-memory status store")
		return status.NewMemoryStore()
	}

	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.WithError(err).WithField("addr", addr).Fatal("connecting to redis")
	}

	log.WithField("addr", addr).Info("using redis status store")
	return status.NewRedisStore(client)
}
