package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"wishboard/api"
	"wishboard/photos"
	"wishboard/storage"
)

func main() {
	if loaded := loadDotEnv(); len(loaded) > 0 {
		log.Infof("loaded env files: %v", loaded)
	}
	cfg, err := loadConfig(os.LookupEnv)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	if cfg.LogJSON {
		log.SetFormatter(&log.JSONFormatter{})
	}
	logger := log.StandardLogger()

	store, err := newStore(cfg)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	opts := api.Options{
		ListPolicy: cfg.ListPolicy,
		Photos:     photos.New(cfg.PhotosDir, cfg.PhotosURLPrefix),
		Logger:     logger,
	}

	if cfg.RedisConn != "" {
		rc := redis.NewClient(redisOptions(cfg.RedisConn))
		defer rc.Close()
		store = storage.NewCache(store, rc, cfg.CacheTTL)
		opts.Deduper = api.NewRedisDeduper(rc, cfg.DeduperTTL)
		log.Infof("redis cache enabled, ttl: %v, deduper ttl: %v", cfg.CacheTTL, cfg.DeduperTTL)
	}

	var sender *api.EventSender
	if cfg.EventsQueue != "" {
		if cfg.Table.ConnectionString == "" {
			log.Fatal("WISHES_EVENTS_QUEUE requires STORAGE_CONNECTION_STRING")
		}
		pub, err := storage.NewQueuePublisher(cfg.Table.ConnectionString, cfg.EventsQueue)
		if err != nil {
			log.Fatalf("queue: %v", err)
		}
		sender = api.NewEventSender(pub, logger, api.SenderConfig{HandoffTimeout: 50 * time.Millisecond})
		opts.Events = sender
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderContentEncoding, echo.HeaderAccept, "Idempotency-Key"},
	}))
	e.Static("/", cfg.StaticDir)
	api.Register(e, store, opts)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := e.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Errorf("shutdown: %v", err)
	}
	if sender != nil {
		sender.Close()
	}
}

// newStore picks the persistence backend from configuration.
func newStore(cfg config) (api.Store, error) {
	if cfg.Backend == backendFile {
		log.Infof("wishes backend: file %s", cfg.WishesFile)
		return storage.NewFileStore(cfg.WishesFile), nil
	}

	log.WithFields(log.Fields{
		"table":             cfg.Table.Table,
		"connection_string": cfg.Table.ConnectionString != "",
		"table_url":         cfg.Table.ServiceURL != "",
		"table_key":         cfg.Table.AccountKey != "",
	}).Info("wishes backend: table")
	if !cfg.Table.Configured() {
		log.Warn("table credentials missing; wish requests will fail until WISHES_TABLE_URL and WISHES_TABLE_KEY are set")
	}
	return storage.NewTableStore(cfg.Table)
}
