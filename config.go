package main

import (
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"wishboard/api"
	"wishboard/storage"
)

const (
	backendFile  = "file"
	backendTable = "table"
)

type config struct {
	Debug           bool
	LogJSON         bool
	ListenAddr      string
	Backend         string
	WishesFile      string
	Table           storage.TableConfig
	EventsQueue     string
	RedisConn       string
	CacheTTL        time.Duration
	DeduperTTL      time.Duration
	ListPolicy      api.ListPolicy
	PhotosDir       string
	PhotosURLPrefix string
	StaticDir       string
}

// loadDotEnv loads .env.local then .env. Variables already set in the
// environment win, and .env.local wins over .env.
func loadDotEnv() []string {
	var loaded []string
	for _, f := range []string{".env.local", ".env"} {
		if _, err := os.Stat(f); err == nil {
			loaded = append(loaded, f)
		}
	}
	if len(loaded) > 0 {
		_ = godotenv.Load(loaded...)
	}
	return loaded
}

func loadConfig(lookup func(string) (string, bool)) (config, error) {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}

	cfg := config{
		WishesFile:      get("WISHES_FILE", "data/wishes.json"),
		EventsQueue:     get("WISHES_EVENTS_QUEUE", ""),
		RedisConn:       get("REDIS_CONNECTION_STRING", ""),
		PhotosDir:       get("PHOTOS_DIR", "public/photos"),
		PhotosURLPrefix: get("PHOTOS_URL_PREFIX", "/photos"),
		StaticDir:       get("STATIC_DIR", "public"),
		Table: storage.TableConfig{
			ConnectionString: get("STORAGE_CONNECTION_STRING", ""),
			ServiceURL:       get("WISHES_TABLE_URL", ""),
			AccountKey:       get("WISHES_TABLE_KEY", ""),
			Table:            get("WISHES_TABLE", "wishes"),
		},
	}

	if dbg, err := strconv.ParseBool(get("DEBUG", "false")); err == nil {
		cfg.Debug = dbg
	}

	switch format := strings.ToLower(get("LOG_FORMAT", "text")); format {
	case "text":
	case "json":
		cfg.LogJSON = true
	default:
		return config{}, fmt.Errorf("invalid LOG_FORMAT %q: want text or json", format)
	}

	port := get("FUNCTIONS_CUSTOMHANDLER_PORT", get("PORT", "8080"))
	if n, err := strconv.Atoi(port); err != nil || n <= 0 || n > 65535 {
		return config{}, fmt.Errorf("invalid port %q", port)
	}
	cfg.ListenAddr = ":" + port

	switch backend := strings.ToLower(get("WISHES_BACKEND", backendFile)); backend {
	case backendFile, backendTable:
		cfg.Backend = backend
	default:
		return config{}, fmt.Errorf("invalid WISHES_BACKEND %q: want %s or %s", backend, backendFile, backendTable)
	}

	policy, err := api.ParseListPolicy(strings.ToLower(get("WISHES_LIST_ON_ERROR", "")))
	if err != nil {
		return config{}, fmt.Errorf("invalid WISHES_LIST_ON_ERROR: %w", err)
	}
	cfg.ListPolicy = policy

	if cfg.CacheTTL, err = positiveDuration("WISHES_CACHE_TTL", get("WISHES_CACHE_TTL", "1m")); err != nil {
		return config{}, err
	}
	if cfg.DeduperTTL, err = positiveDuration("DEDUPER_TTL", get("DEDUPER_TTL", "24h")); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func positiveDuration(name, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be greater than zero", name)
	}
	return d, nil
}

// redisOptions accepts a redis:// URL or the "host:port,password=...,ssl=True"
// form used by Azure Cache for Redis.
func redisOptions(conn string) *redis.Options {
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts := &redis.Options{Addr: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(kv[1], "true") {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}
