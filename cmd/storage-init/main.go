package main

import (
	"context"
	"os"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"wishboard/storage"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	log.Info("storage init starting")
	ctx := context.Background()

	if path := envOr("WISHES_FILE", "data/wishes.json"); strings.ToLower(envOr("WISHES_BACKEND", "file")) == "file" {
		if _, err := storage.NewFileStore(path).List(ctx); err != nil {
			log.Fatalf("bootstrap %s: %v", path, err)
		}
		log.Infof("wishes file ready: %s", path)
	}

	cfg := storage.TableConfig{
		ConnectionString: os.Getenv("STORAGE_CONNECTION_STRING"),
		ServiceURL:       os.Getenv("WISHES_TABLE_URL"),
		AccountKey:       os.Getenv("WISHES_TABLE_KEY"),
		Table:            envOr("WISHES_TABLE", "wishes"),
	}
	if cfg.Configured() {
		tables, err := storage.NewTableStore(cfg)
		if err != nil {
			log.Fatalf("table client: %v", err)
		}
		if err := tables.EnsureTable(ctx); err != nil {
			log.Fatalf("create table: %v", err)
		}
		log.Infof("table ready: %s", cfg.Table)
	} else {
		log.Warn("table credentials missing; skipping table")
	}

	if name := os.Getenv("WISHES_EVENTS_QUEUE"); name != "" {
		if cfg.ConnectionString == "" {
			log.Fatal("missing STORAGE_CONNECTION_STRING for WISHES_EVENTS_QUEUE")
		}
		q, err := storage.NewQueuePublisher(cfg.ConnectionString, name)
		if err != nil {
			log.Fatalf("queue client: %v", err)
		}
		if err := q.EnsureQueue(ctx); err != nil {
			log.Fatalf("create queue: %v", err)
		}
		log.Infof("queue ready: %s", name)
	}

	log.Info("storage init complete")
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
