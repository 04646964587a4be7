package main

import (
	"bufio"
	"bytes"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"wishboard/api"
	"wishboard/storage"
)

func TestCollectorAggregatesRequestEvents(t *testing.T) {
	c := newCollector(wishesEventName, wishesEventDomain)

	lines := []string{
		`{"msg":"observability.event","event.name":"wishes.request.metrics","event.domain":"wishboard.api","severity_text":"INFO","severity_number":9,"attributes":{"http.method":"GET","http.status_code":200,"wishboard.wishes.total_ms":4.5,"wishboard.wishes.store_ms":2.0,"wishboard.wishes.count":12}}`,
		`not json`,
		`api-1  | {"msg":"observability.event","event.name":"wishes.request.metrics","event.domain":"wishboard.api","severity_text":"ERROR","severity_number":17,"attributes":{"http.method":"POST","http.status_code":500,"wishboard.wishes.total_ms":9.5,"wishboard.wishes.error_stage":"store"}}`,
		`{"msg":"observability.event","event.name":"other","event.domain":"wishboard.api"}`,
	}
	for _, line := range lines {
		c.ingest(line)
	}

	s := c.summary()
	if s.Requests != 2 {
		t.Fatalf("expected 2 requests, got %d", s.Requests)
	}
	if s.Skipped != 1 {
		t.Fatalf("expected 1 skipped line, got %d", s.Skipped)
	}
	if s.Statuses["200"] != 1 || s.Statuses["500"] != 1 {
		t.Fatalf("unexpected status counts: %#v", s.Statuses)
	}
	if s.Severity["ERROR"] != 1 || s.Severity["INFO"] != 1 {
		t.Fatalf("unexpected severity counts: %#v", s.Severity)
	}
	if s.TotalMs.Count != 2 || s.TotalMs.Min != 4.5 || s.TotalMs.Max != 9.5 || s.TotalMs.Avg != 7 {
		t.Fatalf("unexpected total stats: %#v", s.TotalMs)
	}
	if s.ListedWishes.Count != 1 || s.ListedWishes.Max != 12 {
		t.Fatalf("unexpected listed wishes: %#v", s.ListedWishes)
	}
	if s.ErrorStages["store"] != 1 {
		t.Fatalf("expected store error stage, got %#v", s.ErrorStages)
	}
	short := s.ShortString()
	if !strings.Contains(short, "requests=2") || !strings.Contains(short, "get_avg_ms=4.50") {
		t.Fatalf("unexpected short summary %q", short)
	}
}

func TestCollectorReadsServerLogs(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New()
	logger.SetFormatter(&log.JSONFormatter{})
	logger.SetOutput(&buf)

	e := echo.New()
	store := storage.NewFileStore(filepath.Join(t.TempDir(), "wishes.json"))
	api.Register(e, store, api.Options{Logger: logger})

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodPost, "/api/wishes", strings.NewReader(`{"text":"hi"}`)),
		httptest.NewRequest(http.MethodPost, "/api/wishes", strings.NewReader(`{"text":" "}`)),
		httptest.NewRequest(http.MethodGet, "/api/wishes", nil),
	} {
		e.ServeHTTP(httptest.NewRecorder(), req)
	}

	c := newCollector(wishesEventName, wishesEventDomain)
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		c.ingest(scanner.Text())
	}

	s := c.summary()
	if s.Requests != 3 {
		t.Fatalf("expected 3 requests, got %d (%s)", s.Requests, buf.String())
	}
	if s.Methods["POST"] != 2 || s.Methods["GET"] != 1 {
		t.Fatalf("unexpected method counts: %#v", s.Methods)
	}
	if s.Statuses["201"] != 1 || s.Statuses["400"] != 1 || s.Statuses["200"] != 1 {
		t.Fatalf("unexpected status counts: %#v", s.Statuses)
	}
	if s.ErrorStages["validate"] != 1 {
		t.Fatalf("expected validation stage, got %#v", s.ErrorStages)
	}
	if s.ListedWishes.Max != 1 {
		t.Fatalf("expected one listed wish, got %#v", s.ListedWishes)
	}
}
