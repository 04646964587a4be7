package main

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
)

const (
	wishesEventName   = "wishes.request.metrics"
	wishesEventDomain = "wishboard.api"

	attrMethod     = "http.method"
	attrStatusCode = "http.status_code"
	attrTotalMs    = "wishboard.wishes.total_ms"
	attrStoreMs    = "wishboard.wishes.store_ms"
	attrCount      = "wishboard.wishes.count"
	attrErrorStage = "wishboard.wishes.error_stage"
)

var lineDecoder = sonic.Config{UseNumber: true}.Froze()

// logLine is one logrus JSON entry as written by the server.
type logLine struct {
	Msg          string         `json:"msg"`
	EventName    string         `json:"event.name"`
	EventDomain  string         `json:"event.domain"`
	SeverityText string         `json:"severity_text"`
	Attributes   map[string]any `json:"attributes"`
}

type stat struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	sum   float64
}

func (s *stat) add(v float64) {
	if s.Count == 0 || v < s.Min {
		s.Min = v
	}
	s.Max = math.Max(s.Max, v)
	s.Count++
	s.sum += v
	s.Avg = s.sum / float64(s.Count)
}

type summary struct {
	EventName    string           `json:"event_name"`
	Requests     int              `json:"requests"`
	Severity     map[string]int   `json:"severity_counts"`
	Methods      map[string]int   `json:"method_counts"`
	Statuses     map[string]int   `json:"status_counts"`
	TotalMs      stat             `json:"total_ms"`
	StoreMs      stat             `json:"store_ms"`
	ListedWishes stat             `json:"listed_wishes"`
	ErrorStages  map[string]int   `json:"error_stages,omitempty"`
	Skipped      int              `json:"skipped_lines"`
	byMethod     map[string]*stat
}

type collector struct {
	eventName   string
	eventDomain string
	sum         summary
}

func newCollector(eventName, eventDomain string) *collector {
	return &collector{
		eventName:   eventName,
		eventDomain: eventDomain,
		sum: summary{
			EventName:   eventName,
			Severity:    map[string]int{},
			Methods:     map[string]int{},
			Statuses:    map[string]int{},
			ErrorStages: map[string]int{},
			byMethod:    map[string]*stat{},
		},
	}
}

// ingest accepts one log line. Docker compose prefixes ("api-1 | {...}") are stripped.
func (c *collector) ingest(line string) {
	raw := strings.TrimSpace(line)
	if raw == "" {
		return
	}
	if i := strings.Index(raw, "|"); i >= 0 && !strings.HasPrefix(raw, "{") {
		raw = strings.TrimSpace(raw[i+1:])
	}

	var rec logLine
	if err := lineDecoder.UnmarshalFromString(raw, &rec); err != nil {
		c.sum.Skipped++
		return
	}
	if rec.EventName != c.eventName || (c.eventDomain != "" && rec.EventDomain != c.eventDomain) {
		return
	}

	s := &c.sum
	s.Requests++
	s.Severity[strings.ToUpper(rec.SeverityText)]++

	method, _ := rec.Attributes[attrMethod].(string)
	if method != "" {
		s.Methods[method]++
	}
	if code, ok := number(rec.Attributes[attrStatusCode]); ok {
		s.Statuses[strconv.Itoa(int(code))]++
	}
	if v, ok := number(rec.Attributes[attrTotalMs]); ok {
		s.TotalMs.add(v)
		if method != "" {
			if s.byMethod[method] == nil {
				s.byMethod[method] = &stat{}
			}
			s.byMethod[method].add(v)
		}
	}
	if v, ok := number(rec.Attributes[attrStoreMs]); ok {
		s.StoreMs.add(v)
	}
	if v, ok := number(rec.Attributes[attrCount]); ok && method == "GET" {
		s.ListedWishes.add(v)
	}
	if stage, _ := rec.Attributes[attrErrorStage].(string); stage != "" {
		s.ErrorStages[stage]++
	}
}

func (c *collector) summary() summary {
	out := c.sum
	if len(out.ErrorStages) == 0 {
		out.ErrorStages = nil
	}
	return out
}

// ShortString is the one-line report printed after collection.
func (s summary) ShortString() string {
	methods := make([]string, 0, len(s.byMethod))
	for m := range s.byMethod {
		methods = append(methods, m)
	}
	sort.Strings(methods)

	parts := []string{
		"event=" + s.EventName,
		"requests=" + strconv.Itoa(s.Requests),
		"warn=" + strconv.Itoa(s.Severity["WARN"]),
		"error=" + strconv.Itoa(s.Severity["ERROR"]),
		"avg_total_ms=" + formatFloat(s.TotalMs.Avg),
		"max_total_ms=" + formatFloat(s.TotalMs.Max),
	}
	for _, m := range methods {
		parts = append(parts, strings.ToLower(m)+"_avg_ms="+formatFloat(s.byMethod[m].Avg))
	}
	return strings.Join(parts, " ")
}

func formatFloat(v float64) string {
	if v == 0 {
		return "0"
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func number(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case interface{ Float64() (float64, error) }:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}
