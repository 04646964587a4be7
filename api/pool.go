package api

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"wishboard/domain"
)

// Publisher delivers a single event to its destination.
type Publisher interface {
	Publish(ctx context.Context, ev domain.Event) error
}

// SenderConfig tunes the background event workers.
type SenderConfig struct {
	Workers        int
	Buffer         int
	PublishTimeout time.Duration
	HandoffTimeout time.Duration
}

func (c SenderConfig) withDefaults() SenderConfig {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.Buffer <= 0 {
		c.Buffer = 256
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 30 * time.Second
	}
	if c.HandoffTimeout < 0 {
		c.HandoffTimeout = 0
	}
	return c
}

// EventSender hands wish events to a pool of workers so publishing never
// blocks the request that produced them. Failed publishes are logged and dropped.
type EventSender struct {
	pub    Publisher
	log    *log.Logger
	cfg    SenderConfig
	jobs   chan domain.Event
	wg     sync.WaitGroup
	closed sync.Once
}

// NewEventSender starts the worker pool.
func NewEventSender(pub Publisher, logger *log.Logger, cfg SenderConfig) *EventSender {
	if logger == nil {
		panic("Logger is not initialized")
	}
	cfg = cfg.withDefaults()
	s := &EventSender{
		pub:  pub,
		log:  logger,
		cfg:  cfg,
		jobs: make(chan domain.Event, cfg.Buffer),
	}
	for i := 0; i < cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	logger.Infof("event sender started, workers: %d, buffer: %d, timeout: %v, handoff: %v", cfg.Workers, cfg.Buffer, cfg.PublishTimeout, cfg.HandoffTimeout)
	return s
}

func (s *EventSender) worker(id int) {
	defer s.wg.Done()
	for ev := range s.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PublishTimeout)
		err := s.pub.Publish(ctx, ev)
		cancel()
		if err != nil {
			s.log.Errorf("publish failed, err: %v, type: %s, wish: %s, worker: %d", err, ev.Type, ev.WishID, id)
		}
	}
}

// Send queues the event, waiting at most HandoffTimeout for buffer space.
// It returns false when the buffer stays full or the sender is closed.
func (s *EventSender) Send(ev domain.Event) bool {
	if ok, closed := trySendNonBlocking(s.jobs, ev); closed {
		return false
	} else if ok {
		return true
	}

	if s.cfg.HandoffTimeout <= 0 {
		return false
	}

	timer := time.NewTimer(s.cfg.HandoffTimeout)
	defer timer.Stop()

	ok, closed := sendWithTimer(s.jobs, ev, timer.C)
	if closed {
		return false
	}
	return ok
}

// Close stops accepting events and waits for queued ones to be published.
func (s *EventSender) Close() {
	s.closed.Do(func() {
		close(s.jobs)
	})
	s.wg.Wait()
}

func trySendNonBlocking(ch chan domain.Event, ev domain.Event) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- ev:
		return true, false
	default:
		return false, false
	}
}

func sendWithTimer(ch chan domain.Event, ev domain.Event, timer <-chan time.Time) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- ev:
		return true, false
	case <-timer:
		return false, false
	}
}
