package api

import (
	"context"
	"fmt"

	"wishboard/domain"
)

// Store abstracts wish persistence for handlers. FileStore, TableStore and the
// Redis Cache all satisfy it.
type Store interface {
	List(ctx context.Context) ([]domain.Wish, error)
	Create(ctx context.Context, text string) (domain.Wish, error)
	UpdateStatus(ctx context.Context, id string, status domain.Status) error
	Delete(ctx context.Context, id string) error
}

// Deduper prevents processing of duplicate create requests.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, key string) (bool, error)
	// Remove deletes a previously added key, used when the create fails.
	Remove(ctx context.Context, key string) error
}

// EventSink receives change events after successful mutations. Send must not block
// the request for long and reports whether the event was accepted.
type EventSink interface {
	Send(ev domain.Event) bool
}

// PhotoLister returns public paths of the carousel images.
type PhotoLister interface {
	List() []string
}

// ListPolicy decides what GET /api/wishes does when the backend fails.
type ListPolicy string

const (
	// ListDegrade logs the failure and answers 200 with an empty array.
	ListDegrade ListPolicy = "degrade"
	// ListSurface answers 500 with the backend error in details.
	ListSurface ListPolicy = "surface"
)

// ParseListPolicy validates a configured policy name. Empty means ListDegrade.
func ParseListPolicy(raw string) (ListPolicy, error) {
	switch ListPolicy(raw) {
	case "", ListDegrade:
		return ListDegrade, nil
	case ListSurface:
		return ListSurface, nil
	}
	return "", fmt.Errorf("unknown list policy %q", raw)
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

type createWishRequest struct {
	Text string `json:"text"`
}

type updateWishRequest struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type deleteWishRequest struct {
	ID string `json:"id"`
}
