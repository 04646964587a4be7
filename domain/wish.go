package domain

import (
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// Status is the board column a wish currently sits in.
type Status string

const (
	StatusTodo  Status = "todo"
	StatusDoing Status = "doing"
	StatusDone  Status = "done"
)

// Statuses lists the board columns in display order.
var Statuses = []Status{StatusTodo, StatusDoing, StatusDone}

var (
	ErrEmptyText          = errors.New("wish text is empty")
	ErrInvalidStatus      = errors.New("invalid wish status")
	ErrNotFound           = errors.New("wish not found")
	ErrBackendUnavailable = errors.New("wish backend unavailable")
)

// Valid reports whether s is one of the three board columns.
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusDoing, StatusDone:
		return true
	}
	return false
}

// ParseStatus validates a raw status value.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.TrimSpace(raw))
	if !s.Valid() {
		return "", ErrInvalidStatus
	}
	return s, nil
}

// Wish represents a single guestbook entry.
type Wish struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Status    Status `json:"status"`
	CreatedAt int64  `json:"createdAt"`
}

// NewWish builds a fresh todo wish from user supplied text.
func NewWish(text string) (Wish, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Wish{}, ErrEmptyText
	}
	ts := nextMillis()
	return Wish{
		ID:        strconv.FormatInt(ts, 10),
		Text:      text,
		Status:    StatusTodo,
		CreatedAt: ts,
	}, nil
}

var lastMillis int64

// nextMillis returns the current epoch millisecond, bumped past the last
// value handed out so ids stay unique within the process.
func nextMillis() int64 {
	for {
		now := time.Now().UnixMilli()
		last := atomic.LoadInt64(&lastMillis)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastMillis, last, now) {
			return now
		}
	}
}

// SortNewestFirst orders wishes by id, compared as numbers.
// Ids that are not numeric sort after numeric ones.
func SortNewestFirst(wishes []Wish) {
	sort.SliceStable(wishes, func(i, j int) bool {
		return idAfter(wishes[i].ID, wishes[j].ID)
	})
}

func idAfter(a, b string) bool {
	na, errA := strconv.ParseInt(a, 10, 64)
	nb, errB := strconv.ParseInt(b, 10, 64)
	switch {
	case errA == nil && errB == nil:
		return na > nb
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return a > b
	}
}
