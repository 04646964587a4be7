package domain

import (
	"errors"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bytedance/sonic"
)

func TestWishMarshalFieldNames(t *testing.T) {
	w := Wish{ID: "1", Text: "Happy birthday!", Status: StatusTodo, CreatedAt: 1}

	payload, err := sonic.Marshal(w)
	if err != nil {
		t.Fatalf("marshal wish: %v", err)
	}

	for _, want := range []string{`"id":"1"`, `"text":"Happy birthday!"`, `"status":"todo"`, `"createdAt":1`} {
		if !strings.Contains(string(payload), want) {
			t.Fatalf("expected %s in %s", want, payload)
		}
	}
}

func TestNewWishTrimsAndDefaults(t *testing.T) {
	w, err := NewWish("  Happy birthday!  ")
	if err != nil {
		t.Fatalf("new wish: %v", err)
	}
	if w.Text != "Happy birthday!" {
		t.Fatalf("expected trimmed text, got %q", w.Text)
	}
	if w.Status != StatusTodo {
		t.Fatalf("expected todo status, got %q", w.Status)
	}
	if w.ID != strconv.FormatInt(w.CreatedAt, 10) {
		t.Fatalf("expected id to match createdAt, got id=%s createdAt=%d", w.ID, w.CreatedAt)
	}
}

func TestNewWishRejectsBlank(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t"} {
		if _, err := NewWish(text); !errors.Is(err, ErrEmptyText) {
			t.Fatalf("NewWish(%q) err = %v, want ErrEmptyText", text, err)
		}
	}
}

func TestNewWishIDsUniqueWithinMillisecond(t *testing.T) {
	t.Cleanup(func() {
		atomic.StoreInt64(&lastMillis, 0)
	})
	atomic.StoreInt64(&lastMillis, time.Now().Add(time.Second).UnixMilli())

	first, _ := NewWish("a")
	second, _ := NewWish("b")
	if second.CreatedAt-first.CreatedAt != 1 {
		t.Fatalf("expected sequential ids, got %s and %s", first.ID, second.ID)
	}
}

func TestParseStatus(t *testing.T) {
	for _, s := range Statuses {
		got, err := ParseStatus(string(s))
		if err != nil || got != s {
			t.Fatalf("ParseStatus(%q) = %q, %v", s, got, err)
		}
	}
	if _, err := ParseStatus("archived"); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestSortNewestFirstComparesNumerically(t *testing.T) {
	wishes := []Wish{{ID: "999"}, {ID: "legacy"}, {ID: "1000"}, {ID: "10"}}

	SortNewestFirst(wishes)

	got := make([]string, len(wishes))
	for i, w := range wishes {
		got[i] = w.ID
	}
	want := "1000,999,10,legacy"
	if strings.Join(got, ",") != want {
		t.Fatalf("unexpected order: %v, want %s", got, want)
	}
}
