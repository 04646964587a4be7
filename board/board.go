// Package board keeps a client-side copy of the wishes board and applies
// moves and removals optimistically against the wishes API.
package board

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"wishboard/domain"
)

// Column is one bucket of the board.
type Column struct {
	Status domain.Status
	Title  string
	Wishes []domain.Wish
}

var columnTitles = map[domain.Status]string{
	domain.StatusTodo:  "New",
	domain.StatusDoing: "In review",
	domain.StatusDone:  "Favorited",
}

// Option configures a Board.
type Option func(*Board)

// WithRevertOnFailure restores the previous record when a background move or
// removal is rejected by the server. By default failures are only logged.
func WithRevertOnFailure() Option {
	return func(b *Board) { b.revert = true }
}

// WithFailureHook registers fn to receive every background move or removal
// that the server rejected. fn is called from the background goroutine.
func WithFailureHook(fn func(error)) Option {
	return func(b *Board) { b.onFailure = fn }
}

// WithHTTPClient sets the client used for API calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(b *Board) { b.httpClient = hc }
}

// WithLogger sets the logger for background failures.
func WithLogger(logger *log.Logger) Option {
	return func(b *Board) { b.log = logger }
}

// Board is the local state of one viewer.
type Board struct {
	api        *client
	httpClient *http.Client
	log        *log.Logger
	revert     bool
	onFailure  func(error)

	mu     sync.Mutex
	wishes []domain.Wish
	wg     sync.WaitGroup
}

// New creates an empty board talking to the API at baseURL.
func New(baseURL string, opts ...Option) *Board {
	b := &Board{}
	for _, opt := range opts {
		opt(b)
	}
	if b.log == nil {
		b.log = log.StandardLogger()
	}
	b.api = newClient(baseURL, b.httpClient)
	return b
}

// Load replaces the local state with the server list. On failure the current
// state is kept and the error returned.
func (b *Board) Load(ctx context.Context) error {
	wishes, err := b.api.list(ctx)
	if err != nil {
		b.log.WithError(err).Error("load wishes failed")
		return err
	}
	b.mu.Lock()
	b.wishes = wishes
	b.mu.Unlock()
	return nil
}

// Wishes returns a snapshot of the board, newest first.
func (b *Board) Wishes() []domain.Wish {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Wish, len(b.wishes))
	copy(out, b.wishes)
	return out
}

// Add creates a wish and prepends the server copy once the server confirms it.
func (b *Board) Add(ctx context.Context, text string) (domain.Wish, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Wish{}, domain.ErrEmptyText
	}
	w, err := b.api.create(ctx, text)
	if err != nil {
		b.log.WithError(err).Error("add wish failed")
		return domain.Wish{}, err
	}
	b.mu.Lock()
	b.wishes = append([]domain.Wish{w}, b.wishes...)
	b.mu.Unlock()
	return w, nil
}

// Move sets the status locally and sends the update in the background.
func (b *Board) Move(ctx context.Context, id string, status domain.Status) error {
	if !status.Valid() {
		return domain.ErrInvalidStatus
	}

	b.mu.Lock()
	var prev domain.Status
	found := false
	for i := range b.wishes {
		if b.wishes[i].ID == id {
			prev = b.wishes[i].Status
			b.wishes[i].Status = status
			found = true
			break
		}
	}
	b.mu.Unlock()

	b.background(ctx, func(ctx context.Context) error {
		return b.api.updateStatus(ctx, id, status)
	}, func() {
		if found {
			b.restoreStatus(id, status, prev)
		}
	}, log.Fields{"op": "move", "id": id, "status": status})
	return nil
}

// Remove drops the wish locally and sends the delete in the background.
func (b *Board) Remove(ctx context.Context, id string) error {
	b.mu.Lock()
	var removed domain.Wish
	at := -1
	for i := range b.wishes {
		if b.wishes[i].ID == id {
			removed = b.wishes[i]
			at = i
			b.wishes = append(b.wishes[:i:i], b.wishes[i+1:]...)
			break
		}
	}
	b.mu.Unlock()

	b.background(ctx, func(ctx context.Context) error {
		return b.api.delete(ctx, id)
	}, func() {
		if at >= 0 {
			b.restoreWish(removed, at)
		}
	}, log.Fields{"op": "remove", "id": id})
	return nil
}

// Columns groups the board into New, In review and Favorited. Wishes with an
// unknown status are left out.
func (b *Board) Columns() []Column {
	b.mu.Lock()
	defer b.mu.Unlock()
	cols := make([]Column, 0, len(domain.Statuses))
	for _, s := range domain.Statuses {
		col := Column{Status: s, Title: columnTitles[s], Wishes: []domain.Wish{}}
		for _, w := range b.wishes {
			if w.Status == s {
				col.Wishes = append(col.Wishes, w)
			}
		}
		cols = append(cols, col)
	}
	return cols
}

// Wait blocks until background mutations have finished.
func (b *Board) Wait() {
	b.wg.Wait()
}

func (b *Board) background(ctx context.Context, send func(context.Context) error, undo func(), fields log.Fields) {
	ctx = context.WithoutCancel(ctx)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		err := send(ctx)
		if err == nil {
			return
		}
		entry := b.log.WithFields(fields).WithError(err)
		if b.revert {
			entry.Warn("background mutation failed; reverting")
			undo()
		} else {
			entry.Warn("background mutation failed; board may diverge until reload")
		}
		if b.onFailure != nil {
			b.onFailure(fmt.Errorf("%s %s: %w", fields["op"], fields["id"], err))
		}
	}()
}

// restoreStatus puts prev back unless the wish was moved again meanwhile.
func (b *Board) restoreStatus(id string, applied, prev domain.Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.wishes {
		if b.wishes[i].ID == id && b.wishes[i].Status == applied {
			b.wishes[i].Status = prev
			return
		}
	}
}

func (b *Board) restoreWish(w domain.Wish, at int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.wishes {
		if existing.ID == w.ID {
			return
		}
	}
	if at > len(b.wishes) {
		at = len(b.wishes)
	}
	b.wishes = append(b.wishes[:at:at], append([]domain.Wish{w}, b.wishes[at:]...)...)
}
