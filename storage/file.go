package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"wishboard/domain"
)

// FileStore keeps the whole wish collection in a single JSON document that is
// rewritten on every mutation. Mutations are serialized inside the process only;
// two processes sharing the file can still lose updates.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore returns a store backed by the JSON file at path. Nothing touches
// the disk until the first operation.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the location of the backing document.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) List(ctx context.Context) ([]domain.Wish, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wishes, err := s.readLocked()
	if err != nil {
		return nil, err
	}
	wishes = boardWishes(wishes, s.path)
	domain.SortNewestFirst(wishes)
	return wishes, nil
}

func (s *FileStore) Create(ctx context.Context, text string) (domain.Wish, error) {
	w, err := domain.NewWish(text)
	if err != nil {
		return domain.Wish{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	wishes, err := s.readLocked()
	if err != nil {
		return domain.Wish{}, err
	}
	wishes = append([]domain.Wish{w}, wishes...)
	if err := s.writeLocked(wishes); err != nil {
		return domain.Wish{}, err
	}
	return w, nil
}

// UpdateStatus changes the status of the wish with the given id. Unknown ids
// are ignored.
func (s *FileStore) UpdateStatus(ctx context.Context, id string, status domain.Status) error {
	if !status.Valid() {
		return domain.ErrInvalidStatus
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	wishes, err := s.readLocked()
	if err != nil {
		return err
	}
	changed := false
	for i := range wishes {
		if wishes[i].ID == id {
			wishes[i].Status = status
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.writeLocked(wishes)
}

func (s *FileStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wishes, err := s.readLocked()
	if err != nil {
		return err
	}
	kept := wishes[:0]
	for _, w := range wishes {
		if w.ID != id {
			kept = append(kept, w)
		}
	}
	if len(kept) == len(wishes) {
		return nil
	}
	return s.writeLocked(kept)
}

// readLocked loads the collection, bootstrapping an empty document when the
// file does not exist yet.
func (s *FileStore) readLocked() ([]domain.Wish, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if err := s.writeLocked([]domain.Wish{}); err != nil {
				return nil, err
			}
			return []domain.Wish{}, nil
		}
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrBackendUnavailable, s.path, err)
	}

	var wishes []domain.Wish
	if err := json.Unmarshal(b, &wishes); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", domain.ErrBackendUnavailable, s.path, err)
	}
	if wishes == nil {
		wishes = []domain.Wish{}
	}
	return wishes, nil
}

func (s *FileStore) writeLocked(wishes []domain.Wish) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("%w: create dir: %v", domain.ErrBackendUnavailable, err)
	}
	b, err := json.MarshalIndent(wishes, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %v", domain.ErrBackendUnavailable, tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("%w: replace %s: %v", domain.ErrBackendUnavailable, s.path, err)
	}
	return nil
}
