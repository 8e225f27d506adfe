package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"path"

	"github.com/mkraft/scrumdeck/internal/store"
	"github.com/mkraft/scrumdeck/internal/stored"
)

// ErrRoomCode rejects codes that are unsafe to embed in a storage
// path. Invalid input is refused, never sanitized.
var ErrRoomCode = errors.New("persist: invalid room code")

// Repository maps room codes onto JSON objects in the object store.
type Repository struct {
	store   store.ObjectStore
	baseDir string
}

func NewRepository(s store.ObjectStore, baseDir string) *Repository {
	return &Repository{store: s, baseDir: baseDir}
}

func (r *Repository) objectPath(code string) (string, error) {
	if !store.ValidCode(code) {
		return "", fmt.Errorf("%w: %q", ErrRoomCode, code)
	}
	return path.Join(r.baseDir, code+".json"), nil
}

// Load returns the stored room for a code, or nil when none exists.
// Absence is a normal state, not an error.
func (r *Repository) Load(code string) (*stored.Room, error) {
	p, err := r.objectPath(code)
	if err != nil {
		return nil, err
	}

	data, err := r.store.Get(p)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", code, err)
	}

	var room stored.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, fmt.Errorf("decode %s: %w", code, err)
	}
	return &room, nil
}

// Save writes the room snapshot, creating or replacing atomically.
func (r *Repository) Save(room *stored.Room) error {
	p, err := r.objectPath(room.Code)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(room, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", room.Code, err)
	}
	if err := r.store.Put(p, data); err != nil {
		return fmt.Errorf("save %s: %w", room.Code, err)
	}
	return nil
}

func (r *Repository) Exists(code string) (bool, error) {
	p, err := r.objectPath(code)
	if err != nil {
		return false, err
	}
	return r.store.Exists(p)
}

// Delete removes the stored room. store.ErrNotFound passes through for
// callers that require existence.
func (r *Repository) Delete(code string) error {
	p, err := r.objectPath(code)
	if err != nil {
		return err
	}
	return r.store.Delete(p)
}
