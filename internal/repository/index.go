package repository

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/giselles-ai/giselle-sub007/internal/datamod"
	"github.com/giselles-ai/giselle-sub007/internal/giselle"
	"github.com/giselles-ai/giselle-sub007/internal/schemas"
	"github.com/giselles-ai/giselle-sub007/internal/storage"
)

// Index files are append-only JSON arrays of ids. They may reference
// entities that were deleted since; readers skip those.

var indexLocks sync.Map // path -> *sync.Mutex

func lockIndex(path string) func() {
	m, _ := indexLocks.LoadOrStore(path, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// ReadIndex returns the ids at path. A missing index is empty.
func ReadIndex(ctx context.Context, s storage.Storage, path string) ([]string, error) {
	var ids []string
	err := s.GetJSON(ctx, path, schemas.Index, &ids)
	if errors.Is(err, giselle.ErrNotFound) {
		return nil, nil
	}
	return ids, err
}

// AppendIndex adds id to the index at path unless it is already there.
// Appends within this process are serialized per path.
func AppendIndex(ctx context.Context, s storage.Storage, path, id string) error {
	unlock := lockIndex(path)
	defer unlock()

	ids, err := ReadIndex(ctx, s, path)
	if err != nil {
		return err
	}
	if slices.Contains(ids, id) {
		return nil
	}
	return s.SetJSON(ctx, path, append(ids, id), schemas.Index)
}

// resolveIndex loads every entity listed at path, skipping ids whose
// target no longer exists or cannot be read back as a valid document.
func resolveIndex[T any](ctx context.Context, s storage.Storage, path string, load func(context.Context, string) (*T, error)) ([]*T, error) {
	ids, err := ReadIndex(ctx, s, path)
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(ids))
	for _, id := range ids {
		v, err := load(ctx, id)
		if errors.Is(err, giselle.ErrNotFound) {
			slog.Warn("index entry has no target, skipping", "index", path, "id", id)
			continue
		}
		if isCorrupt(err) {
			slog.Warn("index entry is unreadable, skipping", "index", path, "id", id, "err", err)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// isCorrupt reports a document that fails schema validation after repair
// or is not JSON at all.
func isCorrupt(err error) bool {
	var invalid *datamod.ValidationError
	var syntax *json.SyntaxError
	return errors.As(err, &invalid) || errors.As(err, &syntax)
}
