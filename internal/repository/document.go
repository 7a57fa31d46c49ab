package repository

import (
	"context"
	"errors"

	"github.com/giselles-ai/giselle-sub007/internal/datamod"
	"github.com/giselles-ai/giselle-sub007/internal/giselle"
	"github.com/giselles-ai/giselle-sub007/internal/storage"
)

// document binds one entity kind to its storage key and schema.
type document[T any] struct {
	store  storage.Storage
	schema *datamod.Schema
	kind   string
	path   func(id string) string
}

func (d document[T]) get(ctx context.Context, id string) (*T, error) {
	var v T
	if err := d.store.GetJSON(ctx, d.path(id), d.schema, &v); err != nil {
		if errors.Is(err, giselle.ErrNotFound) {
			return nil, giselle.NotFound(d.kind, id)
		}
		return nil, err
	}
	return &v, nil
}

func (d document[T]) put(ctx context.Context, id string, v *T) error {
	return d.store.SetJSON(ctx, d.path(id), v, d.schema)
}

func (d document[T]) exists(ctx context.Context, id string) (bool, error) {
	return d.store.Exists(ctx, d.path(id))
}

func (d document[T]) remove(ctx context.Context, id string) error {
	return d.store.Remove(ctx, d.path(id))
}
