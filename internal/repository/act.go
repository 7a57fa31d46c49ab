package repository

import (
	"context"

	"github.com/giselles-ai/giselle-sub007/internal/giselle"
	"github.com/giselles-ai/giselle-sub007/internal/schemas"
	"github.com/giselles-ai/giselle-sub007/internal/storage"
)

// ActRepository persists acts and the per-workspace act index.
type ActRepository interface {
	Create(ctx context.Context, act *giselle.Act) error
	Get(ctx context.Context, id string) (*giselle.Act, error)
	Update(ctx context.Context, act *giselle.Act) error
	ListByWorkspace(ctx context.Context, workspaceID string) ([]*giselle.Act, error)
}

type StorageActRepository struct {
	store storage.Storage
	docs  document[giselle.Act]
}

func NewActRepository(s storage.Storage) *StorageActRepository {
	return &StorageActRepository{
		store: s,
		docs:  document[giselle.Act]{store: s, schema: schemas.Act, kind: "act", path: ActPath},
	}
}

// Create writes the act and then indexes it under its workspace.
func (r *StorageActRepository) Create(ctx context.Context, act *giselle.Act) error {
	if err := r.docs.put(ctx, act.ID, act); err != nil {
		return err
	}
	return AppendIndex(ctx, r.store, WorkspaceActsPath(act.WorkspaceID), act.ID)
}

func (r *StorageActRepository) Get(ctx context.Context, id string) (*giselle.Act, error) {
	return r.docs.get(ctx, id)
}

func (r *StorageActRepository) Update(ctx context.Context, act *giselle.Act) error {
	return r.docs.put(ctx, act.ID, act)
}

func (r *StorageActRepository) ListByWorkspace(ctx context.Context, workspaceID string) ([]*giselle.Act, error) {
	return resolveIndex(ctx, r.store, WorkspaceActsPath(workspaceID), r.Get)
}
