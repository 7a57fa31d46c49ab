package repository

import (
	"context"

	"github.com/giselles-ai/giselle-sub007/internal/giselle"
	"github.com/giselles-ai/giselle-sub007/internal/schemas"
	"github.com/giselles-ai/giselle-sub007/internal/storage"
)

type AppRepository interface {
	Save(ctx context.Context, app *giselle.App) error
	Get(ctx context.Context, id string) (*giselle.App, error)
	Delete(ctx context.Context, id string) error
	ListByWorkspace(ctx context.Context, workspaceID string) ([]*giselle.App, error)
}

type StorageAppRepository struct {
	store storage.Storage
	docs  document[giselle.App]
}

func NewAppRepository(s storage.Storage) *StorageAppRepository {
	return &StorageAppRepository{
		store: s,
		docs:  document[giselle.App]{store: s, schema: schemas.App, kind: "app", path: AppPath},
	}
}

func (r *StorageAppRepository) Save(ctx context.Context, app *giselle.App) error {
	if err := r.docs.put(ctx, app.ID, app); err != nil {
		return err
	}
	return AppendIndex(ctx, r.store, WorkspaceAppsPath(app.WorkspaceID), app.ID)
}

func (r *StorageAppRepository) Get(ctx context.Context, id string) (*giselle.App, error) {
	return r.docs.get(ctx, id)
}

func (r *StorageAppRepository) Delete(ctx context.Context, id string) error {
	ok, err := r.docs.exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return giselle.NotFound("app", id)
	}
	return r.docs.remove(ctx, id)
}

func (r *StorageAppRepository) ListByWorkspace(ctx context.Context, workspaceID string) ([]*giselle.App, error) {
	return resolveIndex(ctx, r.store, WorkspaceAppsPath(workspaceID), r.Get)
}
