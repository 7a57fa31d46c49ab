package repository

import (
	"context"

	"github.com/giselles-ai/giselle-sub007/internal/giselle"
	"github.com/giselles-ai/giselle-sub007/internal/schemas"
	"github.com/giselles-ai/giselle-sub007/internal/storage"
)

type WorkspaceRepository interface {
	Save(ctx context.Context, ws *giselle.Workspace) error
	Get(ctx context.Context, id string) (*giselle.Workspace, error)
}

type StorageWorkspaceRepository struct {
	docs document[giselle.Workspace]
}

func NewWorkspaceRepository(s storage.Storage) *StorageWorkspaceRepository {
	return &StorageWorkspaceRepository{
		docs: document[giselle.Workspace]{store: s, schema: schemas.Workspace, kind: "workspace", path: WorkspacePath},
	}
}

func (r *StorageWorkspaceRepository) Save(ctx context.Context, ws *giselle.Workspace) error {
	return r.docs.put(ctx, ws.ID, ws)
}

func (r *StorageWorkspaceRepository) Get(ctx context.Context, id string) (*giselle.Workspace, error) {
	return r.docs.get(ctx, id)
}
