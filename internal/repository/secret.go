package repository

import (
	"context"

	"github.com/giselles-ai/giselle-sub007/internal/giselle"
	"github.com/giselles-ai/giselle-sub007/internal/schemas"
	"github.com/giselles-ai/giselle-sub007/internal/storage"
)

type SecretRepository interface {
	Create(ctx context.Context, secret *giselle.Secret) error
	Get(ctx context.Context, id string) (*giselle.Secret, error)
	Delete(ctx context.Context, id string) error
	ListByWorkspace(ctx context.Context, workspaceID string) ([]*giselle.Secret, error)
}

type StorageSecretRepository struct {
	store storage.Storage
	docs  document[giselle.Secret]
}

func NewSecretRepository(s storage.Storage) *StorageSecretRepository {
	return &StorageSecretRepository{
		store: s,
		docs:  document[giselle.Secret]{store: s, schema: schemas.Secret, kind: "secret", path: SecretPath},
	}
}

func (r *StorageSecretRepository) Create(ctx context.Context, secret *giselle.Secret) error {
	if err := r.docs.put(ctx, secret.ID, secret); err != nil {
		return err
	}
	return AppendIndex(ctx, r.store, WorkspaceSecretsPath(secret.WorkspaceID), secret.ID)
}

func (r *StorageSecretRepository) Get(ctx context.Context, id string) (*giselle.Secret, error) {
	return r.docs.get(ctx, id)
}

func (r *StorageSecretRepository) Delete(ctx context.Context, id string) error {
	ok, err := r.docs.exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return giselle.NotFound("secret", id)
	}
	return r.docs.remove(ctx, id)
}

func (r *StorageSecretRepository) ListByWorkspace(ctx context.Context, workspaceID string) ([]*giselle.Secret, error) {
	return resolveIndex(ctx, r.store, WorkspaceSecretsPath(workspaceID), r.Get)
}
