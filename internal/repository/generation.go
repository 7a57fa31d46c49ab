package repository

import (
	"context"
	"errors"

	"github.com/giselles-ai/giselle-sub007/internal/giselle"
	"github.com/giselles-ai/giselle-sub007/internal/schemas"
	"github.com/giselles-ai/giselle-sub007/internal/storage"
)

// GenerationRepository persists generations and their message chunk logs.
type GenerationRepository interface {
	Get(ctx context.Context, id string) (*giselle.Generation, error)
	Save(ctx context.Context, gen *giselle.Generation) error
	IndexByAct(ctx context.Context, actID, generationID string) error
	ListByAct(ctx context.Context, actID string) ([]*giselle.Generation, error)
	AppendChunks(ctx context.Context, id string, data []byte) error
	ChunksLength(ctx context.Context, id string) (int64, error)
	ReadChunks(ctx context.Context, id string, offset, length int64) ([]byte, error)
	SaveImage(ctx context.Context, id, filename string, data []byte) (string, error)
}

type StorageGenerationRepository struct {
	store storage.Storage
	docs  document[giselle.Generation]
}

func NewGenerationRepository(s storage.Storage) *StorageGenerationRepository {
	return &StorageGenerationRepository{
		store: s,
		docs: document[giselle.Generation]{
			store: s, schema: schemas.Generation, kind: "generation", path: GenerationPath,
		},
	}
}

func (r *StorageGenerationRepository) Get(ctx context.Context, id string) (*giselle.Generation, error) {
	return r.docs.get(ctx, id)
}

func (r *StorageGenerationRepository) Save(ctx context.Context, gen *giselle.Generation) error {
	return r.docs.put(ctx, gen.ID, gen)
}

func (r *StorageGenerationRepository) IndexByAct(ctx context.Context, actID, generationID string) error {
	return AppendIndex(ctx, r.store, GenerationsByActPath(actID), generationID)
}

func (r *StorageGenerationRepository) ListByAct(ctx context.Context, actID string) ([]*giselle.Generation, error) {
	return resolveIndex(ctx, r.store, GenerationsByActPath(actID), r.Get)
}

func (r *StorageGenerationRepository) AppendChunks(ctx context.Context, id string, data []byte) error {
	return r.store.AppendBlob(ctx, GenerationChunksPath(id), data)
}

// ChunksLength is 0 for a generation that has not produced any chunk yet.
func (r *StorageGenerationRepository) ChunksLength(ctx context.Context, id string) (int64, error) {
	n, err := r.store.ContentLength(ctx, GenerationChunksPath(id))
	if errors.Is(err, giselle.ErrNotFound) {
		return 0, nil
	}
	return n, err
}

func (r *StorageGenerationRepository) ReadChunks(ctx context.Context, id string, offset, length int64) ([]byte, error) {
	data, err := r.store.GetBlob(ctx, GenerationChunksPath(id), &storage.Range{Offset: offset, Length: length})
	if errors.Is(err, giselle.ErrNotFound) {
		return nil, nil
	}
	return data, err
}

// SaveImage stores generated image bytes and returns their storage path.
func (r *StorageGenerationRepository) SaveImage(ctx context.Context, id, filename string, data []byte) (string, error) {
	path := GenerationImagePath(id, filename)
	if err := r.store.SetBlob(ctx, path, data); err != nil {
		return "", err
	}
	return path, nil
}
