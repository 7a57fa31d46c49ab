package repository

import (
	"context"

	"github.com/giselles-ai/giselle-sub007/internal/giselle"
	"github.com/giselles-ai/giselle-sub007/internal/schemas"
	"github.com/giselles-ai/giselle-sub007/internal/storage"
)

// TriggerRepository abstracts persistence for flow triggers.
type TriggerRepository interface {
	Save(ctx context.Context, trigger *giselle.FlowTrigger) error
	Get(ctx context.Context, id string) (*giselle.FlowTrigger, error)
	Delete(ctx context.Context, id string) error
	ListByWorkspace(ctx context.Context, workspaceID string) ([]*giselle.FlowTrigger, error)
	ListAll(ctx context.Context) ([]*giselle.FlowTrigger, error)
}

type StorageTriggerRepository struct {
	store storage.Storage
	docs  document[giselle.FlowTrigger]
}

func NewTriggerRepository(s storage.Storage) *StorageTriggerRepository {
	return &StorageTriggerRepository{
		store: s,
		docs: document[giselle.FlowTrigger]{
			store: s, schema: schemas.FlowTrigger, kind: "flow trigger", path: TriggerPath,
		},
	}
}

func (r *StorageTriggerRepository) Save(ctx context.Context, trigger *giselle.FlowTrigger) error {
	if err := r.docs.put(ctx, trigger.ID, trigger); err != nil {
		return err
	}
	if err := AppendIndex(ctx, r.store, WorkspaceTriggersPath(trigger.WorkspaceID), trigger.ID); err != nil {
		return err
	}
	return AppendIndex(ctx, r.store, AllTriggersPath, trigger.ID)
}

func (r *StorageTriggerRepository) Get(ctx context.Context, id string) (*giselle.FlowTrigger, error) {
	return r.docs.get(ctx, id)
}

// Delete removes the trigger document. Index entries stay behind and are
// skipped by readers.
func (r *StorageTriggerRepository) Delete(ctx context.Context, id string) error {
	ok, err := r.docs.exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return giselle.NotFound("flow trigger", id)
	}
	return r.docs.remove(ctx, id)
}

func (r *StorageTriggerRepository) ListByWorkspace(ctx context.Context, workspaceID string) ([]*giselle.FlowTrigger, error) {
	return resolveIndex(ctx, r.store, WorkspaceTriggersPath(workspaceID), r.Get)
}

func (r *StorageTriggerRepository) ListAll(ctx context.Context) ([]*giselle.FlowTrigger, error) {
	return resolveIndex(ctx, r.store, AllTriggersPath, r.Get)
}
