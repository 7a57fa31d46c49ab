package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/giselles-ai/giselle-sub007/internal/dag"
	"github.com/giselles-ai/giselle-sub007/internal/giselle"
	"github.com/giselles-ai/giselle-sub007/internal/repository"
)

// WorkspaceService stores workspace graphs. A graph is only accepted when
// it compiles.
type WorkspaceService struct {
	repo repository.WorkspaceRepository
}

func NewWorkspaceService(repo repository.WorkspaceRepository) *WorkspaceService {
	return &WorkspaceService{repo: repo}
}

// SaveWorkspace validates the graph and stores it. A graph without any
// operation node is still saved.
func (s *WorkspaceService) SaveWorkspace(ctx context.Context, ws *giselle.Workspace) (*giselle.Workspace, error) {
	if ws.ID == "" {
		return nil, fmt.Errorf("workspace needs an id: %w", giselle.ErrInvalidInput)
	}
	if _, err := dag.Compile("", ws.Nodes, ws.Connections); err != nil && !errors.Is(err, giselle.ErrNoWorkflow) {
		return nil, err
	}
	stored := *ws
	if stored.Nodes == nil {
		stored.Nodes = []giselle.Node{}
	}
	if stored.Connections == nil {
		stored.Connections = []giselle.Connection{}
	}
	stored.UpdatedAt = time.Now()
	if err := s.repo.Save(ctx, &stored); err != nil {
		return nil, err
	}
	return &stored, nil
}

func (s *WorkspaceService) GetWorkspace(ctx context.Context, id string) (*giselle.Workspace, error) {
	return s.repo.Get(ctx, id)
}
