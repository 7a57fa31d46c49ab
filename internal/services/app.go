package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/giselles-ai/giselle-sub007/internal/giselle"
	"github.com/giselles-ai/giselle-sub007/internal/giselle/ports"
	"github.com/giselles-ai/giselle-sub007/internal/repository"
)

// AppService exposes workspace entry nodes as runnable apps.
type AppService struct {
	repo repository.AppRepository
	acts ports.ActStarter
}

func NewAppService(repo repository.AppRepository, acts ports.ActStarter) *AppService {
	return &AppService{repo: repo, acts: acts}
}

func (s *AppService) SaveApp(ctx context.Context, app *giselle.App) (*giselle.App, error) {
	if app.WorkspaceID == "" || app.EntryNodeID == "" {
		return nil, fmt.Errorf("app needs a workspace and an entry node: %w", giselle.ErrInvalidInput)
	}
	stored := *app
	if stored.ID == "" {
		stored.ID = giselle.GenerateID(giselle.PrefixApp)
	}
	stored.Parameters = make([]giselle.AppParameter, 0, len(app.Parameters))
	for _, p := range app.Parameters {
		if p.Name == "" {
			return nil, fmt.Errorf("app parameter without a name: %w", giselle.ErrInvalidInput)
		}
		if p.ID == "" {
			p.ID = p.Name
		}
		stored.Parameters = append(stored.Parameters, p)
	}
	if err := s.repo.Save(ctx, &stored); err != nil {
		return nil, err
	}
	return &stored, nil
}

func (s *AppService) GetApp(ctx context.Context, id string) (*giselle.App, error) {
	return s.repo.Get(ctx, id)
}

func (s *AppService) DeleteApp(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

func (s *AppService) ListApps(ctx context.Context, workspaceID string) ([]*giselle.App, error) {
	return s.repo.ListByWorkspace(ctx, workspaceID)
}

// RunApp checks params against the app's parameters and starts an act from
// its entry node. Values for undeclared parameters are dropped.
func (s *AppService) RunApp(ctx context.Context, appID string, params map[string]any) (*giselle.Act, error) {
	app, err := s.repo.Get(ctx, appID)
	if err != nil {
		return nil, err
	}

	in := giselle.GenerationContextInput{Type: giselle.InputParameters, Items: []giselle.ParameterItem{}}
	var missing []string
	for _, p := range app.Parameters {
		v, ok := params[p.Name]
		if !ok || v == nil || v == "" {
			if p.Required {
				missing = append(missing, p.Name)
			}
			continue
		}
		in.Items = append(in.Items, giselle.ParameterItem{Name: p.Name, Type: p.Type, Value: v})
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("app %s: missing required parameters %s: %w", app.ID, strings.Join(missing, ", "), giselle.ErrInvalidInput)
	}

	act, err := s.acts.CreateAndStartAct(ctx, app.WorkspaceID, app.EntryNodeID, []giselle.GenerationContextInput{in})
	if err != nil {
		return nil, err
	}
	slog.Info("app run started", "app_id", app.ID, "act_id", act.ID)
	return act, nil
}
