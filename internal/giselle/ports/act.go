package ports

import (
	"context"

	"github.com/giselles-ai/giselle-sub007/internal/giselle"
)

// ActStarter creates and launches acts. Trigger, app and scheduler code
// depend on this rather than on *services.ActService.
type ActStarter interface {
	CreateAndStartAct(ctx context.Context, workspaceID, nodeID string, inputs []giselle.GenerationContextInput) (*giselle.Act, error)
}

// ActReader is the read side used by live status subscribers.
type ActReader interface {
	GetAct(ctx context.Context, actID string) (*giselle.Act, error)
}
