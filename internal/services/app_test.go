package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giselles-ai/giselle-sub007/internal/giselle"
	"github.com/giselles-ai/giselle-sub007/internal/repository"
	"github.com/giselles-ai/giselle-sub007/internal/storage"
)

func TestAppService_RunAppValidatesParameters(t *testing.T) {
	ctx := context.Background()
	starter := &fakeStarter{}
	svc := NewAppService(repository.NewAppRepository(storage.New(storage.NewMemoryDriver())), starter)

	app, err := svc.SaveApp(ctx, &giselle.App{
		WorkspaceID: "wrks-test",
		EntryNodeID: "nd-entry",
		Name:        "Summarizer",
		Parameters: []giselle.AppParameter{
			{Name: "url", Type: "string", Required: true},
			{Name: "length", Type: "number"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "url", app.Parameters[0].ID)

	_, err = svc.RunApp(ctx, app.ID, map[string]any{"length": 3})
	assert.True(t, errors.Is(err, giselle.ErrInvalidInput))
	assert.Empty(t, starter.started())

	act, err := svc.RunApp(ctx, app.ID, map[string]any{"url": "https://example.com", "ignored": true})
	require.NoError(t, err)
	assert.Equal(t, "nd-entry", act.EntryNodeID)

	calls := starter.started()
	require.Len(t, calls, 1)
	assert.Equal(t, []giselle.ParameterItem{{Name: "url", Type: "string", Value: "https://example.com"}}, calls[0].inputs[0].Items)
}

func TestAppService_CRUD(t *testing.T) {
	ctx := context.Background()
	svc := NewAppService(repository.NewAppRepository(storage.New(storage.NewMemoryDriver())), &fakeStarter{})

	_, err := svc.SaveApp(ctx, &giselle.App{Name: "no workspace"})
	assert.True(t, errors.Is(err, giselle.ErrInvalidInput))

	app, err := svc.SaveApp(ctx, &giselle.App{WorkspaceID: "wrks-test", EntryNodeID: "nd-entry", Name: "A"})
	require.NoError(t, err)

	apps, err := svc.ListApps(ctx, "wrks-test")
	require.NoError(t, err)
	require.Len(t, apps, 1)

	require.NoError(t, svc.DeleteApp(ctx, app.ID))
	_, err = svc.GetApp(ctx, app.ID)
	assert.True(t, errors.Is(err, giselle.ErrNotFound))
	assert.True(t, errors.Is(svc.DeleteApp(ctx, app.ID), giselle.ErrNotFound))
}

func TestSecretService(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewSecretRepository(storage.New(storage.NewMemoryDriver()))
	svc := NewSecretService(repo, testVault(t))

	added, err := svc.AddSecret(ctx, "wrks-test", "github token", "ghp_123")
	require.NoError(t, err)
	assert.Empty(t, added.Value)

	stored, err := repo.Get(ctx, added.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "ghp_123", stored.Value)

	plain, err := svc.RevealSecret(ctx, added.ID)
	require.NoError(t, err)
	assert.Equal(t, "ghp_123", plain)

	listed, err := svc.ListSecrets(ctx, "wrks-test")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "github token", listed[0].Label)
	assert.Empty(t, listed[0].Value)

	require.NoError(t, svc.DeleteSecret(ctx, added.ID))
	listed, err = svc.ListSecrets(ctx, "wrks-test")
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestWorkspaceService_RejectsCycles(t *testing.T) {
	ctx := context.Background()
	svc := NewWorkspaceService(repository.NewWorkspaceRepository(storage.New(storage.NewMemoryDriver())))

	a, b := genNode("nd-a", "x"), genNode("nd-b", "y")
	a.Outputs = []giselle.Output{{ID: "otp-text"}}
	cyclic := &giselle.Workspace{
		ID:    "wrks-cycle",
		Nodes: []giselle.Node{a, b},
		Connections: []giselle.Connection{
			giselle.Connect("cnnc-1", a, "otp-text", b, "in-1"),
			giselle.Connect("cnnc-2", b, "otp-text", a, "in-1"),
		},
	}
	_, err := svc.SaveWorkspace(ctx, cyclic)
	var cycle *giselle.GraphCycleError
	assert.True(t, errors.As(err, &cycle))

	saved, err := svc.SaveWorkspace(ctx, chainWorkspace("x"))
	require.NoError(t, err)
	assert.False(t, saved.UpdatedAt.IsZero())

	empty, err := svc.SaveWorkspace(ctx, &giselle.Workspace{ID: "wrks-empty"})
	require.NoError(t, err)
	assert.NotNil(t, empty.Nodes)

	got, err := svc.GetWorkspace(ctx, "wrks-test")
	require.NoError(t, err)
	assert.Len(t, got.Nodes, 3)
}
