package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giselles-ai/giselle-sub007/internal/crypto"
	"github.com/giselles-ai/giselle-sub007/internal/giselle"
	"github.com/giselles-ai/giselle-sub007/internal/repository"
	"github.com/giselles-ai/giselle-sub007/internal/storage"
)

type startCall struct {
	workspaceID string
	nodeID      string
	inputs      []giselle.GenerationContextInput
}

// fakeStarter records acts it was asked to start.
type fakeStarter struct {
	mu    sync.Mutex
	calls []startCall
}

func (f *fakeStarter) CreateAndStartAct(_ context.Context, workspaceID, nodeID string, inputs []giselle.GenerationContextInput) (*giselle.Act, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, startCall{workspaceID, nodeID, inputs})
	return &giselle.Act{ID: giselle.GenerateID(giselle.PrefixAct), WorkspaceID: workspaceID, EntryNodeID: nodeID}, nil
}

func (f *fakeStarter) started() []startCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]startCall(nil), f.calls...)
}

// fakeSchedule records scheduler notifications.
type fakeSchedule struct {
	synced  []string
	removed []string
}

func (f *fakeSchedule) Sync(_ context.Context, t *giselle.FlowTrigger) error {
	f.synced = append(f.synced, t.ID)
	return nil
}

func (f *fakeSchedule) Remove(id string) { f.removed = append(f.removed, id) }

func testVault(t *testing.T) *crypto.Vault {
	t.Helper()
	v, err := crypto.NewVault(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	return v
}

func newTriggerService(t *testing.T) (*TriggerService, *fakeStarter, *repository.StorageTriggerRepository) {
	t.Helper()
	repo := repository.NewTriggerRepository(storage.New(storage.NewMemoryDriver()))
	starter := &fakeStarter{}
	return NewTriggerService(repo, testVault(t), starter), starter, repo
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func githubTrigger(condition string) *giselle.FlowTrigger {
	return &giselle.FlowTrigger{
		WorkspaceID: "wrks-test",
		NodeID:      "nd-trigger",
		Enable:      true,
		Configuration: giselle.TriggerConfiguration{
			Provider: giselle.TriggerGitHub,
			EventID:  "issues.opened",
			GitHub:   &giselle.GitHubTriggerConfig{Secret: "s3cret", Condition: condition},
		},
	}
}

func TestConfigureTrigger_SealsGitHubSecret(t *testing.T) {
	ctx := context.Background()
	svc, _, repo := newTriggerService(t)

	saved, err := svc.ConfigureTrigger(ctx, githubTrigger(""))
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)

	stored, err := repo.Get(ctx, saved.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", stored.Configuration.GitHub.Secret)

	// an update without a secret keeps the sealed one
	update := *stored
	update.Configuration.GitHub = &giselle.GitHubTriggerConfig{}
	_, err = svc.ConfigureTrigger(ctx, &update)
	require.NoError(t, err)
	again, err := repo.Get(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.Configuration.GitHub.Secret, again.Configuration.GitHub.Secret)
}

func TestConfigureTrigger_Validation(t *testing.T) {
	svc, _, _ := newTriggerService(t)
	cases := map[string]*giselle.FlowTrigger{
		"no node":       {WorkspaceID: "wrks-test", Configuration: giselle.TriggerConfiguration{Provider: giselle.TriggerManual}},
		"bad provider":  {WorkspaceID: "wrks-test", NodeID: "nd-1", Configuration: giselle.TriggerConfiguration{Provider: "ftp"}},
		"no event":      {WorkspaceID: "wrks-test", NodeID: "nd-1", Configuration: giselle.TriggerConfiguration{Provider: giselle.TriggerGitHub}},
		"no cron":       {WorkspaceID: "wrks-test", NodeID: "nd-1", Configuration: giselle.TriggerConfiguration{Provider: giselle.TriggerSchedule}},
		"bad condition": githubTrigger(`action ==`),
	}
	for name, trig := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ConfigureTrigger(context.Background(), trig)
			assert.True(t, errors.Is(err, giselle.ErrInvalidInput), "got %v", err)
		})
	}
}

func TestConfigureTrigger_NotifiesScheduler(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTriggerService(t)
	sched := &fakeSchedule{}
	svc.SetScheduler(sched)

	trig := &giselle.FlowTrigger{
		WorkspaceID: "wrks-test",
		NodeID:      "nd-trigger",
		Enable:      true,
		Configuration: giselle.TriggerConfiguration{
			Provider: giselle.TriggerSchedule,
			Schedule: &giselle.ScheduleConfig{Cron: "*/5 * * * *"},
		},
	}
	saved, err := svc.ConfigureTrigger(ctx, trig)
	require.NoError(t, err)
	assert.Equal(t, []string{saved.ID}, sched.synced)

	require.NoError(t, svc.DeleteTrigger(ctx, saved.ID))
	assert.Equal(t, []string{saved.ID}, sched.removed)
}

func TestResolveTrigger(t *testing.T) {
	manual := &giselle.FlowTrigger{Configuration: giselle.TriggerConfiguration{
		Provider: giselle.TriggerManual,
		Parameters: []giselle.TriggerParameter{
			{Name: "topic", Type: "string", Required: true},
			{Name: "tone", Type: "string"},
		},
	}}

	in, err := ResolveTrigger(manual, TriggerEvent{Params: map[string]any{"topic": "otters", "extra": 1}})
	require.NoError(t, err)
	assert.Equal(t, giselle.InputParameters, in.Type)
	assert.Equal(t, []giselle.ParameterItem{{Name: "topic", Type: "string", Value: "otters"}}, in.Items)

	_, err = ResolveTrigger(manual, TriggerEvent{Params: map[string]any{"tone": "dry"}})
	assert.True(t, errors.Is(err, giselle.ErrInvalidInput))

	schedule := &giselle.FlowTrigger{Configuration: giselle.TriggerConfiguration{
		Provider: giselle.TriggerSchedule,
		Schedule: &giselle.ScheduleConfig{Cron: "@daily", Values: map[string]any{"b": "2", "a": "1"}},
	}}
	in, err = ResolveTrigger(schedule, TriggerEvent{})
	require.NoError(t, err)
	require.Len(t, in.Items, 2)
	assert.Equal(t, "a", in.Items[0].Name)

	gh := githubTrigger("")
	ev := &giselle.WebhookEvent{Name: "issues", Action: "opened"}
	in, err = ResolveTrigger(gh, TriggerEvent{GitHub: ev})
	require.NoError(t, err)
	assert.Equal(t, giselle.InputGitHubWebhookEvent, in.Type)
	assert.Same(t, ev, in.WebhookEvent)
}

func TestHandleGitHubEvent(t *testing.T) {
	ctx := context.Background()
	svc, starter, _ := newTriggerService(t)
	saved, err := svc.ConfigureTrigger(ctx, githubTrigger(`payload.issue.title contains "bug"`))
	require.NoError(t, err)

	body := []byte(`{"action":"opened","issue":{"title":"a bug in login"}}`)

	t.Run("bad signature", func(t *testing.T) {
		_, err := svc.HandleGitHubEvent(ctx, saved.ID, "issues", sign("wrong", body), body)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("other event", func(t *testing.T) {
		_, err := svc.HandleGitHubEvent(ctx, saved.ID, "pull_request", sign("s3cret", body), body)
		assert.ErrorIs(t, err, ErrEventIgnored)
	})

	t.Run("condition false", func(t *testing.T) {
		other := []byte(`{"action":"opened","issue":{"title":"feature request"}}`)
		_, err := svc.HandleGitHubEvent(ctx, saved.ID, "issues", sign("s3cret", other), other)
		assert.ErrorIs(t, err, ErrEventIgnored)
	})

	t.Run("accepted", func(t *testing.T) {
		act, err := svc.HandleGitHubEvent(ctx, saved.ID, "issues", sign("s3cret", body), body)
		require.NoError(t, err)
		assert.Equal(t, "nd-trigger", act.EntryNodeID)
	})

	calls := starter.started()
	require.Len(t, calls, 1)
	require.Len(t, calls[0].inputs, 1)
	in := calls[0].inputs[0]
	assert.Equal(t, giselle.InputGitHubWebhookEvent, in.Type)
	assert.Equal(t, "opened", in.WebhookEvent.Action)
}

func TestFireTrigger(t *testing.T) {
	ctx := context.Background()
	svc, starter, _ := newTriggerService(t)

	trig := &giselle.FlowTrigger{
		WorkspaceID:   "wrks-test",
		NodeID:        "nd-trigger",
		Configuration: giselle.TriggerConfiguration{Provider: giselle.TriggerManual},
	}
	disabled, err := svc.ConfigureTrigger(ctx, trig)
	require.NoError(t, err)
	_, err = svc.FireTrigger(ctx, disabled.ID, nil)
	assert.ErrorIs(t, err, ErrTriggerDisabled)

	trig.ID = disabled.ID
	trig.Enable = true
	_, err = svc.ConfigureTrigger(ctx, trig)
	require.NoError(t, err)
	_, err = svc.FireTrigger(ctx, disabled.ID, map[string]any{"topic": "otters"})
	require.NoError(t, err)

	calls := starter.started()
	require.Len(t, calls, 1)
	assert.Equal(t, "wrks-test", calls[0].workspaceID)
	assert.Equal(t, []giselle.ParameterItem{{Name: "topic", Type: "string", Value: "otters"}}, calls[0].inputs[0].Items)
}

func TestMatchesEvent(t *testing.T) {
	ev := &giselle.WebhookEvent{Name: "issues", Action: "closed"}
	assert.True(t, matchesEvent("issues", ev))
	assert.True(t, matchesEvent("issues.closed", ev))
	assert.False(t, matchesEvent("issues.opened", ev))
	assert.False(t, matchesEvent("push", ev))
}
