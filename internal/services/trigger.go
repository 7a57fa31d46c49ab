package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/giselles-ai/giselle-sub007/internal/giselle"
	"github.com/giselles-ai/giselle-sub007/internal/giselle/ports"
	"github.com/giselles-ai/giselle-sub007/internal/repository"
)

var (
	ErrTriggerDisabled  = errors.New("trigger is disabled")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrEventIgnored means a delivery was accepted but did not match the
	// trigger's event or condition.
	ErrEventIgnored = errors.New("event ignored by trigger")
)

// ScheduleSync keeps a scheduler in step with stored schedule triggers.
type ScheduleSync interface {
	Sync(ctx context.Context, trigger *giselle.FlowTrigger) error
	Remove(triggerID string)
}

// TriggerEvent is what fired a trigger: parameter values for manual,
// app-entry and schedule triggers, a webhook event for GitHub triggers.
type TriggerEvent struct {
	Params map[string]any
	GitHub *giselle.WebhookEvent
}

// TriggerService configures flow triggers and turns their events into acts.
type TriggerService struct {
	repo      repository.TriggerRepository
	vault     ports.Vault
	acts      ports.ActStarter
	scheduler ScheduleSync
}

func NewTriggerService(repo repository.TriggerRepository, vault ports.Vault, acts ports.ActStarter) *TriggerService {
	return &TriggerService{repo: repo, vault: vault, acts: acts}
}

// SetScheduler registers the scheduler notified about schedule triggers.
func (s *TriggerService) SetScheduler(sched ScheduleSync) {
	s.scheduler = sched
}

// ConfigureTrigger validates and stores t, generating an id for a new
// trigger. A GitHub secret is sealed by the vault; an empty secret on an
// update keeps the stored one.
func (s *TriggerService) ConfigureTrigger(ctx context.Context, t *giselle.FlowTrigger) (*giselle.FlowTrigger, error) {
	if err := validateTrigger(t); err != nil {
		return nil, err
	}
	stored := *t
	if stored.ID == "" {
		stored.ID = giselle.GenerateID(giselle.PrefixTrigger)
	}

	if gh := stored.Configuration.GitHub; gh != nil {
		cfg := *gh
		switch {
		case cfg.Secret != "":
			sealed, err := s.vault.Encrypt(cfg.Secret)
			if err != nil {
				return nil, fmt.Errorf("seal webhook secret: %w", err)
			}
			cfg.Secret = sealed
		case t.ID != "":
			prev, err := s.repo.Get(ctx, t.ID)
			if err != nil && !errors.Is(err, giselle.ErrNotFound) {
				return nil, err
			}
			if prev != nil && prev.Configuration.GitHub != nil {
				cfg.Secret = prev.Configuration.GitHub.Secret
			}
		}
		stored.Configuration.GitHub = &cfg
	}

	if err := s.repo.Save(ctx, &stored); err != nil {
		return nil, err
	}
	if s.scheduler != nil {
		if stored.Configuration.Provider == giselle.TriggerSchedule && stored.Enable {
			if err := s.scheduler.Sync(ctx, &stored); err != nil {
				return nil, err
			}
		} else {
			s.scheduler.Remove(stored.ID)
		}
	}
	slog.Info("trigger configured", "trigger_id", stored.ID, "provider", stored.Configuration.Provider, "enable", stored.Enable)
	return &stored, nil
}

func validateTrigger(t *giselle.FlowTrigger) error {
	if t.WorkspaceID == "" || t.NodeID == "" {
		return fmt.Errorf("trigger needs a workspace and a node: %w", giselle.ErrInvalidInput)
	}
	cfg := t.Configuration
	switch cfg.Provider {
	case giselle.TriggerManual, giselle.TriggerAppEntry:
	case giselle.TriggerGitHub:
		if cfg.EventID == "" {
			return fmt.Errorf("github trigger needs an event id: %w", giselle.ErrInvalidInput)
		}
		if cfg.GitHub != nil && cfg.GitHub.Condition != "" {
			if err := compileCondition(cfg.GitHub.Condition); err != nil {
				return fmt.Errorf("%w: %w", giselle.ErrInvalidInput, err)
			}
		}
	case giselle.TriggerSchedule:
		if cfg.Schedule == nil || cfg.Schedule.Cron == "" {
			return fmt.Errorf("schedule trigger needs a cron expression: %w", giselle.ErrInvalidInput)
		}
	default:
		return fmt.Errorf("unknown trigger provider %q: %w", cfg.Provider, giselle.ErrInvalidInput)
	}
	return nil
}

func (s *TriggerService) GetTrigger(ctx context.Context, id string) (*giselle.FlowTrigger, error) {
	return s.repo.Get(ctx, id)
}

func (s *TriggerService) DeleteTrigger(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if s.scheduler != nil {
		s.scheduler.Remove(id)
	}
	return nil
}

func (s *TriggerService) ListTriggers(ctx context.Context, workspaceID string) ([]*giselle.FlowTrigger, error) {
	return s.repo.ListByWorkspace(ctx, workspaceID)
}

// ResolveTrigger builds the entry input for an event on t.
func ResolveTrigger(t *giselle.FlowTrigger, ev TriggerEvent) (giselle.GenerationContextInput, error) {
	cfg := t.Configuration
	if cfg.Provider == giselle.TriggerGitHub {
		if ev.GitHub == nil {
			return giselle.GenerationContextInput{}, fmt.Errorf("github trigger %s fired without an event: %w", t.ID, giselle.ErrInvalidInput)
		}
		return giselle.GenerationContextInput{Type: giselle.InputGitHubWebhookEvent, WebhookEvent: ev.GitHub}, nil
	}

	params := ev.Params
	if cfg.Provider == giselle.TriggerSchedule && cfg.Schedule != nil {
		params = merge(cfg.Schedule.Values, ev.Params)
	}

	in := giselle.GenerationContextInput{Type: giselle.InputParameters, Items: []giselle.ParameterItem{}}
	if len(cfg.Parameters) == 0 {
		names := make([]string, 0, len(params))
		for name := range params {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			in.Items = append(in.Items, giselle.ParameterItem{Name: name, Type: "string", Value: params[name]})
		}
		return in, nil
	}

	var missing []string
	for _, p := range cfg.Parameters {
		v, ok := params[p.Name]
		if !ok {
			if p.Required {
				missing = append(missing, p.Name)
			}
			continue
		}
		in.Items = append(in.Items, giselle.ParameterItem{Name: p.Name, Type: p.Type, Value: v})
	}
	if len(missing) > 0 {
		return giselle.GenerationContextInput{}, fmt.Errorf("missing required parameters %s: %w", strings.Join(missing, ", "), giselle.ErrInvalidInput)
	}
	return in, nil
}

func merge(base, over map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(over))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}

// FireTrigger starts an act from the trigger's node with params.
func (s *TriggerService) FireTrigger(ctx context.Context, triggerID string, params map[string]any) (*giselle.Act, error) {
	t, err := s.repo.Get(ctx, triggerID)
	if err != nil {
		return nil, err
	}
	if !t.Enable {
		return nil, fmt.Errorf("trigger %s: %w", t.ID, ErrTriggerDisabled)
	}
	in, err := ResolveTrigger(t, TriggerEvent{Params: params})
	if err != nil {
		return nil, err
	}
	return s.acts.CreateAndStartAct(ctx, t.WorkspaceID, t.NodeID, []giselle.GenerationContextInput{in})
}

// HandleGitHubEvent verifies and filters one webhook delivery and starts an
// act when the trigger accepts it. Deliveries for other events or failing
// the condition return ErrEventIgnored.
func (s *TriggerService) HandleGitHubEvent(ctx context.Context, triggerID, eventName, signature string, body []byte) (*giselle.Act, error) {
	t, err := s.repo.Get(ctx, triggerID)
	if err != nil {
		return nil, err
	}
	if t.Configuration.Provider != giselle.TriggerGitHub {
		return nil, fmt.Errorf("trigger %s is not a github trigger: %w", t.ID, giselle.ErrInvalidInput)
	}
	if !t.Enable {
		return nil, fmt.Errorf("trigger %s: %w", t.ID, ErrTriggerDisabled)
	}

	gh := t.Configuration.GitHub
	if gh != nil && gh.Secret != "" {
		secret, err := s.vault.Decrypt(gh.Secret)
		if err != nil {
			return nil, fmt.Errorf("open webhook secret: %w", err)
		}
		if !verifySignature(body, secret, signature) {
			return nil, ErrInvalidSignature
		}
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode webhook payload: %w: %w", giselle.ErrInvalidInput, err)
	}
	action, _ := payload["action"].(string)
	ev := &giselle.WebhookEvent{Name: eventName, Action: action, Payload: payload}

	if !matchesEvent(t.Configuration.EventID, ev) {
		return nil, ErrEventIgnored
	}
	if gh != nil && gh.Condition != "" {
		ok, err := evaluateCondition(gh.Condition, ev)
		if err != nil {
			return nil, fmt.Errorf("trigger %s condition: %w", t.ID, err)
		}
		if !ok {
			return nil, ErrEventIgnored
		}
	}
	if gh != nil && gh.Repository != "" && repositoryName(payload) != gh.Repository {
		return nil, ErrEventIgnored
	}

	in, err := ResolveTrigger(t, TriggerEvent{GitHub: ev})
	if err != nil {
		return nil, err
	}
	slog.Info("github event accepted", "trigger_id", t.ID, "event", eventName, "action", action)
	return s.acts.CreateAndStartAct(ctx, t.WorkspaceID, t.NodeID, []giselle.GenerationContextInput{in})
}

// verifySignature checks an X-Hub-Signature-256 value ("sha256=<hex>").
func verifySignature(body []byte, secret, signature string) bool {
	sig, ok := strings.CutPrefix(signature, "sha256=")
	if !ok || sig == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(sig))
}

// matchesEvent accepts "issues" for every issues delivery and
// "issues.opened" only for that action.
func matchesEvent(eventID string, ev *giselle.WebhookEvent) bool {
	name, action, hasAction := strings.Cut(eventID, ".")
	if name != ev.Name {
		return false
	}
	return !hasAction || action == ev.Action
}

func repositoryName(payload map[string]any) string {
	v, _ := lookupPath(payload, "repository.full_name")
	s, _ := v.(string)
	return s
}

func conditionEnv(ev *giselle.WebhookEvent) map[string]any {
	env := map[string]any{"event": "", "action": "", "payload": map[string]any{}}
	if ev != nil {
		env["event"] = ev.Name
		env["action"] = ev.Action
		if ev.Payload != nil {
			env["payload"] = ev.Payload
		}
	}
	return env
}

func compileCondition(condition string) error {
	if _, err := expr.Compile(condition, expr.Env(conditionEnv(nil))); err != nil {
		return fmt.Errorf("compile condition %q: %w", condition, err)
	}
	return nil
}

// evaluateCondition runs condition against the delivery. Non-boolean
// results count as true when they are non-empty.
func evaluateCondition(condition string, ev *giselle.WebhookEvent) (bool, error) {
	env := conditionEnv(ev)
	program, err := expr.Compile(condition, expr.Env(env))
	if err != nil {
		return false, fmt.Errorf("compile condition %q: %w", condition, err)
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("evaluate condition %q: %w", condition, err)
	}
	return isTruthy(result), nil
}

func isTruthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case int:
		return val != 0
	case int64:
		return val != 0
	case float64:
		return val != 0
	}
	return true
}
