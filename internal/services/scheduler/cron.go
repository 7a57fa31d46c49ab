package scheduler

import (
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/giselles-ai/giselle-sub007/internal/giselle"
)

// parseCronExpr tries 6-field (with seconds) then 5-field (standard) parsing.
// A non-UTC timezone is applied via the CRON_TZ= prefix.
func parseCronExpr(expr string, timezone string) (cron.Schedule, error) {
	if timezone != "" && timezone != "UTC" {
		expr = "CRON_TZ=" + timezone + " " + expr
	}
	parser6 := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	sched, err := parser6.Parse(expr)
	if err == nil {
		return sched, nil
	}
	parser5 := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return parser5.Parse(expr)
}

// register replaces any entry for the trigger with one for its current
// cron expression.
func (s *Service) register(trigger *giselle.FlowTrigger) error {
	cfg := trigger.Configuration.Schedule
	if cfg == nil {
		return fmt.Errorf("trigger %s has no schedule: %w", trigger.ID, giselle.ErrInvalidInput)
	}
	sched, err := parseCronExpr(cfg.Cron, cfg.Timezone)
	if err != nil {
		return fmt.Errorf("trigger %s: cron %q: %w: %w", trigger.ID, cfg.Cron, giselle.ErrInvalidInput, err)
	}

	id := trigger.ID
	s.mu.Lock()
	if prev, ok := s.entryMap[id]; ok {
		s.cron.Remove(prev)
	}
	s.entryMap[id] = s.cron.Schedule(sched, cron.FuncJob(func() { s.fire(s.baseCtx(), id) }))
	s.mu.Unlock()

	slog.Info("scheduler: registered cron job", "trigger_id", id, "workspace_id", trigger.WorkspaceID, "cron", cfg.Cron)
	return nil
}
