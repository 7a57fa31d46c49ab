// Package scheduler fires schedule triggers on their cron expressions.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/giselles-ai/giselle-sub007/internal/giselle"
	"github.com/giselles-ai/giselle-sub007/internal/giselle/ports"
	"github.com/giselles-ai/giselle-sub007/internal/repository"
	"github.com/giselles-ai/giselle-sub007/internal/services"
)

var _ services.ScheduleSync = (*Service)(nil)

// Service wraps robfig/cron. Each enabled schedule trigger owns one cron
// entry; a firing reloads the trigger and starts an act from its node.
type Service struct {
	cron     *cron.Cron
	triggers repository.TriggerRepository
	acts     ports.ActStarter
	entryMap map[string]cron.EntryID // trigger ID -> cron entry
	mu       sync.RWMutex
	ctx      context.Context
}

func New(triggers repository.TriggerRepository, acts ports.ActStarter) *Service {
	return &Service{
		cron:     cron.New(cron.WithSeconds()),
		triggers: triggers,
		acts:     acts,
		entryMap: make(map[string]cron.EntryID),
	}
}

// Start registers every enabled schedule trigger and starts the cron loop.
// ctx is the parent of every scheduled firing.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	triggers, err := s.triggers.ListAll(ctx)
	if err != nil {
		return err
	}
	loaded := 0
	for _, t := range triggers {
		if !isActiveSchedule(t) {
			continue
		}
		if err := s.register(t); err != nil {
			slog.Warn("scheduler: failed to register trigger", "trigger_id", t.ID, "err", err)
			continue
		}
		loaded++
	}
	s.cron.Start()
	slog.Info("scheduler: started", "schedules", loaded)
	return nil
}

// Stop halts the cron loop and waits for running firings.
func (s *Service) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("scheduler: stopped")
}

// Sync brings the trigger's cron entry in line with its configuration.
func (s *Service) Sync(_ context.Context, trigger *giselle.FlowTrigger) error {
	if !isActiveSchedule(trigger) {
		s.Remove(trigger.ID)
		return nil
	}
	return s.register(trigger)
}

// Remove drops the trigger's cron entry, if any.
func (s *Service) Remove(triggerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entryID, ok := s.entryMap[triggerID]; ok {
		s.cron.Remove(entryID)
		delete(s.entryMap, triggerID)
		slog.Info("scheduler: removed cron job", "trigger_id", triggerID)
	}
}

// Next reports when the trigger fires next. It is false for unknown
// triggers and before Start.
func (s *Service) Next(triggerID string) (time.Time, bool) {
	s.mu.RLock()
	entryID, ok := s.entryMap[triggerID]
	s.mu.RUnlock()
	if !ok {
		return time.Time{}, false
	}
	next := s.cron.Entry(entryID).Next
	return next, !next.IsZero()
}

func (s *Service) baseCtx() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

// fire starts one act for the trigger. The stored trigger is authoritative:
// one that was disabled or deleted since registration is dropped.
func (s *Service) fire(ctx context.Context, triggerID string) {
	trigger, err := s.triggers.Get(ctx, triggerID)
	if err != nil {
		slog.Warn("scheduler: trigger gone, removing", "trigger_id", triggerID, "err", err)
		s.Remove(triggerID)
		return
	}
	if !isActiveSchedule(trigger) {
		s.Remove(triggerID)
		return
	}

	in, err := services.ResolveTrigger(trigger, services.TriggerEvent{})
	if err != nil {
		slog.Error("scheduler: resolve inputs failed", "trigger_id", triggerID, "err", err)
		return
	}
	act, err := s.acts.CreateAndStartAct(ctx, trigger.WorkspaceID, trigger.NodeID, []giselle.GenerationContextInput{in})
	if err != nil {
		slog.Error("scheduler: start act failed", "trigger_id", triggerID, "workspace_id", trigger.WorkspaceID, "err", err)
		return
	}
	slog.Info("scheduler: fired", "trigger_id", triggerID, "act_id", act.ID)
}

func isActiveSchedule(t *giselle.FlowTrigger) bool {
	return t.Enable && t.Configuration.Provider == giselle.TriggerSchedule
}
