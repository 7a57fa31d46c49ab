package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/giselles-ai/giselle-sub007/internal/dag"
	"github.com/giselles-ai/giselle-sub007/internal/engine"
	"github.com/giselles-ai/giselle-sub007/internal/giselle"
	"github.com/giselles-ai/giselle-sub007/internal/giselle/ports"
	"github.com/giselles-ai/giselle-sub007/internal/repository"
)

var (
	_ ports.ActStarter = (*ActService)(nil)
	_ ports.ActReader  = (*ActService)(nil)
)

// ErrActStarted is returned when starting an act twice.
var ErrActStarted = errors.New("act already started")

// CreateActInput describes a new act. When Nodes is nil the graph of the
// stored workspace is used.
type CreateActInput struct {
	WorkspaceID string
	NodeID      string
	Inputs      []giselle.GenerationContextInput
	Nodes       []giselle.Node
	Connections []giselle.Connection
}

// ActService creates acts from compiled workflows and drives them job by
// job. Writes to one act are serialized inside the process.
type ActService struct {
	acts        repository.ActRepository
	workspaces  repository.WorkspaceRepository
	generations *GenerationService
	runner      *engine.Runner
	guard       *RunGuard
	bus         *engine.EventBus

	locks   keyedMutex
	mu      sync.Mutex
	running map[string]context.CancelFunc
	wg      sync.WaitGroup
}

func NewActService(
	acts repository.ActRepository,
	workspaces repository.WorkspaceRepository,
	generations *GenerationService,
	runner *engine.Runner,
	guard *RunGuard,
	bus *engine.EventBus,
) *ActService {
	if guard == nil {
		guard = NewRunGuard()
	}
	return &ActService{
		acts:        acts,
		workspaces:  workspaces,
		generations: generations,
		runner:      runner,
		guard:       guard,
		bus:         bus,
		running:     make(map[string]context.CancelFunc),
	}
}

// CreateAct compiles the graph from in.NodeID and persists an act whose
// sequences mirror the jobs, with one queued generation per step. Only the
// first job receives in.Inputs.
func (s *ActService) CreateAct(ctx context.Context, in CreateActInput) (*giselle.Act, error) {
	nodes, conns := in.Nodes, in.Connections
	if nodes == nil {
		ws, err := s.workspaces.Get(ctx, in.WorkspaceID)
		if err != nil {
			return nil, err
		}
		nodes, conns = ws.Nodes, ws.Connections
	}

	wf, err := dag.Compile(in.NodeID, nodes, conns)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	act := &giselle.Act{
		ID:          giselle.GenerateID(giselle.PrefixAct),
		WorkspaceID: in.WorkspaceID,
		EntryNodeID: in.NodeID,
		Status:      giselle.ActPending,
		Annotations: []giselle.Annotation{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, n := range nodes {
		if n.ID == in.NodeID {
			act.Name = n.Name
		}
	}
	origin := giselle.Origin{Type: giselle.OriginAct, ID: act.ID, WorkspaceID: in.WorkspaceID}

	for i, job := range wf.Jobs {
		seq := giselle.Sequence{ID: giselle.GenerateID(giselle.PrefixSequence), Status: giselle.ActPending, UpdatedAt: now}
		for _, op := range job.Operations {
			gen := &giselle.Generation{
				ID:     giselle.GenerateID(giselle.PrefixGeneration),
				Status: giselle.GenerationQueued,
				Context: giselle.GenerationContext{
					OperationNode: op.GenerationTemplate.OperationNode,
					SourceNodes:   op.GenerationTemplate.SourceNodes,
					Connections:   op.GenerationTemplate.Connections,
					Origin:        origin,
				},
				CreatedAt: now,
				QueuedAt:  &now,
			}
			if i == 0 {
				gen.Context.Inputs = in.Inputs
			}
			if err := s.generations.SetGeneration(ctx, gen); err != nil {
				return nil, fmt.Errorf("create generation for node %s: %w", op.Node.ID, err)
			}

			name := op.Node.Name
			if name == "" {
				name = op.Node.ID
			}
			seq.Steps = append(seq.Steps, giselle.Step{
				ID:           giselle.GenerateID(giselle.PrefixStep),
				Name:         name,
				Status:       giselle.ActPending,
				NodeID:       op.Node.ID,
				GenerationID: gen.ID,
				UpdatedAt:    now,
			})
		}
		act.Sequences = append(act.Sequences, seq)
	}
	act.Refresh()

	if err := s.acts.Create(ctx, act); err != nil {
		return nil, err
	}
	slog.Info("act created", "act_id", act.ID, "workspace_id", act.WorkspaceID, "jobs", len(act.Sequences))
	return act, nil
}

func (s *ActService) GetAct(ctx context.Context, actID string) (*giselle.Act, error) {
	return s.acts.Get(ctx, actID)
}

// ListActs returns the acts of a workspace in creation order.
func (s *ActService) ListActs(ctx context.Context, workspaceID string) ([]*giselle.Act, error) {
	return s.acts.ListByWorkspace(ctx, workspaceID)
}

// StartAct claims the (workspace, entry node) pair for actID and runs the
// act in the background. Another started, unfinished act for the same pair
// yields a ConcurrentRunError.
func (s *ActService) StartAct(ctx context.Context, actID string) (*giselle.Act, error) {
	act, err := s.acts.Get(ctx, actID)
	if err != nil {
		return nil, err
	}
	if act.Started() || act.IsTerminal() {
		return nil, fmt.Errorf("act %s: %w", actID, ErrActStarted)
	}

	key := runKey(act.WorkspaceID, act.EntryNodeID)
	if err := s.claim(ctx, key, act); err != nil {
		return nil, err
	}
	if other, err := s.inFlight(ctx, act); err != nil || other != "" {
		s.guard.Release(key, act.ID)
		if err != nil {
			return nil, err
		}
		return nil, &giselle.ConcurrentRunError{WorkspaceID: act.WorkspaceID, EntryNodeID: act.EntryNodeID, ActID: other}
	}

	act, err = s.markStarted(ctx, actID)
	if err != nil {
		s.guard.Release(key, actID)
		return nil, err
	}

	runCtx := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.guard.Release(key, actID)
		if _, err := s.RunAct(runCtx, actID); err != nil {
			slog.Error("act run failed", "act_id", actID, "err", err)
		}
	}()
	return act, nil
}

// claim acquires key for act. A holder whose act is already terminal is
// still finishing its run and gives the key up.
func (s *ActService) claim(ctx context.Context, key string, act *giselle.Act) error {
	holder, ok := s.guard.Acquire(key, act.ID)
	if ok {
		return nil
	}
	prev, err := s.acts.Get(ctx, holder)
	switch {
	case errors.Is(err, giselle.ErrNotFound):
	case err != nil:
		return err
	case !prev.IsTerminal():
		return &giselle.ConcurrentRunError{WorkspaceID: act.WorkspaceID, EntryNodeID: act.EntryNodeID, ActID: holder}
	}
	if !s.guard.Replace(key, holder, act.ID) {
		// released or taken in the meantime
		if holder, ok := s.guard.Acquire(key, act.ID); !ok {
			return &giselle.ConcurrentRunError{WorkspaceID: act.WorkspaceID, EntryNodeID: act.EntryNodeID, ActID: holder}
		}
	}
	return nil
}

// inFlight looks in the persisted workspace index for another started,
// unfinished act with the same entry node. It catches runs from other
// processes that the in-memory guard cannot see.
func (s *ActService) inFlight(ctx context.Context, act *giselle.Act) (string, error) {
	acts, err := s.acts.ListByWorkspace(ctx, act.WorkspaceID)
	if err != nil {
		return "", err
	}
	for _, a := range acts {
		if a.ID != act.ID && a.EntryNodeID == act.EntryNodeID && a.Started() && !a.IsTerminal() {
			return a.ID, nil
		}
	}
	return "", nil
}

// CreateAndStartAct creates an act from the stored workspace graph and
// starts it.
func (s *ActService) CreateAndStartAct(ctx context.Context, workspaceID, nodeID string, inputs []giselle.GenerationContextInput) (*giselle.Act, error) {
	act, err := s.CreateAct(ctx, CreateActInput{WorkspaceID: workspaceID, NodeID: nodeID, Inputs: inputs})
	if err != nil {
		return nil, err
	}
	return s.StartAct(ctx, act.ID)
}

// RunAct executes the act synchronously and returns its final state.
func (s *ActService) RunAct(ctx context.Context, actID string) (*giselle.Act, error) {
	act, err := s.markStarted(ctx, actID)
	if err != nil {
		return nil, err
	}
	if act.IsTerminal() {
		return act, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.running[actID] = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.running, actID)
		s.mu.Unlock()
	}()

	slog.Info("act started", "act_id", actID)
	out, runErr := s.runner.RunWith(ctx, act, &actExecutor{svc: s, actID: actID})

	// never started after a cancel; their generations are cancelled too
	if out.Status == giselle.ActCancelled {
		if err := s.cancelRemaining(context.WithoutCancel(ctx), actID); err != nil {
			return nil, err
		}
	}
	if runErr != nil {
		s.annotate(context.WithoutCancel(ctx), actID, giselle.Annotation{Level: "error", Message: runErr.Error()})
		return nil, runErr
	}

	final, err := s.acts.Get(context.WithoutCancel(ctx), actID)
	if err != nil {
		return nil, err
	}
	slog.Info("act finished", "act_id", actID, "status", final.Status)
	return final, nil
}

// CancelAct stops further jobs, cancels every unfinished generation of the
// act and marks the act cancelled. Cancelling a finished act is a no-op.
func (s *ActService) CancelAct(ctx context.Context, actID string) (*giselle.Act, error) {
	act, err := s.acts.Get(ctx, actID)
	if err != nil {
		return nil, err
	}
	if act.IsTerminal() {
		return act, nil
	}

	s.mu.Lock()
	cancel := s.running[actID]
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	if err := s.cancelRemaining(ctx, actID); err != nil {
		return nil, err
	}
	slog.Info("act cancelled", "act_id", actID)
	return s.acts.Get(ctx, actID)
}

// cancelRemaining cancels the generation of every step that has not
// finished yet and records the cancellation on the steps.
func (s *ActService) cancelRemaining(ctx context.Context, actID string) error {
	act, err := s.acts.Get(ctx, actID)
	if err != nil {
		return err
	}
	for _, seq := range act.Sequences {
		for _, step := range seq.Steps {
			if step.Status.IsTerminal() {
				continue
			}
			gen, err := s.generations.CancelGeneration(ctx, step.GenerationID)
			if err != nil && !errors.Is(err, giselle.ErrNotFound) {
				return err
			}
			status := giselle.ActCancelled
			if gen != nil {
				status = giselle.StepStatusFor(gen.Status)
			}
			if err := s.updateStep(ctx, actID, step.ID, status, ""); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *ActService) markStarted(ctx context.Context, actID string) (*giselle.Act, error) {
	return s.mutate(ctx, actID, func(act *giselle.Act) bool {
		if act.Started() {
			return false
		}
		now := time.Now()
		act.StartedAt = &now
		return true
	})
}

// mutate applies fn to the stored act under the act lock and persists it
// when fn reports a change.
func (s *ActService) mutate(ctx context.Context, actID string, fn func(*giselle.Act) bool) (*giselle.Act, error) {
	unlock := s.locks.lock(actID)
	defer unlock()

	act, err := s.acts.Get(ctx, actID)
	if err != nil {
		return nil, err
	}
	before := act.Status
	if !fn(act) {
		return act, nil
	}
	act.Refresh()
	act.UpdatedAt = time.Now()
	if err := s.acts.Update(ctx, act); err != nil {
		return nil, err
	}
	if act.Started() && act.IsTerminal() {
		s.guard.Release(runKey(act.WorkspaceID, act.EntryNodeID), act.ID)
	}
	if act.Status != before {
		s.bus.Publish(engine.Event{Type: engine.EventActStatus, ActID: act.ID, ActStatus: act.Status, Timestamp: act.UpdatedAt})
	}
	return act, nil
}

func (s *ActService) updateStep(ctx context.Context, actID, stepID string, status giselle.ActStatus, errMsg string) error {
	_, err := s.mutate(ctx, actID, func(act *giselle.Act) bool {
		seq, step := act.FindStep(stepID)
		if step == nil || (step.Status == status && step.Error == errMsg) {
			return false
		}
		now := time.Now()
		step.Status = status
		step.Error = errMsg
		step.UpdatedAt = now
		seq.UpdatedAt = now
		return true
	})
	return err
}

// annotate is best effort; the act may be what failed to persist.
func (s *ActService) annotate(ctx context.Context, actID string, a giselle.Annotation) {
	_, err := s.mutate(ctx, actID, func(act *giselle.Act) bool {
		act.Annotations = append(act.Annotations, a)
		return true
	})
	if err != nil {
		slog.Warn("failed to annotate act", "act_id", actID, "err", err)
	}
}

// Wait blocks until every background run started by StartAct returns.
func (s *ActService) Wait() {
	s.wg.Wait()
}

// Shutdown cancels every running act and waits for the runs to settle.
func (s *ActService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for _, cancel := range s.running {
		cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// actExecutor binds the runner to one act.
type actExecutor struct {
	svc   *ActService
	actID string
}

func (e *actExecutor) BeforeJob(ctx context.Context, _ int, seq giselle.Sequence) error {
	_, err := e.svc.mutate(ctx, e.actID, func(act *giselle.Act) bool {
		changed := false
		for i := range act.Sequences {
			if act.Sequences[i].ID != seq.ID {
				continue
			}
			now := time.Now()
			for j := range act.Sequences[i].Steps {
				step := &act.Sequences[i].Steps[j]
				if step.Status == giselle.ActPending {
					step.Status = giselle.ActQueued
					step.UpdatedAt = now
					changed = true
				}
			}
			act.Sequences[i].UpdatedAt = now
		}
		return changed
	})
	return err
}

func (e *actExecutor) RunStep(ctx context.Context, _ int, step giselle.Step) (giselle.GenerationStatus, error) {
	if err := e.svc.updateStep(ctx, e.actID, step.ID, giselle.ActInProgress, ""); err != nil {
		return "", err
	}
	gen, err := e.svc.generations.RunGeneration(ctx, step.GenerationID)
	if err != nil {
		return "", err
	}
	var msg string
	if gen.Error != nil {
		msg = gen.Error.Message
	}
	if err := e.svc.updateStep(context.WithoutCancel(ctx), e.actID, step.ID, giselle.StepStatusFor(gen.Status), msg); err != nil {
		return "", err
	}
	return gen.Status, nil
}
