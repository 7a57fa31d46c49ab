package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/giselles-ai/giselle-sub007/internal/engine"
	"github.com/giselles-ai/giselle-sub007/internal/giselle"
	"github.com/giselles-ai/giselle-sub007/internal/giselle/ports"
	"github.com/giselles-ai/giselle-sub007/internal/repository"
)

// GenerationService owns the generation state machine. Status changes of
// one generation are serialized inside the process.
type GenerationService struct {
	repo  repository.GenerationRepository
	model ports.LanguageModel
	bus   *engine.EventBus

	locks   keyedMutex
	mu      sync.Mutex
	running map[string]context.CancelFunc
}

func NewGenerationService(repo repository.GenerationRepository, model ports.LanguageModel, bus *engine.EventBus) *GenerationService {
	return &GenerationService{
		repo:    repo,
		model:   model,
		bus:     bus,
		running: make(map[string]context.CancelFunc),
	}
}

// SetGeneration creates or overwrites gen. The origin of an existing
// generation never changes. Act-origin generations are indexed by act.
func (s *GenerationService) SetGeneration(ctx context.Context, gen *giselle.Generation) error {
	unlock := s.locks.lock(gen.ID)
	defer unlock()
	return s.set(ctx, gen)
}

func (s *GenerationService) set(ctx context.Context, gen *giselle.Generation) error {
	existing, err := s.repo.Get(ctx, gen.ID)
	switch {
	case errors.Is(err, giselle.ErrNotFound):
		existing = nil
	case err != nil:
		return err
	case existing.Context.Origin != gen.Context.Origin:
		return fmt.Errorf("generation %s: %w", gen.ID, giselle.ErrOriginMismatch)
	}

	if err := s.repo.Save(ctx, gen); err != nil {
		return err
	}
	if existing == nil && gen.Context.Origin.Type == giselle.OriginAct {
		if err := s.repo.IndexByAct(ctx, gen.Context.Origin.ID, gen.ID); err != nil {
			return err
		}
	}
	if existing == nil || existing.Status != gen.Status {
		s.bus.Publish(engine.GenerationEvent(gen))
	}
	return nil
}

func (s *GenerationService) GetGeneration(ctx context.Context, id string) (*giselle.Generation, error) {
	return s.repo.Get(ctx, id)
}

// GenerationExists probes for id without treating absence as an error.
func (s *GenerationService) GenerationExists(ctx context.Context, id string) (bool, error) {
	_, err := s.repo.Get(ctx, id)
	if errors.Is(err, giselle.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// transition moves the generation to next under its lock. mutate may fill
// in outputs or errors before the write.
func (s *GenerationService) transition(ctx context.Context, id string, next giselle.GenerationStatus, mutate func(*giselle.Generation)) (*giselle.Generation, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	gen, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !gen.Status.CanTransitionTo(next) {
		return gen, fmt.Errorf("generation %s %s -> %s: %w", id, gen.Status, next, giselle.ErrInvalidTransition)
	}

	now := time.Now()
	gen.Status = next
	switch next {
	case giselle.GenerationRunning:
		gen.StartedAt = &now
	case giselle.GenerationCompleted:
		gen.CompletedAt = &now
	case giselle.GenerationFailed:
		gen.FailedAt = &now
	case giselle.GenerationCancelled:
		gen.CancelledAt = &now
		gen.CompletedAt = &now
	}
	if mutate != nil {
		mutate(gen)
	}
	if err := s.set(ctx, gen); err != nil {
		return nil, err
	}
	slog.Debug("generation transition", "generation_id", id, "status", next)
	return gen, nil
}

// StartContentGeneration moves a queued generation to running.
func (s *GenerationService) StartContentGeneration(ctx context.Context, id string) (*giselle.Generation, error) {
	return s.transition(ctx, id, giselle.GenerationRunning, nil)
}

// CancelGeneration cancels a queued or running generation and stops its
// in-flight run. Cancelling a finished generation is a no-op.
func (s *GenerationService) CancelGeneration(ctx context.Context, id string) (*giselle.Generation, error) {
	gen, err := s.transition(ctx, id, giselle.GenerationCancelled, nil)
	if errors.Is(err, giselle.ErrInvalidTransition) && gen != nil && gen.Status.IsTerminal() {
		return gen, nil
	}
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	cancel := s.running[id]
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	slog.Info("generation cancelled", "generation_id", id)
	return gen, nil
}

func (s *GenerationService) register(id string, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[id] = cancel
}

func (s *GenerationService) unregister(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, id)
}

// RunGeneration starts the queued generation id and runs it to a terminal
// state. Execution failures end in status failed with a nil error; the
// error is non-nil only when state could not be read or written.
func (s *GenerationService) RunGeneration(ctx context.Context, id string) (*giselle.Generation, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.register(id, cancel)
	defer s.unregister(id)

	gen, err := s.StartContentGeneration(ctx, id)
	if errors.Is(err, giselle.ErrInvalidTransition) && gen != nil && gen.Status.IsTerminal() {
		// cancelled before it started
		return gen, nil
	}
	if err != nil {
		return nil, err
	}

	log := &chunkLog{repo: s.repo, id: id}
	if err := log.append(ctx, giselle.UIMessageChunk{Type: giselle.ChunkStart, ID: id}); err != nil {
		return nil, err
	}

	result, runErr := s.execute(ctx, gen, log)
	if log.err != nil {
		return nil, log.err
	}

	if runErr != nil {
		if ctx.Err() != nil {
			return s.settleCancelled(context.WithoutCancel(ctx), id)
		}
		slog.Warn("generation failed", "generation_id", id, "err", runErr)
		if err := log.append(ctx, giselle.UIMessageChunk{Type: giselle.ChunkError, ErrorText: runErr.Error()}); err != nil {
			return nil, err
		}
		return s.finish(ctx, id, giselle.GenerationFailed, func(g *giselle.Generation) {
			g.Error = &giselle.GenerationError{Name: "ExecutionError", Message: runErr.Error()}
			result.applyTo(g)
		})
	}

	if err := log.append(ctx, giselle.UIMessageChunk{Type: giselle.ChunkFinish}); err != nil {
		return nil, err
	}
	return s.finish(ctx, id, giselle.GenerationCompleted, result.applyTo)
}

// finish writes the terminal state unless a cancel got there first.
func (s *GenerationService) finish(ctx context.Context, id string, status giselle.GenerationStatus, mutate func(*giselle.Generation)) (*giselle.Generation, error) {
	gen, err := s.transition(context.WithoutCancel(ctx), id, status, mutate)
	if errors.Is(err, giselle.ErrInvalidTransition) && gen != nil && gen.Status.IsTerminal() {
		return gen, nil
	}
	return gen, err
}

func (s *GenerationService) settleCancelled(ctx context.Context, id string) (*giselle.Generation, error) {
	gen, err := s.transition(ctx, id, giselle.GenerationCancelled, nil)
	if errors.Is(err, giselle.ErrInvalidTransition) && gen != nil && gen.Status.IsTerminal() {
		return gen, nil
	}
	return gen, err
}

// ChunkPage is a slice of a generation's message chunk log.
type ChunkPage struct {
	Chunks []giselle.UIMessageChunk `json:"chunks"`
	// Range is the half-open byte range [start, end) the chunks came from.
	Range [2]int64 `json:"range"`
}

// GetGenerationMessageChunks returns the complete chunk records written
// after startByte. A partially written trailing record is left for the
// next call.
func (s *GenerationService) GetGenerationMessageChunks(ctx context.Context, id string, startByte int64) (*ChunkPage, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	if startByte < 0 {
		startByte = 0
	}
	empty := &ChunkPage{Chunks: []giselle.UIMessageChunk{}, Range: [2]int64{startByte, startByte}}

	size, err := s.repo.ChunksLength(ctx, id)
	if err != nil {
		return nil, err
	}
	if startByte >= size {
		return empty, nil
	}
	data, err := s.repo.ReadChunks(ctx, id, startByte, size-startByte)
	if err != nil {
		return nil, err
	}
	last := bytes.LastIndexByte(data, '\n')
	if last < 0 {
		return empty, nil
	}
	data = data[:last+1]

	page := &ChunkPage{Chunks: []giselle.UIMessageChunk{}, Range: [2]int64{startByte, startByte + int64(len(data))}}
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var c giselle.UIMessageChunk
		if err := json.Unmarshal(line, &c); err != nil {
			slog.Warn("skipping malformed message chunk", "generation_id", id, "err", err)
			continue
		}
		page.Chunks = append(page.Chunks, c)
	}
	return page, nil
}

// chunkLog appends jsonl records and remembers the first write error.
type chunkLog struct {
	repo repository.GenerationRepository
	id   string
	err  error
}

func (l *chunkLog) append(ctx context.Context, c giselle.UIMessageChunk) error {
	if l.err != nil {
		return l.err
	}
	b, err := json.Marshal(c)
	if err != nil {
		l.err = err
		return err
	}
	l.err = l.repo.AppendChunks(context.WithoutCancel(ctx), l.id, append(b, '\n'))
	return l.err
}
