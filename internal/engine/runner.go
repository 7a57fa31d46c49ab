package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/giselles-ai/giselle-sub007/internal/giselle"
)

// StepFunc runs the generation behind one step to a terminal state and
// reports that state. A non-nil error means the outcome could not be
// recorded and aborts the run after the current job settles.
type StepFunc func(ctx context.Context, job int, step giselle.Step) (giselle.GenerationStatus, error)

// Executor runs the steps of an act. BeforeJob is called once per job,
// before any of its steps start.
type Executor interface {
	BeforeJob(ctx context.Context, job int, seq giselle.Sequence) error
	RunStep(ctx context.Context, job int, step giselle.Step) (giselle.GenerationStatus, error)
}

func (f StepFunc) BeforeJob(context.Context, int, giselle.Sequence) error { return nil }

func (f StepFunc) RunStep(ctx context.Context, job int, step giselle.Step) (giselle.GenerationStatus, error) {
	return f(ctx, job, step)
}

// Outcome is how a run ended.
type Outcome struct {
	Status giselle.ActStatus
	// LastJob is the index of the last job that was started, -1 if none.
	LastJob int
}

// Runner executes an act job by job. Steps inside a job run concurrently
// and the runner waits for all of them before looking at the next job.
type Runner struct {
	eventBus    *EventBus
	maxParallel int
}

// NewRunner returns a Runner. maxParallel <= 0 means no limit inside a job.
func NewRunner(eventBus *EventBus, maxParallel int) *Runner {
	return &Runner{eventBus: eventBus, maxParallel: maxParallel}
}

// Run executes the sequences of act in order. A job that ends with a failed
// or cancelled step stops the run; later jobs are never started. Run does
// not modify act.
func (r *Runner) Run(ctx context.Context, act *giselle.Act, run StepFunc) (Outcome, error) {
	return r.RunWith(ctx, act, run)
}

// RunWith is Run with job setup.
func (r *Runner) RunWith(ctx context.Context, act *giselle.Act, exec Executor) (Outcome, error) {
	out := Outcome{Status: giselle.ActSuccess, LastJob: -1}

	for i, seq := range act.Sequences {
		if ctx.Err() != nil {
			out.Status = giselle.ActCancelled
			break
		}
		out.LastJob = i
		r.eventBus.Publish(Event{Type: EventJobStarted, ActID: act.ID, JobIndex: i, Timestamp: time.Now()})

		if err := exec.BeforeJob(ctx, i, seq); err != nil {
			return out, fmt.Errorf("job %d of act %s: %w", i, act.ID, err)
		}
		statuses, err := r.runJob(ctx, i, seq, exec)
		if err != nil {
			return out, fmt.Errorf("job %d of act %s: %w", i, act.ID, err)
		}

		status := jobStatus(statuses)
		r.eventBus.Publish(Event{Type: EventJobFinished, ActID: act.ID, JobIndex: i, ActStatus: status, Timestamp: time.Now()})
		if status != giselle.ActSuccess {
			slog.Info("act stopped", "act_id", act.ID, "job", i, "status", status)
			out.Status = status
			break
		}
	}
	return out, nil
}

// runJob has no mid-job abort: a failing step does not cancel its job-mates.
func (r *Runner) runJob(ctx context.Context, index int, seq giselle.Sequence, exec Executor) ([]giselle.GenerationStatus, error) {
	var g errgroup.Group
	if r.maxParallel > 0 {
		g.SetLimit(r.maxParallel)
	}

	statuses := make([]giselle.GenerationStatus, len(seq.Steps))
	for i, step := range seq.Steps {
		g.Go(func() error {
			status, err := exec.RunStep(ctx, index, step)
			if err != nil {
				statuses[i] = giselle.GenerationFailed
				return fmt.Errorf("step %s: %w", step.ID, err)
			}
			statuses[i] = status
			return nil
		})
	}
	err := g.Wait()
	return statuses, err
}

func jobStatus(statuses []giselle.GenerationStatus) giselle.ActStatus {
	cancelled := false
	for _, s := range statuses {
		switch s {
		case giselle.GenerationFailed:
			return giselle.ActFailed
		case giselle.GenerationCancelled:
			cancelled = true
		case giselle.GenerationCompleted:
		default:
			// a step that returned without settling counts as failed
			return giselle.ActFailed
		}
	}
	if cancelled {
		return giselle.ActCancelled
	}
	return giselle.ActSuccess
}
