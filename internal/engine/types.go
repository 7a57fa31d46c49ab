package engine

import (
	"time"

	"github.com/giselles-ai/giselle-sub007/internal/giselle"
)

type EventType string

const (
	// EventGenerationStatus is published on every generation transition.
	EventGenerationStatus EventType = "generation.status"
	EventActStatus        EventType = "act.status"
	EventJobStarted       EventType = "job.started"
	EventJobFinished      EventType = "job.finished"
)

// Event is a process-local notification. Exactly one of the status fields
// is set, depending on Type.
type Event struct {
	Type         EventType `json:"type"`
	ActID        string    `json:"actId,omitempty"`
	GenerationID string    `json:"generationId,omitempty"`
	JobIndex     int       `json:"jobIndex"`

	GenerationStatus giselle.GenerationStatus `json:"generationStatus,omitempty"`
	ActStatus        giselle.ActStatus        `json:"actStatus,omitempty"`

	// Duration is the running time of a generation that just reached a
	// terminal state, zero otherwise.
	Duration  time.Duration `json:"duration,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// GenerationEvent builds the event published when gen changes status.
func GenerationEvent(gen *giselle.Generation) Event {
	ev := Event{
		Type:             EventGenerationStatus,
		GenerationID:     gen.ID,
		GenerationStatus: gen.Status,
		Timestamp:        time.Now(),
	}
	if gen.Context.Origin.Type == giselle.OriginAct {
		ev.ActID = gen.Context.Origin.ID
	}
	if gen.Status.IsTerminal() && gen.StartedAt != nil {
		ev.Duration = ev.Timestamp.Sub(*gen.StartedAt)
	}
	return ev
}
