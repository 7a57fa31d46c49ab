package giselle

import "time"

type ActStatus string

const (
	ActPending    ActStatus = "pending"
	ActQueued     ActStatus = "queued"
	ActInProgress ActStatus = "in-progress"
	ActSuccess    ActStatus = "success"
	ActFailed     ActStatus = "failed"
	ActCancelled  ActStatus = "cancelled"
)

func (s ActStatus) IsTerminal() bool {
	return s == ActSuccess || s == ActFailed || s == ActCancelled
}

// StepStatusFor maps a generation status onto the step that references it.
func StepStatusFor(s GenerationStatus) ActStatus {
	switch s {
	case GenerationQueued:
		return ActQueued
	case GenerationRunning:
		return ActInProgress
	case GenerationCompleted:
		return ActSuccess
	case GenerationFailed:
		return ActFailed
	case GenerationCancelled:
		return ActCancelled
	}
	return ActPending
}

type Step struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Status       ActStatus `json:"status"`
	NodeID       string    `json:"nodeId"`
	GenerationID string    `json:"generationId"`
	Error        string    `json:"error,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type Sequence struct {
	ID        string    `json:"id"`
	Status    ActStatus `json:"status"`
	Steps     []Step    `json:"steps"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Annotation struct {
	Level      string `json:"level"`
	Message    string `json:"message"`
	SequenceID string `json:"sequenceId,omitempty"`
	StepID     string `json:"stepId,omitempty"`
}

// Act is one run of a compiled Workflow.
type Act struct {
	ID          string       `json:"id"`
	WorkspaceID string       `json:"workspaceId"`
	EntryNodeID string       `json:"entryNodeId"`
	Name        string       `json:"name,omitempty"`
	Status      ActStatus    `json:"status"`
	Sequences   []Sequence   `json:"sequences"`
	Annotations []Annotation `json:"annotations"`
	CreatedAt   time.Time    `json:"createdAt"`
	StartedAt   *time.Time   `json:"startedAt,omitempty"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// IsTerminal reports whether the aggregate status is final.
func (a *Act) IsTerminal() bool { return a.Status.IsTerminal() }

// Started reports whether StartAct has been accepted for this act.
func (a *Act) Started() bool { return a.StartedAt != nil }

// FindStep returns pointers to the sequence and step for a step id.
func (a *Act) FindStep(stepID string) (*Sequence, *Step) {
	for i := range a.Sequences {
		for j := range a.Sequences[i].Steps {
			if a.Sequences[i].Steps[j].ID == stepID {
				return &a.Sequences[i], &a.Sequences[i].Steps[j]
			}
		}
	}
	return nil, nil
}

// Refresh recomputes sequence and act status from the steps.
func (a *Act) Refresh() {
	for i := range a.Sequences {
		a.Sequences[i].Status = AggregateSequenceStatus(a.Sequences[i].Steps)
	}
	a.Status = AggregateActStatus(a.Sequences)
}

// AggregateSequenceStatus derives a sequence's status from its steps.
func AggregateSequenceStatus(steps []Step) ActStatus {
	statuses := make([]ActStatus, len(steps))
	for i, s := range steps {
		statuses[i] = s.Status
	}
	return aggregate(statuses)
}

// AggregateActStatus derives an act's status from its sequences.
func AggregateActStatus(sequences []Sequence) ActStatus {
	statuses := make([]ActStatus, len(sequences))
	for i, s := range sequences {
		statuses[i] = s.Status
	}
	return aggregate(statuses)
}

func aggregate(statuses []ActStatus) ActStatus {
	if len(statuses) == 0 {
		return ActPending
	}
	counts := map[ActStatus]int{}
	for _, s := range statuses {
		counts[s]++
	}
	switch {
	case counts[ActFailed] > 0:
		return ActFailed
	case counts[ActCancelled] > 0:
		return ActCancelled
	case counts[ActInProgress] > 0 || counts[ActQueued] > 0:
		return ActInProgress
	case counts[ActSuccess] == len(statuses):
		return ActSuccess
	}
	// includes a finished job whose successor has not been queued yet
	return ActPending
}
