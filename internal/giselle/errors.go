package giselle

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned for a missing persisted entity. Callers also use
	// it as an existence probe before create-vs-update branching.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition is returned for a generation or act state change
	// that the state machine does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrOriginMismatch    = errors.New("generation origin cannot change")
	// ErrNoWorkflow means the start node reaches no operation node.
	ErrNoWorkflow = errors.New("no workflow")
	// ErrInvalidGraph is wrapped by every structural graph error other than
	// a cycle: duplicate node ids and dangling connection endpoints.
	ErrInvalidGraph = errors.New("invalid graph")
	// ErrInvalidInput is wrapped by errors about caller-supplied values such
	// as trigger configurations and app parameters.
	ErrInvalidInput = errors.New("invalid input")
)

// GraphCycleError reports operation nodes that depend on each other.
type GraphCycleError struct {
	NodeIDs []string
}

func (e *GraphCycleError) Error() string {
	return fmt.Sprintf("graph cycle among operation nodes: %s", strings.Join(e.NodeIDs, ", "))
}

// ConcurrentRunError is returned when an act for the same workspace and
// entry node is already in flight.
type ConcurrentRunError struct {
	WorkspaceID string
	EntryNodeID string
	ActID       string
}

func (e *ConcurrentRunError) Error() string {
	return fmt.Sprintf("act %s is already running for node %s in workspace %s", e.ActID, e.EntryNodeID, e.WorkspaceID)
}

// NotFound wraps ErrNotFound with the kind and id of the missing entity.
func NotFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}
