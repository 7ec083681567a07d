package scheduler

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSessionBusy is returned for manual edits while a generation run is active.
	ErrSessionBusy = errors.New("scheduler: generation run in progress")
	// ErrUnknownEntity is wrapped when a request names an id missing from the catalog.
	ErrUnknownEntity = errors.New("scheduler: unknown entity")
	// ErrInvalidRequest is wrapped for malformed placement or configuration input.
	ErrInvalidRequest = errors.New("scheduler: invalid request")
)

// CatalogError rejects a catalog that is unsatisfiable by construction.
type CatalogError struct {
	Problems []string
}

func (e *CatalogError) Error() string {
	return "catalog rejected: " + strings.Join(e.Problems, "; ")
}

// Blocker identifies the entity that prevents a placement.
type Blocker struct {
	Kind         string `json:"kind"`
	ID           string `json:"id"`
	AssignmentID string `json:"assignmentId,omitempty"`
}

func (b Blocker) String() string {
	if b.Kind == "" {
		return ""
	}
	if b.AssignmentID != "" {
		return fmt.Sprintf("%s %s (held by %s)", b.Kind, b.ID, b.AssignmentID)
	}
	return b.Kind + " " + b.ID
}

// ConflictError reports that a placement cannot be satisfied in the current schedule.
type ConflictError struct {
	Constraint string      `json:"constraint"`
	Reason     string      `json:"reason"`
	Blocking   Blocker     `json:"blocking"`
	Slot       *PeriodSlot `json:"slot,omitempty"`
}

func (e *ConflictError) Error() string {
	return e.Reason
}

func unknownEntity(kind, id string) error {
	return fmt.Errorf("%w: %s %q", ErrUnknownEntity, kind, id)
}

func invalidRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
