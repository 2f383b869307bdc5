package suggestion

import (
	"context"
	"time"
)

// Repository defines the suggestion store contract.
type Repository interface {
	// Create persists a new pending suggestion.
	Create(ctx context.Context, s *Suggestion) error

	// GetByID returns a suggestion; ErrSuggestionNotFound when missing.
	GetByID(ctx context.Context, id string) (*Suggestion, error)

	// ListPendingByClassroom returns pending suggestions, newest first.
	ListPendingByClassroom(ctx context.Context, classroomID string) ([]*Suggestion, error)

	// Transition stores next only if the persisted status still equals from.
	// A lost race surfaces as ErrSuggestionNotPending.
	Transition(ctx context.Context, from Status, next *Suggestion) error

	// ExpireBefore moves every pending suggestion with ExpiresAt <= cutoff to
	// expired and returns how many changed. An empty classroomID sweeps all classrooms.
	ExpireBefore(ctx context.Context, classroomID string, cutoff time.Time) (int, error)
}
