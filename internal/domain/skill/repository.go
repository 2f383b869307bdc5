package skill

import (
	"context"
	"time"
)

// Repository defines the skill store contract.
// This interface is implemented by the infrastructure layer.
type Repository interface {
	// GetByID returns a skill; ErrSkillNotFound when missing.
	GetByID(ctx context.Context, id string) (*Skill, error)

	// ListByScope returns every skill visible in a classroom: system skills,
	// school skills and the classroom's own custom skills. Inactive skills
	// are included; callers filter with IsActive.
	ListByScope(ctx context.Context, tenantID, schoolID, classroomID string) ([]*Skill, error)

	// Create persists a new skill. ErrSkillAlreadyExists on duplicate ID.
	Create(ctx context.Context, s *Skill) error

	// IncrementUsage bumps the usage counter and last-used timestamp.
	IncrementUsage(ctx context.Context, id string, at time.Time) error

	// SetActive toggles the activation flag. Skills are never hard-deleted.
	SetActive(ctx context.Context, id string, active bool, at time.Time) error

	// CountCustom returns the number of custom skills created in a classroom.
	CountCustom(ctx context.Context, classroomID string) (int, error)
}
