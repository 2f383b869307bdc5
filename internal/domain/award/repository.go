package award

import (
	"context"
	"time"
)

// Filter narrows award listings. Zero values mean "no bound".
type Filter struct {
	From  time.Time
	To    time.Time
	Limit int
}

// Matches reports whether an award time falls in [From, To).
func (f Filter) Matches(at time.Time) bool {
	if !f.From.IsZero() && at.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !at.Before(f.To) {
		return false
	}
	return true
}

// SkillCount is one row of a per-skill frequency query.
type SkillCount struct {
	SkillID   string `json:"skill_id"`
	SkillName string `json:"skill_name"`
	Count     int    `json:"count"`
}

// Totals is the result of an atomic running-total update.
type Totals struct {
	Before int
	After  int
}

// Crossed returns true if the update raised the total.
func (t Totals) Crossed() bool {
	return t.After > t.Before
}

// Repository defines the award store contract.
type Repository interface {
	// Create persists a single award.
	Create(ctx context.Context, a *PointAward) error

	// CreateBatch persists every award of one call, and the group summary
	// when g is not nil, all or nothing.
	CreateBatch(ctx context.Context, awards []*PointAward, g *GroupAward) error

	// GetByID returns an award; ErrAwardNotFound when missing.
	GetByID(ctx context.Context, id string) (*PointAward, error)

	// ListByStudent returns a learner's awards, newest first.
	ListByStudent(ctx context.Context, studentID string, f Filter) ([]*PointAward, error)

	// ListByClassroom returns a classroom's awards, newest first.
	ListByClassroom(ctx context.Context, classroomID string, f Filter) ([]*PointAward, error)

	// AddToRunningTotal atomically adds delta to a learner's lifetime positive
	// total and returns the values before and after. Concurrent callers for
	// the same learner are serialized by the store.
	AddToRunningTotal(ctx context.Context, studentID string, delta int) (Totals, error)

	// RunningTotal returns a learner's lifetime positive total.
	RunningTotal(ctx context.Context, studentID string) (int, error)

	// SkillFrequency counts a classroom's awards per skill inside the filter
	// window, most frequent first. Limit is ignored.
	SkillFrequency(ctx context.Context, classroomID string, f Filter) ([]SkillCount, error)

	// MarkNotified sets the notification flag.
	MarkNotified(ctx context.Context, id string) error

	// MarkViewed sets the viewed-by-parent flag.
	MarkViewed(ctx context.Context, id string, at time.Time) error

	// AddReaction appends a reaction.
	AddReaction(ctx context.Context, id string, r Reaction) error
}

// AggregateCache is the cache invalidation hook for scoped aggregates.
type AggregateCache interface {
	// Invalidate drops every cached aggregate under the scope key.
	Invalidate(ctx context.Context, scopeKey string) error
}

// NoopAggregateCache is used when no cache is configured.
type NoopAggregateCache struct{}

// Invalidate implements AggregateCache.
func (NoopAggregateCache) Invalidate(context.Context, string) error { return nil }
