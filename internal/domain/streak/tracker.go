package streak

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/explorer-points/internal/domain/shared"
)

// Repository - контракт хранилища серий.
type Repository interface {
	// Get возвращает серию ученика или ErrStreakNotFound.
	Get(ctx context.Context, studentID string) (*Streak, error)

	// Upsert сохраняет серию (создание или обновление).
	Upsert(ctx context.Context, s *Streak) error
}

// Result - итог продвижения серии.
type Result struct {
	Streak     *Streak
	Outcome    Outcome
	Milestones []int
}

// Tracker ведёт серии учеников поверх Repository.
type Tracker struct {
	repo Repository
}

// NewTracker создаёт Tracker.
func NewTracker(repo Repository) *Tracker {
	return &Tracker{repo: repo}
}

// Advance обновляет серию ученика после награды.
// Конструктивная (негативная) награда серию не трогает и не сбрасывает:
// возвращается nil без обращения к хранилищу.
func (t *Tracker) Advance(ctx context.Context, studentID, classroomID string, isPositive bool, now time.Time, loc *time.Location) (*Result, error) {
	if !isPositive {
		return nil, nil
	}

	current, err := t.repo.Get(ctx, studentID)
	if err != nil && !shared.IsNotFound(err) {
		return nil, fmt.Errorf("failed to load streak: %w", err)
	}

	var res Result
	if current == nil {
		current = New(studentID, classroomID, now, loc)
		res.Outcome = OutcomeStarted
	} else {
		if classroomID != "" {
			current.ClassroomID = classroomID
		}
		res.Outcome = current.Advance(now, loc)
	}
	res.Milestones = current.NewMilestones()
	res.Streak = current

	if err := t.repo.Upsert(ctx, current); err != nil {
		return nil, fmt.Errorf("failed to save streak: %w", err)
	}
	return &res, nil
}
