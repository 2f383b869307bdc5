package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alem-hub/explorer-points/internal/domain/celebration"
	"github.com/alem-hub/explorer-points/internal/domain/learner"
	"github.com/alem-hub/explorer-points/internal/domain/shared"
	"github.com/alem-hub/explorer-points/internal/domain/streak"
)

// ══════════════════════════════════════════════════════════════════════════════
// STREAKS
// ══════════════════════════════════════════════════════════════════════════════

// StreakRepository is an in-memory streak.Repository.
type StreakRepository struct {
	mu      sync.RWMutex
	streaks map[string]*streak.Streak
}

// NewStreakRepository creates an empty repository.
func NewStreakRepository() *StreakRepository {
	return &StreakRepository{streaks: make(map[string]*streak.Streak)}
}

// Get implements streak.Repository.
func (r *StreakRepository) Get(_ context.Context, studentID string) (*streak.Streak, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.streaks[studentID]
	if !ok {
		return nil, shared.ErrStreakNotFound
	}
	return cloneStreak(s), nil
}

// Upsert implements streak.Repository.
func (r *StreakRepository) Upsert(_ context.Context, s *streak.Streak) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streaks[s.StudentID] = cloneStreak(s)
	return nil
}

func cloneStreak(s *streak.Streak) *streak.Streak {
	cp := *s
	cp.CelebratedMilestones = append([]int(nil), s.CelebratedMilestones...)
	return &cp
}

// ══════════════════════════════════════════════════════════════════════════════
// CELEBRATIONS
// ══════════════════════════════════════════════════════════════════════════════

// CelebrationRepository is an in-memory celebration.Repository with the same
// (student, type, value) uniqueness as the SQL table.
type CelebrationRepository struct {
	mu    sync.RWMutex
	items []*celebration.Celebration
	keys  map[celebrationKey]struct{}
}

type celebrationKey struct {
	studentID string
	kind      celebration.MilestoneType
	value     int
}

// NewCelebrationRepository creates an empty repository.
func NewCelebrationRepository() *CelebrationRepository {
	return &CelebrationRepository{keys: make(map[celebrationKey]struct{})}
}

// Create implements celebration.Repository.
func (r *CelebrationRepository) Create(_ context.Context, c *celebration.Celebration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := celebrationKey{c.StudentID, c.Type, c.Value}
	if _, ok := r.keys[k]; ok {
		return shared.ErrCelebrationExists
	}
	r.keys[k] = struct{}{}
	cp := *c
	r.items = append(r.items, &cp)
	return nil
}

// ListByStudent implements celebration.Repository.
func (r *CelebrationRepository) ListByStudent(_ context.Context, studentID string) ([]*celebration.Celebration, error) {
	return r.filter(func(c *celebration.Celebration) bool { return c.StudentID == studentID }, 0), nil
}

// ListByClassroom implements celebration.Repository.
func (r *CelebrationRepository) ListByClassroom(_ context.Context, classroomID string, since time.Time, limit int) ([]*celebration.Celebration, error) {
	return r.filter(func(c *celebration.Celebration) bool {
		return c.ClassroomID == classroomID && !c.AchievedAt.Before(since)
	}, limit), nil
}

// MarkNotified implements celebration.Repository.
func (r *CelebrationRepository) MarkNotified(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.items {
		if c.ID == id {
			c.NotificationSent = true
			return nil
		}
	}
	return shared.NewDomainError("celebration", "MarkNotified", shared.ErrNotFound, "celebration not found")
}

func (r *CelebrationRepository) filter(match func(*celebration.Celebration) bool, limit int) []*celebration.Celebration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*celebration.Celebration
	for _, c := range r.items {
		if match(c) {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].AchievedAt.Equal(out[j].AchievedAt) {
			return out[i].Value > out[j].Value
		}
		return out[i].AchievedAt.After(out[j].AchievedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// LEARNERS
// ══════════════════════════════════════════════════════════════════════════════

// LearnerRepository is an in-memory learner.Repository.
type LearnerRepository struct {
	mu       sync.RWMutex
	learners map[string]*learner.Learner
}

// NewLearnerRepository creates a repository seeded with learners.
func NewLearnerRepository(seed ...*learner.Learner) *LearnerRepository {
	r := &LearnerRepository{learners: make(map[string]*learner.Learner)}
	for _, l := range seed {
		r.Put(l)
	}
	return r
}

// Put adds or replaces a learner.
func (r *LearnerRepository) Put(l *learner.Learner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *l
	r.learners[l.ID] = &cp
}

// GetByIDs implements learner.Repository.
func (r *LearnerRepository) GetByIDs(_ context.Context, classroomID string, ids []string) ([]*learner.Learner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*learner.Learner, 0, len(ids))
	for _, id := range ids {
		l, ok := r.learners[id]
		if !ok || !l.IsActive || (classroomID != "" && l.ClassroomID != classroomID) {
			continue
		}
		cp := *l
		out = append(out, &cp)
	}
	return out, nil
}

// ListByClassroom implements learner.Repository.
func (r *LearnerRepository) ListByClassroom(_ context.Context, classroomID string) ([]*learner.Learner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*learner.Learner
	for _, l := range r.learners {
		if l.ClassroomID == classroomID && l.IsActive {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayName() < out[j].DisplayName() })
	return out, nil
}
