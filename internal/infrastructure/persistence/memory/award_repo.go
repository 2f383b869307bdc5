package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alem-hub/explorer-points/internal/domain/award"
	"github.com/alem-hub/explorer-points/internal/domain/shared"
)

// AwardRepository is an in-memory award.Repository.
// Running totals are updated under the write lock, so concurrent awards to
// the same learner are serialized like the SQL UPDATE ... RETURNING path.
type AwardRepository struct {
	mu     sync.RWMutex
	awards map[string]*award.PointAward
	order  []string
	groups map[string]*award.GroupAward
	totals map[string]int
}

// NewAwardRepository creates an empty repository.
func NewAwardRepository() *AwardRepository {
	return &AwardRepository{
		awards: make(map[string]*award.PointAward),
		groups: make(map[string]*award.GroupAward),
		totals: make(map[string]int),
	}
}

// Create implements award.Repository.
func (r *AwardRepository) Create(_ context.Context, a *award.PointAward) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.awards[a.ID]; ok {
		return shared.NewDomainError("award", "Create", shared.ErrAlreadyExists, "award already exists")
	}
	r.awards[a.ID] = cloneAward(a)
	r.order = append(r.order, a.ID)
	return nil
}

// CreateBatch implements award.Repository. Nothing is stored if any ID is taken.
func (r *AwardRepository) CreateBatch(_ context.Context, awards []*award.PointAward, g *award.GroupAward) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]bool, len(awards))
	for _, a := range awards {
		if _, ok := r.awards[a.ID]; ok || seen[a.ID] {
			return shared.NewDomainError("award", "CreateBatch", shared.ErrAlreadyExists, "award already exists")
		}
		seen[a.ID] = true
	}
	for _, a := range awards {
		r.awards[a.ID] = cloneAward(a)
		r.order = append(r.order, a.ID)
	}
	if g != nil {
		r.storeGroup(g)
	}
	return nil
}

func (r *AwardRepository) storeGroup(g *award.GroupAward) {
	cp := *g
	cp.StudentIDs = append([]string(nil), g.StudentIDs...)
	cp.AwardIDs = append([]string(nil), g.AwardIDs...)
	r.groups[g.ID] = &cp
}

// GroupAward returns a stored group summary, for tests and diagnostics.
func (r *AwardRepository) GroupAward(id string) (*award.GroupAward, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups[id]
	if !ok {
		return nil, false
	}
	cp := *g
	return &cp, true
}

// GetByID implements award.Repository.
func (r *AwardRepository) GetByID(_ context.Context, id string) (*award.PointAward, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.awards[id]
	if !ok {
		return nil, shared.ErrAwardNotFound
	}
	return cloneAward(a), nil
}

// ListByStudent implements award.Repository.
func (r *AwardRepository) ListByStudent(_ context.Context, studentID string, f award.Filter) ([]*award.PointAward, error) {
	return r.list(func(a *award.PointAward) bool { return a.StudentID == studentID }, f), nil
}

// ListByClassroom implements award.Repository.
func (r *AwardRepository) ListByClassroom(_ context.Context, classroomID string, f award.Filter) ([]*award.PointAward, error) {
	return r.list(func(a *award.PointAward) bool { return a.ClassroomID == classroomID }, f), nil
}

func (r *AwardRepository) list(match func(*award.PointAward) bool, f award.Filter) []*award.PointAward {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*award.PointAward
	for _, id := range r.order {
		a := r.awards[id]
		if match(a) && f.Matches(a.AwardedAt) {
			out = append(out, cloneAward(a))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AwardedAt.After(out[j].AwardedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// AddToRunningTotal implements award.Repository.
func (r *AwardRepository) AddToRunningTotal(_ context.Context, studentID string, delta int) (award.Totals, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	before := r.totals[studentID]
	r.totals[studentID] = before + delta
	return award.Totals{Before: before, After: before + delta}, nil
}

// RunningTotal implements award.Repository.
func (r *AwardRepository) RunningTotal(_ context.Context, studentID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.totals[studentID], nil
}

// SetRunningTotal seeds a learner's total.
func (r *AwardRepository) SetRunningTotal(studentID string, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totals[studentID] = total
}

// SkillFrequency implements award.Repository.
func (r *AwardRepository) SkillFrequency(_ context.Context, classroomID string, f award.Filter) ([]award.SkillCount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := map[string]*award.SkillCount{}
	for _, a := range r.awards {
		if a.ClassroomID != classroomID || !f.Matches(a.AwardedAt) {
			continue
		}
		c, ok := counts[a.SkillID]
		if !ok {
			c = &award.SkillCount{SkillID: a.SkillID, SkillName: a.SkillName}
			counts[a.SkillID] = c
		}
		c.Count++
	}
	out := make([]award.SkillCount, 0, len(counts))
	for _, c := range counts {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].SkillID < out[j].SkillID
	})
	return out, nil
}

// MarkNotified implements award.Repository.
func (r *AwardRepository) MarkNotified(_ context.Context, id string) error {
	return r.update(id, func(a *award.PointAward) error {
		a.NotificationSent = true
		return nil
	})
}

// MarkViewed implements award.Repository.
func (r *AwardRepository) MarkViewed(_ context.Context, id string, at time.Time) error {
	return r.update(id, func(a *award.PointAward) error {
		a.MarkViewed(at)
		return nil
	})
}

// AddReaction implements award.Repository.
func (r *AwardRepository) AddReaction(_ context.Context, id string, reaction award.Reaction) error {
	return r.update(id, func(a *award.PointAward) error {
		_, err := a.AddReaction(reaction)
		return err
	})
}

func (r *AwardRepository) update(id string, fn func(*award.PointAward) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.awards[id]
	if !ok {
		return shared.ErrAwardNotFound
	}
	return fn(a)
}

func cloneAward(a *award.PointAward) *award.PointAward {
	cp := *a
	cp.Reactions = append([]award.Reaction(nil), a.Reactions...)
	if a.ViewedAt != nil {
		t := *a.ViewedAt
		cp.ViewedAt = &t
	}
	if a.Provenance.AIConfidence != nil {
		c := *a.Provenance.AIConfidence
		cp.Provenance.AIConfidence = &c
	}
	return &cp
}
