// Package memory provides in-memory implementations of every domain repository.
// They back the tests and the worker when no DATABASE_URL is configured.
// Stored values are copied on the way in and out so callers never share state.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alem-hub/explorer-points/internal/domain/shared"
	"github.com/alem-hub/explorer-points/internal/domain/skill"
)

// SkillRepository is an in-memory skill.Repository.
type SkillRepository struct {
	mu     sync.RWMutex
	skills map[string]*skill.Skill
}

// NewSkillRepository creates an empty repository, optionally seeded.
func NewSkillRepository(seed ...*skill.Skill) *SkillRepository {
	r := &SkillRepository{skills: make(map[string]*skill.Skill)}
	for _, s := range seed {
		r.skills[s.ID] = cloneSkill(s)
	}
	return r
}

// GetByID implements skill.Repository.
func (r *SkillRepository) GetByID(_ context.Context, id string) (*skill.Skill, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.skills[id]
	if !ok {
		return nil, shared.ErrSkillNotFound
	}
	return cloneSkill(s), nil
}

// ListByScope implements skill.Repository.
func (r *SkillRepository) ListByScope(_ context.Context, tenantID, schoolID, classroomID string) ([]*skill.Skill, error) {
	scope := shared.Scope{TenantID: tenantID, SchoolID: schoolID, ClassroomID: classroomID}

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*skill.Skill, 0, len(r.skills))
	for _, s := range r.skills {
		if s.InScope(scope) {
			out = append(out, cloneSkill(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Create implements skill.Repository.
func (r *SkillRepository) Create(_ context.Context, s *skill.Skill) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.skills[s.ID]; ok {
		return shared.ErrSkillAlreadyExists
	}
	r.skills[s.ID] = cloneSkill(s)
	return nil
}

// IncrementUsage implements skill.Repository.
func (r *SkillRepository) IncrementUsage(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.skills[id]
	if !ok {
		return shared.ErrSkillNotFound
	}
	s.RecordUsage(at)
	return nil
}

// SetActive implements skill.Repository.
func (r *SkillRepository) SetActive(_ context.Context, id string, active bool, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.skills[id]
	if !ok {
		return shared.ErrSkillNotFound
	}
	if active {
		s.Activate(at)
	} else {
		s.Deactivate(at)
	}
	return nil
}

// CountCustom implements skill.Repository.
func (r *SkillRepository) CountCustom(_ context.Context, classroomID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, s := range r.skills {
		if s.IsCustom && s.ClassroomID == classroomID {
			n++
		}
	}
	return n, nil
}

func cloneSkill(s *skill.Skill) *skill.Skill {
	cp := *s
	cp.AgeBands = append([]skill.AgeBand(nil), s.AgeBands...)
	cp.Scoring.TriggerKeywords = append([]string(nil), s.Scoring.TriggerKeywords...)
	cp.Scoring.ObservationPhrases = append([]string(nil), s.Scoring.ObservationPhrases...)
	cp.Scoring.ContextIndicators = append([]string(nil), s.Scoring.ContextIndicators...)
	if s.LastUsedAt != nil {
		t := *s.LastUsedAt
		cp.LastUsedAt = &t
	}
	return &cp
}
