package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alem-hub/explorer-points/internal/domain/shared"
	"github.com/alem-hub/explorer-points/internal/domain/suggestion"
)

// SuggestionRepository is an in-memory suggestion.Repository.
type SuggestionRepository struct {
	mu    sync.RWMutex
	items map[string]*suggestion.Suggestion
}

// NewSuggestionRepository creates an empty repository.
func NewSuggestionRepository() *SuggestionRepository {
	return &SuggestionRepository{items: make(map[string]*suggestion.Suggestion)}
}

// Create implements suggestion.Repository.
func (r *SuggestionRepository) Create(_ context.Context, s *suggestion.Suggestion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[s.ID]; ok {
		return shared.NewDomainError("suggestion", "Create", shared.ErrAlreadyExists, "suggestion already exists")
	}
	r.items[s.ID] = cloneSuggestion(s)
	return nil
}

// GetByID implements suggestion.Repository.
func (r *SuggestionRepository) GetByID(_ context.Context, id string) (*suggestion.Suggestion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.items[id]
	if !ok {
		return nil, shared.ErrSuggestionNotFound
	}
	return cloneSuggestion(s), nil
}

// ListPendingByClassroom implements suggestion.Repository.
func (r *SuggestionRepository) ListPendingByClassroom(_ context.Context, classroomID string) ([]*suggestion.Suggestion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*suggestion.Suggestion
	for _, s := range r.items {
		if s.ClassroomID == classroomID && s.Status == suggestion.StatusPending {
			out = append(out, cloneSuggestion(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SuggestedAt.After(out[j].SuggestedAt) })
	return out, nil
}

// Transition implements suggestion.Repository.
func (r *SuggestionRepository) Transition(_ context.Context, from suggestion.Status, next *suggestion.Suggestion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.items[next.ID]
	if !ok {
		return shared.ErrSuggestionNotFound
	}
	if cur.Status != from {
		return shared.ErrSuggestionNotPending
	}
	r.items[next.ID] = cloneSuggestion(next)
	return nil
}

// ExpireBefore implements suggestion.Repository.
func (r *SuggestionRepository) ExpireBefore(_ context.Context, classroomID string, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.items {
		if classroomID != "" && s.ClassroomID != classroomID {
			continue
		}
		if s.Status != suggestion.StatusPending || s.ExpiresAt.After(cutoff) {
			continue
		}
		if err := s.Expire(cutoff); err == nil {
			n++
		}
	}
	return n, nil
}

func cloneSuggestion(s *suggestion.Suggestion) *suggestion.Suggestion {
	cp := *s
	cp.StudentIDs = append([]string(nil), s.StudentIDs...)
	cp.DetectedBehaviours = append([]string(nil), s.DetectedBehaviours...)
	cp.Alternatives = append([]suggestion.Alternative(nil), s.Alternatives...)
	if s.Decision != nil {
		d := *s.Decision
		if d.Overrides != nil {
			o := *d.Overrides
			o.StudentIDs = append([]string(nil), d.Overrides.StudentIDs...)
			d.Overrides = &o
		}
		cp.Decision = &d
	}
	return &cp
}
