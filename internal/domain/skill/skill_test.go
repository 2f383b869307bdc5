package skill

import (
	"strings"
	"testing"
	"time"

	"github.com/alem-hub/explorer-points/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kindHearts() *Skill {
	return &Skill{
		ID:            "kind",
		Name:          "Kind Hearts",
		IsPositive:    true,
		DefaultPoints: 1,
		MinPoints:     1,
		MaxPoints:     3,
		IsActive:      true,
		Scoring: Scoring{
			TriggerKeywords:       []string{"kind"},
			ObservationPhrases:    []string{"helped a friend"},
			AutoSuggestConfidence: 0.5,
		},
	}
}

func TestScore_PhraseOnly(t *testing.T) {
	m := MatchObservation("Emma helped a friend today", kindHearts())

	assert.InDelta(t, 2.0/3.0, m.Confidence, 1e-9)
	assert.Equal(t, []string{"helped a friend"}, m.Phrases)
	assert.Empty(t, m.Keywords)
}

func TestScore_CaseInsensitive(t *testing.T) {
	assert.InDelta(t, 1.0, Score("EMMA WAS KIND AND HELPED A FRIEND", kindHearts()), 1e-9)
}

func TestScore_NoScoringTerms(t *testing.T) {
	s := kindHearts()
	s.Scoring = Scoring{}
	assert.Equal(t, 0.0, Score("anything at all", s))
	assert.Equal(t, 0.0, Score("anything", nil))
}

func TestScore_ContextWeight(t *testing.T) {
	s := kindHearts()
	s.Scoring.ContextIndicators = []string{"playground"}

	// max = 1 + 2 + 0.5
	assert.InDelta(t, 0.5/3.5, Score("on the playground", s), 1e-9)
}

func TestScore_Monotonic(t *testing.T) {
	s := kindHearts()
	s.Scoring.ContextIndicators = []string{"playground", "lunch"}

	observations := []string{
		"Noah",
		"Noah at lunch",
		"Noah at lunch was kind",
		"Noah at lunch was kind and helped a friend",
		"Noah at lunch was kind and helped a friend on the playground",
	}
	prev := -1.0
	for _, obs := range observations {
		c := Score(obs, s)
		assert.GreaterOrEqual(t, c, prev, obs)
		prev = c
	}

	for _, lib := range DefaultLibrary("t1", time.Now()) {
		base := "Mia sat quietly"
		before := Score(base, lib)
		for _, term := range append(lib.Scoring.TriggerKeywords, lib.Scoring.ObservationPhrases...) {
			assert.GreaterOrEqual(t, Score(base+" "+term, lib), before, lib.Name+": "+term)
		}
	}
}

func TestSkill_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *Skill)
		wantErr error
	}{
		{"valid", func(s *Skill) {}, nil},
		{"default below min", func(s *Skill) { s.DefaultPoints = 0 }, shared.ErrInvalidPointBounds},
		{"max below default", func(s *Skill) { s.MaxPoints = 0; s.DefaultPoints = 1 }, shared.ErrInvalidPointBounds},
		{"positive with zero min", func(s *Skill) { s.MinPoints = 0; s.DefaultPoints = 0 }, shared.ErrPointSignMismatch},
		{"negative with positive max", func(s *Skill) { s.IsPositive = false }, shared.ErrPointSignMismatch},
		{"confidence above one", func(s *Skill) { s.Scoring.AutoSuggestConfidence = 1.2 }, shared.ErrInvalidConfidence},
		{"empty name", func(s *Skill) { s.Name = "  " }, shared.ErrSkillNameRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := kindHearts()
			tt.mutate(s)
			err := s.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSkill_ResolvePoints(t *testing.T) {
	s := kindHearts()

	p, err := s.ResolvePoints(nil)
	require.NoError(t, err)
	assert.Equal(t, 1, p)

	three := 3
	p, err = s.ResolvePoints(&three)
	require.NoError(t, err)
	assert.Equal(t, 3, p)

	five := 5
	_, err = s.ResolvePoints(&five)
	assert.ErrorIs(t, err, shared.ErrPointsOutOfBounds)
	assert.True(t, shared.IsValidation(err))
}

func TestSkill_ActivationAndUsage(t *testing.T) {
	s := kindHearts()
	now := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)

	s.RecordUsage(now)
	s.RecordUsage(now)
	assert.Equal(t, 2, s.UsageCount)
	require.NotNil(t, s.LastUsedAt)

	s.Deactivate(now)
	assert.ErrorIs(t, s.CanAward(), shared.ErrSkillInactive)
	assert.True(t, shared.IsStateConflict(s.CanAward()))
	assert.False(t, s.IsSuggestable())

	s.Activate(now)
	assert.NoError(t, s.CanAward())
}

func TestDefaultLibrary_Valid(t *testing.T) {
	lib := DefaultLibrary("tenant-1", time.Now())
	require.NotEmpty(t, lib)

	seen := map[string]bool{}
	for _, s := range lib {
		assert.NoError(t, s.Validate(), s.Name)
		assert.True(t, s.IsSystem)
		assert.False(t, seen[s.ID], "duplicate id %s", s.ID)
		seen[s.ID] = true
		for _, kw := range s.Scoring.TriggerKeywords {
			assert.Equal(t, strings.ToLower(kw), kw)
		}
	}
	assert.NotNil(t, FindByName(lib, "kind hearts"))
}

func TestNewCustomSkill(t *testing.T) {
	scope := shared.Scope{TenantID: "t", SchoolID: "s", ClassroomID: "c"}
	now := time.Now()

	s, err := NewCustomSkill("id-1", scope, "teacher-1", CustomSkillParams{
		Name:            " Garden Helper ",
		IsPositive:      true,
		DefaultPoints:   2,
		MinPoints:       1,
		MaxPoints:       3,
		TriggerKeywords: []string{"Garden", "garden", " watered "},
	}, now)
	require.NoError(t, err)
	assert.Equal(t, "Garden Helper", s.Name)
	assert.True(t, s.IsCustom)
	assert.Equal(t, []string{"garden", "watered"}, s.Scoring.TriggerKeywords)
	assert.True(t, s.InScope(scope))
	assert.False(t, s.InScope(shared.Scope{TenantID: "t", SchoolID: "s", ClassroomID: "other"}))

	_, err = NewCustomSkill("id-2", shared.Scope{TenantID: "t"}, "teacher-1", CustomSkillParams{Name: "x"}, now)
	assert.ErrorIs(t, err, shared.ErrSkillScopeIncomplete)

	_, err = NewCustomSkill("id-3", scope, "teacher-1", CustomSkillParams{
		Name: "Bad", IsPositive: true, DefaultPoints: 5, MinPoints: 1, MaxPoints: 3,
	}, now)
	assert.ErrorIs(t, err, shared.ErrInvalidPointBounds)
}
