// Package skill contains the skill library: the catalog of awardable behaviours,
// their scoring metadata, and the scorer that matches observations against them.
package skill

import (
	"strings"
	"time"

	"github.com/alem-hub/explorer-points/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Category groups skills for display and analytics.
type Category string

const (
	CategoryKindness       Category = "kindness"
	CategoryTeamwork       Category = "teamwork"
	CategoryPerseverance   Category = "perseverance"
	CategoryCuriosity      Category = "curiosity"
	CategoryResponsibility Category = "responsibility"
	CategoryCreativity     Category = "creativity"
	CategoryParticipation  Category = "participation"
	CategoryConstructive   Category = "constructive"
	CategoryCustom         Category = "custom"
)

// AgeBand is an age range a skill is written for.
type AgeBand string

const (
	AgeBandEarlyYears AgeBand = "3-5"
	AgeBandPrimary    AgeBand = "6-8"
	AgeBandJunior     AgeBand = "9-11"
	AgeBandSenior     AgeBand = "12-14"
)

// AllAgeBands lists every supported age band.
var AllAgeBands = []AgeBand{AgeBandEarlyYears, AgeBandPrimary, AgeBandJunior, AgeBandSenior}

// Scoring holds the configuration the scorer matches observations against.
type Scoring struct {
	// TriggerKeywords are single words that hint at the behaviour (weight 1).
	TriggerKeywords []string `json:"trigger_keywords"`

	// ObservationPhrases are multi-word phrases; stronger signal (weight 2).
	ObservationPhrases []string `json:"observation_phrases"`

	// ContextIndicators are situational words (weight 0.5).
	ContextIndicators []string `json:"context_indicators"`

	// AutoSuggestConfidence is the minimum confidence for an AI suggestion, in [0,1].
	AutoSuggestConfidence float64 `json:"auto_suggest_confidence"`
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: SKILL
// ══════════════════════════════════════════════════════════════════════════════

// Skill is one awardable behaviour in the library.
// Skills are never hard-deleted while award history references them;
// Deactivate is the only removal.
type Skill struct {
	ID          string   `json:"id"`
	TenantID    string   `json:"tenant_id"`
	SchoolID    string   `json:"school_id,omitempty"`
	ClassroomID string   `json:"classroom_id,omitempty"`
	Name        string   `json:"name"`
	Emoji       string   `json:"emoji"`
	Description string   `json:"description"`
	Category    Category `json:"category"`

	IsPositive    bool `json:"is_positive"`
	DefaultPoints int  `json:"default_points"`
	MinPoints     int  `json:"min_points"`
	MaxPoints     int  `json:"max_points"`

	AgeBands []AgeBand `json:"age_bands"`
	Scoring  Scoring   `json:"scoring"`

	IsActive   bool       `json:"is_active"`
	UsageCount int        `json:"usage_count"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`

	IsSystem  bool   `json:"is_system"`
	IsCustom  bool   `json:"is_custom"`
	CreatedBy string `json:"created_by,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the point bounds invariant and scoring configuration.
func (s *Skill) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return shared.ErrSkillNameRequired
	}
	if !(s.MinPoints <= s.DefaultPoints && s.DefaultPoints <= s.MaxPoints) {
		return shared.ErrInvalidPointBounds
	}
	if s.IsPositive {
		if s.MinPoints <= 0 {
			return shared.ErrPointSignMismatch
		}
	} else if s.MaxPoints >= 0 {
		return shared.ErrPointSignMismatch
	}
	if s.Scoring.AutoSuggestConfidence < 0 || s.Scoring.AutoSuggestConfidence > 1 {
		return shared.ErrInvalidConfidence
	}
	return nil
}

// ResolvePoints returns the override when present, otherwise the default,
// and rejects any value outside [MinPoints, MaxPoints].
func (s *Skill) ResolvePoints(override *int) (int, error) {
	value := s.DefaultPoints
	if override != nil {
		value = *override
	}
	if value < s.MinPoints || value > s.MaxPoints {
		return 0, shared.WrapError("skill", "ResolvePoints", shared.ErrValueOutOfRange,
			"points outside skill bounds", shared.ErrPointsOutOfBounds)
	}
	return value, nil
}

// CanAward returns an error if the skill cannot currently be awarded.
func (s *Skill) CanAward() error {
	if !s.IsActive {
		return shared.ErrSkillInactive
	}
	return nil
}

// RecordUsage increments the usage counter.
func (s *Skill) RecordUsage(at time.Time) {
	s.UsageCount++
	t := at.UTC()
	s.LastUsedAt = &t
	s.UpdatedAt = t
}

// Deactivate hides the skill from awarding and suggestion generation.
// Past awards keep their denormalized snapshot.
func (s *Skill) Deactivate(at time.Time) {
	s.IsActive = false
	s.UpdatedAt = at.UTC()
}

// Activate re-enables a deactivated skill.
func (s *Skill) Activate(at time.Time) {
	s.IsActive = true
	s.UpdatedAt = at.UTC()
}

// IsSuggestable returns true if the generator may propose this skill.
func (s *Skill) IsSuggestable() bool {
	return s.IsActive && s.IsPositive
}

// SuitsAgeBand reports whether the skill is written for the given band.
// Skills without age bands apply to everyone.
func (s *Skill) SuitsAgeBand(band AgeBand) bool {
	if len(s.AgeBands) == 0 || band == "" {
		return true
	}
	for _, b := range s.AgeBands {
		if b == band {
			return true
		}
	}
	return false
}

// ══════════════════════════════════════════════════════════════════════════════
// CUSTOM SKILLS
// ══════════════════════════════════════════════════════════════════════════════

// MaxCustomSkillsPerClassroom caps teacher-created skills per classroom.
const MaxCustomSkillsPerClassroom = 25

// CustomSkillParams holds the teacher-provided fields of a custom skill.
type CustomSkillParams struct {
	Name               string
	Emoji              string
	Description        string
	IsPositive         bool
	DefaultPoints      int
	MinPoints          int
	MaxPoints          int
	TriggerKeywords    []string
	ObservationPhrases []string
	ContextIndicators  []string
	Confidence         float64
}

// NewCustomSkill creates a teacher-owned skill scoped to a classroom.
func NewCustomSkill(id string, scope shared.Scope, createdBy string, p CustomSkillParams, now time.Time) (*Skill, error) {
	if scope.SchoolID == "" || scope.ClassroomID == "" {
		return nil, shared.ErrSkillScopeIncomplete
	}
	confidence := p.Confidence
	if confidence == 0 {
		confidence = 0.6
	}
	category := CategoryCustom
	if !p.IsPositive {
		category = CategoryConstructive
	}
	s := &Skill{
		ID:            id,
		TenantID:      scope.TenantID,
		SchoolID:      scope.SchoolID,
		ClassroomID:   scope.ClassroomID,
		Name:          strings.TrimSpace(p.Name),
		Emoji:         p.Emoji,
		Description:   p.Description,
		Category:      category,
		IsPositive:    p.IsPositive,
		DefaultPoints: p.DefaultPoints,
		MinPoints:     p.MinPoints,
		MaxPoints:     p.MaxPoints,
		AgeBands:      append([]AgeBand(nil), AllAgeBands...),
		Scoring: Scoring{
			TriggerKeywords:       normalizeTerms(p.TriggerKeywords),
			ObservationPhrases:    normalizeTerms(p.ObservationPhrases),
			ContextIndicators:     normalizeTerms(p.ContextIndicators),
			AutoSuggestConfidence: confidence,
		},
		IsActive:  true,
		IsCustom:  true,
		CreatedBy: createdBy,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// normalizeTerms lower-cases, trims and de-duplicates scoring terms.
func normalizeTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	seen := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
