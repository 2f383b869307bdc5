// Package award contains point award records: one immutable snapshot per
// learner per award event, plus the group summary for multi-learner awards.
package award

import (
	"time"

	"github.com/alem-hub/explorer-points/internal/domain/shared"
	"github.com/alem-hub/explorer-points/internal/domain/skill"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Provenance records who awarded the points and whether an AI suggestion was involved.
type Provenance struct {
	AwardedBy      string      `json:"awarded_by"`
	Role           shared.Role `json:"role"`
	AISuggestionID string      `json:"ai_suggestion_id,omitempty"`
	AIConfidence   *float64    `json:"ai_confidence,omitempty"`
}

// FromSuggestion returns true if the award originated from an accepted suggestion.
func (p Provenance) FromSuggestion() bool {
	return p.AISuggestionID != ""
}

// Reaction is a parent or teacher reaction appended to an award.
type Reaction struct {
	ByID  string    `json:"by_id"`
	Emoji string    `json:"emoji"`
	At    time.Time `json:"at"`
}

// allowedReactions is the fixed set of reaction emojis.
var allowedReactions = map[string]struct{}{
	"❤️": {}, "👏": {}, "🎉": {}, "⭐": {}, "😊": {}, "👍": {},
}

// IsAllowedReaction checks the emoji against the allow-list.
func IsAllowedReaction(emoji string) bool {
	_, ok := allowedReactions[emoji]
	return ok
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: POINT AWARD
// ══════════════════════════════════════════════════════════════════════════════

// PointAward is one learner's record of one award event.
// Skill display fields are copied at award time and never re-read from the
// live skill, so history renders the same after the skill is edited.
// Only NotificationSent, ViewedByParent and Reactions change after creation.
type PointAward struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenant_id"`
	SchoolID    string `json:"school_id"`
	ClassroomID string `json:"classroom_id"`

	StudentID   string `json:"student_id"`
	StudentName string `json:"student_name"`

	SkillID       string         `json:"skill_id"`
	SkillName     string         `json:"skill_name"`
	SkillEmoji    string         `json:"skill_emoji"`
	SkillCategory skill.Category `json:"skill_category"`

	Points     int    `json:"points"`
	IsPositive bool   `json:"is_positive"`
	Context    string `json:"context,omitempty"`

	Provenance Provenance `json:"provenance"`

	GroupAwardID string `json:"group_award_id,omitempty"`

	NotificationSent bool       `json:"notification_sent"`
	ViewedByParent   bool       `json:"viewed_by_parent"`
	ViewedAt         *time.Time `json:"viewed_at,omitempty"`
	Reactions        []Reaction `json:"reactions,omitempty"`

	AwardedAt time.Time `json:"awarded_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Scope returns the award's tenant/school/classroom scope.
func (a *PointAward) Scope() shared.Scope {
	return shared.Scope{TenantID: a.TenantID, SchoolID: a.SchoolID, ClassroomID: a.ClassroomID}
}

// NewPointAwardParams holds the inputs of NewPointAward.
type NewPointAwardParams struct {
	ID          string
	Scope       shared.Scope
	StudentID   string
	StudentName string
	Skill       *skill.Skill
	Points      int
	Context     string
	Provenance  Provenance
	AwardedAt   time.Time
}

// NewPointAward builds the snapshot record. Points are expected to be
// resolved against the skill bounds already.
func NewPointAward(p NewPointAwardParams) *PointAward {
	at := p.AwardedAt.UTC()
	return &PointAward{
		ID:            p.ID,
		TenantID:      p.Scope.TenantID,
		SchoolID:      p.Scope.SchoolID,
		ClassroomID:   p.Scope.ClassroomID,
		StudentID:     p.StudentID,
		StudentName:   p.StudentName,
		SkillID:       p.Skill.ID,
		SkillName:     p.Skill.Name,
		SkillEmoji:    p.Skill.Emoji,
		SkillCategory: p.Skill.Category,
		Points:        p.Points,
		IsPositive:    p.Skill.IsPositive,
		Context:       p.Context,
		Provenance:    p.Provenance,
		AwardedAt:     at,
		CreatedAt:     at,
	}
}

// PositivePoints returns the points that count towards the lifetime total
// used for celebrations. Constructive awards contribute nothing.
func (a *PointAward) PositivePoints() int {
	if a.IsPositive && a.Points > 0 {
		return a.Points
	}
	return 0
}

// AddReaction appends a reaction. A user re-reacting with the same emoji is a no-op.
func (a *PointAward) AddReaction(r Reaction) (bool, error) {
	if !IsAllowedReaction(r.Emoji) {
		return false, shared.ErrInvalidReaction
	}
	for _, existing := range a.Reactions {
		if existing.ByID == r.ByID && existing.Emoji == r.Emoji {
			return false, nil
		}
	}
	r.At = r.At.UTC()
	a.Reactions = append(a.Reactions, r)
	return true, nil
}

// MarkViewed flags the award as seen by a parent.
func (a *PointAward) MarkViewed(at time.Time) {
	if a.ViewedByParent {
		return
	}
	t := at.UTC()
	a.ViewedByParent = true
	a.ViewedAt = &t
}

// ══════════════════════════════════════════════════════════════════════════════
// GROUP AWARD
// ══════════════════════════════════════════════════════════════════════════════

// GroupAward summarizes one award event that targeted several learners.
type GroupAward struct {
	ID          string   `json:"id"`
	TenantID    string   `json:"tenant_id"`
	SchoolID    string   `json:"school_id"`
	ClassroomID string   `json:"classroom_id"`
	SkillID     string   `json:"skill_id"`
	SkillName   string   `json:"skill_name"`
	StudentIDs  []string `json:"student_ids"`
	AwardIDs    []string `json:"award_ids"`

	PointsPerStudent int `json:"points_per_student"`
	TotalPoints      int `json:"total_points"`

	IsWholeClass bool      `json:"is_whole_class"`
	AwardedBy    string    `json:"awarded_by"`
	Context      string    `json:"context,omitempty"`
	AwardedAt    time.Time `json:"awarded_at"`
}

// NewGroupAward builds the summary from the awards actually created.
func NewGroupAward(id string, scope shared.Scope, s *skill.Skill, awards []*PointAward, pointsPerStudent int, wholeClass bool, awardedBy, context string, at time.Time) *GroupAward {
	g := &GroupAward{
		ID:               id,
		TenantID:         scope.TenantID,
		SchoolID:         scope.SchoolID,
		ClassroomID:      scope.ClassroomID,
		SkillID:          s.ID,
		SkillName:        s.Name,
		StudentIDs:       make([]string, 0, len(awards)),
		AwardIDs:         make([]string, 0, len(awards)),
		PointsPerStudent: pointsPerStudent,
		TotalPoints:      pointsPerStudent * len(awards),
		IsWholeClass:     wholeClass,
		AwardedBy:        awardedBy,
		Context:          context,
		AwardedAt:        at.UTC(),
	}
	for _, a := range awards {
		g.StudentIDs = append(g.StudentIDs, a.StudentID)
		g.AwardIDs = append(g.AwardIDs, a.ID)
	}
	return g
}
