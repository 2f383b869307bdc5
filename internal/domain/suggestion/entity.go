// Package suggestion contains AI award suggestions: the generator that turns an
// observation into ranked drafts, and the lifecycle a persisted suggestion
// goes through until a teacher decides or it expires.
package suggestion

import (
	"time"

	"github.com/alem-hub/explorer-points/internal/domain/shared"
)

// TTL is the fixed window a suggestion stays actionable.
const TTL = 30 * time.Minute

// ══════════════════════════════════════════════════════════════════════════════
// STATUS
// ══════════════════════════════════════════════════════════════════════════════

// Status is the lifecycle state of a suggestion.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusModified Status = "modified"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

// IsTerminal returns true for every state except pending.
func (s Status) IsTerminal() bool {
	return s != StatusPending
}

// IsValid checks if the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusModified, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Alternative is a runner-up skill for the same observation.
type Alternative struct {
	SkillID    string  `json:"skill_id"`
	SkillName  string  `json:"skill_name"`
	Confidence float64 `json:"confidence"`
}

// Overrides are teacher edits applied when accepting.
type Overrides struct {
	StudentIDs []string `json:"student_ids,omitempty"`
	SkillID    string   `json:"skill_id,omitempty"`
	Points     *int     `json:"points,omitempty"`
}

// IsEmpty returns true if no override was supplied.
func (o *Overrides) IsEmpty() bool {
	return o == nil || (len(o.StudentIDs) == 0 && o.SkillID == "" && o.Points == nil)
}

// Decision records who moved the suggestion out of pending, and how.
type Decision struct {
	By        string     `json:"by"`
	At        time.Time  `json:"at"`
	Reason    string     `json:"reason,omitempty"`
	Overrides *Overrides `json:"overrides,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: SUGGESTION
// ══════════════════════════════════════════════════════════════════════════════

// Suggestion is a persisted AI award proposal.
// It is never mutated after reaching a terminal state.
type Suggestion struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenant_id"`
	SchoolID    string `json:"school_id"`
	ClassroomID string `json:"classroom_id"`

	Observation string   `json:"observation"`
	StudentIDs  []string `json:"student_ids"`

	SkillID    string `json:"skill_id"`
	SkillName  string `json:"skill_name"`
	SkillEmoji string `json:"skill_emoji"`
	Points     int    `json:"points"`

	Reasoning          string        `json:"reasoning"`
	Confidence         float64       `json:"confidence"`
	DetectedBehaviours []string      `json:"detected_behaviours"`
	Alternatives       []Alternative `json:"alternatives,omitempty"`

	Status      Status    `json:"status"`
	SuggestedAt time.Time `json:"suggested_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Decision    *Decision `json:"decision,omitempty"`
}

// New builds a pending suggestion from a generator draft.
func New(id string, scope shared.Scope, observation string, d Draft, now time.Time) *Suggestion {
	at := now.UTC()
	return &Suggestion{
		ID:                 id,
		TenantID:           scope.TenantID,
		SchoolID:           scope.SchoolID,
		ClassroomID:        scope.ClassroomID,
		Observation:        observation,
		StudentIDs:         append([]string(nil), d.StudentIDs...),
		SkillID:            d.SkillID,
		SkillName:          d.SkillName,
		SkillEmoji:         d.SkillEmoji,
		Points:             d.Points,
		Reasoning:          d.Reasoning,
		Confidence:         d.Confidence,
		DetectedBehaviours: append([]string(nil), d.DetectedBehaviours...),
		Alternatives:       append([]Alternative(nil), d.Alternatives...),
		Status:             StatusPending,
		SuggestedAt:        at,
		ExpiresAt:          at.Add(TTL),
	}
}

// Scope returns the suggestion's scope.
func (s *Suggestion) Scope() shared.Scope {
	return shared.Scope{TenantID: s.TenantID, SchoolID: s.SchoolID, ClassroomID: s.ClassroomID}
}

// IsExpired reports whether the actionable window has passed.
func (s *Suggestion) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Accept moves pending to accepted, or to modified when overrides are present.
func (s *Suggestion) Accept(by string, overrides *Overrides, now time.Time) error {
	if s.Status != StatusPending {
		return s.notPending("Accept")
	}
	if s.IsExpired(now) {
		return shared.ErrSuggestionExpired
	}
	s.Status = StatusAccepted
	d := &Decision{By: by, At: now.UTC()}
	if !overrides.IsEmpty() {
		s.Status = StatusModified
		o := *overrides
		d.Overrides = &o
	}
	s.Decision = d
	return nil
}

// Reject moves pending to rejected.
func (s *Suggestion) Reject(by, reason string, now time.Time) error {
	if s.Status != StatusPending {
		return s.notPending("Reject")
	}
	if s.IsExpired(now) {
		return shared.ErrSuggestionExpired
	}
	s.Status = StatusRejected
	s.Decision = &Decision{By: by, At: now.UTC(), Reason: reason}
	return nil
}

// Expire moves a pending suggestion past its window to expired.
func (s *Suggestion) Expire(now time.Time) error {
	if s.Status != StatusPending {
		return s.notPending("Expire")
	}
	if !s.IsExpired(now) {
		return shared.NewDomainError("suggestion", "Expire", shared.ErrInvalidState, "suggestion is still within its window")
	}
	s.Status = StatusExpired
	s.Decision = &Decision{By: string(shared.RoleSystem), At: now.UTC()}
	return nil
}

// Effective returns the students, skill and points an accept should award,
// with overrides applied on top of the suggested values.
func (s *Suggestion) Effective(overrides *Overrides) (studentIDs []string, skillID string, points *int) {
	studentIDs = s.StudentIDs
	skillID = s.SkillID
	p := s.Points
	points = &p
	if overrides.IsEmpty() {
		return studentIDs, skillID, points
	}
	if len(overrides.StudentIDs) > 0 {
		studentIDs = overrides.StudentIDs
	}
	if overrides.SkillID != "" && overrides.SkillID != s.SkillID {
		skillID = overrides.SkillID
		// A different skill starts from its own default unless points are given.
		points = nil
	}
	if overrides.Points != nil {
		v := *overrides.Points
		points = &v
	}
	return studentIDs, skillID, points
}

func (s *Suggestion) notPending(op string) error {
	return shared.WrapError("suggestion", op, shared.ErrStateTransition,
		"suggestion is "+string(s.Status), shared.ErrSuggestionNotPending)
}
