// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Consumers (feeds, caches, parent apps) subscribe to these;
// the engine never waits for delivery confirmation.
const (
	// Points events
	EventPointsAwarded EventType = "points.awarded"

	// Milestone events
	EventCelebrationAchieved EventType = "celebration.achieved"
	EventStreakMilestone     EventType = "streak.milestone"

	// Suggestion events
	EventSuggestionCreated  EventType = "suggestion.created"
	EventSuggestionAccepted EventType = "suggestion.accepted"
	EventSuggestionModified EventType = "suggestion.modified"
	EventSuggestionRejected EventType = "suggestion.rejected"
	EventSuggestionsExpired EventType = "suggestion.expired"

	// Skill library events
	EventSkillCreated           EventType = "skill.created"
	EventSkillActivationChanged EventType = "skill.activation_changed"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Scope         Scope     `json:"scope"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string, scope Scope) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
		Scope:       scope,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// withScope merges the scope into a payload map.
func (e BaseEvent) withScope(payload map[string]interface{}) map[string]interface{} {
	for k, v := range e.Scope.Map() {
		payload[k] = v
	}
	if e.CorrelationID != "" {
		payload["correlation_id"] = e.CorrelationID
	}
	return payload
}

// ═══════════════════════════════════════════════════════════════════════════
// Points Events
// ═══════════════════════════════════════════════════════════════════════════

// PointsAwardedEvent summarizes one award call: every learner who received
// points, the skill and the per-learner value.
type PointsAwardedEvent struct {
	BaseEvent
	AwardIDs     []string `json:"award_ids"`
	StudentIDs   []string `json:"student_ids"`
	SkillID      string   `json:"skill_id"`
	SkillName    string   `json:"skill_name"`
	Points       int      `json:"points"`
	IsPositive   bool     `json:"is_positive"`
	AwardedBy    string   `json:"awarded_by"`
	GroupAwardID string   `json:"group_award_id,omitempty"`
	SuggestionID string   `json:"suggestion_id,omitempty"`
}

// Payload implements Event interface.
func (e PointsAwardedEvent) Payload() map[string]interface{} {
	return e.withScope(map[string]interface{}{
		"award_ids":      e.AwardIDs,
		"student_ids":    e.StudentIDs,
		"skill_id":       e.SkillID,
		"skill_name":     e.SkillName,
		"points":         e.Points,
		"is_positive":    e.IsPositive,
		"awarded_by":     e.AwardedBy,
		"group_award_id": e.GroupAwardID,
		"suggestion_id":  e.SuggestionID,
	})
}

// NewPointsAwardedEvent creates a new PointsAwardedEvent.
func NewPointsAwardedEvent(scope Scope, aggregateID string, awardIDs, studentIDs []string, skillID, skillName string, points int, positive bool, awardedBy string) PointsAwardedEvent {
	return PointsAwardedEvent{
		BaseEvent:  NewBaseEvent(EventPointsAwarded, aggregateID, scope),
		AwardIDs:   awardIDs,
		StudentIDs: studentIDs,
		SkillID:    skillID,
		SkillName:  skillName,
		Points:     points,
		IsPositive: positive,
		AwardedBy:  awardedBy,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Milestone Events
// ═══════════════════════════════════════════════════════════════════════════

// CelebrationAchievedEvent is emitted when a learner crosses a points threshold.
type CelebrationAchievedEvent struct {
	BaseEvent
	StudentID     string `json:"student_id"`
	MilestoneType string `json:"milestone_type"`
	Value         int    `json:"value"`
	Certificate   bool   `json:"certificate"`
	AnimationTier string `json:"animation_tier"`
}

// Payload implements Event interface.
func (e CelebrationAchievedEvent) Payload() map[string]interface{} {
	return e.withScope(map[string]interface{}{
		"student_id":     e.StudentID,
		"milestone_type": e.MilestoneType,
		"value":          e.Value,
		"certificate":    e.Certificate,
		"animation_tier": e.AnimationTier,
	})
}

// NewCelebrationAchievedEvent creates a new CelebrationAchievedEvent.
func NewCelebrationAchievedEvent(scope Scope, celebrationID, studentID, milestoneType string, value int, certificate bool, tier string) CelebrationAchievedEvent {
	return CelebrationAchievedEvent{
		BaseEvent:     NewBaseEvent(EventCelebrationAchieved, celebrationID, scope),
		StudentID:     studentID,
		MilestoneType: milestoneType,
		Value:         value,
		Certificate:   certificate,
		AnimationTier: tier,
	}
}

// StreakMilestoneEvent is emitted the first time a streak reaches a milestone length.
type StreakMilestoneEvent struct {
	BaseEvent
	StudentID     string `json:"student_id"`
	Days          int    `json:"days"`
	CurrentStreak int    `json:"current_streak"`
	LongestStreak int    `json:"longest_streak"`
}

// Payload implements Event interface.
func (e StreakMilestoneEvent) Payload() map[string]interface{} {
	return e.withScope(map[string]interface{}{
		"student_id":     e.StudentID,
		"days":           e.Days,
		"current_streak": e.CurrentStreak,
		"longest_streak": e.LongestStreak,
	})
}

// NewStreakMilestoneEvent creates a new StreakMilestoneEvent.
func NewStreakMilestoneEvent(scope Scope, studentID string, days, current, longest int) StreakMilestoneEvent {
	return StreakMilestoneEvent{
		BaseEvent:     NewBaseEvent(EventStreakMilestone, studentID, scope),
		StudentID:     studentID,
		Days:          days,
		CurrentStreak: current,
		LongestStreak: longest,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Suggestion Events
// ═══════════════════════════════════════════════════════════════════════════

// SuggestionCreatedEvent is emitted when the generator persists a new pending suggestion.
type SuggestionCreatedEvent struct {
	BaseEvent
	StudentIDs []string  `json:"student_ids"`
	SkillID    string    `json:"skill_id"`
	Points     int       `json:"points"`
	Confidence float64   `json:"confidence"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Payload implements Event interface.
func (e SuggestionCreatedEvent) Payload() map[string]interface{} {
	return e.withScope(map[string]interface{}{
		"student_ids": e.StudentIDs,
		"skill_id":    e.SkillID,
		"points":      e.Points,
		"confidence":  e.Confidence,
		"expires_at":  e.ExpiresAt.Format(time.RFC3339),
	})
}

// NewSuggestionCreatedEvent creates a new SuggestionCreatedEvent.
func NewSuggestionCreatedEvent(scope Scope, suggestionID string, studentIDs []string, skillID string, points int, confidence float64, expiresAt time.Time) SuggestionCreatedEvent {
	return SuggestionCreatedEvent{
		BaseEvent:  NewBaseEvent(EventSuggestionCreated, suggestionID, scope),
		StudentIDs: studentIDs,
		SkillID:    skillID,
		Points:     points,
		Confidence: confidence,
		ExpiresAt:  expiresAt,
	}
}

// SuggestionDecidedEvent is emitted when a teacher accepts, modifies or rejects a suggestion.
type SuggestionDecidedEvent struct {
	BaseEvent
	DecidedBy string   `json:"decided_by"`
	Reason    string   `json:"reason,omitempty"`
	AwardIDs  []string `json:"award_ids,omitempty"`
}

// Payload implements Event interface.
func (e SuggestionDecidedEvent) Payload() map[string]interface{} {
	return e.withScope(map[string]interface{}{
		"decided_by": e.DecidedBy,
		"reason":     e.Reason,
		"award_ids":  e.AwardIDs,
	})
}

// NewSuggestionDecidedEvent creates a new SuggestionDecidedEvent of the given type.
func NewSuggestionDecidedEvent(eventType EventType, scope Scope, suggestionID, decidedBy, reason string, awardIDs []string) SuggestionDecidedEvent {
	return SuggestionDecidedEvent{
		BaseEvent: NewBaseEvent(eventType, suggestionID, scope),
		DecidedBy: decidedBy,
		Reason:    reason,
		AwardIDs:  awardIDs,
	}
}

// SuggestionsExpiredEvent is emitted by the lazy expiry sweep when it expires at least one suggestion.
type SuggestionsExpiredEvent struct {
	BaseEvent
	Count  int       `json:"count"`
	Cutoff time.Time `json:"cutoff"`
}

// Payload implements Event interface.
func (e SuggestionsExpiredEvent) Payload() map[string]interface{} {
	return e.withScope(map[string]interface{}{
		"count":  e.Count,
		"cutoff": e.Cutoff.Format(time.RFC3339),
	})
}

// NewSuggestionsExpiredEvent creates a new SuggestionsExpiredEvent.
func NewSuggestionsExpiredEvent(scope Scope, count int, cutoff time.Time) SuggestionsExpiredEvent {
	return SuggestionsExpiredEvent{
		BaseEvent: NewBaseEvent(EventSuggestionsExpired, scope.ClassroomID, scope),
		Count:     count,
		Cutoff:    cutoff,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Skill Events
// ═══════════════════════════════════════════════════════════════════════════

// SkillChangedEvent is emitted when a custom skill is created or a skill is (de)activated.
type SkillChangedEvent struct {
	BaseEvent
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
	ActorID  string `json:"actor_id"`
}

// Payload implements Event interface.
func (e SkillChangedEvent) Payload() map[string]interface{} {
	return e.withScope(map[string]interface{}{
		"name":      e.Name,
		"is_active": e.IsActive,
		"actor_id":  e.ActorID,
	})
}

// NewSkillChangedEvent creates a new SkillChangedEvent.
func NewSkillChangedEvent(eventType EventType, scope Scope, skillID, name string, active bool, actorID string) SkillChangedEvent {
	return SkillChangedEvent{
		BaseEvent: NewBaseEvent(eventType, skillID, scope),
		Name:      name,
		IsActive:  active,
		ActorID:   actorID,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Bus Contracts
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
