package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alem-hub/explorer-points/internal/domain/award"
	"github.com/alem-hub/explorer-points/internal/domain/celebration"
	"github.com/alem-hub/explorer-points/internal/domain/learner"
	"github.com/alem-hub/explorer-points/internal/domain/notification"
	"github.com/alem-hub/explorer-points/internal/domain/shared"
	"github.com/alem-hub/explorer-points/internal/domain/skill"
	"github.com/alem-hub/explorer-points/internal/domain/streak"
	"github.com/alem-hub/explorer-points/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// AWARD POINTS COMMAND
// Awards a skill to one or more learners. Everything that can reject the call
// is checked before the first write. All award rows are then stored in one
// batch; follow-up steps run per learner and never undo the stored awards.
// ══════════════════════════════════════════════════════════════════════════════

// ErrPartialAward is returned together with a non-nil result when every award
// was stored but a follow-up step failed for some learners. The result lists
// them in Failures.
var ErrPartialAward = errors.New("awards stored but follow-up steps failed")

// AwardPointsCommand contains the data to award points.
type AwardPointsCommand struct {
	Scope shared.Scope

	// AwardedBy is the user awarding the points.
	AwardedBy string

	// Role of the awarding user. Defaults to teacher.
	Role shared.Role

	// StudentIDs are the learners to award. Duplicates are ignored.
	StudentIDs []string

	SkillID string

	// Points overrides the skill default when set.
	Points *int

	// Context is an optional free-text note stored on each award.
	Context string

	// WholeClass marks a group award that targeted the whole classroom.
	WholeClass bool

	// AwardedAt defaults to now when zero.
	AwardedAt time.Time

	CorrelationID string
}

// Validate checks the identifiers. Skill and bounds checks need the store
// and happen in the handler.
func (c AwardPointsCommand) Validate() error {
	if err := c.Scope.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.AwardedBy) == "" {
		return shared.ErrAwarderRequired
	}
	if len(shared.UniqueStrings(c.StudentIDs)) == 0 {
		return shared.ErrNoStudents
	}
	if strings.TrimSpace(c.SkillID) == "" {
		return shared.NewDomainError("award", "Validate", shared.ErrInvalidID, "skill ID is required")
	}
	if c.Role != "" && !c.Role.IsValid() {
		return shared.NewDomainError("award", "Validate", shared.ErrInvalidInput, "unknown role: "+string(c.Role))
	}
	return nil
}

// ResolutionWarning reports a requested learner that was skipped.
type ResolutionWarning struct {
	StudentID string
	Reason    string
}

// LearnerFailure is a follow-up step that failed for one learner.
type LearnerFailure struct {
	StudentID string
	Err       error
}

// LearnerOutcome is what happened to one awarded learner.
type LearnerOutcome struct {
	Award        *award.PointAward
	Totals       award.Totals
	Celebrations []*celebration.Celebration

	// Streak is nil for constructive awards.
	Streak *streak.Result
}

// AwardPointsResult contains the result of an award call.
type AwardPointsResult struct {
	Outcomes   []LearnerOutcome
	GroupAward *award.GroupAward
	Warnings   []ResolutionWarning
	Failures   []LearnerFailure

	SkillID    string
	SkillName  string
	Points     int
	IsPositive bool

	SuggestionID string

	Events    []shared.Event
	AwardedAt time.Time
}

// AwardIDs returns the IDs of the created awards in learner order.
func (r *AwardPointsResult) AwardIDs() []string {
	ids := make([]string, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		ids = append(ids, o.Award.ID)
	}
	return ids
}

// StudentIDs returns the learners that were actually awarded.
func (r *AwardPointsResult) StudentIDs() []string {
	ids := make([]string, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		ids = append(ids, o.Award.StudentID)
	}
	return ids
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// AwardPointsHandler handles the AwardPointsCommand.
type AwardPointsHandler struct {
	skills       skill.Repository
	learners     learner.Repository
	awards       award.Repository
	celebrations celebration.Repository
	streaks      *streak.Tracker
	detector     *celebration.Detector
	cache        award.AggregateCache
	notifier     NotificationSender
	publisher    shared.EventPublisher
	ids          IDGenerator
	clock        Clock
	logger       *slog.Logger

	defaultLocation *time.Location
}

// AwardPointsDeps groups the collaborators of AwardPointsHandler.
type AwardPointsDeps struct {
	Skills       skill.Repository
	Learners     learner.Repository
	Awards       award.Repository
	Celebrations celebration.Repository
	Streaks      streak.Repository
	Cache        award.AggregateCache
	Notifier     NotificationSender
	Publisher    shared.EventPublisher
	IDs          IDGenerator
	Clock        Clock
	Logger       *slog.Logger

	// DefaultTimezone applies to learners without a timezone.
	DefaultTimezone string
}

// NewAwardPointsHandler creates a new AwardPointsHandler.
func NewAwardPointsHandler(deps AwardPointsDeps) *AwardPointsHandler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Cache == nil {
		deps.Cache = award.NoopAggregateCache{}
	}
	if deps.Notifier == nil {
		deps.Notifier = noopSender{}
	}
	return &AwardPointsHandler{
		skills:          deps.Skills,
		learners:        deps.Learners,
		awards:          deps.Awards,
		celebrations:    deps.Celebrations,
		streaks:         streak.NewTracker(deps.Streaks),
		detector:        celebration.NewDetector(),
		cache:           deps.Cache,
		notifier:        deps.Notifier,
		publisher:       deps.Publisher,
		ids:             deps.IDs,
		clock:           deps.Clock,
		logger:          deps.Logger.With("handler", "award_points"),
		defaultLocation: timeutil.LoadLocation(deps.DefaultTimezone),
	}
}

// claimFunc runs after validation and learner resolution, before the award
// write. A non-nil error aborts the call with nothing written. release undoes
// the claim when the award write fails afterwards; it may be nil.
type claimFunc func(ctx context.Context, awardedAt time.Time) (release func(context.Context) error, err error)

// awardOrigin carries suggestion provenance into the pipeline.
type awardOrigin struct {
	suggestionID string
	confidence   float64
	claim        claimFunc
}

// Handle executes the award points command.
func (h *AwardPointsHandler) Handle(ctx context.Context, cmd AwardPointsCommand) (*AwardPointsResult, error) {
	return h.handle(ctx, cmd, nil)
}

func (h *AwardPointsHandler) handle(ctx context.Context, cmd AwardPointsCommand, origin *awardOrigin) (*AwardPointsResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("award_points: validation failed: %w", err)
	}
	studentIDs := shared.UniqueStrings(cmd.StudentIDs)

	sk, err := h.skills.GetByID(ctx, cmd.SkillID)
	if err != nil {
		return nil, fmt.Errorf("award_points: %w", err)
	}
	if !sk.InScope(cmd.Scope) {
		return nil, fmt.Errorf("award_points: %w", shared.ErrSkillNotFound)
	}
	if err := sk.CanAward(); err != nil {
		return nil, fmt.Errorf("award_points: %w", err)
	}
	points, err := sk.ResolvePoints(cmd.Points)
	if err != nil {
		return nil, fmt.Errorf("award_points: %w", err)
	}

	resolved, warnings, err := h.resolveLearners(ctx, cmd.Scope.ClassroomID, studentIDs)
	if err != nil {
		return nil, err
	}
	if len(resolved) == 0 {
		return nil, fmt.Errorf("award_points: %w", shared.ErrNoStudentAwarded)
	}

	awardedAt := cmd.AwardedAt
	if awardedAt.IsZero() {
		awardedAt = h.clock.now()
	}
	awardedAt = awardedAt.UTC()

	role := cmd.Role
	if role == "" {
		role = shared.RoleTeacher
	}
	provenance := award.Provenance{AwardedBy: cmd.AwardedBy, Role: role}
	if origin != nil {
		provenance.AISuggestionID = origin.suggestionID
		c := origin.confidence
		provenance.AIConfidence = &c
	}

	var groupID string
	if len(studentIDs) > 1 {
		groupID = h.ids.NewID()
	}

	created := make([]*award.PointAward, 0, len(resolved))
	for _, l := range resolved {
		a := award.NewPointAward(award.NewPointAwardParams{
			ID:          h.ids.NewID(),
			Scope:       cmd.Scope,
			StudentID:   l.ID,
			StudentName: l.DisplayName(),
			Skill:       sk,
			Points:      points,
			Context:     cmd.Context,
			Provenance:  provenance,
			AwardedAt:   awardedAt,
		})
		a.GroupAwardID = groupID
		created = append(created, a)
	}
	var group *award.GroupAward
	if groupID != "" {
		group = award.NewGroupAward(groupID, cmd.Scope, sk, created, points, cmd.WholeClass, cmd.AwardedBy, cmd.Context, awardedAt)
	}

	var release func(context.Context) error
	if origin != nil && origin.claim != nil {
		release, err = origin.claim(ctx, awardedAt)
		if err != nil {
			return nil, fmt.Errorf("award_points: %w", err)
		}
	}

	if err := h.awards.CreateBatch(ctx, created, group); err != nil {
		if release != nil {
			if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
				h.logger.Error("failed to release suggestion claim",
					"suggestion_id", origin.suggestionID,
					"error", rerr,
				)
			}
		}
		return nil, fmt.Errorf("award_points: failed to save awards: %w", err)
	}

	result := &AwardPointsResult{
		GroupAward: group,
		Warnings:   warnings,
		SkillID:    sk.ID,
		SkillName:  sk.Name,
		Points:     points,
		IsPositive: sk.IsPositive,
		AwardedAt:  awardedAt,
	}
	if origin != nil {
		result.SuggestionID = origin.suggestionID
	}

	var errs []error
	for i, l := range resolved {
		a := created[i]
		outcome, err := h.followUp(ctx, cmd, l, sk, a, result)
		if err != nil {
			h.logger.Error("award follow-up failed",
				"student_id", l.ID,
				"award_id", a.ID,
				"error", err,
			)
			result.Failures = append(result.Failures, LearnerFailure{StudentID: l.ID, Err: err})
			errs = append(errs, err)
		}
		result.Outcomes = append(result.Outcomes, *outcome)
	}

	evt := shared.NewPointsAwardedEvent(cmd.Scope, firstNonEmpty(groupID, created[0].ID),
		result.AwardIDs(), result.StudentIDs(), sk.ID, sk.Name, points, sk.IsPositive, cmd.AwardedBy)
	evt.GroupAwardID = groupID
	evt.SuggestionID = result.SuggestionID
	evt.BaseEvent = evt.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	publish(h.publisher, h.logger, evt)
	result.Events = append(result.Events, evt)

	h.invalidate(ctx, cmd.Scope.ClassroomID)

	h.logger.Info("points awarded",
		"classroom_id", cmd.Scope.ClassroomID,
		"skill_id", sk.ID,
		"points", points,
		"students", len(result.Outcomes),
		"skipped", len(warnings),
		"failed", len(result.Failures),
		"suggestion_id", result.SuggestionID,
	)

	if len(errs) > 0 {
		return result, fmt.Errorf("award_points: %w: %w", ErrPartialAward, errors.Join(errs...))
	}
	return result, nil
}

// resolveLearners loads the requested learners and reports the ones that are
// missing, inactive or in another classroom.
func (h *AwardPointsHandler) resolveLearners(ctx context.Context, classroomID string, ids []string) ([]*learner.Learner, []ResolutionWarning, error) {
	found, err := h.learners.GetByIDs(ctx, classroomID, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("award_points: failed to resolve learners: %w", err)
	}
	index := learner.Index(found)

	resolved := make([]*learner.Learner, 0, len(ids))
	var warnings []ResolutionWarning
	for _, id := range ids {
		l, ok := index[id]
		if !ok {
			warnings = append(warnings, ResolutionWarning{StudentID: id, Reason: "learner not found in classroom"})
			h.logger.Warn("skipping unresolved learner",
				"student_id", id,
				"classroom_id", classroomID,
			)
			continue
		}
		resolved = append(resolved, l)
	}
	return resolved, warnings, nil
}

// followUp runs the per-learner steps after the award is stored: usage,
// running total, celebrations, streak, notification. The returned outcome is
// never nil; on error it holds the steps that completed.
func (h *AwardPointsHandler) followUp(ctx context.Context, cmd AwardPointsCommand, l *learner.Learner, sk *skill.Skill, a *award.PointAward, result *AwardPointsResult) (*LearnerOutcome, error) {
	outcome := &LearnerOutcome{Award: a}

	if err := h.skills.IncrementUsage(ctx, sk.ID, a.AwardedAt); err != nil {
		return outcome, fmt.Errorf("failed to record skill usage for %s: %w", l.ID, err)
	}

	if delta := a.PositivePoints(); delta > 0 {
		totals, err := h.awards.AddToRunningTotal(ctx, l.ID, delta)
		if err != nil {
			return outcome, fmt.Errorf("failed to update running total for %s: %w", l.ID, err)
		}
		outcome.Totals = totals

		celebrations, err := h.celebrate(ctx, cmd, l, totals, a.AwardedAt, result)
		outcome.Celebrations = celebrations
		if err != nil {
			return outcome, err
		}
	} else {
		total, err := h.awards.RunningTotal(ctx, l.ID)
		if err != nil {
			return outcome, fmt.Errorf("failed to read running total for %s: %w", l.ID, err)
		}
		outcome.Totals = award.Totals{Before: total, After: total}
	}

	res, err := h.streaks.Advance(ctx, l.ID, cmd.Scope.ClassroomID, sk.IsPositive, a.AwardedAt, h.locationFor(l))
	if err != nil {
		return outcome, fmt.Errorf("failed to advance streak for %s: %w", l.ID, err)
	}
	outcome.Streak = res
	if res != nil {
		for _, days := range res.Milestones {
			evt := shared.NewStreakMilestoneEvent(cmd.Scope, l.ID, days, res.Streak.CurrentStreak, res.Streak.LongestStreak)
			evt.BaseEvent = evt.BaseEvent.WithCorrelationID(cmd.CorrelationID)
			publish(h.publisher, h.logger, evt)
			result.Events = append(result.Events, evt)
		}
	}

	if sk.IsPositive {
		awardID := a.ID
		h.notifier.Send(l.ID, notification.ForAward(a), func(ctx context.Context) error {
			return h.awards.MarkNotified(ctx, awardID)
		})
	}

	return outcome, nil
}

// celebrate records every threshold crossed between totals.Before and
// totals.After. A threshold already recorded for the learner is skipped.
func (h *AwardPointsHandler) celebrate(ctx context.Context, cmd AwardPointsCommand, l *learner.Learner, totals award.Totals, at time.Time, result *AwardPointsResult) ([]*celebration.Celebration, error) {
	var out []*celebration.Celebration
	for _, m := range h.detector.Check(totals.After, totals.Before) {
		c := celebration.New(h.ids.NewID(), cmd.Scope, l.ID, l.FirstName, m, at)
		if err := h.celebrations.Create(ctx, c); err != nil {
			if errors.Is(err, shared.ErrCelebrationExists) {
				h.logger.Debug("celebration already recorded",
					"student_id", l.ID,
					"value", m.Value,
				)
				continue
			}
			return out, fmt.Errorf("failed to save celebration for %s: %w", l.ID, err)
		}
		out = append(out, c)

		evt := shared.NewCelebrationAchievedEvent(cmd.Scope, c.ID, l.ID, string(c.Type), c.Value, c.CertificateEligible, string(c.AnimationTier))
		evt.BaseEvent = evt.BaseEvent.WithCorrelationID(cmd.CorrelationID)
		publish(h.publisher, h.logger, evt)
		result.Events = append(result.Events, evt)

		celebrationID := c.ID
		h.notifier.Send(l.ID, notification.ForCelebration(c), func(ctx context.Context) error {
			return h.celebrations.MarkNotified(ctx, celebrationID)
		})
	}
	return out, nil
}

func (h *AwardPointsHandler) locationFor(l *learner.Learner) *time.Location {
	if l.Timezone == "" {
		return h.defaultLocation
	}
	return timeutil.LoadLocation(l.Timezone)
}

// invalidate drops the classroom's cached reports. Student reports live under
// the classroom key too, since each depends on the classroom daily average.
func (h *AwardPointsHandler) invalidate(ctx context.Context, classroomID string) {
	key := shared.ClassroomScopeKey(classroomID)
	if err := h.cache.Invalidate(ctx, key); err != nil {
		h.logger.Warn("failed to invalidate aggregates",
			"scope_key", key,
			"error", err,
		)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
