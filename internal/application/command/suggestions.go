package command

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/explorer-points/internal/domain/award"
	"github.com/alem-hub/explorer-points/internal/domain/learner"
	"github.com/alem-hub/explorer-points/internal/domain/shared"
	"github.com/alem-hub/explorer-points/internal/domain/skill"
	"github.com/alem-hub/explorer-points/internal/domain/suggestion"
)

// ══════════════════════════════════════════════════════════════════════════════
// GENERATE SUGGESTIONS COMMAND
// Turns a free-text observation into pending award suggestions for the
// learners it names.
// ══════════════════════════════════════════════════════════════════════════════

// GenerateSuggestionsCommand contains one observation to analyze.
type GenerateSuggestionsCommand struct {
	Scope       shared.Scope
	Observation string

	// CandidateIDs limits name matching to these learners. Empty means the
	// whole classroom.
	CandidateIDs []string

	// MaxSuggestions overrides the configured cap when positive.
	MaxSuggestions int

	RequestedBy   string
	CorrelationID string
}

// Validate validates the command.
func (c GenerateSuggestionsCommand) Validate() error {
	if err := c.Scope.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Observation) == "" {
		return shared.ErrObservationRequired
	}
	return nil
}

// GenerateSuggestionsResult contains the persisted suggestions.
type GenerateSuggestionsResult struct {
	Suggestions     []*suggestion.Suggestion
	NamedStudentIDs []string
	Patterns        []string
	Latency         time.Duration
}

// GenerateSuggestionsConfig contains configuration for the handler.
type GenerateSuggestionsConfig struct {
	Generator suggestion.GeneratorConfig

	// RecentWindow is how far back awards are read for pattern detection.
	RecentWindow time.Duration

	// RecentLimit caps the number of recent awards read.
	RecentLimit int
}

// DefaultGenerateSuggestionsConfig returns default configuration.
func DefaultGenerateSuggestionsConfig() GenerateSuggestionsConfig {
	return GenerateSuggestionsConfig{
		Generator:    suggestion.DefaultGeneratorConfig(),
		RecentWindow: 7 * 24 * time.Hour,
		RecentLimit:  100,
	}
}

// GenerateSuggestionsHandler handles the GenerateSuggestionsCommand.
type GenerateSuggestionsHandler struct {
	skills       skill.Repository
	learners     learner.Repository
	awards       award.Repository
	suggestions  suggestion.Repository
	generator    *suggestion.Generator
	publisher    shared.EventPublisher
	ids          IDGenerator
	interactions *InteractionLog
	fingerprint  *Fingerprinter
	clock        Clock
	logger       *slog.Logger
	config       GenerateSuggestionsConfig
}

// GenerateSuggestionsDeps groups the collaborators of GenerateSuggestionsHandler.
type GenerateSuggestionsDeps struct {
	Skills       skill.Repository
	Learners     learner.Repository
	Awards       award.Repository
	Suggestions  suggestion.Repository
	Publisher    shared.EventPublisher
	IDs          IDGenerator
	Interactions *InteractionLog
	Fingerprint  *Fingerprinter
	Clock        Clock
	Logger       *slog.Logger
}

// NewGenerateSuggestionsHandler creates a new GenerateSuggestionsHandler.
func NewGenerateSuggestionsHandler(deps GenerateSuggestionsDeps, config GenerateSuggestionsConfig) *GenerateSuggestionsHandler {
	def := DefaultGenerateSuggestionsConfig()
	if config.RecentWindow <= 0 {
		config.RecentWindow = def.RecentWindow
	}
	if config.RecentLimit <= 0 {
		config.RecentLimit = def.RecentLimit
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Interactions == nil {
		deps.Interactions = NewInteractionLog(0)
	}
	if deps.Fingerprint == nil {
		deps.Fingerprint = &Fingerprinter{}
	}
	return &GenerateSuggestionsHandler{
		skills:       deps.Skills,
		learners:     deps.Learners,
		awards:       deps.Awards,
		suggestions:  deps.Suggestions,
		generator:    suggestion.NewGenerator(config.Generator),
		publisher:    deps.Publisher,
		ids:          deps.IDs,
		interactions: deps.Interactions,
		fingerprint:  deps.Fingerprint,
		clock:        deps.Clock,
		logger:       deps.Logger.With("handler", "generate_suggestions"),
		config:       config,
	}
}

// Handle executes the generate suggestions command.
func (h *GenerateSuggestionsHandler) Handle(ctx context.Context, cmd GenerateSuggestionsCommand) (*GenerateSuggestionsResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("generate_suggestions: validation failed: %w", err)
	}
	started := h.clock.now()

	library, err := h.skills.ListByScope(ctx, cmd.Scope.TenantID, cmd.Scope.SchoolID, cmd.Scope.ClassroomID)
	if err != nil {
		return nil, fmt.Errorf("generate_suggestions: failed to load skills: %w", err)
	}

	var candidates []*learner.Learner
	if ids := shared.UniqueStrings(cmd.CandidateIDs); len(ids) > 0 {
		candidates, err = h.learners.GetByIDs(ctx, cmd.Scope.ClassroomID, ids)
	} else {
		candidates, err = h.learners.ListByClassroom(ctx, cmd.Scope.ClassroomID)
	}
	if err != nil {
		return nil, fmt.Errorf("generate_suggestions: failed to load learners: %w", err)
	}

	recent, err := h.awards.ListByClassroom(ctx, cmd.Scope.ClassroomID, award.Filter{
		From:  started.Add(-h.config.RecentWindow),
		Limit: h.config.RecentLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("generate_suggestions: failed to load recent awards: %w", err)
	}

	out := h.generator.Generate(suggestion.Input{
		Observation:    cmd.Observation,
		Candidates:     candidates,
		Library:        library,
		RecentAwards:   recent,
		MaxSuggestions: cmd.MaxSuggestions,
	})

	result := &GenerateSuggestionsResult{
		NamedStudentIDs: out.NamedStudent,
		Patterns:        out.Patterns,
	}
	for _, d := range out.Drafts {
		s := suggestion.New(h.ids.NewID(), cmd.Scope, cmd.Observation, d, started)
		if err := h.suggestions.Create(ctx, s); err != nil {
			return nil, fmt.Errorf("generate_suggestions: failed to save suggestion: %w", err)
		}
		result.Suggestions = append(result.Suggestions, s)

		evt := shared.NewSuggestionCreatedEvent(cmd.Scope, s.ID, s.StudentIDs, s.SkillID, s.Points, s.Confidence, s.ExpiresAt)
		evt.BaseEvent = evt.BaseEvent.WithCorrelationID(cmd.CorrelationID)
		publish(h.publisher, h.logger, evt)
	}

	result.Latency = h.clock.now().Sub(started)
	h.interactions.Add(Interaction{
		At:              started,
		ClassroomID:     cmd.Scope.ClassroomID,
		RequestedBy:     cmd.RequestedBy,
		Fingerprint:     h.fingerprint.Sum(cmd.Observation),
		ObservationLen:  len(cmd.Observation),
		Candidates:      len(candidates),
		NamedStudents:   len(out.NamedStudent),
		SuggestionCount: len(result.Suggestions),
		Patterns:        len(out.Patterns),
		Latency:         result.Latency,
	})

	h.logger.Info("suggestions generated",
		"classroom_id", cmd.Scope.ClassroomID,
		"named_students", len(out.NamedStudent),
		"suggestions", len(result.Suggestions),
		"patterns", len(out.Patterns),
		"latency", result.Latency,
	)

	return result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// BATCH GENERATION
// ══════════════════════════════════════════════════════════════════════════════

// BatchItemResult is the outcome of one observation in a batch.
type BatchItemResult struct {
	Index  int
	Result *GenerateSuggestionsResult
	Err    error
}

// GenerateSuggestionsBatchHandler runs many observations with bounded
// concurrency. A failing item never cancels its siblings.
type GenerateSuggestionsBatchHandler struct {
	single      *GenerateSuggestionsHandler
	concurrency int
}

// NewGenerateSuggestionsBatchHandler creates a batch handler over single.
func NewGenerateSuggestionsBatchHandler(single *GenerateSuggestionsHandler, concurrency int) *GenerateSuggestionsBatchHandler {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &GenerateSuggestionsBatchHandler{single: single, concurrency: concurrency}
}

// Handle processes every command and returns one result per input, in order.
func (h *GenerateSuggestionsBatchHandler) Handle(ctx context.Context, cmds []GenerateSuggestionsCommand) []BatchItemResult {
	results := make([]BatchItemResult, len(cmds))

	var g errgroup.Group
	g.SetLimit(h.concurrency)
	for i, cmd := range cmds {
		g.Go(func() error {
			res, err := h.single.Handle(ctx, cmd)
			results[i] = BatchItemResult{Index: i, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// ══════════════════════════════════════════════════════════════════════════════
// ACCEPT / REJECT
// ══════════════════════════════════════════════════════════════════════════════

// AcceptSuggestionCommand accepts a pending suggestion, optionally with edits.
type AcceptSuggestionCommand struct {
	SuggestionID string
	AcceptedBy   string
	Role         shared.Role
	Overrides    *suggestion.Overrides

	// Context defaults to the suggestion's observation.
	Context       string
	CorrelationID string
}

// Validate validates the command.
func (c AcceptSuggestionCommand) Validate() error {
	if strings.TrimSpace(c.SuggestionID) == "" {
		return shared.NewDomainError("suggestion", "Accept", shared.ErrInvalidID, "suggestion ID is required")
	}
	if strings.TrimSpace(c.AcceptedBy) == "" {
		return shared.ErrAwarderRequired
	}
	return nil
}

// AcceptSuggestionResult contains the decided suggestion and the awards it produced.
type AcceptSuggestionResult struct {
	Suggestion *suggestion.Suggestion
	Award      *AwardPointsResult
}

// AcceptSuggestionHandler handles the AcceptSuggestionCommand.
type AcceptSuggestionHandler struct {
	suggestions suggestion.Repository
	awarder     *AwardPointsHandler
	publisher   shared.EventPublisher
	clock       Clock
	logger      *slog.Logger
}

// NewAcceptSuggestionHandler creates a new AcceptSuggestionHandler.
func NewAcceptSuggestionHandler(suggestions suggestion.Repository, awarder *AwardPointsHandler, publisher shared.EventPublisher, clock Clock, logger *slog.Logger) *AcceptSuggestionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AcceptSuggestionHandler{
		suggestions: suggestions,
		awarder:     awarder,
		publisher:   publisher,
		clock:       clock,
		logger:      logger.With("handler", "accept_suggestion"),
	}
}

// Handle runs the award pipeline for the suggestion. The suggestion is moved
// out of pending only when the award passes validation, and moved back when
// the award write fails, so a failed award leaves it pending.
func (h *AcceptSuggestionHandler) Handle(ctx context.Context, cmd AcceptSuggestionCommand) (*AcceptSuggestionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("accept_suggestion: validation failed: %w", err)
	}

	s, err := h.suggestions.GetByID(ctx, cmd.SuggestionID)
	if err != nil {
		return nil, fmt.Errorf("accept_suggestion: %w", err)
	}

	// Dry run on a copy to surface not-pending and expired before any award check.
	check := *s
	if err := check.Accept(cmd.AcceptedBy, cmd.Overrides, h.clock.now()); err != nil {
		return nil, fmt.Errorf("accept_suggestion: %w", err)
	}

	studentIDs, skillID, points := s.Effective(cmd.Overrides)
	awardCmd := AwardPointsCommand{
		Scope:         s.Scope(),
		AwardedBy:     cmd.AcceptedBy,
		Role:          cmd.Role,
		StudentIDs:    studentIDs,
		SkillID:       skillID,
		Points:        points,
		Context:       firstNonEmpty(cmd.Context, s.Observation),
		CorrelationID: cmd.CorrelationID,
	}

	origin := &awardOrigin{
		suggestionID: s.ID,
		confidence:   s.Confidence,
		claim: func(ctx context.Context, at time.Time) (func(context.Context) error, error) {
			pending := *s
			if err := s.Accept(cmd.AcceptedBy, cmd.Overrides, at); err != nil {
				return nil, err
			}
			if err := h.suggestions.Transition(ctx, suggestion.StatusPending, s); err != nil {
				*s = pending
				return nil, err
			}
			decided := s.Status
			return func(ctx context.Context) error {
				if err := h.suggestions.Transition(ctx, decided, &pending); err != nil {
					return err
				}
				*s = pending
				return nil
			}, nil
		},
	}

	awarded, err := h.awarder.handle(ctx, awardCmd, origin)
	if awarded == nil {
		return nil, fmt.Errorf("accept_suggestion: %w", err)
	}

	// Awards are stored from here on, so the decision stands even when some
	// follow-up steps failed.
	eventType := shared.EventSuggestionAccepted
	if s.Status == suggestion.StatusModified {
		eventType = shared.EventSuggestionModified
	}
	evt := shared.NewSuggestionDecidedEvent(eventType, s.Scope(), s.ID, cmd.AcceptedBy, "", awarded.AwardIDs())
	evt.BaseEvent = evt.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	publish(h.publisher, h.logger, evt)

	h.logger.Info("suggestion accepted",
		"suggestion_id", s.ID,
		"status", s.Status,
		"awards", len(awarded.Outcomes),
		"failed", len(awarded.Failures),
	)

	res := &AcceptSuggestionResult{Suggestion: s, Award: awarded}
	if err != nil {
		return res, fmt.Errorf("accept_suggestion: %w", err)
	}
	return res, nil
}

// RejectSuggestionCommand rejects a pending suggestion.
type RejectSuggestionCommand struct {
	SuggestionID  string
	RejectedBy    string
	Reason        string
	CorrelationID string
}

// RejectSuggestionHandler handles the RejectSuggestionCommand.
type RejectSuggestionHandler struct {
	suggestions suggestion.Repository
	publisher   shared.EventPublisher
	clock       Clock
	logger      *slog.Logger
}

// NewRejectSuggestionHandler creates a new RejectSuggestionHandler.
func NewRejectSuggestionHandler(suggestions suggestion.Repository, publisher shared.EventPublisher, clock Clock, logger *slog.Logger) *RejectSuggestionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RejectSuggestionHandler{
		suggestions: suggestions,
		publisher:   publisher,
		clock:       clock,
		logger:      logger.With("handler", "reject_suggestion"),
	}
}

// Handle executes the reject command.
func (h *RejectSuggestionHandler) Handle(ctx context.Context, cmd RejectSuggestionCommand) (*suggestion.Suggestion, error) {
	if strings.TrimSpace(cmd.SuggestionID) == "" || strings.TrimSpace(cmd.RejectedBy) == "" {
		return nil, fmt.Errorf("reject_suggestion: validation failed: %w",
			shared.NewDomainError("suggestion", "Reject", shared.ErrInvalidID, "suggestion ID and rejecting user are required"))
	}

	s, err := h.suggestions.GetByID(ctx, cmd.SuggestionID)
	if err != nil {
		return nil, fmt.Errorf("reject_suggestion: %w", err)
	}
	if err := s.Reject(cmd.RejectedBy, cmd.Reason, h.clock.now()); err != nil {
		return nil, fmt.Errorf("reject_suggestion: %w", err)
	}
	if err := h.suggestions.Transition(ctx, suggestion.StatusPending, s); err != nil {
		return nil, fmt.Errorf("reject_suggestion: %w", err)
	}

	evt := shared.NewSuggestionDecidedEvent(shared.EventSuggestionRejected, s.Scope(), s.ID, cmd.RejectedBy, cmd.Reason, nil)
	evt.BaseEvent = evt.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	publish(h.publisher, h.logger, evt)

	return s, nil
}

// publish sends evt and logs a failure. Event delivery never fails a command.
func publish(p shared.EventPublisher, logger *slog.Logger, evt shared.Event) {
	if p == nil {
		return
	}
	if err := p.Publish(evt); err != nil {
		logger.Warn("failed to publish event",
			"event_type", evt.EventType(),
			"aggregate_id", evt.AggregateID(),
			"error", err,
		)
	}
}
