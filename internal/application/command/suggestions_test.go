package command

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alem-hub/explorer-points/internal/domain/award"
	"github.com/alem-hub/explorer-points/internal/domain/shared"
	"github.com/alem-hub/explorer-points/internal/domain/suggestion"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const observation = "Emma helped a friend at lunch"

func newGenerateHandler(t *testing.T, e *testEnv, log *InteractionLog) *GenerateSuggestionsHandler {
	t.Helper()
	fp, err := NewFingerprinter("test-key")
	require.NoError(t, err)
	return NewGenerateSuggestionsHandler(GenerateSuggestionsDeps{
		Skills:       e.skills,
		Learners:     e.learners,
		Awards:       e.awards,
		Suggestions:  e.suggestions,
		Publisher:    e.bus,
		IDs:          e.ids,
		Interactions: log,
		Fingerprint:  fp,
		Clock:        e.clock(),
		Logger:       quietLogger(),
	}, DefaultGenerateSuggestionsConfig())
}

func generateOne(t *testing.T, e *testEnv) *suggestion.Suggestion {
	t.Helper()
	res, err := newGenerateHandler(t, e, nil).Handle(context.Background(), GenerateSuggestionsCommand{
		Scope:       testScope,
		Observation: observation,
	})
	require.NoError(t, err)
	require.Len(t, res.Suggestions, 1)
	return res.Suggestions[0]
}

func TestGenerateSuggestions_PersistsPending(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	log := NewInteractionLog(10)

	res, err := newGenerateHandler(t, e, log).Handle(ctx, GenerateSuggestionsCommand{
		Scope:       testScope,
		Observation: observation,
		RequestedBy: "teacher-1",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"emma"}, res.NamedStudentIDs)
	require.Len(t, res.Suggestions, 1)
	s := res.Suggestions[0]
	assert.Equal(t, "kind", s.SkillID)
	assert.Equal(t, suggestion.StatusPending, s.Status)
	assert.Equal(t, e.now.Add(suggestion.TTL), s.ExpiresAt)

	pending, err := e.suggestions.ListPendingByClassroom(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, pending, 1)
	assert.Len(t, e.bus.ofType(shared.EventSuggestionCreated), 1)

	entries := log.Snapshot()
	require.Len(t, entries, 1)
	assert.Len(t, entries[0].Fingerprint, 64)
	assert.NotContains(t, entries[0].Fingerprint, "Emma")
	assert.Equal(t, 2, entries[0].Candidates)
	assert.Equal(t, 1, entries[0].SuggestionCount)
}

func TestGenerateSuggestions_Rejections(t *testing.T) {
	e := newTestEnv(t)
	h := newGenerateHandler(t, e, nil)

	_, err := h.Handle(context.Background(), GenerateSuggestionsCommand{Scope: testScope, Observation: "  "})
	assert.True(t, shared.IsValidation(err))

	res, err := h.Handle(context.Background(), GenerateSuggestionsCommand{Scope: testScope, Observation: "Someone helped a friend"})
	require.NoError(t, err)
	assert.Empty(t, res.Suggestions)
}

func TestGenerateSuggestionsBatch_ItemsAreIndependent(t *testing.T) {
	e := newTestEnv(t)
	batch := NewGenerateSuggestionsBatchHandler(newGenerateHandler(t, e, nil), 2)

	results := batch.Handle(context.Background(), []GenerateSuggestionsCommand{
		{Scope: testScope, Observation: observation},
		{Scope: testScope, Observation: ""},
		{Scope: testScope, Observation: "Noah was kind and helped a friend"},
	})
	require.Len(t, results, 3)

	assert.NoError(t, results[0].Err)
	assert.Len(t, results[0].Result.Suggestions, 1)
	assert.True(t, shared.IsValidation(results[1].Err))
	assert.NoError(t, results[2].Err)
	assert.Equal(t, []string{"noah"}, results[2].Result.NamedStudentIDs)
	for i, r := range results {
		assert.Equal(t, i, r.Index)
	}
}

func TestAcceptSuggestion_AwardsAndTransitions(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	s := generateOne(t, e)
	accept := NewAcceptSuggestionHandler(e.suggestions, e.awarder, e.bus, e.clock(), quietLogger())

	e.now = e.now.Add(5 * time.Minute)
	res, err := accept.Handle(ctx, AcceptSuggestionCommand{SuggestionID: s.ID, AcceptedBy: "teacher-1"})
	require.NoError(t, err)
	assert.Equal(t, suggestion.StatusAccepted, res.Suggestion.Status)

	require.Len(t, res.Award.Outcomes, 1)
	a := res.Award.Outcomes[0].Award
	assert.Equal(t, "emma", a.StudentID)
	assert.Equal(t, s.ID, a.Provenance.AISuggestionID)
	require.NotNil(t, a.Provenance.AIConfidence)
	assert.InDelta(t, s.Confidence, *a.Provenance.AIConfidence, 1e-9)
	assert.Equal(t, observation, a.Context)

	stored, err := e.suggestions.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, suggestion.StatusAccepted, stored.Status)
	assert.Len(t, e.bus.ofType(shared.EventSuggestionAccepted), 1)

	// A second decision is a state conflict and writes nothing.
	_, err = accept.Handle(ctx, AcceptSuggestionCommand{SuggestionID: s.ID, AcceptedBy: "teacher-2"})
	assert.True(t, shared.IsStateConflict(err))
	all, err := e.awards.ListByStudent(ctx, "emma", award.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestAcceptSuggestion_WithOverrides(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	s := generateOne(t, e)
	accept := NewAcceptSuggestionHandler(e.suggestions, e.awarder, e.bus, e.clock(), quietLogger())

	res, err := accept.Handle(ctx, AcceptSuggestionCommand{
		SuggestionID: s.ID,
		AcceptedBy:   "teacher-1",
		Overrides:    &suggestion.Overrides{StudentIDs: []string{"emma", "noah"}, Points: points(3)},
	})
	require.NoError(t, err)
	assert.Equal(t, suggestion.StatusModified, res.Suggestion.Status)
	require.NotNil(t, res.Suggestion.Decision.Overrides)
	assert.Equal(t, []string{"emma", "noah"}, res.Award.StudentIDs())
	assert.Equal(t, 3, res.Award.Points)
	require.NotNil(t, res.Award.GroupAward)
	assert.Len(t, e.bus.ofType(shared.EventSuggestionModified), 1)
}

func TestAcceptSuggestion_StaysPendingOnFailure(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(e *testEnv)
		cmd    func(id string) AcceptSuggestionCommand
		expect func(error) bool
	}{
		{
			name:  "expired",
			setup: func(e *testEnv) { e.now = e.now.Add(suggestion.TTL) },
			cmd: func(id string) AcceptSuggestionCommand {
				return AcceptSuggestionCommand{SuggestionID: id, AcceptedBy: "t"}
			},
			expect: shared.IsStateConflict,
		},
		{
			name: "skill deactivated",
			setup: func(e *testEnv) {
				_ = e.skills.SetActive(context.Background(), "kind", false, e.now)
			},
			cmd: func(id string) AcceptSuggestionCommand {
				return AcceptSuggestionCommand{SuggestionID: id, AcceptedBy: "t"}
			},
			expect: shared.IsStateConflict,
		},
		{
			name:  "override out of bounds",
			setup: func(*testEnv) {},
			cmd: func(id string) AcceptSuggestionCommand {
				return AcceptSuggestionCommand{SuggestionID: id, AcceptedBy: "t", Overrides: &suggestion.Overrides{Points: points(10)}}
			},
			expect: shared.IsValidation,
		},
		{
			name:  "unknown suggestion",
			setup: func(*testEnv) {},
			cmd: func(string) AcceptSuggestionCommand {
				return AcceptSuggestionCommand{SuggestionID: "nope", AcceptedBy: "t"}
			},
			expect: shared.IsNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			e := newTestEnv(t)
			s := generateOne(t, e)
			accept := NewAcceptSuggestionHandler(e.suggestions, e.awarder, e.bus, e.clock(), quietLogger())
			tt.setup(e)

			_, err := accept.Handle(ctx, tt.cmd(s.ID))
			require.Error(t, err)
			assert.True(t, tt.expect(err), "unexpected error: %v", err)

			stored, err := e.suggestions.GetByID(ctx, s.ID)
			require.NoError(t, err)
			assert.Equal(t, suggestion.StatusPending, stored.Status)

			all, err := e.awards.ListByClassroom(ctx, "c1", award.Filter{})
			require.NoError(t, err)
			assert.Empty(t, all)
		})
	}
}

func TestAcceptSuggestion_ReleasesClaimWhenAwardWriteFails(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	s := generateOne(t, e)
	store := &flakyAwards{AwardRepository: e.awards, batchErr: errors.New("connection reset by peer")}
	accept := NewAcceptSuggestionHandler(e.suggestions, e.newAwarder(store), e.bus, e.clock(), quietLogger())

	_, err := accept.Handle(ctx, AcceptSuggestionCommand{SuggestionID: s.ID, AcceptedBy: "teacher-1"})
	require.Error(t, err)

	stored, err := e.suggestions.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, suggestion.StatusPending, stored.Status)
	assert.Nil(t, stored.Decision)
	assert.Empty(t, e.bus.ofType(shared.EventSuggestionAccepted))

	// The teacher retries once the store is back.
	store.batchErr = nil
	res, err := accept.Handle(ctx, AcceptSuggestionCommand{SuggestionID: s.ID, AcceptedBy: "teacher-1"})
	require.NoError(t, err)
	assert.Equal(t, suggestion.StatusAccepted, res.Suggestion.Status)
	assert.Equal(t, []string{"emma"}, res.Award.StudentIDs())

	stored, err = e.suggestions.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, suggestion.StatusAccepted, stored.Status)
	assert.Len(t, e.bus.ofType(shared.EventSuggestionAccepted), 1)
}

func TestAcceptSuggestion_PartialAwardKeepsDecision(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	s := generateOne(t, e)
	store := &flakyAwards{AwardRepository: e.awards, totalErrOn: "emma"}
	accept := NewAcceptSuggestionHandler(e.suggestions, e.newAwarder(store), e.bus, e.clock(), quietLogger())

	res, err := accept.Handle(ctx, AcceptSuggestionCommand{SuggestionID: s.ID, AcceptedBy: "teacher-1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPartialAward)
	require.NotNil(t, res)
	assert.Equal(t, suggestion.StatusAccepted, res.Suggestion.Status)

	stored, err := e.suggestions.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, suggestion.StatusAccepted, stored.Status)
	assert.Len(t, e.bus.ofType(shared.EventSuggestionAccepted), 1)
}

func TestRejectSuggestion_Expired(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	s := generateOne(t, e)
	reject := NewRejectSuggestionHandler(e.suggestions, e.bus, e.clock(), quietLogger())
	e.now = e.now.Add(suggestion.TTL)

	_, err := reject.Handle(ctx, RejectSuggestionCommand{SuggestionID: s.ID, RejectedBy: "teacher-1"})
	assert.ErrorIs(t, err, shared.ErrSuggestionExpired)

	stored, err := e.suggestions.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, suggestion.StatusPending, stored.Status)
	assert.Empty(t, e.bus.ofType(shared.EventSuggestionRejected))
}

func TestRejectSuggestion(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	s := generateOne(t, e)
	reject := NewRejectSuggestionHandler(e.suggestions, e.bus, e.clock(), quietLogger())

	got, err := reject.Handle(ctx, RejectSuggestionCommand{SuggestionID: s.ID, RejectedBy: "teacher-1", Reason: "not today"})
	require.NoError(t, err)
	assert.Equal(t, suggestion.StatusRejected, got.Status)
	assert.Equal(t, "not today", got.Decision.Reason)
	assert.Len(t, e.bus.ofType(shared.EventSuggestionRejected), 1)

	accept := NewAcceptSuggestionHandler(e.suggestions, e.awarder, e.bus, e.clock(), quietLogger())
	_, err = accept.Handle(ctx, AcceptSuggestionCommand{SuggestionID: s.ID, AcceptedBy: "teacher-1"})
	assert.True(t, shared.IsStateConflict(err))

	_, err = reject.Handle(ctx, RejectSuggestionCommand{SuggestionID: s.ID, RejectedBy: "teacher-1"})
	assert.True(t, shared.IsStateConflict(err))
}

func TestFingerprinter(t *testing.T) {
	_, err := NewFingerprinter(strings.Repeat("k", 65))
	assert.Error(t, err)

	a, err := NewFingerprinter("one")
	require.NoError(t, err)
	b, err := NewFingerprinter("two")
	require.NoError(t, err)

	assert.Equal(t, a.Sum("text"), a.Sum("text"))
	assert.NotEqual(t, a.Sum("text"), b.Sum("text"))
	assert.NotEqual(t, a.Sum("text"), a.Sum("other"))
}
