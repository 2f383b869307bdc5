package command

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/alem-hub/explorer-points/internal/domain/award"
	"github.com/alem-hub/explorer-points/internal/domain/shared"
	"github.com/alem-hub/explorer-points/internal/domain/skill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func customParams(name string) skill.CustomSkillParams {
	return skill.CustomSkillParams{
		Name:            name,
		IsPositive:      true,
		DefaultPoints:   1,
		MinPoints:       1,
		MaxPoints:       2,
		TriggerKeywords: []string{"Garden", "watered"},
	}
}

func TestCreateCustomSkill(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	h := NewCreateCustomSkillHandler(e.skills, e.bus, e.ids, e.clock(), quietLogger(), 0)

	s, err := h.Handle(ctx, CreateCustomSkillCommand{Scope: testScope, CreatedBy: "teacher-1", Params: customParams("Green Thumb")})
	require.NoError(t, err)
	assert.True(t, s.IsCustom)
	assert.Equal(t, []string{"garden", "watered"}, s.Scoring.TriggerKeywords)
	assert.Len(t, e.bus.ofType(shared.EventSkillCreated), 1)

	_, err = h.Handle(ctx, CreateCustomSkillCommand{Scope: testScope, CreatedBy: "teacher-1", Params: customParams("green thumb")})
	assert.True(t, shared.IsAlreadyExists(err))

	bad := customParams("Broken")
	bad.DefaultPoints = 5
	_, err = h.Handle(ctx, CreateCustomSkillCommand{Scope: testScope, CreatedBy: "teacher-1", Params: bad})
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(ctx, CreateCustomSkillCommand{Scope: testScope, Params: customParams("Nobody")})
	assert.True(t, shared.IsValidation(err))
}

func TestCreateCustomSkill_Limit(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	// The fixture library already holds three custom skills for c1.
	h := NewCreateCustomSkillHandler(e.skills, e.bus, e.ids, e.clock(), quietLogger(), 5)

	for i := 0; i < 2; i++ {
		_, err := h.Handle(ctx, CreateCustomSkillCommand{Scope: testScope, CreatedBy: "t", Params: customParams(fmt.Sprintf("Skill %d", i))})
		require.NoError(t, err)
	}
	_, err := h.Handle(ctx, CreateCustomSkillCommand{Scope: testScope, CreatedBy: "t", Params: customParams("One Too Many")})
	assert.True(t, errors.Is(err, shared.ErrCustomSkillLimit))

	n, err := e.skills.CountCustom(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestSetSkillActive(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	h := NewSetSkillActiveHandler(e.skills, e.bus, e.clock(), quietLogger())

	s, err := h.Handle(ctx, SetSkillActiveCommand{SkillID: "retired", Active: true, ActorID: "admin"})
	require.NoError(t, err)
	assert.True(t, s.IsActive)

	stored, err := e.skills.GetByID(ctx, "retired")
	require.NoError(t, err)
	assert.True(t, stored.IsActive)
	assert.Len(t, e.bus.ofType(shared.EventSkillActivationChanged), 1)

	// No change, no event.
	_, err = h.Handle(ctx, SetSkillActiveCommand{SkillID: "retired", Active: true})
	require.NoError(t, err)
	assert.Len(t, e.bus.ofType(shared.EventSkillActivationChanged), 1)

	_, err = h.Handle(ctx, SetSkillActiveCommand{SkillID: "missing"})
	assert.True(t, shared.IsNotFound(err))
}

func TestReactAndMarkViewed(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	res, err := e.awarder.Handle(ctx, AwardPointsCommand{Scope: testScope, AwardedBy: "t", StudentIDs: []string{"emma"}, SkillID: "kind"})
	require.NoError(t, err)
	id := res.Outcomes[0].Award.ID

	react := NewReactToAwardHandler(e.awards, e.clock())
	a, err := react.Handle(ctx, ReactToAwardCommand{AwardID: id, ByID: "parent-1", Emoji: "👏"})
	require.NoError(t, err)
	assert.Len(t, a.Reactions, 1)

	a, err = react.Handle(ctx, ReactToAwardCommand{AwardID: id, ByID: "parent-1", Emoji: "👏"})
	require.NoError(t, err)
	assert.Len(t, a.Reactions, 1)

	_, err = react.Handle(ctx, ReactToAwardCommand{AwardID: id, ByID: "parent-1", Emoji: "🐍"})
	assert.True(t, shared.IsValidation(err))

	_, err = react.Handle(ctx, ReactToAwardCommand{AwardID: "missing", ByID: "parent-1", Emoji: "👏"})
	assert.True(t, shared.IsNotFound(err))

	viewed := NewMarkAwardViewedHandler(e.awards, e.clock())
	require.NoError(t, viewed.Handle(ctx, []string{id, id}))
	stored, err := e.awards.GetByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, stored.ViewedByParent)
	require.NotNil(t, stored.ViewedAt)
	assert.Equal(t, e.now, *stored.ViewedAt)

	assert.True(t, shared.IsNotFound(viewed.Handle(ctx, []string{"missing"})))

	all, err := e.awards.ListByStudent(ctx, "emma", award.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
