package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alem-hub/explorer-points/internal/domain/award"
	"github.com/alem-hub/explorer-points/internal/domain/notification"
	"github.com/alem-hub/explorer-points/internal/domain/shared"
	"github.com/alem-hub/explorer-points/internal/domain/streak"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAwardPoints_SingleLearner(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)

	res, err := e.awarder.Handle(ctx, AwardPointsCommand{
		Scope:      testScope,
		AwardedBy:  "teacher-1",
		StudentIDs: []string{"emma"},
		SkillID:    "kind",
		Context:    "shared her crayons",
	})
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 1)
	assert.Nil(t, res.GroupAward)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, 1, res.Points)

	stored, err := e.awards.GetByID(ctx, res.Outcomes[0].Award.ID)
	require.NoError(t, err)
	assert.Equal(t, "Kind Hearts", stored.SkillName)
	assert.Equal(t, "💖", stored.SkillEmoji)
	assert.Equal(t, shared.RoleTeacher, stored.Provenance.Role)
	assert.True(t, stored.NotificationSent)

	sk, err := e.skills.GetByID(ctx, "kind")
	require.NoError(t, err)
	assert.Equal(t, 1, sk.UsageCount)

	total, err := e.awards.RunningTotal(ctx, "emma")
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	st, err := e.streaks.Get(ctx, "emma")
	require.NoError(t, err)
	assert.Equal(t, 1, st.CurrentStreak)
	assert.Equal(t, streak.OutcomeStarted, res.Outcomes[0].Streak.Outcome)

	msgs := e.sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "emma", msgs[0].learnerID)
	assert.Equal(t, notification.TypePointsAwarded, msgs[0].msg.Type)

	assert.Len(t, e.bus.ofType(shared.EventPointsAwarded), 1)
	assert.Equal(t, []string{"classroom:c1"}, e.cache.keys)
}

func TestAwardPoints_ValidationRejectsBeforeAnyWrite(t *testing.T) {
	tests := []struct {
		name  string
		cmd   AwardPointsCommand
		check func(error) bool
	}{
		{
			name:  "missing tenant",
			cmd:   AwardPointsCommand{Scope: shared.Scope{SchoolID: "sch1", ClassroomID: "c1"}, AwardedBy: "t", StudentIDs: []string{"emma"}, SkillID: "kind"},
			check: shared.IsValidation,
		},
		{
			name:  "missing awarder",
			cmd:   AwardPointsCommand{Scope: testScope, StudentIDs: []string{"emma"}, SkillID: "kind"},
			check: shared.IsValidation,
		},
		{
			name:  "no students",
			cmd:   AwardPointsCommand{Scope: testScope, AwardedBy: "t", StudentIDs: []string{" ", ""}, SkillID: "kind"},
			check: shared.IsValidation,
		},
		{
			name:  "unknown skill",
			cmd:   AwardPointsCommand{Scope: testScope, AwardedBy: "t", StudentIDs: []string{"emma"}, SkillID: "nope"},
			check: shared.IsNotFound,
		},
		{
			name:  "skill from another classroom",
			cmd:   AwardPointsCommand{Scope: shared.Scope{TenantID: "t1", SchoolID: "sch1", ClassroomID: "c2"}, AwardedBy: "t", StudentIDs: []string{"ben"}, SkillID: "kind"},
			check: shared.IsNotFound,
		},
		{
			name: "inactive skill checked before bounds",
			cmd: AwardPointsCommand{Scope: testScope, AwardedBy: "t", StudentIDs: []string{"emma"}, SkillID: "retired",
				Points: points(99)},
			check: shared.IsStateConflict,
		},
		{
			name:  "points above max",
			cmd:   AwardPointsCommand{Scope: testScope, AwardedBy: "t", StudentIDs: []string{"emma", "noah"}, SkillID: "kind", Points: points(4)},
			check: func(err error) bool { return errors.Is(err, shared.ErrPointsOutOfBounds) },
		},
		{
			name:  "positive points on constructive skill",
			cmd:   AwardPointsCommand{Scope: testScope, AwardedBy: "t", StudentIDs: []string{"emma"}, SkillID: "focus", Points: points(1)},
			check: shared.IsValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			e := newTestEnv(t)

			_, err := e.awarder.Handle(ctx, tt.cmd)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error kind: %v", err)

			all, err := e.awards.ListByClassroom(ctx, "c1", award.Filter{})
			require.NoError(t, err)
			assert.Empty(t, all)
			assert.Zero(t, e.bus.count())
			assert.Empty(t, e.sender.messages())
		})
	}
}

func TestAwardPoints_PartialResolution(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)

	res, err := e.awarder.Handle(ctx, AwardPointsCommand{
		Scope:      testScope,
		AwardedBy:  "teacher-1",
		StudentIDs: []string{"emma", "ghost", "ben", "emma"},
		SkillID:    "kind",
		Points:     points(2),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"emma"}, res.StudentIDs())
	require.Len(t, res.Warnings, 2)
	assert.Equal(t, "ghost", res.Warnings[0].StudentID)
	assert.Equal(t, "ben", res.Warnings[1].StudentID)

	require.NotNil(t, res.GroupAward)
	assert.Equal(t, 2, res.GroupAward.TotalPoints)
	assert.Equal(t, []string{"emma"}, res.GroupAward.StudentIDs)
	g, ok := e.awards.GroupAward(res.GroupAward.ID)
	require.True(t, ok)
	assert.Equal(t, res.AwardIDs(), g.AwardIDs)
	assert.Equal(t, g.ID, res.Outcomes[0].Award.GroupAwardID)

	evts := e.bus.ofType(shared.EventPointsAwarded)
	require.Len(t, evts, 1)
	evt := evts[0].(shared.PointsAwardedEvent)
	assert.Equal(t, []string{"emma"}, evt.StudentIDs)
	assert.Equal(t, g.ID, evt.GroupAwardID)
}

func TestAwardPoints_GroupAward(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)

	res, err := e.awarder.Handle(ctx, AwardPointsCommand{
		Scope:      testScope,
		AwardedBy:  "teacher-1",
		StudentIDs: []string{"emma", "noah"},
		SkillID:    "kind",
		WholeClass: true,
	})
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 2)
	require.NotNil(t, res.GroupAward)
	assert.Equal(t, 2, res.GroupAward.TotalPoints)
	assert.True(t, res.GroupAward.IsWholeClass)
	assert.Len(t, e.sender.messages(), 2)
	assert.Equal(t, []string{"classroom:c1"}, e.cache.keys)
}

func TestAwardPoints_NoLearnerResolves(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)

	_, err := e.awarder.Handle(ctx, AwardPointsCommand{
		Scope:      testScope,
		AwardedBy:  "teacher-1",
		StudentIDs: []string{"ghost"},
		SkillID:    "kind",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrNoStudentAwarded))
	assert.Zero(t, e.bus.count())
}

func TestAwardPoints_CelebrationOnCrossing(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	e.awards.SetRunningTotal("emma", 9)

	res, err := e.awarder.Handle(ctx, AwardPointsCommand{
		Scope:      testScope,
		AwardedBy:  "teacher-1",
		StudentIDs: []string{"emma"},
		SkillID:    "kind",
		Points:     points(3),
	})
	require.NoError(t, err)

	out := res.Outcomes[0]
	assert.Equal(t, award.Totals{Before: 9, After: 12}, out.Totals)
	require.Len(t, out.Celebrations, 1)
	assert.Equal(t, 10, out.Celebrations[0].Value)
	assert.Len(t, e.bus.ofType(shared.EventCelebrationAchieved), 1)

	stored, err := e.celebrations.ListByStudent(ctx, "emma")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.True(t, stored[0].NotificationSent)

	msgs := e.sender.messages()
	require.Len(t, msgs, 2)
	assert.ElementsMatch(t,
		[]notification.Type{notification.TypePointsAwarded, notification.TypeCelebration},
		[]notification.Type{msgs[0].msg.Type, msgs[1].msg.Type})

	// Same range again: threshold already recorded, nothing new.
	e.awards.SetRunningTotal("emma", 9)
	res, err = e.awarder.Handle(ctx, AwardPointsCommand{
		Scope:      testScope,
		AwardedBy:  "teacher-1",
		StudentIDs: []string{"emma"},
		SkillID:    "kind",
		Points:     points(3),
	})
	require.NoError(t, err)
	assert.Empty(t, res.Outcomes[0].Celebrations)
	assert.Len(t, e.bus.ofType(shared.EventCelebrationAchieved), 1)
}

func TestAwardPoints_ConstructiveSkill(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	e.awards.SetRunningTotal("emma", 9)

	res, err := e.awarder.Handle(ctx, AwardPointsCommand{
		Scope:      testScope,
		AwardedBy:  "teacher-1",
		StudentIDs: []string{"emma"},
		SkillID:    "focus",
	})
	require.NoError(t, err)

	out := res.Outcomes[0]
	assert.False(t, out.Award.IsPositive)
	assert.Equal(t, -1, out.Award.Points)
	assert.Nil(t, out.Streak)
	assert.Equal(t, award.Totals{Before: 9, After: 9}, out.Totals)
	assert.Empty(t, out.Celebrations)
	assert.Empty(t, e.sender.messages())

	_, err = e.streaks.Get(ctx, "emma")
	assert.True(t, shared.IsNotFound(err))
}

func TestAwardPoints_StreakMilestone(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	day := e.now

	for i := 0; i < 3; i++ {
		_, err := e.awarder.Handle(ctx, AwardPointsCommand{
			Scope:      testScope,
			AwardedBy:  "teacher-1",
			StudentIDs: []string{"emma"},
			SkillID:    "kind",
			AwardedAt:  day.AddDate(0, 0, i),
		})
		require.NoError(t, err)
	}

	st, err := e.streaks.Get(ctx, "emma")
	require.NoError(t, err)
	assert.Equal(t, 3, st.CurrentStreak)

	evts := e.bus.ofType(shared.EventStreakMilestone)
	require.Len(t, evts, 1)
	assert.Equal(t, 3, evts[0].(shared.StreakMilestoneEvent).Days)
}

func TestAwardPoints_LearnerTimezone(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)

	// 20:00 UTC on Mar 10 and 02:00 UTC on Mar 11 are both Mar 11 in Almaty (UTC+5).
	first := e.now.Add(11 * time.Hour)
	second := first.Add(6 * time.Hour)
	_, err := e.awarder.Handle(ctx, AwardPointsCommand{Scope: testScope, AwardedBy: "t", StudentIDs: []string{"noah"}, SkillID: "kind", AwardedAt: first})
	require.NoError(t, err)
	res, err := e.awarder.Handle(ctx, AwardPointsCommand{Scope: testScope, AwardedBy: "t", StudentIDs: []string{"noah"}, SkillID: "kind", AwardedAt: second})
	require.NoError(t, err)
	assert.Equal(t, streak.OutcomeSameDay, res.Outcomes[0].Streak.Outcome)
	assert.Equal(t, 1, res.Outcomes[0].Streak.Streak.CurrentStreak)
}

func TestAwardPoints_PublishFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	e.bus.err = errors.New("bus down")

	res, err := e.awarder.Handle(ctx, AwardPointsCommand{
		Scope:      testScope,
		AwardedBy:  "teacher-1",
		StudentIDs: []string{"emma"},
		SkillID:    "kind",
	})
	require.NoError(t, err)
	assert.Len(t, res.Outcomes, 1)
}

func TestAwardPoints_FollowUpFailureKeepsStoredAwards(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	h := e.newAwarder(&flakyAwards{AwardRepository: e.awards, totalErrOn: "noah"})

	res, err := h.Handle(ctx, AwardPointsCommand{
		Scope:      testScope,
		AwardedBy:  "teacher-1",
		StudentIDs: []string{"emma", "noah"},
		SkillID:    "kind",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPartialAward)
	require.NotNil(t, res)
	assert.Equal(t, []string{"emma", "noah"}, res.StudentIDs())
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "noah", res.Failures[0].StudentID)
	require.NotNil(t, res.GroupAward)

	all, err := e.awards.ListByClassroom(ctx, "c1", award.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	emma, err := e.awards.RunningTotal(ctx, "emma")
	require.NoError(t, err)
	assert.Equal(t, 1, emma)
	noah, err := e.awards.RunningTotal(ctx, "noah")
	require.NoError(t, err)
	assert.Zero(t, noah)

	// Emma's steps ran to the end; Noah's stopped at the total.
	msgs := e.sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "emma", msgs[0].learnerID)

	events := e.bus.ofType(shared.EventPointsAwarded)
	require.Len(t, events, 1)
	assert.Equal(t, []string{"classroom:c1"}, e.cache.keys)
}

func TestAwardPoints_BatchWriteFailureLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	h := e.newAwarder(&flakyAwards{AwardRepository: e.awards, batchErr: errors.New("connection reset by peer")})

	res, err := h.Handle(ctx, AwardPointsCommand{
		Scope:      testScope,
		AwardedBy:  "teacher-1",
		StudentIDs: []string{"emma", "noah"},
		SkillID:    "kind",
	})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.False(t, errors.Is(err, ErrPartialAward))

	all, err := e.awards.ListByClassroom(ctx, "c1", award.Filter{})
	require.NoError(t, err)
	assert.Empty(t, all)

	sk, err := e.skills.GetByID(ctx, "kind")
	require.NoError(t, err)
	assert.Zero(t, sk.UsageCount)
	assert.Zero(t, e.bus.count())
	assert.Empty(t, e.cache.keys)
	assert.Empty(t, e.sender.messages())
}
