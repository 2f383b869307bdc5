package analytics

import (
	"testing"
	"time"

	"github.com/alem-hub/explorer-points/internal/domain/award"
	"github.com/alem-hub/explorer-points/internal/domain/learner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	c := DefaultTrendConfig()

	tests := []struct {
		name                   string
		recent, older, classAv float64
		want                   Trend
	}{
		{"improving", 1.3, 1.0, 1.0, TrendImproving},
		{"excelling", 2.0, 1.0, 1.0, TrendExcelling},
		{"needs support", 0.7, 1.0, 1.0, TrendNeedsSupport},
		{"stable upper edge", 1.2, 1.0, 1.0, TrendStable},
		{"stable lower edge", 0.8, 1.0, 1.0, TrendStable},
		{"no history", 0, 0, 0, TrendStable},
		{"from nothing", 0.5, 0, 1.0, TrendImproving},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.recent, tt.older, tt.classAv))
		})
	}

	assert.Equal(t, ConfidenceHigh, c.ConfidenceFor(10))
	assert.Equal(t, ConfidenceLow, c.ConfidenceFor(9))
}

func pa(student, skillID string, points int, at time.Time) *award.PointAward {
	return &award.PointAward{
		StudentID: student, SkillID: skillID, SkillName: skillID,
		Points: points, IsPositive: points > 0, AwardedAt: at,
	}
}

func TestStudentReport(t *testing.T) {
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	var awards []*award.PointAward
	// Prior week: 7 points. Recent week: 14 points plus one -1.
	for i := 0; i < 7; i++ {
		awards = append(awards, pa("s1", "kind", 1, now.AddDate(0, 0, -7-i)))
		awards = append(awards, pa("s1", "team", 2, now.AddDate(0, 0, -i)))
	}
	awards = append(awards, pa("s1", "focus", -1, now.Add(-time.Hour)))
	awards = append(awards, pa("other", "kind", 5, now))

	agg := NewAggregator(DefaultConfig())
	r := agg.Student(StudentInput{
		StudentID:         "s1",
		Awards:            awards,
		Window:            Window{From: agg.TrendLookback(now, time.UTC)},
		ClassroomDailyAvg: 1.0,
		Now:               now,
		Location:          time.UTC,
	})

	assert.Equal(t, 15, r.AwardCount)
	assert.Equal(t, 20, r.TotalPoints)
	assert.Equal(t, 21, r.PositivePoints)
	assert.Equal(t, -1, r.ConstructivePoints)
	assert.InDelta(t, 13.0/7.0, r.RecentDailyAvg, 1e-9)
	assert.InDelta(t, 1.0, r.OlderDailyAvg, 1e-9)
	assert.Equal(t, TrendExcelling, r.Trend)
	assert.Equal(t, ConfidenceHigh, r.TrendConfidence)

	require.Len(t, r.Skills, 3)
	assert.Equal(t, "kind", r.Skills[0].SkillID)
	assert.Equal(t, 7, r.Skills[0].Count)
}

func TestStudentReport_LowConfidenceDecline(t *testing.T) {
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	awards := []*award.PointAward{
		pa("s1", "kind", 3, now.AddDate(0, 0, -10)),
		pa("s1", "kind", 3, now.AddDate(0, 0, -9)),
		pa("s1", "kind", 1, now.AddDate(0, 0, -1)),
	}
	r := NewAggregator(DefaultConfig()).Student(StudentInput{StudentID: "s1", Awards: awards, Now: now, Location: time.UTC})

	assert.Equal(t, TrendNeedsSupport, r.Trend)
	assert.Equal(t, ConfidenceLow, r.TrendConfidence)
}

func TestClassroomReport(t *testing.T) {
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	ls := []*learner.Learner{
		{ID: "a", FirstName: "Ava"},
		{ID: "b", FirstName: "Ben"},
		{ID: "c", FirstName: "Cleo"},
		{ID: "d", FirstName: "Dan"},
		{ID: "e", FirstName: "Eli"},
	}
	awards := []*award.PointAward{
		pa("a", "kind", 3, now), pa("a", "kind", 3, now), pa("a", "team", 2, now),
		pa("b", "kind", 3, now), pa("b", "team", 3, now),
		pa("c", "team", 3, now),
		pa("d", "kind", 1, now),
		pa("a", "kind", 9, now.AddDate(0, 0, -30)),
	}

	r := NewAggregator(DefaultConfig()).Classroom(ClassroomInput{
		ClassroomID: "cl",
		Learners:    ls,
		Awards:      awards,
		Window:      Window{From: now.AddDate(0, 0, -6)},
		Now:         now,
		Location:    time.UTC,
	})

	assert.Equal(t, 7, r.AwardCount)
	assert.Equal(t, 18, r.TotalPoints)
	assert.Equal(t, 5, r.EnrolledCount)
	assert.InDelta(t, 3.6, r.AveragePerStudent, 1e-9)
	assert.InDelta(t, 18.0/7.0/5.0, r.DailyAverage, 1e-9)

	require.Len(t, r.TopPerformers, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{r.TopPerformers[0].StudentID, r.TopPerformers[1].StudentID, r.TopPerformers[2].StudentID})

	// Below 1.8: Dan (1) and Eli (0).
	require.Len(t, r.NeedsSupport, 2)
	assert.Equal(t, "d", r.NeedsSupport[0].StudentID)
	assert.Equal(t, "e", r.NeedsSupport[1].StudentID)

	require.NotNil(t, r.DominantSkill)
	assert.Equal(t, "kind", r.DominantSkill.SkillID)
	assert.Equal(t, 4, r.DominantSkill.Count)
}

func TestClassroomReport_DominantSkillFromStoreCounts(t *testing.T) {
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	awards := []*award.PointAward{
		pa("a", "kind", 3, now), pa("a", "kind", 3, now), pa("b", "team", 2, now),
	}
	in := ClassroomInput{
		ClassroomID: "cl",
		Learners:    []*learner.Learner{{ID: "a"}, {ID: "b"}},
		Awards:      awards,
		Window:      Window{From: now.AddDate(0, 0, -6)},
		Now:         now,
		Location:    time.UTC,
	}

	in.SkillFrequency = []award.SkillCount{{SkillID: "team", SkillName: "Team Spirit", Count: 5}, {SkillID: "kind", Count: 2}}
	r := NewAggregator(DefaultConfig()).Classroom(in)
	require.NotNil(t, r.DominantSkill)
	assert.Equal(t, "team", r.DominantSkill.SkillID)
	assert.Equal(t, 5, r.DominantSkill.Count)
	assert.Equal(t, 2, r.DominantSkill.Points)

	// A skill the loaded page never saw still wins on the store's count.
	in.SkillFrequency = []award.SkillCount{{SkillID: "brave", SkillName: "Brave Voices", Count: 7}}
	r = NewAggregator(DefaultConfig()).Classroom(in)
	require.NotNil(t, r.DominantSkill)
	assert.Equal(t, "brave", r.DominantSkill.SkillID)
	assert.Equal(t, "Brave Voices", r.DominantSkill.SkillName)
	assert.Equal(t, 7, r.DominantSkill.Count)
}

func TestClassroomReport_Empty(t *testing.T) {
	r := NewAggregator(Config{}).Classroom(ClassroomInput{ClassroomID: "cl", Now: time.Now(), Location: time.UTC})

	assert.Zero(t, r.AveragePerStudent)
	assert.Nil(t, r.DominantSkill)
	assert.Empty(t, r.TopPerformers)
	assert.Empty(t, r.NeedsSupport)
}
