package analytics

import (
	"sort"
	"time"

	"github.com/alem-hub/explorer-points/internal/domain/award"
	"github.com/alem-hub/explorer-points/internal/domain/learner"
	"github.com/alem-hub/explorer-points/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPORTS
// ══════════════════════════════════════════════════════════════════════════════

// Window is a half-open reporting range [From, To). Zero bounds are open.
type Window struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (w Window) contains(t time.Time) bool {
	return award.Filter{From: w.From, To: w.To}.Matches(t)
}

// SkillBucket is the per-skill rollup.
type SkillBucket struct {
	SkillID    string `json:"skill_id"`
	SkillName  string `json:"skill_name"`
	SkillEmoji string `json:"skill_emoji"`
	Count      int    `json:"count"`
	Points     int    `json:"points"`
}

// StudentReport is one learner's rollup.
type StudentReport struct {
	StudentID   string `json:"student_id"`
	StudentName string `json:"student_name"`
	Window      Window `json:"window"`

	TotalPoints        int `json:"total_points"`
	PositivePoints     int `json:"positive_points"`
	ConstructivePoints int `json:"constructive_points"`
	AwardCount         int `json:"award_count"`

	Skills []SkillBucket `json:"skills"`

	Trend           Trend      `json:"trend"`
	TrendConfidence Confidence `json:"trend_confidence"`
	RecentDailyAvg  float64    `json:"recent_daily_avg"`
	OlderDailyAvg   float64    `json:"older_daily_avg"`

	GeneratedAt time.Time `json:"generated_at"`
}

// StudentSummary is a learner line in a classroom report.
type StudentSummary struct {
	StudentID   string `json:"student_id"`
	StudentName string `json:"student_name"`
	TotalPoints int    `json:"total_points"`
	AwardCount  int    `json:"award_count"`
}

// ClassroomReport is the classroom rollup.
type ClassroomReport struct {
	ClassroomID string `json:"classroom_id"`
	Window      Window `json:"window"`

	TotalPoints        int `json:"total_points"`
	PositivePoints     int `json:"positive_points"`
	ConstructivePoints int `json:"constructive_points"`
	AwardCount         int `json:"award_count"`
	EnrolledCount      int `json:"enrolled_count"`

	AveragePerStudent float64 `json:"average_per_student"`
	DailyAverage      float64 `json:"daily_average"`

	Students      []StudentSummary `json:"students"`
	NeedsSupport  []StudentSummary `json:"needs_support"`
	TopPerformers []StudentSummary `json:"top_performers"`
	DominantSkill *SkillBucket     `json:"dominant_skill,omitempty"`
	Skills        []SkillBucket    `json:"skills"`

	GeneratedAt time.Time `json:"generated_at"`
}

// ══════════════════════════════════════════════════════════════════════════════
// AGGREGATOR
// ══════════════════════════════════════════════════════════════════════════════

// Config configures the Aggregator.
type Config struct {
	Trend         TrendConfig
	TopPerformers int
}

// DefaultConfig returns the standard aggregator configuration.
func DefaultConfig() Config {
	return Config{Trend: DefaultTrendConfig(), TopPerformers: 3}
}

// Aggregator builds reports from award history.
type Aggregator struct {
	cfg Config
}

// NewAggregator creates an Aggregator.
func NewAggregator(cfg Config) *Aggregator {
	if cfg.Trend.WindowDays <= 0 {
		cfg.Trend = DefaultTrendConfig()
	}
	if cfg.TopPerformers <= 0 {
		cfg.TopPerformers = 3
	}
	return &Aggregator{cfg: cfg}
}

// TrendLookback returns how far back history must reach to classify a trend.
func (a *Aggregator) TrendLookback(now time.Time, loc *time.Location) time.Time {
	return timeutil.DaysAgo(now, 2*a.cfg.Trend.WindowDays-1, loc)
}

// StudentInput is the history for one learner report.
type StudentInput struct {
	StudentID   string
	StudentName string

	// Awards must cover both Window and TrendLookback.
	Awards []*award.PointAward
	Window Window

	ClassroomDailyAvg float64
	Now               time.Time
	Location          *time.Location
}

// Student builds a learner report.
func (a *Aggregator) Student(in StudentInput) *StudentReport {
	r := &StudentReport{
		StudentID:   in.StudentID,
		StudentName: in.StudentName,
		Window:      in.Window,
		GeneratedAt: in.Now.UTC(),
	}

	buckets := newBucketSet()
	for _, aw := range in.Awards {
		if aw.StudentID != in.StudentID || !in.Window.contains(aw.AwardedAt) {
			continue
		}
		if r.StudentName == "" {
			r.StudentName = aw.StudentName
		}
		r.AwardCount++
		r.TotalPoints += aw.Points
		if aw.IsPositive {
			r.PositivePoints += aw.Points
		} else {
			r.ConstructivePoints += aw.Points
		}
		buckets.add(aw)
	}
	r.Skills = buckets.sorted()

	recent, older, samples := a.dailyAverages(in.Awards, in.StudentID, in.Now, in.Location)
	r.RecentDailyAvg = recent
	r.OlderDailyAvg = older
	r.Trend = a.cfg.Trend.Classify(recent, older, in.ClassroomDailyAvg)
	r.TrendConfidence = a.cfg.Trend.ConfidenceFor(samples)
	return r
}

// dailyAverages returns the learner's net daily average over the recent window
// and the window before it, plus the award count across both.
func (a *Aggregator) dailyAverages(awards []*award.PointAward, studentID string, now time.Time, loc *time.Location) (recent, older float64, samples int) {
	days := a.cfg.Trend.WindowDays
	recentStart := timeutil.DaysAgo(now, days-1, loc)
	olderStart := timeutil.DaysAgo(now, 2*days-1, loc)
	end := timeutil.StartOfDay(now, loc).AddDate(0, 0, 1)

	var recentSum, olderSum int
	for _, aw := range awards {
		if aw.StudentID != studentID {
			continue
		}
		switch {
		case !aw.AwardedAt.Before(recentStart) && aw.AwardedAt.Before(end):
			recentSum += aw.Points
			samples++
		case !aw.AwardedAt.Before(olderStart) && aw.AwardedAt.Before(recentStart):
			olderSum += aw.Points
			samples++
		}
	}
	return float64(recentSum) / float64(days), float64(olderSum) / float64(days), samples
}

// ClassroomDailyAverage is the classroom's net points over the recent window,
// divided by window days and enrolled learners.
func (a *Aggregator) ClassroomDailyAverage(awards []*award.PointAward, enrolled int, now time.Time, loc *time.Location) float64 {
	if enrolled <= 0 {
		return 0
	}
	days := a.cfg.Trend.WindowDays
	start := timeutil.DaysAgo(now, days-1, loc)
	end := timeutil.StartOfDay(now, loc).AddDate(0, 0, 1)

	sum := 0
	for _, aw := range awards {
		if !aw.AwardedAt.Before(start) && aw.AwardedAt.Before(end) {
			sum += aw.Points
		}
	}
	return float64(sum) / float64(days) / float64(enrolled)
}

// ClassroomInput is the history for a classroom report.
type ClassroomInput struct {
	ClassroomID string
	Learners    []*learner.Learner
	Awards      []*award.PointAward

	// SkillFrequency is the store's per-skill count over Window. When set it
	// picks the dominant skill; otherwise the busiest bucket does.
	SkillFrequency []award.SkillCount

	Window   Window
	Now      time.Time
	Location *time.Location
}

// Classroom builds the classroom report. Learners without awards still count
// towards the enrolled average.
func (a *Aggregator) Classroom(in ClassroomInput) *ClassroomReport {
	r := &ClassroomReport{
		ClassroomID:   in.ClassroomID,
		Window:        in.Window,
		EnrolledCount: len(in.Learners),
		GeneratedAt:   in.Now.UTC(),
	}

	// Per-query arena of learner -> awards.
	byStudent := make(map[string][]*award.PointAward, len(in.Learners))
	buckets := newBucketSet()
	for _, aw := range in.Awards {
		if !in.Window.contains(aw.AwardedAt) {
			continue
		}
		byStudent[aw.StudentID] = append(byStudent[aw.StudentID], aw)
		r.AwardCount++
		r.TotalPoints += aw.Points
		if aw.IsPositive {
			r.PositivePoints += aw.Points
		} else {
			r.ConstructivePoints += aw.Points
		}
		buckets.add(aw)
	}
	r.Skills = buckets.sorted()
	r.DominantSkill = dominantSkill(r.Skills, in.SkillFrequency)

	r.Students = make([]StudentSummary, 0, len(in.Learners))
	for _, l := range in.Learners {
		sum := StudentSummary{StudentID: l.ID, StudentName: l.DisplayName()}
		for _, aw := range byStudent[l.ID] {
			sum.TotalPoints += aw.Points
			sum.AwardCount++
		}
		r.Students = append(r.Students, sum)
	}

	if r.EnrolledCount > 0 {
		enrolledTotal := 0
		for _, s := range r.Students {
			enrolledTotal += s.TotalPoints
		}
		r.AveragePerStudent = float64(enrolledTotal) / float64(r.EnrolledCount)
	}
	r.DailyAverage = a.ClassroomDailyAverage(in.Awards, r.EnrolledCount, in.Now, in.Location)

	ranked := append([]StudentSummary(nil), r.Students...)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].TotalPoints != ranked[j].TotalPoints {
			return ranked[i].TotalPoints > ranked[j].TotalPoints
		}
		return ranked[i].StudentName < ranked[j].StudentName
	})
	for _, s := range ranked {
		if len(r.TopPerformers) == a.cfg.TopPerformers {
			break
		}
		if s.TotalPoints > 0 {
			r.TopPerformers = append(r.TopPerformers, s)
		}
	}

	if r.AveragePerStudent > 0 {
		half := r.AveragePerStudent / 2
		for _, s := range r.Students {
			if float64(s.TotalPoints) < half {
				r.NeedsSupport = append(r.NeedsSupport, s)
			}
		}
	}
	return r
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func dominantSkill(buckets []SkillBucket, frequency []award.SkillCount) *SkillBucket {
	if len(frequency) > 0 {
		top := frequency[0]
		for _, b := range buckets {
			if b.SkillID == top.SkillID {
				b.Count = top.Count
				return &b
			}
		}
		return &SkillBucket{SkillID: top.SkillID, SkillName: top.SkillName, Count: top.Count}
	}
	if len(buckets) > 0 {
		top := buckets[0]
		return &top
	}
	return nil
}

type bucketSet struct {
	order []string
	byID  map[string]*SkillBucket
}

func newBucketSet() *bucketSet {
	return &bucketSet{byID: map[string]*SkillBucket{}}
}

func (b *bucketSet) add(aw *award.PointAward) {
	bk, ok := b.byID[aw.SkillID]
	if !ok {
		bk = &SkillBucket{SkillID: aw.SkillID, SkillName: aw.SkillName, SkillEmoji: aw.SkillEmoji}
		b.byID[aw.SkillID] = bk
		b.order = append(b.order, aw.SkillID)
	}
	bk.Count++
	bk.Points += aw.Points
}

// sorted returns buckets by frequency, then name.
func (b *bucketSet) sorted() []SkillBucket {
	out := make([]SkillBucket, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, *b.byID[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].SkillName < out[j].SkillName
	})
	return out
}
