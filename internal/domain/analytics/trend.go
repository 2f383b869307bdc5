// Package analytics aggregates award history into per-learner and
// per-classroom rollups with a qualitative trend classification.
// Everything here is rebuilt from raw awards on each call.
package analytics

// Trend is the qualitative direction of a learner's recent points.
type Trend string

const (
	TrendImproving    Trend = "improving"
	TrendExcelling    Trend = "excelling"
	TrendStable       Trend = "stable"
	TrendNeedsSupport Trend = "needs_support"
)

// Confidence qualifies a trend by sample size.
type Confidence string

const (
	ConfidenceHigh Confidence = "high"
	ConfidenceLow  Confidence = "low"
)

// TrendConfig holds the classification ratios.
type TrendConfig struct {
	// WindowDays is the length of both the recent and the prior comparison windows.
	WindowDays int

	ImproveRatio float64
	DeclineRatio float64
	ExcelRatio   float64

	// HighConfidenceSamples is the award count at which confidence becomes high.
	HighConfidenceSamples int
}

// DefaultTrendConfig returns the standard ratios.
func DefaultTrendConfig() TrendConfig {
	return TrendConfig{
		WindowDays:            7,
		ImproveRatio:          1.2,
		DeclineRatio:          0.8,
		ExcelRatio:            1.5,
		HighConfidenceSamples: 10,
	}
}

// Classify compares the recent daily average with the prior one.
// excelling requires improving and beating the classroom daily average by ExcelRatio.
func (c TrendConfig) Classify(recentAvg, olderAvg, classroomDailyAvg float64) Trend {
	switch {
	case recentAvg > olderAvg*c.ImproveRatio:
		if recentAvg > classroomDailyAvg*c.ExcelRatio {
			return TrendExcelling
		}
		return TrendImproving
	case recentAvg < olderAvg*c.DeclineRatio:
		return TrendNeedsSupport
	default:
		return TrendStable
	}
}

// ConfidenceFor returns high when samples reach HighConfidenceSamples.
func (c TrendConfig) ConfidenceFor(samples int) Confidence {
	if samples >= c.HighConfidenceSamples {
		return ConfidenceHigh
	}
	return ConfidenceLow
}
