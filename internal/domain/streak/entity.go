// Package streak содержит серию дней с позитивными наградами ученика.
// Дни считаются по календарю часового пояса школы, а не по прошедшим часам.
package streak

import (
	"time"

	"github.com/alem-hub/explorer-points/pkg/timeutil"
)

// Milestones - длины серий, которые отмечаются один раз за серию.
var Milestones = []int{3, 5, 7, 10, 14, 21, 30}

// Outcome - что произошло с серией после награды.
type Outcome string

const (
	// OutcomeStarted - первая позитивная награда, серия создана.
	OutcomeStarted Outcome = "started"
	// OutcomeSameDay - награда в тот же день, длина не меняется.
	OutcomeSameDay Outcome = "same_day"
	// OutcomeExtended - награда на следующий день, серия продлена.
	OutcomeExtended Outcome = "extended"
	// OutcomeReset - пропущены дни, серия начата заново.
	OutcomeReset Outcome = "reset"
)

// Streak - серия ученика. Одна запись на ученика, никогда не удаляется.
type Streak struct {
	StudentID   string `json:"student_id"`
	ClassroomID string `json:"classroom_id"`

	CurrentStreak      int       `json:"current_streak"`
	CurrentStreakStart time.Time `json:"current_streak_start"`

	// LongestStreak - исторический максимум, сброс серии его не меняет.
	LongestStreak      int       `json:"longest_streak"`
	LongestStreakStart time.Time `json:"longest_streak_start"`
	LongestStreakEnd   time.Time `json:"longest_streak_end"`

	LastPointDate time.Time `json:"last_point_date"`

	// CelebratedMilestones - вехи, уже отмеченные в текущей серии.
	CelebratedMilestones []int `json:"celebrated_milestones"`

	UpdatedAt time.Time `json:"updated_at"`
}

// New создаёт серию по первой позитивной награде.
func New(studentID, classroomID string, now time.Time, loc *time.Location) *Streak {
	day := timeutil.StartOfDay(now, loc)
	return &Streak{
		StudentID:          studentID,
		ClassroomID:        classroomID,
		CurrentStreak:      1,
		CurrentStreakStart: day,
		LongestStreak:      1,
		LongestStreakStart: day,
		LongestStreakEnd:   day,
		LastPointDate:      now,
		UpdatedAt:          now,
	}
}

// Advance применяет позитивную награду в момент now.
// loc - часовой пояс школы, по которому определяется календарный день.
func (s *Streak) Advance(now time.Time, loc *time.Location) Outcome {
	today := timeutil.StartOfDay(now, loc)
	daysDiff := timeutil.CalendarDaysBetween(s.LastPointDate, now, loc)

	switch {
	case daysDiff <= 0:
		// Тот же день (или запоздалая награда) - длину не меняем
		s.LastPointDate = latest(s.LastPointDate, now)
		s.UpdatedAt = now
		return OutcomeSameDay
	case daysDiff == 1:
		s.CurrentStreak++
		if s.CurrentStreak > s.LongestStreak {
			s.LongestStreak = s.CurrentStreak
			s.LongestStreakStart = s.CurrentStreakStart
			s.LongestStreakEnd = today
		}
		s.LastPointDate = now
		s.UpdatedAt = now
		return OutcomeExtended
	default:
		// Пропущены дни - сбрасываем серию, рекорд остаётся
		s.CurrentStreak = 1
		s.CurrentStreakStart = today
		s.CelebratedMilestones = nil
		s.LastPointDate = now
		s.UpdatedAt = now
		return OutcomeReset
	}
}

// NewMilestones возвращает вехи, достигнутые текущей серией и ещё не
// отмеченные, и помечает их отмеченными.
func (s *Streak) NewMilestones() []int {
	var reached []int
	for _, m := range Milestones {
		if s.CurrentStreak < m {
			break
		}
		if s.hasCelebrated(m) {
			continue
		}
		s.CelebratedMilestones = append(s.CelebratedMilestones, m)
		reached = append(reached, m)
	}
	return reached
}

// IsActive проверяет, что серия ещё не прервана на момент now.
func (s *Streak) IsActive(now time.Time, loc *time.Location) bool {
	return timeutil.CalendarDaysBetween(s.LastPointDate, now, loc) <= 1
}

func (s *Streak) hasCelebrated(m int) bool {
	for _, c := range s.CelebratedMilestones {
		if c == m {
			return true
		}
	}
	return false
}

func latest(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
