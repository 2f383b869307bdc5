package query

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/explorer-points/internal/domain/analytics"
	"github.com/alem-hub/explorer-points/internal/domain/award"
	"github.com/alem-hub/explorer-points/internal/domain/learner"
	"github.com/alem-hub/explorer-points/internal/domain/shared"
	"github.com/alem-hub/explorer-points/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ANALYTICS QUERIES
// Отчёты строятся из истории наград. Готовые отчёты класса и его учеников
// лежат в кэше под ключом класса: отчёт ученика зависит от среднего по классу,
// поэтому любая награда в классе сбрасывает их все.
// ══════════════════════════════════════════════════════════════════════════════

// ReportCache - кэш готовых отчётов. Поле внутри области различает окна и
// дни, Invalidate области (award.AggregateCache) удаляет их все разом.
type ReportCache interface {
	// Load читает отчёт в dest. false без ошибки означает промах.
	Load(ctx context.Context, scopeKey, field string, dest any) (bool, error)

	// Store сохраняет отчёт.
	Store(ctx context.Context, scopeKey, field string, value any) error
}

// NoopReportCache - кэш, который ничего не хранит.
type NoopReportCache struct{}

// Load реализует ReportCache.
func (NoopReportCache) Load(context.Context, string, string, any) (bool, error) { return false, nil }

// Store реализует ReportCache.
func (NoopReportCache) Store(context.Context, string, string, any) error { return nil }

// AnalyticsDeps - зависимости аналитических запросов.
type AnalyticsDeps struct {
	Awards     award.Repository
	Learners   learner.Repository
	Cache      ReportCache
	Aggregator *analytics.Aggregator
	Clock      Clock
	Logger     *slog.Logger

	// DefaultTimezone - часовой пояс, если в запросе он не задан.
	DefaultTimezone string
}

func (d *AnalyticsDeps) defaults() {
	if d.Cache == nil {
		d.Cache = NoopReportCache{}
	}
	if d.Aggregator == nil {
		d.Aggregator = analytics.NewAggregator(analytics.DefaultConfig())
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Ученик
// ─────────────────────────────────────────────────────────────────────────────

// StudentAnalyticsQuery содержит параметры отчёта по ученику.
type StudentAnalyticsQuery struct {
	StudentID   string
	ClassroomID string

	// From/To - окно отчёта [From, To). Нулевые границы открыты.
	From time.Time
	To   time.Time

	// Timezone - IANA-имя; пустое значение даёт пояс по умолчанию.
	Timezone string
}

// Validate проверяет корректность параметров запроса.
func (q StudentAnalyticsQuery) Validate() error {
	if q.StudentID == "" {
		return shared.NewDomainError("analytics", "Student", shared.ErrInvalidID, "student ID is required")
	}
	if q.ClassroomID == "" {
		return shared.ErrClassroomRequired
	}
	if !q.From.IsZero() && !q.To.IsZero() && !q.From.Before(q.To) {
		return shared.NewDomainError("analytics", "Student", shared.ErrValueOutOfRange, "window start must be before its end")
	}
	return nil
}

// StudentAnalyticsHandler строит отчёт по ученику.
type StudentAnalyticsHandler struct {
	deps   AnalyticsDeps
	logger *slog.Logger
}

// NewStudentAnalyticsHandler создаёт обработчик.
func NewStudentAnalyticsHandler(deps AnalyticsDeps) *StudentAnalyticsHandler {
	deps.defaults()
	return &StudentAnalyticsHandler{deps: deps, logger: deps.Logger.With("handler", "student_analytics")}
}

// Handle выполняет запрос.
func (h *StudentAnalyticsHandler) Handle(ctx context.Context, q StudentAnalyticsQuery) (*analytics.StudentReport, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("student_analytics: validation failed: %w", err)
	}
	now := h.deps.Clock.now()
	loc := location(q.Timezone, h.deps.DefaultTimezone)
	scopeKey := shared.ClassroomScopeKey(q.ClassroomID)
	field := reportField("student:"+q.StudentID, q.ClassroomID, q.From, q.To, now, loc)

	var cached analytics.StudentReport
	if ok, err := h.deps.Cache.Load(ctx, scopeKey, field, &cached); err != nil {
		h.logger.Warn("report cache read failed", "scope_key", scopeKey, "error", err)
	} else if ok {
		return &cached, nil
	}

	enrolled, err := h.deps.Learners.ListByClassroom(ctx, q.ClassroomID)
	if err != nil {
		return nil, fmt.Errorf("student_analytics: failed to load learners: %w", err)
	}
	l, ok := learner.Index(enrolled)[q.StudentID]
	if !ok {
		return nil, fmt.Errorf("student_analytics: %s: %w", q.StudentID, shared.ErrLearnerNotFound)
	}

	// История ученика покрывает окно отчёта и окно тренда; история класса
	// нужна только для среднего по классу.
	lookback := h.deps.Aggregator.TrendLookback(now, loc)
	own, err := h.deps.Awards.ListByStudent(ctx, q.StudentID, award.Filter{From: earliest(q.From, lookback)})
	if err != nil {
		return nil, fmt.Errorf("student_analytics: failed to load awards: %w", err)
	}
	studentAwards := make([]*award.PointAward, 0, len(own))
	for _, aw := range own {
		if aw.ClassroomID == q.ClassroomID {
			studentAwards = append(studentAwards, aw)
		}
	}
	classAwards, err := h.deps.Awards.ListByClassroom(ctx, q.ClassroomID, award.Filter{From: lookback})
	if err != nil {
		return nil, fmt.Errorf("student_analytics: failed to load classroom awards: %w", err)
	}

	report := h.deps.Aggregator.Student(analytics.StudentInput{
		StudentID:         q.StudentID,
		StudentName:       l.DisplayName(),
		Awards:            studentAwards,
		Window:            analytics.Window{From: q.From, To: q.To},
		ClassroomDailyAvg: h.deps.Aggregator.ClassroomDailyAverage(classAwards, len(enrolled), now, loc),
		Now:               now,
		Location:          loc,
	})

	if err := h.deps.Cache.Store(ctx, scopeKey, field, report); err != nil {
		h.logger.Warn("report cache write failed", "scope_key", scopeKey, "error", err)
	}
	return report, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Пакетная аналитика
// ─────────────────────────────────────────────────────────────────────────────

// StudentReportResult - результат одного элемента пакета.
type StudentReportResult struct {
	Query  StudentAnalyticsQuery
	Report *analytics.StudentReport
	Err    error
}

// BatchStudentAnalyticsHandler строит отчёты по многим ученикам с
// ограниченным параллелизмом. Ошибка одного элемента не прерывает остальные.
type BatchStudentAnalyticsHandler struct {
	single      *StudentAnalyticsHandler
	concurrency int
}

// NewBatchStudentAnalyticsHandler создаёт обработчик.
func NewBatchStudentAnalyticsHandler(single *StudentAnalyticsHandler, concurrency int) *BatchStudentAnalyticsHandler {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &BatchStudentAnalyticsHandler{single: single, concurrency: concurrency}
}

// Handle возвращает по одному результату на запрос, в исходном порядке.
func (h *BatchStudentAnalyticsHandler) Handle(ctx context.Context, queries []StudentAnalyticsQuery) []StudentReportResult {
	results := make([]StudentReportResult, len(queries))

	var g errgroup.Group
	g.SetLimit(h.concurrency)
	for i, q := range queries {
		g.Go(func() error {
			report, err := h.single.Handle(ctx, q)
			results[i] = StudentReportResult{Query: q, Report: report, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// ─────────────────────────────────────────────────────────────────────────────
// Класс
// ─────────────────────────────────────────────────────────────────────────────

// ClassroomAnalyticsQuery содержит параметры отчёта по классу.
type ClassroomAnalyticsQuery struct {
	ClassroomID string
	From        time.Time
	To          time.Time
	Timezone    string
}

// Validate проверяет корректность параметров запроса.
func (q ClassroomAnalyticsQuery) Validate() error {
	if q.ClassroomID == "" {
		return shared.ErrClassroomRequired
	}
	if !q.From.IsZero() && !q.To.IsZero() && !q.From.Before(q.To) {
		return shared.NewDomainError("analytics", "Classroom", shared.ErrValueOutOfRange, "window start must be before its end")
	}
	return nil
}

// ClassroomAnalyticsHandler строит отчёт по классу.
type ClassroomAnalyticsHandler struct {
	deps   AnalyticsDeps
	logger *slog.Logger
}

// NewClassroomAnalyticsHandler создаёт обработчик.
func NewClassroomAnalyticsHandler(deps AnalyticsDeps) *ClassroomAnalyticsHandler {
	deps.defaults()
	return &ClassroomAnalyticsHandler{deps: deps, logger: deps.Logger.With("handler", "classroom_analytics")}
}

// Handle выполняет запрос.
func (h *ClassroomAnalyticsHandler) Handle(ctx context.Context, q ClassroomAnalyticsQuery) (*analytics.ClassroomReport, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("classroom_analytics: validation failed: %w", err)
	}
	now := h.deps.Clock.now()
	loc := location(q.Timezone, h.deps.DefaultTimezone)
	scopeKey := shared.ClassroomScopeKey(q.ClassroomID)
	field := reportField("classroom", q.ClassroomID, q.From, q.To, now, loc)

	var cached analytics.ClassroomReport
	if ok, err := h.deps.Cache.Load(ctx, scopeKey, field, &cached); err != nil {
		h.logger.Warn("report cache read failed", "scope_key", scopeKey, "error", err)
	} else if ok {
		return &cached, nil
	}

	// Средний дневной показатель всегда считается по недавнему окну,
	// поэтому история должна покрывать и окно отчёта, и это окно.
	lookback := h.deps.Aggregator.TrendLookback(now, loc)
	awards, err := h.deps.Awards.ListByClassroom(ctx, q.ClassroomID, award.Filter{From: earliest(q.From, lookback)})
	if err != nil {
		return nil, fmt.Errorf("classroom_analytics: failed to load awards: %w", err)
	}
	enrolled, err := h.deps.Learners.ListByClassroom(ctx, q.ClassroomID)
	if err != nil {
		return nil, fmt.Errorf("classroom_analytics: failed to load learners: %w", err)
	}
	frequency, err := h.deps.Awards.SkillFrequency(ctx, q.ClassroomID, award.Filter{From: q.From, To: q.To})
	if err != nil {
		return nil, fmt.Errorf("classroom_analytics: failed to count skills: %w", err)
	}

	report := h.deps.Aggregator.Classroom(analytics.ClassroomInput{
		ClassroomID:    q.ClassroomID,
		Learners:       enrolled,
		Awards:         awards,
		SkillFrequency: frequency,
		Window:         analytics.Window{From: q.From, To: q.To},
		Now:            now,
		Location:       loc,
	})

	if err := h.deps.Cache.Store(ctx, scopeKey, field, report); err != nil {
		h.logger.Warn("report cache write failed", "scope_key", scopeKey, "error", err)
	}
	return report, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func location(name, fallback string) *time.Location {
	if name == "" {
		name = fallback
	}
	return timeutil.LoadLocation(name)
}

// earliest возвращает более раннюю границу; нулевая граница означает
// открытое окно и выигрывает всегда.
func earliest(from, lookback time.Time) time.Time {
	if from.IsZero() || from.Before(lookback) {
		return from
	}
	return lookback
}

// reportField - поле кэша. День входит в ключ, потому что тренд считается
// относительно текущего дня.
func reportField(kind, classroomID string, from, to, now time.Time, loc *time.Location) string {
	return fmt.Sprintf("%s:%s:%s:%s:%s", kind, classroomID, timeutil.DayKey(now, loc), boundKey(from), boundKey(to))
}

func boundKey(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
