// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alem-hub/explorer-points/internal/domain/shared"
	"github.com/alem-hub/explorer-points/internal/domain/suggestion"
)

// Clock возвращает текущее время. nil означает time.Now.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}

// ══════════════════════════════════════════════════════════════════════════════
// LIST PENDING SUGGESTIONS QUERY
// Возвращает предложения, ожидающие решения учителя.
// Перед чтением выполняется ленивая очистка: всё, что старше TTL, переводится
// в expired. Фонового планировщика для этого не требуется.
// ══════════════════════════════════════════════════════════════════════════════

// ListPendingSuggestionsQuery содержит параметры запроса.
type ListPendingSuggestionsQuery struct {
	Scope shared.Scope
}

// Validate проверяет корректность параметров запроса.
func (q ListPendingSuggestionsQuery) Validate() error {
	if q.Scope.ClassroomID == "" {
		return shared.ErrClassroomRequired
	}
	return nil
}

// PendingSuggestionsDTO - результат запроса.
type PendingSuggestionsDTO struct {
	Suggestions []*suggestion.Suggestion `json:"suggestions"`

	// Expired - сколько предложений истекло при этом запросе.
	Expired int `json:"expired"`
}

// ListPendingSuggestionsHandler обрабатывает запрос.
type ListPendingSuggestionsHandler struct {
	suggestions suggestion.Repository
	publisher   shared.EventPublisher
	clock       Clock
	logger      *slog.Logger
}

// NewListPendingSuggestionsHandler создаёт обработчик.
func NewListPendingSuggestionsHandler(suggestions suggestion.Repository, publisher shared.EventPublisher, clock Clock, logger *slog.Logger) *ListPendingSuggestionsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ListPendingSuggestionsHandler{
		suggestions: suggestions,
		publisher:   publisher,
		clock:       clock,
		logger:      logger.With("handler", "list_pending_suggestions"),
	}
}

// Handle выполняет запрос.
func (h *ListPendingSuggestionsHandler) Handle(ctx context.Context, q ListPendingSuggestionsQuery) (*PendingSuggestionsDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("list_pending_suggestions: validation failed: %w", err)
	}

	now := h.clock.now()
	expired, err := Sweep(ctx, h.suggestions, h.publisher, h.logger, q.Scope, now)
	if err != nil {
		return nil, fmt.Errorf("list_pending_suggestions: %w", err)
	}

	pending, err := h.suggestions.ListPendingByClassroom(ctx, q.Scope.ClassroomID)
	if err != nil {
		return nil, fmt.Errorf("list_pending_suggestions: failed to list: %w", err)
	}

	// Хранилище могло вернуть предложение, истёкшее между очисткой и чтением.
	out := pending[:0]
	for _, s := range pending {
		if !s.IsExpired(now) {
			out = append(out, s)
		}
	}

	return &PendingSuggestionsDTO{Suggestions: out, Expired: expired}, nil
}

// Sweep переводит истёкшие предложения в expired и публикует событие, если
// что-то изменилось. Пустой ClassroomID очищает все классы; так работает
// периодическая очистка в воркере.
func Sweep(ctx context.Context, repo suggestion.Repository, publisher shared.EventPublisher, logger *slog.Logger, scope shared.Scope, now time.Time) (int, error) {
	n, err := repo.ExpireBefore(ctx, scope.ClassroomID, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire suggestions: %w", err)
	}
	if n == 0 {
		return 0, nil
	}

	logger.Info("suggestions expired",
		"classroom_id", scope.ClassroomID,
		"count", n,
	)
	if publisher != nil {
		if err := publisher.Publish(shared.NewSuggestionsExpiredEvent(scope, n, now)); err != nil {
			logger.Warn("failed to publish event",
				"event_type", shared.EventSuggestionsExpired,
				"error", err,
			)
		}
	}
	return n, nil
}
