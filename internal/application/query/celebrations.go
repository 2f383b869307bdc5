package query

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/explorer-points/internal/domain/celebration"
	"github.com/alem-hub/explorer-points/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST CELEBRATIONS QUERY
// Лента празднований ученика или класса, новые первыми.
// ══════════════════════════════════════════════════════════════════════════════

// ListCelebrationsQuery содержит параметры запроса. Нужен StudentID или ClassroomID.
type ListCelebrationsQuery struct {
	StudentID   string
	ClassroomID string

	// Since - нижняя граница для ленты класса.
	Since time.Time

	// Limit - максимум записей (по умолчанию 50, не больше 200).
	Limit int
}

// Validate проверяет корректность параметров запроса.
func (q *ListCelebrationsQuery) Validate() error {
	if q.StudentID == "" && q.ClassroomID == "" {
		return shared.NewDomainError("celebration", "List", shared.ErrInvalidID, "either student_id or classroom_id must be provided")
	}
	if q.Limit < 0 {
		return shared.NewDomainError("celebration", "List", shared.ErrValueOutOfRange, "limit cannot be negative")
	}
	if q.Limit == 0 {
		q.Limit = 50
	}
	if q.Limit > 200 {
		q.Limit = 200
	}
	return nil
}

// ListCelebrationsHandler обрабатывает запрос.
type ListCelebrationsHandler struct {
	celebrations celebration.Repository
}

// NewListCelebrationsHandler создаёт обработчик.
func NewListCelebrationsHandler(celebrations celebration.Repository) *ListCelebrationsHandler {
	return &ListCelebrationsHandler{celebrations: celebrations}
}

// Handle выполняет запрос.
func (h *ListCelebrationsHandler) Handle(ctx context.Context, q ListCelebrationsQuery) ([]*celebration.Celebration, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("list_celebrations: validation failed: %w", err)
	}

	if q.StudentID != "" {
		list, err := h.celebrations.ListByStudent(ctx, q.StudentID)
		if err != nil {
			return nil, fmt.Errorf("list_celebrations: %w", err)
		}
		if len(list) > q.Limit {
			list = list[:q.Limit]
		}
		return list, nil
	}

	list, err := h.celebrations.ListByClassroom(ctx, q.ClassroomID, q.Since, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("list_celebrations: %w", err)
	}
	return list, nil
}
