// Package learner описывает ученика на границе движка: идентичность и
// часовой пояс школы. Учёт учеников ведёт внешний сервис, здесь только чтение.
package learner

import (
	"context"
	"strings"
)

// Learner - ученик класса.
type Learner struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenant_id"`
	SchoolID    string `json:"school_id"`
	ClassroomID string `json:"classroom_id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`

	// Timezone - IANA-имя часового пояса школы. Пустое значение означает
	// часовой пояс по умолчанию из конфигурации.
	Timezone string `json:"timezone,omitempty"`

	// AgeBand - возрастная группа (например, "6-8").
	AgeBand string `json:"age_band,omitempty"`

	IsActive bool `json:"is_active"`
}

// DisplayName возвращает имя для отображения.
func (l *Learner) DisplayName() string {
	full := strings.TrimSpace(l.FirstName + " " + l.LastName)
	if full == "" {
		return l.ID
	}
	return full
}

// Repository - контракт хранилища учеников.
type Repository interface {
	// GetByIDs возвращает найденных учеников класса. Отсутствующие ID
	// просто не попадают в результат, это не ошибка.
	GetByIDs(ctx context.Context, classroomID string, ids []string) ([]*Learner, error)

	// ListByClassroom возвращает всех активных учеников класса.
	ListByClassroom(ctx context.Context, classroomID string) ([]*Learner, error)
}

// Index строит карту учеников по ID.
func Index(learners []*Learner) map[string]*Learner {
	out := make(map[string]*Learner, len(learners))
	for _, l := range learners {
		out[l.ID] = l
	}
	return out
}
