// Package celebration отвечает за празднование порогов очков ученика.
// Порог отмечается ровно один раз: детектор срабатывает только при переходе
// previous < T <= new монотонного итога, а хранилище не допускает дублей.
package celebration

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/explorer-points/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ЛЕСТНИЦА ПОРОГОВ
// ══════════════════════════════════════════════════════════════════════════════

// Thresholds - фиксированная лестница порогов по возрастанию.
var Thresholds = []int{10, 25, 50, 100, 150, 200, 250, 500, 1000}

const (
	// CertificateThreshold - начиная с этого порога выдаётся сертификат.
	CertificateThreshold = 50
	// FireworksThreshold - начиная с этого порога анимация сильнее.
	FireworksThreshold = 100
)

// MilestoneType - тип вехи. Реализован только порог очков.
type MilestoneType string

const (
	MilestonePointsThreshold MilestoneType = "points_threshold"
)

// AnimationTier - уровень анимации празднования.
type AnimationTier string

const (
	AnimationCelebrate AnimationTier = "celebrate"
	AnimationFireworks AnimationTier = "fireworks"
)

// Milestone - один пересечённый порог.
type Milestone struct {
	Type                MilestoneType `json:"type"`
	Value               int           `json:"value"`
	CertificateEligible bool          `json:"certificate_eligible"`
	AnimationTier       AnimationTier `json:"animation_tier"`
}

// Detector находит пересечённые пороги. Без состояния.
type Detector struct {
	thresholds []int
}

// NewDetector создаёт детектор со стандартной лестницей.
func NewDetector() *Detector {
	return &Detector{thresholds: Thresholds}
}

// Check возвращает по одной вехе на каждый порог T, для которого
// previousTotal < T <= newTotal. Одна награда может пересечь несколько порогов.
func (d *Detector) Check(newTotal, previousTotal int) []Milestone {
	if newTotal <= previousTotal {
		return nil
	}
	var out []Milestone
	for _, t := range d.thresholds {
		if t <= previousTotal {
			continue
		}
		if t > newTotal {
			break
		}
		out = append(out, milestoneFor(t))
	}
	return out
}

func milestoneFor(t int) Milestone {
	tier := AnimationCelebrate
	if t >= FireworksThreshold {
		tier = AnimationFireworks
	}
	return Milestone{
		Type:                MilestonePointsThreshold,
		Value:               t,
		CertificateEligible: t >= CertificateThreshold,
		AnimationTier:       tier,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CELEBRATION
// ══════════════════════════════════════════════════════════════════════════════

// Celebration - запись о достигнутой вехе. Ровно одна на (ученик, тип, значение).
type Celebration struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenant_id"`
	SchoolID    string `json:"school_id"`
	ClassroomID string `json:"classroom_id"`
	StudentID   string `json:"student_id"`

	Type  MilestoneType `json:"type"`
	Value int           `json:"value"`

	Title   string `json:"title"`
	Message string `json:"message"`

	CertificateEligible bool          `json:"certificate_eligible"`
	AnimationTier       AnimationTier `json:"animation_tier"`
	NotificationSent    bool          `json:"notification_sent"`
	Announced           bool          `json:"announced"`

	AchievedAt time.Time `json:"achieved_at"`
}

// New создаёт запись празднования с заголовком и текстом.
func New(id string, scope shared.Scope, studentID, studentName string, m Milestone, at time.Time) *Celebration {
	return &Celebration{
		ID:                  id,
		TenantID:            scope.TenantID,
		SchoolID:            scope.SchoolID,
		ClassroomID:         scope.ClassroomID,
		StudentID:           studentID,
		Type:                m.Type,
		Value:               m.Value,
		Title:               fmt.Sprintf("%d Explorer Points!", m.Value),
		Message:             message(studentName, m),
		CertificateEligible: m.CertificateEligible,
		AnimationTier:       m.AnimationTier,
		AchievedAt:          at.UTC(),
	}
}

// Scope возвращает область празднования.
func (c *Celebration) Scope() shared.Scope {
	return shared.Scope{TenantID: c.TenantID, SchoolID: c.SchoolID, ClassroomID: c.ClassroomID}
}

func message(name string, m Milestone) string {
	if name == "" {
		name = "Your explorer"
	}
	msg := fmt.Sprintf("%s has reached %d Explorer Points!", name, m.Value)
	if m.CertificateEligible {
		msg += " A certificate is on its way."
	}
	return msg
}

// Repository - контракт хранилища празднований.
type Repository interface {
	// Create сохраняет запись. Дубль (ученик, тип, значение) даёт ErrCelebrationExists.
	Create(ctx context.Context, c *Celebration) error

	// ListByStudent возвращает празднования ученика, новые первыми.
	ListByStudent(ctx context.Context, studentID string) ([]*Celebration, error)

	// ListByClassroom возвращает празднования класса с момента since, новые первыми.
	ListByClassroom(ctx context.Context, classroomID string, since time.Time, limit int) ([]*Celebration, error)

	// MarkNotified помечает, что уведомление отправлено.
	MarkNotified(ctx context.Context, id string) error
}
