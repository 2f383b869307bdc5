// Package notification содержит контракт уведомлений родителям и сборку
// сообщений о наградах и празднованиях. Доставка - внешний сервис.
package notification

import (
	"context"
	"fmt"
	"strconv"

	"github.com/alem-hub/explorer-points/internal/domain/award"
	"github.com/alem-hub/explorer-points/internal/domain/celebration"
)

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION TYPE
// ══════════════════════════════════════════════════════════════════════════════

// Type определяет тип уведомления.
type Type string

const (
	// TypePointsAwarded - ученик получил очки.
	// "💖 Emma earned 2 Explorer Points for Kind Hearts"
	TypePointsAwarded Type = "points_awarded"

	// TypeCelebration - ученик достиг порога очков.
	// "🎉 Emma has reached 100 Explorer Points!"
	TypeCelebration Type = "celebration"
)

// ══════════════════════════════════════════════════════════════════════════════
// MESSAGE
// ══════════════════════════════════════════════════════════════════════════════

// Message - полезная нагрузка уведомления.
type Message struct {
	Type  Type              `json:"type"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Notifier - канал доставки уведомления ученику (его родителям).
// Вызывается без ожидания результата: ошибка только логируется
// и никогда не откатывает награду.
type Notifier interface {
	Notify(ctx context.Context, learnerID string, msg Message) error
}

// ForAward собирает уведомление о награде.
func ForAward(a *award.PointAward) Message {
	name := a.StudentName
	if name == "" {
		name = "Your explorer"
	}
	noun := "Explorer Points"
	if a.Points == 1 {
		noun = "Explorer Point"
	}
	body := fmt.Sprintf("%s earned %d %s for %s", name, a.Points, noun, a.SkillName)
	if a.Context != "" {
		body += ": " + a.Context
	}
	return Message{
		Type:  TypePointsAwarded,
		Title: fmt.Sprintf("%s %s", a.SkillEmoji, a.SkillName),
		Body:  body,
		Data: map[string]string{
			"award_id":     a.ID,
			"skill_id":     a.SkillID,
			"classroom_id": a.ClassroomID,
			"points":       strconv.Itoa(a.Points),
		},
	}
}

// ForCelebration собирает уведомление о празднике.
func ForCelebration(c *celebration.Celebration) Message {
	return Message{
		Type:  TypeCelebration,
		Title: "🎉 " + c.Title,
		Body:  c.Message,
		Data: map[string]string{
			"celebration_id": c.ID,
			"classroom_id":   c.ClassroomID,
			"value":          strconv.Itoa(c.Value),
			"certificate":    strconv.FormatBool(c.CertificateEligible),
			"animation_tier": string(c.AnimationTier),
		},
	}
}
