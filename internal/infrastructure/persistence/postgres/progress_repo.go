package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/explorer-points/internal/domain/celebration"
	"github.com/alem-hub/explorer-points/internal/domain/shared"
	"github.com/alem-hub/explorer-points/internal/domain/streak"
)

// ══════════════════════════════════════════════════════════════════════════════
// STREAK REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// StreakRepository implements streak.Repository for PostgreSQL.
type StreakRepository struct {
	conn *Connection
}

// NewStreakRepository creates a new StreakRepository.
func NewStreakRepository(conn *Connection) *StreakRepository {
	return &StreakRepository{conn: conn}
}

// Get implements streak.Repository.
func (r *StreakRepository) Get(ctx context.Context, studentID string) (*streak.Streak, error) {
	var s streak.Streak
	err := r.conn.QueryRow(ctx, `
		SELECT student_id, classroom_id, current_streak, current_streak_start,
			   longest_streak, longest_streak_start, longest_streak_end,
			   last_point_date, celebrated_milestones, updated_at
		FROM streaks
		WHERE student_id = $1
	`, studentID).Scan(
		&s.StudentID, &s.ClassroomID, &s.CurrentStreak, &s.CurrentStreakStart,
		&s.LongestStreak, &s.LongestStreakStart, &s.LongestStreakEnd,
		&s.LastPointDate, &s.CelebratedMilestones, &s.UpdatedAt,
	)
	if IsNoRows(err) {
		return nil, shared.ErrStreakNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get streak: %w", err)
	}
	if len(s.CelebratedMilestones) == 0 {
		s.CelebratedMilestones = nil
	}
	return &s, nil
}

// Upsert implements streak.Repository.
func (r *StreakRepository) Upsert(ctx context.Context, s *streak.Streak) error {
	milestones := s.CelebratedMilestones
	if milestones == nil {
		milestones = []int{}
	}
	_, err := r.conn.Exec(ctx, `
		INSERT INTO streaks (
			student_id, classroom_id, current_streak, current_streak_start,
			longest_streak, longest_streak_start, longest_streak_end,
			last_point_date, celebrated_milestones, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (student_id) DO UPDATE SET
			classroom_id = EXCLUDED.classroom_id,
			current_streak = EXCLUDED.current_streak,
			current_streak_start = EXCLUDED.current_streak_start,
			longest_streak = EXCLUDED.longest_streak,
			longest_streak_start = EXCLUDED.longest_streak_start,
			longest_streak_end = EXCLUDED.longest_streak_end,
			last_point_date = EXCLUDED.last_point_date,
			celebrated_milestones = EXCLUDED.celebrated_milestones,
			updated_at = EXCLUDED.updated_at
	`,
		s.StudentID, s.ClassroomID, s.CurrentStreak, s.CurrentStreakStart,
		s.LongestStreak, s.LongestStreakStart, s.LongestStreakEnd,
		s.LastPointDate, milestones, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert streak: %w", err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CELEBRATION REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// CelebrationRepository implements celebration.Repository for PostgreSQL.
type CelebrationRepository struct {
	conn *Connection
}

// NewCelebrationRepository creates a new CelebrationRepository.
func NewCelebrationRepository(conn *Connection) *CelebrationRepository {
	return &CelebrationRepository{conn: conn}
}

const celebrationColumns = `
	id, tenant_id, school_id, classroom_id, student_id, type, value, title, message,
	certificate_eligible, animation_tier, notification_sent, announced, achieved_at`

// Create implements celebration.Repository. The unique constraint on
// (student_id, type, value) makes a replayed threshold a no-op.
func (r *CelebrationRepository) Create(ctx context.Context, c *celebration.Celebration) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO celebrations (`+celebrationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		c.ID, c.TenantID, c.SchoolID, c.ClassroomID, c.StudentID, string(c.Type), c.Value, c.Title, c.Message,
		c.CertificateEligible, string(c.AnimationTier), c.NotificationSent, c.Announced, c.AchievedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrCelebrationExists
		}
		return fmt.Errorf("failed to create celebration: %w", err)
	}
	return nil
}

// ListByStudent implements celebration.Repository.
func (r *CelebrationRepository) ListByStudent(ctx context.Context, studentID string) ([]*celebration.Celebration, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+celebrationColumns+`
		FROM celebrations
		WHERE student_id = $1
		ORDER BY achieved_at DESC
	`, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list celebrations: %w", err)
	}
	return collectCelebrations(rows)
}

// ListByClassroom implements celebration.Repository. limit <= 0 means no limit.
func (r *CelebrationRepository) ListByClassroom(ctx context.Context, classroomID string, since time.Time, limit int) ([]*celebration.Celebration, error) {
	query := `
		SELECT ` + celebrationColumns + `
		FROM celebrations
		WHERE classroom_id = $1 AND achieved_at >= $2
		ORDER BY achieved_at DESC
	`
	args := []any{classroomID, since}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list celebrations: %w", err)
	}
	return collectCelebrations(rows)
}

// MarkNotified implements celebration.Repository.
func (r *CelebrationRepository) MarkNotified(ctx context.Context, id string) error {
	tag, err := r.conn.Exec(ctx, `UPDATE celebrations SET notification_sent = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark celebration notified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NewDomainError("celebration", "MarkNotified", shared.ErrNotFound, "celebration not found")
	}
	return nil
}

func collectCelebrations(rows pgx.Rows) ([]*celebration.Celebration, error) {
	defer rows.Close()
	var out []*celebration.Celebration
	for rows.Next() {
		var (
			c    celebration.Celebration
			typ  string
			tier string
		)
		err := rows.Scan(
			&c.ID, &c.TenantID, &c.SchoolID, &c.ClassroomID, &c.StudentID, &typ, &c.Value, &c.Title, &c.Message,
			&c.CertificateEligible, &tier, &c.NotificationSent, &c.Announced, &c.AchievedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan celebration: %w", err)
		}
		c.Type = celebration.MilestoneType(typ)
		c.AnimationTier = celebration.AnimationTier(tier)
		out = append(out, &c)
	}
	return out, rows.Err()
}
