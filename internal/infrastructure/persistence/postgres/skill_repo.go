package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/explorer-points/internal/domain/learner"
	"github.com/alem-hub/explorer-points/internal/domain/shared"
	"github.com/alem-hub/explorer-points/internal/domain/skill"
)

// ══════════════════════════════════════════════════════════════════════════════
// SKILL REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// SkillRepository implements skill.Repository for PostgreSQL.
type SkillRepository struct {
	conn *Connection
}

// NewSkillRepository creates a new SkillRepository.
func NewSkillRepository(conn *Connection) *SkillRepository {
	return &SkillRepository{conn: conn}
}

const skillColumns = `
	id, tenant_id, school_id, classroom_id, name, emoji, description, category,
	is_positive, default_points, min_points, max_points, age_bands, scoring,
	is_active, usage_count, last_used_at, is_system, is_custom, created_by,
	created_at, updated_at`

// GetByID implements skill.Repository.
func (r *SkillRepository) GetByID(ctx context.Context, id string) (*skill.Skill, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+skillColumns+` FROM skills WHERE id = $1`, id)
	s, err := scanSkill(row)
	if IsNoRows(err) {
		return nil, shared.ErrSkillNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get skill: %w", err)
	}
	return s, nil
}

// ListByScope implements skill.Repository. Empty scope columns mean "wider
// visibility", mirroring skill.InScope.
func (r *SkillRepository) ListByScope(ctx context.Context, tenantID, schoolID, classroomID string) ([]*skill.Skill, error) {
	query := `
		SELECT ` + skillColumns + `
		FROM skills
		WHERE (tenant_id = '' OR $1 = '' OR tenant_id = $1)
		  AND (school_id = '' OR school_id = $2)
		  AND (classroom_id = '' OR classroom_id = $3)
		ORDER BY name
	`
	rows, err := r.conn.Query(ctx, query, tenantID, schoolID, classroomID)
	if err != nil {
		return nil, fmt.Errorf("failed to list skills: %w", err)
	}
	defer rows.Close()

	var out []*skill.Skill
	for rows.Next() {
		s, err := scanSkill(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan skill: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Create implements skill.Repository.
func (r *SkillRepository) Create(ctx context.Context, s *skill.Skill) error {
	scoring, err := json.Marshal(s.Scoring)
	if err != nil {
		return fmt.Errorf("failed to marshal scoring: %w", err)
	}
	bands := make([]string, len(s.AgeBands))
	for i, b := range s.AgeBands {
		bands[i] = string(b)
	}

	query := `
		INSERT INTO skills (` + skillColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
	`
	_, err = r.conn.Exec(ctx, query,
		s.ID, s.TenantID, s.SchoolID, s.ClassroomID, s.Name, s.Emoji, s.Description, string(s.Category),
		s.IsPositive, s.DefaultPoints, s.MinPoints, s.MaxPoints, bands, scoring,
		s.IsActive, s.UsageCount, s.LastUsedAt, s.IsSystem, s.IsCustom, s.CreatedBy,
		s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrSkillAlreadyExists
		}
		return fmt.Errorf("failed to create skill: %w", err)
	}
	return nil
}

// Seed inserts skills that are not stored yet. Used for the system library.
func (r *SkillRepository) Seed(ctx context.Context, skills []*skill.Skill) (int, error) {
	n := 0
	for _, s := range skills {
		err := r.Create(ctx, s)
		if err == nil {
			n++
			continue
		}
		if shared.IsAlreadyExists(err) {
			continue
		}
		return n, err
	}
	return n, nil
}

// IncrementUsage implements skill.Repository.
func (r *SkillRepository) IncrementUsage(ctx context.Context, id string, at time.Time) error {
	tag, err := r.conn.Exec(ctx, `
		UPDATE skills SET usage_count = usage_count + 1, last_used_at = $2, updated_at = $2
		WHERE id = $1
	`, id, at.UTC())
	if err != nil {
		return fmt.Errorf("failed to increment skill usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrSkillNotFound
	}
	return nil
}

// SetActive implements skill.Repository.
func (r *SkillRepository) SetActive(ctx context.Context, id string, active bool, at time.Time) error {
	tag, err := r.conn.Exec(ctx, `UPDATE skills SET is_active = $2, updated_at = $3 WHERE id = $1`, id, active, at.UTC())
	if err != nil {
		return fmt.Errorf("failed to set skill activation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrSkillNotFound
	}
	return nil
}

// CountCustom implements skill.Repository.
func (r *SkillRepository) CountCustom(ctx context.Context, classroomID string) (int, error) {
	var n int
	err := r.conn.QueryRow(ctx, `SELECT count(*) FROM skills WHERE is_custom AND classroom_id = $1`, classroomID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count custom skills: %w", err)
	}
	return n, nil
}

func scanSkill(row pgx.Row) (*skill.Skill, error) {
	var (
		s        skill.Skill
		category string
		bands    []string
		scoring  []byte
	)
	err := row.Scan(
		&s.ID, &s.TenantID, &s.SchoolID, &s.ClassroomID, &s.Name, &s.Emoji, &s.Description, &category,
		&s.IsPositive, &s.DefaultPoints, &s.MinPoints, &s.MaxPoints, &bands, &scoring,
		&s.IsActive, &s.UsageCount, &s.LastUsedAt, &s.IsSystem, &s.IsCustom, &s.CreatedBy,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Category = skill.Category(category)
	for _, b := range bands {
		s.AgeBands = append(s.AgeBands, skill.AgeBand(b))
	}
	if len(scoring) > 0 {
		if err := json.Unmarshal(scoring, &s.Scoring); err != nil {
			return nil, fmt.Errorf("failed to unmarshal scoring: %w", err)
		}
	}
	return &s, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LEARNER REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// LearnerRepository implements learner.Repository for PostgreSQL.
type LearnerRepository struct {
	conn *Connection
}

// NewLearnerRepository creates a new LearnerRepository.
func NewLearnerRepository(conn *Connection) *LearnerRepository {
	return &LearnerRepository{conn: conn}
}

const learnerColumns = `id, tenant_id, school_id, classroom_id, first_name, last_name, timezone, age_band, is_active`

// GetByIDs implements learner.Repository. Unknown, inactive or foreign IDs
// are simply absent from the result.
func (r *LearnerRepository) GetByIDs(ctx context.Context, classroomID string, ids []string) ([]*learner.Learner, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.conn.Query(ctx, `
		SELECT `+learnerColumns+`
		FROM learners
		WHERE id = ANY($1) AND is_active AND ($2 = '' OR classroom_id = $2)
	`, ids, classroomID)
	if err != nil {
		return nil, fmt.Errorf("failed to get learners: %w", err)
	}
	found, err := collectLearners(rows)
	if err != nil {
		return nil, err
	}

	// Keep the caller's order.
	byID := learner.Index(found)
	out := make([]*learner.Learner, 0, len(found))
	for _, id := range ids {
		if l, ok := byID[id]; ok {
			out = append(out, l)
			delete(byID, id)
		}
	}
	return out, nil
}

// ListByClassroom implements learner.Repository.
func (r *LearnerRepository) ListByClassroom(ctx context.Context, classroomID string) ([]*learner.Learner, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+learnerColumns+`
		FROM learners
		WHERE classroom_id = $1 AND is_active
		ORDER BY first_name, last_name
	`, classroomID)
	if err != nil {
		return nil, fmt.Errorf("failed to list learners: %w", err)
	}
	return collectLearners(rows)
}

// Upsert stores a learner record pushed by the roster service.
func (r *LearnerRepository) Upsert(ctx context.Context, l *learner.Learner) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO learners (`+learnerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			tenant_id = EXCLUDED.tenant_id,
			school_id = EXCLUDED.school_id,
			classroom_id = EXCLUDED.classroom_id,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			timezone = EXCLUDED.timezone,
			age_band = EXCLUDED.age_band,
			is_active = EXCLUDED.is_active
	`, l.ID, l.TenantID, l.SchoolID, l.ClassroomID, l.FirstName, l.LastName, l.Timezone, l.AgeBand, l.IsActive)
	if err != nil {
		return fmt.Errorf("failed to upsert learner: %w", err)
	}
	return nil
}

func collectLearners(rows pgx.Rows) ([]*learner.Learner, error) {
	defer rows.Close()
	var out []*learner.Learner
	for rows.Next() {
		var l learner.Learner
		if err := rows.Scan(&l.ID, &l.TenantID, &l.SchoolID, &l.ClassroomID, &l.FirstName, &l.LastName, &l.Timezone, &l.AgeBand, &l.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan learner: %w", err)
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}
