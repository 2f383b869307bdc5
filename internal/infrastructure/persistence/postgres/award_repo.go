package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/explorer-points/internal/domain/award"
	"github.com/alem-hub/explorer-points/internal/domain/shared"
	"github.com/alem-hub/explorer-points/internal/domain/skill"
)

// ══════════════════════════════════════════════════════════════════════════════
// AWARD REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// AwardRepository implements award.Repository for PostgreSQL.
type AwardRepository struct {
	conn *Connection
}

// NewAwardRepository creates a new AwardRepository.
func NewAwardRepository(conn *Connection) *AwardRepository {
	return &AwardRepository{conn: conn}
}

const awardColumns = `
	id, tenant_id, school_id, classroom_id, student_id, student_name,
	skill_id, skill_name, skill_emoji, skill_category, points, is_positive, context,
	awarded_by, awarded_by_role, ai_suggestion_id, ai_confidence, group_award_id,
	notification_sent, viewed_by_parent, viewed_at, reactions, awarded_at, created_at`

const insertAwardSQL = `
	INSERT INTO point_awards (` + awardColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
`

const insertGroupAwardSQL = `
	INSERT INTO group_awards (
		id, tenant_id, school_id, classroom_id, skill_id, skill_name, student_ids, award_ids,
		points_per_student, total_points, is_whole_class, awarded_by, context, awarded_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
`

// Create implements award.Repository.
func (r *AwardRepository) Create(ctx context.Context, a *award.PointAward) error {
	args, err := awardArgs(a)
	if err != nil {
		return err
	}
	if _, err := r.conn.Exec(ctx, insertAwardSQL, args...); err != nil {
		return mapAwardInsertError("Create", err)
	}
	return nil
}

// CreateBatch implements award.Repository. All rows go in one transaction
// as a single pgx batch.
func (r *AwardRepository) CreateBatch(ctx context.Context, awards []*award.PointAward, g *award.GroupAward) error {
	batch := &pgx.Batch{}
	for _, a := range awards {
		args, err := awardArgs(a)
		if err != nil {
			return err
		}
		batch.Queue(insertAwardSQL, args...)
	}
	if g != nil {
		batch.Queue(insertGroupAwardSQL, groupAwardArgs(g)...)
	}
	if batch.Len() == 0 {
		return nil
	}

	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		results := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return mapAwardInsertError("CreateBatch", err)
			}
		}
		return results.Close()
	})
}

func awardArgs(a *award.PointAward) ([]any, error) {
	reactions, err := marshalReactions(a.Reactions)
	if err != nil {
		return nil, err
	}
	return []any{
		a.ID, a.TenantID, a.SchoolID, a.ClassroomID, a.StudentID, a.StudentName,
		a.SkillID, a.SkillName, a.SkillEmoji, string(a.SkillCategory), a.Points, a.IsPositive, a.Context,
		a.Provenance.AwardedBy, string(a.Provenance.Role), a.Provenance.AISuggestionID, a.Provenance.AIConfidence, a.GroupAwardID,
		a.NotificationSent, a.ViewedByParent, a.ViewedAt, reactions, a.AwardedAt, a.CreatedAt,
	}, nil
}

func groupAwardArgs(g *award.GroupAward) []any {
	return []any{
		g.ID, g.TenantID, g.SchoolID, g.ClassroomID, g.SkillID, g.SkillName, g.StudentIDs, g.AwardIDs,
		g.PointsPerStudent, g.TotalPoints, g.IsWholeClass, g.AwardedBy, g.Context, g.AwardedAt,
	}
}

func mapAwardInsertError(op string, err error) error {
	if IsUniqueViolation(err) {
		return shared.NewDomainError("award", op, shared.ErrAlreadyExists, "point award already exists")
	}
	return fmt.Errorf("failed to create award: %w", err)
}

// GetByID implements award.Repository.
func (r *AwardRepository) GetByID(ctx context.Context, id string) (*award.PointAward, error) {
	a, err := scanAward(r.conn.QueryRow(ctx, `SELECT `+awardColumns+` FROM point_awards WHERE id = $1`, id))
	if IsNoRows(err) {
		return nil, shared.ErrAwardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get award: %w", err)
	}
	return a, nil
}

// ListByStudent implements award.Repository.
func (r *AwardRepository) ListByStudent(ctx context.Context, studentID string, f award.Filter) ([]*award.PointAward, error) {
	return r.list(ctx, "student_id", studentID, f)
}

// ListByClassroom implements award.Repository.
func (r *AwardRepository) ListByClassroom(ctx context.Context, classroomID string, f award.Filter) ([]*award.PointAward, error) {
	return r.list(ctx, "classroom_id", classroomID, f)
}

func (r *AwardRepository) list(ctx context.Context, column, value string, f award.Filter) ([]*award.PointAward, error) {
	query, args := listAwardsQuery(column, value, f)
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list awards: %w", err)
	}
	defer rows.Close()

	var out []*award.PointAward
	for rows.Next() {
		a, err := scanAward(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan award: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// skillFrequencyQuery builds the per-skill count over the filter window.
func skillFrequencyQuery(classroomID string, f award.Filter) (string, []any) {
	var b strings.Builder
	args := []any{classroomID}
	b.WriteString("SELECT skill_id, max(skill_name), count(*) FROM point_awards WHERE classroom_id = $1")
	if !f.From.IsZero() {
		args = append(args, f.From)
		fmt.Fprintf(&b, " AND awarded_at >= $%d", len(args))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		fmt.Fprintf(&b, " AND awarded_at < $%d", len(args))
	}
	b.WriteString(" GROUP BY skill_id ORDER BY count(*) DESC, skill_id")
	return b.String(), args
}

// listAwardsQuery builds the filtered listing. column is never user input.
func listAwardsQuery(column, value string, f award.Filter) (string, []any) {
	var b strings.Builder
	args := []any{value}
	fmt.Fprintf(&b, "SELECT %s FROM point_awards WHERE %s = $1", awardColumns, column)
	if !f.From.IsZero() {
		args = append(args, f.From)
		fmt.Fprintf(&b, " AND awarded_at >= $%d", len(args))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		fmt.Fprintf(&b, " AND awarded_at < $%d", len(args))
	}
	b.WriteString(" ORDER BY awarded_at DESC, id")
	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	return b.String(), args
}

// AddToRunningTotal implements award.Repository. The upsert takes a row lock,
// so concurrent awards to one learner see consecutive before/after pairs.
func (r *AwardRepository) AddToRunningTotal(ctx context.Context, studentID string, delta int) (award.Totals, error) {
	var after int
	err := r.conn.QueryRow(ctx, `
		INSERT INTO learner_point_totals (student_id, total, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (student_id) DO UPDATE SET
			total = learner_point_totals.total + EXCLUDED.total,
			updated_at = NOW()
		RETURNING total
	`, studentID, delta).Scan(&after)
	if err != nil {
		return award.Totals{}, fmt.Errorf("failed to update running total: %w", err)
	}
	return award.Totals{Before: after - delta, After: after}, nil
}

// RunningTotal implements award.Repository.
func (r *AwardRepository) RunningTotal(ctx context.Context, studentID string) (int, error) {
	var total int
	err := r.conn.QueryRow(ctx, `SELECT total FROM learner_point_totals WHERE student_id = $1`, studentID).Scan(&total)
	if IsNoRows(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read running total: %w", err)
	}
	return total, nil
}

// SkillFrequency implements award.Repository.
func (r *AwardRepository) SkillFrequency(ctx context.Context, classroomID string, f award.Filter) ([]award.SkillCount, error) {
	query, args := skillFrequencyQuery(classroomID, f)
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count skill frequency: %w", err)
	}
	defer rows.Close()

	var out []award.SkillCount
	for rows.Next() {
		var c award.SkillCount
		if err := rows.Scan(&c.SkillID, &c.SkillName, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan skill count: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// MarkNotified implements award.Repository.
func (r *AwardRepository) MarkNotified(ctx context.Context, id string) error {
	return r.exec(ctx, `UPDATE point_awards SET notification_sent = TRUE WHERE id = $1`, id)
}

// MarkViewed implements award.Repository. The first view wins.
func (r *AwardRepository) MarkViewed(ctx context.Context, id string, at time.Time) error {
	return r.exec(ctx, `
		UPDATE point_awards
		SET viewed_by_parent = TRUE, viewed_at = COALESCE(viewed_at, $2)
		WHERE id = $1
	`, id, at.UTC())
}

// AddReaction implements award.Repository.
func (r *AwardRepository) AddReaction(ctx context.Context, id string, reaction award.Reaction) error {
	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		var raw []byte
		err := tx.QueryRow(ctx, `SELECT reactions FROM point_awards WHERE id = $1 FOR UPDATE`, id).Scan(&raw)
		if IsNoRows(err) {
			return shared.ErrAwardNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock award: %w", err)
		}

		a := &award.PointAward{ID: id}
		if err := json.Unmarshal(raw, &a.Reactions); err != nil {
			return fmt.Errorf("failed to unmarshal reactions: %w", err)
		}
		added, err := a.AddReaction(reaction)
		if err != nil || !added {
			return err
		}
		updated, err := marshalReactions(a.Reactions)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE point_awards SET reactions = $2 WHERE id = $1`, id, updated)
		return err
	})
}

func (r *AwardRepository) exec(ctx context.Context, query string, args ...any) error {
	tag, err := r.conn.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update award: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrAwardNotFound
	}
	return nil
}

func marshalReactions(reactions []award.Reaction) ([]byte, error) {
	if reactions == nil {
		reactions = []award.Reaction{}
	}
	data, err := json.Marshal(reactions)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal reactions: %w", err)
	}
	return data, nil
}

func scanAward(row pgx.Row) (*award.PointAward, error) {
	var (
		a         award.PointAward
		category  string
		role      string
		reactions []byte
	)
	err := row.Scan(
		&a.ID, &a.TenantID, &a.SchoolID, &a.ClassroomID, &a.StudentID, &a.StudentName,
		&a.SkillID, &a.SkillName, &a.SkillEmoji, &category, &a.Points, &a.IsPositive, &a.Context,
		&a.Provenance.AwardedBy, &role, &a.Provenance.AISuggestionID, &a.Provenance.AIConfidence, &a.GroupAwardID,
		&a.NotificationSent, &a.ViewedByParent, &a.ViewedAt, &reactions, &a.AwardedAt, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.SkillCategory = skill.Category(category)
	a.Provenance.Role = shared.Role(role)
	if len(reactions) > 0 {
		if err := json.Unmarshal(reactions, &a.Reactions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal reactions: %w", err)
		}
	}
	if len(a.Reactions) == 0 {
		a.Reactions = nil
	}
	return &a, nil
}
