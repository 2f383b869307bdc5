package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/explorer-points/internal/domain/shared"
	"github.com/alem-hub/explorer-points/internal/domain/suggestion"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUGGESTION REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// SuggestionRepository implements suggestion.Repository for PostgreSQL.
type SuggestionRepository struct {
	conn *Connection
}

// NewSuggestionRepository creates a new SuggestionRepository.
func NewSuggestionRepository(conn *Connection) *SuggestionRepository {
	return &SuggestionRepository{conn: conn}
}

const suggestionColumns = `
	id, tenant_id, school_id, classroom_id, observation, student_ids,
	skill_id, skill_name, skill_emoji, points, reasoning, confidence,
	detected_behaviours, alternatives, status, suggested_at, expires_at, decision`

// Create implements suggestion.Repository.
func (r *SuggestionRepository) Create(ctx context.Context, s *suggestion.Suggestion) error {
	alternatives, decision, err := marshalSuggestionDocs(s)
	if err != nil {
		return err
	}
	_, err = r.conn.Exec(ctx, `
		INSERT INTO suggestions (`+suggestionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`,
		s.ID, s.TenantID, s.SchoolID, s.ClassroomID, s.Observation, nonNil(s.StudentIDs),
		s.SkillID, s.SkillName, s.SkillEmoji, s.Points, s.Reasoning, s.Confidence,
		nonNil(s.DetectedBehaviours), alternatives, string(s.Status), s.SuggestedAt, s.ExpiresAt, decision,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.NewDomainError("suggestion", "Create", shared.ErrAlreadyExists, "suggestion already exists")
		}
		return fmt.Errorf("failed to create suggestion: %w", err)
	}
	return nil
}

// GetByID implements suggestion.Repository.
func (r *SuggestionRepository) GetByID(ctx context.Context, id string) (*suggestion.Suggestion, error) {
	s, err := scanSuggestion(r.conn.QueryRow(ctx, `SELECT `+suggestionColumns+` FROM suggestions WHERE id = $1`, id))
	if IsNoRows(err) {
		return nil, shared.ErrSuggestionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get suggestion: %w", err)
	}
	return s, nil
}

// ListPendingByClassroom implements suggestion.Repository.
func (r *SuggestionRepository) ListPendingByClassroom(ctx context.Context, classroomID string) ([]*suggestion.Suggestion, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+suggestionColumns+`
		FROM suggestions
		WHERE classroom_id = $1 AND status = 'pending'
		ORDER BY suggested_at DESC
	`, classroomID)
	if err != nil {
		return nil, fmt.Errorf("failed to list suggestions: %w", err)
	}
	defer rows.Close()

	var out []*suggestion.Suggestion
	for rows.Next() {
		s, err := scanSuggestion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan suggestion: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Transition implements suggestion.Repository as a compare-and-set on status.
func (r *SuggestionRepository) Transition(ctx context.Context, from suggestion.Status, next *suggestion.Suggestion) error {
	_, decision, err := marshalSuggestionDocs(next)
	if err != nil {
		return err
	}
	tag, err := r.conn.Exec(ctx, `
		UPDATE suggestions SET status = $3, decision = $4
		WHERE id = $1 AND status = $2
	`, next.ID, string(from), string(next.Status), decision)
	if err != nil {
		return fmt.Errorf("failed to transition suggestion: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM suggestions WHERE id = $1)`, next.ID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check suggestion: %w", err)
	}
	if !exists {
		return shared.ErrSuggestionNotFound
	}
	return shared.ErrSuggestionNotPending
}

// ExpireBefore implements suggestion.Repository.
func (r *SuggestionRepository) ExpireBefore(ctx context.Context, classroomID string, cutoff time.Time) (int, error) {
	tag, err := r.conn.Exec(ctx, `
		UPDATE suggestions SET status = 'expired'
		WHERE status = 'pending' AND expires_at <= $1 AND ($2 = '' OR classroom_id = $2)
	`, cutoff, classroomID)
	if err != nil {
		return 0, fmt.Errorf("failed to expire suggestions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func marshalSuggestionDocs(s *suggestion.Suggestion) (alternatives, decision []byte, err error) {
	alts := s.Alternatives
	if alts == nil {
		alts = []suggestion.Alternative{}
	}
	if alternatives, err = json.Marshal(alts); err != nil {
		return nil, nil, fmt.Errorf("failed to marshal alternatives: %w", err)
	}
	if s.Decision != nil {
		if decision, err = json.Marshal(s.Decision); err != nil {
			return nil, nil, fmt.Errorf("failed to marshal decision: %w", err)
		}
	}
	return alternatives, decision, nil
}

func scanSuggestion(row pgx.Row) (*suggestion.Suggestion, error) {
	var (
		s            suggestion.Suggestion
		status       string
		alternatives []byte
		decision     []byte
	)
	err := row.Scan(
		&s.ID, &s.TenantID, &s.SchoolID, &s.ClassroomID, &s.Observation, &s.StudentIDs,
		&s.SkillID, &s.SkillName, &s.SkillEmoji, &s.Points, &s.Reasoning, &s.Confidence,
		&s.DetectedBehaviours, &alternatives, &status, &s.SuggestedAt, &s.ExpiresAt, &decision,
	)
	if err != nil {
		return nil, err
	}
	s.Status = suggestion.Status(status)
	if len(alternatives) > 0 {
		if err := json.Unmarshal(alternatives, &s.Alternatives); err != nil {
			return nil, fmt.Errorf("failed to unmarshal alternatives: %w", err)
		}
		if len(s.Alternatives) == 0 {
			s.Alternatives = nil
		}
	}
	if len(decision) > 0 {
		s.Decision = &suggestion.Decision{}
		if err := json.Unmarshal(decision, s.Decision); err != nil {
			return nil, fmt.Errorf("failed to unmarshal decision: %w", err)
		}
	}
	return &s, nil
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
