package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Migration is one forward-only schema step.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
}

// GetMigrations returns the embedded migrations in version order.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_skills_and_learners", UpSQL: migration001Up},
		{Version: 2, Name: "create_awards", UpSQL: migration002Up},
		{Version: 3, Name: "create_suggestions", UpSQL: migration003Up},
		{Version: 4, Name: "create_streaks_and_celebrations", UpSQL: migration004Up},
	}
}

// Migrator applies pending migrations and records them in schema_migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
}

// NewMigrator creates a migrator over the embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{conn: conn, migrations: GetMigrations()}
}

func (m *Migrator) applied(ctx context.Context) (map[int]time.Time, error) {
	if _, err := m.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := m.conn.Query(ctx, `SELECT version, applied_at FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	done := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var at time.Time
		if err := rows.Scan(&version, &at); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		done[version] = at
	}
	return done, rows.Err()
}

// Migrate applies every migration not yet recorded, each in its own
// transaction. Safe to run on every start.
func (m *Migrator) Migrate(ctx context.Context) error {
	done, err := m.applied(ctx)
	if err != nil {
		return err
	}
	for _, mig := range m.migrations {
		if _, ok := done[mig.Version]; ok {
			continue
		}
		err := m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: version %d (%s): %v", ErrMigrationFailed, mig.Version, mig.Name, err)
		}
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: SKILLS AND LEARNERS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- System skills have no school; school skills have no classroom.
CREATE TABLE IF NOT EXISTS skills (
    id VARCHAR(64) PRIMARY KEY,
    tenant_id VARCHAR(64) NOT NULL DEFAULT '',
    school_id VARCHAR(64) NOT NULL DEFAULT '',
    classroom_id VARCHAR(64) NOT NULL DEFAULT '',
    name VARCHAR(100) NOT NULL,
    emoji VARCHAR(16) NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    category VARCHAR(32) NOT NULL,
    is_positive BOOLEAN NOT NULL,
    default_points INTEGER NOT NULL,
    min_points INTEGER NOT NULL,
    max_points INTEGER NOT NULL,
    age_bands TEXT[] NOT NULL DEFAULT '{}',
    scoring JSONB NOT NULL DEFAULT '{}'::jsonb,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    usage_count INTEGER NOT NULL DEFAULT 0,
    last_used_at TIMESTAMP WITH TIME ZONE,
    is_system BOOLEAN NOT NULL DEFAULT FALSE,
    is_custom BOOLEAN NOT NULL DEFAULT FALSE,
    created_by VARCHAR(64) NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_point_bounds CHECK (min_points <= default_points AND default_points <= max_points)
);

CREATE INDEX IF NOT EXISTS idx_skills_scope ON skills(tenant_id, school_id, classroom_id);
CREATE INDEX IF NOT EXISTS idx_skills_custom ON skills(classroom_id) WHERE is_custom;

-- Learners are owned by the roster service; this is a read replica.
CREATE TABLE IF NOT EXISTS learners (
    id VARCHAR(64) PRIMARY KEY,
    tenant_id VARCHAR(64) NOT NULL DEFAULT '',
    school_id VARCHAR(64) NOT NULL DEFAULT '',
    classroom_id VARCHAR(64) NOT NULL,
    first_name VARCHAR(100) NOT NULL DEFAULT '',
    last_name VARCHAR(100) NOT NULL DEFAULT '',
    timezone VARCHAR(64) NOT NULL DEFAULT '',
    age_band VARCHAR(16) NOT NULL DEFAULT '',
    is_active BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE INDEX IF NOT EXISTS idx_learners_classroom ON learners(classroom_id) WHERE is_active;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: AWARDS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS point_awards (
    id VARCHAR(64) PRIMARY KEY,
    tenant_id VARCHAR(64) NOT NULL DEFAULT '',
    school_id VARCHAR(64) NOT NULL DEFAULT '',
    classroom_id VARCHAR(64) NOT NULL,
    student_id VARCHAR(64) NOT NULL,
    student_name VARCHAR(200) NOT NULL DEFAULT '',
    skill_id VARCHAR(64) NOT NULL,
    skill_name VARCHAR(100) NOT NULL,
    skill_emoji VARCHAR(16) NOT NULL DEFAULT '',
    skill_category VARCHAR(32) NOT NULL DEFAULT '',
    points INTEGER NOT NULL,
    is_positive BOOLEAN NOT NULL,
    context TEXT NOT NULL DEFAULT '',
    awarded_by VARCHAR(64) NOT NULL,
    awarded_by_role VARCHAR(32) NOT NULL,
    ai_suggestion_id VARCHAR(64) NOT NULL DEFAULT '',
    ai_confidence DOUBLE PRECISION,
    group_award_id VARCHAR(64) NOT NULL DEFAULT '',
    notification_sent BOOLEAN NOT NULL DEFAULT FALSE,
    viewed_by_parent BOOLEAN NOT NULL DEFAULT FALSE,
    viewed_at TIMESTAMP WITH TIME ZONE,
    reactions JSONB NOT NULL DEFAULT '[]'::jsonb,
    awarded_at TIMESTAMP WITH TIME ZONE NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_polarity CHECK ((is_positive AND points > 0) OR (NOT is_positive AND points < 0))
);

CREATE INDEX IF NOT EXISTS idx_point_awards_student ON point_awards(student_id, awarded_at DESC);
CREATE INDEX IF NOT EXISTS idx_point_awards_classroom ON point_awards(classroom_id, awarded_at DESC);
CREATE INDEX IF NOT EXISTS idx_point_awards_skill ON point_awards(classroom_id, skill_id, awarded_at);

CREATE TABLE IF NOT EXISTS group_awards (
    id VARCHAR(64) PRIMARY KEY,
    tenant_id VARCHAR(64) NOT NULL DEFAULT '',
    school_id VARCHAR(64) NOT NULL DEFAULT '',
    classroom_id VARCHAR(64) NOT NULL,
    skill_id VARCHAR(64) NOT NULL,
    skill_name VARCHAR(100) NOT NULL,
    student_ids TEXT[] NOT NULL,
    award_ids TEXT[] NOT NULL,
    points_per_student INTEGER NOT NULL,
    total_points INTEGER NOT NULL,
    is_whole_class BOOLEAN NOT NULL DEFAULT FALSE,
    awarded_by VARCHAR(64) NOT NULL,
    context TEXT NOT NULL DEFAULT '',
    awarded_at TIMESTAMP WITH TIME ZONE NOT NULL
);

-- Lifetime positive total per learner, the input to celebration detection.
CREATE TABLE IF NOT EXISTS learner_point_totals (
    student_id VARCHAR(64) PRIMARY KEY,
    total INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: SUGGESTIONS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS suggestions (
    id VARCHAR(64) PRIMARY KEY,
    tenant_id VARCHAR(64) NOT NULL DEFAULT '',
    school_id VARCHAR(64) NOT NULL DEFAULT '',
    classroom_id VARCHAR(64) NOT NULL,
    observation TEXT NOT NULL,
    student_ids TEXT[] NOT NULL DEFAULT '{}',
    skill_id VARCHAR(64) NOT NULL,
    skill_name VARCHAR(100) NOT NULL DEFAULT '',
    skill_emoji VARCHAR(16) NOT NULL DEFAULT '',
    points INTEGER NOT NULL,
    reasoning TEXT NOT NULL DEFAULT '',
    confidence DOUBLE PRECISION NOT NULL,
    detected_behaviours TEXT[] NOT NULL DEFAULT '{}',
    alternatives JSONB NOT NULL DEFAULT '[]'::jsonb,
    status VARCHAR(16) NOT NULL DEFAULT 'pending',
    suggested_at TIMESTAMP WITH TIME ZONE NOT NULL,
    expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
    decision JSONB,

    CONSTRAINT valid_status CHECK (status IN ('pending', 'accepted', 'modified', 'rejected', 'expired')),
    CONSTRAINT valid_confidence CHECK (confidence >= 0 AND confidence <= 1)
);

CREATE INDEX IF NOT EXISTS idx_suggestions_pending ON suggestions(classroom_id, suggested_at DESC) WHERE status = 'pending';
CREATE INDEX IF NOT EXISTS idx_suggestions_expiry ON suggestions(expires_at) WHERE status = 'pending';
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 004: STREAKS AND CELEBRATIONS
// ══════════════════════════════════════════════════════════════════════════════

const migration004Up = `
CREATE TABLE IF NOT EXISTS streaks (
    student_id VARCHAR(64) PRIMARY KEY,
    classroom_id VARCHAR(64) NOT NULL,
    current_streak INTEGER NOT NULL DEFAULT 0,
    current_streak_start TIMESTAMP WITH TIME ZONE NOT NULL,
    longest_streak INTEGER NOT NULL DEFAULT 0,
    longest_streak_start TIMESTAMP WITH TIME ZONE NOT NULL,
    longest_streak_end TIMESTAMP WITH TIME ZONE NOT NULL,
    last_point_date TIMESTAMP WITH TIME ZONE NOT NULL,
    celebrated_milestones INTEGER[] NOT NULL DEFAULT '{}',
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS celebrations (
    id VARCHAR(64) PRIMARY KEY,
    tenant_id VARCHAR(64) NOT NULL DEFAULT '',
    school_id VARCHAR(64) NOT NULL DEFAULT '',
    classroom_id VARCHAR(64) NOT NULL,
    student_id VARCHAR(64) NOT NULL,
    type VARCHAR(32) NOT NULL,
    value INTEGER NOT NULL,
    title VARCHAR(200) NOT NULL,
    message TEXT NOT NULL,
    certificate_eligible BOOLEAN NOT NULL DEFAULT FALSE,
    animation_tier VARCHAR(16) NOT NULL DEFAULT '',
    notification_sent BOOLEAN NOT NULL DEFAULT FALSE,
    announced BOOLEAN NOT NULL DEFAULT FALSE,
    achieved_at TIMESTAMP WITH TIME ZONE NOT NULL,

    -- One celebration per learner per threshold.
    CONSTRAINT unique_celebration UNIQUE (student_id, type, value)
);

CREATE INDEX IF NOT EXISTS idx_celebrations_student ON celebrations(student_id, achieved_at DESC);
CREATE INDEX IF NOT EXISTS idx_celebrations_classroom ON celebrations(classroom_id, achieved_at DESC);
`
