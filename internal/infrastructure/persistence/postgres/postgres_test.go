package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/explorer-points/internal/domain/award"
	"github.com/alem-hub/explorer-points/internal/domain/celebration"
	"github.com/alem-hub/explorer-points/internal/domain/shared"
	"github.com/alem-hub/explorer-points/internal/domain/suggestion"
)

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{MaxConns: 25}.withDefaults()
	assert.Equal(t, int32(25), cfg.MaxConns)
	assert.Equal(t, int32(2), cfg.MinConns)
	assert.Equal(t, time.Hour, cfg.MaxConnLifetime)
	assert.Equal(t, time.Minute, cfg.HealthCheckPeriod)
}

func TestGetMigrations_Ordered(t *testing.T) {
	migrations := GetMigrations()
	require.NotEmpty(t, migrations)
	for i, m := range migrations {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.UpSQL, m.Name)
	}
}

func TestErrorHelpers(t *testing.T) {
	unique := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	assert.True(t, IsUniqueViolation(unique))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("plain")))
	assert.True(t, IsNoRows(fmt.Errorf("scan: %w", ErrNoRows)))
}

func TestListAwardsQuery(t *testing.T) {
	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 7)

	query, args := listAwardsQuery("student_id", "emma", award.Filter{})
	assert.Contains(t, query, "WHERE student_id = $1 ORDER BY awarded_at DESC")
	assert.Equal(t, []any{"emma"}, args)

	query, args = listAwardsQuery("classroom_id", "c1", award.Filter{From: from, To: to, Limit: 20})
	assert.Contains(t, query, "awarded_at >= $2 AND awarded_at < $3")
	assert.Contains(t, query, "LIMIT $4")
	assert.Equal(t, []any{"c1", from, to, 20}, args)

	_, args = listAwardsQuery("classroom_id", "c1", award.Filter{To: to})
	assert.Equal(t, []any{"c1", to}, args)
}

func TestSkillFrequencyQuery(t *testing.T) {
	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 7)

	query, args := skillFrequencyQuery("c1", award.Filter{})
	assert.Contains(t, query, "WHERE classroom_id = $1 GROUP BY skill_id")
	assert.Equal(t, []any{"c1"}, args)

	query, args = skillFrequencyQuery("c1", award.Filter{From: from, To: to, Limit: 5})
	assert.Contains(t, query, "awarded_at >= $2 AND awarded_at < $3 GROUP BY skill_id ORDER BY count(*) DESC, skill_id")
	assert.NotContains(t, query, "LIMIT")
	assert.Equal(t, []any{"c1", from, to}, args)
}

func TestConnection_ClosedRejectsCalls(t *testing.T) {
	ctx := context.Background()
	conn := &Connection{closed: true}

	_, err := conn.Health(ctx)
	assert.ErrorIs(t, err, ErrConnectionClosed)
	assert.ErrorIs(t, conn.Ping(ctx), ErrConnectionClosed)
	_, err = conn.Exec(ctx, "SELECT 1")
	assert.ErrorIs(t, err, ErrConnectionClosed)
	err = conn.WithTx(ctx, DefaultTxOptions(), func(pgx.Tx) error { return nil })
	assert.ErrorIs(t, err, ErrConnectionClosed)

	// Close on a closed pool does not touch it.
	conn.Close()
}

// The tests below need a disposable database: POSTGRES_TEST_URL=postgres://...
func liveConn(t *testing.T) *Connection {
	t.Helper()
	url := os.Getenv("POSTGRES_TEST_URL")
	if url == "" {
		t.Skip("POSTGRES_TEST_URL not set")
	}
	ctx := context.Background()
	conn, err := NewConnectionFromURL(ctx, url, Config{})
	require.NoError(t, err)
	t.Cleanup(conn.Close)
	require.NoError(t, NewMigrator(conn).Migrate(ctx))
	return conn
}

func TestConnection_Health_Live(t *testing.T) {
	conn := liveConn(t)
	ctx := context.Background()

	status, err := conn.Health(ctx)
	require.NoError(t, err)
	assert.Positive(t, status.MaxConns)
	assert.Positive(t, status.TotalConns)

	// Migrations are idempotent.
	require.NoError(t, NewMigrator(conn).Migrate(ctx))

	conn.Close()
	_, err = conn.Health(ctx)
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestAwardRepository_RunningTotal_Live(t *testing.T) {
	conn := liveConn(t)
	ctx := context.Background()
	repo := NewAwardRepository(conn)
	student := "s-" + uuid.NewString()

	totals, err := repo.AddToRunningTotal(ctx, student, 9)
	require.NoError(t, err)
	assert.Equal(t, award.Totals{Before: 0, After: 9}, totals)

	totals, err = repo.AddToRunningTotal(ctx, student, 3)
	require.NoError(t, err)
	assert.Equal(t, award.Totals{Before: 9, After: 12}, totals)

	total, err := repo.RunningTotal(ctx, student)
	require.NoError(t, err)
	assert.Equal(t, 12, total)
}

func TestSuggestionRepository_Transition_Live(t *testing.T) {
	conn := liveConn(t)
	ctx := context.Background()
	repo := NewSuggestionRepository(conn)
	now := time.Now().UTC().Truncate(time.Microsecond)
	scope := shared.Scope{TenantID: "t1", SchoolID: "sch1", ClassroomID: "c-" + uuid.NewString()}

	s := suggestion.New(uuid.NewString(), scope, "Emma helped a friend", suggestion.Draft{SkillID: "kind", Points: 1, Confidence: 0.8, StudentIDs: []string{"emma"}}, now)
	require.NoError(t, repo.Create(ctx, s))

	next, err := repo.GetByID(ctx, s.ID)
	require.NoError(t, err)
	require.NoError(t, next.Reject("teacher-1", "not today", now))
	require.NoError(t, repo.Transition(ctx, suggestion.StatusPending, next))

	// A second decision loses the race.
	assert.ErrorIs(t, repo.Transition(ctx, suggestion.StatusPending, next), shared.ErrSuggestionNotPending)

	got, err := repo.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, suggestion.StatusRejected, got.Status)
	require.NotNil(t, got.Decision)
	assert.Equal(t, "not today", got.Decision.Reason)
}

func TestCelebrationRepository_Dedupe_Live(t *testing.T) {
	conn := liveConn(t)
	ctx := context.Background()
	repo := NewCelebrationRepository(conn)
	scope := shared.Scope{TenantID: "t1", SchoolID: "sch1", ClassroomID: "c1"}
	student := "s-" + uuid.NewString()
	m := celebration.NewDetector().Check(10, 9)
	require.Len(t, m, 1)

	require.NoError(t, repo.Create(ctx, celebration.New(uuid.NewString(), scope, student, "Emma", m[0], time.Now())))
	err := repo.Create(ctx, celebration.New(uuid.NewString(), scope, student, "Emma", m[0], time.Now()))
	assert.ErrorIs(t, err, shared.ErrCelebrationExists)
}
