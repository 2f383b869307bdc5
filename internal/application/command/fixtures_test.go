package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alem-hub/explorer-points/internal/domain/award"
	"github.com/alem-hub/explorer-points/internal/domain/learner"
	"github.com/alem-hub/explorer-points/internal/domain/notification"
	"github.com/alem-hub/explorer-points/internal/domain/shared"
	"github.com/alem-hub/explorer-points/internal/domain/skill"
	"github.com/alem-hub/explorer-points/internal/infrastructure/persistence/memory"
	"github.com/stretchr/testify/require"
)

var testScope = shared.Scope{TenantID: "t1", SchoolID: "sch1", ClassroomID: "c1"}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("id-%d", s.n)
}

type recordingBus struct {
	mu     sync.Mutex
	events []shared.Event
	err    error
}

func (b *recordingBus) Publish(e shared.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
	return b.err
}

func (b *recordingBus) ofType(t shared.EventType) []shared.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []shared.Event
	for _, e := range b.events {
		if e.EventType() == t {
			out = append(out, e)
		}
	}
	return out
}

func (b *recordingBus) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

type sentMessage struct {
	learnerID string
	msg       notification.Message
}

// recordingSender delivers synchronously so tests can assert on the result.
type recordingSender struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (s *recordingSender) Send(learnerID string, msg notification.Message, delivered func(context.Context) error) {
	s.mu.Lock()
	s.sent = append(s.sent, sentMessage{learnerID: learnerID, msg: msg})
	s.mu.Unlock()
	if delivered != nil {
		_ = delivered(context.Background())
	}
}

func (s *recordingSender) messages() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentMessage(nil), s.sent...)
}

type recordingCache struct {
	mu   sync.Mutex
	keys []string
}

func (c *recordingCache) Invalidate(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys = append(c.keys, key)
	return nil
}

type testEnv struct {
	skills       *memory.SkillRepository
	learners     *memory.LearnerRepository
	awards       *memory.AwardRepository
	celebrations *memory.CelebrationRepository
	streaks      *memory.StreakRepository
	suggestions  *memory.SuggestionRepository

	bus    *recordingBus
	sender *recordingSender
	cache  *recordingCache
	ids    *seqIDs

	now time.Time

	awarder *AwardPointsHandler
}

func (e *testEnv) clock() Clock {
	return func() time.Time { return e.now }
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSkills(t *testing.T, now time.Time) []*skill.Skill {
	t.Helper()
	kind, err := skill.NewCustomSkill("kind", testScope, "teacher-1", skill.CustomSkillParams{
		Name:               "Kind Hearts",
		Emoji:              "💖",
		IsPositive:         true,
		DefaultPoints:      1,
		MinPoints:          1,
		MaxPoints:          3,
		TriggerKeywords:    []string{"kind"},
		ObservationPhrases: []string{"helped a friend"},
		Confidence:         0.3,
	}, now)
	require.NoError(t, err)

	focus, err := skill.NewCustomSkill("focus", testScope, "teacher-1", skill.CustomSkillParams{
		Name:          "Needs Focus",
		IsPositive:    false,
		DefaultPoints: -1,
		MinPoints:     -2,
		MaxPoints:     -1,
	}, now)
	require.NoError(t, err)

	retired, err := skill.NewCustomSkill("retired", testScope, "teacher-1", skill.CustomSkillParams{
		Name:          "Retired",
		IsPositive:    true,
		DefaultPoints: 1,
		MinPoints:     1,
		MaxPoints:     1,
	}, now)
	require.NoError(t, err)
	retired.Deactivate(now)

	return []*skill.Skill{kind, focus, retired}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	e := &testEnv{
		skills: memory.NewSkillRepository(testSkills(t, now)...),
		learners: memory.NewLearnerRepository(
			&learner.Learner{ID: "emma", ClassroomID: "c1", FirstName: "Emma", LastName: "Lee", IsActive: true},
			&learner.Learner{ID: "noah", ClassroomID: "c1", FirstName: "Noah", LastName: "Kim", Timezone: "Asia/Almaty", IsActive: true},
			&learner.Learner{ID: "ben", ClassroomID: "c2", FirstName: "Ben", IsActive: true},
		),
		awards:       memory.NewAwardRepository(),
		celebrations: memory.NewCelebrationRepository(),
		streaks:      memory.NewStreakRepository(),
		suggestions:  memory.NewSuggestionRepository(),
		bus:          &recordingBus{},
		sender:       &recordingSender{},
		cache:        &recordingCache{},
		ids:          &seqIDs{},
		now:          now,
	}
	e.awarder = e.newAwarder(e.awards)
	return e
}

// newAwarder builds the award handler over awards and the rest of e.
func (e *testEnv) newAwarder(awards award.Repository) *AwardPointsHandler {
	return NewAwardPointsHandler(AwardPointsDeps{
		Skills:       e.skills,
		Learners:     e.learners,
		Awards:       awards,
		Celebrations: e.celebrations,
		Streaks:      e.streaks,
		Cache:        e.cache,
		Notifier:     e.sender,
		Publisher:    e.bus,
		IDs:          e.ids,
		Clock:        e.clock(),
		Logger:       quietLogger(),
	})
}

// flakyAwards fails selected writes of the wrapped store.
type flakyAwards struct {
	*memory.AwardRepository
	batchErr   error
	totalErrOn string
}

func (f *flakyAwards) CreateBatch(ctx context.Context, awards []*award.PointAward, g *award.GroupAward) error {
	if f.batchErr != nil {
		return f.batchErr
	}
	return f.AwardRepository.CreateBatch(ctx, awards, g)
}

func (f *flakyAwards) AddToRunningTotal(ctx context.Context, studentID string, delta int) (award.Totals, error) {
	if studentID == f.totalErrOn {
		return award.Totals{}, errors.New("connection reset by peer")
	}
	return f.AwardRepository.AddToRunningTotal(ctx, studentID, delta)
}

func points(v int) *int { return &v }
