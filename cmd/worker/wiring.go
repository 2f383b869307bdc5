package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alem-hub/explorer-points/config"
	"github.com/alem-hub/explorer-points/internal/application/command"
	"github.com/alem-hub/explorer-points/internal/application/query"
	"github.com/alem-hub/explorer-points/internal/domain/award"
	"github.com/alem-hub/explorer-points/internal/domain/celebration"
	"github.com/alem-hub/explorer-points/internal/domain/learner"
	"github.com/alem-hub/explorer-points/internal/domain/shared"
	"github.com/alem-hub/explorer-points/internal/domain/skill"
	"github.com/alem-hub/explorer-points/internal/domain/streak"
	"github.com/alem-hub/explorer-points/internal/domain/suggestion"
	"github.com/alem-hub/explorer-points/internal/infrastructure/messaging"
	"github.com/alem-hub/explorer-points/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/explorer-points/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/explorer-points/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/explorer-points/internal/infrastructure/service"
	"github.com/alem-hub/explorer-points/pkg/circuitbreaker"
	"github.com/alem-hub/explorer-points/pkg/logger"
	"github.com/alem-hub/explorer-points/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// ХРАНИЛИЩА
// ══════════════════════════════════════════════════════════════════════════════

// stores - набор репозиториев, за которыми стоит одна и та же база.
type stores struct {
	kind string

	skills       skill.Repository
	learners     learner.Repository
	awards       award.Repository
	suggestions  suggestion.Repository
	streaks      streak.Repository
	celebrations celebration.Repository

	close func(log *slog.Logger)
}

// openStores подключается к PostgreSQL или, если DB_URL пуст, поднимает
// in-memory хранилища с системной библиотекой навыков.
func openStores(ctx context.Context, cfg *config.Config, log *slog.Logger) (*stores, error) {
	if cfg.Database.URL == "" {
		log.Warn("DB_URL is empty, using in-memory stores (data is lost on restart)")
		return memoryStores(cfg), nil
	}

	log.Info("connecting to database...")
	pool := postgres.Config{
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
	}
	conn, err := retry.DoWithData(ctx, func(ctx context.Context) (*postgres.Connection, error) {
		return postgres.NewConnectionFromURL(ctx, cfg.Database.URL, pool)
	}, startupRetry(log, "postgres")...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	health, err := conn.Health(ctx)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("database is not healthy: %w", err)
	}
	log.Info("database connection established",
		"ping_latency", health.PingLatency,
		"total_conns", health.TotalConns,
		"max_conns", health.MaxConns,
	)

	skills := postgres.NewSkillRepository(conn)
	if cfg.Database.AutoMigrate {
		// Миграции и системные навыки идемпотентны
		if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		seeded, err := skills.Seed(ctx, skill.DefaultLibrary(cfg.Database.SeedTenant, time.Now().UTC()))
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to seed skill library: %w", err)
		}
		log.Info("database schema is up to date", "seeded_skills", seeded)
	}

	return &stores{
		kind:         "postgres",
		skills:       skills,
		learners:     postgres.NewLearnerRepository(conn),
		awards:       postgres.NewAwardRepository(conn),
		suggestions:  postgres.NewSuggestionRepository(conn),
		streaks:      postgres.NewStreakRepository(conn),
		celebrations: postgres.NewCelebrationRepository(conn),
		close: func(log *slog.Logger) {
			log.Info("closing database connection...")
			conn.Close()
		},
	}, nil
}

func memoryStores(cfg *config.Config) *stores {
	return &stores{
		kind:         "memory",
		skills:       memory.NewSkillRepository(skill.DefaultLibrary(cfg.Database.SeedTenant, time.Now().UTC())...),
		learners:     memory.NewLearnerRepository(),
		awards:       memory.NewAwardRepository(),
		suggestions:  memory.NewSuggestionRepository(),
		streaks:      memory.NewStreakRepository(),
		celebrations: memory.NewCelebrationRepository(),
		close:        func(*slog.Logger) {},
	}
}

// startupRetry повторяет подключение, пока контейнер зависимости поднимается.
func startupRetry(log *slog.Logger, target string) []retry.Option {
	return retry.StartupOptions(func(attempt int, err error, delay time.Duration) {
		log.Warn("connection attempt failed, retrying",
			"target", target,
			"attempt", attempt,
			"delay", delay,
			logger.Err(err),
		)
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// REDIS
// ══════════════════════════════════════════════════════════════════════════════

// redisClients - всё, что строится поверх одного подключения к Redis.
type redisClients struct {
	cache   *redis.Cache
	reports *redis.ReportCache
}

// locker возвращает блокировку для фоновой очистки. Без Redis её нет:
// один инстанс чистит сам, а повторная очистка безвредна.
func (r *redisClients) locker() locker {
	if r == nil {
		return nil
	}
	return r.cache
}

// openRedis подключается к Redis, если он настроен. Ошибка подключения не
// фатальна: движок работает без кэша и с локальной шиной.
func openRedis(ctx context.Context, cfg *config.Config, log *slog.Logger) (*redisClients, error) {
	if !cfg.Redis.Enabled() {
		log.Info("redis disabled, using in-process cache and event bus")
		return nil, nil
	}

	rcfg := redis.DefaultConfig()
	rcfg.URL = cfg.Redis.URL
	if cfg.Redis.Host != "" {
		rcfg.Host = cfg.Redis.Host
	}
	rcfg.Port = cfg.Redis.Port
	rcfg.Password = cfg.Redis.Password
	rcfg.DB = cfg.Redis.DB
	rcfg.PoolSize = cfg.Redis.PoolSize
	rcfg.MinIdleConns = cfg.Redis.MinIdleConns
	rcfg.DialTimeout = cfg.Redis.DialTimeout
	rcfg.ReadTimeout = cfg.Redis.ReadTimeout
	rcfg.WriteTimeout = cfg.Redis.WriteTimeout
	rcfg.KeyPrefix = cfg.Redis.KeyPrefix

	log.Info("connecting to Redis...", "addr", rcfg.Addr())
	cache, err := retry.DoWithData(ctx, func(ctx context.Context) (*redis.Cache, error) {
		return redis.NewCache(ctx, rcfg)
	}, startupRetry(log, "redis")...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn("failed to connect to Redis, caching disabled", logger.Err(err))
		return nil, nil
	}
	log.Info("Redis connection established")

	return &redisClients{
		cache:   cache,
		reports: redis.NewReportCache(cache, cfg.Redis.ReportTTL),
	}, nil
}

// newEventBus строит шину: Redis Pub/Sub при наличии Redis, иначе in-memory.
func newEventBus(cfg *config.Config, rc *redisClients, log *slog.Logger) (shared.EventBus, func() error, error) {
	local := messaging.DefaultInMemoryEventBusConfig()
	local.Logger = log

	if rc == nil {
		bus := messaging.NewInMemoryEventBus(local)
		return bus, bus.Close, nil
	}

	bus, err := messaging.NewRedisEventBus(messaging.RedisEventBusConfig{
		Client:      messaging.NewGoRedisPubSub(rc.cache.Client()),
		ChannelName: cfg.Redis.EventChannel,
		Breaker: circuitbreaker.RedisBreaker(func(name string, from, to circuitbreaker.State) {
			log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		}),
		LocalBusConfig: local,
		Logger:         log,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start redis event bus: %w", err)
	}
	log.Info("redis event bus started", "instance_id", bus.InstanceID())
	return bus, bus.Close, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ДВИЖОК
// ══════════════════════════════════════════════════════════════════════════════

// engine - собранные обработчики команд и запросов.
type engine struct {
	instanceID string

	AwardPoints        *command.AwardPointsHandler
	GenerateSuggestion *command.GenerateSuggestionsHandler
	GenerateBatch      *command.GenerateSuggestionsBatchHandler
	AcceptSuggestion   *command.AcceptSuggestionHandler
	RejectSuggestion   *command.RejectSuggestionHandler
	CreateCustomSkill  *command.CreateCustomSkillHandler
	SetSkillActive     *command.SetSkillActiveHandler
	ReactToAward       *command.ReactToAwardHandler
	MarkAwardViewed    *command.MarkAwardViewedHandler

	PendingSuggestions *query.ListPendingSuggestionsHandler
	StudentAnalytics   *query.StudentAnalyticsHandler
	BatchAnalytics     *query.BatchStudentAnalyticsHandler
	ClassroomAnalytics *query.ClassroomAnalyticsHandler
	Celebrations       *query.ListCelebrationsHandler
}

// reportCache - кэш отчётов, который одновременно сбрасывается при начислении.
type reportCache interface {
	query.ReportCache
	award.AggregateCache
}

func newEngine(cfg *config.Config, st *stores, rc *redisClients, bus shared.EventBus, sender command.NotificationSender, log *slog.Logger) (*engine, error) {
	fingerprint, err := command.NewFingerprinter(cfg.Engine.FingerprintKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create fingerprinter: %w", err)
	}

	// Без Redis отчёты кэшируются в памяти процесса
	var cache reportCache = memory.NewReportCache()
	if rc != nil {
		cache = rc.reports
	}

	ids := service.NewIDGenerator()

	awardPoints := command.NewAwardPointsHandler(command.AwardPointsDeps{
		Skills:          st.skills,
		Learners:        st.learners,
		Awards:          st.awards,
		Celebrations:    st.celebrations,
		Streaks:         st.streaks,
		Cache:           cache,
		Notifier:        sender,
		Publisher:       bus,
		IDs:             ids,
		Logger:          log,
		DefaultTimezone: cfg.App.DefaultTimezone,
	})

	genConfig := command.DefaultGenerateSuggestionsConfig()
	genConfig.Generator.MaxSuggestions = cfg.Engine.MaxSuggestions
	genConfig.RecentWindow = cfg.Engine.RecentWindow
	genConfig.RecentLimit = cfg.Engine.RecentLimit
	generate := command.NewGenerateSuggestionsHandler(command.GenerateSuggestionsDeps{
		Skills:       st.skills,
		Learners:     st.learners,
		Awards:       st.awards,
		Suggestions:  st.suggestions,
		Publisher:    bus,
		IDs:          ids,
		Interactions: command.NewInteractionLog(cfg.Engine.InteractionLogSize),
		Fingerprint:  fingerprint,
		Logger:       log,
	}, genConfig)

	analyticsDeps := query.AnalyticsDeps{
		Awards:          st.awards,
		Learners:        st.learners,
		Cache:           cache,
		Logger:          log,
		DefaultTimezone: cfg.App.DefaultTimezone,
	}
	studentAnalytics := query.NewStudentAnalyticsHandler(analyticsDeps)

	return &engine{
		instanceID: ids.NewID(),

		AwardPoints:        awardPoints,
		GenerateSuggestion: generate,
		GenerateBatch:      command.NewGenerateSuggestionsBatchHandler(generate, cfg.Engine.BatchConcurrency),
		AcceptSuggestion:   command.NewAcceptSuggestionHandler(st.suggestions, awardPoints, bus, nil, log),
		RejectSuggestion:   command.NewRejectSuggestionHandler(st.suggestions, bus, nil, log),
		CreateCustomSkill:  command.NewCreateCustomSkillHandler(st.skills, bus, ids, nil, log, cfg.Engine.CustomSkillLimit),
		SetSkillActive:     command.NewSetSkillActiveHandler(st.skills, bus, nil, log),
		ReactToAward:       command.NewReactToAwardHandler(st.awards, nil),
		MarkAwardViewed:    command.NewMarkAwardViewedHandler(st.awards, nil),

		PendingSuggestions: query.NewListPendingSuggestionsHandler(st.suggestions, bus, nil, log),
		StudentAnalytics:   studentAnalytics,
		BatchAnalytics:     query.NewBatchStudentAnalyticsHandler(studentAnalytics, cfg.Engine.BatchConcurrency),
		ClassroomAnalytics: query.NewClassroomAnalyticsHandler(analyticsDeps),
		Celebrations:       query.NewListCelebrationsHandler(st.celebrations),
	}, nil
}
