// Package main - точка входа процесса Explorer Points.
//
// Процесс собирает движок баллов целиком:
// - хранилища (PostgreSQL или in-memory, если DB_URL не задан)
// - кэш отчётов и межинстансовую шину событий (Redis, опционально)
// - пул доставки уведомлений родителям
// - обработчики команд и запросов
//
// В фоне периодически переводит просроченные предложения в expired.
// Запросы всё равно чистят их лениво, так что фоновая очистка не обязательна.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alem-hub/explorer-points/config"
	"github.com/alem-hub/explorer-points/internal/domain/shared"
	"github.com/alem-hub/explorer-points/internal/infrastructure/messaging"
	"github.com/alem-hub/explorer-points/internal/infrastructure/service"
	"github.com/alem-hub/explorer-points/pkg/circuitbreaker"
	"github.com/alem-hub/explorer-points/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	// Корневой контекст отменяется по сигналу завершения
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting Explorer Points",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"timezone", cfg.App.DefaultTimezone,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ХРАНИЛИЩА
	// ─────────────────────────────────────────────────────────────────────────
	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close(log)

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REDIS: КЭШ ОТЧЁТОВ И ШИНА СОБЫТИЙ
	// ─────────────────────────────────────────────────────────────────────────
	rc, err := openRedis(ctx, cfg, log)
	if err != nil {
		return err
	}
	if rc != nil {
		defer func() {
			log.Info("closing redis connection...")
			_ = rc.cache.Close()
		}()
	}

	bus, closeBus, err := newEventBus(cfg, rc, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing event bus...")
		if err := closeBus(); err != nil {
			log.Warn("event bus close failed", logger.Err(err))
		}
	}()

	if err := bus.SubscribeAll(messaging.Chain(eventLogHandler(log),
		messaging.RecoveryMiddleware(log),
		messaging.LoggingMiddleware(log),
	)); err != nil {
		return fmt.Errorf("failed to subscribe event log: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ДОСТАВКА УВЕДОМЛЕНИЙ
	// ─────────────────────────────────────────────────────────────────────────
	breaker := circuitbreaker.NotifierBreaker(func(name string, from, to circuitbreaker.State) {
		log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
	})
	dispatcher := service.NewNotificationDispatcher(
		service.NewLogNotifier(log),
		breaker,
		service.DispatcherConfig{
			Workers:     cfg.Engine.NotifyWorkers,
			QueueSize:   cfg.Engine.NotifyQueueSize,
			SendTimeout: cfg.Engine.NotifySendTimeout,
		},
		log,
	)
	dispatcher.Start(ctx)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ОБРАБОТЧИКИ
	// ─────────────────────────────────────────────────────────────────────────
	eng, err := newEngine(cfg, st, rc, bus, dispatcher, log)
	if err != nil {
		return err
	}
	log.Info("engine ready", "store", st.kind, "instance_id", eng.instanceID)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. ФОНОВАЯ ОЧИСТКА ПРЕДЛОЖЕНИЙ
	// ─────────────────────────────────────────────────────────────────────────
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		sw := &sweeper{
			suggestions: st.suggestions,
			publisher:   bus,
			locker:      rc.locker(),
			owner:       eng.instanceID,
			interval:    cfg.Engine.SweepInterval,
			logger:      log.With(logger.Component("suggestion_sweeper")),
		}
		sw.run(ctx)
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 8. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	<-ctx.Done()
	log.Info("received shutdown signal, starting graceful shutdown...",
		"timeout", cfg.App.ShutdownTimeout,
	)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	<-sweepDone
	if err := dispatcher.Close(shutdownCtx); err != nil {
		log.Warn("notification queue not drained", logger.Err(err))
	}
	stats := dispatcher.Stats()
	log.Info("notification dispatcher stopped",
		"sent", stats.Sent,
		"failed", stats.Failed,
		"rejected", stats.Rejected,
		"dropped", stats.Dropped,
	)

	log.Info("shutdown completed successfully")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// setupLogger настраивает структурированное логирование.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.Level)
	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}
	opts.Format = logger.Format(cfg.Observability.Format)
	opts.Attrs = []slog.Attr{
		slog.String("service", cfg.App.Name),
		slog.String("version", cfg.App.Version),
	}

	log := logger.New(opts)
	slog.SetDefault(log)
	return log
}

// eventLogHandler пишет в лог значимые события движка.
func eventLogHandler(log *slog.Logger) shared.EventHandler {
	return func(event shared.Event) error {
		payload := event.Payload()
		switch event.EventType() {
		case shared.EventCelebrationAchieved, shared.EventStreakMilestone:
			log.Info("milestone reached",
				"type", string(event.EventType()),
				"student_id", payload["student_id"],
				"classroom_id", payload["classroom_id"],
				"occurred_at", event.OccurredAt().Format(time.RFC3339),
			)
		case shared.EventSuggestionsExpired:
			log.Info("suggestions expired",
				"classroom_id", payload["classroom_id"],
				"count", payload["count"],
			)
		}
		return nil
	}
}
