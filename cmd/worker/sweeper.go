package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/alem-hub/explorer-points/internal/application/query"
	"github.com/alem-hub/explorer-points/internal/domain/shared"
	"github.com/alem-hub/explorer-points/internal/domain/suggestion"
)

// sweepLockResource - имя блокировки фоновой очистки в Redis.
const sweepLockResource = "suggestion-sweep"

// locker - распределённая блокировка, чтобы очистку в каждом тике делал
// только один инстанс.
type locker interface {
	TryLock(ctx context.Context, resource, owner string, ttl time.Duration) (bool, func(context.Context) error, error)
}

// sweeper периодически переводит просроченные предложения всех классов в expired.
type sweeper struct {
	suggestions suggestion.Repository
	publisher   shared.EventPublisher
	locker      locker
	owner       string
	interval    time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// run блокируется до отмены ctx. Нулевой интервал отключает очистку.
func (s *sweeper) run(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("background sweep disabled")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("background sweep started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("background sweep stopped")
			return
		case <-ticker.C:
			if _, err := s.sweepOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("sweep failed", "error", err)
			}
		}
	}
}

// sweepOnce выполняет одну очистку. Если блокировку держит другой
// инстанс, тик пропускается.
func (s *sweeper) sweepOnce(ctx context.Context) (int, error) {
	if s.locker != nil {
		ok, release, err := s.locker.TryLock(ctx, sweepLockResource, s.owner, s.interval)
		if err != nil {
			return 0, err
		}
		if !ok {
			s.logger.Debug("sweep lock held by another instance")
			return 0, nil
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("failed to release sweep lock", "error", err)
			}
		}()
	}

	now := time.Now().UTC()
	if s.now != nil {
		now = s.now().UTC()
	}
	// Пустой класс в scope означает все классы
	return query.Sweep(ctx, s.suggestions, s.publisher, s.logger, shared.Scope{}, now)
}
