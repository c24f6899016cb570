package reservation

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-stock-ledger/internal/metrics"
	"github.com/fekuna/omnipos-stock-ledger/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultSweepInterval  = 60 * time.Second
	DefaultSweepBatchSize = 500

	sweepLockKey = "lock:inventory:reservation-sweeper"
)

// Locker lets several service instances agree on who sweeps a given tick.
type Locker interface {
	AcquireLock(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, value string) error
}

type SweeperConfig struct {
	Interval  time.Duration
	BatchSize int
}

// Sweeper expires lapsed holds on a fixed interval.
type Sweeper struct {
	manager   *Manager
	locker    Locker
	interval  time.Duration
	batchSize int
	metrics   *metrics.Metrics
	logger    logger.ZapLogger
}

// NewSweeper builds a sweeper. locker may be nil when only one instance runs.
func NewSweeper(manager *Manager, locker Locker, cfg SweeperConfig, m *metrics.Metrics, log logger.ZapLogger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSweepInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultSweepBatchSize
	}
	return &Sweeper{
		manager:   manager,
		locker:    locker,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		metrics:   m,
		logger:    log,
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("Starting reservation expiry sweeper", zap.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping reservation expiry sweeper")
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("reservation sweep failed", zap.Error(err))
			}
		}
	}
}

// SweepOnce expires every hold that has lapsed and returns how many it expired.
// Per-hold failures are logged and do not stop the sweep.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	if s.locker != nil {
		token := uuid.New().String()
		ok, err := s.locker.AcquireLock(ctx, sweepLockKey, token, s.interval)
		if err != nil {
			return 0, err
		}
		if !ok {
			s.logger.Debug("sweep skipped, another instance holds the lock")
			return 0, nil
		}
		defer func() {
			if err := s.locker.ReleaseLock(context.Background(), sweepLockKey, token); err != nil {
				s.logger.Warn("failed to release sweep lock", zap.Error(err))
			}
		}()
	}

	start := time.Now()
	defer func() { s.metrics.SweepDuration(time.Since(start).Seconds()) }()

	repo := s.manager.ledger.Repository()
	total := 0
	for {
		due, err := repo.ListExpiredReservations(ctx, s.manager.ledger.Now(), s.batchSize)
		if err != nil {
			return total, err
		}

		expired := 0
		for _, res := range due {
			ok, err := s.manager.Expire(ctx, res.ID)
			switch {
			case err != nil:
				s.metrics.Swept("error")
				s.logger.Error("failed to expire reservation",
					zap.String("reservation_id", res.ID),
					zap.String("variant_id", res.VariantID),
					zap.Error(err),
				)
			case ok:
				expired++
				s.metrics.Swept("expired")
				s.logger.Debug("reservation expired",
					zap.String("reservation_id", res.ID),
					zap.String("holder_ref", res.HolderRef),
				)
			default:
				s.metrics.Swept("skipped")
			}
		}
		total += expired

		// A full page with progress may have more behind it. A page where
		// nothing could be expired would come back unchanged.
		if len(due) < s.batchSize || expired == 0 {
			break
		}
	}

	if total > 0 {
		s.logger.Info("reservation sweep finished", zap.Int("expired", total))
	}
	return total, nil
}
