package fulfillment

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/bloodlink/bloodlink/internal/domain/request"
	"github.com/bloodlink/bloodlink/internal/platform/cache"
)

const sweepBatchSize = 500

// ExpirySweeper persists EXPIRED for open requests whose required date has
// passed without any donation activity to trigger a recomputation.
type ExpirySweeper struct {
	requests  request.Repository
	lifecycle *request.Lifecycle
	interval  time.Duration
	cache     *cache.Cache
	now       func() time.Time
	logger    zerolog.Logger
}

func NewExpirySweeper(requests request.Repository, lifecycle *request.Lifecycle, interval time.Duration, logger zerolog.Logger) *ExpirySweeper {
	return &ExpirySweeper{
		requests:  requests,
		lifecycle: lifecycle,
		interval:  interval,
		now:       time.Now,
		logger:    logger.With().Str("component", "expiry_sweeper").Logger(),
	}
}

// WithStatsCache drops cached request statistics after a sweep that
// expired anything.
func (s *ExpirySweeper) WithStatsCache(c *cache.Cache) *ExpirySweeper {
	s.cache = c
	return s
}

func (s *ExpirySweeper) WithClock(now func() time.Time) *ExpirySweeper {
	s.now = now
	return s
}

// SweepOnce recomputes one batch of overdue requests and returns how many
// changed status. A failure on one request does not stop the batch.
func (s *ExpirySweeper) SweepOnce(ctx context.Context) (int, error) {
	ids, err := s.requests.ListOverdue(ctx, s.now(), sweepBatchSize)
	if err != nil {
		return 0, err
	}
	changed := 0
	for _, id := range ids {
		t, err := s.lifecycle.Recompute(ctx, id)
		if err != nil {
			s.logger.Error().Err(err).Str("request_id", id.String()).Msg("expire request")
			continue
		}
		if t.Changed() {
			changed++
		}
	}
	if changed > 0 {
		s.logger.Info().Int("expired", changed).Msg("expiry sweep complete")
		if err := s.cache.Delete(ctx, statsCacheKey); err != nil {
			s.logger.Warn().Err(err).Msg("invalidate request statistics")
		}
	}
	return changed, nil
}

// Run sweeps immediately and then on every interval until ctx ends.
func (s *ExpirySweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error().Err(err).Msg("expiry sweep")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
