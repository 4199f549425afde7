package subscriber

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/solharvest/dlmm-harvester/internal/decode"
	"github.com/solharvest/dlmm-harvester/internal/events"
	"github.com/solharvest/dlmm-harvester/internal/safebins"
)

// safetyPollLoop is the belt-and-suspenders poll from spec.md §4.2.5: it
// is orthogonal to the push stream and covers any edge case where the
// stream quietly dropped a message. It is lower-bound best-effort, not a
// source of truth — a missed harvest here is caught eventually by the next
// active-bin change or the next poll, never guaranteed on any schedule.
func (s *Subscriber) safetyPollLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.SafetyPollEvery)
	defer ticker.Stop()

	limiter := rate.NewLimiter(rate.Every(s.cfg.SafetyPollDelay), 1)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runSafetyPoll(ctx, limiter)
		}
	}
}

func (s *Subscriber) runSafetyPoll(ctx context.Context, limiter *rate.Limiter) {
	for _, pool := range s.reg.WatchedPools() {
		if err := limiter.Wait(ctx); err != nil {
			return
		}

		data, err := s.client.GetAccountInfo(ctx, pool)
		if err != nil || len(data) == 0 {
			s.log.Debug("safety poll: pool fetch failed", zap.String("pool", pool.String()), zap.Error(err))
			continue
		}
		info, err := decode.DecodePoolInfo(data)
		if err != nil {
			s.log.Warn("safety poll: pool decode failed", zap.String("pool", pool.String()), zap.Error(err))
			continue
		}

		for _, id := range s.reg.PositionsForPool(pool) {
			rec, ok := s.reg.GetPosition(id)
			if !ok {
				continue
			}
			safe := safebins.RangeOnly(rec.Position.Side, rec.Position.MinBin, rec.Position.MaxBin, info.ActiveID)
			if len(safe) == 0 {
				continue
			}
			infoCopy := info
			payload := events.HarvestNeeded{
				PositionID: id, Pool: pool, Owner: rec.Position.Owner,
				Side: rec.Position.Side, SafeBins: safe, PoolInfo: &infoCopy,
			}
			if s.enqueue != nil {
				s.enqueue(payload)
			}
		}
	}
}
