package subscriber

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/solharvest/dlmm-harvester/internal/decode"
	"github.com/solharvest/dlmm-harvester/internal/events"
	"github.com/solharvest/dlmm-harvester/internal/registry"
	"github.com/solharvest/dlmm-harvester/internal/safebins"
)

// bootstrap loads the registry cache if present; an empty/missing cache
// falls through to a full on-chain rebuild.
func (s *Subscriber) bootstrap(ctx context.Context) error {
	cached, err := registry.LoadCache(s.cfg.CacheFilePath)
	if err != nil {
		return err
	}
	if len(cached) == 0 {
		s.runRebuild(ctx, false)
		return nil
	}

	for _, c := range cached {
		s.reg.PutPosition(c.ID, decode.Position{
			Owner: c.Owner, Pool: c.Pool, Auxiliary: c.Aux,
			Side: c.Side, MinBin: c.MinBin, MaxBin: c.MaxBin,
		})
	}
	positions, pools := s.reg.Size()
	s.log.Info("loaded registry from cache", zap.Int("positions", positions), zap.Int("pools", pools))
	return nil
}

// rebuildWorker serializes rebuild requests through the in-flight guard:
// only one rebuild runs at a time, and a request arriving while one is
// active is already dropped at enqueue time by requestRebuild.
func (s *Subscriber) rebuildWorker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-s.rebuildCh:
			s.runRebuild(ctx, req.reasonReconnect)
		}
	}
}

// runRebuild performs a full enumerate-decode-filter-insert pass, guarded
// so two rebuilds never interleave their clear-then-repopulate.
func (s *Subscriber) runRebuild(ctx context.Context, fromReconnect bool) {
	if !s.rebuilding.CompareAndSwap(false, true) {
		s.log.Debug("rebuild already in flight, dropping trigger")
		return
	}
	defer s.rebuilding.Store(false)

	poolsBefore := s.reg.WatchedPools()
	beforeSet := make(map[string]struct{}, len(poolsBefore))
	for _, p := range poolsBefore {
		beforeSet[p.String()] = struct{}{}
	}
	beforePositions := s.reg.View().Positions

	accounts, err := s.client.GetProgramAccounts(ctx, s.cfg.PositionProgram, nil, 0)
	if err != nil {
		s.log.Error("rebuild: enumerate positions failed", zap.Error(err))
		return
	}

	s.reg.Clear()
	var newPools bool
	var newPositions []registry.PositionRecord
	for _, acct := range accounts {
		pos, err := decode.DecodePosition(acct.Data)
		if err != nil {
			s.log.Warn("rebuild: position decode failed, skipping", zap.String("id", acct.Pubkey.String()), zap.Error(err))
			continue
		}
		if pos.Width() < s.cfg.MinPositionBins || pos.InitialAmount < s.cfg.MinInitialAmount {
			continue
		}
		s.reg.PutPosition(acct.Pubkey, pos)
		if _, known := beforeSet[pos.Pool.String()]; !known {
			newPools = true
		}
		if _, known := beforePositions[acct.Pubkey]; !known {
			newPositions = append(newPositions, registry.PositionRecord{ID: acct.Pubkey, Position: pos})
		}
	}

	if err := registry.SaveCache(s.reg, s.cfg.CacheFilePath); err != nil {
		s.log.Error("rebuild: failed to persist cache", zap.Error(err))
	}

	positions, pools := s.reg.Size()
	s.log.Info("registry rebuild complete", zap.Int("positions", positions), zap.Int("pools", pools), zap.Bool("fromReconnect", fromReconnect))

	if !fromReconnect {
		// Source emits PositionChanged(id, Created, new_state) for every
		// newly-discovered id before triggering the subscription-refresh
		// reconnect; we preserve that ordering.
		for _, rec := range newPositions {
			s.bus.Publish(events.KindPositionChanged, events.PositionChanged{
				PositionID: rec.ID,
				Action:     events.PositionActionCreated,
			})
		}
		if newPools {
			s.requestReconnect()
		}
		return
	}

	// A reconnect-triggered rebuild that itself discovers a pool not in
	// the subscription that led to this reconnect needs a second
	// reconnect once the current one finishes, so the new pool's filter
	// group actually gets subscribed to.
	if newPools {
		s.requestReconnect()
	}
}

func (s *Subscriber) requestReconnect() {
	select {
	case s.reconnectCh <- struct{}{}:
	default:
	}
}

// evaluatePoolPositions re-runs the range-only safe-bin check for every
// position indexed under pool against info's active bin, emitting
// HarvestNeeded for any with a non-empty safe list. No filtering is done
// on the magnitude of the active-bin jump: large single-slot jumps on thin
// markets are legitimate fills, and the on-chain program is authoritative
// at submission time regardless of what triggered this evaluation.
func (s *Subscriber) evaluatePoolPositions(pool solana.PublicKey, info decode.PoolInfo) {
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
		s.bus.Publish(events.KindHarvestNeeded, events.HarvestNeeded{
			PositionID: id,
			Pool:       pool,
			Owner:      rec.Position.Owner,
			Side:       rec.Position.Side,
			SafeBins:   safe,
			PoolInfo:   &infoCopy,
		})
		if s.enqueue != nil {
			s.enqueue(events.HarvestNeeded{
				PositionID: id, Pool: pool, Owner: rec.Position.Owner,
				Side: rec.Position.Side, SafeBins: safe, PoolInfo: &infoCopy,
			})
		}
	}
}
