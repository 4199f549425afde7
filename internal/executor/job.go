package executor

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/solharvest/dlmm-harvester/internal/decode"
	"github.com/solharvest/dlmm-harvester/internal/events"
	"github.com/solharvest/dlmm-harvester/internal/safebins"
)

// runJob executes the per-job sequence from spec.md §4.3.2.
func (e *Executor) runJob(ctx context.Context, j job) {
	logger := e.log.With(zap.String("position", j.PositionID.String()), zap.String("pool", j.Pool.String()))

	pool, err := e.fetchPoolObject(ctx, j.Pool)
	if err != nil {
		logger.Error("failed to fetch pool object, abandoning job", zap.Error(err))
		return
	}

	balances, err := e.client.GetPositionBinBalances(ctx, j.PositionID)
	if err != nil {
		logger.Error("failed to fetch bin balances, abandoning job", zap.Error(err))
		return
	}
	if !balances.Exists {
		logger.Info("position no longer exists on chain, abandoning stale job")
		return
	}

	bbs := make([]safebins.BinBalance, len(balances.Bins))
	for i, b := range balances.Bins {
		bbs[i] = safebins.BinBalance{Bin: b.Bin, Balance: b.Balance}
	}
	safe := safebins.BalanceAware(j.Side, pool.Info.ActiveID, bbs)
	if len(safe) == 0 {
		logger.Debug("balance-aware pass found nothing safe, abandoning job")
		return
	}
	safe = safebins.Expand(safe)

	isClose := len(safe) == balances.TotalBins

	fee, err := e.computePriorityFee(ctx, []solana.PublicKey{j.Pool})
	if err != nil {
		logger.Warn("priority fee query failed, using floor", zap.Error(err))
	}

	raw, err := e.buildTransaction(j, safe, isClose, fee)
	if err != nil {
		logger.Error("failed to build transaction, abandoning job", zap.Error(err))
		return
	}
	if e.signer != nil {
		raw, err = e.signer.SignTransaction(raw)
		if err != nil {
			logger.Error("failed to sign transaction, abandoning job", zap.Error(err))
			return
		}
	}

	if err := e.submitWithRetry(ctx, raw); err != nil {
		logger.Error("submission failed after retries, abandoning job", zap.Error(err))
		return
	}

	now := time.Now()
	if isClose {
		e.mu.Lock()
		e.totalCloses++
		e.mu.Unlock()
		e.bus.Publish(events.KindPositionClosed, events.PositionClosed{
			PositionID: j.PositionID, Pool: j.Pool, Owner: j.Owner,
			Side: j.Side, BinCount: len(safe), SubmittedAt: now,
		})
	} else {
		e.mu.Lock()
		e.totalHarvests++
		e.mu.Unlock()
		e.bus.Publish(events.KindHarvestExecuted, events.HarvestExecuted{
			PositionID: j.PositionID, Pool: j.Pool, Owner: j.Owner,
			Side: j.Side, BinCount: len(safe), SubmittedAt: now,
		})
	}
}

// fetchPoolObject returns the cached pool object for pool, reconstructing
// it from chain on a cache miss or TTL expiry.
func (e *Executor) fetchPoolObject(ctx context.Context, pool solana.PublicKey) (PoolObject, error) {
	if obj, ok := e.cache.Get(pool); ok {
		return obj, nil
	}

	data, err := e.client.GetAccountInfo(ctx, pool)
	if err != nil {
		return PoolObject{}, err
	}
	info, err := decode.DecodePoolInfo(data)
	if err != nil {
		return PoolObject{}, err
	}

	obj := PoolObject{Pool: pool, Info: info}
	e.cache.Put(pool, obj)
	return obj, nil
}

// buildTransaction carries the compute-unit limit and priority fee
// followed by the main harvest or close instruction over bins. It adds no
// create-associated-token-account instructions. The instruction-building
// itself is a thin
// placeholder: the on-chain program's instruction encoding is out of
// scope (spec.md §1), this daemon is only responsible for deciding WHICH
// bins and WHICH instruction kind.
func (e *Executor) buildTransaction(j job, bins []int32, isClose bool, feeMicroLamports uint64) ([]byte, error) {
	kind := "harvest"
	if isClose {
		kind = "close"
	}
	instr := instructionEnvelope{
		Kind:             kind,
		PositionID:       j.PositionID,
		Pool:             j.Pool,
		Owner:            j.Owner,
		Bins:             bins,
		ComputeUnitLimit: e.cfg.ComputeUnitLimit,
		PriorityFeeMicroLamports: feeMicroLamports,
	}
	return instr.marshal()
}
