// Package keeper implements the sequencer: a fixed ordered sequence of
// on-chain cranks run once per week with catch-up, plus threshold-triggered
// deposits between runs.
package keeper

import (
	"context"
	"errors"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/solharvest/dlmm-harvester/internal/clock"
	"github.com/solharvest/dlmm-harvester/internal/events"
)

// Phase is the outcome of one tick, used by the orchestrator to pick the
// next tick delay.
type Phase string

const (
	PhaseActive     Phase = "Active"
	PhaseProcessing Phase = "Processing"
)

// Config holds the sequencer's tunables from spec.md §6.
type Config struct {
	ActiveInterval       time.Duration
	ProcessingInterval   time.Duration
	AutoDepositThreshold uint64
	InterOpDelay         time.Duration
	FeePools             []solana.PublicKey
}

// DefaultConfig returns the tunables at their spec.md §6 defaults.
func DefaultConfig() Config {
	return Config{
		ActiveInterval:       time.Hour,
		ProcessingInterval:   30 * time.Second,
		AutoDepositThreshold: 500_000_000, // 0.5 native units at 9 decimals
		InterOpDelay:         2 * time.Second,
	}
}

// Keeper runs the six-step ordered sequence on a weekly cadence.
type Keeper struct {
	cfg   Config
	log   *zap.Logger
	chain Chain
	pools PoolInfoSource // optional; nil falls back to RPC enumeration
	bus   *events.Bus
	clk   clock.Clock

	limiter *rate.Limiter

	lastSuccessfulSaturday time.Time
	priorityFee            uint64 // refreshed once per processing-path run, read by the six steps
}

// New constructs a Keeper. pools may be nil, in which case step 4's
// mint-to-pool mapping always uses the RPC-enumeration fallback.
func New(cfg Config, log *zap.Logger, chain Chain, pools PoolInfoSource, bus *events.Bus, clk clock.Clock) *Keeper {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Keeper{
		cfg:     cfg,
		log:     log.With(zap.String("component", "keeper")),
		chain:   chain,
		pools:   pools,
		bus:     bus,
		clk:     clk,
		limiter: rate.NewLimiter(rate.Every(cfg.InterOpDelay), 1),
	}
}

// LastSuccessfulSaturday reports the last time the processing path
// completed, for the relay's stats endpoint.
func (k *Keeper) LastSuccessfulSaturday() time.Time {
	return k.lastSuccessfulSaturday
}

// Run drives Tick on the adaptive interval spec.md §4.4.5 describes until
// ctx is cancelled.
func (k *Keeper) Run(ctx context.Context) {
	for {
		phase := k.Tick(ctx)

		interval := k.cfg.ActiveInterval
		if phase == PhaseProcessing {
			interval = k.cfg.ProcessingInterval
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// Tick runs one iteration: it decides whether to enter the processing path
// (Saturday, or a missed run), otherwise checks the threshold-triggered
// deposit path before returning Active.
func (k *Keeper) Tick(ctx context.Context) Phase {
	now := k.clk.Now()

	missedRun := !k.lastSuccessfulSaturday.IsZero() && now.Sub(k.lastSuccessfulSaturday) > 7*24*time.Hour
	isSaturday := now.Weekday() == time.Saturday

	if isSaturday || missedRun {
		k.runProcessingPath(ctx, now)
		return PhaseProcessing
	}

	k.checkThresholdDeposit(ctx)

	k.log.Info("active — nothing to crank")
	return PhaseActive
}

// runProcessingPath executes the six steps in order, each isolated so one
// step's failure never blocks the next, then records the successful run.
func (k *Keeper) runProcessingPath(ctx context.Context, now time.Time) {
	k.log.Info("entering processing path")

	fee, err := k.chain.RefreshPriorityFee(ctx)
	if err != nil {
		k.log.Warn("priority fee refresh failed, steps will use the floor value", zap.Error(err))
	}
	k.priorityFee = fee

	k.runStep(ctx, "claim_pool_fees", k.stepClaimPoolFees)
	k.runStep(ctx, "unwrap", k.stepUnwrap)
	k.runStep(ctx, "sweep", k.stepSweep)
	k.runStep(ctx, "open_recycle_positions", k.stepOpenRecyclePositions)
	k.runStep(ctx, "deposit", k.stepDeposit)
	k.runStep(ctx, "close_exhausted_recycle_positions", k.stepCloseExhaustedRecyclePositions)

	k.lastSuccessfulSaturday = now
	k.reportRoverTVL(ctx)
}

// runStep isolates one fallible step from the sequence driving it: a
// failure is logged and the sequence continues, mirroring the queue
// worker's per-job isolation in the executor.
func (k *Keeper) runStep(ctx context.Context, name string, step func(context.Context) error) {
	if err := step(ctx); err != nil {
		if isExpectedEmpty(err) {
			k.log.Info("step result", zap.String("step", name), zap.Error(err))
			return
		}
		k.log.Warn("step failed, continuing sequence", zap.String("step", name), zap.Error(err))
	}
}

func isExpectedEmpty(err error) bool {
	return errors.Is(err, ErrNothingToSweep) || errors.Is(err, ErrNothingToDeposit)
}

// checkThresholdDeposit runs step 5 immediately, outside the weekly
// cadence, when the distribution pool's residual exceeds the configured
// threshold (spec.md §4.4.4).
func (k *Keeper) checkThresholdDeposit(ctx context.Context) {
	residual, err := k.chain.DistributionPoolResidual(ctx)
	if err != nil {
		k.log.Warn("failed to read distribution pool residual", zap.Error(err))
		return
	}
	if residual <= k.cfg.AutoDepositThreshold {
		return
	}
	k.log.Info("distribution pool residual exceeds threshold, depositing early", zap.Uint64("residual", residual))
	k.runStep(ctx, "deposit", k.stepDeposit)
}

func (k *Keeper) reportRoverTVL(ctx context.Context) {
	if k.pools == nil {
		return
	}
	for _, pool := range k.pools.WatchedPools() {
		info, ok := k.pools.Pool(pool)
		if !ok {
			continue
		}
		_ = info
		k.bus.Publish(events.KindRoverTVLUpdated, events.RoverTVLUpdated{
			Pool:          pool,
			TVL:           0, // placeholder: no rover-TVL source is wired, see design notes
			PositionCount: len(k.pools.PositionsForPool(pool)),
			Status:        "reported",
		})
	}
}
