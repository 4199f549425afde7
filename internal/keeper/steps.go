package keeper

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

const minRecycleAmount = 1 // any non-zero accumulated balance is eligible

// stepClaimPoolFees is step 1: CPI into the external pool protocol's
// fee-claim instruction for every configured pool, skipped silently if
// none are configured.
func (k *Keeper) stepClaimPoolFees(ctx context.Context) error {
	if len(k.cfg.FeePools) == 0 {
		return nil
	}
	for _, pool := range k.cfg.FeePools {
		if err := k.chain.ClaimPoolFees(ctx, pool, k.priorityFee); err != nil {
			k.log.Warn("claim pool fees failed for one pool, continuing", zap.String("pool", pool.String()), zap.Error(err))
		}
		k.throttle(ctx)
	}
	return nil
}

// stepUnwrap is step 2: close the wrapped-native account if it exists and
// holds a non-zero balance.
func (k *Keeper) stepUnwrap(ctx context.Context) error {
	balance, exists, err := k.chain.WrappedNativeBalance(ctx)
	if err != nil {
		return err
	}
	if !exists || balance == 0 {
		return nil
	}
	return k.chain.UnwrapNative(ctx, k.priorityFee)
}

// stepSweep is step 3: move lamports from the authority to the revenue
// destination.
func (k *Keeper) stepSweep(ctx context.Context) error {
	return k.chain.Sweep(ctx, k.priorityFee)
}

// stepOpenRecyclePositions is step 4: for every accumulated token with a
// known pool and a sufficient balance, open a one-sided recycle position.
// No mint is excluded.
func (k *Keeper) stepOpenRecyclePositions(ctx context.Context) error {
	balances, err := k.chain.TokenBalances(ctx)
	if err != nil {
		return err
	}
	if len(balances) == 0 {
		return nil
	}

	mintToPool, err := k.buildMintPoolMap(ctx)
	if err != nil {
		return err
	}

	for mint, amount := range balances {
		if amount < minRecycleAmount {
			continue
		}
		pool, known := mintToPool[mint]
		if !known {
			continue
		}
		if err := k.chain.OpenRecyclePosition(ctx, pool, mint, amount, k.priorityFee); err != nil {
			k.log.Warn("open recycle position failed for one mint, continuing",
				zap.String("mint", mint.String()), zap.Error(err))
		}
		k.throttle(ctx)
	}
	return nil
}

// buildMintPoolMap resolves the token-mint-to-pool mapping per spec.md
// §4.4.3: prefer the in-memory watched-pool registry, fall back to RPC
// enumeration of positions when no registry is wired. Both paths end up
// indexing the same pool-info lookup, so they produce the same result.
func (k *Keeper) buildMintPoolMap(ctx context.Context) (map[solana.PublicKey]solana.PublicKey, error) {
	var pools []solana.PublicKey
	if k.pools != nil {
		pools = k.pools.WatchedPools()
	} else {
		enumerated, err := k.chain.EnumeratePositionPools(ctx)
		if err != nil {
			return nil, err
		}
		pools = enumerated
	}

	out := make(map[solana.PublicKey]solana.PublicKey, len(pools))
	for _, pool := range pools {
		if k.pools != nil {
			if info, ok := k.pools.Pool(pool); ok {
				out[info.TokenXMint] = pool
				continue
			}
		}
		info, err := k.chain.FetchPoolInfo(ctx, pool)
		if err != nil {
			k.log.Warn("failed to fetch pool info while building mint map, skipping pool",
				zap.String("pool", pool.String()), zap.Error(err))
			continue
		}
		out[info.TokenXMint] = pool
	}
	return out, nil
}

// stepDeposit is step 5: move all accumulated quote asset from the
// distribution pool to the program vault.
func (k *Keeper) stepDeposit(ctx context.Context) error {
	return k.chain.Deposit(ctx, k.priorityFee)
}

// stepCloseExhaustedRecyclePositions is step 6: scan program-authority-owned
// positions and close every one whose bins are all zero.
func (k *Keeper) stepCloseExhaustedRecyclePositions(ctx context.Context) error {
	positions, err := k.chain.RecyclePositions(ctx)
	if err != nil {
		return err
	}
	for _, p := range positions {
		if !p.AllZero {
			continue
		}
		if err := k.chain.CloseRecyclePosition(ctx, p.ID, k.priorityFee); err != nil {
			k.log.Warn("close exhausted recycle position failed, continuing",
				zap.String("position", p.ID.String()), zap.Error(err))
		}
		k.throttle(ctx)
	}
	return nil
}

// throttle applies the inter-operation delay spec.md §4.4.2 specifies for
// step 4's per-item RPC traffic; steps 1 and 6 also call it after each
// pool or position they submit for.
func (k *Keeper) throttle(ctx context.Context) {
	_ = k.limiter.Wait(ctx)
}
