package keeper

import (
	"context"
	"errors"

	"github.com/gagliardetto/solana-go"

	"github.com/solharvest/dlmm-harvester/internal/decode"
)

// Sentinel errors for the chain-side expected-empty cases spec.md §7 calls
// out by name: these are not failures, Sweep and Deposit return them when
// there was simply nothing to do, and the keeper demotes them to an info
// log instead of a warning.
var (
	ErrNothingToSweep   = errors.New("keeper: nothing to sweep")
	ErrNothingToDeposit = errors.New("keeper: nothing to deposit")
)

// RecyclePosition is one program-authority-owned one-sided position as
// reported by the chain, used by step 6 to decide whether it is exhausted.
type RecyclePosition struct {
	ID       solana.PublicKey
	Pool     solana.PublicKey
	AllZero  bool // every bin balance on this position is zero
}

// Chain is everything the sequencer needs from the chain side. It is kept
// separate from rpcx.Client because these operations are authority-signed
// CPIs into an external program, not the generic request/response RPC
// surface the subscriber and executor use.
type Chain interface {
	// RefreshPriorityFee samples the current priority-fee market once and
	// returns the microlamports-per-compute-unit value the sequencer
	// attaches to every instruction the six steps below submit for the
	// rest of the run, mirroring the executor's per-job computePriorityFee
	// but refreshed once per sequence rather than once per job.
	RefreshPriorityFee(ctx context.Context) (feeMicroLamports uint64, err error)

	// WrappedNativeBalance reports the program authority's wrapped-native
	// token account balance. exists is false if the account has never
	// been created.
	WrappedNativeBalance(ctx context.Context) (balance uint64, exists bool, err error)
	// UnwrapNative closes the wrapped-native account, recovering lamports
	// to the authority.
	UnwrapNative(ctx context.Context, feeMicroLamports uint64) error

	// ClaimPoolFees claims accrued fees for one configured pool.
	ClaimPoolFees(ctx context.Context, pool solana.PublicKey, feeMicroLamports uint64) error

	// Sweep moves lamports from the authority account to the revenue
	// destination. Returns ErrNothingToSweep if the authority balance is
	// at or below the amount it must retain.
	Sweep(ctx context.Context, feeMicroLamports uint64) error

	// TokenBalances returns the authority's non-zero token account
	// balances, keyed by mint.
	TokenBalances(ctx context.Context) (map[solana.PublicKey]uint64, error)
	// FetchPoolInfo fetches and decodes one pool's state directly from
	// chain, used by the RPC-enumeration fallback path when no
	// PoolInfoSource is wired.
	FetchPoolInfo(ctx context.Context, pool solana.PublicKey) (decode.PoolInfo, error)
	// EnumeratePositionPools enumerates every position owned by the
	// program authority and returns the deduplicated set of pool ids —
	// the §4.4.3 fallback when no watched-pools callback is available.
	EnumeratePositionPools(ctx context.Context) ([]solana.PublicKey, error)

	// OpenRecyclePosition opens a new one-sided position seeded with
	// amount of mint's tokens on pool.
	OpenRecyclePosition(ctx context.Context, pool, mint solana.PublicKey, amount uint64, feeMicroLamports uint64) error

	// Deposit moves all accumulated quote asset from the distribution
	// pool to the program vault. Returns ErrNothingToDeposit if the
	// distribution pool is empty.
	Deposit(ctx context.Context, feeMicroLamports uint64) error
	// DistributionPoolResidual returns the distribution pool's balance
	// minus its rent-exempt minimum.
	DistributionPoolResidual(ctx context.Context) (uint64, error)

	// RecyclePositions lists every position currently owned by the
	// program authority, for step 6's exhaustion scan.
	RecyclePositions(ctx context.Context) ([]RecyclePosition, error)
	// CloseRecyclePosition submits a close transaction for an exhausted
	// recycle position.
	CloseRecyclePosition(ctx context.Context, id solana.PublicKey, feeMicroLamports uint64) error
}

// PoolInfoSource is the preferred source for step 4's token-mint-to-pool
// mapping: the stream subscriber's registry, queried in-memory rather than
// over RPC. registry.Registry satisfies this directly.
type PoolInfoSource interface {
	WatchedPools() []solana.PublicKey
	Pool(pool solana.PublicKey) (decode.PoolInfo, bool)
	PositionsForPool(pool solana.PublicKey) []solana.PublicKey
}
