// Package rpcx wraps the upstream Solana RPC and account-update stream
// behind small interfaces the rest of the daemon depends on, the way
// network.Network wraps a concrete p2p transport behind an
// application-specific type with its own request bookkeeping. Depending on
// Client/Stream instead of *rpc.Client/*ws.Client directly is what lets the
// subscriber and executor be tested without a live chain (the keeper
// depends on its own keeper.Chain interface instead).
package rpcx

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
)

// AccountUpdate is one message delivered on the push stream: an account's
// public key and its current data, or a pong marker carrying PingID.
type AccountUpdate struct {
	Pubkey solana.PublicKey
	Data   []byte
	IsPong bool
	PingID uint64
}

// FilterGroup names one subscription filter: either a list of specific
// accounts (the subscriber uses this for watched pool accounts, with
// DataSize set to the pool account size) or an owner-program filter (used
// for position-program-owned accounts).
type FilterGroup struct {
	Name        string
	Owner       solana.PublicKey
	DataSize    uint64 // 0 means unconstrained
	Accounts    []solana.PublicKey
	Commitment  string
}

// Stream is the upstream push account-update subscription.
type Stream interface {
	// Subscribe (re)establishes the subscription described by groups and
	// returns a channel of updates. Calling Subscribe again replaces any
	// previous subscription; the stream does not support incremental
	// filter modification, matching spec.md §4.2.2.
	Subscribe(ctx context.Context, groups []FilterGroup) (<-chan AccountUpdate, error)
	// Ping sends a liveness ping carrying id; a matching pong arrives on
	// the update channel with IsPong=true, PingID=id.
	Ping(ctx context.Context, id uint64) error
	Close() error
}

// ProgramAccount is one account returned by an enumerate-by-owner query.
type ProgramAccount struct {
	Pubkey solana.PublicKey
	Data   []byte
}

// PriorityFeeSample is one entry from the recent-prioritization-fees
// query.
type PriorityFeeSample struct {
	Slot               uint64
	PrioritizationFee uint64
}

// SubmitResult is the outcome of submitting a transaction.
type SubmitResult struct {
	Signature solana.Signature
}

// BinBalance is one bin's balance on the side relevant to conversion,
// as reported live from chain for the auxiliary position account.
type BinBalance struct {
	Bin     int32
	Balance uint64
}

// PositionBinBalances is the per-bin balance breakdown for one auxiliary
// on-chain position, plus the total bin count the position spans.
type PositionBinBalances struct {
	Bins      []BinBalance
	TotalBins int
	Exists    bool
}

// UserBin is one bin's per-side amounts for the relay's user-bins
// endpoint.
type UserBin struct {
	Bin    int32
	AmountX uint64
	AmountY uint64
}

// Client is the conventional request-response RPC surface.
type Client interface {
	GetAccountInfo(ctx context.Context, pubkey solana.PublicKey) ([]byte, error)
	GetMultipleAccounts(ctx context.Context, pubkeys []solana.PublicKey) ([][]byte, error)
	// GetProgramAccounts enumerates accounts owned by owner whose data
	// matches discriminator at byte offset 0 and dataSize (0 = unconstrained).
	GetProgramAccounts(ctx context.Context, owner solana.PublicKey, discriminator []byte, dataSize uint64) ([]ProgramAccount, error)
	GetRecentPrioritizationFees(ctx context.Context, accounts []solana.PublicKey) ([]PriorityFeeSample, error)
	SendTransaction(ctx context.Context, raw []byte) (SubmitResult, error)
	GetSignatureStatus(ctx context.Context, sig solana.Signature) (confirmed bool, err error)
	GetLatestBlockhash(ctx context.Context) (solana.Hash, error)
	// Balance returns the lamport balance of pubkey, used for the signing
	// identity's balance-history sampling.
	Balance(ctx context.Context, pubkey solana.PublicKey) (uint64, error)
	// GetPositionBinBalances fetches per-bin balances for the position
	// whose account is aux; every caller passes the position account id.
	// Exists is false if the account no longer exists on chain (a stale
	// opportunity, spec.md §7).
	GetPositionBinBalances(ctx context.Context, aux solana.PublicKey) (PositionBinBalances, error)
	// GetUserBins fetches per-bin amounts for owner in pool, live from
	// chain, for the relay's user-bins endpoint.
	GetUserBins(ctx context.Context, pool, owner solana.PublicKey) ([]UserBin, int32, error)
}

// DefaultPingInterval and friends are exported so config wiring can
// reference the same defaults documented in spec.md §6 without
// duplicating magic numbers.
const (
	DefaultPingInterval = 10 * time.Second
	DefaultPingTimeout  = 30 * time.Second
)
