// Package keepertest provides an in-memory fake of keeper.Chain for
// deterministic sequencer tests.
package keepertest

import (
	"context"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/solharvest/dlmm-harvester/internal/decode"
	"github.com/solharvest/dlmm-harvester/internal/keeper"
)

// FakeChain is a programmable keeper.Chain.
type FakeChain struct {
	mu sync.Mutex

	PriorityFee    uint64
	PriorityFeeErr error

	WrappedBalance uint64
	WrappedExists  bool
	UnwrapErr      error

	ClaimErr   map[solana.PublicKey]error
	ClaimCalls []solana.PublicKey

	SweepErr error

	Balances map[solana.PublicKey]uint64
	PoolInfos map[solana.PublicKey]decode.PoolInfo
	Pools     []solana.PublicKey

	OpenRecycleCalls []OpenRecycleCall
	OpenRecycleErr   error

	DepositErr   error
	DepositCalls int
	Residual     uint64

	Positions        []keeper.RecyclePosition
	CloseCalls       []solana.PublicKey
	CloseErr         error
}

type OpenRecycleCall struct {
	Pool   solana.PublicKey
	Mint   solana.PublicKey
	Amount uint64
}

func NewFakeChain() *FakeChain {
	return &FakeChain{
		ClaimErr:  make(map[solana.PublicKey]error),
		Balances:  make(map[solana.PublicKey]uint64),
		PoolInfos: make(map[solana.PublicKey]decode.PoolInfo),
	}
}

func (f *FakeChain) RefreshPriorityFee(_ context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.PriorityFee, f.PriorityFeeErr
}

func (f *FakeChain) WrappedNativeBalance(_ context.Context) (uint64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.WrappedBalance, f.WrappedExists, nil
}

func (f *FakeChain) UnwrapNative(_ context.Context, _ uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.UnwrapErr
}

func (f *FakeChain) ClaimPoolFees(_ context.Context, pool solana.PublicKey, _ uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ClaimCalls = append(f.ClaimCalls, pool)
	return f.ClaimErr[pool]
}

func (f *FakeChain) Sweep(_ context.Context, _ uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.SweepErr
}

func (f *FakeChain) TokenBalances(_ context.Context) (map[solana.PublicKey]uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Balances, nil
}

func (f *FakeChain) FetchPoolInfo(_ context.Context, pool solana.PublicKey) (decode.PoolInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.PoolInfos[pool], nil
}

func (f *FakeChain) EnumeratePositionPools(_ context.Context) ([]solana.PublicKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Pools, nil
}

func (f *FakeChain) OpenRecyclePosition(_ context.Context, pool, mint solana.PublicKey, amount uint64, _ uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.OpenRecycleCalls = append(f.OpenRecycleCalls, OpenRecycleCall{Pool: pool, Mint: mint, Amount: amount})
	return f.OpenRecycleErr
}

func (f *FakeChain) Deposit(_ context.Context, _ uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DepositCalls++
	return f.DepositErr
}

func (f *FakeChain) DistributionPoolResidual(_ context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Residual, nil
}

func (f *FakeChain) RecyclePositions(_ context.Context) ([]keeper.RecyclePosition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Positions, nil
}

func (f *FakeChain) CloseRecyclePosition(_ context.Context, id solana.PublicKey, _ uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CloseCalls = append(f.CloseCalls, id)
	return f.CloseErr
}
