// Package rpcxtest provides in-memory fakes of rpcx.Client and rpcx.Stream
// for deterministic tests of the subscriber, executor, orchestrator, and
// relay.
package rpcxtest

import (
	"context"
	"errors"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/solharvest/dlmm-harvester/internal/rpcx"
)

// FakeClient is a programmable rpcx.Client.
type FakeClient struct {
	mu sync.Mutex

	Accounts   map[solana.PublicKey][]byte
	ProgramAccounts []rpcx.ProgramAccount
	Fees       []rpcx.PriorityFeeSample
	Balances   map[solana.PublicKey]uint64
	Blockhash  solana.Hash

	SendErr    error
	SentRaw    [][]byte
	StatusesOK map[solana.Signature]bool

	BinBalances map[solana.PublicKey]rpcx.PositionBinBalances
	UserBinsByPoolOwner map[solana.PublicKey][]rpcx.UserBin
	UserBinsActiveBin   int32
}

func NewFakeClient() *FakeClient {
	return &FakeClient{
		Accounts:    make(map[solana.PublicKey][]byte),
		Balances:    make(map[solana.PublicKey]uint64),
		StatusesOK:  make(map[solana.Signature]bool),
		BinBalances: make(map[solana.PublicKey]rpcx.PositionBinBalances),
		UserBinsByPoolOwner: make(map[solana.PublicKey][]rpcx.UserBin),
	}
}

func (f *FakeClient) GetAccountInfo(_ context.Context, pubkey solana.PublicKey) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.Accounts[pubkey]
	if !ok {
		return nil, nil
	}
	return data, nil
}

func (f *FakeClient) GetMultipleAccounts(_ context.Context, pubkeys []solana.PublicKey) ([][]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(pubkeys))
	for i, pk := range pubkeys {
		out[i] = f.Accounts[pk]
	}
	return out, nil
}

func (f *FakeClient) GetProgramAccounts(_ context.Context, _ solana.PublicKey, _ []byte, _ uint64) ([]rpcx.ProgramAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ProgramAccounts, nil
}

func (f *FakeClient) GetRecentPrioritizationFees(_ context.Context, _ []solana.PublicKey) ([]rpcx.PriorityFeeSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Fees, nil
}

func (f *FakeClient) SendTransaction(_ context.Context, raw []byte) (rpcx.SubmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SentRaw = append(f.SentRaw, raw)
	if f.SendErr != nil {
		return rpcx.SubmitResult{}, f.SendErr
	}
	var sig solana.Signature
	return rpcx.SubmitResult{Signature: sig}, nil
}

func (f *FakeClient) GetSignatureStatus(_ context.Context, sig solana.Signature) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.StatusesOK[sig], nil
}

func (f *FakeClient) GetLatestBlockhash(_ context.Context) (solana.Hash, error) {
	return f.Blockhash, nil
}

func (f *FakeClient) Balance(_ context.Context, pubkey solana.PublicKey) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Balances[pubkey], nil
}

func (f *FakeClient) GetPositionBinBalances(_ context.Context, aux solana.PublicKey) (rpcx.PositionBinBalances, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bb, ok := f.BinBalances[aux]
	if !ok {
		return rpcx.PositionBinBalances{Exists: false}, nil
	}
	return bb, nil
}

func (f *FakeClient) GetUserBins(_ context.Context, pool, _ solana.PublicKey) ([]rpcx.UserBin, int32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.UserBinsByPoolOwner[pool], f.UserBinsActiveBin, nil
}

// ErrFakeSend is a canned error FakeClient.SendErr can be set to.
var ErrFakeSend = errors.New("fake send failure")

// FakeStream is a programmable rpcx.Stream driven entirely by test code
// pushing into Updates.
type FakeStream struct {
	mu      sync.Mutex
	Updates chan rpcx.AccountUpdate
	closed  bool

	LastGroups []rpcx.FilterGroup
	PingErr    error
}

func NewFakeStream() *FakeStream {
	return &FakeStream{Updates: make(chan rpcx.AccountUpdate, 64)}
}

func (f *FakeStream) Subscribe(_ context.Context, groups []rpcx.FilterGroup) (<-chan rpcx.AccountUpdate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.LastGroups = groups
	return f.Updates, nil
}

func (f *FakeStream) Ping(_ context.Context, id uint64) error {
	if f.PingErr != nil {
		return f.PingErr
	}
	f.Updates <- rpcx.AccountUpdate{IsPong: true, PingID: id}
	return nil
}

func (f *FakeStream) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		close(f.Updates)
		f.closed = true
	}
	return nil
}
