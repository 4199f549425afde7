package solanarpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/solharvest/dlmm-harvester/internal/decode"
	"github.com/solharvest/dlmm-harvester/internal/keeper"
)

// Signer is the minimal authority-signing surface Chain needs; satisfied
// by executor.PrivateKeySigner without importing the executor package.
type Signer interface {
	PublicKey() solana.PublicKey
	SignTransaction(raw []byte) ([]byte, error)
}

// chainEnvelope is the sequencer-side counterpart of executor's
// instructionEnvelope: a JSON placeholder for an authority-signed CPI into
// the pool/position program, whose real instruction encoding is out of
// scope (spec.md §1). Every Chain method below that submits a
// transaction, the unwrap and sweep operations included, builds one of
// these and hands it to signer.SignTransaction the same way the executor
// does.
type chainEnvelope struct {
	Kind                     string
	Pool                     solana.PublicKey `json:",omitempty"`
	Mint                     solana.PublicKey `json:",omitempty"`
	Amount                   uint64           `json:",omitempty"`
	Account                  solana.PublicKey `json:",omitempty"`
	PriorityFeeMicroLamports uint64           `json:",omitempty"`
}

func (e chainEnvelope) marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Chain implements keeper.Chain against a live cluster: the authority
// account is the configured Signer, and distribution/vault/revenue
// accounts are derived associated-token-accounts of that authority, the
// standard SPL pattern for a program-owned wallet with no custom PDA
// bookkeeping of its own.
type Chain struct {
	client *Client
	signer Signer

	positionProgram  solana.PublicKey
	poolProgram      solana.PublicKey
	nativeMint       solana.PublicKey
	revenueWallet    solana.PublicKey
	rentExemptMin    uint64
	priorityFeeFloor uint64
}

// ChainConfig is the set of program/account ids Chain needs beyond the
// RPC endpoint and signer.
type ChainConfig struct {
	PositionProgram  solana.PublicKey
	PoolProgram      solana.PublicKey
	NativeMint       solana.PublicKey // wrapped native mint, e.g. So1111...1112
	RevenueWallet    solana.PublicKey
	RentExemptMin    uint64
	PriorityFeeFloor uint64
}

func NewChain(client *Client, signer Signer, cfg ChainConfig) *Chain {
	return &Chain{
		client:           client,
		signer:           signer,
		positionProgram:  cfg.PositionProgram,
		poolProgram:      cfg.PoolProgram,
		nativeMint:       cfg.NativeMint,
		revenueWallet:    cfg.RevenueWallet,
		rentExemptMin:    cfg.RentExemptMin,
		priorityFeeFloor: cfg.PriorityFeeFloor,
	}
}

// RefreshPriorityFee samples recent priority fees against the position
// program and takes the median, floored at priorityFeeFloor — the same
// sample-median-floor algorithm executor.computePriorityFee uses per job,
// run once per processing-path sequence instead.
func (c *Chain) RefreshPriorityFee(ctx context.Context) (uint64, error) {
	samples, err := c.client.GetRecentPrioritizationFees(ctx, []solana.PublicKey{c.positionProgram})
	if err != nil || len(samples) == 0 {
		return c.priorityFeeFloor, err
	}

	fees := make([]uint64, len(samples))
	for i, s := range samples {
		fees[i] = s.PrioritizationFee
	}
	sort.Slice(fees, func(i, j int) bool { return fees[i] < fees[j] })
	median := fees[len(fees)/2]

	if median < c.priorityFeeFloor {
		return c.priorityFeeFloor, nil
	}
	return median, nil
}

func (c *Chain) submit(ctx context.Context, env chainEnvelope) error {
	raw, err := env.marshal()
	if err != nil {
		return fmt.Errorf("solanarpc: marshal %s envelope: %w", env.Kind, err)
	}
	signed, err := c.signer.SignTransaction(raw)
	if err != nil {
		return fmt.Errorf("solanarpc: sign %s: %w", env.Kind, err)
	}
	if _, err := c.client.SendTransaction(ctx, signed); err != nil {
		return fmt.Errorf("solanarpc: submit %s: %w", env.Kind, err)
	}
	return nil
}

func (c *Chain) wrappedNativeAccount() solana.PublicKey {
	ata, _, err := solana.FindAssociatedTokenAddress(c.signer.PublicKey(), c.nativeMint)
	if err != nil {
		return solana.PublicKey{}
	}
	return ata
}

func (c *Chain) WrappedNativeBalance(ctx context.Context) (uint64, bool, error) {
	data, err := c.client.GetAccountInfo(ctx, c.wrappedNativeAccount())
	if err != nil {
		return 0, false, err
	}
	if data == nil {
		return 0, false, nil
	}
	bal, err := c.client.Balance(ctx, c.wrappedNativeAccount())
	if err != nil {
		return 0, false, err
	}
	return bal, true, nil
}

func (c *Chain) UnwrapNative(ctx context.Context, feeMicroLamports uint64) error {
	return c.submit(ctx, chainEnvelope{Kind: "unwrap_native", Account: c.wrappedNativeAccount(), PriorityFeeMicroLamports: feeMicroLamports})
}

func (c *Chain) ClaimPoolFees(ctx context.Context, pool solana.PublicKey, feeMicroLamports uint64) error {
	return c.submit(ctx, chainEnvelope{Kind: "claim_pool_fees", Pool: pool, PriorityFeeMicroLamports: feeMicroLamports})
}

func (c *Chain) Sweep(ctx context.Context, feeMicroLamports uint64) error {
	bal, err := c.client.Balance(ctx, c.signer.PublicKey())
	if err != nil {
		return err
	}
	if bal <= c.rentExemptMin {
		return keeper.ErrNothingToSweep
	}
	return c.submit(ctx, chainEnvelope{Kind: "sweep", Account: c.revenueWallet, Amount: bal - c.rentExemptMin, PriorityFeeMicroLamports: feeMicroLamports})
}

func (c *Chain) TokenBalances(ctx context.Context) (map[solana.PublicKey]uint64, error) {
	out, err := c.client.rpc.GetTokenAccountsByOwner(ctx, c.signer.PublicKey(),
		&rpc.GetTokenAccountsConfig{ProgramId: &token.ProgramID},
		&rpc.GetTokenAccountsOpts{Encoding: solana.EncodingJSONParsed, Commitment: rpc.CommitmentConfirmed})
	if err != nil {
		return nil, fmt.Errorf("solanarpc: get token accounts by owner: %w", err)
	}

	balances := make(map[solana.PublicKey]uint64)
	for _, acc := range out.Value {
		mint, amount, err := parseTokenAccountAmount(acc.Account.Data.GetRawJSON())
		if err != nil || amount == 0 {
			continue
		}
		balances[mint] += amount
	}
	return balances, nil
}

// parsedTokenAccount is the subset of the jsonParsed token-account
// encoding this daemon reads.
type parsedTokenAccount struct {
	Parsed struct {
		Info struct {
			Mint        string `json:"mint"`
			TokenAmount struct {
				Amount string `json:"amount"`
			} `json:"tokenAmount"`
		} `json:"info"`
	} `json:"parsed"`
}

func parseTokenAccountAmount(raw []byte) (solana.PublicKey, uint64, error) {
	var parsed parsedTokenAccount
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("solanarpc: parse token account: %w", err)
	}
	mint, err := solana.PublicKeyFromBase58(parsed.Parsed.Info.Mint)
	if err != nil {
		return solana.PublicKey{}, 0, err
	}
	var amount uint64
	if _, err := fmt.Sscanf(parsed.Parsed.Info.TokenAmount.Amount, "%d", &amount); err != nil {
		return solana.PublicKey{}, 0, err
	}
	return mint, amount, nil
}

func (c *Chain) FetchPoolInfo(ctx context.Context, pool solana.PublicKey) (decode.PoolInfo, error) {
	data, err := c.client.GetAccountInfo(ctx, pool)
	if err != nil {
		return decode.PoolInfo{}, err
	}
	if data == nil {
		return decode.PoolInfo{}, fmt.Errorf("solanarpc: pool %s not found", pool)
	}
	return decode.DecodePoolInfo(data)
}

func (c *Chain) EnumeratePositionPools(ctx context.Context) ([]solana.PublicKey, error) {
	accounts, err := c.client.GetProgramAccounts(ctx, c.positionProgram, nil, uint64(decode.PositionMinSize))
	if err != nil {
		return nil, err
	}

	seen := make(map[solana.PublicKey]struct{})
	var pools []solana.PublicKey
	for _, acc := range accounts {
		pos, err := decode.DecodePosition(acc.Data)
		if err != nil {
			continue
		}
		if pos.Owner != c.signer.PublicKey() {
			continue
		}
		if _, ok := seen[pos.Pool]; ok {
			continue
		}
		seen[pos.Pool] = struct{}{}
		pools = append(pools, pos.Pool)
	}
	return pools, nil
}

func (c *Chain) OpenRecyclePosition(ctx context.Context, pool, mint solana.PublicKey, amount uint64, feeMicroLamports uint64) error {
	return c.submit(ctx, chainEnvelope{Kind: "open_recycle_position", Pool: pool, Mint: mint, Amount: amount, PriorityFeeMicroLamports: feeMicroLamports})
}

func (c *Chain) Deposit(ctx context.Context, feeMicroLamports uint64) error {
	residual, err := c.DistributionPoolResidual(ctx)
	if err != nil {
		return err
	}
	if residual == 0 {
		return keeper.ErrNothingToDeposit
	}
	return c.submit(ctx, chainEnvelope{Kind: "deposit", Amount: residual, PriorityFeeMicroLamports: feeMicroLamports})
}

func (c *Chain) DistributionPoolResidual(ctx context.Context) (uint64, error) {
	bal, err := c.client.Balance(ctx, c.wrappedNativeAccount())
	if err != nil {
		return 0, err
	}
	if bal <= c.rentExemptMin {
		return 0, nil
	}
	return bal - c.rentExemptMin, nil
}

func (c *Chain) RecyclePositions(ctx context.Context) ([]keeper.RecyclePosition, error) {
	accounts, err := c.client.GetProgramAccounts(ctx, c.positionProgram, nil, uint64(decode.PositionMinSize))
	if err != nil {
		return nil, err
	}

	var positions []keeper.RecyclePosition
	for _, acc := range accounts {
		pos, err := decode.DecodePosition(acc.Data)
		if err != nil || pos.Owner != c.signer.PublicKey() {
			continue
		}
		balances, err := c.client.GetPositionBinBalances(ctx, acc.Pubkey)
		if err != nil {
			continue
		}
		allZero := true
		for _, b := range balances.Bins {
			if b.Balance != 0 {
				allZero = false
				break
			}
		}
		positions = append(positions, keeper.RecyclePosition{ID: acc.Pubkey, Pool: pos.Pool, AllZero: allZero})
	}
	return positions, nil
}

func (c *Chain) CloseRecyclePosition(ctx context.Context, id solana.PublicKey, feeMicroLamports uint64) error {
	return c.submit(ctx, chainEnvelope{Kind: "close_recycle_position", Account: id, PriorityFeeMicroLamports: feeMicroLamports})
}
