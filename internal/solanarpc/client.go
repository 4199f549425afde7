// Package solanarpc is the only package in this module that talks to a
// live Solana cluster: it implements rpcx.Client and rpcx.Stream against
// gagliardetto/solana-go's rpc and ws packages, the way the rest of the
// daemon's interfaces are meant to be backed in production while tests
// use rpcx/rpcxtest instead.
package solanarpc

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/solharvest/dlmm-harvester/internal/decode"
	"github.com/solharvest/dlmm-harvester/internal/rpcx"
)

// Client wraps a *rpc.Client to satisfy rpcx.Client.
type Client struct {
	rpc             *rpc.Client
	positionProgram solana.PublicKey
}

// NewClient dials endpoint with the standard confirmed commitment used
// throughout this daemon's read path; callers needing finalized reads
// should use a dedicated second Client. positionProgram is used only by
// GetUserBins to enumerate a user's position accounts against a pool.
func NewClient(endpoint string, positionProgram solana.PublicKey) *Client {
	return &Client{rpc: rpc.New(endpoint), positionProgram: positionProgram}
}

func (c *Client) GetAccountInfo(ctx context.Context, pubkey solana.PublicKey) ([]byte, error) {
	out, err := c.rpc.GetAccountInfoWithOpts(ctx, pubkey, &rpc.GetAccountInfoOpts{
		Commitment: rpc.CommitmentConfirmed,
		Encoding:   solana.EncodingBase64,
	})
	if err != nil {
		if err == rpc.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("solanarpc: get account info %s: %w", pubkey, err)
	}
	if out == nil || out.Value == nil {
		return nil, nil
	}
	return out.Value.Data.GetBinary(), nil
}

func (c *Client) GetMultipleAccounts(ctx context.Context, pubkeys []solana.PublicKey) ([][]byte, error) {
	out, err := c.rpc.GetMultipleAccountsWithOpts(ctx, pubkeys, &rpc.GetMultipleAccountsOpts{
		Commitment: rpc.CommitmentConfirmed,
		Encoding:   solana.EncodingBase64,
	})
	if err != nil {
		return nil, fmt.Errorf("solanarpc: get multiple accounts: %w", err)
	}
	result := make([][]byte, len(pubkeys))
	for i, acc := range out.Value {
		if acc == nil {
			continue
		}
		result[i] = acc.Data.GetBinary()
	}
	return result, nil
}

func (c *Client) GetProgramAccounts(ctx context.Context, owner solana.PublicKey, discriminator []byte, dataSize uint64) ([]rpcx.ProgramAccount, error) {
	var filters []rpc.RPCFilter
	if len(discriminator) > 0 {
		filters = append(filters, rpc.RPCFilter{
			Memcmp: &rpc.RPCFilterMemcmp{Offset: 0, Bytes: discriminator},
		})
	}
	if dataSize > 0 {
		filters = append(filters, rpc.RPCFilter{DataSize: dataSize})
	}

	out, err := c.rpc.GetProgramAccountsWithOpts(ctx, owner, &rpc.GetProgramAccountsOpts{
		Commitment: rpc.CommitmentConfirmed,
		Encoding:   solana.EncodingBase64,
		Filters:    filters,
	})
	if err != nil {
		return nil, fmt.Errorf("solanarpc: get program accounts for %s: %w", owner, err)
	}

	accounts := make([]rpcx.ProgramAccount, 0, len(out))
	for _, kv := range out {
		accounts = append(accounts, rpcx.ProgramAccount{
			Pubkey: kv.Pubkey,
			Data:   kv.Account.Data.GetBinary(),
		})
	}
	return accounts, nil
}

func (c *Client) GetRecentPrioritizationFees(ctx context.Context, accounts []solana.PublicKey) ([]rpcx.PriorityFeeSample, error) {
	out, err := c.rpc.GetRecentPrioritizationFees(ctx, accounts)
	if err != nil {
		return nil, fmt.Errorf("solanarpc: get recent prioritization fees: %w", err)
	}
	samples := make([]rpcx.PriorityFeeSample, 0, len(out))
	for _, s := range out {
		samples = append(samples, rpcx.PriorityFeeSample{
			Slot:              s.Slot,
			PrioritizationFee: s.PrioritizationFee,
		})
	}
	return samples, nil
}

// SendTransaction submits raw as an already-signed, base64-ready wire
// transaction. The daemon's own instruction/transaction encoding is out
// of scope (spec.md §1); this forwards whatever the executor's signer
// produced to the cluster unmodified, matching executor.buildTransaction's
// placeholder instructionEnvelope upstream of this call.
func (c *Client) SendTransaction(ctx context.Context, raw []byte) (rpcx.SubmitResult, error) {
	sig, err := c.rpc.SendEncodedTransactionWithOpts(ctx, base64.StdEncoding.EncodeToString(raw), rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return rpcx.SubmitResult{}, fmt.Errorf("solanarpc: send transaction: %w", err)
	}
	return rpcx.SubmitResult{Signature: sig}, nil
}

func (c *Client) GetSignatureStatus(ctx context.Context, sig solana.Signature) (bool, error) {
	out, err := c.rpc.GetSignatureStatuses(ctx, false, sig)
	if err != nil {
		return false, fmt.Errorf("solanarpc: get signature status %s: %w", sig, err)
	}
	if len(out.Value) == 0 || out.Value[0] == nil {
		return false, nil
	}
	status := out.Value[0]
	if status.Err != nil {
		return false, fmt.Errorf("solanarpc: transaction %s failed on-chain: %v", sig, status.Err)
	}
	return status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
		status.ConfirmationStatus == rpc.ConfirmationStatusFinalized, nil
}

func (c *Client) GetLatestBlockhash(ctx context.Context) (solana.Hash, error) {
	out, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("solanarpc: get latest blockhash: %w", err)
	}
	return out.Value.Blockhash, nil
}

func (c *Client) Balance(ctx context.Context, pubkey solana.PublicKey) (uint64, error) {
	out, err := c.rpc.GetBalance(ctx, pubkey, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, fmt.Errorf("solanarpc: get balance %s: %w", pubkey, err)
	}
	return out.Value, nil
}

// GetPositionBinBalances decodes the position-state account at aux (callers
// pass the position account id) and distributes its remaining amount
// (initial minus harvested) evenly across the position's bin range. The
// on-chain bin-array layout that holds true per-bin balances isn't part
// of this daemon's decoded surface (see decode package), so this is a
// deliberate approximation used by the executor's balance-aware safe-bin
// selection, which only needs to know a bin is non-zero; it is not used
// for the actual withdrawal instruction amounts, which the source program
// computes on-chain from the real per-bin state.
func (c *Client) GetPositionBinBalances(ctx context.Context, aux solana.PublicKey) (rpcx.PositionBinBalances, error) {
	data, err := c.GetAccountInfo(ctx, aux)
	if err != nil {
		return rpcx.PositionBinBalances{}, err
	}
	if data == nil {
		return rpcx.PositionBinBalances{Exists: false}, nil
	}
	pos, err := decode.DecodePosition(data)
	if err != nil {
		return rpcx.PositionBinBalances{}, fmt.Errorf("solanarpc: decode position %s: %w", aux, err)
	}
	return distributeEvenly(pos), nil
}

// distributeEvenly spreads a position's remaining (undistributed)
// balance evenly across its bin range. Split out from
// GetPositionBinBalances so the approximation can be unit tested without
// a live account fetch.
func distributeEvenly(pos decode.Position) rpcx.PositionBinBalances {
	remaining := pos.InitialAmount - pos.HarvestedAmount
	width := pos.Width()
	if width <= 0 {
		return rpcx.PositionBinBalances{Exists: true}
	}
	perBin := remaining / uint64(width)

	bins := make([]rpcx.BinBalance, 0, width)
	for b := pos.MinBin; b <= pos.MaxBin; b++ {
		bins = append(bins, rpcx.BinBalance{Bin: b, Balance: perBin})
	}
	return rpcx.PositionBinBalances{Bins: bins, TotalBins: int(width), Exists: true}
}

// GetUserBins reports owner's bins in pool, aggregated across every
// position account owner holds against pool, using the same
// distributeEvenly approximation GetPositionBinBalances applies to a
// single position. A sell-side position's remaining balance is reported
// as AmountX (the token it's converting away from) and a buy-side
// position's as AmountY, matching safebins' sell-below/buy-above-active
// convention.
func (c *Client) GetUserBins(ctx context.Context, pool, owner solana.PublicKey) ([]rpcx.UserBin, int32, error) {
	poolData, err := c.GetAccountInfo(ctx, pool)
	if err != nil {
		return nil, 0, err
	}
	if poolData == nil {
		return nil, 0, fmt.Errorf("solanarpc: pool %s not found", pool)
	}
	poolInfo, err := decode.DecodePoolInfo(poolData)
	if err != nil {
		return nil, 0, fmt.Errorf("solanarpc: decode pool %s: %w", pool, err)
	}

	accounts, err := c.GetProgramAccounts(ctx, c.positionProgram, nil, uint64(decode.PositionMinSize))
	if err != nil {
		return nil, 0, fmt.Errorf("solanarpc: enumerate positions for pool %s: %w", pool, err)
	}

	type amounts struct{ x, y uint64 }
	perBin := make(map[int32]amounts)
	for _, acc := range accounts {
		pos, err := decode.DecodePosition(acc.Data)
		if err != nil || pos.Owner != owner || pos.Pool != pool {
			continue
		}
		for _, bb := range distributeEvenly(pos).Bins {
			a := perBin[bb.Bin]
			if pos.Side == decode.SideBuy {
				a.y += bb.Balance
			} else {
				a.x += bb.Balance
			}
			perBin[bb.Bin] = a
		}
	}

	userBins := make([]rpcx.UserBin, 0, len(perBin))
	for bin, a := range perBin {
		userBins = append(userBins, rpcx.UserBin{Bin: bin, AmountX: a.x, AmountY: a.y})
	}
	return userBins, poolInfo.ActiveID, nil
}
