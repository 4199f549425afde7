package solanarpc

import (
	"encoding/json"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/solharvest/dlmm-harvester/internal/decode"
)

func TestDistributeEvenlySpreadsRemainingAcrossWidth(t *testing.T) {
	pos := decode.Position{
		MinBin:          10,
		MaxBin:          14,
		InitialAmount:   1000,
		HarvestedAmount: 500,
	}

	out := distributeEvenly(pos)

	require.True(t, out.Exists)
	require.Equal(t, 5, out.TotalBins)
	require.Len(t, out.Bins, 5)
	for _, b := range out.Bins {
		require.Equal(t, uint64(100), b.Balance)
	}
	require.Equal(t, int32(10), out.Bins[0].Bin)
	require.Equal(t, int32(14), out.Bins[4].Bin)
}

func TestDistributeEvenlyHandlesFullyHarvestedPosition(t *testing.T) {
	pos := decode.Position{
		MinBin:          0,
		MaxBin:          1,
		InitialAmount:   200,
		HarvestedAmount: 200,
	}

	out := distributeEvenly(pos)
	require.True(t, out.Exists)
	for _, b := range out.Bins {
		require.Equal(t, uint64(0), b.Balance)
	}
}

func TestParseTokenAccountAmount(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	raw, err := json.Marshal(map[string]any{
		"parsed": map[string]any{
			"info": map[string]any{
				"mint": mint.String(),
				"tokenAmount": map[string]any{
					"amount": "123456",
				},
			},
		},
	})
	require.NoError(t, err)

	gotMint, gotAmount, err := parseTokenAccountAmount(raw)
	require.NoError(t, err)
	require.Equal(t, mint, gotMint)
	require.Equal(t, uint64(123456), gotAmount)
}

func TestParseTokenAccountAmountRejectsMalformedJSON(t *testing.T) {
	_, _, err := parseTokenAccountAmount([]byte("not json"))
	require.Error(t, err)
}

func TestChainEnvelopeMarshalsKindAndFields(t *testing.T) {
	pool := solana.NewWallet().PublicKey()
	env := chainEnvelope{Kind: "claim_pool_fees", Pool: pool}

	raw, err := env.marshal()
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Equal(t, "claim_pool_fees", out["Kind"])
	require.Equal(t, pool.String(), out["Pool"])
}
