package safebins

import (
	"testing"

	"github.com/solharvest/dlmm-harvester/internal/decode"
	"github.com/stretchr/testify/require"
)

func TestRangeOnlySellNeverIncludesActive(t *testing.T) {
	safe := RangeOnly(decode.SideSell, 95, 104, 100)
	require.Equal(t, []int32{95, 96, 97, 98, 99}, safe)
	for _, b := range safe {
		require.Less(t, b, int32(100))
	}
}

func TestRangeOnlyBuyNeverIncludesActive(t *testing.T) {
	safe := RangeOnly(decode.SideBuy, 95, 104, 100)
	require.Equal(t, []int32{101, 102, 103, 104}, safe)
	for _, b := range safe {
		require.Greater(t, b, int32(100))
	}
}

func TestRangeOnlyActiveAtMinBinSellHasNoSafeBins(t *testing.T) {
	require.Empty(t, RangeOnly(decode.SideSell, 100, 110, 100))
}

func TestRangeOnlyActiveAtMaxBinBuyHasNoSafeBins(t *testing.T) {
	require.Empty(t, RangeOnly(decode.SideBuy, 90, 100, 100))
}

func TestRangeOnlyNegativeBins(t *testing.T) {
	safe := RangeOnly(decode.SideSell, -10, -1, -5)
	require.Equal(t, []int32{-10, -9, -8, -7, -6}, safe)
}

func TestBalanceAwareFiltersZeroBalances(t *testing.T) {
	balances := []BinBalance{
		{Bin: 95, Balance: 0},
		{Bin: 96, Balance: 1000},
		{Bin: 97, Balance: 500},
		{Bin: 98, Balance: 0},
		{Bin: 99, Balance: 800},
	}
	safe := BalanceAware(decode.SideSell, 100, balances)
	require.Equal(t, []int32{96, 97, 99}, safe)
}

func TestExpandFillsGaps(t *testing.T) {
	require.Equal(t, []int32{96, 97, 98, 99}, Expand([]int32{96, 97, 99}))
}

func TestExpandIdempotent(t *testing.T) {
	xs := []int32{96, 97, 99}
	once := Expand(xs)
	twice := Expand(once)
	require.Equal(t, once, twice)
}

func TestExpandContiguousIsIdentity(t *testing.T) {
	xs := []int32{5, 6, 7}
	require.Equal(t, xs, Expand(xs))
}

func TestExpandEmpty(t *testing.T) {
	require.Nil(t, Expand(nil))
}

func TestFillPercent(t *testing.T) {
	pct := FillPercent(decode.SideSell, 95, 104, 100)
	require.InDelta(t, 50.0, pct, 0.001)
}
