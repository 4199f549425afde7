// Package safebins implements the pure bin-range arithmetic shared by the
// subscriber's range-only filter and the executor's balance-aware filter:
// which bins of a position have fully converted and are safe to withdraw,
// and how a non-contiguous safe list is expanded to a withdrawable range.
package safebins

import "github.com/solharvest/dlmm-harvester/internal/decode"

// RangeOnly returns every bin in [minBin, maxBin] that is safe to withdraw
// given only the position's side and the pool's active bin — no balance
// data. A Sell position converts bins strictly below the active bin; a Buy
// position converts bins strictly above it. The active bin itself is never
// included.
func RangeOnly(side decode.Side, minBin, maxBin, activeBin int32) []int32 {
	var safe []int32
	switch side {
	case decode.SideSell:
		for b := minBin; b <= maxBin && b < activeBin; b++ {
			safe = append(safe, b)
		}
	case decode.SideBuy:
		start := activeBin + 1
		if start < minBin {
			start = minBin
		}
		for b := start; b <= maxBin; b++ {
			safe = append(safe, b)
		}
	}
	return safe
}

// BinBalance is one bin's balance on the side relevant to conversion
// (Y-side balance for Sell, X-side balance for Buy).
type BinBalance struct {
	Bin     int32
	Balance uint64
}

// BalanceAware returns every bin that satisfies the side/active-bin
// condition (as RangeOnly does) AND has a strictly positive balance on the
// relevant side. This is stricter than RangeOnly and catches bins that were
// already harvested in an earlier pass.
func BalanceAware(side decode.Side, activeBin int32, balances []BinBalance) []int32 {
	var safe []int32
	for _, bb := range balances {
		inRange := (side == decode.SideSell && bb.Bin < activeBin) ||
			(side == decode.SideBuy && bb.Bin > activeBin)
		if inRange && bb.Balance > 0 {
			safe = append(safe, bb.Bin)
		}
	}
	return safe
}

// Expand fills any gaps in a sorted-ascending, possibly non-contiguous bin
// list so it becomes the full contiguous [min, max] range. The on-chain
// program requires (max - min + 1) == count; zero-balance bins inside the
// range are safe to include because the program treats a zero delta as a
// no-op. Expand is idempotent: Expand(Expand(xs)) == Expand(xs).
func Expand(bins []int32) []int32 {
	if len(bins) == 0 {
		return nil
	}
	min, max := bins[0], bins[0]
	for _, b := range bins {
		if b < min {
			min = b
		}
		if b > max {
			max = b
		}
	}
	out := make([]int32, 0, max-min+1)
	for b := min; b <= max; b++ {
		out = append(out, b)
	}
	return out
}

// FillPercent computes filled_bins / total_bins * 100 using the same
// side/active-bin rule as safe-bin detection, for the relay's positions
// endpoint.
func FillPercent(side decode.Side, minBin, maxBin, activeBin int32) float64 {
	total := maxBin - minBin + 1
	if total <= 0 {
		return 0
	}
	filled := int32(len(RangeOnly(side, minBin, maxBin, activeBin)))
	return float64(filled) / float64(total) * 100
}
