package executor

import (
	"context"
	"sort"

	"github.com/gagliardetto/solana-go"
)

// computePriorityFee samples recent priority fees for accounts, takes the
// median, and floors it at cfg.PriorityFeeFloor. If the query fails, the
// floor is returned along with the error so callers can log and proceed —
// a priority-fee query failure is never fatal to the job.
func (e *Executor) computePriorityFee(ctx context.Context, accounts []solana.PublicKey) (uint64, error) {
	samples, err := e.client.GetRecentPrioritizationFees(ctx, accounts)
	if err != nil || len(samples) == 0 {
		return e.cfg.PriorityFeeFloor, err
	}

	fees := make([]uint64, len(samples))
	for i, s := range samples {
		fees[i] = s.PrioritizationFee
	}
	sort.Slice(fees, func(i, j int) bool { return fees[i] < fees[j] })
	median := fees[len(fees)/2]

	if median < e.cfg.PriorityFeeFloor {
		return e.cfg.PriorityFeeFloor, nil
	}
	return median, nil
}
