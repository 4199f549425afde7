package executor

import (
	"context"

	"github.com/cenkalti/backoff/v4"
)

// submitWithRetry wraps submission in a retry loop with up to
// cfg.RetryAttempts attempts and exponential delay from cfg.RetryBase
// (three attempts with waits of about 1s then 2s between them at the
// defaults; backoff's default ±50% randomization applies to each wait).
// Each attempt re-sends the same raw bytes;
// it never re-reads chain state. The final failure is not re-enqueued —
// the subscriber's next active-bin change or the safety poll will
// eventually re-trigger it.
func (e *Executor) submitWithRetry(ctx context.Context, raw []byte) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.cfg.RetryBase
	bo.Multiplier = 2
	bo.MaxElapsedTime = 0

	bounded := backoff.WithMaxRetries(bo, uint64(e.cfg.RetryAttempts-1))
	return backoff.Retry(func() error {
		_, err := e.client.SendTransaction(ctx, raw)
		return err
	}, backoff.WithContext(bounded, ctx))
}
