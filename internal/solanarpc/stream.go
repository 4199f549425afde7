package solanarpc

import (
	"context"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"

	"github.com/solharvest/dlmm-harvester/internal/rpcx"
)

// Stream wraps a *ws.Client to satisfy rpcx.Stream. Subscribe fans every
// per-group subscription into one channel; Ping is implemented as a
// GetSlot round-trip on the underlying RPC client rather than a true
// protocol-level ping, since the account-update websocket itself carries
// no ping frame the program understands — the update channel's IsPong
// marker is synthesized here once the round-trip completes.
type Stream struct {
	endpoint string

	mu     sync.Mutex
	conn   *ws.Client
	cancel context.CancelFunc
	out    chan rpcx.AccountUpdate
	pumps  sync.WaitGroup
}

// NewStream dials endpoint lazily on the first Subscribe call.
func NewStream(endpoint string) *Stream {
	return &Stream{endpoint: endpoint}
}

func (s *Stream) Subscribe(ctx context.Context, groups []rpcx.FilterGroup) (<-chan rpcx.AccountUpdate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	if s.conn != nil {
		s.conn.Close()
	}

	conn, err := ws.Connect(ctx, s.endpoint)
	if err != nil {
		return nil, fmt.Errorf("solanarpc: connect stream: %w", err)
	}
	s.conn = conn

	subCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	out := make(chan rpcx.AccountUpdate, 256)
	for _, g := range groups {
		if len(g.Accounts) > 0 {
			for _, acct := range g.Accounts {
				sub, err := conn.AccountSubscribeWithOpts(acct, rpc.CommitmentConfirmed, solana.EncodingBase64)
				if err != nil {
					cancel()
					return nil, fmt.Errorf("solanarpc: account subscribe %s: %w", acct, err)
				}
				s.pumps.Add(1)
				go func() {
					defer s.pumps.Done()
					pumpAccountSub(subCtx, sub, out)
				}()
			}
			continue
		}

		sub, err := conn.ProgramSubscribeWithOpts(g.Owner, rpc.CommitmentConfirmed, solana.EncodingBase64, nil)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("solanarpc: program subscribe %s: %w", g.Owner, err)
		}
		s.pumps.Add(1)
		go func() {
			defer s.pumps.Done()
			pumpProgramSub(subCtx, sub, out)
		}()
	}

	s.out = out
	return out, nil
}

func pumpAccountSub(ctx context.Context, sub *ws.AccountSubscription, out chan<- rpcx.AccountUpdate) {
	defer sub.Unsubscribe()
	for {
		got, err := sub.Recv(ctx)
		if err != nil {
			return
		}
		update := rpcx.AccountUpdate{
			Pubkey: got.Value.Pubkey,
			Data:   got.Value.Account.Data.GetBinary(),
		}
		select {
		case out <- update:
		case <-ctx.Done():
			return
		}
	}
}

func pumpProgramSub(ctx context.Context, sub *ws.ProgramSubscription, out chan<- rpcx.AccountUpdate) {
	defer sub.Unsubscribe()
	for {
		got, err := sub.Recv(ctx)
		if err != nil {
			return
		}
		update := rpcx.AccountUpdate{
			Pubkey: got.Value.Pubkey,
			Data:   got.Value.Account.Data.GetBinary(),
		}
		select {
		case out <- update:
		case <-ctx.Done():
			return
		}
	}
}

// Ping round-trips GetSlot against the RPC endpoint — a liveness check
// cheap enough to run on the configured interval without perturbing the
// account-update subscriptions themselves — then synthesizes the pong
// update rpcx.Stream's contract expects on the channel Subscribe returned.
func (s *Stream) Ping(ctx context.Context, id uint64) error {
	client := rpc.New(s.endpoint)
	if _, err := client.GetSlot(ctx, rpc.CommitmentConfirmed); err != nil {
		return fmt.Errorf("solanarpc: ping: %w", err)
	}

	s.mu.Lock()
	out := s.out
	s.mu.Unlock()
	if out != nil {
		select {
		case out <- rpcx.AccountUpdate{IsPong: true, PingID: id}:
		case <-ctx.Done():
		}
	}
	return nil
}

// Close tears down the current subscription and closes the channel
// Subscribe returned, so a caller (the subscriber's consumeLoop) observes
// it the same way it observes an upstream-initiated disconnect.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	out := s.out
	s.out = nil
	s.mu.Unlock()

	// Pump goroutines exit once subCtx is cancelled; wait for them before
	// closing out so none can send on it past that point.
	s.pumps.Wait()
	if out != nil {
		close(out)
	}
	return nil
}
