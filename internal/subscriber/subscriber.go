// Package subscriber maintains a long-lived push subscription to account
// updates, keeps the position registry in sync, and emits the domain
// events the executor and relay consume. It is the daemon's only writer of
// internal/registry.
package subscriber

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/solharvest/dlmm-harvester/internal/decode"
	"github.com/solharvest/dlmm-harvester/internal/events"
	"github.com/solharvest/dlmm-harvester/internal/registry"
	"github.com/solharvest/dlmm-harvester/internal/rpcx"
)

// Config holds the tunables from spec.md §6 relevant to the subscriber.
type Config struct {
	PositionProgram  solana.PublicKey
	PoolProgram      solana.PublicKey
	PoolAccountSize  uint64
	CacheFilePath    string
	MinPositionBins  int32
	MinInitialAmount uint64

	PingInterval     time.Duration
	PingTimeout      time.Duration
	ReconnectBase    time.Duration
	ReconnectMax     time.Duration
	SafetyPollEvery  time.Duration
	SafetyPollDelay  time.Duration
}

// DefaultConfig returns the tunables at their spec.md §6 defaults.
func DefaultConfig() Config {
	return Config{
		PoolAccountSize:  0,
		MinPositionBins:  2,
		MinInitialAmount: 100_000_000, // 0.1 native unit at 9 decimals
		PingInterval:     10 * time.Second,
		PingTimeout:      30 * time.Second,
		ReconnectBase:    time.Second,
		ReconnectMax:     60 * time.Second,
		SafetyPollEvery:  5 * time.Minute,
		SafetyPollDelay:  200 * time.Millisecond,
	}
}

// EnqueueFunc is how the subscriber hands harvest opportunities to the
// executor, without depending on the executor package directly.
type EnqueueFunc func(events.HarvestNeeded)

// Subscriber is the stream-consuming component.
type Subscriber struct {
	cfg     Config
	log     *zap.Logger
	reg     *registry.Registry
	stream  rpcx.Stream
	client  rpcx.Client
	bus     *events.Bus
	enqueue EnqueueFunc

	rebuilding   atomic.Bool
	reconnects   atomic.Int64
	lastPong     atomic.Int64 // unix nanos
	shuttingDown atomic.Bool
	reconnecting atomic.Bool

	reconnectCh chan struct{}
	rebuildCh   chan rebuildRequest

	wg sync.WaitGroup
}

type rebuildRequest struct {
	reasonReconnect bool
}

// New constructs a Subscriber. Callers wire its event bus into the relay
// and its enqueue func into the executor before calling Run.
func New(cfg Config, log *zap.Logger, reg *registry.Registry, stream rpcx.Stream, client rpcx.Client, bus *events.Bus, enqueue EnqueueFunc) *Subscriber {
	return &Subscriber{
		cfg:         cfg,
		log:         log.With(zap.String("component", "subscriber")),
		reg:         reg,
		stream:      stream,
		client:      client,
		bus:         bus,
		enqueue:     enqueue,
		reconnectCh: make(chan struct{}, 1),
		rebuildCh:   make(chan rebuildRequest, 1),
	}
}

// ReconnectCount returns the number of times the stream has been
// re-established, for the relay's stats endpoint.
func (s *Subscriber) ReconnectCount() int64 { return s.reconnects.Load() }

// LastPong returns the time of the last pong received, or the zero time if
// none has arrived yet.
func (s *Subscriber) LastPong() time.Time {
	ns := s.lastPong.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Run starts the subscriber's loops and blocks until ctx is cancelled.
func (s *Subscriber) Run(ctx context.Context) error {
	if err := s.bootstrap(ctx); err != nil {
		s.log.Warn("cold-start bootstrap failed, falling back to full rebuild", zap.Error(err))
	}

	updates, err := s.connect(ctx)
	if err != nil {
		return err
	}

	s.wg.Add(3)
	go s.pingLoop(ctx)
	go s.safetyPollLoop(ctx)
	go s.rebuildWorker(ctx)

	s.consumeLoop(ctx, updates)

	s.shuttingDown.Store(true)
	s.wg.Wait()
	return ctx.Err()
}

// connect (re)establishes the stream subscription for the current watched
// pool set plus the position program filter.
func (s *Subscriber) connect(ctx context.Context) (<-chan rpcx.AccountUpdate, error) {
	groups := s.filterGroups()
	updates, err := s.stream.Subscribe(ctx, groups)
	if err != nil {
		return nil, err
	}
	return updates, nil
}

func (s *Subscriber) filterGroups() []rpcx.FilterGroup {
	pools := s.reg.WatchedPools()
	groups := make([]rpcx.FilterGroup, 0, len(pools)+1)
	for _, p := range pools {
		groups = append(groups, rpcx.FilterGroup{
			Name:     "pool",
			Accounts: []solana.PublicKey{p},
			DataSize: s.cfg.PoolAccountSize,
		})
	}
	groups = append(groups, rpcx.FilterGroup{
		Name:  "positions",
		Owner: s.cfg.PositionProgram,
	})
	return groups
}

// consumeLoop routes every incoming update to the pool or position path
// until updates closes (triggering a reconnect) or ctx is done.
func (s *Subscriber) consumeLoop(ctx context.Context, updates <-chan rpcx.AccountUpdate) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.reconnectCh:
			// The watched-pool set changed (new pool discovered): the
			// subscription filter can't be modified in place, so tear
			// down and recreate it, per spec.md §4.2.2.
			next, err := s.connect(ctx)
			if err != nil {
				s.log.Error("filter-refresh reconnect failed", zap.Error(err))
				continue
			}
			s.reconnects.Add(1)
			s.bus.Publish(events.KindStreamReconnected, events.StreamReconnected{Reason: "filter_refresh"})
			updates = next
		case upd, ok := <-updates:
			if !ok {
				if s.shuttingDown.Load() {
					return
				}
				s.handleDisconnect(ctx)
				next, err := s.connect(ctx)
				if err != nil {
					s.log.Error("reconnect failed permanently", zap.Error(err))
					return
				}
				updates = next
				continue
			}
			if upd.IsPong {
				s.lastPong.Store(time.Now().UnixNano())
				s.reconnecting.Store(false)
				continue
			}
			s.handleUpdate(upd)
		}
	}
}

func (s *Subscriber) handleUpdate(upd rpcx.AccountUpdate) {
	if _, isPool := s.reg.Pool(upd.Pubkey); isPool {
		s.handlePoolUpdate(upd)
		return
	}
	s.handlePositionUpdate(upd)
}

func (s *Subscriber) handlePoolUpdate(upd rpcx.AccountUpdate) {
	info, err := decode.DecodePoolInfo(upd.Data)
	if err != nil {
		s.log.Warn("pool decode failed, dropping update", zap.String("pool", upd.Pubkey.String()), zap.Error(err))
		return
	}

	prev := s.reg.PutPool(upd.Pubkey, info)
	if prev != nil && *prev == info.ActiveID {
		return
	}

	s.bus.Publish(events.KindActiveBinChanged, events.ActiveBinChanged{
		Pool: upd.Pubkey, NewBin: info.ActiveID, PrevBin: prev,
	})

	s.evaluatePoolPositions(upd.Pubkey, info)
}

func (s *Subscriber) handlePositionUpdate(upd rpcx.AccountUpdate) {
	if len(upd.Data) == 0 {
		rec, existed := s.reg.RemovePosition(upd.Pubkey)
		if existed {
			last := rec.Position
			s.bus.Publish(events.KindPositionChanged, events.PositionChanged{
				PositionID: upd.Pubkey,
				Action:     events.PositionActionClosed,
				LastState:  &last,
			})
		}
		return
	}

	if _, known := s.reg.GetPosition(upd.Pubkey); known {
		// Balance changes on an already-known position are not tracked
		// here; the executor's balance-aware pass is authoritative.
		return
	}

	s.requestRebuild(false)
}

// requestRebuild enqueues a rebuild if one is not already running; a second
// concurrent trigger is dropped, not queued, per spec.md §4.2.1.
func (s *Subscriber) requestRebuild(reasonReconnect bool) {
	select {
	case s.rebuildCh <- rebuildRequest{reasonReconnect: reasonReconnect}:
	default:
	}
}

func (s *Subscriber) handleDisconnect(ctx context.Context) {
	s.reconnects.Add(1)
	s.bus.Publish(events.KindStreamReconnected, events.StreamReconnected{Reason: "disconnect"})
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.cfg.ReconnectBase
	bo.MaxInterval = s.cfg.ReconnectMax
	bo.MaxElapsedTime = 0 // retry forever; shutdown is via ctx cancellation

	_ = backoff.Retry(func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		s.runRebuild(ctx, true)
		return nil
	}, backoff.WithContext(bo, ctx))
}

func (s *Subscriber) pingLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	var id uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			id++
			if err := s.stream.Ping(ctx, id); err != nil {
				s.log.Warn("ping failed", zap.Error(err))
				continue
			}
			if !s.LastPong().IsZero() && time.Since(s.LastPong()) > s.cfg.PingTimeout && s.reconnecting.CompareAndSwap(false, true) {
				s.log.Warn("ping timeout exceeded, treating stream as dead")
				// Close the current stream so consumeLoop's updates channel
				// closes and takes the same reconnect path a dropped
				// connection does; reconnecting is cleared once a fresh pong
				// proves the new stream is alive.
				if err := s.stream.Close(); err != nil {
					s.log.Warn("failed to close dead stream", zap.Error(err))
				}
			}
		}
	}
}
