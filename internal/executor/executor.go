// Package executor consumes HarvestNeeded events, deduplicates them,
// bounds concurrent submissions, re-validates each opportunity against
// live chain state, and submits harvest or close transactions with
// dynamic priority fees and retry.
package executor

import (
	"context"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/solharvest/dlmm-harvester/internal/decode"
	"github.com/solharvest/dlmm-harvester/internal/events"
	"github.com/solharvest/dlmm-harvester/internal/poolcache"
	"github.com/solharvest/dlmm-harvester/internal/rpcx"
)

// Config holds the executor's tunables from spec.md §6.
type Config struct {
	MaxConcurrent      int
	RetryAttempts      int
	RetryBase          time.Duration
	PriorityFeeFloor   uint64
	ComputeUnitLimit   uint32
	PoolCacheTTL       time.Duration
	PoolCacheMax       int
	ShutdownDrain      time.Duration
}

// DefaultConfig returns the tunables at their spec.md §6 defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:    5,
		RetryAttempts:    3,
		RetryBase:        time.Second,
		PriorityFeeFloor: 10_000,
		ComputeUnitLimit: 400_000,
		PoolCacheTTL:     10 * time.Minute,
		PoolCacheMax:     2000,
		ShutdownDrain:    30 * time.Second,
	}
}

// PoolObject is the heavyweight per-pool metadata used to build
// transactions: bin-array PDA derivation inputs and token-program
// resolution. Reconstructing one is an RPC call, hence the cache.
type PoolObject struct {
	Pool       solana.PublicKey
	Info       decode.PoolInfo
	BinArrays  []solana.PublicKey
}

// Signer abstracts the signing identity so tests don't need a real key.
type Signer interface {
	PublicKey() solana.PublicKey
	SignTransaction(raw []byte) ([]byte, error)
}

// Executor is the job queue / concurrency-bounded processing component.
type Executor struct {
	cfg    Config
	log    *zap.Logger
	client rpcx.Client
	bus    *events.Bus
	signer Signer
	cache  *poolcache.Cache[solana.PublicKey, PoolObject]

	mu        sync.Mutex
	queued    []job
	queuedSet map[solana.PublicKey]struct{}
	inflight  map[solana.PublicKey]struct{}
	processing bool
	shuttingDown bool

	totalHarvests int64
	totalCloses   int64

	wakeCh chan struct{}
	doneWg sync.WaitGroup
}

type job struct {
	PositionID solana.PublicKey
	Pool       solana.PublicKey
	Owner      solana.PublicKey
	Side       decode.Side
}

// New constructs an Executor.
func New(cfg Config, log *zap.Logger, client rpcx.Client, bus *events.Bus, signer Signer) *Executor {
	return &Executor{
		cfg:       cfg,
		log:       log.With(zap.String("component", "executor")),
		client:    client,
		bus:       bus,
		signer:    signer,
		cache:     poolcache.New[solana.PublicKey, PoolObject](cfg.PoolCacheMax, cfg.PoolCacheTTL),
		queuedSet: make(map[solana.PublicKey]struct{}),
		inflight:  make(map[solana.PublicKey]struct{}),
		wakeCh:    make(chan struct{}, 1),
	}
}

// Enqueue adds a harvest opportunity. Duplicate position ids already
// queued or in flight are dropped silently, per spec.md §4.3.1.
func (e *Executor) Enqueue(h events.HarvestNeeded) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.shuttingDown {
		return
	}
	if _, inflight := e.inflight[h.PositionID]; inflight {
		return
	}
	if _, queued := e.queuedSet[h.PositionID]; queued {
		return
	}

	e.queued = append(e.queued, job{PositionID: h.PositionID, Pool: h.Pool, Owner: h.Owner, Side: h.Side})
	e.queuedSet[h.PositionID] = struct{}{}

	select {
	case e.wakeCh <- struct{}{}:
	default:
	}
}

// QueueDepth and Inflight expose the executor's live counters for the
// relay's stats endpoint.
func (e *Executor) QueueDepth() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queued)
}

func (e *Executor) Inflight() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.inflight)
}

func (e *Executor) Counters() (harvests, closes int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.totalHarvests, e.totalCloses
}

// Run drives the processing loop until ctx is cancelled, at which point it
// stops accepting new work and waits up to cfg.ShutdownDrain for in-flight
// jobs to finish.
func (e *Executor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return
		case <-e.wakeCh:
			e.drainQueue(ctx)
		}
	}
}

// drainQueue is the single-entry processing loop: while the queue is
// non-empty, spawn jobs up to MaxConcurrent, sleeping briefly when at
// capacity.
func (e *Executor) drainQueue(ctx context.Context) {
	e.mu.Lock()
	if e.processing {
		e.mu.Unlock()
		return
	}
	e.processing = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.processing = false
		e.mu.Unlock()
	}()

	for {
		e.mu.Lock()
		if e.shuttingDown || len(e.queued) == 0 {
			e.mu.Unlock()
			return
		}
		if len(e.inflight) >= e.cfg.MaxConcurrent {
			e.mu.Unlock()
			select {
			case <-ctx.Done():
				return
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}

		j := e.queued[0]
		e.queued = e.queued[1:]
		delete(e.queuedSet, j.PositionID)
		e.inflight[j.PositionID] = struct{}{}
		e.mu.Unlock()

		e.doneWg.Add(1)
		go func(j job) {
			defer e.doneWg.Done()
			defer func() {
				e.mu.Lock()
				delete(e.inflight, j.PositionID)
				e.mu.Unlock()
			}()
			e.runJob(ctx, j)
		}(j)
	}
}

// shutdown stops accepting new work and waits up to ShutdownDrain for
// in-flight jobs to finish.
func (e *Executor) shutdown() {
	e.mu.Lock()
	e.shuttingDown = true
	empty := len(e.queued) == 0 && len(e.inflight) == 0
	e.mu.Unlock()

	if empty {
		return
	}

	done := make(chan struct{})
	go func() {
		e.doneWg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(e.cfg.ShutdownDrain):
		e.log.Warn("shutdown drain timed out with jobs still in flight")
	}
}
