// Package orchestrator wires the five components — decoder (used inline by
// the other four), stream subscriber, job executor, sequencer, and relay —
// into one process, owns the process-wide state spec.md §6 and §9
// describe, and drives graceful shutdown.
package orchestrator

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/solharvest/dlmm-harvester/internal/clock"
	"github.com/solharvest/dlmm-harvester/internal/events"
	"github.com/solharvest/dlmm-harvester/internal/executor"
	"github.com/solharvest/dlmm-harvester/internal/keeper"
	"github.com/solharvest/dlmm-harvester/internal/metrics"
	"github.com/solharvest/dlmm-harvester/internal/relay"
	"github.com/solharvest/dlmm-harvester/internal/rpcx"
	"github.com/solharvest/dlmm-harvester/internal/subscriber"
)

// Config is the orchestrator's own tunables, distinct from the
// per-component configs it is handed already built.
type Config struct {
	ListenAddr string
}

// Orchestrator owns process lifetime: it starts the subscriber, executor,
// sequencer, and relay's HTTP listener, tracks process-wide state, and
// coordinates shutdown when ctx is cancelled.
type Orchestrator struct {
	cfg Config
	log *zap.Logger
	clk clock.Clock

	subscriber      *subscriber.Subscriber
	executor        *executor.Executor
	keeper          *keeper.Keeper
	relay           *relay.Relay
	client          rpcx.Client
	bus             *events.Bus
	signingIdentity solana.PublicKey
	metrics         *metrics.Registry

	balanceHistory *BalanceHistory
	httpServer     *http.Server

	mu            sync.Mutex
	startTime     time.Time
	lastHarvestAt time.Time
}

// New constructs an Orchestrator. Any of sub/exec/kpr/rel may be nil if
// that component isn't wired in a given deployment (e.g. a relay-only read
// replica); Run only starts what is non-nil.
func New(
	cfg Config,
	log *zap.Logger,
	clk clock.Clock,
	sub *subscriber.Subscriber,
	exec *executor.Executor,
	kpr *keeper.Keeper,
	rel *relay.Relay,
	client rpcx.Client,
	signingIdentity solana.PublicKey,
	bus *events.Bus,
	metricsReg *metrics.Registry,
) *Orchestrator {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Orchestrator{
		cfg:             cfg,
		log:             log.With(zap.String("component", "orchestrator")),
		clk:             clk,
		subscriber:      sub,
		executor:        exec,
		keeper:          kpr,
		relay:           rel,
		client:          client,
		bus:             bus,
		signingIdentity: signingIdentity,
		metrics:         metricsReg,
		balanceHistory:  NewBalanceHistory(clk.Now),
		startTime:       clk.Now(),
	}
}

// BalanceHistory exposes the rolling balance sample for the relay/health
// surface.
func (o *Orchestrator) BalanceHistory() *BalanceHistory { return o.balanceHistory }

// LastSequencerRun reports the keeper's last successful processing-path
// completion, if a keeper is wired.
func (o *Orchestrator) LastSequencerRun() time.Time {
	if o.keeper == nil {
		return time.Time{}
	}
	return o.keeper.LastSuccessfulSaturday()
}

// Run starts every wired component and the HTTP listener, then blocks
// until ctx is cancelled, at which point it drives shutdown.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.trackLastHarvest()
	o.pollBalance(ctx)
	o.runMetricsBridge()
	o.pollExecutorGauges(ctx)

	var wg sync.WaitGroup

	if o.subscriber != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := o.subscriber.Run(ctx); err != nil {
				o.log.Error("subscriber exited with error", zap.Error(err))
			}
		}()
	}
	if o.executor != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.executor.Run(ctx)
		}()
	}
	if o.keeper != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.keeper.Run(ctx)
		}()
	}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", o.handleHealthz).Methods(http.MethodGet)
	if o.metrics != nil {
		router.Handle("/metrics", promhttp.HandlerFor(o.metrics.Gatherer(), promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	if o.relay != nil && o.bus != nil {
		o.relay.Subscribe(o.bus)
		o.relay.Attach(router)
	}

	o.httpServer = &http.Server{Addr: o.cfg.ListenAddr, Handler: router}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- o.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			o.log.Error("http listener exited with error", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.httpServer.Shutdown(shutdownCtx); err != nil {
		o.log.Warn("http listener shutdown did not complete cleanly", zap.Error(err))
	}

	wg.Wait()
	return nil
}

// trackLastHarvest subscribes to the bus so /healthz can report the last
// harvest timestamp without reaching into the executor.
func (o *Orchestrator) trackLastHarvest() {
	if o.bus == nil {
		return
	}
	ch := o.bus.Subscribe(64)
	go func() {
		for ev := range ch {
			switch ev.Kind {
			case events.KindHarvestExecuted, events.KindPositionClosed:
				o.mu.Lock()
				o.lastHarvestAt = ev.Timestamp
				o.mu.Unlock()
			}
		}
	}()
}

// pollBalance samples the signing identity's balance once a minute into
// the rolling balance history.
func (o *Orchestrator) pollBalance(ctx context.Context) {
	if o.client == nil || o.signingIdentity == (solana.PublicKey{}) {
		return
	}
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				o.sampleBalance(ctx)
			}
		}
	}()
}

func (o *Orchestrator) sampleBalance(ctx context.Context) {
	bal, err := o.client.Balance(ctx, o.signingIdentity)
	if err != nil {
		o.log.Warn("failed to sample signing identity balance", zap.Error(err))
		return
	}
	o.balanceHistory.Add(bal)
	if o.metrics != nil {
		o.metrics.SetBalanceLamports(bal)
	}
}

// runMetricsBridge drains the bus into the metrics registry's counters.
func (o *Orchestrator) runMetricsBridge() {
	if o.metrics == nil || o.bus == nil {
		return
	}
	bridge := metrics.NewBridge(o.metrics)
	go bridge.Run(o.bus.Subscribe(64))
}

// pollExecutorGauges samples the executor's queue depth and inflight count
// once a second into the metrics registry.
func (o *Orchestrator) pollExecutorGauges(ctx context.Context) {
	if o.metrics == nil || o.executor == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				o.metrics.SetQueueDepth(o.executor.QueueDepth())
				o.metrics.SetInflight(o.executor.Inflight())
			}
		}
	}()
}
