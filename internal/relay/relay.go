// Package relay exposes subscriber/executor state through a pull HTTP API
// and broadcasts domain events over a push WebSocket channel with a bounded
// replay buffer.
package relay

import (
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/solharvest/dlmm-harvester/internal/events"
	"github.com/solharvest/dlmm-harvester/internal/registry"
	"github.com/solharvest/dlmm-harvester/internal/rpcx"
)

// ReplayBufferSize bounds the event ring buffer (spec.md §4.5.2).
const ReplayBufferSize = 200

// ReplayCount is how many of the most recent events a newly connected push
// client receives immediately (spec.md §4.5.2).
const ReplayCount = 50

// ExecutorStats is the subset of executor.Executor the stats endpoint
// needs.
type ExecutorStats interface {
	QueueDepth() int
	Inflight() int
	Counters() (harvests, closes int64)
}

// ReconnectStats is the subset of subscriber.Subscriber the stats endpoint
// needs.
type ReconnectStats interface {
	ReconnectCount() int64
}

// Relay is the read-only pull/push surface. It owns no domain state; it
// only reads the registry's View and the executor's/subscriber's counters,
// and re-broadcasts events it receives from the bus.
type Relay struct {
	log      *zap.Logger
	registry *registry.Registry
	exec     ExecutorStats
	sub      ReconnectStats
	client   rpcx.Client

	upgrader websocket.Upgrader

	mu      sync.Mutex
	ring    []events.Event
	clients map[*wsClient]struct{}
}

// New constructs a Relay. exec and sub may be nil (the relay simply
// reports zero counters for a component that isn't wired yet).
func New(log *zap.Logger, reg *registry.Registry, exec ExecutorStats, sub ReconnectStats, client rpcx.Client) *Relay {
	return &Relay{
		log:      log.With(zap.String("component", "relay")),
		registry: reg,
		exec:     exec,
		sub:      sub,
		client:   client,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*wsClient]struct{}),
	}
}

// Attach wires the relay's pull routes under /api, the push upgrade at
// /ws, and CORS for GET/OPTIONS onto an existing router, per spec.md
// §4.5.3. Other paths are left untouched for the caller's own handlers
// (e.g. health).
func (r *Relay) Attach(router *mux.Router) {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
	})

	api := router.PathPrefix("/api").Subrouter()
	api.Use(c.Handler)
	api.HandleFunc("/pools", r.handlePools).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/pools/{id}", r.handlePoolByID).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/positions", r.handlePositions).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/harvests/pending", r.handlePendingHarvests).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/stats", r.handleStats).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/pools/{id}/user-bins/{owner}", r.handleUserBins).Methods(http.MethodGet, http.MethodOptions)

	router.HandleFunc("/ws", r.handleWS)
}

// Subscribe drains bus in a background goroutine, appending every event to
// the ring buffer and fanning it out to connected push clients. The
// goroutine runs for the life of the process, since the bus never closes
// the channel it hands back.
func (r *Relay) Subscribe(bus *events.Bus) {
	ch := bus.Subscribe(256)
	go func() {
		for ev := range ch {
			r.broadcast(ev)
		}
	}()
}

func (r *Relay) broadcast(ev events.Event) {
	r.mu.Lock()
	r.ring = append(r.ring, ev)
	if len(r.ring) > ReplayBufferSize {
		r.ring = r.ring[len(r.ring)-ReplayBufferSize:]
	}
	for c := range r.clients {
		c.send(ev)
	}
	r.mu.Unlock()
}

func (r *Relay) replayTail() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.ring)
	if n > ReplayCount {
		n = ReplayCount
	}
	out := make([]events.Event, n)
	copy(out, r.ring[len(r.ring)-n:])
	return out
}

func (r *Relay) addClient(c *wsClient) {
	r.mu.Lock()
	r.clients[c] = struct{}{}
	r.mu.Unlock()
}

func (r *Relay) removeClient(c *wsClient) {
	r.mu.Lock()
	delete(r.clients, c)
	r.mu.Unlock()
}

// ClientCount reports the number of connected push clients, for the stats
// endpoint.
func (r *Relay) ClientCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}
