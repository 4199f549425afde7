// Package events defines the domain event values the subscriber, executor,
// and sequencer emit, and a small bounded-channel bus that replaces the
// per-component event-emitter style of the source daemon: a component
// exposes no emitter object, only a Bus it publishes onto, and any number of
// subscribers (the relay among them) drain it independently.
package events

import (
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/solharvest/dlmm-harvester/internal/decode"
)

// Kind identifies which event value a message carries, used by the relay
// when it serializes events onto the push channel.
type Kind string

const (
	KindActiveBinChanged  Kind = "ActiveBinChanged"
	KindHarvestNeeded     Kind = "HarvestNeeded"
	KindPositionChanged   Kind = "PositionChanged"
	KindHarvestExecuted   Kind = "HarvestExecuted"
	KindPositionClosed    Kind = "PositionClosed"
	KindRoverTVLUpdated   Kind = "RoverTvlUpdated"
	KindStreamReconnected Kind = "StreamReconnected"
)

// PositionChangeAction is what happened to a position.
type PositionChangeAction string

const (
	PositionActionCreated PositionChangeAction = "Created"
	PositionActionClosed  PositionChangeAction = "Closed"
)

// Event is the envelope every domain event travels in: a Kind tag plus the
// payload, so the relay can serialize {type, data, timestamp} without a
// type switch over N distinct channel types.
type Event struct {
	Kind      Kind
	Timestamp time.Time
	Payload   any
}

// ActiveBinChanged fires when a pool's decoded active bin index differs
// from the last known value.
type ActiveBinChanged struct {
	Pool     solana.PublicKey
	NewBin   int32
	PrevBin  *int32 // nil the first time a pool is observed
}

// HarvestNeeded fires when the subscriber's range-only safe-bin check finds
// at least one withdrawable bin for a position.
type HarvestNeeded struct {
	PositionID solana.PublicKey
	Pool       solana.PublicKey
	Owner      solana.PublicKey
	Side       decode.Side
	SafeBins   []int32
	PoolInfo   *decode.PoolInfo
}

// PositionChanged fires when a position is created or closed in the
// registry.
type PositionChanged struct {
	PositionID solana.PublicKey
	Action     PositionChangeAction
	LastState  *decode.Position // populated for Closed, nil for Created
}

// HarvestExecuted fires after a successful harvest (partial withdrawal)
// transaction.
type HarvestExecuted struct {
	PositionID solana.PublicKey
	Pool       solana.PublicKey
	Owner      solana.PublicKey
	Side       decode.Side
	BinCount   int
	SubmittedAt time.Time
}

// PositionClosed fires after a successful close (full withdrawal)
// transaction.
type PositionClosed struct {
	PositionID  solana.PublicKey
	Pool        solana.PublicKey
	Owner       solana.PublicKey
	Side        decode.Side
	BinCount    int
	SubmittedAt time.Time
}

// StreamReconnected fires every time the subscriber tears down and
// re-establishes its account-update stream, whether triggered by an
// upstream disconnect, a missed pong, or a watched-pool filter refresh.
type StreamReconnected struct {
	Reason string
}

// RoverTVLUpdated fires after the keeper's sixth step, one entry per pool.
type RoverTVLUpdated struct {
	Pool          solana.PublicKey
	TVL           uint64 // placeholder, see design notes
	PositionCount int
	Status        string
}

// Bus is a many-producer, many-consumer fan-out point. Publish never
// blocks callers indefinitely: a slow subscriber only drops events on its
// own channel, it never backs up Publish.
type Bus struct {
	mu   sync.Mutex
	subs []chan Event
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe returns a channel that receives every event published after
// this call, buffered so a momentarily slow reader doesn't lose anything
// small. The channel is never closed: the bus has no close operation and
// subscribers are expected to live for the process lifetime; callers that
// need to stop listening just stop reading.
func (b *Bus) Subscribe(buffer int) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, buffer)
	b.subs = append(b.subs, ch)
	return ch
}

// Publish fans e out to every subscriber. A subscriber whose buffer is full
// has the event dropped for it rather than blocking the publisher —
// push delivery is best-effort per spec.
func (b *Bus) Publish(kind Kind, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := Event{Kind: kind, Timestamp: time.Now(), Payload: payload}
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
