package executor

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/solharvest/dlmm-harvester/internal/decode"
	"github.com/solharvest/dlmm-harvester/internal/events"
	"github.com/solharvest/dlmm-harvester/internal/rpcx"
	"github.com/solharvest/dlmm-harvester/internal/rpcx/rpcxtest"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ShutdownDrain = 200 * time.Millisecond
	return cfg
}

func newTestExecutor(t *testing.T) (*Executor, *rpcxtest.FakeClient, *events.Bus) {
	t.Helper()
	client := rpcxtest.NewFakeClient()
	bus := events.NewBus()
	e := New(testConfig(), zap.NewNop(), client, bus, nil)
	return e, client, bus
}

// poolInfoBuf builds a pool-state buffer matching decode's fixed offsets
// for the two fields these tests exercise (active bin, bin step); every
// other field is left zero, which decodes to valid-but-zeroed pubkeys and
// flags.
func poolInfoBuf(activeID int32, binStep uint16) []byte {
	buf := make([]byte, decode.PoolInfoMinSize)
	binary.LittleEndian.PutUint32(buf[8:], uint32(activeID))
	binary.LittleEndian.PutUint16(buf[12:], binStep)
	return buf
}

func TestEnqueueDedupsAgainstQueued(t *testing.T) {
	e, _, _ := newTestExecutor(t)
	id := solana.NewWallet().PublicKey()
	pool := solana.NewWallet().PublicKey()

	h := events.HarvestNeeded{PositionID: id, Pool: pool, Side: decode.SideSell}
	e.Enqueue(h)
	e.Enqueue(h)
	e.Enqueue(h)

	require.Equal(t, 1, e.QueueDepth())
}

func TestEnqueueDedupsAgainstInflight(t *testing.T) {
	e, client, _ := newTestExecutor(t)
	id := solana.NewWallet().PublicKey()
	pool := solana.NewWallet().PublicKey()

	// No job ever runs here: the test marks id inflight by hand, so
	// Enqueue must see it as inflight and drop it rather than queue it.
	client.BinBalances[id] = rpcx.PositionBinBalances{Exists: false}

	e.mu.Lock()
	e.inflight[id] = struct{}{}
	e.mu.Unlock()

	h := events.HarvestNeeded{PositionID: id, Pool: pool, Side: decode.SideSell}
	e.Enqueue(h)

	require.Equal(t, 0, e.QueueDepth())
	require.Equal(t, 1, e.Inflight())
}

func TestShutdownReturnsImmediatelyWhenEmpty(t *testing.T) {
	e, _, _ := newTestExecutor(t)

	done := make(chan struct{})
	go func() {
		e.shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("shutdown with empty queue/inflight did not return promptly")
	}
}

func TestConcurrencyCapIsRespected(t *testing.T) {
	e, client, _ := newTestExecutor(t)
	e.cfg.MaxConcurrent = 2

	// Every job abandons at its first step (no pool account is registered,
	// so the pool object fails to decode). Inflight is sampled while more
	// jobs than the cap drain and must never exceed MaxConcurrent; the
	// drain must end with nothing queued or inflight.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i := 0; i < 5; i++ {
		id := solana.NewWallet().PublicKey()
		client.BinBalances[id] = rpcx.PositionBinBalances{Exists: false}
		e.Enqueue(events.HarvestNeeded{PositionID: id, Pool: solana.NewWallet().PublicKey(), Side: decode.SideSell})
	}

	go e.Run(ctx)

	exceeded := false
	require.Eventually(t, func() bool {
		if e.Inflight() > e.cfg.MaxConcurrent {
			exceeded = true
		}
		return e.QueueDepth() == 0 && e.Inflight() == 0
	}, 2*time.Second, 10*time.Millisecond)
	require.False(t, exceeded, "inflight exceeded MaxConcurrent during drain")
}

func TestRunJobAbandonsOnStaleOpportunity(t *testing.T) {
	e, client, bus := newTestExecutor(t)
	sub := bus.Subscribe(4)

	id := solana.NewWallet().PublicKey()
	pool := solana.NewWallet().PublicKey()
	client.BinBalances[id] = rpcx.PositionBinBalances{Exists: false}
	client.Accounts[pool] = poolInfoBuf(5, 10)

	e.runJob(context.Background(), job{PositionID: id, Pool: pool, Side: decode.SideSell})

	select {
	case ev := <-sub:
		t.Fatalf("expected no event for a stale opportunity, got %v", ev.Kind)
	default:
	}
	require.Empty(t, client.SentRaw)
}

func TestRunJobEmitsHarvestExecutedOnPartialSafeBins(t *testing.T) {
	e, client, bus := newTestExecutor(t)
	sub := bus.Subscribe(4)

	id := solana.NewWallet().PublicKey()
	pool := solana.NewWallet().PublicKey()
	owner := solana.NewWallet().PublicKey()

	client.Accounts[pool] = poolInfoBuf(10, 10)
	client.BinBalances[id] = rpcx.PositionBinBalances{
		TotalBins: 3,
		Bins: []rpcx.BinBalance{
			{Bin: 7, Balance: 100},
			{Bin: 8, Balance: 0},
			{Bin: 9, Balance: 0},
		},
	}

	e.runJob(context.Background(), job{PositionID: id, Pool: pool, Owner: owner, Side: decode.SideSell})

	require.Len(t, client.SentRaw, 1)
	harvests, closes := e.Counters()
	require.Equal(t, int64(1), harvests)
	require.Equal(t, int64(0), closes)

	select {
	case ev := <-sub:
		require.Equal(t, events.KindHarvestExecuted, ev.Kind)
		payload := ev.Payload.(events.HarvestExecuted)
		require.Equal(t, id, payload.PositionID)
		require.Equal(t, 1, payload.BinCount)
	default:
		t.Fatal("expected HarvestExecuted event")
	}
}

func TestRunJobEmitsPositionClosedWhenAllBinsSafe(t *testing.T) {
	e, client, bus := newTestExecutor(t)
	sub := bus.Subscribe(4)

	id := solana.NewWallet().PublicKey()
	pool := solana.NewWallet().PublicKey()
	owner := solana.NewWallet().PublicKey()

	client.Accounts[pool] = poolInfoBuf(10, 10)
	client.BinBalances[id] = rpcx.PositionBinBalances{
		TotalBins: 2,
		Bins: []rpcx.BinBalance{
			{Bin: 7, Balance: 50},
			{Bin: 8, Balance: 25},
		},
	}

	e.runJob(context.Background(), job{PositionID: id, Pool: pool, Owner: owner, Side: decode.SideSell})

	harvests, closes := e.Counters()
	require.Equal(t, int64(0), harvests)
	require.Equal(t, int64(1), closes)

	select {
	case ev := <-sub:
		require.Equal(t, events.KindPositionClosed, ev.Kind)
	default:
		t.Fatal("expected PositionClosed event")
	}
}

func TestRunJobAbandonsWhenSendFails(t *testing.T) {
	e, client, bus := newTestExecutor(t)
	e.cfg.RetryAttempts = 1
	sub := bus.Subscribe(4)

	id := solana.NewWallet().PublicKey()
	pool := solana.NewWallet().PublicKey()

	client.Accounts[pool] = poolInfoBuf(10, 10)
	client.BinBalances[id] = rpcx.PositionBinBalances{
		TotalBins: 2,
		Bins:      []rpcx.BinBalance{{Bin: 7, Balance: 50}},
	}
	client.SendErr = rpcxtest.ErrFakeSend

	e.runJob(context.Background(), job{PositionID: id, Pool: pool, Side: decode.SideSell})

	select {
	case ev := <-sub:
		t.Fatalf("expected no event after exhausted retries, got %v", ev.Kind)
	default:
	}
}
