package subscriber

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
	"github.com/solharvest/dlmm-harvester/internal/registry"
	"github.com/solharvest/dlmm-harvester/internal/rpcx"
	"github.com/solharvest/dlmm-harvester/internal/rpcx/rpcxtest"
)

// poolBuf builds a minimal pool-state buffer with only activeID and binStep
// set, matching decode's fixed offsets (discriminator=8, activeID@8,
// binStep@12).
func poolBuf(activeID int32, binStep uint16) []byte {
	buf := make([]byte, decode.PoolInfoMinSize)
	binary.LittleEndian.PutUint32(buf[8:], uint32(activeID))
	binary.LittleEndian.PutUint16(buf[12:], binStep)
	return buf
}

// positionBuf builds a position-state buffer matching decode's fixed
// offsets: discriminator(8) owner(32) pool(32) aux(32) side+pad(4)
// minBin(4) maxBin(4) initAmount(8) harvested(8) createdAt(8).
func positionBuf(owner, pool solana.PublicKey, side decode.Side, minBin, maxBin int32, initAmount uint64) []byte {
	buf := make([]byte, decode.PositionMinSize)
	off := 8
	copy(buf[off:], owner[:])
	off += 32
	copy(buf[off:], pool[:])
	off += 32
	off += 32 // auxiliary, left zero
	buf[off] = byte(side)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(minBin))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(maxBin))
	off += 4
	binary.LittleEndian.PutUint64(buf[off:], initAmount)
	return buf
}

func newUpdate(pubkey solana.PublicKey, data []byte) rpcx.AccountUpdate {
	return rpcx.AccountUpdate{Pubkey: pubkey, Data: data}
}

func newTestSubscriber(t *testing.T) (*Subscriber, *registry.Registry, *rpcxtest.FakeStream, *rpcxtest.FakeClient, *events.Bus) {
	t.Helper()
	reg := registry.New()
	stream := rpcxtest.NewFakeStream()
	client := rpcxtest.NewFakeClient()
	bus := events.NewBus()
	cfg := DefaultConfig()
	cfg.CacheFilePath = t.TempDir() + "/registry.json"

	sub := New(cfg, zap.NewNop(), reg, stream, client, bus, nil)
	return sub, reg, stream, client, bus
}

func TestHandlePoolUpdateEmitsActiveBinChangedOnFirstObservation(t *testing.T) {
	sub, _, _, _, bus := newTestSubscriber(t)
	ch := bus.Subscribe(4)

	pool := solana.NewWallet().PublicKey()
	sub.handlePoolUpdate(newUpdate(pool, poolBuf(100, 25)))

	e := <-ch
	require.Equal(t, events.KindActiveBinChanged, e.Kind)
	payload := e.Payload.(events.ActiveBinChanged)
	require.Equal(t, int32(100), payload.NewBin)
	require.Nil(t, payload.PrevBin)
}

func TestHandlePoolUpdateSkipsUnchangedActiveBin(t *testing.T) {
	sub, _, _, _, bus := newTestSubscriber(t)
	ch := bus.Subscribe(4)
	pool := solana.NewWallet().PublicKey()

	sub.handlePoolUpdate(newUpdate(pool, poolBuf(100, 25)))
	<-ch // drain first ActiveBinChanged

	sub.handlePoolUpdate(newUpdate(pool, poolBuf(100, 25)))
	select {
	case e := <-ch:
		t.Fatalf("unexpected event on unchanged active bin: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHandlePoolUpdateEmitsHarvestNeededForSellPosition(t *testing.T) {
	sub, reg, _, _, bus := newTestSubscriber(t)
	binEvents := bus.Subscribe(8)

	pool := solana.NewWallet().PublicKey()
	posID := solana.NewWallet().PublicKey()
	reg.PutPosition(posID, decode.Position{Pool: pool, Side: decode.SideSell, MinBin: 95, MaxBin: 104})
	reg.PutPool(pool, decode.PoolInfo{ActiveID: 99})

	sub.handlePoolUpdate(newUpdate(pool, poolBuf(100, 25)))

	var sawHarvestNeeded bool
	for i := 0; i < 2; i++ {
		select {
		case e := <-binEvents:
			if e.Kind == events.KindHarvestNeeded {
				sawHarvestNeeded = true
				payload := e.Payload.(events.HarvestNeeded)
				require.Equal(t, []int32{95, 96, 97, 98, 99}, payload.SafeBins)
			}
		case <-time.After(50 * time.Millisecond):
		}
	}
	require.True(t, sawHarvestNeeded)
}

func TestHandlePositionUpdateRemovesOnEmptyBuffer(t *testing.T) {
	sub, reg, _, _, bus := newTestSubscriber(t)
	ch := bus.Subscribe(4)

	pool := solana.NewWallet().PublicKey()
	posID := solana.NewWallet().PublicKey()
	reg.PutPosition(posID, decode.Position{Pool: pool, MinBin: 1, MaxBin: 2})

	sub.handlePositionUpdate(newUpdate(posID, nil))

	_, ok := reg.GetPosition(posID)
	require.False(t, ok)

	e := <-ch
	require.Equal(t, events.KindPositionChanged, e.Kind)
	payload := e.Payload.(events.PositionChanged)
	require.Equal(t, events.PositionActionClosed, payload.Action)
}

func TestHandleDisconnectEmitsStreamReconnected(t *testing.T) {
	sub, _, _, _, bus := newTestSubscriber(t)
	ch := bus.Subscribe(8)

	sub.handleDisconnect(context.Background())

	e := <-ch
	require.Equal(t, events.KindStreamReconnected, e.Kind)
	payload := e.Payload.(events.StreamReconnected)
	require.Equal(t, "disconnect", payload.Reason)
}

func TestRequestRebuildDropsSecondConcurrentTrigger(t *testing.T) {
	sub, _, _, _, _ := newTestSubscriber(t)
	sub.rebuilding.Store(true) // simulate a rebuild already in flight
	defer sub.rebuilding.Store(false)

	sub.requestRebuild(false)
	sub.requestRebuild(false)

	require.Len(t, sub.rebuildCh, 1)
}

func TestRunRebuildAppliesDustFilter(t *testing.T) {
	sub, reg, _, client, _ := newTestSubscriber(t)
	sub.cfg.MinPositionBins = 2
	sub.cfg.MinInitialAmount = 1000

	owner := solana.NewWallet().PublicKey()
	pool := solana.NewWallet().PublicKey()

	client.ProgramAccounts = []rpcx.ProgramAccount{
		{Pubkey: solana.NewWallet().PublicKey(), Data: positionBuf(owner, pool, decode.SideSell, 1, 1, 5000)},  // width 1 < 2
		{Pubkey: solana.NewWallet().PublicKey(), Data: positionBuf(owner, pool, decode.SideSell, 1, 5, 10)},    // amount < 1000
		{Pubkey: solana.NewWallet().PublicKey(), Data: positionBuf(owner, pool, decode.SideSell, 1, 5, 5000)},
	}

	sub.runRebuild(context.Background(), false)

	positions, _ := reg.Size()
	require.Equal(t, 1, positions)
}

func TestRunRebuildEmitsPositionChangedWithRealIDPerNewPosition(t *testing.T) {
	sub, _, _, client, bus := newTestSubscriber(t)
	ch := bus.Subscribe(8)

	owner := solana.NewWallet().PublicKey()
	pool := solana.NewWallet().PublicKey()
	posA := solana.NewWallet().PublicKey()
	posB := solana.NewWallet().PublicKey()

	client.ProgramAccounts = []rpcx.ProgramAccount{
		{Pubkey: posA, Data: positionBuf(owner, pool, decode.SideSell, 1, 5, 5000)},
		{Pubkey: posB, Data: positionBuf(owner, pool, decode.SideBuy, 1, 5, 5000)},
	}

	sub.runRebuild(context.Background(), false)

	seen := make(map[solana.PublicKey]bool)
	for i := 0; i < 2; i++ {
		e := <-ch
		require.Equal(t, events.KindPositionChanged, e.Kind)
		payload := e.Payload.(events.PositionChanged)
		require.Equal(t, events.PositionActionCreated, payload.Action)
		require.NotEqual(t, solana.PublicKey{}, payload.PositionID)
		seen[payload.PositionID] = true
	}
	require.True(t, seen[posA])
	require.True(t, seen[posB])

	select {
	case e := <-ch:
		t.Fatalf("unexpected extra event: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRunRebuildOnlyEmitsForNewlyDiscoveredPositions(t *testing.T) {
	sub, reg, _, client, bus := newTestSubscriber(t)

	owner := solana.NewWallet().PublicKey()
	pool := solana.NewWallet().PublicKey()
	existing := solana.NewWallet().PublicKey()
	reg.PutPosition(existing, decode.Position{Owner: owner, Pool: pool, Side: decode.SideSell, MinBin: 1, MaxBin: 5, InitialAmount: 5000})

	client.ProgramAccounts = []rpcx.ProgramAccount{
		{Pubkey: existing, Data: positionBuf(owner, pool, decode.SideSell, 1, 5, 5000)},
	}

	ch := bus.Subscribe(8)
	sub.runRebuild(context.Background(), false)

	select {
	case e := <-ch:
		t.Fatalf("unexpected event for already-known position: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}
