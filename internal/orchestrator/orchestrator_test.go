package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/solharvest/dlmm-harvester/internal/clock"
	"github.com/solharvest/dlmm-harvester/internal/events"
	"github.com/solharvest/dlmm-harvester/internal/rpcx/rpcxtest"
)

func newTestOrchestrator(t *testing.T, clk *clock.Mockable, client *rpcxtest.FakeClient, identity solana.PublicKey, bus *events.Bus) *Orchestrator {
	t.Helper()
	return New(Config{ListenAddr: "127.0.0.1:0"}, zap.NewNop(), clk, nil, nil, nil, nil, client, identity, bus, nil)
}

func TestHealthPayloadReportsUptimeAndStatus(t *testing.T) {
	clk := clock.New()
	base := time.Date(2026, 1, 3, 12, 0, 0, 0, time.UTC)
	clk.Set(base)

	o := newTestOrchestrator(t, clk, nil, solana.PublicKey{}, nil)

	clk.Advance(90 * time.Second)
	resp := o.healthPayload()

	require.Equal(t, "ok", resp.Status)
	require.Equal(t, base, resp.StartTime)
	require.Equal(t, 90.0, resp.UptimeSeconds)
	require.Nil(t, resp.LastHarvestAt)
	require.Nil(t, resp.LastSequencerRunAt)
}

func TestTrackLastHarvestUpdatesFromBusEvents(t *testing.T) {
	clk := clock.New()
	clk.Set(time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC))
	bus := events.NewBus()

	o := newTestOrchestrator(t, clk, nil, solana.PublicKey{}, bus)
	o.trackLastHarvest()

	pool := solana.NewWallet().PublicKey()
	bus.Publish(events.KindHarvestExecuted, events.HarvestExecuted{Pool: pool})

	require.Eventually(t, func() bool {
		resp := o.healthPayload()
		return resp.LastHarvestAt != nil
	}, time.Second, 10*time.Millisecond)
}

func TestHandleHealthzServesJSON(t *testing.T) {
	clk := clock.New()
	clk.Set(time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC))
	o := newTestOrchestrator(t, clk, nil, solana.PublicKey{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	o.handleHealthz(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var out healthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	require.Equal(t, "ok", out.Status)
}

func TestPollBalanceSamplesIntoHistory(t *testing.T) {
	clk := clock.New()
	clk.Set(time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC))

	identity := solana.NewWallet().PublicKey()
	client := rpcxtest.NewFakeClient()
	client.Balances[identity] = 42_000_000

	o := newTestOrchestrator(t, clk, client, identity, nil)

	o.sampleBalance(context.Background())

	latest, ok := o.BalanceHistory().Latest()
	require.True(t, ok)
	require.Equal(t, uint64(42_000_000), latest.Lamports)
}

func TestPollBalanceNoopsWithoutClientOrIdentity(t *testing.T) {
	clk := clock.New()
	o := newTestOrchestrator(t, clk, nil, solana.PublicKey{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	o.pollBalance(ctx)
	cancel()

	_, ok := o.BalanceHistory().Latest()
	require.False(t, ok)
}

func TestLastSequencerRunIsZeroWithoutKeeper(t *testing.T) {
	clk := clock.New()
	o := newTestOrchestrator(t, clk, nil, solana.PublicKey{}, nil)
	require.True(t, o.LastSequencerRun().IsZero())
}

func TestRunServesHealthzAndShutsDownOnCancel(t *testing.T) {
	clk := clock.New()
	clk.Set(time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC))
	o := New(Config{ListenAddr: "127.0.0.1:0"}, zap.NewNop(), clk, nil, nil, nil, nil, nil, solana.PublicKey{}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	// Give the listener a moment to start, then request shutdown.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
