package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("HARVESTER_STREAM_ENDPOINT", "wss://example.invalid/stream")
	t.Setenv("HARVESTER_RPC_ENDPOINT", "https://example.invalid/rpc")
	t.Setenv("HARVESTER_BEARER_TOKEN", "secret")
	t.Setenv("HARVESTER_POSITION_PROGRAM", "11111111111111111111111111111111")
	t.Setenv("HARVESTER_POOL_PROGRAM", "11111111111111111111111111111111")
	t.Setenv("HARVESTER_SIGNING_KEY_PATH", "/tmp/signer.json")
}

func TestLoadAppliesDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, 5, cfg.Executor.MaxConcurrent)
	require.Equal(t, 3, cfg.Executor.RetryAttempts)
	require.Equal(t, uint64(10_000), cfg.Executor.PriorityFeeFloor)
	require.Equal(t, int32(2), cfg.Subscriber.MinPositionBins)
	require.Equal(t, uint64(500_000_000), cfg.Keeper.AutoDepositThreshold)
	require.Equal(t, uint64(10_000), cfg.KeeperPriorityFeeFloor)
}

func TestLoadFailsOnMissingRequired(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("HARVESTER_BEARER_TOKEN", "")

	_, err := Load()
	require.Error(t, err)
	var missing *ErrMissingRequired
	require.ErrorAs(t, err, &missing)
}

func TestLoadRejectsInvalidPublicKey(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("HARVESTER_POSITION_PROGRAM", "not-a-valid-base58-pubkey!!")

	_, err := Load()
	require.Error(t, err)
}
