// Package config loads every daemon tunable from the environment at
// startup through viper, and hands typed values to each component's
// constructor. No component outside this package reads the environment
// directly.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/viper"

	"github.com/solharvest/dlmm-harvester/internal/decode"
	"github.com/solharvest/dlmm-harvester/internal/executor"
	"github.com/solharvest/dlmm-harvester/internal/keeper"
	"github.com/solharvest/dlmm-harvester/internal/subscriber"
)

// ErrMissingRequired is returned for any required environment variable that
// is unset at startup — a Configuration-fatal error per spec.md §7.
type ErrMissingRequired struct {
	Key string
}

func (e *ErrMissingRequired) Error() string {
	return fmt.Sprintf("config: required environment variable %q is unset", e.Key)
}

// Config is the fully-resolved, validated configuration for one process.
type Config struct {
	// Upstream connection.
	StreamEndpoint string
	RPCEndpoint    string
	BearerToken    string

	PositionProgram solana.PublicKey
	PoolProgram     solana.PublicKey

	SigningKeyPath string

	// Downstream listener.
	ListenAddr string

	CacheFilePath string

	// KeeperPriorityFeeFloor floors the priority fee the keeper's Chain
	// refreshes once per processing-path sequence (see internal/keeper
	// §4.4.1). Kept at the top level rather than inside keeper.Config
	// since it configures the concrete solanarpc.Chain, not keeper.Keeper.
	KeeperPriorityFeeFloor uint64

	Subscriber subscriber.Config
	Executor   executor.Config
	Keeper     keeper.Config
}

// Load reads every tunable named in spec.md §6 from the environment,
// applying the documented defaults, with the HARVESTER prefix on every
// key (e.g. HARVESTER_STREAM_ENDPOINT).
func Load() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
	v.AutomaticEnv()

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("cache_file_path", "./data/positions.json")

	v.SetDefault("stream_ping_interval", 10*time.Second)
	v.SetDefault("stream_ping_timeout", 30*time.Second)
	v.SetDefault("stream_reconnect_base", time.Second)
	v.SetDefault("stream_reconnect_max", 60*time.Second)
	v.SetDefault("stream_safety_poll_every", 300*time.Second)
	v.SetDefault("stream_safety_poll_delay", 200*time.Millisecond)
	v.SetDefault("dust_min_position_bins", 2)
	v.SetDefault("dust_min_initial_amount", uint64(100_000_000))

	v.SetDefault("executor_max_concurrent", 5)
	v.SetDefault("executor_retry_attempts", 3)
	v.SetDefault("executor_retry_base", time.Second)
	v.SetDefault("executor_priority_fee_floor", uint64(10_000))
	v.SetDefault("executor_compute_unit_limit", uint32(400_000))
	v.SetDefault("executor_pool_cache_ttl", 600*time.Second)
	v.SetDefault("executor_pool_cache_max", 2000)
	v.SetDefault("executor_shutdown_drain", 30*time.Second)

	v.SetDefault("keeper_active_interval", 3600*time.Second)
	v.SetDefault("keeper_processing_interval", 30*time.Second)
	v.SetDefault("keeper_auto_deposit_threshold", uint64(500_000_000))
	v.SetDefault("keeper_inter_op_delay", 2*time.Second)
	v.SetDefault("keeper_priority_fee_floor", uint64(10_000))

	required := []string{
		"stream_endpoint",
		"rpc_endpoint",
		"bearer_token",
		"position_program",
		"pool_program",
		"signing_key_path",
	}
	for _, key := range required {
		if v.GetString(key) == "" {
			return Config{}, &ErrMissingRequired{Key: strings.ToUpper(v.GetEnvPrefix() + "_" + key)}
		}
	}

	positionProgram, err := solana.PublicKeyFromBase58(v.GetString("position_program"))
	if err != nil {
		return Config{}, fmt.Errorf("config: invalid position_program: %w", err)
	}
	poolProgram, err := solana.PublicKeyFromBase58(v.GetString("pool_program"))
	if err != nil {
		return Config{}, fmt.Errorf("config: invalid pool_program: %w", err)
	}

	cfg := Config{
		StreamEndpoint:  v.GetString("stream_endpoint"),
		RPCEndpoint:     v.GetString("rpc_endpoint"),
		BearerToken:     v.GetString("bearer_token"),
		PositionProgram: positionProgram,
		PoolProgram:     poolProgram,
		SigningKeyPath:  v.GetString("signing_key_path"),
		ListenAddr:      v.GetString("listen_addr"),
		CacheFilePath:   v.GetString("cache_file_path"),

		KeeperPriorityFeeFloor: v.GetUint64("keeper_priority_fee_floor"),

		Subscriber: subscriber.Config{
			PositionProgram:  positionProgram,
			PoolProgram:      poolProgram,
			PoolAccountSize:  uint64(decode.PoolInfoMinSize),
			CacheFilePath:    v.GetString("cache_file_path"),
			MinPositionBins:  v.GetInt32("dust_min_position_bins"),
			MinInitialAmount: v.GetUint64("dust_min_initial_amount"),
			PingInterval:     v.GetDuration("stream_ping_interval"),
			PingTimeout:      v.GetDuration("stream_ping_timeout"),
			ReconnectBase:    v.GetDuration("stream_reconnect_base"),
			ReconnectMax:     v.GetDuration("stream_reconnect_max"),
			SafetyPollEvery:  v.GetDuration("stream_safety_poll_every"),
			SafetyPollDelay:  v.GetDuration("stream_safety_poll_delay"),
		},
		Executor: executor.Config{
			MaxConcurrent:    v.GetInt("executor_max_concurrent"),
			RetryAttempts:    v.GetInt("executor_retry_attempts"),
			RetryBase:        v.GetDuration("executor_retry_base"),
			PriorityFeeFloor: v.GetUint64("executor_priority_fee_floor"),
			ComputeUnitLimit: v.GetUint32("executor_compute_unit_limit"),
			PoolCacheTTL:     v.GetDuration("executor_pool_cache_ttl"),
			PoolCacheMax:     v.GetInt("executor_pool_cache_max"),
			ShutdownDrain:    v.GetDuration("executor_shutdown_drain"),
		},
		Keeper: keeper.Config{
			ActiveInterval:       v.GetDuration("keeper_active_interval"),
			ProcessingInterval:   v.GetDuration("keeper_processing_interval"),
			AutoDepositThreshold: v.GetUint64("keeper_auto_deposit_threshold"),
			InterOpDelay:         v.GetDuration("keeper_inter_op_delay"),
		},
	}
	return cfg, nil
}
