// Command harvester runs the DLMM harvest daemon: it loads configuration
// from the environment, wires the stream subscriber, job executor,
// sequencer, and read-only relay together, and serves them until signaled
// to stop.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/solharvest/dlmm-harvester/internal/clock"
	"github.com/solharvest/dlmm-harvester/internal/config"
	"github.com/solharvest/dlmm-harvester/internal/events"
	"github.com/solharvest/dlmm-harvester/internal/executor"
	"github.com/solharvest/dlmm-harvester/internal/keeper"
	"github.com/solharvest/dlmm-harvester/internal/logging"
	"github.com/solharvest/dlmm-harvester/internal/metrics"
	"github.com/solharvest/dlmm-harvester/internal/orchestrator"
	"github.com/solharvest/dlmm-harvester/internal/registry"
	"github.com/solharvest/dlmm-harvester/internal/relay"
	"github.com/solharvest/dlmm-harvester/internal/solanarpc"
	"github.com/solharvest/dlmm-harvester/internal/subscriber"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("harvester: load config: %w", err)
	}

	logLevel := os.Getenv("HARVESTER_LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	log, err := logging.New(logLevel, os.Getenv("HARVESTER_LOG_DEVELOPMENT") == "true")
	if err != nil {
		return fmt.Errorf("harvester: build logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	signer, err := loadSigner(cfg.SigningKeyPath)
	if err != nil {
		return fmt.Errorf("harvester: load signing key: %w", err)
	}
	log.Info("signing identity loaded", zap.String("pubkey", signer.PublicKey().String()))

	client := solanarpc.NewClient(cfg.RPCEndpoint, cfg.PositionProgram)
	stream := solanarpc.NewStream(cfg.StreamEndpoint)
	chain := solanarpc.NewChain(client, signer, solanarpc.ChainConfig{
		PositionProgram:  cfg.PositionProgram,
		PoolProgram:      cfg.PoolProgram,
		NativeMint:       solana.SolMint,
		RevenueWallet:    signer.PublicKey(),
		RentExemptMin:    890_880, // lamports, standard rent-exempt minimum for a zero-data system account
		PriorityFeeFloor: cfg.KeeperPriorityFeeFloor,
	})

	bus := events.NewBus()
	reg := registry.New()
	metricsReg := metrics.New()
	clk := clock.Real{}

	exec := executor.New(cfg.Executor, log, client, bus, signer)
	sub := subscriber.New(cfg.Subscriber, log, reg, stream, client, bus, exec.Enqueue)
	kpr := keeper.New(cfg.Keeper, log, chain, reg, bus, clk)
	rel := relay.New(log, reg, exec, sub, client)

	orch := orchestrator.New(
		orchestrator.Config{ListenAddr: cfg.ListenAddr},
		log, clk, sub, exec, kpr, rel, client, signer.PublicKey(), bus, metricsReg,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting dlmm harvester", zap.String("listen_addr", cfg.ListenAddr))
	return orch.Run(ctx)
}

// loadSigner reads a Solana CLI-style JSON keypair file (a JSON array of
// 64 bytes: the private key followed by the public key) from path.
func loadSigner(path string) (*executor.PrivateKeySigner, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("harvester: read keypair file %s: %w", path, err)
	}
	return executor.NewPrivateKeySigner(key), nil
}
