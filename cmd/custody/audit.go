package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"aaveCustody/internal/aave"
	"aaveCustody/internal/audit"
	"aaveCustody/internal/chain"
	"aaveCustody/internal/config"
	"aaveCustody/internal/retry"
	"aaveCustody/internal/storage"
)

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Export the custody account's Pool supply/withdraw history",
		Args:  cobra.NoArgs,
		RunE:  runAudit,
	}

	f := cmd.Flags()
	f.String("rpc", "", "Ethereum JSON-RPC URL")
	f.String("registry", "", "PoolAddressesProvider address")
	f.String("account", "", "custody account address")
	f.String("private-key", "", "hex private key; its address is used when --account is empty")
	f.Uint64("from", 0, "start block (inclusive)")
	f.Uint64("to", 0, "end block (inclusive), 0 means latest")
	f.Uint64("batch-size", 2000, "blocks per batch")
	f.String("out", "./data/pool_activity.jsonl", "output JSONL path")
	f.String("checkpoint", "./data/audit_checkpoint.json", "checkpoint file path")
	f.Bool("checkpoint-enabled", true, "enable checkpointing")
	f.Int("max-retries", 5, "maximum retry attempts")
	f.Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	f.String("log-level", "info", "log level (debug, info, warn, error)")
	return cmd
}

func runAudit(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadAudit(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if cfg.Out == "" {
		return fmt.Errorf("output path is required")
	}
	registry, err := config.ParseAddress(cfg.Registry)
	if err != nil {
		return fmt.Errorf("registry: %w", err)
	}

	var account common.Address
	switch {
	case cfg.Account != "":
		if account, err = config.ParseAddress(cfg.Account); err != nil {
			return fmt.Errorf("account: %w", err)
		}
	case cfg.PrivateKey != "":
		key, err := chain.ParsePrivateKey(cfg.PrivateKey)
		if err != nil {
			return err
		}
		account = crypto.PubkeyToAddress(key.PublicKey)
	default:
		return fmt.Errorf("account or private key is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer client.Close()

	pool, err := aave.NewBackend(client, nil, logger).Registry(registry).GetPool(ctx)
	if err != nil {
		return fmt.Errorf("resolve pool: %w", err)
	}

	runner, err := audit.NewRunner(audit.RunConfig{
		Pool:              pool,
		Account:           account,
		FromBlock:         cfg.FromBlock,
		ToBlock:           cfg.ToBlock,
		BatchSize:         cfg.BatchSize,
		CheckpointPath:    cfg.Checkpoint,
		CheckpointEnabled: cfg.CheckpointEnabled,
		Retry: retry.Policy{
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  cfg.RetryBackoff,
			MaxDelay:   30 * time.Second,
		},
	}, client, storage.NewJsonlStorage(cfg.Out), logger)
	if err != nil {
		return err
	}

	logger.Info("audit start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("pool", pool.Hex()),
		zap.String("account", account.Hex()),
		zap.Uint64("from", cfg.FromBlock),
		zap.Uint64("to", cfg.ToBlock),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.String("out", cfg.Out),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
	)

	n, err := runner.Run(ctx)
	if err != nil {
		return err
	}
	logger.Info("audit complete", zap.Int("records", n))
	return nil
}
