package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "custody",
		Short:        "Owner-gated custody relay for an Aave v3 Pool",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	root.AddCommand(
		moduleCmd(&cobra.Command{
			Use:   "supply <token> <amount>",
			Short: "Supply custody-held tokens to the Pool",
			Args:  cobra.ExactArgs(2),
			RunE:  runSupply,
		}),
		moduleCmd(&cobra.Command{
			Use:   "withdraw-liquidity <token> <amount>",
			Short: "Withdraw supplied tokens from the Pool to the custody account",
			Args:  cobra.ExactArgs(2),
			RunE:  runWithdrawLiquidity,
		}),
		withPersist(moduleCmd(&cobra.Command{
			Use:   "account-data [user]",
			Short: "Show the Pool's risk data for a user (defaults to the custody account)",
			Args:  cobra.MaximumNArgs(1),
			RunE:  runAccountData,
		})),
		moduleCmd(&cobra.Command{
			Use:   "approve-link <spender> <amount>",
			Short: "Approve a spender for the custody account's LINK",
			Args:  cobra.ExactArgs(2),
			RunE:  runApproveLink,
		}),
		moduleCmd(&cobra.Command{
			Use:   "allowance-link <spender>",
			Short: "Show the LINK allowance granted by the custody account",
			Args:  cobra.ExactArgs(1),
			RunE:  runAllowanceLink,
		}),
		moduleCmd(&cobra.Command{
			Use:   "balance <token>",
			Short: "Show the custody account's balance of a token",
			Args:  cobra.ExactArgs(1),
			RunE:  runBalance,
		}),
		moduleCmd(&cobra.Command{
			Use:   "withdraw <token>",
			Short: "Transfer the custody account's full token balance to the owner (owner only)",
			Args:  cobra.ExactArgs(1),
			RunE:  runWithdraw,
		}),
		serveCmd(),
		auditCmd(),
		eventsCmd(),
		migrateCmd(),
	)

	return root
}

// moduleCmd adds the flags every command that builds a Module shares.
func moduleCmd(cmd *cobra.Command) *cobra.Command {
	f := cmd.Flags()
	f.String("rpc", "", "Ethereum JSON-RPC URL")
	f.String("registry", "", "PoolAddressesProvider address")
	f.String("private-key", "", "hex private key of the custody account")
	f.String("account", "", "custody account address (required without a private key)")
	f.String("owner", "", "owner address (defaults to the custody account)")
	f.String("caller", "", "address the command acts as (defaults to the custody account)")
	f.String("link-token", "", "LINK token address")
	f.String("events-out", "", "append custody events to this JSONL file")
	f.String("pg-dsn", "", "Postgres DSN for the event store")
	f.String("nats-url", "", "NATS URL for event publishing")
	f.String("nats-subject-prefix", "custody.events", "NATS subject prefix")
	f.Int("sink-retries", 3, "retries per event sink")
	f.Duration("sink-retry-backoff", 200*time.Millisecond, "initial event sink retry backoff")
	f.String("log-level", "info", "log level (debug, info, warn, error)")
	return cmd
}

func withPersist(cmd *cobra.Command) *cobra.Command {
	cmd.Flags().Bool("persist", false, "store the snapshot in Postgres (requires --pg-dsn)")
	return cmd
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
