package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"aaveCustody/internal/aave"
	"aaveCustody/internal/chain"
	"aaveCustody/internal/config"
	"aaveCustody/internal/custody"
	"aaveCustody/internal/notify"
	"aaveCustody/internal/observability"
	"aaveCustody/internal/retry"
	"aaveCustody/internal/storage"
	"aaveCustody/internal/storage/natsbus"
	"aaveCustody/internal/storage/postgres"
)

// app is the wiring shared by commands that act through a Module.
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	chain   *chain.Client
	backend *aave.Backend
	tokens  *aave.TokenMetaCache
	metrics *observability.Metrics
	store   *postgres.Store
	module  *custody.Module
	caller  common.Address

	closers []func()
}

// newApp connects to the chain, resolves the Pool and wires the event sinks.
// Without a private key the Module can only serve reads.
func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: observability.NewMetrics(),
		tokens:  aave.NewTokenMetaCache(),
	}
	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context) error {
	cfg := a.cfg
	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	registry, err := config.ParseAddress(cfg.Registry)
	if err != nil {
		return fmt.Errorf("registry: %w", err)
	}

	client, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	a.chain = client
	a.closers = append(a.closers, client.Close)

	var sender aave.Sender
	var signer common.Address
	if cfg.PrivateKey != "" {
		key, err := chain.ParsePrivateKey(cfg.PrivateKey)
		if err != nil {
			return err
		}
		tx, err := chain.NewTransactor(ctx, client.Backend(), key, a.logger)
		if err != nil {
			return err
		}
		sender = tx
		signer = tx.From()
	}
	a.backend = aave.NewBackend(client, sender, a.logger)

	owner, self, caller, err := resolveIdentities(cfg, signer)
	if err != nil {
		return err
	}
	a.caller = caller

	var link common.Address
	if cfg.LinkToken != "" {
		if link, err = config.ParseAddress(cfg.LinkToken); err != nil {
			return fmt.Errorf("link token: %w", err)
		}
	}

	sinks, err := a.sinks(ctx)
	if err != nil {
		return err
	}
	dispatcher := notify.NewDispatcher(retry.Policy{
		MaxRetries: cfg.SinkRetries,
		BaseDelay:  cfg.SinkRetryBackoff,
	}, a.logger, a.metrics, sinks...)

	module, err := custody.New(ctx, owner, registry, a.backend,
		custody.WithSelf(self),
		custody.WithLinkToken(link),
		custody.WithNotifier(dispatcher),
		custody.WithRecorder(a.metrics),
		custody.WithLogger(a.logger),
	)
	if err != nil {
		return err
	}
	a.module = module

	a.logger.Info("custody ready",
		zap.String("rpc", cfg.RPCURL),
		zap.String("registry", registry.Hex()),
		zap.String("pool", module.PoolAddress().Hex()),
		zap.String("owner", owner.Hex()),
		zap.String("self", self.Hex()),
		zap.Bool("signer", sender != nil),
		zap.Int("sinks", len(sinks)),
	)
	return nil
}

func (a *app) sinks(ctx context.Context) ([]notify.Sink, error) {
	var sinks []notify.Sink
	if a.cfg.EventsOut != "" {
		sinks = append(sinks, notify.Sink{Name: "jsonl", EventSink: storage.NewJsonlStorage(a.cfg.EventsOut)})
	}
	if a.cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, a.cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.store = store
		a.closers = append(a.closers, store.Close)
		sinks = append(sinks, notify.Sink{Name: "postgres", EventSink: store})
	}
	if a.cfg.NATSURL != "" {
		pub, err := natsbus.Connect(ctx, a.cfg.NATSURL, a.cfg.NATSSubjectPrefix)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pub.Close)
		sinks = append(sinks, notify.Sink{Name: "nats", EventSink: pub})
	}
	return sinks, nil
}

// Close releases connections in reverse order and flushes the logger.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	_ = a.logger.Sync()
}

// resolveIdentities picks the owner, the custody account and the acting caller.
// With a signer the custody account is the signer; without one it must be
// given as --account.
func resolveIdentities(cfg config.Config, signer common.Address) (owner, self, caller common.Address, err error) {
	var account common.Address
	if cfg.Account != "" {
		if account, err = config.ParseAddress(cfg.Account); err != nil {
			return owner, self, caller, fmt.Errorf("account: %w", err)
		}
	}
	switch {
	case signer != (common.Address{}):
		if account != (common.Address{}) && account != signer {
			return owner, self, caller, fmt.Errorf("account %s does not match signer %s", account.Hex(), signer.Hex())
		}
		self = signer
	case account != (common.Address{}):
		self = account
	default:
		return owner, self, caller, fmt.Errorf("account is required when no private key is configured")
	}

	owner = self
	if cfg.Owner != "" {
		if owner, err = config.ParseAddress(cfg.Owner); err != nil {
			return owner, self, caller, fmt.Errorf("owner: %w", err)
		}
	}
	if owner == (common.Address{}) {
		return owner, self, caller, fmt.Errorf("owner must not be the zero address")
	}

	caller = self
	if cfg.Caller != "" {
		if caller, err = config.ParseAddress(cfg.Caller); err != nil {
			return owner, self, caller, fmt.Errorf("caller: %w", err)
		}
	}
	return owner, self, caller, nil
}
