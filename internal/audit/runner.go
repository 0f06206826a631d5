// Package audit scans Pool logs for Supply and Withdraw activity of the
// custody account and writes decoded records to an ActivitySink.
package audit

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"aaveCustody/internal/model"
	"aaveCustody/internal/retry"
	"aaveCustody/internal/storage"
)

// LogSource is the chain access the audit needs.
type LogSource interface {
	GetChainID(ctx context.Context) (*big.Int, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topics [][]common.Hash) ([]types.Log, error)
}

// RunConfig holds runtime settings for an audit.
type RunConfig struct {
	Pool              common.Address
	Account           common.Address
	FromBlock         uint64
	ToBlock           uint64
	BatchSize         uint64
	CheckpointPath    string
	CheckpointEnabled bool
	Retry             retry.Policy
}

// Runner walks a block range in batches.
type Runner struct {
	cfg        RunConfig
	source     LogSource
	sink       storage.ActivitySink
	decoder    *Decoder
	checkpoint *CheckpointStore
	logger     *zap.Logger
	seen       map[string]struct{}
	now        func() time.Time
}

func NewRunner(cfg RunConfig, source LogSource, sink storage.ActivitySink, logger *zap.Logger) (*Runner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	decoder, err := NewDecoder()
	if err != nil {
		return nil, err
	}
	return &Runner{
		cfg:        cfg,
		source:     source,
		sink:       sink,
		decoder:    decoder,
		checkpoint: NewCheckpointStore(cfg.CheckpointPath, cfg.CheckpointEnabled),
		logger:     logger,
		seen:       make(map[string]struct{}),
		now:        time.Now,
	}, nil
}

// Run scans [FromBlock, ToBlock], resuming after the checkpoint when one
// exists for the same pool and account. ToBlock 0 means the latest block.
// It returns the number of records written.
func (r *Runner) Run(ctx context.Context) (int, error) {
	if r.source == nil {
		return 0, fmt.Errorf("log source is nil")
	}
	if r.sink == nil {
		return 0, fmt.Errorf("activity sink is nil")
	}
	if r.cfg.BatchSize == 0 {
		return 0, fmt.Errorf("batch size must be greater than zero")
	}
	if r.cfg.Pool == (common.Address{}) {
		return 0, fmt.Errorf("pool address is required")
	}

	chainID, err := r.source.GetChainID(ctx)
	if err != nil {
		return 0, fmt.Errorf("get chain id: %w", err)
	}
	if !chainID.IsUint64() {
		return 0, fmt.Errorf("chain id does not fit in uint64: %s", chainID)
	}

	to := r.cfg.ToBlock
	if to == 0 {
		if to, err = r.source.LatestBlockNumber(ctx); err != nil {
			return 0, fmt.Errorf("get latest block: %w", err)
		}
	}

	pool, account := r.cfg.Pool.Hex(), r.cfg.Account.Hex()
	cp, ok, err := r.checkpoint.Load(pool, account)
	if err != nil {
		return 0, err
	}
	from := resumeFrom(r.cfg.FromBlock, cp, ok)
	if from != r.cfg.FromBlock {
		r.logger.Info("resume from checkpoint", zap.Uint64("last_processed", cp.LastProcessedBlock), zap.Uint64("from", from))
	}
	if from > to {
		r.logger.Info("nothing to audit", zap.Uint64("from", from), zap.Uint64("to", to))
		return 0, nil
	}

	ranges, err := SplitRange(from, to, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	topics := r.decoder.Topics(r.cfg.Account)
	total := 0
	for _, br := range ranges {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		var logs []types.Log
		err := retry.Do(ctx, r.cfg.Retry, func(ctx context.Context) error {
			var err error
			logs, err = r.source.FilterLogs(ctx, br.From, br.To, []common.Address{r.cfg.Pool}, topics)
			if err != nil {
				r.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", br.From), zap.Uint64("to", br.To))
			}
			return err
		})
		if err != nil {
			return total, fmt.Errorf("filter logs %d-%d: %w", br.From, br.To, err)
		}

		ingestedAt := r.now()
		batch := make([]model.PoolActivity, 0, len(logs))
		for _, log := range logs {
			if log.Removed || r.duplicate(log) {
				continue
			}
			ts, err := r.blockTimestamp(ctx, log.BlockNumber)
			if err != nil {
				return total, fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
			}
			activity, err := r.decoder.Decode(chainID.Uint64(), log, ts, ingestedAt)
			if err != nil {
				r.logger.Warn("skip undecodable log", zap.Error(err), zap.String("tx", log.TxHash.Hex()), zap.Uint("index", log.Index))
				continue
			}
			batch = append(batch, activity)
		}

		if err := r.sink.PutActivityBatch(batch); err != nil {
			return total, fmt.Errorf("store activity: %w", err)
		}
		if err := r.checkpoint.Save(pool, account, br.To); err != nil {
			return total, err
		}
		total += len(batch)

		r.logger.Info("batch complete", zap.Int("records", len(batch)), zap.Uint64("from", br.From), zap.Uint64("to", br.To))
	}

	return total, nil
}

func (r *Runner) blockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	var ts uint64
	err := retry.Do(ctx, r.cfg.Retry, func(ctx context.Context) error {
		var err error
		ts, err = r.source.BlockTimestamp(ctx, number)
		return err
	})
	return ts, err
}

func (r *Runner) duplicate(log types.Log) bool {
	id := fmt.Sprintf("%s:%d", log.TxHash.Hex(), log.Index)
	if _, ok := r.seen[id]; ok {
		return true
	}
	r.seen[id] = struct{}{}
	return false
}
