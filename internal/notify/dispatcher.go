package notify

import (
	"context"

	"go.uber.org/zap"

	"aaveCustody/internal/custody"
	"aaveCustody/internal/model"
	"aaveCustody/internal/retry"
	"aaveCustody/internal/storage"
)

// SinkObserver is told about sink delivery outcomes.
type SinkObserver interface {
	ObserveEvent(kind string)
	ObserveSinkError(sink string)
}

// Sink is a named event destination.
type Sink struct {
	Name string
	storage.EventSink
}

// Dispatcher logs every custody event and delivers it to each sink in turn.
// A sink that still fails after retries is logged and skipped; the operation
// that produced the event has already completed.
type Dispatcher struct {
	policy   retry.Policy
	sinks    []Sink
	observer SinkObserver
	logger   *zap.Logger
}

var _ custody.Notifier = (*Dispatcher)(nil)

func NewDispatcher(policy retry.Policy, logger *zap.Logger, observer SinkObserver, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{policy: policy, sinks: sinks, observer: observer, logger: logger}
}

// Notify implements custody.Notifier.
func (d *Dispatcher) Notify(ctx context.Context, event model.CustodyEvent) {
	d.logger.Info("custody event",
		zap.String("id", event.ID),
		zap.String("kind", event.Kind),
		zap.String("token", event.Token),
		zap.String("amount", event.Amount),
		zap.String("caller", event.Caller),
	)
	if d.observer != nil {
		d.observer.ObserveEvent(event.Kind)
	}

	batch := []model.CustodyEvent{event}
	for _, sink := range d.sinks {
		err := retry.Do(ctx, d.policy, func(ctx context.Context) error {
			err := sink.PutEventBatch(ctx, batch)
			if err != nil {
				d.logger.Warn("event sink write failed", zap.String("sink", sink.Name), zap.String("id", event.ID), zap.Error(err))
			}
			return err
		})
		if err != nil {
			d.logger.Error("event sink gave up", zap.String("sink", sink.Name), zap.String("id", event.ID), zap.Error(err))
			if d.observer != nil {
				d.observer.ObserveSinkError(sink.Name)
			}
		}
	}
}
