package custody

import (
	"context"
	"time"

	"aaveCustody/internal/model"
)

// Notifier receives events after an operation has fully completed.
type Notifier interface {
	Notify(ctx context.Context, event model.CustodyEvent)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, event model.CustodyEvent)

func (f NotifierFunc) Notify(ctx context.Context, event model.CustodyEvent) {
	f(ctx, event)
}

// Recorder observes operation outcomes.
type Recorder interface {
	ObserveOperation(operation string, err error, elapsed time.Duration)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, model.CustodyEvent) {}

type nopRecorder struct{}

func (nopRecorder) ObserveOperation(string, error, time.Duration) {}
