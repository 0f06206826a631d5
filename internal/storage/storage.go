package storage

import (
	"context"

	"aaveCustody/internal/model"
)

// EventSink persists custody events.
type EventSink interface {
	PutEventBatch(ctx context.Context, events []model.CustodyEvent) error
}

// ActivitySink persists decoded pool activity.
type ActivitySink interface {
	PutActivityBatch(activity []model.PoolActivity) error
}
