package mock

import (
	"context"
	"sync"

	"aaveCustody/internal/model"
)

// Events collects custody notifications in order.
type Events struct {
	mu     sync.Mutex
	events []model.CustodyEvent
}

func (e *Events) Notify(_ context.Context, event model.CustodyEvent) {
	e.mu.Lock()
	e.events = append(e.events, event)
	e.mu.Unlock()
}

// All returns a copy of the collected events.
func (e *Events) All() []model.CustodyEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]model.CustodyEvent(nil), e.events...)
}
