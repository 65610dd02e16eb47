package events

import (
	"context"
	"sync"
)

// MockPublisher records published events for test assertions.
type MockPublisher struct {
	PublishOrderCreatedFunc func(ctx context.Context, evt OrderCreated) error

	mu     sync.Mutex
	Orders []OrderCreated
}

var _ Publisher = (*MockPublisher)(nil)

// PublishOrderCreated implements Publisher.
func (m *MockPublisher) PublishOrderCreated(ctx context.Context, evt OrderCreated) error {
	m.mu.Lock()
	m.Orders = append(m.Orders, evt)
	m.mu.Unlock()

	if m.PublishOrderCreatedFunc != nil {
		return m.PublishOrderCreatedFunc(ctx, evt)
	}
	return nil
}
