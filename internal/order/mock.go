package order

import (
	"context"
	"fmt"

	"github.com/dukerupert/tiffin/internal/domain"
	"github.com/google/uuid"
)

// MockService is a test implementation of Service.
type MockService struct {
	CreateOrderFunc func(ctx context.Context, draft domain.OrderDraft, method domain.PaymentMethod) (*domain.Order, error)

	// Drafts records every submitted draft.
	Drafts []domain.OrderDraft

	// CallLog tracks method calls for test assertions
	CallLog []string
}

var _ Service = (*MockService)(nil)

// NewMockService creates a mock order service that accepts every order.
func NewMockService() *MockService {
	return &MockService{CallLog: []string{}}
}

// CreateOrder records the call and delegates to CreateOrderFunc when set.
func (m *MockService) CreateOrder(ctx context.Context, draft domain.OrderDraft, method domain.PaymentMethod) (*domain.Order, error) {
	m.CallLog = append(m.CallLog, fmt.Sprintf("CreateOrder(%s, %s, %s)", draft.Type, method, draft.Total.StringFixed(2)))
	m.Drafts = append(m.Drafts, draft)

	if m.CreateOrderFunc != nil {
		return m.CreateOrderFunc(ctx, draft, method)
	}

	return &domain.Order{
		ID:     "ord_" + uuid.New().String(),
		Status: "PENDING",
		Total:  draft.Total,
	}, nil
}
