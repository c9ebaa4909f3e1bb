package testutil

import (
	"context"

	"github.com/slipway-ci/slipway/internal/store"
	"github.com/stretchr/testify/mock"
)

type MockWebhookKeyService struct {
	mock.Mock
}

func (m *MockWebhookKeyService) CreateWebhookKey(
	ctx context.Context,
	description string,
) (*store.WebhookKey, error) {
	args := m.Called(ctx, description)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.WebhookKey), args.Error(1)
}

func (m *MockWebhookKeyService) GetWebhookKeyByID(
	ctx context.Context,
	id int64,
) (*store.WebhookKey, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.WebhookKey), args.Error(1)
}

func (m *MockWebhookKeyService) GetWebhookKeyByValue(
	ctx context.Context,
	value string,
) (*store.WebhookKey, error) {
	args := m.Called(ctx, value)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.WebhookKey), args.Error(1)
}

func (m *MockWebhookKeyService) DeleteWebhookKey(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockWebhookKeyService) ListWebhookKeys(ctx context.Context) ([]*store.WebhookKey, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*store.WebhookKey), args.Error(1)
}
