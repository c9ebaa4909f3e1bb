package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/slipway-ci/slipway/internal/store"
)

type UUIDGenerator interface {
	GenerateUUID() string
}

type WebhookKeyServicer interface {
	CreateWebhookKey(ctx context.Context, description string) (*store.WebhookKey, error)
	GetWebhookKeyByID(ctx context.Context, id int64) (*store.WebhookKey, error)
	GetWebhookKeyByValue(ctx context.Context, value string) (*store.WebhookKey, error)
	DeleteWebhookKey(ctx context.Context, id int64) error
	ListWebhookKeys(ctx context.Context) ([]*store.WebhookKey, error)
}

func NewUUIDGen() *UUIDGen {
	return &UUIDGen{}
}

type UUIDGen struct{}

func (ug *UUIDGen) GenerateUUID() string {
	return uuid.NewString()
}

// WebhookKeyService mints and looks up the keys that authorize trigger
// deliveries. Key values are random UUIDs; callers present them in a
// request header.
type WebhookKeyService struct {
	store         store.WebhookKeyStore
	uuidGenerator UUIDGenerator
}

func NewWebhookKeyService(
	store store.WebhookKeyStore,
	uuidGenerator UUIDGenerator,
) *WebhookKeyService {
	return &WebhookKeyService{store, uuidGenerator}
}

func (s *WebhookKeyService) CreateWebhookKey(
	ctx context.Context,
	description string,
) (*store.WebhookKey, error) {
	value := s.uuidGenerator.GenerateUUID()
	return s.store.CreateWebhookKey(ctx, description, value)
}

func (s *WebhookKeyService) GetWebhookKeyByID(
	ctx context.Context,
	id int64,
) (*store.WebhookKey, error) {
	return s.store.ReadWebhookKeyByID(ctx, id)
}

func (s *WebhookKeyService) GetWebhookKeyByValue(
	ctx context.Context,
	value string,
) (*store.WebhookKey, error) {
	return s.store.ReadWebhookKeyByValue(ctx, value)
}

func (s *WebhookKeyService) DeleteWebhookKey(ctx context.Context, id int64) error {
	return s.store.DeleteWebhookKey(ctx, id)
}

func (s *WebhookKeyService) ListWebhookKeys(ctx context.Context) ([]*store.WebhookKey, error) {
	return s.store.ListWebhookKeys(ctx)
}
