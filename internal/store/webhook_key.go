package store

import (
	"context"
	"time"
)

// WebhookKey authorizes trigger events delivered to the webhook
// endpoint. The value travels in a request header, never in the URL.
type WebhookKey struct {
	WebhookKeyID int64 `param:"webhook_key_id"`
	Description  string
	Value        string
	CreatedOn    time.Time
}

type WebhookKeyStore interface {
	CreateWebhookKey(context.Context, string, string) (*WebhookKey, error)
	ReadWebhookKeyByID(context.Context, int64) (*WebhookKey, error)
	ReadWebhookKeyByValue(context.Context, string) (*WebhookKey, error)
	ListWebhookKeys(context.Context) ([]*WebhookKey, error)
	DeleteWebhookKey(context.Context, int64) error
}
