package store

import (
	"context"
	"database/sql"

	"github.com/georgysavva/scany/v2/sqlscan"
)

func NewWebhookKeySQLiteStore(rdb, rwdb *sql.DB) *WebhookKeySQLiteStore {
	return &WebhookKeySQLiteStore{rdb, rwdb}
}

type WebhookKeySQLiteStore struct {
	rdb, rwdb *sql.DB
}

func (store *WebhookKeySQLiteStore) CreateWebhookKey(
	ctx context.Context,
	description, value string,
) (*WebhookKey, error) {
	key := new(WebhookKey)
	query := `insert into webhook_keys (description, value)
	values ($1, $2)
	returning webhook_key_id, description, value, created_on`
	err := sqlscan.Get(ctx, store.rwdb, key, query, description, value)
	if err != nil {
		return nil, err
	}
	return key, nil
}

func (store *WebhookKeySQLiteStore) ReadWebhookKeyByID(
	ctx context.Context,
	id int64,
) (*WebhookKey, error) {
	key := new(WebhookKey)
	query := `select * from webhook_keys where webhook_key_id = $1`
	err := sqlscan.Get(ctx, store.rdb, key, query, id)
	if err != nil {
		return nil, err
	}
	return key, nil
}

func (store *WebhookKeySQLiteStore) ReadWebhookKeyByValue(
	ctx context.Context,
	value string,
) (*WebhookKey, error) {
	key := new(WebhookKey)
	query := `select * from webhook_keys where value = $1`
	err := sqlscan.Get(ctx, store.rdb, key, query, value)
	if err != nil {
		return nil, err
	}
	return key, nil
}

func (store *WebhookKeySQLiteStore) ListWebhookKeys(
	ctx context.Context,
) ([]*WebhookKey, error) {
	keys := make([]*WebhookKey, 0)
	query := `select * from webhook_keys order by webhook_key_id`
	err := sqlscan.Select(ctx, store.rdb, &keys, query)
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (store *WebhookKeySQLiteStore) DeleteWebhookKey(ctx context.Context, id int64) error {
	query := `delete from webhook_keys where webhook_key_id = $1`
	res, err := store.rwdb.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
