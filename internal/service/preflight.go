package service

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ValidateDatabaseURL checks that the data source string handed to the
// test stage actually parses as a connection string. Catching a
// malformed DSN here turns a confusing mid-test connection failure into
// a configuration error before any step runs. An empty DSN is fine;
// pipelines without a database simply don't get one.
func ValidateDatabaseURL(dsn string) error {
	if dsn == "" {
		return nil
	}
	if _, err := pgconn.ParseConfig(dsn); err != nil {
		return ConfigError{Message: fmt.Sprintf("invalid database url: %v", err)}
	}
	return nil
}
