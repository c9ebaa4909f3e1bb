package main

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/slipway-ci/slipway/internal"
	"github.com/slipway-ci/slipway/internal/service"
	"github.com/slipway-ci/slipway/internal/store"
	"github.com/spf13/cobra"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage webhook keys",
	Long: `Manage the keys that authorize webhook deliveries and API calls.
A key's value is printed once, on creation; listings only ever show
the id and description.`,
}

var keysCreateCmd = &cobra.Command{
	Use:   "create <description>",
	Short: "Mint a webhook key",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysCreate,
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List webhook keys",
	Args:  cobra.NoArgs,
	RunE:  runKeysList,
}

var keysDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a webhook key",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysDelete,
}

func init() {
	keysCmd.AddCommand(keysCreateCmd)
	keysCmd.AddCommand(keysListCmd)
	keysCmd.AddCommand(keysDeleteCmd)
}

func openKeyService() (*service.WebhookKeyService, func()) {
	rdb, rwdb := openDatabases()
	svc := service.NewWebhookKeyService(
		store.NewWebhookKeySQLiteStore(rdb, rwdb),
		service.NewUUIDGen(),
	)
	return svc, func() {
		rdb.Close()
		rwdb.Close()
	}
}

func runKeysCreate(cmd *cobra.Command, args []string) error {
	svc, closeDBs := openKeyService()
	defer closeDBs()

	key, err := svc.CreateWebhookKey(cmd.Context(), args[0])
	if err != nil {
		return &ExitError{Code: internal.ExitConfig, Err: err}
	}
	fmt.Printf("webhook key %d (%s) created\n", key.WebhookKeyID, key.Description)
	fmt.Printf("value, shown only this once: %s\n", key.Value)
	return nil
}

func runKeysList(cmd *cobra.Command, args []string) error {
	svc, closeDBs := openKeyService()
	defer closeDBs()

	keys, err := svc.ListWebhookKeys(cmd.Context())
	if err != nil {
		return &ExitError{Code: internal.ExitConfig, Err: err}
	}
	if len(keys) == 0 {
		fmt.Println("no webhook keys")
		return nil
	}
	fmt.Printf("%-6s %-24s %s\n", "ID", "CREATED", "DESCRIPTION")
	for _, k := range keys {
		fmt.Printf("%-6d %-24s %s\n",
			k.WebhookKeyID, k.CreatedOn.Format(time.RFC3339), k.Description)
	}
	return nil
}

func runKeysDelete(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return &ExitError{
			Code: internal.ExitConfig,
			Err:  fmt.Errorf("webhook key id must be a number, got %q", args[0]),
		}
	}

	svc, closeDBs := openKeyService()
	defer closeDBs()

	if err := svc.DeleteWebhookKey(cmd.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &ExitError{
				Code: internal.ExitConfig,
				Err:  fmt.Errorf("no webhook key %d", id),
			}
		}
		return &ExitError{Code: internal.ExitConfig, Err: err}
	}
	fmt.Printf("webhook key %d deleted\n", id)
	return nil
}
