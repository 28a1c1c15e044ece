// Package cli implements nodeifyctl, the operator command line.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Tyrone-Ward/nodeify/clients/go/nodeify"
	"github.com/Tyrone-Ward/nodeify/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format      string // "json" | "text"
	DatabaseURL string
	SQLitePath  string
	ServerURL   string
	Token       string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for nodeifyctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "nodeifyctl",
		Short: "Operate a nodeify server",
		Long: `Manage client tokens and inspect stored messages directly in the
nodeify database, or talk to a running server over HTTP.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true, // main prints the error
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.DatabaseURL, "database-url", os.Getenv("DATABASE_URL"), "Postgres DSN (default $DATABASE_URL)")
	cmd.PersistentFlags().StringVar(&opts.SQLitePath, "sqlite", envOr("SQLITE_PATH", "./data/nodeify.db"), "SQLite file used when no database URL is set")
	cmd.PersistentFlags().StringVar(&opts.ServerURL, "server", envOr("NODEIFY_URL", "http://localhost:8080"), "server base URL")
	cmd.PersistentFlags().StringVar(&opts.Token, "token", os.Getenv("NODEIFY_TOKEN"), "client token for server commands")

	// Add subcommands
	cmd.AddCommand(NewTokenCommand(opts))
	cmd.AddCommand(NewMessagesCommand(opts))
	cmd.AddCommand(NewSendCommand(opts))
	cmd.AddCommand(NewWhoCommand(opts))
	cmd.AddCommand(NewListenCommand(opts))
	cmd.AddCommand(NewHealthCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// openStore opens the configured store, migrating Postgres first.
func openStore(ctx context.Context, opts *RootOptions) (store.DataStore, error) {
	if opts.DatabaseURL != "" {
		if err := store.RunMigrations(opts.DatabaseURL); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return store.NewPostgresStore(ctx, opts.DatabaseURL)
	}
	return store.NewSQLiteStore(ctx, opts.SQLitePath)
}

func newClient(opts *RootOptions) *nodeify.Client {
	return nodeify.NewClient(opts.ServerURL, opts.Token)
}

func requireToken(opts *RootOptions) error {
	if opts.Token == "" {
		return fmt.Errorf("a client token is required (--token or $NODEIFY_TOKEN)")
	}
	return nil
}

// writeJSON writes v as indented JSON.
func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
