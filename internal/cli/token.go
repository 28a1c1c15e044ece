package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Tyrone-Ward/nodeify/internal/crypto"
)

// NewTokenCommand creates the token command group.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage client tokens",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <identity>",
		Short: "Issue a token for an identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := openStore(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer ds.Close()

			token, err := crypto.GenerateToken()
			if err != nil {
				return err
			}
			ct, err := ds.CreateClientToken(cmd.Context(), token, args[0])
			if err != nil {
				return fmt.Errorf("create token for %s: %w", args[0], err)
			}

			if rootOpts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), ct)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", ct.Token, ct.Identity)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List client tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := openStore(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer ds.Close()

			tokens, err := ds.ListClientTokens(cmd.Context())
			if err != nil {
				return err
			}

			if rootOpts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), tokens)
			}
			table := newTable(cmd.OutOrStdout(), "TOKEN", "IDENTITY", "CREATED")
			for _, ct := range tokens {
				table.Append([]string{ct.Token, ct.Identity, ct.CreatedAt.Format("2006-01-02 15:04:05")})
			}
			table.Render()
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <token>",
		Short: "Revoke a client token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := openStore(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer ds.Close()

			removed, err := ds.DeleteClientToken(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("token not found")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "removed")
			return nil
		},
	})

	return cmd
}
