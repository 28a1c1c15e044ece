package cli

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Tyrone-Ward/nodeify/clients/go/nodeify"
)

// NewSendCommand creates the send command.
func NewSendCommand(rootOpts *RootOptions) *cobra.Command {
	var to string

	cmd := &cobra.Command{
		Use:   "send --to <identity> <message>",
		Short: "Send a message through the HTTP bridge",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireToken(rootOpts); err != nil {
				return err
			}
			if err := newClient(rootOpts).Send(to, strings.Join(args, " ")); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "delivered")
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "recipient identity")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

// NewWhoCommand creates the who command.
func NewWhoCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "who <identity>",
		Short: "Show whether an identity is online",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireToken(rootOpts); err != nil {
				return err
			}
			p, err := newClient(rootOpts).Who(args[0])
			if err != nil {
				return err
			}

			if rootOpts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), p)
			}
			state := "offline"
			if p.Online {
				state = "online"
			}
			if p.LastSeen != "" {
				state += " (last seen " + p.LastSeen + ")"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", p.Identity, state)
			return nil
		},
	}
}

// NewListenCommand creates the listen command.
func NewListenCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Connect as the token's owner and print incoming messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireToken(rootOpts); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			return newClient(rootOpts).Listen(ctx, func(p nodeify.Push) {
				if rootOpts.Format == "json" {
					_ = writeJSON(out, p)
					return
				}
				fmt.Fprintf(out, "[%s] %s: %s\n", p.Sent, p.Sender, p.Message)
			}, func(err error) {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
			})
		},
	}
}

// NewHealthCommand creates the health command.
func NewHealthCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newClient(rootOpts).Health()
			if resp != nil {
				if werr := writeJSON(cmd.OutOrStdout(), resp); werr != nil {
					return werr
				}
			}
			return err
		},
	}
}
