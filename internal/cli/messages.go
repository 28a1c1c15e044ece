package cli

import (
	"github.com/spf13/cobra"

	"github.com/Tyrone-Ward/nodeify/internal/models"
)

// NewMessagesCommand creates the messages command group.
func NewMessagesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "messages",
		Short: "Inspect stored messages",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List messages, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := openStore(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer ds.Close()

			msgs, err := ds.ListMessages(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if rootOpts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), msgs)
			}
			table := newTable(cmd.OutOrStdout(), "SENT", "FROM", "TO", "STATUS", "MESSAGE")
			for _, m := range msgs {
				table.Append([]string{
					m.CreatedAt.Format("2006-01-02 15:04:05"), m.Sender, m.Recipient, status(m.Delivered), m.Body,
				})
			}
			table.Render()
			return nil
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 50, "maximum number of messages")
	cmd.AddCommand(list)

	return cmd
}

func status(d models.DeliveryState) string {
	switch d {
	case models.DeliveryDelivered:
		return "Delivered"
	case models.DeliveryPending:
		return "Not delivered"
	default:
		return "-"
	}
}
