package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"gymroster/internal/adapters/remote"
)

func newOutboxCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and repair queued emails on the store",
	}

	var pending bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List failed emails, or pending ones with --pending",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status := ""
			if pending {
				status = "pending"
			}
			return c.withClient(cmd.Context(), func(client *remote.Client) error {
				entries, err := client.ListOutbox(cmd.Context(), status)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tTIPO\tDESTINATARIO\tSTATO\tTENTATIVI\tERRORE")
				for _, e := range entries {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%s\n", e.ID, e.Kind, e.To, e.Status, e.Attempts, e.MaxAttempts, e.Error)
				}
				return w.Flush()
			})
		},
	}
	list.Flags().BoolVar(&pending, "pending", false, "list emails still waiting for delivery")

	retry := &cobra.Command{
		Use:   "retry ID",
		Short: "Attempt a failed email again now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withClient(cmd.Context(), func(client *remote.Client) error {
				e, err := client.RetryOutbox(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", e.ID, e.Status)
				return nil
			})
		},
	}

	abandon := &cobra.Command{
		Use:   "abandon ID",
		Short: "Stop attempting an email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withClient(cmd.Context(), func(client *remote.Client) error {
				if err := client.AbandonOutbox(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: abandoned\n", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(list, retry, abandon)
	return cmd
}
