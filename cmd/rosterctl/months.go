package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"gymroster/internal/domain/month"
)

func newMonthsCmd(c *cli) *cobra.Command {
	var server bool
	cmd := &cobra.Command{
		Use:   "months",
		Short: "Print the month keys the console offers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			keys := month.Keys(c.cfg.Months.ConsoleSequence())
			if server {
				keys = c.cfg.Months.ServerKeys()
			}
			for _, k := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&server, "server", false, "print the store's registration sequence instead")
	return cmd
}
