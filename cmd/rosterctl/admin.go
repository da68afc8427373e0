package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"gymroster/internal/adapters/remote"
	"gymroster/internal/application/aggregates"
	"gymroster/internal/domain/totals"
)

func newTotalsCmd(c *cli) *cobra.Command {
	var cash, instructor string
	var compute bool
	cmd := &cobra.Command{
		Use:   "totals",
		Short: "Show or set the totals of a course month",
		Long: `Without flags totals prints the stored cash and instructor totals.
--cash and --instructor overwrite one or both; --compute stores the sum
of the paid amounts as the cash total. Fields not named are left alone.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := c.key()
			if err != nil {
				return err
			}
			var patch totals.Patch
			if cmd.Flags().Changed("cash") {
				v, err := aggregates.ParseInstructorAmount(cash)
				if err != nil {
					return fmt.Errorf("--cash %q: %w", cash, err)
				}
				patch.Cash = &v
			}
			if cmd.Flags().Changed("instructor") {
				v, err := aggregates.ParseInstructorAmount(instructor)
				if err != nil {
					return fmt.Errorf("--instructor %q: %w", instructor, err)
				}
				patch.Instructor = &v
			}

			return c.withClient(cmd.Context(), func(client *remote.Client) error {
				if compute {
					rows, err := client.FetchRows(cmd.Context(), key)
					if err != nil {
						return fmt.Errorf("fetch rows: %w", err)
					}
					sum := aggregates.MonthlyPaidTotal(rows)
					patch.Cash = &sum
				}
				if !patch.IsEmpty() {
					if err := client.SaveTotals(cmd.Context(), key, patch); err != nil {
						return fmt.Errorf("save totals: %w", err)
					}
				}
				t, err := client.FetchTotals(cmd.Context(), key)
				if err != nil {
					return fmt.Errorf("fetch totals: %w", err)
				}
				printTotals(cmd, t)
				return nil
			})
		},
	}
	c.courseFlags(cmd)
	cmd.Flags().StringVar(&cash, "cash", "", "set the cash total")
	cmd.Flags().StringVar(&instructor, "instructor", "", "set the instructor total")
	cmd.Flags().BoolVar(&compute, "compute", false, "store the sum of paid amounts as the cash total")
	cmd.MarkFlagsMutuallyExclusive("cash", "compute")
	return cmd
}

func printTotals(cmd *cobra.Command, t totals.Totals) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Corso\t%s\n", t.Course)
	fmt.Fprintf(w, "Mese\t%s\n", t.Month)
	fmt.Fprintf(w, "Totale cassa\t%s\n", aggregates.FormatEuro(t.Cash))
	fmt.Fprintf(w, "Totale istruttore\t%s\n", aggregates.FormatEuro(t.Instructor))
	w.Flush()
}

func newMembersCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "members",
		Short: "List the members registered on the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withClient(cmd.Context(), func(client *remote.Client) error {
				members, err := client.ListMembers(cmd.Context())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNOME\tEMAIL\tCELL\tREGISTRATO")
				for _, m := range members {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", m.ID, m.FullName, m.Email, m.Phone, m.CreatedAt)
				}
				return w.Flush()
			})
		},
	}
}

func newRemindCmd(c *cli) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "remind",
		Short: "Queue a payment reminder for every unpaid row of a course month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := c.key()
			if err != nil {
				return err
			}
			return c.withClient(cmd.Context(), func(client *remote.Client) error {
				rows, err := client.FetchRows(cmd.Context(), key)
				if err != nil {
					return fmt.Errorf("fetch rows: %w", err)
				}
				emails := aggregates.UnpaidEmails(rows)
				out := cmd.OutOrStdout()
				if len(emails) == 0 {
					fmt.Fprintln(out, "Tutti hanno già pagato!")
					return nil
				}
				if dryRun {
					for _, e := range emails {
						fmt.Fprintln(out, e)
					}
					return nil
				}
				res, err := client.SendPaymentReminder(cmd.Context(), key.Month, emails)
				if err != nil {
					return fmt.Errorf("send reminders: %w", err)
				}
				fmt.Fprintf(out, "Mail inviate correttamente: %d\n", len(res.Sent))
				for _, e := range res.Failed {
					fmt.Fprintf(out, "non inviata: %s\n", e)
				}
				return nil
			})
		},
	}
	c.courseFlags(cmd)
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the addresses without sending")
	return cmd
}

