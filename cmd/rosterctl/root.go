package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"gymroster/internal/adapters/remote"
	"gymroster/internal/config"
	"gymroster/internal/domain/month"
	"gymroster/internal/domain/roster"
)

// cli holds the flags shared by every subcommand.
type cli struct {
	cfg       config.Config
	remoteURL string
	username  string
	password  string
	course    string
	month     string
}

func newRootCmd(cfg config.Config) *cobra.Command {
	c := &cli{cfg: cfg}
	root := &cobra.Command{
		Use:   "rosterctl",
		Short: "Manage course rosters on a roster store",
		Long: `rosterctl talks to a running roster store as the admin.
It exports a course month to CSV, XLSX or JSON, imports a sheet back,
reads and patches the monthly totals, lists members and queues payment
reminders for unpaid rows and repairs
the email outbox.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&c.remoteURL, "remote", cfg.Console.RemoteURL, "roster store base URL")
	root.PersistentFlags().StringVarP(&c.username, "username", "u", cfg.Server.AdminUsername, "admin username")
	root.PersistentFlags().StringVarP(&c.password, "password", "p", cfg.Server.AdminPassword, "admin password (GYMROSTER_ADMIN_PASSWORD)")

	root.AddCommand(
		newMonthsCmd(c),
		newExportCmd(c),
		newImportCmd(c),
		newTotalsCmd(c),
		newMembersCmd(c),
		newRemindCmd(c),
		newOutboxCmd(c),
	)
	return root
}

// courseFlags registers --course and --month on cmd.
func (c *cli) courseFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&c.course, "course", "c", "", "course name")
	cmd.Flags().StringVarP(&c.month, "month", "m", month.DefaultKey, "month key, for example Ottobre-2025")
}

// key validates the course and month flags.
func (c *cli) key() (roster.Key, error) {
	if c.course == "" {
		return roster.Key{}, roster.ErrEmptyCourse
	}
	m, err := month.Parse(c.month)
	if err != nil {
		return roster.Key{}, fmt.Errorf("month %q: %w", c.month, err)
	}
	return roster.Key{Course: c.course, Month: m.Key()}, nil
}

// withClient logs in, runs fn and logs out again.
func (c *cli) withClient(ctx context.Context, fn func(*remote.Client) error) error {
	if c.password == "" {
		return fmt.Errorf("admin password required: pass --password or set GYMROSTER_ADMIN_PASSWORD")
	}
	httpClient := remote.DefaultHTTPClient()
	if c.cfg.Console.RemoteTimeout > 0 {
		httpClient.Timeout = c.cfg.Console.RemoteTimeout
	}
	client := remote.New(c.remoteURL, httpClient)
	if err := client.AdminLogin(ctx, c.username, c.password); err != nil {
		return fmt.Errorf("login to %s: %w", c.remoteURL, err)
	}
	defer func() {
		if err := client.AdminLogout(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("logout_failed", "remote", client.String(), "error", err)
		}
	}()
	return fn(client)
}
