package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"gymroster/internal/adapters/export"
	"gymroster/internal/adapters/remote"
	domainExport "gymroster/internal/domain/export"
	"gymroster/internal/domain/totals"
)

func newExportCmd(c *cli) *cobra.Command {
	var out, format string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a course month to a CSV, XLSX or JSON file",
		Example: `  rosterctl export -c Yoga -m Ottobre-2025 --out yoga.xlsx
  rosterctl export -c Yoga --format csv > yoga.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := c.key()
			if err != nil {
				return err
			}
			if out != "" {
				if format, err = domainExport.FormatForPath(out); err != nil {
					return fmt.Errorf("%s: %w", out, err)
				}
			}

			var sheet domainExport.Sheet
			err = c.withClient(cmd.Context(), func(client *remote.Client) error {
				rows, err := client.FetchRows(cmd.Context(), key)
				if err != nil {
					return fmt.Errorf("fetch rows: %w", err)
				}
				t, err := client.FetchTotals(cmd.Context(), key)
				if err != nil {
					return fmt.Errorf("fetch totals: %w", err)
				}
				sheet = domainExport.NewSheet(key, rows)
				sheet.Cash, sheet.Instructor = t.Cash, t.Instructor
				return nil
			})
			if err != nil {
				return err
			}

			if out == "" {
				return export.Write(cmd.OutOrStdout(), format, sheet)
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := export.Write(f, format, sheet); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			slog.Info("roster_exported", "course", key.Course, "month", key.Month, "rows", len(sheet.Records), "file", out)
			return nil
		},
	}
	c.courseFlags(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file; the extension picks the format")
	cmd.Flags().StringVar(&format, "format", domainExport.FormatCSV, "format when writing to stdout (csv, xlsx, json)")
	return cmd
}

func newImportCmd(c *cli) *cobra.Command {
	var in string
	var withTotals bool
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Replace a course month with the rows of a sheet",
		Long: `import reads a CSV, XLSX or JSON sheet and replaces the stored rows of
the course month with its non-blank rows. XLSX and JSON sheets name their
own course and month; --course and --month override them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := domainExport.FormatForPath(in)
			if err != nil {
				return fmt.Errorf("%s: %w", in, err)
			}
			f, err := os.Open(in)
			if err != nil {
				return err
			}
			sheet, err := export.Read(f, format)
			f.Close()
			if err != nil {
				return fmt.Errorf("read %s: %w", in, err)
			}

			if !cmd.Flags().Changed("course") {
				c.course = sheet.Course
			}
			if !cmd.Flags().Changed("month") && sheet.Month != "" {
				c.month = sheet.Month
			}
			key, err := c.key()
			if err != nil {
				return err
			}

			rows := sheet.Rows()
			err = c.withClient(cmd.Context(), func(client *remote.Client) error {
				if err := client.CommitRows(cmd.Context(), key, rows); err != nil {
					return fmt.Errorf("commit rows: %w", err)
				}
				if !withTotals {
					return nil
				}
				return client.SaveTotals(cmd.Context(), key, totals.Patch{Cash: &sheet.Cash, Instructor: &sheet.Instructor})
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %d righe importate\n", key.Course, key.Month, len(rows))
			return nil
		},
	}
	cmd.Flags().StringVarP(&in, "in", "i", "", "sheet to import (required)")
	cmd.Flags().BoolVar(&withTotals, "totals", false, "also store the sheet's totals")
	_ = cmd.MarkFlagRequired("in")
	c.courseFlags(cmd)
	return cmd
}
