package cli

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/0x6d61/wavs/internal/report"
	"github.com/0x6d61/wavs/internal/store"
)

func newReportCmd(a *app) *cobra.Command {
	var (
		scanID  int64
		format  string
		output  string
		verbose bool
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the findings of a scan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reporter, err := report.New(format)
			if err != nil {
				return err
			}
			if tr, ok := reporter.(*report.TextReporter); ok {
				tr.Verbose = verbose
			}

			st, err := store.NewSQLiteStore(a.cfg.Store.Path)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			if scanID == 0 {
				latest, err := st.LatestScan(ctx)
				if err != nil {
					return err
				}
				if latest == nil {
					return fmt.Errorf("no scans recorded in %s", a.cfg.Store.Path)
				}
				scanID = latest.ID
			}

			snap, err := report.Load(ctx, st, scanID)
			if err != nil {
				return err
			}

			var out io.Writer = cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create output file %q: %w", output, err)
				}
				defer f.Close()
				out = f
			}
			return reporter.Generate(ctx, snap, out)
		},
	}
	cmd.Flags().Int64Var(&scanID, "scan", 0, "Scan id (default: latest)")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format (text, json)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file path")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Include descriptions and mitigations")
	return cmd
}

func newScansCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "scans",
		Short: "List recorded scan sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.NewSQLiteStore(a.cfg.Store.Path)
			if err != nil {
				return err
			}
			defer st.Close()

			scans, err := st.Scans(cmd.Context())
			if err != nil {
				return err
			}
			if len(scans) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No scans recorded.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tHOST\tPORT\tSTARTED")
			for _, s := range scans {
				fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", s.ID, s.Host, s.Port, s.StartedAt.Format("2006-01-02 15:04:05"))
			}
			return tw.Flush()
		},
	}
}
