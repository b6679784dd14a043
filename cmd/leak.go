package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/credleak/internal/model"
)

var leakCmd = &cobra.Command{
	Use:   "leak",
	Short: "Inspect leaks",
}

var leakListCmd = &cobra.Command{
	Use:   "list",
	Short: "List leaks",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("migrate"); err != nil {
			return err
		}
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		ticket, _ := cmd.Flags().GetString("ticket")
		reporter, _ := cmd.Flags().GetString("reporter")
		source, _ := cmd.Flags().GetString("source-name")
		limit, _ := cmd.Flags().GetInt("limit")

		leaks, err := st.ListLeaks(ctx, model.LeakFilter{
			TicketID:     ticket,
			ReporterName: reporter,
			SourceName:   source,
			Limit:        limit,
		})
		if err != nil {
			return eris.Wrap(err, "leak list")
		}
		if len(leaks) == 0 {
			fmt.Fprintln(os.Stderr, "No leaks found.")
			return nil
		}

		formatLeaks(os.Stdout, leaks)
		return nil
	},
}

// formatLeaks writes a tabular representation of leaks to out.
func formatLeaks(out io.Writer, leaks []model.Leak) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTICKET\tSUMMARY\tREPORTER\tSOURCE\tINGESTED")
	_, _ = fmt.Fprintln(w, "--\t------\t-------\t--------\t------\t--------")

	for _, l := range leaks {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			l.ID, l.TicketID, l.Summary, dash(l.ReporterName), dash(l.SourceName),
			l.IngestionTS.Format(time.DateTime),
		)
	}
	_ = w.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	leakListCmd.Flags().String("ticket", "", "filter by ticket id")
	leakListCmd.Flags().String("reporter", "", "filter by reporter name")
	leakListCmd.Flags().String("source-name", "", "filter by source name")
	leakListCmd.Flags().Int("limit", 100, "maximum leaks to list")
	leakCmd.AddCommand(leakListCmd)
	rootCmd.AddCommand(leakCmd)
}
