package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/credleak/internal/resilience"
)

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect and retry failed sink writes",
}

var dlqStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List dead-lettered records",
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

		limit, _ := cmd.Flags().GetInt("limit")
		errType, _ := cmd.Flags().GetString("error-type")

		total, err := st.CountDLQ(ctx)
		if err != nil {
			return eris.Wrap(err, "dlq status")
		}
		entries, err := st.ListDLQ(ctx, resilience.DLQFilter{ErrorType: errType, Limit: limit})
		if err != nil {
			return eris.Wrap(err, "dlq status")
		}
		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "Dead letter queue is empty.")
			return nil
		}

		formatDLQ(os.Stdout, entries, time.Now())
		fmt.Fprintf(os.Stderr, "\n%d of %d entries shown.\n", len(entries), total)
		return nil
	},
}

var dlqRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Retry due dead-lettered records through the sink",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initPipeline(ctx, "import")
		if err != nil {
			return err
		}
		defer env.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		summary, err := env.Pipeline.RetryDLQ(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "dlq retry")
		}
		zap.L().Info("dlq retry complete",
			zap.Int("attempted", summary.Attempted),
			zap.Int("succeeded", summary.Succeeded),
			zap.Int("failed", summary.Failed),
		)
		fmt.Fprintf(os.Stdout, "attempted=%d succeeded=%d failed=%d\n", summary.Attempted, summary.Succeeded, summary.Failed)
		return nil
	},
}

// formatDLQ writes a tabular listing of DLQ entries. Records are shown by
// leak, row and email only.
func formatDLQ(out io.Writer, entries []resilience.DLQEntry, now time.Time) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tLEAK\tEMAIL\tSTAGE\tTYPE\tRETRIES\tNEXT RETRY\tERROR")
	_, _ = fmt.Fprintln(w, "--\t----\t-----\t-----\t----\t-------\t----------\t-----")

	for _, e := range entries {
		next := "exhausted"
		if e.CanRetry() {
			next = "due"
			if e.NextRetryAt.After(now) {
				next = "in " + e.NextRetryAt.Sub(now).Round(time.Second).String()
			}
		}
		errMsg := e.Error
		if len(errMsg) > 60 {
			errMsg = errMsg[:57] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			e.ID, e.LeakID, e.Record.Email, e.FailedStage, e.ErrorType,
			e.RetryCount, e.MaxRetries, next, errMsg,
		)
	}
	_ = w.Flush()
}

func init() {
	dlqStatusCmd.Flags().Int("limit", 50, "maximum entries to list")
	dlqStatusCmd.Flags().String("error-type", "", "only list entries of this error type (transient or permanent)")
	dlqRetryCmd.Flags().Int("limit", 100, "maximum entries to retry")
	dlqCmd.AddCommand(dlqStatusCmd, dlqRetryCmd)
	rootCmd.AddCommand(dlqCmd)
}
