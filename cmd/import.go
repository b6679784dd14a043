package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/credleak/internal/model"
	"github.com/sells-group/credleak/internal/pipeline"
)

var importFlags struct {
	source     string
	leakID     int64
	ticket     string
	summary    string
	reporter   string
	sourceName string
}

var importCmd = &cobra.Command{
	Use:   "import <file|url>",
	Short: "Ingest a leak dump",
	Long: "Ingests a CSV or XLSX dump from a local path or an http(s):// or ftp:// URL. " +
		"Rows go into an existing leak (--leak-id) or into the leak named by --ticket and --summary, " +
		"which is created when it does not exist.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := importLeakRef()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "import")
		if err != nil {
			return err
		}
		defer env.Close()

		staged, err := env.Stager.Stage(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "stage input")
		}
		defer staged.Remove()

		report, ingestErr := env.Pipeline.Ingest(ctx, pipeline.Request{
			Path:   staged.Path,
			Source: importFlags.source,
			Leak:   ref,
		})
		if report == nil {
			return eris.Wrap(ingestErr, "import")
		}

		formatReport(os.Stdout, report)
		if sent := env.Alerter.Notify(ctx, report); sent > 0 {
			zap.L().Info("alerts sent", zap.Int("count", sent))
		}
		if ingestErr != nil {
			return eris.Wrap(ingestErr, "import")
		}
		return nil
	},
}

// importLeakRef builds the leak reference from the flags: either a leak ID
// or a ticket and summary.
func importLeakRef() (pipeline.LeakRef, error) {
	f := importFlags
	switch {
	case f.leakID > 0 && (f.ticket != "" || f.summary != ""):
		return pipeline.LeakRef{}, eris.New("--leak-id cannot be combined with --ticket or --summary")
	case f.leakID > 0:
		return pipeline.LeakRef{ID: f.leakID}, nil
	case f.ticket == "" || f.summary == "":
		return pipeline.LeakRef{}, eris.New("either --leak-id or both --ticket and --summary are required")
	}

	sourceName := f.sourceName
	if sourceName == "" && (f.source == "" || strings.EqualFold(f.source, "spycloud")) {
		sourceName = model.SourceSpyCloud
	}
	return pipeline.LeakRef{
		TicketID:     f.ticket,
		Summary:      f.summary,
		ReporterName: f.reporter,
		SourceName:   sourceName,
	}, nil
}

// formatReport writes the outcome counts and failed rows of an import.
// Credentials are never printed.
func formatReport(out io.Writer, r *model.ImportReport) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "LEAK\t%d\n", r.LeakID)
	_, _ = fmt.Fprintf(w, "SOURCE\t%s\n", r.Source)
	_, _ = fmt.Fprintf(w, "TOTAL\t%d\n", r.Counts.Total)
	_, _ = fmt.Fprintf(w, "PERSISTED\t%d\n", r.Counts.Persisted)
	_, _ = fmt.Fprintf(w, "QUARANTINED\t%d\n", r.Counts.Quarantined)
	_, _ = fmt.Fprintf(w, "FILTERED OUT\t%d\n", r.Counts.FilteredOut)
	_, _ = fmt.Fprintf(w, "DEDUPLICATED\t%d\n", r.Counts.Deduplicated)
	_, _ = fmt.Fprintf(w, "FAILED\t%d\n", r.Counts.Failed)
	if r.Counts.Unprocessed > 0 {
		_, _ = fmt.Fprintf(w, "UNPROCESSED\t%d\n", r.Counts.Unprocessed)
	}
	_, _ = fmt.Fprintf(w, "DURATION\t%s\n", r.Duration.Round(time.Millisecond))
	_ = w.Flush()

	if len(r.Quarantined) > 0 {
		_, _ = fmt.Fprintln(out)
		w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "ROW\tQUARANTINED\tREASON")
		for _, rec := range r.Quarantined {
			reason := ""
			if rec.ErrorMsg != nil {
				reason = *rec.ErrorMsg
			}
			_, _ = fmt.Fprintf(w, "%d\t%s\t%s\n", rec.Row, rec.Email, reason)
		}
		_ = w.Flush()
	}

	if len(r.Failed) > 0 {
		_, _ = fmt.Fprintln(out)
		w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "ROW\tSTAGE\tERROR")
		for _, f := range r.Failed {
			_, _ = fmt.Fprintf(w, "%d\t%s\t%s\n", f.Row, f.Stage, f.Error)
		}
		_ = w.Flush()
	}
}

func init() {
	f := importCmd.Flags()
	f.StringVar(&importFlags.source, "source", "", "source format: spycloud or idf (default from config)")
	f.Int64Var(&importFlags.leakID, "leak-id", 0, "existing leak to import into")
	f.StringVar(&importFlags.ticket, "ticket", "", "ticket id of the leak")
	f.StringVar(&importFlags.summary, "summary", "", "summary of the leak")
	f.StringVar(&importFlags.reporter, "reporter", "", "reporter name for a new leak")
	f.StringVar(&importFlags.sourceName, "source-name", "", "source name recorded on a new leak (SpyCloud for spycloud dumps)")
	rootCmd.AddCommand(importCmd)
}
