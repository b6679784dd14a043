package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/credleak/internal/model"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich <email>",
	Short: "Show what enrichment derives for an email address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ee, err := initEnrichment()
		if err != nil {
			return err
		}
		defer ee.Close()

		rec := model.NewRecord(0)
		rec.Email = args[0]
		if err := ee.Chain.Enrich(cmd.Context(), rec); err != nil {
			return eris.Wrap(err, "enrich")
		}
		return writeEnrichment(os.Stdout, rec)
	},
}

// enrichmentView is the enrichment-derived subset of a record.
type enrichmentView struct {
	Email           string                 `json:"email"`
	DG              string                 `json:"dg"`
	UserID          string                 `json:"user_id"`
	IsVIP           bool                   `json:"is_vip"`
	ExternalUser    bool                   `json:"external_user"`
	IsActiveAccount bool                   `json:"is_active_account"`
	CredentialType  []model.CredentialType `json:"credential_type"`
	ReportTo        []string               `json:"report_to"`
}

func writeEnrichment(out io.Writer, rec *model.Record) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(enrichmentView{
		Email:           rec.Email,
		DG:              rec.DG,
		UserID:          rec.UserID,
		IsVIP:           model.IsTrue(rec.IsVIP),
		ExternalUser:    model.IsTrue(rec.ExternalUser),
		IsActiveAccount: model.IsTrue(rec.IsActiveAccount),
		CredentialType:  rec.CredentialType,
		ReportTo:        rec.ReportTo,
	})
}

func init() {
	rootCmd.AddCommand(enrichCmd)
}
