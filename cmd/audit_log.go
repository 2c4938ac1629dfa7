package cmd

import (
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/wheelhouse-index/wheelhouse/pkg/client"
)

// auditLogCmd represents the audit log command
var auditLogCmd = &cobra.Command{
	Use:   "log",
	Short: "Retrieve and display audit log entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, err := cmd.Flags().GetInt("limit")
		if err != nil {
			return err
		}
		publisherID, _ := cmd.Flags().GetString("publisher-id")
		fingerprint, _ := cmd.Flags().GetString("fingerprint")

		cli, err := getClient()
		if err != nil {
			return err
		}

		log.Info().Msg("Fetching audit log...")
		audits, correlation, err := cli.ListAudits(cmd.Context(), client.ListAuditsOpts{
			Limit:       uint(limit),
			PublisherID: publisherID,
			Fingerprint: fingerprint,
		})
		if err != nil {
			return logError(err, correlation, "failed to fetch audit log")
		}

		log.Info().Msgf("Retrieved %d audit entries", len(audits))

		t := table.NewWriter()
		t.AppendHeader(table.Row{
			"Time", "Action", "Issuer", "Publisher", "Success", "Error",
		})

		for _, e := range audits {
			status := greenCheck
			if !e.Success {
				status = redCross
			}

			publisher := e.PublisherKind
			if e.PublisherID != "" {
				publisher += " (" + truncate(e.PublisherID, 12) + ")"
			}

			errText := e.Error
			if e.ErrorCode != "" {
				errText = e.ErrorCode + ": " + errText
			}

			t.AppendRow(table.Row{
				e.Time.Format(time.RFC3339),
				e.Action,
				truncate(e.Issuer, 35),
				publisher,
				status,
				truncate(errText, 45),
			})
		}

		applyTableFormat(t)
		t.Render()
		return nil
	},
}

func init() {
	auditCmd.AddCommand(auditLogCmd)

	auditLogCmd.Flags().IntP("limit", "n", 25, "Number of audit entries to retrieve")
	auditLogCmd.Flags().String("publisher-id", "", "Only show entries for this publisher ID")
	auditLogCmd.Flags().String("fingerprint", "", "Only show entries with this credential fingerprint")
}
