package cmd

import (
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// auditCredentialsCmd lists active upload credentials.
var auditCredentialsCmd = &cobra.Command{
	Use:     "credentials",
	Aliases: []string{"creds"},
	Short:   "List active upload credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		cli, err := getClient()
		if err != nil {
			return err
		}

		log.Info().Msg("Fetching active credentials...")
		credentials, correlation, err := cli.ListActiveCredentials(cmd.Context())
		if err != nil {
			return logError(err, correlation, "failed to fetch active credentials")
		}

		t := table.NewWriter()
		t.AppendHeader(table.Row{"ID", "Description", "Projects", "Expires"})

		for _, c := range credentials {
			t.AppendRow(table.Row{
				truncate(c.ID, 12),
				truncate(c.Description, 50),
				strings.Join(c.ProjectIDs, ", "),
				"in " + time.Until(c.ExpiresAt).Round(time.Second).String(),
			})
		}

		applyTableFormat(t)
		t.Render()
		return nil
	},
}

func init() {
	auditCmd.AddCommand(auditCredentialsCmd)
}
