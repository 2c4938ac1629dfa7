package cmd

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/wheelhouse-index/wheelhouse/internal/core"
)

var issuersCmd = &cobra.Command{
	Use:   "issuers",
	Short: "Inspect and toggle issuer families on the server",
	Long:  `List the accepted issuer URLs and flip the per-family kill switch. Requires the admin key.`,
}

var issuersListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List accepted issuers and kill-switch state",
	RunE: func(cmd *cobra.Command, args []string) error {
		cli, err := getClient()
		if err != nil {
			return err
		}

		resp, correlation, err := cli.ListIssuers(cmd.Context())
		if err != nil {
			return logError(err, correlation, "failed to list issuers")
		}

		disabled := make(map[core.Kind]bool)
		for _, kind := range resp.DisabledKinds {
			disabled[kind] = true
		}

		t := table.NewWriter()
		t.AppendHeader(table.Row{"Kind", "Enabled"})
		for _, kind := range core.Kinds() {
			status := greenCheck
			if disabled[kind] {
				status = redCross
			}
			t.AppendRow(table.Row{kind, status})
		}
		applyTableFormat(t)
		t.Render()

		t2 := table.NewWriter()
		t2.AppendHeader(table.Row{"Issuer URL"})
		for _, issuer := range resp.IssuerURLs {
			t2.AppendRow(table.Row{issuer})
		}
		applyTableFormat(t2)
		t2.Render()
		return nil
	},
}

var issuersToggleCmd = &cobra.Command{
	Use:   "toggle KIND",
	Short: "Enable or disable an issuer family",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := core.ParseKind(args[0])
		if err != nil {
			return err
		}
		enabled, err := cmd.Flags().GetBool("enabled")
		if err != nil {
			return err
		}

		cli, err := getClient()
		if err != nil {
			return err
		}

		correlation, err := cli.ToggleIssuerKind(cmd.Context(), kind, enabled)
		if err != nil {
			return logError(err, correlation, "failed to toggle issuer family")
		}

		state := "enabled"
		if !enabled {
			state = "disabled"
		}
		log.Info().Msgf("%s issuer family '%s' is now %s", greenCheck, kind, state)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(issuersCmd)
	issuersCmd.AddCommand(issuersListCmd)
	issuersCmd.AddCommand(issuersToggleCmd)

	issuersToggleCmd.Flags().Bool("enabled", true, "Whether the family should accept tokens")
}
