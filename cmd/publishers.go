package cmd

import (
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/wheelhouse-index/wheelhouse/internal/core"
	"github.com/wheelhouse-index/wheelhouse/internal/publishers"
)

var publishersCmd = &cobra.Command{
	Use:     "publishers",
	Aliases: []string{"pubs"},
	Short:   "List supported publisher families and their claim surface",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := publishers.NewRegistry(nil)
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.AppendHeader(table.Row{"Kind", "Verified Claims", "Optional Claims"})

		for _, kind := range core.Kinds() {
			spec, ok := publishers.SpecForKind(kind)
			if !ok {
				continue
			}
			t.AppendRow(table.Row{
				color.New(color.Bold).Sprint(kind),
				strings.Join(spec.RequiredVerifiable, ", "),
				strings.Join(spec.OptionalVerifiable, ", "),
			})
		}

		applyTableFormat(t)
		t.Render()

		t2 := table.NewWriter()
		t2.AppendHeader(table.Row{"Issuer URL"})
		for _, issuer := range registry.IssuerURLs() {
			t2.AppendRow(table.Row{issuer})
		}
		applyTableFormat(t2)
		t2.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(publishersCmd)
}
