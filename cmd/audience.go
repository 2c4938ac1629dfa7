package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var audienceCmd = &cobra.Command{
	Use:   "audience",
	Short: "Print the audience value CI plugins must request tokens for",
	RunE: func(cmd *cobra.Command, args []string) error {
		cli, err := getClient()
		if err != nil {
			return err
		}
		audience, correlation, err := cli.Audience(cmd.Context())
		if err != nil {
			return logError(err, correlation, "failed to get audience")
		}
		fmt.Println(audience)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(audienceCmd)
}
