package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/wheelhouse-index/wheelhouse/pkg/client"
)

var mintRaw bool

var mintCmd = &cobra.Command{
	Use:   "mint [oidc-token]",
	Short: "Exchange an OIDC token for an upload credential",
	Long: `Sends an OIDC token from a CI provider to the server's mint endpoint and
prints the resulting upload credential. Intended for CI plugins and debugging.`,
	Example: `  # Mint using a token from the environment
  wheelhouse mint "$OIDC_TOKEN" --server https://upload.example.org

  # Mint using a token from stdin, printing only the credential
  cat token.jwt | wheelhouse mint - --raw`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var token string
		if args[0] != "-" {
			token = args[0]
		} else {
			data, err := os.ReadFile("/dev/stdin")
			if err != nil {
				return fmt.Errorf("failed to read token from stdin: %w", err)
			}
			token = strings.TrimSpace(string(data))
		}
		if token == "" {
			return fmt.Errorf("token cannot be empty")
		}

		cli, err := getClient()
		if err != nil {
			return err
		}

		result, correlation, err := cli.MintToken(cmd.Context(), token)
		if err != nil {
			var mintErr client.MintFailedError
			if errors.As(err, &mintErr) {
				for _, detail := range mintErr.Errors {
					log.Error().Msgf("%s [%s] %s", redCross, detail.Code, detail.Description)
				}
			}
			return logError(err, correlation, "mint failed")
		}

		if mintRaw {
			fmt.Println(result.Token)
			return nil
		}

		expires := time.Unix(result.Expires, 0)
		log.Info().Msgf("%s credential minted, valid until %s (in %s)",
			greenCheck, expires.Format(time.RFC3339), time.Until(expires).Round(time.Second))
		fmt.Println(result.Token)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mintCmd)

	mintCmd.Flags().BoolVarP(&mintRaw, "raw", "r", false,
		"Output only the credential without additional text")
}
