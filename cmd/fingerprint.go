package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/wheelhouse-index/wheelhouse/internal/audit"
)

var fingerprintRaw bool

var fingerprintCmd = &cobra.Command{
	Use:     "fingerprint [credential]",
	Aliases: []string{"fp"},
	Short:   `Calculate the fingerprint of an upload credential`,
	Long: `Calculates the unique fingerprint of an upload credential (SHA256 -> Base64).
This is the value stored in the audit log's 'fingerprint' field, so a leaked
credential can be matched against the mint that produced it.`,
	Example: `  # Calculate the fingerprint of a credential
  wheelhouse fingerprint wheelhouse-AgEIb...

  # Calculate the fingerprint of a credential from stdin
  echo "wheelhouse-..." | wheelhouse fingerprint -`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var credential string

		if args[0] != "-" {
			credential = args[0]
		} else {
			// read from stdin
			log.Debug().Msg("Reading credential from stdin")

			data, err := os.ReadFile("/dev/stdin")
			if err != nil {
				return fmt.Errorf("failed to read credential from stdin: %w", err)
			}
			credential = strings.TrimSpace(string(data))
		}

		if credential == "" {
			return fmt.Errorf("credential cannot be empty")
		}

		fp := audit.Fingerprint(credential)

		if fingerprintRaw {
			fmt.Println(fp)
		} else {
			fmt.Println("Fingerprint: ", fp)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fingerprintCmd)

	fingerprintCmd.Flags().BoolVarP(&fingerprintRaw, "raw", "r", false,
		"Output only the fingerprint value without additional text")
}
