package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/wheelhouse-index/wheelhouse/internal/config"
)

// configValidateCmd represents the config validate command
var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			log.Error().Err(err).Msg("Configuration is invalid.")
			return err
		}
		log.Info().Msgf("Configuration is valid. Enabled issuer families: %v", cfg.EnabledKinds())
		return nil
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)
}
