package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/wheelhouse-index/wheelhouse/internal/buildinfo"
	"github.com/wheelhouse-index/wheelhouse/internal/logging"
)

// global flags
var (
	cfgFile    string
	serverAddr string
)

const (
	LogLevelKey  = "log.level"
	LogPrettyKey = "log.pretty"

	ServerAddrKey = "addr"
	AdminKeyKey   = "admin_key"
)

var rootCmd = &cobra.Command{
	Use:   "wheelhouse",
	Short: fmt.Sprintf("Wheelhouse trusted publishing service (version: %s, commit: %s)", buildinfo.Version, buildinfo.CommitHash),
	Long: `Wheelhouse exchanges OIDC tokens from CI/CD providers (GitHub Actions,
GitLab CI, Google Cloud, ActiveState, CircleCI, Semaphore, Buildkite) for
short-lived, project-scoped package upload credentials.`,
	Version: buildinfo.Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configPath, configErr := initUserConfig()
		logging.Setup(viper.GetString(LogLevelKey), viper.GetBool(LogPrettyKey))
		if configErr != nil { // handle error after logging is initialized
			return configErr
		}
		if configPath != "" {
			log.Debug().Msgf("using user config file: %s", configPath)
		}
		return nil
	},
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		log.Fatal().Err(err).Msg("execution failed")
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "wheelhouse.yaml",
		"Server configuration file")

	flags := rootCmd.PersistentFlags()
	bindFlag(flags, "log-level", "info", "Log level (debug, info, warn, error)", LogLevelKey)
	bindBoolFlag(flags, "pretty", false, "Human-readable console log output", LogPrettyKey)

	flags.StringVar(&serverAddr, "server", "", "Address of a remote wheelhouse server")
	_ = viper.BindPFlag(ServerAddrKey, flags.Lookup("server"))

	bindFlag(flags, "admin-key", "", "Admin key for remote admin operations", AdminKeyKey)

	viper.SetEnvPrefix("WHEELHOUSE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))

	viper.AutomaticEnv()

	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
}

func bindFlag(flags *pflag.FlagSet, name, def, usage, key string) {
	flags.String(name, def, usage)
	_ = viper.BindPFlag(key, flags.Lookup(name))
}

func bindBoolFlag(flags *pflag.FlagSet, name string, def bool, usage, key string) {
	flags.Bool(name, def, usage)
	_ = viper.BindPFlag(key, flags.Lookup(name))
}

func initUserConfig() (string, error) {
	// search order: current dir, $HOME, XDG config
	viper.AddConfigPath(".")

	home, err := os.UserHomeDir()
	if err == nil {
		viper.AddConfigPath(home)
	}

	config, err := os.UserConfigDir()
	if err == nil {
		viper.AddConfigPath(config + "/wheelhouse")
	}

	viper.SetConfigType("yaml")
	viper.SetConfigName(".wheelhouse")

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		var notFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &notFoundError) {
			return "", err
		}
	} else {
		return viper.ConfigFileUsed(), nil
	}

	return "", nil
}
