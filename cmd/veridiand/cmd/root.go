package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"cosmossdk.io/log"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	EnvPrefix   = "VERIDIAN"
	DefaultHome = ".veridian"

	flagHome      = "home"
	flagLogLevel  = "log-level"
	flagLogFormat = "log-format"
)

// NewRootCmd creates the veridiand root command. It is called once in main.
func NewRootCmd() *cobra.Command {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:           "veridiand",
		Short:         "Confidential blackjack session engine",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SetOut(cmd.OutOrStdout())
			cmd.SetErr(cmd.ErrOrStderr())
			return initConfig(v, cmd)
		},
	}
	rootCmd.PersistentFlags().String(flagHome, DefaultHome, "node home directory (state under <home>/data, config in <home>/config.toml)")
	rootCmd.PersistentFlags().String(flagLogLevel, "info", "log level (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().String(flagLogFormat, "plain", "log format (plain|json)")

	rootCmd.AddCommand(
		startCmd(v),
		relayCmd(v),
		keysCmd(v),
	)
	return rootCmd
}

// initConfig layers .env, <home>/config.toml, VERIDIAN_* env vars and flags.
func initConfig(v *viper.Viper, cmd *cobra.Command) error {
	_ = godotenv.Load()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	v.SetConfigFile(filepath.Join(v.GetString(flagHome), "config.toml"))
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func newLogger(v *viper.Viper) (log.Logger, error) {
	lvl, err := zerolog.ParseLevel(v.GetString(flagLogLevel))
	if err != nil {
		return nil, err
	}
	opts := []log.Option{log.LevelOption(lvl)}
	if v.GetString(flagLogFormat) == "json" {
		opts = append(opts, log.OutputJSONOption())
	}
	return log.NewLogger(os.Stderr, opts...), nil
}
