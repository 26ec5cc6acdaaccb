package main

import (
	"github.com/spf13/cobra"

	"github.com/adrianmcphee/smartermodel/internal/config"
)

// EnvPrefix prefixes every environment variable the CLI reads.
const EnvPrefix = "SMARTERMODEL_"

// Config is the CLI configuration. Flags override it.
type Config struct {
	Addr        string `mapstructure:"addr"`
	DataDir     string `mapstructure:"data_dir"`
	MetricsAddr string `mapstructure:"metrics_addr"`
	Dialect     string `mapstructure:"dialect"`
}

func defaultConfig() map[string]any {
	return map[string]any{
		"addr":         ":5433",
		"data_dir":     "./data",
		"metrics_addr": "",
		"dialect":      "postgres",
	}
}

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigFile string
	Verbose    bool
	Config     Config
}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "smartermodel",
		Short:         "Multi-backend model persistence toolkit",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loadOpts := []config.Option{config.WithDefaults(defaultConfig())}
			if opts.ConfigFile != "" {
				loadOpts = append(loadOpts, config.WithFile(opts.ConfigFile))
			}
			return config.Load(EnvPrefix, &opts.Config, loadOpts...)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (yaml, json or toml)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "development logging")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewSQLCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))

	return cmd
}

// override copies a flag value over the configured one when the flag was
// set explicitly.
func override(cmd *cobra.Command, flag string, value string, target *string) {
	if cmd.Flags().Changed(flag) || *target == "" {
		*target = value
	}
}
