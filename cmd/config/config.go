// Package config implements the labeler config command.
package config

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/platelab/labeler/internal/app"
	"github.com/platelab/labeler/internal/conf"
)

// SkipLoadAnnotation marks commands that run without loading the configuration.
const SkipLoadAnnotation = "labeler/skip-load"

// Command creates the config command and its init subcommand.
func Command(ctx *app.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Long:  "Print the configuration after merging defaults, the config file, environment and flags. Secrets are redacted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := conf.MarshalYAML(ctx.Settings)
			if err != nil {
				return err
			}
			if used := ctx.Viper.ConfigFileUsed(); used != "" {
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "# loaded from %s\n", used); err != nil {
					return err
				}
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.AddCommand(initCommand(ctx))
	return cmd
}

func initCommand(ctx *app.Context) *cobra.Command {
	return &cobra.Command{
		Use:         "init [path]",
		Short:       "Write the annotated default configuration file",
		Long:        "Write the default config.yaml to path, the --config file or ./config.yaml. An existing file is never replaced.",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{SkipLoadAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ctx.ConfigFile
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				path = conf.ConfigName + "." + conf.ConfigType
			}
			path = conf.ExpandPath(path)

			if err := conf.WriteDefaultConfig(path); err != nil {
				return err
			}
			abs, err := filepath.Abs(path)
			if err != nil {
				abs = path
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", abs)
			return err
		},
	}
}
