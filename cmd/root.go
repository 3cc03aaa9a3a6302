package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/platelab/labeler/cmd/config"
	"github.com/platelab/labeler/cmd/counts"
	"github.com/platelab/labeler/cmd/detect"
	"github.com/platelab/labeler/cmd/serve"
	"github.com/platelab/labeler/internal/app"
)

// RootCommand creates and returns the root command
func RootCommand(ctx *app.Context) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "labeler",
		Short:        "Manual license plate labeling tool",
		Version:      ctx.Build.GetVersion(),
		SilenceUsage: true,
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, ctx); err != nil {
		panic(err) // flag names are static
	}

	configCmd := config.Command(ctx)

	rootCmd.AddCommand(
		serve.Command(ctx),
		counts.Command(ctx),
		detect.Command(ctx),
		configCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// Writing a fresh config file must work even when the current one is broken.
		if cmd.Annotations[config.SkipLoadAnnotation] == "true" {
			return nil
		}
		return ctx.Load()
	}

	return rootCmd
}

// flagBindings maps persistent flags to configuration keys.
var flagBindings = map[string]string{
	"debug":            "debug",
	"media-root":       "main.mediaroot",
	"host":             "webserver.host",
	"port":             "webserver.port",
	"log-level":        "logging.level",
	"detector-backend": "detector.backend",
	"model":            "detector.modelpath",
	"detector-url":     "detector.url",
	"metrics":          "telemetry.metrics",
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, ctx *app.Context) error {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&ctx.ConfigFile, "config", "c", "", "Path to config file (default: search ./, ~/.config/labeler, /etc/labeler)")
	flags.BoolP("debug", "d", false, "Enable debug output")
	flags.StringP("media-root", "r", "", "Directory holding the unlabeled, valid, invalid and skipped subtrees")
	flags.String("host", "", "Address to bind the HTTP server to")
	flags.IntP("port", "p", 0, "Port to listen on")
	flags.String("log-level", "", "Log level: trace, debug, info, warn or error")
	flags.String("detector-backend", "", "Plate detector: none, tflite or http")
	flags.String("model", "", "Path to the TFLite plate detection model")
	flags.String("detector-url", "", "Inference endpoint of the http detector")
	flags.Bool("metrics", false, "Expose Prometheus metrics on /metrics")

	for name, key := range flagBindings {
		if err := ctx.Viper.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", name, err)
		}
	}
	return nil
}
