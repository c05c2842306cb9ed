package main

import (
	"fmt"
	"os"

	"appforge/internal/config"
	"appforge/internal/logging"

	"github.com/spf13/cobra"
)

var (
	version  = "0.1.0"
	model    string
	logLevel string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "appforge",
		Short: "Generate and serve small web apps from a prompt",
		Long: `AppForge turns a plain-language prompt into a self-contained static
web app and serves it locally. Bring your own API key, or try it a few
times a day on the built-in demo credential.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&model, "model", "", "model to use (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(
		newGenerateCmd(),
		newReworkCmd(),
		newServeCmd(),
		newListCmd(),
		newQuotaCmd(),
		newDeviceCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version number",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Printf("appforge version %s\n", version)
			},
		},
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads configuration and applies CLI overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.Version = version
	if model != "" {
		cfg.API.Model = model
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	level := logging.ParseLevel(cfg.Logging.Level)
	logging.Configure(level, os.Stderr)
	if cfg.Logging.File {
		if dir, err := config.Dir(); err == nil {
			if err := logging.EnableFileLogging(dir, level); err != nil {
				logging.Warn("file logging unavailable", "error", err)
			}
		}
	}
	return cfg, nil
}
