package main

import (
	"fmt"
	"os"
	_ "time/tzdata" // Zone data for extraction.timezone on images without a tz database

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/leadharvest/internal/app"
	"github.com/ternarybob/leadharvest/internal/common"
)

var (
	// Command-line flags
	configFiles []string // Later files override earlier ones
	logLevel    string
	headless    bool

	// Global state
	config *common.Config
	logger arbor.ILogger
)

var rootCmd = &cobra.Command{
	Use:           "leadharvest",
	Short:         "Read and act on amoCRM leads through a headless browser",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringArrayVarP(&configFiles, "config", "c", nil, "Configuration file path (repeatable, later files override earlier ones)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&headless, "headless", true, "Run the browser headless (overrides config)")

	rootCmd.AddCommand(fetchCmd, channelsCmd, sendCmd, statusCmd, watchCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// setup loads configuration, initializes the logger and wires the application.
// Startup order: config files -> env -> flags -> logger -> banner.
func setup(cmd *cobra.Command) (*app.App, error) {
	if len(configFiles) == 0 {
		if _, err := os.Stat("leadharvest.toml"); err == nil {
			configFiles = append(configFiles, "leadharvest.toml")
		} else if _, err := os.Stat("deployments/local/leadharvest.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/leadharvest.toml")
		}
	}

	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		return nil, err
	}

	var headlessOverride *bool
	if cmd.Flags().Changed("headless") {
		headlessOverride = &headless
	}
	common.ApplyFlagOverrides(config, logLevel, headlessOverride)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	logger = common.InitLogger(config)
	common.PrintBanner(common.Version)

	logger.Info().
		Strs("config_files", configFiles).
		Str("account", config.BaseURL()).
		Str("log_level", config.Logging.Level).
		Msg("Application configuration loaded")

	return app.New(config, logger)
}
