package main

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"followback/pkg/config"
	"followback/pkg/logger"
	"followback/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	quiet      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "followback",
	Short: "Find the Instagram accounts you follow that don't follow you back",
	Long: `followback logs in to Instagram with your credentials, fetches your followers
and the accounts you follow, and lists everyone who doesn't follow you back.

Run it as a small web application with 'followback serve', or from the
terminal with 'followback analyze'. Credentials are used for a single
request and never stored by the server.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.Version = version

		if quiet {
			ui.Output = io.Discard
			if !cmd.Flags().Changed("log-level") {
				logLevel = "error"
			}
		}

		// Don't show logo for certain commands
		if !quiet && cmd.Name() != "help" && cmd.Name() != "serve" && !jsonOutput {
			ui.PrintLogo()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is $HOME/.followback.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors and results")

	rootCmd.SetVersionTemplate(`followback {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig loads configuration from every source and initializes the
// global logger. flags holds command specific overrides.
func loadConfig(flags map[string]interface{}) (*config.Config, error) {
	if flags == nil {
		flags = make(map[string]interface{})
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, err
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

// mustLoadConfig is loadConfig for command handlers
func mustLoadConfig(flags map[string]interface{}) *config.Config {
	cfg, err := loadConfig(flags)
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}
	return cfg
}
