package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"followback/pkg/config"
	"followback/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage followback configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables
  - .env file
  - Configuration file
  - Default values (lowest priority)`,
}

// initCmd represents the config init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create an example configuration file with all available options.

The file will be created in the current directory as '.followback.yaml'
unless a different path is specified with the --config flag.`,
	Run: runConfigInit,
}

// showCmd represents the config show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Show the effective configuration after merging every source.

Secrets like the form signing key and passwords are masked.`,
	Run: runConfigShow,
}

// validateCmd represents the config validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Run:   runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

const exampleConfig = `# followback configuration file
#
# Environment variables override this file, for example:
#   SECRET_KEY, INSTAGRAM_USERNAME, INSTAGRAM_PASSWORD,
#   FOLLOWBACK_RATE_LIMIT_BACKEND, FOLLOWBACK_REDIS_ADDRESS

server:
  # Listen address for 'followback serve'
  address: ":8080"

  # Key for signing form tokens. Leave empty to use a random key per
  # process (forms then expire on restart).
  secret_key: ""

  # Use the first X-Forwarded-For hop as the client address. Only enable
  # behind a proxy that sets the header.
  trust_forwarded_for: false

  form_token_ttl: 30m
  read_timeout: 15s
  write_timeout: 2m

instagram:
  base_url: "https://i.instagram.com"
  timeout: 30s

  # Accounts per list page and the most pages fetched per list
  page_size: 200
  max_pages: 50

  # Pacing of outgoing requests
  requests_per_second: 2

  # Login for 'followback analyze' only. Prefer 'followback auth login'.
  username: ""
  password: ""

rate_limit:
  # Analyze requests allowed per client address within the window
  max_requests: 3
  window: 5m

  # memory or redis
  backend: memory

  # memory backend: addresses tracked and idle sweep interval
  max_addresses: 10000
  sweep_interval: 1m

  # redis backend
  redis_address: "localhost:6379"
  redis_password: ""
  redis_db: 0

analyzer:
  # Upper bound for one Instagram fetch
  provider_timeout: 60s

logging:
  # debug, info, warn, error
  level: info

  # Optional JSON log file in addition to the console
  file: ""
`

func runConfigInit(cmd *cobra.Command, args []string) {
	configPath := configFile
	if configPath == "" {
		configPath = ".followback.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		ui.PrintError("Configuration file already exists", configPath)
		fmt.Fprintln(ui.ErrOutput, "\nTo overwrite, first remove the existing file:")
		fmt.Fprintf(ui.ErrOutput, "  rm %s\n", configPath)
		os.Exit(1)
	}

	if err := os.WriteFile(configPath, []byte(exampleConfig), 0600); err != nil {
		ui.PrintError("Failed to create configuration file", err.Error())
		os.Exit(1)
	}

	ui.PrintSuccess("Configuration file created: " + configPath)
	fmt.Fprintln(ui.Output, "\nNext steps:")
	fmt.Fprintln(ui.Output, "1. Set server.secret_key (or SECRET_KEY)")
	fmt.Fprintln(ui.Output, "2. Run 'followback config validate' to check the configuration")
	fmt.Fprintln(ui.Output, "3. Start the web front end with 'followback serve'")
}

func runConfigShow(cmd *cobra.Command, args []string) {
	cfg := mustLoadConfig(nil)

	data, err := yaml.Marshal(cfg.Masked())
	if err != nil {
		ui.PrintError("Failed to format configuration", err.Error())
		os.Exit(1)
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Fprint(cmd.OutOrStdout(), string(data))
}

func runConfigValidate(cmd *cobra.Command, args []string) {
	if configFile != "" {
		ui.PrintInfo("Validating configuration", configFile)
	}

	cfg, err := loadConfig(nil)
	if err != nil {
		ui.PrintError("Configuration validation failed", err.Error())
		os.Exit(1)
	}

	warnings := configWarnings(cfg)
	if len(warnings) > 0 {
		ui.PrintWarning("Configuration warnings")
		for _, warn := range warnings {
			fmt.Fprintf(ui.Output, "  - %s\n", warn)
		}
	}

	ui.PrintSuccess("Configuration is valid")
	fmt.Fprintln(ui.Output, "\nConfiguration summary:")
	fmt.Fprintf(ui.Output, "  Listen address: %s\n", cfg.Server.Address)
	fmt.Fprintf(ui.Output, "  Rate limit: %d requests per %s (%s)\n", cfg.RateLimit.MaxRequests, cfg.RateLimit.Window, cfg.RateLimit.Backend)
	fmt.Fprintf(ui.Output, "  Provider timeout: %s\n", cfg.Analyzer.ProviderTimeout)
	fmt.Fprintf(ui.Output, "  Log level: %s\n", cfg.Logging.Level)
}

// configWarnings lists settings that are valid but probably unintended
func configWarnings(cfg *config.Config) []string {
	var warnings []string
	if cfg.Server.SecretKey == "" {
		warnings = append(warnings, "server.secret_key is empty; form tokens will not survive restarts")
	}
	if cfg.Instagram.Password != "" {
		warnings = append(warnings, "instagram.password is set in plain text; prefer 'followback auth login'")
	}
	if cfg.Server.TrustForwardedFor {
		warnings = append(warnings, "trust_forwarded_for is enabled; clients can choose their rate limit key unless a proxy overwrites X-Forwarded-For")
	}
	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			warnings = append(warnings, fmt.Sprintf("cannot create log directory: %v", err))
		}
	}
	return warnings
}
