package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"followback/pkg/analyzer"
	"followback/pkg/auth"
	"followback/pkg/config"
	"followback/pkg/instagram"
	"followback/pkg/logger"
	"followback/pkg/metrics"
	"followback/pkg/ui"
)

// consoleAddress is the rate limit key for terminal requests
const consoleAddress = "console"

var (
	analyzePassword string
	jsonOutput      bool
	noPrompt        bool
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze [username]",
	Short: "List the accounts that don't follow you back",
	Long: `Log in to Instagram and list the accounts you follow that don't follow you back.

Credentials are taken from, in order:
  - the username argument and --password flag
  - INSTAGRAM_USERNAME / INSTAGRAM_PASSWORD or the config file
  - accounts stored with 'followback auth login'
  - an interactive prompt (the password is hidden as you type)`,
	Example: `  # Prompt for credentials
  followback analyze

  # Use a stored account and print JSON
  followback analyze myusername --json`,
	Args: cobra.MaximumNArgs(1),
	Run:  runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringVar(&analyzePassword, "password", "", "Instagram password (prefer the prompt or INSTAGRAM_PASSWORD)")
	analyzeCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the result as JSON")
	analyzeCmd.Flags().BoolVar(&noPrompt, "no-prompt", false, "fail instead of prompting for missing credentials")
}

func runAnalyze(cmd *cobra.Command, args []string) {
	var username string
	if len(args) > 0 {
		username = args[0]
	}

	// Status lines must not mix with JSON on stdout
	if jsonOutput {
		ui.Output = ui.ErrOutput
	}

	cfg := mustLoadConfig(nil)
	log := logger.GetLogger()

	var accounts accountSource
	if manager, err := auth.NewManager(); err != nil {
		log.WithError(err).Debug("credential manager unavailable")
	} else {
		accounts = manager
	}

	var p prompter
	if !noPrompt {
		p = newTerminalPrompter(os.Stdin, ui.ErrOutput)
	}

	creds, err := resolveCredentials(username, analyzePassword, cfg, accounts, p)
	if err != nil {
		ui.PrintError("Missing credentials", err.Error())
		auth.ShowCredentialHelp(ui.ErrOutput)
		os.Exit(1)
	}

	a, err := newConsoleAnalyzer(cfg, log, metrics.New())
	if err != nil {
		ui.PrintError("Failed to create analyzer", err.Error())
		os.Exit(1)
	}

	ui.PrintInfo("Analyzing", "@"+creds.Username)
	outcome := a.Analyze(context.Background(), consoleAddress, creds)
	if !outcome.OK() {
		ui.PrintError("Analysis failed", outcome.Reason)
		os.Exit(1)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		if err := ui.PrintResultsJSON(out, outcome.Result); err != nil {
			ui.PrintError("Failed to write result", err.Error())
			os.Exit(1)
		}
		return
	}
	ui.PrintResults(out, outcome.Result)
}

// newConsoleAnalyzer wires the provider behind a private in-memory limiter, so
// the terminal shares the web front end's outcome handling.
func newConsoleAnalyzer(cfg *config.Config, log logger.Logger, m *metrics.Metrics) (*analyzer.Analyzer, error) {
	limiter, _, err := buildLimiter(context.Background(), consoleConfig(cfg), log, m)
	if err != nil {
		return nil, err
	}
	return analyzer.New(analyzer.Options{
		Limiter:         limiter,
		Provider:        instagram.NewClientFromConfig(&cfg.Instagram, log),
		ProviderTimeout: cfg.Analyzer.ProviderTimeout,
		Logger:          log,
		Metrics:         m,
	})
}

// consoleConfig forces the memory backend without a sweeper
func consoleConfig(cfg *config.Config) *config.Config {
	c := *cfg
	c.RateLimit.Backend = config.BackendMemory
	c.RateLimit.MaxAddresses = 1
	c.RateLimit.SweepInterval = 0
	return &c
}

// accountSource is the part of auth.Manager used to look up saved accounts
type accountSource interface {
	Retrieve(username string) (*auth.Account, error)
	RetrieveDefault() (*auth.Account, error)
}

// prompter asks the user for missing values
type prompter interface {
	ReadLine(label string) (string, error)
	ReadSecret(label string) (string, error)
}

var errNoCredentials = errors.New("username and password are required")

// resolveCredentials fills in the username and password from, in order, the
// explicit arguments, the loaded config, saved accounts and the prompter.
// accounts and p may be nil.
func resolveCredentials(username, password string, cfg *config.Config, accounts accountSource, p prompter) (analyzer.Credentials, error) {
	creds := analyzer.Credentials{
		Username: instagram.SanitizeUsername(username),
		Password: password,
	}

	configured := instagram.SanitizeUsername(cfg.Instagram.Username)
	if creds.Username == "" {
		creds.Username = configured
	}
	if creds.Password == "" && cfg.Instagram.Password != "" && creds.Username == configured {
		creds.Password = cfg.Instagram.Password
	}

	if creds.Password == "" && accounts != nil {
		var (
			account *auth.Account
			err     error
		)
		if creds.Username != "" {
			account, err = accounts.Retrieve(creds.Username)
		} else {
			account, err = accounts.RetrieveDefault()
		}
		if err == nil && account != nil {
			creds.Username = account.Username
			creds.Password = account.Password
		}
	}

	if p != nil {
		var err error
		if creds.Username == "" {
			if creds.Username, err = p.ReadLine("Instagram username: "); err != nil {
				return creds, fmt.Errorf("failed to read username: %w", err)
			}
			creds.Username = instagram.SanitizeUsername(creds.Username)
		}
		if creds.Password == "" {
			if creds.Password, err = p.ReadSecret("Instagram password: "); err != nil {
				return creds, fmt.Errorf("failed to read password: %w", err)
			}
		}
	}

	if creds.Username == "" || creds.Password == "" {
		return creds, errNoCredentials
	}
	if !instagram.IsValidUsername(creds.Username) {
		return creds, fmt.Errorf("invalid Instagram username: %q", creds.Username)
	}
	return creds, nil
}

// terminalPrompter reads from in, echoing prompts to out
type terminalPrompter struct {
	in     *os.File
	reader *bufio.Reader
	out    io.Writer
}

func newTerminalPrompter(in *os.File, out io.Writer) *terminalPrompter {
	return &terminalPrompter{in: in, reader: bufio.NewReader(in), out: out}
}

func (t *terminalPrompter) ReadLine(label string) (string, error) {
	fmt.Fprint(t.out, label)
	input, err := t.reader.ReadString('\n')
	if err != nil && input == "" {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

// ReadSecret reads without echo when in is a terminal
func (t *terminalPrompter) ReadSecret(label string) (string, error) {
	fmt.Fprint(t.out, label)
	if t.in == os.Stdin && term.IsTerminal(int(syscall.Stdin)) {
		password, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(t.out)
		if err == nil {
			return string(password), nil
		}
	}

	// Fallback to regular input
	input, err := t.reader.ReadString('\n')
	if err != nil && input == "" {
		return "", err
	}
	return strings.TrimRight(input, "\r\n"), nil
}
