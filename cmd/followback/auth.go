package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"followback/pkg/auth"
	"followback/pkg/instagram"
	"followback/pkg/ui"
)

var logoutAll bool

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage saved Instagram logins",
	Long: `Manage Instagram logins saved for 'followback analyze'.

Credentials are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (read only)

The web front end never reads or writes saved logins.`,
}

// loginCmd represents the auth login command
var loginCmd = &cobra.Command{
	Use:   "login [username]",
	Short: "Save an Instagram login",
	Long: `Save an Instagram username and password in the system keychain or an
encrypted file. You will be prompted for anything not given as an argument.`,
	Example: `  # Interactive login
  followback auth login

  # Login with username
  followback auth login myusername`,
	Args: cobra.MaximumNArgs(1),
	Run:  runLogin,
}

// logoutCmd represents the auth logout command
var logoutCmd = &cobra.Command{
	Use:   "logout [username]",
	Short: "Remove a saved login",
	Example: `  # Remove one account
  followback auth logout myusername

  # Remove every saved account
  followback auth logout --all`,
	Args: cobra.MaximumNArgs(1),
	Run:  runLogout,
}

// listCmd represents the auth list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved logins",
	Long:  `List saved Instagram logins, newest first, with passwords masked.`,
	Args:  cobra.NoArgs,
	Run:   runList,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(listCmd)
	logoutCmd.Flags().BoolVar(&logoutAll, "all", false, "remove every saved account")
}

func newManager() *auth.Manager {
	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize credential manager", err.Error())
		os.Exit(1)
	}
	return manager
}

func runLogin(cmd *cobra.Command, args []string) {
	manager := newManager()
	p := newTerminalPrompter(os.Stdin, ui.Output)

	var username string
	if len(args) > 0 {
		username = args[0]
	}
	username = instagram.SanitizeUsername(username)

	if username == "" {
		input, err := p.ReadLine("Instagram username: ")
		if err != nil {
			ui.PrintError("Failed to read username", err.Error())
			os.Exit(1)
		}
		username = instagram.SanitizeUsername(input)
	}
	if !instagram.IsValidUsername(username) {
		ui.PrintError("Invalid Instagram username", username)
		os.Exit(1)
	}

	if existing, _ := manager.Retrieve(username); existing != nil {
		answer, _ := p.ReadLine(fmt.Sprintf("Account '%s' already exists. Update it? (y/N): ", username))
		if !strings.HasPrefix(strings.ToLower(answer), "y") {
			return
		}
	}

	password, err := p.ReadSecret("Instagram password: ")
	if err != nil {
		ui.PrintError("Failed to read password", err.Error())
		os.Exit(1)
	}
	if password == "" {
		ui.PrintError("Password is required")
		os.Exit(1)
	}

	account := &auth.Account{
		Username:     username,
		Password:     password,
		LastModified: time.Now(),
	}
	if err := manager.Store(account); err != nil {
		ui.PrintError("Failed to store credentials", err.Error())
		os.Exit(1)
	}

	ui.PrintSuccess(fmt.Sprintf("Account saved: %s", username))
	if auth.IsKeyringAvailable() {
		ui.PrintInfo("Stored in", "system keychain")
	} else {
		ui.PrintInfo("Stored in", "encrypted file")
	}
	fmt.Fprintf(ui.Output, "\nRun 'followback analyze %s' to see who doesn't follow you back.\n", username)
}

func runLogout(cmd *cobra.Command, args []string) {
	manager := newManager()

	if logoutAll {
		if err := manager.DeleteAll(); err != nil {
			ui.PrintError("Failed to remove all accounts", err.Error())
			os.Exit(1)
		}
		ui.PrintSuccess("All accounts removed")
		return
	}

	if len(args) == 0 {
		ui.PrintError("Specify a username or --all")
		os.Exit(1)
	}

	username := instagram.SanitizeUsername(args[0])
	if err := manager.Delete(username); err != nil {
		ui.PrintError("Failed to remove account", err.Error())
		os.Exit(1)
	}
	ui.PrintSuccess("Account removed: " + username)
}

func runList(cmd *cobra.Command, args []string) {
	accounts, err := newManager().List()
	if err != nil {
		ui.PrintError("Failed to list accounts", err.Error())
		os.Exit(1)
	}

	if len(accounts) == 0 {
		ui.PrintInfo("No stored accounts", "Use 'followback auth login' to add an account")
		return
	}

	ui.PrintHighlight("Stored Accounts")
	out := cmd.OutOrStdout()
	for i, account := range accounts {
		sanitized := auth.SanitizeAccount(account)
		fmt.Fprintf(out, "%d. Username: %s\n", i+1, sanitized.Username)
		fmt.Fprintf(out, "   Password: %s\n", sanitized.Password)
		if !sanitized.LastModified.IsZero() {
			fmt.Fprintf(out, "   Last Modified: %s\n", sanitized.LastModified.Format("2006-01-02 15:04:05"))
		}
	}
}
