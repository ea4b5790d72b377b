package auth

import (
	"fmt"
	"io"
	"strings"
)

// ShowCredentialHelp explains where the console analyzer looks for an
// Instagram login, in lookup order.
func ShowCredentialHelp(w io.Writer) {
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintln(w, "INSTAGRAM CREDENTIALS")
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "followback analyze looks for a login in this order:")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  1. the username argument and the --password flag")
	fmt.Fprintf(w, "  2. %s and %s (environment or .env file)\n", EnvUsername, EnvPassword)
	fmt.Fprintln(w, "  3. instagram.username / instagram.password in the config file")
	fmt.Fprintln(w, "  4. an account saved with 'followback auth login'")
	fmt.Fprintln(w, "  5. an interactive prompt")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Saved accounts go to the system keychain when one is available,")
	fmt.Fprintln(w, "otherwise to an encrypted file in the followback config directory.")
	fmt.Fprintf(w, "Set %s to choose the file's passphrase yourself.\n", EnvPassphrase)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Accounts with two-factor authentication or a pending security")
	fmt.Fprintln(w, "checkpoint must complete it in the Instagram app first.")
	fmt.Fprintln(w, strings.Repeat("=", 60))
}
