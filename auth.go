package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/icloud-photos/icloudpd-go/internal/auth"
	"github.com/icloud-photos/icloudpd-go/internal/config"
	"github.com/icloud-photos/icloudpd-go/internal/keyringstore"
	"github.com/icloud-photos/icloudpd-go/internal/session"
	"github.com/icloud-photos/icloudpd-go/internal/transport"
)

func newLoginCmd() *cobra.Command {
	var password string
	var savePassword bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate an account and cache its session",
		Long: `Authenticate with iCloud using SRP-6a (falling back to the legacy
password endpoint), complete any required two-factor challenge, and
persist the resulting session so subsequent sync runs reuse it without
reauthenticating.

The password is read, in order, from --password, the OS keyring or an
environment variable per the account's password_source setting, or an
interactive prompt.`,
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogin(cmd, password, savePassword)
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "account password (prefer the keyring or an interactive prompt)")
	cmd.Flags().BoolVar(&savePassword, "save-password", false, "store the password in the OS keyring after a successful login")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Discard the cached session for an account",
		Long: `Remove the persisted session for an account, so the next login performs
a full authentication. The account's keyring-stored password, if any, is
left untouched; use "logout --purge-password" to remove it too.`,
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE:        runLogout,
	}

	cmd.Flags().Bool("purge-password", false, "also remove the account's password from the OS keyring")

	return cmd
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "whoami",
		Short:       "Show the account and session state for the resolved account",
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE:        runWhoami,
	}
}

// resolveLoginAccount loads config and resolves the target account for
// login/logout/whoami. These commands bypass the normal PersistentPreRunE
// path (see skipConfigAnnotation) because login in particular must work
// against an account that has no session yet.
func resolveLoginAccount(cmd *cobra.Command) (*config.ResolvedAccount, error) {
	flags := CLIFlags{}
	flags.ConfigPath, _ = cmd.Flags().GetString("config")
	flags.Account, _ = cmd.Flags().GetString("account")
	flags.Domain, _ = cmd.Flags().GetString("domain")
	flags.Verbose, _ = cmd.Flags().GetBool("verbose")
	flags.Debug, _ = cmd.Flags().GetBool("debug")
	flags.Quiet, _ = cmd.Flags().GetBool("quiet")
	flags.JSON, _ = cmd.Flags().GetBool("json")

	logger := buildLogger(nil, flags)

	cfgPath := flags.ConfigPath
	env := config.ReadEnvOverrides(logger)

	if cfgPath == "" {
		cfgPath = env.ConfigPath
	}

	if cfgPath == "" {
		cfgPath = config.DefaultConfigPath()
	}

	cfg, err := config.LoadOrDefault(cfgPath, logger)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	resolved, err := config.ResolveAccount(cfg, flags.Account, config.CLIOverrides{
		ConfigPath: cfgPath,
		Account:    flags.Account,
		Domain:     flags.Domain,
	}, env)
	if err != nil {
		return nil, err
	}

	return resolved, nil
}

// resolvePassword resolves the password to authenticate with, per
// password_source: "keyring", "env:VARNAME", or (default) an interactive
// prompt. An explicit --password flag always wins.
func resolvePassword(explicit string, resolved *config.ResolvedAccount) (string, error) {
	if explicit != "" {
		return explicit, nil
	}

	username := resolved.Account.Username
	source := resolved.Account.PasswordSource

	switch {
	case source == "keyring":
		pw, err := keyringstore.Get(username)
		if err != nil {
			return "", fmt.Errorf("reading password from keyring: %w", err)
		}

		return pw, nil
	case strings.HasPrefix(source, "env:"):
		varName := strings.TrimPrefix(source, "env:")

		pw := os.Getenv(varName)
		if pw == "" {
			return "", fmt.Errorf("environment variable %s is empty or unset", varName)
		}

		return pw, nil
	}

	if !stdinIsTerminal() {
		return "", fmt.Errorf("no password source configured and stdin is not a terminal")
	}

	fmt.Fprintf(os.Stderr, "Password for %s: ", username)

	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)

	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}

	return string(pw), nil
}

func runLogin(cmd *cobra.Command, password string, savePassword bool) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	resolved, err := resolveLoginAccount(cmd)
	if err != nil {
		return err
	}

	if resolved.Account.Username == "" {
		return fmt.Errorf("--account is required (no account configured yet)")
	}

	pw, err := resolvePassword(password, resolved)
	if err != nil {
		return err
	}

	flags := CLIFlags{}
	flags.Quiet, _ = cmd.Flags().GetBool("quiet")
	flags.Debug, _ = cmd.Flags().GetBool("debug")
	flags.Verbose, _ = cmd.Flags().GetBool("verbose")
	logger := buildLogger(resolved, flags)

	client, store, sess, err := newSessionClient(resolved, logger)
	if err != nil {
		return err
	}

	authHost, setupHost, err := transport.HostsForDomain(resolved.Account.Domain)
	if err != nil {
		return err
	}

	codeSource := &auth.InteractiveCodeSource{
		Reader: bufio.NewReader(os.Stdin),
		Prompt: func(trustedPhoneLast4 string) {
			if trustedPhoneLast4 != "" {
				fmt.Fprintf(os.Stderr, "A verification code was sent to the device ending in %s.\n", trustedPhoneLast4)
			}

			fmt.Fprint(os.Stderr, "Enter verification code: ")
		},
	}

	authenticator := auth.New(client, sess, store, authHost, setupHost, sess.ClientID, codeSource, logger)

	creds := auth.Credentials{
		AccountName: resolved.Account.Username,
		Password:    pw,
		Domain:      resolved.Account.Domain,
	}

	client.SetReauth(func(ctx context.Context) error {
		return authenticator.Authenticate(ctx, creds)
	})

	if err := authenticator.Authenticate(ctx, creds); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	if savePassword {
		if err := keyringstore.Set(resolved.Account.Username, pw); err != nil {
			logger.Warn("could not save password to keyring", "error", err.Error())
		}
	}

	fmt.Printf("Logged in as %s.\n", resolved.Account.Username)

	return nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	purgePassword, _ := cmd.Flags().GetBool("purge-password")

	resolved, err := resolveLoginAccount(cmd)
	if err != nil {
		return err
	}

	store := session.NewStore(config.SessionDir())
	if err := store.Delete(resolved.Account.Username); err != nil {
		return err
	}

	if purgePassword {
		if err := keyringstore.Delete(resolved.Account.Username); err != nil {
			return err
		}
	}

	fmt.Printf("Logged out %s.\n", resolved.Account.Username)

	return nil
}

// whoamiOutput is the JSON shape for the whoami command.
type whoamiOutput struct {
	Account        string `json:"account"`
	Domain         string `json:"domain"`
	HasSession     bool   `json:"has_session"`
	AccountCountry string `json:"account_country,omitempty"`
	TrustEligible  bool   `json:"trust_eligible"`
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	resolved, err := resolveLoginAccount(cmd)
	if err != nil {
		return err
	}

	store := session.NewStore(config.SessionDir())

	sess, err := store.Load(resolved.Account.Username)
	if err != nil {
		return err
	}

	snap := sess.Snapshot()

	out := whoamiOutput{
		Account:        resolved.Account.Username,
		Domain:         resolved.Account.Domain,
		HasSession:     snap.SessionToken != "" || len(snap.Webservices) > 0,
		AccountCountry: snap.AccountCountry,
		TrustEligible:  snap.TrustEligible,
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(out)
	}

	fmt.Printf("Account: %s (%s)\n", out.Account, out.Domain)

	if out.HasSession {
		fmt.Println("Session: authenticated")
	} else {
		fmt.Println("Session: not authenticated (run \"icloudpd-go login\")")
	}

	return nil
}
