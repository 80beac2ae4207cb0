package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/icloud-photos/icloudpd-go/internal/auth"
	"github.com/icloud-photos/icloudpd-go/internal/config"
	"github.com/icloud-photos/icloudpd-go/internal/session"
	"github.com/icloud-photos/icloudpd-go/internal/transport"
)

// version is set at build time via ldflags.
var version = "dev"

// skipConfigAnnotation marks commands that resolve accounts themselves
// (login, which may be authenticating a brand new account; status/pause/
// resume, which can operate across every configured account) instead of
// relying on the automatic single-account resolution in PersistentPreRunE.
const skipConfigAnnotation = "skipConfig"

// CLIFlags holds the global persistent flag values. Threaded explicitly
// through loadConfig and buildLogger rather than package-level variables,
// so both stay testable without a live cobra command.
type CLIFlags struct {
	ConfigPath string
	Account    string
	Directory  string
	Domain     string
	JSON       bool
	Verbose    bool
	Debug      bool
	Quiet      bool
}

// CLIContext bundles the resolved account, logger, and raw flags. Built
// once in PersistentPreRunE and threaded through every RunE handler via
// the command's context.
type CLIContext struct {
	Resolved *config.ResolvedAccount
	Logger   *slog.Logger
	Flags    CLIFlags
	CfgPath  string
}

// cliContextKey is the context key for CLIContext.
type cliContextKey struct{}

// cliContextFrom extracts the CLIContext from the command's context, or
// nil if none was loaded (commands annotated with skipConfigAnnotation).
func cliContextFrom(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		return nil
	}

	return cc
}

// mustCLIContext extracts the CLIContext or panics. Use in RunE handlers
// for commands that require a resolved account (no skipConfigAnnotation).
func mustCLIContext(ctx context.Context) *CLIContext {
	cc := cliContextFrom(ctx)
	if cc == nil {
		panic("BUG: CLIContext not found in context -- ensure the command " +
			"does not skip config loading (no skipConfigAnnotation) or " +
			"explicitly loads config in its RunE")
	}

	return cc
}

// httpClientTimeout bounds metadata/API calls; downloads use their own
// client with no timeout (large transfers are bounded by context
// cancellation instead, see internal/syncdriver).
const httpClientTimeout = 30 * time.Second

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: httpClientTimeout}
}

// newRootCmd builds and returns the fully assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	flags := &CLIFlags{}

	cmd := &cobra.Command{
		Use:   "icloudpd-go",
		Short: "Download and keep a local mirror of an iCloud Photos library",
		Long: `icloudpd-go authenticates against iCloud Photos, walks an album, and
downloads every requested size variant to a local directory: resuming
partial downloads, skipping what is already present, and optionally
deleting the remote copy once it has been safely captured locally.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		// PersistentPreRunE resolves the effective account configuration
		// before every command. Commands annotated with skipConfigAnnotation
		// handle their own account resolution.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipConfigAnnotation] == "true" {
				return nil
			}

			return loadConfig(cmd, flags)
		},
	}

	cmd.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flags.Account, "account", "", "account to operate on (e.g. user@example.com)")
	cmd.PersistentFlags().StringVar(&flags.Directory, "directory", "", "target directory (overrides the config file)")
	cmd.PersistentFlags().StringVar(&flags.Domain, "domain", "", `account domain, "com" or "cn" (overrides the config file)`)
	cmd.PersistentFlags().BoolVar(&flags.JSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "show detailed output")
	cmd.PersistentFlags().BoolVar(&flags.Debug, "debug", false, "enable debug logging (HTTP requests, config resolution)")
	cmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "suppress informational output")

	cmd.MarkFlagsMutuallyExclusive("verbose", "debug", "quiet")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newWhoamiCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newPauseCmd())
	cmd.AddCommand(newResumeCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the four-layer
// override chain and stores the result in the command's context.
func loadConfig(cmd *cobra.Command, flags *CLIFlags) error {
	logger := buildLogger(nil, *flags)

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
		return fmt.Errorf("loading config: %w", err)
	}

	cli := config.CLIOverrides{
		ConfigPath: cfgPath,
		Account:    flags.Account,
		Directory:  flags.Directory,
		Domain:     flags.Domain,
	}

	resolved, err := config.ResolveAccount(cfg, flags.Account, cli, env)
	if err != nil {
		return fmt.Errorf("resolving account: %w", err)
	}

	if err := config.ValidateAccount(resolved); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	finalLogger := buildLogger(resolved, *flags)
	cc := &CLIContext{Resolved: resolved, Logger: finalLogger, Flags: *flags, CfgPath: cfgPath}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cc))

	return nil
}

// buildLogger creates an slog.Logger configured by the resolved account's
// log level and the CLI flags. Pass nil for pre-config bootstrap. CLI
// flags always win over the config file; they are mutually exclusive so
// at most one override branch below fires.
func buildLogger(resolved *config.ResolvedAccount, flags CLIFlags) *slog.Logger {
	level := slog.LevelWarn

	if resolved != nil {
		switch resolved.Logging.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "error":
			level = slog.LevelError
		}
	}

	if flags.Verbose {
		level = slog.LevelInfo
	}

	if flags.Debug {
		level = slog.LevelDebug
	}

	if flags.Quiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// newSessionClient loads account's persisted session and wires a
// transport.Client against it. The session's client ID is generated once
// and cached on first use; subsequent calls reuse the persisted value so
// THE SERVICE sees a stable OAuth client across runs. A non-empty
// CLIENT_ID environment variable replaces it.
func newSessionClient(account *config.ResolvedAccount, logger *slog.Logger) (*transport.Client, *session.Store, *session.Session, error) {
	store := session.NewStore(config.SessionDir())

	sess, err := store.Load(account.Account.Username)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading session: %w", err)
	}

	if id := os.Getenv("CLIENT_ID"); id != "" {
		sess.ClientID = id
	} else if sess.ClientID == "" {
		sess.ClientID = auth.GenerateClientID()
	}

	userAgent := account.Network.UserAgent
	if userAgent == "" {
		userAgent = "icloudpd-go/" + version
	}

	client := transport.NewClient(defaultHTTPClient(), sess, store, account.Account.Username, userAgent, sess.ClientID, logger)

	return client, store, sess, nil
}

// stdinIsTerminal reports whether stdin is an interactive terminal,
// gating the hidden-password prompt and device-trust prompts.
func stdinIsTerminal() bool {
	return isatty.IsTerminal(os.Stdin.Fd())
}
