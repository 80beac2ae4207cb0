package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/smtp"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-telegram/bot"
	"github.com/spf13/cobra"

	"github.com/icloud-photos/icloudpd-go/internal/auth"
	"github.com/icloud-photos/icloudpd-go/internal/config"
	"github.com/icloud-photos/icloudpd-go/internal/exifmeta"
	"github.com/icloud-photos/icloudpd-go/internal/filenames"
	"github.com/icloud-photos/icloudpd-go/internal/ledger"
	"github.com/icloud-photos/icloudpd-go/internal/notify"
	"github.com/icloud-photos/icloudpd-go/internal/photos"
	"github.com/icloud-photos/icloudpd-go/internal/statusexchange"
	"github.com/icloud-photos/icloudpd-go/internal/syncdriver"
	"github.com/icloud-photos/icloudpd-go/internal/transport"
	"github.com/icloud-photos/icloudpd-go/internal/watch"
)

// defaultZoneName is used when an account has no library zone configured.
const defaultZoneName = "PrimarySync"

func newSyncCmd() *cobra.Command {
	var flagDryRun, flagWatch bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Download new and changed photos/videos from iCloud",
		Long: `Run a one-shot download pass over the configured album, or (with
--watch) run forever, triggering a pass on a timer, a SIGHUP, a config
file edit, or an inbound webhook command.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			if flagWatch {
				return runSyncWatch(cmd.Context(), cc, flagDryRun)
			}

			return runSyncOnce(cmd.Context(), cc, flagDryRun)
		},
	}

	cmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "report what would be downloaded or deleted without changing anything")
	cmd.Flags().BoolVar(&flagWatch, "watch", false, "run continuously, syncing on a timer and on external triggers")

	return cmd
}

// fileMatchPolicyFromConfig maps the TOML enum onto filenames.FileMatchPolicy.
func fileMatchPolicyFromConfig(s string) filenames.FileMatchPolicy {
	if s == "name_id7" {
		return filenames.PolicyNameOnly
	}

	return filenames.PolicyNameSizeDedup
}

// rawAlignFromConfig maps the TOML enum onto filenames.RawAlignPolicy.
func rawAlignFromConfig(s string) filenames.RawAlignPolicy {
	switch s {
	case "original":
		return filenames.RawAlignAsOriginal
	case "alternative":
		return filenames.RawAlignAsAlternate
	default:
		return filenames.RawAlignOff
	}
}

var strftimeReplacer = strings.NewReplacer(
	"%Y", "2006",
	"%y", "06",
	"%m", "01",
	"%d", "02",
	"%H", "15",
	"%M", "04",
	"%S", "05",
)

// folderTemplateToGoLayout converts a "{:%Y/%m}"-style folder_structure
// setting into the Go time-layout string syncdriver expects. An empty
// setting, or the literal "none", disables the subdirectory entirely.
func folderTemplateToGoLayout(template string) string {
	trimmed := strings.TrimSpace(template)
	if trimmed == "" || strings.EqualFold(trimmed, "none") {
		return "none"
	}

	trimmed = strings.TrimPrefix(trimmed, "{:")
	trimmed = strings.TrimSuffix(trimmed, "}")

	return strftimeReplacer.Replace(trimmed)
}

// parseConfigTime parses a skip_created_before/after setting. Accepts an
// RFC3339 timestamp or a bare "2006-01-02" date; an empty string is the
// zero Time with no error, meaning the bound is unset.
func parseConfigTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}

	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want RFC3339 or YYYY-MM-DD): %w", s, err)
	}

	return t, nil
}

// buildSyncOptions translates a resolved account's configuration into
// syncdriver.Options.
func buildSyncOptions(resolved *config.ResolvedAccount, dryRun bool) (syncdriver.Options, error) {
	acct := resolved.Account

	before, err := parseConfigTime(acct.SkipCreatedBefore)
	if err != nil {
		return syncdriver.Options{}, err
	}

	after, err := parseConfigTime(acct.SkipCreatedAfter)
	if err != nil {
		return syncdriver.Options{}, err
	}

	return syncdriver.Options{
		Directory:            acct.Directory,
		Sizes:                acct.Sizes,
		ForceSize:            acct.ForceSize,
		LivePhotoSize:        acct.LivePhotoSize,
		SkipVideos:           acct.SkipVideos,
		SkipLivePhotos:       acct.SkipLivePhotos,
		SkipPhotos:           acct.SkipPhotos,
		Recent:               acct.Recent,
		UntilFound:           acct.UntilFound,
		SkipCreatedBefore:    before,
		SkipCreatedAfter:     after,
		FolderTemplate:       folderTemplateToGoLayout(acct.FolderStructure),
		FileMatchPolicy:      fileMatchPolicyFromConfig(acct.FileMatchPolicy),
		DeleteAfterDownload:  acct.DeleteAfterDownload,
		AutoDelete:           acct.AutoDelete,
		KeepICloudRecentDays: acct.KeepICloudRecentDays,
		OnlyPrintFilenames:   acct.OnlyPrintFilenames,
		DryRun:               dryRun,
		SetExifDatetime:      acct.SetExifDatetime,
	}, nil
}

// cachedPassword memoizes a password resolved once per process, so a
// watch loop's repeated reauthentication attempts do not reprompt.
type cachedPassword struct {
	value string
	have  bool
}

// authenticateAccount authenticates resolved's account. It first tries
// Authenticate with no password: the Authenticator cheaply validates an
// existing session token with a single HTTP call before attempting any
// SRP/legacy login, so a still-valid session never prompts or touches
// the keyring. Only on failure does it resolve and cache the real
// password and retry.
func authenticateAccount(ctx context.Context, authenticator *auth.Authenticator, resolved *config.ResolvedAccount, pw *cachedPassword) error {
	creds := auth.Credentials{
		AccountName: resolved.Account.Username,
		Domain:      resolved.Account.Domain,
	}

	if pw.have {
		creds.Password = pw.value
	}

	if err := authenticator.Authenticate(ctx, creds); err == nil {
		return nil
	}

	if !pw.have {
		value, err := resolvePassword("", resolved)
		if err != nil {
			return fmt.Errorf("resolving password: %w", err)
		}

		pw.value = value
		pw.have = true
	}

	creds.Password = pw.value

	if err := authenticator.Authenticate(ctx, creds); err != nil {
		return fmt.Errorf("authenticating %s: %w", resolved.Account.Username, err)
	}

	return nil
}

// checkAndClearPause reports whether the account is currently paused. A
// paused_until timestamp that has elapsed is cleared in the config file
// and treated as not-paused.
func checkAndClearPause(cfgPath string, resolved *config.ResolvedAccount) (bool, error) {
	if resolved.Account.PausedUntil != "" {
		until, err := time.Parse(time.RFC3339, resolved.Account.PausedUntil)
		if err == nil && !time.Now().Before(until) {
			if err := config.SetAccountKey(cfgPath, resolved.Name, "paused", "false"); err != nil {
				return false, err
			}

			if err := config.SetAccountKey(cfgPath, resolved.Name, "paused_until", ""); err != nil {
				return false, err
			}

			return false, nil
		}
	}

	return resolved.Account.Paused != nil && *resolved.Account.Paused, nil
}

// syncSession bundles everything needed to run a sync pass, assembled
// fresh from a resolved account so every run sees the current config.
type syncSession struct {
	driver *syncdriver.Driver
	ledger *ledger.Ledger
	opts   syncdriver.Options
	album  string
}

// prepareSyncSession authenticates resolved and builds a Driver ready to
// run. Callers must close the returned session's ledger when done.
func prepareSyncSession(ctx context.Context, resolved *config.ResolvedAccount, logger *slog.Logger, pw *cachedPassword, codeSource auth.CodeSource, cancel func() bool) (*syncSession, error) {
	client, store, sess, err := newSessionClient(resolved, logger)
	if err != nil {
		return nil, err
	}

	authHost, setupHost, err := transport.HostsForDomain(resolved.Account.Domain)
	if err != nil {
		return nil, err
	}

	authenticator := auth.New(client, sess, store, authHost, setupHost, sess.ClientID, codeSource, logger)

	client.SetReauth(func(ctx context.Context) error {
		return authenticateAccount(ctx, authenticator, resolved, pw)
	})

	if err := authenticateAccount(ctx, authenticator, resolved, pw); err != nil {
		return nil, err
	}

	baseURL, ok := sess.ServiceURL("ckdatabasews")
	if !ok {
		return nil, fmt.Errorf("account has no ckdatabasews webservice URL; login may be incomplete")
	}

	matchPolicy := fileMatchPolicyFromConfig(resolved.Account.FileMatchPolicy)
	rawAlignPolicy := rawAlignFromConfig(resolved.Account.AlignRaw)
	svc := photos.New(client, baseURL, matchPolicy, filenames.Clean, rawAlignPolicy)

	if err := svc.IndexReady(ctx); err != nil {
		return nil, err
	}

	zone := resolved.Account.Library
	if zone == "" {
		zone = defaultZoneName
	}

	library := svc.Library(zone)
	deleter := photos.NewDeleter(client, baseURL)

	led, err := ledger.Open(config.LedgerPath())
	if err != nil {
		return nil, fmt.Errorf("opening download ledger: %w", err)
	}

	driver := syncdriver.New(client, library, deleter, exifmeta.Writer{}, logger, cancel)
	driver.SetReauthenticator(func(ctx context.Context) error {
		return authenticateAccount(ctx, authenticator, resolved, pw)
	})
	driver.SetRecorder(led, resolved.Account.Username)

	opts, err := buildSyncOptions(resolved, false)
	if err != nil {
		led.Close()
		return nil, err
	}

	album := resolved.Account.Album
	if album == "" {
		album = "All Photos"
	}

	return &syncSession{driver: driver, ledger: led, opts: opts, album: album}, nil
}

func runSyncOnce(ctx context.Context, cc *CLIContext, dryRun bool) error {
	resolved := cc.Resolved
	logger := cc.Logger

	paused, err := checkAndClearPause(cc.CfgPath, resolved)
	if err != nil {
		return err
	}

	if paused {
		fmt.Println("Account is paused; run \"icloudpd-go resume\" to continue syncing.")
		return nil
	}

	pw := &cachedPassword{}

	codeSource := &auth.InteractiveCodeSource{
		Reader: bufio.NewReader(os.Stdin),
		Prompt: func(trustedPhoneLast4 string) {
			if trustedPhoneLast4 != "" {
				fmt.Fprintf(os.Stderr, "A verification code was sent to the device ending in %s.\n", trustedPhoneLast4)
			}

			fmt.Fprint(os.Stderr, "Enter verification code: ")
		},
	}

	sess, err := prepareSyncSession(ctx, resolved, logger, pw, codeSource, nil)
	if err != nil {
		return err
	}
	defer sess.ledger.Close()

	sess.opts.DryRun = dryRun || sess.opts.DryRun

	if err := sess.driver.Run(ctx, sess.album, sess.opts); err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	printSyncSummary(cc, sess.driver.Progress())

	return nil
}

// syncSummary is the JSON shape for a completed sync pass.
type syncSummary struct {
	Phase           string `json:"phase"`
	TotalCount      int    `json:"total_count"`
	CheckedCount    int    `json:"checked_count"`
	ToDownloadCount int    `json:"to_download_count"`
	DownloadedCount int    `json:"downloaded_count"`
}

func printSyncSummary(cc *CLIContext, progress *syncdriver.Progress) {
	summary := syncSummary{
		Phase:           progress.Phase,
		TotalCount:      progress.TotalCount,
		CheckedCount:    progress.CheckedCount,
		ToDownloadCount: progress.ToDownloadCount,
		DownloadedCount: progress.DownloadedCount,
	}

	if cc.Flags.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(summary)

		return
	}

	fmt.Printf("Downloaded %d of %d assets checked (%d total in album).\n",
		summary.DownloadedCount, summary.CheckedCount, summary.TotalCount)
}

// runSyncWatch runs the sync command forever: on a timer, and whenever a
// SIGHUP, config-file edit, or inbound webhook command arrives (the
// Telegram bot, when enabled, only supplies MFA codes).
// The account is re-resolved from disk at the start of every cycle, so a
// pause/resume or a manual config edit takes effect on the next run
// without a restart.
func runSyncWatch(ctx context.Context, cc *CLIContext, dryRun bool) error {
	resolved := cc.Resolved
	logger := cc.Logger

	cleanup, err := writePIDFile(config.PIDFilePath())
	if err != nil {
		return fmt.Errorf("another watch process appears to be running: %w", err)
	}
	defer cleanup()

	ctx = shutdownContext(ctx, logger)

	exchange := statusexchange.New()
	commands := make(chan watch.Command, 8)

	go func() {
		sighup := sighupChannel()
		for range sighup {
			select {
			case commands <- watch.CommandSyncNow:
			default:
			}
		}
	}()

	if watcher, err := fsnotify.NewWatcher(); err != nil {
		logger.Warn("could not create config file watcher", slog.String("error", err.Error()))
	} else {
		if err := watcher.Add(cc.CfgPath); err != nil {
			logger.Warn("could not watch config file", slog.String("path", cc.CfgPath), slog.String("error", err.Error()))
			watcher.Close()
		} else {
			go func() {
				defer watcher.Close()

				for event := range watcher.Events {
					if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
						select {
						case commands <- watch.CommandSyncNow:
						default:
						}
					}
				}
			}()
		}
	}

	var sinks []notify.Notifier

	var httpServer *http.Server

	if resolved.Watch.WebhookEnabled {
		rawCommands := make(chan string, 8)
		server := &notify.WebhookServer{Commands: rawCommands, Logger: logger}

		mux := http.NewServeMux()
		mux.HandleFunc("/", server.ServeHTTP)

		addr := resolved.Watch.WebhookListenAddr
		if addr == "" {
			addr = ":8443"
		}

		httpServer = &http.Server{Addr: addr, Handler: mux}

		go func() {
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("webhook server stopped", slog.String("error", err.Error()))
			}
		}()

		go forwardCommands(rawCommands, commands)

		if resolved.Watch.WebhookOutboundURL != "" {
			sinks = append(sinks, &notify.NotifyViaWebhook{URL: resolved.Watch.WebhookOutboundURL})
		}
	}

	var telegramBot *bot.Bot

	if resolved.Watch.TelegramEnabled && resolved.Watch.TelegramBotToken != "" {
		b, err := bot.New(resolved.Watch.TelegramBotToken)
		if err != nil {
			logger.Warn("could not start telegram bot", slog.String("error", err.Error()))
		} else {
			telegramBot = b

			tgNotifier := &notify.TelegramNotifier{Bot: b, ChatID: resolved.Watch.TelegramChatID}
			tgNotifier.RegisterCodeHandler(b, exchange.SupplyCode)
			sinks = append(sinks, tgNotifier)

			go telegramBot.Start(ctx)
		}
	}

	if resolved.Watch.SMTPEnabled && resolved.Account.NotificationEmail != "" {
		host, _, ok := strings.Cut(resolved.Watch.SMTPAddr, ":")
		if !ok {
			host = resolved.Watch.SMTPAddr
		}

		var auther smtp.Auth
		if resolved.Watch.SMTPUsername != "" {
			auther = smtp.PlainAuth("", resolved.Watch.SMTPUsername, resolved.Watch.SMTPPassword, host)
		}

		sinks = append(sinks, &notify.SMTPNotifier{
			Addr: resolved.Watch.SMTPAddr,
			Auth: auther,
			From: resolved.Watch.SMTPFrom,
			To:   []string{resolved.Account.NotificationEmail},
		})
	}

	var notifier notify.Notifier
	if len(sinks) > 0 {
		notifier = &notify.Multi{Sinks: sinks, Logger: logger}
	}

	pw := &cachedPassword{}
	codeSource := &auth.ExchangeCodeSource{
		Exchange: exchange,
		Deadline: func() int { return resolved.Watch.MFATimeoutSeconds },
	}

	var loop *watch.Loop

	runFunc := func(ctx context.Context, forceFull bool) error {
		cfg, err := config.LoadOrDefault(cc.CfgPath, logger)
		if err != nil {
			return fmt.Errorf("reloading config: %w", err)
		}

		cli := config.CLIOverrides{
			ConfigPath: cc.CfgPath,
			Account:    cc.Flags.Account,
			Directory:  cc.Flags.Directory,
			Domain:     cc.Flags.Domain,
		}

		env := config.ReadEnvOverrides(logger)

		current, err := config.ResolveAccount(cfg, cc.Flags.Account, cli, env)
		if err != nil {
			return fmt.Errorf("re-resolving account: %w", err)
		}

		if err := config.ValidateAccount(current); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		paused, err := checkAndClearPause(cc.CfgPath, current)
		if err != nil {
			return err
		}

		if paused {
			logger.Info("skipping cycle: account is paused")
			return nil
		}

		cancel := func() bool { return false }
		if loop != nil {
			cancel = loop.Cancel
		}

		sess, err := prepareSyncSession(ctx, current, logger, pw, codeSource, cancel)
		if err != nil {
			return err
		}
		defer sess.ledger.Close()

		sess.opts.DryRun = dryRun || sess.opts.DryRun

		if forceFull {
			sess.opts.Recent = 0
			sess.opts.UntilFound = 0
		}

		return sess.driver.Run(ctx, sess.album, sess.opts)
	}

	interval := time.Duration(resolved.Watch.DefaultIntervalSeconds) * time.Second
	if resolved.Account.WatchIntervalSeconds > 0 {
		interval = time.Duration(resolved.Account.WatchIntervalSeconds) * time.Second
	}

	if interval <= 0 {
		interval = 30 * time.Minute
	}

	loop = watch.New(runFunc, interval, exchange, commands, notifier, logger)

	err = loop.Run(ctx)

	if httpServer != nil {
		_ = httpServer.Close()
	}

	return err
}

// forwardCommands translates the untyped strings read off a
// notify.WebhookServer into typed watch.Command values.
func forwardCommands(raw <-chan string, out chan<- watch.Command) {
	for cmd := range raw {
		switch watch.Command(cmd) {
		case watch.CommandSyncNow:
			out <- watch.CommandSyncNow
		case watch.CommandSyncAll:
			out <- watch.CommandSyncAll
		case watch.CommandStop:
			out <- watch.CommandStop
		}
	}
}

