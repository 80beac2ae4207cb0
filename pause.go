package main

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/icloud-photos/icloudpd-go/internal/config"
)

func newPauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause [duration]",
		Short: "Pause syncing for an account",
		Long: `Pause syncing for the account selected by --account (or the single
configured account, if there is only one). An optional duration argument
(e.g., "2h", "30m", "1d") schedules automatic resume after the interval.

Without a duration, the account stays paused until "resume" is run.
If a sync --watch daemon is running, it receives a SIGHUP to pick up the
change immediately.

Examples:
  icloudpd-go pause --account user@example.com
  icloudpd-go pause --account user@example.com 2h
  icloudpd-go pause --account user@example.com 1d`,
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE:        runPause,
		Args:        cobra.MaximumNArgs(1),
	}
}

func runPause(cmd *cobra.Command, args []string) error {
	resolved, cfgPath, quiet, err := resolvePauseTarget(cmd)
	if err != nil {
		return err
	}

	if err := config.SetAccountKey(cfgPath, resolved.Name, "paused", "true"); err != nil {
		return fmt.Errorf("setting paused flag: %w", err)
	}

	if len(args) > 0 {
		duration, err := parseDuration(args[0])
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", args[0], err)
		}

		until := time.Now().Add(duration).Format(time.RFC3339)
		if err := config.SetAccountKey(cfgPath, resolved.Name, "paused_until", until); err != nil {
			return fmt.Errorf("setting paused_until: %w", err)
		}

		statusf(quiet, "Account %s paused until %s\n", resolved.Account.Username, until)
	} else {
		statusf(quiet, "Account %s paused\n", resolved.Account.Username)
	}

	notifyDaemon(quiet)

	return nil
}

// resolvePauseTarget loads config and resolves the target account for
// pause/resume. These commands bypass the normal PersistentPreRunE path
// since they must operate even on an account with no session yet.
func resolvePauseTarget(cmd *cobra.Command) (resolved *config.ResolvedAccount, cfgPath string, quiet bool, err error) {
	flags := CLIFlags{}
	flags.ConfigPath, _ = cmd.Flags().GetString("config")
	flags.Account, _ = cmd.Flags().GetString("account")
	flags.Quiet, _ = cmd.Flags().GetBool("quiet")
	flags.Verbose, _ = cmd.Flags().GetBool("verbose")
	flags.Debug, _ = cmd.Flags().GetBool("debug")

	logger := buildLogger(nil, flags)

	cfgPath = flags.ConfigPath

	env := config.ReadEnvOverrides(logger)
	if cfgPath == "" {
		cfgPath = env.ConfigPath
	}

	if cfgPath == "" {
		cfgPath = config.DefaultConfigPath()
	}

	cfg, err := config.LoadOrDefault(cfgPath, logger)
	if err != nil {
		return nil, "", false, fmt.Errorf("loading config: %w", err)
	}

	resolved, err = config.ResolveAccount(cfg, flags.Account, config.CLIOverrides{
		ConfigPath: cfgPath,
		Account:    flags.Account,
	}, env)
	if err != nil {
		return nil, "", false, err
	}

	return resolved, cfgPath, flags.Quiet, nil
}

// notifyDaemon attempts to send SIGHUP to a running sync --watch daemon.
// Non-fatal: if no daemon is running, prints a note instead.
func notifyDaemon(quiet bool) {
	pidPath := config.PIDFilePath()
	if pidPath == "" {
		return
	}

	if err := sendSIGHUP(pidPath); err != nil {
		statusf(quiet, "Note: %v -- changes take effect next time the daemon reloads\n", err)
	} else {
		statusf(quiet, "Notified running daemon to reload config\n")
	}
}

// hoursPerDay is used to convert day durations to hours.
const hoursPerDay = 24

// durationPattern matches durations like "30m", "2h", "1d", "1h30m".
var durationPattern = regexp.MustCompile(`^(\d+d)?(\d+h)?(\d+m)?(\d+s)?$`)

// parseDuration parses a human-friendly duration string. Supports Go
// duration syntax (e.g., "2h30m") plus a "d" suffix for days (24h each).
func parseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return 0, fmt.Errorf("duration must be positive")
		}

		return d, nil
	}

	if !durationPattern.MatchString(s) || s == "" {
		return 0, fmt.Errorf("expected format like 30m, 2h, 1d, or 1h30m")
	}

	var total time.Duration

	re := regexp.MustCompile(`(\d+)([dhms])`)
	for _, match := range re.FindAllStringSubmatch(s, -1) {
		n, err := strconv.Atoi(match[1])
		if err != nil {
			return 0, fmt.Errorf("invalid number %q: %w", match[1], err)
		}

		switch match[2] {
		case "d":
			total += time.Duration(n) * hoursPerDay * time.Hour
		case "h":
			total += time.Duration(n) * time.Hour
		case "m":
			total += time.Duration(n) * time.Minute
		case "s":
			total += time.Duration(n) * time.Second
		}
	}

	if total <= 0 {
		return 0, fmt.Errorf("duration must be positive")
	}

	return total, nil
}
