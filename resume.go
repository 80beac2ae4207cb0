package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/icloud-photos/icloudpd-go/internal/config"
)

func newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume syncing for an account",
		Long: `Clear the paused state for the account selected by --account (or the
single configured account, if there is only one). If a sync --watch
daemon is running, it receives a SIGHUP to pick up the change
immediately.`,
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE:        runResume,
	}
}

func runResume(cmd *cobra.Command, _ []string) error {
	resolved, cfgPath, quiet, err := resolvePauseTarget(cmd)
	if err != nil {
		return err
	}

	if err := config.SetAccountKey(cfgPath, resolved.Name, "paused", "false"); err != nil {
		return fmt.Errorf("clearing paused flag: %w", err)
	}

	if err := config.SetAccountKey(cfgPath, resolved.Name, "paused_until", ""); err != nil {
		return fmt.Errorf("clearing paused_until: %w", err)
	}

	statusf(quiet, "Account %s resumed\n", resolved.Account.Username)

	notifyDaemon(quiet)

	return nil
}
