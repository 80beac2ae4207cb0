package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/icloud-photos/icloudpd-go/internal/config"
	"github.com/icloud-photos/icloudpd-go/internal/session"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show every configured account's session and pause state",
		Long: `Display, for each configured account: whether a cached session
exists, whether the account is currently paused, and its target directory.
Reads the config file and session store only -- makes no network call.`,
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE:        runStatus,
	}
}

// statusEntry is the JSON/text shape for one account's status line.
type statusEntry struct {
	Account     string `json:"account"`
	Domain      string `json:"domain"`
	Directory   string `json:"directory"`
	HasSession  bool   `json:"has_session"`
	Paused      bool   `json:"paused"`
	PausedUntil string `json:"paused_until,omitempty"`
	State       string `json:"state"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	flags := CLIFlags{}
	flags.ConfigPath, _ = cmd.Flags().GetString("config")
	flags.JSON, _ = cmd.Flags().GetBool("json")
	flags.Verbose, _ = cmd.Flags().GetBool("verbose")
	flags.Debug, _ = cmd.Flags().GetBool("debug")
	flags.Quiet, _ = cmd.Flags().GetBool("quiet")

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
		return fmt.Errorf("loading config: %w", err)
	}

	names := config.AccountNames(cfg)
	if len(names) == 0 {
		fmt.Println("No accounts configured. Run \"icloudpd-go login\" to get started.")

		return nil
	}

	sort.Strings(names)

	store := session.NewStore(config.SessionDir())
	entries := make([]statusEntry, 0, len(names))

	for _, name := range names {
		entries = append(entries, buildStatusEntry(store, name, cfg.Accounts[name]))
	}

	if flags.JSON {
		return printStatusJSON(entries)
	}

	printStatusText(entries)

	return nil
}

func buildStatusEntry(store *session.Store, name string, acct config.Account) statusEntry {
	username := acct.Username
	if username == "" {
		username = name
	}

	hasSession := false

	if sess, err := store.Load(username); err == nil {
		snap := sess.Snapshot()
		hasSession = snap.SessionToken != "" || len(snap.Webservices) > 0
	}

	paused := acct.Paused != nil && *acct.Paused

	state := "ready"

	switch {
	case paused:
		state = "paused"
	case !hasSession:
		state = "no session"
	}

	directory := acct.Directory
	if directory == "" {
		directory = "(not set)"
	}

	domain := acct.Domain
	if domain == "" {
		domain = "com"
	}

	return statusEntry{
		Account:     username,
		Domain:      domain,
		Directory:   directory,
		HasSession:  hasSession,
		Paused:      paused,
		PausedUntil: acct.PausedUntil,
		State:       state,
	}
}

func printStatusJSON(entries []statusEntry) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	return nil
}

func printStatusText(entries []statusEntry) {
	for _, e := range entries {
		pausedInfo := ""
		if e.Paused && e.PausedUntil != "" {
			pausedInfo = " (until " + e.PausedUntil + ")"
		}

		fmt.Printf("%-30s %-5s %-30s %s%s\n", e.Account, e.Domain, e.Directory, e.State, pausedInfo)
	}
}
