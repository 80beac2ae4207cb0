package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/icloud-photos/icloudpd-go/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigAccountsCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration for the resolved account",
		RunE:  runConfigShow,
	}
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	if cc.Flags.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(cc.Resolved)
	}

	synthetic := &config.Config{
		Accounts: map[string]config.Account{cc.Resolved.Name: cc.Resolved.Account},
		Download: cc.Resolved.Download,
		Safety:   cc.Resolved.Safety,
		Watch:    cc.Resolved.Watch,
		Logging:  cc.Resolved.Logging,
		Network:  cc.Resolved.Network,
	}

	out, err := config.Show(synthetic)
	if err != nil {
		return err
	}

	fmt.Print(out)

	return nil
}

func newConfigAccountsCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "accounts",
		Short:       "List configured account names",
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE:        runConfigAccounts,
	}
}

func runConfigAccounts(cmd *cobra.Command, _ []string) error {
	flags := CLIFlags{}
	flags.ConfigPath, _ = cmd.Flags().GetString("config")
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
		return fmt.Errorf("loading config: %w", err)
	}

	names := config.AccountNames(cfg)

	if flags.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(names)
	}

	for _, name := range names {
		fmt.Println(name)
	}

	return nil
}
