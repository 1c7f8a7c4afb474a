// Package main is the entry point for the guildbot CLI.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/flemzord/guildbot/internal/config"
	"github.com/flemzord/guildbot/internal/core"
	"github.com/flemzord/guildbot/pkg/app"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "guildbot",
		Short:         "Telegram bot that gates groups and channels on Guild roles",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(versionCmd(), startCmd(), configCmd(), initCmd(), serviceCmd())
	return root
}

func runParams(cmd *cobra.Command) app.RunParams {
	cfgPath, _ := cmd.Flags().GetString("config")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	return app.RunParams{
		ConfigPath: cfgPath,
		DataDir:    dataDir,
		Version:    version,
		Commit:     commit,
		Date:       date,
	}
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	cmd.Flags().String("data-dir", "", "Directory for persistent data (audit database)")
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and compiled modules",
		Run: func(cmd *cobra.Command, _ []string) {
			printVersion(cmd.OutOrStdout())
		},
	}
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "guildbot %s (commit: %s, built: %s)\n", version, commit, date)
	mods := core.GetModules()
	if len(mods) == 0 {
		fmt.Fprintln(w, "\nNo compiled modules.")
		return
	}
	fmt.Fprintln(w, "\nCompiled modules:")
	for _, mod := range mods {
		fmt.Fprintf(w, "  %s\n", mod.ID)
	}
}

func startCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the bot with all configured modules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.Run(runParams(cmd))
		},
	}
	addRunFlags(cmd)
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	check := &cobra.Command{
		Use:   "check [path]",
		Short: "Validate a configuration file, or the built-in defaults without one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			}
			show, _ := cmd.Flags().GetBool("show")
			return checkConfig(cmd.OutOrStdout(), path, show)
		},
	}
	check.Flags().Bool("show", false, "Print the expanded module configuration (secrets included)")
	cmd.AddCommand(check)
	return cmd
}

// checkConfig validates the structure of a configuration without
// provisioning anything, so it never touches the network.
func checkConfig(w io.Writer, path string, show bool) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, source, err := app.LoadConfig(path)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	ids := config.Resolve(cfg)
	fmt.Fprintf(w, "Configuration OK (%s, %d modules)\n", source, len(ids))
	for _, id := range ids {
		fmt.Fprintf(w, "  %s\n", id)
	}
	if !show {
		return nil
	}
	mods, err := cfg.ModuleMap()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(mods)
}

// writeYAML marshals v to path, refusing to overwrite unless force is set.
func writeYAML(path string, v any, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	raw, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}
