// Package cmd implements the majordomo CLI.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	flagConfig  string
	flagVerbose bool
)

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "majordomo",
		Short: "Personal agent daemon — chat, tools, schedules, approvals",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if flagVerbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file path (default ~/.majordomo/config.yaml)")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(serveCmd())
	cmd.AddCommand(chatCmd())
	cmd.AddCommand(cronCmd())
	cmd.AddCommand(sessionsCmd())
	cmd.AddCommand(skillsCmd())
	cmd.AddCommand(doctorCmd())
	return cmd
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func resolveConfigPath() string {
	if flagConfig != "" {
		return flagConfig
	}
	if v := os.Getenv("MAJORDOMO_CONFIG"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".majordomo", "config.yaml")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
