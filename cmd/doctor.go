package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/majordomo-ai/majordomo/internal/config"
	"github.com/majordomo-ai/majordomo/internal/memory"
	"github.com/majordomo-ai/majordomo/internal/skills"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the local setup",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	failures := 0
	check := func(ok bool, label, detail string) {
		mark := "✓"
		if !ok {
			mark = "✗"
			failures++
		}
		if detail != "" {
			fmt.Printf("  %s %s — %s\n", mark, label, detail)
		} else {
			fmt.Printf("  %s %s\n", mark, label)
		}
	}

	cfgPath := resolveConfigPath()
	fmt.Printf("Config: %s\n", cfgPath)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		check(false, "config parses", err.Error())
		os.Exit(1)
	}
	if _, statErr := os.Stat(cfgPath); os.IsNotExist(statErr) {
		check(true, "config", "file missing, using env + defaults")
	} else {
		check(true, "config parses", "")
	}

	// Data dir must be writable for sessions, cron store, and memory.
	err = os.MkdirAll(cfg.DataDir, 0o755)
	if err == nil {
		probe := filepath.Join(cfg.DataDir, ".doctor-probe")
		err = os.WriteFile(probe, []byte("ok"), 0o644)
		os.Remove(probe)
	}
	check(err == nil, "data dir writable", cfg.DataDir)

	check(cfg.Provider.Endpoint != "", "provider endpoint", cfg.Provider.Endpoint)
	check(cfg.Provider.APIKey != "" && cfg.Provider.APIKey != "none", "provider API key",
		"set MAJORDOMO_API_KEY or provider.api_key")
	check(cfg.Provider.Model != "", "model", cfg.Provider.Model)

	if mem, err := memory.Open(cfg.MemoryDBPath()); err != nil {
		check(false, "memory database", err.Error())
	} else {
		n, _ := mem.Count(context.Background())
		mem.Close()
		check(true, "memory database", fmt.Sprintf("%d memories", n))
	}

	library := skills.NewLibrary(cfg.SkillsDir)
	check(true, "skills", fmt.Sprintf("%d loaded from %s", len(library.List()), cfg.SkillsDir))

	if cfg.Discord.Enabled {
		check(cfg.Discord.Token != "", "discord token", "set DISCORD_TOKEN or discord.token")
		check(cfg.Discord.OwnerID != "", "discord owner", "discord.owner_id restricts who the agent obeys")
	}

	addr := gatewayAddr(cfg)
	if isGatewayRunning(addr) {
		check(true, "daemon", "running at "+addr)
	} else {
		fmt.Printf("  - daemon not running (start with: majordomo serve)\n")
	}

	fmt.Println()
	if failures > 0 {
		fmt.Printf("%d problem(s) found.\n", failures)
		os.Exit(1)
	}
	fmt.Println("All checks passed.")
}
