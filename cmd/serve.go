package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/majordomo-ai/majordomo/internal/agent"
	"github.com/majordomo-ai/majordomo/internal/approval"
	"github.com/majordomo-ai/majordomo/internal/bus"
	"github.com/majordomo-ai/majordomo/internal/channels/discord"
	"github.com/majordomo-ai/majordomo/internal/config"
	"github.com/majordomo-ai/majordomo/internal/conversation"
	"github.com/majordomo-ai/majordomo/internal/cron"
	"github.com/majordomo-ai/majordomo/internal/engine"
	"github.com/majordomo-ai/majordomo/internal/gateway"
	"github.com/majordomo-ai/majordomo/internal/gateway/methods"
	"github.com/majordomo-ai/majordomo/internal/heartbeat"
	"github.com/majordomo-ai/majordomo/internal/mcp"
	"github.com/majordomo-ai/majordomo/internal/memory"
	"github.com/majordomo-ai/majordomo/internal/providers"
	"github.com/majordomo-ai/majordomo/internal/scheduler"
	"github.com/majordomo-ai/majordomo/internal/skills"
	"github.com/majordomo-ai/majordomo/internal/tools"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the agent daemon: gateway, channels, cron",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fatalf("load config: %v", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		fatalf("create data dir: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Model client.
	client := providers.NewOpenAIClient(
		cfg.Provider.Endpoint, cfg.Provider.APIKey, cfg.Provider.Model,
		providers.WithTimeout(cfg.ModelTimeout()),
		providers.WithRetry(providers.RetryConfig{
			MaxRetries: cfg.Provider.MaxRetries,
			BaseDelay:  time.Second,
			MaxDelay:   30 * time.Second,
		}),
	)

	// Long-term memory.
	mem, err := memory.Open(cfg.MemoryDBPath())
	if err != nil {
		fatalf("open memory store: %v", err)
	}
	defer mem.Close()

	// Skills, hot-reloaded on file changes.
	library := skills.NewLibrary(cfg.SkillsDir)
	skillWatcher, err := skills.NewWatcher(library)
	if err != nil {
		slog.Warn("skills watcher unavailable", "error", err)
	} else if err := skillWatcher.Start(ctx); err != nil {
		slog.Warn("skills watcher failed to start", "error", err)
	} else {
		defer skillWatcher.Stop()
	}

	registry := buildRegistry(cfg, mem, library)

	mcpMgr := mcp.NewManager()
	mcpMgr.Connect(ctx, cfg.MCPServers, registry)
	defer mcpMgr.Close()

	registry.Freeze()

	gate := approval.NewGate(time.Duration(cfg.Agent.ApprovalTimeoutSec) * time.Second)

	eng := engine.New(client, registry, gate, engine.Config{
		MaxCycles:       cfg.Agent.MaxCycles,
		ToolConcurrency: int64(cfg.Agent.ToolConcurrency),
		ToolTimeout:     time.Duration(cfg.Agent.ToolTimeoutSec) * time.Second,
		Temperature:     cfg.Provider.Temperature,
	})

	convStore, err := conversation.NewStore(cfg.SessionsDir())
	if err != nil {
		fatalf("open session store: %v", err)
	}

	msgBus := bus.New()
	defer msgBus.Close()

	runtime := agent.NewRuntime(agent.Options{
		Config: cfg,
		Engine: eng,
		Store:  convStore,
		Skills: library,
		Memory: mem,
		Bus:    msgBus,
	})

	sched := scheduler.New(scheduler.DefaultLanes(), scheduler.DefaultQueueConfig(), runtime.Run)

	// Cron jobs run as agent invocations on the cron lane.
	cronSvc := cron.NewService(cfg.CronStorePath(), nil)
	cronSvc.SetOnJob(cronHandler(ctx, sched, msgBus))
	if err := cronSvc.Start(); err != nil {
		fatalf("start cron service: %v", err)
	}
	defer cronSvc.Stop()

	go deliverOutbound(ctx, msgBus)

	// Periodic self-check, delivered as alerts when something needs the
	// owner's attention.
	if cfg.Heartbeat.Enabled {
		hb := heartbeat.NewService(heartbeat.Config{
			Interval:    time.Duration(cfg.Heartbeat.IntervalMin) * time.Minute,
			PromptFile:  cfg.Heartbeat.PromptFile,
			ActiveStart: cfg.Heartbeat.ActiveStart,
			ActiveEnd:   cfg.Heartbeat.ActiveEnd,
			Timezone:    cfg.Heartbeat.Timezone,
			Channel:     cfg.Heartbeat.Channel,
			To:          cfg.Heartbeat.To,
		}, sched, msgBus)
		hb.Start()
		defer hb.Stop()
	}

	// Config hot reload. The startup config stays immutable — goroutines all
	// over the daemon read it — so the new snapshot is handed to the runtime,
	// which swaps it under its own lock. Connection-level settings (gateway
	// bind, Discord token) need a restart.
	if cfgWatcher, err := config.NewWatcher(cfgPath); err == nil {
		cfgWatcher.OnChange(func(next *config.Config) {
			slog.Info("config reloaded; restart to apply connection-level changes")
			runtime.UpdateConfig(next)
		})
		if err := cfgWatcher.Start(); err == nil {
			defer cfgWatcher.Stop()
		}
	}

	// WebSocket gateway.
	server := gateway.NewServer(cfg, msgBus)
	methods.NewChatMethods(runtime, sched).Register(server.Router())
	methods.NewApprovalMethods(gate).Register(server.Router())
	methods.NewCronMethods(cronSvc).Register(server.Router())
	methods.NewSessionMethods(runtime).Register(server.Router())
	methods.NewSkillMethods(library).Register(server.Router())
	methods.NewMemoryMethods(mem).Register(server.Router())

	// Discord channel.
	if cfg.Discord.Enabled {
		ch, err := discord.New(cfg.Discord, sched, gate)
		if err != nil {
			fatalf("discord channel: %v", err)
		}
		msgBus.RegisterHandler("discord", ch.Send)
		go func() {
			if err := ch.Start(ctx); err != nil {
				slog.Error("discord channel stopped", "error", err)
			}
		}()
	}

	slog.Info("majordomo serving",
		"gateway", fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port),
		"model", client.Model(),
		"discord", cfg.Discord.Enabled)

	if err := server.Start(ctx); err != nil {
		fatalf("gateway: %v", err)
	}

	// Let in-flight runs finish before tearing down stores.
	sched.Wait()
}

// buildRegistry wires the builtin tools from config. The caller freezes the
// registry once everything (including MCP bridges) is registered.
func buildRegistry(cfg *config.Config, mem *memory.Store, library *skills.Library) *tools.Registry {
	registry := tools.NewRegistry()

	// A failed registration means a wiring bug (duplicate name, frozen
	// registry); losing a tool silently would be worse than the noise.
	register := func(t tools.Tool) {
		if err := registry.Register(t); err != nil {
			slog.Error("tool not registered", "tool", t.Name(), "error", err)
		}
	}

	execTimeout := time.Duration(cfg.Tools.ExecTimeoutSec) * time.Second
	register(tools.NewExecTool(cfg.DataDir, execTimeout))
	register(tools.NewSudoTool(cfg.DataDir, execTimeout))
	register(tools.NewWebFetchTool(0, 15*time.Minute))
	register(tools.NewWebSearchTool(cfg.Tools.SearchAPIKey, true, 15*time.Minute))
	register(tools.NewMemorySaveTool(mem))
	register(tools.NewMemorySearchTool(mem))
	register(tools.NewContactsAddTool(mem))
	register(tools.NewContactsSearchTool(mem))
	register(tools.NewListSkillsTool(library))
	register(tools.NewReadSkillTool(library))
	register(tools.NewUpdateCoreTool(cfg.Agent.CoreFile))

	if cfg.Tools.SMTPHost != "" {
		register(tools.NewEmailTool(tools.SMTPConfig{
			Host:     cfg.Tools.SMTPHost,
			Port:     cfg.Tools.SMTPPort,
			Username: cfg.Tools.SMTPUser,
			Password: cfg.Tools.SMTPPassword,
			From:     cfg.Tools.SMTPUser,
		}))
	}
	if cfg.Tools.IMAPHost != "" {
		register(tools.NewReadEmailTool(tools.IMAPConfig{
			Host:     cfg.Tools.IMAPHost,
			Port:     cfg.Tools.IMAPPort,
			Username: cfg.Tools.IMAPUser,
			Password: cfg.Tools.IMAPPassword,
		}))
	}

	if cfg.Tools.MaxPerHour > 0 {
		registry.SetRateLimiter(tools.NewRateLimiter(cfg.Tools.MaxPerHour))
	}

	return registry
}

// cronHandler turns a due job into an agent run on the cron lane. The
// returned output is recorded in the job's run log; deliverable answers go
// out on the message bus.
func cronHandler(ctx context.Context, sched *scheduler.Scheduler, msgBus *bus.MessageBus) cron.JobHandler {
	return func(job *cron.Job) (string, error) {
		runCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
		defer cancel()

		outcome := <-sched.Schedule(runCtx, "cron", scheduler.Request{
			Session: job.Payload.Session,
			Message: job.Payload.Message,
		})
		if outcome.Err != nil {
			return "", outcome.Err
		}

		text := outcome.Result.FinalText
		if job.Payload.Deliver && text != "" {
			msgBus.PublishOutbound(bus.OutboundMessage{
				Channel: job.Payload.Channel,
				ChatID:  job.Payload.To,
				Content: text,
			})
		}
		return text, nil
	}
}

// deliverOutbound pumps outbound messages to their channel connectors.
func deliverOutbound(ctx context.Context, msgBus *bus.MessageBus) {
	for {
		msg, ok := msgBus.ConsumeOutbound(ctx)
		if !ok {
			return
		}
		handler, ok := msgBus.Handler(msg.Channel)
		if !ok {
			slog.Warn("no handler for outbound channel", "channel", msg.Channel)
			continue
		}
		if err := handler(ctx, msg); err != nil {
			slog.Warn("outbound delivery failed", "channel", msg.Channel, "error", err)
		}
	}
}
