package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/majordomo-ai/majordomo/internal/agent"
	"github.com/majordomo-ai/majordomo/internal/approval"
	"github.com/majordomo-ai/majordomo/internal/config"
	"github.com/majordomo-ai/majordomo/internal/conversation"
	"github.com/majordomo-ai/majordomo/internal/engine"
	"github.com/majordomo-ai/majordomo/internal/memory"
	"github.com/majordomo-ai/majordomo/internal/providers"
	"github.com/majordomo-ai/majordomo/internal/scheduler"
	"github.com/majordomo-ai/majordomo/internal/skills"
	"github.com/majordomo-ai/majordomo/pkg/protocol"
)

func chatCmd() *cobra.Command {
	var (
		message string
		session string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat interactively or send a one-shot message",
		Long: `Chat with the agent via the running daemon (WebSocket client mode).
Falls back to standalone mode when the daemon is not running.

Examples:
  majordomo chat                        # interactive REPL
  majordomo chat -m "what's on today?"  # one-shot message
  majordomo chat -s my-session          # continue a named session`,
		Run: func(cmd *cobra.Command, args []string) {
			runChat(message, session)
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "one-shot message (omit for interactive mode)")
	cmd.Flags().StringVarP(&session, "session", "s", "", "session name (default: cli)")
	return cmd
}

func runChat(message, session string) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		fatalf("load config: %v", err)
	}

	if session == "" {
		session = "cli"
	}
	session = config.NormalizeSessionID(session)

	addr := gatewayAddr(cfg)
	if isGatewayRunning(addr) {
		fmt.Fprintf(os.Stderr, "Connected to daemon at %s\n", addr)
		runChatClient(cfg, message, session)
		return
	}

	fmt.Fprintln(os.Stderr, "Daemon not running, using standalone mode")
	runChatStandalone(cfg, message, session)
}

// --- client mode: talk to the running daemon ---

func runChatClient(cfg *config.Config, message, session string) {
	conn, err := dialGateway(cfg)
	if err != nil {
		fatalf("%v", err)
	}
	defer conn.Close()

	if message != "" {
		reply, err := chatSend(conn, session, message)
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Println(reply)
		return
	}

	fmt.Fprintf(os.Stderr, "\nmajordomo chat (model: %s)\n", cfg.Provider.Model)
	fmt.Fprintf(os.Stderr, "Session: %s\n", session)
	fmt.Fprintln(os.Stderr, "Type \"exit\" to quit, \"/new\" for a fresh session")
	fmt.Fprintln(os.Stderr)

	repl(session, func(input string) (string, error) {
		return chatSend(conn, session, input)
	}, func() string {
		session = config.NormalizeSessionID("cli-" + uuid.NewString()[:8])
		return session
	})
}

// chatSend streams one exchange, echoing deltas as they arrive. The final
// text is returned empty when everything was already printed via deltas.
func chatSend(conn *websocket.Conn, session, message string) (string, error) {
	var streamed bool
	resp, err := rpcOnConn(conn, protocol.MethodChatSend,
		map[string]string{"session": session, "message": message},
		func(evt protocol.EventFrame) {
			if evt.Session != session {
				return
			}
			printChatEvent(evt, &streamed)
		})
	if err != nil {
		return "", err
	}
	if !resp.OK {
		if resp.Error != nil {
			return "", fmt.Errorf("agent error: %s", resp.Error.Message)
		}
		return "", fmt.Errorf("agent error")
	}
	if streamed {
		fmt.Println()
		return "", nil
	}

	var payload struct {
		Content string `json:"content"`
	}
	if err := decodePayload(resp, &payload); err != nil {
		return "", err
	}
	return payload.Content, nil
}

func printChatEvent(evt protocol.EventFrame, streamed *bool) {
	switch evt.Event {
	case protocol.EventChat:
		var p protocol.ChatPayload
		if err := decodeEventPayload(evt.Payload, &p); err != nil {
			return
		}
		if p.Type == protocol.ChatEventDelta {
			fmt.Print(p.Content)
			*streamed = true
		}

	case protocol.EventRun:
		var p protocol.RunPayload
		if err := decodeEventPayload(evt.Payload, &p); err != nil {
			return
		}
		switch p.Type {
		case "tool." + string(engine.ToolRequested):
			fmt.Fprintf(os.Stderr, "  [tool] %s\n", p.Tool)
		case "tool." + string(engine.ToolAwaitingApproval):
			fmt.Fprintf(os.Stderr, "  [tool] %s awaiting approval\n", p.Tool)
		case "tool." + string(engine.ToolErrored):
			fmt.Fprintf(os.Stderr, "  [tool] %s -> error\n", p.Tool)
		}
	}
}

func decodeEventPayload(payload any, out any) error {
	return decodePayload(&protocol.ResponseFrame{Payload: payload}, out)
}

// --- standalone mode: in-process agent without the daemon ---

func runChatStandalone(cfg *config.Config, message, session string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		fatalf("create data dir: %v", err)
	}

	client := providers.NewOpenAIClient(
		cfg.Provider.Endpoint, cfg.Provider.APIKey, cfg.Provider.Model,
		providers.WithTimeout(cfg.ModelTimeout()),
		providers.WithRetry(providers.RetryConfig{
			MaxRetries: cfg.Provider.MaxRetries,
			BaseDelay:  time.Second,
			MaxDelay:   30 * time.Second,
		}),
	)

	mem, err := memory.Open(cfg.MemoryDBPath())
	if err != nil {
		fatalf("open memory store: %v", err)
	}
	defer mem.Close()

	library := skills.NewLibrary(cfg.SkillsDir)
	registry := buildRegistry(cfg, mem, library)
	registry.Freeze()

	gate := approval.NewGate(time.Duration(cfg.Agent.ApprovalTimeoutSec) * time.Second)
	gate.OnRequest(terminalApprover(gate))

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

	runtime := agent.NewRuntime(agent.Options{
		Config: cfg,
		Engine: eng,
		Store:  convStore,
		Skills: library,
		Memory: mem,
	})

	sink := engine.SinkFuncs{
		Text: func(delta string) { fmt.Print(delta) },
		Event: func(ev engine.ToolEvent) {
			if ev.Type == engine.ToolRequested {
				fmt.Fprintf(os.Stderr, "  [tool] %s\n", ev.Tool)
			}
		},
	}

	ask := func(input string) (string, error) {
		_, err := runtime.Run(ctx, scheduler.Request{
			Session: session,
			Message: input,
			Sink:    sink,
		})
		if err != nil {
			return "", err
		}
		fmt.Println()
		return "", nil
	}

	if message != "" {
		if _, err := ask(message); err != nil {
			fatalf("%v", err)
		}
		return
	}

	fmt.Fprintf(os.Stderr, "\nmajordomo chat — standalone mode (model: %s)\n", cfg.Provider.Model)
	fmt.Fprintf(os.Stderr, "Session: %s\n", session)
	fmt.Fprintln(os.Stderr, "Type \"exit\" to quit, \"/new\" for a fresh session")
	fmt.Fprintln(os.Stderr)

	repl(session, ask, func() string {
		session = config.NormalizeSessionID("cli-" + uuid.NewString()[:8])
		return session
	})
}

// terminalApprover resolves approval requests with a yes/no prompt.
func terminalApprover(gate *approval.Gate) approval.RequestListener {
	return func(p approval.Pending) {
		fmt.Fprintln(os.Stderr)
		approve, err := promptConfirm(fmt.Sprintf("Allow %s? %s", p.Tool, p.Prompt), false)
		outcome := approval.OutcomeDenied
		if err == nil && approve {
			outcome = approval.OutcomeApproved
		}
		gate.Resolve(p.ID, outcome, "cli")
	}
}

// repl reads lines from stdin and feeds them to ask until exit.
func repl(session string, ask func(string) (string, error), newSession func() string) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(os.Stderr, "You: ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Fprintln(os.Stderr, "Goodbye!")
			return
		}
		if input == "/new" {
			fmt.Fprintf(os.Stderr, "New session: %s\n\n", newSession())
			continue
		}

		reply, err := ask(input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
			continue
		}
		if reply != "" {
			fmt.Printf("\n%s\n\n", reply)
		}
	}
}
