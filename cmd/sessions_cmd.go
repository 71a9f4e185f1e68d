package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/majordomo-ai/majordomo/internal/config"
	"github.com/majordomo-ai/majordomo/internal/conversation"
	"github.com/majordomo-ai/majordomo/pkg/protocol"
)

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage conversation sessions",
	}
	cmd.AddCommand(sessionsListCmd())
	cmd.AddCommand(sessionsClearCmd())
	return cmd
}

func sessionsListCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List persisted sessions",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				fatalf("load config: %v", err)
			}

			var sessions []conversation.SessionInfo
			if isGatewayRunning(gatewayAddr(cfg)) {
				resp := mustRPC(cfg, protocol.MethodSessionsList, nil)
				var result struct {
					Sessions []conversation.SessionInfo `json:"sessions"`
				}
				if err := decodePayload(resp, &result); err != nil {
					fatalf("parse response: %v", err)
				}
				sessions = result.Sessions
			} else {
				store, err := conversation.NewStore(cfg.SessionsDir())
				if err != nil {
					fatalf("%v", err)
				}
				sessions, err = store.List()
				if err != nil {
					fatalf("%v", err)
				}
			}

			printSessions(sessions, jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func sessionsClearCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "clear [session]",
		Short: "Delete a session's conversation history",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			session := args[0]

			if !force {
				confirmed, err := promptConfirm(fmt.Sprintf("Clear session %q?", session), false)
				if err != nil || !confirmed {
					fmt.Println("Cancelled.")
					return
				}
			}

			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				fatalf("load config: %v", err)
			}

			if isGatewayRunning(gatewayAddr(cfg)) {
				mustRPC(cfg, protocol.MethodSessionsClear, map[string]string{"session": session})
			} else {
				store, err := conversation.NewStore(cfg.SessionsDir())
				if err != nil {
					fatalf("%v", err)
				}
				if err := store.Delete(session); err != nil {
					fatalf("%v", err)
				}
			}
			fmt.Printf("Cleared session %s\n", session)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "skip confirmation")
	return cmd
}

func printSessions(sessions []conversation.SessionInfo, jsonOutput bool) {
	if jsonOutput {
		data, _ := json.MarshalIndent(sessions, "", "  ")
		fmt.Println(string(data))
		return
	}

	if len(sessions) == 0 {
		fmt.Println("No sessions.")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "SESSION\tMESSAGES\tSAVED\n")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", s.Session, s.Messages, s.SavedAt.Format(time.DateTime))
	}
	tw.Flush()
}
