package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/majordomo-ai/majordomo/internal/config"
	"github.com/majordomo-ai/majordomo/internal/cron"
	"github.com/majordomo-ai/majordomo/pkg/protocol"
)

func cronCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cron",
		Short: "Manage scheduled jobs",
	}
	cmd.AddCommand(cronListCmd())
	cmd.AddCommand(cronAddCmd())
	cmd.AddCommand(cronDeleteCmd())
	cmd.AddCommand(cronToggleCmd())
	cmd.AddCommand(cronRunCmd())
	return cmd
}

// loadCron loads config and returns it with a local cron service bound to
// the same store file the daemon uses. Local mutation while the daemon runs
// would race its in-memory state, so commands prefer RPC when it is up.
func loadCron() (*config.Config, *cron.Service) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		fatalf("load config: %v", err)
	}
	return cfg, cron.NewService(cfg.CronStorePath(), nil)
}

func cronListCmd() *cobra.Command {
	var jsonOutput bool
	var showDisabled bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List scheduled jobs",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, svc := loadCron()
			if isGatewayRunning(gatewayAddr(cfg)) {
				resp := mustRPC(cfg, protocol.MethodCronList, map[string]bool{"include_disabled": showDisabled})
				var result struct {
					Jobs []cron.Job `json:"jobs"`
				}
				if err := decodePayload(resp, &result); err != nil {
					fatalf("parse response: %v", err)
				}
				printCronJobs(result.Jobs, jsonOutput)
				return
			}
			if err := svc.Start(); err != nil {
				fatalf("%v", err)
			}
			svc.Stop()
			printCronJobs(svc.List(showDisabled), jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().BoolVar(&showDisabled, "all", false, "include disabled jobs")
	return cmd
}

func cronAddCmd() *cobra.Command {
	var (
		name    string
		at      string
		every   time.Duration
		expr    string
		session string
		message string
		deliver bool
		channel string
		to      string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a scheduled job",
		Long: `Add a job that runs a message through the agent on a schedule.

Examples:
  majordomo cron add --name standup --cron "0 9 * * 1-5" \
      --session cron:standup --message "Draft my standup notes"
  majordomo cron add --name reminder --at 2026-09-01T09:00:00Z \
      --session cron:reminders --message "Remind me about the dentist" \
      --deliver --channel discord --to 1234567890`,
		Run: func(cmd *cobra.Command, args []string) {
			if message == "" {
				fatalf("--message is required")
			}
			if session == "" {
				fatalf("--session is required")
			}

			schedule := cron.Schedule{}
			switch {
			case expr != "":
				schedule.Kind = "cron"
				schedule.Expr = expr
			case every > 0:
				schedule.Kind = "every"
				ms := every.Milliseconds()
				schedule.EveryMS = &ms
			case at != "":
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					fatalf("--at must be RFC3339: %v", err)
				}
				ms := t.UnixMilli()
				schedule.Kind = "at"
				schedule.AtMS = &ms
			default:
				fatalf("one of --cron, --every, or --at is required")
			}

			payload := cron.Payload{
				Session: session,
				Message: message,
				Deliver: deliver,
				Channel: channel,
				To:      to,
			}

			cfg, svc := loadCron()
			if isGatewayRunning(gatewayAddr(cfg)) {
				resp := mustRPC(cfg, protocol.MethodCronAdd, map[string]any{
					"name":     name,
					"schedule": schedule,
					"payload":  payload,
				})
				var result struct {
					Job cron.Job `json:"job"`
				}
				if err := decodePayload(resp, &result); err != nil {
					fatalf("parse response: %v", err)
				}
				fmt.Printf("Added job %s\n", result.Job.ID)
				return
			}

			if err := svc.Start(); err != nil {
				fatalf("%v", err)
			}
			defer svc.Stop()
			job, err := svc.Add(name, schedule, payload)
			if err != nil {
				fatalf("%v", err)
			}
			fmt.Printf("Added job %s\n", job.ID)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "job name")
	cmd.Flags().StringVar(&at, "at", "", "one-shot time (RFC3339)")
	cmd.Flags().DurationVar(&every, "every", 0, "fixed interval, e.g. 30m")
	cmd.Flags().StringVar(&expr, "cron", "", "cron expression, e.g. \"0 9 * * *\"")
	cmd.Flags().StringVar(&session, "session", "", "conversation session for the run")
	cmd.Flags().StringVar(&message, "message", "", "message delivered to the agent")
	cmd.Flags().BoolVar(&deliver, "deliver", false, "push the answer to a channel")
	cmd.Flags().StringVar(&channel, "channel", "discord", "delivery channel")
	cmd.Flags().StringVar(&to, "to", "", "delivery target (chat ID)")
	return cmd
}

func cronDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [jobId]",
		Short: "Delete a job",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg, svc := loadCron()
			if isGatewayRunning(gatewayAddr(cfg)) {
				mustRPC(cfg, protocol.MethodCronRemove, map[string]string{"id": args[0]})
				fmt.Printf("Deleted job %s\n", args[0])
				return
			}
			if err := svc.Start(); err != nil {
				fatalf("%v", err)
			}
			defer svc.Stop()
			if err := svc.Remove(args[0]); err != nil {
				fatalf("%v", err)
			}
			fmt.Printf("Deleted job %s\n", args[0])
		},
	}
}

func cronToggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle [jobId] [true|false]",
		Short: "Enable or disable a job",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			enabled := args[1] == "true" || args[1] == "1" || args[1] == "on"
			cfg, svc := loadCron()
			if isGatewayRunning(gatewayAddr(cfg)) {
				mustRPC(cfg, protocol.MethodCronEnable, map[string]any{"id": args[0], "enabled": enabled})
				fmt.Printf("Job %s enabled=%v\n", args[0], enabled)
				return
			}
			if err := svc.Start(); err != nil {
				fatalf("%v", err)
			}
			defer svc.Stop()
			if err := svc.Enable(args[0], enabled); err != nil {
				fatalf("%v", err)
			}
			fmt.Printf("Job %s enabled=%v\n", args[0], enabled)
		},
	}
}

func cronRunCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "run [jobId]",
		Short: "Run a job now (requires the daemon)",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg, _ := loadCron()
			if !isGatewayRunning(gatewayAddr(cfg)) {
				fatalf("the daemon must be running to execute jobs; start it with: majordomo serve")
			}
			resp := mustRPC(cfg, protocol.MethodCronRun, map[string]any{"id": args[0], "force": force})
			var result struct {
				Ran    bool   `json:"ran"`
				Result string `json:"result,omitempty"`
				Reason string `json:"reason,omitempty"`
			}
			if err := decodePayload(resp, &result); err != nil {
				fatalf("parse response: %v", err)
			}
			if !result.Ran {
				fmt.Printf("Not run: %s\n", result.Reason)
				return
			}
			fmt.Println(result.Result)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "run even when not due")
	return cmd
}

func printCronJobs(jobs []cron.Job, jsonOutput bool) {
	if jsonOutput {
		data, _ := json.MarshalIndent(jobs, "", "  ")
		fmt.Println(string(data))
		return
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs scheduled.")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\tNAME\tENABLED\tSCHEDULE\tNEXT RUN\tLAST RUN\n")
	for _, j := range jobs {
		schedule := j.Schedule.Kind
		switch {
		case j.Schedule.Expr != "":
			schedule = j.Schedule.Expr
		case j.Schedule.EveryMS != nil:
			schedule = "every " + (time.Duration(*j.Schedule.EveryMS) * time.Millisecond).String()
		case j.Schedule.AtMS != nil:
			schedule = "at " + time.UnixMilli(*j.Schedule.AtMS).Format(time.DateTime)
		}

		nextRun := "-"
		if j.State.NextRunAtMS != nil {
			nextRun = time.UnixMilli(*j.State.NextRunAtMS).Format(time.DateTime)
		}
		lastRun := "never"
		if j.State.LastRunAtMS != nil {
			lastRun = time.UnixMilli(*j.State.LastRunAtMS).Format(time.DateTime)
		}

		fmt.Fprintf(tw, "%s\t%s\t%v\t%s\t%s\t%s\n", j.ID, j.Name, j.Enabled, schedule, nextRun, lastRun)
	}
	tw.Flush()
}
