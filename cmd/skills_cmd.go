package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/majordomo-ai/majordomo/internal/config"
	"github.com/majordomo-ai/majordomo/internal/skills"
)

func skillsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "skills",
		Short: "Inspect the skill library",
	}
	cmd.AddCommand(skillsListCmd())
	cmd.AddCommand(skillsShowCmd())
	return cmd
}

func loadSkills() *skills.Library {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		fatalf("load config: %v", err)
	}
	return skills.NewLibrary(cfg.SkillsDir)
}

func skillsListCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available skills",
		Run: func(cmd *cobra.Command, args []string) {
			list := loadSkills().List()

			if jsonOutput {
				data, _ := json.MarshalIndent(list, "", "  ")
				fmt.Println(string(data))
				return
			}

			if len(list) == 0 {
				fmt.Println("No skills found.")
				return
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "NAME\tDESCRIPTION\n")
			for _, s := range list {
				fmt.Fprintf(tw, "%s\t%s\n", s.Name, s.Description)
			}
			tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func skillsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [name]",
		Short: "Print a skill's full instructions",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			content, ok := loadSkills().Load(args[0])
			if !ok {
				fatalf("unknown skill %q", args[0])
			}
			fmt.Println(content)
		},
	}
}
