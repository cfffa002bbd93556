package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ralph-agent/ralph/internal/config"
	"github.com/ralph-agent/ralph/internal/session"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List persisted sessions",
	Long: `List all persisted ralph sessions, newest first, with their task
counts and lock status. Resume one with 'ralph --resume <id>'.`,
	RunE: runSessionsList,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
}

func runSessionsList(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	sessions, err := session.List(cfg.Session.Dir)
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}
	if len(sessions) == 0 {
		fmt.Println("no sessions")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tTASKS\tLOCKED\tPROMPT")
	for _, s := range sessions {
		locked := ""
		if s.IsLocked {
			locked = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			s.ID, s.Created.Format(time.DateTime), s.TaskCount, locked, truncatePrompt(s.Prompt))
	}
	return w.Flush()
}

func truncatePrompt(prompt string) string {
	const max = 60
	if len(prompt) <= max {
		return prompt
	}
	return prompt[:max] + "…"
}
