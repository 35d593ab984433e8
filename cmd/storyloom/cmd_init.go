package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	initTitle     string
	initObjective string
)

var initCmd = &cobra.Command{
	Use:   "init [agent-id]",
	Short: "Create an agent story with its birth event and primary thread",
	Long: `Creates the per-agent story singleton. The core objective set here is
immutable and drives alignment scoring for every later event.

Example:
  storyloom init agent-7 --title "Ops Agent" --objective "keep the service healthy"`,
	Args: cobra.ExactArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVar(&initTitle, "title", "", "story title")
	initCmd.Flags().StringVar(&initObjective, "objective", "", "the agent's core objective")
}

func runInit(cmd *cobra.Command, args []string) error {
	agentID := args[0]

	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	title := initTitle
	if title == "" {
		title = fmt.Sprintf("The Story of %s", agentID)
	}

	story, err := a.engine.InitializeStory(cmd.Context(), agentID, title, initObjective)
	if err != nil {
		return err
	}

	fmt.Printf("Initialized story for %s\n", story.AgentID)
	fmt.Printf("  Title:     %s\n", story.StoryTitle)
	fmt.Printf("  Objective: %s\n", story.CoreObjective)
	return nil
}
