package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var reflectAgent string

var reflectCmd = &cobra.Command{
	Use:   "reflect",
	Short: "Run one self-reflection pass for an agent synchronously",
	Long: `Computes the agent's current story-loss, schedules a self-reflection
task, and executes it in the foreground. The minion analyzes the recent
story graph for negation, temporal, and logical inconsistencies and adds
clarifying edges where it finds them.`,
	RunE: runReflect,
}

func init() {
	reflectCmd.Flags().StringVar(&reflectAgent, "agent", "", "agent id (required)")
	_ = reflectCmd.MarkFlagRequired("agent")
}

func runReflect(cmd *cobra.Command, args []string) error {
	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	loss, err := a.engine.StoryLoss(ctx, reflectAgent)
	if err != nil {
		return err
	}

	taskID, err := a.coordinator.TriggerSelfReflection(reflectAgent, loss, map[string]any{"source": "cli"})
	if err != nil {
		return err
	}
	if !a.coordinator.RunOne(ctx) {
		return fmt.Errorf("scheduled task %s was not eligible to run", taskID)
	}

	task, ok := a.coordinator.Task(taskID)
	if !ok {
		return fmt.Errorf("task %s not found after execution", taskID)
	}

	fmt.Printf("Task %s: %s\n", task.ID, task.Status)
	if task.ErrorMessage != "" {
		fmt.Printf("  Error: %s\n", task.ErrorMessage)
	}
	for _, key := range []string{"action", "findings", "repairs_added", "story_loss_before", "story_loss_after", "retry_recommended"} {
		if v, ok := task.Result[key]; ok {
			fmt.Printf("  %-18s %v\n", key+":", v)
		}
	}
	return nil
}
