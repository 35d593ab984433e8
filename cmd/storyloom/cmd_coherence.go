package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var coherenceAgent string

var coherenceCmd = &cobra.Command{
	Use:   "coherence",
	Short: "Recompute and report an agent's narrative coherence",
	RunE:  runCoherence,
}

func init() {
	coherenceCmd.Flags().StringVar(&coherenceAgent, "agent", "", "agent id (required)")
	_ = coherenceCmd.MarkFlagRequired("agent")
}

func runCoherence(cmd *cobra.Command, args []string) error {
	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	if _, err := a.store.GetStory(ctx, coherenceAgent); err != nil {
		return err
	}

	score, err := a.engine.CalculateNarrativeCoherence(ctx, coherenceAgent)
	if err != nil {
		return err
	}
	if err := a.store.UpdateOverallCoherence(ctx, coherenceAgent, score); err != nil {
		return err
	}

	fmt.Printf("Coherence:  %.3f\n", score)
	fmt.Printf("Story loss: %.3f\n", 1-score)
	if score <= cfg.Coherence.CoherenceThreshold {
		fmt.Printf("Below threshold (%.2f); consider running: storyloom reflect --agent %s\n",
			cfg.Coherence.CoherenceThreshold, coherenceAgent)
	}
	return nil
}
