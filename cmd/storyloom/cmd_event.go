package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"storyloom/internal/coherence"
	"storyloom/internal/types"
)

var (
	eventAgent        string
	eventType         string
	eventConfidence   float64
	eventSource       string
	eventParents      []string
	eventGoalDirected bool
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Work with story events",
}

var eventAddCmd = &cobra.Command{
	Use:   "add [content]",
	Short: "Append an event to an agent's story",
	Long: `Scores the event, scans the recent graph for contradictions, and
persists it. Contradictions are resolved automatically by belief revision;
the command reports whether coherence stayed above the threshold.

Example:
  storyloom event add "deployed build 421 to production" \
    --agent agent-7 --type action_taken --confidence 0.9`,
	Args: cobra.ExactArgs(1),
	RunE: runEventAdd,
}

func init() {
	eventAddCmd.Flags().StringVar(&eventAgent, "agent", "", "agent id (required)")
	eventAddCmd.Flags().StringVar(&eventType, "type", string(types.EventActionTaken), "event type")
	eventAddCmd.Flags().Float64Var(&eventConfidence, "confidence", 0.8, "source confidence in [0,1]")
	eventAddCmd.Flags().StringVar(&eventSource, "source", "", "evidence source")
	eventAddCmd.Flags().StringSliceVar(&eventParents, "parent", nil, "causal parent event id (repeatable)")
	eventAddCmd.Flags().BoolVar(&eventGoalDirected, "goal-directed", false, "mark the event as goal-directed")
	_ = eventAddCmd.MarkFlagRequired("agent")

	eventCmd.AddCommand(eventAddCmd)
}

func runEventAdd(cmd *cobra.Command, args []string) error {
	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	var eventContext map[string]any
	if eventGoalDirected {
		eventContext = map[string]any{"goal_directed": true}
	}

	id, maintained, err := a.engine.AddEvent(cmd.Context(), coherence.AddEventRequest{
		AgentID:        eventAgent,
		EventType:      types.EventType(eventType),
		Content:        args[0],
		Context:        eventContext,
		EvidenceSource: eventSource,
		Confidence:     eventConfidence,
		CausalParents:  eventParents,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Event %s appended\n", id)
	if maintained {
		fmt.Println("Coherence maintained")
	} else {
		fmt.Println("Coherence below threshold; consider running: storyloom reflect --agent", eventAgent)
	}
	return nil
}
