package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"storyloom/internal/types"
)

var (
	storyAgent string
	storyLimit int
)

var storyCmd = &cobra.Command{
	Use:   "story",
	Short: "Inspect agent stories",
}

var storyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show an agent's story, recent events, and revision log",
	RunE:  runStoryShow,
}

func init() {
	storyShowCmd.Flags().StringVar(&storyAgent, "agent", "", "agent id (required)")
	storyShowCmd.Flags().IntVar(&storyLimit, "limit", 10, "number of recent events to show")
	_ = storyShowCmd.MarkFlagRequired("agent")

	storyCmd.AddCommand(storyShowCmd)
}

func runStoryShow(cmd *cobra.Command, args []string) error {
	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	story, err := a.store.GetStory(ctx, storyAgent)
	if err != nil {
		return err
	}

	fmt.Printf("%s (%s)\n", story.StoryTitle, story.AgentID)
	fmt.Printf("  Objective:  %s\n", story.CoreObjective)
	fmt.Printf("  Coherence:  %.3f\n", story.OverallCoherence)
	fmt.Printf("  Events:     %d (%d revisions)\n", story.TotalEvents, story.TotalRevisions)
	fmt.Printf("  Started:    %s\n", story.StoryStartedAt.Local().Format(time.RFC822))

	events, err := a.store.RecentEvents(ctx, storyAgent, time.Time{}, nil, storyLimit)
	if err != nil {
		return err
	}
	if len(events) > 0 {
		fmt.Println("\nRecent events:")
		for _, ev := range events {
			marker := " "
			if ev.IsCoreBelief {
				marker = "*"
			}
			fmt.Printf("  %s [%s]%s conf=%.2f align=%.2f  %s\n",
				ev.Timestamp.Local().Format("Jan 02 15:04"),
				ev.EventType, marker, ev.Confidence, ev.AlignmentScore,
				truncate(ev.Content, 70))
		}
	}

	thread, err := a.store.GetThreadByTitle(ctx, storyAgent, types.PrimaryThreadTitle)
	if err == nil {
		fmt.Printf("\nPrimary thread: %d events", len(thread.EventIDs))
		if !thread.IsActive {
			fmt.Print(" (inactive)")
		}
		fmt.Println()
	}

	revisions, err := a.store.ListRevisions(ctx, storyAgent)
	if err != nil {
		return err
	}
	if len(revisions) > 0 {
		fmt.Println("\nBelief revisions:")
		for _, rev := range revisions {
			fmt.Printf("  %s %s (confidence change %+.2f)\n",
				rev.Timestamp.Local().Format("Jan 02 15:04"),
				rev.RevisionReason, rev.ConfidenceChange)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
