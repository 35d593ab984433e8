package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"storyloom/internal/logging"
	"storyloom/internal/logic"
)

var watchInterval time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the self-reflection coordinator until interrupted",
	Long: `Starts the minion coordinator loop and periodically scans every agent
story. Agents whose story-loss exceeds the reflection threshold are
scheduled for self-reflection. When a rules file is configured, it is
hot-reloaded on change.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 30*time.Second, "how often to scan agent stories")
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if cfg.Logic.RulesPath != "" && cfg.Logic.WatchRules {
		watcher, err := logic.NewWatcher(cfg.Logic.RulesPath, a.kernel)
		if err != nil {
			return err
		}
		if err := watcher.Start(ctx); err != nil {
			return err
		}
		defer watcher.Stop()
		fmt.Printf("Watching rules file %s\n", cfg.Logic.RulesPath)
	}

	a.coordinator.Start(ctx)
	defer a.coordinator.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	fmt.Printf("Watching stories every %s (ctrl-c to stop)\n", watchInterval)
	for {
		select {
		case <-sigCh:
			fmt.Println("\nShutting down")
			return nil
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := scanAgents(ctx, a); err != nil {
				logging.Get(logging.CategoryMinion).Warn("agent scan failed: %v", err)
			}
		}
	}
}

// scanAgents schedules reflection for every agent whose story-loss exceeds
// the threshold.
func scanAgents(ctx context.Context, a *app) error {
	agents, err := a.store.ListAgents(ctx)
	if err != nil {
		return err
	}
	for _, agentID := range agents {
		loss, err := a.engine.StoryLoss(ctx, agentID)
		if err != nil {
			return err
		}
		if loss <= cfg.Minion.ReflectionThreshold {
			continue
		}
		if _, err := a.coordinator.TriggerSelfReflection(agentID, loss, map[string]any{"source": "watch"}); err != nil {
			return err
		}
		fmt.Printf("Scheduled reflection for %s (loss %.3f)\n", agentID, loss)
	}
	return nil
}
