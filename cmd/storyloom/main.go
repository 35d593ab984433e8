// storyloom is the host application for the narrative coherence engine: it
// owns configuration, logging, the story graph store, the logic kernel, and
// the minion coordinator lifecycles, and exposes them through cobra verbs.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"storyloom/internal/config"
	"storyloom/internal/logging"
)

var (
	configPath string
	stateDir   string
	debugMode  bool

	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "storyloom",
	Short: "storyloom - narrative coherence and belief revision engine",
	Long: `storyloom models an agent's life-story as a causal graph of events,
detects contradictions against newly observed facts, and performs automatic
belief revision to restore narrative coherence.

Events flow through fact extraction and conflict analysis before they are
accepted; contradictions are resolved by overriding, reconciling, or
synthesizing beliefs. A background self-reflection minion repairs stories
whose story-loss crosses a threshold.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if stateDir != "" {
			cfg.StateDir = stateDir
		}
		if debugMode {
			cfg.Logging.DebugMode = true
		}
		return logging.Initialize(cfg.StateDir, logging.Options{
			DebugMode:  cfg.Logging.DebugMode,
			Level:      cfg.Logging.Level,
			Categories: cfg.Logging.Categories,
		})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "storyloom.yaml", "path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&stateDir, "state-dir", "", "state directory override (database and logs)")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(eventCmd)
	rootCmd.AddCommand(storyCmd)
	rootCmd.AddCommand(coherenceCmd)
	rootCmd.AddCommand(reflectCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
