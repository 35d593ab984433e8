package main

import (
	"fmt"
	"os"
	"path/filepath"

	"storyloom/internal/coherence"
	"storyloom/internal/config"
	"storyloom/internal/logic"
	"storyloom/internal/minion"
	"storyloom/internal/store"
)

// app bundles the wired services for one command invocation. Close releases
// them in reverse dependency order.
type app struct {
	store       *store.GraphStore
	engine      *coherence.Engine
	kernel      *logic.Kernel
	coordinator *minion.Coordinator
}

// openApp wires the full service graph from configuration.
func openApp(cfg config.Config) (*app, error) {
	dbPath := cfg.DatabasePath()
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	s, err := store.NewWithBusyTimeout(dbPath, cfg.Store.BusyTimeoutMS)
	if err != nil {
		return nil, fmt.Errorf("failed to open story graph store: %w", err)
	}

	kernel := logic.NewKernel()
	if cfg.Logic.RulesPath != "" {
		data, err := os.ReadFile(cfg.Logic.RulesPath)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to read rules file: %w", err)
		}
		if err := kernel.SetRules(string(data)); err != nil {
			s.Close()
			return nil, fmt.Errorf("invalid rules file %s: %w", cfg.Logic.RulesPath, err)
		}
	}

	engine := coherence.NewEngine(s, cfg.Coherence, coherence.NopServices())
	reflection := minion.NewSelfReflectionMinion(s, engine, kernel, cfg.Minion)
	coordinator := minion.NewCoordinator(cfg.Minion, reflection)

	return &app{
		store:       s,
		engine:      engine,
		kernel:      kernel,
		coordinator: coordinator,
	}, nil
}

func (a *app) Close() {
	a.store.Close()
}
