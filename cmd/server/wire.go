package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/example/mission-control/internal/agents"
	"github.com/example/mission-control/internal/config"
	"github.com/example/mission-control/internal/orchestrator"
	"github.com/example/mission-control/internal/providers/llm"
	"github.com/example/mission-control/internal/store"
	"github.com/example/mission-control/internal/tools"
)

type app struct {
	cfg     config.Config
	log     *slog.Logger
	orch    *orchestrator.Orchestrator
	closers []io.Closer
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.log.Warn("close", "err", err)
		}
	}
}

// build reads configuration and wires the gateways, store and orchestrator.
func build(ctx context.Context, cfgPath string) (*app, error) {
	// a missing .env is fine
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: cfg.NewLogger(os.Stderr)}

	var st store.Store
	switch cfg.Store.Driver {
	case "memory":
		st = store.NewMemory()
	default:
		sq, err := store.OpenSQLite(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("open plan store: %w", err)
		}
		st = sq
	}
	a.closers = append(a.closers, st)

	client, err := llm.New(ctx, cfg.LLMSettings())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("llm client: %w", err)
	}
	if c, ok := client.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	roles := agents.DefaultRegistry()
	var (
		planner   agents.Planner
		executor  agents.Executor
		finalizer agents.Finalizer
	)
	if _, offline := client.(*llm.MockClient); offline {
		a.log.Info("no LLM provider configured; using offline agents")
		planner = &agents.MockPlanner{Roles: roles}
		executor = agents.MockExecutor{}
		finalizer = agents.MockFinalizer{}
	} else {
		var refs *tools.Collector
		if cfg.References.Enabled {
			refs = &tools.Collector{
				Fetcher:     tools.NewFetcher(cfg.References.Timeout, cfg.References.MaxBytes),
				MaxRefs:     cfg.References.MaxRefs,
				MaxParallel: cfg.References.MaxParallel,
				MaxChars:    cfg.References.MaxChars,
				MaxPages:    cfg.References.MaxPages,
			}
		}
		planner = &agents.LLMPlanner{Client: client, Roles: roles}
		executor = &agents.LLMExecutor{Client: client, Roles: roles, References: refs, ContextEntries: cfg.Mission.LogContextEntries}
		finalizer = &agents.LLMFinalizer{Client: client}
	}

	a.orch = orchestrator.New(planner, executor, finalizer,
		orchestrator.WithRoles(roles),
		orchestrator.WithStore(st),
		orchestrator.WithLogger(a.log),
		orchestrator.WithMaxParallel(cfg.Mission.MaxParallel),
		orchestrator.WithTaskTimeout(cfg.Mission.TaskTimeout),
	)
	return a, nil
}
