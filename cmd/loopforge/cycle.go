package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Strob0t/LoopForge/internal/config"
	"github.com/Strob0t/LoopForge/internal/domain"
	"github.com/Strob0t/LoopForge/internal/logger"
)

// runCycle drives the loop directly from the command line, without an MCP
// client attached. Useful for smoke tests and unattended runs.
func runCycle(args []string) error {
	fs := flag.NewFlagSet("cycle", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	configPath := fs.String("config", "", "path to YAML config file")
	stateDir := fs.String("state-dir", "", "state directory")
	logLevel := fs.String("log-level", "", "debug, info, warn or error")
	count := fs.Int("cycles", 1, "number of cycles to run")
	delay := fs.Duration("delay", time.Second, "pause between cycles")
	impl := fs.String("implementer", "", "implementer to use (default: from config)")
	task := fs.String("task", "", "task to plan against (default: a demonstration task)")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}
	if *count < 1 {
		return errors.New("--cycles must be >= 1")
	}

	var flags config.CLIFlags
	if *configPath != "" {
		flags.ConfigPath = configPath
	}
	if *stateDir != "" {
		flags.StateDir = stateDir
	}
	if *logLevel != "" {
		flags.LogLevel = logLevel
	}

	cfg, _, err := config.LoadWithCLI(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	defer logCloser.Close()
	slog.SetDefault(log)

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := a.statusSvc.Status(ctx)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}
	slog.Info("collaborator status",
		"planner_available", st.PlannerAvailable,
		"planner_version", st.PlannerVersion,
		"implementers", st.Implementers,
	)

	ran := 0
	for i := range *count {
		if i > 0 {
			select {
			case <-time.After(*delay):
			case <-ctx.Done():
				slog.Warn("interrupted")
				return nil
			}
		}

		res, err := a.cycleSvc.RunCycle(ctx, *impl, *task, "")
		if err != nil {
			if errors.Is(err, domain.ErrPaused) {
				slog.Warn("loop is paused; stopping", "cycles_run", ran)
				break
			}
			if errors.Is(err, context.Canceled) {
				slog.Warn("interrupted", "cycles_run", ran)
				return nil
			}
			return fmt.Errorf("cycle %d: %w", i+1, err)
		}
		ran++

		for _, ph := range res.Phases {
			slog.Info("phase finished",
				"cycle", i+1,
				"phase", ph.Name,
				"ok", ph.Success,
				"implementer", ph.Implementer,
			)
		}
		slog.Info("cycle finished",
			"cycle", i+1,
			"of", *count,
			"completed", res.CycleCompleted,
		)
	}

	final, err := a.statusSvc.Status(ctx)
	if err != nil {
		return fmt.Errorf("final status: %w", err)
	}
	slog.Info("run complete",
		"cycles_run", ran,
		"phase", final.State.Phase,
		"cycle_count", final.State.CycleCount,
		"recent_events", len(final.RecentEvents),
	)
	return nil
}
