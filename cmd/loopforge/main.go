// Command loopforge runs the MCP orchestration hub: a JSON-RPC server over
// HTTP or stdio that mediates planning, implementing and review cycles
// between LLM CLI collaborators.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/Strob0t/LoopForge/internal/adapter/aider"
	"github.com/Strob0t/LoopForge/internal/adapter/artifactfile"
	"github.com/Strob0t/LoopForge/internal/adapter/claudecli"
	"github.com/Strob0t/LoopForge/internal/adapter/codexcli"
	"github.com/Strob0t/LoopForge/internal/adapter/geminicli"
	"github.com/Strob0t/LoopForge/internal/adapter/guarded"
	lfhttp "github.com/Strob0t/LoopForge/internal/adapter/http"
	"github.com/Strob0t/LoopForge/internal/adapter/mcp"
	"github.com/Strob0t/LoopForge/internal/adapter/otel"
	"github.com/Strob0t/LoopForge/internal/adapter/ristretto"
	"github.com/Strob0t/LoopForge/internal/adapter/simulate"
	"github.com/Strob0t/LoopForge/internal/adapter/statefile"
	"github.com/Strob0t/LoopForge/internal/adapter/ws"
	"github.com/Strob0t/LoopForge/internal/config"
	"github.com/Strob0t/LoopForge/internal/logger"
	"github.com/Strob0t/LoopForge/internal/middleware"
	"github.com/Strob0t/LoopForge/internal/port/cache"
	"github.com/Strob0t/LoopForge/internal/resilience"
	"github.com/Strob0t/LoopForge/internal/service"
)

const version = "0.1.0"

func main() {
	// Fallback logger until the config-driven one is installed. Stderr
	// only: in stdio mode the protocol owns stdout.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	args := os.Args[1:]
	if len(args) > 0 && (args[0] == "help" || args[0] == "-h" || args[0] == "--help") {
		printUsage()
		return
	}

	cmd := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd = args[0]
		args = args[1:]
	}

	var err error
	switch cmd {
	case "serve":
		err = runServe(args)
	case "stdio":
		err = runStdio(args)
	case "cycle":
		err = runCycle(args)
	case "version":
		fmt.Println("loopforge " + version)
	default:
		printUsage()
		err = fmt.Errorf("unknown command: %s", cmd)
	}
	if err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: loopforge [command] [options]

Commands:
  serve     Start the HTTP MCP server (default)
  stdio     Serve MCP over stdin/stdout
  cycle     Run loop cycles directly, without a client
  version   Print the version
  help      Show this help message

Options (serve, stdio):
  --config, -c  path to YAML config file
  --port, -p    HTTP port
  --state-dir   state directory
  --log-level   debug, info, warn or error

Examples:
  loopforge serve --port 9000
  loopforge stdio
  loopforge cycle --cycles 3 --delay 5s --implementer simulate
`)
}

// app bundles the wired services shared by the serve, stdio and cycle
// commands.
type app struct {
	cfg       *config.Config
	hub       *ws.Hub
	mcpServer *mcp.Server
	cycleSvc  *service.CycleService
	statusSvc *service.StatusService

	tracerShutdown otel.ShutdownFunc
}

// newApp builds the full service graph from cfg: stores, planner with
// circuit breaker, implementer registry, probe cache, services and the
// MCP server.
func newApp(cfg *config.Config) (*app, error) {
	state, err := statefile.New(cfg.State.Dir)
	if err != nil {
		return nil, fmt.Errorf("state store: %w", err)
	}
	artifacts, err := artifactfile.New(filepath.Join(cfg.State.Dir, "artifacts"))
	if err != nil {
		return nil, fmt.Errorf("artifact store: %w", err)
	}

	breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	pl := guarded.NewPlanner(geminicli.New(cfg.Planner.Binary, cfg.Planner.Timeout), breaker)

	simulate.Register()
	codexcli.Register(cfg.Implementer.Timeout)
	claudecli.Register(cfg.Implementer.Timeout)
	aider.Register(cfg.Implementer.Timeout)

	var probeCache cache.Cache
	if c, err := ristretto.New(cfg.Cache.MaxSizeMB * 1024 * 1024); err != nil {
		slog.Warn("probe cache disabled", "error", err)
	} else {
		probeCache = c
	}

	metrics, err := otel.NewMetrics()
	if err != nil {
		slog.Warn("metrics disabled", "error", err)
		metrics = nil
	}

	hub := ws.NewHub()

	cycleSvc := service.NewCycleService(state, artifacts, pl, hub, metrics, &cfg.Planner, &cfg.Implementer)
	specSvc := service.NewSpecService(state, artifacts, pl, hub, &cfg.Planner)
	statusSvc := service.NewStatusService(state, pl, probeCache, &cfg.Planner, &cfg.Cache)
	shellSvc := service.NewShellService(cfg.Shell.Enabled)

	mcpServer := mcp.NewServer(mcp.ServerConfig{
		Name:        "loopforge",
		Version:     version,
		SessionIdle: cfg.Server.SessionIdle,
	}, mcp.ServerDeps{
		State:        state,
		Artifacts:    artifacts,
		CycleEngine:  cycleSvc,
		SpecWriter:   specSvc,
		StatusReader: statusSvc,
		ShellRunner:  shellSvc,
		Metrics:      metrics,
	})

	return &app{
		cfg:            cfg,
		hub:            hub,
		mcpServer:      mcpServer,
		cycleSvc:       cycleSvc,
		statusSvc:      statusSvc,
		tracerShutdown: otel.InitTracer("loopforge"),
	}, nil
}

func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.tracerShutdown(ctx); err != nil {
		slog.Warn("tracer shutdown", "error", err)
	}
}

func runServe(args []string) error {
	flags, err := config.ParseFlags(args)
	if err != nil {
		return err
	}
	cfg, cfgFile, err := config.LoadWithCLI(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	defer logCloser.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"file", cfgFile,
		"port", cfg.Server.Port,
		"state_dir", cfg.State.Dir,
		"planner", cfg.Planner.Binary,
		"implementer", cfg.Implementer.Default,
	)

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	var limiter *middleware.RateLimiter
	if cfg.Server.RateLimit > 0 {
		limiter = middleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst)
		stop := limiter.StartCleanup(time.Minute, 10*time.Minute)
		defer stop()
	}

	router := lfhttp.NewRouter(cfg.Server, lfhttp.RouterDeps{
		MCP:     a.mcpServer.Handler(),
		WS:      a.hub.HandleWS,
		Limiter: limiter,
	})

	addr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
		// No read/write timeouts: run_cycle holds a request open for the
		// length of the collaborator timeouts. The per-route timeout
		// middleware covers hung handlers.
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("loopforge listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	err = srv.Shutdown(shutdownCtx)
	a.hub.CloseAll()
	return err
}

func runStdio(args []string) error {
	flags, err := config.ParseFlags(args)
	if err != nil {
		return err
	}
	cfg, _, err := config.LoadWithCLI(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.NewWithWriter(os.Stderr, cfg.Logging)
	defer logCloser.Close()
	slog.SetDefault(log)

	if term.IsTerminal(int(os.Stdin.Fd())) {
		slog.Warn("stdin is a terminal; expecting an MCP client on stdio")
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	slog.Info("serving MCP on stdio", "state_dir", cfg.State.Dir)
	return a.mcpServer.ServeStdio()
}
