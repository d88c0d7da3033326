// Package mcp exposes the loop engine over the Model Context Protocol.
// Tools and resources are registered on an mcp-go server; the package adds
// the session-aware HTTP transport and a stdio transport on top.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/LoopForge/internal/adapter/otel"
	"github.com/Strob0t/LoopForge/internal/domain/cycle"
	"github.com/Strob0t/LoopForge/internal/domain/review"
	"github.com/Strob0t/LoopForge/internal/port/artifactstore"
	"github.com/Strob0t/LoopForge/internal/port/statestore"
	"github.com/Strob0t/LoopForge/internal/service"
)

// serverInstructions is surfaced to MCP clients during initialize.
const serverInstructions = "LoopForge mediates a repeating planning -> implementing -> " +
	"awaiting_review loop between CLI collaborators. Use generate_plan to start a cycle, " +
	"submit_handoff when the implementation is done, and generate_review to close the " +
	"cycle. run_cycle drives all three phases with an implementer backend."

// CycleEngine drives the plan -> implement -> review loop.
type CycleEngine interface {
	GeneratePlan(ctx context.Context, task, taskContext, model string, extensions []string) (*service.GenerateResult, error)
	SubmitHandoff(ctx context.Context, content string) (string, error)
	GenerateReview(ctx context.Context, req service.ReviewRequest) (*service.ReviewResult, error)
	RunCycle(ctx context.Context, implementerName, task, taskContext string) (*service.CycleResult, error)
	Pause(ctx context.Context) (cycle.State, error)
	Resume(ctx context.Context) (cycle.State, error)
}

// SpecWriter generates the specification artifact and scores artifact
// quality.
type SpecWriter interface {
	GenerateSpec(ctx context.Context, task, taskContext, model string, extensions []string, qualityRetries int) (*service.SpecResult, error)
	ReviewArtifacts(ctx context.Context, userBrief string) review.Result
}

// StatusReader reports the hub status snapshot.
type StatusReader interface {
	Status(ctx context.Context) (*service.Status, error)
}

// ShellRunner executes policy-gated shell commands.
type ShellRunner interface {
	Run(ctx context.Context, command, cwd string, timeout time.Duration) (*service.ShellResult, error)
}

// ServerDeps carries the collaborators the MCP tools call into. A nil field
// disables the tools that need it with an explanatory error result.
type ServerDeps struct {
	State        statestore.Store
	Artifacts    artifactstore.Store
	CycleEngine  CycleEngine
	SpecWriter   SpecWriter
	StatusReader StatusReader
	ShellRunner  ShellRunner
	Metrics      *otel.Metrics
}

// ServerConfig holds the MCP server settings.
type ServerConfig struct {
	Addr        string
	Name        string
	Version     string
	SessionIdle time.Duration
}

// Server exposes the loop tools and artifacts over MCP. Protocol framing
// comes from mcp-go; Server adds the session table and the HTTP transport.
type Server struct {
	cfg       ServerConfig
	deps      ServerDeps
	mcpServer *mcpserver.MCPServer
	sessions  *sessionTable
	httpSrv   *http.Server
}

// NewServer builds an MCP server with all tools and resources registered.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	s := &Server{
		cfg:      cfg,
		deps:     deps,
		sessions: newSessionTable(cfg.SessionIdle),
	}
	s.mcpServer = mcpserver.NewMCPServer(cfg.Name, cfg.Version,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithResourceCapabilities(false, false),
		mcpserver.WithPromptCapabilities(false),
		mcpserver.WithRecovery(),
		mcpserver.WithInstructions(serverInstructions),
	)
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// Start serves the HTTP transport on the configured address. It returns
// once the listener is bound so callers can Stop cleanly.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("mcp: listen %s: %w", s.cfg.Addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/mcp", s.Handler())
	s.httpSrv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if serveErr := s.httpSrv.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("mcp server", "error", serveErr)
		}
	}()
	slog.Info("mcp server listening", "addr", ln.Addr().String())
	return nil
}

// Stop shuts the HTTP transport down, waiting for in-flight requests until
// ctx expires. A server that was never started stops cleanly.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// ServeStdio serves newline-delimited JSON-RPC on stdin/stdout in a single
// implicit session. It blocks until stdin closes.
func (s *Server) ServeStdio() error {
	return mcpserver.ServeStdio(s.mcpServer)
}
