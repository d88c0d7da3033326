package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Strob0t/LoopForge/internal/adapter/mcp"
	"github.com/Strob0t/LoopForge/internal/adapter/otel"
	"github.com/Strob0t/LoopForge/internal/config"
	"github.com/Strob0t/LoopForge/internal/middleware"
)

// requestTimeout caps a single /mcp request. It sits above the longest
// legal run_cycle (planner timeout twice plus the implementer timeout), so
// only a genuinely hung handler is cut off.
const requestTimeout = 15 * time.Minute

// RouterDeps carries the handlers mounted on the router. Nil fields leave
// the corresponding route unregistered.
type RouterDeps struct {
	MCP     http.Handler            // session-aware JSON-RPC endpoint
	WS      http.HandlerFunc        // websocket event stream
	Limiter *middleware.RateLimiter // optional per-client limit on /mcp
}

// NewRouter assembles the chi router: middleware stack, /health, /ws and
// the /mcp endpoint with an optional bearer check and rate limit.
func NewRouter(cfg config.Server, deps RouterDeps) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(CORS(cfg.CORSOrigin))
	r.Use(SecurityHeaders)
	r.Use(Logger)
	r.Use(chimw.Recoverer)
	r.Use(otel.HTTPMiddleware("loopforge"))

	r.Get("/health", handleHealth)

	// No timeout middleware here: /ws connections stay open for the
	// lifetime of the client.
	if deps.WS != nil {
		r.Get("/ws", deps.WS)
	}

	if deps.MCP != nil {
		handler := mcp.AuthMiddleware(cfg.AuthToken, deps.MCP)
		if deps.Limiter != nil {
			handler = deps.Limiter.Handler(handler)
		}
		r.With(chimw.Timeout(requestTimeout)).Handle("/mcp", handler)
	}

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
