package mcp

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// sessionHeader carries the opaque per-session token issued on initialize.
const sessionHeader = "Mcp-Session-Id"

const defaultSessionIdle = 30 * time.Minute

// maxBodyBytes bounds a single JSON-RPC request body.
const maxBodyBytes = 8 << 20

// JSON-RPC error codes raised by the transport itself. Handler-level
// errors come from mcp-go.
const (
	rpcParseError      = -32700
	rpcInvalidRequest  = -32600
	rpcSessionNotFound = -32001
)

type session struct {
	id       string
	created  time.Time
	lastSeen time.Time
}

// sessionTable tracks live HTTP sessions. Expiry is lazy: a session is
// dropped when touched after its idle window has passed, and stale entries
// are swept whenever a new session is created.
type sessionTable struct {
	mu      sync.Mutex
	idle    time.Duration
	entries map[string]*session
	now     func() time.Time
}

func newSessionTable(idle time.Duration) *sessionTable {
	if idle <= 0 {
		idle = defaultSessionIdle
	}
	return &sessionTable{
		idle:    idle,
		entries: make(map[string]*session),
		now:     time.Now,
	}
}

func (t *sessionTable) create() *session {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	for id, sess := range t.entries {
		if now.Sub(sess.lastSeen) > t.idle {
			delete(t.entries, id)
		}
	}
	sess := &session{id: uuid.NewString(), created: now, lastSeen: now}
	t.entries[sess.id] = sess
	return sess
}

// touch refreshes a session's idle window. It reports false for unknown or
// expired sessions.
func (t *sessionTable) touch(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	sess, ok := t.entries[id]
	if !ok {
		return false
	}
	now := t.now()
	if now.Sub(sess.lastSeen) > t.idle {
		delete(t.entries, id)
		return false
	}
	sess.lastSeen = now
	return true
}

func (t *sessionTable) drop(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, id)
}

func (t *sessionTable) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// SessionCount returns the number of live HTTP sessions.
func (s *Server) SessionCount() int {
	return s.sessions.count()
}

// Handler returns the HTTP endpoint that accepts JSON-RPC envelopes with
// per-session enforcement. Mount it at /mcp.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.serveHTTP)
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handlePost(w, r)
	case http.MethodDelete:
		s.handleDelete(w, r)
	case http.MethodGet:
		// No server-push streaming on this endpoint; events go out over
		// the WebSocket hub.
		http.Error(w, "use POST /mcp for JSON-RPC", http.StatusMethodNotAllowed)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeRPCError(w, http.StatusBadRequest, rpcInvalidRequest, "failed to read request body")
		return
	}
	raw := bytes.TrimSpace(body)
	if len(raw) == 0 {
		writeRPCError(w, http.StatusBadRequest, rpcInvalidRequest, "empty request body")
		return
	}

	messages, batch, err := splitBatch(raw)
	if err != nil {
		writeRPCError(w, http.StatusBadRequest, rpcParseError, "invalid JSON")
		return
	}
	if len(messages) == 0 {
		writeRPCError(w, http.StatusBadRequest, rpcInvalidRequest, "empty batch")
		return
	}

	sid, ok := s.resolveSession(w, r, messages)
	if !ok {
		return
	}
	w.Header().Set(sessionHeader, sid)

	responses := make([]any, 0, len(messages))
	for _, msg := range messages {
		if resp := s.mcpServer.HandleMessage(r.Context(), msg); resp != nil {
			responses = append(responses, resp)
		}
	}

	// Notifications expect no reply payload.
	if len(responses) == 0 {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	var payload any = responses
	if !batch {
		payload = responses[0]
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("encode mcp response", "error", err)
	}
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if sid := r.Header.Get(sessionHeader); sid != "" {
		s.sessions.drop(sid)
		w.Header().Set(sessionHeader, sid)
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"ok":true}`))
}

// resolveSession validates or mints the session for a request. initialize
// always starts a fresh session; every other call must present a live
// session token.
func (s *Server) resolveSession(w http.ResponseWriter, r *http.Request, messages []json.RawMessage) (string, bool) {
	if containsInitialize(messages) {
		sess := s.sessions.create()
		slog.Debug("mcp session created", "session_id", sess.id)
		return sess.id, true
	}
	sid := r.Header.Get(sessionHeader)
	if sid == "" {
		writeRPCError(w, http.StatusBadRequest, rpcInvalidRequest, "missing Mcp-Session-Id header")
		return "", false
	}
	if !s.sessions.touch(sid) {
		writeRPCError(w, http.StatusNotFound, rpcSessionNotFound, "session not found or expired")
		return "", false
	}
	return sid, true
}

// splitBatch parses a JSON-RPC payload into its individual messages.
func splitBatch(raw []byte) ([]json.RawMessage, bool, error) {
	if raw[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, true, err
		}
		return items, true, nil
	}
	var single json.RawMessage
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, false, err
	}
	return []json.RawMessage{single}, false, nil
}

func containsInitialize(messages []json.RawMessage) bool {
	for _, msg := range messages {
		var probe struct {
			Method string `json:"method"`
		}
		if err := json.Unmarshal(msg, &probe); err == nil && probe.Method == "initialize" {
			return true
		}
	}
	return false
}

func writeRPCError(w http.ResponseWriter, status, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := map[string]any{
		"jsonrpc": "2.0",
		"id":      nil,
		"error":   map[string]any{"code": code, "message": message},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("encode rpc error", "error", err)
	}
}
