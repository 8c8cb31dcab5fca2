// ABOUTME: MCP-compatible HTTP server exposing workspace tools to external agents
// ABOUTME: Streamable HTTP transport (2025-11-25) without server-initiated streams

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/hearth/internal/workspace"
)

// protocol versions a client may send in Mcp-Protocol-Version
var supportedProtocolVersions = map[string]bool{
	"2025-03-26": true,
	"2025-11-25": true,
}

const latestProtocolVersion = "2025-11-25"

// MaxRequestBodySize bounds one JSON-RPC request (1MB).
const MaxRequestBodySize = 1 << 20

// DefaultSessionIdle is how long an unused session survives.
const DefaultSessionIdle = 30 * time.Minute

// Config holds configuration for the MCP server.
type Config struct {
	Handle      *workspace.Handle
	Logger      *slog.Logger
	TokenStore  *TokenStore   // nil or empty allows anonymous sessions
	Version     string        // reported in serverInfo
	SessionIdle time.Duration // zero means DefaultSessionIdle
	Now         func() time.Time
}

// Server serves the workspace tools over MCP.
type Server struct {
	tools      []Tool
	byName     map[string]*Tool
	logger     *slog.Logger
	tokenStore *TokenStore
	version    string
	sessions   *sessionStore
}

// NewServer creates a new MCP server over cfg.Handle.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Handle == nil {
		return nil, errors.New("workspace handle is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.SessionIdle == 0 {
		cfg.SessionIdle = DefaultSessionIdle
	}

	s := &Server{
		tools:      workspaceTools(cfg.Handle),
		logger:     logger.With("component", "mcp"),
		tokenStore: cfg.TokenStore,
		version:    cfg.Version,
		sessions:   newSessionStore(cfg.SessionIdle, cfg.Now),
	}
	s.byName = make(map[string]*Tool, len(s.tools))
	for i := range s.tools {
		s.byName[s.tools[i].Name] = &s.tools[i]
	}
	return s, nil
}

// Tools returns the tools the server exposes.
func (s *Server) Tools() []Tool {
	return s.tools
}

// SessionCount returns the number of live sessions.
func (s *Server) SessionCount() int {
	return s.sessions.count()
}

// RegisterRoutes mounts the endpoint at /mcp and /mcp/<token>.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/mcp", s.ServeHTTP)
	mux.HandleFunc("/mcp/", s.ServeHTTP)
}

// ServeHTTP dispatches on method: POST carries JSON-RPC, DELETE ends a session.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handlePost(w, r)
	case http.MethodDelete:
		s.handleDelete(w, r)
	default:
		w.Header().Set("Allow", "POST, DELETE")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get("Mcp-Session-Id")
	if id == "" {
		http.Error(w, "Bad Request: missing Mcp-Session-Id", http.StatusBadRequest)
		return
	}
	sess, ok := s.sessions.touch(id)
	if !ok {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	if sess.ownerToken != "" && requestToken(r) != sess.ownerToken {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	s.sessions.delete(id)
	s.logger.Info("MCP session ended", "session_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// readRequest decodes one JSON-RPC request, writing the error response itself
// when the body is unusable.
func (s *Server) readRequest(w http.ResponseWriter, r *http.Request) (JSONRPCRequest, bool) {
	var req JSONRPCRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	switch {
	case err != nil:
		writeError(w, s.logger, nil, JSONRPCParseError, "failed to read request body")
		return req, false
	case len(body) > MaxRequestBodySize:
		writeError(w, s.logger, nil, JSONRPCInvalidRequest, "request body too large")
		return req, false
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, s.logger, nil, JSONRPCParseError, "invalid JSON")
		return req, false
	}
	if req.JSONRPC != "2.0" {
		writeError(w, s.logger, req.ID, JSONRPCInvalidRequest, "invalid JSON-RPC version")
		return req, false
	}
	return req, true
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	req, ok := s.readRequest(w, r)
	if !ok {
		return
	}

	if req.Method == "initialize" {
		s.handleInitialize(w, r, req)
		return
	}

	if v := r.Header.Get("Mcp-Protocol-Version"); v != "" && !supportedProtocolVersions[v] {
		http.Error(w, "Bad Request: unsupported MCP-Protocol-Version", http.StatusBadRequest)
		return
	}
	sessionID := r.Header.Get("Mcp-Session-Id")
	if sessionID == "" {
		http.Error(w, "Bad Request: missing Mcp-Session-Id", http.StatusBadRequest)
		return
	}
	sess, ok := s.sessions.touch(sessionID)
	if !ok {
		// the client must initialize again
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	if req.isNotification() {
		s.logger.Debug("MCP notification", "method", req.Method, "session_id", sessionID)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	switch req.Method {
	case "tools/list":
		s.handleToolsList(w, req)
	case "tools/call":
		s.handleToolsCall(w, r, req, sess)
	case "ping":
		writeResult(w, s.logger, req.ID, map[string]any{})
	default:
		writeError(w, s.logger, req.ID, JSONRPCMethodNotFound, "method not found")
	}
}

// handleInitialize resolves the caller's token to a username and opens a session.
func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request, req JSONRPCRequest) {
	token := requestToken(r)
	var username string
	switch {
	case token != "":
		var known bool
		if s.tokenStore != nil {
			username, known = s.tokenStore.Username(token)
		}
		if !known {
			writeError(w, s.logger, req.ID, JSONRPCInvalidRequest, "invalid or expired token")
			return
		}
	case s.tokenStore != nil && s.tokenStore.Len() > 0:
		writeError(w, s.logger, req.ID, JSONRPCInvalidRequest, "authentication required")
		return
	}

	sess := s.sessions.create(username, token)
	s.logger.Info("MCP session created", "session_id", sess.id, "username", username)

	w.Header().Set("Mcp-Session-Id", sess.id)
	writeResult(w, s.logger, req.ID, map[string]any{
		"protocolVersion": latestProtocolVersion,
		"capabilities":    map[string]any{"tools": map[string]any{}},
		"serverInfo":      map[string]any{"name": "hearth", "version": s.version},
	})
}

func (s *Server) handleToolsList(w http.ResponseWriter, req JSONRPCRequest) {
	result := MCPListToolsResult{Tools: make([]MCPToolInfo, len(s.tools))}
	for i, tool := range s.tools {
		result.Tools[i] = MCPToolInfo{Name: tool.Name, Description: tool.Description, InputSchema: tool.InputSchema}
	}
	writeResult(w, s.logger, req.ID, result)
}

// handleToolsCall runs a tool. Failures inside the tool are reported as an error
// result; unknown tools and malformed arguments are JSON-RPC errors.
func (s *Server) handleToolsCall(w http.ResponseWriter, r *http.Request, req JSONRPCRequest, sess *mcpSession) {
	var params MCPCallToolParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			writeError(w, s.logger, req.ID, JSONRPCInvalidParams, "invalid params")
			return
		}
	}
	if params.Name == "" {
		writeError(w, s.logger, req.ID, JSONRPCInvalidParams, "tool name is required")
		return
	}
	tool, ok := s.byName[params.Name]
	if !ok {
		s.callFailed(w, req.ID, params.Name, ErrToolNotFound)
		return
	}

	callID := uuid.New().String()
	logger := s.logger.With("tool_name", params.Name, "call_id", callID)
	logger.Debug("tool call")

	out, err := tool.call(r.Context(), caller{Username: sess.username}, params.Arguments)
	switch {
	case errors.Is(err, errInvalidArguments), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.callFailed(w, req.ID, params.Name, err)
		return
	case err != nil:
		logger.Debug("tool returned error", "error", err)
		writeResult(w, s.logger, req.ID, textResult(err.Error(), true))
		return
	}

	data, err := json.Marshal(out)
	if err != nil {
		s.callFailed(w, req.ID, params.Name, err)
		return
	}
	writeResult(w, s.logger, req.ID, textResult(string(data), false))
}

// requestToken returns the token from the /mcp/<token> path, the token query
// parameter or a bearer Authorization header, in that order.
func requestToken(r *http.Request) string {
	if rest, found := strings.CutPrefix(r.URL.Path, "/mcp/"); found && rest != "" {
		return strings.TrimRight(rest, "/")
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	if token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); found {
		return token
	}
	return ""
}

// callFailed maps a tool call failure to a JSON-RPC error.
func (s *Server) callFailed(w http.ResponseWriter, id json.RawMessage, toolName string, err error) {
	s.logger.Warn("tool call failed", "tool_name", toolName, "error", err)

	code, message := JSONRPCInternalError, "tool execution failed"
	switch {
	case errors.Is(err, ErrToolNotFound):
		code, message = JSONRPCInvalidParams, "tool not found"
	case errors.Is(err, errInvalidArguments):
		code, message = JSONRPCInvalidParams, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		message = "tool execution timed out"
	case errors.Is(err, context.Canceled):
		message = "request cancelled"
	}
	writeError(w, s.logger, id, code, message)
}
