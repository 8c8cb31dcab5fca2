// ABOUTME: JSON-RPC 2.0 envelopes and MCP result shapes used by the tool server
// ABOUTME: Encoding helpers write either a result or an error object with HTTP 200

package mcp

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// JSON-RPC 2.0 error codes.
const (
	JSONRPCParseError     = -32700
	JSONRPCInvalidRequest = -32600
	JSONRPCMethodNotFound = -32601
	JSONRPCInvalidParams  = -32602
	JSONRPCInternalError  = -32603
)

// JSONRPCRequest is an incoming call or notification. A notification has no id.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// isNotification reports whether the request expects no response.
func (r JSONRPCRequest) isNotification() bool {
	return len(r.ID) == 0 || string(r.ID) == "null"
}

// JSONRPCResponse carries exactly one of Result or Error.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// JSONRPCError is the error member of a response.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// MCPToolInfo describes one tool in tools/list.
type MCPToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// MCPListToolsResult is the result of tools/list.
type MCPListToolsResult struct {
	Tools []MCPToolInfo `json:"tools"`
}

// MCPCallToolParams are the params of tools/call.
type MCPCallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// MCPCallToolResult is the result of tools/call. Tools answer with one JSON text item.
type MCPCallToolResult struct {
	Content []MCPContent `json:"content"`
	IsError bool         `json:"isError,omitempty"`
}

// MCPContent is one content item of a tool result.
type MCPContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

func textResult(text string, isError bool) MCPCallToolResult {
	return MCPCallToolResult{Content: []MCPContent{{Type: "text", Text: text}}, IsError: isError}
}

func writeRPC(w http.ResponseWriter, logger *slog.Logger, resp JSONRPCResponse) {
	resp.JSONRPC = "2.0"
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Warn("failed to encode JSON-RPC response", "error", err)
	}
}

func writeResult(w http.ResponseWriter, logger *slog.Logger, id json.RawMessage, result any) {
	writeRPC(w, logger, JSONRPCResponse{ID: id, Result: result})
}

func writeError(w http.ResponseWriter, logger *slog.Logger, id json.RawMessage, code int, message string) {
	writeRPC(w, logger, JSONRPCResponse{ID: id, Error: &JSONRPCError{Code: code, Message: message}})
}
