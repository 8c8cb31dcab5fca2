// ABOUTME: Tests for the MCP HTTP server and the workspace tools it exposes.
// ABOUTME: Covers sessions, token auth, tool listing, tool calls and error mapping.

package mcp

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/2389/hearth/internal/botqueue"
	"github.com/2389/hearth/internal/crdt"
	"github.com/2389/hearth/internal/records"
	"github.com/2389/hearth/internal/workspace"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHandle(t *testing.T) *workspace.Handle {
	t.Helper()
	h := workspace.New(crdt.New(), workspace.Options{
		Queue:  botqueue.New(),
		Bots:   []workspace.Bot{{Name: "ai", DisplayName: "AI"}},
		Logger: testLogger(),
	})
	t.Cleanup(h.Close)
	return h
}

func newTestServer(t *testing.T, h *workspace.Handle, tokens map[string]string) *httptest.Server {
	t.Helper()
	srv, err := NewServer(Config{Handle: h, Logger: testLogger(), TokenStore: NewTokenStore(tokens)})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

// post sends a JSON-RPC request and returns the HTTP response with its decoded body.
func post(t *testing.T, url, sessionID, method string, id any, params any) (*http.Response, JSONRPCResponse) {
	t.Helper()
	req := map[string]any{"jsonrpc": "2.0", "method": method}
	if id != nil {
		req["id"] = id
	}
	if params != nil {
		req["params"] = params
	}
	body, _ := json.Marshal(req)

	httpReq, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		httpReq.Header.Set("Mcp-Session-Id", sessionID)
	}
	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()

	var out JSONRPCResponse
	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
	}
	return resp, out
}

func initialize(t *testing.T, url string) string {
	t.Helper()
	resp, out := post(t, url, "", "initialize", 1, map[string]any{"protocolVersion": "2025-11-25"})
	if out.Error != nil {
		t.Fatalf("initialize error: %+v", out.Error)
	}
	id := resp.Header.Get("Mcp-Session-Id")
	if id == "" {
		t.Fatal("initialize did not return Mcp-Session-Id")
	}
	return id
}

// callTool runs tools/call and returns the tool result.
func callTool(t *testing.T, url, session, name string, args any) MCPCallToolResult {
	t.Helper()
	_, out := post(t, url, session, "tools/call", 2, map[string]any{"name": name, "arguments": args})
	if out.Error != nil {
		t.Fatalf("tools/call %s: %+v", name, out.Error)
	}
	raw, _ := json.Marshal(out.Result)
	var result MCPCallToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("decoding tool result: %v", err)
	}
	if len(result.Content) != 1 {
		t.Fatalf("content = %+v, want one item", result.Content)
	}
	return result
}

func TestNewServer_RequiresHandle(t *testing.T) {
	if _, err := NewServer(Config{}); err == nil {
		t.Fatal("NewServer without a handle should fail")
	}
}

func TestInitializeAndListTools(t *testing.T) {
	ts := newTestServer(t, newTestHandle(t), nil)
	session := initialize(t, ts.URL+"/mcp")

	_, out := post(t, ts.URL+"/mcp", session, "tools/list", 2, nil)
	if out.Error != nil {
		t.Fatalf("tools/list error: %+v", out.Error)
	}
	raw, _ := json.Marshal(out.Result)
	var list MCPListToolsResult
	if err := json.Unmarshal(raw, &list); err != nil {
		t.Fatal(err)
	}

	names := make(map[string]bool)
	for _, tool := range list.Tools {
		names[tool.Name] = true
		if !json.Valid(tool.InputSchema) {
			t.Errorf("tool %s has invalid schema", tool.Name)
		}
	}
	for _, want := range []string{"send_message", "query_messages", "create_thread", "get_thread", "add_tag", "remove_tag", "get_state", "create_page", "get_page", "set_page_content", "list_invocations"} {
		if !names[want] {
			t.Errorf("tools/list missing %s", want)
		}
	}
}

func TestRequestsNeedSession(t *testing.T) {
	ts := newTestServer(t, newTestHandle(t), nil)

	resp, _ := post(t, ts.URL+"/mcp", "", "tools/list", 1, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("without session: status %d, want 400", resp.StatusCode)
	}
	resp, _ = post(t, ts.URL+"/mcp", "nope", "tools/list", 1, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown session: status %d, want 404", resp.StatusCode)
	}
}

func TestNotificationsAccepted(t *testing.T) {
	ts := newTestServer(t, newTestHandle(t), nil)
	session := initialize(t, ts.URL+"/mcp")

	resp, _ := post(t, ts.URL+"/mcp", session, "notifications/initialized", nil, nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("status %d, want 202", resp.StatusCode)
	}
}

func TestSendMessage_Anonymous(t *testing.T) {
	h := newTestHandle(t)
	ts := newTestServer(t, h, nil)
	session := initialize(t, ts.URL+"/mcp")

	result := callTool(t, ts.URL+"/mcp", session, "send_message", map[string]any{"content": "hi"})
	if !result.IsError || !strings.Contains(result.Content[0].Text, "username") {
		t.Fatalf("send without username = %+v, want error", result)
	}

	result = callTool(t, ts.URL+"/mcp", session, "send_message", map[string]any{"content": "@ai hello", "username": "alice"})
	if result.IsError {
		t.Fatalf("send_message error: %s", result.Content[0].Text)
	}
	var sent workspace.SendResult
	if err := json.Unmarshal([]byte(result.Content[0].Text), &sent); err != nil {
		t.Fatal(err)
	}
	if sent.Message.Username != "alice" || len(sent.BotInvocations) != 1 {
		t.Errorf("sent = %+v", sent)
	}
	if got := h.Messages(); len(got) != 1 {
		t.Errorf("workspace has %d messages, want 1", len(got))
	}
}

func TestTokenFixesAuthor(t *testing.T) {
	h := newTestHandle(t)
	ts := newTestServer(t, h, map[string]string{"s3cret": "claude"})

	_, out := post(t, ts.URL+"/mcp", "", "initialize", 1, nil)
	if out.Error == nil || out.Error.Message != "authentication required" {
		t.Fatalf("initialize without token = %+v", out.Error)
	}
	_, out = post(t, ts.URL+"/mcp/wrong", "", "initialize", 1, nil)
	if out.Error == nil || out.Error.Message != "invalid or expired token" {
		t.Fatalf("initialize with bad token = %+v", out.Error)
	}

	session := initialize(t, ts.URL+"/mcp/s3cret")
	result := callTool(t, ts.URL+"/mcp/s3cret", session, "send_message", map[string]any{"content": "hello", "username": "mallory"})
	if result.IsError {
		t.Fatalf("send_message error: %s", result.Content[0].Text)
	}
	msgs := h.Messages()
	if len(msgs) != 1 || msgs[0].Username != "claude" {
		t.Errorf("messages = %+v, want one by claude", msgs)
	}
}

func TestDeleteSession(t *testing.T) {
	ts := newTestServer(t, newTestHandle(t), map[string]string{"s3cret": "claude"})
	session := initialize(t, ts.URL+"/mcp?token=s3cret")

	del := func(url string) int {
		req, _ := http.NewRequest(http.MethodDelete, url, nil)
		req.Header.Set("Mcp-Session-Id", session)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if code := del(ts.URL + "/mcp"); code != http.StatusForbidden {
		t.Errorf("delete without token: %d, want 403", code)
	}
	if code := del(ts.URL + "/mcp?token=s3cret"); code != http.StatusNoContent {
		t.Errorf("delete: %d, want 204", code)
	}
	if code := del(ts.URL + "/mcp?token=s3cret"); code != http.StatusNotFound {
		t.Errorf("second delete: %d, want 404", code)
	}
}

func TestThreadAndTagTools(t *testing.T) {
	h := newTestHandle(t)
	ts := newTestServer(t, h, nil)
	url := ts.URL + "/mcp"
	session := initialize(t, url)

	sent, err := h.SendMessage("alice", "root", workspace.SendOptions{})
	if err != nil {
		t.Fatal(err)
	}

	result := callTool(t, url, session, "create_thread", map[string]any{"message_id": sent.Message.ID})
	if result.IsError {
		t.Fatalf("create_thread: %s", result.Content[0].Text)
	}
	var thread records.Thread
	if err := json.Unmarshal([]byte(result.Content[0].Text), &thread); err != nil {
		t.Fatal(err)
	}

	if _, err := h.SendMessage("bob", "reply", workspace.SendOptions{ThreadID: thread.ID}); err != nil {
		t.Fatal(err)
	}
	result = callTool(t, url, session, "get_thread", map[string]any{"thread_id": thread.ID})
	var twm workspace.ThreadWithMessages
	if err := json.Unmarshal([]byte(result.Content[0].Text), &twm); err != nil {
		t.Fatal(err)
	}
	if len(twm.Messages) != 1 || twm.Messages[0].Content != "reply" {
		t.Errorf("thread messages = %+v", twm.Messages)
	}

	result = callTool(t, url, session, "add_tag", map[string]any{"message_id": sent.Message.ID, "tag": "todo"})
	if result.Content[0].Text != `{"result":"applied"}` {
		t.Errorf("add_tag = %s", result.Content[0].Text)
	}
	result = callTool(t, url, session, "query_messages", map[string]any{"tag": "todo"})
	var msgs []records.Message
	if err := json.Unmarshal([]byte(result.Content[0].Text), &msgs); err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].ID != sent.Message.ID {
		t.Errorf("query by tag = %+v", msgs)
	}

	result = callTool(t, url, session, "remove_tag", map[string]any{"message_id": "missing", "tag": "todo"})
	if !result.IsError || !strings.Contains(result.Content[0].Text, "not found") {
		t.Errorf("remove_tag on missing message = %+v", result)
	}
	result = callTool(t, url, session, "get_thread", map[string]any{"thread_id": "missing"})
	if !result.IsError {
		t.Errorf("get_thread on missing thread should fail")
	}
}

func TestPageTools(t *testing.T) {
	h := newTestHandle(t)
	ts := newTestServer(t, h, nil)
	url := ts.URL + "/mcp"
	session := initialize(t, url)

	result := callTool(t, url, session, "create_page", map[string]any{"path": "Team/Road Map"})
	if result.IsError {
		t.Fatalf("create_page: %s", result.Content[0].Text)
	}
	result = callTool(t, url, session, "set_page_content", map[string]any{"path": "team/road-map", "content": "# Plan"})
	if result.Content[0].Text != `{"result":"applied"}` {
		t.Errorf("set_page_content = %s", result.Content[0].Text)
	}

	result = callTool(t, url, session, "get_page", map[string]any{"path": "team/road-map"})
	var page struct {
		Page    records.WikiPage `json:"page"`
		Content string           `json:"content"`
	}
	if err := json.Unmarshal([]byte(result.Content[0].Text), &page); err != nil {
		t.Fatal(err)
	}
	if page.Content != "# Plan" || page.Page.Title != "Road Map" {
		t.Errorf("page = %+v", page)
	}

	result = callTool(t, url, session, "create_page", map[string]any{"path": "x", "template_id": "missing"})
	if !result.IsError {
		t.Errorf("create_page with unknown template should fail")
	}
}

func TestListInvocations(t *testing.T) {
	h := newTestHandle(t)
	ts := newTestServer(t, h, nil)
	url := ts.URL + "/mcp"
	session := initialize(t, url)

	if _, err := h.SendMessage("alice", "@ai one", workspace.SendOptions{}); err != nil {
		t.Fatal(err)
	}

	result := callTool(t, url, session, "list_invocations", map[string]any{"status": []string{"pending"}})
	var invs []botqueue.Invocation
	if err := json.Unmarshal([]byte(result.Content[0].Text), &invs); err != nil {
		t.Fatal(err)
	}
	if len(invs) != 1 || invs[0].Bot != "ai" {
		t.Errorf("invocations = %+v", invs)
	}
}

func TestToolErrors(t *testing.T) {
	ts := newTestServer(t, newTestHandle(t), nil)
	url := ts.URL + "/mcp"
	session := initialize(t, url)

	_, out := post(t, url, session, "tools/call", 3, map[string]any{"name": "nope"})
	if out.Error == nil || out.Error.Code != JSONRPCInvalidParams || out.Error.Message != "tool not found" {
		t.Errorf("unknown tool = %+v", out.Error)
	}

	_, out = post(t, url, session, "tools/call", 4, map[string]any{"name": "query_messages", "arguments": map[string]any{"limit": "ten"}})
	if out.Error == nil || out.Error.Code != JSONRPCInvalidParams {
		t.Errorf("bad arguments = %+v", out.Error)
	}

	_, out = post(t, url, session, "resources/list", 5, nil)
	if out.Error == nil || out.Error.Code != JSONRPCMethodNotFound {
		t.Errorf("unknown method = %+v", out.Error)
	}
}

func TestTokenStore(t *testing.T) {
	s := NewTokenStore(map[string]string{"a": "alice"})
	s.Add("b", "bob")
	if u, ok := s.Username("b"); !ok || u != "bob" {
		t.Errorf("Username(b) = %q, %v", u, ok)
	}
	s.Revoke("a")
	if _, ok := s.Username("a"); ok {
		t.Error("revoked token still resolves")
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestSessionsExpireWhenIdle(t *testing.T) {
	var clock atomic.Int64
	clock.Store(time.Now().UnixNano())
	srv, err := NewServer(Config{
		Handle:      newTestHandle(t),
		Logger:      testLogger(),
		SessionIdle: time.Minute,
		Now:         func() time.Time { return time.Unix(0, clock.Load()) },
	})
	if err != nil {
		t.Fatal(err)
	}
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	session := initialize(t, ts.URL+"/mcp")
	clock.Add(int64(30 * time.Second))
	if resp, _ := post(t, ts.URL+"/mcp", session, "ping", 2, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("ping after 30s: status %d", resp.StatusCode)
	}

	clock.Add(int64(2 * time.Minute))
	if resp, _ := post(t, ts.URL+"/mcp", session, "ping", 3, nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("ping after idle: status %d, want 404", resp.StatusCode)
	}
	if n := srv.SessionCount(); n != 0 {
		t.Errorf("SessionCount() = %d, want 0", n)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, newTestHandle(t), nil)
	resp, err := http.Get(ts.URL + "/mcp")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /mcp: status %d, want 405", resp.StatusCode)
	}
}
