// ABOUTME: Workspace tools exposed over MCP: messages, threads, tags, wiki pages and invocations
// ABOUTME: Each tool decodes its JSON arguments and returns a JSON-encodable result

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/2389/hearth/internal/botqueue"
	"github.com/2389/hearth/internal/records"
	"github.com/2389/hearth/internal/workspace"
)

// ErrToolNotFound is returned when a call names a tool the server does not have.
var ErrToolNotFound = errors.New("tool not found")

// errInvalidArguments marks argument decoding failures so they map to JSON-RPC invalid params.
var errInvalidArguments = errors.New("invalid arguments")

// caller is who a tool runs on behalf of. Username is empty for anonymous sessions.
type caller struct {
	Username string
}

// Tool is one callable workspace operation.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	call        func(ctx context.Context, who caller, args json.RawMessage) (any, error)
}

// decode unmarshals args into v. Empty args decode as an empty object.
func decode(args json.RawMessage, v any) error {
	if len(args) == 0 || string(args) == "null" {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("%w: %v", errInvalidArguments, err)
	}
	return nil
}

// resultOf reports a records.Result, failing on NotFound.
func resultOf(res records.Result, what string) (any, error) {
	if res == records.NotFound {
		return nil, fmt.Errorf("%s not found", what)
	}
	return map[string]string{"result": res.String()}, nil
}

func workspaceTools(h *workspace.Handle) []Tool {
	return []Tool{
		{
			Name:        "send_message",
			Description: "Post a message to the channel or as a reply in a thread. @mentions of configured bots enqueue bot invocations.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"content":{"type":"string"},"thread_id":{"type":"string"},"tags":{"type":"array","items":{"type":"string"}},"username":{"type":"string","description":"Author; ignored when the session token fixes one"}},"required":["content"]}`),
			call: func(_ context.Context, who caller, args json.RawMessage) (any, error) {
				var in struct {
					Content  string   `json:"content"`
					ThreadID string   `json:"thread_id"`
					Tags     []string `json:"tags"`
					Username string   `json:"username"`
				}
				if err := decode(args, &in); err != nil {
					return nil, err
				}
				username := who.Username
				if username == "" {
					username = strings.TrimSpace(in.Username)
				}
				if username == "" {
					return nil, errors.New("username is required")
				}
				return h.SendMessage(username, in.Content, workspace.SendOptions{ThreadID: in.ThreadID, Tags: in.Tags})
			},
		},
		{
			Name:        "query_messages",
			Description: "List messages filtered by tag, author, thread membership or content substring.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"tag":{"type":"string"},"username":{"type":"string"},"thread_id":{"type":"string"},"contains":{"type":"string"},"limit":{"type":"integer","minimum":0}}}`),
			call: func(_ context.Context, _ caller, args json.RawMessage) (any, error) {
				var in struct {
					Tag      string `json:"tag"`
					Username string `json:"username"`
					ThreadID string `json:"thread_id"`
					Contains string `json:"contains"`
					Limit    int    `json:"limit"`
				}
				if err := decode(args, &in); err != nil {
					return nil, err
				}
				return h.QueryMessages(records.MessageQuery{
					HasTag:   in.Tag,
					Username: in.Username,
					ThreadID: in.ThreadID,
					Contains: in.Contains,
					Limit:    in.Limit,
				}), nil
			},
		},
		{
			Name:        "create_thread",
			Description: "Open a thread on a message.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"message_id":{"type":"string"}},"required":["message_id"]}`),
			call: func(_ context.Context, _ caller, args json.RawMessage) (any, error) {
				var in struct {
					MessageID string `json:"message_id"`
				}
				if err := decode(args, &in); err != nil {
					return nil, err
				}
				thread, err := h.CreateThreadForMessage(in.MessageID)
				if err != nil {
					return nil, err
				}
				if thread == nil {
					return nil, fmt.Errorf("message %s not found", in.MessageID)
				}
				return thread, nil
			},
		},
		{
			Name:        "get_thread",
			Description: "Read a thread and its messages.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"thread_id":{"type":"string"}},"required":["thread_id"]}`),
			call: func(_ context.Context, _ caller, args json.RawMessage) (any, error) {
				var in struct {
					ThreadID string `json:"thread_id"`
				}
				if err := decode(args, &in); err != nil {
					return nil, err
				}
				thread := h.GetThreadWithMessages(in.ThreadID)
				if thread == nil {
					return nil, fmt.Errorf("thread %s not found", in.ThreadID)
				}
				return thread, nil
			},
		},
		tagTool("add_tag", "Add a tag to a message.", h.AddTagToMessage),
		tagTool("remove_tag", "Remove a tag from a message.", h.RemoveTagFromMessage),
		{
			Name:        "get_state",
			Description: "Read every workspace container.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
			call: func(context.Context, caller, json.RawMessage) (any, error) {
				return h.State(), nil
			},
		},
		{
			Name:        "create_page",
			Description: "Create a wiki page, optionally from a template. Creating an existing path leaves it unchanged.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"},"wiki_id":{"type":"string"},"title":{"type":"string"},"template_id":{"type":"string"}},"required":["path"]}`),
			call: func(_ context.Context, _ caller, args json.RawMessage) (any, error) {
				var in struct {
					Path       string `json:"path"`
					WikiID     string `json:"wiki_id"`
					Title      string `json:"title"`
					TemplateID string `json:"template_id"`
				}
				if err := decode(args, &in); err != nil {
					return nil, err
				}
				if in.WikiID == "" {
					in.WikiID = "default"
				}
				var (
					page records.WikiPage
					res  records.Result
					err  error
				)
				if in.TemplateID != "" {
					page, res, err = h.CreatePageFromTemplate(in.Path, in.WikiID, in.Title, in.TemplateID)
				} else {
					page, res, err = h.CreatePage(in.Path, in.WikiID, in.Title)
				}
				if err != nil {
					return nil, err
				}
				if res == records.NotFound {
					return nil, fmt.Errorf("template %s not found", in.TemplateID)
				}
				return map[string]any{"page": page, "result": res.String()}, nil
			},
		},
		{
			Name:        "get_page",
			Description: "Read a wiki page and its markdown body.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`),
			call: func(_ context.Context, _ caller, args json.RawMessage) (any, error) {
				var in struct {
					Path string `json:"path"`
				}
				if err := decode(args, &in); err != nil {
					return nil, err
				}
				page, ok := h.GetPage(in.Path)
				if !ok {
					return nil, fmt.Errorf("page %s not found", in.Path)
				}
				content, _ := h.PageContent(page.Path)
				return map[string]any{"page": page, "content": content}, nil
			},
		},
		{
			Name:        "set_page_content",
			Description: "Replace a wiki page's markdown body.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"},"content":{"type":"string"}},"required":["path","content"]}`),
			call: func(_ context.Context, _ caller, args json.RawMessage) (any, error) {
				var in struct {
					Path    string `json:"path"`
					Content string `json:"content"`
				}
				if err := decode(args, &in); err != nil {
					return nil, err
				}
				res, err := h.SetPageContent(in.Path, in.Content)
				if err != nil {
					return nil, err
				}
				return resultOf(res, "page "+in.Path)
			},
		},
		{
			Name:        "list_invocations",
			Description: "List bot invocations, optionally filtered by status.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"status":{"type":"array","items":{"type":"string","enum":["pending","processing","completed","failed"]}}}}`),
			call: func(_ context.Context, _ caller, args json.RawMessage) (any, error) {
				var in struct {
					Status []botqueue.Status `json:"status"`
				}
				if err := decode(args, &in); err != nil {
					return nil, err
				}
				q := h.Queue()
				if q == nil {
					return nil, errors.New("this workspace has no invocation queue")
				}
				return q.List(in.Status...), nil
			},
		},
	}
}

func tagTool(name, description string, op func(messageID, tag string) (records.Result, error)) Tool {
	return Tool{
		Name:        name,
		Description: description,
		InputSchema: json.RawMessage(`{"type":"object","properties":{"message_id":{"type":"string"},"tag":{"type":"string"}},"required":["message_id","tag"]}`),
		call: func(_ context.Context, _ caller, args json.RawMessage) (any, error) {
			var in struct {
				MessageID string `json:"message_id"`
				Tag       string `json:"tag"`
			}
			if err := decode(args, &in); err != nil {
				return nil, err
			}
			res, err := op(in.MessageID, in.Tag)
			if err != nil {
				return nil, err
			}
			return resultOf(res, "message "+in.MessageID)
		},
	}
}
