// ABOUTME: hearthctl command definitions
// ABOUTME: Messages, threads, tags, queries, state, change observation, wiki pages and invocations

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/2389/hearth/internal/botqueue"
	"github.com/2389/hearth/internal/observer"
	"github.com/2389/hearth/internal/records"
	"github.com/2389/hearth/internal/workspace"
)

// TagResult is the data of add-tag and remove-tag.
type TagResult struct {
	MessageID string `json:"message_id"`
	Tag       string `json:"tag"`
	Result    string `json:"result"`
}

// PageResult is the data of create-page and get-page.
type PageResult struct {
	Page    records.WikiPage `json:"page"`
	Result  string           `json:"result,omitempty"`
	Content string           `json:"content"`
	HTML    string           `json:"html,omitempty"`
}

func commands(e *env) []*cli.Command {
	return []*cli.Command{
		{
			Name:      "send-message",
			Usage:     "Post a message, optionally as a reply in a thread",
			ArgsUsage: "<content>",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Required: true, Usage: "Author username"},
				&cli.StringFlag{Name: "thread", Usage: "Thread to reply in"},
				&cli.StringSliceFlag{Name: "tag", Usage: "Initial tag (repeatable)"},
				&cli.BoolFlag{Name: "no-mentions", Usage: "Do not enqueue bot invocations"},
			},
			Action: e.withWorkspace(sendMessage),
		},
		{
			Name:      "create-thread",
			Usage:     "Open a thread on a message",
			ArgsUsage: "<message-id>",
			Action:    e.withWorkspace(createThread),
		},
		{
			Name:      "add-tag",
			Usage:     "Tag a message",
			ArgsUsage: "<message-id> <tag>",
			Action: e.withWorkspace(func(c *cli.Context, h *workspace.Handle) (any, error) {
				return changeTag(c, h.AddTagToMessage)
			}),
		},
		{
			Name:      "remove-tag",
			Usage:     "Remove a tag from a message",
			ArgsUsage: "<message-id> <tag>",
			Action: e.withWorkspace(func(c *cli.Context, h *workspace.Handle) (any, error) {
				return changeTag(c, h.RemoveTagFromMessage)
			}),
		},
		{
			Name:  "query",
			Usage: "List messages matching filters",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "tag", Usage: "Messages carrying this tag"},
				&cli.StringFlag{Name: "user", Usage: "Messages by this username"},
				&cli.StringFlag{Name: "thread", Usage: "Members of this thread"},
				&cli.StringFlag{Name: "contains", Usage: "Case-insensitive content substring"},
				&cli.IntFlag{Name: "limit", Usage: "Keep only the last N matches"},
			},
			Action: e.withWorkspace(query),
		},
		{
			Name:   "get-state",
			Usage:  "Print every container of the workspace",
			Action: e.withWorkspace(getState),
		},
		{
			Name:  "observe",
			Usage: "Record workspace changes for a while and print the event log",
			Flags: []cli.Flag{
				&cli.DurationFlag{Name: "duration", Value: 5 * time.Second, Usage: "How long to observe"},
				&cli.StringSliceFlag{Name: "type", Usage: "Only events of this type (repeatable)"},
			},
			Action: e.withWorkspace(observe),
		},
		{
			Name:      "wait-for-event",
			Usage:     "Wait for the next event of a type",
			ArgsUsage: "<event-type>",
			Flags: []cli.Flag{
				&cli.DurationFlag{Name: "timeout", Value: 30 * time.Second, Usage: "Give up after this long"},
			},
			Action: e.withWorkspace(waitForEvent),
		},
		{
			Name:      "create-page",
			Usage:     "Create a wiki page (idempotent by path)",
			ArgsUsage: "<path>",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "wiki", Value: "default", Usage: "Wiki the page belongs to"},
				&cli.StringFlag{Name: "title", Usage: "Page title (defaults to the last path segment)"},
				&cli.StringFlag{Name: "template", Usage: "Template id for the initial body"},
				&cli.StringFlag{Name: "content", Usage: "Replace the page body"},
			},
			Action: e.withWorkspace(createPage),
		},
		{
			Name:      "get-page",
			Usage:     "Print a wiki page and its body",
			ArgsUsage: "<path>",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "render", Usage: "Include the body rendered to HTML"},
			},
			Action: e.withWorkspace(getPage),
		},
		{
			Name:  "invocations",
			Usage: "List the server's bot invocations (requires --server)",
			Flags: []cli.Flag{
				&cli.StringSliceFlag{Name: "status", Usage: "Only invocations in this status (repeatable)"},
			},
			Action: func(c *cli.Context) error {
				data, err := invocations(c)
				return e.emit(data, err)
			},
		},
	}
}

// requireArgs returns the first n positional arguments or an error naming usage.
func requireArgs(c *cli.Context, n int) ([]string, error) {
	if c.Args().Len() < n {
		return nil, fmt.Errorf("usage: %s %s", c.Command.Name, c.Command.ArgsUsage)
	}
	return c.Args().Slice()[:n], nil
}

func sendMessage(c *cli.Context, h *workspace.Handle) (any, error) {
	content := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(content) == "" {
		return nil, errors.New("message content is required")
	}
	return h.SendMessage(c.String("user"), content, workspace.SendOptions{
		ThreadID:   c.String("thread"),
		Tags:       c.StringSlice("tag"),
		NoMentions: c.Bool("no-mentions"),
	})
}

func createThread(c *cli.Context, h *workspace.Handle) (any, error) {
	args, err := requireArgs(c, 1)
	if err != nil {
		return nil, err
	}
	thread, err := h.CreateThreadForMessage(args[0])
	if err != nil {
		return nil, err
	}
	if thread == nil {
		return nil, fmt.Errorf("message %s not found", args[0])
	}
	return thread, nil
}

func changeTag(c *cli.Context, op func(messageID, tag string) (records.Result, error)) (any, error) {
	args, err := requireArgs(c, 2)
	if err != nil {
		return nil, err
	}
	res, err := op(args[0], args[1])
	if err != nil {
		return nil, err
	}
	if res == records.NotFound {
		return nil, fmt.Errorf("message %s not found", args[0])
	}
	return TagResult{MessageID: args[0], Tag: args[1], Result: res.String()}, nil
}

func query(c *cli.Context, h *workspace.Handle) (any, error) {
	msgs := h.QueryMessages(records.MessageQuery{
		HasTag:   c.String("tag"),
		Username: c.String("user"),
		ThreadID: c.String("thread"),
		Contains: c.String("contains"),
		Limit:    c.Int("limit"),
	})
	if msgs == nil {
		msgs = []records.Message{}
	}
	return msgs, nil
}

func getState(_ *cli.Context, h *workspace.Handle) (any, error) {
	return h.State(), nil
}

// parseEventTypes validates event type names.
func parseEventTypes(names []string) ([]observer.EventType, error) {
	var out []observer.EventType
	for _, n := range names {
		t := observer.EventType(n)
		if !slices.Contains(observer.EventTypes, t) {
			return nil, fmt.Errorf("unknown event type %q", n)
		}
		out = append(out, t)
	}
	return out, nil
}

func observe(c *cli.Context, h *workspace.Handle) (any, error) {
	types, err := parseEventTypes(c.StringSlice("type"))
	if err != nil {
		return nil, err
	}

	obs := observer.New(h.Doc(), nil)
	obs.Start()
	defer obs.Stop()

	select {
	case <-c.Context.Done():
	case <-time.After(c.Duration("duration")):
	}

	events := obs.Events()
	if len(types) > 0 {
		events = slices.DeleteFunc(events, func(ev observer.Event) bool {
			return !slices.Contains(types, ev.Type)
		})
	}
	if events == nil {
		events = []observer.Event{}
	}
	return events, nil
}

func waitForEvent(c *cli.Context, h *workspace.Handle) (any, error) {
	args, err := requireArgs(c, 1)
	if err != nil {
		return nil, err
	}
	types, err := parseEventTypes(args)
	if err != nil {
		return nil, err
	}

	obs := observer.New(h.Doc(), nil)
	obs.Start()
	defer obs.Stop()

	return obs.WaitForEvent(c.Context, types[0], c.Duration("timeout"))
}

func createPage(c *cli.Context, h *workspace.Handle) (any, error) {
	args, err := requireArgs(c, 1)
	if err != nil {
		return nil, err
	}

	var (
		page records.WikiPage
		res  records.Result
	)
	if tmpl := c.String("template"); tmpl != "" {
		page, res, err = h.CreatePageFromTemplate(args[0], c.String("wiki"), c.String("title"), tmpl)
	} else {
		page, res, err = h.CreatePage(args[0], c.String("wiki"), c.String("title"))
	}
	if err != nil {
		return nil, err
	}
	if res == records.NotFound {
		return nil, fmt.Errorf("template %s not found", c.String("template"))
	}
	if c.IsSet("content") {
		if _, err := h.SetPageContent(page.Path, c.String("content")); err != nil {
			return nil, err
		}
	}
	content, _ := h.PageContent(page.Path)
	return PageResult{Page: page, Result: res.String(), Content: content}, nil
}

func getPage(c *cli.Context, h *workspace.Handle) (any, error) {
	args, err := requireArgs(c, 1)
	if err != nil {
		return nil, err
	}
	page, ok := h.GetPage(args[0])
	if !ok {
		return nil, fmt.Errorf("page %s not found", args[0])
	}
	content, _ := h.PageContent(page.Path)
	out := PageResult{Page: page, Content: content}
	if c.Bool("render") {
		if out.HTML, _, err = h.RenderPage(page.Path); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func invocations(c *cli.Context) (any, error) {
	server := c.String("server")
	if server == "" {
		return nil, errors.New("invocations requires --server")
	}

	path := "/api/invocations"
	if statuses := c.StringSlice("status"); len(statuses) > 0 {
		path += "?status=" + url.QueryEscape(strings.Join(statuses, ","))
	}

	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL(server, path), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("listing invocations: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return nil, fmt.Errorf("listing invocations: status %d %s", resp.StatusCode, apiErr.Error)
	}

	var out []botqueue.Invocation
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding invocations: %w", err)
	}
	return out, nil
}
