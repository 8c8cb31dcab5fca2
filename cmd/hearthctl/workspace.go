// ABOUTME: Opens the workspace replica hearthctl operates on
// ABOUTME: Joins the document through the websocket relay or directly from the SQLite log

package main

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/2389/hearth/internal/botqueue"
	"github.com/2389/hearth/internal/crdt"
	"github.com/2389/hearth/internal/relay"
	"github.com/2389/hearth/internal/store"
	"github.com/2389/hearth/internal/workspace"
)

// parseBots reads --bot values of the form name or name:DisplayName.
func parseBots(values []string) []workspace.Bot {
	var out []workspace.Bot
	for _, v := range values {
		name, display, _ := strings.Cut(strings.TrimSpace(v), ":")
		if name == "" {
			continue
		}
		out = append(out, workspace.Bot{Name: name, DisplayName: display})
	}
	return out
}

// syncURL turns a relay base URL into the sync endpoint for document.
func syncURL(base, document string) string {
	return strings.TrimSuffix(base, "/") + "/sync/" + url.PathEscape(document)
}

// apiURL turns a relay base URL into an HTTP URL for path.
func apiURL(base, path string) string {
	base = strings.TrimSuffix(base, "/")
	switch {
	case strings.HasPrefix(base, "wss://"):
		base = "https://" + strings.TrimPrefix(base, "wss://")
	case strings.HasPrefix(base, "ws://"):
		base = "http://" + strings.TrimPrefix(base, "ws://")
	}
	return base + path
}

// openWorkspace joins the configured document and returns a handle on the local
// replica. closeFn flushes pending edits and releases the connection or database.
func (e *env) openWorkspace(c *cli.Context) (h *workspace.Handle, closeFn func(), err error) {
	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}
	document := c.String("doc")
	doc := crdt.New(crdt.WithLogger(e.logger))

	var release func()
	if server := c.String("server"); server != "" {
		dialer := &relay.Dialer{Settings: relay.DefaultSettings(), Logger: e.logger}
		sess, err := dialer.Dial(ctx, syncURL(server, document), doc)
		if err != nil {
			return nil, nil, err
		}
		release = sess.Disconnect
	} else {
		st, err := store.NewSQLiteStore(c.String("db"))
		if err != nil {
			return nil, nil, err
		}
		hub := relay.NewHub(st, relay.WithLogger(e.logger))
		sess, err := hub.Connect(ctx, document, doc)
		if err != nil {
			hub.Close()
			st.Close()
			return nil, nil, fmt.Errorf("opening %q: %w", document, err)
		}
		release = func() {
			sess.Disconnect()
			hub.Close()
			st.Close()
		}
	}

	h = workspace.New(doc, workspace.Options{
		Queue:  botqueue.New(botqueue.WithLogger(e.logger)),
		Bots:   parseBots(c.StringSlice("bot")),
		Logger: e.logger,
	})
	return h, func() {
		h.Close()
		release()
	}, nil
}

// withWorkspace adapts a command body that needs a workspace into a cli action
// that writes the envelope.
func (e *env) withWorkspace(fn func(c *cli.Context, h *workspace.Handle) (any, error)) cli.ActionFunc {
	return func(c *cli.Context) error {
		h, closeWorkspace, err := e.openWorkspace(c)
		if err != nil {
			return e.emit(nil, err)
		}
		data, err := fn(c, h)
		closeWorkspace()
		return e.emit(data, err)
	}
}
