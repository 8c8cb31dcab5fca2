// Package gateway orchestrates the hearth server components.
//
// # Overview
//
// The gateway hosts one shared document. It owns the update-log store, the relay
// hub that peers sync through, a server-side replica of the document, the bot
// invocation queue, and the workers that answer it.
//
// # Gateway Struct
//
//	type Gateway struct {
//	    config   *config.Config
//	    store    store.Store
//	    hub      *relay.Hub
//	    session  *relay.Session
//	    handle   *workspace.Handle
//	    queue    *botqueue.Queue
//	    worker   *agent.Worker
//	    watcher  *agent.MentionWatcher
//	    mcp      *mcp.Server
//	    metrics  *metrics.Metrics
//	    // ...
//	}
//
// # Bot Flow
//
// A mention posted through the server replica (POST /api/messages) is enqueued by
// SendMessage. A mention posted by a synced peer reaches the server replica as a
// remote frame and is enqueued by the MentionWatcher. Either way the worker claims
// the invocation, opens the reply thread and posts the reply, which syncs back to
// every peer. Bots marked remote in config are left to an external process such as
// echo-bot.
//
// # HTTP API
//
//   - GET /sync/{doc} - websocket sync channel (see package relay)
//   - GET /health - Liveness check
//   - GET /health/ready - Document, peer count and pending invocations
//   - GET /api/state - Full workspace snapshot
//   - GET /api/documents - Stored documents with log statistics
//   - GET /api/invocations?status=pending,failed - Invocation ledger
//   - POST /api/messages - Post a message as a user
//   - GET /api/threads/{id} - Thread with its messages
//   - GET /wiki - Wiki page index
//   - GET /wiki/{path...} - Wiki page rendered to HTML
//   - GET /static/ - Embedded stylesheet
//   - POST/DELETE /mcp - MCP tool endpoint for external agents, when enabled
//   - GET /metrics - Prometheus metrics, when enabled
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	go gw.Run(ctx)
//	cancel() // Run shuts the gateway down and returns
//
// # Key Files
//
//   - gateway.go: Gateway struct, initialization, Run/Shutdown
//   - api.go: HTTP handlers
package gateway
