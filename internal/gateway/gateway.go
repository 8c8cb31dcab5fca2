// ABOUTME: Gateway orchestrator that hosts the shared document and its bot workers
// ABOUTME: Owns the store, relay hub, server-side replica, queue, worker and HTTP server lifecycle

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/2389/hearth/internal/agent"
	"github.com/2389/hearth/internal/botqueue"
	"github.com/2389/hearth/internal/config"
	"github.com/2389/hearth/internal/crdt"
	"github.com/2389/hearth/internal/mcp"
	"github.com/2389/hearth/internal/metrics"
	"github.com/2389/hearth/internal/relay"
	"github.com/2389/hearth/internal/store"
	"github.com/2389/hearth/internal/workspace"
)

// Gateway orchestrates the hearth server components.
type Gateway struct {
	config     *config.Config
	store      store.Store
	hub        *relay.Hub
	session    *relay.Session
	handle     *workspace.Handle
	queue      *botqueue.Queue
	registry   *agent.Registry
	worker     *agent.Worker
	watcher    *agent.MentionWatcher
	mcp        *mcp.Server      // nil when the MCP endpoint is disabled
	metrics    *metrics.Metrics // nil when metrics are disabled
	httpServer *http.Server
	logger     *slog.Logger

	stopObserve func()
	closeOnce   sync.Once
	closeErr    error
}

// initStore creates the update log store, honoring HEARTH_DB_PATH.
func initStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("HEARTH_DB_PATH"); envPath != "" {
		dbPath = envPath
	}
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// localBots returns the bots answered by this server's workers.
func localBots(cfg *config.Config) []workspace.Bot {
	var out []workspace.Bot
	for _, b := range cfg.Bots {
		if b.Remote {
			continue
		}
		out = append(out, workspace.Bot{Name: b.Name, DisplayName: b.DisplayName})
	}
	return out
}

// New creates a gateway from cfg. The hosted document is loaded from the store and
// joined by a server-side replica before New returns.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	st, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	gw := &Gateway{
		config:      cfg,
		store:       st,
		logger:      logger.With("component", "gateway"),
		stopObserve: func() {},
	}

	hubOpts := []relay.Option{relay.WithLogger(logger)}
	queueOpts := []botqueue.Option{botqueue.WithLogger(logger)}
	if cfg.Metrics.Enabled {
		gw.metrics = metrics.New()
		hubOpts = append(hubOpts, relay.WithMetrics(gw.metrics))
		queueOpts = append(queueOpts, botqueue.WithMetrics(gw.metrics))
	}
	gw.hub = relay.NewHub(st, hubOpts...)
	gw.queue = botqueue.New(queueOpts...)

	ctx := context.Background()
	if cfg.Database.CompactOnStart {
		if err := gw.hub.Compact(ctx, cfg.Document.Name); err != nil {
			gw.closeAll()
			return nil, fmt.Errorf("compacting on start: %w", err)
		}
	}

	doc := crdt.New(crdt.WithLogger(logger))
	gw.session, err = gw.hub.Connect(ctx, cfg.Document.Name, doc)
	if err != nil {
		gw.closeAll()
		return nil, fmt.Errorf("joining document %q: %w", cfg.Document.Name, err)
	}
	if gw.metrics != nil {
		gw.stopObserve = gw.metrics.ObserveDocument(doc)
	}

	gw.handle = workspace.New(doc, workspace.Options{
		Queue:           gw.queue,
		Bots:            localBots(cfg),
		ContextMessages: cfg.Workers.ContextMessages,
		Logger:          logger,
	})

	gw.registry = agent.NewRegistry(logger)
	for _, bot := range gw.handle.Bots() {
		if err := gw.registry.Register(bot.Name, agent.EchoResponder{}); err != nil {
			gw.closeAll()
			return nil, fmt.Errorf("registering bot %q: %w", bot.Name, err)
		}
	}

	gw.worker, err = agent.NewWorker(gw.handle, gw.registry, agent.Options{
		Concurrency:   cfg.Workers.Concurrency,
		RatePerSecond: cfg.Workers.RatePerSecond,
		Burst:         cfg.Workers.Burst,
		ReplyTimeout:  cfg.Workers.ReplyTimeout,
		Logger:        logger,
	})
	if err != nil {
		gw.closeAll()
		return nil, fmt.Errorf("creating worker: %w", err)
	}
	gw.watcher = agent.NewMentionWatcher(gw.handle, agent.WatcherOptions{Logger: logger})

	if cfg.MCP.Enabled {
		tokens := make(map[string]string, len(cfg.MCP.Tokens))
		for _, tok := range cfg.MCP.Tokens {
			tokens[tok.Token] = tok.Username
		}
		gw.mcp, err = mcp.NewServer(mcp.Config{
			Handle:     gw.handle,
			Logger:     logger,
			TokenStore: mcp.NewTokenStore(tokens),
		})
		if err != nil {
			gw.closeAll()
			return nil, fmt.Errorf("creating MCP server: %w", err)
		}
	}

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// Handle returns the server-side workspace replica.
func (g *Gateway) Handle() *workspace.Handle {
	return g.handle
}

// Run serves HTTP, answers bot invocations and runs queue housekeeping until ctx
// is cancelled, then shuts everything down. Returns nil on graceful shutdown.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		g.closeAll()
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	g.logger.Info("starting gateway",
		"http_addr", ln.Addr().String(),
		"document", g.config.Document.Name,
		"bots", g.registry.Bots())

	g.watcher.Start()

	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})
	grp.Go(func() error {
		return g.worker.Run(gctx)
	})
	grp.Go(func() error {
		g.cleanupLoop(gctx)
		return nil
	})
	grp.Go(func() error {
		<-gctx.Done()
		g.logger.Info("context canceled, initiating shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return g.httpServer.Shutdown(shutdownCtx)
	})

	serverErr := grp.Wait()
	shutdownErr := g.Shutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// cleanupLoop drops finished and stuck invocations older than the configured age.
func (g *Gateway) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(g.config.Queue.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := g.queue.Cleanup(g.config.Queue.MaxAge); n > 0 {
				g.logger.Info("cleaned up invocations", "removed", n)
			}
		}
	}
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown releases the replica, relay and store. Run calls it on exit; call it
// directly only for a gateway that was never run.
func (g *Gateway) Shutdown() error {
	g.logger.Info("shutting down gateway")
	return g.closeAll()
}

func (g *Gateway) closeAll() error {
	g.closeOnce.Do(func() { g.closeErr = g.release() })
	return g.closeErr
}

func (g *Gateway) release() error {
	var errs []error
	if g.watcher != nil {
		g.watcher.Close()
	}
	g.stopObserve()
	if g.handle != nil {
		g.handle.Close()
	}
	if g.session != nil {
		g.session.Disconnect()
	}
	if g.hub != nil {
		errs = appendCloseError(errs, "relay close", g.hub.Close())
	}
	if g.store != nil {
		errs = appendCloseError(errs, "store close", g.store.Close())
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
