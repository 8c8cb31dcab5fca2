// ABOUTME: Worker consumes the bot invocation queue: claim, allocate thread, respond, reply
// ABOUTME: Runs a fixed pool of goroutines under errgroup with a shared rate limiter

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/2389/hearth/internal/botqueue"
	"github.com/2389/hearth/internal/records"
	"github.com/2389/hearth/internal/workspace"
)

// ErrNoQueue is returned when the workspace handle has no invocation queue.
var ErrNoQueue = errors.New("workspace has no invocation queue")

const (
	defaultReplyTimeout  = 2 * time.Minute
	defaultSweepInterval = 5 * time.Second
	jobBufferSize        = 256
)

// Options configures a Worker.
type Options struct {
	Concurrency   int           // goroutines processing invocations, default 1
	RatePerSecond float64       // responder calls per second across the pool, 0 means unlimited
	Burst         int           // limiter burst, default 1
	ReplyTimeout  time.Duration // per-invocation responder deadline
	SweepInterval time.Duration // how often pending invocations are re-offered
	Logger        *slog.Logger
}

// Worker answers pending invocations of a workspace's queue.
type Worker struct {
	handle   *workspace.Handle
	queue    *botqueue.Queue
	registry *Registry
	limiter  *rate.Limiter
	jobs     chan string
	opts     Options
	logger   *slog.Logger
}

// NewWorker creates a worker for handle's queue.
func NewWorker(handle *workspace.Handle, registry *Registry, opts Options) (*Worker, error) {
	q := handle.Queue()
	if q == nil {
		return nil, ErrNoQueue
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.ReplyTimeout <= 0 {
		opts.ReplyTimeout = defaultReplyTimeout
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = defaultSweepInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	limit := rate.Inf
	if opts.RatePerSecond > 0 && !math.IsInf(opts.RatePerSecond, 1) {
		limit = rate.Limit(opts.RatePerSecond)
	}

	return &Worker{
		handle:   handle,
		queue:    q,
		registry: registry,
		limiter:  rate.NewLimiter(limit, opts.Burst),
		jobs:     make(chan string, jobBufferSize),
		opts:     opts,
		logger:   logger.With("component", "worker"),
	}, nil
}

// Run processes invocations until ctx is cancelled. Invocations already pending when
// Run starts are picked up by the first sweep.
func (w *Worker) Run(ctx context.Context) error {
	unsub := w.queue.Subscribe(func(ev botqueue.Event) {
		switch ev.Type {
		case botqueue.EventEnqueued, botqueue.EventReclaimed:
			w.offer(ev.Invocation.ID)
		}
	})
	defer unsub()

	w.logger.Info("worker started",
		"concurrency", w.opts.Concurrency,
		"rate_per_second", w.opts.RatePerSecond,
		"bots", w.registry.Bots())

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < w.opts.Concurrency; i++ {
		g.Go(func() error {
			w.loop(gctx)
			return nil
		})
	}
	g.Go(func() error {
		w.sweep(gctx)
		return nil
	})

	err := g.Wait()
	w.logger.Info("worker stopped")
	return err
}

// offer schedules id without blocking the queue listener. A full buffer is
// recovered by the next sweep.
func (w *Worker) offer(id string) {
	select {
	case w.jobs <- id:
	default:
		w.logger.Debug("job buffer full, deferring to sweep", "invocation_id", id)
	}
}

func (w *Worker) sweep(ctx context.Context) {
	ticker := time.NewTicker(w.opts.SweepInterval)
	defer ticker.Stop()

	for {
		for _, inv := range w.queue.Pending() {
			w.offer(inv.ID)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *Worker) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-w.jobs:
			w.Process(ctx, id)
		}
	}
}

// Process claims and answers one invocation. It reports whether this call claimed it.
//
// The reply thread id is allocated before the claim, so it is fixed on the
// invocation from the moment it turns processing and the thread exists before
// the responder runs.
func (w *Worker) Process(ctx context.Context, id string) bool {
	inv, ok := w.queue.Get(id)
	if !ok || inv.Status != botqueue.StatusPending {
		return false
	}
	if err := w.limiter.Wait(ctx); err != nil {
		return false
	}

	threadID := ""
	if inv.ExistingThreadID == "" {
		threadID = inv.CreatedThreadID // kept across Reclaim
		if threadID == "" {
			threadID = records.NewID()
		}
	}
	if !w.queue.StartProcessing(id, threadID) {
		w.logger.Debug("invocation claimed elsewhere", "invocation_id", id)
		return false
	}
	inv.Status = botqueue.StatusProcessing
	inv.CreatedThreadID = threadID

	if err := w.answer(ctx, &inv); err != nil {
		w.queue.Fail(id, err.Error())
		return true
	}
	w.queue.Complete(id)
	return true
}

func (w *Worker) answer(ctx context.Context, inv *botqueue.Invocation) error {
	logger := w.logger.With("invocation_id", inv.ID, "bot", inv.Bot)

	bot, ok := w.handle.Bot(inv.Bot)
	if !ok {
		return fmt.Errorf("bot %q is not configured", inv.Bot)
	}

	if inv.CreatedThreadID != "" {
		thread, err := w.handle.CreateThreadWithID(inv.CreatedThreadID, inv.TriggerMessageID)
		if err != nil {
			return fmt.Errorf("creating reply thread: %w", err)
		}
		if thread == nil {
			return fmt.Errorf("trigger message %s not found", inv.TriggerMessageID)
		}
		logger.Debug("reply thread ready", "thread_id", thread.ID)
	}

	responder, err := w.registry.Lookup(inv.Bot)
	if err != nil {
		return err
	}

	rctx, cancel := context.WithTimeout(ctx, w.opts.ReplyTimeout)
	defer cancel()

	start := time.Now()
	reply, err := responder.Respond(rctx, inv)
	if err != nil {
		return fmt.Errorf("responding: %w", err)
	}

	res, err := w.handle.SendMessage(bot.Username(), reply, workspace.SendOptions{
		ThreadID:   inv.ReplyThreadID(),
		NoMentions: true,
	})
	if err != nil {
		return fmt.Errorf("posting reply: %w", err)
	}

	logger.Info("reply posted",
		"message_id", res.Message.ID,
		"thread_id", inv.ReplyThreadID(),
		"duration", time.Since(start))
	return nil
}
