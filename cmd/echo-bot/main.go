// ABOUTME: Out-of-process echo bot for end-to-end testing. Joins a document over the relay and answers mentions.
// ABOUTME: Usage: echo-bot [-server ws://localhost:8080] [-doc general] [-name scribe] [-display Scribe]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/2389/hearth/internal/agent"
	"github.com/2389/hearth/internal/botqueue"
	"github.com/2389/hearth/internal/crdt"
	"github.com/2389/hearth/internal/relay"
	"github.com/2389/hearth/internal/workspace"
)

func main() {
	server := flag.String("server", "ws://localhost:8080", "Relay base URL")
	document := flag.String("doc", "general", "Document to join")
	name := flag.String("name", "scribe", "Mention name the bot answers to")
	display := flag.String("display", "", "Username replies are posted as (defaults to -name)")
	maxAge := flag.Duration("max-age", 5*time.Minute, "Ignore mentions older than this")
	delay := flag.Duration("delay", 50*time.Millisecond, "Pause before each reply")
	debug := flag.Bool("debug", false, "Log at debug level")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	bot := workspace.Bot{Name: *name, DisplayName: *display}
	if err := run(*server, *document, bot, *maxAge, *delay, logger); err != nil {
		logger.Error("echo-bot failed", "error", err)
		os.Exit(1)
	}
}

func run(server, document string, bot workspace.Bot, maxAge, delay time.Duration, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	url := strings.TrimSuffix(server, "/") + "/sync/" + document
	doc := crdt.New(crdt.WithLogger(logger))
	dialer := &relay.Dialer{Settings: relay.DefaultSettings(), Logger: logger}
	sess, err := dialer.Dial(ctx, url, doc)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer sess.Disconnect()

	handle := workspace.New(doc, workspace.Options{
		Queue:  botqueue.New(botqueue.WithLogger(logger)),
		Bots:   []workspace.Bot{bot},
		Logger: logger,
	})
	defer handle.Close()

	registry := agent.NewRegistry(logger)
	if err := registry.Register(bot.Name, agent.ResponderFunc(func(ctx context.Context, inv *botqueue.Invocation) (string, error) {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		return echoReply(inv.Prompt), nil
	})); err != nil {
		return err
	}

	worker, err := agent.NewWorker(handle, registry, agent.Options{Logger: logger})
	if err != nil {
		return err
	}
	watcher := agent.NewMentionWatcher(handle, agent.WatcherOptions{MaxAge: maxAge, Logger: logger})
	watcher.Start()
	defer watcher.Close()

	logger.Info("echo-bot joined", "document", document, "bot", bot.Name, "username", bot.Username())

	workerDone := make(chan error, 1)
	go func() { workerDone <- worker.Run(ctx) }()

	select {
	case <-ctx.Done():
		err = <-workerDone
	case <-sess.Done():
		cancel()
		<-workerDone
		return errors.New("relay connection closed")
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func echoReply(prompt string) string {
	lower := strings.ToLower(prompt)
	if strings.Contains(lower, "markdown") || strings.Contains(lower, "bullet") || strings.Contains(lower, "list") {
		return "Here is a **markdown** response:\n\n- First item\n- Second item with `code`\n- Third item\n\n> This is a blockquote.\n"
	}
	if strings.TrimSpace(prompt) == "" {
		return "You mentioned me without saying anything."
	}
	return fmt.Sprintf("Echo: **%s**", strings.TrimSpace(prompt))
}
