// ABOUTME: Entry point for the hearth collaborative workspace server
// ABOUTME: Hosts the shared document, its sync relay and the bot workers

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/hearth/internal/config"
	"github.com/2389/hearth/internal/gateway"
	"github.com/2389/hearth/internal/relay"
	"github.com/2389/hearth/internal/store"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const banner = `
  _                     _   _
 | |__   ___  __ _ _ __| |_| |__
 | '_ \ / _ \/ _' | '__| __| '_ \
 | | | |  __/ (_| | |  | |_| | | |
 |_| |_|\___|\__,_|_|   \__|_| |_|
`

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: hearth <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve       Start the workspace server")
		fmt.Println("  init        Create a new config file interactively")
		fmt.Println("  health      Check server health")
		fmt.Println("  documents   List stored documents")
		fmt.Println("  compact     Rewrite the document log as one snapshot (server stopped)")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	case "documents":
		err = runDocuments(ctx)
	case "compact":
		err = runCompact(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := config.DefaultPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Document:  ")
	cyan.Println(cfg.Document.Name)
	green.Print("    ▶ ")
	fmt.Printf("Bots:      ")
	for i, bot := range cfg.Bots {
		if i > 0 {
			fmt.Print(", ")
		}
		fmt.Print("@" + bot.Name)
		if bot.Remote {
			yellow.Print(" [remote]")
		}
	}
	fmt.Println()
	if cfg.Metrics.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Metrics:   %s\n", cfg.Metrics.Path)
	}
	if cfg.MCP.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("MCP:       /mcp (%d tokens)\n", len(cfg.MCP.Tokens))
	}
	fmt.Println()

	logger.Info("starting hearth",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"document", cfg.Document.Name,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	body, err := get(ctx, fmt.Sprintf("http://%s/health/ready", cfg.Server.HTTPAddr))
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	var ready gateway.ReadyResponse
	if err := json.Unmarshal(body, &ready); err != nil {
		return fmt.Errorf("decoding health response: %w", err)
	}
	color.New(color.FgGreen).Print("healthy")
	fmt.Printf(" (document %s, %d peers, %d pending invocations)\n", ready.Document, ready.Peers, ready.Pending)
	return nil
}

func runDocuments(ctx context.Context) error {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	body, err := get(ctx, fmt.Sprintf("http://%s/api/documents", cfg.Server.HTTPAddr))
	if err != nil {
		return fmt.Errorf("listing documents: %w", err)
	}

	var docs []gateway.DocumentResponse
	if err := json.Unmarshal(body, &docs); err != nil {
		return fmt.Errorf("decoding documents: %w", err)
	}
	if len(docs) == 0 {
		fmt.Println("no documents")
		return nil
	}
	for _, d := range docs {
		fmt.Printf("%-20s %6d updates %10d bytes (seq %d)\n", d.Name, d.Updates, d.Bytes, d.LastSeq)
	}
	return nil
}

// runCompact compacts the configured document directly in the database.
func runCompact(ctx context.Context) error {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := setupLogger(cfg.Logging)

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer st.Close()

	before, err := st.DocumentStats(ctx, cfg.Document.Name)
	if err != nil {
		return fmt.Errorf("reading %s: %w", cfg.Document.Name, err)
	}

	hub := relay.NewHub(st, relay.WithLogger(logger))
	defer hub.Close()
	if err := hub.Compact(ctx, cfg.Document.Name); err != nil {
		return err
	}

	after, err := st.DocumentStats(ctx, cfg.Document.Name)
	if err != nil {
		return fmt.Errorf("reading %s: %w", cfg.Document.Name, err)
	}
	color.New(color.FgGreen).Printf("  ✓ Compacted %s: ", cfg.Document.Name)
	fmt.Printf("%d updates (%d bytes) → %d snapshot (%d bytes)\n", before.Updates, before.Bytes, after.Updates, after.Bytes)
	return nil
}

func get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return body, nil
}

// defaultDBPath is where init proposes to keep the database.
func defaultDBPath() string {
	return filepath.Join(config.DefaultDataPath(), "hearth.db")
}
