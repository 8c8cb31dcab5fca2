// ABOUTME: Entry point for hearthctl, a scriptable driver for the shared workspace
// ABOUTME: Prints one JSON envelope on stdout per run and logs JSON to stderr

package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
)

// envelope is the one object written to stdout.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// errReported marks a failure whose envelope has already been written.
var errReported = errors.New("reported")

// env carries the output streams and logger through command actions.
type env struct {
	stdout  io.Writer
	stderr  io.Writer
	logger  *slog.Logger
	emitted bool
}

// emit writes the envelope for data or err. It returns errReported when err is set.
func (e *env) emit(data any, err error) error {
	e.emitted = true
	out := envelope{Success: err == nil, Data: data}
	if err != nil {
		out = envelope{Error: err.Error()}
	}
	if encErr := json.NewEncoder(e.stdout).Encode(out); encErr != nil {
		return encErr
	}
	if err != nil {
		return errReported
	}
	return nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newApp(e *env) *cli.App {
	return &cli.App{
		Name:      "hearthctl",
		Usage:     "Drive a hearth workspace from scripts",
		Writer:    e.stderr,
		ErrWriter: e.stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "db",
				Value:   "hearth.db",
				Usage:   "SQLite database holding the document log",
				EnvVars: []string{"HEARTH_DB_PATH"},
			},
			&cli.StringFlag{
				Name:  "doc",
				Value: "general",
				Usage: "Document name",
			},
			&cli.StringFlag{
				Name:    "server",
				Usage:   "Relay base URL such as ws://localhost:8080 (overrides --db)",
				EnvVars: []string{"HEARTH_SERVER"},
			},
			&cli.StringSliceFlag{
				Name:  "bot",
				Value: cli.NewStringSlice("ai:AI"),
				Usage: "Mentionable bot as name or name:DisplayName",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Value: "warn",
				Usage: "Log level for stderr (debug, info, warn, error)",
			},
		},
		Before: func(c *cli.Context) error {
			e.logger = slog.New(slog.NewJSONHandler(e.stderr, &slog.HandlerOptions{
				Level: parseLevel(c.String("log-level")),
			}))
			slog.SetDefault(e.logger)
			return nil
		},
		Commands:       commands(e),
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

// run executes hearthctl with args and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	e := &env{stdout: stdout, stderr: stderr, logger: slog.New(slog.NewJSONHandler(stderr, nil))}
	err := newApp(e).Run(args)
	if err == nil {
		return 0
	}
	if !e.emitted {
		_ = e.emit(nil, err)
	}
	return 1
}

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}
