// ABOUTME: Interactive config file generation for hearth init
// ABOUTME: Prompts for server, database, bots and logging settings and writes YAML

package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/2389/hearth/internal/config"
)

// initConfig mirrors the YAML layout config.Load reads.
type initConfig struct {
	Server   config.ServerConfig   `yaml:"server"`
	Database config.DatabaseConfig `yaml:"database"`
	Document config.DocumentConfig `yaml:"document"`
	Bots     []config.BotConfig    `yaml:"bots"`
	Queue    map[string]string     `yaml:"queue"`
	Workers  initWorkers           `yaml:"workers"`
	Logging  config.LoggingConfig  `yaml:"logging"`
	Metrics  config.MetricsConfig  `yaml:"metrics"`
	MCP      config.MCPConfig      `yaml:"mcp"`
}

type initWorkers struct {
	Concurrency     int     `yaml:"concurrency"`
	RatePerSecond   float64 `yaml:"rate_per_second"`
	Burst           int     `yaml:"burst"`
	ContextMessages int     `yaml:"context_messages"`
	ReplyTimeout    string  `yaml:"reply_timeout"`
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("hearth configuration setup")
	fmt.Println("==========================")
	fmt.Println()

	outputFile := prompt(reader, "Config file path", config.DefaultPath())

	if _, err := os.Stat(outputFile); err == nil {
		if !yes(prompt(reader, "File exists. Overwrite?", "no")) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", config.DefaultHTTPAddr)
	docName := prompt(reader, "Document name", config.DefaultDocument)

	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "SQLite database path", defaultDBPath())

	fmt.Println("\n--- Bots ---")
	var bots []config.BotConfig
	for _, name := range strings.Split(prompt(reader, "Bots answered by this server (comma separated)", "ai"), ",") {
		if name = strings.TrimSpace(name); name != "" {
			bots = append(bots, config.BotConfig{Name: name, DisplayName: strings.ToUpper(name)})
		}
	}
	for _, name := range strings.Split(prompt(reader, "Bots answered by remote processes (comma separated)", ""), ",") {
		if name = strings.TrimSpace(name); name != "" {
			bots = append(bots, config.BotConfig{Name: name, DisplayName: name, Remote: true})
		}
	}

	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	metricsEnabled := yes(prompt(reader, "\nExpose Prometheus metrics?", "no"))

	var mcpCfg config.MCPConfig
	if yes(prompt(reader, "Expose the MCP tool endpoint for external agents?", "no")) {
		mcpCfg.Enabled = true
		if agentName := strings.TrimSpace(prompt(reader, "Username MCP agents post as (empty for anonymous)", "")); agentName != "" {
			mcpCfg.Tokens = []config.MCPToken{{Token: uuid.New().String(), Username: agentName}}
		}
	}

	out := initConfig{
		Server:   config.ServerConfig{HTTPAddr: httpAddr},
		Database: config.DatabaseConfig{Path: dbPath},
		Document: config.DocumentConfig{Name: docName},
		Bots:     bots,
		Queue: map[string]string{
			"cleanup_interval": config.DefaultCleanupInterval.String(),
			"max_age":          config.DefaultMaxAge.String(),
		},
		Workers: initWorkers{
			Concurrency:     config.DefaultConcurrency,
			RatePerSecond:   config.DefaultRatePerSecond,
			Burst:           config.DefaultBurst,
			ContextMessages: config.DefaultContextMessages,
			ReplyTimeout:    config.DefaultReplyTimeout.String(),
		},
		Logging: config.LoggingConfig{Level: logLevel, Format: logFormat},
		Metrics: config.MetricsConfig{Enabled: metricsEnabled, Path: config.DefaultMetricsPath},
		MCP:     mcpCfg,
	}

	data, err := yaml.Marshal(out)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	data = append([]byte("# hearth configuration\n# Generated by hearth init\n\n"), data...)

	// round-trip through the loader so init never writes a config serve would reject
	if _, err := config.Parse(data, false); err != nil {
		return fmt.Errorf("generated config is invalid: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(outputFile, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	color.New(color.FgGreen).Printf("\n  ✓ Config written to %s\n", outputFile)
	fmt.Printf("  Data directory: %s\n", dataDir)
	if len(mcpCfg.Tokens) > 0 {
		fmt.Printf("  MCP URL: http://%s/mcp/%s\n", httpAddr, mcpCfg.Tokens[0].Token)
	}
	fmt.Println("\nTo start the server:")
	fmt.Println("  hearth serve")

	return nil
}

func yes(answer string) bool {
	answer = strings.ToLower(answer)
	return answer == "yes" || answer == "y"
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
