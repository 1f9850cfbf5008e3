package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/windsurf-mcp/internal/api"
	"github.com/mattjoyce/windsurf-mcp/internal/auth"
	"github.com/mattjoyce/windsurf-mcp/internal/cliexec"
	"github.com/mattjoyce/windsurf-mcp/internal/config"
	"github.com/mattjoyce/windsurf-mcp/internal/dispatch"
	"github.com/mattjoyce/windsurf-mcp/internal/events"
	"github.com/mattjoyce/windsurf-mcp/internal/identity"
	"github.com/mattjoyce/windsurf-mcp/internal/lock"
	"github.com/mattjoyce/windsurf-mcp/internal/log"
	"github.com/mattjoyce/windsurf-mcp/internal/memory"
	"github.com/mattjoyce/windsurf-mcp/internal/query"
	"github.com/mattjoyce/windsurf-mcp/internal/resource"
	"github.com/mattjoyce/windsurf-mcp/internal/scheduler"
	"github.com/mattjoyce/windsurf-mcp/internal/state"
	"github.com/mattjoyce/windsurf-mcp/internal/storage"
	"github.com/mattjoyce/windsurf-mcp/internal/tui/watch"
)

const version = api.ServerVersion

const redacted = "[redacted]"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		printUsage(os.Stderr)
		return 1
	}

	cmd := args[0]
	rest := args[1:]

	switch cmd {
	// --- NOUNS ---
	case "system":
		return runSystemNoun(rest)
	case "config":
		return runConfigNoun(rest)

	// --- ROOT ALIASES ---
	case "start":
		return runStart(rest)
	case "version":
		fmt.Printf("windsurf-mcp version %s\n", version)
		return 0
	case "help", "--help", "-h":
		printUsage(os.Stdout)
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage(os.Stderr)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `windsurf-mcp - JSON operation server for editor tooling

Usage:
  windsurf-mcp <noun> <action> [flags]

Core Resources (Nouns):
  system    Server lifecycle and health
  config    Configuration validation and integrity

System Commands:
  system start      Start the server in the foreground
  system status     Query a running server's /status endpoint
  system watch      Live operations monitor (TUI)

Config Commands:
  config check      Validate syntax, policy and integrity
  config lock       Record the config file's hash in .checksums
  config show       Print the resolved configuration (secrets redacted)

General:
  start             Alias for 'system start'
  version           Show version information
  help              Show this help message

Use 'windsurf-mcp <noun> help' for resource-specific flags.
`)
}

// --- NOUN DISPATCHERS ---

func runSystemNoun(args []string) int {
	if len(args) < 1 {
		printSystemNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printSystemNounHelp(os.Stdout)
		return 0
	}

	action, actionArgs := args[0], args[1:]
	switch action {
	case "start":
		if hasHelpFlag(actionArgs) {
			printSystemStartHelp()
			return 0
		}
		return runStart(actionArgs)
	case "status":
		if hasHelpFlag(actionArgs) {
			printSystemStatusHelp()
			return 0
		}
		return runSystemStatus(actionArgs)
	case "watch":
		if hasHelpFlag(actionArgs) {
			printSystemWatchHelp()
			return 0
		}
		return runSystemWatch(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", action)
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action, actionArgs := args[0], args[1:]
	switch action {
	case "check":
		if hasHelpFlag(actionArgs) {
			printConfigCheckHelp()
			return 0
		}
		return runConfigCheck(actionArgs)
	case "lock":
		if hasHelpFlag(actionArgs) {
			printConfigLockHelp()
			return 0
		}
		return runConfigLock(actionArgs)
	case "show":
		if hasHelpFlag(actionArgs) {
			printConfigShowHelp()
			return 0
		}
		return runConfigShow(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func printSystemNounHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: windsurf-mcp system <action>")
	fmt.Fprintln(w, "Actions: start, status, watch")
}

func printConfigNounHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: windsurf-mcp config <action> [flags]")
	fmt.Fprintln(w, "Actions: check, lock, show")
}

func printSystemStartHelp() {
	fmt.Println("Usage: windsurf-mcp system start [--config PATH]")
	fmt.Println("Start the server in the foreground. Without a config file, defaults and WINDSURF_* variables apply.")
}

func printSystemStatusHelp() {
	fmt.Println("Usage: windsurf-mcp system status [--config PATH] [--url URL]")
	fmt.Println("Query GET /status on a running server.")
}

func printSystemWatchHelp() {
	fmt.Println("Usage: windsurf-mcp system watch [--config PATH] [--url URL] [--token TOKEN]")
	fmt.Println()
	fmt.Println("Live operations monitor. Shows server status, per-operation outcomes,")
	fmt.Println("maintenance runs and the activity stream from GET /events.")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --url URL        Base URL of the server (default: derived from api.listen)")
	fmt.Println("  --token TOKEN    Bearer token with read scope (or WINDSURF_API_TOKEN env var)")
	fmt.Println()
	fmt.Println("Keybindings:")
	fmt.Println("  q, Ctrl+C        Quit")
	fmt.Println("  ↑/↓, k/j         Navigate operations")
}

func printConfigCheckHelp() {
	fmt.Println("Usage: windsurf-mcp config check [--config PATH] [--format human|json]")
	fmt.Println("Validate configuration syntax, policy and integrity.")
}

func printConfigLockHelp() {
	fmt.Println("Usage: windsurf-mcp config lock [--config PATH]")
	fmt.Println("Record the config file's BLAKE3 hash in the .checksums manifest beside it.")
}

func printConfigShowHelp() {
	fmt.Println("Usage: windsurf-mcp config show [--config PATH] [--json]")
	fmt.Println("Print the resolved configuration with secrets redacted.")
}

// --- ACTION IMPLEMENTATIONS ---

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := resolveConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	if err := log.Setup(log.Options{
		Level:  cfg.Service.LogLevel,
		Format: cfg.Service.LogFormat,
		File:   cfg.Service.LogFile,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		return 1
	}
	defer log.Close()

	logger := log.WithComponent("main")
	logger.Info("windsurf-mcp starting", "version", version, "config", cfg.SourcePath)

	pidLockPath := lock.PathFor(cfg.State.Path)
	pidLock, err := lock.AcquirePIDLock(pidLockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock (another instance may be running)", "path", pidLockPath, "error", err)
		return 1
	}
	defer pidLock.Release()
	logger.Info("acquired PID lock", "path", pidLockPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.State.Path, "error", err)
		return 1
	}
	defer db.Close()
	logger.Info("database opened", "path", cfg.State.Path)

	hub := events.NewHub(0)
	defer hub.Close()

	svc, err := buildServices(cfg, db, hub)
	if err != nil {
		logger.Error("failed to wire operations", "error", err)
		return 1
	}

	sched, err := scheduler.New(cfg.Service.TickInterval, hub, log.Get(),
		scheduler.ExpireAllocations(svc.accountant, cfg.Service.TickInterval),
	)
	if err != nil {
		logger.Error("failed to build scheduler", "error", err)
		return 1
	}

	server := api.New(apiConfig(cfg, hub), svc.dispatcher, log.WithComponent("api"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Start(gctx); err != nil {
			return fmt.Errorf("api: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return sched.Run(gctx)
	})

	logger.Info("windsurf-mcp running (press Ctrl+C to stop)",
		"listen", cfg.API.Listen,
		"operations", len(svc.dispatcher.Operations()),
		"auth", len(cfg.API.Auth.Tokens) > 0 || cfg.API.Auth.APIKey != "",
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("component failed", "error", err)
		return 1
	}

	logger.Info("windsurf-mcp stopped")
	return 0
}

// services is everything runStart needs from the wiring step.
type services struct {
	dispatcher *dispatch.Dispatcher
	accountant *resource.Accountant
}

// buildServices constructs every collaborator over db and binds them into
// the operation registry. Outcomes are published to hub.
func buildServices(cfg *config.Config, db *sql.DB, hub *events.Hub) (*services, error) {
	contexts, err := state.NewContextStore(cfg.Resources.ContextDirectory)
	if err != nil {
		return nil, fmt.Errorf("context store: %w", err)
	}

	accountant := resource.NewAccountant(db, resource.Options{
		Limits: resource.Amount{
			CPUCores: cfg.Resources.Limits.CPUCores,
			MemoryMB: cfg.Resources.Limits.MemoryMB,
			DiskMB:   cfg.Resources.Limits.DiskMB,
		},
		DiskPath:      cfg.Resources.DiskPath,
		AllocationTTL: cfg.Resources.AllocationTTL,
	}, log.WithComponent("resource"))

	registry, err := dispatch.BuildRegistry(dispatch.Collaborators{
		Files:     cliexec.New(cfg.CLI.MaxReadBytes),
		Memory:    memory.NewStore(db),
		Query:     query.NewEngine(db),
		Contexts:  contexts,
		Resources: accountant,
		Identity: identity.NewStore(db, identity.Options{
			MinPasswordLength: cfg.Security.MinPasswordLength,
			BcryptCost:        cfg.Security.BcryptCost,
		}, log.WithComponent("identity")),
	})
	if err != nil {
		return nil, err
	}

	return &services{
		dispatcher: dispatch.New(registry, log.WithComponent("dispatch"), dispatch.WithPublisher(hub)),
		accountant: accountant,
	}, nil
}

func apiConfig(cfg *config.Config, hub *events.Hub) api.Config {
	tokens := make([]auth.TokenConfig, 0, len(cfg.API.Auth.Tokens))
	for _, t := range cfg.API.Auth.Tokens {
		tokens = append(tokens, auth.TokenConfig{
			Token:  t.Token,
			Scopes: t.Scopes,
		})
	}
	return api.Config{
		Listen:       cfg.API.Listen,
		APIKey:       cfg.API.Auth.APIKey,
		Tokens:       tokens,
		MaxBodyBytes: cfg.API.MaxBodyBytes,
		Events:       hub,
	}
}

// resolveConfig loads the discovered config file, or falls back to defaults
// plus environment when there is none.
func resolveConfig(flagPath string) (*config.Config, error) {
	path, err := config.DiscoverConfigPath(flagPath)
	if errors.Is(err, config.ErrNoConfig) {
		return config.FromEnv()
	}
	if err != nil {
		return nil, err
	}
	return config.Load(path)
}

func runSystemStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	url := fs.String("url", "", "Base URL of the server (default: derived from api.listen)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	base := *url
	if base == "" {
		cfg, err := resolveConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			return 1
		}
		base = "http://" + cfg.API.Listen
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(strings.TrimRight(base, "/") + "/status")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server unreachable: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	var status api.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		fmt.Fprintf(os.Stderr, "Unexpected status response (HTTP %d): %v\n", resp.StatusCode, err)
		return 1
	}
	fmt.Printf("%s %s: %s\n", status.Server, status.Version, status.Status)
	if resp.StatusCode != http.StatusOK || status.Status != "running" {
		return 1
	}
	return 0
}

func runSystemWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	url := fs.String("url", "", "Base URL of the server (default: derived from api.listen)")
	token := fs.String("token", os.Getenv("WINDSURF_API_TOKEN"), "Bearer token with read scope")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	base, key := *url, *token
	if base == "" || key == "" {
		cfg, err := resolveConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			return 1
		}
		if base == "" {
			base = "http://" + cfg.API.Listen
		}
		if key == "" {
			key = cfg.API.Auth.APIKey
		}
	}

	if _, err := tea.NewProgram(watch.New(base, key)).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}

type checkReport struct {
	Valid  bool     `json:"valid"`
	Path   string   `json:"path"`
	Locked bool     `json:"locked"`
	Errors []string `json:"errors,omitempty"`
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration")
	format := fs.String("format", "human", "Output format (human, json)")
	jsonOut := fs.Bool("json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if *jsonOut {
		*format = "json"
	}

	path, err := config.DiscoverConfigPath(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
		return 1
	}

	report := checkReport{Path: path}
	if _, err := config.Load(path); err != nil {
		report.Errors = strings.Split(err.Error(), "\n")
	} else {
		report.Valid = true
	}
	if locked, err := config.IsLocked(path); err == nil {
		report.Locked = locked
	}

	switch *format {
	case "json":
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(string(out))
	default:
		if report.Valid {
			fmt.Printf("Configuration OK: %s\n", report.Path)
		} else {
			fmt.Printf("Configuration INVALID: %s\n", report.Path)
			for _, e := range report.Errors {
				fmt.Printf("  - %s\n", e)
			}
		}
		if report.Locked {
			fmt.Println("Integrity: locked (.checksums entry present)")
		} else {
			fmt.Println("Integrity: unlocked")
		}
	}

	if !report.Valid {
		return 1
	}
	return 0
}

func runConfigLock(args []string) int {
	fs := flag.NewFlagSet("lock", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	path, err := config.DiscoverConfigPath(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
		return 1
	}

	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, "config.yaml")
	}

	manifest, err := config.LockConfig(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to lock config: %v\n", err)
		return 1
	}
	for _, name := range manifest.Files() {
		fmt.Printf("HASH %s: %s\n", name, manifest.Hashes[name])
	}
	fmt.Printf("Successfully locked %s\n", path)
	return 0
}

func runConfigShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := resolveConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}
	redactSecrets(cfg)

	if *jsonOut {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Encode error: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Encode error: %v\n", err)
		return 1
	}
	fmt.Print(string(data))
	return 0
}

func redactSecrets(cfg *config.Config) {
	if cfg.API.Auth.APIKey != "" {
		cfg.API.Auth.APIKey = redacted
	}
	tokens := make([]config.APIToken, len(cfg.API.Auth.Tokens))
	for i, t := range cfg.API.Auth.Tokens {
		t.Token = redacted
		tokens[i] = t
	}
	cfg.API.Auth.Tokens = tokens
}
