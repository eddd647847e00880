package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/mattjoyce/ipfsbridge/internal/api"
	"github.com/mattjoyce/ipfsbridge/internal/auth"
	"github.com/mattjoyce/ipfsbridge/internal/config"
	"github.com/mattjoyce/ipfsbridge/internal/doctor"
	"github.com/mattjoyce/ipfsbridge/internal/events"
	"github.com/mattjoyce/ipfsbridge/internal/lock"
	"github.com/mattjoyce/ipfsbridge/internal/log"
	"github.com/mattjoyce/ipfsbridge/internal/tui/watch"
)

// pruneInterval is how often serve trims the dispatch log.
const pruneInterval = time.Hour

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
	case "serve", "start":
		if hasHelpFlag(actionArgs) {
			printSystemServeHelp()
			return 0
		}
		return runServe(actionArgs)
	case "watch":
		if hasHelpFlag(actionArgs) {
			printSystemWatchHelp()
			return 0
		}
		return runWatch(actionArgs)
	case "doctor":
		return runDoctor(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", action)
		return 1
	}
}

func printSystemNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: ipfsbridge system <action>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Actions:")
	fmt.Fprintln(w, "  serve [--config P]                 Run the HTTP API in the foreground")
	fmt.Fprintln(w, "  watch [--api-url U] [--api-key K]  Live dispatch monitor")
	fmt.Fprintln(w, "  doctor [--config P] [--probe] [--json]")
	fmt.Fprintln(w, "                                     Check configuration against this machine")
}

func printSystemServeHelp() {
	fmt.Println("Usage: ipfsbridge system serve [--config PATH]")
	fmt.Println()
	fmt.Println("Serve the operation registry, dispatch, history and event stream over HTTP.")
	fmt.Println("Requires api.enabled: true and at least one credential under api.auth.")
}

// pidLockPath picks service.pid_file, or a file beside the history database.
func pidLockPath(cfg *config.Config) string {
	if cfg.Service.PIDFile != "" {
		return cfg.Service.PIDFile
	}
	if cfg.History.Enabled && cfg.History.Path != "" {
		return filepath.Join(filepath.Dir(cfg.History.Path), "ipfsbridge.pid")
	}
	return filepath.Join(os.TempDir(), "ipfsbridge.pid")
}

func apiConfig(cfg *config.Config) api.Config {
	tokens := make([]auth.TokenConfig, 0, len(cfg.API.Auth.Tokens))
	for _, t := range cfg.API.Auth.Tokens {
		tokens = append(tokens, auth.TokenConfig{Token: t.Token, Scopes: t.Scopes})
	}
	return api.Config{
		Listen: cfg.API.Listen,
		APIKey: cfg.API.Auth.APIKey,
		Tokens: tokens,
	}
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		return fail(fmt.Errorf("flag error: %w", err))
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return fail(err)
	}
	if !cfg.API.Enabled {
		return fail(fmt.Errorf("api.enabled is false; nothing to serve"))
	}

	logger := log.WithComponent("main")
	logger.Info("ipfsbridge starting", "version", version, "config", cfg.Root, "runtime", cfg.Runtime.Kind)

	pidPath := pidLockPath(cfg)
	pidLock, err := lock.TryAcquire(pidPath)
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			if pid, perr := lock.HolderPID(pidPath); perr == nil {
				return fail(fmt.Errorf("another instance is running (pid %d, lock %s)", pid, pidPath))
			}
		}
		return fail(fmt.Errorf("acquire PID lock: %w", err))
	}
	defer func() { _ = pidLock.Release() }()
	logger.Info("acquired PID lock", "path", pidPath)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	hub := events.NewHub(cfg.API.EventBuffer)
	b, err := newBridge(ctx, cfg, hub)
	if err != nil {
		return fail(err)
	}
	defer b.Close()

	var hist api.HistoryReader
	if b.history != nil {
		hist = b.history
		go b.history.RunPruner(ctx, cfg.History.Retention, pruneInterval)
		logger.Info("history enabled", "path", cfg.History.Path, "retention", cfg.History.Retention.String())
	}

	server := api.New(apiConfig(cfg), b.client, hist, hub, log.WithComponent("api"))
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("API server stopped", "error", err)
		return fail(err)
	}

	logger.Info("ipfsbridge stopped")
	return 0
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration (for api.listen)")
	apiURL := fs.String("api-url", "", "API base URL (default: from api.listen)")
	apiKey := fs.String("api-key", os.Getenv("IPFSBRIDGE_API_KEY"), "Bearer token with events:ro")
	if err := fs.Parse(args); err != nil {
		return fail(fmt.Errorf("flag error: %w", err))
	}

	url := *apiURL
	if url == "" {
		cfg, err := loadConfig(*configPath)
		if err != nil {
			return fail(err)
		}
		url = "http://" + cfg.API.Listen
	}
	if *apiKey == "" {
		return fail(fmt.Errorf("API key required; use --api-key or IPFSBRIDGE_API_KEY"))
	}

	if err := watch.Run(strings.TrimRight(url, "/"), *apiKey); err != nil {
		return fail(fmt.Errorf("TUI: %w", err))
	}
	return 0
}

func printSystemWatchHelp() {
	fmt.Println("Usage: ipfsbridge system watch [flags]")
	fmt.Println()
	fmt.Println("Live view of dispatches streamed from a running 'system serve'.")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --api-url URL    API base URL (default: http://<api.listen>)")
	fmt.Println("  --api-key KEY    Bearer token with events:ro (or IPFSBRIDGE_API_KEY)")
	fmt.Println()
	fmt.Println("Keybindings:")
	fmt.Println("  q, Ctrl+C        Quit")
	fmt.Println("  p, Space         Pause the event log")
	fmt.Println("  c                Clear the event log and counters")
}

func runDoctor(args []string) int {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	probe := fs.Bool("probe", false, "Contact the RPC endpoint when runtime.kind is http")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		return fail(fmt.Errorf("flag error: %w", err))
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return fail(err)
	}

	d := doctor.New(cfg)
	if *probe {
		d.Probe = doctor.ProbeRPC
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	result := d.Validate(ctx)

	if *jsonOut {
		out, err := doctor.FormatJSON(result)
		if err != nil {
			return fail(err)
		}
		fmt.Println(out)
	} else {
		fmt.Print(doctor.FormatHuman(result))
	}
	if !result.Valid {
		return 1
	}
	return 0
}
