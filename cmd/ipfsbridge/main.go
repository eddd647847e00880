package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/mattjoyce/ipfsbridge/internal/config"
	"github.com/mattjoyce/ipfsbridge/internal/history"
	"github.com/mattjoyce/ipfsbridge/internal/log"
	"github.com/mattjoyce/ipfsbridge/internal/storage"
	"github.com/mattjoyce/ipfsbridge/pkg/dispatch"
	"github.com/mattjoyce/ipfsbridge/pkg/ipfs"
	"github.com/mattjoyce/ipfsbridge/pkg/op"
	"github.com/mattjoyce/ipfsbridge/pkg/runtime"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage(os.Stderr)
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	case "op":
		return runOpNoun(args)
	case "exec":
		if hasHelpFlag(args) {
			printExecHelp()
			return 0
		}
		return runExec(args)
	case "history":
		return runHistoryNoun(args)
	case "system":
		return runSystemNoun(args)
	case "config":
		return runConfigNoun(args)
	case "version", "--version":
		return runVersion(args)
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
	fmt.Fprint(w, `ipfsbridge - typed IPFS calls over a command-line runtime

Usage:
  ipfsbridge <noun> <action> [flags]

Operation Commands:
  op list               List supported operations
  op show <name>        Describe one operation and its parameters
  op encode <name> k=v  Print the command line without running it
  op run <name> k=v     Encode and dispatch one operation
  exec <line>           Pass a raw command line through to the runtime

History Commands:
  history list          List recorded dispatches
  history show <id>     Show one recorded dispatch
  history prune         Delete old dispatch records

System Commands:
  system serve          Run the HTTP API in the foreground
  system watch          Live dispatch monitor (TUI)
  system doctor         Check configuration against this machine

Config Commands:
  config show           Print the effective configuration
  config check          Validate configuration and integrity
  config get <path>     Read one value (dot notation)
  config set <path> <v> Write one value, validated and rolled back on failure
  config lock           Write the integrity manifest (.checksums)
  config token          Mint a scoped API token

General:
  version [--json]      Show version information
  help                  Show this help message

Use 'ipfsbridge <noun> help' for resource-specific flags.
`)
}

// --- version ---

type versionInfo struct {
	Version    string `json:"version"`
	APIVersion string `json:"api_version"`
	Commit     string `json:"commit"`
	BuildTime  string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		return fail(fmt.Errorf("flag error: %w", err))
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: ipfsbridge version [--json]")
		return 1
	}

	info := currentVersionInfo()
	if *jsonOut {
		return printJSON(info)
	}

	fmt.Printf("ipfsbridge %s\n", info.Version)
	fmt.Printf("api: %s\n", info.APIVersion)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:    strings.TrimSpace(version),
		APIVersion: op.APIVersion,
		Commit:     "unknown",
		BuildTime:  "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	commit := strings.TrimSpace(gitCommit)
	if commit == "" || commit == "unknown" {
		commit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if commit != "" {
		info.Commit = shortenCommit(commit)
	}

	built := strings.TrimSpace(buildDate)
	if built == "" || built == "unknown" {
		built = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if t, ok := normalizeBuildTimeUTC(built); ok {
		info.BuildTime = t
	}
	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func normalizeBuildTimeUTC(raw string) (string, bool) {
	if raw == "" || raw == "unknown" {
		return "", false
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return "", false
	}
	return t.UTC().Format(time.RFC3339), true
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

// --- shared helpers ---

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

// fail prints err the way every command reports errors and returns 1.
func fail(err error) int {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return 1
}

func printJSON(v any) int {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fail(fmt.Errorf("render JSON: %w", err))
	}
	fmt.Println(string(data))
	return 0
}

// loadConfig discovers and loads configuration, then sets up logging.
func loadConfig(configPath string) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, err
	}
	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	return cfg, nil
}

// buildRuntime constructs the runtime cfg selects. The embedded runtime
// needs an entry function and is only available to library callers.
func buildRuntime(cfg *config.Config) (runtime.Runtime, error) {
	rc := cfg.Runtime
	switch rc.Kind {
	case config.RuntimeExec:
		return runtime.NewExec(runtime.ExecConfig{
			Binary:      rc.Binary,
			Repo:        rc.Repo,
			Env:         rc.Env,
			GracePeriod: rc.GracePeriod,
			MaxOutput:   rc.MaxOutput,
			Reentrant:   rc.Reentrant,
		}), nil
	case config.RuntimeHTTP:
		return runtime.NewHTTP(runtime.HTTPConfig{
			BaseURL:   rc.APIURL,
			MaxOutput: rc.MaxOutput,
		}), nil
	case config.RuntimeEmbedded:
		return nil, fmt.Errorf("runtime kind %q is only available when linking the library; use exec or http", rc.Kind)
	default:
		return nil, fmt.Errorf("unknown runtime kind %q", rc.Kind)
	}
}

// bridge bundles what a dispatching command needs. Close releases the
// history database.
type bridge struct {
	client  *ipfs.Client
	history *history.Store
	db      *sql.DB
}

func (b *bridge) Close() {
	if b.db != nil {
		_ = b.db.Close()
	}
}

// openHistory opens the dispatch log, or returns nil when history is
// disabled.
func openHistory(ctx context.Context, cfg *config.Config) (*history.Store, *sql.DB, error) {
	if !cfg.History.Enabled {
		return nil, nil, nil
	}
	db, err := storage.OpenSQLite(ctx, cfg.History.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open history: %w", err)
	}
	return history.New(db), db, nil
}

func newBridge(ctx context.Context, cfg *config.Config, pub dispatch.Publisher) (*bridge, error) {
	rt, err := buildRuntime(cfg)
	if err != nil {
		return nil, err
	}

	d := dispatch.New(rt, dispatch.Config{
		Timeouts:       cfg.OpTimeouts(),
		DefaultTimeout: cfg.Runtime.Timeout,
		LockFile:       cfg.Runtime.LockFile,
	})
	if pub != nil {
		d.WithPublisher(pub)
	}

	b := &bridge{client: ipfs.New(d)}
	store, db, err := openHistory(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if store != nil {
		d.WithRecorder(store)
		b.history, b.db = store, db
	}
	return b, nil
}
