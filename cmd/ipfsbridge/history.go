package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mattjoyce/ipfsbridge/internal/config"
	"github.com/mattjoyce/ipfsbridge/internal/history"
	"github.com/mattjoyce/ipfsbridge/internal/inspect"
	"github.com/mattjoyce/ipfsbridge/pkg/dispatch"
	"github.com/mattjoyce/ipfsbridge/pkg/op"
)

func runHistoryNoun(args []string) int {
	if len(args) < 1 {
		printHistoryNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printHistoryNounHelp(os.Stdout)
		return 0
	}

	action, actionArgs := args[0], args[1:]
	switch action {
	case "list", "ls":
		return runHistoryList(actionArgs)
	case "show":
		return runHistoryShow(actionArgs)
	case "prune":
		return runHistoryPrune(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown history action: %s\n", action)
		return 1
	}
}

func printHistoryNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: ipfsbridge history <action> [--config P]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Actions:")
	fmt.Fprintln(w, "  list [--op NAME] [--status S] [--since D] [--limit N] [--json]")
	fmt.Fprintln(w, "  show [--json] <id>")
	fmt.Fprintln(w, "  prune [--older-than D]    Defaults to history.retention")
}

func openHistoryForTool(cfg *config.Config) (*history.Store, func(), error) {
	if !cfg.History.Enabled {
		return nil, nil, fmt.Errorf("history is disabled (history.enabled: false)")
	}
	store, db, err := openHistory(context.Background(), cfg)
	if err != nil {
		return nil, nil, err
	}
	return store, func() { _ = db.Close() }, nil
}

func runHistoryList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	opName := fs.String("op", "", "Only dispatches of this operation")
	status := fs.String("status", "", "Only dispatches with this status (succeeded, failed, error)")
	since := fs.Duration("since", 0, "Only dispatches started within this window")
	limit := fs.Int("limit", 20, "Maximum number of records")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		return fail(fmt.Errorf("flag error: %w", err))
	}

	f := history.Filter{Status: dispatch.Status(*status), Limit: *limit}
	if *opName != "" {
		if *opName == string(op.Raw) {
			f.Op = op.Raw
		} else {
			d, err := op.Lookup(*opName)
			if err != nil {
				return fail(err)
			}
			f.Op = d.ID
		}
	}
	switch f.Status {
	case "", dispatch.StatusSucceeded, dispatch.StatusFailed, dispatch.StatusError:
	default:
		return fail(fmt.Errorf("unknown status %q", *status))
	}
	if *since > 0 {
		f.Since = time.Now().Add(-*since)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return fail(err)
	}
	store, closeDB, err := openHistoryForTool(cfg)
	if err != nil {
		return fail(err)
	}
	defer closeDB()

	recs, err := store.List(context.Background(), f)
	if err != nil {
		return fail(err)
	}
	if *jsonOut {
		return printJSON(recs)
	}
	if len(recs) == 0 {
		fmt.Println("No dispatches recorded.")
		return 0
	}

	fmt.Printf("%-36s %-20s %-16s %-9s %4s %8s  %s\n", "ID", "STARTED", "OP", "STATUS", "EXIT", "TIME", "LINE")
	for _, r := range recs {
		fmt.Printf("%-36s %-20s %-16s %-9s %4d %8s  %s\n",
			r.ID,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Op,
			r.Status,
			r.ExitCode,
			r.Duration.Round(time.Millisecond),
			r.Line,
		)
	}
	return 0
}

func runHistoryShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		return fail(fmt.Errorf("flag error: %w", err))
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: ipfsbridge history show [--json] <id>")
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return fail(err)
	}
	store, closeDB, err := openHistoryForTool(cfg)
	if err != nil {
		return fail(err)
	}
	defer closeDB()

	build := inspect.BuildReport
	if *jsonOut {
		build = inspect.BuildJSONReport
	}
	out, err := build(context.Background(), store, fs.Arg(0))
	if errors.Is(err, history.ErrNotFound) {
		return fail(fmt.Errorf("dispatch %s not found", fs.Arg(0)))
	}
	if err != nil {
		return fail(err)
	}
	fmt.Println(strings.TrimRight(out, "\n"))
	return 0
}

func runHistoryPrune(args []string) int {
	fs := flag.NewFlagSet("prune", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	olderThan := fs.Duration("older-than", 0, "Delete records older than this (default: history.retention)")
	if err := fs.Parse(args); err != nil {
		return fail(fmt.Errorf("flag error: %w", err))
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return fail(err)
	}
	age := *olderThan
	if age <= 0 {
		age = cfg.History.Retention
	}
	if age <= 0 {
		return fail(fmt.Errorf("no retention configured; pass --older-than"))
	}

	store, closeDB, err := openHistoryForTool(cfg)
	if err != nil {
		return fail(err)
	}
	defer closeDB()

	n, err := store.Prune(context.Background(), time.Now().Add(-age))
	if err != nil {
		return fail(err)
	}
	fmt.Printf("Pruned %d dispatch record(s) older than %s.\n", n, age)
	return 0
}
