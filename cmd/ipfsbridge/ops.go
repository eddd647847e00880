package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mattjoyce/ipfsbridge/internal/api"
	"github.com/mattjoyce/ipfsbridge/pkg/command"
	"github.com/mattjoyce/ipfsbridge/pkg/ipfs"
	"github.com/mattjoyce/ipfsbridge/pkg/op"
	"github.com/mattjoyce/ipfsbridge/pkg/runtime"
)

func runOpNoun(args []string) int {
	if len(args) < 1 {
		printOpNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printOpNounHelp(os.Stdout)
		return 0
	}

	action, actionArgs := args[0], args[1:]
	switch action {
	case "list", "ls":
		return runOpList(actionArgs)
	case "show":
		return runOpShow(actionArgs)
	case "encode":
		return runOpEncode(actionArgs)
	case "run":
		return runOpRun(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown op action: %s\n", action)
		return 1
	}
}

func printOpNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: ipfsbridge op <action>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Actions:")
	fmt.Fprintln(w, "  list [--group G] [--json]            List supported operations")
	fmt.Fprintln(w, "  show [--json] <name>                 Describe one operation")
	fmt.Fprintln(w, "  encode [--json] <name> [key=value]   Print the encoded command line")
	fmt.Fprintln(w, "  run [--config P] [--json] <name> [key=value]")
	fmt.Fprintln(w, "                                       Encode and dispatch one operation")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Names accept any alias: pin_add, ipfs_pin_add, \"pin add\".")
}

func runOpList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	group := fs.String("group", "", "Only list operations in this group")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		return fail(fmt.Errorf("flag error: %w", err))
	}

	var out []api.OpSummary
	for _, d := range op.All() {
		if *group != "" && d.Group != *group {
			continue
		}
		out = append(out, api.OpSummary{
			ID:      d.ID,
			Name:    d.Name(),
			Group:   d.Group,
			Summary: d.Summary,
			Aliases: op.Aliases(d.ID),
			Local:   d.Local,
		})
	}

	if *jsonOut {
		return printJSON(out)
	}
	if len(out) == 0 {
		fmt.Println("No operations match.")
		return 0
	}
	fmt.Printf("%-20s %-10s %s\n", "OPERATION", "GROUP", "SUMMARY")
	for _, s := range out {
		fmt.Printf("%-20s %-10s %s\n", s.ID, s.Group, s.Summary)
	}
	return 0
}

func runOpShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		return fail(fmt.Errorf("flag error: %w", err))
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Usage: ipfsbridge op show [--json] <name>")
		return 1
	}

	d, err := op.Lookup(strings.Join(fs.Args(), " "))
	if err != nil {
		return fail(err)
	}
	if *jsonOut {
		return printJSON(api.OpDetail{Descriptor: d, Name: d.Name(), Aliases: op.Aliases(d.ID)})
	}

	fmt.Printf("%s (%s)\n", d.ID, d.Group)
	fmt.Printf("  command: %s\n", d.Name())
	fmt.Printf("  aliases: %s\n", strings.Join(op.Aliases(d.ID), ", "))
	if d.Summary != "" {
		fmt.Printf("  %s\n", d.Summary)
	}
	if d.Local {
		fmt.Println("  local: no RPC equivalent")
	}
	if len(d.Params) == 0 {
		fmt.Println("  parameters: none")
		return 0
	}
	fmt.Println("  parameters:")
	for _, p := range d.Params {
		fmt.Printf("    %s\n", describeParam(p))
	}
	return 0
}

func describeParam(p op.Param) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-18s %-6s", p.Name, p.Kind)
	switch {
	case p.Positional && p.Required:
		b.WriteString(" positional, required")
	case p.Positional:
		b.WriteString(" positional, optional")
	default:
		fmt.Fprintf(&b, " %s", p.Flag)
	}
	if p.DependsOn != "" {
		fmt.Fprintf(&b, " (only with %s)", p.DependsOn)
	}
	if len(p.Enum) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(p.Enum, "|"))
	}
	if p.Help != "" {
		fmt.Fprintf(&b, "  %s", p.Help)
	}
	return b.String()
}

// encodeArgs resolves "<name> [key=value...]". Multi-word names must be
// quoted ("pin add") or written with an underscore.
func encodeArgs(args []string) (command.Command, error) {
	if len(args) == 0 {
		return command.Command{}, fmt.Errorf("operation name is required")
	}
	d, err := op.Lookup(args[0])
	if err != nil {
		return command.Command{}, err
	}
	values, err := command.ParsePairs(args[1:])
	if err != nil {
		return command.Command{}, err
	}
	return command.Encode(d.ID, values)
}

func runOpEncode(args []string) int {
	fs := flag.NewFlagSet("encode", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output argv, line, length and fingerprint as JSON")
	if err := fs.Parse(args); err != nil {
		return fail(fmt.Errorf("flag error: %w", err))
	}

	c, err := encodeArgs(fs.Args())
	if err != nil {
		return fail(err)
	}
	if *jsonOut {
		return printJSON(api.EncodeResponse{
			Op:          c.Op,
			Argv:        c.Argv(),
			Line:        c.String(),
			Len:         c.Len(),
			Fingerprint: c.Fingerprint(),
		})
	}
	fmt.Println(c.String())
	return 0
}

func runOpRun(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output the result as JSON")
	if err := fs.Parse(args); err != nil {
		return fail(fmt.Errorf("flag error: %w", err))
	}

	c, err := encodeArgs(fs.Args())
	if err != nil {
		return fail(err)
	}
	return dispatchCommand(*configPath, *jsonOut, c)
}

func runExec(args []string) int {
	fs := flag.NewFlagSet("exec", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output the result as JSON")
	if err := fs.Parse(args); err != nil {
		return fail(fmt.Errorf("flag error: %w", err))
	}
	if fs.NArg() == 0 {
		printExecHelp()
		return 1
	}

	// One argument is a whole line to split; several are an argv the
	// calling shell already split.
	var argv []string
	if fs.NArg() == 1 {
		var err error
		if argv, err = ipfs.SplitLine(fs.Arg(0)); err != nil {
			return fail(err)
		}
	} else {
		argv = fs.Args()
		if argv[0] == "ipfs" {
			argv = argv[1:]
		}
	}
	c, err := command.Raw(argv)
	if err != nil {
		return fail(err)
	}

	return dispatchCommand(*configPath, *jsonOut, c)
}

func printExecHelp() {
	fmt.Println("Usage: ipfsbridge exec [--config P] [--json] [--] <command line>")
	fmt.Println()
	fmt.Println("Pass a command line through to the runtime unchanged. A single argument")
	fmt.Println("is split with shell-word rules; a leading \"ipfs\" word is dropped.")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  ipfsbridge exec 'pin ls --type=recursive'")
	fmt.Println("  ipfsbridge exec -- ipfs cat /ipfs/QmHash")
}

// dispatchCommand dispatches c through a bridge built from config and relays
// the result. The process exits with the runtime's status.
func dispatchCommand(configPath string, jsonOut bool, c command.Command) int {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fail(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := newBridge(ctx, cfg, nil)
	if err != nil {
		return fail(err)
	}
	defer b.Close()

	res, err := b.client.Dispatcher().Dispatch(ctx, c)
	var exitErr *runtime.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return fail(err)
	}

	if jsonOut {
		printJSON(api.RunResponse{
			Op:         c.Op,
			Line:       c.String(),
			ExitCode:   res.ExitCode,
			Stdout:     res.Stdout,
			Stderr:     res.Stderr,
			Truncated:  res.Truncated,
			DurationMS: res.Duration.Milliseconds(),
		})
	} else {
		fmt.Fprint(os.Stdout, res.Stdout)
		fmt.Fprint(os.Stderr, res.Stderr)
		if res.Truncated {
			fmt.Fprintln(os.Stderr, "(output truncated)")
		}
	}

	switch {
	case res.ExitCode == 0:
		return 0
	case res.ExitCode < 0 || res.ExitCode > 255:
		return 1
	default:
		return res.ExitCode
	}
}
