package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/opsdeck/opsdeck/internal/buildinfo"
)

const usageText = `opsdeck is the CLI for opsdeckd.

Usage:
  opsdeck --version
  opsdeck [--addr HOST:PORT] [--json] [--timeout DURATION] status
  opsdeck [--addr HOST:PORT] [--json] [--timeout DURATION] ops [--limit <n>]
  opsdeck [--addr HOST:PORT] [--json] [--timeout DURATION] vm list
  opsdeck [--addr HOST:PORT] [--json] [--timeout DURATION] vm create [--name <name>]
  opsdeck [--addr HOST:PORT] [--json] [--timeout DURATION] vm delete <id> [--force]
  opsdeck [--addr HOST:PORT] [--json] [--timeout DURATION] vm ssh-key <id>
  opsdeck [--addr HOST:PORT] [--json] [--timeout DURATION] vm sync
  opsdeck [--addr HOST:PORT] [--json] [--timeout DURATION] config list
  opsdeck [--addr HOST:PORT] [--json] [--timeout DURATION] config create --name <name> --domain <domain> --repo <owner/repo> --vm <id>
  opsdeck [--addr HOST:PORT] [--json] [--timeout DURATION] config update <name> --name <name> --domain <domain> --repo <owner/repo> --vm <id>
  opsdeck [--addr HOST:PORT] [--json] [--timeout DURATION] config delete <name> [--force]
  opsdeck [--addr HOST:PORT] [--json] [--timeout DURATION] deploy frontend --config <name>
  opsdeck [--addr HOST:PORT] [--json] [--timeout DURATION] deploy functions --repo <owner/repo>
  opsdeck [--addr HOST:PORT] [--json] [--timeout DURATION] deploy ssl --config <name>
  opsdeck [--addr HOST:PORT] [--json] [--timeout DURATION] deploy database
  opsdeck [--addr HOST:PORT] [--json] [--timeout DURATION] deploy migrate --repo <owner/repo> [--schema-from <s>] [--schema-to <s>]
  opsdeck [--addr HOST:PORT] [--json] [--timeout DURATION] quiz list
  opsdeck [--addr HOST:PORT] [--json] [--timeout DURATION] quiz show <slug>
  opsdeck [--addr HOST:PORT] [--json] [--timeout DURATION] quiz run <slug>
  opsdeck [--addr HOST:PORT] [--json] [--timeout DURATION] draft save --file <path>
  opsdeck [--addr HOST:PORT] [--json] [--timeout DURATION] draft list
  opsdeck [--addr HOST:PORT] [--json] [--timeout DURATION] draft show <slug>
  opsdeck [--addr HOST:PORT] [--json] [--timeout DURATION] draft delete <slug> [--force]
  opsdeck [--addr HOST:PORT] [--json] [--timeout DURATION] draft goals <slug>
  opsdeck [--addr HOST:PORT] [--json] [--timeout DURATION] chat new
  opsdeck [--addr HOST:PORT] [--json] [--timeout DURATION] chat list
  opsdeck [--addr HOST:PORT] [--json] [--timeout DURATION] chat history <conversation>
  opsdeck [--addr HOST:PORT] [--json] [--timeout DURATION] chat send <conversation> <message...>
  opsdeck [--addr HOST:PORT] [--json] [--timeout DURATION] chat reset <conversation> [--force]

Global Flags:
  --addr HOST:PORT  Address of the opsdeckd listener (default 127.0.0.1:8960)
  --json            Output json
  --timeout         Request timeout (e.g. 30s, 2m)
`

const defaultRequestTimeout = 30 * time.Second

type globalOptions struct {
	addr        string
	jsonOutput  bool
	showVersion bool
	timeout     time.Duration
}

type commonFlags struct {
	addr       string
	jsonOutput bool
	timeout    time.Duration
}

func main() {
	opts, args, err := parseGlobal(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		printUsage()
		os.Exit(2)
	}
	if opts.showVersion {
		fmt.Println(buildinfo.String())
		return
	}
	if len(args) == 0 || isHelpToken(args[0]) {
		printUsage()
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	base := commonFlags{addr: opts.addr, jsonOutput: opts.jsonOutput, timeout: opts.timeout}
	if err := dispatch(ctx, args, base); err != nil {
		if errors.Is(err, errHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func parseGlobal(args []string) (globalOptions, []string, error) {
	opts := globalOptions{addr: defaultAddr}
	fs := flag.NewFlagSet("opsdeck", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&opts.addr, "addr", defaultAddr, "address of the opsdeckd listener")
	fs.BoolVar(&opts.jsonOutput, "json", false, "output json")
	fs.DurationVar(&opts.timeout, "timeout", defaultRequestTimeout, "request timeout (e.g. 30s, 2m)")
	fs.BoolVar(&opts.showVersion, "version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return opts, nil, err
	}
	if opts.addr == "" {
		opts.addr = defaultAddr
	}
	return opts, fs.Args(), nil
}

func dispatch(ctx context.Context, args []string, base commonFlags) error {
	switch args[0] {
	case "status":
		return runStatusCommand(ctx, args[1:], base)
	case "ops":
		return runOpsCommand(ctx, args[1:], base)
	case "vm":
		return runVMCommand(ctx, args[1:], base)
	case "config":
		return runConfigCommand(ctx, args[1:], base)
	case "deploy":
		return runDeployCommand(ctx, args[1:], base)
	case "quiz":
		return runQuizCommand(ctx, args[1:], base)
	case "draft":
		return runDraftCommand(ctx, args[1:], base)
	case "chat":
		return runChatCommand(ctx, args[1:], base)
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printUsage() {
	_, _ = fmt.Fprint(os.Stdout, usageText)
}

func isHelpToken(arg string) bool {
	switch arg {
	case "help", "-h", "--help":
		return true
	default:
		return false
	}
}
