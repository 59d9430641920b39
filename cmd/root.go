// Package cmd wires up the CLI flags and dispatches to the echosock core.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	flag "github.com/spf13/pflag"

	"echosock/config"
	"echosock/internal/core"
	"echosock/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X echosock/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// stdout receives --version, --dry-run and usage output.
var stdout io.Writer = os.Stdout //nolint:gochecknoglobals

// Execute parses args and runs the selected echosock mode.
func Execute(ctx context.Context, args []string) error {
	var fl config.Config
	fs := flag.NewFlagSet("echosock", flag.ContinueOnError)

	// ── connection ───────────────────────────────────────────────
	fs.BoolVarP(&fl.Listen, "listen", "l", false, "Listen mode: run the echo server")
	fs.IntVarP(&fl.Port, "port", "p", 0, "Port to listen on (0 picks a free port)")
	fs.StringVarP(&fl.Host, "source", "s", "", "Bind address in listen mode (numeric IPv4)")

	// ── server ───────────────────────────────────────────────────
	fs.IntVarP(&fl.Backlog, "backlog", "b", config.DefaultBacklog, "Listen queue length")
	fs.IntVar(&fl.ChunkSize, "chunk", config.DefaultChunkSize, "Largest single read echoed per connection")
	fs.StringVar(&fl.Spawner, "spawner", config.DefaultSpawner, `Worker spawner: "pool" or "go"`)
	fs.StringVar(&fl.AdminAddr, "admin", "", "Serve /metrics, /live and /ready on host:port")

	// ── client ───────────────────────────────────────────────────
	fs.StringVarP(&fl.Message, "message", "m", "", "Payload to send in connect mode (default: stdin)")

	// ── sources ──────────────────────────────────────────────────
	fs.StringVar(&fl.ConfigFile, "config", "", "ini config file (env ECHOSOCK_CONFIG)")

	// ── output ───────────────────────────────────────────────────
	fs.CountVarP(&fl.Verbose, "verbose", "v", "Increase verbosity (repeatable)")

	var quiet, dryRun, showVersion, showHelp bool
	fs.BoolVarP(&quiet, "quiet", "q", false, "Suppress all log output")
	fs.BoolVar(&dryRun, "dry-run", false, "Validate configuration, print it and exit")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showHelp || len(args) == 0 {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Fprintf(stdout, "echosock %s\n", version)
		return nil
	}

	// ── layer sources: defaults < file < env < flags ─────────────
	cfg := config.Defaults()
	cfg.ConfigFile = fl.ConfigFile
	if cfg.ConfigFile == "" {
		cfg.ConfigFile = config.ConfigFileFromEnv()
	}
	if cfg.ConfigFile != "" {
		if err := config.LoadFile(cfg, cfg.ConfigFile); err != nil {
			return err
		}
	}
	config.LoadFromEnv(cfg)
	applyFlags(cfg, &fl, fs)
	if quiet {
		cfg.Verbose = int(util.LogQuiet)
	}

	// ── positional arguments ─────────────────────────────────────
	if err := parsePositional(cfg, fs.Args()); err != nil {
		return err
	}

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.Validate(); err != nil {
		return err
	}
	if dryRun {
		printConfig(cfg)
		return nil
	}

	// ── build and run ────────────────────────────────────────────
	logger := util.NewLogger(cfg.Verbose)
	logger.SetTimestamps(cfg.Listen)

	mode, err := core.Build(cfg, logger)
	if err != nil {
		return err
	}
	return mode.Run(ctx)
}

// ── helpers ──────────────────────────────────────────────────────────

// applyFlags copies every flag the user set explicitly from fl to cfg.
func applyFlags(cfg, fl *config.Config, fs *flag.FlagSet) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.Listen = fl.Listen
		case "port":
			cfg.Port = fl.Port
		case "source":
			cfg.Host = fl.Host
		case "backlog":
			cfg.Backlog = fl.Backlog
		case "chunk":
			cfg.ChunkSize = fl.ChunkSize
		case "spawner":
			cfg.Spawner = fl.Spawner
		case "admin":
			cfg.AdminAddr = fl.AdminAddr
		case "message":
			cfg.Message = fl.Message
		case "verbose":
			cfg.Verbose = config.DefaultVerbosity + fl.Verbose
		}
	})
}

func parsePositional(cfg *config.Config, remaining []string) error {
	if cfg.Listen {
		switch len(remaining) {
		case 0: // echosock -l -p PORT
		case 1: // echosock -l PORT
			return setPort(cfg, remaining[0])
		case 2: // echosock -l ADDR PORT
			cfg.Host = remaining[0]
			return setPort(cfg, remaining[1])
		default:
			return fmt.Errorf("too many arguments for listen mode")
		}
		return nil
	}

	// Connect mode: host port
	switch len(remaining) {
	case 0:
		if cfg.Host == "" {
			return fmt.Errorf("hostname required (use --help for usage)")
		}
		return nil
	case 1:
		return fmt.Errorf("port required")
	case 2:
		cfg.Host = remaining[0]
		return setPort(cfg, remaining[1])
	default:
		return fmt.Errorf("too many arguments for connect mode")
	}
}

func setPort(cfg *config.Config, s string) error {
	p, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("port %q: not a number", s)
	}
	cfg.Port = p
	return nil
}

func printConfig(cfg *config.Config) {
	mode := "connect"
	if cfg.Listen {
		mode = "listen"
	}
	fmt.Fprintf(stdout, "mode:    %s\n", mode)
	fmt.Fprintf(stdout, "address: %s\n", util.FormatAddr(cfg.Host, cfg.Port))
	if cfg.Listen {
		fmt.Fprintf(stdout, "backlog: %d\n", cfg.Backlog)
		fmt.Fprintf(stdout, "chunk:   %d\n", cfg.ChunkSize)
		fmt.Fprintf(stdout, "spawner: %s\n", cfg.Spawner)
		if cfg.AdminAddr != "" {
			fmt.Fprintf(stdout, "admin:   %s\n", cfg.AdminAddr)
		}
	}
	if cfg.ConfigFile != "" {
		fmt.Fprintf(stdout, "config:  %s\n", cfg.ConfigFile)
	}
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(stdout, `echosock – TCP echo server v%s

Accepts IPv4 stream connections and echoes the first chunk each peer
sends, one worker per connection.

Usage:
  echosock -l [-p <port>] [options]            Serve
  echosock -l [<addr>] <port> [options]        Serve on addr:port
  echosock [options] <host> <port>             One-shot client

Options:
`, version)
	fs.SetOutput(stdout)
	fs.PrintDefaults()
	fmt.Fprintf(stdout, `
Examples:
  echosock -l -p 4000                          Echo on every address
  echosock -l -s 127.0.0.1 -p 4000 -v          Loopback only, verbose
  echosock -l -p 4000 --admin 127.0.0.1:9100   With metrics and health
  echosock 127.0.0.1 4000 -m hello             Send "hello", print reply
  echo hi | echosock 127.0.0.1 4000            Send stdin

Environment:
  ECHOSOCK_HOST ECHOSOCK_PORT ECHOSOCK_LISTEN ECHOSOCK_BACKLOG
  ECHOSOCK_CHUNK ECHOSOCK_SPAWNER ECHOSOCK_ADMIN ECHOSOCK_VERBOSE
  ECHOSOCK_CONFIG
`)
}
