package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/geckoctl/internal/logging"
	"github.com/danmuck/geckoctl/internal/observability"
	"github.com/danmuck/geckoctl/internal/protocol"
	"github.com/rs/zerolog"
)

type options struct {
	config    string
	host      string
	port      int
	byteOrder string
	logLevel  string
	attempts  int
}

const usage = `usage: geckoctl [flags] <command> [args]

commands:
  status                         agent run state
  version                        agent, OS and kernel versions
  info                           title type, title id, game pid and name
  peek <addr>                    read the word at addr
  poke <addr> <value> [8|16|32]  write a value (default width 32)
  dump <start> <end> <file>      read [start, end) into file
  upload <start> <file>          write file to memory at start
  cheat add <file>               send a cheat description, prints its id
  cheat enable|disable|remove <id>
  cheat list
  regions                        print the memory map
  log                            fetch and drain the agent log
  patch-wireless                 apply the agent's wireless patch
  dump-regions <dir>             dump every mapped region into dir
  serve                          HTTP bridge with /metrics

flags:
`

func main() {
	opts := parseFlags()

	logging.ConfigureRuntime()
	logger := observability.InitLogger("geckoctl")

	cfg, err := resolveConfig(opts)
	if err != nil {
		fatalf("%v", err)
	}
	if cfg.LogLevel != "" {
		level, _ := logging.ParseLevel(cfg.LogLevel)
		zerolog.SetGlobalLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, flag.Args(), os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			flag.Usage()
			os.Exit(2)
		}
		logger.Debug().Err(err).Msg("geckoctl failed")
		fatalf("%v", err)
	}
}

func parseFlags() options {
	var opts options
	flag.StringVar(&opts.config, "config", "", "path to a geckoctl TOML config")
	flag.StringVar(&opts.host, "host", "", "agent host (overrides config)")
	flag.IntVar(&opts.port, "port", 0, "agent port (overrides config)")
	flag.StringVar(&opts.byteOrder, "byte-order", "", "wire byte order: little | big")
	flag.StringVar(&opts.logLevel, "log-level", "", "log level: trace | debug | info | warn | error")
	flag.IntVar(&opts.attempts, "attempts", 0, "connect attempts with backoff")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	return opts
}

// resolveConfig layers flags over the optional config file.
func resolveConfig(opts options) (cliConfig, error) {
	cfg := defaultCLIConfig()
	if opts.config != "" {
		loaded, err := loadCLIConfig(opts.config)
		if err != nil {
			return cliConfig{}, err
		}
		cfg = loaded
	}
	if opts.host != "" {
		cfg.Session.Host = opts.host
	}
	if opts.port != 0 {
		cfg.Session.Port = opts.port
	}
	if opts.byteOrder != "" {
		codec, err := protocol.ParseByteOrder(opts.byteOrder)
		if err != nil {
			return cliConfig{}, err
		}
		cfg.Session.ByteOrder = codec
	}
	if opts.logLevel != "" {
		if _, ok := logging.ParseLevel(opts.logLevel); !ok {
			return cliConfig{}, fmt.Errorf("unknown log level %q", opts.logLevel)
		}
		cfg.LogLevel = opts.logLevel
	}
	if opts.attempts > 0 {
		cfg.ConnectAttempts = opts.attempts
	}
	if cfg.Session.Host == "" {
		return cliConfig{}, fmt.Errorf("no agent host: pass -host or set host in -config")
	}
	return cfg, nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "geckoctl: "+format+"\n", args...)
	os.Exit(1)
}
