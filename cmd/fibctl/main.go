package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/danmuck/fibctl/internal/agent"
	"github.com/danmuck/fibctl/internal/config"
	"github.com/danmuck/fibctl/internal/gateway"
	"github.com/danmuck/fibctl/internal/logging"
	"github.com/danmuck/fibctl/internal/observability"
	"github.com/rs/zerolog"
)

const usage = `usage: fibctl [flags] <command> [args]

commands:
  ports                       list port link states
  routes                      list the unicast route table
  sync [routes.json|-]        replace this client's routes (empty list without a file)
  add <prefix> <nexthop>      add a unicast route
  delete <prefix>             delete a unicast route
  call <method>               invoke a no-argument method and print the raw reply
  serve                       run the HTTP gateway
  config                      print the effective configuration

flags:
`

var errUsage = errors.New("usage")

type options struct {
	configPath string
	addr       string
	jsonOut    bool
	timeout    time.Duration
}

func main() {
	logging.ConfigureRuntime()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("fibctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var opts options
	fs.StringVar(&opts.configPath, "config", "", "path to a TOML config file")
	fs.StringVar(&opts.addr, "addr", "", "agent address host:port (overrides config)")
	fs.BoolVar(&opts.jsonOut, "json", false, "print JSON instead of text")
	fs.DurationVar(&opts.timeout, "timeout", 30*time.Second, "bound for one-shot commands")
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return 2
	}

	if err := dispatch(ctx, opts, rest[0], rest[1:], stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintf(stderr, "fibctl: %v\n", err)
			fs.Usage()
			return 2
		}
		fmt.Fprintf(stderr, "fibctl: %v\n", err)
		return 1
	}
	return 0
}

func loadConfig(opts options) (config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if addr := strings.TrimSpace(opts.addr); addr != "" {
		cfg.Agent.Address = addr
	}
	return cfg, config.Validate(cfg)
}

func dispatch(ctx context.Context, opts options, cmd string, args []string, stdout io.Writer) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if cmd == "config" {
		out, err := config.Render(cfg)
		if err != nil {
			return err
		}
		_, err = stdout.Write(out)
		return err
	}
	if err := checkArgs(cmd, args); err != nil {
		return err
	}

	logger := observability.InitLogger("fibctl")
	agentCfg, err := cfg.AgentClient()
	if err != nil {
		return err
	}
	client, err := agent.New(agentCfg, agent.WithLogger(logger))
	if err != nil {
		return err
	}
	defer client.Close()

	if cmd == "serve" {
		return serve(ctx, cfg, client, logger)
	}

	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}
	out := printer{w: stdout, json: opts.jsonOut}

	switch cmd {
	case "ports":
		ports, err := client.PortStats(ctx)
		if err != nil {
			return err
		}
		return out.ports(ports)
	case "routes":
		routes, err := client.RouteTable(ctx)
		if err != nil {
			return err
		}
		return out.routes(routes)
	case "sync":
		routes, err := readRoutes(args)
		if err != nil {
			return err
		}
		if err := client.SyncFib(ctx, routes); err != nil {
			return err
		}
		return out.status(fmt.Sprintf("synced %d routes", len(routes)))
	case "add":
		if err := client.AddRoute(ctx, args[0], args[1]); err != nil {
			return err
		}
		return out.status(fmt.Sprintf("added %s via %s", args[0], args[1]))
	case "delete":
		if err := client.DeleteRoute(ctx, args[0]); err != nil {
			return err
		}
		return out.status("deleted " + args[0])
	case "call":
		v, err := client.Call(ctx, args[0])
		if err != nil {
			return err
		}
		return out.value(v.Interface())
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
}

func checkArgs(cmd string, args []string) error {
	want := map[string]int{"ports": 0, "routes": 0, "add": 2, "delete": 1, "call": 1, "serve": 0}
	if cmd == "sync" {
		if len(args) > 1 {
			return fmt.Errorf("%w: sync takes at most one file", errUsage)
		}
		return nil
	}
	n, ok := want[cmd]
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
	if len(args) != n {
		return fmt.Errorf("%w: %s takes %d argument(s), got %d", errUsage, cmd, n, len(args))
	}
	return nil
}

func serve(ctx context.Context, cfg config.Config, client *agent.Client, logger zerolog.Logger) error {
	timeout, err := cfg.GatewayTimeout()
	if err != nil {
		return err
	}
	srv := gateway.New(cfg.Gateway.Name, client,
		gateway.WithLogger(logger),
		gateway.WithCORSOrigins(cfg.Gateway.CorsOrigins),
		gateway.WithRequestTimeout(timeout),
	)
	return srv.Serve(ctx, cfg.Gateway.Listen)
}

// readRoutes loads a JSON array of {"from","to"} routes from a file or "-"
// for stdin.
func readRoutes(args []string) ([]agent.Route, error) {
	if len(args) == 0 {
		return []agent.Route{}, nil
	}
	var r io.Reader
	if args[0] == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(args[0])
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var routes []agent.Route
	if err := json.NewDecoder(r).Decode(&routes); err != nil {
		return nil, fmt.Errorf("parse routes %s: %w", args[0], err)
	}
	return routes, nil
}
