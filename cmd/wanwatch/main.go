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

	"go.uber.org/zap"

	"wanwatch/internal/addrutil"
	"wanwatch/internal/api"
	"wanwatch/internal/collector"
	"wanwatch/internal/config"
	"wanwatch/internal/execx"
	"wanwatch/internal/logging"
	"wanwatch/internal/metrics"
	"wanwatch/internal/model"
	"wanwatch/internal/probe"
	"wanwatch/internal/server"
	"wanwatch/internal/store"
)

const usage = `wanwatch - multi-WAN link telemetry collector

Usage:
  wanwatch collect --config <path> [--format json|table|csv] [--out <file>] [--concurrent]
  wanwatch serve --config <path> [--listen 0.0.0.0:5000]
  wanwatch doctor --config <path>
  wanwatch neighbors --server <url> [--token <jwt>] [--format json|table|csv]
  wanwatch token --config <path> [--subject dashboard] [--ttl 720h]
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cmd := os.Args[1]
	switch cmd {
	case "-h", "--help", "help":
		fmt.Print(usage)
	case "collect":
		handleCollect(os.Args[2:])
	case "serve":
		handleServe(os.Args[2:])
	case "doctor":
		handleDoctor(os.Args[2:])
	case "neighbors":
		handleNeighbors(os.Args[2:])
	case "token":
		handleToken(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

func handleCollect(args []string) {
	fs := flag.NewFlagSet("collect", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	format := fs.String("format", "json", "output format: json, table or csv")
	out := fs.String("out", "", "write output to file instead of stdout")
	host := fs.String("host", "", "router host override")
	concurrent := fs.Bool("concurrent", false, "collect interfaces on parallel sessions")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal(err)
	}
	if *host != "" {
		cfg.Router.Host = *host
	}
	if *concurrent {
		cfg.Collector.Concurrent = true
	}
	if err := config.Validate(cfg); err != nil {
		fatal(err)
	}

	log := mustLogger(cfg)
	defer log.Sync()

	dialer, err := newDialer(cfg.Router, log)
	if err != nil {
		fatal(err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	records, err := newCollector(cfg, log).Run(ctx, dialer)
	if err != nil {
		fatal(err)
	}

	w := io.Writer(os.Stdout)
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			fatal(err)
		}
		defer f.Close()
		w = f
	}
	if err := writeRecords(w, *format, records); err != nil {
		fatal(err)
	}
	if *out != "" {
		fmt.Fprintf(os.Stdout, "wrote %d records to %s\n", len(records), *out)
	}
}

func handleServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	listen := fs.String("listen", "", "listen address override")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal(err)
	}
	if *listen != "" {
		cfg.API.Listen = *listen
	}
	if err := config.Validate(cfg); err != nil {
		fatal(err)
	}
	if err := config.ValidateAPI(cfg.API); err != nil {
		fatal(err)
	}

	log := mustLogger(cfg)
	defer log.Sync()

	dialer, err := newDialer(cfg.Router, log)
	if err != nil {
		fatal(err)
	}
	if cfg.API.JWTSecret == "" {
		log.Warn("api.jwt_secret is empty; neighbor endpoints are unauthenticated")
	}

	col := newCollector(cfg, log)
	collect := func(ctx context.Context) ([]model.NeighborRecord, error) {
		return col.Run(ctx, dialer)
	}
	health := api.HealthResponse{Transport: cfg.Router.Transport, Router: cfg.Router.Host}
	srv := server.New(cfg.API, collect, health, log)

	ctx, cancel := signalContext()
	defer cancel()
	if err := srv.ListenAndServe(ctx); err != nil {
		fatal(err)
	}
}

func handleDoctor(args []string) {
	fs := flag.NewFlagSet("doctor", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal(err)
	}
	if err := config.Validate(cfg); err != nil {
		fatal(err)
	}

	log := mustLogger(cfg)
	defer log.Sync()

	dialer, err := newDialer(cfg.Router, log)
	if err != nil {
		fatal(err)
	}

	ctx, cancel := signalContext()
	defer cancel()
	ctx, cancelCycle := context.WithTimeout(ctx, cfg.Collector.CycleTimeout)
	defer cancelCycle()

	sess, err := dialer.Dial(ctx)
	if err != nil {
		fatal(err)
	}
	defer sess.Close()

	fmt.Fprintf(os.Stdout, "transport=%s host=%s\n", cfg.Router.Transport, cfg.Router.Host)
	if !runDoctor(ctx, os.Stdout, sess, cfg.Collector, log) {
		os.Exit(1)
	}
}

// runDoctor runs each router command once and reports whether its output has
// the shape the parsers expect.
func runDoctor(ctx context.Context, w io.Writer, r execx.Runner, cfg config.CollectorConfig, log *zap.Logger) bool {
	ok := true
	report := func(name string, pass bool, detail string) {
		status := "ok"
		if !pass {
			status = "FAIL"
			ok = false
		}
		fmt.Fprintf(w, "%-14s %-4s %s\n", name, status, detail)
	}

	ifaces := probe.ParseActiveInterfaces(execx.Exec(ctx, r, log, probe.StatusCommand), cfg.MaxInterfaces)
	report("mwan3", len(ifaces) > 0, fmt.Sprintf("active=%s", strings.Join(ifaces, ",")))
	if len(ifaces) == 0 {
		return false
	}
	iface := ifaces[0]

	gw, gwOK := probe.ParseDefaultGateway(execx.Exec(ctx, r, log, probe.GatewayCommand(iface)))
	report("ip route", gwOK, fmt.Sprintf("iface=%s gateway=%s", iface, gw))

	st := probe.ParseInterfaceStatus(execx.Exec(ctx, r, log, probe.IfstatusCommand(iface)))
	report("ifstatus", st.Address != model.UnknownAddr && st.UptimeOK,
		fmt.Sprintf("address=%s uptime_days=%d", st.Address, st.UptimeDays()))

	target, targetOK := probe.SelectTarget(gw, st.Address)
	if targetOK {
		ps := probe.ParsePingStats(execx.Exec(ctx, r, log, probe.PingCommand(cfg.StatsCount, cfg.PingTimeoutSec, target)))
		report("ping", ps.LossOK, fmt.Sprintf("target=%s loss=%.0f%% avg_ok=%v", target, ps.LossPercent, ps.AvgOK))
	} else {
		report("ping", false, "no target")
	}

	sampler := probe.NewSampler(nil, cfg.InterfaceMap, cfg.SampleInterval, log)
	dev := sampler.Device(iface)
	_, devOK := probe.ParseNetDevBytes(execx.Exec(ctx, r, log, probe.NetDevCommand), dev)
	report("/proc/net/dev", devOK, fmt.Sprintf("device=%s", dev))
	return ok
}

func handleNeighbors(args []string) {
	fs := flag.NewFlagSet("neighbors", flag.ExitOnError)
	serverURL := fs.String("server", "http://127.0.0.1:5000", "wanwatch API base URL")
	token := fs.String("token", os.Getenv("WANWATCH_TOKEN"), "API token")
	format := fs.String("format", "table", "output format: json, table or csv")
	_ = fs.Parse(args)

	ctx, cancel := signalContext()
	defer cancel()

	records, err := api.NewClient(*serverURL).WithToken(*token).Neighbors(ctx)
	if err != nil {
		fatal(err)
	}
	if err := writeRecords(os.Stdout, *format, records); err != nil {
		fatal(err)
	}
}

func handleToken(args []string) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	subject := fs.String("subject", "dashboard", "token subject")
	ttl := fs.Duration("ttl", 30*24*time.Hour, "token lifetime")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal(err)
	}
	if cfg.API.JWTSecret == "" {
		fatal(errors.New("api.jwt_secret is required to issue tokens"))
	}
	token, err := server.IssueToken([]byte(cfg.API.JWTSecret), *subject, *ttl)
	if err != nil {
		fatal(err)
	}
	fmt.Fprintln(os.Stdout, token)
}

func writeRecords(w io.Writer, format string, records []model.NeighborRecord) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	case "table":
		if err := metrics.WriteTable(w, records); err != nil {
			return err
		}
		s := metrics.Summarize(records)
		if s.Reachable > 0 {
			fmt.Fprintf(w, "\nreachable=%d/%d best=%s latency avg=%.2fms p95=%.2fms loss avg=%.2f%% total=%.2f Mbps\n",
				s.Reachable, s.Count, s.Best, s.AvgLatencyMs, s.P95LatencyMs, s.AvgLossPct, s.TotalMbps)
		}
		return nil
	case "csv":
		return metrics.WriteCSV(w, records)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func newCollector(cfg config.Config, log *zap.Logger) *collector.Collector {
	counters := collector.NetDevFactory
	if cfg.Router.Transport == config.TransportLocal {
		counters = collector.HostFactory
	}
	return collector.New(cfg.Collector, counters, log)
}

func newDialer(cfg config.RouterConfig, log *zap.Logger) (execx.Dialer, error) {
	if cfg.Transport == config.TransportLocal {
		return execx.LocalDialer{}, nil
	}

	addr, ok := addrutil.DialAddr(cfg.Host, cfg.Port)
	if !ok {
		return nil, fmt.Errorf("invalid router host %q", cfg.Host)
	}
	opts := execx.SSHOptions{
		Addr:           addr,
		User:           cfg.User,
		Password:       cfg.Password,
		KeyPath:        cfg.KeyPath,
		DialTimeout:    cfg.DialTimeout,
		CommandTimeout: cfg.CommandTimeout,
	}
	if cfg.KnownHosts != "" {
		hk, err := store.LoadHostKeys(cfg.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("load known hosts: %w", err)
		}
		opts.HostKey = hk.Callback()
	}
	d, err := execx.NewSSHDialer(opts, log)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func mustLogger(cfg config.Config) *zap.Logger {
	log, err := logging.New(cfg.Log)
	if err != nil {
		fatal(err)
	}
	return log
}

func loadConfig(path string) (config.Config, error) {
	return config.Load(path)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signals
		cancel()
	}()
	return ctx, cancel
}

func fatal(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
