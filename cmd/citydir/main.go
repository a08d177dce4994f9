package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"citydir/internal/agent"
	"citydir/internal/api"
	"citydir/internal/config"
	"citydir/internal/directory"
	"citydir/internal/metrics"
	"citydir/internal/model"
	"citydir/internal/server"
)

const usage = `citydir - city directory and command relay

Usage:
  citydir server --config <path> [--listen addr] [--registration strict|overwrite]
  citydir agent --config <path> [--name n] [--directory url] [--command-listen addr]
  citydir list [--directory url]
  citydir info <name> [--directory url]
  citydir register --name <n> --id <id> --address <host:port> [--map m]
  citydir update <id> [--running] [--elapsed s] [--population n] [--cbor]
  citydir command <name> <command...> [--directory url]
  citydir hello <name> [--directory url]
  citydir upload <id> --file <png> [--directory url]
  citydir stats [--config <path>] [--window 1h] [--city name] [--metrics-path p] [--remote]
`

const defaultDirectory = "http://127.0.0.1:3000"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cmd := os.Args[1]
	switch cmd {
	case "-h", "--help", "help":
		fmt.Print(usage)
	case "server":
		handleServer(os.Args[2:])
	case "agent":
		handleAgent(os.Args[2:])
	case "list":
		handleList(os.Args[2:])
	case "info":
		handleInfo(os.Args[2:])
	case "register":
		handleRegister(os.Args[2:])
	case "update":
		handleUpdate(os.Args[2:])
	case "command":
		handleCommand(os.Args[2:])
	case "hello":
		handleHello(os.Args[2:])
	case "upload":
		handleUpload(os.Args[2:])
	case "stats":
		handleStats(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

func handleServer(args []string) {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	listen := fs.String("listen", "", "listen address")
	registration := fs.String("registration", "", "strict or overwrite")
	relayTimeout := fs.Duration("relay-timeout", 0, "relay read timeout")
	uploadDir := fs.String("upload-dir", "", "screenshot directory")
	metricsPath := fs.String("metrics-path", "", "relay metrics CSV path")
	logLevel := fs.String("log-level", "", "debug|info|warn|error")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal(err)
	}
	if cfg.Server == nil {
		cfg.Server = &config.ServerConfig{}
	}
	overrideServer(cfg.Server, *listen, *registration, *uploadDir, *metricsPath, *logLevel)
	if *relayTimeout != 0 {
		cfg.Server.RelayTimeout = *relayTimeout
	}
	config.ApplyDefaults(&cfg)
	if err := config.Validate(cfg); err != nil {
		fatal(err)
	}

	logger, err := config.NewLogger(os.Stderr, cfg.Server.LogLevel)
	if err != nil {
		fatal(err)
	}
	mode, err := directory.ParseRegistrationMode(cfg.Server.Registration)
	if err != nil {
		fatal(err)
	}

	srv, err := server.NewServer(*cfg.Server, directory.New(directory.WithRegistrationMode(mode)), server.WithLogger(logger))
	if err != nil {
		fatal(err)
	}

	ctx, cancel := signalContext()
	defer cancel()
	fatal(srv.ListenAndServe(ctx))
}

func handleAgent(args []string) {
	fs := flag.NewFlagSet("agent", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	name := fs.String("name", "", "city name")
	mapName := fs.String("map", "", "map name")
	dir := fs.String("directory", "", "directory server URL")
	commandListen := fs.String("command-listen", "", "command port listen address")
	advertise := fs.String("advertise", "", "address announced to the directory")
	stunList := fs.String("stun", "", "comma-separated STUN servers")
	population := fs.Uint32("population", 1000, "initial simulated population")
	growth := fs.Uint32("growth", 1, "population growth per second")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal(err)
	}
	if cfg.City == nil {
		cfg.City = &config.CityConfig{}
	}
	overrideCity(cfg.City, *name, *mapName, *dir, *commandListen, *advertise, *stunList)
	config.ApplyDefaults(&cfg)
	if err := config.Validate(cfg); err != nil {
		fatal(err)
	}

	if agent.EnsureID(cfg.City) {
		if err := writeBackConfig(*configPath, cfg); err != nil {
			fatal(err)
		}
	}

	logger, err := config.NewLogger(os.Stderr, cfg.City.LogLevel)
	if err != nil {
		fatal(err)
	}

	ctx, cancel := signalContext()
	defer cancel()
	err = agent.Run(ctx, *cfg.City, agent.NewSim(cfg.City.Name, *population, *growth), logger)
	if errors.Is(err, context.Canceled) {
		return
	}
	fatal(err)
}

func handleList(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	dir := fs.String("directory", defaultDirectory, "directory server URL")
	_ = fs.Parse(args)

	cities, err := api.NewClient(*dir).List(context.Background())
	if err != nil {
		fatal(err)
	}
	if len(cities) == 0 {
		fmt.Fprintln(os.Stdout, "no cities registered")
		return
	}
	for _, c := range cities {
		fmt.Fprintf(os.Stdout, "%s\t%s\t%s\t%s\n", c.Name, c.ID, c.Map, c.Address)
	}
}

func handleInfo(args []string) {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	dir := fs.String("directory", defaultDirectory, "directory server URL")
	_ = fs.Parse(args)
	name := requireArg(fs, 0, "city name")

	t, err := api.NewClient(*dir).Info(context.Background(), name)
	if err != nil {
		fatal(err)
	}
	printJSON(t)
}

func handleRegister(args []string) {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	dir := fs.String("directory", defaultDirectory, "directory server URL")
	name := fs.String("name", "", "city name")
	id := fs.String("id", "", "city id")
	mapName := fs.String("map", "", "map name")
	address := fs.String("address", "", "command port host:port")
	_ = fs.Parse(args)

	meta := model.CityMetadata{Name: *name, ID: *id, Map: *mapName, Address: *address}
	got, err := api.NewClient(*dir).Register(context.Background(), meta)
	if err != nil {
		fatal(err)
	}
	printJSON(got)
}

func handleUpdate(args []string) {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	dir := fs.String("directory", defaultDirectory, "directory server URL")
	running := fs.Bool("running", false, "simulation running")
	elapsed := fs.Float64("elapsed", 0, "elapsed simulation seconds")
	population := fs.Uint32("population", 0, "population")
	useCBOR := fs.Bool("cbor", false, "send telemetry as CBOR")
	_ = fs.Parse(args)
	id := requireArg(fs, 0, "city id")

	var opts []api.ClientOption
	if *useCBOR {
		opts = append(opts, api.WithCBORTelemetry())
	}
	t := model.Telemetry{Running: *running, Elapsed: *elapsed, Population: *population}
	if err := api.NewClient(*dir, opts...).UpdateTelemetry(context.Background(), id, t); err != nil {
		fatal(err)
	}
	fmt.Fprintln(os.Stdout, "OK")
}

func handleCommand(args []string) {
	fs := flag.NewFlagSet("command", flag.ExitOnError)
	dir := fs.String("directory", defaultDirectory, "directory server URL")
	_ = fs.Parse(args)
	name := requireArg(fs, 0, "city name")
	if fs.NArg() < 2 {
		fatal(errors.New("command text required"))
	}
	command := strings.Join(fs.Args()[1:], " ")

	reply, err := api.NewClient(*dir).Command(context.Background(), name, command)
	if err != nil {
		fatal(err)
	}
	fmt.Fprintln(os.Stdout, reply)
}

func handleHello(args []string) {
	fs := flag.NewFlagSet("hello", flag.ExitOnError)
	dir := fs.String("directory", defaultDirectory, "directory server URL")
	_ = fs.Parse(args)
	name := requireArg(fs, 0, "city name")

	reply, err := api.NewClient(*dir).Hello(context.Background(), name)
	if err != nil {
		fatal(err)
	}
	fmt.Fprintln(os.Stdout, reply)
}

func handleUpload(args []string) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	dir := fs.String("directory", defaultDirectory, "directory server URL")
	file := fs.String("file", "", "screenshot to upload")
	_ = fs.Parse(args)
	id := requireArg(fs, 0, "city id")
	if *file == "" {
		fatal(errors.New("--file is required"))
	}

	f, err := os.Open(*file)
	if err != nil {
		fatal(err)
	}
	defer f.Close()

	resp, err := api.NewClient(*dir).Upload(context.Background(), id, f)
	if err != nil {
		fatal(err)
	}
	fmt.Fprintf(os.Stdout, "stored %d bytes blake3=%s\n", resp.Bytes, resp.Digest)
}

func handleStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	window := fs.Duration("window", time.Hour, "time window")
	city := fs.String("city", "", "only samples for this city")
	path := fs.String("metrics-path", "", "metrics CSV path override")
	remote := fs.Bool("remote", false, "query directory stats instead of the metrics file")
	dir := fs.String("directory", defaultDirectory, "directory server URL")
	_ = fs.Parse(args)

	if *remote {
		stats, err := api.NewClient(*dir).Stats(context.Background())
		if err != nil {
			fatal(err)
		}
		fmt.Fprintf(os.Stdout, "registration=%s cities=%d reporting=%d orphans=%d\n",
			stats.Registration, stats.Cities, stats.Reporting, stats.Orphans)
		for _, id := range stats.OrphanIDs {
			fmt.Fprintf(os.Stdout, "orphan %s\n", id)
		}
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal(err)
	}
	metricsPath := selectMetricsPath(cfg, *path)
	if metricsPath == "" {
		fatal(errors.New("metrics path required"))
	}

	items, err := metrics.ReadCSV(metricsPath)
	if err != nil {
		fatal(err)
	}

	cutoff := time.Now().UTC().Add(-*window)
	summary := metrics.Summarize(items, cutoff, *city)
	if summary.Count == 0 {
		fmt.Fprintln(os.Stdout, "no samples in window")
		return
	}

	fmt.Fprintf(os.Stdout, "samples=%d failures=%d success=%.1f%% from=%s to=%s\n",
		summary.Count, summary.Failures, summary.SuccessPct,
		summary.From.Format(time.RFC3339), summary.To.Format(time.RFC3339))
	fmt.Fprintf(os.Stdout, "rtt avg=%.2fms p95=%.2fms min=%.2fms max=%.2fms\n",
		summary.AvgRTTMs, summary.P95RTTMs, summary.MinRTTMs, summary.MaxRTTMs)
	outcomes := make([]string, 0, len(summary.ByOutcome))
	for outcome := range summary.ByOutcome {
		outcomes = append(outcomes, outcome)
	}
	sort.Strings(outcomes)
	for _, outcome := range outcomes {
		fmt.Fprintf(os.Stdout, "outcome %s=%d\n", outcome, summary.ByOutcome[outcome])
	}
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Config{}, nil
	}
	return config.Load(path)
}

func overrideServer(cfg *config.ServerConfig, listen, registration, uploadDir, metricsPath, logLevel string) {
	if listen != "" {
		cfg.Listen = listen
	}
	if registration != "" {
		cfg.Registration = registration
	}
	if uploadDir != "" {
		cfg.UploadDir = uploadDir
	}
	if metricsPath != "" {
		cfg.MetricsPath = metricsPath
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
}

func overrideCity(cfg *config.CityConfig, name, mapName, dir, commandListen, advertise, stunList string) {
	if name != "" {
		cfg.Name = name
	}
	if mapName != "" {
		cfg.Map = mapName
	}
	if dir != "" {
		cfg.Directory = dir
	}
	if commandListen != "" {
		cfg.CommandListen = commandListen
	}
	if advertise != "" {
		cfg.Advertise = advertise
	}
	if stunList != "" {
		cfg.STUNServers = splitList(stunList)
	}
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func selectMetricsPath(cfg config.Config, override string) string {
	if override != "" {
		return override
	}
	if cfg.Server != nil {
		return cfg.Server.MetricsPath
	}
	return ""
}

// writeBackConfig persists a generated city id so restarts keep it.
func writeBackConfig(path string, cfg config.Config) error {
	if path == "" {
		return nil
	}
	return config.Save(path, cfg)
}

func requireArg(fs *flag.FlagSet, i int, what string) string {
	if fs.NArg() <= i {
		fatal(fmt.Errorf("%s required", what))
	}
	return fs.Arg(i)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatal(err)
	}
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
