package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/valyala/fastjson"

	"github.com/mchurichi/logdeck/internal/config"
	"github.com/mchurichi/logdeck/pkg/classify"
	"github.com/mchurichi/logdeck/pkg/metrics"
	"github.com/mchurichi/logdeck/pkg/server"
	"github.com/mchurichi/logdeck/pkg/source"
	"github.com/mchurichi/logdeck/pkg/storage"
	"github.com/mchurichi/logdeck/pkg/view"
)

func main() {
	// Define flags
	configPath := flag.String("config", config.DefaultPath, "Path to config file")
	sourceURL := flag.String("source", "", "Log service base URL (overrides config)")
	rulesFile := flag.String("rules", "", "Taxonomy file, .toml or .yaml (overrides config)")
	dbPath := flag.String("db-path", "", "Database path (overrides config)")
	retentionSize := flag.String("retention-size", "", "Max storage size (e.g., 1GB, 500MB)")
	retentionDays := flag.Int("retention-days", 0, "Max age of logs in days")
	domain := flag.String("domain", classify.DomainSystem, "Domain collected lines are stored under")
	port := flag.Int("port", 0, "HTTP port (overrides config)")
	logLevel := flag.String("log-level", "", "debug | info | warn | error")
	logFormat := flag.String("log-format", "", "text | json")
	help := flag.Bool("help", false, "Show help")

	// Check for subcommand first
	args := os.Args[1:]
	mode := "server"

	if len(args) > 0 {
		switch args[0] {
		case "server", "service", "collect":
			mode = args[0]
			os.Args = append([]string{os.Args[0]}, args[1:]...)
		case "help", "--help", "-h":
			printHelp()
			return
		}
	}
	flag.Parse()
	if *help {
		printHelp()
		return
	}
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		// Piped input without a subcommand is collected
		if isStdinPiped() {
			mode = "collect"
		}
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Override config with CLI flags
	if *sourceURL != "" {
		cfg.Source.BaseURL = *sourceURL
	}
	if *rulesFile != "" {
		cfg.Rules.File = *rulesFile
	}
	if *dbPath != "" {
		cfg.Storage.DBPath = *dbPath
	}
	if *retentionSize != "" {
		cfg.Storage.RetentionSize = *retentionSize
	}
	if *retentionDays > 0 {
		cfg.Storage.RetentionDays = *retentionDays
	}
	if *port > 0 {
		if mode == "server" {
			cfg.Server.Port = *port
		} else {
			cfg.Service.Port = *port
		}
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := cfg.Log.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Execute based on mode
	switch mode {
	case "service":
		err = runServiceMode(ctx, cfg, logger)
	case "collect":
		err = runCollectMode(ctx, cfg, *domain, logger)
	default:
		err = runServerMode(ctx, cfg, logger)
	}
	if err != nil {
		logger.Error("Exiting", "mode", mode, "error", err)
		stop()
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Println(`logdeck - Log Classification & Monitoring Dashboard

USAGE:
    logdeck [server] [OPTIONS]           Serve the dashboard over the log service
    logdeck service [OPTIONS]            Run the bundled log service (Badger store)
    cat app.log | logdeck collect        Store stdin lines and serve them as a log service

OPTIONS:
    --config FILE          Path to config file (default: ~/.logdeck/config.toml)
    --source URL           Log service base URL (default: http://localhost:8081)
    --rules FILE           Taxonomy file (.toml, .yaml or .yml)
    --port PORT            HTTP port (default: 8080 for server, 8081 otherwise)
    --db-path PATH         Database path (default: ~/.logdeck/db)
    --retention-size SIZE  Max storage (e.g., 1GB, 500MB)
    --retention-days DAYS  Max age of logs (e.g., 7, 30)
    --domain NAME          Domain of collected lines (default: system)
    --log-level LEVEL      debug | info | warn | error
    --log-format FORMAT    text | json
    --help                 Show this help

EXAMPLES:
    # Run the log service and the dashboard side by side
    logdeck service
    logdeck server

    # Feed an application's JSON logs into the auth domain
    kubectl logs my-pod -f | logdeck collect --domain auth

    # Custom taxonomies
    logdeck server --rules ./rules.yaml`)
}

func isStdinPiped() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

func openStorage(cfg *config.Config) (*storage.BadgerStorage, error) {
	storageCfg := storage.Config{
		DBPath:        config.ExpandPath(cfg.Storage.DBPath),
		RetentionSize: cfg.GetRetentionSizeBytes(),
		RetentionDays: cfg.Storage.RetentionDays,
	}

	db, err := storage.NewBadgerStorage(storageCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return db, nil
}

func runServerMode(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("Starting dashboard", "source", cfg.Source.BaseURL)

	classifiers, err := cfg.Classifiers()
	if err != nil {
		return fmt.Errorf("failed to load taxonomies: %w", err)
	}

	m := metrics.New()
	sourceOpts := source.Options{
		BaseURL:           cfg.Source.BaseURL,
		Timeout:           cfg.Source.Timeout.Duration,
		TransactionsLimit: cfg.Source.TransactionsLimit,
	}
	mgr := view.NewManager(classifiers,
		func(domain string) source.Source { return source.New(sourceOpts, domain) },
		&view.Scheduler{Interval: cfg.View.RefreshInterval.Duration, Logger: logger},
		view.Options{PageSize: cfg.View.PageSize, Logger: logger, Metrics: m},
	)
	mgr.Start(ctx)
	defer mgr.Close()

	srv := server.New(server.Options{Views: mgr, Metrics: m, Logger: logger})
	return srv.Start(ctx, cfg.Server.Port)
}

func runServiceMode(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("Starting log service", "db", config.ExpandPath(cfg.Storage.DBPath))

	db, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	srv := server.New(server.Options{Storage: db, Metrics: metrics.New(), Logger: logger})
	return srv.Start(ctx, cfg.Service.Port)
}

func runCollectMode(ctx context.Context, cfg *config.Config, domain string, logger *slog.Logger) error {
	logger.Info("Starting collect mode", "domain", domain)

	// Single storage instance shared with the embedded service
	db, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	srv := server.New(server.Options{Storage: db, Metrics: metrics.New(), Logger: logger})
	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start(ctx, cfg.Service.Port)
	}()

	// Read from stdin line by line
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	count := 0

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		// Plain text lines and JSON scalars become bare messages
		var events []*storage.Event
		if fastjson.Validate(line) == nil {
			events, err = server.DecodeEvents(domain, []byte(line))
		}
		if events == nil {
			body, _ := json.Marshal(line)
			events, err = server.DecodeEvents(domain, body)
		}
		if err != nil {
			logger.Warn("Failed to parse line", "error", err)
			continue
		}
		if err := db.StoreBatch(events); err != nil {
			logger.Warn("Failed to store line", "error", err)
			continue
		}

		count += len(events)
		if count%1000 == 0 {
			logger.Info("Collected log entries", "count", count)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading stdin: %w", err)
	}

	logger.Info("Collection complete, still serving; press Ctrl+C to exit",
		"total", count, "url", fmt.Sprintf("http://localhost:%d/api/logs/%s", cfg.Service.Port, domain))

	// Keep serving after stdin closes so the dashboard can still read the logs
	return <-errChan
}
