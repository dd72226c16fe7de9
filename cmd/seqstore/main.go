package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/marmos91/seqstore/internal/logger"
	"github.com/marmos91/seqstore/pkg/config"
	"github.com/marmos91/seqstore/pkg/forward"
	"github.com/marmos91/seqstore/pkg/gc"
	"github.com/marmos91/seqstore/pkg/registry"
	"github.com/marmos91/seqstore/pkg/store"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
)

const usage = `seqstore - sequential crash-recoverable file store

Usage:
  seqstore <command> [flags]

Commands:
  init     Write a default configuration file
  start    Open the store and run the metrics server, forwarder and retention
  stats    Print the size of every registered root
  put      Commit one unit built from local files (not while 'start' runs)
  version  Print version information

Run 'seqstore <command> -h' for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "init":
		err = runInit(args)
	case "start":
		err = runStart(args)
	case "stats":
		err = runStats(args)
	case "put":
		err = runPut(args)
	case "version":
		fmt.Printf("seqstore %s (commit %s)\n", version, commit)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	force := fs.Bool("force", false, "Overwrite an existing configuration file")
	configPath := fs.String("config", "", "Path of the file to write (default: $XDG_CONFIG_HOME/seqstore/config.yaml)")
	_ = fs.Parse(args)

	path := *configPath
	if path == "" {
		path = config.GetDefaultConfigPath()
	}
	if err := config.InitConfigToPath(path, *force); err != nil {
		return err
	}

	fmt.Printf("Configuration written to %s\n", path)
	return nil
}

// loadConfig loads the configuration and applies its logging section.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := logger.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runStart(args []string) error {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Step 1: Metrics and registry
	// ========================================================================

	roots, err := config.CreateRegistry(cfg)
	if err != nil {
		return err
	}

	// The store does not exist yet: /healthz reads it through this closure
	var s *store.Store
	health := func() uint64 {
		if s == nil {
			return 0
		}
		return s.LastPublished()
	}

	m, err := config.InitializeMetrics(cfg, roots, health)
	if err != nil {
		return err
	}

	// ========================================================================
	// Step 2: Open the store (recovery runs here)
	// ========================================================================

	s, err = config.OpenStore(ctx, &cfg.Store, m.StoreMetrics)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	temp, st := s.Roots()
	logger.Info("Store open: temp=%s, store=%s, recovered=%d", temp, st, s.Recovered())

	// ========================================================================
	// Step 3: Background services
	// ========================================================================

	errCh := make(chan error, 2)
	services := 0

	// Delivered units are collectable only behind the forwarder cursor
	var horizon gc.Horizon

	if m.Server != nil {
		services++
		go func() { errCh <- m.Server.Start(ctx) }()
	}

	if cfg.Forwarder.Enabled {
		sink, err := config.CreateSink(ctx, &cfg.Forwarder.Sink)
		if err != nil {
			return err
		}
		defer func() { _ = sink.Close() }()

		cursor, err := config.CreateCursor(ctx, &cfg.Forwarder.Cursor)
		if err != nil {
			return err
		}
		defer func() { _ = cursor.Close() }()

		f := forward.New(s, sink, cursor, config.ForwarderOptions(&cfg.Forwarder, m.ForwardMetrics))
		services++
		go func() { errCh <- f.Run(ctx) }()
		horizon = cursor
	}

	collector := config.CreateCollector(&cfg.Retention, s, horizon)
	collector.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = collector.Stop(stopCtx)
	}()

	logger.Info("seqstore %s running. Press Ctrl+C to stop.", version)

	// ========================================================================
	// Step 4: Wait for a signal or a failing service
	// ========================================================================

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received, initiating graceful shutdown...")
	case runErr = <-errCh:
		services--
		logger.Error("Service stopped: %v", runErr)
		stop()
	}

	shutdown := make(chan struct{})
	go func() {
		for ; services > 0; services-- {
			if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("Service shutdown error: %v", err)
			}
		}
		close(shutdown)
	}()

	select {
	case <-shutdown:
		logger.Info("Stopped gracefully")
	case <-time.After(cfg.Server.ShutdownTimeout):
		logger.Warn("Shutdown timeout (%v) exceeded", cfg.Server.ShutdownTimeout)
	}

	return runErr
}

func runStats(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	roots, err := config.CreateRegistry(cfg)
	if err != nil {
		return err
	}

	snapshot, err := roots.Snapshot()
	if err != nil {
		logger.Warn("Some roots could not be scanned completely: %v", err)
	}

	return printStats(os.Stdout, snapshot)
}

func printStats(w io.Writer, snapshot []registry.RootStats) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ROOT\tPATH\tUNITS\tFILES\tDIRS\tSIZE")
	for _, s := range snapshot {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n",
			s.Name, s.Path, s.Units, s.Files, s.Dirs, humanize.IBytes(uint64(s.Bytes)))
	}
	return tw.Flush()
}

// multiFlag collects repeated flag values.
type multiFlag []string

func (m *multiFlag) String() string     { return strings.Join(*m, ",") }
func (m *multiFlag) Set(v string) error { *m = append(*m, v); return nil }

func runPut(args []string) error {
	fs := flag.NewFlagSet("put", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	var attrs, entries multiFlag
	fs.Var(&attrs, "attr", "Attribute key=value (repeatable)")
	fs.Var(&entries, "entry", "Entry name=path, or a bare path named after its base name (repeatable)")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	meta := store.NewAttributeMap()
	for _, a := range attrs {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return fmt.Errorf("invalid attribute %q (want key=value)", a)
		}
		meta.Set(k, v)
	}

	ctx := context.Background()
	s, err := config.OpenStore(ctx, &cfg.Store, nil)
	if errors.Is(err, store.ErrLocked) {
		return fmt.Errorf("store %s is owned by another process (is 'seqstore start' running?): %w",
			cfg.Store.StorePath(), err)
	}
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	sess, err := s.NewSession(meta)
	if err != nil {
		return err
	}

	for _, e := range entries {
		name, path, ok := strings.Cut(e, "=")
		if !ok {
			name, path = filepath.Base(e), e
		}
		if err := addFile(sess, name, path); err != nil {
			_ = sess.CloseDelete()
			return err
		}
	}

	id, err := sess.Commit()
	if err != nil {
		return err
	}
	if id == 0 {
		fmt.Println("Session was empty, nothing committed")
		return nil
	}

	info, err := s.Stat(id)
	if err != nil {
		return err
	}
	fmt.Printf("Committed store id %d: %s (%s)\n", id, info.ZipPath, humanize.IBytes(uint64(info.Size)))
	return nil
}

func addFile(sess *store.Session, name, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	w, err := sess.AddEntry(name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, src); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to add %s: %w", path, err)
	}
	return w.Close()
}
