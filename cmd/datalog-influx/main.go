// datalog-influx reads a robot data log and writes its values as
// time-series points to InfluxDB or to local columnar files.
//
// Usage:
//
//	datalog-influx [flags] <file>
//	datalog-influx --seal-token < token.txt
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/coffersTech/datalog-influx/internal/config"
	"github.com/coffersTech/datalog-influx/internal/datalog"
	"github.com/coffersTech/datalog-influx/internal/engine"
	"github.com/coffersTech/datalog-influx/internal/influx"
	"github.com/coffersTech/datalog-influx/internal/pkg/security"
	"github.com/coffersTech/datalog-influx/internal/storage"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// errUsage is returned after usage has been printed.
var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()

	switch {
	case err == nil:
	case errors.Is(err, errUsage):
		os.Exit(1)
	case errors.Is(err, datalog.ErrNotDataLog):
		fmt.Fprintln(os.Stderr, "not a log file")
		os.Exit(1)
	default:
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// pointSink is a sink the command owns and must close.
type pointSink interface {
	engine.Sink
	Close() error
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	var (
		configPath  string
		sinkName    string
		logLevel    string
		quiet       bool
		showVersion bool
		sealToken   bool
	)

	flagSet := pflag.NewFlagSet("datalog-influx", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVarP(&configPath, "config", "c", "config.yaml", "path to config file")
	flagSet.StringVar(&sinkName, "sink", "", "override the configured sink (influx, file)")
	flagSet.StringVar(&logLevel, "log-level", "info", "diagnostic log level (debug, info, warn, error)")
	flagSet.BoolVarP(&quiet, "quiet", "q", false, "do not print lifecycle records")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	flagSet.BoolVar(&sealToken, "seal-token", false, "read a token from stdin and print it sealed with $"+config.EnvKey)
	flagSet.Usage = func() {
		fmt.Fprintf(stderr, "usage: datalog-influx [flags] <file>\n\nFlags:\n%s", flagSet.FlagUsages())
	}

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		fmt.Fprintln(stderr, err)
		flagSet.Usage()
		return errUsage
	}

	if showVersion {
		fmt.Fprintf(stdout, "datalog-influx %s\n", version)
		return nil
	}
	if sealToken {
		return runSealToken(stdin, stdout)
	}

	if flagSet.NArg() != 1 {
		flagSet.Usage()
		return errUsage
	}
	path := flagSet.Arg(0)

	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("invalid --log-level %q", logLevel)
	}
	runID := uuid.NewString()
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})).With("run", runID)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if sinkName != "" {
		cfg.Sink = sinkName
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
	}

	reader, err := datalog.Open(path)
	if err != nil {
		return err
	}
	defer reader.Close()

	sink, err := newSink(cfg, runID, logger)
	if err != nil {
		return err
	}
	defer sink.Close()

	logger.Info("ingesting data log",
		"path", path,
		"version", fmt.Sprintf("%d.%d", reader.Version()>>8, reader.Version()&0xff),
		"sink", cfg.Sink,
		"bucket", cfg.Bucket,
		"measurement", cfg.Measurement,
		"batch_size", cfg.BatchSize,
	)

	var trace io.Writer = stdout
	if quiet {
		trace = io.Discard
	}
	processor := engine.NewProcessor(engine.SinkFlushFunc(sink, cfg.Bucket), engine.Options{
		Measurement: cfg.Measurement,
		BatchSize:   cfg.BatchSize,
		Logger:      logger,
		Trace:       trace,
	})

	start := time.Now()
	err = processor.Run(ctx, reader.Cursor())
	logger.Info("ingestion finished", "duration", time.Since(start), "stats", processor.Stats())
	if err != nil {
		return fmt.Errorf("ingesting %s: %w", path, err)
	}

	if cfg.Sink == config.SinkFile && cfg.File.Retention > 0 {
		if _, err := storage.PurgeExpired(cfg.File.Dir, cfg.File.Retention, time.Now(), runID, logger); err != nil {
			logger.Warn("failed to purge expired batch files", "error", err)
		}
	}
	return nil
}

func newSink(cfg *config.Config, runID string, logger *slog.Logger) (pointSink, error) {
	switch cfg.Sink {
	case config.SinkFile:
		compression, err := storage.ParseCompression(cfg.File.Compression)
		if err != nil {
			return nil, err
		}
		return storage.NewFileSink(cfg.File.Dir, runID, compression, logger)
	default:
		return influx.NewClient(influx.Config{
			URL:                cfg.Influx.URL,
			Org:                cfg.Influx.Org,
			Token:              cfg.Influx.Token,
			Timeout:            cfg.Influx.Timeout,
			Gzip:               cfg.Influx.Gzip,
			InsecureSkipVerify: cfg.Influx.InsecureSkipVerify,
			Logger:             logger,
		})
	}
}

func runSealToken(stdin io.Reader, stdout io.Writer) error {
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to read token: %w", err)
	}
	token := strings.TrimSpace(line)
	if token == "" {
		return fmt.Errorf("no token on stdin")
	}
	sealed, err := security.SealToken(os.Getenv(config.EnvKey), token)
	if err != nil {
		return fmt.Errorf("failed to seal token: %w", err)
	}
	fmt.Fprintln(stdout, sealed)
	return nil
}
