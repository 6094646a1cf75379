// Command flyercal turns a photo of an event flyer into an iCalendar file.
//
// Usage:
//
//	flyercal -image flyer.jpg [-out event.ics] [-steps 10] [-force]
//	flyercal -watch ~/Flyers
//	flyercal -init
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/aschepis/flyercal/agent"
	"github.com/aschepis/flyercal/config"
	flyerlogger "github.com/aschepis/flyercal/logger"
	"github.com/aschepis/flyercal/runtime"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		image      = flag.String("image", "", "Path or URL of the flyer image")
		steps      = flag.Int("steps", 0, "Maximum agent steps (default from config)")
		force      = flag.Bool("force", false, "Ignore cached results and run again")
		configPath = flag.String("config", config.DefaultPath(), "Path to the configuration file")
		logFile    = flag.String("logfile", "", "Path to log file. If not set, logs to stderr")
		pretty     = flag.Bool("pretty", false, "Use pretty console output (only valid when logfile is not set)")
		outPath    = flag.String("out", "", "Write the calendar to this file instead of stdout")
		watchDir   = flag.String("watch", "", "Watch this directory for flyers instead of processing one image")
		traceOn    = flag.Bool("trace", false, "Export OpenTelemetry spans for every run")
		initConfig = flag.Bool("init", false, "Write a default configuration file to -config and exit")
	)
	flag.Parse()

	if *initConfig {
		if _, err := os.Stat(config.ExpandPath(*configPath)); err == nil {
			return fmt.Errorf("%s already exists", *configPath)
		}
		cfg := config.Defaults()
		if err := config.Save(&cfg, *configPath); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Wrote %s\n", *configPath)
		return nil
	}

	if *logFile != "" && *pretty {
		return fmt.Errorf("--logfile and --pretty are mutually exclusive")
	}
	if *image == "" && *watchDir == "" {
		if flag.NArg() == 0 {
			flag.Usage()
			return fmt.Errorf("an image or -watch directory is required")
		}
		*image = flag.Arg(0)
	}

	logger, err := flyerlogger.InitWithOptions(*logFile, *pretty)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if *traceOn {
		cfg.Trace.Enabled = true
	}
	if *watchDir != "" {
		cfg.Watch.Dir = config.ExpandPath(*watchDir)
	}
	if *steps > 0 {
		cfg.Agent.MaxSteps = *steps
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Trace.Enabled {
		shutdown, err := setupTracing(cfg.Trace.File)
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Warn().Err(err).Msg("Failed to flush traces")
			}
		}()
	}

	app, err := config.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close resources")
		}
	}()
	logger.Info().
		Str("provider", app.LLM.Provider).
		Str("model", app.LLM.Model).
		Strs("tools", app.Toolset.Registry.Names()).
		Msg("flyercal ready")

	if cfg.Watch.Dir != "" && *image == "" {
		return watch(ctx, app.Agent, cfg, logger)
	}
	return runOnce(ctx, app.Agent, *image, cfg.Agent.MaxSteps, *force, *outPath)
}

func runOnce(ctx context.Context, a *agent.Agent, image string, maxSteps int, force bool, outPath string) error {
	result, err := a.Run(ctx, image, maxSteps, force)
	if err != nil {
		return err
	}

	if !result.HasCalendar() {
		if result.Event == "" {
			fmt.Fprintln(os.Stderr, "No event found on the flyer")
		} else {
			fmt.Fprintf(os.Stderr, "Found %q but could not build a calendar\n", result.Event)
		}
		return nil
	}

	if outPath == "" {
		fmt.Println(result.Calendar)
		return nil
	}
	if err := os.WriteFile(outPath, []byte(result.Calendar), 0o644); err != nil {
		return fmt.Errorf("failed to write calendar: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Calendar for %q written to %s\n", result.Event, outPath)
	return nil
}

func watch(ctx context.Context, a *agent.Agent, cfg *config.Config, logger zerolog.Logger) error {
	w, err := runtime.NewWatcher(a, runtime.WatcherConfig{
		Dir:      cfg.Watch.Dir,
		OutDir:   cfg.Watch.OutDir,
		Schedule: cfg.Watch.Schedule,
		MaxSteps: cfg.Agent.MaxSteps,
		Force:    cfg.Watch.Force,
	}, logger)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// setupTracing installs a global tracer provider exporting spans as JSON to
// file, or to stderr when file is empty.
func setupTracing(file string) (func(context.Context) error, error) {
	var (
		w       io.Writer = os.Stderr
		closeFn           = func() error { return nil }
	)
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("failed to open trace file: %w", err)
		}
		w, closeFn = f, f.Close
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		_ = closeFn()
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), closeFn())
	}, nil
}
