package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/loqalabs/loqa-wayfinder/internal/config"
	"github.com/loqalabs/loqa-wayfinder/internal/runtime"
	"github.com/loqalabs/loqa-wayfinder/internal/stt"
)

var version = "0.1.0-dev"

func main() {
	var (
		configPath  string
		text        string
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "Path to configuration file (defaults plus WAYFINDER_* overrides when empty)")
	flag.StringVar(&text, "text", "", "Skip audio capture and recommend locations for this transcript")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Usage = usage
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger = newLogger(cfg.Telemetry)

	rt := runtime.New(cfg, logger, os.Stdout)

	ctx, stop := interruptContext(context.Background())
	defer stop()

	if text != "" {
		if _, err := rt.Match(ctx, text); err != nil {
			logger.Error("match failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		return
	}

	if err := checkEngine(cfg.STT); err != nil {
		logger.Error("speech engine unavailable", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := rt.Start(ctx); err != nil {
		logger.Error("runtime exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

func newLogger(cfg config.TelemetryConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: %s [flags]\n\n", os.Args[0])
	flag.PrintDefaults()
	fmt.Fprintln(out, "\nThe default stt.mode is vosk, which needs a build with -tags vosk and libvosk.")
	fmt.Fprintln(out, "Without it, set stt.mode to exec or mock (WAYFINDER_STT_MODE).")
}

// checkEngine rejects a vosk config in a binary built without the vosk tag
// before any audio device is opened.
func checkEngine(cfg config.STTConfig) error {
	if cfg.Mode == "vosk" && !stt.VoskAvailable {
		return fmt.Errorf("stt.mode=vosk but this binary was built without vosk support; rebuild with -tags vosk or set WAYFINDER_STT_MODE=exec|mock")
	}
	return nil
}

// interruptContext is cancelled by the first SIGINT or SIGTERM. After that
// the default handlers are restored, so a second Ctrl-C kills a finalize
// that hangs.
func interruptContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	go releaseOnDone(ctx, stop)
	return ctx, stop
}

func releaseOnDone(ctx context.Context, release func()) {
	<-ctx.Done()
	release()
}
