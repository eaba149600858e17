package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/mtconnect/agent-core/internal/agent"
	"github.com/mtconnect/agent-core/internal/config"
	"github.com/mtconnect/agent-core/internal/configwatch"
	"github.com/mtconnect/agent-core/internal/pipeline"
)

// version, commit, and buildTime are injected at build time via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// Exit codes per §6.4.
const (
	exitOK           = 0
	exitArgumentErr  = 1
	exitConfigErr    = 2
	exitFatalRuntime = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return exitArgumentErr
	}

	cmd, rest := args[0], args[1:]

	switch cmd {
	case "help", "-h", "--help":
		printUsage()
		return exitOK
	case "version", "-v", "--version":
		fmt.Printf("mtcagent %s (commit=%s, built=%s)\n", version, commit, buildTime)
		return exitOK
	case "run":
		return runAgent(rest, false)
	case "debug":
		return runAgent(rest, true)
	default:
		fmt.Fprintf(os.Stderr, "mtcagent: unknown command %q\n", cmd)
		printUsage()
		return exitArgumentErr
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `mtcagent: an MTConnect Agent

Usage:
  mtcagent <command> [flags]

Commands:
  run      Start the agent (background-friendly: writes pid-file if given)
  debug    Start the agent with verbose logging on the foreground console
  help     Show this help text
  version  Print version information

Flags:
  --config <path>             Path to config file (overrides MTC_CONFIG_PATH)
  --working-directory <path>  Directory to chdir into before starting
  --pid-file <path>           Write the process id to this file on startup

Environment:
  MTC_CONFIG_PATH   overrides the default config path
  MTC_DATA_PATH     overrides the default data path
  MTC_PLUGIN_PATH   overrides the default plugin path`)
}

func runAgent(args []string, debug bool) int {
	fs := flag.NewFlagSet("mtcagent", flag.ContinueOnError)
	var configPath, workingDir, pidFile string
	fs.StringVar(&configPath, "config", "", "path to config file (overrides MTC_CONFIG_PATH)")
	fs.StringVar(&workingDir, "working-directory", "", "directory to chdir into before starting")
	fs.StringVar(&pidFile, "pid-file", "", "write the process id to this file on startup")
	if err := fs.Parse(args); err != nil {
		return exitArgumentErr
	}

	if workingDir != "" {
		if err := os.Chdir(workingDir); err != nil {
			fmt.Fprintf(os.Stderr, "mtcagent: chdir %q: %v\n", workingDir, err)
			return exitArgumentErr
		}
	}

	startTime := time.Now()

	overrides := config.Overrides{ConfigPath: configPath}
	if debug {
		overrides.LogLevel = "debug"
	}
	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Error().Err(err).Msg("failed to load config")
		return exitConfigErr
	}
	if err := cfg.Validate(); err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Error().Err(err).Msg("invalid config")
		return exitConfigErr
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().
		Str("version", version).
		Str("commit", commit).
		Str("built", buildTime).
		Str("log_level", level.String()).
		Str("device", cfg.DeviceName).
		Msg("mtcagent starting")

	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
			log.Error().Err(err).Str("pid_file", pidFile).Msg("failed to write pid file")
			return exitFatalRuntime
		}
		defer os.Remove(pidFile)
	}

	watcher, err := configwatch.Start(cfg.ConfigPath, cfg.PluginPath, log)
	if err != nil {
		log.Warn().Err(err).Msg("config/plugin watcher unavailable")
	} else {
		defer watcher.Close()
	}

	// The device-model-backed registry (C3) is out of this core's scope; the
	// agent starts with an empty registry and relies on adapters forwarding
	// only data items a future device-model loader would register.
	registry := pipeline.NewStaticRegistry()

	a := agent.New(cfg, registry, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		log.Error().Err(err).Msg("agent failed to start")
		return exitFatalRuntime
	}

	log.Info().
		Str("listen", cfg.HTTPAddr).
		Dur("startup_ms", time.Since(startTime)).
		Msg("mtcagent ready")

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("agent shutdown error")
		return exitFatalRuntime
	}

	log.Info().Msg("mtcagent stopped")
	return exitOK
}
