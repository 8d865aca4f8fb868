// Command presence-bridge mirrors the user's active media playback onto a
// Discord Rich Presence slot via local IPC (spec §1, §12).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"presence-bridge/internal/buttons"
	"presence-bridge/internal/config"
	"presence-bridge/internal/connstate"
	"presence-bridge/internal/diagnostics"
	"presence-bridge/internal/discordrpc"
	"presence-bridge/internal/engine"
	"presence-bridge/internal/ngroktunnel"
	"presence-bridge/internal/provider"
	"presence-bridge/internal/provider/fileprovider"
	"presence-bridge/internal/supervisor"

	"github.com/sirupsen/logrus"
)

const defaultConfigPath = "./presence-bridge.toml"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		return runDaemon()
	}

	switch args[0] {
	case "run":
		return runDaemon()
	case "doctor":
		return runDoctor()
	case "status":
		return runStatus()
	case "config":
		if len(args) >= 2 && args[1] == "init" {
			return runConfigInit()
		}
		fmt.Fprintln(os.Stderr, "usage: presence-bridge config init")
		return 1
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (expected run, doctor, status, config init)\n", args[0])
		return 1
	}
}

func newLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	if cfg != nil {
		if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
			logger.SetLevel(level)
		}
		if cfg.Logging.Format == "text" {
			logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		} else {
			logger.SetFormatter(&logrus.JSONFormatter{})
		}
	}
	return logger
}

// runDaemon is `presence-bridge run` (and the default with no arguments):
// load config, wire up the supervisor, run until signalled.
func runDaemon() int {
	bootCfg, err := config.LoadConfig(defaultConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "presence-bridge: %v\n", err)
		return 2
	}
	logger := newLogger(bootCfg)

	watcher, err := config.NewWatcher(defaultConfigPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "presence-bridge: %v\n", err)
		return 2
	}
	go watcher.Run()
	defer watcher.Stop()
	cfg := watcher.Current()

	var buttonBuilder engine.ButtonBuilder
	if cfg.EnableButtons {
		buttonBuilder = buttons.NewRegistry(logger)
	}

	registry := provider.NewRegistry(fileprovider.New(defaultWatchDir(), logger))

	sup := supervisor.New(watcher, registry, buttonBuilder, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	diagCtx, diagCancel := context.WithCancel(ctx)
	if cfg.Diagnostics.Enabled {
		diagServer := diagnostics.New(cfg.Diagnostics.Address, sup, logger)
		tunnel, err := ngroktunnel.New(cfg.Diagnostics, logger)
		if err != nil {
			logger.WithError(err).Warn("presence-bridge: ngrok tunnel disabled")
		}
		go func() {
			if tunnel != nil {
				if err := tunnel.Start(diagCtx, cfg.Diagnostics.Address); err != nil {
					logger.WithError(err).Warn("presence-bridge: ngrok tunnel failed to start")
				}
				defer tunnel.Stop()
			}
			if err := diagServer.Run(diagCtx); err != nil {
				logger.WithError(err).Warn("presence-bridge: diagnostics server stopped")
			}
		}()
	}

	logger.Info("presence-bridge: starting")
	go func() {
		<-sig
		logger.Info("presence-bridge: received shutdown signal")
		diagCancel()
		cancel()
	}()

	sup.Run(ctx)
	logger.Info("presence-bridge: stopped")
	return 0
}

func defaultWatchDir() string {
	if dir := os.Getenv("PRESENCE_BRIDGE_WATCH_DIR"); dir != "" {
		return dir
	}
	return "./media"
}

// runDoctor is `presence-bridge doctor`: validate configuration, report
// whether each configured Provider is available, and probe whether a Discord
// IPC transport is reachable, without running the daemon. It exits 1 if any
// probe fails.
func runDoctor() int {
	cfg, err := config.LoadConfig(defaultConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}
	fmt.Println("config: ok")

	logger := newLogger(cfg)
	logger.SetLevel(logrus.ErrorLevel)

	exitCode := 0
	fp := fileprovider.New(defaultWatchDir(), logger)
	if fp.IsAvailable() {
		fmt.Printf("provider %s: available\n", fp.Name())
	} else {
		fmt.Printf("provider %s: unavailable\n", fp.Name())
		exitCode = 1
	}

	probe := discordrpc.NewClient(cfg.DiscordAppID, logger, connstate.New())
	if err := probe.Connect(); err != nil {
		fmt.Printf("discord ipc: unreachable (%v)\n", err)
		return 1
	}
	defer probe.Disconnect()
	fmt.Println("discord ipc: reachable")
	return exitCode
}

// runStatus is `presence-bridge status`: poll the configured Providers once
// and print the resulting Snapshot as JSON, independent of whether a daemon
// is currently running (§6, §12).
func runStatus() int {
	cfg, err := config.LoadConfig(defaultConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}

	logger := newLogger(cfg)
	logger.SetLevel(logrus.ErrorLevel)

	registry := provider.NewRegistry(fileprovider.New(defaultWatchDir(), logger))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap := registry.Poll(ctx)

	out, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "status: %v\n", err)
		return 1
	}
	fmt.Println(string(out))
	return 0
}

// runConfigInit is `presence-bridge config init`: write a default config
// file if one doesn't already exist.
func runConfigInit() int {
	cfg := config.DefaultConfig()
	if err := cfg.SaveToFile(defaultConfigPath, false); err != nil {
		fmt.Fprintf(os.Stderr, "config init: %v\n", err)
		return 1
	}
	fmt.Printf("wrote default configuration to %s\n", defaultConfigPath)
	fmt.Println("edit discord_app_id before running `presence-bridge run`")
	return 0
}
