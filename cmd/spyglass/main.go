// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// spyglass watches a directory of agent session logs and renders the
// live session tree in the terminal.
//
// Two modes of operation:
//
// TUI mode (default): runs the full pipeline and the dashboard in one
// process. Pending input requests can be answered from the prompt;
// answers are delivered through the file bridge.
//
// Headless mode (--headless): runs the pipeline without a terminal,
// maintaining the recovery snapshot and the push socket. Useful under
// a supervisor, with a TUI attaching later via the snapshot.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/spyglass/lib/clock"
	"github.com/bureau-foundation/spyglass/lib/config"
	"github.com/bureau-foundation/spyglass/lib/process"
	"github.com/bureau-foundation/spyglass/lib/version"
	"github.com/bureau-foundation/spyglass/monitor"
	"github.com/bureau-foundation/spyglass/tui"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var configPath string
	var watchRoot string
	var headless bool
	var logOutput string

	flagSet := pflag.NewFlagSet("spyglass", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to config file (default: built-in defaults)")
	flagSet.StringVar(&watchRoot, "root", "", "watch root override (default from config)")
	flagSet.BoolVar(&headless, "headless", false, "run the pipeline without the terminal UI")
	flagSet.StringVar(&logOutput, "log-output", "", "write JSON log records to this file instead of stderr")
	flagSet.BoolP("help", "h", false, "show help")

	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("spyglass")
		return nil
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		flagSet.PrintDefaults()
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if watchRoot != "" {
		cfg.Paths.WatchRoot = watchRoot
	}

	logger, closeLog, err := buildLogger(logOutput, headless)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	core, err := monitor.New(cfg, clock.Real(), logger)
	if err != nil {
		return err
	}
	core.Start(ctx)
	defer func() {
		core.Stop()
		core.Wait()
	}()

	if headless {
		logger.Info("running headless", "root", cfg.Paths.WatchRoot, "socket", core.SocketPath())
		<-ctx.Done()
		return nil
	}

	program := tea.NewProgram(
		tui.NewModel(core.Store(), core.Responder()),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("running dashboard: %w", err)
	}
	return nil
}

// buildLogger routes logs away from the terminal the TUI owns: to the
// given file when set, to stderr when headless, and discarded
// otherwise.
func buildLogger(logOutput string, headless bool) (*slog.Logger, func(), error) {
	if logOutput != "" {
		file, err := os.OpenFile(logOutput, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log output: %w", err)
		}
		logger := slog.New(slog.NewJSONHandler(file, nil))
		return logger, func() { file.Close() }, nil
	}
	if headless {
		return slog.New(slog.NewTextHandler(os.Stderr, nil)), func() {}, nil
	}
	return slog.New(slog.DiscardHandler), func() {}, nil
}
