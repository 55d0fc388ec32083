// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// spyglass-feed pipes events from stdin to a running spyglass
// instance, one JSON object per line. Producers that cannot write
// log files shell out to it:
//
//	echo '{"event_type":"agent_start",...}' | spyglass-feed
package main

import (
	"bufio"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/spyglass/feed"
	"github.com/bureau-foundation/spyglass/lib/config"
	"github.com/bureau-foundation/spyglass/lib/process"
	"github.com/bureau-foundation/spyglass/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var configPath string
	var socketPath string

	flagSet := pflag.NewFlagSet("spyglass-feed", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to config file (default: built-in defaults)")
	flagSet.StringVar(&socketPath, "socket", "", "event socket path (default from config)")

	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("spyglass-feed")
		return nil
	}
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	if socketPath == "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		socketPath = cfg.SocketPath()
	}

	client, err := feed.Dial(socketPath)
	if err != nil {
		return err
	}
	defer client.Close()

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		if err := client.Send(scanner.Bytes()); err != nil {
			return err
		}
	}
	return scanner.Err()
}
