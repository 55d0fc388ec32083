// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// spyglass-demo plays a scripted session against a running spyglass:
// it writes a synthetic log under the watch root, paced like a real
// run, then raises an input request and waits for the answer through
// the bridge. Use it to exercise the dashboard without a live agent.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/spyglass/bridge"
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
	var pace time.Duration
	var awaitTimeout time.Duration

	flagSet := pflag.NewFlagSet("spyglass-demo", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to config file (default: built-in defaults)")
	flagSet.DurationVar(&pace, "pace", 800*time.Millisecond, "delay between scripted records")
	flagSet.DurationVar(&awaitTimeout, "await-timeout", 2*time.Minute, "how long to wait for the input response")

	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("spyglass-demo")
		return nil
	}
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sessionID := "demo-" + uuid.NewString()[:8]
	project := filepath.Join(cfg.Paths.WatchRoot, "-tmp-spyglass-demo")
	if err := os.MkdirAll(project, 0o755); err != nil {
		return fmt.Errorf("creating demo project: %w", err)
	}
	logPath := filepath.Join(project, sessionID+".jsonl")
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("creating demo log: %w", err)
	}
	defer file.Close()

	fmt.Printf("demo session %s\nlog: %s\n", sessionID, logPath)

	emit := func(record map[string]any) error {
		record["session_id"] = sessionID
		record["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
		encoded, err := json.Marshal(record)
		if err != nil {
			return err
		}
		if _, err := file.Write(append(encoded, '\n')); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pace):
			return nil
		}
	}

	agentID := uuid.NewString()
	childID := uuid.NewString()
	script := []map[string]any{
		{"event_type": "session_start", "cwd": "/tmp/spyglass-demo", "pid": os.Getpid()},
		{"event_type": "agent_start", "agent_id": agentID, "agent_type": "main", "description": "scripted demo run"},
		{"event_type": "tool_start", "agent_id": agentID, "tool_id": "demo-read", "tool_name": "Read", "parameters": map[string]any{"file_path": "/etc/hostname"}},
		{"event_type": "tool_complete", "tool_id": "demo-read", "status": "completed", "result_preview": "demo-host"},
		{"event_type": "agent_start", "agent_id": childID, "parent_id": agentID, "agent_type": "task", "description": "delegated lookup"},
		{"event_type": "tool_start", "agent_id": childID, "tool_id": "demo-mcp", "tool_name": "mcp__github__get_file", "parameters": map[string]any{"repo": "demo/demo", "api_key": "hunter2"}},
		{"event_type": "tool_complete", "tool_id": "demo-mcp", "status": "failed", "error": "404 not found"},
		{"event_type": "agent_complete", "agent_id": childID, "status": "failed"},
		{"event_type": "agent_update", "agent_id": agentID, "tokens_used": 1234, "message_count": 3},
	}
	for _, record := range script {
		if err := emit(record); err != nil {
			return err
		}
	}

	requestID := "demo-" + uuid.NewString()[:8]
	options := []map[string]string{
		{"label": "Continue", "value": "continue"},
		{"label": "Stop", "value": "stop"},
	}
	if err := emit(map[string]any{
		"event_type":   "input_request",
		"request_id":   requestID,
		"agent_id":     agentID,
		"request_type": "selection",
		"prompt":       "demo: continue or stop?",
		"options":      options,
	}); err != nil {
		return err
	}

	fmt.Printf("waiting for response to %s (answer it in the dashboard)\n", requestID)
	awaiter := bridge.NewAwaiter(cfg.Paths.ResponseDir, nil, cfg.Bridge.PollInterval)
	response, err := awaiter.Await(ctx, requestID, awaitTimeout)
	if err != nil {
		return err
	}
	fmt.Printf("received: %s\n", response)

	finish := []map[string]any{
		{"event_type": "agent_complete", "agent_id": agentID, "status": "completed"},
		{"event_type": "session_end", "status": "completed"},
	}
	for _, record := range finish {
		if err := emit(record); err != nil {
			return err
		}
	}
	fmt.Println("demo complete")
	return nil
}
