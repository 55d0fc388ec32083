// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package feed

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/spyglass/lib/testutil"
	"github.com/bureau-foundation/spyglass/trace"
)

func startTestListener(t *testing.T) *Listener {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.sock")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	listener, err := NewListener(path, nil, logger)
	if err != nil {
		t.Fatal(err)
	}
	listener.Start(context.Background())
	t.Cleanup(func() {
		listener.Stop()
		listener.Wait()
	})
	return listener
}

func TestListenerParsesPushedEvents(t *testing.T) {
	listener := startTestListener(t)

	client, err := Dial(listener.Addr())
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	push := func(line string) {
		t.Helper()
		if err := client.Send([]byte(line)); err != nil {
			t.Fatal(err)
		}
	}
	push(`{"event_type":"session_start","session_id":"s1","cwd":"/work","pid":42}`)
	push(`not json at all`)
	push(`{"event_type":"agent_start","session_id":"s1","agent_id":"a1","agent_type":"main"}`)

	event := testutil.RequireReceive(t, listener.Events(), 5*time.Second, "waiting for session_start")
	start, ok := event.(trace.SessionStart)
	if !ok {
		t.Fatalf("event = %T, want SessionStart", event)
	}
	if start.SessionID() != "s1" || start.WorkingDir != "/work" || start.PID != 42 {
		t.Errorf("unexpected fields: %+v", start)
	}

	// The malformed line is skipped, not fatal: the next event still
	// arrives.
	event = testutil.RequireReceive(t, listener.Events(), 5*time.Second, "waiting for agent_start")
	agent, ok := event.(trace.AgentStart)
	if !ok {
		t.Fatalf("event = %T, want AgentStart", event)
	}
	if agent.AgentID != "a1" {
		t.Errorf("AgentID = %q, want a1", agent.AgentID)
	}
}

func TestListenerMultipleConnections(t *testing.T) {
	listener := startTestListener(t)

	for _, session := range []string{"s1", "s2"} {
		client, err := Dial(listener.Addr())
		if err != nil {
			t.Fatal(err)
		}
		line := `{"event_type":"session_start","session_id":"` + session + `"}`
		if err := client.Send([]byte(line)); err != nil {
			t.Fatal(err)
		}
		client.Close()
	}

	seen := map[string]bool{}
	for range 2 {
		event := testutil.RequireReceive(t, listener.Events(), 5*time.Second, "waiting for pushed event")
		seen[event.SessionID()] = true
	}
	if !seen["s1"] || !seen["s2"] {
		t.Errorf("missing sessions: %v", seen)
	}
}

func TestListenerBindFailureIsFatal(t *testing.T) {
	dir := t.TempDir()
	// A non-empty directory at the socket path cannot be removed by
	// the stale cleanup nor bound over.
	path := filepath.Join(dir, "events.sock")
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(path, "keep"), nil, 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewListener(path, nil, nil); err == nil {
		t.Error("binding over a directory should fail")
	}
}
