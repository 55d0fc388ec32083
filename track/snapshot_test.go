// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package track

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/bureau-foundation/spyglass/trace"
)

func populatedEvents() []trace.Event {
	return []trace.Event{
		trace.SessionStart{Meta: meta("s1", 0), WorkingDir: "/work/a", PID: 42},
		trace.SessionUpdate{Meta: meta("s1", 1), Slug: "fix-parser", GitBranch: "main"},
		trace.AgentStart{Meta: meta("s1", 2), AgentID: "a1", AgentType: "main"},
		trace.AgentStart{Meta: meta("s1", 3), AgentID: "a2", ParentID: "a1", AgentType: "task", Description: "run tests"},
		trace.ToolStart{Meta: meta("s1", 4), ToolID: "t1", AgentID: "a2", Name: "Bash",
			Parameters: map[string]any{"command": "go test ./..."}},
		trace.Message{Meta: meta("s1", 5), MessageID: "m1", Role: "assistant", Tokens: 80},
		trace.ToolComplete{Meta: meta("s1", 6), ToolID: "t1", Status: trace.ToolCompleted, ResultPreview: "ok"},
		trace.InputRequested{Meta: meta("s1", 7), RequestID: "r1", AgentID: "a1",
			Type: trace.RequestSelection, Prompt: "pick one",
			Options: []trace.Option{{Label: "A", Value: "a"}, {Label: "B", Value: "b"}}},
		trace.SessionStart{Meta: meta("s2", 8), WorkingDir: "/work/b"},
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.snapshot")

	source, _ := newTestStore(t)
	source.ApplyAll(populatedEvents())
	if err := source.SaveSnapshot(path); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	restored, _ := newTestStore(t)
	if err := restored.LoadSnapshot(path); err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}

	if diff := snapshotDiff(source.Snapshot(), restored.Snapshot()); diff != "" {
		t.Errorf("restored state differs (-source +restored):\n%s", diff)
	}
	if source.Revision() != restored.Revision() {
		t.Errorf("revision = %d, want %d", restored.Revision(), source.Revision())
	}

	// The message dedup set must survive the round trip: replaying an
	// already-counted message must not bump counts.
	restored.Apply(trace.Message{Meta: meta("s1", 5), MessageID: "m1", Role: "assistant", Tokens: 80})
	if got := restored.sessions["s1"].MessageCount; got != 1 {
		t.Errorf("MessageCount after replay = %d, want 1", got)
	}
}

func TestSnapshotBytesDeterministic(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.snapshot")
	pathB := filepath.Join(dir, "b.snapshot")

	// Two observers ingest the same stream: a cold one, and one that
	// recovered from the other's earlier snapshot mid-stream. Both
	// must write byte-identical files.
	events := populatedEvents()
	half := len(events) / 2

	a, _ := newTestStore(t)
	a.ApplyAll(events[:half])
	if err := a.SaveSnapshot(pathA); err != nil {
		t.Fatalf("SaveSnapshot mid-stream: %v", err)
	}
	b, _ := newTestStore(t)
	if err := b.LoadSnapshot(pathA); err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	a.ApplyAll(events[half:])
	b.ApplyAll(events[half:])

	if err := a.SaveSnapshot(pathA); err != nil {
		t.Fatalf("SaveSnapshot a: %v", err)
	}
	if err := b.SaveSnapshot(pathB); err != nil {
		t.Fatalf("SaveSnapshot b: %v", err)
	}

	rawA, err := os.ReadFile(pathA)
	if err != nil {
		t.Fatal(err)
	}
	rawB, err := os.ReadFile(pathB)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(rawA, rawB) {
		t.Error("converged stores wrote different snapshot bytes")
	}
}

func TestLoadSnapshotMissing(t *testing.T) {
	store, _ := newTestStore(t)
	err := store.LoadSnapshot(filepath.Join(t.TempDir(), "absent.snapshot"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("err = %v, want fs.ErrNotExist", err)
	}
}

func TestLoadSnapshotIncompatible(t *testing.T) {
	dir := t.TempDir()

	cases := map[string][]byte{
		"truncated":     []byte("SP"),
		"wrong magic":   []byte("XXXX\x01rest"),
		"wrong version": []byte("SPYG\x63rest"),
		"corrupt body":  []byte("SPYG\x01not zstd at all"),
	}
	for name, raw := range cases {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, raw, 0o600); err != nil {
			t.Fatal(err)
		}
		store, _ := newTestStore(t)
		if err := store.LoadSnapshot(path); !errors.Is(err, ErrIncompatibleSnapshot) {
			t.Errorf("%s: err = %v, want ErrIncompatibleSnapshot", name, err)
		}
	}
}
