// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/spyglass/lib/clock"
	"github.com/bureau-foundation/spyglass/trace"
	"github.com/bureau-foundation/spyglass/track"
)

var testBase = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestResponder(t *testing.T) (*Responder, *track.Store, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "responses")
	clk := clock.Fake(testBase)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := track.NewStore(clk, logger, 20)
	responder, err := NewResponder(dir, store, clk, logger)
	if err != nil {
		t.Fatal(err)
	}
	return responder, store, dir
}

func requestInput(t *testing.T, store *track.Store, requestID string) {
	t.Helper()
	store.Apply(trace.AgentStart{
		Meta:    trace.Meta{Session: "s1", Timestamp: testBase},
		AgentID: "a1",
	})
	store.Apply(trace.InputRequested{
		Meta:      trace.Meta{Session: "s1", Timestamp: testBase},
		RequestID: requestID,
		AgentID:   "a1",
		Type:      trace.RequestSelection,
		Prompt:    "pick one",
		Options:   []trace.Option{{Label: "A", Value: "a"}, {Label: "B", Value: "b"}},
	})
}

func TestRespondWritesPairAndMarksResponded(t *testing.T) {
	responder, store, dir := newTestResponder(t)
	requestInput(t, store, "r1")

	if err := responder.Respond("r1", "A"); err != nil {
		t.Fatalf("Respond: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(dir, "r1.response"))
	if err != nil {
		t.Fatalf("content artifact: %v", err)
	}
	if string(content) != "A" {
		t.Errorf("content = %q, want A", content)
	}
	signal, err := os.Stat(filepath.Join(dir, "r1.ready"))
	if err != nil {
		t.Fatalf("signal artifact: %v", err)
	}
	if signal.Size() != 0 {
		t.Errorf("signal artifact size = %d, want 0", signal.Size())
	}

	if _, ok := store.PendingRequest("r1"); ok {
		t.Error("request should be marked responded")
	}
}

func TestRespondUnknownRequest(t *testing.T) {
	responder, _, dir := newTestResponder(t)

	err := responder.Respond("nope", "x")
	if !errors.Is(err, ErrUnknownRequest) {
		t.Errorf("err = %v, want ErrUnknownRequest", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("no artifacts should be written for an unknown request, found %d", len(entries))
	}
}

func TestRespondTwiceFailsSecondTime(t *testing.T) {
	responder, store, _ := newTestResponder(t)
	requestInput(t, store, "r1")

	if err := responder.Respond("r1", "A"); err != nil {
		t.Fatal(err)
	}
	if err := responder.Respond("r1", "B"); !errors.Is(err, ErrUnknownRequest) {
		t.Errorf("second respond err = %v, want ErrUnknownRequest", err)
	}
}

func TestRespondWriteFailureKeepsRequestPending(t *testing.T) {
	responder, store, dir := newTestResponder(t)
	requestInput(t, store, "r1")

	// Replace the artifact directory with a file so the write fails.
	if err := os.RemoveAll(dir); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dir, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	err := responder.Respond("r1", "A")
	var failure *WriteFailure
	if !errors.As(err, &failure) {
		t.Fatalf("err = %v, want WriteFailure", err)
	}
	if _, ok := store.PendingRequest("r1"); !ok {
		t.Error("request must stay pending after a write failure")
	}
}

func TestAwaitConsumesPair(t *testing.T) {
	responder, store, dir := newTestResponder(t)
	requestInput(t, store, "r1")
	if err := responder.Respond("r1", "A"); err != nil {
		t.Fatal(err)
	}

	awaiter := NewAwaiter(dir, nil, 10*time.Millisecond)
	response, err := awaiter.Await(context.Background(), "r1", time.Second)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if response != "A" {
		t.Errorf("response = %q, want A", response)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("artifacts should be deleted after consumption, found %d", len(entries))
	}
}

func TestAwaitIgnoresContentWithoutSignal(t *testing.T) {
	_, _, dir := newTestResponder(t)

	// A crash between the two writes leaves only the content file.
	if err := os.WriteFile(filepath.Join(dir, "r1.response"), []byte("partial"), 0o600); err != nil {
		t.Fatal(err)
	}

	awaiter := NewAwaiter(dir, nil, 5*time.Millisecond)
	if _, err := awaiter.Await(context.Background(), "r1", 30*time.Millisecond); err == nil {
		t.Error("Await should time out when only the content artifact exists")
	}
}

func TestSweepRemovesStaleArtifacts(t *testing.T) {
	_, _, dir := newTestResponder(t)
	clk := clock.Fake(testBase)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	stale := filepath.Join(dir, "old.response")
	orphan := filepath.Join(dir, "old.ready")
	other := filepath.Join(dir, "keep.txt")
	for _, path := range []string{stale, orphan, other} {
		if err := os.WriteFile(path, nil, 0o600); err != nil {
			t.Fatal(err)
		}
	}
	past := testBase.Add(-2 * time.Hour)
	for _, path := range []string{stale, orphan} {
		if err := os.Chtimes(path, past, past); err != nil {
			t.Fatal(err)
		}
	}

	NewSweeper(dir, clk, logger, time.Minute, time.Hour).Sweep()

	for _, path := range []string{stale, orphan} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("%s should be swept", path)
		}
	}
	if _, err := os.Stat(other); err != nil {
		t.Errorf("non-artifact file should survive the sweep: %v", err)
	}
}
