// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package track

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/bureau-foundation/spyglass/lib/clock"
	"github.com/bureau-foundation/spyglass/lib/testutil"
	"github.com/bureau-foundation/spyglass/trace"
)

func newTestClassifier(t *testing.T, alive func(pid int) bool) (*Classifier, *Store, *clock.FakeClock) {
	t.Helper()
	clk := clock.Fake(testBase)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := NewStore(clk, logger, 20)
	classifier := NewClassifier(store, clk, logger, ClassifierConfig{
		Interval:     5 * time.Second,
		ActiveWindow: 30 * time.Second,
		FailGrace:    10 * time.Minute,
		Retention:    24 * time.Hour,
	})
	if alive != nil {
		classifier.alive = alive
	} else {
		classifier.alive = func(int) bool { return false }
	}
	return classifier, store, clk
}

func TestQuietSessionWithLiveProcessStaysActive(t *testing.T) {
	classifier, store, clk := newTestClassifier(t, func(pid int) bool { return pid == 42 })

	store.Apply(trace.SessionStart{Meta: meta("s1", 0), PID: 42})
	store.Apply(trace.AgentStart{Meta: meta("s1", 0), AgentID: "a1"})

	clk.Advance(5 * time.Minute)
	classifier.Sweep()

	if got := store.sessions["s1"].Status; got != trace.SessionActive {
		t.Errorf("status = %s, want active while process lives", got)
	}
}

func TestRecentOutputStaysActiveWithoutProcess(t *testing.T) {
	classifier, store, clk := newTestClassifier(t, nil)

	store.Apply(trace.AgentStart{Meta: meta("s1", 0), AgentID: "a1"})

	clk.Advance(10 * time.Second)
	classifier.Sweep()

	if got := store.sessions["s1"].Status; got != trace.SessionActive {
		t.Errorf("status = %s, want active inside the activity window", got)
	}
}

func TestSettledSessionCompletesWithoutEndRecord(t *testing.T) {
	classifier, store, clk := newTestClassifier(t, nil)

	store.Apply(trace.SessionStart{Meta: meta("s1", 0), PID: 42})
	store.Apply(trace.AgentStart{Meta: meta("s1", 0), AgentID: "a1"})
	store.Apply(trace.AgentComplete{Meta: meta("s1", 1), AgentID: "a1", Status: trace.AgentCompleted})

	clk.Advance(time.Minute)
	classifier.Sweep()

	session := store.sessions["s1"]
	if session.Status != trace.SessionCompleted {
		t.Errorf("status = %s, want completed", session.Status)
	}
	if session.EndedAt.IsZero() {
		t.Error("EndedAt should be stamped by the sweep")
	}
}

func TestOpenSessionFailsOnlyAfterGrace(t *testing.T) {
	classifier, store, clk := newTestClassifier(t, nil)

	store.Apply(trace.SessionStart{Meta: meta("s1", 0), PID: 42})
	store.Apply(trace.AgentStart{Meta: meta("s1", 0), AgentID: "a1"})

	clk.Advance(time.Minute)
	classifier.Sweep()
	if got := store.sessions["s1"].Status; got != trace.SessionActive {
		t.Errorf("status = %s, want active inside the grace period", got)
	}

	clk.Advance(10 * time.Minute)
	classifier.Sweep()
	if got := store.sessions["s1"].Status; got != trace.SessionFailed {
		t.Errorf("status = %s, want failed after the grace period", got)
	}
	if got := store.agents["a1"].Status; got != trace.AgentRunning {
		// Agent state stays as observed; only the session verdict is
		// derived.
		t.Errorf("agent status = %s, want untouched", got)
	}
}

func TestExplicitEndBeatsSweep(t *testing.T) {
	classifier, store, clk := newTestClassifier(t, nil)

	store.Apply(trace.SessionEnd{Meta: meta("s1", 0), Status: trace.SessionFailed})

	clk.Advance(time.Hour)
	classifier.Sweep()
	if got := store.sessions["s1"].Status; got != trace.SessionFailed {
		t.Errorf("status = %s, sweep must not override an explicit end", got)
	}
}

func TestRequestExpiry(t *testing.T) {
	classifier, store, clk := newTestClassifier(t, func(int) bool { return true })

	store.Apply(trace.AgentStart{Meta: meta("s1", 0), AgentID: "a1"})
	store.Apply(trace.InputRequested{
		Meta:      meta("s1", 1),
		RequestID: "r1",
		AgentID:   "a1",
		TimeoutAt: at(60),
	})
	store.Apply(trace.InputRequested{
		Meta:      meta("s1", 1),
		RequestID: "r2",
		AgentID:   "a1",
	})

	clk.Advance(2 * time.Minute)
	classifier.Sweep()

	if got := store.requests["r1"].Status; got != trace.RequestExpired {
		t.Errorf("r1 status = %s, want expired", got)
	}
	if got := store.requests["r2"].Status; got != trace.RequestPending {
		t.Errorf("r2 status = %s, want pending without a deadline", got)
	}
	if got := store.agents["a1"].Status; got != trace.AgentWaitingInput {
		t.Errorf("agent status = %s, want waiting_input while r2 pending", got)
	}

	// A response after expiry is dropped.
	if store.Apply(trace.InputResponded{Meta: meta("s1", 200), RequestID: "r1", Response: "late"}) {
		t.Error("response to an expired request should be a no-op")
	}
}

func TestRetentionPrune(t *testing.T) {
	classifier, store, clk := newTestClassifier(t, nil)

	store.Apply(trace.SessionStart{Meta: meta("s1", 0)})
	store.Apply(trace.AgentStart{Meta: meta("s1", 0), AgentID: "a1"})
	store.Apply(trace.ToolStart{Meta: meta("s1", 1), ToolID: "t1", AgentID: "a1", Name: "Bash"})
	store.Apply(trace.InputRequested{Meta: meta("s1", 2), RequestID: "r1", AgentID: "a1"})
	store.Apply(trace.SessionEnd{Meta: meta("s1", 3), Status: trace.SessionCompleted})
	store.Apply(trace.SessionStart{Meta: meta("s2", 4)})

	clk.Advance(25 * time.Hour)
	classifier.Sweep()

	if _, ok := store.sessions["s1"]; ok {
		t.Error("terminal session past retention should be pruned")
	}
	if _, ok := store.agents["a1"]; ok {
		t.Error("pruned session left an agent behind")
	}
	if _, ok := store.tools["t1"]; ok {
		t.Error("pruned session left a tool behind")
	}
	if _, ok := store.requests["r1"]; ok {
		t.Error("pruned session left a request behind")
	}
	if _, ok := store.sessions["s2"]; !ok {
		t.Error("non-terminal session should survive retention")
	}
}

func TestClassifierLoop(t *testing.T) {
	classifier, store, clk := newTestClassifier(t, nil)

	store.Apply(trace.AgentStart{Meta: meta("s1", 0), AgentID: "a1"})
	store.Apply(trace.AgentComplete{Meta: meta("s1", 1), AgentID: "a1", Status: trace.AgentCompleted})
	for len(store.Watch()) > 0 {
		<-store.Watch()
	}

	classifier.Start(context.Background())
	defer func() {
		classifier.Stop()
		classifier.Wait()
	}()

	clk.WaitForWaiters(1)
	clk.Advance(time.Minute)

	testutil.RequireReceive(t, store.Watch(), 5*time.Second, "waiting for sweep verdict")
	if got := store.sessions["s1"].Status; got != trace.SessionCompleted {
		t.Errorf("status = %s, want completed after a ticked sweep", got)
	}
}
