// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bureau-foundation/spyglass/lib/clock"
)

// Awaiter is the requester's half of the bridge: it polls for the
// signal artifact and consumes the pair. It lives in-repo for the
// demo harness and as the reference consumer of the protocol.
type Awaiter struct {
	dir   string
	clock clock.Clock
	poll  time.Duration
}

// NewAwaiter returns an Awaiter polling dir every poll interval.
func NewAwaiter(dir string, clk clock.Clock, poll time.Duration) *Awaiter {
	if clk == nil {
		clk = clock.Real()
	}
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	return &Awaiter{dir: dir, clock: clk, poll: poll}
}

// Await blocks until a response for requestID is signalled, the
// timeout elapses, or ctx is cancelled. The content artifact is read
// only after the signal artifact is observed, then both are deleted.
func (a *Awaiter) Await(ctx context.Context, requestID string, timeout time.Duration) (string, error) {
	signal := filepath.Join(a.dir, requestID+signalSuffix)
	content := filepath.Join(a.dir, requestID+contentSuffix)
	deadline := a.clock.Now().Add(timeout)

	for {
		if _, err := os.Stat(signal); err == nil {
			raw, err := os.ReadFile(content)
			if err != nil {
				return "", fmt.Errorf("reading response artifact: %w", err)
			}
			os.Remove(signal)
			os.Remove(content)
			return string(raw), nil
		}
		if !a.clock.Now().Before(deadline) {
			return "", fmt.Errorf("no response for %s within %v", requestID, timeout)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-a.clock.After(a.poll):
		}
	}
}
