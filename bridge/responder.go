// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/spyglass/lib/atomicfile"
	"github.com/bureau-foundation/spyglass/lib/clock"
	"github.com/bureau-foundation/spyglass/trace"
	"github.com/bureau-foundation/spyglass/track"
)

const (
	contentSuffix = ".response"
	signalSuffix  = ".ready"
)

// ErrUnknownRequest reports a respond call against an id that is not
// a pending input request.
var ErrUnknownRequest = errors.New("unknown or non-pending input request")

// WriteFailure reports that the artifact write failed. The request
// stays pending so the user can retry.
type WriteFailure struct {
	RequestID string
	Err       error
}

func (e *WriteFailure) Error() string {
	return fmt.Sprintf("writing response artifacts for %s: %v", e.RequestID, e.Err)
}

func (e *WriteFailure) Unwrap() error { return e.Err }

// Responder is the dashboard's half of the bridge.
type Responder struct {
	dir    string
	store  *track.Store
	clock  clock.Clock
	logger *slog.Logger
}

// NewResponder returns a Responder writing artifacts under dir. The
// directory is created if missing.
func NewResponder(dir string, store *track.Store, clk clock.Clock, logger *slog.Logger) (*Responder, error) {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating response directory: %w", err)
	}
	return &Responder{dir: dir, store: store, clock: clk, logger: logger}, nil
}

// Respond writes the artifact pair for a pending request and marks it
// responded. The content artifact must be durable before the signal
// artifact exists; both writes go through atomic replace, so the
// requester can never observe a partial content file. Delivery is
// at-most-once from this side: the request is marked responded
// whether or not the requester ever consumes the artifacts.
func (r *Responder) Respond(requestID, response string) error {
	request, ok := r.store.PendingRequest(requestID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRequest, requestID)
	}

	content := filepath.Join(r.dir, requestID+contentSuffix)
	if err := atomicfile.Write(content, []byte(response), 0o600); err != nil {
		return &WriteFailure{RequestID: requestID, Err: err}
	}
	signal := filepath.Join(r.dir, requestID+signalSuffix)
	if err := atomicfile.Write(signal, nil, 0o600); err != nil {
		return &WriteFailure{RequestID: requestID, Err: err}
	}

	r.store.Apply(trace.InputResponded{
		Meta: trace.Meta{
			Session:   request.SessionID,
			Timestamp: r.clock.Now().UTC(),
		},
		RequestID: requestID,
		Response:  response,
	})
	r.logger.Info("input response delivered",
		"request", requestID, "session", request.SessionID)
	return nil
}
