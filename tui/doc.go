// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package tui renders the live session tree in the terminal.
//
// The model is pull-based: the store exposes a revision counter and a
// coalescing change signal, and the TUI re-snapshots whenever the
// signal fires. It never receives deltas and never holds store
// internals, so a dropped frame costs nothing; the next snapshot is
// always complete. Responding to a pending input request goes through
// the bridge's respond surface.
package tui
