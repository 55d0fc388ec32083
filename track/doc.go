// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package track maintains the live hierarchical model of observed
// agent activity: sessions owning agents owning tool uses and input
// requests.
//
// The Store is the single entry point for all mutation. Apply reduces
// one typed event into the model and reports whether observable state
// changed; it is idempotent for repeated entity ids and tolerant of
// out-of-order arrival. Events referencing entities that have not been
// seen yet synthesize placeholder ancestors (marked Synthetic) so the
// tree stays navigable, and a later start event for a placeholder
// merges into it rather than duplicating the subtree. Terminal
// statuses are monotonic: nothing transitions an entity out of
// completed, failed, responded, or expired.
//
// The activity classifier and the retention pruner route their writes
// through the same Apply entry point as ingested events, so revision
// accounting and change notification stay uniform no matter who
// mutates the model.
//
// Readers never see the live structures: Snapshot returns a deep copy
// of the whole tree plus a monotonic revision number, and Watch
// returns a coalescing change signal. The recovery snapshot
// (snapshot.go) persists the model across restarts for late-joining
// observers; it is an advisory cache, never a source of truth.
package track
