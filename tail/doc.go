// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package tail discovers append-only JSONL logs under a watch root and
// reads them incrementally.
//
// Discovery combines inotify with a periodic rescan: the watch root
// holds one subdirectory per project, each containing log files named
// by session id. Reading is cursor-based: a byte offset plus line
// number per file, persisted across restarts, so a resumed observer
// re-reads nothing it already delivered. Only complete lines are
// consumed; a partially appended trailing line stays unread until its
// newline arrives. A file shorter than its cursor was truncated and
// is re-read from the start, relying on the downstream reducer's
// idempotence rather than on any dedup here.
package tail
