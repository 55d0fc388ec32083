// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package bridge delivers human answers to processes awaiting input.
//
// The two ends are independent processes with no shared memory and no
// guaranteed overlapping lifetime, so the handoff is file-based: the
// responder writes a content artifact, makes it durable, and only then
// creates a zero-byte signal artifact. The requester polls for the
// signal alone; finding it proves the content is complete. A crash
// between the two writes leaves the requester timing out normally
// rather than reading a partial answer. Abandoned artifact pairs are
// swept after a retention window.
package bridge
