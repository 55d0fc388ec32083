// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides process-liveness probing for the activity
// classifier and the standard binary entrypoint error handler.
package process

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Fatal writes "error: err" to stderr and exits with code 1. This is
// the standard spyglass binary entrypoint error handler. Use it in
// main() for errors from run() where the structured logger may not be
// initialized.
func Fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

// Alive reports whether a process with the given pid currently exists
// and is signalable by this user. It sends signal 0, which performs
// the existence and permission checks without delivering anything.
//
// EPERM means the process exists but belongs to another user; the
// classifier treats that as not ours, so Alive returns false for it.
// Non-positive pids are never alive (0 and negatives address process
// groups, which a recorded session pid never is).
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil
}
