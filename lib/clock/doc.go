// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for testability.
//
// Production code accepts a Clock parameter instead of calling time.Now,
// time.After, time.NewTicker, or time.Sleep directly. In production,
// Real() provides the standard library behavior. In tests, Fake()
// provides a deterministic clock that advances only when Advance is
// called.
//
// Every periodic behavior in spyglass (the activity classifier sweep,
// the snapshot cadence, the bridge retention sweep, and the bridge
// response poller) takes a Clock so tests can drive deadlines without
// real sleeping.
//
// # Wiring Pattern
//
// Add a Clock field to structs that use time:
//
//	type Classifier struct {
//	    clock clock.Clock
//	    // ...
//	}
//
// In tests:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	// ... start goroutines ...
//	c.WaitForWaiters(1) // wait for the goroutine to register its timer
//	c.Advance(5 * time.Second) // fire it deterministically
package clock
