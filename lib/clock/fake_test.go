// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

func TestFakeNow(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := Fake(start)

	if !c.Now().Equal(start) {
		t.Errorf("Now() = %v, want %v", c.Now(), start)
	}

	c.Advance(90 * time.Second)
	if !c.Now().Equal(start.Add(90 * time.Second)) {
		t.Errorf("Now() after Advance = %v, want %v", c.Now(), start.Add(90*time.Second))
	}
}

func TestFakeAfterFiresOnAdvance(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := Fake(start)

	ch := c.After(10 * time.Second)

	select {
	case <-ch:
		t.Fatal("After fired before Advance")
	default:
	}

	c.Advance(10 * time.Second)

	select {
	case fired := <-ch:
		if !fired.Equal(start.Add(10 * time.Second)) {
			t.Errorf("fire time = %v, want %v", fired, start.Add(10*time.Second))
		}
	default:
		t.Fatal("After did not fire after Advance")
	}
}

func TestFakeAfterNonPositiveFiresImmediately(t *testing.T) {
	c := Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	select {
	case <-c.After(0):
	default:
		t.Fatal("After(0) did not fire immediately")
	}
}

func TestFakeTickerReschedules(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := Fake(start)

	ticker := c.NewTicker(time.Minute)
	defer ticker.Stop()

	c.Advance(time.Minute)
	select {
	case <-ticker.C:
	default:
		t.Fatal("no tick after first interval")
	}

	c.Advance(time.Minute)
	select {
	case <-ticker.C:
	default:
		t.Fatal("no tick after second interval")
	}
}

func TestFakeTickerStop(t *testing.T) {
	c := Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	ticker := c.NewTicker(time.Minute)
	ticker.Stop()
	c.Advance(5 * time.Minute)

	select {
	case <-ticker.C:
		t.Fatal("stopped ticker delivered a tick")
	default:
	}
}

func TestFakeWaitForWaiters(t *testing.T) {
	c := Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	registered := make(chan struct{})
	released := make(chan struct{})
	go func() {
		ch := c.After(time.Second)
		close(registered)
		<-ch
		close(released)
	}()

	<-registered
	c.WaitForWaiters(1)
	c.Advance(time.Second)

	select {
	case <-released:
	case <-time.After(5 * time.Second):
		t.Fatal("waiter not released after Advance")
	}
}
