// Copyright 2026 The RqCore Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction.
//
// The deployment pipeline sleeps in several places (session readiness
// polling, the task scheduler's wait-until-next-trigger loop) and reads
// the wall clock for date stamps and ledger timestamps. Testing those
// paths against real time would make the tests slow and racy, so every
// time-dependent component takes a Clock.
//
// In production:
//
//	supervisor := deploy.NewSessionSupervisor(server, name, clock.Real(), logger)
//
// In tests:
//
//	c := clock.Fake(time.Date(2026, 8, 1, 5, 30, 0, 0, time.UTC))
//	// ... start the goroutine under test ...
//	c.WaitForTimers(1)          // block until it registers a sleep
//	c.Advance(10 * time.Second) // fire it deterministically
//
// WaitForTimers closes the race between a goroutine registering its
// timer and the test advancing the clock — the usual failure mode of
// tests that substitute time.Sleep for synchronization.
package clock
