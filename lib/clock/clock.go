// Copyright 2026 The RqCore Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock abstracts time operations so that sleeping and scheduling code
// can be driven deterministically in tests. Production code injects
// Real(); tests inject Fake() and advance time explicitly.
//
// Any production function that would call time.Now, time.After,
// time.NewTicker, or time.Sleep takes a Clock instead (usually as a
// field on the owning struct).
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once
	// duration d has elapsed. If d <= 0, the channel receives
	// immediately.
	After(d time.Duration) <-chan time.Time

	// NewTicker returns a Ticker delivering ticks on its C channel
	// every d. Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker

	// Sleep pauses the calling goroutine for at least duration d.
	Sleep(d time.Duration)
}

// Ticker delivers periodic ticks on C. Call Stop to release the
// underlying timer; Stop does not close C.
//
// C is buffered with capacity 1, matching time.Ticker: if the consumer
// falls behind, ticks are dropped rather than queued.
type Ticker struct {
	C <-chan time.Time

	stopFunc func()
}

// Stop turns off the ticker. No further ticks are sent on C.
func (t *Ticker) Stop() { t.stopFunc() }
