package logic

import "time"

// Time is the frame clock a logic thread publishes at the top of each
// iteration. Jobs and update hooks running on the thread read it through
// Thread.Time; it is never shared across threads.
type Time struct {
	// Delta is the wall time since the previous frame.
	Delta time.Duration

	// FixedDelta is the configured fixed-step period.
	FixedDelta time.Duration

	// Elapsed is the total run time of the thread.
	Elapsed time.Duration

	// Frame counts loop iterations since Start.
	Frame uint64
}
