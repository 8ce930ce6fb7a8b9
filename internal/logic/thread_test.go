package logic

import (
	"testing"
	"time"

	"code.hybscloud.com/atomix"
	"github.com/stretchr/testify/require"
)

type countingScene struct {
	fixed  atomix.Int64
	frames atomix.Int64
}

func (s *countingScene) FixedUpdate() { s.fixed.Add(1) }
func (s *countingScene) Update()      { s.frames.Add(1) }

func TestFixedStepAccumulation(t *testing.T) {
	sc := &countingScene{}
	th := NewThread("t", testLogger(),
		WithFixedStep(10*time.Millisecond),
		WithFrameBudget(2*time.Millisecond),
	)
	th.AddScene(sc)
	th.Start()

	time.Sleep(300 * time.Millisecond)
	th.Stop()

	fixed := sc.fixed.Load()
	frames := sc.frames.Load()

	// ~30 fixed ticks over 300ms at 10ms steps; generous slack for
	// scheduler jitter, but the accumulator must not run away or stall.
	require.GreaterOrEqual(t, fixed, int64(15), "fixed updates stalled")
	require.LessOrEqual(t, fixed, int64(45), "fixed updates ran away")

	// Per-frame update runs once per iteration, and iterations are
	// bounded below by the frame budget.
	require.GreaterOrEqual(t, frames, int64(30))
	require.GreaterOrEqual(t, frames, fixed-1,
		"frame update must run at least once per iteration")
}

func TestStopRunsFinalDrain(t *testing.T) {
	th := NewThread("t", testLogger(), WithFrameBudget(time.Millisecond))
	th.Start()
	o := NewObject(th)

	// Let the loop spin, then stop it while a destruction-style job is
	// queued: the final drain must still execute it.
	time.Sleep(10 * time.Millisecond)

	ran := make(chan struct{})
	var once bool
	require.True(t, o.Post(func() {
		if !once {
			once = true
			close(ran)
		}
	}))
	th.Stop()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("job queued at stop was not drained")
	}
}

func TestClockPublishedPerFrame(t *testing.T) {
	th := NewThread("t", testLogger(),
		WithFixedStep(5*time.Millisecond),
		WithFrameBudget(time.Millisecond),
	)
	th.Start()
	defer th.Stop()

	o := NewObject(th)
	got := make(chan Time, 1)
	o.Post(func() { got <- th.Time() })

	select {
	case tm := <-got:
		require.Equal(t, 5*time.Millisecond, tm.FixedDelta)
		require.Greater(t, tm.Frame, uint64(0))
	case <-time.After(time.Second):
		t.Fatal("clock job never ran")
	}
}
