package logic

import (
	"log/slog"
	"time"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/lfq"
	"code.hybscloud.com/spin"
)

// Scene is the per-thread update surface. The concrete scene type lives
// in the game package; the thread only needs the two tick hooks.
type Scene interface {
	FixedUpdate()
	Update()
}

const (
	// DefaultFixedStep is the fixed-update period (50 Hz).
	DefaultFixedStep = 20 * time.Millisecond

	// DefaultFrameBudget is the target frame time (~60 fps).
	DefaultFrameBudget = 16660 * time.Microsecond

	readyQueueCap = 4096
)

// Option configures a Thread.
type Option func(*Thread)

// WithFixedStep overrides the fixed-update period.
func WithFixedStep(d time.Duration) Option {
	return func(t *Thread) {
		if d > 0 {
			t.fixedStep = d
		}
	}
}

// WithFrameBudget overrides the target frame time.
func WithFrameBudget(d time.Duration) Option {
	return func(t *Thread) {
		if d > 0 {
			t.frameBudget = d
		}
	}
}

// WithDrainBudget bounds how many job objects one frame may drain. Zero
// means unbounded; leftovers stay scheduled for the next frame either
// way.
func WithDrainBudget(n int) Option {
	return func(t *Thread) { t.drainBudget = n }
}

// Thread is a cooperative logic loop. Each iteration drains the ready
// queue of scheduled job objects, runs fixed-step updates for the scenes
// it owns, runs the per-frame update once, and sleeps off the remaining
// frame budget.
type Thread struct {
	name string
	log  *slog.Logger

	ready  *lfq.MPSC[*Object]
	scenes []Scene

	// ctl serializes control-plane mutations (scene add/remove) with
	// the frame loop: they run as jobs on the thread itself.
	ctl *Object

	fixedStep   time.Duration
	frameBudget time.Duration
	drainBudget int

	running atomix.Bool
	started bool
	done    chan struct{}

	clock     Time
	accum     time.Duration
	lastFrame time.Time
}

// NewThread creates a stopped logic thread.
func NewThread(name string, log *slog.Logger, opts ...Option) *Thread {
	t := &Thread{
		name:        name,
		log:         log.With("logic_thread", name),
		ready:       lfq.NewMPSC[*Object](readyQueueCap),
		fixedStep:   DefaultFixedStep,
		frameBudget: DefaultFrameBudget,
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.ctl = NewObject(t)
	return t
}

// Name returns the thread name.
func (t *Thread) Name() string { return t.name }

// Time returns the clock published for the current frame. Valid only
// from jobs and update hooks running on this thread.
func (t *Thread) Time() Time { return t.clock }

// FixedStep returns the fixed-update period.
func (t *Thread) FixedStep() time.Duration { return t.fixedStep }

// AddScene attaches a scene to this thread's update loop. Safe from any
// thread: the mutation runs as a job on the thread, taking effect at the
// next frame's drain.
func (t *Thread) AddScene(s Scene) {
	t.ctl.Post(func() {
		t.scenes = append(t.scenes, s)
	})
}

// RemoveScene detaches a scene. Same discipline as AddScene.
func (t *Thread) RemoveScene(s Scene) {
	t.ctl.Post(func() {
		for i, cur := range t.scenes {
			if cur == s {
				t.scenes = append(t.scenes[:i], t.scenes[i+1:]...)
				return
			}
		}
	})
}

// Schedule enqueues a job object whose scheduled latch was just won.
// The ready queue is bounded, but a scheduled object must never be
// dropped — its latch would strand the queued work — so a full queue is
// ridden out with adaptive spinning.
func (t *Thread) Schedule(o *Object) {
	sw := spin.Wait{}
	for t.ready.Enqueue(&o) != nil {
		sw.Once()
	}
}

// Start launches the loop.
func (t *Thread) Start() {
	if t.started {
		return
	}
	t.started = true
	t.done = make(chan struct{})
	t.running.StoreRelease(true)
	t.lastFrame = time.Now()
	go t.run()
}

// Stop terminates the loop and joins it. The thread performs one final
// ready-queue drain before exiting so destruction jobs are honored.
func (t *Thread) Stop() {
	if !t.started {
		return
	}
	t.started = false
	t.running.StoreRelease(false)
	<-t.done
}

func (t *Thread) run() {
	defer close(t.done)

	for t.running.LoadAcquire() {
		frameStart := time.Now()
		dt := frameStart.Sub(t.lastFrame)
		t.lastFrame = frameStart

		t.clock.Delta = dt
		t.clock.FixedDelta = t.fixedStep
		t.clock.Elapsed += dt
		t.clock.Frame++

		t.drainReady()

		t.accum += dt
		for t.accum >= t.fixedStep {
			for _, s := range t.scenes {
				s.FixedUpdate()
			}
			t.accum -= t.fixedStep
		}

		for _, s := range t.scenes {
			s.Update()
		}

		if sleep := t.frameBudget - time.Since(frameStart); sleep > 0 {
			time.Sleep(sleep)
		}
	}

	// Final drain: destruction and exit jobs posted during shutdown
	// still run.
	t.drainReady()
}

func (t *Thread) drainReady() {
	drained := 0
	for {
		if t.drainBudget > 0 && drained >= t.drainBudget {
			return
		}
		o, err := t.ready.Dequeue()
		if err != nil {
			return
		}
		o.drain(t.log)
		drained++
	}
}
