// Package game implements the scene/object runtime on top of the logic
// layer: worlds, scenes, game objects with components, lifecycle events,
// and the global object registry.
package game

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/takaragames/gamecore/internal/logic"
)

// WorldOption configures a world at construction.
type WorldOption func(*World)

// WithLogicThreads sets the number of general logic threads (the core
// thread is separate and always present).
func WithLogicThreads(n int) WorldOption {
	return func(w *World) {
		if n > 0 {
			w.threadCount = n
		}
	}
}

// WithFixedStep sets the fixed-update period for every logic thread.
func WithFixedStep(d time.Duration) WorldOption {
	return func(w *World) {
		if d > 0 {
			w.fixedStep = d
		}
	}
}

// WithFrameBudget sets the target frame time for every logic thread.
func WithFrameBudget(d time.Duration) WorldOption {
	return func(w *World) {
		if d > 0 {
			w.frameBudget = d
		}
	}
}

// World owns the logic threads, the object registry on its dedicated
// core thread, and the scenes. It has explicit start/stop; nothing in
// the runtime is constructed lazily from a hot path.
type World struct {
	log *slog.Logger

	threadCount int
	fixedStep   time.Duration
	frameBudget time.Duration

	core     *logic.Thread
	threads  []*logic.Thread
	registry *Registry

	started bool
}

// NewWorld builds a stopped world.
func NewWorld(log *slog.Logger, opts ...WorldOption) *World {
	w := &World{
		log:         log,
		threadCount: 2,
		fixedStep:   logic.DefaultFixedStep,
		frameBudget: logic.DefaultFrameBudget,
	}
	for _, opt := range opts {
		opt(w)
	}

	w.core = logic.NewThread("core", log,
		logic.WithFixedStep(w.fixedStep),
		logic.WithFrameBudget(w.frameBudget),
	)
	w.registry = NewRegistry(w.core)

	w.threads = make([]*logic.Thread, w.threadCount)
	for i := range w.threads {
		w.threads[i] = logic.NewThread(fmt.Sprintf("logic-%d", i), log,
			logic.WithFixedStep(w.fixedStep),
			logic.WithFrameBudget(w.frameBudget),
		)
	}
	return w
}

// Registry returns the global object registry.
func (w *World) Registry() *Registry { return w.registry }

// Core returns the registry's dedicated thread.
func (w *World) Core() *logic.Thread { return w.core }

// Thread returns general logic thread i.
func (w *World) Thread(i int) *logic.Thread { return w.threads[i] }

// Threads returns the general logic thread count.
func (w *World) Threads() int { return len(w.threads) }

// NewScene creates a scene bound to thread t. Call before Start, or from
// a job already running on t.
func (w *World) NewScene(name string, t *logic.Thread, opts ...SceneOption) *Scene {
	s := &Scene{name: name, world: w, thread: t}
	for _, opt := range opts {
		opt(s)
	}
	t.AddScene(s)
	return s
}

// Spawn allocates a fully constructed object and posts its one-shot
// enter job to scene. The returned pointer is usable immediately by the
// caller's thread; cross-thread traffic must wait for the registry
// publication, which happens inside enter.
func (w *World) Spawn(scene *Scene, b Behavior) *Object {
	if b == nil {
		b = NopBehavior{}
	}
	o := &Object{
		Object:   logic.NewObject(scene.thread),
		sn:       w.registry.GenerateSN(),
		world:    w,
		behavior: b,
	}
	o.Post(func() {
		scene.Enter(o)
	})
	return o
}

// SpawnAt spawns with an initial position, set before the enter job so
// the grid admission uses it.
func (w *World) SpawnAt(scene *Scene, b Behavior, x, z float64) *Object {
	if b == nil {
		b = NopBehavior{}
	}
	o := &Object{
		Object:   logic.NewObject(scene.thread),
		sn:       w.registry.GenerateSN(),
		world:    w,
		behavior: b,
		x:        x,
		z:        z,
	}
	o.Post(func() {
		scene.Enter(o)
	})
	return o
}

// Start launches the core thread and every logic thread.
func (w *World) Start() {
	if w.started {
		return
	}
	w.started = true
	w.core.Start()
	for _, t := range w.threads {
		t.Start()
	}
	w.log.Info("world started", "logic_threads", len(w.threads))
}

// Stop halts the logic threads, then the core thread, so unregister
// jobs queued by dying objects still drain. Each thread performs a
// final ready-queue drain on its way out.
func (w *World) Stop() {
	if !w.started {
		return
	}
	w.started = false
	for _, t := range w.threads {
		t.Stop()
	}
	w.core.Stop()
	w.log.Info("world stopped")
}
