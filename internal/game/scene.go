package game

import (
	"github.com/takaragames/gamecore/internal/aoi"
	"github.com/takaragames/gamecore/internal/logic"
)

// Interface guard: scenes plug into the logic thread's frame loop.
var _ logic.Scene = (*Scene)(nil)

// SceneHooks lets an application observe a scene's ticks. Optional.
type SceneHooks interface {
	OnFixedUpdate(s *Scene)
	OnUpdate(s *Scene)
}

// SceneOption configures a scene at construction.
type SceneOption func(*Scene)

// WithGrid attaches an interest grid. The grid is owned by the scene and
// mutated only from the scene's logic thread.
func WithGrid(g *aoi.Grid) SceneOption {
	return func(s *Scene) { s.grid = g }
}

// WithSceneHooks attaches tick observers.
func WithSceneHooks(h SceneHooks) SceneOption {
	return func(s *Scene) { s.hooks = h }
}

// Scene is a container of game objects sharing one logic thread and,
// optionally, one interest grid. Membership is mutated only from that
// thread, via jobs on the objects themselves.
type Scene struct {
	name   string
	world  *World
	thread *logic.Thread
	grid   *aoi.Grid
	hooks  SceneHooks

	objects []*Object
}

// Name returns the scene name.
func (s *Scene) Name() string { return s.name }

// Thread returns the logic thread that owns the scene.
func (s *Scene) Thread() *logic.Thread { return s.thread }

// Grid returns the attached interest grid, or nil.
func (s *Scene) Grid() *aoi.Grid { return s.grid }

// Len returns the current object count. Owner thread only.
func (s *Scene) Len() int { return len(s.objects) }

// Objects returns the scene's member list. Owner thread only; the slice
// is the scene's own storage.
func (s *Scene) Objects() []*Object { return s.objects }

// Enter admits obj. Runs on the scene's thread as a job on obj. The
// order is load-bearing: the object joins the list and runs its enter
// hook before the registry publishes it, so a cross-thread observer can
// never reach a half-entered entity.
func (s *Scene) Enter(obj *Object) {
	s.objects = append(s.objects, obj)
	obj.scene = s
	obj.behavior.OnEnter(obj, s)
	if s.grid != nil {
		s.grid.Add(obj, obj.x, obj.z)
	}
	s.world.registry.Register(obj)
}

// Exit removes obj. Runs on the scene's thread as a job on obj.
func (s *Scene) Exit(obj *Object) {
	if s.grid != nil {
		s.grid.Remove(obj)
	}
	obj.behavior.OnExit(obj, s)
	obj.scene = nil
	for i, cur := range s.objects {
		if cur == obj {
			s.objects = append(s.objects[:i], s.objects[i+1:]...)
			break
		}
	}
}

// FixedUpdate runs one fixed tick over the scene. Logic thread only.
func (s *Scene) FixedUpdate() {
	if s.hooks != nil {
		s.hooks.OnFixedUpdate(s)
	}
	for _, obj := range s.objects {
		obj.fixedUpdate()
	}
}

// Update runs the per-frame tick. Logic thread only.
func (s *Scene) Update() {
	if s.hooks != nil {
		s.hooks.OnUpdate(s)
	}
	for _, obj := range s.objects {
		obj.update()
	}
}
