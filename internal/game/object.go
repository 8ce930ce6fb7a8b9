package game

import (
	"reflect"

	"github.com/takaragames/gamecore/internal/aoi"
	"github.com/takaragames/gamecore/internal/logic"
)

// Behavior is the user-facing lifecycle surface of an object. Every hook
// runs on the object's logic thread.
type Behavior interface {
	OnEnter(o *Object, s *Scene)
	OnExit(o *Object, s *Scene)
	OnFixedUpdate(o *Object)
	OnUpdate(o *Object)
	OnAppear(o *Object, peers []*Object)
	OnDisappear(o *Object, peers []*Object)
}

// NopBehavior is a zero implementation for embedding.
type NopBehavior struct{}

func (NopBehavior) OnEnter(*Object, *Scene)        {}
func (NopBehavior) OnExit(*Object, *Scene)         {}
func (NopBehavior) OnFixedUpdate(*Object)          {}
func (NopBehavior) OnUpdate(*Object)               {}
func (NopBehavior) OnAppear(*Object, []*Object)    {}
func (NopBehavior) OnDisappear(*Object, []*Object) {}

// Interface guard: objects feed the AOI grid directly.
var _ aoi.Neighbor = (*Object)(nil)

// Object is a game entity: a job object with a process-wide serial
// number, a scene back-pointer, a component container, and a position on
// its scene's interest grid.
//
// All mutable state is owned by the object's logic thread. Other threads
// interact only through Post or the registry's PostTo.
type Object struct {
	*logic.Object

	sn       uint64
	world    *World
	scene    *Scene
	behavior Behavior

	x, z float64

	components []Component
	compIndex  map[reflect.Type]Component

	// BeforeDestroy fires on the owning thread just before the object
	// unregisters and is marked for delete.
	BeforeDestroy Event
}

// SN returns the object's process-wide serial number.
func (o *Object) SN() uint64 { return o.sn }

// Scene returns the current scene, or nil between exit and enter.
func (o *Object) Scene() *Scene { return o.scene }

// World returns the owning world.
func (o *Object) World() *World { return o.world }

// Behavior returns the attached behavior.
func (o *Object) Behavior() Behavior { return o.behavior }

// Position returns the object's coordinates. Owner thread only.
func (o *Object) Position() (x, z float64) { return o.x, o.z }

// SetPosition moves the object and, when its scene carries an interest
// grid, feeds the grid's hysteresis check. Owner thread only.
func (o *Object) SetPosition(x, z float64) {
	o.x, o.z = x, z
	if o.scene != nil && o.scene.grid != nil {
		o.scene.grid.UpdatePosition(o, x, z)
	}
}

// MoveToScene migrates the object to newScene, which may live on another
// logic thread. Two jobs: the first exits the current scene and switches
// the job thread; the drainer then hands the queue to the new thread, so
// the second job — entering the new scene — already runs there.
func (o *Object) MoveToScene(newScene *Scene) {
	if newScene == nil {
		return
	}
	o.Post(func() {
		if o.scene == newScene {
			return
		}
		if o.scene != nil {
			o.scene.Exit(o)
		}
		o.SetThread(newScene.thread)
	})
	o.Post(func() {
		newScene.Enter(o)
	})
}

// ExitScene leaves the current scene without destroying the object.
func (o *Object) ExitScene() {
	o.Post(func() {
		if o.scene != nil {
			o.scene.Exit(o)
		}
	})
}

// Destroy schedules the object's destruction on its logic thread: exit
// the scene, fire BeforeDestroy, unregister, and mark for delete. The
// drainer finalizes the object after this job; posts enqueued afterwards
// are refused.
func (o *Object) Destroy() {
	o.Post(func() {
		if o.scene != nil {
			o.scene.Exit(o)
		}
		o.BeforeDestroy.Emit()
		o.world.registry.Unregister(o.sn)
		o.MarkForDelete()
	})
}

// OnAppear implements aoi.Neighbor, forwarding to the behavior with
// peers narrowed back to objects.
func (o *Object) OnAppear(peers []aoi.Neighbor) {
	o.behavior.OnAppear(o, narrow(peers))
}

// OnDisappear implements aoi.Neighbor.
func (o *Object) OnDisappear(peers []aoi.Neighbor) {
	o.behavior.OnDisappear(o, narrow(peers))
}

func narrow(peers []aoi.Neighbor) []*Object {
	out := make([]*Object, 0, len(peers))
	for _, p := range peers {
		if obj, ok := p.(*Object); ok {
			out = append(out, obj)
		}
	}
	return out
}

func (o *Object) fixedUpdate() {
	o.behavior.OnFixedUpdate(o)
	for _, c := range o.components {
		c.OnFixedUpdate(o)
	}
}

func (o *Object) update() {
	o.behavior.OnUpdate(o)
	for _, c := range o.components {
		c.OnUpdate(o)
	}
}
