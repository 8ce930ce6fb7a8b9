package game

import "reflect"

// Component is a unit of behavior aggregated by an object. Components
// are not independently schedulable; their hooks run on the owner's
// logic thread as part of the owner's update.
type Component interface {
	OnAttach(owner *Object)
	OnDetach(owner *Object)
	OnFixedUpdate(owner *Object)
	OnUpdate(owner *Object)
}

// NopComponent is a zero implementation for embedding.
type NopComponent struct{}

func (NopComponent) OnAttach(*Object)      {}
func (NopComponent) OnDetach(*Object)      {}
func (NopComponent) OnFixedUpdate(*Object) {}
func (NopComponent) OnUpdate(*Object)      {}

// Attach adds c to o and invokes its attach hook. One component per
// concrete type; attaching a duplicate replaces the previous instance
// after detaching it. Owner thread only.
func Attach[T Component](o *Object, c T) T {
	key := reflect.TypeOf(c)
	if o.compIndex == nil {
		o.compIndex = make(map[reflect.Type]Component)
	}
	if prev, ok := o.compIndex[key]; ok {
		o.removeComponent(prev)
	}
	o.compIndex[key] = c
	o.components = append(o.components, c)
	c.OnAttach(o)
	return c
}

// ComponentOf looks up o's component of concrete type T.
func ComponentOf[T Component](o *Object) (T, bool) {
	var zero T
	c, ok := o.compIndex[reflect.TypeOf(zero)]
	if !ok {
		return zero, false
	}
	return c.(T), true
}

// Detach removes o's component of concrete type T, invoking its detach
// hook. Returns false when absent.
func Detach[T Component](o *Object) bool {
	var zero T
	key := reflect.TypeOf(zero)
	c, ok := o.compIndex[key]
	if !ok {
		return false
	}
	delete(o.compIndex, key)
	o.removeComponent(c)
	return true
}

func (o *Object) removeComponent(c Component) {
	for i, cur := range o.components {
		if cur == c {
			o.components = append(o.components[:i], o.components[i+1:]...)
			break
		}
	}
	c.OnDetach(o)
}
