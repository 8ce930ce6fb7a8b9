package game

// Move integrates a constant velocity on the fixed tick and pushes the
// result through SetPosition, which feeds the scene's interest grid.
// Velocity is mutated only on the owner's logic thread, typically from a
// posted job.
type Move struct {
	NopComponent

	VX, VZ float64
}

func (m *Move) OnFixedUpdate(o *Object) {
	if m.VX == 0 && m.VZ == 0 {
		return
	}
	dt := o.Thread().Time().FixedDelta.Seconds()
	x, z := o.Position()
	o.SetPosition(x+m.VX*dt, z+m.VZ*dt)
}
