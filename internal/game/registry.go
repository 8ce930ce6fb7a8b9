package game

import (
	"code.hybscloud.com/atomix"

	"github.com/takaragames/gamecore/internal/logic"
)

// Registry is the global addressable map from serial number to object,
// used for cross-scene messaging. It is itself a job object bound to the
// world's core logic thread: every table mutation and lookup runs there,
// so the map needs no locking. Only SN generation is a plain atomic,
// callable from any thread.
type Registry struct {
	job   *logic.Object
	table map[uint64]*Object

	nextSN atomix.Uint64
}

// NewRegistry binds a registry to the core thread.
func NewRegistry(core *logic.Thread) *Registry {
	return &Registry{
		job:   logic.NewObject(core),
		table: make(map[uint64]*Object),
	}
}

// GenerateSN issues the next serial number. Monotonic and unique for the
// process lifetime; safe from any thread.
func (r *Registry) GenerateSN() uint64 {
	return r.nextSN.AddAcqRel(1)
}

// Register publishes obj under its serial number. Queued; the object is
// addressable once the core thread runs the job.
func (r *Registry) Register(obj *Object) {
	if obj == nil {
		return
	}
	sn := obj.sn
	r.job.Post(func() {
		r.table[sn] = obj
	})
}

// Unregister withdraws sn. Queued.
func (r *Registry) Unregister(sn uint64) {
	r.job.Post(func() {
		delete(r.table, sn)
	})
}

// PostTo forwards job to the object registered under sn, if any. The
// forward always goes through the target's own job queue — the registry
// never calls into the target directly, preserving per-object
// single-threaded execution.
func (r *Registry) PostTo(sn uint64, job logic.Job) {
	r.job.Post(func() {
		if obj, ok := r.table[sn]; ok {
			obj.Post(job)
		}
	})
}

// Lookup runs fn on the core thread with the object registered under sn,
// or nil. fn must not retain the pointer past its call.
func (r *Registry) Lookup(sn uint64, fn func(*Object)) {
	r.job.Post(func() {
		fn(r.table[sn])
	})
}
