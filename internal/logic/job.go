// Package logic is the cooperative runtime: job objects (per-owner
// single-consumer queues) and logic threads (frame loops that drain
// scheduled objects and run fixed-step and per-frame updates).
package logic

import (
	"log/slog"
	"sync/atomic"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/lfq"
)

// Job is one unit of deferred work executed on the owner's logic thread.
type Job func()

// JobQueueCap bounds a job object's queue. A full queue fails the post;
// producers are never blocked.
const JobQueueCap = 4096

// Object is a single-consumer job queue with a scheduled latch. At most
// one logic thread drains it at a time; migration between threads is
// detected by the drainer and hands the remaining work to the new
// thread with the latch still held.
type Object struct {
	queue   *lfq.MPSC[Job]
	pending atomix.Int64

	// processing is the scheduled latch: set while the object sits in a
	// ready queue or is being drained.
	processing atomix.Int32

	// deleted is one-way; posts are refused once it is set and the
	// drainer finalizes the object after its last drain.
	deleted atomix.Bool

	thread atomic.Pointer[Thread]

	// finalize runs on the draining thread after the final drain of a
	// deleted object.
	finalize func()
}

// NewObject creates a job object bound to t.
func NewObject(t *Thread) *Object {
	if t == nil {
		panic("logic: job object needs a thread")
	}
	o := &Object{queue: lfq.NewMPSC[Job](JobQueueCap)}
	o.thread.Store(t)
	return o
}

// Thread returns the object's current logic thread.
func (o *Object) Thread() *Thread { return o.thread.Load() }

// SetThread migrates the object to t. Only a job currently running on
// the object may call it; the drainer notices the change after the job
// returns and re-schedules the object on t.
func (o *Object) SetThread(t *Thread) {
	if t == nil {
		panic("logic: job object thread cannot be nil")
	}
	o.thread.Store(t)
}

// SetFinalizer installs the destruction hook run by the drainer after
// the final drain of a deleted object.
func (o *Object) SetFinalizer(fn func()) { o.finalize = fn }

// MarkForDelete latches the object for destruction. Further posts are
// refused; the current drain (or the next scheduled one) finalizes it.
func (o *Object) MarkForDelete() { o.deleted.StoreRelease(true) }

// MarkedForDelete reports whether the delete latch is set.
func (o *Object) MarkedForDelete() bool { return o.deleted.LoadAcquire() }

// Pending returns the approximate queued job count.
func (o *Object) Pending() int64 { return o.pending.LoadAcquire() }

// Post enqueues j and schedules the object on its logic thread if no
// drain is pending. Returns false when the object is marked for delete
// or its queue is full; the job will not run in either case.
func (o *Object) Post(j Job) bool {
	if err := o.queue.Enqueue(&j); err != nil {
		return false
	}
	o.pending.AddAcqRel(1)

	// The enqueue-then-check order pairs with MarkForDelete running
	// inside a drained job: either the drainer sees this job, or we see
	// the latch.
	if o.deleted.LoadAcquire() {
		return false
	}

	if o.processing.CompareAndSwapAcqRel(0, 1) {
		o.thread.Load().Schedule(o)
	}
	return true
}

// drain executes queued jobs until the queue is empty or the object
// migrated to another thread. Called only by the logic thread that
// dequeued the object from its ready queue.
func (o *Object) drain(log *slog.Logger) {
	old := o.thread.Load()

	for {
		j, err := o.queue.Dequeue()
		if err != nil {
			break
		}
		o.pending.Add(-1)
		runJob(j, log)

		// A job may have migrated the object (scene change). Hand the
		// remaining work to the new thread; the latch stays set because
		// the object is still scheduled, just elsewhere.
		if cur := o.thread.Load(); cur != old {
			cur.Schedule(o)
			return
		}
	}

	if o.deleted.LoadAcquire() {
		// Destruction happens here, after the final drain, never on the
		// poster's thread. The latch is left set so no one re-schedules
		// a dead object.
		if o.finalize != nil {
			o.finalize()
		}
		return
	}

	o.processing.StoreRelease(0)

	// Lost-wakeup check: a producer that enqueued between the last
	// dequeue and the latch clear saw processing==1 and did not
	// schedule. Re-arm and re-schedule on its behalf.
	if o.pending.LoadAcquire() > 0 {
		if o.processing.CompareAndSwapAcqRel(0, 1) {
			o.thread.Load().Schedule(o)
		}
	}
}

func runJob(j Job, log *slog.Logger) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("job panicked", "panic", p)
		}
	}()
	j()
}
