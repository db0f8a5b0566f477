// internal/gateway/jobs.go
// Component C: the worker-pool job facade. Submits fire-and-forget units of
// work onto a bounded-concurrency pool; ordering across jobs is never
// guaranteed. Built on sourcegraph/conc, which recovers a panicking job in
// its worker and re-raises the panic from Wait, on top of a bounded worker
// count — exactly the "thread pool of bounded size" language of §5.
package gateway

import (
    "go.uber.org/atomic"

    "github.com/sourcegraph/conc/pool"
)

// Pool submits opaque jobs for execution off the I/O thread. The zero value
// is not usable; construct with NewPool.
type Pool struct {
    p *pool.Pool
}

// NewPool returns a Pool bounded to maxConcurrent simultaneous jobs. A
// non-positive maxConcurrent means unbounded (conc's default), which callers
// should avoid outside of tests.
func NewPool(maxConcurrent int) *Pool {
    p := pool.New()
    if maxConcurrent > 0 {
        p = p.WithMaxGoroutines(maxConcurrent)
    }
    return &Pool{p: p}
}

// Submit schedules job to run on the pool. When the pool is bounded and every
// worker is busy, it blocks the caller until a worker takes the job; job may
// run concurrently with any other submitted job.
func (jp *Pool) Submit(job func()) {
    jp.p.Go(job)
}

// Wait blocks until every job submitted so far has returned. Used only at
// shutdown to drain in-flight work (§5 shutdown protocol, step iii).
func (jp *Pool) Wait() {
    jp.p.Wait()
}

// WeakOwner is held by a long-lived component (the router engine, the
// subscription fan-out) that wants jobs submitted on its behalf to become
// no-ops once the component announces shutdown. Go has no native weak
// pointers usable for this purpose across a worker pool, so the "weak
// handle" of §4.C/§9 is modeled as an atomic aliveness flag shared between
// the owner and every handle it mints — the garbage-collected-language
// variant the design notes call out explicitly.
type WeakOwner struct {
    alive atomic.Bool
}

// NewWeakOwner returns an owner that starts alive.
func NewWeakOwner() *WeakOwner {
    o := &WeakOwner{}
    o.alive.Store(true)
    return o
}

// Handle mints a WeakHandle jobs can capture and upgrade later.
func (o *WeakOwner) Handle() WeakHandle { return WeakHandle{owner: o} }

// Invalidate marks the owner as gone; every handle's future Upgrade call
// will fail. Idempotent and safe to call from any goroutine, any number of
// times — this is the "neutralize" step of the shutdown protocol.
func (o *WeakOwner) Invalidate() { o.alive.Store(false) }

// WeakHandle is the capturable, copyable token a submitted job closes over.
type WeakHandle struct {
    owner *WeakOwner
}

// Upgrade reports whether the owning component is still alive. Jobs must
// call this first and perform no side effect if it returns false.
func (h WeakHandle) Upgrade() bool {
    if h.owner == nil {
        return false
    }
    return h.owner.alive.Load()
}

// SubmitGuarded schedules fn to run on the pool, but only if handle still
// upgrades successfully at the moment the job actually runs. This is the
// canonical cooperative-cancellation shape described in §4.C: submission
// always succeeds; execution becomes a no-op once the owner has shut down.
func (jp *Pool) SubmitGuarded(handle WeakHandle, fn func()) {
    jp.p.Go(func() {
        if !handle.Upgrade() {
            return
        }
        fn()
    })
}
