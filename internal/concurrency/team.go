// File: internal/concurrency/team.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Team runs fork-join parallel regions on OS-locked worker goroutines and
// raises the lifecycle notifications of every region on the worker each one
// concerns.

package concurrency

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/momentics/corelend/api"
	"github.com/momentics/corelend/control"
)

// ErrTeamClosed is returned by Parallel after Close.
var ErrTeamClosed = errors.New("team closed")

// TeamOption configures a Team.
type TeamOption func(*Team)

// WithStartCores pins worker i to cores[i] when it starts. Workers beyond
// the slice are left unpinned.
func WithStartCores(cores []int) TeamOption {
	return func(tm *Team) { tm.startCores = append([]int(nil), cores...) }
}

// WithIdentityPinning pins worker i to core i when it starts.
func WithIdentityPinning() TeamOption {
	return func(tm *Team) { tm.identity = true }
}

// WithTeamBinder sets the binder used for start pinning.
func WithTeamBinder(b api.Binder) TeamOption {
	return func(tm *Team) { tm.binder = b }
}

// WithTeamLogger sets the logger.
func WithTeamLogger(l *control.Logger) TeamOption {
	return func(tm *Team) { tm.log = control.Component(l, "team") }
}

// Team is a fixed-size fork-join worker team.
type Team struct {
	host       api.Host
	binder     api.Binder
	log        *control.Logger
	startCores []int
	identity   bool
	workers    []*worker
	closeCh    chan struct{}
	closed     atomic.Bool
	mu         sync.Mutex // one region at a time
	wg         sync.WaitGroup

	// statistics
	regions atomic.Int64
	panics  atomic.Int64
}

var _ api.Executor = (*Team)(nil)

// region is one Parallel call as seen by the workers.
type region struct {
	body     func(tid int)
	started  chan struct{}
	joined   chan struct{}
	finished chan struct{}
	done     sync.WaitGroup
	errMu    sync.Mutex
	err      error
}

func (r *region) fail(err error) {
	r.errMu.Lock()
	if r.err == nil {
		r.err = err
	}
	r.errMu.Unlock()
}

// NewTeam starts size workers reporting to host. If size <= 0 a single
// worker is started. NewTeam returns once every worker is locked and pinned.
func NewTeam(size int, host api.Host, opts ...TeamOption) *Team {
	if size <= 0 {
		size = 1
	}
	if host == nil {
		host = nopHost{}
	}
	tm := &Team{
		host:    host,
		closeCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(tm)
	}
	if tm.log == nil {
		tm.log = control.NopLogger()
	}
	tm.workers = make([]*worker, size)
	ready := make(chan struct{}, size)
	for i := range tm.workers {
		w := &worker{id: i, team: tm, jobs: make(chan *region, 1), proc: api.NoCore}
		tm.workers[i] = w
		tm.wg.Add(1)
		go w.run(tm.startCore(i), ready)
	}
	for range tm.workers {
		<-ready
	}
	return tm
}

func (tm *Team) startCore(i int) int {
	switch {
	case i < len(tm.startCores):
		return tm.startCores[i]
	case tm.identity:
		return i
	}
	return api.NoCore
}

// NumWorkers returns the team size.
func (tm *Team) NumWorkers() int { return len(tm.workers) }

// Parallel runs body on every worker as one region. Thread 0 raises region
// begin before any worker starts and region end after all joined. A panic in
// body is recovered and reported as the returned error.
func (tm *Team) Parallel(body func(tid int)) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if tm.closed.Load() {
		return ErrTeamClosed
	}
	r := &region{
		body:     body,
		started:  make(chan struct{}),
		joined:   make(chan struct{}),
		finished: make(chan struct{}),
	}
	r.done.Add(len(tm.workers))
	for _, w := range tm.workers {
		w.jobs <- r
	}
	r.done.Wait()
	close(r.joined)
	<-r.finished
	tm.regions.Add(1)
	return r.err
}

// Close stops the workers and waits for them to exit.
func (tm *Team) Close() {
	if !tm.closed.CompareAndSwap(false, true) {
		return
	}
	tm.mu.Lock()
	close(tm.closeCh)
	tm.mu.Unlock()
	tm.wg.Wait()
}

// Stats returns basic team metrics.
func (tm *Team) Stats() map[string]int64 {
	return map[string]int64{
		"regions":     tm.regions.Load(),
		"panics":      tm.panics.Load(),
		"num_workers": int64(tm.NumWorkers()),
	}
}

// Procs reports the start core of every worker.
func (tm *Team) Procs() []int {
	out := make([]int, len(tm.workers))
	for i, w := range tm.workers {
		out[i] = int(w.procAtomic.Load())
	}
	return out
}

// worker is a single team goroutine.
type worker struct {
	id         int
	team       *Team
	jobs       chan *region
	proc       int
	procAtomic atomic.Int32
}

func (w *worker) info() api.ThreadInfo {
	return api.ThreadInfo{ID: w.id, Proc: w.proc}
}

// run locks the worker to its thread and serves regions until Close.
func (w *worker) run(core int, ready chan<- struct{}) {
	defer w.team.wg.Done()
	proc, err := pinWorker(w.team.binder, core)
	if err != nil {
		w.team.log.Warning().Err(err).Int("worker", w.id).Int("core", core).Log("start pin failed")
	}
	w.proc = proc
	w.procAtomic.Store(int32(proc))
	defer unpinWorker(w.team.binder, proc)
	ready <- struct{}{}
	for {
		select {
		case <-w.team.closeCh:
			return
		case r := <-w.jobs:
			w.serve(r)
		}
	}
}

func (w *worker) serve(r *region) {
	host := w.team.host
	th := w.info()
	if w.id == 0 {
		host.OnRegionBegin(th, len(w.team.workers))
		close(r.started)
	} else {
		<-r.started
	}
	host.OnSyncRegion(th, api.SyncBarrierImplicitParallel, api.EndpointEnd, api.ExecOverhead)
	w.execute(r)
	host.OnSyncRegion(th, api.SyncBarrierImplicitParallel, api.EndpointBegin, api.ExecOverhead)
	r.done.Done()
	if w.id == 0 {
		<-r.joined
		host.OnRegionEnd(th)
		close(r.finished)
	}
}

// execute runs the body and converts a panic into the region error.
func (w *worker) execute(r *region) {
	defer func() {
		if p := recover(); p != nil {
			w.team.panics.Add(1)
			r.fail(fmt.Errorf("worker %d panicked: %v", w.id, p))
		}
	}()
	if r.body != nil {
		r.body(w.id)
	}
}

type nopHost struct{}

func (nopHost) OnRegionBegin(api.ThreadInfo, int)                                      {}
func (nopHost) OnRegionEnd(api.ThreadInfo)                                             {}
func (nopHost) OnSyncRegion(api.ThreadInfo, api.SyncKind, api.Endpoint, api.ExecState) {}
func (nopHost) ObserveInit()                                                           {}
func (nopHost) ObserveFinalize()                                                       {}
