// Package api
// Author: momentics
//
// Host-runtime contract: the callbacks a parallel runtime raises at region
// boundaries, and the fork-join team that raises them.

package api

// Host receives lifecycle notifications from a parallel runtime.
// Every method is called on the worker thread the notification concerns.
type Host interface {
	// OnRegionBegin is raised once per region, on thread 0, before any worker starts.
	OnRegionBegin(th ThreadInfo, requested int)
	// OnRegionEnd is raised once per region, on thread 0, after all workers joined.
	OnRegionEnd(th ThreadInfo)
	// OnSyncRegion is raised on every thread for every synchronization scope.
	OnSyncRegion(th ThreadInfo, kind SyncKind, ep Endpoint, state ExecState)
	// ObserveInit records that the message-passing runtime started.
	ObserveInit()
	// ObserveFinalize records that the message-passing runtime is shutting down.
	ObserveFinalize()
}

// Executor runs parallel regions on a fixed team of threads.
type Executor interface {
	// Parallel runs body once per team thread and returns after all of them joined.
	Parallel(body func(tid int)) error

	// NumWorkers returns the team size.
	NumWorkers() int
}
