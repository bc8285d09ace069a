// File: internal/lifecycle/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package lifecycle turns host runtime notifications into ownership
// transitions on the shared core table.
//
// A Tool is created once per process. The host calls OnRegionBegin from
// thread 0 before a parallel region, OnSyncRegion from every thread around
// the region's implicit barrier, and OnRegionEnd after the join. Opportunist
// processes borrow free cores in bulk at region begin and hand them back at
// the barrier; primary processes lend their worker cores out at the barrier
// and reclaim one when the barrier ends.
//
// All table mutations are single compare-and-swap operations. Contention is
// retried with a fixed sleep until the claim succeeds, the attempt cap is hit,
// or ObserveFinalize is called.
package lifecycle
