// File: internal/table/claim.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Lock-free acquisition and release primitives. None of them block; callers
// that need a result retry with their own backoff.

package table

import (
	"sync/atomic"

	"github.com/eapache/queue"

	"github.com/momentics/corelend/api"
)

// ClaimOne moves core from one state to another with a single compare-and-swap.
// It reports whether the swap happened.
func (t *Table) ClaimOne(core int, from, to api.CellState) bool {
	if core < 0 || core >= t.count || t.closed.Load() {
		return false
	}
	return atomic.CompareAndSwapInt32(&t.cells[core], int32(from), int32(to))
}

// ClaimAll claims want free cores for an opportunist, scanning from core 1.
// Core 0 is never scanned. If fewer than want cores could be claimed, every
// core claimed by this call is handed back and nil is returned.
func (t *Table) ClaimAll(want int) []int {
	if want <= 0 {
		return []int{}
	}
	claimed := queue.New()
	for core := 1; core < t.count && claimed.Length() < want; core++ {
		if t.ClaimOne(core, api.CellFree, api.CellOpportunist) {
			claimed.Add(core)
		}
	}
	if claimed.Length() < want {
		for claimed.Length() > 0 {
			core := claimed.Remove().(int)
			t.ClaimOne(core, api.CellOpportunist, api.CellFree)
		}
		return nil
	}
	out := make([]int, claimed.Length())
	for i := range out {
		out[i] = claimed.Get(i).(int)
	}
	return out
}

// ClaimFirstAvailable claims the lowest-indexed free core >= 1 on behalf of role.
func (t *Table) ClaimFirstAvailable(role api.Role) (int, bool) {
	held := role.HeldState()
	for core := 1; core < t.count; core++ {
		if t.ClaimOne(core, api.CellFree, held) {
			return core, true
		}
	}
	return api.NoCore, false
}

// Release hands core back to the free pool if it is held by role. A core in
// any other state is left untouched. A primary may also free a cell still
// carrying the creation sentinel, since a fresh legacy table implicitly
// belongs to the primary.
func (t *Table) Release(core int, role api.Role) bool {
	if t.ClaimOne(core, role.HeldState(), api.CellFree) {
		return true
	}
	if role == api.RolePrimary {
		return t.ClaimOne(core, api.CellUninitialized, api.CellFree)
	}
	return false
}

// HeldCount counts live cells currently in state st.
func (t *Table) HeldCount(st api.CellState) int {
	n := 0
	for core := 0; core < t.count; core++ {
		if t.Load(core) == st {
			n++
		}
	}
	return n
}
