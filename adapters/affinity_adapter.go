// File: adapters/affinity_adapter.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
// Description:
//   Adapter implementing the api.Binder interface, delegating to
//   the affinity package for CPU pinning.
//
// Package adapters provides glue code between the core API contracts
// and the internal implementation.

package adapters

import (
	"sync/atomic"

	"github.com/momentics/corelend/affinity"
	"github.com/momentics/corelend/api"
)

// AffinityAdapter implements api.Binder on top of affinity.BindCurrentThread.
// It keeps no per-thread state, only counters, so one instance serves every
// worker thread of a process.
type AffinityAdapter struct {
	enabled  bool
	binds    atomic.Int64
	failures atomic.Int64
}

// NewAffinityAdapter creates a binder. A disabled binder accepts every call
// without touching thread masks, for hosts that manage placement themselves.
func NewAffinityAdapter(enabled bool) *AffinityAdapter {
	return &AffinityAdapter{enabled: enabled}
}

var _ api.Binder = (*AffinityAdapter)(nil)

// Bind pins the calling thread to core.
func (a *AffinityAdapter) Bind(core int) error {
	a.binds.Add(1)
	if !a.enabled {
		return nil
	}
	if err := affinity.BindCurrentThread(core); err != nil {
		a.failures.Add(1)
		return err
	}
	return nil
}

// Unbind clears the pin of the calling thread.
func (a *AffinityAdapter) Unbind() error {
	if !a.enabled {
		return nil
	}
	return affinity.Unbind()
}

// Stats reports bind attempts and failures.
func (a *AffinityAdapter) Stats() map[string]int64 {
	return map[string]int64{
		"binds":         a.binds.Load(),
		"bind_failures": a.failures.Load(),
	}
}
