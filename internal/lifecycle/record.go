// File: internal/lifecycle/record.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Per-thread state. Each record is written by its own thread only, except the
// one-time reset done by bootstrap before any worker reads it.

package lifecycle

import (
	"sync/atomic"
	"time"

	"golang.org/x/sys/cpu"

	"github.com/momentics/corelend/api"
)

type record struct {
	_ cpu.CacheLinePad

	// unix nanoseconds of the last region begin, and length of the last region.
	cycleStart   atomic.Int64
	cycleElapsed atomic.Int64

	// heldCore is the table cell this thread holds on loan, or api.NoCore.
	heldCore atomic.Int32
	// boundCore is the core the thread was last pinned to by the tool.
	boundCore atomic.Int32
	osTID     atomic.Int32
	// startOwned is set while the thread's start core is still marked taken
	// from startup or a legacy file and has not been given back.
	startOwned atomic.Bool

	_ cpu.CacheLinePad
}

func (r *record) reset() {
	r.heldCore.Store(api.NoCore)
	r.boundCore.Store(api.NoCore)
	r.startOwned.Store(false)
}

func (r *record) held() int { return int(r.heldCore.Load()) }

// currentCore is the core the thread is believed to run on.
func (r *record) currentCore(th api.ThreadInfo) int {
	if b := int(r.boundCore.Load()); b != api.NoCore {
		return b
	}
	return th.Proc
}

// ThreadState is a read-only view of one record.
type ThreadState struct {
	ID           int
	HeldCore     int
	BoundCore    int
	OSThreadID   int
	CycleElapsed time.Duration
}
