// File: internal/concurrency/pin.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Start-time placement of team workers.

package concurrency

import (
	"runtime"

	"github.com/momentics/corelend/api"
)

// pinWorker locks the calling goroutine to its OS thread, once for the life
// of the worker, and, when core is set, pins that thread through binder.
// Later rebinds on the same thread reuse this lock. It returns the core the thread now
// runs on, or api.NoCore when it was left unpinned.
func pinWorker(binder api.Binder, core int) (int, error) {
	runtime.LockOSThread()
	if binder == nil || core == api.NoCore {
		return api.NoCore, nil
	}
	if err := binder.Bind(core); err != nil {
		return api.NoCore, err
	}
	return core, nil
}

// unpinWorker undoes pinWorker. A thread whose mask could not be restored
// stays locked so the runtime discards it when the goroutine exits.
func unpinWorker(binder api.Binder, proc int) {
	if proc != api.NoCore && binder.Unbind() != nil {
		return
	}
	runtime.UnlockOSThread()
}
