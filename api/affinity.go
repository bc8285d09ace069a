// Package api
// Author: momentics@gmail.com
//
// CPU affinity contract used by the lifecycle state machine.

package api

// Binder pins the calling OS thread to a single physical core.
// Implementations must be safe for concurrent use by many threads.
type Binder interface {
	// Bind pins the OS thread the caller is locked to onto core.
	Bind(core int) error
	// Unbind restores the calling thread's original CPU mask.
	Unbind() error
}
