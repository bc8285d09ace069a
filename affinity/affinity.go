// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral API for CPU affinity. Platform-specific implementations are located
// in separate files (affinity_linux.go, affinity_windows.go, etc.) guarded by build tags.

package affinity

import (
	"fmt"

	"github.com/momentics/corelend/api"
)

// BindCurrentThread pins the calling OS thread to exactly one logical CPU.
// Other threads' masks are untouched. The caller must already hold
// runtime.LockOSThread; the lock count is left as it is.
func BindCurrentThread(core int) error {
	if core < 0 {
		return fmt.Errorf("affinity: core %d: %w", core, api.ErrInvalidArgument)
	}
	return setAffinityPlatform(core)
}

// Unbind restores the calling thread's mask to every CPU the process may use.
// Like BindCurrentThread it does not touch the thread lock.
func Unbind() error {
	return resetAffinityPlatform()
}

// Current returns the CPU the calling thread is executing on, or api.NoCore
// where the platform cannot tell.
func Current() int {
	return currentCPUPlatform()
}
