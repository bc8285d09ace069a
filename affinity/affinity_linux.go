//go:build linux
// +build linux

// File: affinity/affinity_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux-specific implementation for setting thread CPU affinity.

package affinity

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"

	"github.com/momentics/corelend/api"
)

// cpuSetSize matches the kernel's CPU_SETSIZE.
const cpuSetSize = 1024

// setAffinityPlatform sets the calling thread's affinity to a single CPU.
// pid 0 addresses the calling thread, not the whole process.
func setAffinityPlatform(cpuID int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpuID)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("affinity: sched_setaffinity(%d): %w", cpuID, err)
	}
	return nil
}

// processMask is the mask the process started with; Unbind restores it.
var processMask = func() unix.CPUSet {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil || set.Count() == 0 {
		set.Zero()
		for cpu := 0; cpu < runtime.NumCPU(); cpu++ {
			set.Set(cpu)
		}
	}
	return set
}()

func resetAffinityPlatform() error {
	set := processMask
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("affinity: sched_setaffinity(all): %w", err)
	}
	return nil
}

// currentCPUPlatform infers the CPU from a single-CPU mask; a wider mask
// means the scheduler may move the thread, so there is no answer.
func currentCPUPlatform() int {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil || set.Count() != 1 {
		return api.NoCore
	}
	for cpu := 0; cpu < cpuSetSize; cpu++ {
		if set.IsSet(cpu) {
			return cpu
		}
	}
	return api.NoCore
}
