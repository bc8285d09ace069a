//go:build windows
// +build windows

// File: affinity/affinity_windows.go
// Author: momentics <momentics@gmail.com>
//
// Windows-specific implementation for setting thread CPU affinity.

package affinity

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/windows"

	"github.com/momentics/corelend/api"
)

var (
	modkernel32               = windows.NewLazySystemDLL("kernel32.dll")
	procSetThreadAffinityMask = modkernel32.NewProc("SetThreadAffinityMask")
)

func setThreadMask(mask uintptr) error {
	ret, _, err := procSetThreadAffinityMask.Call(uintptr(windows.CurrentThread()), mask)
	if ret == 0 {
		return err
	}
	return nil
}

// setAffinityPlatform sets thread affinity to a given CPU for Windows.
func setAffinityPlatform(cpuID int) error {
	if cpuID >= 64 {
		return fmt.Errorf("affinity: cpu %d outside the single-group mask: %w", cpuID, api.ErrNotSupported)
	}
	if err := setThreadMask(uintptr(1) << uint(cpuID)); err != nil {
		return fmt.Errorf("affinity: SetThreadAffinityMask(%d): %w", cpuID, err)
	}
	return nil
}

func resetAffinityPlatform() error {
	total := runtime.NumCPU()
	if total > 63 {
		total = 63
	}
	return setThreadMask((uintptr(1) << uint(total)) - 1)
}

func currentCPUPlatform() int {
	return api.NoCore
}
