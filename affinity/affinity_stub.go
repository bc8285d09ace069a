//go:build !linux && !windows
// +build !linux,!windows

// File: affinity/affinity_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for unsupported platforms.
// Returns error to indicate unavailability.

package affinity

import "github.com/momentics/corelend/api"

func setAffinityPlatform(int) error { return api.ErrNotSupported }

func resetAffinityPlatform() error { return api.ErrNotSupported }

func currentCPUPlatform() int { return api.NoCore }
