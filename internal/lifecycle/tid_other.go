//go:build !linux

// File: internal/lifecycle/tid_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package lifecycle

func osThreadID() int { return 0 }
