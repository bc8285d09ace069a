//go:build linux

// File: internal/lifecycle/tid_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package lifecycle

import "golang.org/x/sys/unix"

func osThreadID() int { return unix.Gettid() }
