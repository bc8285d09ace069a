//go:build !unix

// File: internal/table/mmap_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Shared mappings are only implemented for unix targets.

package table

import (
	"os"

	"github.com/momentics/corelend/api"
)

func mapFile(*os.File, int) ([]byte, error) {
	return nil, api.ErrNotSupported
}

func unmapFile([]byte) error {
	return nil
}
