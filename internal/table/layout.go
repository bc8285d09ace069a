// File: internal/table/layout.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Binary layout of the ownership-table file.

package table

import (
	"encoding/binary"

	"github.com/momentics/corelend/api"
)

const (
	// MaxCores is the number of cells in every table file.
	MaxCores = 48

	offLock      = 0
	offCoreCount = 4
	offCells     = 8
	cellSize     = 4

	// LayoutSize is the size in bytes of the record every mapper expects.
	LayoutSize = offCells + MaxCores*cellSize
)

// legacyTrailer is the byte the legacy init tool appends after the record.
const legacyTrailer = '\n'

// sizeOK accepts the exact layout, or the layout plus one trailing byte.
// Open checks that the extra byte is legacyTrailer.
func sizeOK(n int64) bool {
	return n == LayoutSize || n == LayoutSize+1
}

// encode renders a fresh table image.
func encode(coreCount int, initial api.CellState) []byte {
	buf := make([]byte, LayoutSize)
	lock := int32(-1)
	binary.NativeEndian.PutUint32(buf[offLock:], uint32(lock))
	binary.NativeEndian.PutUint32(buf[offCoreCount:], uint32(int32(coreCount)))
	for i := 0; i < MaxCores; i++ {
		v := api.CellUninitialized
		if i < coreCount {
			v = initial
		}
		binary.NativeEndian.PutUint32(buf[offCells+i*cellSize:], uint32(int32(v)))
	}
	return buf
}
