// File: internal/table/table.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Open/create/close of the shared ownership table.

package table

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/momentics/corelend/api"
)

// Table is a handle to one mapping of the ownership-table file.
// It is safe for concurrent use by any number of goroutines and processes.
type Table struct {
	path   string
	data   []byte
	lock   *int32
	cells  []int32
	count  int
	closed atomic.Bool
	// unmap is held for writing by Close and for reading by Snapshot.
	unmap sync.RWMutex
}

// CreateOption customizes Create.
type CreateOption func(*createConfig)

type createConfig struct {
	initial api.CellState
}

// WithInitialState sets the value written to every live cell. Defaults to api.CellFree.
func WithInitialState(s api.CellState) CreateOption {
	return func(c *createConfig) {
		c.initial = s
	}
}

// Create writes a fresh table file at path, truncating any existing file.
// Cells beyond coreCount are written as api.CellUninitialized.
func Create(path string, coreCount int, opts ...CreateOption) error {
	if coreCount < 1 || coreCount > MaxCores {
		return api.NewError(api.ErrCodeInvalidArgument, "core count out of range").
			WithContext("cores", coreCount).
			WithContext("max", MaxCores).
			Wrap(api.ErrInvalidArgument)
	}
	cfg := createConfig{initial: api.CellFree}
	for _, o := range opts {
		o(&cfg)
	}
	if !cfg.initial.Valid() {
		return api.NewError(api.ErrCodeInvalidArgument, "invalid initial cell state").
			WithContext("state", int32(cfg.initial)).
			Wrap(api.ErrInvalidArgument)
	}
	if err := os.WriteFile(path, encode(coreCount, cfg.initial), 0o644); err != nil {
		return api.NewError(api.ErrCodeIO, "create ownership table").
			WithContext("path", path).
			Wrap(fmt.Errorf("%w: %w", api.ErrTableIO, err))
	}
	return nil
}

// Open maps an existing table file as shared read/write memory.
func Open(path string) (*Table, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, api.NewError(api.ErrCodeIO, "open ownership table").
			WithContext("path", path).
			Wrap(fmt.Errorf("%w: %w", api.ErrTableIO, err))
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, api.NewError(api.ErrCodeIO, "stat ownership table").
			WithContext("path", path).
			Wrap(fmt.Errorf("%w: %w", api.ErrTableIO, err))
	}
	if !sizeOK(st.Size()) {
		return nil, api.NewError(api.ErrCodeSize, "unexpected ownership table size").
			WithContext("path", path).
			WithContext("size", st.Size()).
			WithContext("want", LayoutSize).
			Wrap(api.ErrTableSize)
	}
	if st.Size() > LayoutSize {
		var tail [1]byte
		if _, err := f.ReadAt(tail[:], LayoutSize); err != nil {
			return nil, api.NewError(api.ErrCodeIO, "read ownership table trailer").
				WithContext("path", path).
				Wrap(fmt.Errorf("%w: %w", api.ErrTableIO, err))
		}
		if tail[0] != legacyTrailer {
			return nil, api.NewError(api.ErrCodeSize, "unexpected byte after ownership table").
				WithContext("path", path).
				WithContext("byte", tail[0]).
				Wrap(api.ErrTableSize)
		}
	}

	data, err := mapFile(f, LayoutSize)
	if err != nil {
		return nil, api.NewError(api.ErrCodeIO, "map ownership table").
			WithContext("path", path).
			Wrap(fmt.Errorf("%w: %w", api.ErrTableIO, err))
	}

	t := &Table{
		path:  path,
		data:  data,
		lock:  (*int32)(unsafe.Pointer(&data[offLock])),
		cells: unsafe.Slice((*int32)(unsafe.Pointer(&data[offCells])), MaxCores),
	}
	count := int(atomic.LoadInt32((*int32)(unsafe.Pointer(&data[offCoreCount]))))
	switch {
	case count <= 0:
		// legacy files leave the count at zero and rely on the fixed width
		count = MaxCores
	case count > MaxCores:
		_ = unmapFile(data)
		return nil, api.NewError(api.ErrCodeSize, "core count exceeds table width").
			WithContext("path", path).
			WithContext("cores", count).
			Wrap(api.ErrTableSize)
	}
	t.count = count
	return t, nil
}

// Close unmaps the table. Further primitives become no-ops. Close waits for
// snapshots in progress; claim primitives must not run concurrently with it.
func (t *Table) Close() error {
	t.unmap.Lock()
	defer t.unmap.Unlock()
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	return unmapFile(t.data)
}

// Path returns the file the table was opened from.
func (t *Table) Path() string { return t.path }

// CoreCount returns the number of live cells.
func (t *Table) CoreCount() int { return t.count }

// AdvisoryLock returns the reserved lock word. The protocol never writes it.
func (t *Table) AdvisoryLock() int32 {
	if t.closed.Load() {
		return 0
	}
	return atomic.LoadInt32(t.lock)
}

// Load atomically reads one cell. Out-of-range cores read as api.CellUninitialized.
func (t *Table) Load(core int) api.CellState {
	if core < 0 || core >= t.count || t.closed.Load() {
		return api.CellUninitialized
	}
	return api.CellState(atomic.LoadInt32(&t.cells[core]))
}

// Snapshot is a point-in-time copy of the table. Cells are loaded one by one,
// so it is not a consistent cut across cells.
type Snapshot struct {
	Lock      int32
	CoreCount int
	Cells     []api.CellState
}

// Snapshot copies every live cell. It is safe to call while another
// goroutine closes the table; cells of a closed table read as
// api.CellUninitialized.
func (t *Table) Snapshot() Snapshot {
	t.unmap.RLock()
	defer t.unmap.RUnlock()
	s := Snapshot{
		Lock:      t.AdvisoryLock(),
		CoreCount: t.count,
		Cells:     make([]api.CellState, t.count),
	}
	for i := range s.Cells {
		s.Cells[i] = t.Load(i)
	}
	return s
}

// Count returns how many cells of the snapshot are in state st.
func (s Snapshot) Count(st api.CellState) int {
	n := 0
	for _, c := range s.Cells {
		if c == st {
			n++
		}
	}
	return n
}

// String renders the snapshot the way the read command dumps it.
func (s Snapshot) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "lock : %d - cores : %d\n", s.Lock, s.CoreCount)
	for i, c := range s.Cells {
		if i > 0 {
			b.WriteString(" - ")
		}
		fmt.Fprintf(&b, "%d", int32(c))
	}
	b.WriteByte('\n')
	return b.String()
}
