// File: internal/table/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package table maps the node-wide core ownership table and implements the
// lock-free claim and release primitives on top of it.
//
// The table is a fixed-size binary record shared by every process that maps
// the same file. Each cell records which class of process currently holds the
// corresponding physical core. Cells are only ever mutated through
// compare-and-swap, so no lock is shared between processes; ownership of a
// core is a protocol convention encoded as a value, not a held handle.
package table
