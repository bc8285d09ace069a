// File: api/types.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Shared API-level type declarations and constants for core lending.

package api

// Role is the class a process belongs to for its whole lifetime.
type Role int

const (
	// RolePrimary owns the baseline core allocation and may reclaim any core.
	RolePrimary Role = iota
	// RoleOpportunist borrows idle cores and gives them back at every barrier.
	RoleOpportunist
)

func (r Role) String() string {
	switch r {
	case RolePrimary:
		return "primary"
	case RoleOpportunist:
		return "opportunist"
	default:
		return "unknown"
	}
}

// CellState is the value stored in one ownership-table cell.
//
// FREE and HELD_BY_OPPORTUNIST keep the values older table files use.
// HELD_BY_PRIMARY no longer shares -1 with the creation sentinel.
type CellState int32

const (
	CellOpportunist   CellState = 0
	CellFree          CellState = 1
	CellPrimary       CellState = 2
	CellUninitialized CellState = -1
)

func (s CellState) String() string {
	switch s {
	case CellFree:
		return "free"
	case CellOpportunist:
		return "opportunist"
	case CellPrimary:
		return "primary"
	case CellUninitialized:
		return "uninitialized"
	default:
		return "invalid"
	}
}

// Valid reports whether s is one of the four known cell values.
func (s CellState) Valid() bool {
	switch s {
	case CellFree, CellOpportunist, CellPrimary, CellUninitialized:
		return true
	}
	return false
}

// HeldState returns the cell value a thread of role r writes when it holds a core.
func (r Role) HeldState() CellState {
	if r == RoleOpportunist {
		return CellOpportunist
	}
	return CellPrimary
}

// NoCore marks a thread that currently holds no borrowed core.
const NoCore = -1

// ThreadInfo identifies the calling worker to lifecycle handlers.
// ID comes from the host runtime's own thread numbering; Proc is the
// physical core the thread is currently executing on, or NoCore if unknown.
type ThreadInfo struct {
	ID   int
	Proc int
}
