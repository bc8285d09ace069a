// File: api/events.go
// Package api defines region-lifecycle event types.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Event is the closed set of boundaries at which ownership may change.
type Event int

const (
	EventRegionBegin Event = iota
	EventBarrierBegin
	EventBarrierEnd
	EventRegionEnd
)

func (e Event) String() string {
	switch e {
	case EventRegionBegin:
		return "region-begin"
	case EventBarrierBegin:
		return "barrier-begin"
	case EventBarrierEnd:
		return "barrier-end"
	case EventRegionEnd:
		return "region-end"
	default:
		return "unknown"
	}
}

// SyncKind classifies a synchronization-region notification raised by the host runtime.
// Values follow the OpenMP tools interface numbering.
type SyncKind int

const (
	SyncBarrier                  SyncKind = 1
	SyncBarrierImplicit          SyncKind = 2
	SyncBarrierExplicit          SyncKind = 3
	SyncBarrierImplementation    SyncKind = 4
	SyncTaskwait                 SyncKind = 5
	SyncTaskgroup                SyncKind = 6
	SyncReduction                SyncKind = 7
	SyncBarrierImplicitWorkshare SyncKind = 8
	SyncBarrierImplicitParallel  SyncKind = 9
)

// Endpoint says whether a scope notification opens or closes the scope.
type Endpoint int

const (
	EndpointBegin Endpoint = 1
	EndpointEnd   Endpoint = 2
)

// ExecState is the host runtime's execution state read back during a notification.
type ExecState int

const (
	ExecWorkSerial    ExecState = 0x000
	ExecWorkParallel  ExecState = 0x001
	ExecWorkReduction ExecState = 0x002
	ExecWaitBarrier   ExecState = 0x010
	ExecOverhead      ExecState = 0x020
	ExecIdle          ExecState = 0x100
)
