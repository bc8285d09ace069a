// File: internal/lifecycle/translate.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Boundary translation from the host's sync-region notifications to the
// closed event set the state machine understands.

package lifecycle

import "github.com/momentics/corelend/api"

// Translate maps a sync-region notification to a barrier event. Only the
// implicit barrier of a parallel region, observed in the overhead state,
// produces an event; every other notification is ignored.
func Translate(kind api.SyncKind, ep api.Endpoint, state api.ExecState) (api.Event, bool) {
	if kind != api.SyncBarrierImplicit && kind != api.SyncBarrierImplicitParallel {
		return 0, false
	}
	if state != api.ExecOverhead {
		return 0, false
	}
	switch ep {
	case api.EndpointBegin:
		return api.EventBarrierBegin, true
	case api.EndpointEnd:
		return api.EventBarrierEnd, true
	}
	return 0, false
}
