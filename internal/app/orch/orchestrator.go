// Package orch ties the connection registry, room table and call
// orchestrator together behind the operations adapters invoke. All
// shared state is mutated through these entry points, never directly
// by connection goroutines.
package orch

import (
	"chatrelay/internal/app"
	"chatrelay/internal/core"
)

type Orchestrator struct {
	Registry *app.Registry
	Rooms    *app.RoomManager
	Calls    *app.CallOrchestrator
}

// SessionOf resolves a live connection to its session, for direct
// (non-room) relays such as call signaling.
func (o *Orchestrator) SessionOf(cid core.ConnectionID) (core.MemberSession, bool) {
	return o.Registry.GetSession(cid)
}

// OnDisconnect is the single teardown path for a dying connection:
// every room membership is swept and every call the connection
// participated in is released. After it returns no room or call holds
// a reference to the dead connection.
func (o *Orchestrator) OnDisconnect(cid core.ConnectionID) ([]Departure, []EndedCall) {
	departures := o.LeaveAll(cid)
	var ended []EndedCall
	for _, call := range o.Calls.EndAllFor(cid) {
		ended = append(ended, EndedCall{Call: call, By: cid})
	}
	o.Registry.Cancel(cid)
	o.Registry.Unbind(cid)
	return departures, ended
}
