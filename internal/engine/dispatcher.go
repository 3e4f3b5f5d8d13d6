package engine

import (
	"github.com/google/uuid"

	"github.com/codetrek/syntrix-go/internal/view"
	"github.com/codetrek/syntrix-go/internal/watch"
)

// ListenerID identifies one registered snapshot listener.
type ListenerID string

// SnapshotHandler receives snapshots (and terminal errors) for one listener.
// Handlers run on the engine loop and must not block.
type SnapshotHandler func(snapshot *view.Snapshot, err error)

type listener struct {
	id       ListenerID
	targetID watch.TargetID
	handler  SnapshotHandler
}

// dispatcher owns the listener table and delivers computed snapshots in
// order. All snapshots delivered for one state change derive from the same
// engine state: the loop computes first, then dispatches.
type dispatcher struct {
	listeners map[ListenerID]*listener
	byTarget  map[watch.TargetID]map[ListenerID]*listener
}

func newDispatcher() *dispatcher {
	return &dispatcher{
		listeners: make(map[ListenerID]*listener),
		byTarget:  make(map[watch.TargetID]map[ListenerID]*listener),
	}
}

func (d *dispatcher) add(targetID watch.TargetID, handler SnapshotHandler) *listener {
	l := &listener{
		id:       ListenerID(uuid.NewString()),
		targetID: targetID,
		handler:  handler,
	}
	d.listeners[l.id] = l
	group, ok := d.byTarget[targetID]
	if !ok {
		group = make(map[ListenerID]*listener)
		d.byTarget[targetID] = group
	}
	group[l.id] = l
	return l
}

// remove drops a listener and reports the target it watched plus how many
// listeners remain on it. Removing an unknown id is a no-op.
func (d *dispatcher) remove(id ListenerID) (watch.TargetID, int, bool) {
	l, ok := d.listeners[id]
	if !ok {
		return 0, 0, false
	}
	delete(d.listeners, id)
	group := d.byTarget[l.targetID]
	delete(group, id)
	remaining := len(group)
	if remaining == 0 {
		delete(d.byTarget, l.targetID)
	}
	return l.targetID, remaining, true
}

// removeTarget drops every listener on a target and returns them.
func (d *dispatcher) removeTarget(targetID watch.TargetID) []*listener {
	group := d.byTarget[targetID]
	out := make([]*listener, 0, len(group))
	for id, l := range group {
		delete(d.listeners, id)
		out = append(out, l)
	}
	delete(d.byTarget, targetID)
	return out
}

// dispatch delivers one snapshot to every listener of the target.
func (d *dispatcher) dispatch(targetID watch.TargetID, snap *view.Snapshot) {
	for _, l := range d.byTarget[targetID] {
		l.handler(snap, nil)
	}
}

// dispatchTo delivers a snapshot to a single listener, used for the seed
// snapshot a freshly attached listener receives.
func (d *dispatcher) dispatchTo(l *listener, snap *view.Snapshot) {
	l.handler(snap, nil)
}

// fail delivers a terminal error to every listener of the target.
func (d *dispatcher) fail(targetID watch.TargetID, err error) {
	for _, l := range d.byTarget[targetID] {
		l.handler(nil, err)
	}
}
