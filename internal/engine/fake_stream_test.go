package engine

import (
	"context"

	"github.com/codetrek/syntrix-go/internal/transport"
	"github.com/codetrek/syntrix-go/internal/view"
	"github.com/codetrek/syntrix-go/internal/watch"
)

// fakeStream records outbound requests and lets tests inject inbound events
// synchronously through the engine's handler.
type fakeStream struct {
	events chan transport.Event

	listens   []transport.ListenRequest
	unlistens []watch.TargetID
	writes    []transport.WriteRequest
}

func newFakeStream() *fakeStream {
	return &fakeStream{events: make(chan transport.Event, 64)}
}

func (f *fakeStream) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeStream) Events() <-chan transport.Event {
	return f.events
}

func (f *fakeStream) Listen(req transport.ListenRequest) error {
	f.listens = append(f.listens, req)
	return nil
}

func (f *fakeStream) Unlisten(targetID watch.TargetID) error {
	f.unlistens = append(f.unlistens, targetID)
	return nil
}

func (f *fakeStream) Write(req transport.WriteRequest) error {
	f.writes = append(f.writes, req)
	return nil
}

// snapshotRecorder collects everything delivered to one listener.
type snapshotRecorder struct {
	snapshots []*view.Snapshot
	errs      []error
}

func (r *snapshotRecorder) handler() SnapshotHandler {
	return func(snap *view.Snapshot, err error) {
		if err != nil {
			r.errs = append(r.errs, err)
			return
		}
		r.snapshots = append(r.snapshots, snap)
	}
}

func (r *snapshotRecorder) last() *view.Snapshot {
	if len(r.snapshots) == 0 {
		return nil
	}
	return r.snapshots[len(r.snapshots)-1]
}
