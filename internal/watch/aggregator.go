package watch

import (
	"fmt"
	"log"

	"github.com/codetrek/syntrix-go/pkg/model"
)

// DocDelta is the final state of one document within a boundary. Doc is nil
// for a tombstone.
type DocDelta struct {
	Doc     *model.Document
	Version int64
}

// RemoteEvent is the atomic outcome of one snapshot boundary: every buffered
// delta, collapsed per document, plus the targets each touched.
type RemoteEvent struct {
	SnapshotVersion int64
	ResumeToken     []byte
	Documents       map[string]DocDelta
	TargetPaths     map[TargetID]map[string]bool
}

// Aggregator buffers server-pushed per-document deltas until the stream
// signals a snapshot boundary. Within a boundary later deltas for a path
// supersede earlier ones, so a remove followed by a re-add collapses into a
// single final state and surfaces downstream as a modification, not a
// remove/add pair.
type Aggregator struct {
	documents   map[string]DocDelta
	targetPaths map[TargetID]map[string]bool

	// watermark is the last applied remote snapshot version. Boundaries at
	// or below it are stale replays and are dropped.
	watermark int64
}

func NewAggregator() *Aggregator {
	a := &Aggregator{}
	a.reset()
	return a
}

func (a *Aggregator) reset() {
	a.documents = make(map[string]DocDelta)
	a.targetPaths = make(map[TargetID]map[string]bool)
}

// Send buffers a document change for the affected targets.
func (a *Aggregator) Send(path string, doc *model.Document, version int64, targets []TargetID) {
	a.documents[path] = DocDelta{Doc: doc, Version: version}
	a.track(path, targets)
}

// Remove buffers a document removal for the affected targets.
func (a *Aggregator) Remove(path string, version int64, targets []TargetID) {
	a.documents[path] = DocDelta{Doc: nil, Version: version}
	a.track(path, targets)
}

func (a *Aggregator) track(path string, targets []TargetID) {
	for _, id := range targets {
		paths, ok := a.targetPaths[id]
		if !ok {
			paths = make(map[string]bool)
			a.targetPaths[id] = paths
		}
		paths[path] = true
	}
}

// Boundary closes the current buffer and returns it for atomic application.
// A boundary strictly below the watermark is a stale replay and returns
// model.ErrStaleVersion; its buffered deltas are discarded. A boundary
// exactly at the watermark is an idempotent confirmation, e.g. a resume that
// found nothing new: its deltas were applied the first time around, so they
// are discarded and an empty event carries the confirmation through.
func (a *Aggregator) Boundary(version int64, resumeToken []byte) (*RemoteEvent, error) {
	if version < a.watermark {
		a.reset()
		return nil, fmt.Errorf("%w: boundary version %d below watermark %d", model.ErrStaleVersion, version, a.watermark)
	}
	ev := &RemoteEvent{
		SnapshotVersion: version,
		ResumeToken:     resumeToken,
		Documents:       a.documents,
		TargetPaths:     a.targetPaths,
	}
	if version == a.watermark {
		ev.Documents = make(map[string]DocDelta)
		ev.TargetPaths = make(map[TargetID]map[string]bool)
	}
	a.watermark = version
	a.reset()
	return ev, nil
}

// Watermark returns the last applied remote snapshot version.
func (a *Aggregator) Watermark() int64 {
	return a.watermark
}

// Discard drops all deltas buffered for the in-flight boundary. Called on
// disconnect: a version that never reached its boundary must be treated as
// not-yet-happened; the server redelivers after reconnection.
func (a *Aggregator) Discard() {
	if len(a.documents) > 0 {
		log.Printf("[Watch] Discarding %d unbounded deltas after disconnect", len(a.documents))
	}
	a.reset()
}

// ForgetTarget drops buffered per-target bookkeeping for a target removed
// mid-boundary, so a listener added later never sees a partial state.
func (a *Aggregator) ForgetTarget(id TargetID) {
	delete(a.targetPaths, id)
}
