package engine

import (
	"errors"
	"fmt"
	"log"

	"github.com/codetrek/syntrix-go/internal/persistence"
	"github.com/codetrek/syntrix-go/internal/transport"
	"github.com/codetrek/syntrix-go/internal/view"
	"github.com/codetrek/syntrix-go/internal/watch"
	"github.com/codetrek/syntrix-go/pkg/model"
)

func (e *SyncEngine) handleStreamEvent(ev transport.Event) error {
	switch t := ev.(type) {
	case transport.Connected:
		e.handleConnected()
	case transport.Disconnected:
		e.handleDisconnected(t.Err)
	case transport.TargetAdded:
		log.Printf("[Engine] Server registered targets %v", t.Targets)
	case transport.TargetCurrent:
		e.coord.MarkCurrent(t.Targets)
	case transport.TargetRemoved:
		e.handleTargetRemoved(t)
	case transport.DocumentChange:
		e.agg.Send(t.Path, t.Doc, t.Version, t.Targets)
	case transport.DocumentDelete:
		e.agg.Remove(t.Path, t.Version, t.Targets)
	case transport.SnapshotBoundary:
		return e.handleBoundary(t)
	case transport.WriteAck:
		return e.handleWriteAck(t)
	case transport.WriteRejected:
		return e.handleWriteRejected(t)
	default:
		return fmt.Errorf("unknown stream event %T", ev)
	}
	return nil
}

// handleConnected re-listens every target with its stored resume token and
// resubmits unacknowledged batches.
func (e *SyncEngine) handleConnected() {
	e.connected = true
	for _, target := range e.coord.Targets() {
		if target.State != watch.TargetNew {
			continue
		}
		if err := target.Listen(); err != nil {
			log.Printf("[Engine] %v", err)
			continue
		}
		if err := e.stream.Listen(transport.ListenRequest{
			TargetID:    target.ID,
			Query:       target.Query,
			ResumeToken: target.ResumeToken,
		}); err != nil {
			log.Printf("[Engine] Re-listen for target %d not sent: %v", target.ID, err)
		}
	}
	for _, batch := range e.queue.PendingBatches() {
		if err := e.stream.Write(transport.WriteRequest{BatchID: batch.ID, Mutations: batch.Mutations}); err != nil {
			log.Printf("[Engine] Resend of batch %d not sent: %v", batch.ID, err)
		}
	}
}

// handleDisconnected discards deltas for the boundary that never completed
// and degrades all targets to cache-only. Affected listeners observe
// fromCache=true until the stream resumes; no data is lost.
func (e *SyncEngine) handleDisconnected(cause error) {
	log.Printf("[Engine] Transport disconnected: %v", cause)
	e.connected = false
	e.agg.Discard()
	e.coord.DegradeAll()

	type pending struct {
		targetID watch.TargetID
		snap     *view.Snapshot
	}
	var out []pending
	for targetID, v := range e.views {
		if snap := v.ApplyChanges(nil, false); snap != nil {
			out = append(out, pending{targetID, snap})
		}
	}
	for _, p := range out {
		e.disp.dispatch(p.targetID, p.snap)
	}
}

// handleTargetRemoved processes a server-initiated un-watch: the target is
// torn down and the error is surfaced to its listeners. The engine never
// silently resubscribes.
func (e *SyncEngine) handleTargetRemoved(ev transport.TargetRemoved) {
	cause := ev.Cause
	if cause == nil {
		cause = model.ErrTargetRejected
	}
	for _, id := range ev.Targets {
		target := e.coord.Get(id)
		if target == nil {
			continue
		}
		log.Printf("[Engine] Target %d removed by server: %v", id, cause)
		e.disp.fail(id, cause)
		e.disp.removeTarget(id)
		e.coord.RemoveTarget(id)
		e.agg.ForgetTarget(id)
		delete(e.views, id)
	}
}

// handleBoundary applies one complete remote snapshot atomically: cache
// updates, mutation commits, target acknowledgement, then one recomputation
// pass over every view from the new consistent state.
func (e *SyncEngine) handleBoundary(ev transport.SnapshotBoundary) error {
	remote, err := e.agg.Boundary(ev.Version, ev.ResumeToken)
	if err != nil {
		if errors.Is(err, model.ErrStaleVersion) {
			log.Printf("[Engine] %v", err)
			return nil
		}
		return err
	}

	for path, delta := range remote.Documents {
		if !e.cache.ApplyRemoteEvent(path, delta.Doc, delta.Version) {
			continue
		}
		err := e.staging.StageDocument(persistence.StagedDocument{
			Path:    path,
			Doc:     e.cache.Get(path),
			Version: e.cache.Version(path),
		})
		if err != nil {
			log.Printf("[Engine] Failed to stage document %s: %v", path, err)
		}
	}

	committed := make(map[string]bool)
	for _, batch := range e.queue.CommitThrough(ev.Version) {
		for _, p := range batch.Paths() {
			committed[p] = true
		}
		if err := e.staging.RemoveBatch(batch.ID); err != nil {
			log.Printf("[Engine] Failed to unstage batch %d: %v", batch.ID, err)
		}
	}

	e.coord.AckBoundary(ev.Version, ev.ResumeToken)

	// Each view recomputes the paths the server tagged for its target plus
	// the paths of batches committed here, all read from the same
	// post-boundary state. Ack-state flips run through ApplyChanges even
	// with an empty path set.
	type pending struct {
		targetID watch.TargetID
		snap     *view.Snapshot
	}
	var out []pending
	for targetID, v := range e.views {
		target := e.coord.Get(targetID)
		if target == nil {
			continue
		}
		pathSet := make(map[string]bool, len(committed)+len(remote.TargetPaths[targetID]))
		for p := range committed {
			pathSet[p] = true
		}
		for p := range remote.TargetPaths[targetID] {
			pathSet[p] = true
		}
		paths := make([]string, 0, len(pathSet))
		for p := range pathSet {
			paths = append(paths, p)
		}
		if snap := v.ApplyChanges(e.builder.Views(paths), target.Acked()); snap != nil {
			out = append(out, pending{targetID, snap})
		}
	}
	for _, p := range out {
		e.disp.dispatch(p.targetID, p.snap)
	}

	e.collectGarbage()
	return nil
}

// collectGarbage evicts cache entries no view references, keeping any entry
// that is the base of an uncommitted mutation. Runs only at boundaries so it
// stays on the engine loop.
func (e *SyncEngine) collectGarbage() {
	referenced := make(map[string]bool)
	for _, v := range e.views {
		for _, p := range v.MemberPaths() {
			referenced[p] = true
		}
	}
	for _, path := range e.cache.EvictUnreferenced(referenced, e.queue.HasMutations) {
		if err := e.staging.RemoveDocument(path); err != nil {
			log.Printf("[Engine] Failed to unstage document %s: %v", path, err)
		}
	}
}

// handleWriteAck marks a batch acknowledged. Nothing becomes visible to
// listeners until a snapshot boundary commits the batch; the local overlay
// keeps serving the written state meanwhile.
func (e *SyncEngine) handleWriteAck(ev transport.WriteAck) error {
	batch, err := e.queue.Acknowledge(ev.BatchID, ev.Version)
	if err != nil {
		return err
	}
	if err := e.staging.StageBatch(batch); err != nil {
		log.Printf("[Engine] Failed to restage batch %d: %v", batch.ID, err)
	}
	return nil
}

// handleWriteRejected drops a refused batch and recomputes affected views so
// the optimistic state rolls back.
func (e *SyncEngine) handleWriteRejected(ev transport.WriteRejected) error {
	batch, err := e.queue.Reject(ev.BatchID)
	if err != nil {
		return err
	}
	log.Printf("[Engine] Batch %d rejected by server: %s (%s)", ev.BatchID, ev.Message, ev.Code)
	if err := e.staging.RemoveBatch(batch.ID); err != nil {
		log.Printf("[Engine] Failed to unstage batch %d: %v", batch.ID, err)
	}
	e.emitForPaths(batch.Paths())
	return nil
}
