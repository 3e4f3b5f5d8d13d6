// Package engine wires the mutation queue, remote document cache, watch
// coordinator, change aggregator and view snapshot engine behind a single
// event loop. All state transitions happen on that loop: there is exactly one
// writer, so no engine structure needs locking.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/codetrek/syntrix-go/internal/cache"
	"github.com/codetrek/syntrix-go/internal/local"
	"github.com/codetrek/syntrix-go/internal/mutation"
	"github.com/codetrek/syntrix-go/internal/persistence"
	"github.com/codetrek/syntrix-go/internal/predicate"
	"github.com/codetrek/syntrix-go/internal/transport"
	"github.com/codetrek/syntrix-go/internal/view"
	"github.com/codetrek/syntrix-go/internal/watch"
	"github.com/codetrek/syntrix-go/pkg/model"
)

// Options configures a SyncEngine.
type Options struct {
	// GCEnabled allows the cache to evict entries no active target references.
	GCEnabled bool

	// Staging durably stages the mutation queue and document cache. Nil
	// means no persistence; the engine is fully functional without it.
	Staging persistence.Staging
}

// SyncEngine is the client synchronization core. Construct with New, start
// the loop with Run, then use Listen, Unlisten and Write from any goroutine.
type SyncEngine struct {
	queue   *mutation.Queue
	cache   *cache.RemoteDocumentCache
	builder *local.ViewBuilder
	eval    *predicate.Evaluator
	coord   *watch.Coordinator
	agg     *watch.Aggregator
	disp    *dispatcher
	stream  transport.Stream
	staging persistence.Staging

	views map[watch.TargetID]*view.View

	// connected gates outbound listen/unlisten/write requests; while false
	// they are deferred until handleConnected replays them.
	connected bool

	requests chan func()
}

func New(stream transport.Stream, opts Options) (*SyncEngine, error) {
	staging := opts.Staging
	if staging == nil {
		staging = persistence.NoopStaging{}
	}

	e := &SyncEngine{
		queue:    mutation.NewQueue(),
		cache:    cache.New(opts.GCEnabled),
		eval:     predicate.NewEvaluator(),
		coord:    watch.NewCoordinator(),
		agg:      watch.NewAggregator(),
		disp:     newDispatcher(),
		stream:   stream,
		staging:  staging,
		views:    make(map[watch.TargetID]*view.View),
		requests: make(chan func(), 64),
	}
	e.builder = local.NewViewBuilder(e.queue, e.cache)

	if err := e.restore(); err != nil {
		return nil, err
	}
	return e, nil
}

// restore seeds the queue and cache from staging so pending writes survive a
// restart.
func (e *SyncEngine) restore() error {
	batches, err := e.staging.LoadBatches()
	if err != nil {
		return fmt.Errorf("failed to load staged batches: %w", err)
	}
	if err := e.queue.Restore(batches); err != nil {
		return err
	}
	docs, err := e.staging.LoadDocuments()
	if err != nil {
		return fmt.Errorf("failed to load staged documents: %w", err)
	}
	for _, d := range docs {
		e.cache.ApplyRemoteEvent(d.Path, d.Doc, d.Version)
	}
	if len(batches) > 0 || len(docs) > 0 {
		log.Printf("[Engine] Restored %d staged batches, %d cached documents", len(batches), len(docs))
	}
	return nil
}

// Run drives the engine loop until ctx is cancelled or a fatal protocol
// violation occurs.
func (e *SyncEngine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-e.requests:
			fn()
		case ev, ok := <-e.stream.Events():
			if !ok {
				return errors.New("transport event channel closed")
			}
			if err := e.handleStreamEvent(ev); err != nil {
				if errors.Is(err, model.ErrProtocolViolation) {
					log.Printf("[Engine] Fatal: %v", err)
					return err
				}
				log.Printf("[Engine] %v", err)
			}
		}
	}
}

// do runs fn on the engine loop and waits for it, so public methods read and
// mutate engine state without races.
func (e *SyncEngine) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		fn()
	}
	select {
	case e.requests <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Listen registers a snapshot listener for the query. The first snapshot is
// seeded from cached and locally mutated state (fromCache=true) without
// waiting for the server round trip.
func (e *SyncEngine) Listen(ctx context.Context, q model.Query, handler SnapshotHandler) (ListenerID, error) {
	if err := q.Validate(); err != nil {
		return "", err
	}
	var (
		id      ListenerID
		callErr error
	)
	err := e.do(ctx, func() {
		id, callErr = e.listen(q, handler)
	})
	if err != nil {
		return "", err
	}
	return id, callErr
}

func (e *SyncEngine) listen(q model.Query, handler SnapshotHandler) (ListenerID, error) {
	target, created := e.coord.AddTarget(q)
	v, ok := e.views[target.ID]
	if !ok {
		v = view.New(q, e.eval)
		e.views[target.ID] = v
		e.seedFromCache(target, v)
	}

	l := e.disp.add(target.ID, handler)

	// While disconnected the target stays New; handleConnected sends the
	// listen once the transport is back.
	if (created || target.State == watch.TargetNew) && e.connected {
		if err := target.Listen(); err != nil {
			return "", err
		}
		if err := e.stream.Listen(transport.ListenRequest{
			TargetID:    target.ID,
			Query:       q,
			ResumeToken: target.ResumeToken,
		}); err != nil {
			log.Printf("[Engine] Listen request for target %d not sent: %v", target.ID, err)
		}
	}

	// Seed snapshot for this listener only: everything currently in the
	// result set is Added. Listeners attached mid-boundary never see the
	// partial state; they start from the last completed application.
	if seed := e.seedSnapshot(target, v); seed != nil {
		e.disp.dispatchTo(l, seed)
	}
	return l.id, nil
}

// seedFromCache populates a fresh view from the remote cache plus local
// mutations, without emitting anything. Runs even when nothing is cached so
// the view's baseline flags are initialized and a later no-change boundary
// stays silent.
func (e *SyncEngine) seedFromCache(target *watch.Target, v *view.View) {
	paths := e.builder.CollectionPaths(target.Query.Collection)
	v.ApplyChanges(e.builder.Views(paths), target.Acked())
}

// seedSnapshot builds the initial snapshot for a newly attached listener
// from the view's current membership.
func (e *SyncEngine) seedSnapshot(target *watch.Target, v *view.View) *view.Snapshot {
	paths := v.MemberPaths()
	docs := make([]*model.Document, 0, len(paths))
	changes := make([]view.DocumentChange, 0, len(paths))
	hasPending := false
	for _, p := range paths {
		dv := e.builder.View(p)
		if dv.Doc == nil {
			continue
		}
		docs = append(docs, dv.Doc)
		changes = append(changes, view.DocumentChange{Type: view.ChangeAdded, Doc: dv.Doc})
		if dv.HasLocalMutations {
			hasPending = true
		}
	}
	return &view.Snapshot{
		Query:            target.Query,
		Documents:        docs,
		Changes:          changes,
		FromCache:        !target.Acked(),
		HasPendingWrites: hasPending,
	}
}

// Unlisten removes a listener. Idempotent; snapshot delivery to the listener
// stops immediately. The last listener of a query tears down its target.
func (e *SyncEngine) Unlisten(ctx context.Context, id ListenerID) error {
	return e.do(ctx, func() {
		targetID, remaining, existed := e.disp.remove(id)
		if !existed || remaining > 0 {
			return
		}
		// A fresh connection carries no subscriptions, so there is nothing
		// to unlisten while disconnected.
		if e.connected {
			if err := e.stream.Unlisten(targetID); err != nil {
				log.Printf("[Engine] Unlisten request for target %d not sent: %v", targetID, err)
			}
		}
		e.coord.RemoveTarget(targetID)
		e.agg.ForgetTarget(targetID)
		delete(e.views, targetID)
	})
}

// Write enqueues a mutation batch, emits optimistic snapshots for affected
// queries, and submits the batch to the server.
func (e *SyncEngine) Write(ctx context.Context, muts ...mutation.Mutation) (int64, error) {
	var (
		batchID int64
		callErr error
	)
	err := e.do(ctx, func() {
		batchID, callErr = e.write(muts)
	})
	if err != nil {
		return 0, err
	}
	return batchID, callErr
}

func (e *SyncEngine) write(muts []mutation.Mutation) (int64, error) {
	batch, err := e.queue.Enqueue(muts...)
	if err != nil {
		return 0, err
	}
	if err := e.staging.StageBatch(batch); err != nil {
		log.Printf("[Engine] Failed to stage batch %d: %v", batch.ID, err)
	}

	e.emitForPaths(batch.Paths())

	// Offline batches stay pending; handleConnected resubmits them.
	if e.connected {
		if err := e.stream.Write(transport.WriteRequest{BatchID: batch.ID, Mutations: batch.Mutations}); err != nil {
			log.Printf("[Engine] Write request for batch %d not sent: %v", batch.ID, err)
		}
	}
	return batch.ID, nil
}

// emitForPaths recomputes every view against the local state of the given
// paths and dispatches the resulting snapshots. Snapshots are computed
// against one consistent state before any listener is invoked.
func (e *SyncEngine) emitForPaths(paths []string) {
	if len(paths) == 0 {
		return
	}
	changed := e.builder.Views(paths)
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
		if snap := v.ApplyChanges(changed, target.Acked()); snap != nil {
			out = append(out, pending{targetID, snap})
		}
	}
	for _, p := range out {
		e.disp.dispatch(p.targetID, p.snap)
	}
}
