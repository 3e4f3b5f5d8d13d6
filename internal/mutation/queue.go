package mutation

import (
	"fmt"

	"github.com/codetrek/syntrix-go/pkg/model"
)

// AckState tracks whether the server has confirmed a batch.
type AckState string

const (
	// StatePending means the batch has not been acknowledged yet.
	StatePending AckState = "pending"
	// StateAcknowledged means the server confirmed the batch but the watch
	// stream has not caught up to its commit version. The batch keeps
	// overlaying local views until a snapshot boundary at or past that
	// version commits it to the remote cache.
	StateAcknowledged AckState = "acknowledged"
)

// Batch is a group of mutations applied atomically, ordered by a
// monotonically increasing batch id.
type Batch struct {
	ID        int64
	Mutations []Mutation
	State     AckState

	// CommitVersion is the server-assigned version of the batch commit,
	// populated on acknowledgement.
	CommitVersion int64
}

// Paths returns the distinct document paths the batch touches, in mutation order.
func (b *Batch) Paths() []string {
	seen := make(map[string]bool, len(b.Mutations))
	var paths []string
	for _, m := range b.Mutations {
		if !seen[m.Path] {
			seen[m.Path] = true
			paths = append(paths, m.Path)
		}
	}
	return paths
}

// Queue is the ordered log of local writes awaiting server confirmation.
// It is owned by the engine loop and not safe for concurrent use.
type Queue struct {
	batches []*Batch
	nextID  int64

	// lastAckedID guards against duplicate acknowledgements after the
	// batch itself has been committed and removed.
	lastAckedID int64
}

// NewQueue returns an empty mutation queue. Batch ids start at 1.
func NewQueue() *Queue {
	return &Queue{nextID: 1}
}

// Restore seeds the queue from staged batches, e.g. after a restart. Batches
// must arrive in ascending id order.
func (q *Queue) Restore(batches []*Batch) error {
	for _, b := range batches {
		if b.ID < q.nextID {
			return fmt.Errorf("%w: staged batch %d out of order", model.ErrProtocolViolation, b.ID)
		}
		q.batches = append(q.batches, b)
		q.nextID = b.ID + 1
	}
	return nil
}

// Enqueue appends mutations as one batch and returns it. It fails only on
// malformed input.
func (q *Queue) Enqueue(muts ...Mutation) (*Batch, error) {
	if len(muts) == 0 {
		return nil, fmt.Errorf("empty mutation batch")
	}
	for _, m := range muts {
		if err := m.Validate(); err != nil {
			return nil, err
		}
	}
	b := &Batch{ID: q.nextID, Mutations: muts, State: StatePending}
	q.nextID++
	q.batches = append(q.batches, b)
	return b, nil
}

// Acknowledge marks a batch confirmed at the given commit version. Batches
// must be acknowledged in enqueue order; an out-of-order or duplicate ack is
// a fatal protocol violation.
func (q *Queue) Acknowledge(batchID, commitVersion int64) (*Batch, error) {
	if batchID <= q.lastAckedID {
		return nil, fmt.Errorf("%w: duplicate acknowledgement for batch %d", model.ErrProtocolViolation, batchID)
	}
	head := q.firstPending()
	if head == nil {
		return nil, fmt.Errorf("%w: acknowledgement for unknown batch %d", model.ErrProtocolViolation, batchID)
	}
	if head.ID != batchID {
		return nil, fmt.Errorf("%w: acknowledged batch %d before batch %d", model.ErrProtocolViolation, batchID, head.ID)
	}
	head.State = StateAcknowledged
	head.CommitVersion = commitVersion
	q.lastAckedID = batchID
	return head, nil
}

// Reject drops a pending batch the server refused to commit and returns it.
// Rejections follow the same in-order discipline as acknowledgements.
func (q *Queue) Reject(batchID int64) (*Batch, error) {
	head := q.firstPending()
	if head == nil || head.ID != batchID {
		return nil, fmt.Errorf("%w: rejection for batch %d out of order", model.ErrProtocolViolation, batchID)
	}
	q.remove(batchID)
	if batchID > q.lastAckedID {
		q.lastAckedID = batchID
	}
	return head, nil
}

// PendingBatches returns, in enqueue order, all batches not yet acknowledged.
func (q *Queue) PendingBatches() []*Batch {
	var out []*Batch
	for _, b := range q.batches {
		if b.State == StatePending {
			out = append(out, b)
		}
	}
	return out
}

// AllBatches returns every uncommitted batch (pending and acknowledged) in
// enqueue order. Acknowledged batches still overlay local views until the
// watch stream catches up with their commit version.
func (q *Queue) AllBatches() []*Batch {
	out := make([]*Batch, len(q.batches))
	copy(out, q.batches)
	return out
}

// BatchesForPath returns every uncommitted batch touching path, in order.
func (q *Queue) BatchesForPath(path string) []*Batch {
	var out []*Batch
	for _, b := range q.batches {
		for _, m := range b.Mutations {
			if m.Path == path {
				out = append(out, b)
				break
			}
		}
	}
	return out
}

// HasMutations reports whether any uncommitted batch targets path.
func (q *Queue) HasMutations(path string) bool {
	return len(q.BatchesForPath(path)) > 0
}

// CommitThrough removes acknowledged batches whose commit version is covered
// by the remote snapshot version and returns them. Pending batches are never
// removed here.
func (q *Queue) CommitThrough(snapshotVersion int64) []*Batch {
	var committed []*Batch
	kept := q.batches[:0]
	for _, b := range q.batches {
		if b.State == StateAcknowledged && b.CommitVersion <= snapshotVersion {
			committed = append(committed, b)
			continue
		}
		kept = append(kept, b)
	}
	q.batches = kept
	return committed
}

func (q *Queue) firstPending() *Batch {
	for _, b := range q.batches {
		if b.State == StatePending {
			return b
		}
	}
	return nil
}

func (q *Queue) remove(batchID int64) {
	kept := q.batches[:0]
	for _, b := range q.batches {
		if b.ID != batchID {
			kept = append(kept, b)
		}
	}
	q.batches = kept
}
