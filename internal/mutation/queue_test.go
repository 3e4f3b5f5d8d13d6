package mutation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codetrek/syntrix-go/pkg/model"
)

func enqueueN(t *testing.T, q *Queue, n int) []*Batch {
	t.Helper()
	out := make([]*Batch, 0, n)
	for i := 0; i < n; i++ {
		b, err := q.Enqueue(Set("users/1", map[string]interface{}{"i": i}))
		require.NoError(t, err)
		out = append(out, b)
	}
	return out
}

func TestQueue_EnqueueAssignsMonotonicIDs(t *testing.T) {
	q := NewQueue()
	batches := enqueueN(t, q, 3)

	assert.Equal(t, int64(1), batches[0].ID)
	assert.Equal(t, int64(2), batches[1].ID)
	assert.Equal(t, int64(3), batches[2].ID)
}

func TestQueue_EnqueueRejectsMalformedInput(t *testing.T) {
	q := NewQueue()

	_, err := q.Enqueue(Set("no-slash", map[string]interface{}{"a": 1}))
	assert.ErrorIs(t, err, model.ErrInvalidPath)

	_, err = q.Enqueue()
	assert.Error(t, err)

	// nothing was appended
	assert.Empty(t, q.PendingBatches())
}

func TestQueue_PendingIsSuffixOfEnqueueOrder(t *testing.T) {
	q := NewQueue()
	enqueueN(t, q, 4)

	for acked := int64(1); acked <= 4; acked++ {
		_, err := q.Acknowledge(acked, 100+acked)
		require.NoError(t, err)

		pending := q.PendingBatches()
		assert.Len(t, pending, int(4-acked))
		for i, b := range pending {
			assert.Equal(t, acked+1+int64(i), b.ID)
		}
	}
}

func TestQueue_OutOfOrderAckIsProtocolViolation(t *testing.T) {
	q := NewQueue()
	enqueueN(t, q, 2)

	_, err := q.Acknowledge(2, 100)
	assert.ErrorIs(t, err, model.ErrProtocolViolation)
}

func TestQueue_DuplicateAckIsProtocolViolation(t *testing.T) {
	q := NewQueue()
	enqueueN(t, q, 2)

	_, err := q.Acknowledge(1, 100)
	require.NoError(t, err)

	_, err = q.Acknowledge(1, 100)
	assert.ErrorIs(t, err, model.ErrProtocolViolation)
}

func TestQueue_AckForUnknownBatchIsProtocolViolation(t *testing.T) {
	q := NewQueue()

	_, err := q.Acknowledge(1, 100)
	assert.ErrorIs(t, err, model.ErrProtocolViolation)
}

func TestQueue_AcknowledgedBatchKeepsOverlayingUntilCommit(t *testing.T) {
	q := NewQueue()
	enqueueN(t, q, 1)

	_, err := q.Acknowledge(1, 10)
	require.NoError(t, err)

	// still uncommitted: local views keep the written state
	assert.True(t, q.HasMutations("users/1"))
	assert.Empty(t, q.PendingBatches())

	// a boundary before the commit version keeps it
	assert.Empty(t, q.CommitThrough(9))
	assert.True(t, q.HasMutations("users/1"))

	// the covering boundary commits it
	committed := q.CommitThrough(10)
	require.Len(t, committed, 1)
	assert.Equal(t, []string{"users/1"}, committed[0].Paths())
	assert.False(t, q.HasMutations("users/1"))
}

func TestQueue_RejectDropsHeadBatch(t *testing.T) {
	q := NewQueue()
	enqueueN(t, q, 2)

	b, err := q.Reject(1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), b.ID)

	pending := q.PendingBatches()
	require.Len(t, pending, 1)
	assert.Equal(t, int64(2), pending[0].ID)

	_, err = q.Reject(1)
	assert.ErrorIs(t, err, model.ErrProtocolViolation)
}

func TestQueue_RestoreResumesIDSequence(t *testing.T) {
	q := NewQueue()
	err := q.Restore([]*Batch{
		{ID: 3, Mutations: []Mutation{Delete("users/1")}, State: StatePending},
		{ID: 5, Mutations: []Mutation{Delete("users/2")}, State: StatePending},
	})
	require.NoError(t, err)

	b, err := q.Enqueue(Delete("users/3"))
	require.NoError(t, err)
	assert.Equal(t, int64(6), b.ID)

	err = q.Restore([]*Batch{{ID: 2, State: StatePending}})
	assert.ErrorIs(t, err, model.ErrProtocolViolation)
}
