package watch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codetrek/syntrix-go/pkg/model"
)

func TestTarget_Lifecycle(t *testing.T) {
	target := &Target{ID: 1, Query: model.Query{Collection: "users"}, State: TargetNew}

	require.NoError(t, target.Listen())
	assert.Equal(t, TargetPendingAck, target.State)
	assert.False(t, target.Acked())

	// a boundary before the server marks the target current does not promote
	target.AckFull(5, []byte("tok-5"))
	assert.Equal(t, TargetPendingAck, target.State)

	target.MarkCurrent()
	target.AckFull(7, []byte("tok-7"))
	assert.Equal(t, TargetAcked, target.State)
	assert.True(t, target.Acked())
	assert.Equal(t, []byte("tok-7"), target.ResumeToken)
	assert.Equal(t, int64(7), target.SnapshotVersion)
}

func TestTarget_ListenTwiceIsProtocolViolation(t *testing.T) {
	target := &Target{ID: 1, State: TargetNew}
	require.NoError(t, target.Listen())

	err := target.Listen()
	assert.ErrorIs(t, err, model.ErrProtocolViolation)
}

func TestTarget_DegradeKeepsResumeToken(t *testing.T) {
	target := &Target{ID: 1, State: TargetAcked, ResumeToken: []byte("tok")}

	target.Degrade()

	assert.Equal(t, TargetNew, target.State)
	assert.Equal(t, []byte("tok"), target.ResumeToken)

	// re-listen starts a fresh ack cycle
	require.NoError(t, target.Listen())
	target.AckFull(9, nil)
	assert.Equal(t, TargetPendingAck, target.State)
}

func TestCoordinator_SharesTargetPerQuery(t *testing.T) {
	c := NewCoordinator()
	q := model.Query{Collection: "users"}

	first, created := c.AddTarget(q)
	assert.True(t, created)

	second, created := c.AddTarget(q)
	assert.False(t, created)
	assert.Same(t, first, second)

	other, created := c.AddTarget(model.Query{Collection: "posts"})
	assert.True(t, created)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestCoordinator_RemoveTargetIsIdempotent(t *testing.T) {
	c := NewCoordinator()
	target, _ := c.AddTarget(model.Query{Collection: "users"})

	c.RemoveTarget(target.ID)
	c.RemoveTarget(target.ID)

	assert.Nil(t, c.Get(target.ID))
	assert.Nil(t, c.TargetForQuery(target.Query))
}

func TestCoordinator_DegradeAll(t *testing.T) {
	c := NewCoordinator()
	a, _ := c.AddTarget(model.Query{Collection: "users"})
	b, _ := c.AddTarget(model.Query{Collection: "posts"})
	require.NoError(t, a.Listen())
	require.NoError(t, b.Listen())
	c.MarkCurrent([]TargetID{a.ID, b.ID})
	c.AckBoundary(3, []byte("tok"))
	require.True(t, a.Acked())

	c.DegradeAll()

	assert.Equal(t, TargetNew, a.State)
	assert.Equal(t, TargetNew, b.State)
	assert.Equal(t, []byte("tok"), a.ResumeToken)
}
