// Package watch tracks per-query server subscriptions and buffers the change
// stream between snapshot boundaries.
package watch

import (
	"fmt"

	"github.com/codetrek/syntrix-go/pkg/model"
)

// TargetID identifies one server-side query subscription.
type TargetID int64

// TargetState is the subscription lifecycle state.
type TargetState string

const (
	// TargetNew means no listen request is in flight for the target.
	TargetNew TargetState = "new"
	// TargetPendingAck means a listen was sent and the server has not yet
	// confirmed the full result set.
	TargetPendingAck TargetState = "pending_ack"
	// TargetAcked means the server confirmed the result set; snapshots for
	// the target are no longer cache-only.
	TargetAcked TargetState = "acked"
)

// Target is the client side of one query subscription.
type Target struct {
	ID    TargetID
	Query model.Query
	State TargetState

	// ResumeToken is the opaque server checkpoint replayed on re-listen so
	// unchanged results are not re-downloaded. Never inspected by the core.
	ResumeToken []byte

	// SnapshotVersion is the remote snapshot version at which the target
	// was last confirmed consistent.
	SnapshotVersion int64

	// current is set once the server signals the target's result set is
	// complete; acknowledgement happens at the next snapshot boundary.
	current bool
}

// Listen transitions the target into PendingAck when a listen request goes
// out on the stream.
func (t *Target) Listen() error {
	if t.State != TargetNew {
		return fmt.Errorf("%w: listen on target %d in state %s", model.ErrProtocolViolation, t.ID, t.State)
	}
	t.State = TargetPendingAck
	return nil
}

// MarkCurrent records the server's signal that the result set is complete.
// The target becomes Acked at the next snapshot boundary.
func (t *Target) MarkCurrent() {
	t.current = true
}

// AckFull confirms the target at a snapshot boundary. Only targets the
// server marked current are promoted.
func (t *Target) AckFull(version int64, resumeToken []byte) {
	if len(resumeToken) > 0 {
		t.ResumeToken = resumeToken
	}
	if version > t.SnapshotVersion {
		t.SnapshotVersion = version
	}
	if t.current && t.State == TargetPendingAck {
		t.State = TargetAcked
	}
}

// Degrade drops the target back to New, keeping the resume token so a
// re-listen avoids a full re-download. Used on disconnect and on
// server-initiated removal.
func (t *Target) Degrade() {
	t.State = TargetNew
	t.current = false
}

// Acked reports whether snapshots for this target are server-confirmed.
func (t *Target) Acked() bool {
	return t.State == TargetAcked
}
