package watch

import (
	"log"

	"github.com/codetrek/syntrix-go/pkg/model"
)

// Coordinator owns the target table: one target per distinct query, shared by
// all listeners of that query. Owned by the engine loop, not safe for
// concurrent use.
type Coordinator struct {
	targets map[TargetID]*Target
	byQuery map[string]TargetID
	nextID  TargetID
}

func NewCoordinator() *Coordinator {
	return &Coordinator{
		targets: make(map[TargetID]*Target),
		byQuery: make(map[string]TargetID),
		nextID:  1,
	}
}

// AddTarget returns the target for the query, creating it in state New when
// the query has no subscription yet. The second result reports creation.
func (c *Coordinator) AddTarget(q model.Query) (*Target, bool) {
	if id, ok := c.byQuery[q.Key()]; ok {
		return c.targets[id], false
	}
	t := &Target{ID: c.nextID, Query: q, State: TargetNew}
	c.nextID++
	c.targets[t.ID] = t
	c.byQuery[q.Key()] = t.ID
	return t, true
}

// Get returns the target by id, or nil.
func (c *Coordinator) Get(id TargetID) *Target {
	return c.targets[id]
}

// TargetForQuery returns the target subscribed to the query, or nil.
func (c *Coordinator) TargetForQuery(q model.Query) *Target {
	if id, ok := c.byQuery[q.Key()]; ok {
		return c.targets[id]
	}
	return nil
}

// RemoveTarget drops a target from the table. Idempotent.
func (c *Coordinator) RemoveTarget(id TargetID) {
	t, ok := c.targets[id]
	if !ok {
		return
	}
	delete(c.targets, id)
	delete(c.byQuery, t.Query.Key())
}

// Targets returns every tracked target.
func (c *Coordinator) Targets() []*Target {
	out := make([]*Target, 0, len(c.targets))
	for _, t := range c.targets {
		out = append(out, t)
	}
	return out
}

// MarkCurrent records the server's current marker for the given targets.
func (c *Coordinator) MarkCurrent(ids []TargetID) {
	for _, id := range ids {
		if t := c.targets[id]; t != nil {
			t.MarkCurrent()
		}
	}
}

// AckBoundary confirms targets at a snapshot boundary, advancing resume
// tokens and promoting current targets to Acked.
func (c *Coordinator) AckBoundary(version int64, resumeToken []byte) {
	for _, t := range c.targets {
		if t.State == TargetNew {
			continue
		}
		t.AckFull(version, resumeToken)
	}
}

// DegradeAll drops every target to New on transport disconnect. Resume
// tokens are kept; the engine re-listens on reconnect and serves cache-only
// snapshots meanwhile.
func (c *Coordinator) DegradeAll() {
	for _, t := range c.targets {
		if t.State != TargetNew {
			log.Printf("[Watch] Degrading target %d to cache-only", t.ID)
			t.Degrade()
		}
	}
}
