package view

import (
	"sort"

	"github.com/codetrek/syntrix-go/internal/local"
	"github.com/codetrek/syntrix-go/internal/predicate"
	"github.com/codetrek/syntrix-go/pkg/model"
)

type member struct {
	doc               *model.Document
	hasLocalMutations bool
}

// View maintains one query's result set and produces snapshots as document
// state flows through it. Owned by the engine loop.
type View struct {
	query model.Query
	eval  *predicate.Evaluator

	members map[string]member
	order   []string

	emitted        bool
	lastFromCache  bool
	lastHasPending bool
}

func New(query model.Query, eval *predicate.Evaluator) *View {
	return &View{
		query:   query,
		eval:    eval,
		members: make(map[string]member),
	}
}

func (v *View) Query() model.Query {
	return v.query
}

// MemberPaths returns the paths currently in the result set.
func (v *View) MemberPaths() []string {
	out := make([]string, len(v.order))
	copy(out, v.order)
	return out
}

// ApplyChanges folds updated local document views into the result set and
// returns the next snapshot, or nil when nothing listener-visible changed.
// acked reports whether the target is server-confirmed; it drives the
// FromCache flag.
func (v *View) ApplyChanges(changed map[string]local.DocumentView, acked bool) *Snapshot {
	next := make(map[string]member, len(v.members))
	for p, m := range v.members {
		next[p] = m
	}
	for path, dv := range changed {
		if v.eval.Matches(v.query, dv.Doc) {
			next[path] = member{doc: dv.Doc, hasLocalMutations: dv.HasLocalMutations}
		} else {
			delete(next, path)
		}
	}

	order := v.sortAndLimit(next)
	snapshot := v.diff(next, order, acked)

	v.members = next
	v.order = order
	if snapshot != nil {
		v.emitted = true
		v.lastFromCache = snapshot.FromCache
		v.lastHasPending = snapshot.HasPendingWrites
	}
	return snapshot
}

// sortAndLimit orders membership per the query comparator and enforces the
// query limit, dropping overflow documents from membership entirely.
func (v *View) sortAndLimit(next map[string]member) []string {
	order := make([]string, 0, len(next))
	for p := range next {
		order = append(order, p)
	}
	sort.Slice(order, func(i, j int) bool {
		return v.eval.Compare(v.query, next[order[i]].doc, next[order[j]].doc) < 0
	})
	if v.query.Limit > 0 && len(order) > v.query.Limit {
		for _, p := range order[v.query.Limit:] {
			delete(next, p)
		}
		order = order[:v.query.Limit]
	}
	return order
}

// diff computes the snapshot against the previous membership. The visible
// classification is a pure before/after set comparison: a document that left
// and re-entered the set within one application surfaces as modified.
func (v *View) diff(next map[string]member, order []string, acked bool) *Snapshot {
	var changes []DocumentChange

	prevOrder := v.order
	for _, p := range prevOrder {
		if _, stays := next[p]; !stays {
			changes = append(changes, DocumentChange{Type: ChangeRemoved, Doc: v.members[p].doc})
		}
	}

	hasPending := false
	docs := make([]*model.Document, 0, len(order))
	for _, p := range order {
		m := next[p]
		docs = append(docs, m.doc)
		if m.hasLocalMutations {
			hasPending = true
		}
		prev, existed := v.members[p]
		switch {
		case !existed:
			changes = append(changes, DocumentChange{Type: ChangeAdded, Doc: m.doc})
		case !docsEqual(prev.doc, m.doc):
			changes = append(changes, DocumentChange{Type: ChangeModified, Doc: m.doc})
		}
	}

	// A change in fromCache alone does not trigger emission: a boundary that
	// merely confirms cached results (or a disconnect that degrades them)
	// with no visible data change stays silent, and the flag rides along on
	// the next emitted snapshot.
	fromCache := !acked
	if v.emitted && len(changes) == 0 && hasPending == v.lastHasPending {
		v.lastFromCache = fromCache
		return nil
	}

	return &Snapshot{
		Query:            v.query,
		Documents:        docs,
		Changes:          changes,
		FromCache:        fromCache,
		HasPendingWrites: hasPending,
	}
}
