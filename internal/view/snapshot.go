// Package view turns aggregated document state into ordered, de-duplicated
// result-set snapshots for listeners.
package view

import (
	"reflect"

	"github.com/codetrek/syntrix-go/pkg/model"
)

// ChangeType classifies a document's movement relative to the previous
// snapshot of the same query.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeRemoved  ChangeType = "removed"
)

// DocumentChange is one entry in a snapshot's diff.
type DocumentChange struct {
	Type ChangeType
	Doc  *model.Document
}

// Snapshot is an immutable view of a query's result set at one point in the
// engine's state, plus the diff against the previously emitted snapshot.
type Snapshot struct {
	Query     model.Query
	Documents []*model.Document
	Changes   []DocumentChange

	// FromCache is true while the snapshot reflects local or cached state
	// the server has not confirmed.
	FromCache bool

	// HasPendingWrites is true while any document in the result set carries
	// unacknowledged local mutations.
	HasPendingWrites bool
}

// docsEqual compares the listener-visible content of two documents. Pointer
// identity is useless here: local views are recomputed on demand and produce
// fresh values for unchanged state.
func docsEqual(a, b *model.Document) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Version == b.Version &&
		a.Deleted == b.Deleted &&
		reflect.DeepEqual(a.Data, b.Data)
}
