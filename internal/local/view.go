// Package local derives the "local" value of documents: the remote confirmed
// state with uncommitted mutations applied on top, in batch order.
package local

import (
	"github.com/codetrek/syntrix-go/internal/cache"
	"github.com/codetrek/syntrix-go/internal/mutation"
	"github.com/codetrek/syntrix-go/pkg/model"
)

// DocumentView is a computed local document state. Doc is nil when the
// document is locally absent. HasLocalMutations is true iff at least one
// uncommitted mutation targets the path.
type DocumentView struct {
	Path              string
	Doc               *model.Document
	HasLocalMutations bool
}

// ViewBuilder computes local document views on demand. Views are never
// stored: for fixed queue and cache contents the computation is pure, so
// recomputing is always safe.
type ViewBuilder struct {
	queue *mutation.Queue
	cache *cache.RemoteDocumentCache
}

func NewViewBuilder(queue *mutation.Queue, cache *cache.RemoteDocumentCache) *ViewBuilder {
	return &ViewBuilder{queue: queue, cache: cache}
}

// View computes the local state of the document at path: the cached remote
// document (or absent) with every uncommitted mutation for the path applied
// in batch-id order.
func (b *ViewBuilder) View(path string) DocumentView {
	doc := b.cache.Get(path)
	batches := b.queue.BatchesForPath(path)
	for _, batch := range batches {
		for _, m := range batch.Mutations {
			if m.Path == path {
				doc = m.ApplyTo(doc)
			}
		}
	}
	return DocumentView{
		Path:              path,
		Doc:               doc,
		HasLocalMutations: len(batches) > 0,
	}
}

// Views computes local views for each path.
func (b *ViewBuilder) Views(paths []string) map[string]DocumentView {
	out := make(map[string]DocumentView, len(paths))
	for _, p := range paths {
		out[p] = b.View(p)
	}
	return out
}

// CollectionPaths returns every path that may currently hold a live local
// document in the collection: cached documents plus paths targeted by
// uncommitted mutations. Used to seed a query's result set from cache.
func (b *ViewBuilder) CollectionPaths(collection string) []string {
	seen := make(map[string]bool)
	var paths []string
	for _, doc := range b.cache.Documents(collection) {
		if !seen[doc.Fullpath] {
			seen[doc.Fullpath] = true
			paths = append(paths, doc.Fullpath)
		}
	}
	for _, batch := range b.queue.AllBatches() {
		for _, m := range batch.Mutations {
			if model.CollectionOf(m.Path) == collection && !seen[m.Path] {
				seen[m.Path] = true
				paths = append(paths, m.Path)
			}
		}
	}
	return paths
}
