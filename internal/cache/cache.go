// Package cache holds the last server-confirmed state of each document the
// client has seen, keyed by full path and guarded by version monotonicity.
package cache

import (
	"log"

	"github.com/codetrek/syntrix-go/pkg/model"
)

type entry struct {
	// doc is nil for a tombstone: the server confirmed the document absent
	// at this version.
	doc     *model.Document
	version int64
}

// RemoteDocumentCache is the client's last-known-server-confirmed snapshot of
// documents. It is owned by the engine loop and not safe for concurrent use.
type RemoteDocumentCache struct {
	entries   map[string]*entry
	gcEnabled bool
}

// New returns an empty cache. With gcEnabled, entries no longer referenced by
// any active target become eligible for eviction at snapshot boundaries; when
// disabled, entries are retained indefinitely.
func New(gcEnabled bool) *RemoteDocumentCache {
	return &RemoteDocumentCache{
		entries:   make(map[string]*entry),
		gcEnabled: gcEnabled,
	}
}

// Get returns the confirmed document for path, or nil if the document is
// absent or unknown.
func (c *RemoteDocumentCache) Get(path string) *model.Document {
	e, ok := c.entries[path]
	if !ok || e.doc == nil {
		return nil
	}
	return e.doc
}

// Version returns the confirmed version for path, or 0 when unknown.
func (c *RemoteDocumentCache) Version(path string) int64 {
	if e, ok := c.entries[path]; ok {
		return e.version
	}
	return 0
}

// Contains reports whether the cache holds any entry for path, including
// tombstones.
func (c *RemoteDocumentCache) Contains(path string) bool {
	_, ok := c.entries[path]
	return ok
}

// ApplyRemoteEvent records a server-confirmed document state. A nil doc is a
// tombstone. Events whose version is at or below the stored one are dropped:
// the transport may redeliver, so replay must be idempotent. Returns whether
// the event was applied.
func (c *RemoteDocumentCache) ApplyRemoteEvent(path string, doc *model.Document, version int64) bool {
	if e, ok := c.entries[path]; ok && version <= e.version {
		log.Printf("[Cache] Dropping stale event path=%s version=%d cached=%d", path, version, e.version)
		return false
	}
	if doc != nil {
		doc = doc.Clone()
		doc.Version = version
		// Fullpath is not serialized; rebuild path-derived fields so wire and
		// staged documents come out identical.
		doc.Fullpath = path
		doc.Collection = model.CollectionOf(path)
		doc.Id = model.CalculateID(path)
		if doc.Deleted {
			doc = nil
		}
	}
	c.entries[path] = &entry{doc: doc, version: version}
	return true
}

// Paths returns every cached path, including tombstones.
func (c *RemoteDocumentCache) Paths() []string {
	out := make([]string, 0, len(c.entries))
	for p := range c.entries {
		out = append(out, p)
	}
	return out
}

// Documents returns every cached live document in the given collection.
func (c *RemoteDocumentCache) Documents(collection string) []*model.Document {
	var out []*model.Document
	for _, e := range c.entries {
		if e.doc != nil && e.doc.Collection == collection {
			out = append(out, e.doc)
		}
	}
	return out
}

// EvictUnreferenced removes entries for documents that no active target
// references, unless the entry is the base state of an uncommitted mutation.
// No-op when garbage collection is disabled. Returns the evicted paths.
func (c *RemoteDocumentCache) EvictUnreferenced(referenced map[string]bool, protected func(path string) bool) []string {
	if !c.gcEnabled {
		return nil
	}
	var evicted []string
	for p := range c.entries {
		if referenced[p] {
			continue
		}
		if protected != nil && protected(p) {
			continue
		}
		delete(c.entries, p)
		evicted = append(evicted, p)
	}
	if len(evicted) > 0 {
		log.Printf("[Cache] Evicted %d unreferenced entries", len(evicted))
	}
	return evicted
}
