// Package persistence durably stages the mutation queue and remote document
// cache between runs. The engine functions correctly without it: NoopStaging
// is the default and simply forgets everything on restart.
package persistence

import (
	"github.com/codetrek/syntrix-go/internal/mutation"
	"github.com/codetrek/syntrix-go/pkg/model"
)

// StagedDocument is one cached remote document row. Doc is nil for a
// tombstone.
type StagedDocument struct {
	Path    string
	Doc     *model.Document
	Version int64
}

// Staging persists engine state that must survive a restart.
type Staging interface {
	// StageBatch records an enqueued or acknowledged mutation batch.
	StageBatch(b *mutation.Batch) error

	// RemoveBatch drops a committed or rejected batch.
	RemoveBatch(batchID int64) error

	// LoadBatches returns staged batches in ascending id order.
	LoadBatches() ([]*mutation.Batch, error)

	// StageDocument records a confirmed remote document state.
	StageDocument(doc StagedDocument) error

	// RemoveDocument drops an evicted cache entry.
	RemoveDocument(path string) error

	// LoadDocuments returns every staged document.
	LoadDocuments() ([]StagedDocument, error)

	Close() error
}

// NoopStaging satisfies Staging without persisting anything.
type NoopStaging struct{}

func (NoopStaging) StageBatch(*mutation.Batch) error         { return nil }
func (NoopStaging) RemoveBatch(int64) error                  { return nil }
func (NoopStaging) LoadBatches() ([]*mutation.Batch, error)  { return nil, nil }
func (NoopStaging) StageDocument(StagedDocument) error       { return nil }
func (NoopStaging) RemoveDocument(string) error              { return nil }
func (NoopStaging) LoadDocuments() ([]StagedDocument, error) { return nil, nil }
func (NoopStaging) Close() error                             { return nil }
