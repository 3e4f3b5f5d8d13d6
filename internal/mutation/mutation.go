package mutation

import (
	"fmt"

	"github.com/codetrek/syntrix-go/pkg/model"
)

// Kind is the type of a local write.
type Kind string

const (
	KindSet    Kind = "set"
	KindPatch  Kind = "patch"
	KindDelete Kind = "delete"
)

// Mutation is a single local write targeting one document path.
type Mutation struct {
	Path   string                 `json:"path"`
	Kind   Kind                   `json:"kind"`
	Fields map[string]interface{} `json:"fields,omitempty"`
}

// Set fully replaces the document at path.
func Set(path string, fields map[string]interface{}) Mutation {
	return Mutation{Path: path, Kind: KindSet, Fields: fields}
}

// Patch merges fields into the document at path, creating it if absent.
func Patch(path string, fields map[string]interface{}) Mutation {
	return Mutation{Path: path, Kind: KindPatch, Fields: fields}
}

// Delete removes the document at path.
func Delete(path string) Mutation {
	return Mutation{Path: path, Kind: KindDelete}
}

// Validate checks the mutation shape. Enqueue fails only on malformed input.
func (m Mutation) Validate() error {
	if !model.ValidPath(m.Path) {
		return fmt.Errorf("%w: %q", model.ErrInvalidPath, m.Path)
	}
	switch m.Kind {
	case KindSet, KindPatch:
		if m.Fields == nil {
			return fmt.Errorf("%s mutation for %q has no fields", m.Kind, m.Path)
		}
	case KindDelete:
	default:
		return fmt.Errorf("unknown mutation kind %q", m.Kind)
	}
	return nil
}

// ApplyTo computes the local value of the target document given its base
// state. A nil base means the document is absent; a nil result means the
// mutation leaves it absent. The base is never modified.
func (m Mutation) ApplyTo(base *model.Document) *model.Document {
	switch m.Kind {
	case KindDelete:
		return nil
	case KindSet:
		doc := newLocalDocument(m.Path, base)
		doc.Data = cloneFields(m.Fields)
		return doc
	case KindPatch:
		doc := newLocalDocument(m.Path, base)
		if doc.Data == nil {
			doc.Data = make(map[string]interface{}, len(m.Fields))
		}
		for k, v := range m.Fields {
			doc.Data[k] = v
		}
		return doc
	}
	return base
}

// newLocalDocument clones the base for local application, or builds a fresh
// unversioned document when the base is absent. Timestamps are left to the
// server: local application must stay pure so repeated view computations are
// identical for identical inputs.
func newLocalDocument(path string, base *model.Document) *model.Document {
	if base != nil {
		return base.Clone()
	}
	return &model.Document{
		Id:         model.CalculateID(path),
		Fullpath:   path,
		Collection: model.CollectionOf(path),
		Version:    0,
	}
}

func cloneFields(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
