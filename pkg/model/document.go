package model

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/zeebo/blake3"
)

// Document represents the client's view of a stored document.
type Document struct {
	// Id is the unique identifier for the document, 128-bit BLAKE3 of fullpath, binary
	Id string `json:"id"`

	// Fullpath is the Full Pathname of document
	Fullpath string `json:"-"`

	// Collection is the parent collection name
	Collection string `json:"collection"`

	// UpdatedAt is the timestamp of the last update (Unix milliseconds)
	UpdatedAt int64 `json:"updatedAt"`

	// CreatedAt is the timestamp of the creation (Unix milliseconds)
	CreatedAt int64 `json:"createdAt"`

	// Version is the server-assigned revision, monotonically increasing per path
	Version int64 `json:"version"`

	// Data is the actual content of the document
	Data map[string]interface{} `json:"data"`

	// Deleted indicates if the document is soft-deleted
	Deleted bool `json:"deleted,omitempty"`
}

// CalculateID calculates the document ID (hash) from the full path
func CalculateID(fullpath string) string {
	hash := blake3.Sum256([]byte(fullpath))
	return hex.EncodeToString(hash[:16])
}

// CollectionOf returns the collection part of a full path, i.e. everything
// before the final path segment.
func CollectionOf(fullpath string) string {
	if idx := strings.LastIndex(fullpath, "/"); idx != -1 {
		return fullpath[:idx]
	}
	return ""
}

// ValidPath reports whether fullpath names a document: at least one
// collection segment plus a document segment, no empty segments.
func ValidPath(fullpath string) bool {
	if fullpath == "" {
		return false
	}
	segments := strings.Split(fullpath, "/")
	if len(segments) < 2 {
		return false
	}
	for _, s := range segments {
		if s == "" {
			return false
		}
	}
	return true
}

// NewDocument creates a new document instance with initialized metadata
func NewDocument(fullpath string, data map[string]interface{}) *Document {
	now := time.Now().UnixMilli()

	return &Document{
		Id:         CalculateID(fullpath),
		Fullpath:   fullpath,
		Collection: CollectionOf(fullpath),
		Data:       data,
		UpdatedAt:  now,
		CreatedAt:  now,
		Version:    1,
	}
}

// Clone returns a deep copy of the document. Data maps are copied one level
// deep plus nested maps and slices, which covers JSON-decoded content.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	cp := *d
	if d.Data != nil {
		cp.Data = cloneMap(d.Data)
	}
	return &cp
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, val := range m {
		out[k] = cloneValue(val)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return cloneMap(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	default:
		return v
	}
}
