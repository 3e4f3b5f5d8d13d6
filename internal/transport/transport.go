// Package transport defines the stream collaborator boundary: the engine
// consumes watch and write events from a Stream and issues listen, unlisten
// and write requests back. Reconnection policy lives entirely inside stream
// implementations; the engine only reacts to the events they surface.
package transport

import (
	"context"

	"github.com/codetrek/syntrix-go/internal/mutation"
	"github.com/codetrek/syntrix-go/internal/watch"
	"github.com/codetrek/syntrix-go/pkg/model"
)

// ListenRequest subscribes a target to its query on the server.
type ListenRequest struct {
	TargetID    watch.TargetID
	Query       model.Query
	ResumeToken []byte
}

// WriteRequest submits one mutation batch for commit.
type WriteRequest struct {
	BatchID   int64
	Mutations []mutation.Mutation
}

// Stream is the transport collaborator. Implementations must deliver events
// on a single channel in arrival order and close it only when Run returns.
type Stream interface {
	// Run drives the connection until ctx is cancelled, reconnecting as its
	// policy dictates.
	Run(ctx context.Context) error

	// Events returns the inbound event channel consumed by the engine loop.
	Events() <-chan Event

	Listen(req ListenRequest) error
	Unlisten(targetID watch.TargetID) error
	Write(req WriteRequest) error
}

// Event is a server-originated stream event.
type Event interface {
	streamEvent()
}

// Connected signals the transport (re-)established its connection.
type Connected struct{}

// Disconnected signals the transport lost its connection. The engine
// degrades affected targets to cache-only and discards unbounded deltas.
type Disconnected struct {
	Err error
}

// TargetAdded confirms the server registered the listed targets.
type TargetAdded struct {
	Targets []watch.TargetID
}

// TargetCurrent signals the listed targets' result sets are complete up to
// the next snapshot boundary.
type TargetCurrent struct {
	Targets []watch.TargetID
}

// TargetRemoved signals a server-initiated un-watch, e.g. on permission
// revocation. Cause carries the server error, surfaced to listeners.
type TargetRemoved struct {
	Targets []watch.TargetID
	Cause   error
}

// DocumentChange carries one changed document for the affected targets.
type DocumentChange struct {
	Path    string
	Doc     *model.Document
	Version int64
	Targets []watch.TargetID
}

// DocumentDelete carries one document removal for the affected targets.
type DocumentDelete struct {
	Path    string
	Version int64
	Targets []watch.TargetID
}

// SnapshotBoundary signals all deltas up to Version are complete and may be
// applied atomically.
type SnapshotBoundary struct {
	Version     int64
	ResumeToken []byte
}

// WriteAck confirms a mutation batch committed at Version.
type WriteAck struct {
	BatchID int64
	Version int64
}

// WriteRejected reports the server refused a mutation batch.
type WriteRejected struct {
	BatchID int64
	Code    string
	Message string
}

func (Connected) streamEvent()        {}
func (Disconnected) streamEvent()     {}
func (TargetAdded) streamEvent()      {}
func (TargetCurrent) streamEvent()    {}
func (TargetRemoved) streamEvent()    {}
func (DocumentChange) streamEvent()   {}
func (DocumentDelete) streamEvent()   {}
func (SnapshotBoundary) streamEvent() {}
func (WriteAck) streamEvent()         {}
func (WriteRejected) streamEvent()    {}
