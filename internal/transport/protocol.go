package transport

import (
	"encoding/json"

	"github.com/codetrek/syntrix-go/internal/mutation"
	"github.com/codetrek/syntrix-go/internal/watch"
	"github.com/codetrek/syntrix-go/pkg/model"
)

// Message types
const (
	TypeAuth          = "auth"
	TypeAuthAck       = "auth_ack"
	TypeListen        = "listen"
	TypeUnlisten      = "unlisten"
	TypeWrite         = "write"
	TypeWriteAck      = "write_ack"
	TypeWriteReject   = "write_reject"
	TypeTargetAdded   = "target_added"
	TypeTargetCurrent = "target_current"
	TypeTargetRemove  = "target_remove"
	TypeChange        = "change"
	TypeDelete        = "delete"
	TypeBoundary      = "boundary"
	TypeError         = "error"
)

// BaseMessage is the envelope for all messages
type BaseMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// AuthPayload
type AuthPayload struct {
	Token string `json:"token"`
}

// ListenPayload (Client -> Server)
type ListenPayload struct {
	TargetID    watch.TargetID `json:"targetId"`
	Query       model.Query    `json:"query"`
	ResumeToken []byte         `json:"resumeToken,omitempty"`
}

// UnlistenPayload (Client -> Server)
type UnlistenPayload struct {
	TargetID watch.TargetID `json:"targetId"`
}

// WritePayload (Client -> Server)
type WritePayload struct {
	BatchID   int64               `json:"batchId"`
	Mutations []mutation.Mutation `json:"mutations"`
}

// WriteAckPayload (Server -> Client)
type WriteAckPayload struct {
	BatchID int64 `json:"batchId"`
	Version int64 `json:"version"`
}

// WriteRejectPayload (Server -> Client)
type WriteRejectPayload struct {
	BatchID int64  `json:"batchId"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// TargetsPayload (Server -> Client) for added/current/remove signals
type TargetsPayload struct {
	Targets []watch.TargetID `json:"targets"`
	Code    string           `json:"code,omitempty"`
	Message string           `json:"message,omitempty"`
}

// ChangePayload (Server -> Client)
type ChangePayload struct {
	Path     string           `json:"path"`
	Document *model.Document  `json:"document,omitempty"`
	Version  int64            `json:"version"`
	Targets  []watch.TargetID `json:"targets"`
}

// BoundaryPayload (Server -> Client)
type BoundaryPayload struct {
	Version     int64  `json:"version"`
	ResumeToken []byte `json:"resumeToken,omitempty"`
}

// ErrorPayload
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Encode wraps a payload into an envelope message.
func Encode(msgType string, payload interface{}) (*BaseMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &BaseMessage{Type: msgType, Payload: raw}, nil
}
