// Package natsstream implements the stream collaborator over NATS JetStream.
// The server publishes envelope messages on sync.<collection>.> subjects;
// resume tokens encode the last consumed stream sequence so a re-listen
// continues where the previous session stopped.
package natsstream

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/codetrek/syntrix-go/internal/transport"
	"github.com/codetrek/syntrix-go/internal/watch"
)

const streamName = "SYNC"

// Stream consumes the server's change feed from JetStream. Listen/unlisten
// requests go to the server over core NATS request subjects; watch events
// arrive as envelope messages on the JetStream subjects.
type Stream struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	events chan transport.Event

	mu       sync.Mutex
	startSeq uint64
}

func New(nc *nats.Conn) (*Stream, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, err
	}
	return &Stream{
		nc:     nc,
		js:     js,
		events: make(chan transport.Event, 64),
	}, nil
}

func (s *Stream) Events() <-chan transport.Event {
	return s.events
}

// Run consumes the change feed until ctx is cancelled.
func (s *Stream) Run(ctx context.Context) error {
	defer close(s.events)

	stream, err := s.js.Stream(ctx, streamName)
	if err != nil {
		return fmt.Errorf("failed to open stream %s: %w", streamName, err)
	}

	cfg := jetstream.OrderedConsumerConfig{FilterSubjects: []string{"sync.>"}}
	s.mu.Lock()
	if s.startSeq > 0 {
		cfg.DeliverPolicy = jetstream.DeliverByStartSequencePolicy
		cfg.OptStartSeq = s.startSeq + 1
	}
	s.mu.Unlock()

	consumer, err := stream.OrderedConsumer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	iter, err := consumer.Messages()
	if err != nil {
		return fmt.Errorf("failed to create message iterator: %w", err)
	}
	defer iter.Stop()

	s.events <- transport.Connected{}
	log.Println("[Transport] NATS change feed consumer started")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			msg, err := iter.Next()
			if err != nil {
				s.events <- transport.Disconnected{Err: err}
				return err
			}
			if err := s.processMsg(msg); err != nil {
				log.Printf("[Transport] Dropping malformed feed message: %v", err)
			}
		}
	}
}

func (s *Stream) processMsg(msg jetstream.Msg) error {
	meta, err := msg.Metadata()
	if err != nil {
		return err
	}

	var envelope transport.BaseMessage
	if err := json.Unmarshal(msg.Data(), &envelope); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	switch envelope.Type {
	case transport.TypeChange, transport.TypeDelete:
		var p transport.ChangePayload
		if err := json.Unmarshal(envelope.Payload, &p); err != nil {
			return err
		}
		if envelope.Type == transport.TypeDelete {
			s.events <- transport.DocumentDelete{Path: p.Path, Version: p.Version, Targets: p.Targets}
		} else {
			s.events <- transport.DocumentChange{Path: p.Path, Doc: p.Document, Version: p.Version, Targets: p.Targets}
		}

	case transport.TypeBoundary:
		var p transport.BoundaryPayload
		if err := json.Unmarshal(envelope.Payload, &p); err != nil {
			return err
		}
		// The stream sequence is the durable checkpoint here; it replaces
		// whatever token the server put on the wire.
		s.events <- transport.SnapshotBoundary{
			Version:     p.Version,
			ResumeToken: EncodeToken(meta.Sequence.Stream),
		}

	case transport.TypeTargetAdded, transport.TypeTargetCurrent, transport.TypeTargetRemove:
		var p transport.TargetsPayload
		if err := json.Unmarshal(envelope.Payload, &p); err != nil {
			return err
		}
		switch envelope.Type {
		case transport.TypeTargetAdded:
			s.events <- transport.TargetAdded{Targets: p.Targets}
		case transport.TypeTargetCurrent:
			s.events <- transport.TargetCurrent{Targets: p.Targets}
		default:
			s.events <- transport.TargetRemoved{
				Targets: p.Targets,
				Cause:   fmt.Errorf("target removed by server: %s (%s)", p.Message, p.Code),
			}
		}

	case transport.TypeWriteAck:
		var p transport.WriteAckPayload
		if err := json.Unmarshal(envelope.Payload, &p); err != nil {
			return err
		}
		s.events <- transport.WriteAck{BatchID: p.BatchID, Version: p.Version}

	case transport.TypeWriteReject:
		var p transport.WriteRejectPayload
		if err := json.Unmarshal(envelope.Payload, &p); err != nil {
			return err
		}
		s.events <- transport.WriteRejected{BatchID: p.BatchID, Code: p.Code, Message: p.Message}

	default:
		return fmt.Errorf("unknown message type %q", envelope.Type)
	}
	return nil
}

func (s *Stream) Listen(req transport.ListenRequest) error {
	if seq, ok := DecodeToken(req.ResumeToken); ok {
		s.mu.Lock()
		if seq > s.startSeq {
			s.startSeq = seq
		}
		s.mu.Unlock()
	}
	msg, err := transport.Encode(transport.TypeListen, transport.ListenPayload{
		TargetID:    req.TargetID,
		Query:       req.Query,
		ResumeToken: req.ResumeToken,
	})
	if err != nil {
		return err
	}
	return s.publishRequest("sync.ctl.listen", msg)
}

func (s *Stream) Unlisten(targetID watch.TargetID) error {
	msg, err := transport.Encode(transport.TypeUnlisten, transport.UnlistenPayload{TargetID: targetID})
	if err != nil {
		return err
	}
	return s.publishRequest("sync.ctl.unlisten", msg)
}

func (s *Stream) Write(req transport.WriteRequest) error {
	msg, err := transport.Encode(transport.TypeWrite, transport.WritePayload{
		BatchID:   req.BatchID,
		Mutations: req.Mutations,
	})
	if err != nil {
		return err
	}
	return s.publishRequest("sync.ctl.write", msg)
}

func (s *Stream) publishRequest(subject string, msg *transport.BaseMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.nc.Publish(subject, data)
}

// EncodeToken packs a stream sequence into an opaque resume token.
func EncodeToken(seq uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	return buf
}

// DecodeToken unpacks a resume token produced by EncodeToken.
func DecodeToken(token []byte) (uint64, bool) {
	if len(token) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(token), true
}
