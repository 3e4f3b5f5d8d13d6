// Package ws implements the stream collaborator over a websocket connection
// speaking the syntrix realtime envelope protocol.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"github.com/codetrek/syntrix-go/internal/transport"
	"github.com/codetrek/syntrix-go/internal/watch"
	"github.com/codetrek/syntrix-go/pkg/model"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Client is a websocket Stream with automatic reconnection. Outbound
// requests are serialized through a send channel; inbound messages are
// decoded into transport events.
type Client struct {
	url   string
	token string

	events chan transport.Event
	send   chan *transport.BaseMessage

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewClient(url, token string) *Client {
	return &Client{
		url:    url,
		token:  token,
		events: make(chan transport.Event, 64),
		send:   make(chan *transport.BaseMessage, 64),
	}
}

func (c *Client) Events() <-chan transport.Event {
	return c.events
}

// Run dials and pumps the connection until ctx is cancelled, backing off
// exponentially between attempts. Reconnection policy lives here, not in the
// engine: the engine only sees Connected/Disconnected events.
func (c *Client) Run(ctx context.Context) error {
	policy := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	for {
		err := backoff.Retry(func() error {
			return c.connect(ctx)
		}, policy)
		if err != nil {
			close(c.events)
			return err
		}

		err = c.pump(ctx)
		c.events <- transport.Disconnected{Err: err}
		policy.Reset()

		select {
		case <-ctx.Done():
			close(c.events)
			return ctx.Err()
		default:
		}
	}
}

func (c *Client) connect(ctx context.Context) error {
	if err := checkToken(c.token); err != nil {
		return backoff.Permanent(err)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		log.Printf("[Transport] Dial failed: %v", err)
		return err
	}

	msg, err := transport.Encode(transport.TypeAuth, transport.AuthPayload{Token: c.token})
	if err != nil {
		conn.Close()
		return backoff.Permanent(err)
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		conn.Close()
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.events <- transport.Connected{}
	return nil
}

// checkToken rejects an already expired credential before dialing, since the
// server would only drop the connection after the auth round trip.
func checkToken(token string) error {
	if token == "" {
		return nil
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return fmt.Errorf("malformed auth token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return fmt.Errorf("malformed auth token: %w", err)
	}
	if exp != nil && exp.Before(time.Now()) {
		return fmt.Errorf("%w: auth token expired", model.ErrPermissionDenied)
	}
	return nil
}

func (c *Client) pump(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	defer conn.Close()

	errCh := make(chan error, 2)
	go c.writePump(ctx, conn, errCh)
	go c.readPump(conn, errCh)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (c *Client) writePump(ctx context.Context, conn *websocket.Conn, errCh chan<- error) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				errCh <- err
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				errCh <- err
				return
			}
		}
	}
}

func (c *Client) readPump(conn *websocket.Conn, errCh chan<- error) {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var msg transport.BaseMessage
		if err := conn.ReadJSON(&msg); err != nil {
			errCh <- err
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
		if err := c.dispatch(&msg); err != nil {
			log.Printf("[Transport] Dropping malformed %s message: %v", msg.Type, err)
		}
	}
}

// dispatch decodes one envelope into a transport event.
func (c *Client) dispatch(msg *transport.BaseMessage) error {
	switch msg.Type {
	case transport.TypeAuthAck:
		return nil

	case transport.TypeTargetAdded:
		var p transport.TargetsPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		c.events <- transport.TargetAdded{Targets: p.Targets}

	case transport.TypeTargetCurrent:
		var p transport.TargetsPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		c.events <- transport.TargetCurrent{Targets: p.Targets}

	case transport.TypeTargetRemove:
		var p transport.TargetsPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		c.events <- transport.TargetRemoved{
			Targets: p.Targets,
			Cause:   fmt.Errorf("%w: %s (%s)", model.ErrTargetRejected, p.Message, p.Code),
		}

	case transport.TypeChange:
		var p transport.ChangePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		c.events <- transport.DocumentChange{
			Path: p.Path, Doc: p.Document, Version: p.Version, Targets: p.Targets,
		}

	case transport.TypeDelete:
		var p transport.ChangePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		c.events <- transport.DocumentDelete{Path: p.Path, Version: p.Version, Targets: p.Targets}

	case transport.TypeBoundary:
		var p transport.BoundaryPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		c.events <- transport.SnapshotBoundary{Version: p.Version, ResumeToken: p.ResumeToken}

	case transport.TypeWriteAck:
		var p transport.WriteAckPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		c.events <- transport.WriteAck{BatchID: p.BatchID, Version: p.Version}

	case transport.TypeWriteReject:
		var p transport.WriteRejectPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		c.events <- transport.WriteRejected{BatchID: p.BatchID, Code: p.Code, Message: p.Message}

	case transport.TypeError:
		var p transport.ErrorPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		log.Printf("[Transport] Server error code=%s message=%s", p.Code, p.Message)

	default:
		return errors.New("unknown message type")
	}
	return nil
}

func (c *Client) Listen(req transport.ListenRequest) error {
	msg, err := transport.Encode(transport.TypeListen, transport.ListenPayload{
		TargetID:    req.TargetID,
		Query:       req.Query,
		ResumeToken: req.ResumeToken,
	})
	if err != nil {
		return err
	}
	return c.enqueue(msg)
}

func (c *Client) Unlisten(targetID watch.TargetID) error {
	msg, err := transport.Encode(transport.TypeUnlisten, transport.UnlistenPayload{TargetID: targetID})
	if err != nil {
		return err
	}
	return c.enqueue(msg)
}

func (c *Client) Write(req transport.WriteRequest) error {
	msg, err := transport.Encode(transport.TypeWrite, transport.WritePayload{
		BatchID:   req.BatchID,
		Mutations: req.Mutations,
	})
	if err != nil {
		return err
	}
	return c.enqueue(msg)
}

func (c *Client) enqueue(msg *transport.BaseMessage) error {
	select {
	case c.send <- msg:
		return nil
	default:
		return errors.New("transport send buffer full")
	}
}
