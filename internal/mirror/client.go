package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	stocksync "github.com/hyperengineering/stockroom/internal/sync"
)

// Client wraps a Remote and keeps Connectivity current: any failed call
// marks the remote offline and any successful call marks it online.
type Client struct {
	remote   Remote
	state    *Connectivity
	clientID string
}

// NewClient creates a client. clientID names the heartbeat document.
func NewClient(remote Remote, state *Connectivity, clientID string) *Client {
	if state == nil {
		state = NewConnectivity()
	}
	if clientID == "" {
		clientID = "stockroom"
	}
	return &Client{remote: remote, state: state, clientID: clientID}
}

// Online reports the current connectivity state without a round-trip.
func (c *Client) Online() bool {
	return c.state.Online()
}

// Connectivity returns the shared state.
func (c *Client) Connectivity() *Connectivity {
	return c.state
}

// IsAvailable checks the remote health endpoint, then writes a heartbeat
// document to confirm writes are accepted, and updates connectivity.
func (c *Client) IsAvailable(ctx context.Context) bool {
	if err := c.remote.Ping(ctx); err != nil {
		c.state.Set(false)
		return false
	}
	doc, err := json.Marshal(map[string]string{
		"client_id": c.clientID,
		"at":        time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return false
	}
	return c.Put(ctx, HeartbeatCollection, c.clientID, doc) == nil
}

// Put stores a document remotely.
func (c *Client) Put(ctx context.Context, collection, id string, doc json.RawMessage) error {
	err := c.remote.Put(ctx, collection, id, doc)
	c.state.Set(err == nil)
	return err
}

// Delete removes a document remotely.
func (c *Client) Delete(ctx context.Context, collection, id string) error {
	err := c.remote.Delete(ctx, collection, id)
	c.state.Set(err == nil)
	return err
}

// Apply replays a queued operation against the remote.
func (c *Client) Apply(ctx context.Context, op stocksync.PendingOperation) error {
	switch {
	case op.Operation.IsWrite():
		return c.Put(ctx, op.Collection, op.DocumentID, op.Payload)
	case op.Operation == stocksync.OperationDelete:
		return c.Delete(ctx, op.Collection, op.DocumentID)
	default:
		return fmt.Errorf("%w: unknown operation %q", ErrRemoteRejected, op.Operation)
	}
}
