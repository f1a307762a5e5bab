// Package mirror talks to the remote document store that mirrors the local
// database, and tracks whether it is reachable.
package mirror

import (
	"context"
	"encoding/json"
)

// HeartbeatCollection holds the documents written by availability probes.
const HeartbeatCollection = "_heartbeat"

// Remote is a document store addressed by collection and document id.
type Remote interface {
	Ping(ctx context.Context) error
	Put(ctx context.Context, collection, id string, doc json.RawMessage) error
	Delete(ctx context.Context, collection, id string) error
}

// NoopRemote is used when no remote is configured. Every call fails with
// ErrRemoteUnavailable so all writes stay queued locally.
type NoopRemote struct{}

func (NoopRemote) Ping(ctx context.Context) error {
	return ErrRemoteUnavailable
}

func (NoopRemote) Put(ctx context.Context, collection, id string, doc json.RawMessage) error {
	return ErrRemoteUnavailable
}

func (NoopRemote) Delete(ctx context.Context, collection, id string) error {
	return ErrRemoteUnavailable
}
