package replication

import (
	"context"
	"fmt"
	"sync"

	"hierarchical-kvstore/internal/client"
	"hierarchical-kvstore/internal/kverrors"
	"hierarchical-kvstore/internal/peer"
	"hierarchical-kvstore/internal/store"
	"hierarchical-kvstore/internal/txn"
)

// CoreRole implements eager active replication (§4.2) for a tier-0 node:
// every write is assigned a version, applied locally, and then fanned out
// to every other core peer before the write is acknowledged to the
// caller. A single serial lock orders writes so versions are assigned
// and applied in the same sequence everywhere — otherwise two
// concurrent writers on the same node could interleave their
// NextVersion/Update pairs.
//
// Fan-out is all-of with a per-peer timeout; any peer failure or timeout
// fails the whole write (§9's resolution of the rollback-vs-compensation
// open question: fail fast, no compensating rollback of the local or
// already-acknowledged peers).
type CoreRole struct {
	host  Host
	peers []*peer.Handle
	mu    sync.Mutex
}

// NewCoreRole builds a CoreRole fanning out to peers.
func NewCoreRole(host Host, peers []*peer.Handle) *CoreRole {
	return &CoreRole{host: host, peers: peers}
}

// Write assigns the next version for this origin, applies it locally,
// and propagates it to every core peer. It returns the applied item only
// if every peer acknowledged.
func (c *CoreRole) Write(ctx context.Context, key, value int) (store.DataItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	version := c.host.Store().NextVersion()
	item, err := c.host.Store().Update(key, value, version)
	if err != nil {
		return store.DataItem{}, fmt.Errorf("apply local write: %w", err)
	}

	if err := c.propagate(ctx, item); err != nil {
		return store.DataItem{}, err
	}
	return item, nil
}

// Receive applies an item propagated by another core peer (inbound side
// of eager replication — no further fan-out, the originating peer
// already fanned out to everyone).
func (c *CoreRole) Receive(item store.DataItem) error {
	_, err := c.host.Store().Update(item.Key, item.Value, item.Version)
	if err != nil {
		return fmt.Errorf("apply propagated write: %w", err)
	}
	return nil
}

func (c *CoreRole) propagate(ctx context.Context, item store.DataItem) error {
	if len(c.peers) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, FanoutTimeout)
	defer cancel()

	notification := txn.UpdateNotification{Data: item, SourceNode: c.host.NodeID()}

	var wg sync.WaitGroup
	errs := make([]error, len(c.peers))
	for i, p := range c.peers {
		wg.Add(1)
		go func(i int, p *peer.Handle) {
			defer wg.Done()
			errs[i] = p.TryOnce(ctx, func(ctx context.Context, cl *client.Client) error {
				ack, err := cl.PropagateUpdate(ctx, notification)
				if err != nil {
					return err
				}
				if !ack.Success {
					return fmt.Errorf("peer rejected update: %s", ack.Message)
				}
				return nil
			})
		}(i, p)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			c.host.Logger().WithError(err).WithField("peer", c.peers[i].NodeID).Warn("core propagation failed")
			return fmt.Errorf("propagate to %s: %w: %w", c.peers[i].NodeID, err, kverrors.ReplicationFailed)
		}
	}
	return nil
}
