package replication

import (
	"context"
	"fmt"

	"hierarchical-kvstore/internal/client"
	"hierarchical-kvstore/internal/peer"
	"hierarchical-kvstore/internal/txn"
)

// OriginFanout implements the count-triggered passive replication (§4.4)
// that a core origin node runs toward its tier-1 primary: every applied
// write increments a counter, and once it reaches Threshold the last
// Threshold items (in apply order) are sent downstream as one
// SyncUpdates batch.
//
// The counter is owned by a single goroutine reading off notifications —
// the single-writer-actor pattern the spec's §9 design note calls for,
// so two concurrent eager writes can never race on the same counter.
type OriginFanout struct {
	host       Host
	downstream *peer.Handle
	threshold  int

	notifications chan struct{}
	stop          chan struct{}
}

const defaultCountThreshold = 10

// NewOriginFanout builds an OriginFanout sending to downstream once every
// threshold applied writes. threshold <= 0 uses the spec default of 10.
func NewOriginFanout(host Host, downstream *peer.Handle, threshold int) *OriginFanout {
	if threshold <= 0 {
		threshold = defaultCountThreshold
	}
	return &OriginFanout{
		host:          host,
		downstream:    downstream,
		threshold:     threshold,
		notifications: make(chan struct{}, 1024),
		stop:          make(chan struct{}),
	}
}

// Run is the actor loop. Call it in its own goroutine; it returns when
// Stop is called.
func (o *OriginFanout) Run(ctx context.Context) {
	count := 0
	for {
		select {
		case <-o.stop:
			return
		case <-ctx.Done():
			return
		case <-o.notifications:
			count++
			if count >= o.threshold {
				if o.flush(ctx) {
					count = 0
				}
				// On failure the counter is preserved: the next applied
				// write re-checks the threshold and retries immediately,
				// per §4.4, instead of waiting for threshold more writes.
			}
		}
	}
}

// Notify tells the actor one more write was applied locally. Safe to
// call from any goroutine (it just enqueues); dropped only if the
// buffer is completely full, which would mean the actor has stalled.
func (o *OriginFanout) Notify() {
	select {
	case o.notifications <- struct{}{}:
	default:
		o.host.Logger().Warn("origin fanout notification buffer full, dropping trigger")
	}
}

// Stop halts the actor loop.
func (o *OriginFanout) Stop() {
	close(o.stop)
}

// flush sends the last threshold applied items downstream and reports
// whether the sync succeeded. The caller only resets the counter on a
// true result, per §4.4's "on failure the counter is preserved" rule.
func (o *OriginFanout) flush(ctx context.Context) bool {
	items := o.host.Store().RecentUpdates(o.threshold)
	if len(items) == 0 {
		return true
	}
	group := txn.UpdateGroup{
		Items:      items,
		SourceNode: o.host.NodeID(),
		SourceTier: 0,
		Count:      len(items),
	}

	err := o.downstream.WithRetry(ctx, func(ctx context.Context, cl *client.Client) error {
		ack, err := cl.SyncUpdates(ctx, group)
		if err != nil {
			return err
		}
		if !ack.Success {
			return fmt.Errorf("tier-1 primary rejected sync: %s", ack.Message)
		}
		return nil
	})
	if err != nil {
		o.host.Logger().WithError(err).WithField("downstream", o.downstream.NodeID).
			Error("count-triggered sync to tier-1 primary failed")
		return false
	}
	return true
}
