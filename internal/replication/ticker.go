package replication

import (
	"context"
	"fmt"
	"time"

	"hierarchical-kvstore/internal/client"
	"hierarchical-kvstore/internal/peer"
	"hierarchical-kvstore/internal/txn"
)

// DefaultSyncInterval is the spec's default period for time-triggered
// passive replication (§4.5) from a tier-1 primary to its tier-2
// primary.
const DefaultSyncInterval = 10 * time.Second

// TimeFanout sends the full current store state to downstream on every
// tick, regardless of whether anything changed. That's deliberate: the
// store's per-key monotone Update rule makes repeated application of the
// same state idempotent, so there's no need to track what the peer has
// already seen.
type TimeFanout struct {
	host       Host
	downstream *peer.Handle
	interval   time.Duration
	stop       chan struct{}
}

// NewTimeFanout builds a TimeFanout that ticks every interval (or
// DefaultSyncInterval if interval <= 0).
func NewTimeFanout(host Host, downstream *peer.Handle, interval time.Duration) *TimeFanout {
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	return &TimeFanout{host: host, downstream: downstream, interval: interval, stop: make(chan struct{})}
}

// Run blocks, ticking until Stop is called or ctx is cancelled.
func (t *TimeFanout) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.sync(ctx)
		}
	}
}

// Stop halts the periodic task.
func (t *TimeFanout) Stop() {
	close(t.stop)
}

func (t *TimeFanout) sync(ctx context.Context) {
	items := t.host.Store().GetAll()
	group := txn.UpdateGroup{
		Items:      items,
		SourceNode: t.host.NodeID(),
		SourceTier: 1,
		Count:      len(items),
	}

	err := t.downstream.WithRetry(ctx, func(ctx context.Context, cl *client.Client) error {
		ack, err := cl.SyncUpdates(ctx, group)
		if err != nil {
			return err
		}
		if !ack.Success {
			return fmt.Errorf("tier-2 primary rejected sync: %s", ack.Message)
		}
		return nil
	})
	if err != nil {
		t.host.Logger().WithError(err).WithField("downstream", t.downstream.NodeID).
			Error("time-triggered sync to tier-2 primary failed")
	}
}
