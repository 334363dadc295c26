package replication

import (
	"context"
	"fmt"
	"sync"

	"hierarchical-kvstore/internal/client"
	"hierarchical-kvstore/internal/kverrors"
	"hierarchical-kvstore/internal/peer"
	"hierarchical-kvstore/internal/txn"
)

// PassiveRole implements the primary/backup behavior shared by tier 1 and
// tier 2 (§4.3): a primary accepts SyncUpdates from its upstream source
// and fans each applied item out to its own backups; a backup accepts
// only PropagateUpdate from its own tier's primary and rejects sync
// calls outright.
type PassiveRole struct {
	host      Host
	tier      int
	isPrimary bool
	backups   []*peer.Handle
}

// NewPassiveRole builds the role for one tier-1 or tier-2 node. backups
// is empty for a backup node.
func NewPassiveRole(host Host, tier int, isPrimary bool, backups []*peer.Handle) *PassiveRole {
	return &PassiveRole{host: host, tier: tier, isPrimary: isPrimary, backups: backups}
}

// HandleSync applies group's items in order, then — if this is a primary
// with backup handles — fans each applied item out as an individual
// PropagateUpdate, awaiting every backup's ack before returning.
//
// A backup fails this step doesn't roll anything back: the primary keeps
// its own applied state and reports failure upstream only so the caller
// knows this round didn't fully converge; the next sync reconciles it,
// since every apply is idempotent under the store's monotone rule.
func (p *PassiveRole) HandleSync(ctx context.Context, group txn.UpdateGroup) (txn.AckResponse, error) {
	if !p.isPrimary {
		return txn.AckResponse{Success: false, Message: "sync rejected: not this tier's primary"},
			fmt.Errorf("node is a backup, not primary: %w", kverrors.WrongTier)
	}

	applied := make([]txn.UpdateNotification, 0, len(group.Items))
	for _, item := range group.Items {
		if _, err := p.host.Store().Update(item.Key, item.Value, item.Version); err != nil {
			p.host.Logger().WithError(err).WithField("key", item.Key).Warn("sync item rejected by store")
			continue
		}
		applied = append(applied, txn.UpdateNotification{Data: item, SourceNode: p.host.NodeID()})
	}

	if len(p.backups) == 0 || len(applied) == 0 {
		return txn.AckResponse{Success: true}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, FanoutTimeout)
	defer cancel()

	ok := p.fanOutToBackups(ctx, applied)
	if !ok {
		return txn.AckResponse{Success: false, Message: "one or more backups did not acknowledge"}, nil
	}
	return txn.AckResponse{Success: true}, nil
}

func (p *PassiveRole) fanOutToBackups(ctx context.Context, items []txn.UpdateNotification) bool {
	var wg sync.WaitGroup
	allOK := true
	var mu sync.Mutex

	for _, n := range items {
		for _, backup := range p.backups {
			wg.Add(1)
			go func(n txn.UpdateNotification, backup *peer.Handle) {
				defer wg.Done()
				err := backup.TryOnce(ctx, func(ctx context.Context, cl *client.Client) error {
					ack, err := cl.PropagateUpdate(ctx, n)
					if err != nil {
						return err
					}
					if !ack.Success {
						return fmt.Errorf("backup rejected update: %s", ack.Message)
					}
					return nil
				})
				if err != nil {
					p.host.Logger().WithError(err).WithField("backup", backup.NodeID).Warn("backup fan-out failed")
					mu.Lock()
					allOK = false
					mu.Unlock()
				}
			}(n, backup)
		}
	}
	wg.Wait()
	return allOK
}

// HandlePropagate applies a single item sent by this node's own tier
// primary. Valid at both backups and (defensively) primaries.
func (p *PassiveRole) HandlePropagate(n txn.UpdateNotification) (txn.AckResponse, error) {
	if _, err := p.host.Store().Update(n.Data.Key, n.Data.Value, n.Data.Version); err != nil {
		return txn.AckResponse{Success: false, Message: err.Error()}, err
	}
	return txn.AckResponse{Success: true}, nil
}
