// Package txexec implements the transaction executor (spec §4.6): the
// per-node component that every tier runs to decide whether a
// transaction is legal here, whether it must be forwarded, and how its
// operations get resolved.
package txexec

import (
	"context"
	"fmt"

	"hierarchical-kvstore/internal/client"
	"hierarchical-kvstore/internal/kverrors"
	"hierarchical-kvstore/internal/peer"
	"hierarchical-kvstore/internal/replication"
	"hierarchical-kvstore/internal/store"
	"hierarchical-kvstore/internal/txn"
)

// Executor resolves transactions for one node.
type Executor struct {
	host replication.Host
	tier int

	core     *replication.CoreRole     // non-nil only at tier 0
	fanout   *replication.OriginFanout // non-nil only at the designated origin
	upstream *peer.Handle              // next tier's primary, for forwarding READ_ONLY(target_tier>tier)
	router   *replication.ReadRouter   // non-nil only at a primary with >0 backup handles
}

// New builds an Executor. core and fanout are nil for tier 1/2 nodes;
// upstream is nil for the last tier (2), which has nowhere to forward to;
// router is nil unless this node is a primary with at least one backup.
func New(host replication.Host, tier int, core *replication.CoreRole, fanout *replication.OriginFanout, upstream *peer.Handle, router *replication.ReadRouter) *Executor {
	return &Executor{host: host, tier: tier, core: core, fanout: fanout, upstream: upstream, router: router}
}

// Execute resolves t against this node, per the rules in §4.6.
func (e *Executor) Execute(ctx context.Context, t txn.Transaction) (txn.TransactionResponse, error) {
	for i, op := range t.Operations {
		if op.IsRead() == op.IsWrite() {
			err := fmt.Errorf("operation %d must set exactly one of read or write: %w", i, kverrors.InvalidTransaction)
			return txn.TransactionResponse{Success: false, ErrorMessage: err.Error()}, err
		}
	}

	if e.tier != 0 && containsWrite(t.Operations) {
		err := fmt.Errorf("write operation submitted to tier %d node: %w", e.tier, kverrors.WriteNotAllowed)
		return txn.TransactionResponse{Success: false, ErrorMessage: err.Error()}, err
	}

	if t.Type == txn.Update {
		if e.tier != 0 {
			err := fmt.Errorf("UPDATE transaction submitted to tier %d node: %w", e.tier, kverrors.WriteNotAllowed)
			return txn.TransactionResponse{Success: false, ErrorMessage: err.Error()}, err
		}
		return e.executeAtCore(ctx, t)
	}

	switch {
	case t.TargetTier > e.tier:
		return e.forward(ctx, t)
	case t.TargetTier < e.tier:
		err := fmt.Errorf("target tier %d is behind this node's tier %d: %w", t.TargetTier, e.tier, kverrors.WrongTier)
		return txn.TransactionResponse{Success: false, ErrorMessage: err.Error()}, err
	default:
		return e.executeLocalReads(ctx, t), nil
	}
}

// executeAtCore runs a (possibly mixed) transaction at a core node: each
// operation is applied in submission order, writes going through the
// eager-replication write path, reads served from the local store at the
// point they appear.
func (e *Executor) executeAtCore(ctx context.Context, t txn.Transaction) (txn.TransactionResponse, error) {
	var results []store.DataItem
	for _, op := range t.Operations {
		switch {
		case op.IsWrite():
			if _, err := e.core.Write(ctx, op.Write.Key, op.Write.Value); err != nil {
				return txn.TransactionResponse{Success: false, ErrorMessage: err.Error()}, err
			}
			if e.fanout != nil {
				e.fanout.Notify()
			}
		case op.IsRead():
			if item, ok := e.host.Store().Get(op.Read.Key); ok {
				results = append(results, item)
			}
		}
	}
	return txn.TransactionResponse{Success: true, Results: results}, nil
}

// executeLocalReads resolves a READ_ONLY transaction targeting this
// node's own tier. With no backups it simply reads the local store; with
// one or more backup handles, each read key is routed through the
// ReadRouter to spread load across the tier's backup set (§4.3
// generalizes the reference N=1 deployment to N backups) — any backup
// holds a valid, if lagging, copy of this tier's data. A routed read
// that fails falls back to the local store rather than failing the
// transaction.
func (e *Executor) executeLocalReads(ctx context.Context, t txn.Transaction) txn.TransactionResponse {
	var results []store.DataItem
	for _, op := range t.Operations {
		if !op.IsRead() {
			continue
		}
		if item, ok := e.readOne(ctx, op.Read.Key); ok {
			results = append(results, item)
		}
	}
	return txn.TransactionResponse{Success: true, Results: results}
}

func (e *Executor) readOne(ctx context.Context, key int) (store.DataItem, bool) {
	if e.router != nil {
		if backup := e.router.Pick(key); backup != nil {
			single := txn.Transaction{Type: txn.ReadOnly, TargetTier: e.tier, Operations: []txn.Operation{{Read: &txn.ReadOp{Key: key}}}}
			var resp *txn.TransactionResponse
			err := backup.TryOnce(ctx, func(ctx context.Context, cl *client.Client) error {
				r, err := cl.ExecuteTransaction(ctx, single)
				if err != nil {
					return err
				}
				resp = r
				return nil
			})
			if err == nil && resp != nil && len(resp.Results) == 1 {
				return resp.Results[0], true
			}
		}
	}
	return e.host.Store().Get(key)
}

func (e *Executor) forward(ctx context.Context, t txn.Transaction) (txn.TransactionResponse, error) {
	if e.upstream == nil {
		err := fmt.Errorf("no upstream primary configured to forward target_tier=%d: %w", t.TargetTier, kverrors.Unavailable)
		return txn.TransactionResponse{Success: false, ErrorMessage: err.Error()}, err
	}

	var resp *txn.TransactionResponse
	err := e.upstream.TryOnce(ctx, func(ctx context.Context, cl *client.Client) error {
		r, err := cl.ExecuteTransaction(ctx, t)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return txn.TransactionResponse{Success: false, ErrorMessage: err.Error()}, err
	}
	return *resp, nil
}

func containsWrite(ops []txn.Operation) bool {
	for _, op := range ops {
		if op.IsWrite() {
			return true
		}
	}
	return false
}
