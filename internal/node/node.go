package node

import (
	"context"
	"fmt"

	"hierarchical-kvstore/internal/peer"
	"hierarchical-kvstore/internal/replication"
	"hierarchical-kvstore/internal/store"
	"hierarchical-kvstore/internal/txexec"

	"github.com/sirupsen/logrus"
)

// Node owns one store, the replication role(s) appropriate to its tier,
// and the transaction executor that fronts them. It satisfies
// replication.Host so the roles it builds can call back into it without
// an import cycle.
type Node struct {
	cfg    Config
	st     *store.Store
	logger *logrus.Entry

	corePeers []*peer.Handle
	core      *replication.CoreRole
	fanout    *replication.OriginFanout

	passive    *replication.PassiveRole
	backups    []*peer.Handle
	readRouter *replication.ReadRouter
	tickFanout *replication.TimeFanout

	upstream *peer.Handle
	executor *txexec.Executor

	cancel context.CancelFunc
}

// New constructs a Node for cfg but does not start any background
// goroutines — call Start for that.
func New(cfg Config, baseLogger *logrus.Logger) (*Node, error) {
	if baseLogger == nil {
		baseLogger = logrus.New()
	}
	st, err := store.New(cfg.DataDir, cfg.NodeID, baseLogger)
	if err != nil {
		return nil, fmt.Errorf("open store for node %s: %w", cfg.NodeID, err)
	}

	n := &Node{
		cfg:    cfg,
		st:     st,
		logger: baseLogger.WithFields(logrus.Fields{"node_id": cfg.NodeID, "tier": cfg.Tier}),
	}

	switch cfg.Tier {
	case 0:
		n.buildCore()
	case 1, 2:
		n.buildPassive()
	default:
		return nil, fmt.Errorf("invalid tier %d for node %s", cfg.Tier, cfg.NodeID)
	}

	n.executor = txexec.New(n, cfg.Tier, n.core, n.fanout, n.upstream, n.readRouter)
	return n, nil
}

func (n *Node) buildCore() {
	for _, p := range n.cfg.CorePeers {
		n.corePeers = append(n.corePeers, peer.NewHandle(p.ID, p.Addr, n.cfg.FanoutTimeout, n.logger))
	}
	n.core = replication.NewCoreRole(n, n.corePeers)

	// Any core peer gets a forwarding path to the tier-1 primary when one is
	// configured; only the designated origin also runs the count-trigger actor.
	if n.cfg.Downstream != "" {
		n.upstream = peer.NewHandle("tier1-primary", n.cfg.Downstream, n.cfg.FanoutTimeout, n.logger)
	}
	if n.cfg.Origin && n.upstream != nil {
		n.fanout = replication.NewOriginFanout(n, n.upstream, n.cfg.CountThreshold)
	}
}

func (n *Node) buildPassive() {
	for _, b := range n.cfg.Backups {
		n.backups = append(n.backups, peer.NewHandle(b.ID, b.Addr, n.cfg.FanoutTimeout, n.logger))
	}
	n.passive = replication.NewPassiveRole(n, n.cfg.Tier, n.cfg.Primary, n.backups)
	if len(n.backups) > 0 {
		n.readRouter = replication.NewReadRouter(n.backups, 0)
	}

	if n.cfg.Tier == 1 && n.cfg.Primary && n.cfg.Upstream2 != "" {
		n.upstream = peer.NewHandle("tier2-primary", n.cfg.Upstream2, n.cfg.FanoutTimeout, n.logger)
		n.tickFanout = replication.NewTimeFanout(n, n.upstream, n.cfg.SyncInterval)
	}
}

// Store implements replication.Host.
func (n *Node) Store() *store.Store { return n.st }

// NodeID implements replication.Host.
func (n *Node) NodeID() string { return n.cfg.NodeID }

// Logger implements replication.Host.
func (n *Node) Logger() *logrus.Entry { return n.logger }

// Config returns this node's configuration.
func (n *Node) Config() Config { return n.cfg }

// Executor returns the node's transaction executor, used by internal/api
// to resolve inbound ExecuteTransaction calls.
func (n *Node) Executor() *txexec.Executor { return n.executor }

// Passive returns the tier-1/tier-2 role, or nil at the core.
func (n *Node) Passive() *replication.PassiveRole { return n.passive }

// Core returns the core replication role, or nil off-core.
func (n *Node) Core() *replication.CoreRole { return n.core }

// Start launches the node's background actors (the origin's count-trigger
// loop and the tier-1 primary's periodic tick) in their own goroutines and
// returns without waiting for them. It starts nothing for roles that have
// neither.
func (n *Node) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	n.cancel = cancel

	if n.fanout != nil {
		go n.fanout.Run(ctx)
		n.logger.Info("origin count-triggered fan-out actor started")
	}
	if n.tickFanout != nil {
		go n.tickFanout.Run(ctx)
		n.logger.WithField("interval", n.cfg.SyncInterval).Info("time-triggered fan-out ticker started")
	}
}

// Stop halts background actors and closes the store.
func (n *Node) Stop() error {
	if n.cancel != nil {
		n.cancel()
	}
	if n.fanout != nil {
		n.fanout.Stop()
	}
	if n.tickFanout != nil {
		n.tickFanout.Stop()
	}
	return n.st.Close()
}
