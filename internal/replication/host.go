// Package replication implements the three replication strategies the
// spec assigns to the three tiers (§4): eager active replication at the
// core, count-triggered passive replication into tier 1, and
// time-triggered passive replication into tier 2.
//
// Each role needs the store to apply updates to, the peer handles to fan
// out to, and a little config (its own node ID, fan-out timeout, and so
// on) — but the node that owns all of that also owns the role, which
// would make role ↔ node an import cycle if a role held a *node.Node
// directly. Host breaks the cycle: it's the small capability interface a
// role actually needs, and internal/node.Node implements it.
package replication

import (
	"time"

	"hierarchical-kvstore/internal/peer"
	"hierarchical-kvstore/internal/store"

	"github.com/sirupsen/logrus"
)

// Host is the capability surface a replication role needs from the node
// that owns it. internal/node.Node satisfies this.
type Host interface {
	Store() *store.Store
	NodeID() string
	Logger() *logrus.Entry
}

// FanoutTimeout bounds one eager fan-out round: core peer propagation and
// primary→backup propagation. The count- and time-triggered syncs do not
// use it; each of their calls is bounded by the peer handle's client
// timeout.
const FanoutTimeout = 5 * time.Second
