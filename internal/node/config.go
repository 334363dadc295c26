// Package node wires together the store, replication roles, and
// transaction executor into one running node, and exposes the single
// Host capability internal/replication and internal/txexec need.
package node

import "time"

// PeerSpec is one "id=host:port" entry from the --peers or --backups
// flags.
type PeerSpec struct {
	ID   string
	Addr string
}

// Config is everything cmd/node parses off the command line (spec §6.4).
// Exactly one of the role-specific blocks below applies, selected by
// Tier and the Origin/Primary flags.
type Config struct {
	NodeID  string
	Tier    int
	Addr    string
	DataDir string

	// Core only (Tier == 0).
	CorePeers []PeerSpec
	Origin    bool
	// Downstream is the tier-1 primary's address. Any core peer reads it
	// to forward READ_ONLY transactions targeting a deeper tier (§4.2); a
	// peer additionally starts the count-triggered fan-out actor only when
	// Origin is also set.
	Downstream string

	// Tier 1/2 only.
	Primary bool
	Backups []PeerSpec
	// Upstream2 is the tier-2 primary's address; only read when Tier==1 && Primary.
	Upstream2 string

	CountThreshold int
	SyncInterval   time.Duration
	FanoutTimeout  time.Duration
	GracePeriod    time.Duration
}

// DefaultConfig fills in the spec's §6.4 defaults; callers overlay flags
// on top of this.
func DefaultConfig() Config {
	return Config{
		Tier:           0,
		Addr:           ":8080",
		DataDir:        "/tmp/hierarchical-kvstore",
		CountThreshold: 10,
		SyncInterval:   10 * time.Second,
		FanoutTimeout:  5 * time.Second,
		GracePeriod:    5 * time.Second,
	}
}
