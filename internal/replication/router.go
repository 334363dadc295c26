// ReadRouter spreads local READ_ONLY read load across a tier's backup
// set. The reference topology has exactly one backup per tier, but the
// spec allows N backups (§2's topology table is "reference: N=1"), so a
// primary serving reads on behalf of its tier still needs to pick one of
// potentially several read targets.
//
// This is the teacher's consistent-hash ring (internal/cluster/ring.go),
// repurposed: that ring chose which physical node OWNS a key, for
// sharding. This spec has no sharding — every core peer and every tier
// holds the full keyspace — so ownership-by-hash doesn't apply. What
// survives is the ring's real service: a stable, load-spreading choice
// of one node out of a set, keyed by something that varies per request.
// Here it picks which backup handle answers a given read, keyed by key.
package replication

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"slices"
	"sort"
	"sync"

	"hierarchical-kvstore/internal/peer"
)

const defaultVnodes = 100

// ReadRouter is safe for concurrent use.
type ReadRouter struct {
	mu     sync.RWMutex
	vnodes int
	ring   map[uint32]*peer.Handle
	sorted []uint32
}

// NewReadRouter builds a router over the given backup handles. vnodes<=0
// uses a sensible default.
func NewReadRouter(backups []*peer.Handle, vnodes int) *ReadRouter {
	if vnodes <= 0 {
		vnodes = defaultVnodes
	}
	r := &ReadRouter{vnodes: vnodes, ring: make(map[uint32]*peer.Handle)}
	for _, b := range backups {
		r.add(b)
	}
	return r
}

func (r *ReadRouter) add(h *peer.Handle) {
	for i := 0; i < r.vnodes; i++ {
		pos := ringHash(h.NodeID, i)
		r.ring[pos] = h
	}
	r.rebuild()
}

// Pick returns the backup handle responsible for routing a read of key,
// or nil if the router has no backups (the caller should fall back to
// reading locally or to the primary).
func (r *ReadRouter) Pick(key int) *peer.Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.sorted) == 0 {
		return nil
	}

	pos := ringHash(fmt.Sprintf("key-%d", key), 0)
	idx := sort.Search(len(r.sorted), func(i int) bool { return r.sorted[i] >= pos })
	if idx == len(r.sorted) {
		idx = 0
	}
	return r.ring[r.sorted[idx]]
}

func (r *ReadRouter) rebuild() {
	r.sorted = make([]uint32, 0, len(r.ring))
	for pos := range r.ring {
		r.sorted = append(r.sorted, pos)
	}
	slices.Sort(r.sorted)
}

func ringHash(s string, i int) uint32 {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s#%d", s, i)))
	return binary.BigEndian.Uint32(h[:4])
}
