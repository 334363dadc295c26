// Package store is the per-node versioned key-value store.
//
// Every node — core peer, tier-1 primary/backup, tier-2 primary/backup —
// owns exactly one Store. It enforces one rule above all others: a key's
// version never decreases. Everything else (the store's two files on
// disk, its recent-updates ring, its NextVersion counter) exists to serve
// that rule durably and to let replication roles answer "what changed
// recently" without re-scanning the log.
//
// This store:
//   - Keeps data in memory (fast reads)
//   - Persists every write to a version-history log before applying it
//   - Replays that log on warm start to rebuild the in-memory map
//
// Unlike a cache or a sharded KV engine, there is no snapshot file and no
// per-key causal clock here — the spec fixes NextVersion as a single
// global counter owned by whichever node originates the write, so a
// strictly-greater-version check is always enough to decide who wins.
package store

import (
	"fmt"
	"sync"

	"hierarchical-kvstore/internal/kverrors"

	"github.com/sirupsen/logrus"
)

const defaultRecentCapacity = 128

// Store is the main storage object. Safe for concurrent use: Get/GetAll
// take the read lock, Update takes the write lock and serializes with the
// version log.
type Store struct {
	mu     sync.RWMutex
	data   map[int]DataItem
	log    *versionLog
	recent *recentRing
	nodeID string
	logger *logrus.Entry

	nextVersion int
}

// New opens (or creates) the store for nodeID, rooted at dataDir. Warm
// start replays the version history in file order, applying each entry
// under the same monotone rule Update itself enforces, then reinitializes
// the version counter to one past the highest version observed.
func New(dataDir, nodeID string, logger *logrus.Logger) (*Store, error) {
	if logger == nil {
		logger = logrus.New()
	}
	l, err := openVersionLog(dataDir, nodeID)
	if err != nil {
		return nil, err
	}

	s := &Store{
		data:   make(map[int]DataItem),
		log:    l,
		recent: newRecentRing(defaultRecentCapacity),
		nodeID: nodeID,
		logger: logger.WithField("component", "store").WithField("node_id", nodeID),
	}

	if err := s.replay(); err != nil {
		l.close()
		return nil, fmt.Errorf("replay version history: %w", err)
	}

	return s, nil
}

func (s *Store) replay() error {
	entries, err := s.log.replay()
	if err != nil {
		return err
	}
	for _, e := range entries {
		item := DataItem{Key: e.Key, Value: e.Value, Version: e.Version, Timestamp: e.Timestamp}
		if existing, ok := s.data[e.Key]; !ok || item.Version > existing.Version {
			s.data[e.Key] = item
		}
		s.recent.push(item)
		if e.Version >= s.nextVersion {
			s.nextVersion = e.Version + 1
		}
	}
	s.logger.WithField("entries", len(entries)).Info("replayed version history")
	return nil
}

// Get returns the current item for key, if any.
func (s *Store) Get(key int) (DataItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.data[key]
	return item, ok
}

// GetAll returns every item currently in the store. Order is unspecified
// (map iteration order) — callers that need apply order want
// RecentUpdates instead.
func (s *Store) GetAll() []DataItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]DataItem, 0, len(s.data))
	for _, item := range s.data {
		out = append(out, item)
	}
	return out
}

// RecentUpdates returns up to n of the most recently applied updates, in
// apply order. Backed by a bounded ring (capacity 128 ≥ the spec's
// 100-entry floor), not the full durable log.
func (s *Store) RecentUpdates(n int) []DataItem {
	return s.recent.last(n)
}

// NextVersion returns strictly increasing values for this node. Only the
// core peer that originates a write calls this for that write; downstream
// nodes only ever apply versions handed to them.
func (s *Store) NextVersion() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.nextVersion
	s.nextVersion++
	return v
}

// Update applies a write if it is newer than what's stored for key.
//
// Contract:
//   - key < 0 or version < 0 fails with kverrors.InvalidArgument.
//   - If a newer (or equal) version already exists for key, Update is a
//     no-op and returns the item that IS now stored — overwrite iff
//     strictly greater.
//   - Every write that changes the stored value appends one record to the
//     durable version log before the in-memory map is touched. If the log
//     write fails, Update fails and memory is left untouched.
func (s *Store) Update(key, value, version int) (DataItem, error) {
	if key < 0 || version < 0 {
		return DataItem{}, fmt.Errorf("update key=%d version=%d: %w", key, version, kverrors.InvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.data[key]; ok && existing.Version >= version {
		return existing, nil
	}

	item := DataItem{Key: key, Value: value, Version: version, Timestamp: now()}

	entry := versionLogEntry{
		Key: item.Key, Value: item.Value, Version: item.Version,
		Timestamp: item.Timestamp, NodeID: s.nodeID, Op: "UPDATE",
	}
	if err := s.log.append(entry); err != nil {
		return DataItem{}, fmt.Errorf("append version log: %w: %w", err, kverrors.StoreError)
	}

	s.data[key] = item
	s.recent.push(item)
	return item, nil
}

// Close releases the store's log file handles. Safe to call once during
// node shutdown.
func (s *Store) Close() error {
	return s.log.close()
}
