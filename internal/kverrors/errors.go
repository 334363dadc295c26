// Package kverrors defines the error taxonomy shared by every layer of the
// replication engine. These are kinds, not wire codes — callers compare with
// errors.Is against the sentinel and wrap it with context via %w.
package kverrors

import "errors"

var (
	// InvalidArgument is returned by the store when a key or version is negative.
	InvalidArgument = errors.New("invalid argument")

	// InvalidTransaction is returned when a transaction string or a decoded
	// Transaction fails schema validation.
	InvalidTransaction = errors.New("invalid transaction")

	// WriteNotAllowed is returned when a WRITE operation or an UPDATE
	// transaction reaches a non-core node.
	WriteNotAllowed = errors.New("write not allowed at this tier")

	// WrongTier is returned when a READ_ONLY transaction names a target_tier
	// below the serving node's tier (that tier holds newer data than this
	// node, and transactions are only forwarded toward higher tier numbers),
	// and when a backup is sent a SyncUpdates batch meant for its primary.
	WrongTier = errors.New("wrong tier for this transaction")

	// ReplicationFailed is returned when a peer or backup did not acknowledge
	// a propagated write within its fan-out timeout.
	ReplicationFailed = errors.New("replication failed")

	// StoreError is returned for version-log I/O failures. A stale version
	// is not an error: Update keeps the newer stored item and returns it.
	StoreError = errors.New("store error")

	// Unavailable is returned when a required downstream peer handle could
	// not be (re)established.
	Unavailable = errors.New("peer unavailable")
)
