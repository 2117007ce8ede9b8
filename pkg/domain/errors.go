package domain

import "errors"

// Sentinel errors shared across the engine. Layers add context with
// fmt.Errorf("...: %w", err); callers discriminate with errors.Is.
var (
	// ErrKeyNotFound is returned by a KV store when a key has no record.
	ErrKeyNotFound = errors.New("key not found")

	// ErrNoSuchObject means a lookup (or a filter plan) provably selects
	// nothing. It is not surfaced at the API boundary; it becomes an empty
	// result set.
	ErrNoSuchObject = errors.New("no such object")

	// ErrUnindexed means the planner cannot answer from the indexes and the
	// caller must decide between a full scan and an empty answer.
	ErrUnindexed = errors.New("filter not answerable from indexes")

	// ErrFullScanNeeded tells the search dispatcher to fall back to an
	// unindexed full scan.
	ErrFullScanNeeded = errors.New("full scan needed")

	// ErrConstraintViolation is a uniqueness breach, or an attempt to
	// maintain a unique index under a truncated key.
	ErrConstraintViolation = errors.New("constraint violation")

	// ErrEntryAlreadyExists is the user-facing form of a DN collision.
	ErrEntryAlreadyExists = errors.New("entry already exists")

	// ErrCorruptedIndex covers index version mismatches, malformed packed
	// GUID data and data records without a DN.
	ErrCorruptedIndex = errors.New("corrupted index")

	// ErrOperations covers backing-store I/O failures and invalid
	// configuration.
	ErrOperations = errors.New("operations error")

	// ErrReadOnly is returned for mutating operations on a read-only
	// database, including reindex.
	ErrReadOnly = errors.New("database is read-only")
)
