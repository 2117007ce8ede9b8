package domain

// GUIDSize is the length of a raw GUID entry identifier.
const GUIDSize = 16

// AttrFlags carries per-attribute index behaviour from the schema.
type AttrFlags uint32

const (
	// FlagIndexed marks an attribute that gets an equality index.
	FlagIndexed AttrFlags = 1 << iota
	// FlagUniqueIndex marks an attribute whose values must be unique
	// across the database.
	FlagUniqueIndex
)

// FlagsOverride, when set, supplies index flags for an attribute directly,
// bypassing the @INDEXLIST control record. A false second return means "no
// opinion, fall back to @INDEXLIST".
type FlagsOverride func(attr string) (AttrFlags, bool)

// Config is the process-wide index configuration, fixed for the lifetime of
// an open database.
type Config struct {
	// GUIDAttribute, when non-empty, names the attribute whose 16-byte
	// value is the entry identifier. Empty means DN mode.
	GUIDAttribute string

	// GUIDDNComponent, when non-empty, names the extended DN component that
	// carries the GUID, enabling base lookups without an index read.
	GUIDDNComponent string

	// OneLevelIndexes maintains the parent->children index family.
	OneLevelIndexes bool

	// MaxKeyLength is the storage-imposed key cap; 0 means unlimited.
	MaxKeyLength int

	// DisallowDNFilter rejects (dn=...) equality filters.
	DisallowDNFilter bool

	// ReadOnly forbids all index mutation, including reindex.
	ReadOnly bool

	// Override supplies attribute flags from the schema instead of the
	// @INDEXLIST record. Optional.
	Override FlagsOverride
}
