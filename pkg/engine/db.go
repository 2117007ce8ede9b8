// Package engine ties the go-dirdb pieces into a database: records in an
// ordered KV store, kept consistent with the secondary indexes, searched
// by scope and filter tree.
package engine

import (
	"errors"
	"fmt"
	"log"

	"github.com/adfharrison1/go-dirdb/pkg/dn"
	"github.com/adfharrison1/go-dirdb/pkg/domain"
	"github.com/adfharrison1/go-dirdb/pkg/index"
	"github.com/adfharrison1/go-dirdb/pkg/message"
	"github.com/adfharrison1/go-dirdb/pkg/schema"
)

// DB is one open database.
type DB struct {
	store  domain.KvStore
	schema *schema.Schema
	idx    *index.Engine
	cfg    domain.Config
}

// Option configures an open.
type Option func(*domain.Config)

// WithGUIDAttribute selects GUID mode with the given identifier attribute.
func WithGUIDAttribute(attr string) Option {
	return func(c *domain.Config) { c.GUIDAttribute = attr }
}

// WithGUIDDNComponent names the extended DN component carrying the GUID.
func WithGUIDDNComponent(name string) Option {
	return func(c *domain.Config) { c.GUIDDNComponent = name }
}

// WithOneLevelIndexes maintains the parent->children index family.
func WithOneLevelIndexes() Option {
	return func(c *domain.Config) { c.OneLevelIndexes = true }
}

// WithMaxKeyLength caps storage keys; 0 means unlimited.
func WithMaxKeyLength(n int) Option {
	return func(c *domain.Config) { c.MaxKeyLength = n }
}

// WithDisallowDNFilter rejects (dn=...) equality filters.
func WithDisallowDNFilter() Option {
	return func(c *domain.Config) { c.DisallowDNFilter = true }
}

// WithReadOnly forbids all mutation.
func WithReadOnly() Option {
	return func(c *domain.Config) { c.ReadOnly = true }
}

// WithFlagsOverride supplies index flags from the schema, bypassing
// @INDEXLIST.
func WithFlagsOverride(fn domain.FlagsOverride) Option {
	return func(c *domain.Config) { c.Override = fn }
}

// Open builds a database over an already-open backing store.
func Open(store domain.KvStore, sch *schema.Schema, opts ...Option) (*DB, error) {
	var cfg domain.Config
	for _, opt := range opts {
		opt(&cfg)
	}
	idx, err := index.NewEngine(store, sch, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise index engine: %w", err)
	}
	return &DB{store: store, schema: sch, idx: idx, cfg: cfg}, nil
}

// Schema returns the database schema registry.
func (db *DB) Schema() *schema.Schema { return db.schema }

// Index returns the index engine, mostly for tests and diagnostics.
func (db *DB) Index() *index.Engine { return db.idx }

// Close closes the backing store. An open transaction is cancelled.
func (db *DB) Close() error {
	db.idx.TransactionCancel()
	return db.store.Close()
}

// Begin opens a write transaction across the store and the index overlay.
func (db *DB) Begin() error {
	if db.cfg.ReadOnly {
		return domain.ErrReadOnly
	}
	if err := db.store.Begin(); err != nil {
		return err
	}
	if err := db.idx.TransactionStart(); err != nil {
		_ = db.store.Cancel()
		return err
	}
	return nil
}

// Commit flushes the index overlay into the store transaction, then
// commits the store.
func (db *DB) Commit() error {
	if err := db.idx.TransactionCommit(); err != nil {
		_ = db.store.Cancel()
		return err
	}
	return db.store.Commit()
}

// Cancel discards the index overlay and the store transaction.
func (db *DB) Cancel() error {
	db.idx.TransactionCancel()
	return db.store.Cancel()
}

// withTx runs fn inside the caller's transaction when one is open, or
// inside a private one otherwise.
func (db *DB) withTx(fn func() error) error {
	if db.store.InTransaction() {
		return fn()
	}
	if err := db.Begin(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		_ = db.Cancel()
		return err
	}
	return db.Commit()
}

// Add stores a new entry and indexes it. Adding a DN that already exists
// fails with ErrEntryAlreadyExists.
func (db *DB) Add(msg *message.Message) error {
	if db.cfg.ReadOnly {
		return domain.ErrReadOnly
	}
	return db.withTx(func() error {
		key, err := db.idx.RecordKeyForMessage(msg)
		if err != nil {
			return err
		}
		data, err := message.Pack(msg)
		if err != nil {
			return err
		}
		if _, err := db.store.Get(key); err == nil {
			return fmt.Errorf("%w: %s", domain.ErrEntryAlreadyExists, msg.DN)
		} else if !errors.Is(err, domain.ErrKeyNotFound) {
			return err
		}
		if err := db.store.Put(key, data, domain.PutInsert); err != nil {
			return err
		}
		if err := db.idx.AddNew(msg); err != nil {
			if delErr := db.store.Delete(key); delErr != nil {
				log.Printf("ERROR: failed to remove %s after index failure: %v", msg.DN, delErr)
			}
			return err
		}
		db.maybeReloadSettings(msg.DN)
		return nil
	})
}

// Delete removes an entry and its index entries.
func (db *DB) Delete(d *dn.DN) error {
	if db.cfg.ReadOnly {
		return domain.ErrReadOnly
	}
	return db.withTx(func() error {
		key, err := db.idx.DNToRecordKey(d)
		if err != nil {
			return err
		}
		raw, err := db.store.Get(key)
		if errors.Is(err, domain.ErrKeyNotFound) {
			return domain.ErrNoSuchObject
		}
		if err != nil {
			return err
		}
		msg, err := message.Unpack(raw)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrCorruptedIndex, err)
		}
		if err := db.store.Delete(key); err != nil {
			return err
		}
		if err := db.idx.Delete(msg); err != nil {
			return err
		}
		db.maybeReloadSettings(d)
		return nil
	})
}

// Modify replaces the attributes of an existing entry: the old index
// entries go, the record is rewritten, the new index entries come.
func (db *DB) Modify(msg *message.Message) error {
	if db.cfg.ReadOnly {
		return domain.ErrReadOnly
	}
	return db.withTx(func() error {
		key, err := db.idx.DNToRecordKey(msg.DN)
		if err != nil {
			return err
		}
		raw, err := db.store.Get(key)
		if errors.Is(err, domain.ErrKeyNotFound) {
			return domain.ErrNoSuchObject
		}
		if err != nil {
			return err
		}
		old, err := message.Unpack(raw)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrCorruptedIndex, err)
		}
		if err := db.idx.Delete(old); err != nil {
			return err
		}
		data, err := message.Pack(msg)
		if err != nil {
			return err
		}
		if err := db.store.Put(key, data, domain.PutReplace); err != nil {
			return err
		}
		if err := db.idx.AddNew(msg); err != nil {
			return err
		}
		db.maybeReloadSettings(msg.DN)
		return nil
	})
}

// Get fetches one entry by DN.
func (db *DB) Get(d *dn.DN) (*message.Message, error) {
	key, err := db.idx.DNToRecordKey(d)
	if err != nil {
		return nil, err
	}
	raw, err := db.store.Get(key)
	if errors.Is(err, domain.ErrKeyNotFound) {
		return nil, domain.ErrNoSuchObject
	}
	if err != nil {
		return nil, err
	}
	return message.Unpack(raw)
}

// maybeReloadSettings refreshes the index settings after a write to the
// @INDEXLIST control record.
func (db *DB) maybeReloadSettings(d *dn.DN) {
	if d.IsSpecial() && d.Linearized() == index.IndexListDN {
		if err := db.idx.ReloadSettings(); err != nil {
			log.Printf("ERROR: failed to reload index settings: %v", err)
		}
	}
}

// Reindex rebuilds every index record, atomically.
func (db *DB) Reindex() error {
	if db.cfg.ReadOnly {
		return domain.ErrReadOnly
	}
	ownTx := !db.store.InTransaction()
	if ownTx {
		if err := db.store.Begin(); err != nil {
			return err
		}
	}
	if err := db.idx.Reindex(); err != nil {
		if ownTx {
			_ = db.store.Cancel()
		}
		return err
	}
	if ownTx {
		return db.store.Commit()
	}
	return nil
}
