// Package kv provides the ordered byte-key backing stores go-dirdb runs
// over: a pebble-backed store for real databases and an in-memory store
// used by tests.
package kv

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/adfharrison1/go-dirdb/pkg/domain"
)

// PebbleStore implements domain.KvStore over a pebble database. Writes
// issued inside a transaction go through an indexed batch so that reads
// observe them before commit.
type PebbleStore struct {
	db    *pebble.DB
	batch *pebble.Batch
}

// OpenPebble opens (or creates) a pebble database at dir.
func OpenPebble(dir string) (*PebbleStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", dir, err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) reader() pebble.Reader {
	if s.batch != nil {
		return s.batch
	}
	return s.db
}

// Get implements domain.KvStore.
func (s *PebbleStore) Get(key []byte) ([]byte, error) {
	val, closer, err := s.reader().Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, domain.ErrKeyNotFound
		}
		return nil, fmt.Errorf("%w: pebble get: %v", domain.ErrOperations, err)
	}
	out := append([]byte(nil), val...)
	if err := closer.Close(); err != nil {
		return nil, fmt.Errorf("%w: pebble get close: %v", domain.ErrOperations, err)
	}
	return out, nil
}

// Put implements domain.KvStore.
func (s *PebbleStore) Put(key, value []byte, mode domain.PutMode) error {
	if mode == domain.PutInsert {
		if _, err := s.Get(key); err == nil {
			return fmt.Errorf("%w: key exists", domain.ErrOperations)
		} else if !errors.Is(err, domain.ErrKeyNotFound) {
			return err
		}
	}
	var err error
	if s.batch != nil {
		err = s.batch.Set(key, value, nil)
	} else {
		err = s.db.Set(key, value, pebble.Sync)
	}
	if err != nil {
		return fmt.Errorf("%w: pebble set: %v", domain.ErrOperations, err)
	}
	return nil
}

// Delete implements domain.KvStore.
func (s *PebbleStore) Delete(key []byte) error {
	if _, err := s.Get(key); err != nil {
		return err
	}
	var err error
	if s.batch != nil {
		err = s.batch.Delete(key, nil)
	} else {
		err = s.db.Delete(key, pebble.Sync)
	}
	if err != nil {
		return fmt.Errorf("%w: pebble delete: %v", domain.ErrOperations, err)
	}
	return nil
}

// Iterate implements domain.KvStore. The iterator is a point-in-time view;
// concurrent UpdateInIterate calls do not disturb it.
func (s *PebbleStore) Iterate(visit domain.Visitor) error {
	iter, err := s.reader().NewIter(nil)
	if err != nil {
		return fmt.Errorf("%w: pebble iterator: %v", domain.ErrOperations, err)
	}
	defer iter.Close()

	for valid := iter.First(); valid; valid = iter.Next() {
		key := append([]byte(nil), iter.Key()...)
		val := append([]byte(nil), iter.Value()...)
		if err := visit(key, val); err != nil {
			return err
		}
	}
	if err := iter.Error(); err != nil {
		return fmt.Errorf("%w: pebble iteration: %v", domain.ErrOperations, err)
	}
	return nil
}

// UpdateInIterate implements domain.KvStore.
func (s *PebbleStore) UpdateInIterate(oldKey, newKey, value []byte) error {
	if err := s.Delete(oldKey); err != nil && !errors.Is(err, domain.ErrKeyNotFound) {
		return err
	}
	return s.Put(newKey, value, domain.PutReplace)
}

// Begin implements domain.KvStore.
func (s *PebbleStore) Begin() error {
	if s.batch != nil {
		return fmt.Errorf("%w: transaction already open", domain.ErrOperations)
	}
	s.batch = s.db.NewIndexedBatch()
	return nil
}

// Commit implements domain.KvStore.
func (s *PebbleStore) Commit() error {
	if s.batch == nil {
		return fmt.Errorf("%w: no transaction open", domain.ErrOperations)
	}
	err := s.batch.Commit(pebble.Sync)
	s.batch = nil
	if err != nil {
		return fmt.Errorf("%w: pebble commit: %v", domain.ErrOperations, err)
	}
	return nil
}

// Cancel implements domain.KvStore.
func (s *PebbleStore) Cancel() error {
	if s.batch == nil {
		return nil
	}
	err := s.batch.Close()
	s.batch = nil
	if err != nil {
		return fmt.Errorf("%w: pebble batch close: %v", domain.ErrOperations, err)
	}
	return nil
}

// InTransaction implements domain.KvStore.
func (s *PebbleStore) InTransaction() bool { return s.batch != nil }

// Close implements domain.KvStore.
func (s *PebbleStore) Close() error {
	if s.batch != nil {
		_ = s.batch.Close()
		s.batch = nil
	}
	return s.db.Close()
}
