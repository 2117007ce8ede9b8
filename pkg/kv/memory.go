package kv

import (
	"fmt"
	"sort"

	"github.com/adfharrison1/go-dirdb/pkg/domain"
)

// MemoryStore is an ordered in-memory implementation of domain.KvStore.
// Tests use it in place of pebble; the semantics match, including
// snapshot-consistent iteration and discardable transactions.
type MemoryStore struct {
	data    map[string][]byte
	pending map[string][]byte // value nil = tombstone
	inTx    bool
}

// NewMemory returns an empty store.
func NewMemory() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) lookup(key string) ([]byte, bool) {
	if s.inTx {
		if v, ok := s.pending[key]; ok {
			return v, v != nil
		}
	}
	v, ok := s.data[key]
	return v, ok
}

// Get implements domain.KvStore.
func (s *MemoryStore) Get(key []byte) ([]byte, error) {
	v, ok := s.lookup(string(key))
	if !ok {
		return nil, domain.ErrKeyNotFound
	}
	return append([]byte(nil), v...), nil
}

// Put implements domain.KvStore.
func (s *MemoryStore) Put(key, value []byte, mode domain.PutMode) error {
	k := string(key)
	if mode == domain.PutInsert {
		if _, ok := s.lookup(k); ok {
			return fmt.Errorf("%w: key exists", domain.ErrOperations)
		}
	}
	v := append([]byte(nil), value...)
	if s.inTx {
		s.pending[k] = v
	} else {
		s.data[k] = v
	}
	return nil
}

// Delete implements domain.KvStore.
func (s *MemoryStore) Delete(key []byte) error {
	k := string(key)
	if _, ok := s.lookup(k); !ok {
		return domain.ErrKeyNotFound
	}
	if s.inTx {
		s.pending[k] = nil
	} else {
		delete(s.data, k)
	}
	return nil
}

// Iterate implements domain.KvStore. A snapshot of the visible records is
// taken up front, so visitors may mutate the store.
func (s *MemoryStore) Iterate(visit domain.Visitor) error {
	type rec struct {
		key string
		val []byte
	}
	var snapshot []rec
	seen := make(map[string]bool)
	if s.inTx {
		for k, v := range s.pending {
			seen[k] = true
			if v != nil {
				snapshot = append(snapshot, rec{k, v})
			}
		}
	}
	for k, v := range s.data {
		if !seen[k] {
			snapshot = append(snapshot, rec{k, v})
		}
	}
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].key < snapshot[j].key })

	for _, r := range snapshot {
		if err := visit([]byte(r.key), append([]byte(nil), r.val...)); err != nil {
			return err
		}
	}
	return nil
}

// UpdateInIterate implements domain.KvStore.
func (s *MemoryStore) UpdateInIterate(oldKey, newKey, value []byte) error {
	if err := s.Delete(oldKey); err != nil {
		return err
	}
	return s.Put(newKey, value, domain.PutReplace)
}

// Begin implements domain.KvStore.
func (s *MemoryStore) Begin() error {
	if s.inTx {
		return fmt.Errorf("%w: transaction already open", domain.ErrOperations)
	}
	s.inTx = true
	s.pending = make(map[string][]byte)
	return nil
}

// Commit implements domain.KvStore.
func (s *MemoryStore) Commit() error {
	if !s.inTx {
		return fmt.Errorf("%w: no transaction open", domain.ErrOperations)
	}
	for k, v := range s.pending {
		if v == nil {
			delete(s.data, k)
		} else {
			s.data[k] = v
		}
	}
	s.inTx = false
	s.pending = nil
	return nil
}

// Cancel implements domain.KvStore.
func (s *MemoryStore) Cancel() error {
	s.inTx = false
	s.pending = nil
	return nil
}

// InTransaction implements domain.KvStore.
func (s *MemoryStore) InTransaction() bool { return s.inTx }

// Close implements domain.KvStore.
func (s *MemoryStore) Close() error { return nil }
