package index

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/adfharrison1/go-dirdb/pkg/dn"
	"github.com/adfharrison1/go-dirdb/pkg/domain"
	"github.com/adfharrison1/go-dirdb/pkg/message"
)

// listLoad loads the index record stored under the given index DN into
// list. An overlay entry takes precedence over the backing store; a
// missing record yields an empty list.
func (e *Engine) listLoad(key string, list *DNList) error {
	list.IDs = nil

	if e.txn != nil {
		if entry, ok := e.txn.entries[key]; ok {
			list.IDs = entry.IDs
			return nil
		}
	}

	rec, err := e.fetchByKey([]byte(message.DNKeyPrefix + key))
	if errors.Is(err, domain.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	el := rec.FindElement(AttrIdx)
	if el == nil {
		return nil
	}
	version, _ := strconv.Atoi(rec.FirstString(AttrIdxVersion))

	if !e.GUIDMode() {
		if version != dnListVersion {
			return fmt.Errorf("%w: wrong DN index version %d, expected %d for %s",
				domain.ErrCorruptedIndex, version, dnListVersion, key)
		}
		list.IDs = make([][]byte, len(el.Values))
		for i, v := range el.Values {
			list.IDs[i] = append([]byte(nil), v...)
		}
		return nil
	}

	if version != guidListVersion {
		// Quite likely on first startup after an upgrade to GUID
		// indexing, and after any partial reindex.
		return fmt.Errorf("%w: wrong GUID index version %d, expected %d for %s",
			domain.ErrCorruptedIndex, version, guidListVersion, key)
	}
	if len(el.Values) == 0 {
		return fmt.Errorf("%w: empty GUID index record %s", domain.ErrCorruptedIndex, key)
	}
	packed := el.Values[0]
	if len(packed) == 0 || len(packed)%domain.GUIDSize != 0 {
		return fmt.Errorf("%w: GUID index record %s has packed length %d",
			domain.ErrCorruptedIndex, key, len(packed))
	}

	count := len(packed) / domain.GUIDSize
	buf := append([]byte(nil), packed...)
	list.IDs = make([][]byte, count)
	for i := 0; i < count; i++ {
		list.IDs[i] = buf[i*domain.GUIDSize : (i+1)*domain.GUIDSize]
	}
	return nil
}

// listStore saves a list under an index DN: into the overlay when a
// transaction is open, directly to the backing store otherwise. The
// overlay takes ownership of the identifier slice.
func (e *Engine) listStore(key string, list *DNList) error {
	if e.txn == nil {
		return e.listStoreFull(key, list)
	}
	e.txn.entries[key] = &DNList{IDs: list.IDs, Strict: list.Strict}
	return nil
}

// listStoreFull writes a full @IDX record to the backing store, deleting
// the record when the list is empty.
func (e *Engine) listStoreFull(key string, list *DNList) error {
	storageKey := []byte(message.DNKeyPrefix + key)

	if len(list.IDs) == 0 {
		err := e.store.Delete(storageKey)
		if errors.Is(err, domain.ErrKeyNotFound) {
			return nil
		}
		return err
	}

	d, err := dn.Parse(key)
	if err != nil {
		return fmt.Errorf("%w: bad index DN %q: %v", domain.ErrOperations, key, err)
	}
	rec := message.New(d)

	if !e.GUIDMode() {
		rec.AddString(AttrIdxVersion, strconv.Itoa(dnListVersion))
		vals := make([][]byte, len(list.IDs))
		copy(vals, list.IDs)
		rec.Add(AttrIdx, vals...)
	} else {
		rec.AddString(AttrIdxVersion, strconv.Itoa(guidListVersion))
		packed := make([]byte, 0, len(list.IDs)*domain.GUIDSize)
		for _, id := range list.IDs {
			if len(id) != domain.GUIDSize {
				return fmt.Errorf("%w: GUID entry has length %d", domain.ErrOperations, len(id))
			}
			packed = append(packed, id...)
		}
		rec.Add(AttrIdx, packed)
	}

	data, err := message.Pack(rec)
	if err != nil {
		return fmt.Errorf("failed to pack index record %s: %w", key, err)
	}
	return e.store.Put(storageKey, data, domain.PutReplace)
}
