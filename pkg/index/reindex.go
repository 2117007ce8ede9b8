package index

import (
	"bytes"
	"fmt"
	"log"

	"github.com/adfharrison1/go-dirdb/pkg/domain"
	"github.com/adfharrison1/go-dirdb/pkg/message"
)

const reindexProgressEvery = 10000

// Reindex rebuilds every index record from the data records: reload the
// settings, stage an empty list for every existing index record, re-key
// any data record whose storage key no longer matches the current mode,
// then re-add every record to every index. The staged writes reach the
// backing store in one overlay commit at the end.
func (e *Engine) Reindex() error {
	if e.cfg.ReadOnly {
		return domain.ErrReadOnly
	}

	if err := e.ReloadSettings(); err != nil {
		return err
	}

	// Nothing staged so far is any use for a rebuild.
	e.TransactionCancel()
	if err := e.TransactionStart(); err != nil {
		return err
	}
	// A failed rebuild must not leave the overlay open, or every later
	// write would fail to start its own transaction.
	committing := false
	defer func() {
		if !committing {
			e.TransactionCancel()
		}
	}()

	if err := e.purgeIndexRecords(); err != nil {
		return err
	}

	count := 0
	err := e.store.Iterate(func(key, val []byte) error {
		return e.reKeyOne(key, val, &count)
	})
	if err != nil {
		return fmt.Errorf("re-key traverse failed: %w", err)
	}

	count = 0
	err = e.store.Iterate(func(key, val []byte) error {
		return e.reIndexOne(key, val, &count)
	})
	if err != nil {
		return fmt.Errorf("re-index traverse failed: %w", err)
	}

	committing = true
	return e.TransactionCommit()
}

// purgeIndexRecords stages an empty list for every @INDEX record, in both
// the ':' and the truncated '#' namespaces. The records are not touched
// yet; the commit rewrites them in place, which greatly reduces churn.
func (e *Engine) purgeIndexRecords() error {
	prefix := []byte(message.DNKeyPrefix + IndexPrefix)
	return e.store.Iterate(func(key, _ []byte) error {
		// Match both the ':' and the truncated '#' namespaces, but not
		// @INDEXLIST, which merely shares the prefix.
		if len(key) <= len(prefix) || !bytes.EqualFold(key[:len(prefix)], prefix) {
			return nil
		}
		if sep := key[len(prefix)]; sep != ':' && sep != '#' {
			return nil
		}
		indexDN := string(key[len(message.DNKeyPrefix):])
		if err := e.listStore(indexDN, &DNList{}); err != nil {
			return fmt.Errorf("unable to stage null index for %s: %w", indexDN, err)
		}
		return nil
	})
}

func (e *Engine) reKeyOne(key, val []byte, count *int) error {
	if message.IsSpecialKey(key) || !message.IsRecordKey(key) {
		return nil
	}

	msg, err := message.Unpack(val)
	if err != nil {
		return fmt.Errorf("%w: invalid data under key %q: %v", domain.ErrCorruptedIndex, key, err)
	}
	if msg.DN.IsRoot() {
		return fmt.Errorf("%w: refusing to re-index record %q with no DN", domain.ErrCorruptedIndex, key)
	}

	properKey, err := e.RecordKeyForMessage(msg)
	if err != nil {
		// Probably a corrupt record; leave it under its old key rather
		// than lose it.
		log.Printf("ERROR: cannot compute storage key for %s during re-key: %v", msg.DN, err)
		return nil
	}
	if !bytes.Equal(key, properKey) {
		if err := e.store.UpdateInIterate(key, properKey, val); err != nil {
			return fmt.Errorf("failed to re-key %s: %w", msg.DN, err)
		}
	}

	ReindexRecords.WithLabelValues("rekey").Inc()
	*count++
	if *count%reindexProgressEvery == 0 {
		log.Printf("WARN: Reindexing: re-keyed %d records so far", *count)
	}
	return nil
}

func (e *Engine) reIndexOne(key, val []byte, count *int) error {
	if message.IsSpecialKey(key) || !message.IsRecordKey(key) {
		return nil
	}

	msg, err := message.Unpack(val)
	if err != nil {
		return fmt.Errorf("%w: invalid data under key %q: %v", domain.ErrCorruptedIndex, key, err)
	}
	if msg.DN.IsRoot() {
		return fmt.Errorf("%w: refusing to re-index record %q with no DN", domain.ErrCorruptedIndex, key)
	}

	if err := e.indexOneLevel(msg, true); err != nil {
		return fmt.Errorf("one-level index failed for %s: %w", msg.DN, err)
	}
	if err := e.writeIndexDNGUID(msg, true); err != nil {
		return err
	}
	if err := e.addAttrs(msg); err != nil {
		return err
	}

	ReindexRecords.WithLabelValues("reindex").Inc()
	*count++
	if *count%reindexProgressEvery == 0 {
		log.Printf("WARN: Reindexing: re-indexed %d records so far", *count)
	}
	return nil
}
