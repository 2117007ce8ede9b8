package index

import (
	"fmt"

	"github.com/adfharrison1/go-dirdb/pkg/domain"
)

// Txn is the in-memory overlay of index records modified inside a
// transaction, keyed by the linearized index DN. Repeated writes to the
// same record collapse; only the final list reaches the backing store at
// commit, which cuts the write amplification of multi-operation
// transactions considerably.
type Txn struct {
	entries map[string]*DNList
}

// TransactionStart opens the overlay. Every index write until commit or
// cancel is redirected into it.
func (e *Engine) TransactionStart() error {
	if e.txn != nil {
		return fmt.Errorf("%w: index transaction already open", domain.ErrOperations)
	}
	e.txn = &Txn{entries: make(map[string]*DNList)}
	return nil
}

// TransactionCommit flushes every overlay entry with the direct writer.
// A failing write does not stop the flush; the first error is remembered
// and surfaced after all entries were attempted. The overlay is freed
// regardless of outcome.
func (e *Engine) TransactionCommit() error {
	if e.txn == nil {
		return nil
	}
	txn := e.txn
	e.txn = nil

	var firstErr error
	for key, list := range txn.entries {
		if err := e.listStoreFull(key, list); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to store index %s: %w", key, err)
		}
	}
	return firstErr
}

// TransactionCancel discards the overlay without writing.
func (e *Engine) TransactionCancel() {
	e.txn = nil
}

// InTransaction reports whether an overlay is open.
func (e *Engine) InTransaction() bool { return e.txn != nil }
