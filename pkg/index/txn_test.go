package index

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adfharrison1/go-dirdb/pkg/dn"
	"github.com/adfharrison1/go-dirdb/pkg/domain"
	"github.com/adfharrison1/go-dirdb/pkg/message"
	"github.com/adfharrison1/go-dirdb/pkg/schema"
)

func countIndexRecords(t *testing.T, store domain.KvStore) int {
	t.Helper()
	n := 0
	require.NoError(t, store.Iterate(func(key, _ []byte) error {
		if strings.HasPrefix(string(key), "DN=@INDEX:") || strings.HasPrefix(string(key), "DN=@INDEX#") {
			n++
		}
		return nil
	}))
	return n
}

func TestTransactionBuffersWrites(t *testing.T) {
	e, store := newDNEngine(t, schema.New(), "cn")
	require.NoError(t, e.TransactionStart())
	assert.True(t, e.InTransaction())

	msg := message.New(dn.MustParse("CN=a,DC=x"))
	msg.AddString("cn", "a")
	addEntry(t, e, msg)

	// The writes sit in the overlay; the store has no index records yet.
	assert.Equal(t, 0, countIndexRecords(t, store))

	// Loads go through the overlay.
	list := loadList(t, e, "@INDEX:CN:A")
	require.Len(t, list.IDs, 1)

	require.NoError(t, e.TransactionCommit())
	assert.False(t, e.InTransaction())
	assert.Equal(t, 2, countIndexRecords(t, store), "@INDEX:CN:A plus the one-level record")
}

func TestTransactionCancelLeavesNoTrace(t *testing.T) {
	e, store := newDNEngine(t, schema.New(), "cn")
	require.NoError(t, e.TransactionStart())

	msg := message.New(dn.MustParse("CN=gone,DC=x"))
	msg.AddString("cn", "gone")
	require.NoError(t, e.AddNew(msg))

	e.TransactionCancel()
	assert.Equal(t, 0, countIndexRecords(t, store))
	assert.Empty(t, loadList(t, e, "@INDEX:CN:GONE").IDs)
}

func TestTransactionCollapsesRewrites(t *testing.T) {
	e, store := newDNEngine(t, schema.New(), "cn")
	require.NoError(t, e.TransactionStart())

	// Add, modify and delete the same attribute value inside one
	// transaction; only the final state may reach the store.
	msg := message.New(dn.MustParse("CN=a,DC=x"))
	msg.AddString("cn", "first")
	addEntry(t, e, msg)

	el := msg.FindElement("cn")
	require.NoError(t, e.DelValue(msg, el, 0))
	el.Values[0] = []byte("second")
	require.NoError(t, e.add1(msg, el, 0))

	require.NoError(t, e.Delete(msg))

	require.NoError(t, e.TransactionCommit())

	// Everything cancelled out: no index record survives.
	assert.Equal(t, 0, countIndexRecords(t, store))
}

func TestTransactionDoubleStart(t *testing.T) {
	e, _ := newDNEngine(t, schema.New(), "cn")
	require.NoError(t, e.TransactionStart())
	assert.Error(t, e.TransactionStart())
}

func TestCommitWithoutTransactionIsNoop(t *testing.T) {
	e, _ := newDNEngine(t, schema.New(), "cn")
	assert.NoError(t, e.TransactionCommit())
}
