package index

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adfharrison1/go-dirdb/pkg/dn"
	"github.com/adfharrison1/go-dirdb/pkg/domain"
	"github.com/adfharrison1/go-dirdb/pkg/kv"
	"github.com/adfharrison1/go-dirdb/pkg/message"
	"github.com/adfharrison1/go-dirdb/pkg/schema"
)

// writeIndexList seeds the @INDEXLIST control record.
func writeIndexList(t *testing.T, store domain.KvStore, idxAttrs []string, guidAttr string, oneLevel bool) {
	t.Helper()
	rec := message.New(dn.MustParse(IndexListDN))
	if len(idxAttrs) > 0 {
		rec.AddString(AttrIdxAttr, idxAttrs...)
	}
	if guidAttr != "" {
		rec.AddString(AttrIdxGUID, guidAttr)
	}
	if oneLevel {
		rec.AddString(AttrIdxOne, "1")
	}
	data, err := message.Pack(rec)
	require.NoError(t, err)
	require.NoError(t, store.Put(message.KeyForDN(rec.DN), data, domain.PutReplace))
}

// newDNEngine builds a DN-mode engine with one-level indexes and the given
// indexed attributes.
func newDNEngine(t *testing.T, sch *schema.Schema, idxAttrs ...string) (*Engine, *kv.MemoryStore) {
	t.Helper()
	store := kv.NewMemory()
	writeIndexList(t, store, idxAttrs, "", true)
	e, err := NewEngine(store, sch, domain.Config{})
	require.NoError(t, err)
	return e, store
}

// newGUIDEngine builds a GUID-mode engine keyed by objectGUID.
func newGUIDEngine(t *testing.T, sch *schema.Schema, maxKeyLength int, idxAttrs ...string) (*Engine, *kv.MemoryStore) {
	t.Helper()
	sch.Declare("objectGUID", schema.SyntaxGUID, 0)
	store := kv.NewMemory()
	writeIndexList(t, store, idxAttrs, "objectGUID", true)
	e, err := NewEngine(store, sch, domain.Config{MaxKeyLength: maxKeyLength})
	require.NoError(t, err)
	return e, store
}

// testGUID builds a deterministic 16-byte GUID.
func testGUID(n byte) []byte {
	g := make([]byte, domain.GUIDSize)
	g[domain.GUIDSize-1] = n
	return g
}

// addEntry stores the data record and indexes it, the way the database
// layer does.
func addEntry(t *testing.T, e *Engine, msg *message.Message) {
	t.Helper()
	key, err := e.RecordKeyForMessage(msg)
	require.NoError(t, err)
	data, err := message.Pack(msg)
	require.NoError(t, err)
	require.NoError(t, e.store.Put(key, data, domain.PutReplace))
	require.NoError(t, e.AddNew(msg))
}

// loadList is a test shorthand for reading one index record.
func loadList(t *testing.T, e *Engine, key string) DNList {
	t.Helper()
	var list DNList
	require.NoError(t, e.listLoad(key, &list))
	return list
}

func TestSettingsFromIndexList(t *testing.T) {
	e, _ := newDNEngine(t, schema.New(), "cn", "mail")

	assert.True(t, e.isIndexed("cn"))
	assert.True(t, e.isIndexed("CN"))
	assert.True(t, e.isIndexed("mail"))
	assert.False(t, e.isIndexed("sn"))
	assert.True(t, e.Settings().OneLevel)
	assert.False(t, e.GUIDMode())
	assert.True(t, e.AttributeIndexes())
}

func TestSettingsOverrideHook(t *testing.T) {
	store := kv.NewMemory()
	cfg := domain.Config{
		Override: func(attr string) (domain.AttrFlags, bool) {
			if strings.EqualFold(attr, "sn") {
				return domain.FlagIndexed | domain.FlagUniqueIndex, true
			}
			return 0, false
		},
	}
	e, err := NewEngine(store, schema.New(), cfg)
	require.NoError(t, err)

	// The hook wins over the (absent) @INDEXLIST membership.
	assert.True(t, e.isIndexed("sn"))
	assert.False(t, e.isIndexed("cn"))
	assert.True(t, e.AttributeIndexes())
	assert.NotZero(t, e.attrFlags("sn")&domain.FlagUniqueIndex)
}

func TestSettingsGUIDMode(t *testing.T) {
	e, _ := newGUIDEngine(t, schema.New(), 0, "cn")
	assert.True(t, e.GUIDMode())
	assert.Equal(t, "objectGUID", e.Settings().GUIDAttr)
}
