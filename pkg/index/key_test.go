package index

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adfharrison1/go-dirdb/pkg/domain"
	"github.com/adfharrison1/go-dirdb/pkg/kv"
	"github.com/adfharrison1/go-dirdb/pkg/schema"
)

func TestIndexKeyPlain(t *testing.T) {
	e, _ := newDNEngine(t, schema.New(), "cn")

	key, truncated, a, err := e.indexKey("cn", []byte("Alice"))
	require.NoError(t, err)
	assert.Equal(t, "@INDEX:CN:ALICE", key)
	assert.False(t, truncated)
	require.NotNil(t, a)
}

func TestIndexKeyBase64(t *testing.T) {
	e, _ := newDNEngine(t, schema.New(), "cn")

	// Bytes outside printable ASCII force the base64 form with its
	// double-colon marker.
	val := []byte{0x01, 0x02, 0x03}
	canonical, err := schema.SyntaxCaseIgnore.Canonicalise(val)
	require.NoError(t, err)

	key, truncated, _, err := e.indexKey("cn", val)
	require.NoError(t, err)
	assert.Equal(t, "@INDEX:CN::"+base64.StdEncoding.EncodeToString(canonical), key)
	assert.False(t, truncated)
}

func TestIndexKeyAtAttributeVerbatim(t *testing.T) {
	e, _ := newDNEngine(t, schema.New(), "cn")

	// '@' attributes skip canonicalisation entirely; the value is a DN
	// casefold already.
	key, truncated, a, err := e.indexKey(AttrIdxOne, []byte("DC=X"))
	require.NoError(t, err)
	assert.Equal(t, "@INDEX:@IDXONE:DC=X", key)
	assert.False(t, truncated)
	assert.Nil(t, a)
}

func TestIndexKeyTruncation(t *testing.T) {
	e, _ := newGUIDEngine(t, schema.New(), 40, "cn")

	long := strings.Repeat("x", 200)
	key, truncated, _, err := e.indexKey("cn", []byte(long))
	require.NoError(t, err)
	assert.True(t, truncated)
	assert.True(t, strings.HasPrefix(key, "@INDEX#CN#"), "truncated keys use the # namespace: %q", key)
	// The key plus the 4-byte storage wrapper exactly fills the cap.
	assert.Equal(t, 40-4, len(key))

	// Same prefix, same key: two distinct long values collide by design.
	key2, truncated2, _, err := e.indexKey("cn", []byte(long+"y"))
	require.NoError(t, err)
	assert.True(t, truncated2)
	assert.Equal(t, key, key2)
}

func TestIndexKeyNamespacesNeverCollide(t *testing.T) {
	e, _ := newGUIDEngine(t, schema.New(), 40, "cn")

	long := strings.Repeat("x", 200)
	truncatedKey, truncated, _, err := e.indexKey("cn", []byte(long))
	require.NoError(t, err)
	require.True(t, truncated)

	// An untruncated value equal to the stored prefix lands in the ':'
	// namespace and cannot alias the truncated record.
	prefix := strings.TrimPrefix(truncatedKey, "@INDEX#CN#")
	shortKey, shortTruncated, _, err := e.indexKey("cn", []byte(prefix))
	require.NoError(t, err)
	assert.False(t, shortTruncated)
	assert.NotEqual(t, truncatedKey, shortKey)
	assert.True(t, strings.HasPrefix(shortKey, "@INDEX:CN:"))
}

func TestIndexKeyTruncatedBase64(t *testing.T) {
	e, _ := newGUIDEngine(t, schema.New(), 40, "cn")

	long := append([]byte{0x01}, []byte(strings.Repeat("x", 200))...)
	key, truncated, _, err := e.indexKey("cn", long)
	require.NoError(t, err)
	assert.True(t, truncated)
	assert.True(t, strings.HasPrefix(key, "@INDEX#CN##"), "got %q", key)
}

func TestIndexKeyAttributeTooLong(t *testing.T) {
	e, err := NewEngine(kv.NewMemory(), schema.New(), domain.Config{MaxKeyLength: 20})
	require.NoError(t, err)

	_, _, _, err = e.indexKey("averyveryloooongattribute", []byte("v"))
	assert.ErrorIs(t, err, domain.ErrOperations)
}

func TestIndexKeyCanonicaliseFailure(t *testing.T) {
	sch := schema.New()
	sch.Declare("member", schema.SyntaxDN, 0)
	e, _ := newDNEngine(t, sch, "member")

	_, _, _, err := e.indexKey("member", []byte("not a dn"))
	assert.Error(t, err)
}

func TestIndexKeyCached(t *testing.T) {
	e, _ := newDNEngine(t, schema.New(), "cn")

	key1, _, _, err := e.indexKey("cn", []byte("Alice"))
	require.NoError(t, err)
	key2, _, _, err := e.indexKey("cn", []byte("Alice"))
	require.NoError(t, err)
	assert.Equal(t, key1, key2)
	assert.Equal(t, 1, e.keyCache.Len())
}
