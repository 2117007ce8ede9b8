package index

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adfharrison1/go-dirdb/pkg/dn"
	"github.com/adfharrison1/go-dirdb/pkg/domain"
	"github.com/adfharrison1/go-dirdb/pkg/message"
	"github.com/adfharrison1/go-dirdb/pkg/schema"
)

func TestAddNewDNMode(t *testing.T) {
	e, store := newDNEngine(t, schema.New(), "cn")

	msg := message.New(dn.MustParse("CN=a,DC=x"))
	msg.AddString("cn", "a")
	msg.AddString("sn", "unindexed")
	addEntry(t, e, msg)

	// The equality index round-trips the casefolded DN.
	list := loadList(t, e, "@INDEX:CN:A")
	require.Len(t, list.IDs, 1)
	assert.Equal(t, "CN=A,DC=X", string(list.IDs[0]))

	// The unindexed attribute got no record.
	assert.Empty(t, loadList(t, e, "@INDEX:SN:UNINDEXED").IDs)

	// The one-level family lists the child under its parent.
	one := loadList(t, e, "@INDEX:@IDXONE:DC=X")
	require.Len(t, one.IDs, 1)
	assert.Equal(t, "CN=A,DC=X", string(one.IDs[0]))

	// The stored record carries the v2 format.
	raw, err := store.Get([]byte("DN=@INDEX:CN:A"))
	require.NoError(t, err)
	rec, err := message.Unpack(raw)
	require.NoError(t, err)
	assert.Equal(t, "2", rec.FirstString(AttrIdxVersion))
}

func TestDeleteRemovesEverything(t *testing.T) {
	e, store := newDNEngine(t, schema.New(), "cn")

	msg := message.New(dn.MustParse("CN=a,DC=x"))
	msg.AddString("cn", "a")
	addEntry(t, e, msg)

	require.NoError(t, e.Delete(msg))

	assert.Empty(t, loadList(t, e, "@INDEX:CN:A").IDs)
	assert.Empty(t, loadList(t, e, "@INDEX:@IDXONE:DC=X").IDs)

	// Empty lists delete their records outright.
	_, err := store.Get([]byte("DN=@INDEX:CN:A"))
	assert.ErrorIs(t, err, domain.ErrKeyNotFound)
}

func TestSpecialDNsAreNeverIndexed(t *testing.T) {
	e, _ := newDNEngine(t, schema.New(), "cn")

	msg := message.New(dn.MustParse("@BASEINFO"))
	msg.AddString("cn", "whatever")
	require.NoError(t, e.AddNew(msg))

	assert.Empty(t, loadList(t, e, "@INDEX:CN:WHATEVER").IDs)
}

func TestMultiValuedAndSharedValues(t *testing.T) {
	e, _ := newDNEngine(t, schema.New(), "cn")

	a := message.New(dn.MustParse("CN=a,DC=x"))
	a.AddString("cn", "a", "shared")
	addEntry(t, e, a)

	b := message.New(dn.MustParse("CN=b,DC=x"))
	b.AddString("cn", "b", "shared")
	addEntry(t, e, b)

	shared := loadList(t, e, "@INDEX:CN:SHARED")
	assert.Len(t, shared.IDs, 2)

	// Deleting one value leaves the other entry in place.
	el := a.FindElement("cn")
	require.NoError(t, e.DelValue(a, el, 1))
	shared = loadList(t, e, "@INDEX:CN:SHARED")
	require.Len(t, shared.IDs, 1)
	assert.Equal(t, "CN=B,DC=X", string(shared.IDs[0]))
}

func TestAddElementDelElement(t *testing.T) {
	e, _ := newDNEngine(t, schema.New(), "cn", "mail")

	msg := message.New(dn.MustParse("CN=a,DC=x"))
	msg.AddString("cn", "a")
	addEntry(t, e, msg)

	mail := &message.Element{Name: "mail", Values: [][]byte{[]byte("a@x")}}
	require.NoError(t, e.AddElement(msg, mail))
	assert.Len(t, loadList(t, e, "@INDEX:MAIL:A@X").IDs, 1)

	require.NoError(t, e.DelElement(msg, mail))
	assert.Empty(t, loadList(t, e, "@INDEX:MAIL:A@X").IDs)
}

func TestUniqueIndexViolation(t *testing.T) {
	sch := schema.New()
	sch.Declare("sAMAccountName", schema.SyntaxCaseIgnore, domain.FlagUniqueIndex)
	e, _ := newGUIDEngine(t, sch, 0, "cn", "sAMAccountName")

	first := message.New(dn.MustParse("CN=a,DC=x"))
	first.Add("objectGUID", testGUID(1))
	first.AddString("cn", "a")
	first.AddString("sAMAccountName", "alice")
	addEntry(t, e, first)

	second := message.New(dn.MustParse("CN=b,DC=x"))
	second.Add("objectGUID", testGUID(2))
	second.AddString("cn", "b")
	second.AddString("sAMAccountName", "alice")

	key, err := e.RecordKeyForMessage(second)
	require.NoError(t, err)
	data, err := message.Pack(second)
	require.NoError(t, err)
	require.NoError(t, e.store.Put(key, data, domain.PutReplace))

	err = e.AddNew(second)
	assert.ErrorIs(t, err, domain.ErrConstraintViolation)
	// The message names the attribute and the local DN only.
	assert.Contains(t, err.Error(), "sAMAccountName")
	assert.Contains(t, err.Error(), "CN=b,DC=x")
	assert.NotContains(t, err.Error(), "CN=a")

	// The first entry's index rows survive intact, and the failed add
	// unwound its partial work.
	sam := loadList(t, e, "@INDEX:SAMACCOUNTNAME:ALICE")
	require.Len(t, sam.IDs, 1)
	assert.Equal(t, testGUID(1), sam.IDs[0])
	cnB := loadList(t, e, "@INDEX:CN:B")
	assert.Empty(t, cnB.IDs, "rolled-back add must leave no index rows")
}

func TestUniqueIndexUnderTruncationRejected(t *testing.T) {
	sch := schema.New()
	sch.Declare("sAMAccountName", schema.SyntaxCaseIgnore, domain.FlagUniqueIndex)
	e, _ := newGUIDEngine(t, sch, 48, "sAMAccountName")

	msg := message.New(dn.MustParse("CN=a,DC=x"))
	msg.Add("objectGUID", testGUID(1))
	msg.AddString("sAMAccountName", strings.Repeat("z", 200))

	el := msg.FindElement("sAMAccountName")
	err := e.add1(msg, el, 0)
	assert.ErrorIs(t, err, domain.ErrConstraintViolation)
	assert.Contains(t, err.Error(), "maximum key length")
}

func TestForceUniqueFlag(t *testing.T) {
	e, _ := newGUIDEngine(t, schema.New(), 0, "cn")

	a := message.New(dn.MustParse("CN=a,DC=x"))
	a.Add("objectGUID", testGUID(1))
	a.AddString("cn", "dup")
	addEntry(t, e, a)

	b := message.New(dn.MustParse("CN=b,DC=x"))
	b.Add("objectGUID", testGUID(2))
	b.AddString("cn", "dup")
	el := b.FindElement("cn")
	el.Flags = message.FlagForceUniqueIndex

	err := e.add1(b, el, 0)
	assert.ErrorIs(t, err, domain.ErrConstraintViolation)
}

func TestGUIDModeSortedInsert(t *testing.T) {
	e, _ := newGUIDEngine(t, schema.New(), 0, "cn")

	// Insert out of identifier order; the list must come back sorted.
	for _, n := range []byte{7, 1, 4} {
		msg := message.New(dn.MustParse(fmt.Sprintf("CN=e%d,DC=x", n)))
		msg.Add("objectGUID", testGUID(n))
		msg.AddString("cn", "same")
		addEntry(t, e, msg)
	}

	list := loadList(t, e, "@INDEX:CN:SAME")
	require.Len(t, list.IDs, 3)
	assert.Equal(t, testGUID(1), list.IDs[0])
	assert.Equal(t, testGUID(4), list.IDs[1])
	assert.Equal(t, testGUID(7), list.IDs[2])

	// The stored record is the v3 packed form: one value, 16xN bytes.
	raw, err := e.store.Get([]byte("DN=@INDEX:CN:SAME"))
	require.NoError(t, err)
	rec, err := message.Unpack(raw)
	require.NoError(t, err)
	assert.Equal(t, "3", rec.FirstString(AttrIdxVersion))
	el := rec.FindElement(AttrIdx)
	require.NotNil(t, el)
	require.Len(t, el.Values, 1)
	assert.Len(t, el.Values[0], 3*domain.GUIDSize)
}

func TestDuplicateDNRejected(t *testing.T) {
	e, _ := newGUIDEngine(t, schema.New(), 0, "cn")

	a := message.New(dn.MustParse("CN=a,DC=x"))
	a.Add("objectGUID", testGUID(1))
	a.AddString("cn", "a")
	addEntry(t, e, a)

	// Same DN, different GUID: the DN->GUID family must refuse.
	dup := message.New(dn.MustParse("cn=A,dc=X"))
	dup.Add("objectGUID", testGUID(2))
	dup.AddString("cn", "a")

	err := e.AddNew(dup)
	assert.ErrorIs(t, err, domain.ErrEntryAlreadyExists)

	// The original @IDXDN entry is untouched.
	list := loadList(t, e, "@INDEX:@IDXDN:CN=A,DC=X")
	require.Len(t, list.IDs, 1)
	assert.Equal(t, testGUID(1), list.IDs[0])
}

func TestDuplicateDNUnderTruncationProbesRecords(t *testing.T) {
	// Keys short enough that every DN truncates into the same bucket.
	e, _ := newGUIDEngine(t, schema.New(), 40, "cn")

	a := message.New(dn.MustParse("CN=averylongsharedname-aaaa,DC=x"))
	a.Add("objectGUID", testGUID(1))
	addEntry(t, e, a)

	// A different DN sharing the truncated prefix is allowed in.
	b := message.New(dn.MustParse("CN=averylongsharedname-bbbb,DC=x"))
	b.Add("objectGUID", testGUID(2))
	require.NoError(t, e.AddNew(b))

	// The same DN again is found by probing the records behind the
	// shared truncated key.
	dup := message.New(dn.MustParse("CN=averylongsharedname-aaaa,DC=x"))
	dup.Add("objectGUID", testGUID(3))
	err := e.AddNew(dup)
	assert.ErrorIs(t, err, domain.ErrEntryAlreadyExists)
}
