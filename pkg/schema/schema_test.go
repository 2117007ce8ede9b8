package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adfharrison1/go-dirdb/pkg/domain"
	"github.com/adfharrison1/go-dirdb/pkg/schema"
)

func TestAttributeLookup(t *testing.T) {
	s := schema.New()
	s.Declare("sAMAccountName", schema.SyntaxCaseIgnore, domain.FlagIndexed|domain.FlagUniqueIndex)

	a := s.AttributeByName("samaccountname")
	assert.Equal(t, "sAMAccountName", a.Name)
	assert.NotZero(t, a.Flags&domain.FlagUniqueIndex)

	// Unknown attributes resolve to the case-ignore default.
	b := s.AttributeByName("whatever")
	require.NotNil(t, b)
	assert.Equal(t, schema.SyntaxCaseIgnore, b.Syntax)
	assert.Zero(t, b.Flags)
}

func TestCaseIgnoreCanonicalise(t *testing.T) {
	v, err := schema.SyntaxCaseIgnore.Canonicalise([]byte("  Alice "))
	require.NoError(t, err)
	assert.Equal(t, []byte("ALICE"), v)
}

func TestGUIDSyntax(t *testing.T) {
	text := "ad30db8a-f579-4969-9c90-b2958e95fd1a"

	raw, err := schema.SyntaxGUID.Canonicalise([]byte(text))
	require.NoError(t, err)
	assert.Len(t, raw, domain.GUIDSize)

	// Raw bytes canonicalise to themselves.
	again, err := schema.SyntaxGUID.Canonicalise(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, again)

	out, err := schema.SyntaxGUID.LdifWrite(raw)
	require.NoError(t, err)
	assert.Equal(t, text, out)

	_, err = schema.SyntaxGUID.Canonicalise([]byte("not-a-guid"))
	assert.Error(t, err)
}

func TestDNSyntax(t *testing.T) {
	v, err := schema.SyntaxDN.Canonicalise([]byte("cn=a,dc=x"))
	require.NoError(t, err)
	assert.Equal(t, []byte("CN=A,DC=X"), v)

	_, err = schema.SyntaxDN.Canonicalise([]byte("bogus"))
	assert.Error(t, err)
}

func TestShouldBase64(t *testing.T) {
	assert.False(t, schema.ShouldBase64([]byte("alice")))
	assert.True(t, schema.ShouldBase64(nil))
	assert.True(t, schema.ShouldBase64([]byte(" leading")))
	assert.True(t, schema.ShouldBase64([]byte(":colon")))
	assert.True(t, schema.ShouldBase64([]byte("<angle")))
	assert.True(t, schema.ShouldBase64([]byte{0x01, 0x02}))
	assert.True(t, schema.ShouldBase64([]byte("caf\xc3\xa9")))
}
