package schema

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/adfharrison1/go-dirdb/pkg/dn"
	"github.com/adfharrison1/go-dirdb/pkg/domain"
)

// Syntax is the value behaviour of an attribute: how a value is normalised
// for index keys and comparison, and how it is rendered for humans.
type Syntax struct {
	Name string

	// Canonicalise maps a value to its index/comparison form. It may fail,
	// for example on a malformed GUID or DN.
	Canonicalise func(val []byte) ([]byte, error)

	// LdifWrite renders a canonical value for display.
	LdifWrite func(val []byte) (string, error)
}

// Attribute describes one attribute: its syntax plus index flags.
type Attribute struct {
	Name   string
	Syntax *Syntax
	Flags  domain.AttrFlags
}

// Schema is the attribute registry. Lookups are case-insensitive and always
// succeed: unknown attributes get the case-ignore default, as a schemaless
// store must accept any attribute.
type Schema struct {
	attrs map[string]*Attribute
}

var (
	// SyntaxCaseIgnore folds values to upper case. The default.
	SyntaxCaseIgnore = &Syntax{
		Name: "caseIgnoreString",
		Canonicalise: func(val []byte) ([]byte, error) {
			return []byte(strings.ToUpper(strings.TrimSpace(string(val)))), nil
		},
		LdifWrite: func(val []byte) (string, error) { return string(val), nil },
	}

	// SyntaxOctet passes values through untouched.
	SyntaxOctet = &Syntax{
		Name: "octetString",
		Canonicalise: func(val []byte) ([]byte, error) {
			out := make([]byte, len(val))
			copy(out, val)
			return out, nil
		},
		LdifWrite: func(val []byte) (string, error) { return string(val), nil },
	}

	// SyntaxGUID canonicalises to the 16 raw GUID bytes, accepting either
	// the textual UUID form or the raw bytes.
	SyntaxGUID = &Syntax{
		Name: "GUID",
		Canonicalise: func(val []byte) ([]byte, error) {
			if len(val) == domain.GUIDSize {
				out := make([]byte, domain.GUIDSize)
				copy(out, val)
				return out, nil
			}
			u, err := uuid.Parse(string(val))
			if err != nil {
				return nil, fmt.Errorf("invalid GUID value: %w", err)
			}
			b := u[:]
			out := make([]byte, domain.GUIDSize)
			copy(out, b)
			return out, nil
		},
		LdifWrite: func(val []byte) (string, error) {
			if len(val) != domain.GUIDSize {
				return "", fmt.Errorf("GUID value has length %d, want %d", len(val), domain.GUIDSize)
			}
			u, err := uuid.FromBytes(val)
			if err != nil {
				return "", err
			}
			return u.String(), nil
		},
	}

	// SyntaxDN canonicalises a DN value to its casefolded form.
	SyntaxDN = &Syntax{
		Name: "DN",
		Canonicalise: func(val []byte) ([]byte, error) {
			d, err := dn.Parse(string(val))
			if err != nil {
				return nil, err
			}
			return []byte(d.Casefold()), nil
		},
		LdifWrite: func(val []byte) (string, error) { return string(val), nil },
	}
)

// New returns a registry with no attributes declared; all lookups resolve
// to the case-ignore default until Declare is called.
func New() *Schema {
	return &Schema{attrs: make(map[string]*Attribute)}
}

// Declare registers (or redeclares) an attribute.
func (s *Schema) Declare(name string, syntax *Syntax, flags domain.AttrFlags) *Attribute {
	a := &Attribute{Name: name, Syntax: syntax, Flags: flags}
	s.attrs[strings.ToLower(name)] = a
	return a
}

// AttributeByName resolves an attribute, falling back to the case-ignore
// default for undeclared names. Never returns nil.
func (s *Schema) AttributeByName(name string) *Attribute {
	if a, ok := s.attrs[strings.ToLower(name)]; ok {
		return a
	}
	return &Attribute{Name: name, Syntax: SyntaxCaseIgnore}
}

// AttrEqual compares attribute names the way the directory does.
func AttrEqual(a, b string) bool { return strings.EqualFold(a, b) }

// IsDNAttr reports whether the name refers to the entry's own DN rather
// than a stored attribute.
func IsDNAttr(name string) bool {
	return strings.EqualFold(name, "dn") || strings.EqualFold(name, "distinguishedName")
}

// ShouldBase64 reports whether a value cannot be embedded raw in an index
// key or LDIF line: empty values, unsafe leading bytes, and any byte
// outside printable ASCII force base64.
func ShouldBase64(val []byte) bool {
	if len(val) == 0 {
		return true
	}
	switch val[0] {
	case ' ', ':', '<':
		return true
	}
	for _, b := range val {
		if b < 0x20 || b > 0x7e {
			return true
		}
	}
	return false
}
