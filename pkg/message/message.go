package message

import (
	"bytes"
	"strings"

	"github.com/adfharrison1/go-dirdb/pkg/dn"
)

// Element flags. These travel with an element through a single operation
// and are never persisted.
const (
	// FlagForceUniqueIndex makes the writer treat this element as a unique
	// index regardless of schema flags.
	FlagForceUniqueIndex uint32 = 1 << iota
	// FlagAllowDuplicateValue marks a value the caller knows is already
	// present under the same key. The writer proceeds (and warns) either
	// way; the flag records that the duplicate is deliberate.
	FlagAllowDuplicateValue
)

// Element is one multi-valued attribute of a message.
type Element struct {
	Name   string
	Values [][]byte
	Flags  uint32
}

// Message is a directory entry: a DN plus an ordered attribute list.
type Message struct {
	DN       *dn.DN
	Elements []Element
}

// New returns an empty message for the given DN.
func New(d *dn.DN) *Message {
	return &Message{DN: d}
}

// Add appends values to the named element, creating it if needed.
func (m *Message) Add(name string, values ...[]byte) *Message {
	if el := m.FindElement(name); el != nil {
		el.Values = append(el.Values, values...)
		return m
	}
	m.Elements = append(m.Elements, Element{Name: name, Values: values})
	return m
}

// AddString is Add for string values.
func (m *Message) AddString(name string, values ...string) *Message {
	bs := make([][]byte, len(values))
	for i, v := range values {
		bs[i] = []byte(v)
	}
	return m.Add(name, bs...)
}

// FindElement returns the named element or nil. Names compare
// case-insensitively.
func (m *Message) FindElement(name string) *Element {
	for i := range m.Elements {
		if strings.EqualFold(m.Elements[i].Name, name) {
			return &m.Elements[i]
		}
	}
	return nil
}

// FirstValue returns the first value of the named element, or nil.
func (m *Message) FirstValue(name string) []byte {
	if el := m.FindElement(name); el != nil && len(el.Values) > 0 {
		return el.Values[0]
	}
	return nil
}

// FirstString is FirstValue as a string, "" when absent.
func (m *Message) FirstString(name string) string {
	return string(m.FirstValue(name))
}

// HasValue reports whether the named element contains an exactly equal
// value.
func (m *Message) HasValue(name string, value []byte) bool {
	el := m.FindElement(name)
	if el == nil {
		return false
	}
	for _, v := range el.Values {
		if bytes.Equal(v, value) {
			return true
		}
	}
	return false
}

// RemoveElement deletes the named element if present.
func (m *Message) RemoveElement(name string) {
	for i := range m.Elements {
		if strings.EqualFold(m.Elements[i].Name, name) {
			m.Elements = append(m.Elements[:i], m.Elements[i+1:]...)
			return
		}
	}
}

// Project returns a copy carrying only the requested attributes. An empty
// list or a lone "*" keeps everything. The DN is always carried.
func (m *Message) Project(attrs []string) *Message {
	if len(attrs) == 0 || (len(attrs) == 1 && attrs[0] == "*") {
		return m.Copy()
	}
	out := New(m.DN)
	for _, want := range attrs {
		if el := m.FindElement(want); el != nil {
			out.Elements = append(out.Elements, el.copyElement())
		}
	}
	return out
}

// Copy returns a deep copy of the message.
func (m *Message) Copy() *Message {
	out := New(m.DN)
	out.Elements = make([]Element, len(m.Elements))
	for i := range m.Elements {
		out.Elements[i] = m.Elements[i].copyElement()
	}
	return out
}

func (e *Element) copyElement() Element {
	vals := make([][]byte, len(e.Values))
	for i, v := range e.Values {
		vals[i] = append([]byte(nil), v...)
	}
	return Element{Name: e.Name, Values: vals, Flags: e.Flags}
}
