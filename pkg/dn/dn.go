package dn

import (
	"fmt"
	"strings"
)

// Component is one relative DN: an attribute/value pair.
type Component struct {
	Attr  string
	Value string
}

// Extended is a non-identifying DN extension of the form <NAME=VALUE>,
// carried ahead of the first component. The base-DN lookup uses these to
// ship a GUID alongside a DN.
type Extended struct {
	Name  string
	Value string
}

// DN is a parsed distinguished name. Special names beginning with '@'
// (control and index records) have no components and linearize verbatim.
type DN struct {
	special    string
	components []Component
	extended   []Extended
}

// Parse parses a linearized DN. The empty string is the valid root DN.
//
// Supported syntax: optional <NAME=VALUE>; extensions, then comma-separated
// ATTR=VALUE components. Commas and equals signs inside values may be
// escaped with a backslash.
func Parse(s string) (*DN, error) {
	if strings.HasPrefix(s, "@") {
		return &DN{special: s}, nil
	}

	d := &DN{}
	for strings.HasPrefix(s, "<") {
		end := strings.Index(s, ">")
		if end < 0 {
			return nil, fmt.Errorf("unterminated DN extension in %q", s)
		}
		inner := s[1:end]
		eq := strings.Index(inner, "=")
		if eq <= 0 {
			return nil, fmt.Errorf("malformed DN extension %q", inner)
		}
		d.extended = append(d.extended, Extended{
			Name:  strings.ToUpper(inner[:eq]),
			Value: inner[eq+1:],
		})
		s = s[end+1:]
		s = strings.TrimPrefix(s, ";")
	}

	if s == "" {
		return d, nil
	}

	for _, part := range splitUnescaped(s, ',') {
		eq := indexUnescaped(part, '=')
		if eq <= 0 {
			return nil, fmt.Errorf("malformed DN component %q", part)
		}
		attr := strings.TrimSpace(part[:eq])
		if attr == "" || strings.ContainsAny(attr, " ,") {
			return nil, fmt.Errorf("malformed DN attribute in %q", part)
		}
		d.components = append(d.components, Component{
			Attr:  attr,
			Value: unescape(strings.TrimSpace(part[eq+1:])),
		})
	}
	return d, nil
}

// MustParse is Parse for inputs known to be valid, mostly in tests.
func MustParse(s string) *DN {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// IsSpecial reports whether this is an '@'-prefixed control or index name.
func (d *DN) IsSpecial() bool { return d.special != "" }

// IsRoot reports whether this DN has no components at all.
func (d *DN) IsRoot() bool { return d.special == "" && len(d.components) == 0 }

// ComponentCount returns the number of relative components.
func (d *DN) ComponentCount() int { return len(d.components) }

// Linearized renders the DN without its extensions.
func (d *DN) Linearized() string {
	if d.special != "" {
		return d.special
	}
	parts := make([]string, len(d.components))
	for i, c := range d.components {
		parts[i] = c.Attr + "=" + escape(c.Value)
	}
	return strings.Join(parts, ",")
}

// Casefold renders the normalised form used in storage and index keys:
// attribute names and values upper-cased. Special names fold verbatim.
func (d *DN) Casefold() string {
	if d.special != "" {
		return d.special
	}
	parts := make([]string, len(d.components))
	for i, c := range d.components {
		parts[i] = strings.ToUpper(c.Attr) + "=" + strings.ToUpper(escape(c.Value))
	}
	return strings.Join(parts, ",")
}

func (d *DN) String() string { return d.Linearized() }

// Parent returns the DN with the leftmost component removed, or nil for the
// root and for special names.
func (d *DN) Parent() *DN {
	if d.special != "" || len(d.components) == 0 {
		return nil
	}
	return &DN{components: d.components[1:]}
}

// ExtendedComponent returns the value of the named <NAME=VALUE> extension,
// or "" if absent.
func (d *DN) ExtendedComponent(name string) string {
	name = strings.ToUpper(name)
	for _, e := range d.extended {
		if e.Name == name {
			return e.Value
		}
	}
	return ""
}

// Equal compares two DNs by their casefolded forms.
func (d *DN) Equal(other *DN) bool {
	if other == nil {
		return false
	}
	return d.Casefold() == other.Casefold()
}

// IsChildOf reports whether d is a direct child of parent.
func (d *DN) IsChildOf(parent *DN) bool {
	p := d.Parent()
	return p != nil && p.Equal(parent)
}

// IsDescendantOf reports whether parent is a proper ancestor of d.
func (d *DN) IsDescendantOf(parent *DN) bool {
	if d.special != "" || parent.special != "" {
		return false
	}
	if parent.IsRoot() {
		return len(d.components) > 0
	}
	n := len(d.components) - len(parent.components)
	if n <= 0 {
		return false
	}
	tail := &DN{components: d.components[n:]}
	return tail.Equal(parent)
}

func splitUnescaped(s string, sep byte) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' {
			i++
			continue
		}
		if s[i] == sep {
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

func indexUnescaped(s string, sep byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' {
			i++
			continue
		}
		if s[i] == sep {
			return i
		}
	}
	return -1
}

func escape(v string) string {
	var b strings.Builder
	for i := 0; i < len(v); i++ {
		if v[i] == ',' || v[i] == '=' || v[i] == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(v[i])
	}
	return b.String()
}

func unescape(v string) string {
	var b strings.Builder
	for i := 0; i < len(v); i++ {
		if v[i] == '\\' && i+1 < len(v) {
			i++
		}
		b.WriteByte(v[i])
	}
	return b.String()
}
