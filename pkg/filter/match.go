package filter

import (
	"bytes"
	"fmt"

	"github.com/adfharrison1/go-dirdb/pkg/dn"
	"github.com/adfharrison1/go-dirdb/pkg/message"
	"github.com/adfharrison1/go-dirdb/pkg/schema"
)

// Evaluator tests messages against filter trees using schema-aware value
// comparison.
type Evaluator struct {
	Schema *schema.Schema
}

// NewEvaluator returns an evaluator over the given schema.
func NewEvaluator(s *schema.Schema) *Evaluator {
	return &Evaluator{Schema: s}
}

// Matches reports whether the message satisfies the filter, ignoring scope.
func (e *Evaluator) Matches(m *message.Message, f *Filter) (bool, error) {
	switch f.Type {
	case And:
		for _, child := range f.Children {
			ok, err := e.Matches(m, child)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil

	case Or:
		for _, child := range f.Children {
			ok, err := e.Matches(m, child)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil

	case Not:
		ok, err := e.Matches(m, f.Child)
		return !ok, err

	case Equality, Approx:
		return e.matchEquality(m, f)

	case Present:
		if schema.IsDNAttr(f.Attribute) {
			return true, nil
		}
		return m.FindElement(f.Attribute) != nil, nil

	case Substring:
		el := m.FindElement(f.Attribute)
		if el == nil {
			return false, nil
		}
		for _, v := range el.Values {
			if matchSubstring(v, f.Pattern) {
				return true, nil
			}
		}
		return false, nil

	case GreaterOrEqual, LessOrEqual:
		return e.matchOrdering(m, f)

	default:
		return false, fmt.Errorf("unknown filter type %v", f.Type)
	}
}

// MatchesScoped reports whether the message satisfies both the scope
// discipline relative to base and the filter.
func (e *Evaluator) MatchesScoped(m *message.Message, f *Filter, base *dn.DN, scope Scope) (bool, error) {
	if !ScopeMatch(m.DN, base, scope) {
		return false, nil
	}
	return e.Matches(m, f)
}

// ScopeMatch reports whether target falls inside the scope rooted at base.
func ScopeMatch(target, base *dn.DN, scope Scope) bool {
	switch scope {
	case ScopeBase:
		return target.Equal(base)
	case ScopeOneLevel:
		return target.IsChildOf(base)
	default: // subtree and default
		return target.Equal(base) || target.IsDescendantOf(base)
	}
}

func (e *Evaluator) matchEquality(m *message.Message, f *Filter) (bool, error) {
	if schema.IsDNAttr(f.Attribute) {
		want, err := dn.Parse(string(f.Value))
		if err != nil {
			return false, nil
		}
		return m.DN.Equal(want), nil
	}

	el := m.FindElement(f.Attribute)
	if el == nil {
		return false, nil
	}
	attr := e.Schema.AttributeByName(f.Attribute)
	want, err := attr.Syntax.Canonicalise(f.Value)
	if err != nil {
		// A value the syntax refuses cannot equal any stored value.
		return false, nil
	}
	for _, v := range el.Values {
		got, err := attr.Syntax.Canonicalise(v)
		if err != nil {
			continue
		}
		if bytes.Equal(got, want) {
			return true, nil
		}
	}
	return false, nil
}

func (e *Evaluator) matchOrdering(m *message.Message, f *Filter) (bool, error) {
	el := m.FindElement(f.Attribute)
	if el == nil {
		return false, nil
	}
	attr := e.Schema.AttributeByName(f.Attribute)
	want, err := attr.Syntax.Canonicalise(f.Value)
	if err != nil {
		return false, nil
	}
	for _, v := range el.Values {
		got, err := attr.Syntax.Canonicalise(v)
		if err != nil {
			continue
		}
		cmp := bytes.Compare(got, want)
		if f.Type == GreaterOrEqual && cmp >= 0 {
			return true, nil
		}
		if f.Type == LessOrEqual && cmp <= 0 {
			return true, nil
		}
	}
	return false, nil
}

func matchSubstring(value []byte, p *SubstringPattern) bool {
	v := bytes.ToUpper(value)
	pos := 0
	if len(p.Initial) > 0 {
		pre := bytes.ToUpper(p.Initial)
		if !bytes.HasPrefix(v, pre) {
			return false
		}
		pos = len(pre)
	}
	for _, mid := range p.Any {
		mid = bytes.ToUpper(mid)
		i := bytes.Index(v[pos:], mid)
		if i < 0 {
			return false
		}
		pos += i + len(mid)
	}
	if len(p.Final) > 0 {
		fin := bytes.ToUpper(p.Final)
		if len(v)-pos < len(fin) || !bytes.HasSuffix(v, fin) {
			return false
		}
	}
	return true
}
