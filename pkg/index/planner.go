package index

import (
	"errors"
	"fmt"

	"github.com/adfharrison1/go-dirdb/pkg/dn"
	"github.com/adfharrison1/go-dirdb/pkg/domain"
	"github.com/adfharrison1/go-dirdb/pkg/filter"
	"github.com/adfharrison1/go-dirdb/pkg/schema"
)

// Plan walks a filter tree and produces the candidate identifiers from
// the indexes. Errors carry the three-way outcome:
//
//   - nil: list holds candidates (possibly more than truly match; the
//     search layer re-filters)
//   - domain.ErrNoSuchObject: the filter provably selects nothing
//   - domain.ErrUnindexed: the indexes cannot answer this tree
func (e *Engine) Plan(tree *filter.Filter, list *DNList) error {
	switch tree.Type {
	case filter.And:
		return e.planAnd(tree, list)
	case filter.Or:
		return e.planOr(tree, list)
	case filter.Not:
		// An indexed NOT would need the complement of a set we do not
		// have; give up and let an outer AND or the full scan handle it.
		return domain.ErrUnindexed
	case filter.Equality:
		return e.planLeaf(tree, list)
	default:
		// Substring, ordering, presence and approx have no index family.
		return domain.ErrUnindexed
	}
}

func (e *Engine) planLeaf(tree *filter.Filter, list *DNList) error {
	list.IDs = nil

	if e.cfg.DisallowDNFilter && schema.IsDNAttr(tree.Attribute) {
		// (dn=...) filters are rejected in this configuration; they
		// match nothing rather than erroring.
		return nil
	}
	if len(tree.Attribute) > 0 && tree.Attribute[0] == '@' {
		// No indexed searches against control attributes.
		return nil
	}

	if schema.IsDNAttr(tree.Attribute) {
		base, err := dn.Parse(string(tree.Value))
		if err != nil {
			// An unparseable DN matches nothing.
			return nil
		}
		result, _, err := e.baseDNLookup(base)
		if err != nil {
			return err
		}
		// Truncation is ignored here: over-matching is filtered out at
		// delivery.
		list.IDs = result.IDs
		return nil
	}

	if e.GUIDMode() && schema.AttrEqual(tree.Attribute, e.settings.GUIDAttr) {
		// A search by the GUID attribute needs no index at all; the
		// canonical value is the identifier.
		eid, err := schema.SyntaxGUID.Canonicalise(tree.Value)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrUnindexed, err)
		}
		list.IDs = [][]byte{eid}
		return nil
	}

	if !e.isIndexed(tree.Attribute) {
		return domain.ErrUnindexed
	}

	key, _, _, err := e.indexKey(tree.Attribute, tree.Value)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUnindexed, err)
	}
	return e.listLoad(key, list)
}

// planOr unions the children. A NoMatch child drops out; a child the
// indexes cannot answer poisons the whole OR, because the union of an
// unknown set is unknown.
func (e *Engine) planOr(tree *filter.Filter, list *DNList) error {
	list.IDs = nil

	for _, child := range tree.Children {
		var sub DNList
		err := e.Plan(child, &sub)
		if errors.Is(err, domain.ErrNoSuchObject) {
			// X || 0 == X
			continue
		}
		if err != nil {
			// X || * == *
			return err
		}
		e.listUnion(list, &sub)
	}

	if len(list.IDs) == 0 {
		return domain.ErrNoSuchObject
	}
	return nil
}

// isUniqueAttr reports whether an equality on attr can select at most one
// entry: the GUID attribute, the DN, or a UNIQUE_INDEX attribute.
func (e *Engine) isUniqueAttr(attr string) bool {
	if e.GUIDMode() && schema.AttrEqual(attr, e.settings.GUIDAttr) {
		return true
	}
	if schema.IsDNAttr(attr) {
		return true
	}
	return e.attrFlags(attr)&domain.FlagUniqueIndex != 0
}

// planAnd intersects the children, in two passes. The first pass hunts
// for a unique equality child: one hit bounds the result to at most one
// entry, so the other children need not be loaded at all (a few extras
// are fine, the re-filter trims them). The second pass intersects every
// answerable child and skips the unanswerable ones, which merely lose
// narrowing.
func (e *Engine) planAnd(tree *filter.Filter, list *DNList) error {
	list.IDs = nil

	for _, child := range tree.Children {
		if child.Type != filter.Equality || !e.isUniqueAttr(child.Attribute) {
			continue
		}
		err := e.Plan(child, list)
		if errors.Is(err, domain.ErrNoSuchObject) {
			// 0 && X == 0
			return domain.ErrNoSuchObject
		}
		if err == nil {
			return nil
		}
	}

	found := false
	for _, child := range tree.Children {
		var sub DNList
		err := e.Plan(child, &sub)
		if errors.Is(err, domain.ErrNoSuchObject) {
			// X && 0 == 0
			list.IDs = nil
			return domain.ErrNoSuchObject
		}
		if err != nil {
			// This child narrowed nothing.
			continue
		}

		if !found {
			list.IDs = sub.IDs
			list.Strict = sub.Strict
			found = true
		} else {
			e.listIntersect(list, &sub)
		}

		if len(list.IDs) == 0 {
			list.IDs = nil
			return domain.ErrNoSuchObject
		}
		if len(list.IDs) < 2 {
			// Not worth loading the rest of the tree.
			return nil
		}
	}

	if !found {
		return domain.ErrUnindexed
	}
	return nil
}

// baseDNLookup resolves a base DN to its identifier list. In DN mode the
// identifier is the DN itself. In GUID mode a GUID carried as an extended
// DN component answers without touching the store; otherwise the @IDXDN
// family is consulted.
func (e *Engine) baseDNLookup(base *dn.DN) (*DNList, bool, error) {
	list := &DNList{}

	if !e.GUIDMode() {
		list.IDs = [][]byte{[]byte(base.Casefold())}
		return list, false, nil
	}

	if e.settings.GUIDDNComponent != "" {
		if v := base.ExtendedComponent(e.settings.GUIDDNComponent); v != "" {
			eid, err := schema.SyntaxGUID.Canonicalise([]byte(v))
			if err != nil {
				return nil, false, fmt.Errorf("%w: bad %s component in %s: %v",
					domain.ErrOperations, e.settings.GUIDDNComponent, base, err)
			}
			list.IDs = [][]byte{eid}
			return list, false, nil
		}
	}

	truncated, err := e.indexDNAttr(AttrIdxDN, base, list)
	return list, truncated, err
}

// indexDNAttr loads the list of one DN-keyed family (@IDXDN, @IDXONE).
func (e *Engine) indexDNAttr(family string, d *dn.DN, list *DNList) (bool, error) {
	key, truncated, _, err := e.indexKey(family, []byte(d.Casefold()))
	if err != nil {
		return false, err
	}
	if err := e.listLoad(key, list); err != nil {
		return truncated, err
	}
	if len(list.IDs) == 0 {
		return truncated, domain.ErrNoSuchObject
	}
	return truncated, nil
}

// oneLevelLookup loads the children of a parent DN. The result is strict:
// intersections must never hand back an identifier outside it, because
// one-level results are trusted without a scope re-check.
func (e *Engine) oneLevelLookup(parent *dn.DN, list *DNList) (bool, error) {
	list.Strict = true
	return e.indexDNAttr(AttrIdxOne, parent, list)
}
