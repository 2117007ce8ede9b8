package index

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/adfharrison1/go-dirdb/pkg/dn"
	"github.com/adfharrison1/go-dirdb/pkg/domain"
	"github.com/adfharrison1/go-dirdb/pkg/filter"
	"github.com/adfharrison1/go-dirdb/pkg/message"
)

// Request is one search as the engine sees it: base, scope, filter tree,
// attribute projection and the delivery callback. A callback error
// terminates the search immediately.
type Request struct {
	Base     *dn.DN
	Scope    filter.Scope
	Tree     *filter.Filter
	Attrs    []string
	Callback func(*message.Message) error
}

// SearchIndexed answers a search from the indexes and streams matches to
// the callback. It returns the number of delivered entries.
//
// domain.ErrFullScanNeeded tells the caller no index can bound this
// search; domain.ErrNoSuchObject means the result set is provably empty.
func (e *Engine) SearchIndexed(req *Request) (int, error) {
	scope := req.Scope
	if scope == filter.ScopeDefault {
		scope = filter.ScopeSubtree
	}

	if !e.AttributeIndexes() && !e.settings.OneLevel && scope != filter.ScopeBase {
		SearchOutcomes.WithLabelValues("full_scan").Inc()
		return 0, domain.ErrFullScanNeeded
	}

	// Without a one-level index, a one-level search can still be bounded
	// by the attribute indexes, like a subtree search.
	indexScope := scope
	if scope == filter.ScopeOneLevel && !e.settings.OneLevel {
		indexScope = filter.ScopeSubtree
	}

	var candidates DNList
	oneTruncated := false

	switch indexScope {
	case filter.ScopeBase:
		// The dispatcher answers base searches itself.
		return 0, fmt.Errorf("%w: base-scope search reached the index engine", domain.ErrOperations)

	case filter.ScopeOneLevel:
		// Load all the direct children first; the one-level index makes
		// this cheap, and the result is exact.
		truncated, err := e.oneLevelLookup(req.Base, &candidates)
		if err != nil {
			if errors.Is(err, domain.ErrNoSuchObject) {
				SearchOutcomes.WithLabelValues("no_match").Inc()
			}
			return 0, err
		}
		oneTruncated = truncated

		// With many children, re-filtering every one is expensive, so in
		// GUID mode a separate indexed query on the filter narrows the
		// set first: intersection is O(n log m) over sorted GUID lists.
		if e.GUIDMode() {
			if !e.AttributeIndexes() {
				SearchOutcomes.WithLabelValues("full_scan").Inc()
				return 0, domain.ErrFullScanNeeded
			}
			var byFilter DNList
			err := e.Plan(req.Tree, &byFilter)
			switch {
			case errors.Is(err, domain.ErrNoSuchObject):
				SearchOutcomes.WithLabelValues("no_match").Inc()
				return 0, domain.ErrNoSuchObject
			case err == nil:
				e.listIntersect(&candidates, &byFilter)
			case errors.Is(err, domain.ErrUnindexed):
				// The planner could not answer the filter; fall through
				// and re-filter all the children, which still beats a
				// full scan.
			default:
				return 0, err
			}
		}

	default: // subtree
		if !e.AttributeIndexes() {
			SearchOutcomes.WithLabelValues("full_scan").Inc()
			return 0, domain.ErrFullScanNeeded
		}
		err := e.Plan(req.Tree, &candidates)
		if errors.Is(err, domain.ErrUnindexed) {
			SearchOutcomes.WithLabelValues("full_scan").Inc()
			return 0, domain.ErrFullScanNeeded
		}
		if err != nil {
			if errors.Is(err, domain.ErrNoSuchObject) {
				SearchOutcomes.WithLabelValues("no_match").Inc()
			}
			return 0, err
		}
	}

	SearchOutcomes.WithLabelValues("indexed").Inc()
	return e.filterCandidates(&candidates, req, scope, oneTruncated)
}

// filterCandidates dereferences every candidate, re-filters it against the
// full tree and delivers the survivors.
//
// The re-filter runs even for index hits: the index may over-match under
// truncation, and intersect is allowed to hand back a superset.
func (e *Engine) filterCandidates(candidates *DNList, req *Request, scope filter.Scope, oneTruncated bool) (int, error) {
	// Resolve the storage keys up front: a delivery callback may modify an
	// indexed attribute and thereby mutate the very list we are walking
	// when it is hosted in the overlay.
	keys := make([][]byte, 0, len(candidates.IDs))
	var prev []byte
	for _, eid := range candidates.IDs {
		key, err := e.eidToRecordKey(eid)
		if err != nil {
			return 0, err
		}
		if e.GUIDMode() {
			// GUID lists are sorted, so equal neighbours are the same
			// entry twice: a truncated key or a forced duplicate.
			if prev != nil && bytes.Equal(prev, key) {
				continue
			}
			prev = key
		}
		keys = append(keys, key)
	}

	matched := 0
	for _, key := range keys {
		msg, err := e.fetchByKey(key)
		if errors.Is(err, domain.ErrKeyNotFound) {
			// The record can vanish mid-search when an earlier delivery
			// callback deleted it; we hold the read lock, so nobody else
			// did.
			continue
		}
		if err != nil {
			return matched, err
		}

		var ok bool
		if scope == filter.ScopeOneLevel && e.settings.OneLevel && !oneTruncated {
			// The one-level index is exact when untruncated; the scope
			// check is already paid for.
			ok, err = e.eval.Matches(msg, req.Tree)
		} else {
			ok, err = e.eval.MatchesScoped(msg, req.Tree, req.Base, scope)
		}
		if err != nil {
			return matched, err
		}
		if !ok {
			continue
		}

		if err := req.Callback(msg.Project(req.Attrs)); err != nil {
			return matched, err
		}
		matched++
	}
	return matched, nil
}
