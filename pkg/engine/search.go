package engine

import (
	"errors"

	"github.com/adfharrison1/go-dirdb/pkg/dn"
	"github.com/adfharrison1/go-dirdb/pkg/domain"
	"github.com/adfharrison1/go-dirdb/pkg/filter"
	"github.com/adfharrison1/go-dirdb/pkg/index"
	"github.com/adfharrison1/go-dirdb/pkg/message"
)

// SearchRequest is one search against the database.
type SearchRequest struct {
	Base     *dn.DN
	Scope    filter.Scope
	Tree     *filter.Filter
	Attrs    []string
	Callback func(*message.Message) error
}

// Search answers a request, from the indexes when possible and by a full
// scan otherwise, and streams matches to the callback. It returns the
// number of delivered entries.
func (db *DB) Search(req *SearchRequest) (int, error) {
	scope := req.Scope
	if scope == filter.ScopeDefault {
		scope = filter.ScopeSubtree
	}

	if scope == filter.ScopeBase {
		return db.searchBase(req)
	}

	n, err := db.idx.SearchIndexed(&index.Request{
		Base:     req.Base,
		Scope:    scope,
		Tree:     req.Tree,
		Attrs:    req.Attrs,
		Callback: req.Callback,
	})
	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, domain.ErrNoSuchObject):
		return 0, nil
	case errors.Is(err, domain.ErrFullScanNeeded):
		return db.fullScan(req, scope)
	default:
		return n, err
	}
}

// searchBase answers a base-scope search directly from the DN index; the
// index engine proper never sees these.
func (db *DB) searchBase(req *SearchRequest) (int, error) {
	msg, err := db.Get(req.Base)
	if errors.Is(err, domain.ErrNoSuchObject) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	ok, err := db.idx.Evaluator().Matches(msg, req.Tree)
	if err != nil || !ok {
		return 0, err
	}
	if err := req.Callback(msg.Project(req.Attrs)); err != nil {
		return 0, err
	}
	return 1, nil
}

// fullScan walks every data record. The last resort when no index bounds
// the search.
func (db *DB) fullScan(req *SearchRequest, scope filter.Scope) (int, error) {
	matched := 0
	err := db.store.Iterate(func(key, val []byte) error {
		if message.IsSpecialKey(key) || !message.IsRecordKey(key) {
			return nil
		}
		msg, err := message.Unpack(val)
		if err != nil {
			return err
		}
		ok, err := db.idx.Evaluator().MatchesScoped(msg, req.Tree, req.Base, scope)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := req.Callback(msg.Project(req.Attrs)); err != nil {
			return err
		}
		matched++
		return nil
	})
	return matched, err
}
