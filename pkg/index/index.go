// Package index implements the secondary-index engine of go-dirdb: the
// candidate-list planner for filter trees, the per-(attribute,value) index
// records with their two on-disk formats, the one-level and DN->GUID index
// families, the transactional write overlay and the full reindex.
package index

import (
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/adfharrison1/go-dirdb/pkg/dn"
	"github.com/adfharrison1/go-dirdb/pkg/domain"
	"github.com/adfharrison1/go-dirdb/pkg/filter"
	"github.com/adfharrison1/go-dirdb/pkg/message"
	"github.com/adfharrison1/go-dirdb/pkg/schema"
)

// Names of the synthesised records and attributes. These are on-disk
// format; the literals must never change.
const (
	IndexPrefix = "@INDEX"
	IndexListDN = "@INDEXLIST"
	BaseInfoDN  = "@BASEINFO"

	AttrIdx        = "@IDX"
	AttrIdxVersion = "@IDXVERSION"
	AttrIdxAttr    = "@IDXATTR"
	AttrIdxOne     = "@IDXONE"
	AttrIdxDN      = "@IDXDN"
	AttrIdxGUID    = "@IDXGUID"
	AttrIdxDNGUID  = "@IDX_DN_GUID"

	// dnListVersion is the legacy DN-list record format.
	dnListVersion = 2
	// guidListVersion is the GUID-packed record format.
	guidListVersion = 3
)

const keyCacheSize = 4096

// Engine is the index engine over one backing store. It performs no
// locking of its own; callers serialise writers.
type Engine struct {
	store    domain.KvStore
	schema   *schema.Schema
	cfg      domain.Config
	settings *Settings
	eval     *filter.Evaluator

	// txn is the open transactional overlay, nil outside a transaction.
	txn *Txn

	// keyCache memoises computed index keys for (attribute, value) pairs.
	// Entries depend only on the schema and the mode, so the cache is
	// replaced whenever the settings reload.
	keyCache *lru.Cache[string, cachedKey]
}

// NewEngine builds an engine and loads the index settings from the
// @INDEXLIST control record (merged with cfg).
func NewEngine(store domain.KvStore, sch *schema.Schema, cfg domain.Config) (*Engine, error) {
	e := &Engine{
		store:  store,
		schema: sch,
		cfg:    cfg,
		eval:   filter.NewEvaluator(sch),
	}
	if err := e.ReloadSettings(); err != nil {
		return nil, err
	}
	return e, nil
}

// Settings returns the active index settings.
func (e *Engine) Settings() *Settings { return e.settings }

// Evaluator returns the engine's filter evaluator.
func (e *Engine) Evaluator() *filter.Evaluator { return e.eval }

// GUIDMode reports whether entry identifiers are GUIDs rather than DNs.
func (e *Engine) GUIDMode() bool { return e.settings.GUIDAttr != "" }

// eidToRecordKey turns an entry identifier into the storage key of its
// data record.
func (e *Engine) eidToRecordKey(eid []byte) ([]byte, error) {
	if e.GUIDMode() {
		if len(eid) != domain.GUIDSize {
			return nil, fmt.Errorf("%w: index entry has length %d, want %d",
				domain.ErrCorruptedIndex, len(eid), domain.GUIDSize)
		}
		return message.KeyForGUID(eid), nil
	}
	return []byte(message.DNKeyPrefix + strings.ToUpper(string(eid))), nil
}

// fetchByEid loads and unpacks the data record behind an entry identifier.
func (e *Engine) fetchByEid(eid []byte) (*message.Message, error) {
	key, err := e.eidToRecordKey(eid)
	if err != nil {
		return nil, err
	}
	return e.fetchByKey(key)
}

func (e *Engine) fetchByKey(key []byte) (*message.Message, error) {
	raw, err := e.store.Get(key)
	if err != nil {
		return nil, err
	}
	msg, err := message.Unpack(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCorruptedIndex, err)
	}
	return msg, nil
}

// eidForMessage derives the entry identifier of a message: its casefolded
// DN in DN mode, the canonical GUID attribute value in GUID mode.
func (e *Engine) eidForMessage(msg *message.Message) ([]byte, error) {
	if !e.GUIDMode() {
		return []byte(msg.DN.Casefold()), nil
	}
	raw := msg.FirstValue(e.settings.GUIDAttr)
	if raw == nil {
		return nil, fmt.Errorf("%w: entry %s has no %s value",
			domain.ErrOperations, msg.DN, e.settings.GUIDAttr)
	}
	guid, err := schema.SyntaxGUID.Canonicalise(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: entry %s: %v", domain.ErrOperations, msg.DN, err)
	}
	return guid, nil
}

// RecordKeyForMessage derives the storage key a data record should live
// under in the current mode.
func (e *Engine) RecordKeyForMessage(msg *message.Message) ([]byte, error) {
	if msg.DN.IsSpecial() {
		return message.KeyForDN(msg.DN), nil
	}
	if e.GUIDMode() {
		eid, err := e.eidForMessage(msg)
		if err != nil {
			return nil, err
		}
		return message.KeyForGUID(eid), nil
	}
	return message.KeyForDN(msg.DN), nil
}

// DNToRecordKey resolves a base DN to the storage key of its record,
// consulting the DN index in GUID mode. Returns ErrNoSuchObject when no
// entry has that DN.
func (e *Engine) DNToRecordKey(base *dn.DN) ([]byte, error) {
	if base.IsSpecial() || !e.GUIDMode() {
		return message.KeyForDN(base), nil
	}

	list, truncated, err := e.baseDNLookup(base)
	if err != nil {
		return nil, err
	}
	if len(list.IDs) == 0 {
		return nil, domain.ErrNoSuchObject
	}

	if len(list.IDs) > 1 && !truncated {
		return nil, fmt.Errorf("%w: DN index for %s has %d values",
			domain.ErrConstraintViolation, base, len(list.IDs))
	}

	idx := 0
	if truncated {
		// The key was truncated, so several DNs may share it; inspect the
		// actual records to find ours.
		idx = -1
		for i, eid := range list.IDs {
			rec, err := e.fetchByEid(eid)
			if errors.Is(err, domain.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			if rec.DN.Equal(base) {
				idx = i
				break
			}
		}
		if idx == -1 {
			return nil, domain.ErrNoSuchObject
		}
	}
	return e.eidToRecordKey(list.IDs[idx])
}
