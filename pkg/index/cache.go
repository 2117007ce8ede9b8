package index

import (
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/adfharrison1/go-dirdb/pkg/domain"
	"github.com/adfharrison1/go-dirdb/pkg/message"
)

// Settings is the index configuration in force: the process configuration
// merged with the @INDEXLIST control record. Rebuilt at open and at
// reindex.
type Settings struct {
	// GUIDAttr is the entry-identifier attribute; empty means DN mode.
	GUIDAttr string

	// GUIDDNComponent is the DN extension tag carrying the GUID.
	GUIDDNComponent string

	// OneLevel maintains the parent->children family.
	OneLevel bool

	// idxAttrs is the @IDXATTR membership.
	idxAttrs map[string]bool
}

// AttributeIndexes reports whether any equality indexes are maintained.
func (e *Engine) AttributeIndexes() bool {
	return len(e.settings.idxAttrs) > 0 || e.cfg.Override != nil
}

// ReloadSettings re-reads @INDEXLIST and replaces the settings and the
// computed-key cache.
func (e *Engine) ReloadSettings() error {
	s := &Settings{
		GUIDAttr:        e.cfg.GUIDAttribute,
		GUIDDNComponent: e.cfg.GUIDDNComponent,
		OneLevel:        e.cfg.OneLevelIndexes,
		idxAttrs:        make(map[string]bool),
	}

	rec, err := e.fetchByKey([]byte(message.DNKeyPrefix + IndexListDN))
	if err != nil && !errors.Is(err, domain.ErrKeyNotFound) {
		return fmt.Errorf("failed to load %s: %w", IndexListDN, err)
	}
	if rec != nil {
		if v := rec.FirstString(AttrIdxGUID); v != "" {
			s.GUIDAttr = v
		}
		if v := rec.FirstString(AttrIdxDNGUID); v != "" {
			s.GUIDDNComponent = v
		}
		if rec.FindElement(AttrIdxOne) != nil {
			s.OneLevel = true
		}
		if el := rec.FindElement(AttrIdxAttr); el != nil {
			for _, v := range el.Values {
				s.idxAttrs[strings.ToLower(string(v))] = true
			}
		}
	}

	cache, err := lru.New[string, cachedKey](keyCacheSize)
	if err != nil {
		return fmt.Errorf("%w: key cache: %v", domain.ErrOperations, err)
	}

	e.settings = s
	e.keyCache = cache
	return nil
}

// isIndexed reports whether an attribute carries an equality index. The
// override hook wins over @IDXATTR membership.
func (e *Engine) isIndexed(attr string) bool {
	if e.cfg.Override != nil {
		if flags, ok := e.cfg.Override(attr); ok {
			return flags&domain.FlagIndexed != 0
		}
	}
	return e.settings.idxAttrs[strings.ToLower(attr)]
}

// attrFlags resolves the index flags of an attribute from the override
// hook and the schema.
func (e *Engine) attrFlags(attr string) domain.AttrFlags {
	if e.cfg.Override != nil {
		if flags, ok := e.cfg.Override(attr); ok {
			return flags
		}
	}
	return e.schema.AttributeByName(attr).Flags
}
