package index

import (
	"errors"
	"fmt"
	"log"

	"github.com/adfharrison1/go-dirdb/pkg/dn"
	"github.com/adfharrison1/go-dirdb/pkg/domain"
	"github.com/adfharrison1/go-dirdb/pkg/message"
	"github.com/adfharrison1/go-dirdb/pkg/schema"
)

// AddNew indexes a freshly stored entry: the DN->GUID mapping (GUID mode),
// the one-level mapping, then every indexed attribute value. Any failure
// unwinds the partial indexing with Delete before returning.
func (e *Engine) AddNew(msg *message.Message) error {
	if msg.DN.IsSpecial() {
		return nil
	}

	if err := e.writeIndexDNGUID(msg, true); err != nil {
		e.rollbackAdd(msg)
		return err
	}
	if err := e.indexOneLevel(msg, true); err != nil {
		e.rollbackAdd(msg)
		return err
	}
	if err := e.addAttrs(msg); err != nil {
		e.rollbackAdd(msg)
		return err
	}
	return nil
}

func (e *Engine) rollbackAdd(msg *message.Message) {
	// The caller may not be inside a transaction, so do not rely on a
	// transaction cleanup; scrub whatever made it in.
	if err := e.Delete(msg); err != nil {
		log.Printf("WARN: failed to unwind partial indexing of %s: %v", msg.DN, err)
	}
}

// Delete removes every index entry of a message.
func (e *Engine) Delete(msg *message.Message) error {
	if msg.DN.IsSpecial() {
		return nil
	}

	if err := e.indexOneLevel(msg, false); err != nil {
		return err
	}
	if err := e.writeIndexDNGUID(msg, false); err != nil {
		return err
	}
	if !e.AttributeIndexes() {
		return nil
	}
	for i := range msg.Elements {
		if err := e.DelElement(msg, &msg.Elements[i]); err != nil {
			return err
		}
	}
	return nil
}

// AddElement indexes the values of one new element. The caller guarantees
// the values are not yet indexed.
func (e *Engine) AddElement(msg *message.Message, el *message.Element) error {
	if msg.DN.IsSpecial() {
		return nil
	}
	if !e.isIndexed(el.Name) {
		return nil
	}
	return e.addEl(msg, el)
}

// DelElement removes the index entries of one element.
func (e *Engine) DelElement(msg *message.Message, el *message.Element) error {
	if msg.DN.IsSpecial() {
		return nil
	}
	if !e.isIndexed(el.Name) {
		return nil
	}
	for i := range el.Values {
		if err := e.DelValue(msg, el, i); err != nil {
			return err
		}
	}
	return nil
}

// addAttrs indexes every indexed attribute of the message.
func (e *Engine) addAttrs(msg *message.Message) error {
	if !e.AttributeIndexes() {
		return nil
	}
	for i := range msg.Elements {
		el := &msg.Elements[i]
		if !e.isIndexed(el.Name) {
			continue
		}
		if err := e.addEl(msg, el); err != nil {
			return fmt.Errorf("failed to index %s in %s: %w", el.Name, msg.DN, err)
		}
	}
	return nil
}

func (e *Engine) addEl(msg *message.Message, el *message.Element) error {
	for i := range el.Values {
		if err := e.add1(msg, el, i); err != nil {
			return err
		}
	}
	return nil
}

// add1 adds one (attribute, value) -> id entry, enforcing the uniqueness
// constraints.
func (e *Engine) add1(msg *message.Message, el *message.Element, vIdx int) error {
	key, truncated, a, err := e.indexKey(el.Name, el.Values[vIdx])
	if err != nil {
		return err
	}

	unique := el.Flags&message.FlagForceUniqueIndex != 0
	if a != nil && a.Flags&domain.FlagUniqueIndex != 0 {
		unique = true
	}
	if a != nil && e.cfg.Override != nil {
		if flags, ok := e.cfg.Override(el.Name); ok && flags&domain.FlagUniqueIndex != 0 {
			unique = true
		}
	}

	// A unique index cannot be enforced once the key is cut short: two
	// different values may share the truncated key.
	if truncated && unique {
		return fmt.Errorf("%w: unique index key on %s in %s exceeds maximum key length of %d (encoded)",
			domain.ErrConstraintViolation, el.Name, msg.DN, e.cfg.MaxKeyLength)
	}

	var list DNList
	if err := e.listLoad(key, &list); err != nil {
		return err
	}

	if len(list.IDs) > 0 && schema.AttrEqual(el.Name, AttrIdxDN) {
		if !truncated {
			// A duplicate DN creation attempt; perfectly normal, no
			// scary message needed.
			return domain.ErrConstraintViolation
		}
		// Truncation means several DNs can share this key, so pull the
		// records to see whether ours is really among them. Stale
		// entries whose record vanished are skipped.
		for _, eid := range list.IDs {
			rec, err := e.fetchByEid(eid)
			if errors.Is(err, domain.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if rec.DN.Equal(msg.DN) {
				return domain.ErrConstraintViolation
			}
		}
	}

	if len(list.IDs) > 0 && unique && !schema.AttrEqual(el.Name, AttrIdxDN) {
		// Never name the conflicting entry's DN in the user-visible
		// error; in GUID mode the log references it by GUID instead.
		if e.GUIDMode() {
			if guidStr, err := schema.SyntaxGUID.LdifWrite(list.IDs[0]); err == nil {
				log.Printf("WARN: unique index violation on %s in %s, conflicts with %s %s in %s",
					el.Name, msg.DN, e.settings.GUIDAttr, guidStr, key)
			}
		} else {
			log.Printf("WARN: unique index violation on %s in %s, conflicts with %s in %s",
				el.Name, msg.DN, string(list.IDs[0]), key)
		}
		return fmt.Errorf("%w: unique index violation on %s in %s",
			domain.ErrConstraintViolation, el.Name, msg.DN)
	}

	if !e.GUIDMode() {
		list.IDs = append(list.IDs, []byte(msg.DN.Casefold()))
	} else {
		eid, err := e.eidForMessage(msg)
		if err != nil {
			return err
		}
		if listInsertSorted(&list, eid) && !truncated {
			// A duplicate value on a multi-valued attribute can be
			// forced in by a caller; warn rather than fail.
			if guidStr, err := schema.SyntaxGUID.LdifWrite(eid); err == nil {
				log.Printf("WARN: duplicate attribute value in %s for index on %s, duplicate of %s %s in %s",
					msg.DN, el.Name, e.settings.GUIDAttr, guidStr, key)
			}
		}
	}

	return e.listStore(key, &list)
}

// DelValue removes the index entry of one value of one element.
func (e *Engine) DelValue(msg *message.Message, el *message.Element, vIdx int) error {
	if msg.DN.IsSpecial() {
		return nil
	}

	key, _, _, err := e.indexKey(el.Name, el.Values[vIdx])
	if err != nil {
		return err
	}

	var list DNList
	if err := e.listLoad(key, &list); err != nil {
		return err
	}
	if len(list.IDs) == 0 {
		// It was never indexed; any earlier bookkeeping is gone now.
		return nil
	}

	i, err := e.findMsgInList(&list, msg)
	if err != nil {
		return err
	}
	if i == -1 {
		return nil
	}
	listRemoveAt(&list, i)

	return e.listStore(key, &list)
}

// findMsgInList locates the identifier of msg in a list, or -1.
func (e *Engine) findMsgInList(list *DNList, msg *message.Message) (int, error) {
	eid, err := e.eidForMessage(msg)
	if err != nil {
		return -1, err
	}
	return e.listFind(list, eid), nil
}

// modifyIndexDN adds or removes a DN-keyed entry in one of the
// synthesised families (@IDXONE, @IDXDN).
func (e *Engine) modifyIndexDN(msg *message.Message, d *dn.DN, family string, add bool) error {
	el := message.Element{Name: family, Values: [][]byte{[]byte(d.Casefold())}}
	var err error
	if add {
		err = e.add1(msg, &el, 0)
	} else {
		err = e.DelValue(msg, &el, 0)
	}
	if err != nil {
		return fmt.Errorf("failed to modify %s against %s: %w", family, d, err)
	}
	return nil
}

// indexOneLevel maintains the parent->children family, when enabled.
func (e *Engine) indexOneLevel(msg *message.Message, add bool) error {
	if !e.settings.OneLevel {
		return nil
	}
	pdn := msg.DN.Parent()
	if pdn == nil {
		return fmt.Errorf("%w: entry %s has no parent", domain.ErrOperations, msg.DN)
	}
	return e.modifyIndexDN(msg, pdn, AttrIdxOne, add)
}

// writeIndexDNGUID maintains the DN->GUID family, only in GUID mode. A
// collision surfaces as ErrEntryAlreadyExists.
func (e *Engine) writeIndexDNGUID(msg *message.Message, add bool) error {
	if !e.GUIDMode() {
		return nil
	}
	err := e.modifyIndexDN(msg, msg.DN, AttrIdxDN, add)
	if errors.Is(err, domain.ErrConstraintViolation) {
		return fmt.Errorf("%w: entry %s already exists", domain.ErrEntryAlreadyExists, msg.DN)
	}
	return err
}
