package index

import (
	"bytes"
	"sort"
)

// DNList is an ordered, duplicate-free list of entry identifiers: either
// casefolded DN bytes or raw 16-byte GUIDs. In GUID mode the identifiers
// are kept sorted ascending, which makes Find a binary search.
//
// Strict forbids the intersect shortcut that may keep identifiers not in
// the list. One-level results are strict: the search layer trusts them
// without re-checking scope, so over-reporting would be wrong.
type DNList struct {
	IDs    [][]byte
	Strict bool
}

// listFind returns the position of val in the list, or -1. GUID mode
// binary-searches; DN mode scans, as per-key lists are typically short.
func (e *Engine) listFind(list *DNList, val []byte) int {
	if e.GUIDMode() {
		i := sort.Search(len(list.IDs), func(i int) bool {
			return bytes.Compare(list.IDs[i], val) >= 0
		})
		if i < len(list.IDs) && bytes.Equal(list.IDs[i], val) {
			return i
		}
		return -1
	}
	for i, id := range list.IDs {
		if bytes.Equal(id, val) {
			return i
		}
	}
	return -1
}

// listSort sorts a DN-mode list so a merge can deduplicate. GUID-mode
// lists are already sorted.
func (e *Engine) listSort(list *DNList) {
	if len(list.IDs) < 2 || e.GUIDMode() {
		return
	}
	sort.Slice(list.IDs, func(i, j int) bool {
		return bytes.Compare(list.IDs[i], list.IDs[j]) < 0
	})
}

// listUnion merges list2 into list, deduplicating equal identifiers. Both
// inputs may be sorted in place, including lists owned by the overlay.
func (e *Engine) listUnion(list, list2 *DNList) {
	if len(list2.IDs) == 0 {
		// X | 0 == X
		return
	}
	if len(list.IDs) == 0 {
		// 0 | X == X
		list.IDs = list2.IDs
		return
	}

	e.listSort(list)
	e.listSort(list2)

	merged := make([][]byte, 0, len(list.IDs)+len(list2.IDs))
	i, j := 0, 0
	for i < len(list.IDs) || j < len(list2.IDs) {
		var cmp int
		switch {
		case i >= len(list.IDs):
			cmp = 1
		case j >= len(list2.IDs):
			cmp = -1
		default:
			cmp = bytes.Compare(list.IDs[i], list2.IDs[j])
		}
		switch {
		case cmp < 0:
			merged = append(merged, list.IDs[i])
			i++
		case cmp > 0:
			merged = append(merged, list2.IDs[j])
			j++
		default:
			// Equal: consume both, emit one.
			merged = append(merged, list.IDs[i])
			i++
			j++
		}
	}
	list.IDs = merged
}

// listIntersect computes list = list & list2, propagating Strict.
//
// When one side has fewer than 2 entries and the other more than 10, and
// neither is strict, the shorter side is returned unchanged: the index is
// allowed to over-match because every candidate is re-filtered against the
// full expression before delivery.
func (e *Engine) listIntersect(list *DNList, list2 *DNList) {
	if len(list.IDs) == 0 {
		// 0 & X == 0
		return
	}
	if len(list2.IDs) == 0 {
		// X & 0 == 0
		list.IDs = nil
		return
	}

	if len(list.IDs) < 2 && len(list2.IDs) > 10 && !list.Strict && !list2.Strict {
		return
	}
	if len(list2.IDs) < 2 && len(list.IDs) > 10 && !list.Strict && !list2.Strict {
		list.IDs = list2.IDs
		return
	}

	short, long := list, list2
	if len(list.IDs) > len(list2.IDs) {
		short, long = list2, list
	}

	out := make([][]byte, 0, len(short.IDs))
	for _, id := range short.IDs {
		if e.listFind(long, id) != -1 {
			out = append(out, id)
		}
	}

	list.Strict = list.Strict || list2.Strict
	list.IDs = out
}

// listInsertSorted inserts val at its sorted position, reporting whether
// an exactly equal identifier was already present. Capacity is padded to
// the next multiple of 8 to amortise repeated insertions.
func listInsertSorted(list *DNList, val []byte) (duplicate bool) {
	pos := sort.Search(len(list.IDs), func(i int) bool {
		return bytes.Compare(list.IDs[i], val) >= 0
	})
	duplicate = pos < len(list.IDs) && bytes.Equal(list.IDs[pos], val)

	ids := list.IDs
	if len(ids)+1 > cap(ids) {
		grown := make([][]byte, len(ids), ((len(ids)+1)+7)&^7)
		copy(grown, ids)
		ids = grown
	}
	ids = ids[:len(ids)+1]
	copy(ids[pos+1:], ids[pos:])
	ids[pos] = val
	list.IDs = ids
	return duplicate
}

// listRemoveAt removes the identifier at position i.
func listRemoveAt(list *DNList, i int) {
	list.IDs = append(list.IDs[:i], list.IDs[i+1:]...)
	if len(list.IDs) == 0 {
		list.IDs = nil
	}
}
