package message

import (
	"bytes"

	"github.com/adfharrison1/go-dirdb/pkg/dn"
	"github.com/adfharrison1/go-dirdb/pkg/domain"
)

// Storage-key prefixes for data records.
const (
	DNKeyPrefix   = "DN="
	GUIDKeyPrefix = "GUID="
)

// GUIDKeySize is the full length of a GUID-form storage key.
const GUIDKeySize = len(GUIDKeyPrefix) + domain.GUIDSize

// KeyForDN derives the DN-form storage key: "DN=" plus the casefold of the
// DN. Special '@' names fold verbatim, so index-record keys keep their
// value bytes untouched.
func KeyForDN(d *dn.DN) []byte {
	return []byte(DNKeyPrefix + d.Casefold())
}

// KeyForGUID derives the GUID-form storage key from 16 raw GUID bytes.
func KeyForGUID(guid []byte) []byte {
	key := make([]byte, 0, GUIDKeySize)
	key = append(key, GUIDKeyPrefix...)
	return append(key, guid...)
}

// IsRecordKey reports whether a storage key addresses a data record (as
// opposed to internal bookkeeping).
func IsRecordKey(key []byte) bool {
	return bytes.HasPrefix(key, []byte(DNKeyPrefix)) ||
		bytes.HasPrefix(key, []byte(GUIDKeyPrefix))
}

// IsSpecialKey reports whether a storage key addresses an '@' record
// (control records and index records).
func IsSpecialKey(key []byte) bool {
	return bytes.HasPrefix(key, []byte(DNKeyPrefix+"@"))
}
