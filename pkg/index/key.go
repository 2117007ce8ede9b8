package index

import (
	"encoding/base64"
	"fmt"
	"math"
	"strings"

	"github.com/adfharrison1/go-dirdb/pkg/domain"
	"github.com/adfharrison1/go-dirdb/pkg/schema"
)

// cachedKey is a memoised indexKey result. Failures are not cached.
type cachedKey struct {
	key       string
	truncated bool
}

// The storage layer wraps an index DN in "DN=" plus a terminator; reserve
// those four bytes when judging the key against the store's cap.
const (
	additionalKeyLength = 4
	minKeyData          = 1
)

func (e *Engine) maxKeyLength() int {
	if e.cfg.MaxKeyLength == 0 {
		return math.MaxInt32
	}
	return e.cfg.MaxKeyLength
}

// indexKey derives the DN of the index record for an (attribute, value)
// pair, applying canonicalisation, the base64 decision and the key-length
// cap. Truncated keys move into a separate '#'-delimited namespace so they
// can never collide with an untruncated key whose value happens to equal
// the truncated prefix.
//
//	@INDEX:<ATTR>:<VALUE>          untruncated, raw
//	@INDEX:<ATTR>::<B64>           untruncated, base64
//	@INDEX#<ATTR>#<VALUE-PREFIX>   truncated, raw
//	@INDEX#<ATTR>##<B64-PREFIX>    truncated, base64
//
// The returned attribute is nil for '@' attributes, which bypass the
// schema entirely.
func (e *Engine) indexKey(attr string, value []byte) (key string, truncated bool, a *schema.Attribute, err error) {
	var attrForDN string
	var v []byte

	if strings.HasPrefix(attr, "@") {
		attrForDN = attr
		v = value
	} else {
		attrForDN = strings.ToUpper(attr)
		a = e.schema.AttributeByName(attr)

		cacheID := attrForDN + "\x00" + string(value)
		if hit, ok := e.keyCache.Get(cacheID); ok {
			return hit.key, hit.truncated, a, nil
		}
		defer func() {
			if err == nil {
				e.keyCache.Add(cacheID, cachedKey{key: key, truncated: truncated})
			}
		}()

		v, err = a.Syntax.Canonicalise(value)
		if err != nil {
			return "", false, nil, fmt.Errorf("failed to create index key for attribute %q: %w", attr, err)
		}
	}

	maxLen := e.maxKeyLength()
	indxLen := len(IndexPrefix)

	// Even an empty value needs the prefix, the separators, the wrapper
	// and one byte of data; an attribute long enough to squeeze those out
	// can never fit.
	minKeyLength := additionalKeyLength + indxLen + 3 + minKeyData
	if maxLen < minKeyLength+len(attrForDN) {
		return "", false, nil, fmt.Errorf("%w: max key length %d is too small for attribute %q",
			domain.ErrOperations, maxLen, attr)
	}
	maxLen -= additionalKeyLength

	var b64 bool
	if e.GUIDMode() && (attr == AttrIdxDN || attr == AttrIdxOne) {
		// DN values in these families are already casefolded and
		// linearized; that is safe enough for a key.
		b64 = false
	} else {
		b64 = schema.ShouldBase64(v)
	}

	if b64 {
		vstr := base64.StdEncoding.EncodeToString(v)
		keyLen := 3 + indxLen + len(attrForDN) + len(vstr)
		if keyLen > maxLen {
			frmt := len(vstr) - (keyLen - maxLen)
			// The double hash is not a typo: it marks the prefix as
			// base64, mirroring the double colon below.
			return IndexPrefix + "#" + attrForDN + "##" + vstr[:frmt], true, a, nil
		}
		// The double colon is not a typo: it marks the value as base64.
		return IndexPrefix + ":" + attrForDN + "::" + vstr, false, a, nil
	}

	keyLen := 2 + indxLen + len(attrForDN) + len(v)
	if keyLen > maxLen {
		frmt := len(v) - (keyLen - maxLen)
		return IndexPrefix + "#" + attrForDN + "#" + string(v[:frmt]), true, a, nil
	}
	return IndexPrefix + ":" + attrForDN + ":" + string(v), false, a, nil
}
