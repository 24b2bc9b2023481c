package connector

import (
	"encoding/base64"
	"encoding/binary"

	"github.com/spaolacci/murmur3"

	"github.com/partcat/partcat/internal/errors"
	"github.com/partcat/partcat/internal/filter/parser"
	"github.com/partcat/partcat/pkg/types"
)

const tokenVersion byte = 1

// PageTokenCodec encodes continuation tokens. A token carries the offset of
// the next page and a fingerprint of the query it belongs to, so a token
// replayed against a different table, filter or sort is rejected instead of
// silently returning the wrong page.
type PageTokenCodec struct {
	version byte
}

// DefaultTokenCodec is the codec shared by all connectors.
var DefaultTokenCodec = PageTokenCodec{version: tokenVersion}

// Encode returns the token for the page starting at offset.
func (c PageTokenCodec) Encode(fingerprint uint64, offset int) string {
	buf := make([]byte, 1+binary.MaxVarintLen64+8)
	buf[0] = c.version
	n := 1 + binary.PutUvarint(buf[1:], uint64(offset))
	binary.BigEndian.PutUint64(buf[n:], fingerprint)
	return base64.RawURLEncoding.EncodeToString(buf[:n+8])
}

// Decode returns the offset stored in token after checking that it was
// issued for the same query.
func (c PageTokenCodec) Decode(token string, fingerprint uint64) (int, error) {
	buf, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(buf) < 1+1+8 {
		return 0, invalidToken("malformed continuation token")
	}
	if buf[0] != c.version {
		return 0, invalidToken("unsupported continuation token version")
	}
	offset, n := binary.Uvarint(buf[1:])
	if n <= 0 || len(buf) != 1+n+8 || offset > uint64(maxOffset) {
		return 0, invalidToken("malformed continuation token")
	}
	if binary.BigEndian.Uint64(buf[1+n:]) != fingerprint {
		return 0, invalidToken("continuation token does not belong to this query")
	}
	return int(offset), nil
}

const maxOffset = int(^uint(0) >> 1)

func invalidToken(msg string) error {
	return errors.NewValidationError(errors.CodeInvalidPageToken, msg)
}

// Fingerprint identifies a query for continuation tokens: same table, same
// canonical filter and same sort give the same value.
func Fingerprint(table types.QualifiedName, expr parser.Expression, sort types.Sort) uint64 {
	h := murmur3.New64()
	for _, part := range []string{table.Table().String(), parser.Format(expr), sort.Field, string(sort.Order)} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

// Paginate returns the window of items selected by r's offset and limit.
// items must already be filtered and sorted.
func Paginate[T any](r *Request, items []T) *types.Page[T] {
	start := r.Offset
	if start > len(items) {
		start = len(items)
	}
	end := len(items)
	if r.Limit > 0 && r.Limit < end-start {
		end = start + r.Limit
	}
	window := make([]T, end-start)
	copy(window, items[start:end])
	return NextPage(r, window, end < len(items))
}

// NextPage wraps a window that starts at r.Offset. more reports whether
// anything follows the window, typically found by fetching limit+1 rows.
func NextPage[T any](r *Request, window []T, more bool) *types.Page[T] {
	if window == nil {
		window = []T{}
	}
	page := &types.Page[T]{Items: window}
	if more {
		page.NextToken = DefaultTokenCodec.Encode(r.fingerprint, r.Offset+len(window))
	}
	return page
}

// MapPage converts the items of a page, keeping its continuation token.
func MapPage[T, U any](page *types.Page[T], f func(T) U) *types.Page[U] {
	out := &types.Page[U]{Items: make([]U, len(page.Items)), NextToken: page.NextToken}
	for i, item := range page.Items {
		out.Items[i] = f(item)
	}
	return out
}
