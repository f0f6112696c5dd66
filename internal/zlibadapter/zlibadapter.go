// Package zlibadapter decompresses IES and other zlib-compressed entry
// payloads pulled out of an IPF archive. It exists as a seam so the rest
// of the module never imports a compression library directly.
package zlibadapter

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// ErrDecompressFailed wraps any failure to inflate a payload, whether from
// a malformed zlib header or a truncated/corrupt stream.
var ErrDecompressFailed = errors.New("zlibadapter: decompress failed")

// Decompress inflates src, which must be a complete zlib stream, into a
// fresh buffer sized to hint (the entry's declared uncompressed size is a
// reasonable value; 0 is fine and just costs a few reallocations).
func Decompress(src []byte, hint int) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressFailed, err)
	}
	defer r.Close()

	var out bytes.Buffer
	if hint > 0 {
		out.Grow(hint)
	}
	if _, err := io.Copy(&out, r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressFailed, err)
	}
	return out.Bytes(), nil
}
