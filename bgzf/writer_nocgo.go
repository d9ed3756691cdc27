//go:build !cgo

package bgzf

import (
	"io"

	"github.com/pkg/errors"
)

// NewWriterParams fails when compiled without cgo; the zlib-ng backend is
// unavailable and callers should use NewWriter instead.
func NewWriterParams(w io.Writer, level, uncompressedBlockSize, gzipStrategy int) (*Writer, error) {
	return nil, errors.New("bgzf: NewWriterParams requires a cgo build")
}
