// Package bits contains a reader and a writer of big-endian bit fields.
package bits

import (
	mcbits "github.com/bluenviron/mediacommon/v2/pkg/bits"

	"github.com/bluenviron/rtpaac/pkg/liberrors"
)

// MaxFieldSize is the maximum size of a field, in bits.
const MaxFieldSize = 32

// Reader reads bit fields of arbitrary size from a buffer.
type Reader struct {
	buf []byte
	pos int
}

// NewReader allocates a Reader.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// ReadBits reads N bits, with 0 <= N <= 32.
// In case of error, the cursor is not moved.
func (r *Reader) ReadBits(n int) (uint32, error) {
	if n < 0 || n > MaxFieldSize || n > r.BitsRemaining() {
		return 0, liberrors.ErrOutOfRange{Requested: n, Remaining: r.BitsRemaining()}
	}

	if n == 0 {
		return 0, nil
	}

	pos := r.pos
	v, err := mcbits.ReadBits(r.buf, &pos, n)
	if err != nil {
		return 0, liberrors.ErrOutOfRange{Requested: n, Remaining: r.BitsRemaining()}
	}

	r.pos = pos
	return uint32(v), nil
}

// BitsRemaining returns the number of unread bits.
func (r *Reader) BitsRemaining() int {
	return len(r.buf)*8 - r.pos
}

// Pos returns the cursor position, in bits.
func (r *Reader) Pos() int {
	return r.pos
}
