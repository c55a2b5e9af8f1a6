package bits

import (
	mcbits "github.com/bluenviron/mediacommon/v2/pkg/bits"

	"github.com/bluenviron/rtpaac/pkg/liberrors"
)

// Writer writes bit fields of arbitrary size into a zeroed buffer.
type Writer struct {
	buf []byte
	pos int
}

// NewWriter allocates a Writer.
// The buffer must be zeroed.
func NewWriter(buf []byte) *Writer {
	return &Writer{buf: buf}
}

// WriteBits writes the N least significant bits of v, with 0 <= N <= 32.
func (w *Writer) WriteBits(v uint32, n int) error {
	remaining := len(w.buf)*8 - w.pos
	if n < 0 || n > MaxFieldSize || n > remaining {
		return liberrors.ErrOutOfRange{Requested: n, Remaining: remaining}
	}

	if n == 0 {
		return nil
	}

	mcbits.WriteBitsUnsafe(w.buf, &w.pos, uint64(v)&(1<<n-1), n)
	return nil
}

// Pos returns the cursor position, in bits.
func (w *Writer) Pos() int {
	return w.pos
}
