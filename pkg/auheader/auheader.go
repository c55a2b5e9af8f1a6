// Package auheader contains functions to read and write the AU-header section
// of RTP/MPEG-4 generic payloads.
// Specification: https://datatracker.ietf.org/doc/html/rfc3640#section-3.2.1
package auheader

import (
	"fmt"

	"github.com/bluenviron/rtpaac/pkg/bits"
	"github.com/bluenviron/rtpaac/pkg/liberrors"
)

// size of the AU-headers-length field, in bytes.
const headersLengthSize = 2

// Lengths contains the size, in bits, of AU-header fields.
type Lengths struct {
	// The number of bits in which the AU-size field is encoded in the AU-header.
	SizeLength int
	// The number of bits in which the AU-Index is encoded in the first AU-header.
	IndexLength int
	// The number of bits in which the AU-Index-delta field is encoded in any non-first AU-header.
	IndexDeltaLength int
}

// Validate checks the lengths.
func (l Lengths) Validate() error {
	if l.SizeLength <= 0 || l.SizeLength > bits.MaxFieldSize-1 {
		return fmt.Errorf("invalid SizeLength: %d", l.SizeLength)
	}

	if l.IndexLength < 0 || l.IndexLength > bits.MaxFieldSize-1 {
		return fmt.Errorf("invalid IndexLength: %d", l.IndexLength)
	}

	if l.IndexDeltaLength < 0 || l.IndexDeltaLength > bits.MaxFieldSize-1 {
		return fmt.Errorf("invalid IndexDeltaLength: %d", l.IndexDeltaLength)
	}

	if l.IndexLength == 0 && l.IndexDeltaLength != 0 {
		return fmt.Errorf("IndexDeltaLength must be zero when IndexLength is zero")
	}

	return nil
}

// headerSize returns the size of the i-th header, in bits.
func (l Lengths) headerSize(i int) int {
	if i == 0 {
		return l.SizeLength + l.IndexLength
	}
	return l.SizeLength + l.IndexDeltaLength
}

// HeaderSectionSize returns the size in bytes of AU-headers-length
// plus a section of n AU-headers, padding included.
func (l Lengths) HeaderSectionSize(n int) int {
	le := 0
	for i := 0; i < n; i++ {
		le += l.headerSize(i)
	}
	return headersLengthSize + bytesFor(le)
}

// MaxSize returns the maximum AU size that can be encoded in the AU-size field.
func (l Lengths) MaxSize() int {
	return 1<<l.SizeLength - 1
}

// AbsoluteIndexes resolves AU-Index-delta fields into AU indexes.
// The first index is the AU-Index of the first header;
// each subsequent index is the previous one plus the delta plus one.
func (l Lengths) AbsoluteIndexes(headers []Header) []uint64 {
	ret := make([]uint64, len(headers))
	for i, h := range headers {
		if i == 0 {
			ret[i] = uint64(h.Index)
		} else {
			ret[i] = ret[i-1] + uint64(h.Index) + 1
		}
	}
	return ret
}

func bytesFor(bitCount int) int {
	n := bitCount / 8
	if (bitCount % 8) != 0 {
		n++
	}
	return n
}

// Header is an AU-header.
type Header struct {
	// size of the AU, in bytes.
	Size uint32

	// AU-Index in the first header, AU-Index-delta in the others.
	Index uint32
}

func malformed(format string, args ...interface{}) error {
	return liberrors.ErrMalformedAUHeader{Err: fmt.Errorf(format, args...)}
}

// Unmarshal decodes the AU-headers-length field and the AU-header section of a payload.
// It returns the headers and the offset at which AU data begins.
func Unmarshal(payload []byte, l Lengths) ([]Header, int, error) {
	err := l.Validate()
	if err != nil {
		return nil, 0, err
	}

	if len(payload) < headersLengthSize {
		return nil, 0, malformed("payload is too short")
	}

	// AU-headers-length (16 bits)
	headersLen := int(uint16(payload[0])<<8 | uint16(payload[1]))
	if headersLen == 0 {
		return nil, 0, malformed("invalid AU-headers-length")
	}

	dataOffset := headersLengthSize + bytesFor(headersLen)
	if dataOffset > len(payload) {
		return nil, 0, malformed("AU-headers-length (%d) exceeds payload size (%d)",
			headersLen, len(payload))
	}

	count := 0
	for i := 0; i < headersLen; count++ {
		i += l.headerSize(count)
		if i > headersLen {
			return nil, 0, malformed("AU-headers-length (%d) is not a multiple of AU-header size",
				headersLen)
		}
	}

	r := bits.NewReader(payload[headersLengthSize:dataOffset])
	headers := make([]Header, count)
	dataLen := 0

	for i := range headers {
		size, err := r.ReadBits(l.SizeLength)
		if err != nil {
			return nil, 0, liberrors.ErrMalformedAUHeader{Err: err}
		}

		indexLen := l.IndexDeltaLength
		if i == 0 {
			indexLen = l.IndexLength
		}

		index, err := r.ReadBits(indexLen)
		if err != nil {
			return nil, 0, liberrors.ErrMalformedAUHeader{Err: err}
		}

		headers[i] = Header{Size: size, Index: index}
		dataLen += int(size)
	}

	if dataLen > (len(payload) - dataOffset) {
		return nil, 0, malformed("AU data (%d) exceeds payload size (%d)",
			dataLen, len(payload)-dataOffset)
	}

	return headers, dataOffset, nil
}

// Marshal encodes the AU-headers-length field and the AU-header section.
func Marshal(headers []Header, l Lengths) ([]byte, error) {
	err := l.Validate()
	if err != nil {
		return nil, err
	}

	if len(headers) == 0 {
		return nil, fmt.Errorf("at least one AU-header is needed")
	}

	headersLen := 0
	for i := range headers {
		headersLen += l.headerSize(i)
	}

	if headersLen > 0xFFFF {
		return nil, fmt.Errorf("AU-header section is too big")
	}

	buf := make([]byte, headersLengthSize+bytesFor(headersLen))

	// AU-headers-length
	buf[0] = byte(headersLen >> 8)
	buf[1] = byte(headersLen)

	// AU-headers
	w := bits.NewWriter(buf[headersLengthSize:])

	for i, h := range headers {
		if int(h.Size) > l.MaxSize() {
			return nil, liberrors.ErrPayloadTooLarge{Size: int(h.Size), MaxSize: l.MaxSize()}
		}

		err = w.WriteBits(h.Size, l.SizeLength)
		if err != nil {
			return nil, err
		}

		indexLen := l.IndexDeltaLength
		if i == 0 {
			indexLen = l.IndexLength
		}

		if indexLen < bits.MaxFieldSize && uint64(h.Index) >= 1<<indexLen {
			return nil, fmt.Errorf("AU-index (%d) doesn't fit into %d bits", h.Index, indexLen)
		}

		err = w.WriteBits(h.Index, indexLen)
		if err != nil {
			return nil, err
		}
	}

	return buf, nil
}
