package auheader

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bluenviron/rtpaac/pkg/liberrors"
)

var hbr = Lengths{
	SizeLength:       13,
	IndexLength:      3,
	IndexDeltaLength: 3,
}

var cases = []struct {
	name       string
	lengths    Lengths
	enc        []byte
	headers    []Header
	dataOffset int
}{
	{
		"single",
		hbr,
		[]byte{0x00, 0x10, 0x00, 0x48},
		[]Header{{Size: 9}},
		4,
	},
	{
		// RFC 3640 section 3.3.6, three AUs in a packet
		"aggregated",
		hbr,
		[]byte{0x00, 0x30, 0x00, 0x28, 0x00, 0x18, 0x00, 0x38},
		[]Header{{Size: 5}, {Size: 3}, {Size: 7}},
		8,
	},
	{
		"deltas",
		hbr,
		[]byte{0x00, 0x20, 0x00, 0x0a, 0x00, 0x0b},
		[]Header{{Size: 1, Index: 2}, {Size: 1, Index: 3}},
		6,
	},
	{
		"no index",
		Lengths{SizeLength: 13},
		[]byte{0x00, 0x1a, 0x00, 0x38, 0x02, 0x00},
		[]Header{{Size: 7}, {Size: 8}},
		6,
	},
	{
		"short fields",
		Lengths{SizeLength: 6, IndexLength: 2, IndexDeltaLength: 2},
		[]byte{0x00, 0x18, 0x0c, 0x10, 0x14},
		[]Header{{Size: 3}, {Size: 4}, {Size: 5}},
		5,
	},
	{
		"padding",
		Lengths{SizeLength: 13, IndexLength: 3, IndexDeltaLength: 0},
		[]byte{0x00, 0x1d, 0x00, 0x20, 0x00, 0x20},
		[]Header{{Size: 4}, {Size: 4}},
		6,
	},
}

func dataFor(headers []Header) []byte {
	n := 0
	for _, h := range headers {
		n += int(h.Size)
	}
	return make([]byte, n)
}

func TestUnmarshal(t *testing.T) {
	for _, ca := range cases {
		t.Run(ca.name, func(t *testing.T) {
			payload := append(append([]byte(nil), ca.enc...), dataFor(ca.headers)...)

			headers, dataOffset, err := Unmarshal(payload, ca.lengths)
			require.NoError(t, err)
			require.Equal(t, ca.headers, headers)
			require.Equal(t, ca.dataOffset, dataOffset)
		})
	}
}

func TestMarshal(t *testing.T) {
	for _, ca := range cases {
		t.Run(ca.name, func(t *testing.T) {
			enc, err := Marshal(ca.headers, ca.lengths)
			require.NoError(t, err)
			require.Equal(t, ca.enc, enc)
			require.Equal(t, len(ca.enc), ca.lengths.HeaderSectionSize(len(ca.headers)))
		})
	}
}

func TestUnmarshalRFC3640Boundaries(t *testing.T) {
	payload := []byte{
		0x00, 0x30, 0x00, 0x28, 0x00, 0x18, 0x00, 0x38,
		0x01, 0x02, 0x03, 0x04, 0x05,
		0x11, 0x12, 0x13,
		0x21, 0x22, 0x23, 0x24, 0x25, 0x26, 0x27,
	}

	headers, dataOffset, err := Unmarshal(payload, hbr)
	require.NoError(t, err)

	var aus [][]byte
	pos := dataOffset
	for _, h := range headers {
		aus = append(aus, payload[pos:pos+int(h.Size)])
		pos += int(h.Size)
	}

	require.Equal(t, [][]byte{
		{0x01, 0x02, 0x03, 0x04, 0x05},
		{0x11, 0x12, 0x13},
		{0x21, 0x22, 0x23, 0x24, 0x25, 0x26, 0x27},
	}, aus)
	require.Equal(t, []uint64{0, 1, 2}, hbr.AbsoluteIndexes(headers))
}

func TestUnmarshalErrors(t *testing.T) {
	for _, ca := range []struct {
		name    string
		payload []byte
		err     string
	}{
		{
			"empty",
			[]byte{},
			"malformed AU header: payload is too short",
		},
		{
			"zero headers length",
			[]byte{0x00, 0x00, 0x01},
			"malformed AU header: invalid AU-headers-length",
		},
		{
			"headers length exceeds packet",
			[]byte{0x00, 0x40, 0x00, 0x08},
			"malformed AU header: AU-headers-length (64) exceeds payload size (4)",
		},
		{
			"partial header",
			[]byte{0x00, 0x18, 0x00, 0x08, 0x00, 0x01},
			"malformed AU header: AU-headers-length (24) is not a multiple of AU-header size",
		},
		{
			"data overrun",
			[]byte{0x00, 0x10, 0x00, 0x48, 0x01, 0x02},
			"malformed AU header: AU data (9) exceeds payload size (2)",
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			_, _, err := Unmarshal(ca.payload, hbr)
			require.EqualError(t, err, ca.err)

			var malformed liberrors.ErrMalformedAUHeader
			require.True(t, errors.As(err, &malformed))
		})
	}
}

func TestLengthsValidate(t *testing.T) {
	require.NoError(t, hbr.Validate())
	require.Error(t, Lengths{}.Validate())
	require.Error(t, Lengths{SizeLength: 32}.Validate())
	require.Error(t, Lengths{SizeLength: 13, IndexLength: -1}.Validate())
	require.Error(t, Lengths{SizeLength: 13, IndexDeltaLength: 3}.Validate())
}

func TestMarshalErrors(t *testing.T) {
	_, err := Marshal(nil, hbr)
	require.EqualError(t, err, "at least one AU-header is needed")

	_, err = Marshal([]Header{{Size: 8192}}, hbr)
	require.EqualError(t, err, "access unit size (8192) is too big, maximum is 8191")

	_, err = Marshal([]Header{{Size: 1, Index: 8}}, hbr)
	require.EqualError(t, err, "AU-index (8) doesn't fit into 3 bits")
}

func FuzzUnmarshal(f *testing.F) {
	for _, ca := range cases {
		f.Add(ca.enc)
	}

	f.Fuzz(func(t *testing.T, payload []byte) {
		headers, dataOffset, err := Unmarshal(payload, hbr)
		if err != nil {
			return
		}

		n := 0
		for _, h := range headers {
			n += int(h.Size)
		}
		require.LessOrEqual(t, dataOffset+n, len(payload))
	})
}
