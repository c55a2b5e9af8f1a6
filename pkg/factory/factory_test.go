package factory

import (
	"errors"
	"fmt"
	"testing"

	"github.com/pion/rtp"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/bluenviron/rtpaac/pkg/codec"
	"github.com/bluenviron/rtpaac/pkg/format"
	"github.com/bluenviron/rtpaac/pkg/liberrors"
	"github.com/bluenviron/rtpaac/pkg/negotiator"
)

const samplesPerAU = 1024

// stores the first sample of a frame into a 1-byte access unit.
type sampleCodec struct {
	channels int
}

func (c *sampleCodec) Decode(au []byte) ([]int16, error) {
	if len(au) != 1 {
		return nil, fmt.Errorf("invalid access unit")
	}
	frame := make([]int16, c.channels*samplesPerAU)
	for i := range frame {
		frame[i] = int16(au[0])
	}
	return frame, nil
}

func (c *sampleCodec) Encode(pcm []int16) ([]byte, error) {
	if len(pcm) != c.channels*samplesPerAU {
		return nil, fmt.Errorf("invalid frame size")
	}
	return []byte{byte(pcm[0])}, nil
}

var testCapability = negotiator.Capability{
	ObjectType:       2,
	Mode:             format.ModeAACHbr,
	SizeLength:       13,
	IndexLength:      3,
	IndexDeltaLength: 3,
	ClockRates:       negotiator.Range{Min: 8000, Max: 48000},
	Channels:         negotiator.Range{Min: 1, Max: 2},
}

func sampleEntry() Entry {
	return Entry{
		Name:       "sample",
		Capability: testCapability,
		NewDecoder: func(f *format.MPEG4AudioGeneric) (codec.Decoder, error) {
			return &sampleCodec{channels: f.ChannelCount}, nil
		},
		NewEncoder: func(f *format.MPEG4AudioGeneric) (codec.Encoder, error) {
			return &sampleCodec{channels: f.ChannelCount}, nil
		},
	}
}

func newRegistry(t *testing.T) *Registry {
	logger, _ := test.NewNullLogger()
	r := &Registry{Log: logger}
	err := r.Register(sampleEntry())
	require.NoError(t, err)
	return r
}

func testFormat(t *testing.T) *format.MPEG4AudioGeneric {
	f, err := format.ParseFMTP(96, "streamType=5;profile-level-id=1;mode=AAC-hbr;objectType=2;"+
		"samplingFrequency=44100;channelCount=2;sizelength=13;indexlength=3;indexdeltalength=3")
	require.NoError(t, err)
	return f
}

func filled(v int16, n int) []int16 {
	frame := make([]int16, n)
	for i := range frame {
		frame[i] = v
	}
	return frame
}

func TestRegister(t *testing.T) {
	r := newRegistry(t)

	err := r.Register(sampleEntry())
	require.EqualError(t, err, "codec 'sample' is already registered")

	err = r.Register(Entry{Name: "empty"})
	require.EqualError(t, err, "codec 'empty' has neither a decoder nor an encoder")

	err = r.Register(Entry{})
	require.EqualError(t, err, "codec name not provided")

	mono := sampleEntry()
	mono.Name = "mono"
	mono.Capability.Channels = negotiator.Range{Min: 1, Max: 1}
	mono.NewEncoder = nil
	err = r.Register(mono)
	require.NoError(t, err)

	require.Equal(t, []negotiator.Capability{testCapability, mono.Capability}, r.Capabilities())
	require.Equal(t, &negotiator.Negotiator{
		Capabilities: []negotiator.Capability{testCapability, mono.Capability},
	}, r.Negotiator())
}

func TestCreateNoCompatibleFormat(t *testing.T) {
	r := newRegistry(t)

	f := testFormat(t)
	f.SampleRate = 96000

	_, err := r.CreateDecoder(f)
	var noCompat liberrors.ErrNoCompatibleFormat
	require.True(t, errors.As(err, &noCompat))

	_, err = r.CreateEncoder(f)
	require.True(t, errors.As(err, &noCompat))

	empty := &Registry{}
	_, err = empty.CreateDecoder(testFormat(t))
	require.EqualError(t, err, "no compatible format: no registered decoder supports mpeg4-generic/44100/2")
}

func TestCreatePrimitiveError(t *testing.T) {
	logger, _ := test.NewNullLogger()
	r := &Registry{Log: logger}

	err := r.Register(Entry{
		Name:       "broken",
		Capability: testCapability,
		NewDecoder: func(*format.MPEG4AudioGeneric) (codec.Decoder, error) {
			return nil, fmt.Errorf("license expired")
		},
	})
	require.NoError(t, err)

	_, err = r.CreateDecoder(testFormat(t))
	require.EqualError(t, err, "unable to decode access unit: license expired")

	_, err = r.CreateEncoder(testFormat(t))
	require.Error(t, err)
}

func TestEncodeDecode(t *testing.T) {
	r := newRegistry(t)
	f := testFormat(t)

	enc, err := r.CreateEncoder(f)
	require.NoError(t, err)
	require.Equal(t, "sample", enc.Codec)

	dec, err := r.CreateDecoder(f)
	require.NoError(t, err)

	frames := [][]int16{
		filled(1, 2*samplesPerAU),
		filled(2, 2*samplesPerAU),
		filled(3, 2*samplesPerAU),
	}

	pkts, err := enc.Encode(frames)
	require.NoError(t, err)
	require.Len(t, pkts, 1)
	require.Equal(t, uint8(96), pkts[0].PayloadType)

	decoded, err := dec.Decode(pkts[0])
	require.NoError(t, err)
	require.Equal(t, frames, decoded)

	// next packet continues the AU sequence
	pkts2, err := enc.Encode(frames[:1])
	require.NoError(t, err)
	require.Equal(t, pkts[0].Timestamp+3*samplesPerAU, pkts2[0].Timestamp)
	require.Equal(t, pkts[0].SequenceNumber+1, pkts2[0].SequenceNumber)
}

func TestEncodeError(t *testing.T) {
	r := newRegistry(t)
	f := testFormat(t)

	enc, err := r.CreateEncoder(f)
	require.NoError(t, err)

	dec, err := r.CreateDecoder(f)
	require.NoError(t, err)

	pkts, err := enc.Encode([][]int16{
		filled(1, 2*samplesPerAU),
		filled(2, 10),
		filled(3, 2*samplesPerAU),
	})
	var encodeErr liberrors.ErrEncode
	require.True(t, errors.As(err, &encodeErr))
	require.Len(t, pkts, 1)

	// the frame that failed is replaced by silence
	decoded, err := dec.Decode(pkts[0])
	require.NoError(t, err)
	require.Equal(t, [][]int16{
		filled(1, 2*samplesPerAU),
		filled(0, 2*samplesPerAU),
		filled(3, 2*samplesPerAU),
	}, decoded)

	pkts, err = enc.Encode([][]int16{filled(2, 10)})
	require.Error(t, err)
	require.Len(t, pkts, 1)

	decoded, err = dec.Decode(pkts[0])
	require.NoError(t, err)
	require.Equal(t, [][]int16{filled(0, 2*samplesPerAU)}, decoded)
}

// pickyCodec can't encode frames that start with 0 or 99, silence included.
type pickyCodec struct {
	sampleCodec
}

func (c *pickyCodec) Encode(pcm []int16) ([]byte, error) {
	if pcm[0] == 0 || pcm[0] == 99 {
		return nil, fmt.Errorf("unsupported frame")
	}
	return c.sampleCodec.Encode(pcm)
}

func TestEncodeErrorConcealed(t *testing.T) {
	r := &Registry{}
	err := r.Register(Entry{
		Name:       "picky",
		Capability: testCapability,
		NewDecoder: func(f *format.MPEG4AudioGeneric) (codec.Decoder, error) {
			return &sampleCodec{channels: f.ChannelCount}, nil
		},
		NewEncoder: func(f *format.MPEG4AudioGeneric) (codec.Encoder, error) {
			return &pickyCodec{sampleCodec{channels: f.ChannelCount}}, nil
		},
	})
	require.NoError(t, err)

	f := testFormat(t)

	enc, err := r.CreateEncoder(f)
	require.NoError(t, err)

	dec, err := r.CreateDecoder(f)
	require.NoError(t, err)

	pkts, err := enc.Encode([][]int16{
		filled(1, 2*samplesPerAU),
		filled(99, 2*samplesPerAU),
		filled(3, 2*samplesPerAU),
	})
	require.Error(t, err)
	require.Len(t, pkts, 1)

	// the missing AU is concealed by the receiver
	decoded, err := dec.Decode(pkts[0])
	require.NoError(t, err)
	require.Equal(t, [][]int16{
		filled(1, 2*samplesPerAU),
		filled(0, 2*samplesPerAU),
		filled(3, 2*samplesPerAU),
	}, decoded)

	// same across packets
	pkts, err = enc.Encode([][]int16{filled(99, 2*samplesPerAU)})
	require.Error(t, err)
	require.Empty(t, pkts)

	pkts, err = enc.Encode([][]int16{filled(5, 2*samplesPerAU)})
	require.NoError(t, err)
	require.Len(t, pkts, 1)

	decoded, err = dec.Decode(pkts[0])
	require.NoError(t, err)
	require.Equal(t, [][]int16{
		filled(0, 2*samplesPerAU),
		filled(5, 2*samplesPerAU),
	}, decoded)
}


func TestDecodeMalformed(t *testing.T) {
	r := newRegistry(t)

	dec, err := r.CreateDecoder(testFormat(t))
	require.NoError(t, err)

	_, err = dec.Decode(&rtp.Packet{
		Header:  rtp.Header{Version: 2, SequenceNumber: 1},
		Payload: []byte{0x00, 0x10, 0x00, 0x08, 0x01},
	})
	require.NoError(t, err)

	_, err = dec.Decode(&rtp.Packet{
		Header:  rtp.Header{Version: 2, SequenceNumber: 2, Timestamp: 1024},
		Payload: []byte{0x00, 0x01},
	})
	var malformed liberrors.ErrMalformedAUHeader
	require.True(t, errors.As(err, &malformed))

	frames, err := dec.Decode(&rtp.Packet{
		Header:  rtp.Header{Version: 2, SequenceNumber: 3, Timestamp: 2048},
		Payload: []byte{0x00, 0x10, 0x00, 0x08, 0x05},
	})
	require.NoError(t, err)
	require.Equal(t, [][]int16{
		filled(0, 2*samplesPerAU),
		filled(5, 2*samplesPerAU),
	}, frames)

	aus, err := dec.Flush()
	require.NoError(t, err)
	require.Empty(t, aus)
	require.Equal(t, uint64(0), dec.DroppedPackets())
}
