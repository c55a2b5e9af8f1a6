package rtpmpeg4audio

import (
	"crypto/rand"
	"fmt"

	"github.com/pion/rtp"

	"github.com/bluenviron/rtpaac/pkg/auheader"
	"github.com/bluenviron/rtpaac/pkg/liberrors"
)

const (
	defaultPayloadMaxSize = 1460 // 1500 (UDP MTU) - 20 (IP header) - 8 (UDP header) - 12 (RTP header)
)

func randUint32() (uint32, error) {
	var b [4]byte
	_, err := rand.Read(b[:])
	if err != nil {
		return 0, err
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

// Encoder is a RTP/MPEG-4 Audio generic encoder.
// AUs are aggregated into packets and never fragmented.
// Specification: https://datatracker.ietf.org/doc/html/rfc3640
type Encoder struct {
	// payload type of packets.
	PayloadType uint8

	// The number of bits in which the AU-size field is encoded in the AU-header.
	SizeLength int
	// The number of bits in which the AU-Index is encoded in the first AU-header.
	IndexLength int
	// The number of bits in which the AU-Index-delta field is encoded in any non-first AU-header.
	IndexDeltaLength int

	// SSRC of packets (optional).
	// It defaults to a random value.
	SSRC *uint32

	// initial sequence number of packets (optional).
	// It defaults to a random value.
	InitialSequenceNumber *uint16

	// maximum size of packet payloads (optional).
	// It defaults to 1460.
	PayloadMaxSize int

	// number of samples in an AU (optional).
	// It defaults to 1024.
	SamplesPerAU int

	lengths        auheader.Lengths
	sequenceNumber uint16
}

// Init initializes the encoder.
func (e *Encoder) Init() error {
	e.lengths = auheader.Lengths{
		SizeLength:       e.SizeLength,
		IndexLength:      e.IndexLength,
		IndexDeltaLength: e.IndexDeltaLength,
	}

	err := e.lengths.Validate()
	if err != nil {
		return err
	}

	if e.SSRC == nil {
		v, err2 := randUint32()
		if err2 != nil {
			return err2
		}
		e.SSRC = &v
	}
	if e.InitialSequenceNumber == nil {
		v, err2 := randUint32()
		if err2 != nil {
			return err2
		}
		v2 := uint16(v)
		e.InitialSequenceNumber = &v2
	}
	if e.PayloadMaxSize == 0 {
		e.PayloadMaxSize = defaultPayloadMaxSize
	}
	if e.SamplesPerAU == 0 {
		e.SamplesPerAU = defaultSamplesPerAU
	}

	if e.PayloadMaxSize <= e.lengths.HeaderSectionSize(1) {
		return fmt.Errorf("PayloadMaxSize is too small")
	}

	e.sequenceNumber = *e.InitialSequenceNumber
	return nil
}

// Encode encodes AUs into RTP packets.
// Each packet contains as many AUs as possible.
// AUs must be sorted by SequenceIndex.
func (e *Encoder) Encode(aus []*AccessUnit) ([]*rtp.Packet, error) {
	for _, au := range aus {
		err := e.checkSize(au)
		if err != nil {
			return nil, err
		}
	}

	var rets []*rtp.Packet
	var batch []*AccessUnit
	batchSize := 0

	// split AUs into batches
	for _, au := range aus {
		if batch != nil && e.canAggregate(batch, batchSize, au) {
			// add to existing batch
			batch = append(batch, au)
			batchSize += len(au.Payload)
			continue
		}

		// write current batch
		if batch != nil {
			pkt, err := e.writeBatch(batch, batchSize)
			if err != nil {
				return nil, err
			}
			rets = append(rets, pkt)
		}

		// initialize new batch
		batch = []*AccessUnit{au}
		batchSize = len(au.Payload)
	}

	// write last batch
	if batch != nil {
		pkt, err := e.writeBatch(batch, batchSize)
		if err != nil {
			return nil, err
		}
		rets = append(rets, pkt)
	}

	return rets, nil
}

func (e *Encoder) checkSize(au *AccessUnit) error {
	if len(au.Payload) > e.lengths.MaxSize() {
		return liberrors.ErrPayloadTooLarge{Size: len(au.Payload), MaxSize: e.lengths.MaxSize()}
	}

	avail := e.PayloadMaxSize - e.lengths.HeaderSectionSize(1)
	if len(au.Payload) > avail {
		return liberrors.ErrPayloadTooLarge{Size: len(au.Payload), MaxSize: avail}
	}

	return nil
}

func (e *Encoder) canAggregate(batch []*AccessUnit, batchSize int, au *AccessUnit) bool {
	prev := batch[len(batch)-1]

	// the AU-Index-delta must be representable
	if au.SequenceIndex <= prev.SequenceIndex {
		return false
	}
	delta := au.SequenceIndex - prev.SequenceIndex - 1
	if delta >= 1<<e.IndexDeltaLength {
		return false
	}

	n := e.lengths.HeaderSectionSize(len(batch)+1) + batchSize + len(au.Payload)
	return n <= e.PayloadMaxSize
}

func (e *Encoder) writeBatch(aus []*AccessUnit, batchSize int) (*rtp.Packet, error) {
	headers := make([]auheader.Header, len(aus))

	for i, au := range aus {
		headers[i].Size = uint32(len(au.Payload))
		if i != 0 {
			headers[i].Index = uint32(au.SequenceIndex - aus[i-1].SequenceIndex - 1)
		}
	}

	headersEnc, err := auheader.Marshal(headers, e.lengths)
	if err != nil {
		return nil, err
	}

	payload := make([]byte, len(headersEnc)+batchSize)
	n := copy(payload, headersEnc)

	for _, au := range aus {
		n += copy(payload[n:], au.Payload)
	}

	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        rtpVersion,
			PayloadType:    e.PayloadType,
			SequenceNumber: e.sequenceNumber,
			Timestamp:      uint32(aus[0].SequenceIndex * uint64(e.SamplesPerAU)),
			SSRC:           *e.SSRC,
			Marker:         true,
		},
		Payload: payload,
	}

	e.sequenceNumber++

	return pkt, nil
}
