// Package rtpmpeg4audio contains a RTP/MPEG-4 Audio generic decoder and encoder,
// restricted to the AAC-hbr mode.
// Specification: https://datatracker.ietf.org/doc/html/rfc3640
package rtpmpeg4audio

import (
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/pion/rtcp"
)

const (
	rtpVersion = 2

	// maximum number of sequence numbers listed in a NACK.
	maxNACKSequenceNumbers = 256
)

const defaultSamplesPerAU = mpeg4audio.SamplesPerAccessUnit

// AccessUnit is an AAC access unit.
type AccessUnit struct {
	// logical index of the AU, derived from the RTP timestamp
	// and from the AU-Index fields.
	SequenceIndex uint64

	// AU content.
	Payload []byte

	// whether the AU has been received entirely.
	// It is always true in AAC-hbr mode, since AUs are never fragmented.
	IsComplete bool

	// packets were lost or discarded before this AU (optional).
	Gap *SequenceGap
}

// SequenceGap describes a discontinuity in the sequence of received packets
// or in the sequence of AUs.
type SequenceGap struct {
	// sequence number of the first missing packet.
	FirstMissing uint16

	// number of missing or discarded packets.
	// It is zero when packets are contiguous and only AUs are missing.
	Lost uint64

	// number of AUs that are missing between the previous AU and the current one.
	// It is zero when it can't be computed.
	MissingAUs uint64
}

// NACK returns a Generic NACK that requests the retransmission of missing packets.
func (g *SequenceGap) NACK(senderSSRC uint32, mediaSSRC uint32) *rtcp.TransportLayerNack {
	n := g.Lost
	if n > maxNACKSequenceNumbers {
		n = maxNACKSequenceNumbers
	}

	seqNums := make([]uint16, n)
	for i := range seqNums {
		seqNums[i] = g.FirstMissing + uint16(i)
	}

	return &rtcp.TransportLayerNack{
		SenderSSRC: senderSSRC,
		MediaSSRC:  mediaSSRC,
		Nacks:      rtcp.NackPairsFromSequenceNumbers(seqNums),
	}
}
