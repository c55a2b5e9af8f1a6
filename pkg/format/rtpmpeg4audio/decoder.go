package rtpmpeg4audio

import (
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/pion/rtp"

	"github.com/bluenviron/rtpaac/pkg/auheader"
	"github.com/bluenviron/rtpaac/pkg/rtplossdetector"
	"github.com/bluenviron/rtpaac/pkg/rtpreorderer"
)

// Decoder is a RTP/MPEG-4 Audio generic decoder.
// It reorders packets, splits them into AUs and signals packet losses.
// Specification: https://datatracker.ietf.org/doc/html/rfc3640
type Decoder struct {
	// The number of bits in which the AU-size field is encoded in the AU-header.
	SizeLength int
	// The number of bits in which the AU-Index is encoded in the first AU-header.
	IndexLength int
	// The number of bits in which the AU-Index-delta field is encoded in any non-first AU-header.
	IndexDeltaLength int

	// maximum number of packets held while waiting for a missing one (optional).
	// It must be a power of two. It defaults to 8.
	ReorderWindow int

	// number of samples in an AU (optional).
	// It defaults to 1024.
	SamplesPerAU int

	lengths      auheader.Lengths
	reorderer    *rtpreorderer.Reorderer
	lossDetector *rtplossdetector.LossDetector

	tsInitialized bool
	tsPrev        int64
	tsAdd         int64

	lastIndexValid bool
	lastIndex      uint64
	pendingGap     *SequenceGap

	firstAUParsed bool
	adtsMode      bool
}

// Init initializes the decoder.
func (d *Decoder) Init() error {
	d.lengths = auheader.Lengths{
		SizeLength:       d.SizeLength,
		IndexLength:      d.IndexLength,
		IndexDeltaLength: d.IndexDeltaLength,
	}

	err := d.lengths.Validate()
	if err != nil {
		return err
	}

	if d.SamplesPerAU == 0 {
		d.SamplesPerAU = defaultSamplesPerAU
	}

	d.reorderer = &rtpreorderer.Reorderer{
		Size: d.ReorderWindow,
	}
	err = d.reorderer.Initialize()
	if err != nil {
		return err
	}
	d.ReorderWindow = d.reorderer.Size

	d.lossDetector = &rtplossdetector.LossDetector{}

	return nil
}

// Decode decodes AUs from a RTP packet.
// The packet may be held until missing packets arrive, therefore
// AUs of previous packets may be returned too, always in order.
// In case some packets are invalid, AUs of valid packets are returned
// together with the first error.
func (d *Decoder) Decode(pkt *rtp.Packet) ([]*AccessUnit, error) {
	return d.decodePackets(d.reorderer.Process(pkt))
}

// Flush releases the packets held while waiting for missing ones.
func (d *Decoder) Flush() ([]*AccessUnit, error) {
	return d.decodePackets(d.reorderer.Flush())
}

// DroppedPackets returns the number of packets discarded since they were duplicate
// or arrived too late.
func (d *Decoder) DroppedPackets() uint64 {
	return d.reorderer.Dropped()
}

func (d *Decoder) addGap(firstMissing uint16, lost uint64) {
	if d.pendingGap == nil {
		d.pendingGap = &SequenceGap{FirstMissing: firstMissing}
	}
	d.pendingGap.Lost += lost
}

func (d *Decoder) decodePackets(pkts []*rtp.Packet) ([]*AccessUnit, error) {
	var aus []*AccessUnit
	var firstErr error

	for _, pkt := range pkts {
		lost, firstMissing := d.lossDetector.Process(pkt)
		if lost != 0 {
			d.addGap(firstMissing, lost)
		}

		paus, err := d.decodePacket(pkt)
		if err != nil {
			// AUs of the packet are lost too
			d.addGap(pkt.SequenceNumber, 1)

			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		if d.pendingGap != nil {
			paus[0].Gap = d.pendingGap
			d.pendingGap = nil
		}

		// AUs can be missing even when no packet is,
		// for instance when the sender skips a frame.
		for _, au := range paus {
			if d.lastIndexValid && au.SequenceIndex > d.lastIndex+1 {
				if au.Gap == nil {
					au.Gap = &SequenceGap{}
				}
				au.Gap.MissingAUs = au.SequenceIndex - d.lastIndex - 1
			}

			d.lastIndexValid = true
			d.lastIndex = au.SequenceIndex
		}

		aus = append(aus, paus...)
	}

	return aus, firstErr
}

func (d *Decoder) decodeTimestamp(ts uint32) int64 {
	ts64 := int64(ts) + d.tsAdd

	if d.tsInitialized && (ts64-d.tsPrev) < -0x7FFFFFFF {
		ts64 += 0x100000000
		d.tsAdd += 0x100000000
	}

	d.tsInitialized = true
	d.tsPrev = ts64

	return ts64
}

func (d *Decoder) decodePacket(pkt *rtp.Packet) ([]*AccessUnit, error) {
	headers, dataOffset, err := auheader.Unmarshal(pkt.Payload, d.lengths)
	if err != nil {
		return nil, err
	}

	dataLen := 0
	for _, h := range headers {
		dataLen += int(h.Size)
	}

	// AUs are handed to another routine, do not keep references to the packet.
	data := make([]byte, dataLen)
	copy(data, pkt.Payload[dataOffset:])

	base := uint64(d.decodeTimestamp(pkt.Timestamp)) / uint64(d.SamplesPerAU)
	indexes := d.lengths.AbsoluteIndexes(headers)

	aus := make([]*AccessUnit, len(headers))

	for i, h := range headers {
		aus[i] = &AccessUnit{
			SequenceIndex: base + indexes[i],
			Payload:       data[:h.Size:h.Size],
			IsComplete:    true,
		}
		data = data[h.Size:]
	}

	return d.removeADTS(aus)
}

// some senders wrap AUs into ADTS
func (d *Decoder) removeADTS(aus []*AccessUnit) ([]*AccessUnit, error) {
	if !d.firstAUParsed {
		d.firstAUParsed = true

		if len(aus) == 1 && len(aus[0].Payload) >= 2 {
			if aus[0].Payload[0] == 0xFF && (aus[0].Payload[1]&0xF0) == 0xF0 {
				var pkts mpeg4audio.ADTSPackets
				err := pkts.Unmarshal(aus[0].Payload)
				if err == nil && len(pkts) == 1 {
					d.adtsMode = true
					aus[0].Payload = pkts[0].AU
				}
			}
		}
	} else if d.adtsMode {
		if len(aus) != 1 {
			return nil, fmt.Errorf("multiple AUs in ADTS mode are not supported")
		}

		var pkts mpeg4audio.ADTSPackets
		err := pkts.Unmarshal(aus[0].Payload)
		if err != nil {
			return nil, fmt.Errorf("unable to decode ADTS: %w", err)
		}

		if len(pkts) != 1 {
			return nil, fmt.Errorf("multiple ADTS packets are not supported")
		}

		aus[0].Payload = pkts[0].AU
	}

	return aus, nil
}
