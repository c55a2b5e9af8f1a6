package factory

import (
	"github.com/pion/rtp"

	"github.com/bluenviron/rtpaac/pkg/codec"
	"github.com/bluenviron/rtpaac/pkg/format"
	"github.com/bluenviron/rtpaac/pkg/format/rtpmpeg4audio"
)

// DecoderHandle turns RTP packets into PCM frames.
type DecoderHandle struct {
	Format *format.MPEG4AudioGeneric
	Codec  string

	depacketizer *rtpmpeg4audio.Decoder
	adapter      *codec.DecoderAdapter
}

// Depacketize extracts access units from a RTP packet.
func (h *DecoderHandle) Depacketize(pkt *rtp.Packet) ([]*rtpmpeg4audio.AccessUnit, error) {
	return h.depacketizer.Decode(pkt)
}

// Flush releases access units of packets held while waiting for missing ones.
func (h *DecoderHandle) Flush() ([]*rtpmpeg4audio.AccessUnit, error) {
	return h.depacketizer.Flush()
}

// DroppedPackets returns the number of duplicate or late packets.
func (h *DecoderHandle) DroppedPackets() uint64 {
	return h.depacketizer.DroppedPackets()
}

// DecodeAU decodes an access unit into PCM frames.
func (h *DecoderHandle) DecodeAU(au *rtpmpeg4audio.AccessUnit) [][]int16 {
	return h.adapter.Decode(au)
}

// Decode decodes a RTP packet into PCM frames.
// A malformed packet is reported with an error, and the handle remains usable.
func (h *DecoderHandle) Decode(pkt *rtp.Packet) ([][]int16, error) {
	aus, err := h.Depacketize(pkt)

	var frames [][]int16
	for _, au := range aus {
		frames = append(frames, h.DecodeAU(au)...)
	}

	return frames, err
}

// EncoderHandle turns PCM frames into RTP packets.
type EncoderHandle struct {
	Format *format.MPEG4AudioGeneric
	Codec  string

	packetizer *rtpmpeg4audio.Encoder
	adapter    *codec.EncoderAdapter
	nextIndex  uint64
}

// Encode encodes PCM frames into RTP packets.
// Each frame must contain SamplesPerAU samples per channel.
// When a frame can't be encoded, it is replaced by silence, the remaining
// frames are encoded anyway and the first error is returned.
func (h *EncoderHandle) Encode(frames [][]int16) ([]*rtp.Packet, error) {
	aus := make([]*rtpmpeg4audio.AccessUnit, 0, len(frames))
	var firstErr error

	for _, frame := range frames {
		index := h.nextIndex
		h.nextIndex++

		au, err := h.adapter.Encode(frame)
		if err != nil && firstErr == nil {
			firstErr = err
		}

		// the receiver conceals the missing index
		if au == nil {
			continue
		}

		aus = append(aus, &rtpmpeg4audio.AccessUnit{
			SequenceIndex: index,
			Payload:       au,
			IsComplete:    true,
		})
	}

	if len(aus) == 0 {
		return nil, firstErr
	}

	pkts, err := h.packetizer.Encode(aus)
	if err != nil {
		return nil, err
	}

	return pkts, firstErr
}
