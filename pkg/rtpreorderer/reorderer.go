// Package rtpreorderer implements a filter to reorder incoming RTP packets.
package rtpreorderer

import (
	"fmt"

	"github.com/pion/rtp"
)

const (
	defaultSize = 8
	maxSize     = 0x4000
)

// Reorderer filters incoming RTP packets, in order to
// - order packets
// - remove duplicate packets
// - discard packets that arrive after the window has moved past them
type Reorderer struct {
	// maximum number of packets held while waiting for a missing one.
	// It must be a power of two. It defaults to 8.
	Size int

	initialized    bool
	expectedSeqNum uint16
	buffer         []*rtp.Packet
	absPos         uint16
	dropped        uint64
}

// Initialize initializes the Reorderer.
func (r *Reorderer) Initialize() error {
	if r.Size == 0 {
		r.Size = defaultSize
	}

	if r.Size < 0 || r.Size > maxSize || (r.Size&(r.Size-1)) != 0 {
		return fmt.Errorf("size must be a power of two not greater than %d", maxSize)
	}

	r.buffer = make([]*rtp.Packet, r.Size)
	return nil
}

func (r *Reorderer) mask() uint16 {
	return uint16(len(r.buffer) - 1)
}

func (r *Reorderer) advance() {
	r.absPos = (r.absPos + 1) & r.mask()
	r.expectedSeqNum++
}

// Process processes a RTP packet.
// It returns the packets that can be consumed, in sequence order.
func (r *Reorderer) Process(pkt *rtp.Packet) []*rtp.Packet {
	if !r.initialized {
		r.initialized = true
		r.expectedSeqNum = pkt.SequenceNumber + 1
		return []*rtp.Packet{pkt}
	}

	relPos := pkt.SequenceNumber - r.expectedSeqNum

	// packet is a duplicate or arrived after
	// the window moved past it. discard.
	if relPos >= 0x8000 {
		r.dropped++
		return nil
	}

	var ret []*rtp.Packet

	// window is full. release buffered packets and
	// consider the missing ones lost.
	if int(relPos) >= len(r.buffer) {
		ret = r.Flush()
		r.expectedSeqNum = pkt.SequenceNumber
		relPos = 0
	}

	// there's a missing packet
	if relPos != 0 {
		p := (r.absPos + relPos) & r.mask()

		// current packet is a duplicate. discard.
		if r.buffer[p] != nil {
			r.dropped++
			return ret
		}

		r.buffer[p] = pkt
		return ret
	}

	ret = append(ret, pkt)
	r.advance()

	for r.buffer[r.absPos] != nil {
		ret = append(ret, r.buffer[r.absPos])
		r.buffer[r.absPos] = nil
		r.advance()
	}

	return ret
}

// Flush releases every buffered packet, in sequence order.
// Packets that are still missing are considered lost.
func (r *Reorderer) Flush() []*rtp.Packet {
	var ret []*rtp.Packet

	for i := 0; i < len(r.buffer); i++ {
		p := (r.absPos + uint16(i)) & r.mask()
		if r.buffer[p] == nil {
			continue
		}

		pkt := r.buffer[p]
		r.buffer[p] = nil
		ret = append(ret, pkt)
	}

	if ret != nil {
		last := ret[len(ret)-1].SequenceNumber
		r.absPos = (r.absPos + (last - r.expectedSeqNum) + 1) & r.mask()
		r.expectedSeqNum = last + 1
	}

	return ret
}

// Dropped returns the number of discarded packets.
func (r *Reorderer) Dropped() uint64 {
	return r.dropped
}
