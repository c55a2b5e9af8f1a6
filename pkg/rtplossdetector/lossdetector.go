// Package rtplossdetector implements an algorithm that detects lost packets.
package rtplossdetector

import (
	"github.com/pion/rtp"
)

// LossDetector detects lost packets.
// Packets must be provided in sequence order.
type LossDetector struct {
	initialized    bool
	expectedSeqNum uint16
}

// Process processes a RTP packet.
// It returns the number of lost packets and the sequence number of the first lost one.
func (r *LossDetector) Process(pkt *rtp.Packet) (uint64, uint16) {
	if !r.initialized {
		r.initialized = true
		r.expectedSeqNum = pkt.SequenceNumber + 1
		return 0, 0
	}

	if pkt.SequenceNumber != r.expectedSeqNum {
		first := r.expectedSeqNum
		diff := pkt.SequenceNumber - r.expectedSeqNum
		r.expectedSeqNum = pkt.SequenceNumber + 1
		return uint64(diff), first
	}

	r.expectedSeqNum = pkt.SequenceNumber + 1
	return 0, 0
}
