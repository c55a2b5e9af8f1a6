package rtcpreport

import (
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
)

// Sender generates RTCP sender reports of an outgoing RTP stream.
type Sender struct {
	// clock rate of the stream.
	ClockRate int

	// period of reports (optional).
	// When zero, reports are generated only by calling Report().
	Period time.Duration

	// function that returns the current time (optional).
	TimeNow func() time.Time

	// called with periodic reports.
	WritePacketRTCP func(rtcp.Packet)

	mutex sync.Mutex

	// data from RTP packets
	firstRTPPacketSent bool
	lastTimeRTP        uint32
	lastTimeNTP        time.Time
	lastTimeSystem     time.Time
	localSSRC          uint32
	packetCount        uint32
	octetCount         uint32

	periodic *periodic
}

// Initialize initializes the Sender.
func (s *Sender) Initialize() {
	if s.TimeNow == nil {
		s.TimeNow = time.Now
	}

	if s.Period != 0 {
		s.periodic = newPeriodic(s.Period, func() {
			if report := s.Report(); report != nil {
				s.WritePacketRTCP(report)
			}
		})
	}
}

// Close closes the Sender.
func (s *Sender) Close() {
	if s.periodic != nil {
		s.periodic.close()
	}
}

// ProcessPacketRTP extracts data from a RTP packet that is about to be sent.
// ntp is the absolute time of the packet.
func (s *Sender) ProcessPacketRTP(pkt *rtp.Packet, ntp time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.firstRTPPacketSent = true
	s.lastTimeRTP = pkt.Timestamp
	s.lastTimeNTP = ntp
	s.lastTimeSystem = s.TimeNow()
	s.localSSRC = pkt.SSRC

	s.packetCount++
	s.octetCount += uint32(len(pkt.Payload))
}

// Report generates a sender report.
// It returns nil when no packets have been sent yet.
func (s *Sender) Report() *rtcp.SenderReport {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.firstRTPPacketSent || s.ClockRate == 0 {
		return nil
	}

	systemTimeDiff := s.TimeNow().Sub(s.lastTimeSystem)
	ntpTime := s.lastTimeNTP.Add(systemTimeDiff)
	rtpTime := s.lastTimeRTP + uint32(systemTimeDiff.Seconds()*float64(s.ClockRate))

	return &rtcp.SenderReport{
		SSRC:        s.localSSRC,
		NTPTime:     ntpEncode(ntpTime),
		RTPTime:     rtpTime,
		PacketCount: s.packetCount,
		OctetCount:  s.octetCount,
	}
}
