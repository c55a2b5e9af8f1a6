package rtcpreport

import (
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
)

// Receiver generates RTCP receiver reports of an incoming RTP stream.
// Packets can be provided in any order.
// Specification: https://datatracker.ietf.org/doc/html/rfc3550#appendix-A.3
type Receiver struct {
	// clock rate of the stream.
	ClockRate int

	// SSRC of reports (optional).
	// It defaults to a random value.
	LocalSSRC *uint32

	// period of reports (optional).
	// When zero, reports are generated only by calling Report().
	Period time.Duration

	// function that returns the current time (optional).
	TimeNow func() time.Time

	// called with periodic reports.
	WritePacketRTCP func(rtcp.Packet)

	mutex sync.Mutex

	// data from RTP packets
	firstRTPPacketReceived bool
	remoteSSRC             uint32
	baseSeqNum             uint16
	maxSeqNum              uint16
	seqNumCycles           uint32
	received               uint32
	expectedPrior          uint32
	receivedPrior          uint32
	lastTimeRTP            uint32
	lastTimeSystem         time.Time
	jitter                 float64

	// data from RTCP packets
	firstSenderReportReceived  bool
	lastSenderReportTimeNTP    uint64
	lastSenderReportTimeRTP    uint32
	lastSenderReportTimeSystem time.Time

	periodic *periodic
}

// Initialize initializes the Receiver.
func (r *Receiver) Initialize() error {
	if r.LocalSSRC == nil {
		v, err := randUint32()
		if err != nil {
			return err
		}
		r.LocalSSRC = &v
	}

	if r.TimeNow == nil {
		r.TimeNow = time.Now
	}

	if r.Period != 0 {
		r.periodic = newPeriodic(r.Period, func() {
			if report := r.Report(r.TimeNow()); report != nil {
				r.WritePacketRTCP(report)
			}
		})
	}

	return nil
}

// Close closes the Receiver.
func (r *Receiver) Close() {
	if r.periodic != nil {
		r.periodic.close()
	}
}

func (r *Receiver) extendedMax() uint32 {
	return r.seqNumCycles<<16 | uint32(r.maxSeqNum)
}

func (r *Receiver) expected() uint32 {
	return r.extendedMax() - uint32(r.baseSeqNum) + 1
}

// ProcessPacketRTP extracts data from a RTP packet.
func (r *Receiver) ProcessPacketRTP(pkt *rtp.Packet, system time.Time) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if !r.firstRTPPacketReceived || pkt.SSRC != r.remoteSSRC {
		r.firstRTPPacketReceived = true
		r.remoteSSRC = pkt.SSRC
		r.baseSeqNum = pkt.SequenceNumber
		r.maxSeqNum = pkt.SequenceNumber
		r.seqNumCycles = 0
		r.received = 1
		r.expectedPrior = 0
		r.receivedPrior = 0
		r.jitter = 0
		r.lastTimeRTP = pkt.Timestamp
		r.lastTimeSystem = system
		return
	}

	r.received++

	// packet is more recent than the newest one
	if delta := pkt.SequenceNumber - r.maxSeqNum; delta != 0 && delta < 0x8000 {
		if pkt.SequenceNumber < r.maxSeqNum {
			r.seqNumCycles++
		}
		r.maxSeqNum = pkt.SequenceNumber
	}

	// https://datatracker.ietf.org/doc/html/rfc3550#appendix-A.8
	d := system.Sub(r.lastTimeSystem).Seconds()*float64(r.ClockRate) -
		(float64(int32(pkt.Timestamp - r.lastTimeRTP)))
	if d < 0 {
		d = -d
	}
	r.jitter += (d - r.jitter) / 16

	r.lastTimeRTP = pkt.Timestamp
	r.lastTimeSystem = system
}

// ProcessSenderReport extracts data from a RTCP sender report.
func (r *Receiver) ProcessSenderReport(sr *rtcp.SenderReport, system time.Time) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.firstSenderReportReceived = true
	r.lastSenderReportTimeNTP = sr.NTPTime
	r.lastSenderReportTimeRTP = sr.RTPTime
	r.lastSenderReportTimeSystem = system
}

// Report generates a receiver report.
// It returns nil when no packets have been received yet.
func (r *Receiver) Report(system time.Time) *rtcp.ReceiverReport {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if !r.firstRTPPacketReceived {
		return nil
	}

	expected := r.expected()

	totalLost := int64(expected) - int64(r.received)
	switch {
	case totalLost > 0x7FFFFF:
		totalLost = 0x7FFFFF
	case totalLost < 0:
		totalLost = 0
	}

	expectedInterval := expected - r.expectedPrior
	receivedInterval := r.received - r.receivedPrior
	r.expectedPrior = expected
	r.receivedPrior = r.received

	var fractionLost uint8
	if expectedInterval != 0 && receivedInterval < expectedInterval {
		fractionLost = uint8(((expectedInterval - receivedInterval) << 8) / expectedInterval)
	}

	report := &rtcp.ReceiverReport{
		SSRC: *r.LocalSSRC,
		Reports: []rtcp.ReceptionReport{
			{
				SSRC:               r.remoteSSRC,
				LastSequenceNumber: r.extendedMax(),
				FractionLost:       fractionLost,
				TotalLost:          uint32(totalLost),
				Jitter:             uint32(r.jitter),
			},
		},
	}

	if r.firstSenderReportReceived {
		// middle 32 bits out of 64 in the NTP timestamp of last sender report
		report.Reports[0].LastSenderReport = uint32(r.lastSenderReportTimeNTP >> 16)

		// delay, expressed in units of 1/65536 seconds, between
		// receiving the last SR packet and sending this report
		report.Reports[0].Delay = uint32(system.Sub(r.lastSenderReportTimeSystem).Seconds() * 65536)
	}

	return report
}

// PacketNTP returns the NTP timestamp of a RTP timestamp.
// It is available after a sender report has been received.
func (r *Receiver) PacketNTP(ts uint32) (time.Time, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if !r.firstSenderReportReceived || r.ClockRate == 0 {
		return time.Time{}, false
	}

	timeDiff := int32(ts - r.lastSenderReportTimeRTP)
	timeDiffGo := (time.Duration(timeDiff) * time.Second) / time.Duration(r.ClockRate)

	return ntpDecode(r.lastSenderReportTimeNTP).Add(timeDiffGo), true
}
