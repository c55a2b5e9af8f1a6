package rtcpreport

import (
	"testing"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/require"
)

func TestSender(t *testing.T) {
	curTime := time.Date(2008, 5, 20, 22, 16, 20, 0, time.UTC)

	s := &Sender{
		ClockRate: 48000,
		TimeNow:   func() time.Time { return curTime },
	}
	s.Initialize()
	defer s.Close()

	require.Nil(t, s.Report())

	for i, ts := range []uint32{1287987768, 1287987768 + 1024, 1287987768 + 2048} {
		s.ProcessPacketRTP(&rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         true,
				PayloadType:    96,
				SequenceNumber: 946 + uint16(i),
				Timestamp:      ts,
				SSRC:           0xba9da416,
			},
			Payload: []byte{0x00, 0x10, 0x00, 0x08, 0x01},
		}, time.Date(2008, 5, 20, 22, 15, 20, 0, time.UTC))
	}

	curTime = curTime.Add(2 * time.Second)

	require.Equal(t, &rtcp.SenderReport{
		SSRC:        0xba9da416,
		NTPTime:     ntpEncode(time.Date(2008, 5, 20, 22, 15, 22, 0, time.UTC)),
		RTPTime:     1287987768 + 2048 + 2*48000,
		PacketCount: 3,
		OctetCount:  15,
	}, s.Report())
}

func TestSenderZeroClockRate(t *testing.T) {
	s := &Sender{}
	s.Initialize()
	defer s.Close()

	s.ProcessPacketRTP(&rtp.Packet{
		Header:  rtp.Header{SSRC: 1},
		Payload: []byte{1},
	}, time.Now())

	require.Nil(t, s.Report())
}

func TestSenderPeriodic(t *testing.T) {
	done := make(chan rtcp.Packet, 1)

	s := &Sender{
		ClockRate: 48000,
		Period:    10 * time.Millisecond,
		WritePacketRTCP: func(pkt rtcp.Packet) {
			select {
			case done <- pkt:
			default:
			}
		},
	}
	s.Initialize()
	defer s.Close()

	s.ProcessPacketRTP(&rtp.Packet{
		Header:  rtp.Header{SSRC: 0x38F27A2F},
		Payload: []byte{1, 2},
	}, time.Now())

	pkt := <-done
	sr, ok := pkt.(*rtcp.SenderReport)
	require.True(t, ok)
	require.Equal(t, uint32(0x38F27A2F), sr.SSRC)
	require.Equal(t, uint32(1), sr.PacketCount)
}

func TestSenderCloseFromCallback(t *testing.T) {
	closed := make(chan struct{})

	var s *Sender
	s = &Sender{
		ClockRate: 48000,
		Period:    10 * time.Millisecond,
		WritePacketRTCP: func(rtcp.Packet) {
			s.Close()
			close(closed)
		},
	}
	s.Initialize()

	s.ProcessPacketRTP(&rtp.Packet{
		Header:  rtp.Header{SSRC: 1},
		Payload: []byte{1},
	}, time.Now())

	<-closed
	<-s.periodic.done
}
