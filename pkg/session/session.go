// Package session contains RTP/MPEG-4 Audio sessions, that connect
// a negotiated format to a decoder or to an encoder.
//
// A receive session is fed by the network routine with WritePacketRTP()
// and read by the render routine with ReadFrames(). The two routines
// exchange access units through a lock-free queue.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/sirupsen/logrus"

	"github.com/bluenviron/rtpaac/pkg/factory"
	"github.com/bluenviron/rtpaac/pkg/format"
	"github.com/bluenviron/rtpaac/pkg/format/rtpmpeg4audio"
	"github.com/bluenviron/rtpaac/pkg/liberrors"
	"github.com/bluenviron/rtpaac/pkg/metrics"
	"github.com/bluenviron/rtpaac/pkg/rtcpreport"
	"github.com/bluenviron/rtpaac/pkg/ringbuffer"
)

const (
	defaultQueueSize  = 64
	defaultRTCPPeriod = 5 * time.Second

	stateActive = "active"
	stateClosed = "closed"

	eventClose = "close"
)

// Direction is the direction of a session.
type Direction int

// directions.
const (
	DirectionRecv Direction = iota
	DirectionSend
)

// String implements fmt.Stringer.
func (d Direction) String() string {
	if d == DirectionSend {
		return "send"
	}
	return "recv"
}

// Config is the configuration of a session.
type Config struct {
	// negotiated format.
	Format *format.MPEG4AudioGeneric

	// direction.
	Direction Direction

	// codec registry.
	Registry *factory.Registry

	// size of the queue between the network and the render routine (optional).
	// It must be a power of two. It defaults to 64.
	QueueSize int

	// SSRC written into NACKs and receiver reports (optional).
	SenderSSRC uint32

	// logger (optional).
	// It defaults to the standard logger.
	Log logrus.FieldLogger

	// metrics (optional).
	Metrics *metrics.Metrics

	// called when packets are lost, with a NACK that requests them (optional).
	// It is called by the routine that calls WritePacketRTP().
	OnPacketsLost func(*rtcp.TransportLayerNack)

	// called with periodic RTCP reports (optional).
	// Receive sessions emit receiver reports, send sessions emit sender reports.
	// When nil, reports are not generated.
	OnPacketRTCP func(rtcp.Packet)

	// period of RTCP reports (optional).
	// It defaults to 5 seconds.
	RTCPPeriod time.Duration

	// function that returns the current time (optional).
	TimeNow func() time.Time
}

// Session is a RTP/MPEG-4 Audio session.
type Session struct {
	// session ID.
	ID uuid.UUID

	conf    Config
	log     logrus.FieldLogger
	mutex   sync.Mutex
	state   *fsm.FSM
	closed  atomic.Bool
	dropped uint64

	// SSRC of the last received packet
	remoteSSRC uint32

	// receive
	decoder *factory.DecoderHandle
	queue   *ringbuffer.RingBuffer[*rtpmpeg4audio.AccessUnit]
	rtcpRR  *rtcpreport.Receiver

	// send
	encoder *factory.EncoderHandle
	rtcpSR  *rtcpreport.Sender
}

// New allocates a Session.
// It fails when no registered codec supports the format.
func New(conf Config) (*Session, error) {
	if conf.Format == nil {
		return nil, fmt.Errorf("Format not provided")
	}
	if conf.Registry == nil {
		return nil, fmt.Errorf("Registry not provided")
	}

	err := conf.Format.Validate()
	if err != nil {
		return nil, err
	}

	if conf.QueueSize == 0 {
		conf.QueueSize = defaultQueueSize
	}
	if conf.Log == nil {
		conf.Log = logrus.StandardLogger()
	}
	if conf.OnPacketsLost == nil {
		conf.OnPacketsLost = func(*rtcp.TransportLayerNack) {}
	}
	if conf.RTCPPeriod == 0 {
		conf.RTCPPeriod = defaultRTCPPeriod
	}
	if conf.TimeNow == nil {
		conf.TimeNow = time.Now
	}

	var rtcpPeriod time.Duration
	if conf.OnPacketRTCP != nil {
		rtcpPeriod = conf.RTCPPeriod
	}

	s := &Session{
		ID:   uuid.New(),
		conf: conf,
	}

	s.log = conf.Log.WithFields(logrus.Fields{
		"session_id":   s.ID.String(),
		"payload_type": conf.Format.PayloadTyp,
		"direction":    conf.Direction.String(),
	})

	switch conf.Direction {
	case DirectionRecv:
		s.decoder, err = conf.Registry.CreateDecoder(conf.Format)
		if err != nil {
			return nil, err
		}

		s.queue, err = ringbuffer.New[*rtpmpeg4audio.AccessUnit](uint64(conf.QueueSize))
		if err != nil {
			return nil, err
		}

		localSSRC := conf.SenderSSRC
		s.rtcpRR = &rtcpreport.Receiver{
			ClockRate:       conf.Format.ClockRate(),
			LocalSSRC:       &localSSRC,
			Period:          rtcpPeriod,
			TimeNow:         conf.TimeNow,
			WritePacketRTCP: conf.OnPacketRTCP,
		}
		err = s.rtcpRR.Initialize()
		if err != nil {
			return nil, err
		}

	case DirectionSend:
		s.encoder, err = conf.Registry.CreateEncoder(conf.Format)
		if err != nil {
			return nil, err
		}

		s.rtcpSR = &rtcpreport.Sender{
			ClockRate:       conf.Format.ClockRate(),
			Period:          rtcpPeriod,
			TimeNow:         conf.TimeNow,
			WritePacketRTCP: conf.OnPacketRTCP,
		}
		s.rtcpSR.Initialize()

	default:
		return nil, fmt.Errorf("invalid direction: %d", conf.Direction)
	}

	s.state = fsm.NewFSM(
		stateActive,
		fsm.Events{
			{Name: eventClose, Src: []string{stateActive}, Dst: stateClosed},
		},
		fsm.Callbacks{
			"after_event": func(_ context.Context, e *fsm.Event) {
				s.conf.Metrics.Transition(e.Src, e.Dst)
				s.log.WithFields(logrus.Fields{
					"from": e.Src,
					"to":   e.Dst,
				}).Debug("session state changed")
			},
		},
	)

	conf.Metrics.SessionOpened()

	s.log.WithFields(logrus.Fields{
		"rtpmap": conf.Format.RTPMap(),
		"codec":  s.codecName(),
	}).Info("session created")

	return s, nil
}

func (s *Session) codecName() string {
	if s.decoder != nil {
		return s.decoder.Codec
	}
	return s.encoder.Codec
}

// Direction returns the session direction.
func (s *Session) Direction() Direction {
	return s.conf.Direction
}

// Format returns the negotiated format.
func (s *Session) Format() *format.MPEG4AudioGeneric {
	return s.conf.Format
}

// State returns the current state of the session.
func (s *Session) State() string {
	return s.state.Current()
}

// IsClosed checks whether the session is closed.
func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// Close closes the session.
// Access units that have not been read yet are discarded.
// It never waits for the render routine, and it can be called
// by the OnPacketRTCP callback.
func (s *Session) Close() error {
	err := s.closeState()
	if err != nil {
		return err
	}

	if s.queue != nil {
		s.queue.Close()
	}

	// outside of the mutex, OnPacketRTCP can call Close()
	if s.rtcpRR != nil {
		s.rtcpRR.Close()
	}
	if s.rtcpSR != nil {
		s.rtcpSR.Close()
	}

	s.conf.Metrics.SessionClosed()
	s.log.Info("session closed")

	return nil
}

func (s *Session) closeState() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	err := s.state.Event(context.Background(), eventClose)
	if err != nil {
		return err
	}

	s.closed.Store(true)
	return nil
}

func (s *Session) updateDropped() {
	dropped := s.decoder.DroppedPackets()
	if dropped != s.dropped {
		s.conf.Metrics.DroppedPackets(dropped - s.dropped)
		s.dropped = dropped
	}
}

func (s *Session) handleGap(gap *rtpmpeg4audio.SequenceGap) {
	// only AUs are missing
	if gap.Lost == 0 {
		s.log.WithField("missing_aus", gap.MissingAUs).Debug("access units missing")
		return
	}

	s.conf.Metrics.SequenceGap(gap.Lost)

	s.log.WithFields(logrus.Fields{
		"first_missing": gap.FirstMissing,
		"lost":          gap.Lost,
	}).Debug("packets lost")

	s.conf.OnPacketsLost(gap.NACK(s.conf.SenderSSRC, s.remoteSSRC))
}

func (s *Session) pushAUs(aus []*rtpmpeg4audio.AccessUnit) error {
	for _, au := range aus {
		if au.Gap != nil {
			s.handleGap(au.Gap)
		}

		if !s.queue.Push(au) {
			if s.closed.Load() {
				return liberrors.ErrSessionClosed{}
			}

			s.conf.Metrics.QueueOverflow()
			s.log.WithField("sequence_index", au.SequenceIndex).Warn("render queue is full, discarding access unit")
		}
	}

	return nil
}

// WritePacketRTP writes a RTP packet into a receive session.
// A malformed packet is discarded and reported with an error,
// while the session keeps working.
func (s *Session) WritePacketRTP(pkt *rtp.Packet) error {
	if s.conf.Direction != DirectionRecv {
		return liberrors.ErrSessionWrongDirection{Direction: s.conf.Direction}
	}
	if s.closed.Load() {
		return liberrors.ErrSessionClosed{}
	}

	s.rtcpRR.ProcessPacketRTP(pkt, s.conf.TimeNow())

	s.remoteSSRC = pkt.SSRC

	aus, err := s.decoder.Depacketize(pkt)

	s.updateDropped()

	err2 := s.pushAUs(aus)
	if err2 != nil {
		return err2
	}

	if err != nil {
		s.conf.Metrics.MalformedPacket()
		s.log.WithField("seq", pkt.SequenceNumber).WithError(err).Warn("discarding packet")
		return err
	}

	return nil
}

// Flush releases the packets held while waiting for missing ones,
// and makes their access units available to ReadFrames().
// Missing packets are considered lost.
// It must be called by the routine that calls WritePacketRTP(), for instance
// at the end of a talkspurt or when no packets are received for a while.
func (s *Session) Flush() error {
	if s.conf.Direction != DirectionRecv {
		return liberrors.ErrSessionWrongDirection{Direction: s.conf.Direction}
	}
	if s.closed.Load() {
		return liberrors.ErrSessionClosed{}
	}

	aus, err := s.decoder.Flush()

	err2 := s.pushAUs(aus)
	if err2 != nil {
		return err2
	}

	if err != nil {
		s.conf.Metrics.MalformedPacket()
		s.log.WithError(err).Warn("discarding packet")
		return err
	}

	return nil
}

// WritePacketRTCP writes a RTCP packet into a receive session.
// Sender reports are used to compute receiver reports and absolute timestamps.
func (s *Session) WritePacketRTCP(pkt rtcp.Packet) error {
	if s.conf.Direction != DirectionRecv {
		return liberrors.ErrSessionWrongDirection{Direction: s.conf.Direction}
	}
	if s.closed.Load() {
		return liberrors.ErrSessionClosed{}
	}

	if sr, ok := pkt.(*rtcp.SenderReport); ok {
		s.rtcpRR.ProcessSenderReport(sr, s.conf.TimeNow())
	}

	return nil
}

// PacketNTP returns the absolute time of a RTP timestamp.
// It is available in receive sessions after a sender report has been received.
func (s *Session) PacketNTP(ts uint32) (time.Time, bool) {
	if s.rtcpRR == nil {
		return time.Time{}, false
	}
	return s.rtcpRR.PacketNTP(ts)
}

// ReceiverReport returns a receiver report of the incoming stream,
// or nil when no packets have been received yet.
func (s *Session) ReceiverReport() *rtcp.ReceiverReport {
	if s.rtcpRR == nil {
		return nil
	}
	return s.rtcpRR.Report(s.conf.TimeNow())
}

// ReadFrames reads the PCM frames of the next access unit.
// It never blocks, and returns nil when there are no access units
// or the session is closed.
func (s *Session) ReadFrames() [][]int16 {
	if s.queue == nil {
		return nil
	}

	au, ok := s.queue.Pull()
	if !ok {
		return nil
	}

	return s.decoder.DecodeAU(au)
}

// ReadFramesWait reads the PCM frames of the next access unit.
// It waits until an access unit is available, and returns false
// when the session is closed.
func (s *Session) ReadFramesWait() ([][]int16, bool) {
	if s.queue == nil {
		return nil, false
	}

	au, ok := s.queue.PullWait()
	if !ok {
		return nil, false
	}

	return s.decoder.DecodeAU(au), true
}

// WriteFrames encodes PCM frames into RTP packets.
func (s *Session) WriteFrames(frames [][]int16) ([]*rtp.Packet, error) {
	if s.conf.Direction != DirectionSend {
		return nil, liberrors.ErrSessionWrongDirection{Direction: s.conf.Direction}
	}
	if s.closed.Load() {
		return nil, liberrors.ErrSessionClosed{}
	}

	pkts, err := s.encoder.Encode(frames)

	now := s.conf.TimeNow()
	for _, pkt := range pkts {
		s.rtcpSR.ProcessPacketRTP(pkt, now)
	}

	return pkts, err
}

// SenderReport returns a sender report of the outgoing stream,
// or nil when no packets have been sent yet.
func (s *Session) SenderReport() *rtcp.SenderReport {
	if s.rtcpSR == nil {
		return nil
	}
	return s.rtcpSR.Report()
}
