package codec

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/bluenviron/rtpaac/pkg/format/rtpmpeg4audio"
	"github.com/bluenviron/rtpaac/pkg/liberrors"
	"github.com/bluenviron/rtpaac/pkg/metrics"
)

// DecoderAdapter decodes access units into PCM frames with a Decoder.
type DecoderAdapter struct {
	// AAC decoder.
	Primitive Decoder

	// number of channels.
	ChannelCount int

	// number of samples per channel in an AU (optional).
	// It defaults to 1024.
	SamplesPerAU int

	// maximum number of frames generated in place of missing AUs (optional).
	// It defaults to 8.
	MaxConcealedFrames int

	// logger (optional).
	// It defaults to the standard logger.
	Log logrus.FieldLogger

	// metrics (optional).
	Metrics *metrics.Metrics
}

// Init initializes the adapter.
func (a *DecoderAdapter) Init() error {
	if a.Primitive == nil {
		return fmt.Errorf("Primitive not provided")
	}
	if a.ChannelCount <= 0 {
		return fmt.Errorf("invalid channel count: %d", a.ChannelCount)
	}

	if a.SamplesPerAU == 0 {
		a.SamplesPerAU = defaultSamplesPerAU
	}
	if a.MaxConcealedFrames == 0 {
		a.MaxConcealedFrames = defaultMaxConcealedFrames
	}
	if a.Log == nil {
		a.Log = logrus.StandardLogger()
	}

	return nil
}

func (a *DecoderAdapter) silence() []int16 {
	return Silence(a.ChannelCount, a.SamplesPerAU)
}

func (a *DecoderAdapter) conceal(gap *rtpmpeg4audio.SequenceGap) [][]int16 {
	n := gap.MissingAUs
	if n > uint64(a.MaxConcealedFrames) {
		n = uint64(a.MaxConcealedFrames)
	}

	a.Log.WithFields(logrus.Fields{
		"first_missing": gap.FirstMissing,
		"lost":          gap.Lost,
		"missing_aus":   gap.MissingAUs,
	}).Debug("concealing missing access units")

	concealer, _ := a.Primitive.(Concealer)

	frames := make([][]int16, n)

	for i := range frames {
		if concealer != nil {
			frame, err := concealer.Conceal()
			if err == nil {
				frames[i] = frame
				continue
			}
			a.Log.WithError(err).Debug("concealment failed, using silence")
		}

		frames[i] = a.silence()
	}

	a.Metrics.ConcealedFrames(len(frames))

	return frames
}

// Decode decodes an access unit.
// Missing AUs that precede it are replaced with concealed frames.
// An AU that can't be decoded is replaced with silence.
func (a *DecoderAdapter) Decode(au *rtpmpeg4audio.AccessUnit) [][]int16 {
	var frames [][]int16

	if au.Gap != nil {
		frames = a.conceal(au.Gap)
	}

	pcm, err := a.Primitive.Decode(au.Payload)
	if err != nil {
		a.Log.WithFields(logrus.Fields{
			"sequence_index": au.SequenceIndex,
			"size":           len(au.Payload),
		}).WithError(liberrors.ErrDecode{Err: err}).Warn("replacing access unit with silence")
		a.Metrics.DecodeError()

		return append(frames, a.silence())
	}

	if len(pcm) != 0 {
		frames = append(frames, pcm)
	}

	return frames
}
