package codec

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/bluenviron/rtpaac/pkg/liberrors"
	"github.com/bluenviron/rtpaac/pkg/metrics"
)

// EncoderAdapter encodes PCM frames into access units with an Encoder.
type EncoderAdapter struct {
	// AAC encoder.
	Primitive Encoder

	// number of channels (optional).
	// When set, frames that can't be encoded are replaced by silence.
	ChannelCount int

	// number of samples per channel in an AU (optional).
	// It defaults to 1024.
	SamplesPerAU int

	// logger (optional).
	// It defaults to the standard logger.
	Log logrus.FieldLogger

	// metrics (optional).
	Metrics *metrics.Metrics
}

// Init initializes the adapter.
func (a *EncoderAdapter) Init() error {
	if a.Primitive == nil {
		return fmt.Errorf("Primitive not provided")
	}
	if a.ChannelCount < 0 {
		return fmt.Errorf("invalid channel count: %d", a.ChannelCount)
	}
	if a.SamplesPerAU == 0 {
		a.SamplesPerAU = defaultSamplesPerAU
	}
	if a.Log == nil {
		a.Log = logrus.StandardLogger()
	}
	return nil
}

// Encode encodes a PCM frame.
// When the frame can't be encoded, an ErrEncode is returned together with
// the access unit of a silent frame, if ChannelCount is set and the
// silent frame can be encoded.
func (a *EncoderAdapter) Encode(pcm []int16) ([]byte, error) {
	au, err := a.Primitive.Encode(pcm)
	if err == nil {
		return au, nil
	}

	a.Metrics.EncodeError()
	err = liberrors.ErrEncode{Err: err}

	if a.ChannelCount == 0 {
		a.Log.WithField("samples", len(pcm)).WithError(err).Debug("encode failed")
		return nil, err
	}

	au, err2 := a.Primitive.Encode(Silence(a.ChannelCount, a.SamplesPerAU))
	if err2 != nil {
		a.Log.WithField("samples", len(pcm)).WithError(err).Warn("encode failed, unable to encode silence")
		return nil, err
	}

	a.Log.WithField("samples", len(pcm)).WithError(err).Debug("encode failed, replaced with silence")
	return au, err
}
