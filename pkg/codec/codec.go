// Package codec connects AAC decoders and encoders to RTP/MPEG-4 Audio access units.
//
// The AAC bitstream is handled by external primitives that implement
// Decoder and Encoder. Adapters in this package turn primitive failures and
// missing access units into PCM frames, so that audio rendering never stops.
package codec

import (
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
)

const (
	defaultSamplesPerAU       = mpeg4audio.SamplesPerAccessUnit
	defaultMaxConcealedFrames = 8
)

// Decoder is an AAC decoder.
type Decoder interface {
	// Decode decodes an access unit into interleaved PCM samples.
	Decode(au []byte) ([]int16, error)
}

// Concealer is implemented by decoders that are able to
// generate a frame in place of a missing access unit.
type Concealer interface {
	Conceal() ([]int16, error)
}

// Encoder is an AAC encoder.
type Encoder interface {
	// Encode encodes interleaved PCM samples into an access unit.
	Encode(pcm []int16) ([]byte, error)
}

// Silence returns a frame of silence.
func Silence(channelCount int, samples int) []int16 {
	return make([]int16, channelCount*samples)
}
