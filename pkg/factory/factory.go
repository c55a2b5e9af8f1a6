// Package factory contains a registry of AAC codecs that is able to
// create decoders and encoders of negotiated RTP/MPEG-4 Audio formats.
package factory

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/bluenviron/rtpaac/pkg/codec"
	"github.com/bluenviron/rtpaac/pkg/format"
	"github.com/bluenviron/rtpaac/pkg/liberrors"
	"github.com/bluenviron/rtpaac/pkg/metrics"
	"github.com/bluenviron/rtpaac/pkg/negotiator"
)

// Entry is a codec that can be registered.
type Entry struct {
	// codec name.
	Name string

	// formats supported by the codec.
	Capability negotiator.Capability

	// creates a decoder (optional).
	NewDecoder func(f *format.MPEG4AudioGeneric) (codec.Decoder, error)

	// creates an encoder (optional).
	NewEncoder func(f *format.MPEG4AudioGeneric) (codec.Encoder, error)
}

// Registry is a list of codecs, in order of preference.
// It can be used by multiple routines.
type Registry struct {
	// logger passed to adapters (optional).
	// It defaults to the standard logger.
	Log logrus.FieldLogger

	// metrics passed to adapters (optional).
	Metrics *metrics.Metrics

	mutex   sync.RWMutex
	entries []Entry
}

func (r *Registry) log() logrus.FieldLogger {
	if r.Log == nil {
		return logrus.StandardLogger()
	}
	return r.Log
}

// Register adds a codec.
func (r *Registry) Register(e Entry) error {
	if e.Name == "" {
		return fmt.Errorf("codec name not provided")
	}
	if e.NewDecoder == nil && e.NewEncoder == nil {
		return fmt.Errorf("codec '%s' has neither a decoder nor an encoder", e.Name)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, existing := range r.entries {
		if existing.Name == e.Name {
			return fmt.Errorf("codec '%s' is already registered", e.Name)
		}
	}

	r.entries = append(r.entries, e)

	r.log().WithFields(logrus.Fields{
		"codec":   e.Name,
		"decoder": e.NewDecoder != nil,
		"encoder": e.NewEncoder != nil,
	}).Debug("codec registered")

	return nil
}

// Capabilities returns capabilities of registered codecs, in order of preference.
func (r *Registry) Capabilities() []negotiator.Capability {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	ret := make([]negotiator.Capability, len(r.entries))
	for i, e := range r.entries {
		ret[i] = e.Capability
	}
	return ret
}

// Negotiator returns a negotiator that accepts formats supported by registered codecs.
func (r *Registry) Negotiator() *negotiator.Negotiator {
	return &negotiator.Negotiator{
		Capabilities: r.Capabilities(),
	}
}

func (r *Registry) find(f *format.MPEG4AudioGeneric, decoder bool) (Entry, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, e := range r.entries {
		if (decoder && e.NewDecoder == nil) || (!decoder && e.NewEncoder == nil) {
			continue
		}

		if e.Capability.Matches(f) {
			return e, nil
		}
	}

	kind := "encoder"
	if decoder {
		kind = "decoder"
	}

	return Entry{}, liberrors.ErrNoCompatibleFormat{
		Reason: "no registered " + kind + " supports " + f.RTPMap(),
	}
}

// CreateDecoder creates a decoder of a format.
func (r *Registry) CreateDecoder(f *format.MPEG4AudioGeneric) (*DecoderHandle, error) {
	e, err := r.find(f, true)
	if err != nil {
		return nil, err
	}

	depacketizer, err := f.CreateDecoder()
	if err != nil {
		return nil, err
	}

	primitive, err := e.NewDecoder(f)
	if err != nil {
		return nil, liberrors.ErrDecode{Err: err}
	}

	adapter := &codec.DecoderAdapter{
		Primitive:    primitive,
		ChannelCount: f.ChannelCount,
		SamplesPerAU: depacketizer.SamplesPerAU,
		Log:          r.log().WithField("codec", e.Name),
		Metrics:      r.Metrics,
	}
	err = adapter.Init()
	if err != nil {
		return nil, err
	}

	return &DecoderHandle{
		Format:       f,
		Codec:        e.Name,
		depacketizer: depacketizer,
		adapter:      adapter,
	}, nil
}

// CreateEncoder creates an encoder of a format.
func (r *Registry) CreateEncoder(f *format.MPEG4AudioGeneric) (*EncoderHandle, error) {
	e, err := r.find(f, false)
	if err != nil {
		return nil, err
	}

	packetizer, err := f.CreateEncoder()
	if err != nil {
		return nil, err
	}

	primitive, err := e.NewEncoder(f)
	if err != nil {
		return nil, liberrors.ErrEncode{Err: err}
	}

	adapter := &codec.EncoderAdapter{
		Primitive:    primitive,
		ChannelCount: f.ChannelCount,
		SamplesPerAU: packetizer.SamplesPerAU,
		Log:          r.log().WithField("codec", e.Name),
		Metrics:      r.Metrics,
	}
	err = adapter.Init()
	if err != nil {
		return nil, err
	}

	return &EncoderHandle{
		Format:     f,
		Codec:      e.Name,
		packetizer: packetizer,
		adapter:    adapter,
	}, nil
}
