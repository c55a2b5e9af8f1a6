// Package negotiator selects a RTP/MPEG-4 Audio generic format that is
// supported by both the local and the remote party.
package negotiator

import (
	"fmt"
	"strconv"

	psdp "github.com/pion/sdp/v3"

	"github.com/bluenviron/rtpaac/pkg/format"
	"github.com/bluenviron/rtpaac/pkg/liberrors"
)

// Range is an inclusive range of integers.
// A zero Min or Max leaves the range unbounded on that side,
// therefore a zero Range matches any value.
type Range struct {
	Min int
	Max int
}

// Contains checks whether the range contains a value.
func (r Range) Contains(v int) bool {
	if v < r.Min {
		return false
	}
	return r.Max == 0 || v <= r.Max
}

// Capability describes formats that can be handled locally.
type Capability struct {
	// audio object type (optional).
	ObjectType int

	// stream type (optional).
	StreamType int

	Mode             format.Mode
	SizeLength       int
	IndexLength      int
	IndexDeltaLength int

	// accepted clock rates (optional).
	ClockRates Range

	// accepted channel counts (optional).
	Channels Range
}

func (c Capability) mismatch(f *format.MPEG4AudioGeneric) string {
	switch {
	case c.StreamType != 0 && f.StreamType != c.StreamType:
		return "stream type " + strconv.Itoa(f.StreamType) + " not supported"

	case f.Mode != c.Mode:
		return "mode " + f.Mode.String() + " not supported"

	// objectType may be omitted by the remote party
	case c.ObjectType != 0 && f.ObjectType != 0 && f.ObjectType != c.ObjectType:
		return "object type " + strconv.Itoa(f.ObjectType) + " not supported"

	case f.SizeLength != c.SizeLength || f.IndexLength != c.IndexLength ||
		f.IndexDeltaLength != c.IndexDeltaLength:
		return fmt.Sprintf("AU-header lengths %d/%d/%d not supported",
			f.SizeLength, f.IndexLength, f.IndexDeltaLength)

	case !c.ClockRates.Contains(f.SampleRate):
		return "clock rate " + strconv.Itoa(f.SampleRate) + " not supported"

	case !c.Channels.Contains(f.ChannelCount):
		return "channel count " + strconv.Itoa(f.ChannelCount) + " not supported"
	}

	return ""
}

// Matches checks whether a format is compatible with the capability.
func (c Capability) Matches(f *format.MPEG4AudioGeneric) bool {
	return c.mismatch(f) == ""
}

func (c Capability) bind(f *format.MPEG4AudioGeneric) *format.MPEG4AudioGeneric {
	ret := f.Clone()
	if ret.ObjectType == 0 {
		ret.ObjectType = c.ObjectType
	}
	return ret
}

// Negotiator selects formats among the ones offered by a remote party.
// Capabilities are listed in order of preference.
type Negotiator struct {
	Capabilities []Capability
}

// Negotiate checks a remote format against capabilities.
// It returns a copy of the format, bound to the first matching capability.
func (n *Negotiator) Negotiate(remote *format.MPEG4AudioGeneric) (*format.MPEG4AudioGeneric, error) {
	if len(n.Capabilities) == 0 {
		return nil, liberrors.ErrNoCompatibleFormat{Reason: "no local capabilities"}
	}

	var reason string

	for _, c := range n.Capabilities {
		m := c.mismatch(remote)
		if m == "" {
			return c.bind(remote), nil
		}

		if reason == "" {
			reason = m
		}
	}

	return nil, liberrors.ErrNoCompatibleFormat{Reason: reason}
}

// NegotiateMedia selects a format among the ones listed in a media description.
// Capabilities are evaluated in order of preference; for each capability,
// offered formats are evaluated in the order in which they are listed.
func (n *Negotiator) NegotiateMedia(md *psdp.MediaDescription) (*format.MPEG4AudioGeneric, error) {
	offered, err := format.FromMediaDescription(md)
	if err != nil {
		return nil, err
	}

	if len(n.Capabilities) == 0 {
		return nil, liberrors.ErrNoCompatibleFormat{Reason: "no local capabilities"}
	}

	var reason string

	for _, c := range n.Capabilities {
		for _, f := range offered {
			m := c.mismatch(f)
			if m == "" {
				return c.bind(f), nil
			}

			if reason == "" {
				reason = m
			}
		}
	}

	return nil, liberrors.ErrNoCompatibleFormat{Reason: reason}
}

func answerDirection(md *psdp.MediaDescription) string {
	for _, attr := range md.Attributes {
		switch attr.Key {
		case "sendonly":
			return "recvonly"

		case "recvonly":
			return "sendonly"

		case "inactive", "sendrecv":
			return attr.Key
		}
	}
	return ""
}

// Answer negotiates a media description and generates the media description
// of the answer, that contains the selected format only.
func (n *Negotiator) Answer(md *psdp.MediaDescription, port int) (*psdp.MediaDescription, *format.MPEG4AudioGeneric, error) {
	f, err := n.NegotiateMedia(md)
	if err != nil {
		return nil, nil, err
	}

	protos := md.MediaName.Protos
	if len(protos) == 0 {
		protos = []string{"RTP", "AVP"}
	}

	answer := &psdp.MediaDescription{
		MediaName: psdp.MediaName{
			Media:   "audio",
			Port:    psdp.RangedPort{Value: port},
			Protos:  protos,
			Formats: []string{strconv.FormatUint(uint64(f.PayloadTyp), 10)},
		},
		Attributes: f.Attributes(),
	}

	if dir := answerDirection(md); dir != "" {
		answer.Attributes = append(answer.Attributes, psdp.Attribute{Key: dir})
	}

	return answer, f, nil
}
