package format

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	psdp "github.com/pion/sdp/v3"

	"github.com/bluenviron/rtpaac/pkg/auheader"
	"github.com/bluenviron/rtpaac/pkg/format/rtpmpeg4audio"
	"github.com/bluenviron/rtpaac/pkg/liberrors"
)

// StreamTypeAudio is the AudioStream stream type in ISO 14496-1.
const StreamTypeAudio = 5

// ObjectTypeAACLC is the AAC-LC object type.
const ObjectTypeAACLC = int(mpeg4audio.ObjectTypeAACLC)

// fmtp parameters that must always be present.
var requiredFMTPKeys = []string{
	"streamType",
	"profile-level-id",
	"mode",
	"sizelength",
	"indexlength",
	"indexdeltalength",
}

// MPEG4AudioGeneric is the RTP format for AAC carried with
// the mpeg4-generic payload format.
// Specification: https://datatracker.ietf.org/doc/html/rfc3640
type MPEG4AudioGeneric struct {
	// payload type of packets.
	PayloadTyp uint8

	// sample rate, that is also the clock rate.
	SampleRate int

	// number of channels.
	ChannelCount int

	// stream type. 5 means audio.
	StreamType int

	// profile level ID.
	ProfileLevelID int

	// mode. Only AAC-hbr can be decoded.
	Mode Mode

	// audio object type. 2 means AAC-LC.
	ObjectType int

	// The number of bits in which the AU-size field is encoded in the AU-header.
	SizeLength int
	// The number of bits in which the AU-Index is encoded in the first AU-header.
	IndexLength int
	// The number of bits in which the AU-Index-delta field is encoded in any non-first AU-header.
	IndexDeltaLength int

	// AudioSpecificConfig (optional).
	Config *mpeg4audio.Config
}

// ParseFMTP decodes the value of a fmtp attribute, without payload type.
// Unknown parameters are ignored.
func ParseFMTP(payloadType uint8, fmtp string) (*MPEG4AudioGeneric, error) {
	params := decodeFMTP(fmtp)

	for _, key := range requiredFMTPKeys {
		if _, ok := params[strings.ToLower(key)]; !ok {
			return nil, liberrors.ErrIncompleteFmtp{Key: key}
		}
	}

	f := &MPEG4AudioGeneric{
		PayloadTyp: payloadType,
	}

	for key, val := range params {
		var err error

		switch key {
		case "streamtype":
			f.StreamType, err = parseFMTPInt(key, val)

		case "profile-level-id":
			f.ProfileLevelID, err = parseFMTPInt(key, val)

		case "mode":
			f.Mode, err = ParseMode(val)

		case "objecttype":
			f.ObjectType, err = parseFMTPInt(key, val)

		case "samplingfrequency":
			f.SampleRate, err = parseFMTPInt(key, val)

		case "channelcount":
			f.ChannelCount, err = parseFMTPInt(key, val)

		case "sizelength":
			f.SizeLength, err = parseFMTPInt(key, val)

		case "indexlength":
			f.IndexLength, err = parseFMTPInt(key, val)

		case "indexdeltalength":
			f.IndexDeltaLength, err = parseFMTPInt(key, val)

		case "config":
			var enc []byte
			enc, err = hex.DecodeString(val)
			if err == nil {
				f.Config = &mpeg4audio.Config{}
				err = f.Config.Unmarshal(enc)
			}
			if err != nil {
				err = fmt.Errorf("invalid AAC config: %v", val)
			}
		}

		if err != nil {
			return nil, err
		}
	}

	if f.Config != nil {
		if f.ObjectType == 0 {
			f.ObjectType = int(f.Config.Type)
		}
		if f.SampleRate == 0 {
			f.SampleRate = f.Config.SampleRate
		}
		if f.ChannelCount == 0 {
			f.ChannelCount = f.Config.ChannelCount
		}
	}

	err := f.Lengths().Validate()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func parseFMTPInt(key string, val string) (int, error) {
	tmp, err := strconv.ParseUint(val, 10, 31)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", key, val)
	}
	return int(tmp), nil
}

// Unmarshal decodes the format with the given payload type from a media description.
// The rtpmap and fmtp attributes must agree on sample rate and channel count.
func Unmarshal(md *psdp.MediaDescription, payloadTypeStr string) (*MPEG4AudioGeneric, error) {
	tmp, err := strconv.ParseUint(payloadTypeStr, 10, 7)
	if err != nil {
		return nil, fmt.Errorf("invalid payload type: %v", payloadTypeStr)
	}
	payloadType := uint8(tmp)

	rtpMap := getFormatAttribute(md.Attributes, payloadType, "rtpmap")
	codec, clock := getCodecAndClock(rtpMap)
	if codec != Codec {
		return nil, fmt.Errorf("payload type %d is not %s", payloadType, Codec)
	}

	sampleRate, channelCount, err := parseClock(clock)
	if err != nil {
		return nil, err
	}

	f, err := ParseFMTP(payloadType, getFormatAttribute(md.Attributes, payloadType, "fmtp"))
	if err != nil {
		return nil, err
	}

	if f.SampleRate == 0 {
		f.SampleRate = sampleRate
	} else if f.SampleRate != sampleRate {
		return nil, liberrors.ErrNoCompatibleFormat{
			Reason: fmt.Sprintf("rtpmap clock rate (%d) and fmtp samplingFrequency (%d) differ",
				sampleRate, f.SampleRate),
		}
	}

	if f.ChannelCount == 0 {
		f.ChannelCount = channelCount
	} else if f.ChannelCount != channelCount {
		return nil, liberrors.ErrNoCompatibleFormat{
			Reason: fmt.Sprintf("rtpmap channel count (%d) and fmtp channelCount (%d) differ",
				channelCount, f.ChannelCount),
		}
	}

	err = f.Validate()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func parseClock(clock string) (int, int, error) {
	parts := strings.SplitN(clock, "/", 2)

	tmp, err := strconv.ParseUint(parts[0], 10, 31)
	if err != nil || tmp == 0 {
		return 0, 0, fmt.Errorf("invalid clock rate: %v", parts[0])
	}
	sampleRate := int(tmp)

	channelCount := 1
	if len(parts) == 2 {
		tmp, err = strconv.ParseUint(parts[1], 10, 31)
		if err != nil || tmp == 0 {
			return 0, 0, fmt.Errorf("invalid channel count: %v", parts[1])
		}
		channelCount = int(tmp)
	}

	return sampleRate, channelCount, nil
}

// FromMediaDescription decodes every mpeg4-generic format of a media description,
// in the order in which they are listed.
// Formats that can't be decoded are skipped; an error is returned only when
// no format can be decoded.
func FromMediaDescription(md *psdp.MediaDescription) ([]*MPEG4AudioGeneric, error) {
	var ret []*MPEG4AudioGeneric
	var firstErr error

	for _, payloadType := range md.MediaName.Formats {
		tmp, err := strconv.ParseUint(payloadType, 10, 7)
		if err != nil {
			continue
		}

		codec, _ := getCodecAndClock(getFormatAttribute(md.Attributes, uint8(tmp), "rtpmap"))
		if codec != Codec {
			continue
		}

		f, err := Unmarshal(md, payloadType)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		ret = append(ret, f)
	}

	if ret == nil {
		if firstErr != nil {
			return nil, firstErr
		}
		return nil, liberrors.ErrNoCompatibleFormat{Reason: "media description doesn't contain " + Codec}
	}

	return ret, nil
}

// Validate checks the format.
func (f *MPEG4AudioGeneric) Validate() error {
	if f.PayloadTyp > 127 {
		return fmt.Errorf("invalid payload type: %d", f.PayloadTyp)
	}

	if f.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %d", f.SampleRate)
	}

	if f.ChannelCount <= 0 {
		return fmt.Errorf("invalid channel count: %d", f.ChannelCount)
	}

	// objectType would be filled from config when parsing the fmtp back
	if f.Config != nil && f.ObjectType == 0 {
		return fmt.Errorf("objectType is missing while config is present")
	}

	return f.Lengths().Validate()
}

// Codec returns the codec name.
func (f *MPEG4AudioGeneric) Codec() string {
	return "MPEG-4 Audio"
}

// ClockRate returns the clock rate.
func (f *MPEG4AudioGeneric) ClockRate() int {
	return f.SampleRate
}

// PayloadType returns the payload type.
func (f *MPEG4AudioGeneric) PayloadType() uint8 {
	return f.PayloadTyp
}

// Lengths returns the AU-header field lengths.
func (f *MPEG4AudioGeneric) Lengths() auheader.Lengths {
	return auheader.Lengths{
		SizeLength:       f.SizeLength,
		IndexLength:      f.IndexLength,
		IndexDeltaLength: f.IndexDeltaLength,
	}
}

// RTPMap returns the value of the rtpmap attribute, without payload type.
func (f *MPEG4AudioGeneric) RTPMap() string {
	return Codec + "/" + strconv.FormatInt(int64(f.SampleRate), 10) +
		"/" + strconv.FormatInt(int64(f.ChannelCount), 10)
}

// FMTP returns the value of the fmtp attribute, without payload type.
// Parameters are always written in the same order.
func (f *MPEG4AudioGeneric) FMTP() string {
	params := []string{
		"streamType=" + strconv.FormatInt(int64(f.StreamType), 10),
		"profile-level-id=" + strconv.FormatInt(int64(f.ProfileLevelID), 10),
		"mode=" + f.Mode.String(),
	}

	if f.ObjectType != 0 {
		params = append(params, "objectType="+strconv.FormatInt(int64(f.ObjectType), 10))
	}

	if f.SampleRate != 0 {
		params = append(params, "samplingFrequency="+strconv.FormatInt(int64(f.SampleRate), 10))
	}

	if f.ChannelCount != 0 {
		params = append(params, "channelCount="+strconv.FormatInt(int64(f.ChannelCount), 10))
	}

	params = append(params,
		"sizelength="+strconv.FormatInt(int64(f.SizeLength), 10),
		"indexlength="+strconv.FormatInt(int64(f.IndexLength), 10),
		"indexdeltalength="+strconv.FormatInt(int64(f.IndexDeltaLength), 10))

	if f.Config != nil {
		enc, err := f.Config.Marshal()
		if err == nil {
			params = append(params, "config="+hex.EncodeToString(enc))
		}
	}

	return strings.Join(params, ";")
}

// Attributes returns the rtpmap and fmtp attributes of the format.
func (f *MPEG4AudioGeneric) Attributes() []psdp.Attribute {
	pt := strconv.FormatInt(int64(f.PayloadTyp), 10)

	return []psdp.Attribute{
		{
			Key:   "rtpmap",
			Value: pt + " " + f.RTPMap(),
		},
		{
			Key:   "fmtp",
			Value: pt + " " + f.FMTP(),
		},
	}
}

// Clone returns an independent copy of the format.
func (f *MPEG4AudioGeneric) Clone() *MPEG4AudioGeneric {
	c := *f
	if f.Config != nil {
		conf := *f.Config
		c.Config = &conf
	}
	return &c
}

// CreateDecoder creates a decoder able to decode the content of the format.
func (f *MPEG4AudioGeneric) CreateDecoder() (*rtpmpeg4audio.Decoder, error) {
	if f.Mode != ModeAACHbr {
		return nil, fmt.Errorf("unsupported AAC mode: %v", f.Mode)
	}

	d := &rtpmpeg4audio.Decoder{
		SizeLength:       f.SizeLength,
		IndexLength:      f.IndexLength,
		IndexDeltaLength: f.IndexDeltaLength,
	}

	err := d.Init()
	if err != nil {
		return nil, err
	}

	return d, nil
}

// CreateEncoder creates an encoder able to encode the content of the format.
func (f *MPEG4AudioGeneric) CreateEncoder() (*rtpmpeg4audio.Encoder, error) {
	if f.Mode != ModeAACHbr {
		return nil, fmt.Errorf("unsupported AAC mode: %v", f.Mode)
	}

	e := &rtpmpeg4audio.Encoder{
		PayloadType:      f.PayloadTyp,
		SizeLength:       f.SizeLength,
		IndexLength:      f.IndexLength,
		IndexDeltaLength: f.IndexDeltaLength,
	}

	err := e.Init()
	if err != nil {
		return nil, err
	}

	return e, nil
}
