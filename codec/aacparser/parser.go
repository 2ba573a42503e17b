package aacparser

import (
	"strings"
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/pkg/errors"

	"github.com/deepch/mkvmux/av"
	"github.com/deepch/mkvmux/codec"
)

// SamplesPerFrame is the AAC-LC frame length.
const SamplesPerFrame = 1024

const ADTSHeaderLength = 7

var ErrADTSInvalid = errors.New("aacparser: invalid ADTS header")

// ADTSHeader is the fixed part of an ADTS frame header.
type ADTSHeader struct {
	ObjectType   mpeg4audio.ObjectType
	SampleRate   int
	ChannelCount int
	HeaderLength int
	FrameLength  int
	Frames       int
}

var sampleRates = []int{
	96000, 88200, 64000, 48000, 44100, 32000,
	24000, 22050, 16000, 12000, 11025, 8000, 7350,
}

// ParseADTSHeader decodes the header at the start of b without requiring the
// payload to be present.
func ParseADTSHeader(b []byte) (self ADTSHeader, err error) {
	if len(b) < ADTSHeaderLength || b[0] != 0xff || b[1]&0xf6 != 0xf0 {
		err = ErrADTSInvalid
		return
	}
	self.ObjectType = mpeg4audio.ObjectType((b[2]>>6)&0x3) + 1
	idx := int(b[2]>>2) & 0xf
	if idx >= len(sampleRates) {
		err = ErrADTSInvalid
		return
	}
	self.SampleRate = sampleRates[idx]
	self.ChannelCount = int(b[2]&0x1)<<2 | int(b[3]>>6)
	if self.ChannelCount == 7 {
		self.ChannelCount = 8
	}
	self.HeaderLength = ADTSHeaderLength
	if b[1]&0x1 == 0 {
		self.HeaderLength += 2
	}
	self.FrameLength = int(b[3]&0x3)<<11 | int(b[4])<<3 | int(b[5]>>5)
	self.Frames = int(b[6]&0x3) + 1
	if self.FrameLength < self.HeaderLength || self.ChannelCount == 0 {
		err = ErrADTSInvalid
	}
	return
}

// Config returns the AudioSpecificConfig equivalent of the header.
func (self ADTSHeader) Config() mpeg4audio.AudioSpecificConfig {
	return mpeg4audio.AudioSpecificConfig{
		Type:         self.ObjectType,
		SampleRate:   self.SampleRate,
		ChannelCount: self.ChannelCount,
	}
}

// SplitADTS decodes one complete ADTS frame and returns its raw payload.
func SplitADTS(frame []byte) (au []byte, hdr ADTSHeader, err error) {
	if hdr, err = ParseADTSHeader(frame); err != nil {
		return
	}
	if len(frame) < hdr.FrameLength {
		err = ErrADTSInvalid
		return
	}
	frame = frame[:hdr.FrameLength]
	if hdr.HeaderLength == ADTSHeaderLength && hdr.ObjectType == mpeg4audio.ObjectTypeAACLC &&
		hdr.Frames == 1 && hdr.FrameLength > hdr.HeaderLength {
		var pkts mpeg4audio.ADTSPackets
		if err = pkts.Unmarshal(frame); err != nil {
			err = errors.Wrap(ErrADTSInvalid, err.Error())
			return
		}
		au = pkts[0].AU
		return
	}
	au = frame[hdr.HeaderLength:]
	return
}

// MakeADTS wraps one raw AAC-LC frame in an ADTS header.
func MakeADTS(config mpeg4audio.AudioSpecificConfig, au []byte) ([]byte, error) {
	pkts := mpeg4audio.ADTSPackets{{
		Type:         config.Type,
		SampleRate:   config.SampleRate,
		ChannelCount: config.ChannelCount,
		AU:           au,
	}}
	b, err := pkts.Marshal()
	if err != nil {
		return nil, errors.Wrap(err, "aacparser: marshal ADTS")
	}
	return b, nil
}

var legacyProfiles = map[string]mpeg4audio.ObjectType{
	"MAIN": 1,
	"LC":   mpeg4audio.ObjectTypeAACLC,
	"SSR":  3,
	"LTP":  4,
}

// LegacyConfig builds the AudioSpecificConfig implied by an old style codec
// ID such as "A_AAC/MPEG4/LC" that comes without CodecPrivate. SBR variants
// are described by their core profile.
func LegacyConfig(codecID string, sampleRate float64, channels int) mpeg4audio.AudioSpecificConfig {
	config := mpeg4audio.AudioSpecificConfig{
		Type:         mpeg4audio.ObjectTypeAACLC,
		SampleRate:   int(sampleRate),
		ChannelCount: channels,
	}
	parts := strings.Split(codecID, "/")
	if len(parts) >= 3 {
		if typ, ok := legacyProfiles[parts[2]]; ok {
			config.Type = typ
		}
	}
	return config
}

type CodecData struct {
	ConfigBytes []byte
	Config      mpeg4audio.AudioSpecificConfig
}

func (self CodecData) Type() av.CodecType {
	return av.AAC
}

func (self CodecData) MPEG4AudioConfigBytes() []byte {
	return self.ConfigBytes
}

func (self CodecData) SampleRate() int {
	return self.Config.SampleRate
}

func (self CodecData) ChannelCount() int {
	return self.Config.ChannelCount
}

// PacketDuration is the play time of one raw AAC frame.
func (self CodecData) PacketDuration() time.Duration {
	if self.Config.SampleRate == 0 {
		return 0
	}
	return time.Duration(SamplesPerFrame) * time.Second / time.Duration(self.Config.SampleRate)
}

func (self CodecData) NewTrack(id int64) *av.Track {
	t := av.NewTrack(id, av.KindAudio, av.AAC, codec.IDAAC)
	t.CodecPrivate = self.ConfigBytes
	t.Audio = &av.AudioParams{SampleRate: float64(self.Config.SampleRate), Channels: self.Config.ChannelCount}
	t.DefaultDuration = self.PacketDuration()
	return t
}

func NewCodecDataFromMPEG4AudioConfig(config mpeg4audio.AudioSpecificConfig) (self CodecData, err error) {
	if self.ConfigBytes, err = config.Marshal(); err != nil {
		err = errors.Wrap(err, "aacparser: marshal AudioSpecificConfig")
		return
	}
	self.Config = config
	return
}

func NewCodecDataFromMPEG4AudioConfigBytes(config []byte) (self CodecData, err error) {
	if err = self.Config.Unmarshal(config); err != nil {
		err = errors.Wrap(err, "aacparser: parse AudioSpecificConfig")
		return
	}
	self.ConfigBytes = config
	return
}
