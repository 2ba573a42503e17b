// Package diracparser reads the parse-info framing and sequence header of
// Dirac elementary streams.
package diracparser

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/bits"

	"github.com/deepch/mkvmux/av"
	"github.com/deepch/mkvmux/codec"
)

var Prefix = []byte("BBCD")

const ParseInfoLength = 13

const (
	ParseCodeSequenceHeader = 0x00
	ParseCodeEndOfSequence  = 0x10
	ParseCodeAuxiliaryData  = 0x20
	ParseCodePaddingData    = 0x30
)

var ErrParseInfoInvalid = fmt.Errorf("diracparser: parse info invalid")

type ParseInfo struct {
	Code       uint8
	NextOffset uint32
	PrevOffset uint32
}

func (self ParseInfo) IsPicture() bool {
	return self.Code&0x08 != 0
}

// IsIntra reports a picture without references.
func (self ParseInfo) IsIntra() bool {
	return self.IsPicture() && self.Code&0x03 == 0
}

func (self ParseInfo) IsReference() bool {
	return self.IsPicture() && self.Code&0x04 != 0
}

func ParseParseInfo(b []byte) (self ParseInfo, err error) {
	if len(b) < ParseInfoLength || !bytes.HasPrefix(b, Prefix) {
		err = ErrParseInfoInvalid
		return
	}
	self.Code = b[4]
	self.NextOffset = binary.BigEndian.Uint32(b[5:])
	self.PrevOffset = binary.BigEndian.Uint32(b[9:])
	return
}

// FindParseInfo returns the offset of the next parse-info prefix in b at or
// after from, or -1.
func FindParseInfo(b []byte, from int) int {
	if from >= len(b) {
		return -1
	}
	i := bytes.Index(b[from:], Prefix)
	if i < 0 {
		return -1
	}
	return from + i
}

type SequenceHeader struct {
	MajorVersion    uint32
	MinorVersion    uint32
	Profile         uint32
	Level           uint32
	BaseVideoFormat uint32
	Width           uint32
	Height          uint32
	ChromaFormat    uint32
	Interlaced      bool
	FrameRateNum    uint32
	FrameRateDen    uint32
}

type videoFormat struct {
	width, height uint32
	rateNum       uint32
	rateDen       uint32
}

var baseVideoFormats = []videoFormat{
	{640, 480, 24000, 1001},
	{176, 120, 15000, 1001},
	{176, 144, 25, 2},
	{352, 240, 15000, 1001},
	{352, 288, 25, 2},
	{704, 480, 15000, 1001},
	{704, 576, 25, 2},
	{720, 480, 30000, 1001},
	{720, 576, 25, 1},
	{1280, 720, 60000, 1001},
	{1280, 720, 50, 1},
	{1920, 1080, 30000, 1001},
	{1920, 1080, 25, 1},
	{1920, 1080, 60000, 1001},
	{1920, 1080, 50, 1},
	{2048, 1080, 24, 1},
	{4096, 2160, 24, 1},
	{3840, 2160, 60000, 1001},
	{3840, 2160, 50, 1},
	{7680, 4320, 60000, 1001},
	{7680, 4320, 50, 1},
}

var frameRates = [][2]uint32{
	{0, 0},
	{24000, 1001},
	{24, 1},
	{25, 1},
	{30000, 1001},
	{30, 1},
	{50, 1},
	{60000, 1001},
	{60, 1},
	{15000, 1001},
	{25, 2},
	{48, 1},
}

// readUint decodes an interleaved exp-Golomb value.
func readUint(buf []byte, pos *int) (uint32, error) {
	v := uint32(1)
	for {
		stop, err := bits.ReadFlag(buf, pos)
		if err != nil {
			return 0, err
		}
		if stop {
			return v - 1, nil
		}
		one, err := bits.ReadFlag(buf, pos)
		if err != nil {
			return 0, err
		}
		v <<= 1
		if one {
			v++
		}
		if v >= 1<<31 {
			return 0, fmt.Errorf("diracparser: value too large")
		}
	}
}

// ParseSequenceHeader decodes the payload following a sequence header's
// parse info.
func ParseSequenceHeader(b []byte) (self SequenceHeader, err error) {
	pos := 0
	for _, p := range []*uint32{&self.MajorVersion, &self.MinorVersion, &self.Profile, &self.Level, &self.BaseVideoFormat} {
		if *p, err = readUint(b, &pos); err != nil {
			return
		}
	}
	if int(self.BaseVideoFormat) >= len(baseVideoFormats) {
		err = fmt.Errorf("diracparser: unknown base video format %d", self.BaseVideoFormat)
		return
	}
	base := baseVideoFormats[self.BaseVideoFormat]
	self.Width, self.Height = base.width, base.height
	self.FrameRateNum, self.FrameRateDen = base.rateNum, base.rateDen

	var flag bool
	if flag, err = bits.ReadFlag(b, &pos); err != nil {
		return
	}
	if flag {
		if self.Width, err = readUint(b, &pos); err != nil {
			return
		}
		if self.Height, err = readUint(b, &pos); err != nil {
			return
		}
	}

	if flag, err = bits.ReadFlag(b, &pos); err != nil {
		return
	}
	if flag {
		if self.ChromaFormat, err = readUint(b, &pos); err != nil {
			return
		}
	}

	if flag, err = bits.ReadFlag(b, &pos); err != nil {
		return
	}
	if flag {
		var scan uint32
		if scan, err = readUint(b, &pos); err != nil {
			return
		}
		self.Interlaced = scan != 0
	}

	if flag, err = bits.ReadFlag(b, &pos); err != nil {
		return
	}
	if flag {
		var idx uint32
		if idx, err = readUint(b, &pos); err != nil {
			return
		}
		if idx == 0 {
			if self.FrameRateNum, err = readUint(b, &pos); err != nil {
				return
			}
			if self.FrameRateDen, err = readUint(b, &pos); err != nil {
				return
			}
		} else if int(idx) < len(frameRates) {
			self.FrameRateNum, self.FrameRateDen = frameRates[idx][0], frameRates[idx][1]
		} else {
			err = fmt.Errorf("diracparser: unknown frame rate index %d", idx)
			return
		}
	}

	if self.Width == 0 || self.Height == 0 {
		err = fmt.Errorf("diracparser: invalid frame size %dx%d", self.Width, self.Height)
	}
	return
}

// FrameDuration is the display time of one picture.
func (self SequenceHeader) FrameDuration() time.Duration {
	if self.FrameRateNum == 0 || self.FrameRateDen == 0 {
		return 0
	}
	return time.Duration(uint64(time.Second) * uint64(self.FrameRateDen) / uint64(self.FrameRateNum))
}

func (self SequenceHeader) NewTrack(id int64) *av.Track {
	t := av.NewTrack(id, av.KindVideo, av.DIRAC, codec.IDDirac)
	t.Video = &av.VideoParams{
		PixelWidth:  int(self.Width),
		PixelHeight: int(self.Height),
		Interlaced:  self.Interlaced,
	}
	t.DefaultDuration = self.FrameDuration()
	return t
}

type bitWriter struct {
	buf []byte
	pos int
}

func (self *bitWriter) flag(v bool) {
	if self.pos/8 >= len(self.buf) {
		self.buf = append(self.buf, 0)
	}
	n := uint64(0)
	if v {
		n = 1
	}
	bits.WriteBitsUnsafe(self.buf, &self.pos, n, 1)
}

func (self *bitWriter) uint(v uint32) {
	v++
	n := 0
	for x := v; x > 1; x >>= 1 {
		n++
	}
	for i := n - 1; i >= 0; i-- {
		self.flag(false)
		self.flag(v>>uint(i)&1 == 1)
	}
	self.flag(true)
}

// Marshal encodes the header with an explicit frame size and frame rate.
// Fields not covered are written as defaults of the base format.
func (self SequenceHeader) Marshal() []byte {
	w := &bitWriter{}
	for _, v := range []uint32{self.MajorVersion, self.MinorVersion, self.Profile, self.Level, self.BaseVideoFormat} {
		w.uint(v)
	}
	w.flag(true)
	w.uint(self.Width)
	w.uint(self.Height)
	w.flag(false)
	w.flag(self.Interlaced)
	if self.Interlaced {
		w.uint(1)
	}
	w.flag(true)
	w.uint(0)
	w.uint(self.FrameRateNum)
	w.uint(self.FrameRateDen)
	// remaining source and coding parameters take their defaults
	w.flag(false)
	w.flag(false)
	w.flag(false)
	w.flag(false)
	return w.buf
}

// MarshalParseInfo encodes a parse-info header.
func MarshalParseInfo(code uint8, next, prev uint32) []byte {
	b := make([]byte, ParseInfoLength)
	copy(b, Prefix)
	b[4] = code
	binary.BigEndian.PutUint32(b[5:], next)
	binary.BigEndian.PutUint32(b[9:], prev)
	return b
}
