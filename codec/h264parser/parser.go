package h264parser

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"

	"github.com/deepch/mkvmux/av"
	"github.com/deepch/mkvmux/codec"
)

const (
	NALU_RAW = iota
	NALU_AVCC
	NALU_ANNEXB
)

var StartCodeBytes = []byte{0, 0, 1}

// SplitNALUs splits an access unit in either Annex-B or length-prefixed
// form. Anything else is returned as a single raw NALU.
func SplitNALUs(b []byte) (nalus [][]byte, typ int) {
	if len(b) < 4 {
		return [][]byte{b}, NALU_RAW
	}

	if bytes.HasPrefix(b, StartCodeBytes) || bytes.HasPrefix(b, []byte{0, 0, 0, 1}) {
		var au h264.AnnexB
		if err := au.Unmarshal(b); err == nil {
			return au, NALU_ANNEXB
		}
	}

	var au h264.AVCC
	if err := au.Unmarshal(b); err == nil {
		return au, NALU_AVCC
	}

	return [][]byte{b}, NALU_RAW
}

func NALUType(nalu []byte) h264.NALUType {
	if len(nalu) == 0 {
		return 0
	}
	return h264.NALUType(nalu[0] & 0x1f)
}

func IsKeyFrame(nalus [][]byte) bool {
	for _, n := range nalus {
		if NALUType(n) == h264.NALUTypeIDR {
			return true
		}
	}
	return false
}

// IsDataNALU reports whether the NALU carries slice data.
func IsDataNALU(nalu []byte) bool {
	typ := NALUType(nalu)
	return typ >= h264.NALUTypeNonIDR && typ <= h264.NALUTypeIDR
}

// ToAVCC joins nalus into the length-prefixed form stored in blocks.
// Parameter sets and access unit delimiters are dropped; they live in
// CodecPrivate.
func ToAVCC(nalus [][]byte) ([]byte, error) {
	out := make(h264.AVCC, 0, len(nalus))
	for _, n := range nalus {
		switch NALUType(n) {
		case h264.NALUTypeSPS, h264.NALUTypePPS, h264.NALUTypeAccessUnitDelimiter:
			continue
		}
		if len(n) > 0 {
			out = append(out, n)
		}
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out.Marshal()
}

type CodecData struct {
	Record     []byte
	RecordInfo AVCDecoderConfRecord
	SPSInfo    h264.SPS
}

func (self CodecData) Type() av.CodecType {
	return av.H264
}

func (self CodecData) AVCDecoderConfRecordBytes() []byte {
	return self.Record
}

func (self CodecData) SPS() []byte {
	return self.RecordInfo.SPS[0]
}

func (self CodecData) PPS() []byte {
	return self.RecordInfo.PPS[0]
}

func (self CodecData) Width() int {
	return self.SPSInfo.Width()
}

func (self CodecData) Height() int {
	return self.SPSInfo.Height()
}

func (self CodecData) FPS() float64 {
	return self.SPSInfo.FPS()
}

// Reordered reports whether B-frames may be present, which makes decode
// order differ from presentation order.
func (self CodecData) Reordered() bool {
	switch self.SPSInfo.ProfileIdc {
	case 66:
		return false
	}
	return true
}

// NewTrack builds the track for this stream.
func (self CodecData) NewTrack(id int64) *av.Track {
	t := av.NewTrack(id, av.KindVideo, av.H264, codec.IDAVC)
	t.CodecPrivate = self.Record
	t.Video = &av.VideoParams{
		PixelWidth:  self.Width(),
		PixelHeight: self.Height(),
	}
	t.Reordered = self.Reordered()
	return t
}

func NewCodecDataFromAVCDecoderConfRecord(record []byte) (self CodecData, err error) {
	self.Record = record
	if _, err = self.RecordInfo.Unmarshal(record); err != nil {
		return
	}
	if len(self.RecordInfo.SPS) == 0 {
		err = fmt.Errorf("h264parser: no SPS found in AVCDecoderConfRecord")
		return
	}
	if len(self.RecordInfo.PPS) == 0 {
		err = fmt.Errorf("h264parser: no PPS found in AVCDecoderConfRecord")
		return
	}
	if err = self.SPSInfo.Unmarshal(self.RecordInfo.SPS[0]); err != nil {
		err = fmt.Errorf("h264parser: parse SPS failed(%s)", err)
		return
	}
	return
}

func NewCodecDataFromSPSAndPPS(sps, pps []byte) (self CodecData, err error) {
	if len(sps) < 4 {
		err = fmt.Errorf("h264parser: SPS too short")
		return
	}
	if err = self.SPSInfo.Unmarshal(sps); err != nil {
		err = fmt.Errorf("h264parser: parse SPS failed(%s)", err)
		return
	}
	self.RecordInfo.AVCProfileIndication = sps[1]
	self.RecordInfo.ProfileCompatibility = sps[2]
	self.RecordInfo.AVCLevelIndication = sps[3]
	self.RecordInfo.SPS = [][]byte{sps}
	self.RecordInfo.PPS = [][]byte{pps}
	self.RecordInfo.LengthSizeMinusOne = 3
	self.Record = self.RecordInfo.Marshal()
	return
}

// AVCDecoderConfRecord is the avcC box payload, used verbatim as
// CodecPrivate.
type AVCDecoderConfRecord struct {
	AVCProfileIndication uint8
	ProfileCompatibility uint8
	AVCLevelIndication   uint8
	LengthSizeMinusOne   uint8
	SPS                  [][]byte
	PPS                  [][]byte
}

var ErrDecconfInvalid = fmt.Errorf("h264parser: AVCDecoderConfRecord invalid")

func (self *AVCDecoderConfRecord) Unmarshal(b []byte) (n int, err error) {
	if len(b) < 7 {
		err = ErrDecconfInvalid
		return
	}

	self.AVCProfileIndication = b[1]
	self.ProfileCompatibility = b[2]
	self.AVCLevelIndication = b[3]
	self.LengthSizeMinusOne = b[4] & 0x03
	spscount := int(b[5] & 0x1f)
	n += 6

	for i := 0; i < spscount; i++ {
		if len(b) < n+2 {
			err = ErrDecconfInvalid
			return
		}
		spslen := int(b[n])<<8 | int(b[n+1])
		n += 2

		if len(b) < n+spslen {
			err = ErrDecconfInvalid
			return
		}
		self.SPS = append(self.SPS, b[n:n+spslen])
		n += spslen
	}

	if len(b) < n+1 {
		err = ErrDecconfInvalid
		return
	}
	ppscount := int(b[n])
	n++

	for i := 0; i < ppscount; i++ {
		if len(b) < n+2 {
			err = ErrDecconfInvalid
			return
		}
		ppslen := int(b[n])<<8 | int(b[n+1])
		n += 2

		if len(b) < n+ppslen {
			err = ErrDecconfInvalid
			return
		}
		self.PPS = append(self.PPS, b[n:n+ppslen])
		n += ppslen
	}

	return
}

func (self AVCDecoderConfRecord) Len() (n int) {
	n = 7
	for _, sps := range self.SPS {
		n += 2 + len(sps)
	}
	for _, pps := range self.PPS {
		n += 2 + len(pps)
	}
	return
}

func (self AVCDecoderConfRecord) Marshal() []byte {
	b := make([]byte, 0, self.Len())
	b = append(b, 1, self.AVCProfileIndication, self.ProfileCompatibility, self.AVCLevelIndication)
	b = append(b, self.LengthSizeMinusOne|0xfc, uint8(len(self.SPS))|0xe0)
	for _, sps := range self.SPS {
		b = append(b, byte(len(sps)>>8), byte(len(sps)))
		b = append(b, sps...)
	}
	b = append(b, uint8(len(self.PPS)))
	for _, pps := range self.PPS {
		b = append(b, byte(len(pps)>>8), byte(len(pps)))
		b = append(b, pps...)
	}
	return b
}

// Relength rewrites AVCC length prefixes of n bytes to 4 bytes.
func Relength(b []byte, n int) ([]byte, error) {
	out := make([]byte, 0, len(b)+len(b)/4)
	for len(b) > 0 {
		if len(b) < n {
			return nil, errors.New("truncated NALU length")
		}
		var l int
		for _, c := range b[:n] {
			l = l<<8 | int(c)
		}
		b = b[n:]
		if l > len(b) {
			return nil, errors.New("NALU length exceeds sample")
		}
		out = binary.BigEndian.AppendUint32(out, uint32(l))
		out = append(out, b[:l]...)
		b = b[l:]
	}
	return out, nil
}
