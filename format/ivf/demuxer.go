// Package ivf reads IVF files carrying VP8 or VP9 frames.
package ivf

import (
	"encoding/binary"
	"io"
	"time"

	"github.com/deepch/mkvmux/av"
	"github.com/deepch/mkvmux/av/avutil"
	"github.com/deepch/mkvmux/codec"
)

const (
	HeaderLength      = 32
	FrameHeaderLength = 12
)

var Signature = []byte("DKIF")

type Header struct {
	Version   uint16
	Length    uint16
	FourCC    string
	Width     uint16
	Height    uint16
	Rate      uint32
	Scale     uint32
	NumFrames uint32
}

func ParseHeader(b []byte) (self Header, err error) {
	if len(b) < HeaderLength || string(b[:4]) != string(Signature) {
		err = av.FormatErr("ivf", "signature", 0, nil)
		return
	}
	self.Version = binary.LittleEndian.Uint16(b[4:])
	self.Length = binary.LittleEndian.Uint16(b[6:])
	self.FourCC = string(b[8:12])
	self.Width = binary.LittleEndian.Uint16(b[12:])
	self.Height = binary.LittleEndian.Uint16(b[14:])
	self.Rate = binary.LittleEndian.Uint32(b[16:])
	self.Scale = binary.LittleEndian.Uint32(b[20:])
	self.NumFrames = binary.LittleEndian.Uint32(b[24:])
	if self.Length < HeaderLength || self.Rate == 0 || self.Scale == 0 {
		err = av.FormatErr("ivf", "header", 4, nil)
	}
	return
}

func (self Header) Marshal() []byte {
	b := make([]byte, HeaderLength)
	copy(b, Signature)
	binary.LittleEndian.PutUint16(b[4:], self.Version)
	binary.LittleEndian.PutUint16(b[6:], HeaderLength)
	copy(b[8:12], self.FourCC)
	binary.LittleEndian.PutUint16(b[12:], self.Width)
	binary.LittleEndian.PutUint16(b[14:], self.Height)
	binary.LittleEndian.PutUint32(b[16:], self.Rate)
	binary.LittleEndian.PutUint32(b[20:], self.Scale)
	binary.LittleEndian.PutUint32(b[24:], self.NumFrames)
	return b
}

// Time converts a frame timestamp in timebase units.
func (self Header) Time(pts uint64) time.Duration {
	return time.Duration(float64(pts) * float64(self.Scale) * float64(time.Second) / float64(self.Rate))
}

func MarshalFrameHeader(size int, pts uint64) []byte {
	b := make([]byte, FrameHeaderLength)
	binary.LittleEndian.PutUint32(b, uint32(size))
	binary.LittleEndian.PutUint64(b[4:], pts)
	return b
}

var fourCCs = map[string]av.CodecType{
	"VP80": av.VP8,
	"VP90": av.VP9,
	"AV01": av.AV1,
}

// IsKeyFrame inspects the frame header of VP8 and VP9 frames.
func IsKeyFrame(typ av.CodecType, frame []byte) bool {
	if len(frame) == 0 {
		return false
	}
	switch typ {
	case av.VP8:
		return frame[0]&0x01 == 0
	case av.VP9:
		b := frame[0]
		if b>>6 != 2 {
			return false
		}
		profile := (b>>5)&1 | (b>>4)&1<<1
		shift := uint(3)
		if profile == 3 {
			shift--
		}
		// show_existing_frame
		if (b>>shift)&1 == 1 {
			return false
		}
		return (b>>(shift-1))&1 == 0
	}
	return false
}

type Demuxer struct {
	avutil.Router

	r    io.Reader
	cnt  *avutil.Counter
	size int64

	header Header
	typ    av.CodecType
	track  *av.Track
	done   bool
}

func NewDemuxer(r io.Reader, size int64) *Demuxer {
	cnt := &avutil.Counter{R: r}
	return &Demuxer{r: cnt, cnt: cnt, size: size}
}

func (self *Demuxer) Identify() (tracks []*av.Track, err error) {
	if self.track != nil {
		return []*av.Track{self.track}, nil
	}
	b := make([]byte, HeaderLength)
	if _, err = io.ReadFull(self.r, b); err != nil {
		return nil, av.FormatErr("ivf", "header", 0, err)
	}
	if self.header, err = ParseHeader(b); err != nil {
		return
	}
	if extra := int64(self.header.Length) - HeaderLength; extra > 0 {
		if _, err = io.CopyN(io.Discard, self.r, extra); err != nil {
			return nil, av.FormatErr("ivf", "header", HeaderLength, err)
		}
	}

	self.typ = fourCCs[self.header.FourCC]
	id := codec.ID(self.typ)
	if self.typ == av.AV1 {
		// av1C codec private cannot be derived here
		self.typ = av.UNKNOWN
	}
	if id == "" {
		id = "V_FOURCC/" + self.header.FourCC
	}
	t := av.NewTrack(0, av.KindVideo, self.typ, id)
	t.Video = &av.VideoParams{PixelWidth: int(self.header.Width), PixelHeight: int(self.header.Height)}
	t.DefaultDuration = self.header.Time(1)
	self.track = t
	self.SetTracks([]*av.Track{t})
	return []*av.Track{t}, nil
}

func (self *Demuxer) Read(force bool) (status av.Status, err error) {
	if self.done {
		return av.Done, nil
	}

	hdr := make([]byte, FrameHeaderLength)
	if _, err = io.ReadFull(self.r, hdr); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			self.done = true
			return av.Done, self.Flush()
		}
		return av.MoreData, self.Fail(self.track.ID, &av.IOError{Op: "read", Err: err})
	}
	size := binary.LittleEndian.Uint32(hdr)
	pts := binary.LittleEndian.Uint64(hdr[4:])
	if self.size > 0 && int64(size) > self.size {
		return av.MoreData, self.Fail(self.track.ID, av.FormatErr("ivf", "frame_size", self.cnt.N, nil))
	}
	frame := make([]byte, size)
	if _, err = io.ReadFull(self.r, frame); err != nil {
		// truncated last frame
		self.done = true
		return av.Done, self.Flush()
	}

	if err = self.Route(av.Packet{
		TrackID:    self.track.ID,
		IsKeyFrame: IsKeyFrame(self.typ, frame),
		Time:       self.header.Time(pts),
		Data:       frame,
	}); err != nil {
		return av.MoreData, err
	}
	if self.Unbound() {
		self.done = true
		return av.Done, nil
	}
	return av.MoreData, nil
}

func (self *Demuxer) Progress() int {
	if self.done {
		return 100
	}
	return avutil.Percent(self.cnt.N, self.size)
}

func Handler(h *avutil.RegisterHandler) {
	h.Name = "IVF (VP8/VP9/AV1)"
	h.Ext = ".ivf"

	h.Probe = func(r io.ReadSeeker, size int64) bool {
		b, err := avutil.ReadPrefix(r, HeaderLength)
		if err != nil {
			return false
		}
		_, err = ParseHeader(b)
		return err == nil
	}

	h.Open = func(r io.ReadSeeker, size int64) (av.Reader, error) {
		return NewDemuxer(r, size), nil
	}
}
