// Package aac reads raw ADTS streams.
package aac

import (
	"bufio"
	"io"
	"time"

	"github.com/deepch/mkvmux/av"
	"github.com/deepch/mkvmux/av/avutil"
	"github.com/deepch/mkvmux/codec/aacparser"
)

// frames that must chain for a probe to claim the input
const probeFrames = 3

// bytes skipped looking for the next sync word after a damaged frame
const maxResync = 64 * 1024

type Demuxer struct {
	avutil.Router

	r     *bufio.Reader
	cnt   *avutil.Counter
	size  int64
	start int64

	codec  aacparser.CodecData
	track  *av.Track
	frames int64
	done   bool
}

func NewDemuxer(r io.Reader, size int64) *Demuxer {
	cnt := &avutil.Counter{R: r}
	return &Demuxer{
		r:    bufio.NewReaderSize(cnt, 64*1024),
		cnt:  cnt,
		size: size,
	}
}

// id3Size is the length of an ID3v2 tag at the start of b, 0 if there is
// none.
func id3Size(b []byte) int {
	if len(b) < 10 || string(b[:3]) != "ID3" {
		return 0
	}
	n := int(b[6]&0x7f)<<21 | int(b[7]&0x7f)<<14 | int(b[8]&0x7f)<<7 | int(b[9]&0x7f)
	if b[5]&0x10 != 0 {
		n += 10
	}
	return 10 + n
}

// Probe accepts inputs starting with chained ADTS frames. Inputs shorter
// than the chain must end exactly on a frame boundary.
func Probe(b []byte) bool {
	pos := id3Size(b)
	for i := 0; i < probeFrames; i++ {
		if pos == len(b) && i > 0 {
			return true
		}
		hdr, err := aacparser.ParseADTSHeader(b[pos:])
		if err != nil {
			return false
		}
		pos += hdr.FrameLength
		if pos > len(b) {
			return i > 0
		}
	}
	return true
}

func (self *Demuxer) Identify() (tracks []*av.Track, err error) {
	if self.track != nil {
		return []*av.Track{self.track}, nil
	}

	b, err := self.r.Peek(10)
	if err != nil && err != io.EOF {
		return nil, &av.IOError{Op: "read", Err: err}
	}
	if n := id3Size(b); n > 0 {
		if _, err = self.r.Discard(n); err != nil {
			return nil, av.FormatErr("aac", "id3", 0, err)
		}
		self.start = int64(n)
	}

	if b, err = self.r.Peek(aacparser.ADTSHeaderLength); err != nil {
		return nil, av.FormatErr("aac", "adts", self.start, err)
	}
	hdr, err := aacparser.ParseADTSHeader(b)
	if err != nil {
		return nil, av.FormatErr("aac", "adts", self.start, err)
	}
	if self.codec, err = aacparser.NewCodecDataFromMPEG4AudioConfig(hdr.Config()); err != nil {
		return nil, av.FormatErr("aac", "config", self.start, err)
	}

	self.track = self.codec.NewTrack(0)
	self.SetTracks([]*av.Track{self.track})
	return []*av.Track{self.track}, nil
}

// Read passes one ADTS frame on. Damaged headers are skipped up to the
// next sync word.
func (self *Demuxer) Read(force bool) (status av.Status, err error) {
	if self.done {
		return av.Done, nil
	}

	frame, err := self.next()
	if err == io.EOF {
		self.done = true
		return av.Done, self.Flush()
	}
	if err != nil {
		return av.MoreData, self.Fail(self.track.ID, err)
	}

	pkt := av.Packet{
		TrackID:    self.track.ID,
		IsKeyFrame: true,
		Time:       time.Duration(self.frames) * self.codec.PacketDuration(),
		Duration:   self.codec.PacketDuration(),
		Data:       frame,
	}
	self.frames++
	if err = self.Route(pkt); err != nil {
		return av.MoreData, err
	}
	if self.Unbound() {
		self.done = true
		return av.Done, nil
	}
	return av.MoreData, nil
}

func (self *Demuxer) next() ([]byte, error) {
	for skipped := 0; ; skipped++ {
		b, err := self.r.Peek(aacparser.ADTSHeaderLength)
		if len(b) < aacparser.ADTSHeaderLength {
			if err == nil || err == io.EOF {
				return nil, io.EOF
			}
			return nil, &av.IOError{Op: "read", Err: err}
		}
		hdr, err := aacparser.ParseADTSHeader(b)
		if err == nil {
			frame := make([]byte, hdr.FrameLength)
			_, err := io.ReadFull(self.r, frame)
			if err == io.ErrUnexpectedEOF || err == io.EOF {
				// truncated last frame
				return nil, io.EOF
			}
			if err != nil {
				return nil, &av.IOError{Op: "read", Err: err}
			}
			return frame, nil
		}
		if skipped >= maxResync {
			return nil, av.FormatErr("aac", "resync", self.cnt.N, err)
		}
		self.r.Discard(1)
	}
}

func (self *Demuxer) Progress() int {
	if self.done {
		return 100
	}
	return avutil.Percent(self.cnt.N-int64(self.r.Buffered()), self.size)
}

func Handler(h *avutil.RegisterHandler) {
	h.Name = "AAC"
	h.Ext = ".aac"

	h.Probe = func(r io.ReadSeeker, size int64) bool {
		b, err := avutil.ReadPrefix(r, avutil.ProbeSize)
		return err == nil && Probe(b)
	}

	h.Open = func(r io.ReadSeeker, size int64) (av.Reader, error) {
		return NewDemuxer(r, size), nil
	}
}
