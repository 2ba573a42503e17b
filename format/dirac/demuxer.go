// Package dirac reads Dirac elementary streams.
package dirac

import (
	"bufio"
	"io"
	"time"

	"github.com/deepch/mkvmux/av"
	"github.com/deepch/mkvmux/av/avutil"
	"github.com/deepch/mkvmux/codec/diracparser"
)

const bufferSize = 1 << 20

type Demuxer struct {
	avutil.Router

	r    *bufio.Reader
	cnt  *avutil.Counter
	size int64

	header  diracparser.SequenceHeader
	track   *av.Track
	pending []byte
	frames  int64
	done    bool
}

func NewDemuxer(r io.Reader, size int64) *Demuxer {
	cnt := &avutil.Counter{R: r}
	return &Demuxer{
		r:    bufio.NewReaderSize(cnt, bufferSize),
		cnt:  cnt,
		size: size,
	}
}

func parseSequence(b []byte) (hdr diracparser.SequenceHeader, err error) {
	pi, err := diracparser.ParseParseInfo(b)
	if err != nil {
		return
	}
	if pi.Code != diracparser.ParseCodeSequenceHeader {
		err = diracparser.ErrParseInfoInvalid
		return
	}
	end := len(b)
	if pi.NextOffset > diracparser.ParseInfoLength && int(pi.NextOffset) < end {
		end = int(pi.NextOffset)
	}
	return diracparser.ParseSequenceHeader(b[diracparser.ParseInfoLength:end])
}

// Probe accepts streams starting with a parse info and a valid sequence
// header.
func Probe(b []byte) bool {
	_, err := parseSequence(b)
	return err == nil
}

func (self *Demuxer) Identify() (tracks []*av.Track, err error) {
	if self.track != nil {
		return []*av.Track{self.track}, nil
	}
	b, err := self.r.Peek(bufferSize)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, &av.IOError{Op: "read", Err: err}
	}
	if self.header, err = parseSequence(b); err != nil {
		return nil, av.FormatErr("dirac", "sequence_header", 0, err)
	}
	self.track = self.header.NewTrack(0)
	self.SetTracks([]*av.Track{self.track})
	return []*av.Track{self.track}, nil
}

// nextUnit reads one parse unit with its parse info.
func (self *Demuxer) nextUnit() (pi diracparser.ParseInfo, unit []byte, err error) {
	b, err := self.r.Peek(diracparser.ParseInfoLength)
	if len(b) < diracparser.ParseInfoLength {
		if err == nil || err == io.EOF {
			err = io.EOF
		} else {
			err = &av.IOError{Op: "read", Err: err}
		}
		return
	}
	if pi, err = diracparser.ParseParseInfo(b); err != nil {
		return
	}

	n := int(pi.NextOffset)
	if n < diracparser.ParseInfoLength {
		// next offset 0: the unit runs to the next prefix
		peek, _ := self.r.Peek(bufferSize)
		if n = diracparser.FindParseInfo(peek, diracparser.ParseInfoLength); n < 0 {
			n = len(peek)
		}
	}
	unit = make([]byte, n)
	if _, err = io.ReadFull(self.r, unit); err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	return
}

// Read collects parse units up to the next picture and passes them on as
// one frame. Sequence headers and auxiliary data stay with the picture that
// follows them.
func (self *Demuxer) Read(force bool) (status av.Status, err error) {
	if self.done {
		return av.Done, nil
	}

	for {
		pi, unit, err := self.nextUnit()
		if err == io.EOF {
			self.done = true
			return av.Done, self.Flush()
		}
		if err != nil {
			return av.MoreData, self.Fail(self.track.ID, err)
		}
		if pi.Code == diracparser.ParseCodeEndOfSequence {
			continue
		}
		self.pending = append(self.pending, unit...)
		if !pi.IsPicture() {
			continue
		}

		frameDur := self.header.FrameDuration()
		pkt := av.Packet{
			TrackID:    self.track.ID,
			IsKeyFrame: pi.IsIntra(),
			Time:       time.Duration(self.frames) * frameDur,
			Duration:   frameDur,
			Data:       self.pending,
		}
		self.pending = nil
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
}

func (self *Demuxer) Progress() int {
	if self.done {
		return 100
	}
	return avutil.Percent(self.cnt.N-int64(self.r.Buffered()), self.size)
}

func Handler(h *avutil.RegisterHandler) {
	h.Name = "Dirac"
	h.Ext = ".drc"

	h.Probe = func(r io.ReadSeeker, size int64) bool {
		b, err := avutil.ReadPrefix(r, avutil.ProbeSize)
		return err == nil && Probe(b)
	}

	h.Open = func(r io.ReadSeeker, size int64) (av.Reader, error) {
		return NewDemuxer(r, size), nil
	}
}
