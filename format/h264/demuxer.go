// Package h264 reads H.264 elementary streams in Annex-B byte stream
// format.
package h264

import (
	"bytes"
	"io"
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"

	"github.com/deepch/mkvmux/av"
	"github.com/deepch/mkvmux/av/avutil"
	"github.com/deepch/mkvmux/codec/h264parser"
)

// DefaultFrameDuration applies when the SPS carries no timing info.
const DefaultFrameDuration = 40 * time.Millisecond

const (
	chunkSize = 64 * 1024
	// parameter sets must show up within this many bytes
	maxParamSearch = 1 << 20
)

var startCode = []byte{0, 0, 1}

type Demuxer struct {
	avutil.Router

	r    io.Reader
	cnt  *avutil.Counter
	size int64

	buf []byte
	eof bool

	pending  [][]byte
	hasSlice bool

	codec    h264parser.CodecData
	track    *av.Track
	frameDur time.Duration
	frames   int64
	done     bool
}

func NewDemuxer(r io.Reader, size int64) *Demuxer {
	cnt := &avutil.Counter{R: r}
	return &Demuxer{r: cnt, cnt: cnt, size: size}
}

// splitAnnexB splits b at start codes. The trailing unit may be cut short.
func splitAnnexB(b []byte) (nalus [][]byte) {
	i := bytes.Index(b, startCode)
	for i >= 0 {
		start := i + len(startCode)
		next := bytes.Index(b[start:], startCode)
		if next < 0 {
			nalus = append(nalus, b[start:])
			return
		}
		nalus = append(nalus, bytes.TrimRight(b[start:start+next], "\x00"))
		i = start + next
	}
	return
}

func findParams(b []byte) (sps, pps []byte) {
	for _, nalu := range splitAnnexB(b) {
		switch h264parser.NALUType(nalu) {
		case h264.NALUTypeSPS:
			if sps == nil {
				sps = nalu
			}
		case h264.NALUTypePPS:
			if pps == nil {
				pps = nalu
			}
		}
		if sps != nil && pps != nil {
			return
		}
	}
	return
}

// Probe accepts a byte stream that starts with a start code and carries a
// parsable SPS and a PPS.
func Probe(b []byte) bool {
	lead := bytes.TrimLeft(b, "\x00")
	if len(b)-len(lead) < 2 || len(lead) == 0 || lead[0] != 1 {
		return false
	}
	sps, pps := findParams(b)
	if sps == nil || pps == nil {
		return false
	}
	_, err := h264parser.NewCodecDataFromSPSAndPPS(sps, pps)
	return err == nil
}

func (self *Demuxer) fill() error {
	if self.eof {
		return io.EOF
	}
	chunk := make([]byte, chunkSize)
	n, err := io.ReadFull(self.r, chunk)
	self.buf = append(self.buf, chunk[:n]...)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		self.eof = true
		if n == 0 {
			return io.EOF
		}
		return nil
	}
	if err != nil {
		return &av.IOError{Op: "read", Err: err}
	}
	return nil
}

func (self *Demuxer) Identify() (tracks []*av.Track, err error) {
	if self.track != nil {
		return []*av.Track{self.track}, nil
	}

	var sps, pps []byte
	for sps == nil || pps == nil {
		if len(self.buf) >= maxParamSearch {
			return nil, av.FormatErr("h264", "sps/pps", 0, nil)
		}
		if err = self.fill(); err == io.EOF {
			break
		}
		if err != nil {
			return
		}
		sps, pps = findParams(self.buf)
	}
	if sps == nil || pps == nil {
		return nil, av.FormatErr("h264", "sps/pps", 0, nil)
	}
	// copy, buf is reused
	sps, pps = append([]byte(nil), sps...), append([]byte(nil), pps...)

	if self.codec, err = h264parser.NewCodecDataFromSPSAndPPS(sps, pps); err != nil {
		return nil, av.FormatErr("h264", "sps", 0, err)
	}
	self.frameDur = DefaultFrameDuration
	if fps := self.codec.FPS(); fps > 0 {
		self.frameDur = time.Duration(float64(time.Second) / fps)
	}

	self.track = self.codec.NewTrack(0)
	self.track.DefaultDuration = self.frameDur
	self.SetTracks([]*av.Track{self.track})
	return []*av.Track{self.track}, nil
}

// nextNALU returns the next complete unit. At the end of the input the last
// unit runs to EOF.
func (self *Demuxer) nextNALU() ([]byte, error) {
	for {
		i := bytes.Index(self.buf, startCode)
		if i >= 0 {
			start := i + len(startCode)
			if next := bytes.Index(self.buf[start:], startCode); next >= 0 {
				nalu := bytes.TrimRight(self.buf[start:start+next], "\x00")
				self.buf = self.buf[start+next:]
				return append([]byte(nil), nalu...), nil
			}
			if self.eof {
				nalu := bytes.TrimRight(self.buf[start:], "\x00")
				self.buf = nil
				if len(nalu) == 0 {
					return nil, io.EOF
				}
				return append([]byte(nil), nalu...), nil
			}
		} else if self.eof {
			self.buf = nil
			return nil, io.EOF
		}
		if err := self.fill(); err != nil && err != io.EOF {
			return nil, err
		}
	}
}

func isSlice(nalu []byte) bool {
	typ := h264parser.NALUType(nalu)
	return typ == h264.NALUTypeNonIDR || typ == h264.NALUTypeIDR
}

// startsAccessUnit implements the first-NALU rules of H.264 7.4.1.2.3. A
// slice starts a new picture when first_mb_in_slice is 0.
func startsAccessUnit(nalu []byte) bool {
	switch typ := h264parser.NALUType(nalu); {
	case typ == h264.NALUTypeAccessUnitDelimiter, typ == h264.NALUTypeSPS,
		typ == h264.NALUTypePPS, typ == h264.NALUTypeSEI:
		return true
	case typ >= 14 && typ <= 18:
		return true
	case isSlice(nalu):
		return len(nalu) > 1 && nalu[1]&0x80 != 0
	}
	return false
}

// nextAccessUnit groups units until the next picture starts. Whatever is
// buffered at the end of the input forms the last access unit.
func (self *Demuxer) nextAccessUnit() ([][]byte, error) {
	for {
		nalu, err := self.nextNALU()
		if err == io.EOF {
			au := self.pending
			self.pending, self.hasSlice = nil, false
			if len(au) > 0 {
				return au, nil
			}
			return nil, io.EOF
		}
		if err != nil {
			return nil, err
		}
		if len(nalu) == 0 {
			continue
		}
		if self.hasSlice && startsAccessUnit(nalu) {
			au := self.pending
			self.pending = [][]byte{nalu}
			self.hasSlice = isSlice(nalu)
			return au, nil
		}
		self.pending = append(self.pending, nalu)
		self.hasSlice = self.hasSlice || isSlice(nalu)
	}
}

func (self *Demuxer) Read(force bool) (status av.Status, err error) {
	if self.done {
		return av.Done, nil
	}

	au, err := self.nextAccessUnit()
	if err == io.EOF {
		self.done = true
		return av.Done, self.Flush()
	}
	if err != nil {
		return av.MoreData, self.Fail(self.track.ID, err)
	}

	data, err := h264.AnnexB(au).Marshal()
	if err != nil {
		return av.MoreData, self.Fail(self.track.ID, err)
	}
	ts := time.Duration(self.frames) * self.frameDur
	self.frames++

	if err = self.Route(av.Packet{
		TrackID:    self.track.ID,
		IsKeyFrame: h264parser.IsKeyFrame(au),
		Time:       ts,
		DTS:        ts,
		HasDTS:     true,
		Duration:   self.frameDur,
		Data:       data,
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
	return avutil.Percent(self.cnt.N-int64(len(self.buf)), self.size)
}

func Handler(h *avutil.RegisterHandler) {
	h.Name = "AVC/h.264"
	h.Ext = ".h264"

	h.Probe = func(r io.ReadSeeker, size int64) bool {
		b, err := avutil.ReadPrefix(r, avutil.ProbeSize)
		return err == nil && Probe(b)
	}

	h.Open = func(r io.ReadSeeker, size int64) (av.Reader, error) {
		return NewDemuxer(r, size), nil
	}
}
