// Package ts reads MPEG transport streams.
package ts

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/asticode/go-astits"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg1audio"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mpegts"
	"github.com/pkg/errors"

	"github.com/deepch/mkvmux/av"
	"github.com/deepch/mkvmux/av/avutil"
	"github.com/deepch/mkvmux/codec"
	"github.com/deepch/mkvmux/codec/aacparser"
	"github.com/deepch/mkvmux/codec/h264parser"
	"github.com/deepch/mkvmux/codec/opusparser"
)

const (
	PacketSize = 188
	clockRate  = 90000
	// demuxed units read while waiting for parameter sets
	maxProbeUnits = 4096
)

type Demuxer struct {
	avutil.Router

	cnt  *avutil.Counter
	size int64

	rd      *mpegts.Reader
	streams []*Stream
	tracks  []*av.Track

	queue   []queued
	base    int64
	hasBase bool
	eof     bool
	done    bool
}

func NewDemuxer(r io.Reader, size int64) *Demuxer {
	return &Demuxer{
		cnt:  &avutil.Counter{R: r},
		size: size,
	}
}

// Probe accepts input that keeps packet sync and carries a program
// association table.
func Probe(b []byte) bool {
	if len(b) < 3*PacketSize {
		return false
	}
	for i := 0; i < 3; i++ {
		if b[i*PacketSize] != 0x47 {
			return false
		}
	}
	dmx := astits.NewDemuxer(context.Background(), bytes.NewReader(b), astits.DemuxerOptPacketSize(PacketSize))
	for {
		d, err := dmx.NextData()
		if err != nil {
			return false
		}
		if d.PAT != nil || d.PMT != nil {
			return true
		}
	}
}

func ticks(v int64) time.Duration {
	return time.Duration(v) * time.Second / clockRate
}

func isEOF(err error) bool {
	return errors.Is(err, astits.ErrNoMorePackets) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

func (self *Demuxer) push(q queued) {
	self.queue = append(self.queue, q)
}

func (self *Demuxer) addStream(t *mpegts.Track) {
	s := &Stream{pid: t.PID, codec: t.Codec}
	id := int64(t.PID)

	switch c := t.Codec.(type) {
	case *mpegts.CodecH264:
		self.rd.OnDataH264(t, func(pts, dts int64, au [][]byte) error {
			if s.track == nil {
				var sps, pps []byte
				for _, nalu := range au {
					switch h264parser.NALUType(nalu) {
					case h264.NALUTypeSPS:
						sps = nalu
					case h264.NALUTypePPS:
						pps = nalu
					}
				}
				if sps != nil && pps != nil {
					if cd, err := h264parser.NewCodecDataFromSPSAndPPS(sps, pps); err == nil {
						s.track = cd.NewTrack(id)
					} else {
						self.Logger().WithError(err).WithField("pid", s.pid).Warn("bad parameter sets")
					}
				}
			}
			data, err := h264.AnnexB(au).Marshal()
			if err != nil {
				return nil
			}
			self.push(queued{stream: s, key: h264parser.IsKeyFrame(au), pts: pts, dts: dts, data: data})
			return nil
		})

	case *mpegts.CodecH265:
		// no hvcC can be built from the stream alone
		s.track = av.NewTrack(id, av.KindVideo, av.UNKNOWN, codec.IDHEVC)

	case *mpegts.CodecMPEG4Audio:
		cd, err := aacparser.NewCodecDataFromMPEG4AudioConfig(c.Config)
		if err != nil {
			self.Logger().WithError(err).WithField("pid", s.pid).Warn("bad audio config")
			return
		}
		s.aac = cd
		s.track = cd.NewTrack(id)
		dur := int64(cd.PacketDuration() * clockRate / time.Second)
		self.rd.OnDataMPEG4Audio(t, func(pts int64, aus [][]byte) error {
			for i, au := range aus {
				at := pts + int64(i)*dur
				self.push(queued{stream: s, key: true, pts: at, dts: at, dur: dur, data: au})
			}
			return nil
		})

	case *mpegts.CodecMPEG1Audio:
		self.rd.OnDataMPEG1Audio(t, func(pts int64, frames [][]byte) error {
			at := pts
			for _, frame := range frames {
				if err := s.mpga.Unmarshal(frame); err != nil {
					continue
				}
				if s.track == nil {
					s.track = av.NewTrack(id, av.KindAudio, av.MP3, codec.IDMP3)
					channels := 2
					if s.mpga.ChannelMode == mpeg1audio.ChannelModeMono {
						channels = 1
					}
					s.track.Audio = &av.AudioParams{SampleRate: float64(s.mpga.SampleRate), Channels: channels}
				}
				dur := int64(s.mpga.SampleCount()) * clockRate / int64(s.mpga.SampleRate)
				self.push(queued{stream: s, key: true, pts: at, dts: at, dur: dur, data: frame})
				at += dur
			}
			return nil
		})

	case *mpegts.CodecOpus:
		track, err := opusparser.NewTrack(id, c.ChannelCount, nil)
		if err != nil {
			return
		}
		s.track = track
		self.rd.OnDataOpus(t, func(pts int64, packets [][]byte) error {
			at := pts
			for _, pkt := range packets {
				d, err := opusparser.PacketDuration(pkt)
				if err != nil {
					continue
				}
				dur := int64(d * clockRate / time.Second)
				self.push(queued{stream: s, key: true, pts: at, dts: at, dur: dur, data: pkt})
				at += dur
			}
			return nil
		})

	default:
		self.Logger().WithField("pid", s.pid).Debugf("skipping %T stream", t.Codec)
		return
	}
	self.streams = append(self.streams, s)
}

func (self *Demuxer) pending() (n int) {
	for _, s := range self.streams {
		if !s.ready() {
			n++
		}
	}
	return
}

// Identify reads the program map, then reads ahead until every stream
// revealed its codec parameters. Units read on the way are kept for Read.
func (self *Demuxer) Identify() (tracks []*av.Track, err error) {
	if self.rd != nil {
		return self.tracks, nil
	}

	self.rd = &mpegts.Reader{R: self.cnt}
	if err = self.rd.Initialize(); err != nil {
		return nil, av.FormatErr("ts", "pmt", self.cnt.N, err)
	}
	self.rd.OnDecodeError(func(err error) {
		self.Logger().WithError(err).Debug("decode error")
	})
	for _, t := range self.rd.Tracks() {
		self.addStream(t)
	}

	for i := 0; self.pending() > 0 && i < maxProbeUnits; i++ {
		if err = self.rd.Read(); err != nil {
			if isEOF(err) {
				self.eof = true
				err = nil
				break
			}
			return nil, av.FormatErr("ts", "pes", self.cnt.N, err)
		}
	}

	for _, s := range self.streams {
		if s.ready() {
			self.tracks = append(self.tracks, s.track)
		} else {
			self.Logger().WithField("pid", s.pid).Warn("no codec parameters found, stream dropped")
		}
	}
	if len(self.tracks) == 0 {
		return nil, av.FormatErr("ts", "no_tracks", self.cnt.N, nil)
	}

	for _, q := range self.queue {
		if !self.hasBase || q.dts < self.base {
			self.base, self.hasBase = q.dts, true
		}
	}
	self.SetTracks(self.tracks)
	return self.tracks, nil
}

func (self *Demuxer) toPacket(q queued) av.Packet {
	at := func(v int64) time.Duration {
		if v < self.base {
			return 0
		}
		return ticks(v - self.base)
	}
	return av.Packet{
		TrackID:    q.stream.track.ID,
		IsKeyFrame: q.key,
		Time:       at(q.pts),
		DTS:        at(q.dts),
		HasDTS:     true,
		Duration:   ticks(q.dur),
		Data:       q.data,
	}
}

// Read passes on one queued unit, demuxing more when the queue ran dry.
func (self *Demuxer) Read(force bool) (status av.Status, err error) {
	if self.done {
		return av.Done, nil
	}

	for len(self.queue) == 0 {
		if self.eof {
			self.done = true
			return av.Done, self.Flush()
		}
		if err = self.rd.Read(); err != nil {
			if isEOF(err) {
				self.eof = true
				continue
			}
			return av.MoreData, &av.IOError{Op: "read", Err: err}
		}
	}

	q := self.queue[0]
	self.queue = self.queue[1:]
	if q.stream.track == nil {
		return av.MoreData, nil
	}
	if err = self.Route(self.toPacket(q)); err != nil {
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
	h.Name = "MPEG transport stream"
	h.Ext = ".ts"

	h.Probe = func(r io.ReadSeeker, size int64) bool {
		b, err := avutil.ReadPrefix(r, 64*PacketSize)
		return err == nil && Probe(b)
	}

	h.Open = func(r io.ReadSeeker, size int64) (av.Reader, error) {
		return NewDemuxer(r, size), nil
	}
}
