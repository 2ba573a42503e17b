// Package mkv reads and writes Matroska files.
package mkv

import (
	"bufio"
	"bytes"
	"io"
	"time"

	"github.com/at-wat/ebml-go"
	"github.com/pkg/errors"

	"github.com/deepch/mkvmux/av"
	"github.com/deepch/mkvmux/av/avutil"
	"github.com/deepch/mkvmux/av/stereo"
	"github.com/deepch/mkvmux/codec"
	"github.com/deepch/mkvmux/codec/aacparser"
	"github.com/deepch/mkvmux/codec/h264parser"
	"github.com/deepch/mkvmux/codec/opusparser"
	"github.com/deepch/mkvmux/format/mkv/mkvio"
)

const DefaultTimecodeScale = uint64(time.Millisecond)

// Demuxer reads the first segment of a Matroska or WebM file. Clusters are
// walked element by element so that memory use does not depend on cluster
// size.
type Demuxer struct {
	avutil.Router

	cnt  *avutil.Counter
	br   *bufio.Reader
	doc  *mkvio.Document
	size int64

	scale   uint64
	streams map[uint64]*Stream
	tracks  []*av.Track

	segmentEnd int64
	cluster    uint64
	queue      []av.Packet
	identified bool
	done       bool
}

func NewDemuxer(r io.Reader, size int64) *Demuxer {
	cnt := &avutil.Counter{R: r}
	br := bufio.NewReaderSize(cnt, 64*1024)
	return &Demuxer{
		cnt:     cnt,
		br:      br,
		doc:     mkvio.InitDocument(br),
		size:    size,
		scale:   DefaultTimecodeScale,
		streams: map[uint64]*Stream{},
	}
}

func (self *Demuxer) Identify() (tracks []*av.Track, err error) {
	if self.identified {
		return self.tracks, nil
	}

	el, err := self.doc.ReadHeader()
	if err != nil || el.ID != mkvio.ElementEBML.ID {
		return nil, av.FormatErr("mkv", "ebml_header", 0, err)
	}
	if err = self.doc.ReadBody(el); err != nil {
		return nil, av.FormatErr("mkv", "ebml_header", el.Offset, err)
	}
	if !docTypeOK(stringOr(el, mkvio.ElementDocType.ID, mkvio.DocType)) {
		return nil, av.FormatErr("mkv", "doctype", el.Offset, nil)
	}

	seg, err := self.doc.ReadHeader()
	if err != nil || seg.ID != mkvio.ElementSegment.ID {
		return nil, av.FormatErr("mkv", "segment", self.doc.Pos(), err)
	}
	if !seg.UnknownSize {
		self.segmentEnd = seg.Offset + int64(seg.HeaderSize) + int64(seg.Size)
	}

	var hasTracks bool
	for {
		if el, err = self.doc.ReadHeader(); err == io.EOF {
			err = nil
			break
		}
		if err != nil {
			return nil, av.FormatErr("mkv", "segment", self.doc.Pos(), err)
		}
		if el.ID == mkvio.ElementCluster.ID {
			self.doc.Unread(el)
			break
		}

		switch el.ID {
		case mkvio.ElementInfo.ID:
			if err = self.doc.ReadBody(el); err != nil {
				return nil, av.FormatErr("mkv", "info", el.Offset, err)
			}
			if self.scale = uintOr(el, mkvio.ElementTimecodeScale.ID, DefaultTimecodeScale); self.scale == 0 {
				return nil, av.FormatErr("mkv", "timecode_scale", el.Offset, nil)
			}
		case mkvio.ElementTracks.ID:
			if err = self.doc.ReadBody(el); err != nil {
				return nil, av.FormatErr("mkv", "tracks", el.Offset, err)
			}
			hasTracks = true
			for _, entry := range el.All(mkvio.ElementTrackEntry.ID) {
				self.addStream(entry)
			}
		default:
			if err = self.doc.Skip(el); err != nil {
				return nil, av.FormatErr("mkv", el.Name, el.Offset, err)
			}
		}
	}

	if !hasTracks || len(self.tracks) == 0 {
		return nil, av.FormatErr("mkv", "no_tracks", self.doc.Pos(), nil)
	}
	self.identified = true
	self.SetTracks(self.tracks)
	return self.tracks, nil
}

func docTypeOK(s string) bool {
	for _, t := range DocTypes {
		if s == t {
			return true
		}
	}
	return false
}

func (self *Demuxer) addStream(el *mkvio.Element) {
	number := uintOr(el, mkvio.ElementTrackNumber.ID, 0)
	kind := av.TrackKind(uintOr(el, mkvio.ElementTrackType.ID, 0))
	log := self.Logger().WithField("track", number)
	if number == 0 || !kind.Valid() || self.streams[number] != nil {
		log.Warnf("skipping track entry of type %d", kind)
		return
	}

	s, err := newStream(int64(number), kind, el)
	if err != nil {
		log.WithError(err).Warn("unusable codec private data")
		codecID := stringOr(el, mkvio.ElementCodecID.ID, "")
		s = &Stream{track: av.NewTrack(int64(number), kind, av.UNKNOWN, codecID)}
		if kind == av.KindAudio {
			s.track.Audio = &av.AudioParams{}
		}
	}
	s.number = number
	applyHeader(s.track, el)
	if el.Child(mkvio.ElementContentEncodings.ID) != nil {
		// compressed or encrypted payloads cannot be passed through
		s.track.Codec = av.UNKNOWN
	}

	self.streams[number] = s
	self.tracks = append(self.tracks, s.track)
}

func newStream(id int64, kind av.TrackKind, el *mkvio.Element) (s *Stream, err error) {
	codecID := stringOr(el, mkvio.ElementCodecID.ID, "")
	var private []byte
	if c := el.Child(mkvio.ElementCodecPrivate.ID); c != nil {
		private = c.Content
	}
	audio := el.Child(mkvio.ElementAudio.ID)
	channels := 1
	if audio != nil {
		channels = int(uintOr(audio, mkvio.ElementChannels.ID, 1))
	}

	s = &Stream{}
	switch typ := codec.FromID(codecID); typ {
	case av.H264:
		var cd h264parser.CodecData
		if cd, err = h264parser.NewCodecDataFromAVCDecoderConfRecord(private); err != nil {
			return
		}
		if n := int(cd.RecordInfo.LengthSizeMinusOne) + 1; n != 4 {
			s.lengthSize = n
			cd.RecordInfo.LengthSizeMinusOne = 3
			cd.Record = cd.RecordInfo.Marshal()
		}
		s.track = cd.NewTrack(id)

	case av.AAC:
		var cd aacparser.CodecData
		if len(private) > 0 {
			cd, err = aacparser.NewCodecDataFromMPEG4AudioConfigBytes(private)
		} else {
			cd, err = aacparser.NewCodecDataFromMPEG4AudioConfig(aacparser.LegacyConfig(codecID, samplingFrequency(audio), channels))
		}
		if err != nil {
			return
		}
		s.track = cd.NewTrack(id)

	case av.OPUS:
		if s.track, err = opusparser.NewTrack(id, channels, private); err != nil {
			return
		}

	default:
		if codec.Kind(codecID) != 0 && codec.Kind(codecID) != kind {
			return nil, errors.Errorf("codec %s on a %s track", codecID, kind)
		}
		s.track = av.NewTrack(id, kind, typ, codecID)
		s.track.CodecPrivate = private
		if kind == av.KindAudio {
			s.track.Audio = &av.AudioParams{}
		}
	}
	return
}

func samplingFrequency(audio *mkvio.Element) float64 {
	if audio != nil {
		if c := audio.Child(mkvio.ElementSamplingFrequency.ID); c != nil {
			return c.Float()
		}
	}
	return 8000
}

// applyHeader copies the generic TrackEntry fields. Values derived from
// codec private data win over the header for audio and video parameters.
func applyHeader(t *av.Track, el *mkvio.Element) {
	t.Name = stringOr(el, mkvio.ElementName.ID, "")
	if lang, err := av.ParseLanguage(stringOr(el, mkvio.ElementLanguage.ID, "eng")); err == nil {
		t.Language = lang
	}
	t.Enabled = uintOr(el, mkvio.ElementFlagEnabled.ID, 1) != 0
	t.Default = uintOr(el, mkvio.ElementFlagDefault.ID, 1) != 0
	t.Forced = uintOr(el, mkvio.ElementFlagForced.ID, 0) != 0
	if v := uintOr(el, mkvio.ElementDefaultDuration.ID, 0); v > 0 {
		t.DefaultDuration = time.Duration(v)
	}
	if c := el.Child(mkvio.ElementCodecDelay.ID); c != nil {
		t.CodecDelay = time.Duration(c.Uint())
	}
	if c := el.Child(mkvio.ElementSeekPreRoll.ID); c != nil {
		t.SeekPreRoll = time.Duration(c.Uint())
	}

	if video := el.Child(mkvio.ElementVideo.ID); video != nil && t.Kind == av.KindVideo {
		if t.Video == nil {
			t.Video = &av.VideoParams{
				PixelWidth:  int(uintOr(video, mkvio.ElementPixelWidth.ID, 0)),
				PixelHeight: int(uintOr(video, mkvio.ElementPixelHeight.ID, 0)),
			}
		}
		t.Video.DisplayWidth = int(uintOr(video, mkvio.ElementDisplayWidth.ID, 0))
		t.Video.DisplayHeight = int(uintOr(video, mkvio.ElementDisplayHeight.ID, 0))
		t.Video.Interlaced = uintOr(video, mkvio.ElementFlagInterlaced.ID, 0) == 1
		if c := video.Child(mkvio.ElementStereoMode.ID); c != nil {
			t.StereoMode, t.HasStereoMode = stereo.Mode(c.Uint()), true
		}
	}

	if audio := el.Child(mkvio.ElementAudio.ID); audio != nil && t.Audio != nil {
		if t.Audio.SampleRate == 0 {
			t.Audio.SampleRate = samplingFrequency(audio)
		}
		if t.Audio.Channels == 0 {
			t.Audio.Channels = int(uintOr(audio, mkvio.ElementChannels.ID, 1))
		}
		if t.Audio.BitDepth == 0 {
			t.Audio.BitDepth = int(uintOr(audio, mkvio.ElementBitDepth.ID, 0))
		}
	}
}

func (self *Demuxer) timestamp(rel int16) time.Duration {
	ticks := int64(self.cluster) + int64(rel)
	if ticks < 0 {
		ticks = 0
	}
	return time.Duration(ticks * int64(self.scale))
}

func (self *Demuxer) addBlock(content []byte, dur time.Duration, key, group bool) error {
	blk, err := ebml.UnmarshalBlock(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return err
	}
	s := self.streams[blk.TrackNumber]
	if s == nil || !self.Bound(s.track.ID) {
		return nil
	}
	if !group {
		key = blk.Keyframe
	}

	data := blk.Data
	if s.lengthSize != 0 {
		data = make([][]byte, len(blk.Data))
		for i, frame := range blk.Data {
			if data[i], err = h264parser.Relength(frame, s.lengthSize); err != nil {
				return self.Fail(s.track.ID, err)
			}
		}
	}
	self.queue = append(self.queue, s.frames(self.timestamp(blk.Timecode), dur, key, data)...)
	return nil
}

// next consumes one element of the segment. Cluster masters are entered,
// other level 1 elements are skipped as a whole.
func (self *Demuxer) next() (err error) {
	el, err := self.doc.ReadHeader()
	if err != nil {
		return
	}
	if self.segmentEnd > 0 && el.Offset >= self.segmentEnd {
		return io.EOF
	}

	switch el.ID {
	case mkvio.ElementCluster.ID:
		self.cluster = 0
		return nil

	case mkvio.ElementSegment.ID, mkvio.ElementEBML.ID:
		// chained segments are not read
		return io.EOF

	case mkvio.ElementTimecode.ID:
		if err = self.doc.ReadBody(el); err != nil {
			return
		}
		self.cluster = el.Uint()

	case mkvio.ElementSimpleBlock.ID:
		if err = self.doc.ReadBody(el); err != nil {
			return
		}
		return self.addBlock(el.Content, 0, false, false)

	case mkvio.ElementBlockGroup.ID:
		if err = self.doc.ReadBody(el); err != nil {
			return
		}
		block := el.Child(mkvio.ElementBlock.ID)
		if block == nil {
			return nil
		}
		dur := time.Duration(uintOr(el, mkvio.ElementBlockDuration.ID, 0) * self.scale)
		key := el.Child(mkvio.ElementReferenceBlock.ID) == nil
		return self.addBlock(block.Content, dur, key, true)

	default:
		return self.doc.Skip(el)
	}
	return
}

// Read passes on one frame. A truncated file ends the input as if it were
// complete.
func (self *Demuxer) Read(force bool) (status av.Status, err error) {
	if self.done {
		return av.Done, nil
	}

	for len(self.queue) == 0 {
		err = self.next()
		if av.AsTrackError(err) != nil {
			return av.MoreData, err
		}
		if err == io.EOF || errors.Is(err, mkvio.ErrUnexpectedEOF) {
			if err != io.EOF {
				self.Logger().WithField("offset", self.doc.Pos()).Warn("truncated file")
			}
			self.done = true
			return av.Done, self.Flush()
		}
		if err != nil {
			return av.MoreData, &av.IOError{Op: "read", Err: err}
		}
	}

	pkt := self.queue[0]
	self.queue = self.queue[1:]
	if err = self.Route(pkt); err != nil {
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
	return avutil.Percent(self.cnt.N-int64(self.br.Buffered()), self.size)
}
