// Package mp4 reads QuickTime and ISO base media files with their sample
// tables. Fragmented files are not supported.
package mp4

import (
	"encoding/binary"
	"io"
	"sort"
	"time"

	"github.com/abema/go-mp4"
	"github.com/pkg/errors"
	"github.com/sunfish-shogi/bufseekio"

	"github.com/deepch/mkvmux/av"
	"github.com/deepch/mkvmux/av/avutil"
	"github.com/deepch/mkvmux/codec"
	"github.com/deepch/mkvmux/codec/aacparser"
	"github.com/deepch/mkvmux/codec/h264parser"
	"github.com/deepch/mkvmux/format/mkv/timescale"
)

type sample struct {
	stream int
	offset int64
	size   uint32
	dts    time.Duration
	pts    time.Duration
	dur    time.Duration
	key    bool
}

type stream struct {
	track *av.Track
	// NALU length field size of AVC samples, 0 for other codecs
	lengthSize int
}

type Demuxer struct {
	avutil.Router

	r    io.ReadSeeker
	size int64

	streams []*stream
	samples []sample
	next    int
	done    bool
}

func NewDemuxer(r io.ReadSeeker, size int64) *Demuxer {
	return &Demuxer{r: r, size: size}
}

var topLevelTypes = map[string]bool{
	"ftyp": true, "moov": true, "mdat": true, "free": true, "wide": true, "skip": true,
}

// Probe checks for an ISO base media box at the start of b.
func Probe(b []byte) bool {
	if len(b) < 8 {
		return false
	}
	size := binary.BigEndian.Uint32(b)
	if size != 1 && size < 8 {
		return false
	}
	return topLevelTypes[string(b[4:8])]
}

func toDuration(v int64, scale uint32) time.Duration {
	if v < 0 {
		return -timescale.FromScale(uint64(-v), scale)
	}
	return timescale.FromScale(uint64(v), scale)
}

func (self *Demuxer) readPayload(bi *mp4.BoxInfo) ([]byte, error) {
	if _, err := bi.SeekToPayload(self.r); err != nil {
		return nil, err
	}
	b := make([]byte, bi.Size-bi.HeaderSize)
	if _, err := io.ReadFull(self.r, b); err != nil {
		return nil, err
	}
	return b, nil
}

type trakBoxes struct {
	tkhd *mp4.Tkhd
	mdhd *mp4.Mdhd
	hdlr *mp4.Hdlr
	avcC *mp4.BoxInfo
	esds *mp4.Esds
	stss *mp4.Stss
}

func (self *Demuxer) extractTrak(trak *mp4.BoxInfo) (boxes trakBoxes, err error) {
	stsd := []mp4.BoxType{mp4.BoxTypeMdia(), mp4.BoxTypeMinf(), mp4.BoxTypeStbl(), mp4.BoxTypeStsd()}
	bips, err := mp4.ExtractBoxesWithPayload(self.r, trak, []mp4.BoxPath{
		{mp4.BoxTypeTkhd()},
		{mp4.BoxTypeMdia(), mp4.BoxTypeMdhd()},
		{mp4.BoxTypeMdia(), mp4.BoxTypeHdlr()},
		append(append(mp4.BoxPath{}, stsd...), mp4.BoxTypeAvc1(), mp4.BoxTypeAvcC()),
		append(append(mp4.BoxPath{}, stsd...), mp4.BoxTypeMp4a(), mp4.BoxTypeEsds()),
		append(append(mp4.BoxPath{}, stsd...), mp4.BoxTypeMp4a(), mp4.BoxTypeWave(), mp4.BoxTypeEsds()),
		{mp4.BoxTypeMdia(), mp4.BoxTypeMinf(), mp4.BoxTypeStbl(), mp4.BoxTypeStss()},
	})
	if err != nil {
		return
	}
	for _, bip := range bips {
		switch bip.Info.Type {
		case mp4.BoxTypeTkhd():
			boxes.tkhd = bip.Payload.(*mp4.Tkhd)
		case mp4.BoxTypeMdhd():
			boxes.mdhd = bip.Payload.(*mp4.Mdhd)
		case mp4.BoxTypeHdlr():
			boxes.hdlr = bip.Payload.(*mp4.Hdlr)
		case mp4.BoxTypeAvcC():
			info := bip.Info
			boxes.avcC = &info
		case mp4.BoxTypeEsds():
			boxes.esds = bip.Payload.(*mp4.Esds)
		case mp4.BoxTypeStss():
			boxes.stss = bip.Payload.(*mp4.Stss)
		}
	}
	if boxes.tkhd == nil {
		err = errors.New("tkhd box not found")
	}
	return
}

func language(mdhd *mp4.Mdhd) string {
	if mdhd == nil {
		return "und"
	}
	b := make([]byte, 3)
	for i, c := range mdhd.Language {
		if c < 0x60 {
			c += 0x60
		}
		b[i] = c
	}
	lang, err := av.ParseLanguage(string(b))
	if err != nil {
		return "und"
	}
	return lang
}

func decoderSpecificInfo(esds *mp4.Esds) []byte {
	if esds == nil {
		return nil
	}
	for _, d := range esds.Descriptors {
		if d.Tag == mp4.DecSpecificInfoTag {
			return d.Data
		}
	}
	return nil
}

// newTrack builds the track of one trak. Unknown codecs come back with
// av.UNKNOWN so that binding a packetizer reports them.
func (self *Demuxer) newTrack(id int64, info *mp4.Track, boxes trakBoxes) (s *stream, err error) {
	var handler string
	if boxes.hdlr != nil {
		handler = string(boxes.hdlr.HandlerType[:])
	}

	s = &stream{}
	switch {
	case info.Codec == mp4.CodecAVC1 && boxes.avcC != nil:
		var record []byte
		if record, err = self.readPayload(boxes.avcC); err != nil {
			return
		}
		var cd h264parser.CodecData
		if cd, err = h264parser.NewCodecDataFromAVCDecoderConfRecord(record); err != nil {
			return
		}
		s.lengthSize = int(cd.RecordInfo.LengthSizeMinusOne) + 1
		if s.lengthSize != 4 {
			// samples are rewritten with 4 byte lengths
			cd.RecordInfo.LengthSizeMinusOne = 3
			cd.Record = cd.RecordInfo.Marshal()
		}
		s.track = cd.NewTrack(id)

	case info.Codec == mp4.CodecMP4A && info.MP4A != nil && (info.MP4A.OTI == 0x6b || info.MP4A.OTI == 0x69):
		s.track = av.NewTrack(id, av.KindAudio, av.MP3, codec.IDMP3)
		s.track.Audio = &av.AudioParams{SampleRate: float64(info.Timescale), Channels: int(info.MP4A.ChannelCount)}

	case info.Codec == mp4.CodecMP4A:
		var cd aacparser.CodecData
		if cd, err = aacparser.NewCodecDataFromMPEG4AudioConfigBytes(decoderSpecificInfo(boxes.esds)); err != nil {
			return
		}
		s.track = cd.NewTrack(id)

	case handler == "vide":
		s.track = av.NewTrack(id, av.KindVideo, av.UNKNOWN, "V_QUICKTIME")
	case handler == "soun":
		s.track = av.NewTrack(id, av.KindAudio, av.UNKNOWN, "A_QUICKTIME")
		s.track.Audio = &av.AudioParams{SampleRate: float64(info.Timescale)}
	default:
		return nil, nil
	}
	s.track.Language = language(boxes.mdhd)
	return
}

func (self *Demuxer) Identify() (tracks []*av.Track, err error) {
	if self.streams != nil {
		for _, s := range self.streams {
			tracks = append(tracks, s.track)
		}
		return
	}

	if _, err = self.r.Seek(0, io.SeekStart); err != nil {
		return nil, &av.IOError{Op: "seek", Err: err}
	}
	info, err := mp4.Probe(self.r)
	if err != nil {
		return nil, av.FormatErr("mp4", "probe", 0, err)
	}
	traks, err := mp4.ExtractBoxes(self.r, nil, []mp4.BoxPath{{mp4.BoxTypeMoov(), mp4.BoxTypeTrak()}})
	if err != nil {
		return nil, av.FormatErr("mp4", "moov", 0, err)
	}

	byID := map[uint32]*mp4.Track{}
	for _, t := range info.Tracks {
		byID[t.TrackID] = t
	}

	self.streams = []*stream{}
	for _, trak := range traks {
		var boxes trakBoxes
		if boxes, err = self.extractTrak(trak); err != nil {
			return nil, av.FormatErr("mp4", "trak", int64(trak.Offset), err)
		}
		t := byID[boxes.tkhd.TrackID]
		if t == nil || len(t.Samples) == 0 {
			continue
		}
		var s *stream
		if s, err = self.newTrack(int64(t.TrackID), t, boxes); err != nil {
			return nil, av.FormatErr("mp4", "sample_entry", int64(trak.Offset), err)
		}
		if s == nil {
			continue
		}
		self.addSamples(len(self.streams), t, boxes.stss)
		self.streams = append(self.streams, s)
		tracks = append(tracks, s.track)
	}
	if len(tracks) == 0 {
		return nil, av.FormatErr("mp4", "no_tracks", 0, nil)
	}

	sort.SliceStable(self.samples, func(i, j int) bool {
		return self.samples[i].offset < self.samples[j].offset
	})
	self.SetTracks(tracks)
	return
}

func (self *Demuxer) addSamples(idx int, t *mp4.Track, stss *mp4.Stss) {
	var shift int64
	if len(t.EditList) > 0 && t.EditList[0].MediaTime > 0 {
		shift = t.EditList[0].MediaTime
	}
	keys := map[uint32]bool{}
	if stss != nil {
		for _, n := range stss.SampleNumber {
			keys[n] = true
		}
	}

	var dts int64
	si := 0
	for _, chunk := range t.Chunks {
		offset := int64(chunk.DataOffset)
		for i := uint32(0); i < chunk.SamplesPerChunk && si < len(t.Samples); i++ {
			smp := t.Samples[si]
			si++
			self.samples = append(self.samples, sample{
				stream: idx,
				offset: offset,
				size:   smp.Size,
				dts:    toDuration(dts-shift, t.Timescale),
				pts:    toDuration(dts+smp.CompositionTimeOffset-shift, t.Timescale),
				dur:    toDuration(int64(smp.TimeDelta), t.Timescale),
				key:    stss == nil || keys[uint32(si)],
			})
			offset += int64(smp.Size)
			dts += int64(smp.TimeDelta)
		}
	}
}

// Read passes on the next sample in file order.
func (self *Demuxer) Read(force bool) (status av.Status, err error) {
	for {
		if self.done || self.next >= len(self.samples) || self.Unbound() {
			if !self.done {
				self.done = true
				return av.Done, self.Flush()
			}
			return av.Done, nil
		}

		smp := self.samples[self.next]
		self.next++
		s := self.streams[smp.stream]
		if !self.Bound(s.track.ID) {
			continue
		}

		data := make([]byte, smp.size)
		if _, err = self.r.Seek(smp.offset, io.SeekStart); err == nil {
			_, err = io.ReadFull(self.r, data)
		}
		if err != nil {
			return av.MoreData, self.Fail(s.track.ID, &av.IOError{Op: "read", Err: err})
		}
		if s.lengthSize > 0 && s.lengthSize != 4 {
			if data, err = h264parser.Relength(data, s.lengthSize); err != nil {
				return av.MoreData, self.Fail(s.track.ID, err)
			}
		}

		return av.MoreData, self.Route(av.Packet{
			TrackID:    s.track.ID,
			IsKeyFrame: smp.key,
			Time:       smp.pts,
			DTS:        smp.dts,
			HasDTS:     true,
			Duration:   smp.dur,
			Data:       data,
		})
	}
}

func (self *Demuxer) Progress() int {
	if self.done {
		return 100
	}
	return avutil.Percent(int64(self.next), int64(len(self.samples)))
}

func Handler(h *avutil.RegisterHandler) {
	h.Name = "QuickTime/MP4"
	h.Ext = ".mp4"

	h.Probe = func(r io.ReadSeeker, size int64) bool {
		b, err := avutil.ReadPrefix(r, 8)
		return err == nil && Probe(b)
	}

	h.Open = func(r io.ReadSeeker, size int64) (av.Reader, error) {
		return NewDemuxer(bufseekio.NewReadSeeker(r, 128*1024, 4), size), nil
	}
}
