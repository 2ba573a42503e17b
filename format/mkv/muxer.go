package mkv

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/at-wat/ebml-go"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/deepch/mkvmux/av"
	"github.com/deepch/mkvmux/format/mkv/mkvio"
	"github.com/deepch/mkvmux/format/mkv/timescale"
	"github.com/deepch/mkvmux/interleave"
	"github.com/deepch/mkvmux/utils/logger"
)

// MuxingApp names the EBML library version the output is written with.
var MuxingApp = "libebml v" + mkvio.CodeVersion + " + mkvmux"

const DefaultWritingApp = "mkvmux"

// room kept for the SeekHead in front of Info
const seekHeadSpace = 160

type MuxerOptions struct {
	// TimestampScale is the tick length in ns.
	TimestampScale uint64
	// CRC adds a CRC-32 element to every level 1 element and cluster.
	CRC bool
	// BufferLimit caps the bytes held back on sinks that cannot seek.
	BufferLimit int64
	Title       string
	WritingApp  string
	// Date is written as DateUTC when set.
	Date time.Time
	Log  logrus.FieldLogger
}

type cuePoint struct {
	time     uint64
	track    uint64
	cluster  int64
	relative int64
}

// TrackStats are the per track statistics written as tags.
type TrackStats struct {
	Frames      int64
	Bytes       int64
	First, Last time.Duration
	started     bool
}

func (self *TrackStats) Duration() time.Duration {
	return self.Last - self.First
}

// BitRate is in bits per second.
func (self *TrackStats) BitRate() int64 {
	d := self.Duration()
	if d <= 0 {
		return 0
	}
	return int64(float64(self.Bytes*8) / d.Seconds())
}

// Muxer writes a Matroska segment: header elements, clusters as they are
// closed by the interleaver, then cues and tags. On seekable sinks the
// SeekHead and the segment duration are filled in when the muxer is closed.
type Muxer struct {
	w    *mkvio.Writer
	opts MuxerOptions
	log  logrus.FieldLogger
	uid  uuid.UUID

	tracks   []*av.Track
	hasVideo bool

	segmentData int64
	seekHeadAt  int64
	infoAt      int64
	positions   map[uint32]int64

	cues  []cuePoint
	stats map[uint64]*TrackStats
	end   time.Duration

	clusters int
	header   bool
	closed   bool
}

func NewMuxer(w io.Writer, opts MuxerOptions) *Muxer {
	if opts.TimestampScale == 0 {
		opts.TimestampScale = interleave.DefaultTimestampScale
	}
	if opts.WritingApp == "" {
		opts.WritingApp = DefaultWritingApp
	}
	self := &Muxer{
		w:         mkvio.NewWriter(w),
		opts:      opts,
		log:       logger.Or(opts.Log).WithField("component", "mkv"),
		uid:       uuid.New(),
		positions: map[uint32]int64{},
		stats:     map[uint64]*TrackStats{},
	}
	self.w.SetBufferLimit(opts.BufferLimit)
	return self
}

func (self *Muxer) Seekable() bool {
	return self.w.Seekable()
}

// SetBufferLimit replaces the cap set by MuxerOptions.BufferLimit.
func (self *Muxer) SetBufferLimit(n int64) {
	self.w.SetBufferLimit(n)
}

func (self *Muxer) Stats(number uint64) *TrackStats {
	return self.stats[number]
}

func (self *Muxer) Clusters() int {
	return self.clusters
}

// Duration is the end of the latest block written.
func (self *Muxer) Duration() time.Duration {
	return self.end
}

func (self *Muxer) ticks(t time.Duration) uint64 {
	v := timescale.Ticks(t, self.opts.TimestampScale)
	if v < 0 {
		return 0
	}
	return uint64(v)
}

func (self *Muxer) master(id uint32, fn func(w *mkvio.Writer) error) error {
	self.positions[id] = self.w.Pos() - self.segmentData
	if err := self.w.StartMaster(id, mkvio.MasterOptions{CRC: self.opts.CRC}); err != nil {
		return err
	}
	if err := fn(self.w); err != nil {
		return err
	}
	return self.w.EndMaster()
}

// WriteHeader writes everything up to the first cluster.
func (self *Muxer) WriteHeader(tracks []*av.Track) (err error) {
	if self.header {
		return errors.New("mkv: header already written")
	}
	self.header = true
	self.tracks = tracks
	for _, t := range tracks {
		if t.Kind == av.KindVideo {
			self.hasVideo = true
		}
		self.stats[t.Number] = &TrackStats{}
	}

	w := self.w
	if err = w.StartMaster(mkvio.ElementEBML.ID, mkvio.MasterOptions{}); err != nil {
		return
	}
	for _, f := range []func() error{
		func() error { return w.WriteUint(mkvio.ElementEBMLVersion.ID, mkvio.EBMLVersion) },
		func() error { return w.WriteUint(mkvio.ElementEBMLReadVersion.ID, mkvio.EBMLVersion) },
		func() error { return w.WriteUint(mkvio.ElementEBMLMaxIDLength.ID, mkvio.EBMLMaxIDLength) },
		func() error { return w.WriteUint(mkvio.ElementEBMLMaxSizeLength.ID, mkvio.EBMLMaxSizeLength) },
		func() error { return w.WriteString(mkvio.ElementDocType.ID, mkvio.DocType) },
		func() error { return w.WriteUint(mkvio.ElementDocTypeVersion.ID, mkvio.DocTypeVersion) },
		func() error { return w.WriteUint(mkvio.ElementDocTypeReadVersion.ID, mkvio.DocTypeReadVersion) },
		w.EndMaster,
	} {
		if err = f(); err != nil {
			return
		}
	}

	// an unseekable sink streams the segment with an unknown size
	if err = w.StartMaster(mkvio.ElementSegment.ID, mkvio.MasterOptions{Unknown: !w.Seekable()}); err != nil {
		return
	}
	self.segmentData = w.Pos()
	if w.Seekable() {
		self.seekHeadAt = w.Pos()
		if err = w.WriteVoid(seekHeadSpace); err != nil {
			return
		}
	}

	self.infoAt = w.Pos()
	self.positions[mkvio.ElementInfo.ID] = self.infoAt - self.segmentData
	info, err := self.info(0, w.Seekable())
	if err != nil {
		return
	}
	if _, err = w.Write(info); err != nil {
		return
	}

	return self.master(mkvio.ElementTracks.ID, func(w *mkvio.Writer) error {
		for _, t := range tracks {
			if err := writeTrackEntry(w, t); err != nil {
				return errors.Wrapf(err, "track %d", t.Number)
			}
		}
		return nil
	})
}

// info serializes the Info element. Its length does not depend on the
// duration so it can be rewritten in place. Duration is left out when it
// will never be known.
func (self *Muxer) info(duration float64, withDuration bool) ([]byte, error) {
	var buf bytes.Buffer
	w := mkvio.NewWriter(&buf)
	if err := w.StartMaster(mkvio.ElementInfo.ID, mkvio.MasterOptions{CRC: self.opts.CRC}); err != nil {
		return nil, err
	}
	fields := []func() error{
		func() error { return w.WriteBinary(mkvio.ElementSegmentUID.ID, self.uid[:]) },
		func() error { return w.WriteUint(mkvio.ElementTimecodeScale.ID, self.opts.TimestampScale) },
	}
	if withDuration {
		fields = append(fields, func() error { return w.WriteFloat(mkvio.ElementDuration.ID, duration) })
	}
	fields = append(fields,
		func() error { return w.WriteUTF8(mkvio.ElementMuxingApp.ID, MuxingApp) },
		func() error { return w.WriteUTF8(mkvio.ElementWritingApp.ID, self.opts.WritingApp) },
	)
	for _, f := range fields {
		if err := f(); err != nil {
			return nil, err
		}
	}
	if self.opts.Title != "" {
		if err := w.WriteUTF8(mkvio.ElementTitle.ID, self.opts.Title); err != nil {
			return nil, err
		}
	}
	if !self.opts.Date.IsZero() {
		if err := w.WriteDate(mkvio.ElementDateUTC.ID, self.opts.Date); err != nil {
			return nil, err
		}
	}
	if err := w.EndMaster(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func boolUint(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func writeTrackEntry(w *mkvio.Writer, t *av.Track) (err error) {
	if err = w.StartMaster(mkvio.ElementTrackEntry.ID, mkvio.MasterOptions{}); err != nil {
		return
	}
	fields := []func() error{
		func() error { return w.WriteUint(mkvio.ElementTrackNumber.ID, t.Number) },
		func() error { return w.WriteUint(mkvio.ElementTrackUID.ID, t.UID) },
		func() error { return w.WriteUint(mkvio.ElementTrackType.ID, uint64(t.Kind)) },
		func() error { return w.WriteUint(mkvio.ElementFlagEnabled.ID, boolUint(t.Enabled)) },
		func() error { return w.WriteUint(mkvio.ElementFlagDefault.ID, boolUint(t.Default)) },
		func() error { return w.WriteUint(mkvio.ElementFlagForced.ID, boolUint(t.Forced)) },
		func() error { return w.WriteUint(mkvio.ElementFlagLacing.ID, boolUint(t.Kind == av.KindAudio)) },
		func() error { return w.WriteString(mkvio.ElementLanguage.ID, t.Language) },
		func() error { return w.WriteString(mkvio.ElementCodecID.ID, t.CodecID) },
	}
	if t.Name != "" {
		fields = append(fields, func() error { return w.WriteUTF8(mkvio.ElementName.ID, t.Name) })
	}
	if t.DefaultDuration > 0 {
		fields = append(fields, func() error { return w.WriteUint(mkvio.ElementDefaultDuration.ID, uint64(t.DefaultDuration)) })
	}
	if len(t.CodecPrivate) > 0 {
		fields = append(fields, func() error { return w.WriteBinary(mkvio.ElementCodecPrivate.ID, t.CodecPrivate) })
	}
	if t.CodecDelay > 0 {
		fields = append(fields, func() error { return w.WriteUint(mkvio.ElementCodecDelay.ID, uint64(t.CodecDelay)) })
	}
	if t.SeekPreRoll > 0 {
		fields = append(fields, func() error { return w.WriteUint(mkvio.ElementSeekPreRoll.ID, uint64(t.SeekPreRoll)) })
	}
	for _, f := range fields {
		if err = f(); err != nil {
			return
		}
	}

	if t.Kind == av.KindVideo && (t.Video != nil || t.HasStereoMode) {
		if err = writeVideo(w, t); err != nil {
			return
		}
	}
	if t.Kind == av.KindAudio && t.Audio != nil {
		if err = writeAudio(w, t.Audio); err != nil {
			return
		}
	}
	return w.EndMaster()
}

func writeVideo(w *mkvio.Writer, t *av.Track) (err error) {
	if err = w.StartMaster(mkvio.ElementVideo.ID, mkvio.MasterOptions{}); err != nil {
		return
	}
	if v := t.Video; v != nil {
		if err = w.WriteUint(mkvio.ElementPixelWidth.ID, uint64(v.PixelWidth)); err != nil {
			return
		}
		if err = w.WriteUint(mkvio.ElementPixelHeight.ID, uint64(v.PixelHeight)); err != nil {
			return
		}
		if v.DisplayWidth > 0 && v.DisplayHeight > 0 {
			if err = w.WriteUint(mkvio.ElementDisplayWidth.ID, uint64(v.DisplayWidth)); err != nil {
				return
			}
			if err = w.WriteUint(mkvio.ElementDisplayHeight.ID, uint64(v.DisplayHeight)); err != nil {
				return
			}
		}
		if v.Interlaced {
			if err = w.WriteUint(mkvio.ElementFlagInterlaced.ID, 1); err != nil {
				return
			}
		}
	}
	if t.HasStereoMode {
		if err = w.WriteUint(mkvio.ElementStereoMode.ID, uint64(t.StereoMode)); err != nil {
			return
		}
	}
	return w.EndMaster()
}

func writeAudio(w *mkvio.Writer, a *av.AudioParams) (err error) {
	if err = w.StartMaster(mkvio.ElementAudio.ID, mkvio.MasterOptions{}); err != nil {
		return
	}
	rate := a.SampleRate
	if rate <= 0 {
		rate = 8000
	}
	channels := a.Channels
	if channels <= 0 {
		channels = 1
	}
	if err = w.WriteFloat(mkvio.ElementSamplingFrequency.ID, rate); err != nil {
		return
	}
	if err = w.WriteUint(mkvio.ElementChannels.ID, uint64(channels)); err != nil {
		return
	}
	if a.BitDepth > 0 {
		if err = w.WriteUint(mkvio.ElementBitDepth.ID, uint64(a.BitDepth)); err != nil {
			return
		}
	}
	return w.EndMaster()
}

var lacingModes = map[av.Lacing]ebml.LacingMode{
	av.LacingNone:  ebml.LacingNo,
	av.LacingXiph:  ebml.LacingXiph,
	av.LacingFixed: ebml.LacingFixed,
	av.LacingEBML:  ebml.LacingEBML,
}

// WriteCluster serializes a closed cluster and marks it flushed.
func (self *Muxer) WriteCluster(c *interleave.Cluster) (err error) {
	if !self.header || self.closed {
		return errors.New("mkv: cluster outside of header and trailer")
	}
	if c.Empty() {
		c.MarkFlushed()
		return nil
	}

	w := self.w
	clusterAt := w.Pos() - self.segmentData
	if err = w.StartMaster(mkvio.ElementCluster.ID, mkvio.MasterOptions{CRC: self.opts.CRC}); err != nil {
		return
	}
	// relative positions count from the first child, the CRC element included
	dataAt := w.Pos()
	if self.opts.CRC {
		dataAt -= mkvio.CRCElementSize
	}
	base := self.ticks(c.Base)
	if err = w.WriteUint(mkvio.ElementTimecode.ID, base); err != nil {
		return
	}

	cued := map[uint64]bool{}
	var buf bytes.Buffer
	for _, blk := range c.Blocks {
		rel, ok := timescale.Relative(blk.Time, c.Base, self.opts.TimestampScale)
		if !ok {
			return errors.Errorf("mkv: block at %v does not fit cluster at %v", blk.Time, c.Base)
		}
		number := blk.Track.Number

		// key frames of video tracks are cued; without video the first
		// block of every cluster is
		if (blk.IsKeyFrame && blk.Track.Kind == av.KindVideo) || (!self.hasVideo && !cued[number]) {
			cued[number] = true
			self.cues = append(self.cues, cuePoint{
				time:     self.ticks(blk.Time),
				track:    number,
				cluster:  clusterAt,
				relative: w.Pos() - dataAt,
			})
		}

		buf.Reset()
		eb := &ebml.Block{
			TrackNumber: number,
			Timecode:    rel,
			Lacing:      lacingModes[blk.Lacing],
			Data:        blk.Frames,
		}
		if blk.HasDuration {
			err = self.writeBlockGroup(eb, blk, &buf)
		} else {
			eb.Keyframe = blk.IsKeyFrame
			eb.Discardable = blk.Discardable
			if err = ebml.MarshalBlock(eb, &buf); err == nil {
				err = w.WriteBinary(mkvio.ElementSimpleBlock.ID, buf.Bytes())
			}
		}
		if err != nil {
			return
		}
		self.count(blk)
	}

	if err = w.EndMaster(); err != nil {
		return
	}
	self.clusters++
	self.log.WithFields(logrus.Fields{
		"cluster": c.Seq,
		"base":    c.Base,
		"blocks":  len(c.Blocks),
	}).Debug("cluster written")
	c.MarkFlushed()
	return
}

func (self *Muxer) writeBlockGroup(eb *ebml.Block, blk *av.Block, buf *bytes.Buffer) (err error) {
	w := self.w
	if err = ebml.MarshalBlock(eb, buf); err != nil {
		return
	}
	if err = w.StartMaster(mkvio.ElementBlockGroup.ID, mkvio.MasterOptions{}); err != nil {
		return
	}
	if err = w.WriteBinary(mkvio.ElementBlock.ID, buf.Bytes()); err != nil {
		return
	}
	if err = w.WriteUint(mkvio.ElementBlockDuration.ID, self.ticks(blk.Duration)); err != nil {
		return
	}
	if !blk.IsKeyFrame {
		if err = w.WriteInt(mkvio.ElementReferenceBlock.ID, -1); err != nil {
			return
		}
	}
	return w.EndMaster()
}

func (self *Muxer) count(blk *av.Block) {
	st := self.stats[blk.Track.Number]
	if st == nil {
		st = &TrackStats{}
		self.stats[blk.Track.Number] = st
	}
	if !st.started || blk.Time < st.First {
		st.First = blk.Time
	}
	st.started = true
	if e := blk.End(); e > st.Last {
		st.Last = e
	}
	st.Frames += int64(len(blk.Frames))
	st.Bytes += int64(blk.Size())
	if e := blk.End(); e > self.end {
		self.end = e
	}
}

func (self *Muxer) writeCues() error {
	if len(self.cues) == 0 {
		return nil
	}
	return self.master(mkvio.ElementCues.ID, func(w *mkvio.Writer) (err error) {
		for _, cue := range self.cues {
			if err = w.StartMaster(mkvio.ElementCuePoint.ID, mkvio.MasterOptions{}); err != nil {
				return
			}
			if err = w.WriteUint(mkvio.ElementCueTime.ID, cue.time); err != nil {
				return
			}
			if err = w.StartMaster(mkvio.ElementCueTrackPositions.ID, mkvio.MasterOptions{}); err != nil {
				return
			}
			if err = w.WriteUint(mkvio.ElementCueTrack.ID, cue.track); err != nil {
				return
			}
			if err = w.WriteUint(mkvio.ElementCueClusterPosition.ID, uint64(cue.cluster)); err != nil {
				return
			}
			if err = w.WriteUint(mkvio.ElementCueRelativePosition.ID, uint64(cue.relative)); err != nil {
				return
			}
			if err = w.EndMaster(); err != nil {
				return
			}
			if err = w.EndMaster(); err != nil {
				return
			}
		}
		return
	})
}

// FormatDuration renders d the way statistics tags carry it.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := d / time.Hour
	m := d % time.Hour / time.Minute
	s := d % time.Minute / time.Second
	return fmt.Sprintf("%02d:%02d:%02d.%09d", h, m, s, d%time.Second)
}

func (self *Muxer) writeTags() error {
	return self.master(mkvio.ElementTags.ID, func(w *mkvio.Writer) (err error) {
		for _, t := range self.tracks {
			st := self.stats[t.Number]
			if st == nil || st.Frames == 0 {
				continue
			}
			if err = w.StartMaster(mkvio.ElementTag.ID, mkvio.MasterOptions{}); err != nil {
				return
			}
			if err = w.StartMaster(mkvio.ElementTargets.ID, mkvio.MasterOptions{}); err != nil {
				return
			}
			if err = w.WriteUint(mkvio.ElementTargetTypeValue.ID, 50); err != nil {
				return
			}
			if err = w.WriteUint(mkvio.ElementTagTrackUID.ID, t.UID); err != nil {
				return
			}
			if err = w.EndMaster(); err != nil {
				return
			}
			for _, tag := range [][2]string{
				{"BPS", strconv.FormatInt(st.BitRate(), 10)},
				{"DURATION", FormatDuration(st.Duration())},
				{"NUMBER_OF_FRAMES", strconv.FormatInt(st.Frames, 10)},
				{"NUMBER_OF_BYTES", strconv.FormatInt(st.Bytes, 10)},
			} {
				if err = writeSimpleTag(w, tag[0], tag[1]); err != nil {
					return
				}
			}
			if err = w.EndMaster(); err != nil {
				return
			}
		}
		return
	})
}

func writeSimpleTag(w *mkvio.Writer, name, value string) (err error) {
	if err = w.StartMaster(mkvio.ElementSimpleTag.ID, mkvio.MasterOptions{}); err != nil {
		return
	}
	if err = w.WriteUTF8(mkvio.ElementTagName.ID, name); err != nil {
		return
	}
	if err = w.WriteString(mkvio.ElementTagLanguage.ID, "eng"); err != nil {
		return
	}
	if err = w.WriteUTF8(mkvio.ElementTagString.ID, value); err != nil {
		return
	}
	return w.EndMaster()
}

func (self *Muxer) seekHead() ([]byte, error) {
	var buf bytes.Buffer
	w := mkvio.NewWriter(&buf)
	if err := w.StartMaster(mkvio.ElementSeekHead.ID, mkvio.MasterOptions{CRC: self.opts.CRC}); err != nil {
		return nil, err
	}
	for _, id := range []uint32{mkvio.ElementInfo.ID, mkvio.ElementTracks.ID, mkvio.ElementCues.ID, mkvio.ElementTags.ID} {
		pos, ok := self.positions[id]
		if !ok {
			continue
		}
		if err := w.StartMaster(mkvio.ElementSeek.ID, mkvio.MasterOptions{}); err != nil {
			return nil, err
		}
		if err := w.WriteBinary(mkvio.ElementSeekID.ID, mkvio.EncodeID(id)); err != nil {
			return nil, err
		}
		if err := w.WriteUint(mkvio.ElementSeekPosition.ID, uint64(pos)); err != nil {
			return nil, err
		}
		if err := w.EndMaster(); err != nil {
			return nil, err
		}
	}
	if err := w.EndMaster(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Close writes cues and tags and closes the segment. Nothing is left with
// a placeholder size.
func (self *Muxer) Close() (err error) {
	if self.closed {
		return nil
	}
	self.closed = true
	if !self.header {
		return errors.New("mkv: close before header")
	}

	if err = self.writeCues(); err != nil {
		return
	}
	if err = self.writeTags(); err != nil {
		return
	}
	if err = self.w.EndMaster(); err != nil {
		return
	}

	if self.w.Seekable() {
		var sh []byte
		if sh, err = self.seekHead(); err != nil {
			return
		}
		var void []byte
		if void, err = mkvio.VoidBytes(seekHeadSpace - len(sh)); err != nil {
			return
		}
		if err = self.w.Patch(self.seekHeadAt, append(sh, void...)); err != nil {
			return
		}

		var info []byte
		if info, err = self.info(float64(self.ticks(self.end)), true); err != nil {
			return
		}
		if err = self.w.Patch(self.infoAt, info); err != nil {
			return
		}
	}
	return self.w.Close()
}
