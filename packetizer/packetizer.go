// Package packetizer turns the packets of one track into Matroska blocks.
package packetizer

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/deepch/mkvmux/av"
	"github.com/deepch/mkvmux/utils/logger"
)

// MaxLace is the largest number of frames put into one laced block.
const MaxLace = 8

type Options struct {
	Log logrus.FieldLogger
	// Lace groups this many audio frames per block. Values below 2 disable
	// lacing.
	Lace int
	// Offset is added to every timestamp. Appended inputs continue the
	// timeline of the track they extend.
	Offset time.Duration
}

type factory func(t *av.Track, sink av.BlockSink, opts Options) av.Packetizer

var factories = map[av.CodecType]factory{
	av.H264:  func(t *av.Track, sink av.BlockSink, opts Options) av.Packetizer { return NewAVC(t, sink, opts) },
	av.H265:  video,
	av.VP8:   video,
	av.VP9:   video,
	av.AV1:   video,
	av.DIRAC: video,
	av.AAC:   func(t *av.Track, sink av.BlockSink, opts Options) av.Packetizer { return NewAAC(t, sink, opts) },
	av.OPUS:  func(t *av.Track, sink av.BlockSink, opts Options) av.Packetizer { return NewOpus(t, sink, opts) },
	av.MP3:   audio,
	av.PCM:   audio,
	av.TEXT:  func(t *av.Track, sink av.BlockSink, opts Options) av.Packetizer { return NewText(t, sink, opts) },
}

func video(t *av.Track, sink av.BlockSink, opts Options) av.Packetizer {
	return NewVideo(t, sink, opts)
}

func audio(t *av.Track, sink av.BlockSink, opts Options) av.Packetizer {
	return NewAudio(t, sink, opts)
}

// Supports reports whether a packetizer exists for t's codec.
func Supports(t *av.Track) bool {
	_, ok := factories[t.Codec]
	return ok
}

// New binds the packetizer matching t's codec to sink.
func New(t *av.Track, sink av.BlockSink, opts Options) (av.Packetizer, error) {
	fn, ok := factories[t.Codec]
	if !ok {
		return nil, &av.UnsupportedCodecError{CodecID: t.CodecID, TrackID: t.ID}
	}
	opts.Log = logger.Or(opts.Log).WithField("track", t.Number)
	if opts.Lace > MaxLace {
		opts.Lace = MaxLace
	}
	return fn(t, sink, opts), nil
}

// Base holds what every packetizer shares: the bound track, the sink and
// the timestamp order check.
type Base struct {
	track  *av.Track
	sink   av.BlockSink
	log    logrus.FieldLogger
	offset time.Duration

	hasLast    bool
	last       time.Duration
	violations int
}

func newBase(t *av.Track, sink av.BlockSink, opts Options) Base {
	return Base{
		track:  t,
		sink:   sink,
		log:    logger.Or(opts.Log),
		offset: opts.Offset,
	}
}

func (self *Base) Track() *av.Track {
	return self.track
}

// Violations is the number of blocks that went backwards in time.
func (self *Base) Violations() int {
	return self.violations
}

// emit shifts blk by the offset, checks its ordering and hands it on. Order
// is checked on decode timestamps for reordered codecs and on presentation
// timestamps otherwise. A violation is logged and the block is kept.
func (self *Base) emit(blk *av.Block) error {
	blk.Track = self.track
	blk.Time += self.offset
	blk.DTS += self.offset

	key := blk.Time
	if self.track.Reordered {
		key = blk.DTS
	}
	if self.hasLast && key < self.last {
		err := &av.TimestampOrderViolation{Track: self.track.Number, Previous: self.last, Current: key}
		self.violations++
		self.log.WithError(err).Warn("timestamp order violation")
	} else {
		self.last = key
	}
	self.hasLast = true

	return self.sink.Push(blk)
}

func (self *Base) duration(pkt av.Packet) time.Duration {
	if pkt.Duration > 0 {
		return pkt.Duration
	}
	return self.track.DefaultDuration
}

func dts(pkt av.Packet) time.Duration {
	if pkt.HasDTS {
		return pkt.DTS
	}
	return pkt.Time
}
