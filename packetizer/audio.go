package packetizer

import (
	"time"

	"github.com/deepch/mkvmux/av"
	"github.com/deepch/mkvmux/codec"
	"github.com/deepch/mkvmux/codec/aacparser"
	"github.com/deepch/mkvmux/codec/opusparser"
)

// Audio emits every frame as a key frame and optionally laces consecutive
// frames into one block.
type Audio struct {
	Base
	lace     int
	pending  []av.Packet
	frameDur func(pkt av.Packet) time.Duration
	payload  func(pkt av.Packet) ([]byte, error)
}

func NewAudio(t *av.Track, sink av.BlockSink, opts Options) *Audio {
	self := &Audio{Base: newBase(t, sink, opts), lace: opts.Lace}
	self.frameDur = func(pkt av.Packet) time.Duration {
		if d := self.duration(pkt); d > 0 {
			return d
		}
		if self.track.Codec == av.PCM {
			return codec.PCMPacketDuration(self.track.Audio, pkt.Data)
		}
		return 0
	}
	return self
}

// NewAAC strips ADTS headers when the input still carries them.
func NewAAC(t *av.Track, sink av.BlockSink, opts Options) *Audio {
	self := NewAudio(t, sink, opts)
	self.payload = func(pkt av.Packet) ([]byte, error) {
		if _, err := aacparser.ParseADTSHeader(pkt.Data); err != nil {
			return pkt.Data, nil
		}
		au, _, err := aacparser.SplitADTS(pkt.Data)
		return au, err
	}
	return self
}

func NewOpus(t *av.Track, sink av.BlockSink, opts Options) *Audio {
	self := NewAudio(t, sink, opts)
	frameDur := self.frameDur
	self.frameDur = func(pkt av.Packet) time.Duration {
		if d, err := opusparser.PacketDuration(pkt.Data); err == nil && d > 0 {
			return d
		}
		return frameDur(pkt)
	}
	return self
}

func (self *Audio) Process(pkt av.Packet) (err error) {
	if self.payload != nil {
		if pkt.Data, err = self.payload(pkt); err != nil {
			return
		}
	}
	if len(pkt.Data) == 0 {
		return
	}
	pkt.Duration = self.frameDur(pkt)

	if self.lace < 2 {
		return self.emit(&av.Block{
			Time:       pkt.Time,
			DTS:        pkt.Time,
			Duration:   pkt.Duration,
			IsKeyFrame: true,
			Frames:     [][]byte{pkt.Data},
		})
	}

	self.pending = append(self.pending, pkt)
	if len(self.pending) >= self.lace {
		return self.Flush()
	}
	return
}

// Flush emits the frames waiting to be laced.
func (self *Audio) Flush() error {
	if len(self.pending) == 0 {
		return nil
	}
	first := self.pending[0]
	blk := &av.Block{
		Time:       first.Time,
		DTS:        first.Time,
		IsKeyFrame: true,
	}
	same := true
	for _, pkt := range self.pending {
		blk.Duration += pkt.Duration
		blk.Frames = append(blk.Frames, pkt.Data)
		same = same && len(pkt.Data) == len(first.Data)
	}
	switch {
	case len(blk.Frames) == 1:
		blk.Lacing = av.LacingNone
	case same:
		blk.Lacing = av.LacingFixed
	default:
		blk.Lacing = av.LacingEBML
	}
	self.pending = self.pending[:0]
	return self.emit(blk)
}
