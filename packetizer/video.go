package packetizer

import (
	"sort"
	"time"

	"github.com/deepch/mkvmux/av"
	"github.com/deepch/mkvmux/codec/h264parser"
)

// Video passes frames through one per block.
type Video struct {
	Base
}

func NewVideo(t *av.Track, sink av.BlockSink, opts Options) *Video {
	return &Video{Base: newBase(t, sink, opts)}
}

func (self *Video) Process(pkt av.Packet) error {
	if len(pkt.Data) == 0 {
		return nil
	}
	return self.emit(&av.Block{
		Time:       pkt.Time,
		DTS:        dts(pkt),
		Duration:   self.duration(pkt),
		IsKeyFrame: pkt.IsKeyFrame,
		Frames:     [][]byte{pkt.Data},
	})
}

func (self *Video) Flush() error {
	return nil
}

// ReorderDepth is the number of frames held back to derive decode
// timestamps for reordered streams that only carry presentation times.
const ReorderDepth = 4

// AVC stores H.264 access units length-prefixed; parameter sets travel in
// CodecPrivate.
type AVC struct {
	Base

	held []*av.Block
	// presentation times of the held frames, ascending
	pts []time.Duration
}

func NewAVC(t *av.Track, sink av.BlockSink, opts Options) *AVC {
	return &AVC{Base: newBase(t, sink, opts)}
}

func (self *AVC) Process(pkt av.Packet) error {
	nalus, _ := h264parser.SplitNALUs(pkt.Data)
	data, err := h264parser.ToAVCC(nalus)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	blk := &av.Block{
		Time:       pkt.Time,
		DTS:        dts(pkt),
		Duration:   self.duration(pkt),
		IsKeyFrame: pkt.IsKeyFrame || h264parser.IsKeyFrame(nalus),
		Frames:     [][]byte{data},
	}
	if !self.track.Reordered || pkt.HasDTS {
		return self.emit(blk)
	}

	// the n-th frame in decode order decodes at the n-th smallest
	// presentation time, never later than its own
	self.held = append(self.held, blk)
	i := sort.Search(len(self.pts), func(i int) bool { return self.pts[i] > blk.Time })
	self.pts = append(self.pts, 0)
	copy(self.pts[i+1:], self.pts[i:])
	self.pts[i] = blk.Time
	if len(self.held) > ReorderDepth {
		return self.release()
	}
	return nil
}

func (self *AVC) release() error {
	blk := self.held[0]
	self.held = self.held[1:]
	blk.DTS = self.pts[0]
	if blk.DTS > blk.Time {
		blk.DTS = blk.Time
	}
	self.pts = self.pts[1:]
	return self.emit(blk)
}

func (self *AVC) Flush() error {
	for len(self.held) > 0 {
		if err := self.release(); err != nil {
			return err
		}
	}
	return nil
}
