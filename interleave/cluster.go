// Package interleave merges the blocks of all tracks into time ordered
// clusters.
package interleave

import (
	"time"

	"github.com/deepch/mkvmux/av"
)

type State int

const (
	Accumulating State = iota
	ReadyToFlush
	Flushed
)

func (self State) String() string {
	switch self {
	case Accumulating:
		return "accumulating"
	case ReadyToFlush:
		return "ready_to_flush"
	case Flushed:
		return "flushed"
	}
	return "unknown"
}

// Cluster is a batch of blocks ordered by decode time, ties broken by track
// number.
type Cluster struct {
	Seq    int
	Base   time.Duration
	Blocks []*av.Block
	Size   int
	State  State

	last time.Duration
}

func (self *Cluster) Empty() bool {
	return len(self.Blocks) == 0
}

// Duration is the span from the cluster base to the last admitted block.
func (self *Cluster) Duration() time.Duration {
	if self.Empty() {
		return 0
	}
	return self.last - self.Base
}

// End is the latest block end in the cluster.
func (self *Cluster) End() (end time.Duration) {
	for _, blk := range self.Blocks {
		if e := blk.End(); e > end {
			end = e
		}
	}
	return
}

func (self *Cluster) add(blk *av.Block, floor time.Duration) {
	if self.Empty() {
		self.Base = blk.DTS
		if self.Base < floor {
			self.Base = floor
		}
	}
	self.Blocks = append(self.Blocks, blk)
	self.Size += blk.Size()
	self.last = blk.DTS
}

// MarkFlushed is called once the cluster has been written.
func (self *Cluster) MarkFlushed() {
	self.State = Flushed
	self.Blocks = nil
}
