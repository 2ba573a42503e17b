package interleave

import (
	"math"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/deepch/mkvmux/av"
	"github.com/deepch/mkvmux/format/mkv/timescale"
	"github.com/deepch/mkvmux/utils/logger"
)

const (
	DefaultMaxDuration    = 5 * time.Second
	DefaultMaxSize        = 5 << 20
	DefaultTimestampScale = uint64(time.Millisecond)
)

type Limits struct {
	MaxDuration time.Duration
	// MaxSize bounds the payload bytes of a cluster.
	MaxSize int
	// TimestampScale is the tick length in ns; block timecodes relative to
	// the cluster must fit 16 bits in this unit.
	TimestampScale uint64
}

func (self Limits) withDefaults() Limits {
	if self.MaxDuration <= 0 {
		self.MaxDuration = DefaultMaxDuration
	}
	if self.MaxSize <= 0 {
		self.MaxSize = DefaultMaxSize
	}
	if self.TimestampScale == 0 {
		self.TimestampScale = DefaultTimestampScale
	}
	return self
}

type queue struct {
	blocks []*av.Block
	eos    bool
}

// Interleaver implements av.BlockSink. Blocks are queued per track and only
// released in global decode order once every track that has not ended has
// a block pending, so a cluster never needs an earlier block later on.
type Interleaver struct {
	limits Limits
	log    logrus.FieldLogger

	queues  map[uint64]*queue
	numbers []uint64

	cur   *Cluster
	ready []*Cluster
	seq   int
	// base of the last cluster; later bases never go below it
	floor time.Duration
}

func New(limits Limits, log logrus.FieldLogger) *Interleaver {
	return &Interleaver{
		limits: limits.withDefaults(),
		log:    logger.Or(log).WithField("component", "interleave"),
		queues: map[uint64]*queue{},
		floor:  math.MinInt64,
	}
}

func (self *Interleaver) Limits() Limits {
	return self.limits
}

// AddTrack registers a track. Blocks of unknown tracks are rejected.
func (self *Interleaver) AddTrack(t *av.Track) {
	if _, ok := self.queues[t.Number]; ok {
		return
	}
	self.queues[t.Number] = &queue{}
	self.numbers = append(self.numbers, t.Number)
	sort.Slice(self.numbers, func(i, j int) bool { return self.numbers[i] < self.numbers[j] })
}

func (self *Interleaver) Push(blk *av.Block) error {
	if blk.Track == nil {
		return errors.New("interleave: block without track")
	}
	q, ok := self.queues[blk.Track.Number]
	if !ok {
		return errors.Errorf("interleave: unknown track %d", blk.Track.Number)
	}
	if q.eos {
		return errors.Errorf("interleave: track %d already ended", blk.Track.Number)
	}
	q.blocks = append(q.blocks, blk)
	return nil
}

// EndOfStream marks a track as finished. Its queued blocks are still
// released.
func (self *Interleaver) EndOfStream(number uint64) {
	if q, ok := self.queues[number]; ok {
		q.eos = true
	}
}

func (self *Interleaver) Ended(number uint64) bool {
	q, ok := self.queues[number]
	return !ok || q.eos
}

func (self *Interleaver) Pending(number uint64) int {
	if q, ok := self.queues[number]; ok {
		return len(q.blocks)
	}
	return 0
}

// Starved returns the tracks that have not ended and have nothing queued.
// They must be read before more blocks can be released.
func (self *Interleaver) Starved() (numbers []uint64) {
	for _, n := range self.numbers {
		q := self.queues[n]
		if !q.eos && len(q.blocks) == 0 {
			numbers = append(numbers, n)
		}
	}
	return
}

// Done reports that every track ended and all blocks were released.
func (self *Interleaver) Done() bool {
	for _, q := range self.queues {
		if !q.eos || len(q.blocks) > 0 {
			return false
		}
	}
	return true
}

// Next pops the queued block with the smallest decode timestamp, ties going
// to the lower track number. Unless force is set it releases nothing while a
// track is starved.
func (self *Interleaver) Next(force bool) (blk *av.Block, ok bool) {
	var best *queue
	for _, n := range self.numbers {
		q := self.queues[n]
		if len(q.blocks) == 0 {
			if !q.eos && !force {
				return nil, false
			}
			continue
		}
		if best == nil || q.blocks[0].DTS < best.blocks[0].DTS {
			best = q
		}
	}
	if best == nil {
		return nil, false
	}
	blk = best.blocks[0]
	best.blocks[0] = nil
	best.blocks = best.blocks[1:]
	return blk, true
}

// Admit appends blk to the current cluster. The cluster is closed first when
// the end of blk would lie more than the duration limit past the cluster
// base, when blk would exceed the size limit or when its timecode would not
// fit the cluster. It is closed after blk when the size limit is reached.
func (self *Interleaver) Admit(blk *av.Block) {
	c := self.current()
	if !c.Empty() {
		_, fits := timescale.Relative(blk.Time, c.Base, self.limits.TimestampScale)
		switch {
		case blk.End()-c.Base > self.limits.MaxDuration,
			c.Size+blk.Size() > self.limits.MaxSize,
			!fits:
			self.close()
			c = self.current()
		}
	}
	c.add(blk, self.floor)
	if c.Size >= self.limits.MaxSize {
		self.close()
	}
}

// Drain moves every block that can be released into clusters.
func (self *Interleaver) Drain() {
	for {
		blk, ok := self.Next(false)
		if !ok {
			return
		}
		self.Admit(blk)
	}
}

// Flush releases all queued blocks regardless of starved tracks and closes
// the current cluster.
func (self *Interleaver) Flush() {
	for {
		blk, ok := self.Next(true)
		if !ok {
			break
		}
		self.Admit(blk)
	}
	self.close()
}

func (self *Interleaver) current() *Cluster {
	if self.cur == nil {
		self.cur = &Cluster{Seq: self.seq}
		self.seq++
	}
	return self.cur
}

func (self *Interleaver) close() {
	c := self.cur
	if c == nil || c.Empty() {
		return
	}
	c.State = ReadyToFlush
	self.floor = c.Base
	self.ready = append(self.ready, c)
	self.cur = nil
	self.log.WithFields(logrus.Fields{
		"cluster": c.Seq,
		"base":    c.Base,
		"blocks":  len(c.Blocks),
		"bytes":   c.Size,
	}).Debug("cluster ready")
}

// Ready returns the closed clusters in order and forgets them.
func (self *Interleaver) Ready() (clusters []*Cluster) {
	clusters, self.ready = self.ready, nil
	return
}

// Current is the cluster being accumulated, nil if none.
func (self *Interleaver) Current() *Cluster {
	return self.cur
}
