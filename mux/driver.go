// Package mux runs a multiplex job: it identifies the inputs, binds their
// tracks to packetizers and pulls packets until every track has ended,
// writing clusters as the interleaver closes them.
package mux

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sunfish-shogi/bufseekio"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/deepch/mkvmux/av"
	"github.com/deepch/mkvmux/av/avutil"
	"github.com/deepch/mkvmux/av/stereo"
	"github.com/deepch/mkvmux/format/mkv"
	"github.com/deepch/mkvmux/interleave"
	"github.com/deepch/mkvmux/packetizer"
	"github.com/deepch/mkvmux/source"
	"github.com/deepch/mkvmux/utils/logger"
)

const (
	DefaultIdentifyWorkers = 4
	readBufferSize         = 64 * 1024
)

type Options struct {
	Cluster interleave.Limits
	Output  mkv.MuxerOptions
	// Lace is the number of audio frames per block, see packetizer.Options.
	Lace int
	// IdentifyWorkers bounds the inputs identified at the same time.
	IdentifyWorkers int
	// Handlers defaults to avutil.DefaultHandlers.
	Handlers *avutil.Handlers
	// Registry defaults to a fresh stereo.NewRegistry.
	Registry *stereo.Registry
	Log      logrus.FieldLogger
}

// Result describes a finished run.
type Result struct {
	Clusters int
	Duration time.Duration
	// Degraded is set when a track ended early or was left out.
	Degraded bool
	// Err combines the errors of the degraded tracks.
	Err error
	// Stopped is set when the run was cancelled. The output is still
	// complete up to the last cluster.
	Stopped bool
}

// Driver owns the inputs and the output of one multiplex job.
type Driver struct {
	opts  Options
	log   logrus.FieldLogger
	arena *source.Arena

	inputs []*input
	active []*input
	cursor int

	table av.TrackTable
	il    *interleave.Interleaver
	muxer *mkv.Muxer

	owner map[uint64]*input
	ends  map[uint64]time.Duration
	dead  map[uint64]bool

	degraded error
	progress atomic.Int32
}

func NewDriver(opts Options) *Driver {
	if opts.IdentifyWorkers <= 0 {
		opts.IdentifyWorkers = DefaultIdentifyWorkers
	}
	if opts.Handlers == nil {
		opts.Handlers = avutil.DefaultHandlers
	}
	if opts.Registry == nil {
		opts.Registry = stereo.NewRegistry()
	}
	return &Driver{
		opts:  opts,
		log:   logger.Or(opts.Log).WithField("component", "mux"),
		owner: map[uint64]*input{},
		ends:  map[uint64]time.Duration{},
		dead:  map[uint64]bool{},
	}
}

// Open identifies every file of arena in parallel and builds the output
// track table. Additional parts are read as part of their parent; appended
// files continue the tracks of the file they are appended to.
func (self *Driver) Open(ctx context.Context, arena *source.Arena) error {
	if self.arena != nil {
		return errors.New("mux: driver already opened")
	}
	self.arena = arena

	var roots []*input
	for _, r := range arena.Roots() {
		root := newInput(arena, r, nil)
		roots = append(roots, root)
		self.inputs = append(self.inputs, root)
		prev := root
		for _, ap := range arena.Appended(r) {
			in := newInput(arena, ap, root)
			prev.next = in
			prev = in
			self.inputs = append(self.inputs, in)
		}
	}
	if len(roots) == 0 {
		return errors.New("mux: no input files")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(self.opts.IdentifyWorkers)
	for _, in := range self.inputs {
		in := in
		g.Go(func() error {
			return self.identify(gctx, in)
		})
	}
	if err := g.Wait(); err != nil {
		self.Close()
		return err
	}

	for _, in := range self.inputs {
		arena.SetContainer(in.src, in.handler.Name)
		arena.Get(in.src).Tracks = in.tracks
	}
	for _, root := range roots {
		self.addTracks(root)
	}
	for _, in := range self.inputs {
		if in.root != nil {
			self.matchTracks(in)
		}
	}
	if self.table.Len() == 0 {
		self.Close()
		return multierr.Append(errors.New("mux: no usable tracks"), self.degraded)
	}
	return nil
}

func (self *Driver) identify(ctx context.Context, in *input) (err error) {
	if err = ctx.Err(); err != nil {
		return
	}
	names := self.arena.Parts(in.src)
	log := self.log.WithField("file", names[0])

	if in.file, err = source.OpenMulti(names); err != nil {
		return errors.Wrapf(err, "open %s", names[0])
	}
	in.size = in.file.Size()
	r := bufseekio.NewReadSeeker(in.file, readBufferSize, 4)
	if in.handler, in.reader, in.tracks, err = self.opts.Handlers.Identify(r, in.size); err != nil {
		return errors.Wrapf(err, "identify %s", names[0])
	}
	if ls, ok := in.reader.(avutil.LogSetter); ok {
		ls.SetLogger(log)
	}
	in.log = log
	log.WithFields(logrus.Fields{
		"container": in.handler.Name,
		"tracks":    len(in.tracks),
	}).Debug("identified")
	return
}

// drop leaves a track out of the output.
func (self *Driver) drop(in *input, t *av.Track, err error) {
	in.log.WithError(err).WithField("track", t.ID).Warn("track left out")
	self.degraded = multierr.Append(self.degraded, errors.Wrapf(err, "%s", in.name))
}

func (self *Driver) addTracks(in *input) {
	for _, t := range in.tracks {
		if !packetizer.Supports(t) {
			self.drop(in, t, &av.UnsupportedCodecError{CodecID: t.CodecID, TrackID: t.ID})
			continue
		}
		if err := t.Validate(self.opts.Registry); err != nil {
			self.drop(in, t, err)
			continue
		}
		if _, err := self.table.Add(t); err != nil {
			self.drop(in, t, err)
			continue
		}
		in.out = append(in.out, binding{local: t, output: t})
	}
}

// matchTracks pairs the tracks of an appended file with the tracks of its
// root file by kind and codec, in order. A file with a track that has no
// partner is left out as a whole.
func (self *Driver) matchTracks(in *input) {
	used := map[uint64]bool{}
	var out []binding
	for _, t := range in.tracks {
		var partner *av.Track
		for _, b := range in.root.out {
			o := b.output
			if !used[o.Number] && o.Kind == t.Kind && o.CodecID == t.CodecID {
				partner = o
				break
			}
		}
		if partner == nil {
			err := errors.Errorf("track %d (%s %s) matches no track of %s", t.ID, t.Kind, t.CodecID, in.root.name)
			in.log.WithError(err).Warn("appended file left out")
			self.degraded = multierr.Append(self.degraded, errors.Wrapf(err, "%s", in.name))
			in.skip = true
			return
		}
		used[partner.Number] = true

		// the copy keeps the reader-local id and takes over the output
		// identity of its partner
		local := *t
		local.Number = partner.Number
		local.UID = partner.UID
		out = append(out, binding{local: &local, output: partner})
	}
	in.out = out
}

// Tracks are the output tracks in track number order.
func (self *Driver) Tracks() []*av.Track {
	return self.table.Tracks()
}

// ApplyOptions validates the per-track settings, keyed by output track
// number, and applies them. Nothing is applied if any of them is invalid.
func (self *Driver) ApplyOptions(opts map[uint64]av.TrackOptions) error {
	if self.table.Frozen() {
		return errors.New("mux: tracks are frozen")
	}
	for number, o := range opts {
		t := self.table.Get(number)
		if t == nil {
			return errors.Errorf("mux: no output track %d", number)
		}
		trial := *t
		if err := o.Apply(self.opts.Registry, &trial); err != nil {
			return errors.Wrapf(err, "track %d", number)
		}
	}
	for number, o := range opts {
		if err := o.Apply(self.opts.Registry, self.table.Get(number)); err != nil {
			return errors.Wrapf(err, "track %d", number)
		}
	}
	return nil
}

// Progress is the share of all input bytes consumed, in percent.
func (self *Driver) Progress() int {
	return int(self.progress.Load())
}

func (self *Driver) updateProgress() {
	var total, done int64
	for _, in := range self.inputs {
		if in.skip {
			continue
		}
		total += in.size
		p := 100
		if !in.done {
			p = in.reader.Progress()
		}
		done += in.size * int64(p) / 100
	}
	p := int32(100)
	if total > 0 {
		p = int32(done * 100 / total)
	}
	if p > self.progress.Load() {
		self.progress.Store(p)
	}
}

// Push implements av.BlockSink for all packetizers.
func (self *Driver) Push(blk *av.Block) error {
	n := blk.Track.Number
	if e := blk.End(); e > self.ends[n] {
		self.ends[n] = e
	}
	return self.il.Push(blk)
}

// Run multiplexes the opened inputs into w. Errors confined to a track end
// that track and are reported in the result; errors writing w end the run.
// Cancelling ctx stops reading and finalizes what was read so far.
func (self *Driver) Run(ctx context.Context, w io.Writer) (res Result, err error) {
	if self.arena == nil {
		return res, errors.New("mux: driver not opened")
	}
	if self.muxer != nil {
		return res, errors.New("mux: driver already ran")
	}
	self.table.Freeze()

	mopts := self.opts.Output
	mopts.Log = self.log
	if mopts.TimestampScale == 0 {
		mopts.TimestampScale = self.opts.Cluster.TimestampScale
	}
	self.muxer = mkv.NewMuxer(w, mopts)
	if !self.muxer.Seekable() {
		self.muxer.SetBufferLimit(mkv.CapBufferLimit(mopts.BufferLimit))
	}

	limits := self.opts.Cluster
	if limits.TimestampScale == 0 {
		limits.TimestampScale = mopts.TimestampScale
	}
	self.il = interleave.New(limits, self.log)
	tracks := self.table.Tracks()
	for _, t := range tracks {
		self.il.AddTrack(t)
	}
	if err = self.muxer.WriteHeader(tracks); err != nil {
		return
	}

	for _, in := range self.inputs {
		if in.root == nil {
			self.activate(in)
		}
	}

	for {
		if err = self.writeReady(); err != nil {
			return
		}
		if self.il.Done() {
			break
		}
		if ctx.Err() != nil {
			res.Stopped = true
			self.log.Warn("stopped, finalizing output")
			self.flushActive()
			break
		}
		in := self.pick()
		if in == nil {
			break
		}
		self.read(in)
		self.il.Drain()
	}

	self.il.Flush()
	if err = self.writeReady(); err != nil {
		return
	}
	if err = self.muxer.Close(); err != nil {
		return
	}
	if !res.Stopped {
		self.progress.Store(100)
	}

	res.Clusters = self.muxer.Clusters()
	res.Duration = self.muxer.Duration()
	res.Err = self.degraded
	res.Degraded = self.degraded != nil
	self.log.WithFields(logrus.Fields{
		"clusters": res.Clusters,
		"duration": res.Duration,
		"degraded": res.Degraded,
	}).Info("mux finished")
	return
}

func (self *Driver) writeReady() error {
	for _, c := range self.il.Ready() {
		if err := self.muxer.WriteCluster(c); err != nil {
			return errors.Wrapf(err, "cluster %d", c.Seq)
		}
	}
	return nil
}

// pick returns the next active input, round robin, that feeds a track the
// interleaver is waiting for.
func (self *Driver) pick() *input {
	for {
		starved := self.il.Starved()
		if len(starved) == 0 {
			return nil
		}
		wanted := map[*input]bool{}
		for _, n := range starved {
			if in := self.owner[n]; in != nil {
				wanted[in] = true
			} else {
				// nothing can feed it any more
				self.il.EndOfStream(n)
			}
		}
		if len(wanted) == 0 {
			self.il.Drain()
			if err := self.writeReady(); err != nil || self.il.Done() {
				return nil
			}
			continue
		}
		for i := range self.active {
			in := self.active[(self.cursor+i)%len(self.active)]
			if wanted[in] {
				self.cursor = (self.cursor + i + 1) % len(self.active)
				return in
			}
		}
		return nil
	}
}

func (self *Driver) read(in *input) {
	status, err := in.reader.Read(false)
	if err != nil {
		self.fail(in, err)
	}
	if status == av.Done && !in.done {
		self.finish(in)
	}
	self.updateProgress()
}

// flushActive hands on what the packetizers of the active inputs still
// hold.
func (self *Driver) flushActive() {
	for _, in := range append([]*input(nil), self.active...) {
		if f, ok := in.reader.(interface{ Flush() error }); ok {
			if err := f.Flush(); err != nil {
				self.fail(in, err)
			}
		}
	}
	self.il.Drain()
}

// fail ends the tracks an error applies to. Errors not confined to one
// track end the whole input.
func (self *Driver) fail(in *input, err error) {
	for _, e := range multierr.Errors(err) {
		if te := av.AsTrackError(e); te != nil {
			if b := in.binding(te.TrackID); b != nil {
				self.degrade(in, b.output.Number, e)
			}
			continue
		}
		for _, b := range in.out {
			self.degrade(in, b.output.Number, e)
		}
		if !in.done {
			self.finish(in)
		}
	}
}

func (self *Driver) degrade(in *input, number uint64, err error) {
	if self.dead[number] {
		return
	}
	self.dead[number] = true
	in.log.WithError(err).WithField("track", number).Error("track ended early")
	self.degraded = multierr.Append(self.degraded, errors.Wrapf(err, "%s: output track %d", in.name, number))
	self.il.EndOfStream(number)
	delete(self.owner, number)
}

// finish retires an exhausted input and hands its tracks to the next file
// appended to the same root.
func (self *Driver) finish(in *input) {
	in.done = true
	for i, a := range self.active {
		if a == in {
			self.active = append(self.active[:i], self.active[i+1:]...)
			break
		}
	}
	if in.file != nil {
		if err := in.file.Close(); err != nil {
			in.log.WithError(err).Warn("close")
		}
		in.file = nil
	}

	next := in.next
	for next != nil && next.skip {
		next = next.next
	}
	continued := map[uint64]bool{}
	if next != nil {
		for _, b := range next.out {
			continued[b.output.Number] = true
		}
	}
	for _, b := range in.out {
		n := b.output.Number
		if self.owner[n] == in {
			delete(self.owner, n)
		}
		if !continued[n] {
			self.il.EndOfStream(n)
		}
	}
	if next != nil {
		self.activate(next)
	}
}

// activate binds the packetizers of in. Appended files start where the
// track they continue ended.
func (self *Driver) activate(in *input) {
	if cfg, ok := in.reader.(avutil.PacketizerConfigurer); ok {
		cfg.ConfigurePacketizers(func(t *av.Track) packetizer.Options {
			opts := packetizer.Options{Log: in.log, Lace: self.opts.Lace}
			if in.root != nil {
				opts.Offset = self.ends[t.Number]
			}
			return opts
		})
	}

	bound := 0
	for _, b := range in.out {
		n := b.output.Number
		if self.dead[n] || self.il.Ended(n) {
			continue
		}
		if _, err := in.reader.CreatePacketizer(b.local, self); err != nil {
			self.degrade(in, n, err)
			continue
		}
		self.owner[n] = in
		bound++
	}
	self.active = append(self.active, in)
	if bound == 0 {
		self.finish(in)
	}
}

// Close releases the input files.
func (self *Driver) Close() (err error) {
	for _, in := range self.inputs {
		if in.file != nil {
			err = multierr.Append(err, in.file.Close())
			in.file = nil
		}
	}
	return
}
