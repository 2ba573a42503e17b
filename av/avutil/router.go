package avutil

import (
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/deepch/mkvmux/av"
	"github.com/deepch/mkvmux/packetizer"
	"github.com/deepch/mkvmux/utils/logger"
)

// PacketizerConfigurer is implemented by readers that let the caller tune
// the packetizers they create.
type PacketizerConfigurer interface {
	ConfigurePacketizers(fn func(t *av.Track) packetizer.Options)
}

// LogSetter is implemented by readers that report recoverable problems.
type LogSetter interface {
	SetLogger(l logrus.FieldLogger)
}

// Router binds packetizers to the tracks a reader identified and routes
// packets to them by track id. Readers embed it to get CreatePacketizer.
type Router struct {
	tracks  map[int64]*av.Track
	bound   map[int64]av.Packetizer
	order   []int64
	options func(t *av.Track) packetizer.Options
	log     logrus.FieldLogger
}

// SetLogger sets the logger readers report recoverable problems to.
func (self *Router) SetLogger(l logrus.FieldLogger) {
	self.log = l
}

func (self *Router) Logger() logrus.FieldLogger {
	return logger.Or(self.log)
}

// SetTracks records the tracks packetizers may be created for.
func (self *Router) SetTracks(tracks []*av.Track) {
	self.tracks = map[int64]*av.Track{}
	for _, t := range tracks {
		self.tracks[t.ID] = t
	}
}

func (self *Router) ConfigurePacketizers(fn func(t *av.Track) packetizer.Options) {
	self.options = fn
}

func (self *Router) CreatePacketizer(t *av.Track, sink av.BlockSink) (av.Packetizer, error) {
	if _, ok := self.tracks[t.ID]; !ok {
		return nil, errors.Errorf("track %d was not identified by this reader", t.ID)
	}
	if _, ok := self.bound[t.ID]; ok {
		return nil, errors.Errorf("track %d already has a packetizer", t.ID)
	}
	var opts packetizer.Options
	if self.options != nil {
		opts = self.options(t)
	}
	p, err := packetizer.New(t, sink, opts)
	if err != nil {
		return nil, err
	}
	if self.bound == nil {
		self.bound = map[int64]av.Packetizer{}
	}
	self.bound[t.ID] = p
	self.order = append(self.order, t.ID)
	return p, nil
}

// Bound reports whether packets of track id are wanted.
func (self *Router) Bound(id int64) bool {
	_, ok := self.bound[id]
	return ok
}

// Unbound reports that no track has a packetizer any more; the reader may
// stop early.
func (self *Router) Unbound() bool {
	return len(self.bound) == 0
}

// Route hands pkt to the packetizer of its track. Packets of unbound tracks
// are dropped. A packetizer failure unbinds the track and comes back as an
// av.TrackError.
func (self *Router) Route(pkt av.Packet) error {
	p, ok := self.bound[pkt.TrackID]
	if !ok {
		return nil
	}
	if err := p.Process(pkt); err != nil {
		self.unbind(pkt.TrackID)
		return &av.TrackError{TrackID: pkt.TrackID, Err: err}
	}
	return nil
}

// Flush flushes every bound packetizer in binding order.
func (self *Router) Flush() (err error) {
	for _, id := range append([]int64(nil), self.order...) {
		p, ok := self.bound[id]
		if !ok {
			continue
		}
		if e := p.Flush(); e != nil {
			self.unbind(id)
			err = multierr.Append(err, &av.TrackError{TrackID: id, Err: e})
		}
	}
	return
}

// Fail unbinds track id after a read error that only affects it.
func (self *Router) Fail(id int64, err error) error {
	self.unbind(id)
	return &av.TrackError{TrackID: id, Err: err}
}

func (self *Router) unbind(id int64) {
	delete(self.bound, id)
	for i, v := range self.order {
		if v == id {
			self.order = append(self.order[:i], self.order[i+1:]...)
			break
		}
	}
}

// Counter counts the bytes read through it for progress reporting.
type Counter struct {
	R io.Reader
	N int64
}

func (self *Counter) Read(b []byte) (n int, err error) {
	n, err = self.R.Read(b)
	self.N += int64(n)
	return
}
