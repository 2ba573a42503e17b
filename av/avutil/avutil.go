package avutil

import (
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/deepch/mkvmux/av"
)

// ProbeSize is the prefix every handler may look at.
const ProbeSize = 64 * 1024

type RegisterHandler struct {
	// Name is the container name reported by identify, e.g. "Matroska".
	Name string
	Ext  string
	// Probe inspects r from its start. It must not keep state; the
	// stream is rewound by the caller.
	Probe func(r io.ReadSeeker, size int64) bool
	Open  func(r io.ReadSeeker, size int64) (av.Reader, error)
}

type Handlers struct {
	handlers []*RegisterHandler
}

func (self *Handlers) Add(fn func(*RegisterHandler)) {
	handler := &RegisterHandler{}
	fn(handler)
	self.handlers = append(self.handlers, handler)
}

func (self *Handlers) All() []*RegisterHandler {
	return append([]*RegisterHandler(nil), self.handlers...)
}

func (self *Handlers) Find(name string) *RegisterHandler {
	for _, h := range self.handlers {
		if strings.EqualFold(h.Name, name) {
			return h
		}
	}
	return nil
}

// DefaultHandlers is filled by format.RegisterAll.
var DefaultHandlers = &Handlers{}

var ErrUnknownFormat = errors.New("unknown file format")

// Probe offers the input to every handler in registration order and returns
// the first one that claims it. The stream is left at offset 0.
func (self *Handlers) Probe(r io.ReadSeeker, size int64) (handler *RegisterHandler, err error) {
	for _, h := range self.handlers {
		if h.Probe == nil {
			continue
		}
		if _, err = r.Seek(0, io.SeekStart); err != nil {
			err = &av.IOError{Op: "probe seek", Err: err}
			return
		}
		ok := h.Probe(r, size)
		if _, err = r.Seek(0, io.SeekStart); err != nil {
			err = &av.IOError{Op: "probe seek", Err: err}
			return
		}
		if ok {
			handler = h
			return
		}
	}
	err = ErrUnknownFormat
	return
}

// Open probes r and opens a reader with the first handler that claims it and
// whose Open succeeds. A FormatError from Open moves on to the next candidate.
func (self *Handlers) Open(r io.ReadSeeker, size int64) (handler *RegisterHandler, reader av.Reader, err error) {
	handler, reader, _, err = self.open(r, size, false)
	return
}

// Identify is Open followed by Identify on the reader. A FormatError from
// Identify also moves on to the next candidate.
func (self *Handlers) Identify(r io.ReadSeeker, size int64) (handler *RegisterHandler, reader av.Reader, tracks []*av.Track, err error) {
	return self.open(r, size, true)
}

func (self *Handlers) open(r io.ReadSeeker, size int64, identify bool) (handler *RegisterHandler, reader av.Reader, tracks []*av.Track, err error) {
	var rejected error
	for _, h := range self.handlers {
		if h.Probe == nil || h.Open == nil {
			continue
		}
		if _, err = r.Seek(0, io.SeekStart); err != nil {
			err = &av.IOError{Op: "probe seek", Err: err}
			return
		}
		ok := h.Probe(r, size)
		if _, err = r.Seek(0, io.SeekStart); err != nil {
			err = &av.IOError{Op: "probe seek", Err: err}
			return
		}
		if !ok {
			continue
		}
		if reader, err = h.Open(r, size); err == nil && identify {
			tracks, err = reader.Identify()
		}
		if err != nil {
			if av.IsFormatError(err) {
				rejected = err
				reader = nil
				continue
			}
			return
		}
		handler = h
		return
	}
	// the last rejection says more than "unknown"
	err = ErrUnknownFormat
	if rejected != nil {
		err = rejected
	}
	return
}

// ReadPrefix reads up to n bytes from the current position. Short inputs are
// not an error.
func ReadPrefix(r io.Reader, n int) ([]byte, error) {
	b := make([]byte, n)
	got, err := io.ReadFull(r, b)
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		err = nil
	}
	return b[:got], err
}

// Percent returns pos/size in percent, clamped to [0, 100]. Unknown sizes
// report 0 until the input is done.
func Percent(pos, size int64) int {
	if size <= 0 || pos <= 0 {
		return 0
	}
	if pos >= size {
		return 100
	}
	return int(pos * 100 / size)
}
