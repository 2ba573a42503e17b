package mkvio

import (
	"io"
	"math"
	"time"
)

// Document reads EBML elements from a stream.
type Document struct {
	r   io.Reader
	pos int64

	// header read ahead while looking for the end of an unknown-sized master
	pending *Element
}

// ElementRegister contains the ID, type and name of the
// standard WebM/Matroska elements
type ElementRegister struct {
	ID   uint32
	Type uint8
	Name string
}

// Element is a Matroska/WebM/EBML element. Masters own their children; there
// are no links back to the parent.
type Element struct {
	ElementRegister

	Level       int32
	Offset      int64 // position of the element ID in the stream
	HeaderSize  int
	Size        uint64
	UnknownSize bool
	Content     []byte // Data contained in the element, nil if it is a master element
	Children    []*Element
}

// DateEpoch is the origin of EBML date values.
var DateEpoch = time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)

func (self *Element) Uint() uint64 {
	return pack(len(self.Content), self.Content)
}

func (self *Element) Int() int64 {
	n := len(self.Content)
	if n == 0 {
		return 0
	}
	v := pack(n, self.Content)
	shift := uint(64 - 8*n)
	return int64(v<<shift) >> shift
}

func (self *Element) Float() float64 {
	switch len(self.Content) {
	case 4:
		return float64(math.Float32frombits(uint32(pack(4, self.Content))))
	case 8:
		return math.Float64frombits(pack(8, self.Content))
	}
	return 0
}

func (self *Element) String() string {
	b := self.Content
	for len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return string(b)
}

func (self *Element) Date() time.Time {
	return DateEpoch.Add(time.Duration(self.Int()))
}

// Child returns the first direct child with the given ID.
func (self *Element) Child(id uint32) *Element {
	for _, c := range self.Children {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// Find walks the given ID path below the element.
func (self *Element) Find(path ...uint32) *Element {
	el := self
	for _, id := range path {
		if el = el.Child(id); el == nil {
			return nil
		}
	}
	return el
}

func (self *Element) All(id uint32) (out []*Element) {
	for _, c := range self.Children {
		if c.ID == id {
			out = append(out, c)
		}
	}
	return
}
