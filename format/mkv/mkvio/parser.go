package mkvio

import (
	"io"

	"github.com/pkg/errors"
)

var (
	ErrParse         = errors.New("mkvio: parse error")
	ErrUnexpectedEOF = errors.New("mkvio: unexpected EOF")
)

// MaxContentSize bounds the payload of a single non-master element.
const MaxContentSize = 256 << 20

// top-level elements end an unknown-sized master
var topLevel = map[uint32]bool{
	ElementEBML.ID:        true,
	ElementSegment.ID:     true,
	ElementSeekHead.ID:    true,
	ElementInfo.ID:        true,
	ElementTracks.ID:      true,
	ElementCluster.ID:     true,
	ElementCues.ID:        true,
	ElementAttachments.ID: true,
	ElementChapters.ID:    true,
	ElementTags.ID:        true,
}

// InitDocument creates a MKV/WebM document containing the file data
// It does not do any parsing
func InitDocument(r io.Reader) *Document {
	doc := new(Document)
	doc.r = r

	return doc
}

// Pos is the number of bytes consumed so far.
func (doc *Document) Pos() int64 {
	if doc.pending != nil {
		return doc.pending.Offset
	}
	return doc.pos
}

// ParseAll parses the entire MKV/WebM document
// When an EBML/WebM element is encountered, it calls the provided function
// and passes the newly parsed element. Masters are entered, not skipped.
func (doc *Document) ParseAll(c func(Element)) error {
	for {
		el, err := doc.ParseElement()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		c(el)
	}
}

// ParseElement parses an EBML element starting at the document's current cursor position.
// Because of its nature, it does not set the elements's level.
func (doc *Document) ParseElement() (Element, error) {
	el, err := doc.ReadHeader()
	if err != nil {
		return Element{}, err
	}
	if el.Type != ElementTypeMaster {
		if err = doc.readContent(el); err != nil {
			return *el, err
		}
	}
	return *el, nil
}

// ReadHeader reads the next element ID and size.
func (doc *Document) ReadHeader() (*Element, error) {
	if el := doc.pending; el != nil {
		doc.pending = nil
		return el, nil
	}

	el := &Element{Offset: doc.pos}
	id, err := doc.GetElementID(el)
	if err != nil {
		return nil, err
	}
	size, err := doc.GetElementSize(el)
	if err != nil {
		if err == io.EOF {
			err = ErrUnexpectedEOF
		}
		return nil, err
	}

	el.ElementRegister = GetElementRegister(id)
	el.Size = size
	el.HeaderSize = int(doc.pos - el.Offset)
	return el, nil
}

// Unread pushes back a header returned by ReadHeader whose body has not been
// read. The next ReadHeader returns it again.
func (doc *Document) Unread(el *Element) {
	doc.pending = el
}

// ReadBody reads the payload of el: the content of a leaf or, for a master,
// all of its descendants.
func (doc *Document) ReadBody(el *Element) error {
	if el.Type != ElementTypeMaster {
		return doc.readContent(el)
	}

	end := el.Offset + int64(el.HeaderSize) + int64(el.Size)
	for {
		if !el.UnknownSize && doc.pos >= end {
			if doc.pos > end {
				return errors.Wrapf(ErrParse, "%s at %d overruns its size", el.Name, el.Offset)
			}
			return nil
		}

		child, err := doc.ReadHeader()
		if err == io.EOF {
			if el.UnknownSize {
				return nil
			}
			return ErrUnexpectedEOF
		}
		if err != nil {
			return err
		}

		if el.UnknownSize && topLevel[child.ID] && (el.ID != ElementSegment.ID || child.ID == ElementSegment.ID || child.ID == ElementEBML.ID) {
			doc.pending = child
			return nil
		}

		child.Level = el.Level + 1
		if err = doc.ReadBody(child); err != nil {
			return err
		}
		el.Children = append(el.Children, child)
	}
}

// Skip discards the payload of el. Unknown-sized elements are read and
// dropped.
func (doc *Document) Skip(el *Element) error {
	if el.UnknownSize {
		return doc.ReadBody(el)
	}
	n, err := io.CopyN(io.Discard, doc.r, int64(el.Size))
	doc.pos += n
	if err == io.EOF {
		err = ErrUnexpectedEOF
	}
	return err
}

// ParseTree reads every remaining top-level element with its descendants.
func (doc *Document) ParseTree() (els []*Element, err error) {
	for {
		var el *Element
		if el, err = doc.ReadHeader(); err != nil {
			if err == io.EOF {
				err = nil
			}
			return
		}
		if err = doc.ReadBody(el); err != nil {
			return
		}
		els = append(els, el)
	}
}

// GetElementID tries to parse the next element's id,
// starting from the document's current cursor position.
func (doc *Document) GetElementID(el *Element) (uint32, error) {
	b := make([]byte, 4)

	if _, err := io.ReadFull(doc.r, b[:1]); err != nil {
		return 0, err
	}
	doc.pos++

	n := 0
	for mask := byte(0x80); n < 4; mask >>= 1 {
		n++
		if b[0]&mask != 0 {
			break
		}
		if n == 4 {
			return 0, errors.Wrapf(ErrParse, "invalid element id at %d", el.Offset)
		}
	}

	if n > 1 {
		if _, err := io.ReadFull(doc.r, b[1:n]); err != nil {
			return 0, ErrUnexpectedEOF
		}
		doc.pos += int64(n - 1)
	}

	return uint32(pack(n, b)), nil
}

// GetElementSize tries to parse the next element's size,
// starting from the document's current cursor position.
func (doc *Document) GetElementSize(el *Element) (uint64, error) {
	b := make([]byte, 8)

	if _, err := io.ReadFull(doc.r, b[:1]); err != nil {
		return 0, err
	}
	doc.pos++
	if b[0] == 0 {
		return 0, errors.Wrapf(ErrParse, "invalid element size at %d", el.Offset)
	}

	length := 1
	for mask := byte(0x80); b[0]&mask == 0; mask >>= 1 {
		length++
	}

	if length > 1 {
		if _, err := io.ReadFull(doc.r, b[1:length]); err != nil {
			return 0, ErrUnexpectedEOF
		}
		doc.pos += int64(length - 1)
	}

	v, _, unknown, err := DecodeVint(b[:length])
	if err != nil {
		return 0, err
	}
	el.UnknownSize = unknown
	return v, nil
}

func (doc *Document) readContent(el *Element) error {
	if el.UnknownSize || el.Size > MaxContentSize {
		return errors.Wrapf(ErrParse, "%s at %d has an invalid size", el.Name, el.Offset)
	}

	buf := make([]byte, el.Size)
	n, err := io.ReadFull(doc.r, buf)
	doc.pos += int64(n)
	if err != nil {
		return ErrUnexpectedEOF
	}

	el.Content = buf
	return nil
}
