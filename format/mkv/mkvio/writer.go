package mkvio

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/deepch/mkvmux/av"
)

// DefaultBufferLimit caps the bytes held in memory for masters that cannot be
// sized by seeking back.
const DefaultBufferLimit = 64 << 20

// CRCElementSize is the length of an encoded CRC-32 element.
const CRCElementSize = 6

type MasterOptions struct {
	// CRC prefixes the payload with a CRC-32 element.
	CRC bool
	// Unknown writes the reserved unknown size and never patches it.
	Unknown bool
}

type master struct {
	id        uint32
	start     int64
	dataStart int64
	opts      MasterOptions
	// buf holds the payload when the size is computed on close
	buf *bytes.Buffer
}

// Writer serializes EBML elements to a sink. Master sizes are patched by
// seeking back when the sink allows it; otherwise the payload is buffered
// until the master is closed.
type Writer struct {
	w        io.Writer
	ws       io.WriteSeeker
	pos      int64
	stack    []*master
	limit    int64
	buffered int64
}

// NewWriter wraps w. A sink is used as seekable only when a Seek on it
// succeeds.
func NewWriter(w io.Writer) *Writer {
	self := &Writer{w: w, limit: DefaultBufferLimit}
	if ws, ok := w.(io.WriteSeeker); ok {
		if pos, err := ws.Seek(0, io.SeekCurrent); err == nil {
			self.ws = ws
			self.pos = pos
		}
	}
	return self
}

func (self *Writer) SetBufferLimit(n int64) {
	if n > 0 {
		self.limit = n
	}
}

func (self *Writer) Seekable() bool {
	return self.ws != nil
}

// Pos is the absolute output offset of the next byte written.
func (self *Writer) Pos() int64 {
	return self.pos
}

// Depth is the number of open masters.
func (self *Writer) Depth() int {
	return len(self.stack)
}

func (self *Writer) top() *master {
	for i := len(self.stack) - 1; i >= 0; i-- {
		if m := self.stack[i]; m.buf != nil {
			return m
		}
	}
	return nil
}

func (self *Writer) Write(b []byte) (n int, err error) {
	if m := self.top(); m != nil {
		self.buffered += int64(len(b))
		if self.buffered > self.limit {
			err = &av.SizeBackpatchFailure{ID: self.outermostBuffered().id, Buffered: self.buffered, Limit: self.limit}
			return
		}
		n, _ = m.buf.Write(b)
	} else if n, err = self.w.Write(b); err != nil {
		err = &av.IOError{Op: "write", Err: err}
	}
	self.pos += int64(n)
	return
}

func (self *Writer) outermostBuffered() *master {
	for _, m := range self.stack {
		if m.buf != nil {
			return m
		}
	}
	return nil
}

func (self *Writer) writeHeader(id uint32, size uint64) error {
	sz, err := EncodeSize(size)
	if err != nil {
		return err
	}
	_, err = self.Write(append(EncodeID(id), sz...))
	return err
}

// StartMaster opens a master element. Children are written until the
// matching EndMaster.
func (self *Writer) StartMaster(id uint32, opts MasterOptions) (err error) {
	m := &master{id: id, start: self.pos, opts: opts}

	switch {
	case opts.Unknown:
		_, err = self.Write(append(EncodeID(id), UnknownSizeBytes(MaxVintLen)...))
	case opts.CRC || self.ws == nil:
		// header and CRC are emitted on close; reserve their room
		m.buf = &bytes.Buffer{}
		self.pos += int64(IDLen(id) + MaxVintLen)
		if opts.CRC {
			self.pos += CRCElementSize
		}
	default:
		// placeholder, patched on close
		_, err = self.Write(append(EncodeID(id), UnknownSizeBytes(MaxVintLen)...))
	}
	if err != nil {
		return
	}

	m.dataStart = self.pos
	self.stack = append(self.stack, m)
	return
}

// EndMaster closes the innermost open master.
func (self *Writer) EndMaster() (err error) {
	if len(self.stack) == 0 {
		return errors.New("mkvio: EndMaster without StartMaster")
	}
	m := self.stack[len(self.stack)-1]
	self.stack = self.stack[:len(self.stack)-1]

	if m.opts.Unknown {
		return
	}

	if m.buf != nil {
		payload := m.buf.Bytes()
		self.buffered -= int64(len(payload))

		size := uint64(len(payload))
		if m.opts.CRC {
			size += CRCElementSize
		}
		sz, err := EncodeVint(size, MaxVintLen)
		if err != nil {
			return err
		}
		out := make([]byte, 0, IDLen(m.id)+MaxVintLen+int(size))
		out = append(out, EncodeID(m.id)...)
		out = append(out, sz...)
		if m.opts.CRC {
			out = append(out, byte(ElementCRC32.ID), 0x84)
			out = binary.LittleEndian.AppendUint32(out, crc32.ChecksumIEEE(payload))
		}
		out = append(out, payload...)

		// room for the header was accounted for in StartMaster
		pos := self.pos
		self.pos = m.start
		_, err = self.Write(out)
		self.pos = pos
		return err
	}

	sz, err := EncodeVint(uint64(self.pos-m.dataStart), MaxVintLen)
	if err != nil {
		return
	}
	return self.Patch(m.start+int64(IDLen(m.id)), sz)
}

// Patch overwrites already written bytes at the absolute offset at.
func (self *Writer) Patch(at int64, b []byte) (err error) {
	for i := len(self.stack) - 1; i >= 0; i-- {
		m := self.stack[i]
		if m.buf == nil || at < m.dataStart {
			continue
		}
		off := at - m.dataStart
		if off+int64(len(b)) > int64(m.buf.Len()) {
			return errors.Errorf("mkvio: patch at %d past buffered data", at)
		}
		copy(m.buf.Bytes()[off:], b)
		return
	}

	if self.ws == nil {
		return &av.IOError{Op: "patch", Err: errors.New("sink is not seekable")}
	}
	if self.top() != nil {
		return errors.Errorf("mkvio: patch at %d inside a buffered master", at)
	}
	if _, err = self.ws.Seek(at, io.SeekStart); err != nil {
		return &av.IOError{Op: "seek", Err: err}
	}
	if _, err = self.ws.Write(b); err != nil {
		return &av.IOError{Op: "write", Err: err}
	}
	if _, err = self.ws.Seek(self.pos, io.SeekStart); err != nil {
		return &av.IOError{Op: "seek", Err: err}
	}
	return
}

// Close fails when masters are still open.
func (self *Writer) Close() error {
	if len(self.stack) > 0 {
		return errors.Errorf("mkvio: %d masters left open", len(self.stack))
	}
	return nil
}

func (self *Writer) WriteBinary(id uint32, b []byte) error {
	if err := self.writeHeader(id, uint64(len(b))); err != nil {
		return err
	}
	_, err := self.Write(b)
	return err
}

func (self *Writer) WriteUint(id uint32, v uint64) error {
	return self.WriteBinary(id, unpack(uintLen(v), v))
}

func (self *Writer) WriteInt(id uint32, v int64) error {
	n := intLen(v)
	return self.WriteBinary(id, unpack(n, uint64(v)))
}

func (self *Writer) WriteFloat(id uint32, v float64) error {
	return self.WriteBinary(id, encodeFloat(v))
}

func (self *Writer) WriteString(id uint32, s string) error {
	return self.WriteBinary(id, []byte(s))
}

func (self *Writer) WriteUTF8(id uint32, s string) error {
	return self.WriteBinary(id, []byte(s))
}

func (self *Writer) WriteDate(id uint32, t time.Time) error {
	return self.WriteInt(id, int64(t.Sub(DateEpoch)))
}

// WriteVoid writes a Void element taking exactly n bytes.
func (self *Writer) WriteVoid(n int) error {
	b, err := VoidBytes(n)
	if err != nil {
		return err
	}
	_, err = self.Write(b)
	return err
}

// VoidBytes returns a Void element of exactly n bytes, n >= 2.
func VoidBytes(n int) ([]byte, error) {
	if n < 2 {
		return nil, errors.Errorf("mkvio: no Void element fits %d bytes", n)
	}
	sizeLen := 1
	if n-2 >= 0x7f {
		sizeLen = MaxVintLen
	}
	data := n - 1 - sizeLen
	if data < 0 {
		return nil, errors.Errorf("mkvio: no Void element fits %d bytes", n)
	}
	sz, err := EncodeVint(uint64(data), sizeLen)
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	b[0] = byte(ElementVoid.ID)
	copy(b[1:], sz)
	return b, nil
}

// WriteElement serializes a parsed element tree. Masters get the writer's
// size coding; leaf payloads are copied as they are.
func (self *Writer) WriteElement(el *Element) error {
	if el.Type != ElementTypeMaster {
		return self.WriteBinary(el.ID, el.Content)
	}
	if err := self.StartMaster(el.ID, MasterOptions{Unknown: el.UnknownSize}); err != nil {
		return err
	}
	for _, c := range el.Children {
		if err := self.WriteElement(c); err != nil {
			return err
		}
	}
	return self.EndMaster()
}
