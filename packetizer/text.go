package packetizer

import (
	"strings"

	"github.com/deepch/mkvmux/av"
)

// Text writes UTF-8 subtitle entries. Each entry carries its duration, so it
// is stored in a BlockGroup.
type Text struct {
	Base
}

func NewText(t *av.Track, sink av.BlockSink, opts Options) *Text {
	return &Text{Base: newBase(t, sink, opts)}
}

func (self *Text) Process(pkt av.Packet) error {
	s := strings.ReplaceAll(string(pkt.Data), "\r\n", "\n")
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return self.emit(&av.Block{
		Time:        pkt.Time,
		DTS:         pkt.Time,
		Duration:    pkt.Duration,
		HasDuration: true,
		IsKeyFrame:  true,
		Frames:      [][]byte{[]byte(s)},
	})
}

func (self *Text) Flush() error {
	return nil
}
