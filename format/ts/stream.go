package ts

import (
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg1audio"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mpegts"

	"github.com/deepch/mkvmux/av"
	"github.com/deepch/mkvmux/codec/aacparser"
)

// Stream is one elementary stream of the program.
type Stream struct {
	pid   uint16
	codec mpegts.Codec

	// track stays nil until the first access unit told enough about the
	// codec
	track *av.Track

	aac  aacparser.CodecData
	mpga mpeg1audio.FrameHeader
}

func (self *Stream) PID() uint16 {
	return self.pid
}

func (self *Stream) ready() bool {
	return self.track != nil
}

// queued is an access unit read ahead of the packetizers, timestamps still
// in 90 kHz ticks.
type queued struct {
	stream   *Stream
	key      bool
	pts, dts int64
	dur      int64
	data     []byte
}
