package opusparser

import (
	"encoding/binary"
	"errors"
	"time"

	"github.com/deepch/mkvmux/av"
	"github.com/deepch/mkvmux/codec"
)

const SampleRate = 48000

// SeekPreRoll is the decoder convergence time Matroska muxers declare for Opus.
const SeekPreRoll = 80 * time.Millisecond

var ErrHeadInvalid = errors.New("opusparser: OpusHead invalid")

// Head is the OpusHead identification header carried as CodecPrivate.
type Head struct {
	Channels        int
	PreSkip         uint16
	InputSampleRate uint32
	OutputGain      int16
	MappingFamily   uint8
	Mapping         []byte
}

func (self Head) Marshal() []byte {
	b := make([]byte, 19, 19+len(self.Mapping))
	copy(b, "OpusHead")
	b[8] = 1
	b[9] = byte(self.Channels)
	binary.LittleEndian.PutUint16(b[10:], self.PreSkip)
	binary.LittleEndian.PutUint32(b[12:], self.InputSampleRate)
	binary.LittleEndian.PutUint16(b[16:], uint16(self.OutputGain))
	b[18] = self.MappingFamily
	if self.MappingFamily != 0 {
		b = append(b, self.Mapping...)
	}
	return b
}

func ParseHead(b []byte) (self Head, err error) {
	if len(b) < 19 || string(b[:8]) != "OpusHead" || b[9] == 0 {
		err = ErrHeadInvalid
		return
	}
	self.Channels = int(b[9])
	self.PreSkip = binary.LittleEndian.Uint16(b[10:])
	self.InputSampleRate = binary.LittleEndian.Uint32(b[12:])
	self.OutputGain = int16(binary.LittleEndian.Uint16(b[16:]))
	self.MappingFamily = b[18]
	if self.MappingFamily != 0 {
		if len(b) < 21+self.Channels {
			err = ErrHeadInvalid
			return
		}
		self.Mapping = append([]byte(nil), b[19:21+self.Channels]...)
	}
	return
}

// CodecDelay is the pre-skip expressed as time.
func (self Head) CodecDelay() time.Duration {
	return time.Duration(self.PreSkip) * time.Second / SampleRate
}

// NewTrack builds an Opus track. A missing head gets a default one.
func NewTrack(id int64, channels int, head []byte) (t *av.Track, err error) {
	var h Head
	if len(head) == 0 {
		h = Head{Channels: channels, PreSkip: 312, InputSampleRate: SampleRate}
		head = h.Marshal()
	} else if h, err = ParseHead(head); err != nil {
		return
	}
	t = av.NewTrack(id, av.KindAudio, av.OPUS, codec.IDOpus)
	t.CodecPrivate = head
	t.Audio = &av.AudioParams{SampleRate: SampleRate, Channels: h.Channels}
	t.CodecDelay = h.CodecDelay()
	t.SeekPreRoll = SeekPreRoll
	return
}

func Channels(pkt []byte) int {
	if len(pkt) > 0 && (pkt[0]&0x4) == 0 {
		return 1
	}
	return 2
}

func PacketDuration(pkt []byte) (time.Duration, error) {
	if len(pkt) < 1 {
		return 0, errors.New("empty opus packet")
	}
	toc := pkt[0]
	config := toc >> 3
	//stereo := (toc & 0x4) != 0
	code := toc & 0x3
	numFr := 0
	switch code {
	case 0:
		// one frame
		if len(pkt) > 1 {
			numFr = 1
		}
	case 1, 2:
		// two frames
		if len(pkt) > 2 {
			numFr = 2
		}
	case 3:
		// N frames
		if len(pkt) < 2 {
			return 0, errors.New("invalid opus packet")
		}
		numFr = int(pkt[1] & 0x3f)
	}
	return time.Duration(numFr) * opusFrameTimes[config], nil
}

var opusFrameTimes = []time.Duration{
	// SILK NB
	10 * time.Millisecond,
	20 * time.Millisecond,
	40 * time.Millisecond,
	60 * time.Millisecond,
	// SILK MB
	10 * time.Millisecond,
	20 * time.Millisecond,
	40 * time.Millisecond,
	60 * time.Millisecond,
	// SILK WB
	10 * time.Millisecond,
	20 * time.Millisecond,
	40 * time.Millisecond,
	60 * time.Millisecond,
	// Hybrid SWB
	10 * time.Millisecond,
	20 * time.Millisecond,
	// Hybrid FB
	10 * time.Millisecond,
	20 * time.Millisecond,
	// CELT NB
	2500 * time.Microsecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	20 * time.Millisecond,
	// CELT WB
	2500 * time.Microsecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	20 * time.Millisecond,
	// CELT SWB
	2500 * time.Microsecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	20 * time.Millisecond,
	// CELT FB
	2500 * time.Microsecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	20 * time.Millisecond,
}
