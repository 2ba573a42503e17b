// Package av defines the types shared by readers, packetizers and the muxer.
package av

import (
	"fmt"
	"time"
)

type CodecType uint32

const (
	UNKNOWN CodecType = iota
	H264
	H265
	AAC
	OPUS
	MP3
	PCM
	PCM_ALAW
	PCM_MULAW
	SPEEX
	DIRAC
	VP8
	VP9
	AV1
	TEXT
)

var codecNames = map[CodecType]string{
	H264:      "H264",
	H265:      "H265",
	AAC:       "AAC",
	OPUS:      "OPUS",
	MP3:       "MP3",
	PCM:       "PCM",
	PCM_ALAW:  "PCM_ALAW",
	PCM_MULAW: "PCM_MULAW",
	SPEEX:     "SPEEX",
	DIRAC:     "DIRAC",
	VP8:       "VP8",
	VP9:       "VP9",
	AV1:       "AV1",
	TEXT:      "TEXT",
}

func (self CodecType) String() string {
	if s, ok := codecNames[self]; ok {
		return s
	}
	return fmt.Sprintf("CodecType(%d)", uint32(self))
}

// TrackKind values are the Matroska TrackType codes.
type TrackKind uint8

const (
	KindVideo    TrackKind = 0x01
	KindAudio    TrackKind = 0x02
	KindSubtitle TrackKind = 0x11
	KindButtons  TrackKind = 0x12
)

func (self TrackKind) String() string {
	switch self {
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	case KindSubtitle:
		return "subtitles"
	case KindButtons:
		return "buttons"
	}
	return fmt.Sprintf("TrackKind(%d)", uint8(self))
}

func (self TrackKind) Valid() bool {
	switch self {
	case KindVideo, KindAudio, KindSubtitle, KindButtons:
		return true
	}
	return false
}

// Packet is one demuxed unit as produced by a Reader.
type Packet struct {
	TrackID    int64
	IsKeyFrame bool
	Time       time.Duration // presentation time
	DTS        time.Duration
	HasDTS     bool
	Duration   time.Duration
	Data       []byte
}

type Lacing uint8

const (
	LacingNone Lacing = iota
	LacingXiph
	LacingFixed
	LacingEBML
)

// Block is a container-ready unit produced by a Packetizer.
type Block struct {
	Track       *Track
	Time        time.Duration // presentation time
	DTS         time.Duration // interleaving key, equals Time unless the codec reorders
	Duration    time.Duration
	HasDuration bool
	IsKeyFrame  bool
	Discardable bool
	Lacing      Lacing
	Frames      [][]byte
}

func (self *Block) Size() (n int) {
	for _, f := range self.Frames {
		n += len(f)
	}
	return
}

func (self *Block) End() time.Duration {
	return self.Time + self.Duration
}

type BlockSink interface {
	Push(blk *Block) error
}

type Packetizer interface {
	Track() *Track
	Process(pkt Packet) error
	// Flush emits anything held back waiting for a following packet.
	Flush() error
}

type Status int

const (
	MoreData Status = iota
	Done
)

func (self Status) String() string {
	if self == Done {
		return "done"
	}
	return "more_data"
}

// Reader is implemented by every input format.
type Reader interface {
	// Identify discovers the tracks of the input. It does not register them anywhere.
	Identify() ([]*Track, error)
	// CreatePacketizer binds a packetizer to a track returned by Identify.
	CreatePacketizer(t *Track, sink BlockSink) (Packetizer, error)
	// Read advances by one logical unit and hands the resulting packets to
	// the packetizers bound to their tracks. With force set, partially
	// buffered units are emitted as well.
	Read(force bool) (Status, error)
	// Progress is the consumed share of the input in percent.
	Progress() int
}
