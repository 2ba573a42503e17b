package mkv

import (
	"time"

	"github.com/deepch/mkvmux/av"
	"github.com/deepch/mkvmux/format/mkv/mkvio"
)

// Stream is one TrackEntry of the input segment.
type Stream struct {
	track  *av.Track
	number uint64

	// length prefix size of AVC samples when it differs from 4
	lengthSize int
}

func (self *Stream) Track() *av.Track {
	return self.track
}

// frames splits a block into packets. Laced frames get evenly spread
// timestamps over the block duration, or the track's default duration.
func (self *Stream) frames(at, dur time.Duration, key bool, data [][]byte) (pkts []av.Packet) {
	step := self.track.DefaultDuration
	if dur > 0 && len(data) > 0 {
		step = dur / time.Duration(len(data))
	}
	for i, frame := range data {
		pkt := av.Packet{
			TrackID:    self.track.ID,
			IsKeyFrame: key || self.track.Kind == av.KindAudio,
			Time:       at + time.Duration(i)*step,
			Duration:   step,
			Data:       frame,
		}
		if len(data) == 1 && dur > 0 {
			pkt.Duration = dur
		}
		pkts = append(pkts, pkt)
	}
	return
}

func uintOr(el *mkvio.Element, id uint32, def uint64) uint64 {
	if c := el.Child(id); c != nil {
		return c.Uint()
	}
	return def
}

func stringOr(el *mkvio.Element, id uint32, def string) string {
	if c := el.Child(id); c != nil {
		return c.String()
	}
	return def
}
